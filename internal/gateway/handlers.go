package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"chessvariants-server/internal/auth"
	"chessvariants-server/internal/dispatcher"
	"chessvariants-server/internal/matchmaker"
	"chessvariants-server/internal/metrics"
	"chessvariants-server/internal/model"
	"chessvariants-server/internal/tournament"
	"chessvariants-server/internal/variant"
)

// SessionLoader is the subset of the Session Store the Gateway needs
// directly, for read-only queries (possible moves) that don't go through
// the Dispatcher's lane.
type SessionLoader interface {
	Load(ctx context.Context, sessionID string) (*model.Session, error)
}

// Server wires the Gateway's WebSocket wire protocol (spec.md §4.G) to
// the Dispatcher, Matchmaker, and Tournament Manager. It is the single
// collaborator registered against an *http.ServeMux.
type Server struct {
	hub           *Hub
	dispatcher    *dispatcher.Dispatcher
	matchmaker    *matchmaker.Matchmaker
	tournament    *tournament.Manager
	store         SessionLoader
	metrics       *metrics.Metrics
	log           *slog.Logger
	signingSecret string
}

// NewServer constructs a Gateway Server. tm may be nil if no tournament is
// ever started by this deployment. signingSecret verifies each inbound
// connection's bearer token (SPEC_FULL.md §0.2); pass "" to disable the
// check (local development only).
func NewServer(hub *Hub, d *dispatcher.Dispatcher, mm *matchmaker.Matchmaker, tm *tournament.Manager, store SessionLoader, m *metrics.Metrics, log *slog.Logger, signingSecret string) *Server {
	return &Server{
		hub:           hub,
		dispatcher:    d,
		matchmaker:    mm,
		tournament:    tm,
		store:         store,
		metrics:       m,
		log:           log,
		signingSecret: signingSecret,
	}
}

// allowedOrigins holds the configured allowed origins, parsed from
// ALLOWED_ORIGINS. Default "*" allows all origins (development).
var allowedOrigins = parseAllowedOrigins(os.Getenv("ALLOWED_ORIGINS"))

func parseAllowedOrigins(s string) []string {
	if s == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func checkOrigin(r *http.Request) bool {
	for _, o := range allowedOrigins {
		if o == "*" {
			return true
		}
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range allowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func setCORS(w http.ResponseWriter) {
	origin := "*"
	for _, o := range allowedOrigins {
		if o != "*" {
			origin = strings.Join(allowedOrigins, ", ")
			break
		}
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes wires the WS upgrade endpoint and a small set of REST
// endpoints (health, leaderboard) onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux, processStart time.Time) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			http.Error(w, `{"error":"userId query parameter is required"}`, http.StatusBadRequest)
			return
		}
		if s.signingSecret != "" && !auth.Verify(s.signingSecret, userID, r.URL.Query().Get("token")) {
			http.Error(w, `{"error":"invalid or missing bearer token"}`, http.StatusUnauthorized)
			return
		}
		lastSeq := int64(0)
		if v := r.URL.Query().Get("lastSeq"); v != "" {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				lastSeq = parsed
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			if s.log != nil {
				s.log.Error("ws upgrade failed", slog.String("error", err.Error()))
			}
			return
		}
		conn.EnableWriteCompression(true)

		client := &Client{userID: userID, conn: conn, send: make(chan []byte, 256), srv: s}
		s.hub.register(client)

		if s.log != nil {
			s.log.Info("ws client connected", slog.String("user_id", userID), slog.Int("total", s.hub.ClientCount()))
		}

		go client.writePump()
		go client.readPump()
		if lastSeq > 0 {
			go s.hub.replaySince(userID, lastSeq)
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "ok",
			"ws_clients": s.hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	if s.tournament != nil {
		mux.HandleFunc("/api/tournament/leaderboard", func(w http.ResponseWriter, r *http.Request) {
			setCORS(w)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(s.tournament.Leaderboard())
		})
	}
}

// handleMessage dispatches one decoded client envelope (spec.md §4.G
// in-message catalog) to the appropriate collaborator. Every handler
// below replies synchronously only to the requester on rejection/error;
// successful game actions are fanned out by the Hub via BroadcastOutcome,
// not replied to directly here.
func (s *Server) handleMessage(ctx context.Context, c *Client, env inEnvelope) {
	switch env.Type {
	case "queue:join":
		s.handleQueueJoin(ctx, c, env)
	case "queue:leave":
		if err := s.matchmaker.Leave(ctx, c.userID); err != nil {
			s.hub.SendError(c.userID, env.ReqID, model.CodeInternalError, err.Error())
		}
	case "queue:get_live_counts":
		s.handleLiveCounts(ctx, c, env)

	case "tournament:join":
		s.handleTournamentJoin(ctx, c, env)
	case "tournament:leave":
		if s.tournament == nil {
			s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidState, "no tournament manager configured")
			return
		}
		if err := s.tournament.Leave(ctx, c.userID); err != nil {
			s.hub.SendError(c.userID, env.ReqID, model.CodeInternalError, err.Error())
		}

	case "game:makeMove":
		s.handleMakeMove(ctx, c, env)
	case "game:makeDrop":
		s.handleMakeDrop(ctx, c, env)
	case "game:getPossibleMoves":
		s.handlePossibleMoves(ctx, c, env)
	case "game:timeoutPenalty":
		s.handleAction(ctx, c, env, func(sessionID string) (model.Outcome, error) {
			return s.dispatcher.Dispatch(ctx, sessionID, c.userID, model.NewTimeoutPenaltyAction(nowMs()))
		})
	case "game:resign":
		s.handleAction(ctx, c, env, func(sessionID string) (model.Outcome, error) {
			return s.dispatcher.Resign(ctx, sessionID, c.userID)
		})
	case "game:offerDraw":
		s.handleAction(ctx, c, env, func(sessionID string) (model.Outcome, error) {
			return s.dispatcher.OfferDraw(ctx, sessionID, c.userID)
		})
	case "game:acceptDraw":
		s.handleAction(ctx, c, env, func(sessionID string) (model.Outcome, error) {
			return s.dispatcher.AcceptDraw(ctx, sessionID, c.userID)
		})
	case "game:declineDraw":
		s.handleAction(ctx, c, env, func(sessionID string) (model.Outcome, error) {
			return s.dispatcher.DeclineDraw(ctx, sessionID, c.userID)
		})

	default:
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidInput, "unrecognized message type: "+env.Type)
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

func (s *Server) handleQueueJoin(ctx context.Context, c *Client, env inEnvelope) {
	var in queueJoinIn
	if err := json.Unmarshal(env.Payload, &in); err != nil {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidInput, "invalid queue:join payload")
		return
	}
	if _, ok := variant.TimeControlFor(in.Variant, in.Subvariant); !ok {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidInput, "unrecognized variant/subvariant")
		return
	}
	if err := s.matchmaker.Enqueue(ctx, c.userID, in.Rating, in.DisplayName, in.Variant, in.Subvariant, in.TournamentID); err != nil {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInternalError, err.Error())
	}
}

func (s *Server) handleTournamentJoin(ctx context.Context, c *Client, env inEnvelope) {
	if s.tournament == nil {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidState, "no tournament manager configured")
		return
	}
	var in tournamentJoinIn
	if err := json.Unmarshal(env.Payload, &in); err != nil {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidInput, "invalid tournament:join payload")
		return
	}
	if err := s.tournament.Join(ctx, c.userID, in.DisplayName, in.Rating); err != nil {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidState, err.Error())
	}
}

func (s *Server) handleLiveCounts(ctx context.Context, c *Client, env inEnvelope) {
	counts := make([]liveCountEntry, 0, len(model.SupportedAssignments))
	for _, a := range model.SupportedAssignments {
		q, err := s.matchmaker.ListQueue(ctx, a.Variant, a.Subvariant)
		if err != nil {
			continue
		}
		counts = append(counts, liveCountEntry{Variant: a.Variant, Subvariant: a.Subvariant, Waiting: len(q)})
	}
	s.hub.send(c.userID, outEnvelope{Type: "queue:live_counts", ReqID: env.ReqID, Payload: liveCountsOut{Counts: counts}})
}

func (s *Server) handleMakeMove(ctx context.Context, c *Client, env inEnvelope) {
	var in gameMoveIn
	if err := json.Unmarshal(env.Payload, &in); err != nil {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidInput, "invalid game:makeMove payload")
		return
	}
	action := model.NewMoveAction(in.From, in.To, in.Promotion, nowMs())
	s.handleAction(ctx, c, env, func(sessionID string) (model.Outcome, error) {
		return s.dispatcher.Dispatch(ctx, sessionID, c.userID, action)
	}, in.SessionID)
}

func (s *Server) handleMakeDrop(ctx context.Context, c *Client, env inEnvelope) {
	var in gameDropIn
	if err := json.Unmarshal(env.Payload, &in); err != nil {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidInput, "invalid game:makeDrop payload")
		return
	}
	action := model.NewDropAction(in.Piece, in.To, nowMs())
	s.handleAction(ctx, c, env, func(sessionID string) (model.Outcome, error) {
		return s.dispatcher.Dispatch(ctx, sessionID, c.userID, action)
	}, in.SessionID)
}

// handleAction runs fn against the session id either supplied explicitly
// (variadic sessionID, for actions whose payload already carries one) or
// decoded from a bare gameSessionIn payload, and delivers a synchronous
// error to the requester on rejection. Successful outcomes are left to
// the Hub's BroadcastOutcome fan-out.
func (s *Server) handleAction(ctx context.Context, c *Client, env inEnvelope, fn func(sessionID string) (model.Outcome, error), sessionID ...string) {
	id := ""
	if len(sessionID) > 0 {
		id = sessionID[0]
	} else {
		var in gameSessionIn
		if err := json.Unmarshal(env.Payload, &in); err != nil {
			s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidInput, "missing sessionId")
			return
		}
		id = in.SessionID
	}
	if id == "" {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidInput, "missing sessionId")
		return
	}

	outcome, err := fn(id)
	if err != nil {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInternalError, err.Error())
		return
	}
	if outcome.Kind == model.OutcomeRejected {
		s.hub.SendError(c.userID, env.ReqID, outcome.Code, outcome.Reason)
		return
	}
	if s.tournament != nil && outcome.IsTerminal && outcome.NewState != nil && outcome.NewState.TournamentID != "" {
		s.recordTournamentResult(outcome.NewState)
	}
}

func (s *Server) handlePossibleMoves(ctx context.Context, c *Client, env inEnvelope) {
	var in gameSessionIn
	if err := json.Unmarshal(env.Payload, &in); err != nil {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidInput, "missing sessionId")
		return
	}

	session, err := s.store.Load(ctx, in.SessionID)
	if err != nil {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInternalError, err.Error())
		return
	}
	if session == nil {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidState, "session not found")
		return
	}

	color := session.Players.ColorOf(c.userID)
	if !color.Valid() {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidPlayer, "not a participant in this session")
		return
	}

	engine, ok := variant.Lookup(session.Variant, session.Subvariant)
	if !ok {
		s.hub.SendError(c.userID, env.ReqID, model.CodeInvalidState, "unrecognized variant/subvariant")
		return
	}

	actions := engine.LegalActions(session, color, nowMs())
	wire := make([]wireAction, len(actions))
	for i, a := range actions {
		wire[i] = wireAction{Kind: a.Kind, From: a.From, To: a.To, Piece: a.DropPiece, Promotion: a.Promotion}
		if a.Kind == model.ActionDrop {
			wire[i].To = a.DropTo
		}
	}

	s.hub.send(c.userID, outEnvelope{
		Type:    "game:possibleMoves",
		ReqID:   env.ReqID,
		Payload: gamePossibleMovesOut{SessionID: in.SessionID, Actions: wire},
	})
}

// recordTournamentResult is called after a terminal outcome on a
// tournament-origin session: it updates both participants' win/streak
// records (spec.md §4.T leaderboard), crediting the winner and resetting
// the loser's streak. A draw resets both players' streaks to zero — any
// non-win resets currentStreak, not just a loss.
func (s *Server) recordTournamentResult(state *model.Session) {
	if state.Result == nil {
		return
	}
	white, black := state.Players.White, state.Players.Black
	switch state.Result.Winner {
	case model.White:
		s.tournament.RecordResult(white.UserID, white.DisplayName, true)
		s.tournament.RecordResult(black.UserID, black.DisplayName, false)
	case model.Black:
		s.tournament.RecordResult(black.UserID, black.DisplayName, true)
		s.tournament.RecordResult(white.UserID, white.DisplayName, false)
	default:
		s.tournament.RecordResult(white.UserID, white.DisplayName, false)
		s.tournament.RecordResult(black.UserID, black.DisplayName, false)
	}
}
