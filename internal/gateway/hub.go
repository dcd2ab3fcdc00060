package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"

	"chessvariants-server/internal/metrics"
	"chessvariants-server/internal/model"

	"github.com/gorilla/websocket"
)

// Hub tracks every connected client by user id and fans out session
// outcomes, matchmaking results, and live-count snapshots to them. It
// implements dispatcher.Broadcaster, matchmaker.Notifier, and
// tournament.Notifier — the three collaborators that need to push a
// message to a specific player without knowing anything about the
// underlying connection (spec.md §4.G).
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[string]*Client // userID -> connection
	replay  map[string]*replayBuffer // userID -> recent envelopes
	seqs    map[string]int64         // userID -> next seq to assign
}

// NewHub constructs an empty Hub.
func NewHub(m *metrics.Metrics, log *slog.Logger) *Hub {
	return &Hub{
		metrics: m,
		log:     log,
		clients: make(map[string]*Client),
		replay:  make(map[string]*replayBuffer),
		seqs:    make(map[string]int64),
	}
}

// replayBufferFor returns (creating if needed) the per-user replay buffer.
func (h *Hub) replayBufferFor(userID string) *replayBuffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	rb, ok := h.replay[userID]
	if !ok {
		rb = newReplayBuffer(64)
		h.replay[userID] = rb
	}
	return rb
}

// replaySince resends every envelope delivered to userID after fromSeq,
// used to catch a reconnecting client up on what it missed.
func (h *Hub) replaySince(userID string, fromSeq int64) {
	rb := h.replayBufferFor(userID)
	for _, entry := range rb.since(fromSeq) {
		h.deliverRaw(userID, entry.Data)
	}
}

// register associates a userID with its live connection, replacing and
// closing out any prior connection for the same user (a reconnect).
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	prev, had := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if had && prev != c {
		prev.close()
	}
	if h.metrics != nil {
		h.metrics.WSConnectionsActive.Set(float64(h.ClientCount()))
	}
}

// remove drops a client, but only if it is still the registered
// connection for its user id (a stale unregister from a replaced
// connection must not evict the new one).
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.userID]; ok && cur == c {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSConnectionsActive.Set(float64(h.ClientCount()))
	}
}

// ClientCount returns the number of connected users.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// send delivers an envelope to userID, recording it in that user's replay
// buffer regardless of whether a connection is currently live — a
// reconnect calls replaySince to catch up on anything sent while
// disconnected.
func (h *Hub) send(userID string, env outEnvelope) {
	buf, err := json.Marshal(env)
	if err != nil {
		if h.log != nil {
			h.log.Error("marshal outgoing envelope", slog.String("type", env.Type), slog.String("error", err.Error()))
		}
		return
	}

	h.mu.Lock()
	h.seqs[userID]++
	seq := h.seqs[userID]
	h.mu.Unlock()
	h.replayBufferFor(userID).push(seq, buf)

	h.deliverRaw(userID, buf)
}

func (h *Hub) deliverRaw(userID string, buf []byte) {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case c.send <- buf:
		if h.metrics != nil {
			h.metrics.WSMessagesSent.Inc()
		}
	default:
		if h.metrics != nil {
			h.metrics.WSBroadcastDropped.WithLabelValues("backpressure").Inc()
		}
	}
}

// BroadcastOutcome implements dispatcher.Broadcaster: it delivers the
// outcome of a dispatched action to both participants of the session the
// outcome carries, tailoring the envelope type to the outcome kind
// (spec.md §4.G out-messages "game:gameState"/"game:move"/"game:end"/
// "game:warning").
func (h *Hub) BroadcastOutcome(sessionID string, outcome model.Outcome) {
	switch outcome.Kind {
	case model.OutcomeRejected:
		// Rejections are delivered synchronously to the requester by the
		// handler that produced them, not broadcast to the table.
		return

	case model.OutcomeApplied:
		state := outcome.NewState
		if state == nil {
			return
		}
		if outcome.AppliedMove != nil {
			h.broadcastToSession(state, outEnvelope{
				Type: "game:move",
				Payload: gameMoveOut{
					SessionID: sessionID,
					Move:      outcome.AppliedMove,
					NewState:  state,
				},
			})
		} else {
			h.broadcastToSession(state, outEnvelope{
				Type:    "game:gameState",
				Payload: gameStateOut{Session: state},
			})
		}
		if outcome.IsTerminal && state.Result != nil {
			h.broadcastToSession(state, outEnvelope{
				Type:    "game:end",
				Payload: gameEndOut{SessionID: sessionID, Result: state.Result},
			})
		}

	case model.OutcomeWarning:
		state := outcome.NewState
		if state == nil {
			return
		}
		h.broadcastToSession(state, outEnvelope{
			Type: "game:warning",
			Payload: gameWarningOut{
				SessionID: sessionID,
				Code:      outcome.Code,
				Message:   outcome.Reason,
			},
		})
		h.broadcastToSession(state, outEnvelope{
			Type:    "game:gameState",
			Payload: gameStateOut{Session: state},
		})
	}
}

func (h *Hub) broadcastToSession(state *model.Session, env outEnvelope) {
	h.send(state.Players.White.UserID, env)
	h.send(state.Players.Black.UserID, env)
}

// NotifyMatched implements matchmaker.Notifier and tournament.Notifier.
func (h *Hub) NotifyMatched(userID string, session *model.Session, source string) {
	h.send(userID, outEnvelope{
		Type: "queue:matched",
		Payload: queueMatchedOut{
			Session: session,
			Source:  source,
			Color:   session.Players.ColorOf(userID),
		},
	})
}

// NotifyCooldown implements matchmaker.Notifier.
func (h *Hub) NotifyCooldown(userID string, remainingMs int64) {
	h.send(userID, outEnvelope{
		Type:    "queue:cooldown",
		Payload: queueCooldownOut{RemainingMs: remainingMs},
	})
}

// SendError delivers a synchronous rejection to a single requester,
// tagged with the request's reqId so the client can correlate it.
func (h *Hub) SendError(userID, reqID string, code model.Code, message string) {
	h.send(userID, outEnvelope{
		Type:    "game:error",
		ReqID:   reqID,
		Payload: gameErrorOut{Code: code, Message: message},
	})
}

// upgrader is shared across all WS upgrades; CheckOrigin is permissive by
// default and tightened via allowedOrigins in handlers.go.
var upgrader = websocket.Upgrader{
	CheckOrigin:       checkOrigin,
	EnableCompression: true,
}
