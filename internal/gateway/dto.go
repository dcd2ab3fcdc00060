package gateway

import (
	"encoding/json"

	"chessvariants-server/internal/model"
)

// inEnvelope is the common shape of every client->server message, per
// spec.md §4.G's in-message catalog. Payload is re-decoded into the
// concrete type once Type is known.
type inEnvelope struct {
	Type    string          `json:"type"`
	ReqID   string          `json:"reqId,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// outEnvelope is the common shape of every server->client message.
type outEnvelope struct {
	Type    string      `json:"type"`
	ReqID   string      `json:"reqId,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// --- queue:* payloads ---

type queueJoinIn struct {
	Variant      model.Variant    `json:"variant"`
	Subvariant   model.Subvariant `json:"subvariant,omitempty"`
	Rating       int              `json:"rating"`
	DisplayName  string           `json:"displayName"`
	TournamentID string           `json:"tournamentId,omitempty"`
}

type queueMatchedOut struct {
	Session *model.Session `json:"session"`
	Source  string         `json:"source"`
	Color   model.Color    `json:"color"`
}

type queueCooldownOut struct {
	RemainingMs int64 `json:"remainingMs"`
}

type liveCountEntry struct {
	Variant    model.Variant    `json:"variant"`
	Subvariant model.Subvariant `json:"subvariant,omitempty"`
	Waiting    int              `json:"waiting"`
}

type liveCountsOut struct {
	Counts []liveCountEntry `json:"counts"`
}

// --- tournament:* payloads ---

type tournamentJoinIn struct {
	Rating      int    `json:"rating"`
	DisplayName string `json:"displayName"`
}

// --- game:* payloads ---

type gameMoveIn struct {
	SessionID string          `json:"sessionId"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Promotion model.PieceType `json:"promotion,omitempty"`
}

type gameDropIn struct {
	SessionID string          `json:"sessionId"`
	Piece     model.PieceType `json:"piece"`
	To        string          `json:"to"`
}

type gameSessionIn struct {
	SessionID string `json:"sessionId"`
}

type gamePossibleMovesOut struct {
	SessionID string         `json:"sessionId"`
	Actions   []wireAction   `json:"actions"`
}

type wireAction struct {
	Kind      model.ActionKind `json:"kind"`
	From      string           `json:"from,omitempty"`
	To        string           `json:"to,omitempty"`
	Piece     model.PieceType  `json:"piece,omitempty"`
	Promotion model.PieceType  `json:"promotion,omitempty"`
}

type gameStateOut struct {
	Session *model.Session `json:"session"`
}

type gameMoveOut struct {
	SessionID  string          `json:"sessionId"`
	Move       *model.MoveRecord `json:"move"`
	NewState   *model.Session  `json:"state"`
}

type gameEndOut struct {
	SessionID string       `json:"sessionId"`
	Result    *model.Result `json:"result"`
}

type gameWarningOut struct {
	SessionID string `json:"sessionId"`
	Code      model.Code `json:"code"`
	Message   string `json:"message"`
}

type gameErrorOut struct {
	Code    model.Code `json:"code"`
	Message string     `json:"message"`
}
