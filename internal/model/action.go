package model

// ActionKind tags the Action sum type named in spec.md §4.E:
// Action = {Move(from,to,promotion?)} | {Drop(piece,to)} | {TimeoutPenalty}.
type ActionKind string

const (
	ActionMove            ActionKind = "move"
	ActionDrop            ActionKind = "drop"
	ActionTimeoutPenalty  ActionKind = "timeoutPenalty"
)

// Action is the sum type engines accept. Exactly the fields relevant to
// Kind are populated; the rest are zero.
type Action struct {
	Kind ActionKind

	// Move fields.
	From      string
	To        string
	Promotion PieceType

	// Drop fields.
	DropPiece PieceType
	DropTo    string

	// Timestamp is the server-observed wall-clock ms at which the action is
	// being processed; supplied by the Dispatcher, never by the client.
	Timestamp int64
}

// NewMoveAction builds a Move action.
func NewMoveAction(from, to string, promotion PieceType, nowMs int64) Action {
	return Action{Kind: ActionMove, From: from, To: to, Promotion: promotion, Timestamp: nowMs}
}

// NewDropAction builds a Drop action.
func NewDropAction(piece PieceType, to string, nowMs int64) Action {
	return Action{Kind: ActionDrop, DropPiece: piece, DropTo: to, Timestamp: nowMs}
}

// NewTimeoutPenaltyAction builds a TimeoutPenalty action (6PT only).
func NewTimeoutPenaltyAction(nowMs int64) Action {
	return Action{Kind: ActionTimeoutPenalty, Timestamp: nowMs}
}
