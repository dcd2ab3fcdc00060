package model

// MoveKind distinguishes the structured move record kinds, per spec.md §3
// ("moveHistory (ordered sequence of applied moves, each a structured
// record not just SAN)").
type MoveKind string

const (
	MoveKindStandard MoveKind = "move"
	MoveKindDrop     MoveKind = "drop"
	MoveKindTimeout  MoveKind = "timeout"
)

// MoveRecord is one applied move, as appended to Session.MoveHistory.
type MoveRecord struct {
	Kind      MoveKind  `json:"kind"`
	Color     Color     `json:"color"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Piece     PieceType `json:"piece,omitempty"`
	Promotion PieceType `json:"promotion,omitempty"`
	Captured  PieceType `json:"captured,omitempty"`
	SAN       string    `json:"san,omitempty"`
	FEN       string    `json:"fen"`
	Timestamp int64     `json:"timestamp"`
}
