package model

// ResultType is the terminal outcome classification of a finished session.
type ResultType string

const (
	ResultCheckmate           ResultType = "checkmate"
	ResultStalemate           ResultType = "stalemate"
	ResultInsufficientMaterial ResultType = "insufficientMaterial"
	ResultRepetition          ResultType = "repetition"
	ResultFiftyMoveRule       ResultType = "fiftyMoveRule"
	ResultTimeout             ResultType = "timeout"
	ResultResignation         ResultType = "resignation"
	ResultDrawAgreed          ResultType = "drawAgreed"
	ResultPoints              ResultType = "points" // 6PT move-cap comparison
)

// Status is the session lifecycle state, per spec.md §3.
type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Result records a finished session's terminal details.
type Result struct {
	Result       ResultType `json:"result"`
	ResultReason string     `json:"resultReason,omitempty"`
	Winner       Color      `json:"winner,omitempty"` // empty for a draw
	EndedAt      int64      `json:"endedAt,omitempty"`
}

// TerminalStatus summarizes chess-position terminality, computed by the
// Position Library and consulted by every engine's common preamble (spec.md
// §4.E "evaluate terminal status", ordering in §4.E: "Checkmate > stalemate
// > insufficient material > fivefold repetition (or threefold...) > 75-move
// rule (or 50-move)").
type TerminalStatus struct {
	Check                bool
	Checkmate            bool
	Stalemate            bool
	InsufficientMaterial bool
	ThreefoldRepetition  bool
	FivefoldRepetition   bool
	FiftyMoveRule        bool
	SeventyFiveMoveRule  bool
}

// Any reports whether any terminal condition is set.
func (t TerminalStatus) Any() bool {
	return t.Checkmate || t.Stalemate || t.InsufficientMaterial ||
		t.ThreefoldRepetition || t.FivefoldRepetition ||
		t.FiftyMoveRule || t.SeventyFiveMoveRule
}
