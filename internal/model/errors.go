package model

// Code enumerates the error taxonomy surfaced to clients, per spec.md §7.
// It is carried inside Outcome.Rejected / Outcome.Warning rather than as a
// raw Go error — engines are pure and deterministic, so "error" is reserved
// for genuine I/O/programmer failures the dispatcher maps to INTERNAL_ERROR.
type Code string

const (
	// Malformed or unauthenticated action; rejected without state change.
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeInvalidMove   Code = "INVALID_MOVE"
	CodeInvalidPlayer Code = "INVALID_PLAYER"
	CodeInvalidState  Code = "INVALID_STATE"
	CodeInvalidFEN    Code = "INVALID_FEN"
	CodeMissingFEN    Code = "MISSING_FEN"

	// Rule violations; no state change unless noted otherwise below.
	CodeWrongTurn          Code = "WRONG_TURN"
	CodeIllegalMove        Code = "ILLEGAL_MOVE"
	CodeChessEngineError   Code = "CHESS_JS_ERROR"
	CodePieceFrozen        Code = "PIECE_FROZEN"
	CodeInvalidPawnDrop    Code = "INVALID_PAWN_DROP"
	CodeSquareOccupied     Code = "SQUARE_OCCUPIED"
	CodeSelfCheck          Code = "SELF_CHECK"
	CodePieceNotInPocket   Code = "PIECE_NOT_IN_POCKET"
	CodeSequentialDropOnly Code = "SEQUENTIAL_DROP_ONLY"
	CodePieceNotAvailable  Code = "PIECE_NOT_AVAILABLE"
	CodeMoveLimitExceeded  Code = "MOVE_LIMIT_EXCEEDED"

	// DropExpired is a non-fatal warning in Crazyhouse withTimer: state IS
	// mutated (head piece evicted) but the mover's turn is preserved.
	CodeDropExpired Code = "DROP_EXPIRED"

	// TimeoutPenalty is non-fatal in 6PT: state IS mutated (penalty applied,
	// turn passed).
	CodeTimeoutPenalty Code = "TIMEOUT_PENALTY"

	// Terminal transitions in all other variants.
	CodeTimeout    Code = "TIMEOUT"
	CodeGameEnded  Code = "GAME_ENDED"

	// Engine failure; state must not have been partially committed.
	CodeInternalError Code = "INTERNAL_ERROR"
)

// Error is the structured rejection/warning reason carried across the
// engine boundary in place of a raw Go error.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewError constructs an *Error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}
