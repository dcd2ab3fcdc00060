// Package position is the Position Library (spec §4.L): a pure,
// side-effect-free chess position module built on github.com/notnil/chess
// for standard move legality, check/checkmate/stalemate/insufficient-
// material detection and SAN generation, extended with a put-piece
// primitive for Crazyhouse drops that the underlying library has no
// concept of.
package position

import (
	"fmt"

	"chessvariants-server/internal/model"

	"github.com/notnil/chess"
)

// ErrIllegalMove and ErrIllegalDrop are the two failure modes named in
// spec.md §4.L.
type ErrIllegalMove struct{ Reason string }

func (e *ErrIllegalMove) Error() string { return "position: illegal move: " + e.Reason }

type ErrIllegalDrop struct{ Reason string }

func (e *ErrIllegalDrop) Error() string { return "position: illegal drop: " + e.Reason }

// Applied is the result of successfully applying a move or drop: the
// resulting FEN plus enough detail for the caller to build a MoveRecord.
type Applied struct {
	FEN      string
	SAN      string
	Captured model.PieceType
	IsCapture bool
}

// LegalMove is one legal move or drop available from a position, expressed
// in UCI-like from/to/promotion form.
type LegalMove struct {
	From      string
	To        string
	Promotion model.PieceType
	IsDrop    bool
	DropPiece model.PieceType
}

func newGameFromFEN(fen string) (*chess.Game, error) {
	fenFn, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("position: invalid FEN %q: %w", fen, err)
	}
	return chess.NewGame(fenFn, chess.UseNotation(chess.UCINotation{})), nil
}

// ActiveColor returns the side to move encoded in fen.
func ActiveColor(fen string) (model.Color, error) {
	f, err := parseFENFields(fen)
	if err != nil {
		return "", err
	}
	return fenToColor(f.active), nil
}

// HalfmoveClock returns the FEN halfmove clock (used for 50/75-move rule
// bookkeeping by the variant engines).
func HalfmoveClock(fen string) (int, error) {
	f, err := parseFENFields(fen)
	if err != nil {
		return 0, err
	}
	return f.halfmove, nil
}

// IsCheck reports whether the side to move in fen is in check.
func IsCheck(fen string) (bool, error) {
	g, err := newGameFromFEN(fen)
	if err != nil {
		return false, err
	}
	return g.Position().InCheck(), nil
}

// Terminal evaluates checkmate / stalemate / insufficient-material status
// for fen using the underlying library's outcome/method detection. It does
// NOT evaluate repetition or the 50/75-move rule: those require the
// session's own position history (and, for Crazyhouse, pocket state) and
// are computed by the variant engines' common preamble instead (spec.md
// §4.E point 9-10), not by the Position Library.
func Terminal(fen string) (model.TerminalStatus, error) {
	g, err := newGameFromFEN(fen)
	if err != nil {
		return model.TerminalStatus{}, err
	}
	pos := g.Position()
	status := model.TerminalStatus{Check: pos.InCheck()}
	switch g.Method() {
	case chess.Checkmate:
		status.Checkmate = true
	case chess.Stalemate:
		status.Stalemate = true
	case chess.InsufficientMaterial:
		status.InsufficientMaterial = true
	}
	return status, nil
}

// LegalMoves enumerates the board moves available to the side to move in
// fen (drops are enumerated separately by the Crazyhouse engines, which
// know the mover's pocket contents).
func LegalMoves(fen string) ([]LegalMove, error) {
	g, err := newGameFromFEN(fen)
	if err != nil {
		return nil, err
	}
	pos := g.Position()
	valid := g.ValidMoves()
	out := make([]LegalMove, 0, len(valid))
	for _, mv := range valid {
		uci := chess.UCINotation{}.Encode(pos, mv)
		lm, err := decodeUCI(uci)
		if err != nil {
			continue
		}
		out = append(out, lm)
	}
	return out, nil
}

func decodeUCI(uci string) (LegalMove, error) {
	if len(uci) < 4 {
		return LegalMove{}, fmt.Errorf("position: malformed uci %q", uci)
	}
	lm := LegalMove{From: uci[0:2], To: uci[2:4]}
	if len(uci) == 5 {
		lm.Promotion = model.PieceType(uci[4:5])
	}
	return lm, nil
}

// EmptySquares enumerates algebraic squares with no piece on them, used to
// build the Crazyhouse drop candidate set.
func EmptySquares(fen string) ([]string, error) {
	f, err := parseFENFields(fen)
	if err != nil {
		return nil, err
	}
	grid, err := parsePlacement(f.placement)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, 64)
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if grid[r][c] == '.' {
				out = append(out, gridToSquare(r, c))
			}
		}
	}
	return out, nil
}

// PieceAt returns the piece type and color occupying sq in fen, or
// ok=false if the square is empty. Used by the Decay engine to identify
// which piece is moving without re-deriving it from SAN.
func PieceAt(fen, sq string) (pieceType model.PieceType, color model.Color, ok bool, err error) {
	f, err := parseFENFields(fen)
	if err != nil {
		return "", "", false, err
	}
	grid, err := parsePlacement(f.placement)
	if err != nil {
		return "", "", false, err
	}
	row, col, err := squareToGrid(sq)
	if err != nil {
		return "", "", false, err
	}
	letter := grid[row][col]
	if letter == '.' {
		return "", "", false, nil
	}
	t := letterToPieceType(letter)
	c := model.White
	if letter >= 'a' && letter <= 'z' {
		c = model.Black
	}
	return t, c, true, nil
}

// ApplyMove validates and applies a standard board move (spec.md §4.L
// "apply-move"). promotion may be empty for non-promoting moves.
func ApplyMove(fen, from, to string, promotion model.PieceType) (Applied, error) {
	g, err := newGameFromFEN(fen)
	if err != nil {
		return Applied{}, err
	}
	pos := g.Position()

	captured := model.PieceType("")
	if toRow, toCol, err := squareToGrid(to); err == nil {
		b, ferr := parsePlacement(fenOf(pos).placement)
		if ferr == nil && b[toRow][toCol] != '.' {
			captured = letterToPieceType(b[toRow][toCol])
		}
	}

	uci := from + to
	if promotion != "" {
		uci += string(promotion)
	}

	mv, err := chess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return Applied{}, &ErrIllegalMove{Reason: err.Error()}
	}

	san := chess.AlgebraicNotation{}.Encode(pos, mv)

	if err := g.Move(mv); err != nil {
		return Applied{}, &ErrIllegalMove{Reason: err.Error()}
	}

	return Applied{
		FEN:       g.Position().String(),
		SAN:       san,
		Captured:  captured,
		IsCapture: captured != "",
	}, nil
}

// fenOf re-derives a fenFields view from a *chess.Position's FEN string.
// Ignoring the error here is safe: pos.String() always emits well-formed
// FEN because it was itself built from a validated position.
func fenOf(pos *chess.Position) fenFields {
	f, _ := parseFENFields(pos.String())
	return f
}

// PassTurn flips the side-to-move field of fen without moving any piece,
// used by 6PT's timeout-penalty handling (spec.md §4.E.4: "update the
// FEN's side-to-move field to reflect the turn pass").
func PassTurn(fen string) (string, error) {
	f, err := parseFENFields(fen)
	if err != nil {
		return "", err
	}
	f.active = oppositeFENColor(f.active)
	f.enPassant = "-"
	f.halfmove++
	if f.active == "w" {
		f.fullmove++
	}
	return f.String(), nil
}

func letterToPieceType(letter byte) model.PieceType {
	switch letter {
	case 'p', 'P':
		return model.Pawn
	case 'r', 'R':
		return model.Rook
	case 'n', 'N':
		return model.Knight
	case 'b', 'B':
		return model.Bishop
	case 'q', 'Q':
		return model.Queen
	case 'k', 'K':
		return model.King
	default:
		return ""
	}
}
