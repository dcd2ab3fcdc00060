package position

import (
	"fmt"

	"chessvariants-server/internal/model"
)

// ApplyDrop places piece on an empty square for mover and toggles side to
// move, per spec.md §4.L ("a put-piece primitive ... used by Crazyhouse
// engines for drops, and reject placement that would leave the mover in
// check") and §4.E.2 ("Side-to-move is toggled manually after a drop — no
// chess library auto-toggle on bare placement").
//
// notnil/chess has no placement primitive (its Move type is strictly
// square-to-square), so the drop is performed by mutating the FEN's
// placement field directly, then re-deriving a fresh game from the
// resulting FEN to run the library's check detector against it.
func ApplyDrop(fen string, mover model.Color, piece model.PieceType, to string) (Applied, error) {
	f, err := parseFENFields(fen)
	if err != nil {
		return Applied{}, err
	}
	if fenToColor(f.active) != mover {
		return Applied{}, &ErrIllegalDrop{Reason: "not mover's turn"}
	}
	if piece == model.King {
		return Applied{}, &ErrIllegalDrop{Reason: "cannot drop a king"}
	}

	row, col, err := squareToGrid(to)
	if err != nil {
		return Applied{}, &ErrIllegalDrop{Reason: err.Error()}
	}

	if piece == model.Pawn && (to[1] == '1' || to[1] == '8') {
		return Applied{}, &ErrIllegalDrop{Reason: "pawn drop on back rank"}
	}

	grid, err := parsePlacement(f.placement)
	if err != nil {
		return Applied{}, err
	}
	if grid[row][col] != '.' {
		return Applied{}, &ErrIllegalDrop{Reason: "target square occupied"}
	}
	grid[row][col] = pieceLetter(piece, mover)

	// Self-check test: build the position with the mover still to move and
	// confirm the drop does not leave the mover's own king in check.
	probe := fenFields{
		placement: grid.String(),
		active:    f.active,
		castling:  f.castling,
		enPassant: "-",
		halfmove:  f.halfmove,
		fullmove:  f.fullmove,
	}
	inCheck, err := IsCheck(probe.String())
	if err != nil {
		return Applied{}, fmt.Errorf("position: drop self-check probe failed: %w", err)
	}
	if inCheck {
		return Applied{}, &ErrIllegalDrop{Reason: "drop leaves mover in check"}
	}

	final := fenFields{
		placement: grid.String(),
		active:    oppositeFENColor(f.active),
		castling:  f.castling,
		enPassant: "-",
		halfmove:  f.halfmove + 1,
		fullmove:  f.fullmove,
	}
	if piece == model.Pawn {
		final.halfmove = 0
	}
	if mover == model.Black {
		final.fullmove++
	}
	finalFEN := final.String()

	// Validate the reconstructed FEN is well-formed by round-tripping it
	// through the library before handing it back as authoritative state.
	if _, err := newGameFromFEN(finalFEN); err != nil {
		return Applied{}, fmt.Errorf("position: drop produced invalid FEN: %w", err)
	}

	san := dropSAN(piece, to)
	return Applied{FEN: finalFEN, SAN: san}, nil
}

func dropSAN(piece model.PieceType, to string) string {
	if piece == model.Pawn {
		return to + "@"
	}
	letter := pieceLetter(piece, model.White) // SAN piece letters are always uppercase
	return string(letter) + "@" + to
}
