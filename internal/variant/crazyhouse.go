package variant

import (
	"chessvariants-server/internal/model"
)

// PromotedOrigin tracks, per board square, whether the piece currently
// occupying it originated from a pawn promotion — needed because a
// captured promoted piece returns to the capturer's pocket as a plain
// pawn (spec.md §3: "Dropped pawns carry no history (promoted pawns that
// are captured return to the pocket as pawns)", §4.E.2: "promotion origin
// must be tracked on the moved piece"). It is carried as auxiliary
// bookkeeping alongside the session's Crazyhouse sub-state rather than
// inside model.CrazyhouseState, since it is implementation detail of how
// this engine derives pocket contents, not part of the wire-visible state.
type PromotedOrigin map[string]bool

// promotedOriginStore is a tiny per-session side table. Nothing holds one
// at present: the Crazyhouse engines recompute origins from MoveHistory on
// every action (see rebuildPromotedOrigin).
type promotedOriginStore struct {
	origins PromotedOrigin
}

// rebuildPromotedOrigin recomputes promoted-square tracking by replaying
// MoveHistory. Both Crazyhouse engines call it at the start of every
// action, so promotion origin survives process restarts without needing
// its own wire field.
func rebuildPromotedOrigin(s *model.Session) PromotedOrigin {
	origins := PromotedOrigin{}
	for _, mv := range s.MoveHistory {
		if mv.Kind != model.MoveKindStandard {
			continue
		}
		wasPromoted := origins[mv.From]
		delete(origins, mv.From)
		if mv.Promotion != "" {
			origins[mv.To] = true
		} else if wasPromoted {
			origins[mv.To] = true
		} else {
			delete(origins, mv.To)
		}
	}
	return origins
}

// pocketCaptureType resolves what piece type a capture on `to` should add
// to the capturer's pocket: the captured piece's type, unless the captured
// piece is a promoted pawn, in which case it returns to the pocket as a
// pawn.
func pocketCaptureType(origins PromotedOrigin, to string, captured model.PieceType) model.PieceType {
	if origins[to] {
		return model.Pawn
	}
	return captured
}

// applyPromotionTracking updates origins in place for a completed standard
// move, mirroring the transfer-on-move / set-on-promotion / clear-on-plain
// semantics used by rebuildPromotedOrigin.
func applyPromotionTracking(origins PromotedOrigin, from, to string, promotion model.PieceType) {
	wasPromoted := origins[from]
	delete(origins, from)
	switch {
	case promotion != "":
		origins[to] = true
	case wasPromoted:
		origins[to] = true
	default:
		delete(origins, to)
	}
}

func generatePocketPieceID(s *model.Session, capturedAt int64) string {
	n := len(s.MoveHistory)
	return s.ID + "-pp-" + itoa(n) + "-" + itoa(int(capturedAt%100000))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
