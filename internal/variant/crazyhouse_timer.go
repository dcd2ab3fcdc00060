package variant

import (
	"chessvariants-server/internal/model"
	"chessvariants-server/internal/position"
)

// CrazyhouseTimerTimeControl mirrors CrazyhouseStandardTimeControl; the
// drop-timer machinery is additive on top of the same base clock (spec.md
// §4.E.3 names no separate base/increment, so it inherits §4.E.2's).
var CrazyhouseTimerTimeControl = CrazyhouseStandardTimeControl

const dropTimerBudgetMs = 10_000

// CrazyhouseTimerEngine implements spec.md §4.E.3: Crazyhouse Standard plus
// a per-piece drop timer. The pocket is a strictly ordered sequence; only
// the head is droppable, and only the head of the player on move ticks.
type CrazyhouseTimerEngine struct{}

func (CrazyhouseTimerEngine) ValidateAndApply(state *model.Session, action model.Action, playerColor model.Color, nowMs int64) model.Outcome {
	pre, errOut := runPreamble(state, playerColor, nowMs)
	if errOut != nil {
		return model.Rejected(errOut.Code, errOut.Message)
	}
	s := pre.state
	if s.Crazyhouse == nil {
		s.Crazyhouse = &model.CrazyhouseState{}
	}
	if s.Crazyhouse.DropTimers == nil {
		s.Crazyhouse.DropTimers = &model.DropTimers{White: map[string]int64{}, Black: map[string]int64{}}
	}
	if s.Crazyhouse.FrozenPieces == nil {
		s.Crazyhouse.FrozenPieces = &model.FrozenPiecesByColor{}
	}

	if pre.mainClockHit {
		s.Status = model.StatusFinished
		s.Result = &model.Result{Result: model.ResultTimeout, Winner: playerColor.Opposite(), EndedAt: nowMs}
		return model.Applied(s, nil, true)
	}

	// Step 4: age the mover's head before evaluating the action — an
	// expired head must be evicted and frozen regardless of what the
	// mover is attempting (spec.md §4.E.3 point 4).
	expiredHead, wasEvicted := ageDropTimers(s, playerColor, nowMs)

	if action.Kind == model.ActionDrop && wasEvicted && expiredHead.Type == action.DropPiece {
		// Step 5: the mover targeted exactly the head that just expired.
		// Non-fatal: state is mutated (already evicted above) but the
		// mover's turn is preserved.
		s.TurnStartTimestamp = nowMs
		return model.Warning(model.CodeDropExpired, "the targeted pocket piece's drop timer expired", s)
	}

	origins := rebuildPromotedOrigin(s)

	var move model.MoveRecord
	switch action.Kind {
	case model.ActionMove:
		applied, err := position.ApplyMove(s.FEN, action.From, action.To, action.Promotion)
		if err != nil {
			return model.Rejected(classifyMoveError(err), err.Error())
		}
		if applied.IsCapture {
			pocketType := pocketCaptureType(origins, action.To, applied.Captured)
			pushCapturedPiece(s, playerColor, pocketType, nowMs)
			s.CapturedPieces.Append(playerColor, applied.Captured)
		}
		applyPromotionTracking(origins, action.From, action.To, action.Promotion)

		move = model.MoveRecord{
			Kind: model.MoveKindStandard, Color: playerColor,
			From: action.From, To: action.To, Promotion: action.Promotion,
			Captured: applied.Captured, SAN: applied.SAN, FEN: applied.FEN, Timestamp: nowMs,
		}
		s.FEN = applied.FEN

	case model.ActionDrop:
		pocket := s.Crazyhouse.PocketedPieces.Get(playerColor)
		if len(pocket) == 0 {
			return model.Rejected(model.CodePieceNotInPocket, "pocket is empty")
		}
		head := pocket[0]
		if head.Type != action.DropPiece {
			return model.Rejected(model.CodeSequentialDropOnly, "only the head of the pocket may be dropped")
		}
		if head.Type != model.Pawn {
			if _, active := s.Crazyhouse.DropTimers.Get(playerColor)[head.ID]; !active {
				return model.Rejected(model.CodePieceNotAvailable, "head piece has no active drop timer")
			}
		}
		applied, err := position.ApplyDrop(s.FEN, playerColor, action.DropPiece, action.DropTo)
		if err != nil {
			return model.Rejected(classifyDropError(err), err.Error())
		}
		s.Crazyhouse.PocketedPieces.Set(playerColor, pocket.RemoveAt(0))
		delete(s.Crazyhouse.DropTimers.Get(playerColor), head.ID)

		move = model.MoveRecord{
			Kind: model.MoveKindDrop, Color: playerColor,
			To: action.DropTo, Piece: action.DropPiece,
			SAN: applied.SAN, FEN: applied.FEN, Timestamp: nowMs,
		}
		s.FEN = applied.FEN

	default:
		return model.Rejected(model.CodeInvalidInput, "crazyhouse withTimer accepts move or drop actions")
	}

	s.ActiveColor = playerColor.Opposite()
	s.LastMoveTimestamp = nowMs
	applyTurnChangePocketTimers(s, nowMs, playerColor, playerColor.Opposite())
	if !pre.firstMove {
		creditIncrementAndAdvanceTurn(s, playerColor, nowMs)
	} else {
		s.TurnStartTimestamp = nowMs
	}
	recordMove(s, move)

	result, tErr := evaluateTerminal(s, nowMs)
	if tErr != nil {
		return model.Rejected(model.CodeInternalError, tErr.Error())
	}
	terminal := finalizeIfTerminal(s, result)

	return model.Applied(s, &move, terminal)
}

func (e CrazyhouseTimerEngine) LegalActions(state *model.Session, playerColor model.Color, nowMs int64) []model.Action {
	if state.ActiveColor != playerColor || state.Status == model.StatusFinished {
		return nil
	}
	out := []model.Action{}
	moves, err := position.LegalMoves(state.FEN)
	if err == nil {
		for _, m := range moves {
			out = append(out, model.NewMoveAction(m.From, m.To, m.Promotion, nowMs))
		}
	}
	if state.Crazyhouse == nil {
		return out
	}
	pocket := state.Crazyhouse.PocketedPieces.Get(playerColor)
	if len(pocket) == 0 {
		return out
	}
	head := pocket[0]
	if head.Type != model.Pawn && state.Crazyhouse.DropTimers != nil {
		if _, active := state.Crazyhouse.DropTimers.Get(playerColor)[head.ID]; !active {
			return out
		}
	}
	empty, err := position.EmptySquares(state.FEN)
	if err != nil {
		return out
	}
	for _, sq := range empty {
		out = append(out, model.NewDropAction(head.Type, sq, nowMs))
	}
	return out
}

// pushCapturedPiece implements spec.md §4.E.3 point 1: capture pushes a
// freshly-identified piece to the tail of the capturer's pocket. Pawn
// captures never activate a timer. A non-pawn capture that becomes the
// head is not armed here: applyTurnChangePocketTimers, run right after as
// the capturing color's turn ends, stores it paused with a full 10s
// budget, and it starts ticking on the capturer's next turn.
func pushCapturedPiece(s *model.Session, capturer model.Color, pieceType model.PieceType, nowMs int64) {
	piece := model.PocketPiece{ID: generatePocketPieceID(s, nowMs), Type: pieceType, CapturedAt: nowMs}
	s.Crazyhouse.PocketedPieces.Set(capturer, append(s.Crazyhouse.PocketedPieces.Get(capturer), piece))
}

// ageDropTimers implements spec.md §4.E.3 point 4: if, during the on-move
// player's turn, the head's expiration is at or before nowMs, the head is
// removed from the pocket and frozen, and the next piece (if any,
// non-pawn) immediately receives a full fresh timer.
func ageDropTimers(s *model.Session, mover model.Color, nowMs int64) (evicted model.PocketPiece, didEvict bool) {
	cz := s.Crazyhouse
	pocket := cz.PocketedPieces.Get(mover)
	if len(pocket) == 0 {
		return model.PocketPiece{}, false
	}
	head := pocket[0]
	if head.Type == model.Pawn {
		return model.PocketPiece{}, false
	}
	expiration, active := cz.DropTimers.Get(mover)[head.ID]
	if !active || expiration > nowMs {
		return model.PocketPiece{}, false
	}

	delete(cz.DropTimers.Get(mover), head.ID)
	cz.FrozenPieces.Append(mover, head)
	pocket = pocket.RemoveAt(0)
	cz.PocketedPieces.Set(mover, pocket)

	if len(pocket) > 0 && pocket[0].Type != model.Pawn {
		newHead := pocket[0]
		newHead.TimerPaused = false
		newHead.RemainingTime = 0
		pocket[0] = newHead
		cz.PocketedPieces.Set(mover, pocket)
		cz.DropTimers.Get(mover)[newHead.ID] = nowMs + dropTimerBudgetMs
	}

	return head, true
}

// applyTurnChangePocketTimers implements spec.md §4.E.3 point 3: pause the
// color losing the turn's head (storing remainingTime), and activate the
// color gaining the turn's head (a fresh 10s budget, or its own stored
// remainingTime if it was previously paused).
func applyTurnChangePocketTimers(s *model.Session, nowMs int64, from, to model.Color) {
	cz := s.Crazyhouse

	fromPocket := cz.PocketedPieces.Get(from)
	if len(fromPocket) > 0 && fromPocket[0].Type != model.Pawn {
		head := fromPocket[0]
		var remaining int64
		if expiration, ok := cz.DropTimers.Get(from)[head.ID]; ok {
			remaining = expiration - nowMs
			if remaining < 0 {
				remaining = 0
			}
		} else {
			remaining = dropTimerBudgetMs
		}
		head.TimerPaused = true
		head.RemainingTime = remaining
		fromPocket[0] = head
		cz.PocketedPieces.Set(from, fromPocket)
		delete(cz.DropTimers.Get(from), head.ID)
	}

	toPocket := cz.PocketedPieces.Get(to)
	if len(toPocket) > 0 && toPocket[0].Type != model.Pawn {
		head := toPocket[0]
		budget := int64(dropTimerBudgetMs)
		if head.TimerPaused {
			budget = head.RemainingTime
		}
		head.TimerPaused = false
		head.RemainingTime = 0
		toPocket[0] = head
		cz.PocketedPieces.Set(to, toPocket)
		cz.DropTimers.Get(to)[head.ID] = nowMs + budget
	}
}
