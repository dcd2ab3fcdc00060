package variant

import (
	"chessvariants-server/internal/model"
	"chessvariants-server/internal/position"
)

// CrazyhouseStandardTimeControl per spec.md §4.E.2: base 180000, increment 2000.
var CrazyhouseStandardTimeControl = model.TimeControl{BaseTimeMs: 180_000, IncrementMs: 2_000}

// CrazyhouseStandardEngine implements spec.md §4.E.2: captures go to the
// capturer's pocket (multiset semantics — spec.md §9 Open Question (a)),
// droppable on any empty square on a later turn.
type CrazyhouseStandardEngine struct{}

func (CrazyhouseStandardEngine) ValidateAndApply(state *model.Session, action model.Action, playerColor model.Color, nowMs int64) model.Outcome {
	pre, errOut := runPreamble(state, playerColor, nowMs)
	if errOut != nil {
		return model.Rejected(errOut.Code, errOut.Message)
	}
	s := pre.state
	if s.Crazyhouse == nil {
		s.Crazyhouse = &model.CrazyhouseState{}
	}

	if pre.mainClockHit {
		s.Status = model.StatusFinished
		s.Result = &model.Result{Result: model.ResultTimeout, Winner: playerColor.Opposite(), EndedAt: nowMs}
		return model.Applied(s, nil, true)
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
			s.Crazyhouse.PocketedPieces.Set(playerColor, append(
				s.Crazyhouse.PocketedPieces.Get(playerColor),
				model.PocketPiece{ID: generatePocketPieceID(s, nowMs), Type: pocketType, CapturedAt: nowMs},
			))
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
		idx := pocket.IndexOfType(action.DropPiece)
		if idx < 0 {
			return model.Rejected(model.CodePieceNotInPocket, "piece not available in pocket")
		}
		applied, err := position.ApplyDrop(s.FEN, playerColor, action.DropPiece, action.DropTo)
		if err != nil {
			return model.Rejected(classifyDropError(err), err.Error())
		}
		s.Crazyhouse.PocketedPieces.Set(playerColor, pocket.RemoveAt(idx))

		move = model.MoveRecord{
			Kind: model.MoveKindDrop, Color: playerColor,
			To: action.DropTo, Piece: action.DropPiece,
			SAN: applied.SAN, FEN: applied.FEN, Timestamp: nowMs,
		}
		s.FEN = applied.FEN

	default:
		return model.Rejected(model.CodeInvalidInput, "crazyhouse standard accepts move or drop actions")
	}

	s.ActiveColor = playerColor.Opposite()
	s.LastMoveTimestamp = nowMs
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

func (CrazyhouseStandardEngine) LegalActions(state *model.Session, playerColor model.Color, nowMs int64) []model.Action {
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
	seen := map[model.PieceType]bool{}
	for _, piece := range state.Crazyhouse.PocketedPieces.Get(playerColor) {
		if seen[piece.Type] {
			continue
		}
		seen[piece.Type] = true
		empty, err := position.EmptySquares(state.FEN)
		if err != nil {
			continue
		}
		for _, sq := range empty {
			out = append(out, model.NewDropAction(piece.Type, sq, nowMs))
		}
	}
	return out
}

func classifyDropError(err error) model.Code {
	drop, ok := err.(*position.ErrIllegalDrop)
	if !ok {
		return model.CodeChessEngineError
	}
	switch drop.Reason {
	case "pawn drop on back rank":
		return model.CodeInvalidPawnDrop
	case "target square occupied":
		return model.CodeSquareOccupied
	case "drop leaves mover in check":
		return model.CodeSelfCheck
	case "not mover's turn":
		return model.CodeInvalidMove
	case "cannot drop a king":
		return model.CodeInvalidInput
	default:
		return model.CodeInvalidInput
	}
}
