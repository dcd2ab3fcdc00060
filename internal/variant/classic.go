package variant

import (
	"chessvariants-server/internal/model"
	"chessvariants-server/internal/position"
)

// Classic time controls, per spec.md §4.E.1.
var ClassicTimeControls = map[model.Subvariant]model.TimeControl{
	model.SubvariantBullet:   {BaseTimeMs: 60_000, IncrementMs: 0},
	model.SubvariantBlitz:    {BaseTimeMs: 180_000, IncrementMs: 2_000},
	model.SubvariantStandard: {BaseTimeMs: 600_000, IncrementMs: 0},
}

// ClassicEngine implements standard FIDE rules with three time controls
// (spec.md §4.E.1). Action = Move only.
type ClassicEngine struct{}

func (ClassicEngine) ValidateAndApply(state *model.Session, action model.Action, playerColor model.Color, nowMs int64) model.Outcome {
	if action.Kind != model.ActionMove {
		return model.Rejected(model.CodeInvalidInput, "classic accepts only move actions")
	}

	pre, errOut := runPreamble(state, playerColor, nowMs)
	if errOut != nil {
		return model.Rejected(errOut.Code, errOut.Message)
	}
	s := pre.state

	if pre.mainClockHit {
		s.Status = model.StatusFinished
		s.Result = &model.Result{Result: model.ResultTimeout, Winner: playerColor.Opposite(), EndedAt: nowMs}
		return model.Applied(s, nil, true)
	}

	applied, err := position.ApplyMove(s.FEN, action.From, action.To, action.Promotion)
	if err != nil {
		return model.Rejected(classifyMoveError(err), err.Error())
	}

	if applied.IsCapture {
		s.CapturedPieces.Append(playerColor, applied.Captured)
	}

	move := model.MoveRecord{
		Kind: model.MoveKindStandard, Color: playerColor,
		From: action.From, To: action.To, Promotion: action.Promotion,
		Captured: applied.Captured, SAN: applied.SAN, FEN: applied.FEN, Timestamp: nowMs,
	}

	s.FEN = applied.FEN
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

func (ClassicEngine) LegalActions(state *model.Session, playerColor model.Color, nowMs int64) []model.Action {
	if state.ActiveColor != playerColor || state.Status == model.StatusFinished {
		return nil
	}
	moves, err := position.LegalMoves(state.FEN)
	if err != nil {
		return nil
	}
	out := make([]model.Action, 0, len(moves))
	for _, m := range moves {
		out = append(out, model.NewMoveAction(m.From, m.To, m.Promotion, nowMs))
	}
	return out
}

func classifyMoveError(err error) model.Code {
	switch err.(type) {
	case *position.ErrIllegalMove:
		return model.CodeIllegalMove
	default:
		return model.CodeChessEngineError
	}
}
