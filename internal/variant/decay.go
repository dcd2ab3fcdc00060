package variant

import (
	"chessvariants-server/internal/model"
	"chessvariants-server/internal/position"
)

// DecayTimeControls mirrors classic's three controls; Decay layers its
// piece-freezing mechanic on top without changing the base clock (spec.md
// §4.E.5 names no override).
var DecayTimeControls = ClassicTimeControls

// DecayEngine implements spec.md §4.E.5: a queen decay timer that freezes
// the queen in place once exhausted, followed by one eligible major piece
// (rook/knight/bishop) decaying the same way once the queen is frozen.
// Action = Move only.
type DecayEngine struct{}

func (DecayEngine) ValidateAndApply(state *model.Session, action model.Action, playerColor model.Color, nowMs int64) model.Outcome {
	if action.Kind != model.ActionMove {
		return model.Rejected(model.CodeInvalidInput, "decay accepts only move actions")
	}

	pre, errOut := runPreamble(state, playerColor, nowMs)
	if errOut != nil {
		return model.Rejected(errOut.Code, errOut.Message)
	}
	s := pre.state
	if s.Decay == nil {
		s.Decay = &model.DecayState{}
	}

	if pre.mainClockHit {
		s.Status = model.StatusFinished
		s.Result = &model.Result{Result: model.ResultTimeout, Winner: playerColor.Opposite(), EndedAt: nowMs}
		return model.Applied(s, nil, true)
	}

	// Age the mover's own decay timers by the thinking time just spent,
	// freezing whichever reaches zero (spec.md §4.E.5 "Aging"). s.TurnStartTimestamp
	// still holds the turn-start value here; runPreamble only advances it on
	// the very first move, when no decay timer can yet be active.
	ageDecayTimers(s, playerColor, nowMs-s.TurnStartTimestamp)

	if s.Decay.FrozenPieces.Contains(playerColor, action.From) {
		return model.Rejected(model.CodePieceFrozen, "this piece is frozen by decay and cannot move")
	}

	movingType, _, ok, err := position.PieceAt(s.FEN, action.From)
	if err != nil {
		return model.Rejected(model.CodeInternalError, err.Error())
	}
	if !ok {
		return model.Rejected(model.CodeInvalidMove, "no piece on the origin square")
	}

	applied, err := position.ApplyMove(s.FEN, action.From, action.To, action.Promotion)
	if err != nil {
		return model.Rejected(classifyMoveError(err), err.Error())
	}

	if applied.IsCapture {
		s.CapturedPieces.Append(playerColor, applied.Captured)
		opponent := playerColor.Opposite()
		s.Decay.FrozenPieces.Remove(opponent, action.To)
		clearDecayTrackIfVacated(&s.Decay.QueenDecayTimers, opponent, action.To)
		clearDecayTrackIfVacated(&s.Decay.MajorPieceDecayTimers, opponent, action.To)
	}

	switch {
	case movingType == model.Queen:
		armOrRefreshDecayTimer(&s.Decay.QueenDecayTimers, playerColor, action.From, action.To, model.Queen,
			model.QueenDecayDurationMs, model.QueenDecayRefillMs)
		s.Decay.DecayActive = true
	case movingType.IsMajor():
		queenFrozen := s.Decay.QueenDecayTimers.Get(playerColor).Frozen
		armOrRefreshDecayTimer(&s.Decay.MajorPieceDecayTimers, playerColor, action.From, action.To, movingType,
			model.MajorDecayDurationMs, model.MajorDecayRefillMs, withArmGate(queenFrozen))
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

func (DecayEngine) LegalActions(state *model.Session, playerColor model.Color, nowMs int64) []model.Action {
	if state.ActiveColor != playerColor || state.Status == model.StatusFinished {
		return nil
	}
	moves, err := position.LegalMoves(state.FEN)
	if err != nil {
		return nil
	}
	out := make([]model.Action, 0, len(moves))
	for _, m := range moves {
		if state.Decay != nil && state.Decay.FrozenPieces.Contains(playerColor, m.From) {
			continue
		}
		out = append(out, model.NewMoveAction(m.From, m.To, m.Promotion, nowMs))
	}
	return out
}

// ageDecayTimers subtracts the elapsed on-move time from the mover's own
// active, unfrozen decay timers, freezing and recording the square in
// frozenPieces for any that reach zero (spec.md §4.E.5 "Aging" /
// "Freezing").
func ageDecayTimers(s *model.Session, mover model.Color, elapsed int64) {
	if elapsed < 0 {
		elapsed = 0
	}
	ageOne := func(timers *model.DecayTimersByColor) {
		t := timers.Get(mover)
		if !t.Active || t.Frozen {
			return
		}
		t.TimeRemaining -= elapsed
		if t.TimeRemaining <= 0 {
			t.TimeRemaining = 0
			t.Frozen = true
			t.Active = false
			s.Decay.FrozenPieces.Set(mover, append(s.Decay.FrozenPieces.Get(mover), t.Square))
		}
		timers.Set(mover, t)
	}
	ageOne(&s.Decay.QueenDecayTimers)
	ageOne(&s.Decay.MajorPieceDecayTimers)
}

type armOption func(armNewAllowed bool) bool

// withArmGate gates whether a brand-new (not-yet-active) timer is allowed
// to arm; refreshing an already-active timer is always allowed regardless
// of the gate.
func withArmGate(allowed bool) armOption {
	return func(bool) bool { return allowed }
}

// armOrRefreshDecayTimer implements spec.md §4.E.5's arm/refresh rule: the
// first eligible move arms a fresh timer at the square the piece lands on;
// a later move by the SAME tracked piece (identified by its timer's
// last-known square matching this move's origin) refreshes it by the
// refill amount, capped at duration; a move by any OTHER piece of the same
// family while one is already tracked is ignored, per spec.md §4.E.5
// ("not re-armed or cancelled by a different piece moving").
func armOrRefreshDecayTimer(timers *model.DecayTimersByColor, c model.Color, from, to string, pieceType model.PieceType, duration, refill int64, opts ...armOption) {
	t := timers.Get(c)
	switch {
	case !t.Active:
		for _, opt := range opts {
			if !opt(true) {
				return
			}
		}
		timers.Set(c, model.DecayTimer{Active: true, TimeRemaining: duration, MoveCount: 1, Square: to, PieceType: pieceType})
	case t.Square == from && !t.Frozen:
		t.TimeRemaining += refill
		if t.TimeRemaining > duration {
			t.TimeRemaining = duration
		}
		t.MoveCount++
		t.Square = to
		t.PieceType = pieceType
		timers.Set(c, t)
	default:
		// A different piece of the same family moved; the tracked timer is
		// untouched (spec.md §4.E.5).
	}
}

// clearDecayTrackIfVacated drops a color's decay tracking when the tracked
// square is captured out from under it, whether or not it had already
// frozen (spec.md §4.E.5 "cleared if the tracked piece vanishes from its
// square").
func clearDecayTrackIfVacated(timers *model.DecayTimersByColor, c model.Color, vacatedSquare string) {
	t := timers.Get(c)
	if t.Active && t.Square == vacatedSquare {
		timers.Set(c, model.DecayTimer{})
	}
}
