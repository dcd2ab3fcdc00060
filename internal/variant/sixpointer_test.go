package variant

import (
	"testing"

	"chessvariants-server/internal/model"
)

func newSixPointerSession(fen string) *model.Session {
	s := newSession(fen, SixPointerTimeControl)
	s.Clocks = model.ClocksByColor{White: model.SixPointerPerMoveMs, Black: model.SixPointerPerMoveMs}
	s.SixPointer = &model.SixPointerState{MaxMoves: model.SixPointerMaxMoves}
	return s
}

func TestSixPointerCaptureAddsPoints(t *testing.T) {
	fen := "4k3/8/8/3p4/4P3/8/8/4K3 w - - 0 1"
	s := newSixPointerSession(fen)
	out := SixPointerEngine{}.ValidateAndApply(s, model.NewMoveAction("e4", "d5", "", 1000), model.White, 1000)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("capture rejected: %+v", out)
	}
	if out.NewState.SixPointer.Points.White != model.Pawn.PointValue() {
		t.Errorf("expected %d points for a pawn capture, got %d", model.Pawn.PointValue(), out.NewState.SixPointer.Points.White)
	}
	if out.NewState.SixPointer.MovesPlayed.White != 1 {
		t.Errorf("expected movesPlayed incremented, got %d", out.NewState.SixPointer.MovesPlayed.White)
	}
}

func TestSixPointerRejectsMoveAtCap(t *testing.T) {
	s := newSixPointerSession(startFEN)
	s.SixPointer.MovesPlayed.White = model.SixPointerMaxMoves
	out := SixPointerEngine{}.ValidateAndApply(s, model.NewMoveAction("e2", "e4", "", 1000), model.White, 1000)
	if out.Kind != model.OutcomeRejected || out.Code != model.CodeMoveLimitExceeded {
		t.Fatalf("expected MOVE_LIMIT_EXCEEDED, got %+v", out)
	}
}

func TestSixPointerTimeoutPenaltyRequiresElapsedClock(t *testing.T) {
	s := newSixPointerSession(startFEN)
	s.GameStarted = true
	s.TurnStartTimestamp = 0
	out := SixPointerEngine{}.ValidateAndApply(s, model.NewTimeoutPenaltyAction(10_000), model.White, 10_000)
	if out.Kind != model.OutcomeRejected {
		t.Fatalf("expected rejection before the per-move clock expires, got %+v", out)
	}
}

func TestSixPointerTimeoutPenaltyAppliesAndPassesTurn(t *testing.T) {
	s := newSixPointerSession(startFEN)
	s.GameStarted = true
	s.TurnStartTimestamp = 0
	s.SixPointer.Points.White = 3

	out := SixPointerEngine{}.ValidateAndApply(s, model.NewTimeoutPenaltyAction(model.SixPointerPerMoveMs), model.White, model.SixPointerPerMoveMs)
	if out.Kind != model.OutcomeWarning || out.Code != model.CodeTimeoutPenalty {
		t.Fatalf("expected TIMEOUT_PENALTY warning, got %+v", out)
	}
	if out.NewState.SixPointer.Points.White != 2 {
		t.Errorf("expected point deducted to 2, got %d", out.NewState.SixPointer.Points.White)
	}
	if out.NewState.ActiveColor != model.Black {
		t.Errorf("expected turn passed to black, got %v", out.NewState.ActiveColor)
	}
}

func TestSixPointerTimeoutPenaltyDebounced(t *testing.T) {
	s := newSixPointerSession(startFEN)
	s.GameStarted = true
	s.TurnStartTimestamp = 0
	s.SixPointer.LastTimeoutPenaltyAt.White = model.SixPointerPerMoveMs

	out := SixPointerEngine{}.ValidateAndApply(s, model.NewTimeoutPenaltyAction(model.SixPointerPerMoveMs+1000), model.White, model.SixPointerPerMoveMs+1000)
	if out.Kind != model.OutcomeRejected {
		t.Fatalf("expected duplicate penalty within 5s to be rejected, got %+v", out)
	}
}

func TestSixPointerPointsDecideOutcomeAtCap(t *testing.T) {
	s := newSixPointerSession(startFEN)
	s.SixPointer.MovesPlayed = model.IntByColor{White: model.SixPointerMaxMoves - 1, Black: model.SixPointerMaxMoves}
	s.SixPointer.Points = model.IntByColor{White: 5, Black: 2}
	out := SixPointerEngine{}.ValidateAndApply(s, model.NewMoveAction("e2", "e4", "", 1000), model.White, 1000)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("move rejected: %+v", out)
	}
	if !out.IsTerminal {
		t.Fatalf("expected the game to end once both colors hit their move cap")
	}
	if out.NewState.Result.Result != model.ResultPoints || out.NewState.Result.Winner != model.White {
		t.Errorf("expected white to win on points, got %+v", out.NewState.Result)
	}
}
