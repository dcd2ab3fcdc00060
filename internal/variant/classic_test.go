package variant

import (
	"testing"

	"chessvariants-server/internal/model"
)

func TestClassicFirstMoveDoesNotDeductClock(t *testing.T) {
	s := newSession(startFEN, ClassicTimeControls[model.SubvariantBlitz])
	out := ClassicEngine{}.ValidateAndApply(s, model.NewMoveAction("e2", "e4", "", 50_000), model.White, 50_000)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("expected applied outcome, got %+v", out)
	}
	if out.NewState.Clocks.White != s.TimeControl.BaseTimeMs {
		t.Errorf("expected no deduction on first move, got %d", out.NewState.Clocks.White)
	}
}

func TestClassicRejectsWrongTurn(t *testing.T) {
	s := newSession(startFEN, ClassicTimeControls[model.SubvariantBlitz])
	out := ClassicEngine{}.ValidateAndApply(s, model.NewMoveAction("e7", "e5", "", 0), model.Black, 0)
	if out.Kind != model.OutcomeRejected || out.Code != model.CodeWrongTurn {
		t.Fatalf("expected WRONG_TURN rejection, got %+v", out)
	}
}

func TestClassicRejectsIllegalMove(t *testing.T) {
	s := newSession(startFEN, ClassicTimeControls[model.SubvariantBlitz])
	out := ClassicEngine{}.ValidateAndApply(s, model.NewMoveAction("e2", "e5", "", 0), model.White, 0)
	if out.Kind != model.OutcomeRejected || out.Code != model.CodeIllegalMove {
		t.Fatalf("expected ILLEGAL_MOVE rejection, got %+v", out)
	}
}

func TestClassicMainClockTimeoutEndsGame(t *testing.T) {
	s := newSession(startFEN, ClassicTimeControls[model.SubvariantBullet])
	s.GameStarted = true
	s.TurnStartTimestamp = 0
	s.Clocks.White = 1000

	out := ClassicEngine{}.ValidateAndApply(s, model.NewMoveAction("e2", "e4", "", 2000), model.White, 2000)
	if out.Kind != model.OutcomeApplied || !out.IsTerminal {
		t.Fatalf("expected terminal timeout outcome, got %+v", out)
	}
	if out.NewState.Result.Result != model.ResultTimeout || out.NewState.Result.Winner != model.Black {
		t.Errorf("expected black to win on white's timeout, got %+v", out.NewState.Result)
	}
}

func TestClassicOriginalSessionUntouchedOnReject(t *testing.T) {
	s := newSession(startFEN, ClassicTimeControls[model.SubvariantBlitz])
	originalFEN := s.FEN
	ClassicEngine{}.ValidateAndApply(s, model.NewMoveAction("e2", "e5", "", 0), model.White, 0)
	if s.FEN != originalFEN {
		t.Errorf("rejection must not mutate the caller's session, FEN changed to %q", s.FEN)
	}
}

func TestClassicCheckmateEndsGame(t *testing.T) {
	// Fool's mate sequence: 1.f3 e5 2.g4 Qh4#
	s := newSession(startFEN, ClassicTimeControls[model.SubvariantBlitz])
	var out model.Outcome
	moves := []struct {
		from, to string
		color    model.Color
	}{
		{"f2", "f3", model.White},
		{"e7", "e5", model.Black},
		{"g2", "g4", model.White},
		{"d8", "h4", model.Black},
	}
	now := int64(0)
	for _, m := range moves {
		now += 1000
		out = ClassicEngine{}.ValidateAndApply(s, model.NewMoveAction(m.from, m.to, "", now), m.color, now)
		if out.Kind != model.OutcomeApplied {
			t.Fatalf("move %s%s rejected: %+v", m.from, m.to, out)
		}
		s = out.NewState
	}
	if !out.IsTerminal || s.Result == nil || s.Result.Result != model.ResultCheckmate {
		t.Fatalf("expected checkmate, got status=%+v result=%+v", s.Status, s.Result)
	}
	if s.Result.Winner != model.Black {
		t.Errorf("expected black to win fool's mate, got %v", s.Result.Winner)
	}
}
