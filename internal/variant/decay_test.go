package variant

import (
	"testing"

	"chessvariants-server/internal/model"
)

func TestDecayFirstQueenMoveArmsTimer(t *testing.T) {
	fen := "4k3/8/8/8/8/8/3Q4/4K3 w - - 0 1"
	s := newSession(fen, DecayTimeControls[model.SubvariantStandard])
	out := DecayEngine{}.ValidateAndApply(s, model.NewMoveAction("d2", "d5", "", 1000), model.White, 1000)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("queen move rejected: %+v", out)
	}
	qt := out.NewState.Decay.QueenDecayTimers.Get(model.White)
	if !qt.Active || qt.TimeRemaining != model.QueenDecayDurationMs || qt.Square != "d5" {
		t.Fatalf("expected freshly armed queen timer, got %+v", qt)
	}
	if !out.NewState.Decay.DecayActive {
		t.Errorf("expected decayActive set once a queen has moved")
	}
}

func TestDecayRefreshOnSubsequentQueenMove(t *testing.T) {
	fen := "4k3/8/8/8/8/8/3Q4/4K3 w - - 0 1"
	s := newSession(fen, DecayTimeControls[model.SubvariantStandard])
	eng := DecayEngine{}

	out := eng.ValidateAndApply(s, model.NewMoveAction("d2", "d5", "", 1000), model.White, 1000)
	s = out.NewState
	out = eng.ValidateAndApply(s, model.NewMoveAction("e8", "e7", "", 2000), model.Black, 2000)
	s = out.NewState

	qt := s.Decay.QueenDecayTimers.Get(model.White)
	qt.TimeRemaining = 10_000
	s.Decay.QueenDecayTimers.Set(model.White, qt)
	s.TurnStartTimestamp = 3000

	out = eng.ValidateAndApply(s, model.NewMoveAction("d5", "d6", "", 3500), model.White, 3500)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("queen refresh move rejected: %+v", out)
	}
	refreshed := out.NewState.Decay.QueenDecayTimers.Get(model.White)
	if refreshed.TimeRemaining != 10_000-500+model.QueenDecayRefillMs {
		t.Errorf("expected timer aged then refreshed, got %d", refreshed.TimeRemaining)
	}
	if refreshed.Square != "d6" {
		t.Errorf("expected tracked square updated to d6, got %q", refreshed.Square)
	}
}

func TestDecayFreezesOnExpiryAndBlocksMove(t *testing.T) {
	fen := "4k3/8/8/8/8/8/3Q4/4K3 w - - 0 1"
	s := newSession(fen, DecayTimeControls[model.SubvariantStandard])
	s.GameStarted = true
	s.TurnStartTimestamp = 0
	s.Decay = &model.DecayState{
		QueenDecayTimers: model.DecayTimersByColor{
			White: model.DecayTimer{Active: true, TimeRemaining: 1000, Square: "d2", PieceType: model.Queen},
		},
	}

	out := DecayEngine{}.ValidateAndApply(s, model.NewMoveAction("e1", "e2", "", 5000), model.White, 5000)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("king move rejected: %+v", out)
	}
	qt := out.NewState.Decay.QueenDecayTimers.Get(model.White)
	if !qt.Frozen || qt.TimeRemaining != 0 {
		t.Fatalf("expected queen timer frozen at zero, got %+v", qt)
	}
	if qt.Active {
		t.Errorf("expected queen timer inactive once frozen, got %+v", qt)
	}
	if !out.NewState.Decay.FrozenPieces.Contains(model.White, "d2") {
		t.Errorf("expected d2 recorded as a frozen square")
	}

	reply := DecayEngine{}.ValidateAndApply(out.NewState, model.NewMoveAction("e8", "f8", "", 5500), model.Black, 5500)
	if reply.Kind != model.OutcomeApplied {
		t.Fatalf("black reply rejected: %+v", reply)
	}

	out2 := DecayEngine{}.ValidateAndApply(reply.NewState, model.NewMoveAction("d2", "d5", "", 6000), model.White, 6000)
	if out2.Kind != model.OutcomeRejected || out2.Code != model.CodePieceFrozen {
		t.Fatalf("expected PIECE_FROZEN rejection for the frozen queen, got %+v", out2)
	}
}

func TestDecayQueenAndMajorTimersNeverBothActive(t *testing.T) {
	fen := "4k3/8/8/8/8/8/3QR3/4K3 w - - 0 1"
	s := newSession(fen, DecayTimeControls[model.SubvariantStandard])
	s.GameStarted = true
	s.TurnStartTimestamp = 0
	s.Decay = &model.DecayState{
		QueenDecayTimers: model.DecayTimersByColor{
			White: model.DecayTimer{Active: true, TimeRemaining: 1000, Square: "d2", PieceType: model.Queen},
		},
	}

	// The queen's timer expires and freezes on this move, which should
	// gate the rook's timer eligible to arm.
	out := DecayEngine{}.ValidateAndApply(s, model.NewMoveAction("e1", "f1", "", 5000), model.White, 5000)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("king move rejected: %+v", out)
	}
	qt := out.NewState.Decay.QueenDecayTimers.Get(model.White)
	if qt.Active || !qt.Frozen {
		t.Fatalf("expected queen timer frozen and inactive, got %+v", qt)
	}

	reply := DecayEngine{}.ValidateAndApply(out.NewState, model.NewMoveAction("e8", "f8", "", 5500), model.Black, 5500)
	if reply.Kind != model.OutcomeApplied {
		t.Fatalf("black reply rejected: %+v", reply)
	}

	out2 := DecayEngine{}.ValidateAndApply(reply.NewState, model.NewMoveAction("e2", "e4", "", 6000), model.White, 6000)
	if out2.Kind != model.OutcomeApplied {
		t.Fatalf("rook move rejected: %+v", out2)
	}
	mt := out2.NewState.Decay.MajorPieceDecayTimers.Get(model.White)
	if !mt.Active {
		t.Fatalf("expected the rook's decay timer armed once the queen froze, got %+v", mt)
	}
	qt = out2.NewState.Decay.QueenDecayTimers.Get(model.White)
	if qt.Active && mt.Active {
		t.Fatalf("queen and major piece decay timers must never both be active: queen=%+v major=%+v", qt, mt)
	}
}

func TestDecayCaptureUnfreezesOpponentSquare(t *testing.T) {
	fen := "q3k3/8/8/8/8/8/8/R3K3 w - - 0 1"
	s := newSession(fen, DecayTimeControls[model.SubvariantStandard])
	s.Decay = &model.DecayState{
		QueenDecayTimers: model.DecayTimersByColor{
			Black: model.DecayTimer{Active: true, Frozen: true, Square: "a8", PieceType: model.Queen},
		},
		FrozenPieces: model.FrozenSquaresByColor{Black: []string{"a8"}},
	}

	out := DecayEngine{}.ValidateAndApply(s, model.NewMoveAction("a1", "a8", "", 1000), model.White, 1000)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("capture move rejected: %+v", out)
	}
	if out.NewState.Decay.FrozenPieces.Contains(model.Black, "a8") {
		t.Errorf("expected a8 unfrozen after its piece was captured")
	}
}
