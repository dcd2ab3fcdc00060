package clock

import (
	"testing"

	"chessvariants-server/internal/model"
)

func TestProjectMainClocksBeforeGameStarted(t *testing.T) {
	s := &model.Session{
		GameStarted: false,
		Clocks:      model.ClocksByColor{White: 60000, Black: 60000},
		TimeControl: model.TimeControl{BaseTimeMs: 60000},
		ActiveColor: model.White,
	}
	got := ProjectMainClocks(s, 5000)
	if got.White != 60000 || got.Black != 60000 {
		t.Errorf("expected no deduction before game start, got %+v", got)
	}
}

func TestProjectMainClocksDeductsMoverOnly(t *testing.T) {
	s := &model.Session{
		GameStarted:        true,
		Clocks:             model.ClocksByColor{White: 60000, Black: 55000},
		TimeControl:        model.TimeControl{BaseTimeMs: 60000},
		ActiveColor:        model.White,
		TurnStartTimestamp: 1000,
	}
	got := ProjectMainClocks(s, 1000+4000)
	if got.White != 56000 {
		t.Errorf("expected white clock 56000, got %d", got.White)
	}
	if got.Black != 55000 {
		t.Errorf("expected black clock untouched at 55000, got %d", got.Black)
	}
}

func TestProjectMainClocksClampsToZero(t *testing.T) {
	s := &model.Session{
		GameStarted:        true,
		Clocks:             model.ClocksByColor{White: 1000},
		TimeControl:        model.TimeControl{BaseTimeMs: 60000},
		ActiveColor:        model.White,
		TurnStartTimestamp: 0,
	}
	got := ProjectMainClocks(s, 5000)
	if got.White != 0 {
		t.Errorf("expected clamp to 0, got %d", got.White)
	}
}

func TestProjectDropTimersPausedPieceUsesStoredRemaining(t *testing.T) {
	s := &model.Session{
		ActiveColor: model.White,
		Crazyhouse: &model.CrazyhouseState{
			PocketedPieces: model.PocketsByColor{
				Black: model.Pocket{{ID: "p1", Type: model.Knight, TimerPaused: true, RemainingTime: 4321}},
			},
			DropTimers: &model.DropTimers{Black: map[string]int64{}},
		},
	}
	remaining := ProjectDropTimers(s, 999999)
	if remaining["p1"] != 4321 {
		t.Errorf("expected paused remaining time 4321, got %v", remaining)
	}
}

func TestProjectDecayTimersAgesActiveQueenTimer(t *testing.T) {
	s := &model.Session{
		ActiveColor:        model.White,
		TurnStartTimestamp: 0,
		Decay: &model.DecayState{
			QueenDecayTimers: model.DecayTimersByColor{
				White: model.DecayTimer{Active: true, TimeRemaining: 25000},
			},
		},
	}
	queen, _ := ProjectDecayTimers(s, 10000)
	if queen.White != 15000 {
		t.Errorf("expected queen timer aged to 15000, got %d", queen.White)
	}
}
