package model

import (
	"encoding/json"
	"testing"
)

func TestSessionRoundTripSerialization(t *testing.T) {
	s := &Session{
		ID:          "sess-1",
		Variant:     VariantCrazyhouse,
		Subvariant:  SubvariantCzWithTimer,
		Status:      StatusActive,
		FEN:         "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		ActiveColor: White,
		Clocks:      ClocksByColor{White: 180000, Black: 180000},
		TimeControl: TimeControl{BaseTimeMs: 180000, IncrementMs: 2000},
		RepetitionMap: map[string]int{
			"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1|": 1,
		},
		Crazyhouse: &CrazyhouseState{
			PocketedPieces: PocketsByColor{
				White: Pocket{{ID: "p1", Type: Knight, CapturedAt: 100, TimerPaused: true, RemainingTime: 4500}},
			},
			DropTimers: &DropTimers{White: map[string]int64{}, Black: map[string]int64{}},
			FrozenPieces: &FrozenPiecesByColor{
				White: []PocketPiece{{ID: "p0", Type: Bishop}},
			},
		},
	}

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Session
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out.ID != s.ID || out.FEN != s.FEN || out.ActiveColor != s.ActiveColor {
		t.Fatalf("round trip mismatch on scalar fields: %+v", out)
	}
	if len(out.Crazyhouse.PocketedPieces.White) != 1 ||
		out.Crazyhouse.PocketedPieces.White[0].RemainingTime != 4500 {
		t.Fatalf("round trip mismatch on pocket state: %+v", out.Crazyhouse.PocketedPieces)
	}
	if len(out.Crazyhouse.FrozenPieces.White) != 1 {
		t.Fatalf("round trip mismatch on frozen pieces: %+v", out.Crazyhouse.FrozenPieces)
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := &Session{
		ID:            "sess-1",
		RepetitionMap: map[string]int{"a": 1},
		Decay: &DecayState{
			FrozenPieces: FrozenSquaresByColor{White: []string{"h5"}},
		},
	}

	clone := s.Clone()
	clone.RepetitionMap["a"] = 2
	clone.Decay.FrozenPieces.White[0] = "c3"

	if s.RepetitionMap["a"] != 1 {
		t.Errorf("expected original repetition map untouched, got %v", s.RepetitionMap)
	}
	if s.Decay.FrozenPieces.White[0] != "h5" {
		t.Errorf("expected original frozen squares untouched, got %v", s.Decay.FrozenPieces.White)
	}
}

func TestColorOpposite(t *testing.T) {
	if White.Opposite() != Black {
		t.Error("expected White.Opposite() == Black")
	}
	if Black.Opposite() != White {
		t.Error("expected Black.Opposite() == White")
	}
}
