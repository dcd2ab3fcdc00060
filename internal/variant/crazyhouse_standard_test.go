package variant

import (
	"testing"

	"chessvariants-server/internal/model"
)

func TestCrazyhouseStandardCaptureThenDrop(t *testing.T) {
	fen := "4k3/8/8/3p4/4P3/8/8/4K3 w - - 0 1"
	s := newSession(fen, CrazyhouseStandardTimeControl)
	eng := CrazyhouseStandardEngine{}

	out := eng.ValidateAndApply(s, model.NewMoveAction("e4", "d5", "", 1000), model.White, 1000)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("capture move rejected: %+v", out)
	}
	s = out.NewState
	pocket := s.Crazyhouse.PocketedPieces.Get(model.White)
	if len(pocket) != 1 || pocket[0].Type != model.Pawn {
		t.Fatalf("expected white pocket to hold one pawn, got %+v", pocket)
	}

	out = eng.ValidateAndApply(s, model.NewMoveAction("e8", "e7", "", 2000), model.Black, 2000)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("black king shuffle rejected: %+v", out)
	}
	s = out.NewState

	out = eng.ValidateAndApply(s, model.NewDropAction(model.Pawn, "d6", 3000), model.White, 3000)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("drop rejected: %+v", out)
	}
	s = out.NewState
	if len(s.Crazyhouse.PocketedPieces.Get(model.White)) != 0 {
		t.Errorf("expected pocket emptied after drop, got %+v", s.Crazyhouse.PocketedPieces.White)
	}
}

func TestCrazyhouseStandardRejectsDropOfUnownedPiece(t *testing.T) {
	s := newSession(startFEN, CrazyhouseStandardTimeControl)
	s.Crazyhouse = &model.CrazyhouseState{}
	out := CrazyhouseStandardEngine{}.ValidateAndApply(s, model.NewDropAction(model.Queen, "e4", 1000), model.White, 1000)
	if out.Kind != model.OutcomeRejected || out.Code != model.CodePieceNotInPocket {
		t.Fatalf("expected PIECE_NOT_IN_POCKET, got %+v", out)
	}
}

func TestCrazyhouseStandardRejectsPawnOnBackRank(t *testing.T) {
	fen := "4k3/8/8/8/8/8/8/4K3 w - - 0 1"
	s := newSession(fen, CrazyhouseStandardTimeControl)
	s.Crazyhouse = &model.CrazyhouseState{
		PocketedPieces: model.PocketsByColor{White: model.Pocket{{ID: "p1", Type: model.Pawn}}},
	}
	out := CrazyhouseStandardEngine{}.ValidateAndApply(s, model.NewDropAction(model.Pawn, "e8", 1000), model.White, 1000)
	if out.Kind != model.OutcomeRejected || out.Code != model.CodeInvalidPawnDrop {
		t.Fatalf("expected INVALID_PAWN_DROP, got %+v", out)
	}
}

func TestCrazyhouseStandardRejectsDropOnOccupiedSquare(t *testing.T) {
	fen := "4k3/8/8/8/4P3/8/8/4K3 w - - 0 1"
	s := newSession(fen, CrazyhouseStandardTimeControl)
	s.Crazyhouse = &model.CrazyhouseState{
		PocketedPieces: model.PocketsByColor{White: model.Pocket{{ID: "n1", Type: model.Knight}}},
	}
	out := CrazyhouseStandardEngine{}.ValidateAndApply(s, model.NewDropAction(model.Knight, "e4", 1000), model.White, 1000)
	if out.Kind != model.OutcomeRejected || out.Code != model.CodeSquareOccupied {
		t.Fatalf("expected SQUARE_OCCUPIED, got %+v", out)
	}
}

func TestCrazyhouseStandardRejectsDropThatLeavesMoverInCheck(t *testing.T) {
	// Black rook on the open e-file checks the white king on e1; dropping
	// off that file does nothing to address the check.
	fen := "4r3/8/8/8/8/8/8/4K3 w - - 0 1"
	s := newSession(fen, CrazyhouseStandardTimeControl)
	s.Crazyhouse = &model.CrazyhouseState{
		PocketedPieces: model.PocketsByColor{White: model.Pocket{{ID: "n1", Type: model.Knight}}},
	}
	out := CrazyhouseStandardEngine{}.ValidateAndApply(s, model.NewDropAction(model.Knight, "d4", 1000), model.White, 1000)
	if out.Kind != model.OutcomeRejected || out.Code != model.CodeSelfCheck {
		t.Fatalf("expected SELF_CHECK, got %+v", out)
	}
}

func TestCrazyhouseStandardLegalActionsDedupesPocketTypes(t *testing.T) {
	fen := "4k3/8/8/8/8/8/8/4K3 w - - 0 1"
	s := newSession(fen, CrazyhouseStandardTimeControl)
	s.Crazyhouse = &model.CrazyhouseState{
		PocketedPieces: model.PocketsByColor{White: model.Pocket{
			{ID: "p1", Type: model.Knight}, {ID: "p2", Type: model.Knight},
		}},
	}
	actions := CrazyhouseStandardEngine{}.LegalActions(s, model.White, 1000)
	drops := 0
	for _, a := range actions {
		if a.Kind == model.ActionDrop {
			drops++
		}
	}
	empty := 62 // 64 squares minus the two kings
	if drops != empty {
		t.Errorf("expected one drop action per empty square for the single pocketed type, got %d", drops)
	}
}
