package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"chessvariants-server/internal/model"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// fakeStore is an in-memory Store backed by a map, guarded by a mutex so
// concurrent Dispatch calls across distinct sessions can be exercised
// without a real Redis/SQLite-backed Session Store.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newFakeStore(sessions ...*model.Session) *fakeStore {
	fs := &fakeStore{sessions: make(map[string]*model.Session)}
	for _, s := range sessions {
		fs.sessions[s.ID] = s
	}
	return fs
}

func (fs *fakeStore) Load(_ context.Context, sessionID string) (*model.Session, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s, ok := fs.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return s, nil
}

func (fs *fakeStore) Commit(_ context.Context, s *model.Session) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.sessions[s.ID] = s
	return nil
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls int
}

func (fb *fakeBroadcaster) BroadcastOutcome(string, model.Outcome) {
	fb.mu.Lock()
	fb.calls++
	fb.mu.Unlock()
}

func newTestSession(id string) *model.Session {
	return &model.Session{
		ID:          id,
		Variant:     model.VariantClassic,
		Subvariant:  model.SubvariantBullet,
		FEN:         startFEN,
		ActiveColor: model.White,
		Status:      model.StatusActive,
		Players: model.PlayersByColor{
			White: model.PlayerRecord{UserID: "alice"},
			Black: model.PlayerRecord{UserID: "bob"},
		},
		Clocks:      model.ClocksByColor{White: 60_000, Black: 60_000},
		TimeControl: model.TimeControl{BaseTimeMs: 60_000},
	}
}

func TestDispatchAppliesMoveAndCommits(t *testing.T) {
	store := newFakeStore(newTestSession("s1"))
	bcast := &fakeBroadcaster{}
	d := New(store, bcast, nil, nil, time.Minute)

	out, err := d.Dispatch(context.Background(), "s1", "alice", model.NewMoveAction("e2", "e4", "", 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("expected move applied, got %+v", out)
	}

	committed, _ := store.Load(context.Background(), "s1")
	if committed.ActiveColor != model.Black {
		t.Errorf("expected turn passed to black in committed state, got %v", committed.ActiveColor)
	}
	if bcast.calls != 1 {
		t.Errorf("expected one broadcast, got %d", bcast.calls)
	}
}

func TestDispatchRejectsNonParticipant(t *testing.T) {
	store := newFakeStore(newTestSession("s1"))
	d := New(store, nil, nil, nil, time.Minute)

	out, err := d.Dispatch(context.Background(), "s1", "mallory", model.NewMoveAction("e2", "e4", "", 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != model.OutcomeRejected || out.Code != model.CodeInvalidPlayer {
		t.Fatalf("expected INVALID_PLAYER rejection, got %+v", out)
	}
}

func TestDispatchRejectsUnknownSession(t *testing.T) {
	store := newFakeStore()
	d := New(store, nil, nil, nil, time.Minute)

	out, err := d.Dispatch(context.Background(), "missing", "alice", model.NewMoveAction("e2", "e4", "", 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != model.OutcomeRejected {
		t.Fatalf("expected rejection for unknown session, got %+v", out)
	}
}

// TestDispatchSerializesPerSession fires a burst of alternating legal
// moves at the same session concurrently and checks the final state is
// consistent with having applied them one at a time rather than racing on
// the same stale read.
func TestDispatchSerializesPerSession(t *testing.T) {
	store := newFakeStore(newTestSession("s1"))
	d := New(store, nil, nil, nil, time.Minute)

	moves := []struct {
		user, from, to string
	}{
		{"alice", "e2", "e4"},
		{"bob", "e7", "e5"},
		{"alice", "g1", "f3"},
		{"bob", "b8", "c6"},
	}

	var wg sync.WaitGroup
	results := make([]model.Outcome, len(moves))
	for i, mv := range moves {
		wg.Add(1)
		go func(i int, user, from, to string) {
			defer wg.Done()
			// Stagger slightly so later moves in this test don't race ahead
			// of earlier ones and get rejected for being out of turn; the
			// lane itself is what guarantees correctness, this just keeps
			// the scripted sequence meaningful.
			time.Sleep(time.Duration(i) * 5 * time.Millisecond)
			out, err := d.Dispatch(context.Background(), "s1", user, model.NewMoveAction(from, to, "", 0))
			if err != nil {
				t.Errorf("move %d errored: %v", i, err)
			}
			results[i] = out
		}(i, mv.user, mv.from, mv.to)
	}
	wg.Wait()

	for i, out := range results {
		if out.Kind != model.OutcomeApplied {
			t.Errorf("move %d expected applied, got %+v", i, out)
		}
	}

	final, _ := store.Load(context.Background(), "s1")
	if len(final.MoveHistory) != len(moves) {
		t.Fatalf("expected %d moves recorded, got %d", len(moves), len(final.MoveHistory))
	}
}

func TestResignEndsSessionForOpponent(t *testing.T) {
	store := newFakeStore(newTestSession("s1"))
	bcast := &fakeBroadcaster{}
	d := New(store, bcast, nil, nil, time.Minute)

	out, err := d.Resign(context.Background(), "s1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != model.OutcomeApplied || !out.IsTerminal {
		t.Fatalf("expected a terminal applied outcome, got %+v", out)
	}
	if out.NewState.Result == nil || out.NewState.Result.Winner != model.Black {
		t.Fatalf("expected black to win on alice's resignation, got %+v", out.NewState.Result)
	}
	if out.NewState.Status != model.StatusFinished {
		t.Fatalf("expected session finished, got %v", out.NewState.Status)
	}
}

func TestResignOnFinishedSessionRejected(t *testing.T) {
	session := newTestSession("s1")
	session.Status = model.StatusFinished
	store := newFakeStore(session)
	d := New(store, nil, nil, nil, time.Minute)

	out, err := d.Resign(context.Background(), "s1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != model.OutcomeRejected || out.Code != model.CodeGameEnded {
		t.Fatalf("expected GAME_ENDED rejection, got %+v", out)
	}
}

func TestDrawOfferAcceptFlow(t *testing.T) {
	store := newFakeStore(newTestSession("s1"))
	d := New(store, nil, nil, nil, time.Minute)
	ctx := context.Background()

	if _, err := d.OfferDraw(ctx, "s1", "alice"); err != nil {
		t.Fatalf("offer draw: %v", err)
	}
	committed, _ := store.Load(ctx, "s1")
	if committed.PendingDrawOffer != model.White {
		t.Fatalf("expected pending draw offer from white, got %q", committed.PendingDrawOffer)
	}

	if _, err := d.AcceptDraw(ctx, "s1", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stillPending, _ := store.Load(ctx, "s1")
	if stillPending.Status == model.StatusFinished {
		t.Fatal("expected alice accepting her own offer to be rejected, not end the game")
	}

	out, err := d.AcceptDraw(ctx, "s1", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != model.OutcomeApplied || out.NewState.Result.Result != model.ResultDrawAgreed {
		t.Fatalf("expected draw agreed, got %+v", out)
	}
}

func TestDeclineDrawClearsOfferWithoutEndingGame(t *testing.T) {
	store := newFakeStore(newTestSession("s1"))
	d := New(store, nil, nil, nil, time.Minute)
	ctx := context.Background()

	d.OfferDraw(ctx, "s1", "alice")
	out, err := d.DeclineDraw(ctx, "s1", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != model.OutcomeApplied || out.IsTerminal {
		t.Fatalf("expected non-terminal applied outcome, got %+v", out)
	}
	if out.NewState.PendingDrawOffer != "" {
		t.Fatalf("expected pending offer cleared, got %q", out.NewState.PendingDrawOffer)
	}
	if out.NewState.Status == model.StatusFinished {
		t.Fatal("declining a draw must not end the session")
	}
}

func TestLaneReapedAfterIdleTimeout(t *testing.T) {
	store := newFakeStore(newTestSession("s1"))
	d := New(store, nil, nil, nil, 20*time.Millisecond)

	if _, err := d.Dispatch(context.Background(), "s1", "alice", model.NewMoveAction("e2", "e4", "", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.LaneCount() != 1 {
		t.Fatalf("expected one live lane right after dispatch, got %d", d.LaneCount())
	}

	time.Sleep(100 * time.Millisecond)
	if d.LaneCount() != 0 {
		t.Errorf("expected the idle lane to be reaped, got %d live lanes", d.LaneCount())
	}
}
