package matchmaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"chessvariants-server/internal/model"
	"chessvariants-server/internal/userstore"
	"chessvariants-server/internal/variant"
)

type fakeStore struct {
	mu       sync.Mutex
	queues   map[string][]model.QueueEntry
	sessions map[string]*model.Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{queues: make(map[string][]model.QueueEntry), sessions: make(map[string]*model.Session)}
}

func (s *fakeStore) key(v model.Variant, sv model.Subvariant) string { return model.QueueKey(v, sv) }

func (s *fakeStore) EnqueueWaiter(_ context.Context, entry model.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(entry.Variant, entry.Subvariant)
	for _, e := range s.queues[k] {
		if e.UserID == entry.UserID {
			return nil
		}
	}
	s.queues[k] = append(s.queues[k], entry)
	return nil
}

func (s *fakeStore) RemoveWaiter(_ context.Context, v model.Variant, sv model.Subvariant, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(v, sv)
	out := s.queues[k][:0:0]
	for _, e := range s.queues[k] {
		if e.UserID != userID {
			out = append(out, e)
		}
	}
	s.queues[k] = out
	return nil
}

func (s *fakeStore) ListQueue(_ context.Context, v model.Variant, sv model.Subvariant) ([]model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.QueueEntry, len(s.queues[s.key(v, sv)]))
	copy(out, s.queues[s.key(v, sv)])
	return out, nil
}

func (s *fakeStore) CreateSession(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = "generated"
	}
	s.sessions[session.ID] = session
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	matched  []string
	cooldown []string
}

func (n *fakeNotifier) NotifyMatched(userID string, _ *model.Session, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.matched = append(n.matched, userID)
}

func (n *fakeNotifier) NotifyCooldown(userID string, _ int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cooldown = append(n.cooldown, userID)
}

func newTestMatchmaker() (*Matchmaker, *fakeStore, *fakeNotifier) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	mm := New(store, userstore.Static{}, notifier, nil, nil)
	return mm, store, notifier
}

func TestEnqueueMatchesWithinRatingWindow(t *testing.T) {
	mm, _, notifier := newTestMatchmaker()
	ctx := context.Background()

	if err := mm.Enqueue(ctx, "alice", 1500, "Alice", model.VariantClassic, model.SubvariantBlitz, ""); err != nil {
		t.Fatalf("enqueue alice: %v", err)
	}
	if err := mm.Enqueue(ctx, "bob", 1520, "Bob", model.VariantClassic, model.SubvariantBlitz, ""); err != nil {
		t.Fatalf("enqueue bob: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.matched) != 2 {
		t.Fatalf("expected both players matched, got %v", notifier.matched)
	}
}

func TestEnqueueDoesNotMatchOutsideRatingWindow(t *testing.T) {
	mm, store, notifier := newTestMatchmaker()
	ctx := context.Background()

	mm.Enqueue(ctx, "alice", 1000, "Alice", model.VariantClassic, model.SubvariantBlitz, "")
	mm.Enqueue(ctx, "carol", 1800, "Carol", model.VariantClassic, model.SubvariantBlitz, "")

	notifier.mu.Lock()
	matchedNow := len(notifier.matched)
	notifier.mu.Unlock()
	if matchedNow != 0 {
		t.Fatalf("expected no immediate match across a wide rating gap, got %v", notifier.matched)
	}

	waiters, _ := store.ListQueue(ctx, model.VariantClassic, model.SubvariantBlitz)
	if len(waiters) != 2 {
		t.Fatalf("expected both players still waiting, got %d", len(waiters))
	}
}

func TestLeaveAppliesCooldown(t *testing.T) {
	mm, store, _ := newTestMatchmaker()
	ctx := context.Background()

	mm.Enqueue(ctx, "alice", 1500, "Alice", model.VariantDecay, model.SubvariantNone, "")
	if err := mm.Leave(ctx, "alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	waiters, _ := store.ListQueue(ctx, model.VariantDecay, model.SubvariantNone)
	if len(waiters) != 0 {
		t.Fatalf("expected queue empty after leave, got %d", len(waiters))
	}

	if err := mm.Enqueue(ctx, "alice", 1500, "Alice", model.VariantDecay, model.SubvariantNone, ""); err == nil {
		t.Fatal("expected re-enqueue to be rejected during cooldown")
	}
}

func TestExclusivityMovesUserBetweenQueues(t *testing.T) {
	mm, store, _ := newTestMatchmaker()
	ctx := context.Background()

	mm.Enqueue(ctx, "alice", 1500, "Alice", model.VariantClassic, model.SubvariantBullet, "")
	mm.Enqueue(ctx, "alice", 1500, "Alice", model.VariantClassic, model.SubvariantBlitz, "")

	bulletWaiters, _ := store.ListQueue(ctx, model.VariantClassic, model.SubvariantBullet)
	if len(bulletWaiters) != 0 {
		t.Fatalf("expected alice removed from the bullet queue, got %d waiters", len(bulletWaiters))
	}
	blitzWaiters, _ := store.ListQueue(ctx, model.VariantClassic, model.SubvariantBlitz)
	if len(blitzWaiters) != 1 {
		t.Fatalf("expected alice waiting in blitz queue, got %d", len(blitzWaiters))
	}
}

func TestStartingFENUsesStandardInitialForNonSixPointer(t *testing.T) {
	mm, _, _ := newTestMatchmaker()
	fen, _ := mm.startingFEN(model.VariantClassic, model.SubvariantBlitz)
	if fen != standardInitialFEN {
		t.Fatalf("expected standard initial FEN for classic, got %q", fen)
	}
}

func TestStartingFENPicksRandomSixPointerCandidate(t *testing.T) {
	mm, _, _ := newTestMatchmaker()
	mm.randFn = func(n int) int { return 2 % n }
	fen, _ := mm.startingFEN(model.VariantSixPointer, model.SubvariantNone)
	if fen != variant.SixPointerStartingFENs[2] {
		t.Fatalf("expected the randFn-selected candidate, got %q", fen)
	}
}

func TestStartingFENResamplesPastTerminalCandidate(t *testing.T) {
	mm, _, _ := newTestMatchmaker()
	calls := 0
	mm.randFn = func(n int) int {
		// First offer a checkmated position (terminal), then a real
		// candidate; the second pick must win.
		calls++
		if calls == 1 {
			return 0
		}
		return 1
	}
	pool := variant.SixPointerStartingFENs
	orig := variant.SixPointerStartingFENs
	variant.SixPointerStartingFENs = []string{
		// Fool's mate: white is checkmated, terminal.
		"rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3",
		pool[0],
	}
	defer func() { variant.SixPointerStartingFENs = orig }()

	fen, _ := mm.startingFEN(model.VariantSixPointer, model.SubvariantNone)
	if fen != pool[0] {
		t.Fatalf("expected resample past the terminal candidate, got %q", fen)
	}
}

func TestIdleSweepEvictsOldWaiters(t *testing.T) {
	mm, store, _ := newTestMatchmaker()
	ctx := context.Background()

	fakeNow := time.Now().UnixMilli()
	mm.nowFn = func() int64 { return fakeNow }
	mm.Enqueue(ctx, "alice", 1500, "Alice", model.VariantSixPointer, model.SubvariantNone, "")

	mm.nowFn = func() int64 { return fakeNow + mm.tuning.IdleEvictAfter.Milliseconds() + 1000 }
	mm.sweepIdle(ctx)

	waiters, _ := store.ListQueue(ctx, model.VariantSixPointer, model.SubvariantNone)
	if len(waiters) != 0 {
		t.Fatalf("expected idle waiter evicted, got %d", len(waiters))
	}
}
