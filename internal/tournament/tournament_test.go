package tournament

import (
	"context"
	"sync"
	"testing"

	"chessvariants-server/internal/model"
)

type fakeMatchSource struct {
	mu      sync.Mutex
	queues  map[string][]model.QueueEntry
	formed  [][2]model.QueueEntry
	nextSID int
}

func newFakeMatchSource() *fakeMatchSource {
	return &fakeMatchSource{queues: make(map[string][]model.QueueEntry)}
}

func (f *fakeMatchSource) key(v model.Variant, sv model.Subvariant) string { return model.QueueKey(v, sv) }

func (f *fakeMatchSource) add(entry model.QueueEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[f.key(entry.Variant, entry.Subvariant)] = append(f.queues[f.key(entry.Variant, entry.Subvariant)], entry)
}

func (f *fakeMatchSource) ListQueue(_ context.Context, v model.Variant, sv model.Subvariant) ([]model.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.QueueEntry, len(f.queues[f.key(v, sv)]))
	copy(out, f.queues[f.key(v, sv)])
	return out, nil
}

func (f *fakeMatchSource) FormMatch(_ context.Context, a, b model.QueueEntry) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(b.Variant, b.Subvariant)
	out := f.queues[k][:0:0]
	for _, e := range f.queues[k] {
		if e.UserID != b.UserID {
			out = append(out, e)
		}
	}
	f.queues[k] = out
	f.formed = append(f.formed, [2]model.QueueEntry{a, b})
	f.nextSID++
	return &model.Session{ID: "sess", Variant: a.Variant, Subvariant: a.Subvariant}, nil
}

type fakeTournamentStore struct {
	mu      sync.Mutex
	matches int
}

func (s *fakeTournamentStore) SaveTournament(string, int64, *int64, []byte) error { return nil }

func (s *fakeTournamentStore) RecordTournamentMatch(string, string, int, int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches++
	return nil
}

func newTestManager() (*Manager, *fakeMatchSource, *fakeTournamentStore) {
	mm := newFakeMatchSource()
	store := &fakeTournamentStore{}
	tm := New(mm, store, nil, nil, nil)
	tm.randFn = func(n int) int { return 0 }
	return tm, mm, store
}

func TestJoinAssignsVariantAndQueues(t *testing.T) {
	tm, _, _ := newTestManager()
	if err := tm.StartTournament("t1", 0, 1<<62, 10); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tm.Join(context.Background(), "alice", "Alice", 1500); err != nil {
		t.Fatalf("join: %v", err)
	}
	if tm.active == nil || len(tm.active.Queue) != 1 {
		t.Fatalf("expected alice queued, got %+v", tm.active)
	}
}

func TestJoinRejectsWithoutActiveTournament(t *testing.T) {
	tm, _, _ := newTestManager()
	if err := tm.Join(context.Background(), "alice", "Alice", 1500); err == nil {
		t.Fatal("expected join to fail with no active tournament")
	}
}

func TestTwoTournamentWaitersMatchEachOther(t *testing.T) {
	tm, mm, store := newTestManager()
	tm.StartTournament("t1", 0, 1<<62, 10)
	tm.Join(context.Background(), "alice", "Alice", 1500)
	tm.Join(context.Background(), "bob", "Bob", 1500)

	if len(mm.formed) != 1 {
		t.Fatalf("expected exactly one match formed, got %d", len(mm.formed))
	}
	if tm.active != nil && len(tm.active.Queue) != 0 {
		t.Fatalf("expected both waiters cleared from the queue, got %d", len(tm.active.Queue))
	}
	if store.matches != 1 {
		t.Fatalf("expected one recorded tournament match, got %d", store.matches)
	}
}

func TestTournamentWaiterMatchesAssignedVariantRegular(t *testing.T) {
	tm, mm, _ := newTestManager()
	tm.StartTournament("t1", 0, 1<<62, 10)

	assignment := model.SupportedAssignments[0]
	mm.add(model.QueueEntry{UserID: "regular1", Variant: assignment.Variant, Subvariant: assignment.Subvariant, JoinedAt: 1})

	if err := tm.Join(context.Background(), "alice", "Alice", 1500); err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(mm.formed) != 1 {
		t.Fatalf("expected alice matched against the regular waiter, got %d matches", len(mm.formed))
	}
	if mm.formed[0][1].UserID != "regular1" {
		t.Fatalf("expected regular1 as opponent, got %s", mm.formed[0][1].UserID)
	}
}

func TestLeaveClearsQueueAndParticipant(t *testing.T) {
	tm, _, _ := newTestManager()
	tm.StartTournament("t1", 0, 1<<62, 10)
	tm.Join(context.Background(), "alice", "Alice", 1500)
	tm.Leave(context.Background(), "alice")

	if tm.active.Participants["alice"] {
		t.Fatal("expected alice removed from participants")
	}
	if len(tm.active.Queue) != 0 {
		t.Fatal("expected alice removed from tournament queue")
	}
}

func TestRecordResultTracksStreak(t *testing.T) {
	tm, _, _ := newTestManager()
	tm.RecordResult("alice", "Alice", true)
	tm.RecordResult("alice", "Alice", true)
	tm.RecordResult("alice", "Alice", false)
	tm.RecordResult("alice", "Alice", true)

	board := tm.Leaderboard()
	if len(board) != 1 {
		t.Fatalf("expected one leaderboard entry, got %d", len(board))
	}
	entry := board[0]
	if entry.Wins != 3 {
		t.Fatalf("expected 3 wins, got %d", entry.Wins)
	}
	if entry.CurrentStreak != 1 {
		t.Fatalf("expected current streak reset then rebuilt to 1, got %d", entry.CurrentStreak)
	}
	if entry.PersonalBestStreak != 2 {
		t.Fatalf("expected personal best streak of 2, got %d", entry.PersonalBestStreak)
	}
}

func TestFindCompatibleCrossMatchesFromRegularSide(t *testing.T) {
	tm, _, _ := newTestManager()
	tm.StartTournament("t1", 0, 1<<62, 10)
	tm.Join(context.Background(), "alice", "Alice", 1500)

	assignment := tm.active.Queue[0]
	entry, ok := tm.FindCompatible(context.Background(), assignment.Variant, assignment.Subvariant)
	if !ok {
		t.Fatal("expected a compatible tournament waiter")
	}
	if entry.UserID != "alice" {
		t.Fatalf("expected alice, got %s", entry.UserID)
	}
	if len(tm.active.Queue) != 0 {
		t.Fatal("expected alice removed from the tournament queue after FindCompatible")
	}
}
