// Package tournament implements the Tournament Manager (spec.md §4.T): a
// single active tournament at a time, a randomly-assigned-variant FIFO
// waiting queue, three-tier cross-pool matching against the Matchmaker's
// regular waiting sets, and a persistent win/streak leaderboard.
package tournament

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"chessvariants-server/internal/metrics"
	"chessvariants-server/internal/model"
)

// MatchSource is the subset of the Matchmaker the Tournament Manager
// depends on: querying regular waiting sets and performing the shared
// on-match sequence.
type MatchSource interface {
	ListQueue(ctx context.Context, v model.Variant, sv model.Subvariant) ([]model.QueueEntry, error)
	FormMatch(ctx context.Context, a, b model.QueueEntry) (*model.Session, error)
}

// Store is the durable side of tournament record-keeping.
type Store interface {
	SaveTournament(id string, createdAt int64, finishedAt *int64, data []byte) error
	RecordTournamentMatch(tournamentID, sessionID string, round int, createdAt int64) error
}

// Notifier tells a connected client's Gateway session about a tournament
// match. Implementations must not block.
type Notifier interface {
	NotifyMatched(userID string, session *model.Session, source string)
}

// LeaderboardEntry is one player's standing within the active tournament's
// lifetime leaderboard (spec.md §4.T: "{player, wins, currentStreak}",
// plus the user record's personalBestStreak, tracked here via max).
type LeaderboardEntry struct {
	UserID             string `json:"userId"`
	DisplayName        string `json:"displayName"`
	Wins               int    `json:"wins"`
	CurrentStreak      int    `json:"currentStreak"`
	PersonalBestStreak int    `json:"personalBestStreak"`
}

// Tournament is the active tournament's own state.
type Tournament struct {
	ID         string
	StartAt    int64
	EndAt      int64
	Capacity   int
	Participants map[string]bool
	Queue      []model.QueueEntry
	NextRound  int
}

// Manager owns tournament lifecycle, its waiting queue, and its
// leaderboard.
type Manager struct {
	mm      MatchSource
	store   Store
	notifier Notifier
	metrics *metrics.Metrics
	log     *slog.Logger

	mu          sync.Mutex
	active      *Tournament
	leaderboard map[string]*LeaderboardEntry

	matchMu sync.Mutex

	nowFn  func() int64
	randFn func(n int) int
}

// New constructs a Manager with no active tournament.
func New(mm MatchSource, store Store, notifier Notifier, m *metrics.Metrics, log *slog.Logger) *Manager {
	return &Manager{
		mm:          mm,
		store:       store,
		notifier:    notifier,
		metrics:     m,
		log:         log,
		leaderboard: make(map[string]*LeaderboardEntry),
		nowFn:       func() int64 { return time.Now().UnixMilli() },
		randFn:      rand.Intn,
	}
}

// StartTournament opens a new active tournament window. Fails if one is
// already active.
func (tm *Manager) StartTournament(id string, startAt, endAt int64, capacity int) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.active != nil {
		return fmt.Errorf("a tournament is already active")
	}
	tm.active = &Tournament{
		ID:           id,
		StartAt:      startAt,
		EndAt:        endAt,
		Capacity:     capacity,
		Participants: make(map[string]bool),
	}
	if tm.metrics != nil {
		tm.metrics.TournamentActive.Set(1)
	}
	if tm.store != nil {
		if err := tm.store.SaveTournament(id, tm.nowFn(), nil, nil); err != nil && tm.log != nil {
			tm.log.Error("save tournament failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// EndTournament closes the active tournament; queued-but-unmatched
// participants are dropped from the queue. The leaderboard is retained in
// memory for read access until the next StartTournament call replaces it.
func (tm *Manager) EndTournament() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.active == nil {
		return
	}
	finishedAt := tm.nowFn()
	if tm.store != nil {
		if err := tm.store.SaveTournament(tm.active.ID, tm.active.StartAt, &finishedAt, nil); err != nil && tm.log != nil {
			tm.log.Error("finalize tournament failed", slog.String("error", err.Error()))
		}
	}
	tm.active = nil
	if tm.metrics != nil {
		tm.metrics.TournamentActive.Set(0)
	}
}

// Join enrolls userID in the active tournament and enqueues them with a
// randomly-assigned (variant, subvariant), per spec.md §4.T "Join".
func (tm *Manager) Join(ctx context.Context, userID, displayName string, rating int) error {
	tm.mu.Lock()
	if tm.active == nil {
		tm.mu.Unlock()
		return fmt.Errorf("no active tournament")
	}
	now := tm.nowFn()
	if now < tm.active.StartAt || now > tm.active.EndAt {
		tm.mu.Unlock()
		return fmt.Errorf("tournament is not within its active window")
	}
	if !tm.active.Participants[userID] && len(tm.active.Participants) >= tm.active.Capacity {
		tm.mu.Unlock()
		return fmt.Errorf("tournament is at capacity")
	}
	tm.active.Participants[userID] = true

	assignment := model.SupportedAssignments[tm.randFn(len(model.SupportedAssignments))]
	entry := model.QueueEntry{
		UserID:       userID,
		DisplayName:  displayName,
		Rating:       rating,
		Variant:      assignment.Variant,
		Subvariant:   assignment.Subvariant,
		JoinedAt:     now,
		TournamentID: tm.active.ID,
	}
	tm.active.Queue = append(tm.active.Queue, entry)
	tm.mu.Unlock()

	if tm.metrics != nil {
		tm.metrics.MatchmakingQueueDepth.WithLabelValues("tournament:"+string(assignment.Variant), string(assignment.Subvariant)).Inc()
	}
	tm.attemptMatch(ctx, entry)
	return nil
}

// Leave removes userID from the tournament queue and the participants
// set, freeing a capacity slot. The leaderboard entry, keyed separately,
// persists (spec.md §4.T "Disconnect/leave").
func (tm *Manager) Leave(ctx context.Context, userID string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.active == nil {
		return nil
	}
	delete(tm.active.Participants, userID)
	tm.removeFromQueueLocked(userID)
	return nil
}

// Remove satisfies matchmaker.TournamentSource: the Matchmaker calls this
// when a user leaves a regular queue, to clear any stray tournament-side
// wait state for the same user.
func (tm *Manager) Remove(ctx context.Context, userID string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.active == nil {
		return nil
	}
	tm.removeFromQueueLocked(userID)
	return nil
}

func (tm *Manager) removeFromQueueLocked(userID string) {
	if tm.active == nil {
		return
	}
	out := tm.active.Queue[:0:0]
	for _, e := range tm.active.Queue {
		if e.UserID != userID {
			out = append(out, e)
		}
	}
	tm.active.Queue = out
}

// FindCompatible satisfies matchmaker.TournamentSource: it lets the
// Matchmaker's broad sweep cross-match a regular waiter against a
// tournament waiter holding the same (variant, subvariant) assignment
// (spec.md §4.M phase 2's tournament cross-match check).
func (tm *Manager) FindCompatible(ctx context.Context, v model.Variant, sv model.Subvariant) (model.QueueEntry, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.active == nil {
		return model.QueueEntry{}, false
	}
	for i, e := range tm.active.Queue {
		if e.Variant == v && e.Subvariant == sv {
			tm.active.Queue = append(tm.active.Queue[:i:i], tm.active.Queue[i+1:]...)
			return e, true
		}
	}
	return model.QueueEntry{}, false
}

// OnMatched satisfies matchmaker.TournamentSource: the Matchmaker calls
// this after forming a cross-pool match it initiated, so the Tournament
// Manager can append the durable match record spec.md §4.T requires.
func (tm *Manager) OnMatched(ctx context.Context, userID, sessionID string) {
	tm.mu.Lock()
	tournamentID, round := "", 0
	if tm.active != nil {
		tournamentID = tm.active.ID
		tm.active.NextRound++
		round = tm.active.NextRound
	}
	tm.mu.Unlock()
	if tournamentID == "" || tm.store == nil {
		return
	}
	if err := tm.store.RecordTournamentMatch(tournamentID, sessionID, round, tm.nowFn()); err != nil && tm.log != nil {
		tm.log.Error("record tournament match failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))
	}
}

// attemptMatch implements spec.md §4.T's three-tier matching policy for a
// single tournament queue entry.
func (tm *Manager) attemptMatch(ctx context.Context, entry model.QueueEntry) {
	tm.matchMu.Lock()
	defer tm.matchMu.Unlock()

	if !tm.isQueued(entry.UserID, entry.JoinedAt) {
		return
	}

	// Tier 1: any other tournament waiter, variant taken from entry's own
	// assignment.
	if other, ok := tm.popOtherWaiter(entry.UserID); ok {
		tm.mu.Lock()
		tm.removeFromQueueLocked(entry.UserID)
		tm.mu.Unlock()
		tm.finishMatch(ctx, entry, other, "tournament")
		return
	}

	// Tier 2: regular waiting set matching this entry's assigned variant.
	if regulars, err := tm.mm.ListQueue(ctx, entry.Variant, entry.Subvariant); err == nil && len(regulars) > 0 {
		opp := earliestEntry(regulars)
		tm.mu.Lock()
		tm.removeFromQueueLocked(entry.UserID)
		tm.mu.Unlock()
		tm.finishMatch(ctx, entry, opp, "tournament")
		return
	}

	// Tier 3: any regular waiter at all; the game variant comes from
	// theirs, not the tournament entry's assignment.
	for _, pair := range model.SupportedAssignments {
		regulars, err := tm.mm.ListQueue(ctx, pair.Variant, pair.Subvariant)
		if err != nil || len(regulars) == 0 {
			continue
		}
		opp := earliestEntry(regulars)
		adjusted := entry
		adjusted.Variant, adjusted.Subvariant = opp.Variant, opp.Subvariant
		tm.mu.Lock()
		tm.removeFromQueueLocked(entry.UserID)
		tm.mu.Unlock()
		tm.finishMatch(ctx, adjusted, opp, "tournament")
		return
	}
}

func (tm *Manager) isQueued(userID string, joinedAt int64) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.active == nil {
		return false
	}
	for _, e := range tm.active.Queue {
		if e.UserID == userID && e.JoinedAt == joinedAt {
			return true
		}
	}
	return false
}

func (tm *Manager) popOtherWaiter(excludeUserID string) (model.QueueEntry, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.active == nil {
		return model.QueueEntry{}, false
	}
	for i, e := range tm.active.Queue {
		if e.UserID != excludeUserID {
			tm.active.Queue = append(tm.active.Queue[:i:i], tm.active.Queue[i+1:]...)
			return e, true
		}
	}
	return model.QueueEntry{}, false
}

func earliestEntry(entries []model.QueueEntry) model.QueueEntry {
	best := entries[0]
	for _, e := range entries[1:] {
		if e.JoinedAt < best.JoinedAt {
			best = e
		}
	}
	return best
}

func (tm *Manager) finishMatch(ctx context.Context, a, b model.QueueEntry, source string) {
	session, err := tm.mm.FormMatch(ctx, a, b)
	if err != nil {
		if tm.log != nil {
			tm.log.Error("tournament match formation failed", slog.String("error", err.Error()))
		}
		return
	}
	tm.mu.Lock()
	tournamentID := ""
	round := 0
	if tm.active != nil {
		tournamentID = tm.active.ID
		tm.active.NextRound++
		round = tm.active.NextRound
	}
	tm.mu.Unlock()
	if tournamentID != "" && tm.store != nil {
		if err := tm.store.RecordTournamentMatch(tournamentID, session.ID, round, tm.nowFn()); err != nil && tm.log != nil {
			tm.log.Error("record tournament match failed", slog.String("session_id", session.ID), slog.String("error", err.Error()))
		}
	}
	if tm.metrics != nil {
		tm.metrics.TournamentMatchesTotal.Inc()
		if source == "tournament" && a.Variant != b.Variant {
			tm.metrics.TournamentCrossPoolTotal.Inc()
		}
	}
}

// RecordResult applies a finished session's outcome to the leaderboard,
// per spec.md §4.T "Leaderboard updates". Called externally at session
// finish, once per participant, by whatever component observes the
// Dispatcher's terminal outcome.
func (tm *Manager) RecordResult(userID, displayName string, won bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	entry, ok := tm.leaderboard[userID]
	if !ok {
		entry = &LeaderboardEntry{UserID: userID, DisplayName: displayName}
		tm.leaderboard[userID] = entry
	}
	if won {
		entry.Wins++
		entry.CurrentStreak++
		if entry.CurrentStreak > entry.PersonalBestStreak {
			entry.PersonalBestStreak = entry.CurrentStreak
		}
	} else {
		entry.CurrentStreak = 0
	}
}

// Leaderboard returns a snapshot of every tracked player's standing.
func (tm *Manager) Leaderboard() []LeaderboardEntry {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	out := make([]LeaderboardEntry, 0, len(tm.leaderboard))
	for _, e := range tm.leaderboard {
		out = append(out, *e)
	}
	return out
}

// Active reports whether a tournament is currently open, and its id.
func (tm *Manager) Active() (string, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.active == nil {
		return "", false
	}
	return tm.active.ID, true
}
