// Package matchmaker implements the Matchmaker (spec.md §4.M): one
// rating-sorted waiting queue per (variant, subvariant), immediate
// narrow-window matching on enqueue, a broader sweep ~10s later, a 5-minute
// idle eviction sweep, and post-match cooldowns.
package matchmaker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"chessvariants-server/internal/metrics"
	"chessvariants-server/internal/model"
	"chessvariants-server/internal/position"
	"chessvariants-server/internal/userstore"
	"chessvariants-server/internal/variant"

	"github.com/google/uuid"
)

const (
	defaultCooldownMs        = 10_000
	narrowRangeDefault       = 100
	narrowRangeLarge         = 50
	largeQueueThreshold      = 1000
	waitBeforeDoubling       = 5 * time.Second
	broadMatchDelay          = 10 * time.Second
	defaultIdleEvictAfter    = 5 * time.Minute
	defaultIdleSweepInterval = 60 * time.Second
)

// Tuning carries the operator-configurable timings (config.Config's
// CooldownSeconds/IdleSweepIntervalSeconds/IdleWaitCapSeconds). Zero values
// fall back to the defaults above, so callers that don't care can pass the
// zero Tuning.
type Tuning struct {
	CooldownMs        int64
	IdleSweepInterval time.Duration
	IdleEvictAfter    time.Duration
}

func (t Tuning) withDefaults() Tuning {
	if t.CooldownMs <= 0 {
		t.CooldownMs = defaultCooldownMs
	}
	if t.IdleSweepInterval <= 0 {
		t.IdleSweepInterval = defaultIdleSweepInterval
	}
	if t.IdleEvictAfter <= 0 {
		t.IdleEvictAfter = defaultIdleEvictAfter
	}
	return t
}

// Store is the subset of the Session Store the Matchmaker depends on.
type Store interface {
	EnqueueWaiter(ctx context.Context, entry model.QueueEntry) error
	RemoveWaiter(ctx context.Context, v model.Variant, sv model.Subvariant, userID string) error
	ListQueue(ctx context.Context, v model.Variant, sv model.Subvariant) ([]model.QueueEntry, error)
	CreateSession(ctx context.Context, session *model.Session) error
}

// Notifier tells a connected client's Gateway session about a match or a
// cooldown rejection. Implementations must not block.
type Notifier interface {
	NotifyMatched(userID string, session *model.Session, source string)
	NotifyCooldown(userID string, remainingMs int64)
}

// TournamentSource lets the Matchmaker's broad sweep check for a
// compatible tournament waiter to cross-match against, per spec.md §4.M
// phase 2. Implemented by internal/tournament.Manager; injected after
// construction to avoid an import cycle between the two packages.
type TournamentSource interface {
	FindCompatible(ctx context.Context, v model.Variant, sv model.Subvariant) (model.QueueEntry, bool)
	Remove(ctx context.Context, userID string) error
	OnMatched(ctx context.Context, userID, sessionID string)
}

// Matchmaker owns the match-forming logic; the actual queue storage lives
// in the Session Store so it survives a process restart.
type Matchmaker struct {
	store    Store
	users    userstore.UserStore
	notifier Notifier
	tourney  TournamentSource
	metrics  *metrics.Metrics
	log      *slog.Logger

	// matchMu serializes match attempts across all queues. A distributed
	// deployment would need a Lua script or WATCH/MULTI around the zset
	// mutations to get the same exclusivity across processes; a single
	// in-process mutex is this server's substitute, consistent with the
	// Dispatcher's per-session lane standing in for distributed locking.
	matchMu sync.Mutex

	cooldownMu sync.Mutex
	cooldowns  map[string]int64 // userID -> cooldown-expiry unix ms

	// lastQueue tracks which (variant,subvariant) each user is currently
	// waiting in, so Leave/re-Enqueue can enforce exclusivity without an
	// extra Redis round trip per queue.
	queueMu   sync.Mutex
	lastQueue map[string]model.QueueEntry

	tuning Tuning
	nowFn  func() int64
	randFn func(n int) int
}

// New constructs a Matchmaker. tuning is optional: pass the zero Tuning (or
// omit it) to use the defaults; a non-zero Tuning field overrides its
// corresponding default.
func New(store Store, users userstore.UserStore, notifier Notifier, m *metrics.Metrics, log *slog.Logger, tuning ...Tuning) *Matchmaker {
	var t Tuning
	if len(tuning) > 0 {
		t = tuning[0]
	}
	return &Matchmaker{
		store:     store,
		users:     users,
		notifier:  notifier,
		metrics:   m,
		log:       log,
		cooldowns: make(map[string]int64),
		lastQueue: make(map[string]model.QueueEntry),
		tuning:    t.withDefaults(),
		nowFn:     func() int64 { return time.Now().UnixMilli() },
		randFn:    rand.Intn,
	}
}

// SetTournamentSource wires in the Tournament Manager once both are
// constructed.
func (mm *Matchmaker) SetTournamentSource(src TournamentSource) {
	mm.tourney = src
}

func (mm *Matchmaker) cooldownRemaining(userID string) int64 {
	mm.cooldownMu.Lock()
	defer mm.cooldownMu.Unlock()
	expiry, ok := mm.cooldowns[userID]
	if !ok {
		return 0
	}
	remaining := expiry - mm.nowFn()
	if remaining <= 0 {
		delete(mm.cooldowns, userID)
		return 0
	}
	return remaining
}

func (mm *Matchmaker) setCooldown(userID string) {
	mm.cooldownMu.Lock()
	mm.cooldowns[userID] = mm.nowFn() + mm.tuning.CooldownMs
	mm.cooldownMu.Unlock()
}

// Enqueue adds userID to the waiting set for (v, sv) and immediately
// attempts a narrow-window match. If no opponent is found, a broader sweep
// is scheduled ~10s later.
func (mm *Matchmaker) Enqueue(ctx context.Context, userID string, rating int, displayName string, v model.Variant, sv model.Subvariant, tournamentID string) error {
	if remaining := mm.cooldownRemaining(userID); remaining > 0 {
		if mm.notifier != nil {
			mm.notifier.NotifyCooldown(userID, remaining)
		}
		return fmt.Errorf("user %s is on post-match cooldown for %dms", userID, remaining)
	}

	// Exclusivity: leave whatever queue this user was previously in.
	mm.queueMu.Lock()
	if prev, ok := mm.lastQueue[userID]; ok {
		mm.store.RemoveWaiter(ctx, prev.Variant, prev.Subvariant, userID)
	}
	entry := model.QueueEntry{
		UserID: userID, DisplayName: displayName, Rating: rating,
		Variant: v, Subvariant: sv, JoinedAt: mm.nowFn(), TournamentID: tournamentID,
	}
	mm.lastQueue[userID] = entry
	mm.queueMu.Unlock()

	if err := mm.store.EnqueueWaiter(ctx, entry); err != nil {
		return fmt.Errorf("enqueue %s: %w", userID, err)
	}
	if mm.metrics != nil {
		list, _ := mm.store.ListQueue(ctx, v, sv)
		mm.metrics.MatchmakingQueueDepth.WithLabelValues(string(v), string(sv)).Set(float64(len(list)))
	}

	if matched, err := mm.tryMatch(ctx, entry, false); err != nil {
		return err
	} else if matched {
		return nil
	}

	time.AfterFunc(broadMatchDelay, func() {
		bgCtx := context.Background()
		if mm.stillWaiting(userID, entry) {
			mm.tryMatch(bgCtx, entry, true)
		}
	})
	return nil
}

func (mm *Matchmaker) stillWaiting(userID string, entry model.QueueEntry) bool {
	mm.queueMu.Lock()
	defer mm.queueMu.Unlock()
	cur, ok := mm.lastQueue[userID]
	return ok && cur.JoinedAt == entry.JoinedAt
}

// Leave removes userID from their current queue and applies the cooldown,
// per spec.md §4.M "Leave / disconnect".
func (mm *Matchmaker) Leave(ctx context.Context, userID string) error {
	mm.queueMu.Lock()
	entry, ok := mm.lastQueue[userID]
	if ok {
		delete(mm.lastQueue, userID)
	}
	mm.queueMu.Unlock()
	if !ok {
		return nil
	}
	if err := mm.store.RemoveWaiter(ctx, entry.Variant, entry.Subvariant, userID); err != nil {
		return err
	}
	mm.setCooldown(userID)
	if mm.tourney != nil {
		mm.tourney.Remove(ctx, userID)
	}
	return nil
}

// tryMatch attempts to pair entry with a waiting opponent. broad selects
// phase 2 semantics (whole-queue scan plus tournament cross-match);
// narrow restricts to the rating-window phase 1 policy.
func (mm *Matchmaker) tryMatch(ctx context.Context, entry model.QueueEntry, broad bool) (bool, error) {
	mm.matchMu.Lock()
	defer mm.matchMu.Unlock()

	// The entry may have already been matched or have left by the time
	// this runs (e.g. the narrow attempt already succeeded before the
	// broad sweep fires).
	mm.queueMu.Lock()
	cur, ok := mm.lastQueue[entry.UserID]
	stillCurrent := ok && cur.JoinedAt == entry.JoinedAt
	mm.queueMu.Unlock()
	if !stillCurrent {
		return false, nil
	}

	candidates, err := mm.store.ListQueue(ctx, entry.Variant, entry.Subvariant)
	if err != nil {
		return false, fmt.Errorf("list queue: %w", err)
	}

	opponent, found := selectOpponent(entry, candidates, broad, mm.nowFn())
	if !found && broad && mm.tourney != nil {
		if twaiter, ok := mm.tourney.FindCompatible(ctx, entry.Variant, entry.Subvariant); ok {
			opponent, found = twaiter, true
		}
	}
	if !found {
		return false, nil
	}

	session, err := mm.formMatch(ctx, entry, opponent, "matchmaker")
	if err != nil {
		return false, err
	}
	_ = session
	return true, nil
}

// selectOpponent implements spec.md §4.M's phase 1 (narrow rating window,
// doubled after a 5s wait, tighter once the queue is large) and phase 2
// (whole-queue scan preferring earliest join time) policies.
func selectOpponent(entry model.QueueEntry, candidates []model.QueueEntry, broad bool, nowMs int64) (model.QueueEntry, bool) {
	pool := make([]model.QueueEntry, 0, len(candidates))
	for _, c := range candidates {
		if c.UserID != entry.UserID {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return model.QueueEntry{}, false
	}

	if broad {
		sort.Slice(pool, func(i, j int) bool { return pool[i].JoinedAt < pool[j].JoinedAt })
		return pool[0], true
	}

	rangeWidth := narrowRangeDefault
	if len(pool) > largeQueueThreshold {
		rangeWidth = narrowRangeLarge
	}
	if nowMs-entry.JoinedAt > waitBeforeDoubling.Milliseconds() {
		rangeWidth *= 2
	}

	best := -1
	bestDelta := rangeWidth + 1
	for i, c := range pool {
		delta := c.Rating - entry.Rating
		if delta < 0 {
			delta = -delta
		}
		if delta <= rangeWidth && delta < bestDelta {
			best, bestDelta = i, delta
		}
	}
	if best < 0 {
		return model.QueueEntry{}, false
	}
	return pool[best], true
}

// formMatch performs the atomic on-match sequence from spec.md §4.M: pull
// both entries out of their queues, clear side-data, set cooldowns,
// resolve player records, create the session, notify the Tournament
// Manager if either side was tournament-origin, and notify both
// connections.
func (mm *Matchmaker) formMatch(ctx context.Context, a, b model.QueueEntry, source string) (*model.Session, error) {
	mm.queueMu.Lock()
	delete(mm.lastQueue, a.UserID)
	delete(mm.lastQueue, b.UserID)
	mm.queueMu.Unlock()

	mm.store.RemoveWaiter(ctx, a.Variant, a.Subvariant, a.UserID)
	mm.store.RemoveWaiter(ctx, b.Variant, b.Subvariant, b.UserID)
	mm.setCooldown(a.UserID)
	mm.setCooldown(b.UserID)

	whiteRec, err := mm.users.Resolve(ctx, a.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", a.UserID, err)
	}
	blackRec, err := mm.users.Resolve(ctx, b.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", b.UserID, err)
	}

	tc, ok := variant.TimeControlFor(a.Variant, a.Subvariant)
	if !ok {
		return nil, fmt.Errorf("no time control registered for %s/%s", a.Variant, a.Subvariant)
	}
	fen, decaySub := mm.startingFEN(a.Variant, a.Subvariant)

	now := mm.nowFn()
	session := &model.Session{
		ID:           uuid.New().String(),
		Variant:      a.Variant,
		Subvariant:   a.Subvariant,
		Players:      model.PlayersByColor{White: whiteRec, Black: blackRec},
		Status:       model.StatusActive,
		FEN:          fen,
		ActiveColor:  model.White,
		Clocks:       model.ClocksByColor{White: tc.BaseTimeMs, Black: tc.BaseTimeMs},
		TimeControl:  tc,
		CreatedAt:    now,
		LastActivity: now,
	}
	initVariantState(session, decaySub)
	if a.TournamentID != "" {
		session.TournamentID = a.TournamentID
	} else if b.TournamentID != "" {
		session.TournamentID = b.TournamentID
	}

	if err := mm.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create matched session: %w", err)
	}

	if mm.metrics != nil {
		mm.metrics.MatchesFormedTotal.WithLabelValues(string(a.Variant), string(a.Subvariant)).Inc()
		mm.metrics.ActiveSessions.WithLabelValues(string(a.Variant), string(a.Subvariant)).Inc()
	}
	if mm.tourney != nil {
		if a.TournamentID != "" {
			mm.tourney.OnMatched(ctx, a.UserID, session.ID)
		}
		if b.TournamentID != "" {
			mm.tourney.OnMatched(ctx, b.UserID, session.ID)
		}
	}
	if mm.notifier != nil {
		mm.notifier.NotifyMatched(a.UserID, session, source)
		mm.notifier.NotifyMatched(b.UserID, session, source)
	}
	if mm.log != nil {
		mm.log.Info("match formed", slog.String("session_id", session.ID),
			slog.String("white", a.UserID), slog.String("black", b.UserID),
			slog.String("variant", string(a.Variant)))
	}
	return session, nil
}

// FormMatch is the entry point the Tournament Manager uses for its own
// matching policy steps (regular-waiter fallback): it already knows both
// sides and just needs the shared on-match sequence.
func (mm *Matchmaker) FormMatch(ctx context.Context, a, b model.QueueEntry) (*model.Session, error) {
	mm.matchMu.Lock()
	defer mm.matchMu.Unlock()
	return mm.formMatch(ctx, a, b, "tournament")
}

// ListQueue exposes the regular waiting set for a (variant, subvariant) so
// the Tournament Manager can scan it per spec.md §4.T matching step (2)/(3).
func (mm *Matchmaker) ListQueue(ctx context.Context, v model.Variant, sv model.Subvariant) ([]model.QueueEntry, error) {
	return mm.store.ListQueue(ctx, v, sv)
}

const standardInitialFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// startingFEN returns the starting position for (v, sv): the standard
// initial position for every variant except six-pointer, which starts
// from a uniformly-chosen pre-vetted balanced mid-game FEN (spec.md
// §4.E.4, §9 Design Notes). Each candidate is re-verified legal and
// non-terminal before use; a pool entry that somehow fails that check is
// resampled, and the standard initial position is the final fallback if
// every candidate fails.
func (mm *Matchmaker) startingFEN(v model.Variant, sv model.Subvariant) (string, model.Subvariant) {
	if v != model.VariantSixPointer {
		return standardInitialFEN, sv
	}
	pool := variant.SixPointerStartingFENs
	tried := make(map[int]bool, len(pool))
	for len(tried) < len(pool) {
		idx := mm.randFn(len(pool))
		if tried[idx] {
			continue
		}
		tried[idx] = true
		candidate := pool[idx]
		status, err := position.Terminal(candidate)
		if err != nil || status.Any() {
			continue
		}
		return candidate, sv
	}
	if mm.log != nil {
		mm.log.Warn("no legal non-terminal six-pointer starting FEN found, falling back to standard initial position")
	}
	return standardInitialFEN, sv
}

// initVariantState allocates the variant-specific sub-state a freshly
// created session needs before its first action can be validated.
func initVariantState(s *model.Session, _ model.Subvariant) {
	switch s.Variant {
	case model.VariantCrazyhouse:
		s.Crazyhouse = &model.CrazyhouseState{}
		if s.Subvariant == model.SubvariantCzWithTimer {
			s.Crazyhouse.DropTimers = &model.DropTimers{}
			s.Crazyhouse.FrozenPieces = &model.FrozenPiecesByColor{}
		}
	case model.VariantDecay:
		s.Decay = &model.DecayState{}
	case model.VariantSixPointer:
		s.SixPointer = &model.SixPointerState{MaxMoves: model.SixPointerMaxMoves}
	}
}

// StartIdleSweep periodically evicts waiters who have been queued longer
// than the configured idle-evict duration, per spec.md §4.M "Idle sweep".
func (mm *Matchmaker) StartIdleSweep(ctx context.Context) {
	ticker := time.NewTicker(mm.tuning.IdleSweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mm.sweepIdle(ctx)
			}
		}
	}()
}

func (mm *Matchmaker) sweepIdle(ctx context.Context) {
	cutoff := mm.nowFn() - mm.tuning.IdleEvictAfter.Milliseconds()
	for _, pair := range model.SupportedAssignments {
		entries, err := mm.store.ListQueue(ctx, pair.Variant, pair.Subvariant)
		if err != nil {
			if mm.log != nil {
				mm.log.Warn("idle sweep list queue failed", slog.String("error", err.Error()))
			}
			continue
		}
		for _, e := range entries {
			if e.JoinedAt < cutoff {
				mm.store.RemoveWaiter(ctx, e.Variant, e.Subvariant, e.UserID)
				mm.queueMu.Lock()
				delete(mm.lastQueue, e.UserID)
				mm.queueMu.Unlock()
				if mm.log != nil {
					mm.log.Info("evicted idle waiter", slog.String("user_id", e.UserID), slog.String("variant", string(e.Variant)))
				}
			}
		}
	}
}
