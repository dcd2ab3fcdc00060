// Package dispatcher serializes every action touching a given session
// through a single goroutine, so two moves for the same game are never
// validated against the same stale state concurrently. Sessions are
// otherwise fully independent, so the Dispatcher runs one lane per active
// session rather than one global loop: the per-key serialized-consumer
// idiom, generalized from a single channel to a map of them.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chessvariants-server/internal/metrics"
	"chessvariants-server/internal/model"
	"chessvariants-server/internal/variant"
)

// Store is the subset of the Session Store the Dispatcher depends on. The
// full store additionally knows how to create sessions and archive
// finished ones; the Dispatcher only needs to load the latest committed
// state and commit the result of a validated action.
type Store interface {
	Load(ctx context.Context, sessionID string) (*model.Session, error)
	Commit(ctx context.Context, session *model.Session) error
}

// Broadcaster is notified of every outcome so the Gateway can fan it out
// to connected clients. Implementations must not block.
type Broadcaster interface {
	BroadcastOutcome(sessionID string, outcome model.Outcome)
}

// lifecycleKind tags a session-lifecycle request: one that ends or offers
// to end a game without going through a Variant Engine, since resignation
// and draw agreement apply identically across every variant (spec.md §4.G
// "game:resign", "game:offerDraw", "game:acceptDraw", "game:declineDraw").
type lifecycleKind string

const (
	lifecycleNone        lifecycleKind = ""
	lifecycleResign      lifecycleKind = "resign"
	lifecycleOfferDraw   lifecycleKind = "offerDraw"
	lifecycleAcceptDraw  lifecycleKind = "acceptDraw"
	lifecycleDeclineDraw lifecycleKind = "declineDraw"
)

// job is one request working its way through a session's lane.
type job struct {
	userID    string
	action    model.Action
	lifecycle lifecycleKind
	replyCh   chan result
}

type result struct {
	outcome model.Outcome
	err     error
}

// lane is the per-session goroutine and its inbox.
type lane struct {
	sessionID string
	inbox     chan job
	lastUsed  int64 // unix ms, updated after each job; the reaper goes by the idle timer, not this field
}

// Dispatcher owns the set of live per-session lanes.
type Dispatcher struct {
	store   Store
	bcast   Broadcaster
	metrics *metrics.Metrics
	log     *slog.Logger

	mu    sync.Mutex
	lanes map[string]*lane

	idleTimeout time.Duration
	nowFn       func() int64
}

// New constructs a Dispatcher. idleTimeout controls how long an unused
// per-session lane is kept alive before its goroutine exits; the lane is
// recreated transparently on the next action for that session.
func New(store Store, bcast Broadcaster, m *metrics.Metrics, log *slog.Logger, idleTimeout time.Duration) *Dispatcher {
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	return &Dispatcher{
		store:       store,
		bcast:       bcast,
		metrics:     m,
		log:         log,
		lanes:       make(map[string]*lane),
		idleTimeout: idleTimeout,
		nowFn:       func() int64 { return time.Now().UnixMilli() },
	}
}

// Dispatch submits an action for sessionID and blocks until the session's
// lane has validated and (if applicable) committed it. Safe to call
// concurrently for any number of distinct sessions; actions for the same
// session are processed strictly one at a time, in submission order.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, userID string, action model.Action) (model.Outcome, error) {
	l := d.laneFor(sessionID)
	replyCh := make(chan result, 1)
	select {
	case l.inbox <- job{userID: userID, action: action, replyCh: replyCh}:
	case <-ctx.Done():
		return model.Outcome{}, ctx.Err()
	}
	select {
	case r := <-replyCh:
		return r.outcome, r.err
	case <-ctx.Done():
		return model.Outcome{}, ctx.Err()
	}
}

// Resign ends the session in a loss for userID, a win for their opponent.
func (d *Dispatcher) Resign(ctx context.Context, sessionID, userID string) (model.Outcome, error) {
	return d.dispatchLifecycle(ctx, sessionID, userID, lifecycleResign)
}

// OfferDraw records userID's draw offer for their opponent to respond to.
func (d *Dispatcher) OfferDraw(ctx context.Context, sessionID, userID string) (model.Outcome, error) {
	return d.dispatchLifecycle(ctx, sessionID, userID, lifecycleOfferDraw)
}

// AcceptDraw ends the session as a draw if the opponent has an outstanding
// offer.
func (d *Dispatcher) AcceptDraw(ctx context.Context, sessionID, userID string) (model.Outcome, error) {
	return d.dispatchLifecycle(ctx, sessionID, userID, lifecycleAcceptDraw)
}

// DeclineDraw clears an outstanding draw offer without ending the session.
func (d *Dispatcher) DeclineDraw(ctx context.Context, sessionID, userID string) (model.Outcome, error) {
	return d.dispatchLifecycle(ctx, sessionID, userID, lifecycleDeclineDraw)
}

func (d *Dispatcher) dispatchLifecycle(ctx context.Context, sessionID, userID string, kind lifecycleKind) (model.Outcome, error) {
	l := d.laneFor(sessionID)
	replyCh := make(chan result, 1)
	select {
	case l.inbox <- job{userID: userID, lifecycle: kind, replyCh: replyCh}:
	case <-ctx.Done():
		return model.Outcome{}, ctx.Err()
	}
	select {
	case r := <-replyCh:
		return r.outcome, r.err
	case <-ctx.Done():
		return model.Outcome{}, ctx.Err()
	}
}

func (d *Dispatcher) laneFor(sessionID string) *lane {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.lanes[sessionID]; ok {
		return l
	}
	l := &lane{sessionID: sessionID, inbox: make(chan job, 32), lastUsed: d.nowFn()}
	d.lanes[sessionID] = l
	if d.metrics != nil {
		d.metrics.SessionLaneLen.Set(float64(len(d.lanes)))
	}
	go d.runLane(l)
	return l
}

// runLane processes jobs for one session strictly sequentially until the
// lane is reaped for inactivity. Mirrors the single-consumer select loop
// idiom used elsewhere in this codebase for serialized stream processing,
// sharded per session instead of run as one global loop.
func (d *Dispatcher) runLane(l *lane) {
	idle := time.NewTimer(d.idleTimeout)
	defer idle.Stop()
	for {
		select {
		case j, ok := <-l.inbox:
			if !ok {
				return
			}
			if !idle.Stop() {
				<-idle.C
			}
			d.handle(l.sessionID, j)
			l.lastUsed = d.nowFn()
			idle.Reset(d.idleTimeout)
		case <-idle.C:
			d.mu.Lock()
			// Drop the lane only if nothing queued up in the race window.
			if len(l.inbox) == 0 {
				delete(d.lanes, l.sessionID)
				if d.metrics != nil {
					d.metrics.SessionLaneLen.Set(float64(len(d.lanes)))
				}
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(d.idleTimeout)
		}
	}
}

func (d *Dispatcher) handle(sessionID string, j job) {
	start := time.Now()
	ctx := context.Background()

	session, err := d.store.Load(ctx, sessionID)
	if err != nil {
		j.replyCh <- result{err: fmt.Errorf("load session %s: %w", sessionID, err)}
		return
	}
	if session == nil {
		j.replyCh <- result{outcome: model.Rejected(model.CodeInvalidState, "no such session")}
		return
	}

	playerColor := session.Players.ColorOf(j.userID)
	if playerColor == "" {
		j.replyCh <- result{outcome: model.Rejected(model.CodeInvalidPlayer, "caller is not a participant in this session")}
		return
	}

	if j.lifecycle != lifecycleNone {
		d.handleLifecycle(ctx, sessionID, session, playerColor, j)
		return
	}

	eng, ok := variant.Lookup(session.Variant, session.Subvariant)
	if !ok {
		j.replyCh <- result{outcome: model.Rejected(model.CodeInvalidInput, "unrecognized variant/subvariant")}
		return
	}

	j.action.Timestamp = d.nowFn()
	outcome := eng.ValidateAndApply(session, j.action, playerColor, j.action.Timestamp)

	if outcome.Kind != model.OutcomeRejected {
		// A pending draw offer lapses the moment either side takes any
		// further game action.
		outcome.NewState.PendingDrawOffer = ""
		if err := d.store.Commit(ctx, outcome.NewState); err != nil {
			j.replyCh <- result{err: fmt.Errorf("commit session %s: %w", sessionID, err)}
			return
		}
	}

	d.recordMetrics(session, outcome, time.Since(start))
	d.recordDecayFreeze(session, outcome)
	if d.log != nil {
		d.log.Info("action dispatched",
			slog.String("session_id", sessionID),
			slog.String("user_id", j.userID),
			slog.String("kind", string(j.action.Kind)),
			slog.String("outcome", string(outcome.Kind)),
		)
	}
	if d.bcast != nil {
		d.bcast.BroadcastOutcome(sessionID, outcome)
	}

	j.replyCh <- result{outcome: outcome}
}

// handleLifecycle applies a resign/offerDraw/acceptDraw/declineDraw
// request. These end or modify a session without involving a Variant
// Engine, since they apply identically regardless of variant.
func (d *Dispatcher) handleLifecycle(ctx context.Context, sessionID string, session *model.Session, by model.Color, j job) {
	if session.Status == model.StatusFinished {
		j.replyCh <- result{outcome: model.Rejected(model.CodeGameEnded, "session has already finished")}
		return
	}

	now := d.nowFn()
	next := session.Clone()
	var outcome model.Outcome

	switch j.lifecycle {
	case lifecycleResign:
		next.Status = model.StatusFinished
		next.Result = &model.Result{Result: model.ResultResignation, Winner: by.Opposite(), EndedAt: now}
		outcome = model.Applied(next, nil, true)

	case lifecycleOfferDraw:
		next.PendingDrawOffer = by
		outcome = model.Applied(next, nil, false)

	case lifecycleAcceptDraw:
		if session.PendingDrawOffer == "" || session.PendingDrawOffer == by {
			j.replyCh <- result{outcome: model.Rejected(model.CodeInvalidState, "no pending draw offer from the opponent")}
			return
		}
		next.PendingDrawOffer = ""
		next.Status = model.StatusFinished
		next.Result = &model.Result{Result: model.ResultDrawAgreed, EndedAt: now}
		outcome = model.Applied(next, nil, true)

	case lifecycleDeclineDraw:
		if session.PendingDrawOffer == "" || session.PendingDrawOffer == by {
			j.replyCh <- result{outcome: model.Rejected(model.CodeInvalidState, "no pending draw offer from the opponent")}
			return
		}
		next.PendingDrawOffer = ""
		outcome = model.Applied(next, nil, false)
	}

	if err := d.store.Commit(ctx, next); err != nil {
		j.replyCh <- result{err: fmt.Errorf("commit session %s: %w", sessionID, err)}
		return
	}
	if d.metrics != nil {
		d.metrics.ActionsTotal.WithLabelValues(string(session.Variant), string(outcome.Kind)).Inc()
	}
	if d.log != nil {
		d.log.Info("lifecycle action dispatched",
			slog.String("session_id", sessionID),
			slog.String("user_id", j.userID),
			slog.String("lifecycle", string(j.lifecycle)),
		)
	}
	if d.bcast != nil {
		d.bcast.BroadcastOutcome(sessionID, outcome)
	}
	j.replyCh <- result{outcome: outcome}
}

func (d *Dispatcher) recordMetrics(session *model.Session, outcome model.Outcome, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	d.metrics.ActionDur.Observe(elapsed.Seconds())
	d.metrics.ActionsTotal.WithLabelValues(string(session.Variant), string(outcome.Kind)).Inc()

	switch outcome.Code {
	case model.CodeDropExpired:
		d.metrics.DropTimerExpiredTotal.Inc()
	case model.CodeTimeoutPenalty:
		d.metrics.TimeoutPenaltiesTotal.Inc()
	case model.CodeTimeout:
		d.metrics.MainClockTimeoutsTotal.WithLabelValues(string(session.Variant)).Inc()
	}
}

// recordDecayFreeze counts newly frozen squares this action produced, by
// diffing against the pre-action session (ValidateAndApply never mutates
// its input in place, so session here is still the prior committed state).
func (d *Dispatcher) recordDecayFreeze(before *model.Session, outcome model.Outcome) {
	if d.metrics == nil || before.Variant != model.VariantDecay || outcome.NewState == nil {
		return
	}
	if before.Decay == nil || outcome.NewState.Decay == nil {
		return
	}
	delta := countFrozen(outcome.NewState.Decay) - countFrozen(before.Decay)
	if delta > 0 {
		d.metrics.DecayFreezeTotal.Add(float64(delta))
	}
}

func countFrozen(d *model.DecayState) int {
	return len(d.FrozenPieces.Get(model.White)) + len(d.FrozenPieces.Get(model.Black))
}

// LaneCount reports the number of currently live per-session lanes.
func (d *Dispatcher) LaneCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}
