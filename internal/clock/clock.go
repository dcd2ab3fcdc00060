// Package clock is the Clock Service (spec.md §4.C): pure functions that,
// given a session and a wall-clock timestamp, project the current value of
// every timer in play without mutating the stored state. It is consulted
// both by the Gateway (to answer "what are the current times?" queries)
// and internally by the Variant Engines' common preamble.
package clock

import "chessvariants-server/internal/model"

// Projection is the full set of projected timer values for a session at a
// given instant.
type Projection struct {
	MainClocks model.ClocksByColor

	// Crazyhouse withTimer only: projected remaining time for each color's
	// head-of-pocket piece, keyed by piece id.
	DropTimerRemaining map[string]int64

	// Decay only: projected remaining time for each color's active decay
	// timer (queen or major), zero if none active.
	QueenDecayRemaining model.IntByColor64
	MajorDecayRemaining model.IntByColor64
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ProjectMainClocks returns {white, black} main clock values at nowMs,
// given the session's stored clocks and whose turn started at
// turnStartTimestamp. Only the mover's clock is running; the session's
// stored value for the non-mover is already authoritative. Clamped to
// [0, baseTime] per spec.md §4.C.
func ProjectMainClocks(s *model.Session, nowMs int64) model.ClocksByColor {
	out := s.Clocks
	if !s.GameStarted || s.Status == model.StatusFinished {
		return out
	}
	elapsed := nowMs - s.TurnStartTimestamp
	if elapsed < 0 {
		elapsed = 0
	}
	mover := s.ActiveColor
	projected := clamp(out.Get(mover)-elapsed, 0, s.TimeControl.BaseTimeMs)
	out.Set(mover, projected)
	return out
}

// ProjectDropTimers projects Crazyhouse withTimer's per-piece drop timer
// remaining time, honoring the paused-vs-running semantics of spec.md
// §4.E.3: only the head-of-pocket piece for the player on move has a
// running (unpaused) timer; every other piece's remaining time is whatever
// was last stored (paused pieces carry their authoritative remainingTime;
// non-head pieces have not yet started).
func ProjectDropTimers(s *model.Session, nowMs int64) map[string]int64 {
	out := map[string]int64{}
	if s.Crazyhouse == nil || s.Crazyhouse.DropTimers == nil {
		return out
	}
	for _, c := range []model.Color{model.White, model.Black} {
		pocket := s.Crazyhouse.PocketedPieces.Get(c)
		if len(pocket) == 0 {
			continue
		}
		head := pocket[0]
		if head.Type == model.Pawn {
			continue
		}
		if c == s.ActiveColor {
			expiration, ok := s.Crazyhouse.DropTimers.Get(c)[head.ID]
			if !ok {
				continue
			}
			out[head.ID] = clamp(expiration-nowMs, 0, 10_000)
		} else if head.TimerPaused {
			out[head.ID] = clamp(head.RemainingTime, 0, 10_000)
		}
	}
	return out
}

// ProjectDecayTimers projects Decay's queen and major-piece timers,
// subtracting elapsed on-move time from whichever is active for the
// mover, per spec.md §4.E.5 "Aging".
func ProjectDecayTimers(s *model.Session, nowMs int64) (queen, major model.IntByColor64) {
	if s.Decay == nil {
		return
	}
	elapsed := nowMs - s.TurnStartTimestamp
	if elapsed < 0 {
		elapsed = 0
	}
	for _, c := range []model.Color{model.White, model.Black} {
		qt := s.Decay.QueenDecayTimers.Get(c)
		qRemaining := qt.TimeRemaining
		if qt.Active && !qt.Frozen && c == s.ActiveColor {
			qRemaining = clamp(qt.TimeRemaining-elapsed, 0, model.QueenDecayDurationMs)
		}
		queen.Set(c, qRemaining)

		mt := s.Decay.MajorPieceDecayTimers.Get(c)
		mRemaining := mt.TimeRemaining
		if mt.Active && !mt.Frozen && c == s.ActiveColor {
			mRemaining = clamp(mt.TimeRemaining-elapsed, 0, model.MajorDecayDurationMs)
		}
		major.Set(c, mRemaining)
	}
	return queen, major
}

// Project returns the full timer projection for a session at nowMs.
func Project(s *model.Session, nowMs int64) Projection {
	queen, major := ProjectDecayTimers(s, nowMs)
	return Projection{
		MainClocks:          ProjectMainClocks(s, nowMs),
		DropTimerRemaining:  ProjectDropTimers(s, nowMs),
		QueenDecayRemaining: queen,
		MajorDecayRemaining: major,
	}
}
