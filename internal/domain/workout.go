package domain

import (
	"errors"
	"sync"
	"time"
)

// SessionState is the lifecycle position of the tracked workout session.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionActive   SessionState = "active"
	SessionPaused   SessionState = "paused"
	SessionFinished SessionState = "finished"
)

// SessionSnapshot is a point-in-time view of the tracked session.
type SessionSnapshot struct {
	State      SessionState `json:"state"`
	StartTime  *time.Time   `json:"start_time,omitempty"`
	Steps      int          `json:"steps"`
	DistanceKm float64      `json:"distance_km"`
}

// Tracker is the single-owner workout session state machine:
// idle -> active -> paused -> finished. A paused session can only be finished.
type Tracker struct {
	mu  sync.Mutex
	now func() time.Time

	state       SessionState
	startTime   time.Time
	baseline    int
	hasBaseline bool
	steps       int
	distanceKm  float64
}

// NewTracker returns an idle tracker. A nil clock defaults to time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now, state: SessionIdle}
}

// Start opens a new session. A session that is active or paused must be
// finished first.
func (t *Tracker) Start() (SessionSnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == SessionActive || t.state == SessionPaused {
		return t.snapshotLocked(), ErrSessionActive
	}
	t.state = SessionActive
	t.startTime = t.now().UTC()
	t.baseline = 0
	t.hasBaseline = false
	t.steps = 0
	t.distanceKm = 0
	return t.snapshotLocked(), nil
}

// RecordStepDelta consumes the device's cumulative step counter. The first
// reading after Start becomes the baseline; later readings below it (a
// counter reset) clamp the session to zero steps.
func (t *Tracker) RecordStepDelta(totalSteps int) (SessionSnapshot, error) {
	if totalSteps < 0 {
		return SessionSnapshot{}, ErrInvalidSteps
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case SessionActive:
	case SessionPaused:
		return t.snapshotLocked(), ErrSessionNotRunning
	default:
		return t.snapshotLocked(), ErrNoActiveSession
	}

	if !t.hasBaseline {
		t.baseline = totalSteps
		t.hasBaseline = true
	}
	steps := totalSteps - t.baseline
	if steps < 0 {
		steps = 0
	}
	t.steps = steps
	t.distanceKm = DistanceForSteps(steps)
	return t.snapshotLocked(), nil
}

// Pause freezes the session's steps and distance.
func (t *Tracker) Pause() (SessionSnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case SessionActive:
		t.state = SessionPaused
		return t.snapshotLocked(), nil
	case SessionPaused:
		return t.snapshotLocked(), ErrSessionNotRunning
	default:
		return t.snapshotLocked(), ErrNoActiveSession
	}
}

// Snapshot returns the current session view.
func (t *Tracker) Snapshot() SessionSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Finish drafts the workout record and hands it to commit while the session
// stays locked, so a second Finish cannot produce a second record. The
// session moves to finished once commit has persisted the record, including
// when only the credit step failed (a *CreditError). Any other commit error
// leaves the session untouched for a retry.
//
// overrideKm replaces the tracked distance and marks the record manual.
func (t *Tracker) Finish(overrideKm *float64, commit func(WorkoutRecord) (WorkoutRecord, error)) (WorkoutRecord, error) {
	if overrideKm != nil && !validDistance(*overrideKm) {
		return WorkoutRecord{}, ErrInvalidDistance
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != SessionActive && t.state != SessionPaused {
		return WorkoutRecord{}, ErrNoActiveSession
	}

	draft := WorkoutRecord{
		StartTime:  t.startTime,
		EndTime:    t.now().UTC(),
		DistanceKm: t.distanceKm,
		Steps:      t.steps,
		Source:     WorkoutSourceSensor,
	}
	if overrideKm != nil {
		draft.DistanceKm = *overrideKm
		draft.Source = WorkoutSourceManual
	}
	if draft.EndTime.Before(draft.StartTime) {
		draft.EndTime = draft.StartTime
	}
	reward := RewardFor(draft.DistanceKm)
	draft.EggsEarned = reward.Eggs
	draft.CandiesEarned = reward.Candies

	record, err := commit(draft)
	if err != nil {
		var creditErr *CreditError
		if !errors.As(err, &creditErr) {
			return WorkoutRecord{}, err
		}
	}
	t.state = SessionFinished
	return record, err
}

func (t *Tracker) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{
		State:      t.state,
		Steps:      t.steps,
		DistanceKm: t.distanceKm,
	}
	if t.state != SessionIdle {
		start := t.startTime
		snap.StartTime = &start
	}
	return snap
}
