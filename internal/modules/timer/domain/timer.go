package domain

import (
	"sync"
	"time"

	"studyrun/internal/platform/clock"
)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

type PauseReason string

const (
	PauseManual     PauseReason = "manual"
	PauseVisibility PauseReason = "visibility"
	PauseBlur       PauseReason = "blur"
	PauseInactivity PauseReason = "inactivity"
)

const (
	TickInterval      = time.Second
	ActiveWindow      = 5 * time.Second
	InactivityTimeout = 120 * time.Second
)

// TimerState is the persisted view of one timer.
type TimerState struct {
	State               State         `json:"state"`
	StartTime           time.Time     `json:"start_time"`
	EndTime             *time.Time    `json:"end_time,omitempty"`
	AccumulatedActive   time.Duration `json:"accumulated_active"`
	AccumulatedPaused   time.Duration `json:"accumulated_paused"`
	AccumulatedInactive time.Duration `json:"accumulated_inactive"`
	PauseReason         PauseReason   `json:"pause_reason,omitempty"`
	PauseCount          int           `json:"pause_count"`
	PauseStartedAt      time.Time     `json:"pause_started_at"`
	LastTickTime        time.Time     `json:"last_tick_time"`
	LastActivityTime    time.Time     `json:"last_activity_time"`
}

// Timer tracks one session-level or task-level timer. Transitions that are not
// valid from the current state are ignored and reported as false.
type Timer struct {
	mu           sync.Mutex
	name         string
	clock        clock.Clock
	sched        clock.Scheduler
	st           TimerState
	cancel       clock.Cancel
	onInactivity func()
}

// New creates an idle timer. A nil scheduler means Tick is driven by the caller.
func New(name string, clk clock.Clock, sched clock.Scheduler) *Timer {
	return &Timer{name: name, clock: clk, sched: sched, st: TimerState{State: StateIdle}}
}

func (t *Timer) Name() string {
	return t.name
}

// OnInactivity registers a callback fired once per automatic inactivity pause.
// It runs outside the timer lock.
func (t *Timer) OnInactivity(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onInactivity = fn
}

func (t *Timer) Start() bool {
	t.mu.Lock()
	if t.st.State != StateIdle {
		t.mu.Unlock()
		return false
	}
	now := t.clock.Now()
	t.st = TimerState{
		State:            StateRunning,
		StartTime:        now,
		LastTickTime:     now,
		LastActivityTime: now,
	}
	// Registered under the lock so a concurrent Stop always sees the cancel.
	// Schedulers never invoke the callback synchronously.
	if t.sched != nil {
		t.cancel = t.sched.Every(TickInterval, t.Tick)
	}
	t.mu.Unlock()
	return true
}

func (t *Timer) Tick() {
	t.mu.Lock()
	now := t.clock.Now()
	elapsed := now.Sub(t.st.LastTickTime)
	if elapsed < 0 {
		elapsed = 0
	}
	timedOut := false
	switch t.st.State {
	case StatePaused:
		if t.st.PauseReason == PauseInactivity {
			t.st.AccumulatedInactive += elapsed
		}
		t.st.LastTickTime = now
	case StateRunning:
		t.st.LastTickTime = now
		since := now.Sub(t.st.LastActivityTime)
		switch {
		case since < ActiveWindow:
			// A late tick after a frozen tab can only vouch for the recency window.
			if elapsed > ActiveWindow {
				elapsed = ActiveWindow
			}
			t.st.AccumulatedActive += elapsed
		case since >= InactivityTimeout:
			t.pauseLocked(now, PauseInactivity)
			timedOut = true
		}
	}
	fn := t.onInactivity
	t.mu.Unlock()

	if timedOut && fn != nil {
		fn()
	}
}

func (t *Timer) RecordActivity() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.State != StateRunning && t.st.State != StatePaused {
		return false
	}
	now := t.clock.Now()
	t.st.LastActivityTime = now
	if t.st.State == StatePaused && t.st.PauseReason == PauseInactivity {
		t.resumeLocked(now)
		return true
	}
	return false
}

func (t *Timer) Pause(reason PauseReason) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.State != StateRunning {
		return false
	}
	t.pauseLocked(t.clock.Now(), reason)
	return true
}

func (t *Timer) Resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.State != StatePaused {
		return false
	}
	t.resumeLocked(t.clock.Now())
	return true
}

func (t *Timer) Stop() bool {
	t.mu.Lock()
	if t.st.State != StateRunning && t.st.State != StatePaused {
		t.mu.Unlock()
		return false
	}
	now := t.clock.Now()
	if t.st.State == StatePaused && t.st.PauseReason == PauseManual {
		t.st.AccumulatedPaused += positive(now.Sub(t.st.PauseStartedAt))
	}
	t.st.State = StateStopped
	t.st.PauseReason = ""
	t.st.PauseStartedAt = time.Time{}
	t.st.EndTime = &now
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

// State returns the lifecycle state and, when paused, the reason.
func (t *Timer) State() (State, PauseReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st.State, t.st.PauseReason
}

func (t *Timer) Snapshot() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.st
	if t.st.EndTime != nil {
		end := *t.st.EndTime
		out.EndTime = &end
	}
	return out
}

func (t *Timer) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.State == StateIdle {
		return Summary{}
	}
	end := t.clock.Now()
	if t.st.EndTime != nil {
		end = *t.st.EndTime
	}
	paused := t.st.AccumulatedPaused
	if t.st.State == StatePaused && t.st.PauseReason == PauseManual {
		paused += positive(end.Sub(t.st.PauseStartedAt))
	}
	return newSummary(positive(end.Sub(t.st.StartTime)), t.st.AccumulatedActive, paused, t.st.AccumulatedInactive, t.st.PauseCount)
}

func (t *Timer) pauseLocked(now time.Time, reason PauseReason) {
	t.st.State = StatePaused
	t.st.PauseReason = reason
	t.st.PauseStartedAt = now
	t.st.PauseCount++
}

// resumeLocked credits manual pauses only; other pause reasons are accounted
// by the tick logic.
func (t *Timer) resumeLocked(now time.Time) {
	if t.st.PauseReason == PauseManual {
		t.st.AccumulatedPaused += positive(now.Sub(t.st.PauseStartedAt))
	}
	t.st.State = StateRunning
	t.st.PauseReason = ""
	t.st.PauseStartedAt = time.Time{}
	t.st.LastTickTime = now
}

func positive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
