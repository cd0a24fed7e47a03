package domain_test

import (
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"studyrun/internal/modules/timer/domain"
	"studyrun/internal/platform/clock"
)

var t0 = time.Date(2026, 4, 7, 13, 0, 0, 0, time.UTC)

func newRunning(t *testing.T) (*domain.Timer, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	tm := domain.New("task", clk, clk)
	if !tm.Start() {
		t.Fatalf("start from idle must succeed")
	}
	return tm, clk
}

func step(clk *clock.Manual, seconds int) {
	for i := 0; i < seconds; i++ {
		clk.Advance(time.Second)
	}
}

func TestInactivityTimeoutAfterLastActivity(t *testing.T) {
	t.Parallel()
	tm, clk := newRunning(t)
	timeouts := 0
	tm.OnInactivity(func() { timeouts++ })

	for s := 1; s <= 135; s++ {
		clk.Advance(time.Second)
		if s == 10 {
			tm.RecordActivity()
		}
		state, reason := tm.State()
		switch {
		case s == 129 && state != domain.StateRunning:
			t.Fatalf("expected running at 119s since activity, got %s", state)
		case s == 130:
			if state != domain.StatePaused || reason != domain.PauseInactivity {
				t.Fatalf("expected paused(inactivity) at 120s since activity, got %s(%s)", state, reason)
			}
			if got := tm.Snapshot().AccumulatedInactive; got != 0 {
				t.Fatalf("no inactive time before the timeout tick, got %s", got)
			}
		}
	}

	snap := tm.Snapshot()
	if snap.AccumulatedInactive != 5*time.Second {
		t.Fatalf("expected 5s inactive after timeout, got %s", snap.AccumulatedInactive)
	}
	if snap.AccumulatedActive != 8*time.Second {
		t.Fatalf("expected 8s active inside recency windows, got %s", snap.AccumulatedActive)
	}
	if snap.PauseCount != 1 || timeouts != 1 {
		t.Fatalf("expected one inactivity pause and callback, got count=%d callbacks=%d", snap.PauseCount, timeouts)
	}

	if !tm.RecordActivity() {
		t.Fatalf("activity must resume from inactivity")
	}
	if state, _ := tm.State(); state != domain.StateRunning {
		t.Fatalf("expected running after activity, got %s", state)
	}
	assertPartition(t, tm.Summary())
}

func TestManualPauseAccruesToPausedOnly(t *testing.T) {
	t.Parallel()
	tm, clk := newRunning(t)
	for s := 0; s < 5; s++ {
		clk.Advance(time.Second)
		tm.RecordActivity()
	}
	before := tm.Snapshot()

	if !tm.Pause(domain.PauseManual) {
		t.Fatalf("pause from running must succeed")
	}
	if tm.Pause(domain.PauseManual) || tm.Pause(domain.PauseBlur) {
		t.Fatalf("pause while paused must be a no-op")
	}
	step(clk, 10)
	if !tm.Resume() {
		t.Fatalf("resume from paused must succeed")
	}

	after := tm.Snapshot()
	if got := after.AccumulatedPaused - before.AccumulatedPaused; got != 10*time.Second {
		t.Fatalf("expected exactly 10s paused, got %s", got)
	}
	if after.AccumulatedActive != before.AccumulatedActive || after.AccumulatedInactive != before.AccumulatedInactive {
		t.Fatalf("pause leaked into other buckets: before=%+v after=%+v", before, after)
	}
	if after.PauseCount != 1 {
		t.Fatalf("expected pause count 1, got %d", after.PauseCount)
	}
}

func TestVisibilityPauseIsNotCreditedToPaused(t *testing.T) {
	t.Parallel()
	tm, clk := newRunning(t)
	tm.Pause(domain.PauseVisibility)
	step(clk, 30)
	tm.Resume()
	s := tm.Summary()
	if s.Paused != 0 || s.Inactive != 0 {
		t.Fatalf("visibility pause must stay unaccounted, got %+v", s)
	}
	if s.Unaccounted() != 30*time.Second {
		t.Fatalf("expected 30s unaccounted, got %s", s.Unaccounted())
	}
}

func TestStopFlushesOpenManualPauseAndFreezes(t *testing.T) {
	t.Parallel()
	tm, clk := newRunning(t)
	step(clk, 3)
	tm.Pause(domain.PauseManual)
	step(clk, 7)
	if got := tm.Summary().Paused; got != 7*time.Second {
		t.Fatalf("summary must include open manual pause, got %s", got)
	}
	if !tm.Stop() {
		t.Fatalf("stop from paused must succeed")
	}
	frozen := tm.Summary()
	if frozen.Paused != 7*time.Second || frozen.Elapsed != 10*time.Second {
		t.Fatalf("unexpected frozen summary %+v", frozen)
	}
	if clk.Pending() != 0 {
		t.Fatalf("stop must cancel ticking, %d registrations left", clk.Pending())
	}

	step(clk, 60)
	if tm.Stop() || tm.Pause(domain.PauseManual) || tm.Resume() || tm.RecordActivity() || tm.Start() {
		t.Fatalf("stopped timer must ignore every transition")
	}
	tm.Tick()
	if got := tm.Summary(); got != frozen {
		t.Fatalf("summary changed after stop: %+v vs %+v", got, frozen)
	}
}

func TestIdleTimerIgnoresTransitions(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(t0)
	tm := domain.New("session", clk, nil)
	if tm.Pause(domain.PauseManual) || tm.Resume() || tm.Stop() || tm.RecordActivity() {
		t.Fatalf("idle timer must ignore transitions")
	}
	if tm.Summary() != (domain.Summary{}) {
		t.Fatalf("idle summary must be zero")
	}
	if !tm.Start() || tm.Start() {
		t.Fatalf("start must only succeed once")
	}
}

func TestFrozenTabCannotInflateActive(t *testing.T) {
	t.Parallel()
	tm, clk := newRunning(t)
	clk.Set(t0.Add(10 * time.Minute))
	tm.RecordActivity()
	clk.Advance(time.Second)
	if got := tm.Snapshot().AccumulatedActive; got > domain.ActiveWindow {
		t.Fatalf("late tick credited %s active", got)
	}
}

func TestSummaryScalesOvershootProportionally(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(t0)
	tm := domain.New("task", clk, nil)
	tm.Start()
	for s := 1; s <= 4; s++ {
		clk.Set(t0.Add(time.Duration(s) * time.Second))
		tm.Tick()
		tm.RecordActivity()
	}
	clk.Set(t0.Add(2 * time.Second))
	s := tm.Summary()
	if s.Elapsed != 2*time.Second {
		t.Fatalf("expected 2s elapsed, got %s", s.Elapsed)
	}
	if s.Active != 2*time.Second {
		t.Fatalf("expected active scaled to 2s, got %s", s.Active)
	}
	assertPartition(t, s)
	if s.ActivityPercent != 100 {
		t.Fatalf("expected 100%% activity, got %.2f", s.ActivityPercent)
	}
}

func TestSummaryAdd(t *testing.T) {
	t.Parallel()
	a := domain.Summary{Elapsed: 10 * time.Second, Active: 5 * time.Second, PauseCount: 1}
	b := domain.Summary{Elapsed: 30 * time.Second, Active: 5 * time.Second, Paused: 10 * time.Second, Inactive: 5 * time.Second, PauseCount: 2}
	sum := a.Add(b)
	if sum.Elapsed != 40*time.Second || sum.Active != 10*time.Second || sum.Paused != 10*time.Second || sum.PauseCount != 3 {
		t.Fatalf("unexpected sum %+v", sum)
	}
	if sum.ActivityPercent != 25 {
		t.Fatalf("expected 25%% activity, got %.2f", sum.ActivityPercent)
	}
}

// stopOnRegister stops the timer from another goroutine as soon as the tick
// is registered.
type stopOnRegister struct {
	timer    *domain.Timer
	stopped  chan struct{}
	canceled atomic.Int32
}

func (s *stopOnRegister) Every(time.Duration, func()) clock.Cancel {
	go func() {
		s.timer.Stop()
		close(s.stopped)
	}()
	return func() { s.canceled.Add(1) }
}

func TestStopDuringStartCancelsTick(t *testing.T) {
	t.Parallel()
	sched := &stopOnRegister{stopped: make(chan struct{})}
	tm := domain.New("task", clock.NewManual(t0), sched)
	sched.timer = tm
	if !tm.Start() {
		t.Fatalf("start from idle must succeed")
	}
	<-sched.stopped
	if got := sched.canceled.Load(); got != 1 {
		t.Fatalf("expected tick cancelled once, got %d", got)
	}
	if state, _ := tm.State(); state != domain.StateStopped {
		t.Fatalf("expected stopped timer, got %s", state)
	}
}

func TestPartitionHoldsUnderAdversarialSchedules(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(20260407))
	reasons := []domain.PauseReason{domain.PauseManual, domain.PauseVisibility, domain.PauseBlur, domain.PauseInactivity}
	for run := 0; run < 50; run++ {
		clk := clock.NewManual(t0)
		tm := domain.New("task", clk, clk)
		tm.Start()
		now := t0
		for op := 0; op < 300; op++ {
			switch rng.Intn(7) {
			case 0:
				clk.Advance(time.Duration(rng.Intn(4000)) * time.Millisecond)
			case 1:
				tm.RecordActivity()
			case 2:
				tm.Pause(reasons[rng.Intn(len(reasons))])
			case 3:
				tm.Resume()
			case 4:
				tm.Tick()
			case 5:
				now = clk.Now().Add(time.Duration(rng.Intn(600)-200) * time.Second)
				clk.Set(now)
			case 6:
				clk.Advance(time.Duration(rng.Intn(180)) * time.Second)
			}
			assertPartition(t, tm.Summary())
		}
		tm.Stop()
		assertPartition(t, tm.Summary())
	}
}

func assertPartition(t *testing.T, s domain.Summary) {
	t.Helper()
	if s.Active < 0 || s.Paused < 0 || s.Inactive < 0 {
		t.Fatalf("negative bucket in %+v", s)
	}
	if s.Active+s.Paused+s.Inactive > s.Elapsed {
		t.Fatalf("buckets exceed elapsed: %+v", s)
	}
}
