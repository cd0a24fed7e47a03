package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	activityout "studyrun/internal/modules/activity/port/out"
	sequencedomain "studyrun/internal/modules/sequence/domain"
	"studyrun/internal/modules/session/domain"
	sessiondto "studyrun/internal/modules/session/dto"
	sessionin "studyrun/internal/modules/session/port/in"
	sessionout "studyrun/internal/modules/session/port/out"
	"studyrun/internal/modules/session/service"
	timerdomain "studyrun/internal/modules/timer/domain"
	"studyrun/internal/platform/audit"
	"studyrun/internal/platform/clock"
	apperrors "studyrun/internal/platform/errors"
	"studyrun/internal/platform/id"
)

type Options struct {
	// Autosave is the interval between background saves of live sessions.
	// Zero disables autosave.
	Autosave time.Duration
	Monitors sessionout.MonitorFactory
	Logger   hclog.Logger
}

// Interactor runs live sessions. Each session owns its timers, monitor and
// autosave job; sessions share nothing but the store.
type Interactor struct {
	store    *service.Store
	clock    clock.Clock
	sched    clock.Scheduler
	monitors sessionout.MonitorFactory
	autosave time.Duration
	log      hclog.Logger

	mu   sync.Mutex
	live map[string]*liveSession
}

func NewInteractor(store *service.Store, clk clock.Clock, sched clock.Scheduler, opts Options) sessionin.Usecase {
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Interactor{
		store:    store,
		clock:    clk,
		sched:    sched,
		monitors: opts.Monitors,
		autosave: opts.Autosave,
		log:      log.Named("session"),
		live:     map[string]*liveSession{},
	}
}

func (i *Interactor) Preview(ctx context.Context, input sessiondto.PreviewInput) (sessiondto.PreviewOutput, error) {
	code := service.NormalizeCode(input.Code)
	if !id.ValidCode(code) {
		return sessiondto.PreviewOutput{}, fmt.Errorf("%w: malformed session code %q", apperrors.ErrInvalidInput, input.Code)
	}
	catalog, err := i.store.Catalog(ctx)
	if err != nil {
		return sessiondto.PreviewOutput{}, err
	}
	device := sequencedomain.ParseDeviceClass(input.DeviceClass)
	seed := sequencedomain.Seed(code)
	return sessiondto.PreviewOutput{
		Code:        code,
		Seed:        seed,
		DeviceClass: string(device),
		Sequence:    sequencedomain.BuildSequence(catalog, device, seed),
	}, nil
}

func (i *Interactor) Create(ctx context.Context, input sessiondto.CreateInput) (sessiondto.SessionOutput, error) {
	device := sequencedomain.DeviceClassFromUserAgent(input.UserAgent)
	if input.DeviceClass != "" {
		device = sequencedomain.ParseDeviceClass(input.DeviceClass)
	}
	snap, err := i.store.Create(ctx, domain.Participant{
		Email:       input.Email,
		Name:        input.Name,
		DeviceClass: device,
		Exemptions:  input.Exemptions,
		Meta:        input.Meta,
	})
	if err != nil {
		return sessiondto.SessionOutput{}, err
	}
	l := i.start(ctx, snap)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outputLocked(), nil
}

// Resume brings a saved session back to life. Time between the last save and
// now is not counted; the previous session time is carried over.
func (i *Interactor) Resume(ctx context.Context, code string) (sessiondto.SessionOutput, error) {
	l, err := i.ensure(ctx, code)
	if err != nil {
		return sessiondto.SessionOutput{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outputLocked(), nil
}

func (i *Interactor) CompleteTask(ctx context.Context, input sessiondto.TaskInput) (sessiondto.SessionOutput, error) {
	return i.finishTask(ctx, input, false)
}

func (i *Interactor) SkipTask(ctx context.Context, input sessiondto.TaskInput) (sessiondto.SessionOutput, error) {
	return i.finishTask(ctx, input, true)
}

func (i *Interactor) finishTask(ctx context.Context, input sessiondto.TaskInput, skip bool) (sessiondto.SessionOutput, error) {
	l, err := i.ensure(ctx, input.Code)
	if err != nil {
		return sessiondto.SessionOutput{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return sessiondto.SessionOutput{}, apperrors.ErrSessionClosed
	}

	task := input.Task
	if task == "" {
		current, ok := l.snap.CurrentTask()
		if !ok {
			return sessiondto.SessionOutput{}, fmt.Errorf("%w: session %s has no remaining tasks", apperrors.ErrInvalidInput, l.code)
		}
		task = current
	}
	spent := timerdomain.Summary{}
	if l.task != nil && l.taskCode == task {
		spent = l.task.Summary()
	}
	l.snap.SessionTime = l.sessionTimeLocked()

	var next domain.Snapshot
	if skip {
		next, err = i.store.SkipTask(ctx, l.snap, task, input.Reason, spent)
	} else {
		next, err = i.store.CompleteTask(ctx, l.snap, task, spent)
	}
	if err != nil {
		return sessiondto.SessionOutput{}, err
	}
	l.snap = next
	if l.task != nil && l.taskCode == task {
		l.task.Stop()
		l.task = nil
		l.taskCode = ""
		l.external = false
	}
	i.startTaskLocked(ctx, l)
	return l.outputLocked(), nil
}

// Pause is the participant's explicit break. Both timers pause with the manual
// reason, replacing any automatic pause already in effect.
func (i *Interactor) Pause(ctx context.Context, code string) (sessiondto.SessionOutput, error) {
	l, err := i.ensure(ctx, code)
	if err != nil {
		return sessiondto.SessionOutput{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return sessiondto.SessionOutput{}, apperrors.ErrSessionClosed
	}
	if l.snap.Pause.Paused {
		return l.outputLocked(), nil
	}
	for _, t := range l.timersLocked() {
		if state, _ := t.State(); state == timerdomain.StatePaused {
			t.Resume()
		}
		t.Pause(timerdomain.PauseManual)
	}
	now := i.clock.Now()
	l.snap.Pause = domain.PauseState{Count: l.snap.Pause.Count + 1, Paused: true, Reason: timerdomain.PauseManual, Since: now}
	task, _ := l.snap.CurrentTask()
	i.store.Emit(ctx, l.code, audit.EventSessionPaused, map[string]any{"task": task, "pause_count": l.snap.Pause.Count})
	i.saveLocked(ctx, l)
	return l.outputLocked(), nil
}

func (i *Interactor) Unpause(ctx context.Context, code string) (sessiondto.SessionOutput, error) {
	l, err := i.ensure(ctx, code)
	if err != nil {
		return sessiondto.SessionOutput{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return sessiondto.SessionOutput{}, apperrors.ErrSessionClosed
	}
	if !l.snap.Pause.Paused {
		return l.outputLocked(), nil
	}
	i.endPauseLocked(ctx, l, "participant")
	i.saveLocked(ctx, l)
	return l.outputLocked(), nil
}

func (i *Interactor) SetRecording(ctx context.Context, input sessiondto.RecordingInput) (sessiondto.SessionOutput, error) {
	l, err := i.ensure(ctx, input.Code)
	if err != nil {
		return sessiondto.SessionOutput{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return sessiondto.SessionOutput{}, apperrors.ErrSessionClosed
	}
	l.snap.SessionTime = l.sessionTimeLocked()
	next, err := i.store.SetRecording(ctx, l.snap, domain.RecordingStatus(input.Status))
	if err != nil {
		return sessiondto.SessionOutput{}, err
	}
	l.snap = next
	return l.outputLocked(), nil
}

// Observe attaches an activity monitor fed by source, replacing any monitor
// already attached to the session.
func (i *Interactor) Observe(ctx context.Context, code string, source activityout.InputSource) error {
	if i.monitors == nil {
		return fmt.Errorf("activity monitoring is not configured")
	}
	l, err := i.ensure(ctx, code)
	if err != nil {
		return err
	}
	monitor := i.monitors(l)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return apperrors.ErrSessionClosed
	}
	previous := l.monitor
	l.monitor = monitor
	l.mu.Unlock()
	if previous != nil {
		previous.Stop()
	}
	monitor.Start(source)
	return nil
}

// Status reports a live session, or the saved state of one that is not live.
func (i *Interactor) Status(ctx context.Context, code string) (sessiondto.SessionOutput, error) {
	if l, ok := i.get(code); ok {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.outputLocked(), nil
	}
	snap, _, err := i.store.Load(ctx, code)
	if err != nil {
		return sessiondto.SessionOutput{}, err
	}
	return snapshotOutput(snap), nil
}

// endPauseLocked lifts the manual pause and reports its length, so the
// aggregator never sees a pause left open.
func (i *Interactor) endPauseLocked(ctx context.Context, l *liveSession, endedBy string) {
	for _, t := range l.timersLocked() {
		if _, reason := t.State(); reason == timerdomain.PauseManual {
			t.Resume()
		}
	}
	now := i.clock.Now()
	pausedFor := now.Sub(l.snap.Pause.Since)
	if pausedFor < 0 {
		pausedFor = 0
	}
	l.snap.Pause = domain.PauseState{Count: l.snap.Pause.Count}
	l.snap.LastActivityAt = now
	task, _ := l.snap.CurrentTask()
	i.store.Emit(ctx, l.code, audit.EventSessionUnpaused, map[string]any{
		"task":           task,
		"paused_seconds": pausedFor.Seconds(),
		"ended_by":       endedBy,
	})
}

// Close stops everything the live session runs and saves it one last time.
// A manual pause still in effect ends with the session.
func (i *Interactor) Close(ctx context.Context, code string) (sessiondto.SessionOutput, error) {
	code = service.NormalizeCode(code)
	i.mu.Lock()
	l, ok := i.live[code]
	delete(i.live, code)
	i.mu.Unlock()
	if !ok {
		return sessiondto.SessionOutput{}, fmt.Errorf("session %s: %w", code, apperrors.ErrNoActiveSession)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.snap.Pause.Paused {
		i.endPauseLocked(ctx, l, "close")
	}
	if l.autosave != nil {
		l.autosave()
		l.autosave = nil
	}
	if l.monitor != nil {
		l.monitor.Stop()
		l.monitor = nil
	}
	if l.task != nil {
		l.task.Stop()
	}
	l.session.Stop()
	l.snap.SessionTime = l.sessionTimeLocked()
	details := service.SummaryDetails(l.snap.SessionTime)
	details["completed"] = len(l.snap.CompletedTasks)
	details["skipped"] = len(l.snap.SkippedTasks)
	i.store.Emit(ctx, l.code, audit.EventSessionClosed, details)
	i.store.Save(ctx, l.snap)
	i.log.Info("session closed", "code", l.code, "active", l.snap.SessionTime.Active)
	return l.outputLocked(), nil
}

func (i *Interactor) CloseAll(ctx context.Context) {
	i.mu.Lock()
	codes := make([]string, 0, len(i.live))
	for code := range i.live {
		codes = append(codes, code)
	}
	i.mu.Unlock()
	sort.Strings(codes)
	for _, code := range codes {
		if _, err := i.Close(ctx, code); err != nil {
			i.log.Warn("close session", "code", code, "error", err)
		}
	}
}

func (i *Interactor) get(code string) (*liveSession, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	l, ok := i.live[service.NormalizeCode(code)]
	return l, ok
}

// ensure returns the live session for code, resuming it from the store when
// it is not running in this process.
func (i *Interactor) ensure(ctx context.Context, code string) (*liveSession, error) {
	if l, ok := i.get(code); ok {
		return l, nil
	}
	snap, err := i.store.Resume(ctx, code)
	if err != nil {
		return nil, err
	}
	return i.start(ctx, snap), nil
}

func (i *Interactor) start(ctx context.Context, snap domain.Snapshot) *liveSession {
	i.mu.Lock()
	if existing, ok := i.live[snap.SessionCode]; ok {
		i.mu.Unlock()
		return existing
	}
	l := &liveSession{
		code:    snap.SessionCode,
		snap:    snap,
		carry:   snap.SessionTime,
		session: timerdomain.New("session", i.clock, i.sched),
	}
	i.live[l.code] = l
	i.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	// A snapshot still marked paused belongs to a process that died without
	// closing; its break ends now.
	if l.snap.Pause.Paused {
		i.endPauseLocked(ctx, l, "restart")
	}
	l.session.OnInactivity(func() { i.inactivity(l, "session") })
	l.session.Start()
	i.startTaskLocked(ctx, l)
	if i.autosave > 0 && i.sched != nil {
		l.autosave = i.sched.Every(i.autosave, func() { i.autosaveTick(l) })
	}
	i.saveLocked(ctx, l)
	return l
}

func (i *Interactor) startTaskLocked(ctx context.Context, l *liveSession) {
	task, ok := l.snap.CurrentTask()
	if !ok || l.taskCode == task {
		return
	}
	external := false
	if catalog, err := i.store.Catalog(ctx); err == nil {
		if descriptor, found := catalog.Task(task); found {
			external = descriptor.Kind == sequencedomain.KindExternal
		}
	}
	timer := timerdomain.New("task:"+task, i.clock, i.sched)
	timer.OnInactivity(func() { i.inactivity(l, "task") })
	timer.Start()
	l.task = timer
	l.taskCode = task
	l.external = external
	i.store.StartTask(ctx, l.snap, task)
}

func (i *Interactor) inactivity(l *liveSession, timer string) {
	l.mu.Lock()
	monitor := l.monitor
	l.mu.Unlock()
	if monitor != nil {
		monitor.InactivityDetected(timer)
		return
	}
	i.store.Emit(context.Background(), l.code, audit.EventInactivityTimeout, map[string]any{"timer": timer})
}

func (i *Interactor) autosaveTick(l *liveSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	i.saveLocked(context.Background(), l)
}

func (i *Interactor) saveLocked(ctx context.Context, l *liveSession) {
	l.snap.SessionTime = l.sessionTimeLocked()
	if last := l.session.Snapshot().LastActivityTime; last.After(l.snap.LastActivityAt) {
		l.snap.LastActivityAt = last
	}
	if written := i.store.Save(ctx, l.snap); len(written) == 0 {
		i.log.Warn("session not persisted to any backend", "code", l.code)
	}
}
