package usecase_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	activityadapter "studyrun/internal/modules/activity/adapter/out"
	activitydomain "studyrun/internal/modules/activity/domain"
	activityout "studyrun/internal/modules/activity/port/out"
	activityservice "studyrun/internal/modules/activity/service"
	aggregatordomain "studyrun/internal/modules/aggregator/domain"
	sequenceadapter "studyrun/internal/modules/sequence/adapter/out"
	sequencedomain "studyrun/internal/modules/sequence/domain"
	sessionadapter "studyrun/internal/modules/session/adapter/out"
	sessiondto "studyrun/internal/modules/session/dto"
	sessionin "studyrun/internal/modules/session/port/in"
	sessionout "studyrun/internal/modules/session/port/out"
	"studyrun/internal/modules/session/service"
	"studyrun/internal/modules/session/usecase"
	"studyrun/internal/platform/audit"
	"studyrun/internal/platform/clock"
	apperrors "studyrun/internal/platform/errors"
)

type fixedCode string

func (f fixedCode) New() string { return string(f) }

type harness struct {
	clk      *clock.Manual
	rec      *audit.Recorder
	store    *service.Store
	backends []sessionout.Backend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		clk: clock.NewManual(time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)),
		rec: &audit.Recorder{},
		backends: []sessionout.Backend{
			sessionadapter.NewFileCacheBackend(filepath.Join(dir, "cache")),
			sessionadapter.NewLegacyBackend(filepath.Join(dir, "legacy.yaml")),
		},
	}
	h.store = service.NewStore(h.backends, sequenceadapter.NewYAMLCatalogProvider(""), h.rec, h.clk, fixedCode("ABCDEFGH"), nil)
	return h
}

func (h *harness) interactor(autosave time.Duration) sessionin.Usecase {
	return usecase.NewInteractor(h.store, h.clk, h.clk, usecase.Options{
		Autosave: autosave,
		Monitors: func(targets activityout.Targets) sessionout.ActivityMonitor {
			return activityservice.NewMonitor(targets, h.rec, h.clk, h.clk, nil)
		},
	})
}

func (h *harness) count(eventType string) int {
	n := 0
	for _, t := range h.rec.Types() {
		if t == eventType {
			n++
		}
	}
	return n
}

func createInput() sessiondto.CreateInput {
	return sessiondto.CreateInput{Email: "p@example.org", UserAgent: "Mozilla/5.0 (X11; Linux x86_64)"}
}

func TestLifecycleCarriesSessionTimeAcrossResume(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	first := h.interactor(30 * time.Second)

	out, err := first.Create(ctx, createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.Code != "ABCDEFGH" || out.CurrentTask != "SN" || !out.Live || out.DeviceClass != "desktop" {
		t.Fatalf("unexpected created session %+v", out)
	}

	h.clk.Advance(10 * time.Second)
	out, err = first.CompleteTask(ctx, sessiondto.TaskInput{Code: "ABCDEFGH"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.CurrentTask != "ASLCT" || len(out.CompletedTasks) != 1 || out.Totals.Elapsed != 10*time.Second {
		t.Fatalf("unexpected state after completion %+v", out)
	}
	if out.Task.Elapsed != 0 {
		t.Fatalf("next task timer should start fresh, got %s", out.Task.Elapsed)
	}

	h.clk.Advance(5 * time.Second)
	closed, err := first.Close(ctx, "ABCDEFGH")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Live || closed.Session.Elapsed != 15*time.Second {
		t.Fatalf("unexpected closed session %+v", closed)
	}
	if h.clk.Pending() != 0 {
		t.Fatalf("close left %d scheduled callbacks", h.clk.Pending())
	}

	h.clk.Advance(time.Hour)
	second := h.interactor(0)
	resumed, err := second.Resume(ctx, "abcdefgh")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.CurrentTask != "ASLCT" || resumed.Session.Elapsed != 15*time.Second {
		t.Fatalf("gap must not count: %+v", resumed.Session)
	}
	h.clk.Advance(5 * time.Second)
	status, err := second.Status(ctx, "ABCDEFGH")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Session.Elapsed != 20*time.Second {
		t.Fatalf("expected 20s session time, got %s", status.Session.Elapsed)
	}
	second.CloseAll(ctx)
	if h.clk.Pending() != 0 {
		t.Fatalf("close all left %d scheduled callbacks", h.clk.Pending())
	}
}

func TestManualPauseIsCredited(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	uc := h.interactor(0)
	if _, err := uc.Create(ctx, createInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	h.clk.Advance(2 * time.Second)
	paused, err := uc.Pause(ctx, "ABCDEFGH")
	if err != nil || !paused.Paused {
		t.Fatalf("pause: %+v %v", paused, err)
	}
	if _, err := uc.Pause(ctx, "ABCDEFGH"); err != nil {
		t.Fatalf("repeated pause: %v", err)
	}
	h.clk.Advance(10 * time.Second)
	out, err := uc.Unpause(ctx, "ABCDEFGH")
	if err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if out.Paused || out.Session.Paused != 10*time.Second || out.Task.Paused != 10*time.Second {
		t.Fatalf("expected 10s manual pause, got %+v", out)
	}
	if h.count(audit.EventSessionPaused) != 1 || h.count(audit.EventSessionUnpaused) != 1 {
		t.Fatalf("unexpected pause events %v", h.rec.Types())
	}
	_, _ = uc.Close(ctx, "ABCDEFGH")
}

// ledger replays the recorded events the way the aggregator would receive
// them.
func (h *harness) ledger(t *testing.T) aggregatordomain.Record {
	t.Helper()
	events := []aggregatordomain.Event{}
	for _, e := range h.rec.Events() {
		events = append(events, aggregatordomain.Event{
			SessionCode: e.SessionCode,
			Action:      aggregatordomain.Action(sessionadapter.ActionFor(e.Type)),
			Type:        e.Type,
			Timestamp:   e.Timestamp,
			Details:     e.Details,
		})
	}
	rec, err := aggregatordomain.Replay(sequencedomain.DefaultCatalog(), "ABCDEFGH", events)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	return rec
}

func TestCloseEndsManualPauseAcrossVisits(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	first := h.interactor(0)
	if _, err := first.Create(ctx, createInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	h.clk.Advance(5 * time.Second)
	if _, err := first.Pause(ctx, "ABCDEFGH"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	h.clk.Advance(3 * time.Second)
	if _, err := first.Close(ctx, "ABCDEFGH"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if h.count(audit.EventSessionUnpaused) != 1 {
		t.Fatalf("expected close to end the pause, got %v", h.rec.Types())
	}

	h.clk.Advance(48 * time.Hour)
	second := h.interactor(0)
	out, err := second.Unpause(ctx, "ABCDEFGH")
	if err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if out.Paused {
		t.Fatalf("resumed session must not be paused: %+v", out)
	}
	if _, err := second.Pause(ctx, "ABCDEFGH"); err != nil {
		t.Fatalf("pause again: %v", err)
	}
	h.clk.Advance(10 * time.Second)
	if _, err := second.Unpause(ctx, "ABCDEFGH"); err != nil {
		t.Fatalf("unpause again: %v", err)
	}
	if _, err := second.Close(ctx, "ABCDEFGH"); err != nil {
		t.Fatalf("close again: %v", err)
	}

	rec := h.ledger(t)
	if rec.PausedTime != 13*time.Second || !rec.PauseOpenedAt.IsZero() {
		t.Fatalf("expected 13s paused and no open pause, got %s open since %v", rec.PausedTime, rec.PauseOpenedAt)
	}
	if rec.Status != aggregatordomain.StatusActive {
		t.Fatalf("expected active record, got %s", rec.Status)
	}
}

func TestResumeEndsPauseLeftByDeadProcess(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	crashed := h.interactor(0)
	if _, err := crashed.Create(ctx, createInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := crashed.Pause(ctx, "ABCDEFGH"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	h.clk.Advance(20 * time.Second)

	next := h.interactor(0)
	out, err := next.Resume(ctx, "ABCDEFGH")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if out.Paused || !out.Live {
		t.Fatalf("expected a live, running session, got %+v", out)
	}
	if h.count(audit.EventSessionUnpaused) != 1 {
		t.Fatalf("expected the stale pause ended on resume, got %v", h.rec.Types())
	}
	if rec := h.ledger(t); rec.PausedTime != 20*time.Second || rec.Status != aggregatordomain.StatusActive {
		t.Fatalf("expected 20s paused and active, got %s %s", rec.PausedTime, rec.Status)
	}
	_, _ = next.Close(ctx, "ABCDEFGH")
}

func TestObservedActivityDrivesTimers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	uc := h.interactor(0)
	if _, err := uc.Create(ctx, createInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	feed := activityadapter.NewFeedSource(h.clk)
	if err := uc.Observe(ctx, "ABCDEFGH", feed); err != nil {
		t.Fatalf("observe: %v", err)
	}
	for i := 0; i < 10; i++ {
		h.clk.Advance(time.Second)
		feed.Emit(activitydomain.SignalInput)
	}
	feed.Emit(activitydomain.SignalHidden)
	h.clk.Advance(10 * time.Second)
	feed.Emit(activitydomain.SignalVisible)

	out, err := uc.Status(ctx, "ABCDEFGH")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if out.Session.Elapsed != 20*time.Second || out.Session.Active != 10*time.Second || out.Session.Paused != 0 {
		t.Fatalf("unexpected session time %+v", out.Session)
	}
	if out.Task.Active != 10*time.Second {
		t.Fatalf("unexpected task time %+v", out.Task)
	}

	if _, err := uc.Close(ctx, "ABCDEFGH"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if feed.Subscribers() != 0 {
		t.Fatalf("monitor still subscribed after close")
	}
}

func TestInactivityTimeoutIsAudited(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	uc := h.interactor(0)
	if _, err := uc.Create(ctx, createInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	h.clk.Advance(121 * time.Second)
	if got := h.count(audit.EventInactivityTimeout); got != 2 {
		t.Fatalf("expected session and task inactivity events, got %d", got)
	}
	out, _ := uc.Status(ctx, "ABCDEFGH")
	if out.Session.Active != 4*time.Second || out.Session.Inactive != time.Second {
		t.Fatalf("unexpected session time %+v", out.Session)
	}
	_, _ = uc.Close(ctx, "ABCDEFGH")
}

func TestAutosaveWritesPeriodically(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	uc := h.interactor(30 * time.Second)
	if _, err := uc.Create(ctx, createInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	before := h.count(audit.EventSnapshotSaved)
	h.clk.Advance(61 * time.Second)
	saved, _, err := h.store.Load(ctx, "ABCDEFGH")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.SessionTime.Elapsed != 60*time.Second {
		t.Fatalf("expected autosaved 60s session time, got %s", saved.SessionTime.Elapsed)
	}
	if got := h.count(audit.EventSnapshotSaved) - before; got != 0 {
		t.Fatalf("timing-only autosaves must not publish snapshots, got %d", got)
	}
	_, _ = uc.Close(ctx, "ABCDEFGH")
}

func TestCommandsResumeSessionsThatAreNotLive(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	creator := h.interactor(0)
	if _, err := creator.Create(ctx, createInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := creator.Close(ctx, "ABCDEFGH"); err != nil {
		t.Fatalf("close: %v", err)
	}

	other := h.interactor(0)
	saved, err := other.Status(ctx, "ABCDEFGH")
	if err != nil || saved.Live {
		t.Fatalf("expected saved, non-live status, got %+v %v", saved, err)
	}
	out, err := other.SkipTask(ctx, sessiondto.TaskInput{Code: "ABCDEFGH", Task: "ASLCT", Reason: "non_signer"})
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if !out.Live || len(out.SkippedTasks) != 1 || out.CurrentTask != "SN" {
		t.Fatalf("unexpected state %+v", out)
	}
	if _, err := other.SkipTask(ctx, sessiondto.TaskInput{Code: "ABCDEFGH", Task: "DEMO"}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("terminal task must not be skippable, got %v", err)
	}
	_, _ = other.Close(ctx, "ABCDEFGH")
}

func TestErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	uc := h.interactor(0)
	if _, err := uc.Close(ctx, "ABCDEFGH"); !errors.Is(err, apperrors.ErrNoActiveSession) {
		t.Fatalf("expected no active session, got %v", err)
	}
	if _, err := uc.Resume(ctx, "ZZZZZZZZ"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := uc.Create(ctx, sessiondto.CreateInput{}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	bare := usecase.NewInteractor(h.store, h.clk, h.clk, usecase.Options{})
	if _, err := bare.Create(ctx, createInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := bare.Observe(ctx, "ABCDEFGH", activityadapter.NewFeedSource(h.clk)); err == nil {
		t.Fatalf("expected observe to fail without a monitor factory")
	}
	bare.CloseAll(ctx)
}

func TestPreviewMatchesCreatedSequence(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	uc := h.interactor(0)
	preview, err := uc.Preview(context.Background(), sessiondto.PreviewInput{Code: "ABCDEFGH", DeviceClass: "mobile"})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	want := []string{"ID", "ASLCT", "RC", "DEMO"}
	if preview.Seed != 2042300548 || len(preview.Sequence) != len(want) {
		t.Fatalf("unexpected preview %+v", preview)
	}
	for i := range want {
		if preview.Sequence[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, preview.Sequence)
		}
	}
}
