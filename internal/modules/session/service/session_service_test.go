package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	sequenceadapter "studyrun/internal/modules/sequence/adapter/out"
	"studyrun/internal/modules/session/domain"
	sessionout "studyrun/internal/modules/session/port/out"
	"studyrun/internal/modules/session/service"
	timerdomain "studyrun/internal/modules/timer/domain"
	"studyrun/internal/platform/audit"
	"studyrun/internal/platform/clock"
	apperrors "studyrun/internal/platform/errors"
)

type memoryBackend struct {
	name string
	mu   sync.Mutex
	docs map[string][]byte
	fail error
}

func newMemoryBackend(name string) *memoryBackend {
	return &memoryBackend{name: name, docs: map[string][]byte{}}
}

func (m *memoryBackend) Name() string { return m.name }

func (m *memoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	doc, ok := m.docs[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return doc, nil
}

func (m *memoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.docs[key] = append([]byte(nil), value...)
	return nil
}

type fixedCode string

func (f fixedCode) New() string { return string(f) }

var t0 = time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

func newStore(backends ...sessionout.Backend) (*service.Store, *audit.Recorder, *clock.Manual) {
	rec := &audit.Recorder{}
	clk := clock.NewManual(t0)
	store := service.NewStore(backends, sequenceadapter.NewYAMLCatalogProvider(""), rec, clk, fixedCode("ABCDEFGH"), nil)
	return store, rec, clk
}

func TestCreateBuildsDeterministicSequenceAndSaves(t *testing.T) {
	t.Parallel()
	primary := newMemoryBackend("document")
	store, rec, _ := newStore(primary)

	snap, err := store.Create(context.Background(), domain.Participant{Email: " p@example.org "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := []string{"SN", "ASLCT", "RC", "ID", "MRT", "DEMO"}
	if !slices.Equal(snap.Sequence, want) {
		t.Fatalf("expected %v, got %v", want, snap.Sequence)
	}
	if snap.Participant.Email != "p@example.org" || snap.Participant.DeviceClass != "desktop" {
		t.Fatalf("unexpected participant %+v", snap.Participant)
	}
	if _, ok := primary.docs["ABCDEFGH"]; !ok {
		t.Fatalf("initial save missing")
	}
	if types := rec.Types(); len(types) != 2 || types[0] != audit.EventSessionCreated || types[1] != audit.EventSnapshotSaved {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestCreateRequiresEmail(t *testing.T) {
	t.Parallel()
	store, _, _ := newStore(newMemoryBackend("document"))
	if _, err := store.Create(context.Background(), domain.Participant{}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSaveContinuesPastFailingBackend(t *testing.T) {
	t.Parallel()
	broken := newMemoryBackend("document")
	broken.fail = errors.New("quota exceeded")
	cache := newMemoryBackend("cache")
	store, _, _ := newStore(broken, cache)

	written := store.Save(context.Background(), domain.Snapshot{SessionCode: "ABCDEFGH"})
	if !slices.Equal(written, []string{"cache"}) {
		t.Fatalf("expected only cache written, got %v", written)
	}
}

func TestSavePublishesOnlyChangedSnapshots(t *testing.T) {
	t.Parallel()
	store, rec, _ := newStore(newMemoryBackend("document"))
	ctx := context.Background()
	snap := domain.Snapshot{SessionCode: "ABCDEFGH", Sequence: []string{"SN", "ASLCT"}}

	store.Save(ctx, snap)
	store.Save(ctx, snap)
	snap.SessionTime = timerdomain.Summary{Elapsed: 30 * time.Second}
	snap.LastActivityAt = t0.Add(30 * time.Second)
	if written := store.Save(ctx, snap); len(written) != 1 {
		t.Fatalf("expected backend write on every save, got %v", written)
	}
	if n := countType(rec, audit.EventSnapshotSaved); n != 1 {
		t.Fatalf("expected 1 snapshot_saved for unchanged content, got %d", n)
	}

	snap.CurrentIndex = 1
	store.Save(ctx, snap)
	if n := countType(rec, audit.EventSnapshotSaved); n != 2 {
		t.Fatalf("expected a second snapshot_saved after progress, got %d", n)
	}
}

func countType(rec *audit.Recorder, eventType string) int {
	n := 0
	for _, t := range rec.Types() {
		if t == eventType {
			n++
		}
	}
	return n
}

func TestResumeFallsBackInPriorityOrder(t *testing.T) {
	t.Parallel()
	primary := newMemoryBackend("document")
	legacy := newMemoryBackend("legacy")
	store, rec, _ := newStore(primary, legacy)
	ctx := context.Background()

	snap := domain.Snapshot{
		SessionCode:    "ABCDEFGH",
		Participant:    domain.Participant{Email: "p@example.org", DeviceClass: "mobile"},
		Sequence:       []string{"DEMO", "ID", "ID", "GONE", "ASLCT", "RC"},
		CompletedTasks: []string{"ID", "ID"},
	}
	payload, _ := json.Marshal(snap)
	legacy.docs["ABCDEFGH"] = payload
	primary.docs["ABCDEFGH"] = []byte("{not json")

	got, err := store.Resume(ctx, " abcdefgh ")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !slices.Equal(got.Sequence, []string{"ID", "ASLCT", "RC", "DEMO"}) {
		t.Fatalf("sequence not normalized: %v", got.Sequence)
	}
	if current, _ := got.CurrentTask(); current != "ASLCT" {
		t.Fatalf("expected index past completed ID, got %s", current)
	}
	if !slices.Equal(got.CompletedTasks, []string{"ID"}) {
		t.Fatalf("completed set not deduped: %v", got.CompletedTasks)
	}
	events := rec.Events()
	if last := events[len(events)-1]; last.Type != audit.EventSessionResumed || last.Details["backend"] != "legacy" {
		t.Fatalf("expected resume from legacy, got %+v", last)
	}
}

func TestResumeNotFound(t *testing.T) {
	t.Parallel()
	store, _, _ := newStore(newMemoryBackend("document"), newMemoryBackend("legacy"))
	if _, err := store.Resume(context.Background(), "ZZZZZZZZ"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Resume(context.Background(), "0000"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected malformed code rejection, got %v", err)
	}
}

func TestCompleteTaskIsIdempotent(t *testing.T) {
	t.Parallel()
	store, rec, _ := newStore(newMemoryBackend("document"))
	ctx := context.Background()
	snap, err := store.Create(ctx, domain.Participant{Email: "p@example.org"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	spent := timerdomain.Summary{Elapsed: time.Minute, Active: 40 * time.Second, Inactive: 5 * time.Second}

	once, err := store.CompleteTask(ctx, snap, "SN", spent)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	twice, err := store.CompleteTask(ctx, once, "SN", spent)
	if err != nil {
		t.Fatalf("complete again: %v", err)
	}
	if twice.Totals != once.Totals || len(twice.CompletedTasks) != 1 || twice.CurrentIndex != 1 {
		t.Fatalf("second completion changed state: %+v", twice)
	}
	if len(snap.CompletedTasks) != 0 {
		t.Fatalf("input snapshot mutated")
	}

	completed := 0
	for _, e := range rec.Events() {
		if e.Type == audit.EventTaskCompleted {
			completed++
			if e.Details["active_seconds"] != 40.0 || e.Details["task"] != "SN" {
				t.Fatalf("unexpected details %+v", e.Details)
			}
		}
	}
	if completed != 1 {
		t.Fatalf("expected a single completion event, got %d", completed)
	}

	if _, err := store.CompleteTask(ctx, once, "XYZ", spent); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected unknown task rejection, got %v", err)
	}
}

func TestSkipTaskRules(t *testing.T) {
	t.Parallel()
	store, rec, _ := newStore(newMemoryBackend("document"))
	ctx := context.Background()
	snap, err := store.Create(ctx, domain.Participant{Email: "p@example.org"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.SkipTask(ctx, snap, "SN", "", timerdomain.Summary{}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected non-skippable rejection, got %v", err)
	}
	next, err := store.SkipTask(ctx, snap, "ASLCT", "non_signer", timerdomain.Summary{})
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if !slices.Equal(next.SkippedTasks, []string{"ASLCT"}) || next.CurrentIndex != 0 {
		t.Fatalf("unexpected state %+v", next)
	}
	events := rec.Events()
	skip := events[len(events)-2]
	if skip.Type != audit.EventTaskSkipped || skip.Details["exemption"] != "non_signer" || skip.Details["reason"] != "non_signer" {
		t.Fatalf("unexpected skip event %+v", skip)
	}
}

func TestSetRecordingCountsAttempts(t *testing.T) {
	t.Parallel()
	store, _, clk := newStore(newMemoryBackend("document"))
	ctx := context.Background()
	snap, _ := store.Create(ctx, domain.Participant{Email: "p@example.org"})

	for _, status := range []domain.RecordingStatus{domain.RecordingActive, domain.RecordingFailed, domain.RecordingActive, domain.RecordingActive, domain.RecordingUploaded} {
		clk.Advance(time.Second)
		var err error
		if snap, err = store.SetRecording(ctx, snap, status); err != nil {
			t.Fatalf("set %s: %v", status, err)
		}
	}
	if snap.Recording.Attempts != 2 || snap.Recording.Status != domain.RecordingUploaded || snap.Recording.TaskCode != "SN" {
		t.Fatalf("unexpected recording %+v", snap.Recording)
	}
	if _, err := store.SetRecording(ctx, snap, "exploded"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}
