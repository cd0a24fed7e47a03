package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	sequencedomain "studyrun/internal/modules/sequence/domain"
	sequenceout "studyrun/internal/modules/sequence/port/out"
	"studyrun/internal/modules/session/domain"
	sessionout "studyrun/internal/modules/session/port/out"
	timerdomain "studyrun/internal/modules/timer/domain"
	"studyrun/internal/platform/audit"
	"studyrun/internal/platform/clock"
	apperrors "studyrun/internal/platform/errors"
	"studyrun/internal/platform/id"
)

// Store persists snapshots to every configured backend and resumes them in
// backend priority order.
type Store struct {
	backends []sessionout.Backend
	catalog  sequenceout.CatalogProvider
	sink     audit.Sink
	clock    clock.Clock
	codes    id.Generator
	log      hclog.Logger

	mu        sync.Mutex
	published map[string]string
}

func NewStore(backends []sessionout.Backend, catalog sequenceout.CatalogProvider, sink audit.Sink, clk clock.Clock, codes id.Generator, log hclog.Logger) *Store {
	if sink == nil {
		sink = audit.Discard{}
	}
	if codes == nil {
		codes = id.SessionCode{}
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Store{
		backends:  backends,
		catalog:   catalog,
		sink:      sink,
		clock:     clk,
		codes:     codes,
		log:       log.Named("store"),
		published: map[string]string{},
	}
}

func (s *Store) Catalog(ctx context.Context) (sequencedomain.Catalog, error) {
	return s.catalog.Catalog(ctx)
}

// Create starts a new session with a fresh code and the participant's
// deterministic task order, then saves it.
func (s *Store) Create(ctx context.Context, participant domain.Participant) (domain.Snapshot, error) {
	participant.Email = strings.TrimSpace(participant.Email)
	if participant.Email == "" {
		return domain.Snapshot{}, fmt.Errorf("%w: participant email is required", apperrors.ErrInvalidInput)
	}
	if participant.DeviceClass == "" {
		participant.DeviceClass = sequencedomain.DeviceDesktop
	}
	catalog, err := s.catalog.Catalog(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	code := s.codes.New()
	now := s.clock.Now()
	snap := domain.Snapshot{
		SchemaVersion:  domain.SchemaVersion,
		SessionCode:    code,
		Participant:    participant,
		Sequence:       sequencedomain.BuildSequence(catalog, participant.DeviceClass, sequencedomain.Seed(code)),
		CompletedTasks: []string{},
		SkippedTasks:   []string{},
		Recording:      domain.Recording{Status: domain.RecordingIdle},
		CreatedAt:      now,
		LastActivityAt: now,
	}
	details := map[string]any{
		"email":        participant.Email,
		"device_class": string(participant.DeviceClass),
		"sequence":     snap.Sequence,
	}
	if len(participant.Exemptions) > 0 {
		details["exemption"] = strings.Join(participant.Exemptions, ",")
	}
	s.emit(ctx, snap.SessionCode, audit.EventSessionCreated, details)
	s.log.Info("session created", "code", code, "device", participant.DeviceClass, "tasks", len(snap.Sequence))
	s.Save(ctx, snap)
	return snap, nil
}

// Save writes snap to each backend independently. A failing backend is logged
// and skipped; the names of the backends written are returned. snapshot_saved
// is emitted only when the snapshot changed beyond its running time.
func (s *Store) Save(ctx context.Context, snap domain.Snapshot) []string {
	payload, err := json.Marshal(snap)
	if err != nil {
		s.log.Error("encode snapshot", "code", snap.SessionCode, "error", err)
		return nil
	}
	written := make([]string, 0, len(s.backends))
	for _, backend := range s.backends {
		if err := backend.Set(ctx, snap.SessionCode, payload); err != nil {
			s.log.Warn("backend save failed", "backend", backend.Name(), "code", snap.SessionCode, "error", err)
			continue
		}
		written = append(written, backend.Name())
	}
	if !s.changed(snap) {
		return written
	}
	s.emit(ctx, snap.SessionCode, audit.EventSnapshotSaved, map[string]any{
		"backends": written,
		"snapshot": json.RawMessage(payload),
	})
	return written
}

// changed reports whether snap differs from the last snapshot published for
// its code, ignoring the fields every autosave refreshes.
func (s *Store) changed(snap domain.Snapshot) bool {
	snap.SessionTime = timerdomain.Summary{}
	snap.LastActivityAt = time.Time{}
	key, err := json.Marshal(snap)
	if err != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.published[snap.SessionCode] == string(key) {
		return false
	}
	s.published[snap.SessionCode] = string(key)
	return true
}

// Resume loads the session and records that it was picked up again.
func (s *Store) Resume(ctx context.Context, code string) (domain.Snapshot, error) {
	snap, backend, err := s.Load(ctx, code)
	if err != nil {
		return domain.Snapshot{}, err
	}
	s.emit(ctx, snap.SessionCode, audit.EventSessionResumed, map[string]any{
		"backend":       backend,
		"current_index": snap.CurrentIndex,
	})
	s.log.Info("session resumed", "code", snap.SessionCode, "backend", backend)
	return snap, nil
}

// Load returns the first snapshot found in backend priority order, repaired
// against the current catalog, and the name of the backend that served it.
func (s *Store) Load(ctx context.Context, code string) (domain.Snapshot, string, error) {
	code = NormalizeCode(code)
	if !id.ValidCode(code) {
		return domain.Snapshot{}, "", fmt.Errorf("%w: malformed session code %q", apperrors.ErrInvalidInput, code)
	}
	catalog, err := s.catalog.Catalog(ctx)
	if err != nil {
		return domain.Snapshot{}, "", err
	}
	for _, backend := range s.backends {
		payload, err := backend.Get(ctx, code)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				s.log.Warn("backend load failed", "backend", backend.Name(), "code", code, "error", err)
			}
			continue
		}
		snap := domain.Snapshot{}
		if err := json.Unmarshal(payload, &snap); err != nil {
			s.log.Warn("discarding undecodable snapshot", "backend", backend.Name(), "code", code, "error", err)
			continue
		}
		if snap.SessionCode != code {
			s.log.Warn("snapshot code mismatch", "backend", backend.Name(), "want", code, "got", snap.SessionCode)
			continue
		}
		repair(&snap, catalog)
		return snap, backend.Name(), nil
	}
	return domain.Snapshot{}, "", fmt.Errorf("session %s: %w", code, apperrors.ErrNotFound)
}

func repair(snap *domain.Snapshot, catalog sequencedomain.Catalog) {
	if snap.Participant.DeviceClass == "" {
		snap.Participant.DeviceClass = sequencedomain.DeviceDesktop
	}
	snap.Sequence = sequencedomain.Normalize(catalog, snap.Sequence)
	if len(snap.Sequence) <= 1 {
		snap.Sequence = sequencedomain.BuildSequence(catalog, snap.Participant.DeviceClass, sequencedomain.Seed(snap.SessionCode))
	}
	if snap.CompletedTasks == nil {
		snap.CompletedTasks = []string{}
	}
	if snap.SkippedTasks == nil {
		snap.SkippedTasks = []string{}
	}
	if snap.Recording.Status == "" {
		snap.Recording.Status = domain.RecordingIdle
	}
	snap.Dedupe()
	snap.CurrentIndex = 0
	snap.Advance()
	snap.SchemaVersion = domain.SchemaVersion
}

// StartTask announces that task is now being worked on.
func (s *Store) StartTask(ctx context.Context, snap domain.Snapshot, task string) {
	s.emit(ctx, snap.SessionCode, audit.EventTaskStarted, map[string]any{
		"task":  task,
		"index": snap.CurrentIndex,
	})
}

// CompleteTask folds spent into the totals, marks task completed and saves.
// Completing an already completed task only advances the index.
func (s *Store) CompleteTask(ctx context.Context, snap domain.Snapshot, task string, spent timerdomain.Summary) (domain.Snapshot, error) {
	if !snap.InSequence(task) {
		return snap, fmt.Errorf("%w: task %q is not in session %s", apperrors.ErrInvalidInput, task, snap.SessionCode)
	}
	next := snap.Clone()
	if next.MarkCompleted(task) {
		next.Totals = next.Totals.Add(spent)
		s.emit(ctx, next.SessionCode, audit.EventTaskCompleted, spentDetails(task, spent))
	}
	next.LastActivityAt = s.clock.Now()
	next.Advance()
	s.Save(ctx, next)
	return next, nil
}

// SkipTask is CompleteTask for tasks the participant declined. Terminal and
// non-skippable tasks cannot be skipped.
func (s *Store) SkipTask(ctx context.Context, snap domain.Snapshot, task, reason string, spent timerdomain.Summary) (domain.Snapshot, error) {
	if !snap.InSequence(task) {
		return snap, fmt.Errorf("%w: task %q is not in session %s", apperrors.ErrInvalidInput, task, snap.SessionCode)
	}
	catalog, err := s.catalog.Catalog(ctx)
	if err != nil {
		return snap, err
	}
	descriptor, ok := catalog.Task(task)
	if !ok || !descriptor.Skippable {
		return snap, fmt.Errorf("%w: task %q cannot be skipped", apperrors.ErrInvalidInput, task)
	}
	next := snap.Clone()
	if next.MarkSkipped(task) {
		next.Totals = next.Totals.Add(spent)
		details := spentDetails(task, spent)
		details["reason"] = reason
		if descriptor.ExemptionTag != "" && reason == descriptor.ExemptionTag {
			details["exemption"] = descriptor.ExemptionTag
		}
		s.emit(ctx, next.SessionCode, audit.EventTaskSkipped, details)
	}
	next.LastActivityAt = s.clock.Now()
	next.Advance()
	s.Save(ctx, next)
	return next, nil
}

// SetRecording updates the recording substate for the current task. Each
// transition into recording counts as a new attempt.
func (s *Store) SetRecording(ctx context.Context, snap domain.Snapshot, status domain.RecordingStatus) (domain.Snapshot, error) {
	if err := status.Validate(); err != nil {
		return snap, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	task, ok := snap.CurrentTask()
	if !ok {
		return snap, fmt.Errorf("%w: session %s has no current task", apperrors.ErrInvalidInput, snap.SessionCode)
	}
	next := snap.Clone()
	if next.Recording.TaskCode != task {
		next.Recording = domain.Recording{TaskCode: task}
	}
	if status == domain.RecordingActive && next.Recording.Status != domain.RecordingActive {
		next.Recording.Attempts++
	}
	next.Recording.Status = status
	next.Recording.UpdatedAt = s.clock.Now()
	next.LastActivityAt = next.Recording.UpdatedAt
	s.emit(ctx, next.SessionCode, audit.EventRecording, map[string]any{
		"task":     task,
		"status":   string(status),
		"attempts": next.Recording.Attempts,
	})
	s.Save(ctx, next)
	return next, nil
}

// Emit forwards a session event to the audit sink.
func (s *Store) Emit(ctx context.Context, code, eventType string, details map[string]any) {
	s.emit(ctx, code, eventType, details)
}

func (s *Store) emit(ctx context.Context, code, eventType string, details map[string]any) {
	s.sink.Emit(ctx, audit.Event{
		Timestamp:   s.clock.Now(),
		SessionCode: code,
		Type:        eventType,
		Details:     details,
	})
}

// SummaryDetails renders a timer summary as event details in seconds.
func SummaryDetails(summary timerdomain.Summary) map[string]any {
	return map[string]any{
		"active_seconds":   summary.Active.Seconds(),
		"paused_seconds":   summary.Paused.Seconds(),
		"inactive_seconds": summary.Inactive.Seconds(),
		"elapsed_seconds":  summary.Elapsed.Seconds(),
		"pause_count":      summary.PauseCount,
	}
}

func spentDetails(task string, spent timerdomain.Summary) map[string]any {
	details := SummaryDetails(spent)
	details["task"] = task
	return details
}

// NormalizeCode upper-cases and trims a participant-typed session code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
