package out_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	ledgerout "studyrun/internal/modules/aggregator/adapter/out"
	"studyrun/internal/modules/aggregator/domain"
	apperrors "studyrun/internal/platform/errors"
)

func openLedger(t *testing.T) *ledgerout.SQLiteLedger {
	t.Helper()
	ledger, err := ledgerout.NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger", "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestLedgerEventsRoundTripInTimestampOrder(t *testing.T) {
	t.Parallel()
	ledger := openLedger(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	later := domain.Event{ID: "b", SessionCode: "ABCDEFGH", Action: domain.ActionCompleteTask, Type: "task_completed", Timestamp: base.Add(90 * time.Second), Details: map[string]any{"task": "RC", "active_seconds": 61.5}}
	earlier := domain.Event{ID: "a", SessionCode: "ABCDEFGH", Action: domain.ActionCreateSession, Type: "session_created", Timestamp: base.Add(500 * time.Millisecond)}
	other := domain.Event{ID: "c", SessionCode: "ZZZZZZZZ", Action: domain.ActionLogEvent, Type: "activity_blur", Timestamp: base}
	for _, e := range []domain.Event{later, earlier, other} {
		inserted, err := ledger.AppendEvent(ctx, e)
		if err != nil || !inserted {
			t.Fatalf("append %s: inserted=%t err=%v", e.ID, inserted, err)
		}
	}
	if inserted, err := ledger.AppendEvent(ctx, later); err != nil || inserted {
		t.Fatalf("duplicate id must be ignored, inserted=%t err=%v", inserted, err)
	}

	events, err := ledger.Events(ctx, "ABCDEFGH")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 || events[0].ID != "a" || events[1].ID != "b" {
		t.Fatalf("unexpected order %+v", events)
	}
	if !events[0].Timestamp.Equal(earlier.Timestamp) {
		t.Fatalf("timestamp lost precision: %v", events[0].Timestamp)
	}
	if events[1].Seconds("active_seconds") != 61500*time.Millisecond || events[1].Task() != "RC" {
		t.Fatalf("details not preserved: %+v", events[1].Details)
	}

	codes, err := ledger.SessionCodes(ctx)
	if err != nil {
		t.Fatalf("codes: %v", err)
	}
	if len(codes) != 2 || codes[0] != "ABCDEFGH" || codes[1] != "ZZZZZZZZ" {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestLedgerSessionUpsert(t *testing.T) {
	t.Parallel()
	ledger := openLedger(t)
	ctx := context.Background()

	if _, err := ledger.LoadSession(ctx, "ABCDEFGH"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	rec := domain.Record{
		Code:           "ABCDEFGH",
		DeviceClass:    "desktop",
		Email:          "p@example.org",
		CreatedAt:      time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC),
		LastActivityAt: time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC),
		PausedTime:     2 * time.Minute,
		CurrentTask:    "MRT",
		Totals:         domain.Totals{Total: 30 * time.Minute, Active: 20 * time.Minute, Paused: 2 * time.Minute, Idle: 8 * time.Minute, Inactive: time.Minute},
		CompletedCount: 2,
		RequiredCount:  6,
		Status:         domain.StatusActive,
		Snapshot:       json.RawMessage(`{"current_index":2}`),
	}
	if err := ledger.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec.Status = domain.StatusPaused
	rec.PauseOpenedAt = time.Date(2026, 5, 2, 9, 31, 0, 0, time.UTC)
	if err := ledger.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := ledger.LoadSession(ctx, "ABCDEFGH")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Totals != rec.Totals || got.Status != domain.StatusPaused || !got.PauseOpenedAt.Equal(rec.PauseOpenedAt) {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.UpdatedAt != (time.Time{}) || string(got.Snapshot) != `{"current_index":2}` {
		t.Fatalf("unexpected zero time or snapshot handling: %+v", got)
	}
}
