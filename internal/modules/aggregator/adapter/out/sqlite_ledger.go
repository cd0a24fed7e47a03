package out

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"studyrun/internal/modules/aggregator/domain"
	aggregatorout "studyrun/internal/modules/aggregator/port/out"
	apperrors "studyrun/internal/platform/errors"

	_ "modernc.org/sqlite"
)

// SQLiteLedger keeps one row per session in session_sheet and one row per
// event in event_sheet. Column layout is private to this adapter.
type SQLiteLedger struct {
	db *sql.DB
}

var _ aggregatorout.Ledger = (*SQLiteLedger)(nil)

func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	ledger := &SQLiteLedger{db: db}
	if err := ledger.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ledger, nil
}

func (l *SQLiteLedger) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS session_sheet (
  code TEXT PRIMARY KEY,
  device_class TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL DEFAULT 0,
  last_activity_at INTEGER NOT NULL DEFAULT 0,
  paused_time_ns INTEGER NOT NULL DEFAULT 0,
  pause_opened_at INTEGER NOT NULL DEFAULT 0,
  current_task TEXT NOT NULL DEFAULT '',
  total_ns INTEGER NOT NULL DEFAULT 0,
  active_ns INTEGER NOT NULL DEFAULT 0,
  paused_ns INTEGER NOT NULL DEFAULT 0,
  idle_ns INTEGER NOT NULL DEFAULT 0,
  inactive_ns INTEGER NOT NULL DEFAULT 0,
  completed_count INTEGER NOT NULL DEFAULT 0,
  required_count INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT '',
  snapshot TEXT,
  updated_at INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS event_sheet (
  id TEXT PRIMARY KEY,
  session_code TEXT NOT NULL,
  action TEXT NOT NULL,
  event_type TEXT NOT NULL,
  ts INTEGER NOT NULL,
  details TEXT
);
CREATE INDEX IF NOT EXISTS event_sheet_session ON event_sheet(session_code, ts);
`
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create ledger tables: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) AppendEvent(ctx context.Context, e domain.Event) (bool, error) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return false, fmt.Errorf("encode event details: %w", err)
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_sheet (id, session_code, action, event_type, ts, details) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionCode, string(e.Action), e.Type, toNanos(e.Timestamp), string(details),
	)
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	return n > 0, nil
}

func (l *SQLiteLedger) Events(ctx context.Context, code string) ([]domain.Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session_code, action, event_type, ts, details FROM event_sheet WHERE session_code = ? ORDER BY ts, rowid`, code)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []domain.Event{}
	for rows.Next() {
		var (
			e       domain.Event
			action  string
			ts      int64
			details sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.SessionCode, &action, &e.Type, &ts, &details); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Action = domain.Action(action)
		e.Timestamp = fromNanos(ts)
		if details.Valid && details.String != "" && details.String != "null" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decode event %s details: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (l *SQLiteLedger) LoadSession(ctx context.Context, code string) (domain.Record, error) {
	const query = `
SELECT code, device_class, email, created_at, last_activity_at, paused_time_ns, pause_opened_at,
  current_task, total_ns, active_ns, paused_ns, idle_ns, inactive_ns,
  completed_count, required_count, status, snapshot, updated_at
FROM session_sheet WHERE code = ?`
	var (
		rec                                          domain.Record
		createdAt, lastActivity, pauseOpened, update int64
		pausedTime, total, active, paused, idle, ina int64
		status                                       string
		snapshot                                     sql.NullString
	)
	err := l.db.QueryRowContext(ctx, query, code).Scan(
		&rec.Code, &rec.DeviceClass, &rec.Email, &createdAt, &lastActivity, &pausedTime, &pauseOpened,
		&rec.CurrentTask, &total, &active, &paused, &idle, &ina,
		&rec.CompletedCount, &rec.RequiredCount, &status, &snapshot, &update,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Record{}, fmt.Errorf("session %s: %w", code, apperrors.ErrNotFound)
		}
		return domain.Record{}, fmt.Errorf("load session %s: %w", code, err)
	}
	rec.CreatedAt = fromNanos(createdAt)
	rec.LastActivityAt = fromNanos(lastActivity)
	rec.PauseOpenedAt = fromNanos(pauseOpened)
	rec.UpdatedAt = fromNanos(update)
	rec.PausedTime = time.Duration(pausedTime)
	rec.Totals = domain.Totals{
		Total:    time.Duration(total),
		Active:   time.Duration(active),
		Paused:   time.Duration(paused),
		Idle:     time.Duration(idle),
		Inactive: time.Duration(ina),
	}
	rec.Status = domain.Status(status)
	if snapshot.Valid && snapshot.String != "" {
		rec.Snapshot = json.RawMessage(snapshot.String)
	}
	return rec, nil
}

func (l *SQLiteLedger) SaveSession(ctx context.Context, rec domain.Record) error {
	const stmt = `
INSERT INTO session_sheet (code, device_class, email, created_at, last_activity_at, paused_time_ns, pause_opened_at,
  current_task, total_ns, active_ns, paused_ns, idle_ns, inactive_ns,
  completed_count, required_count, status, snapshot, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(code) DO UPDATE SET
  device_class=excluded.device_class,
  email=excluded.email,
  created_at=excluded.created_at,
  last_activity_at=excluded.last_activity_at,
  paused_time_ns=excluded.paused_time_ns,
  pause_opened_at=excluded.pause_opened_at,
  current_task=excluded.current_task,
  total_ns=excluded.total_ns,
  active_ns=excluded.active_ns,
  paused_ns=excluded.paused_ns,
  idle_ns=excluded.idle_ns,
  inactive_ns=excluded.inactive_ns,
  completed_count=excluded.completed_count,
  required_count=excluded.required_count,
  status=excluded.status,
  snapshot=excluded.snapshot,
  updated_at=excluded.updated_at;
`
	var snapshot any
	if len(rec.Snapshot) > 0 {
		snapshot = string(rec.Snapshot)
	}
	_, err := l.db.ExecContext(ctx, stmt,
		rec.Code,
		rec.DeviceClass,
		rec.Email,
		toNanos(rec.CreatedAt),
		toNanos(rec.LastActivityAt),
		int64(rec.PausedTime),
		toNanos(rec.PauseOpenedAt),
		rec.CurrentTask,
		int64(rec.Totals.Total),
		int64(rec.Totals.Active),
		int64(rec.Totals.Paused),
		int64(rec.Totals.Idle),
		int64(rec.Totals.Inactive),
		rec.CompletedCount,
		rec.RequiredCount,
		string(rec.Status),
		snapshot,
		toNanos(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.Code, err)
	}
	return nil
}

func (l *SQLiteLedger) SessionCodes(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT code FROM session_sheet
UNION
SELECT DISTINCT session_code FROM event_sheet
ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("query session codes: %w", err)
	}
	defer rows.Close()
	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan session code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
