package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Action string

const (
	ActionCreateSession Action = "create_session"
	ActionLogEvent      Action = "log_event"
	ActionStartTask     Action = "start_task"
	ActionCompleteTask  Action = "complete_task"
	ActionSkipTask      Action = "skip_task"
	ActionPauseSession  Action = "pause_session"
	ActionResumeSession Action = "resume_session"
	ActionSaveSnapshot  Action = "save_snapshot"
)

// Valid reports whether a is one of the accepted actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreateSession, ActionLogEvent, ActionStartTask, ActionCompleteTask,
		ActionSkipTask, ActionPauseSession, ActionResumeSession, ActionSaveSnapshot:
		return true
	default:
		return false
	}
}

// Finishes reports whether the action closes out a task.
func (a Action) Finishes() bool {
	return a == ActionCompleteTask || a == ActionSkipTask
}

// Event is one append-only entry of a session's log.
type Event struct {
	ID          string
	SessionCode string
	Action      Action
	Type        string
	Timestamp   time.Time
	Details     map[string]any
}

// Task returns the task code named by the event, if any.
func (e Event) Task() string {
	return stringDetail(e.Details, "task")
}

// Exemptions returns the declarations carried by the event's exemption detail.
func (e Event) Exemptions() []string {
	raw := stringDetail(e.Details, "exemption")
	if raw == "" {
		return nil
	}
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Seconds reads a numeric detail as a duration in seconds.
func (e Event) Seconds(key string) time.Duration {
	v, ok := numberDetail(e.Details, key)
	if !ok || v < 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusComplete Status = "complete"
)

type Totals struct {
	Total time.Duration
	// Active is the timer-measured engagement summed over finished tasks.
	Active time.Duration
	Paused time.Duration
	// Idle is time unaccounted by active or paused tracking.
	Idle time.Duration
	// Inactive is the timer-tracked inactivity summed over finished tasks.
	Inactive time.Duration
}

// Record is the typed, server-side view of one session. Every derived field
// can be rebuilt from the event log.
type Record struct {
	Code           string
	DeviceClass    string
	Email          string
	CreatedAt      time.Time
	LastActivityAt time.Time
	PausedTime     time.Duration
	PauseOpenedAt  time.Time
	CurrentTask    string
	Totals         Totals
	CompletedCount int
	RequiredCount  int
	Status         Status
	Snapshot       json.RawMessage
	UpdatedAt      time.Time
}

// Apply folds one event into the record's directly observed fields. Derived
// fields are left to Recompute.
func (r *Record) Apply(e Event) error {
	if !e.Action.Valid() {
		return fmt.Errorf("unknown action %q", e.Action)
	}
	if r.Code == "" {
		r.Code = e.SessionCode
	}
	ts := e.Timestamp
	switch e.Action {
	case ActionCreateSession:
		if email := stringDetail(e.Details, "email"); email != "" {
			r.Email = email
		}
		if device := stringDetail(e.Details, "device_class"); device != "" {
			r.DeviceClass = device
		}
		if !ts.IsZero() && (r.CreatedAt.IsZero() || ts.Before(r.CreatedAt)) {
			r.CreatedAt = ts
		}
	case ActionStartTask:
		r.CurrentTask = e.Task()
	case ActionCompleteTask, ActionSkipTask:
		if r.CurrentTask == e.Task() {
			r.CurrentTask = ""
		}
	case ActionSaveSnapshot:
		if snap, ok := e.Details["snapshot"]; ok {
			raw, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("encode snapshot detail: %w", err)
			}
			r.Snapshot = raw
		}
	}
	if ts.After(r.LastActivityAt) {
		r.LastActivityAt = ts
	}
	return nil
}

func stringDetail(details map[string]any, key string) string {
	v, ok := details[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []string:
		return strings.Join(s, ",")
	case []any:
		parts := make([]string, 0, len(s))
		for _, p := range s {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(s)
	}
}

func numberDetail(details map[string]any, key string) (float64, bool) {
	switch v := details[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
