// Package audit defines the one-way event emission interface shared by the
// activity monitor and the session store.
package audit

import (
	"context"
	"sync"
	"time"
)

// Event types emitted by the client side.
const (
	EventSessionCreated    = "session_created"
	EventSessionResumed    = "session_resumed"
	EventSessionClosed     = "session_closed"
	EventSessionPaused     = "session_paused"
	EventSessionUnpaused   = "session_resumed_manual"
	EventTaskStarted       = "task_started"
	EventTaskCompleted     = "task_completed"
	EventTaskSkipped       = "task_skipped"
	EventRecording         = "recording_status"
	EventInactivityTimeout = "inactivity_timeout"
	EventExternalHeartbeat = "external_heartbeat"
	EventExternalStuck     = "external_stuck"
	EventSnapshotSaved     = "snapshot_saved"
)

type Event struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	SessionCode string         `json:"session_code"`
	Type        string         `json:"event_type"`
	Details     map[string]any `json:"details,omitempty"`
}

// Sink receives audit events. Emit never fails back into the caller;
// implementations swallow and optionally log delivery errors.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

type Discard struct{}

func (Discard) Emit(context.Context, Event) {}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the event types in emission order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
