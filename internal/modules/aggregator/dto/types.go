package dto

import (
	"encoding/json"
	"time"

	"studyrun/internal/modules/aggregator/domain"
)

// Accepted values of ActionRequest.Action.
const (
	ActionCreateSession = string(domain.ActionCreateSession)
	ActionLogEvent      = string(domain.ActionLogEvent)
	ActionStartTask     = string(domain.ActionStartTask)
	ActionCompleteTask  = string(domain.ActionCompleteTask)
	ActionSkipTask      = string(domain.ActionSkipTask)
	ActionPauseSession  = string(domain.ActionPauseSession)
	ActionResumeSession = string(domain.ActionResumeSession)
	ActionSaveSnapshot  = string(domain.ActionSaveSnapshot)
)

type ActionRequest struct {
	Action      string         `json:"action"`
	SessionCode string         `json:"session_code"`
	EventID     string         `json:"event_id,omitempty"`
	EventType   string         `json:"event_type,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Details     map[string]any `json:"details,omitempty"`
}

type ActionResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type TotalsOutput struct {
	TotalSeconds    float64 `json:"total_seconds"`
	ActiveSeconds   float64 `json:"active_seconds"`
	PausedSeconds   float64 `json:"paused_seconds"`
	IdleSeconds     float64 `json:"idle_seconds"`
	InactiveSeconds float64 `json:"inactive_seconds"`
}

type SummaryOutput struct {
	Code           string          `json:"code"`
	Email          string          `json:"email"`
	DeviceClass    string          `json:"device_class"`
	Status         string          `json:"status"`
	CurrentTask    string          `json:"current_task,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	Totals         TotalsOutput    `json:"totals"`
	RequiredTasks  []string        `json:"required_tasks"`
	FinishedTasks  []string        `json:"finished_tasks"`
	ExemptedTasks  []string        `json:"exempted_tasks,omitempty"`
	CompletedCount int             `json:"completed_count"`
	RequiredCount  int             `json:"required_count"`
	EventCount     int             `json:"event_count"`
	Snapshot       json.RawMessage `json:"snapshot,omitempty"`
}

type RepairOutput struct {
	Repaired int      `json:"repaired"`
	Failed   []string `json:"failed,omitempty"`
}
