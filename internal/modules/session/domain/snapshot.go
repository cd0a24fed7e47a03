package domain

import (
	"fmt"
	"slices"
	"time"

	sequencedomain "studyrun/internal/modules/sequence/domain"
	timerdomain "studyrun/internal/modules/timer/domain"
)

const SchemaVersion = 2

type Participant struct {
	Email       string                     `json:"email"`
	Name        string                     `json:"name,omitempty"`
	DeviceClass sequencedomain.DeviceClass `json:"device_class"`
	// Exemptions are declarations such as "non_signer" that remove tasks
	// carrying the same exemption tag from the required set.
	Exemptions []string          `json:"exemptions,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

type PauseState struct {
	Count  int                     `json:"count"`
	Paused bool                    `json:"paused"`
	Reason timerdomain.PauseReason `json:"reason,omitempty"`
	Since  time.Time               `json:"since,omitempty"`
}

type RecordingStatus string

const (
	RecordingIdle     RecordingStatus = "idle"
	RecordingActive   RecordingStatus = "recording"
	RecordingUploaded RecordingStatus = "uploaded"
	RecordingFailed   RecordingStatus = "failed"
)

func (s RecordingStatus) Validate() error {
	switch s {
	case RecordingIdle, RecordingActive, RecordingUploaded, RecordingFailed:
		return nil
	default:
		return fmt.Errorf("unknown recording status %q", s)
	}
}

type Recording struct {
	TaskCode  string          `json:"task_code,omitempty"`
	Status    RecordingStatus `json:"status"`
	Attempts  int             `json:"attempts"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}

// Snapshot is the persisted state of one participant session. It is the unit
// written to every backend.
type Snapshot struct {
	SchemaVersion  int                 `json:"schema_version"`
	SessionCode    string              `json:"session_code"`
	Participant    Participant         `json:"participant"`
	Sequence       []string            `json:"sequence"`
	CurrentIndex   int                 `json:"current_index"`
	CompletedTasks []string            `json:"completed_tasks"`
	SkippedTasks   []string            `json:"skipped_tasks"`
	Totals         timerdomain.Summary `json:"totals"`
	SessionTime    timerdomain.Summary `json:"session_time"`
	Pause          PauseState          `json:"pause"`
	Recording      Recording           `json:"recording"`
	CreatedAt      time.Time           `json:"created_at"`
	LastActivityAt time.Time           `json:"last_activity_at"`
}

// CurrentTask returns the task at CurrentIndex, or false once the sequence is
// exhausted.
func (s Snapshot) CurrentTask() (string, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Sequence) {
		return "", false
	}
	return s.Sequence[s.CurrentIndex], true
}

func (s Snapshot) Done() bool {
	_, ok := s.CurrentTask()
	return !ok
}

func (s Snapshot) InSequence(code string) bool {
	return slices.Contains(s.Sequence, code)
}

// Finished reports whether code was completed or skipped.
func (s Snapshot) Finished(code string) bool {
	return slices.Contains(s.CompletedTasks, code) || slices.Contains(s.SkippedTasks, code)
}

// MarkCompleted adds code to the completed set. It reports false when the
// task was already completed.
func (s *Snapshot) MarkCompleted(code string) bool {
	if slices.Contains(s.CompletedTasks, code) {
		return false
	}
	s.CompletedTasks = append(s.CompletedTasks, code)
	return true
}

func (s *Snapshot) MarkSkipped(code string) bool {
	if slices.Contains(s.SkippedTasks, code) {
		return false
	}
	s.SkippedTasks = append(s.SkippedTasks, code)
	return true
}

// Advance moves CurrentIndex past every task that is already finished.
func (s *Snapshot) Advance() {
	if s.CurrentIndex < 0 {
		s.CurrentIndex = 0
	}
	for s.CurrentIndex < len(s.Sequence) && s.Finished(s.Sequence[s.CurrentIndex]) {
		s.CurrentIndex++
	}
}

// Clone returns a copy that shares no slices or maps with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Sequence = slices.Clone(s.Sequence)
	out.CompletedTasks = slices.Clone(s.CompletedTasks)
	out.SkippedTasks = slices.Clone(s.SkippedTasks)
	out.Participant.Exemptions = slices.Clone(s.Participant.Exemptions)
	if s.Participant.Meta != nil {
		out.Participant.Meta = make(map[string]string, len(s.Participant.Meta))
		for k, v := range s.Participant.Meta {
			out.Participant.Meta[k] = v
		}
	}
	return out
}

// Dedupe drops repeated codes from the completed and skipped sets, keeping
// first occurrence order. Older documents stored them as plain arrays.
func (s *Snapshot) Dedupe() {
	s.CompletedTasks = dedupe(s.CompletedTasks)
	s.SkippedTasks = dedupe(s.SkippedTasks)
}

func dedupe(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" || slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}
