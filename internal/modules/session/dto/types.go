package dto

import "time"

type PreviewInput struct {
	Code        string
	DeviceClass string
}

type PreviewOutput struct {
	Code        string
	Seed        int32
	DeviceClass string
	Sequence    []string
}

type CreateInput struct {
	Email       string
	Name        string
	DeviceClass string
	// UserAgent is used to detect the device class when DeviceClass is empty.
	UserAgent  string
	Exemptions []string
	Meta       map[string]string
}

type TaskInput struct {
	Code string
	// Task defaults to the session's current task.
	Task   string
	Reason string
}

type RecordingInput struct {
	Code   string
	Status string
}

type TimeOutput struct {
	Elapsed         time.Duration
	Active          time.Duration
	Paused          time.Duration
	Inactive        time.Duration
	PauseCount      int
	ActivityPercent float64
}

type SessionOutput struct {
	Code            string
	Email           string
	DeviceClass     string
	Sequence        []string
	CurrentIndex    int
	CurrentTask     string
	CompletedTasks  []string
	SkippedTasks    []string
	Done            bool
	Paused          bool
	PauseReason     string
	RecordingStatus string
	Live            bool
	Session         TimeOutput
	Task            TimeOutput
	Totals          TimeOutput
	CreatedAt       time.Time
	LastActivityAt  time.Time
}
