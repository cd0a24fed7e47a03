package out

import (
	"context"

	activityout "studyrun/internal/modules/activity/port/out"
)

// Backend is one persistence target for session snapshots. Get returns
// apperrors.ErrNotFound when key has never been written.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ActivityMonitor observes participant input for one live session.
type ActivityMonitor interface {
	Start(source activityout.InputSource)
	Stop()
	InactivityDetected(timer string)
}

// MonitorFactory builds a monitor bound to a live session's timers.
type MonitorFactory func(targets activityout.Targets) ActivityMonitor
