package out

import (
	"studyrun/internal/modules/activity/domain"
	timerdomain "studyrun/internal/modules/timer/domain"
)

// InputSource delivers signals to subscribers until they unsubscribe.
type InputSource interface {
	Subscribe(handler func(domain.Signal)) (unsubscribe func())
}

// Timer is the part of a timer the monitor drives.
type Timer interface {
	RecordActivity() bool
	Pause(reason timerdomain.PauseReason) bool
	Resume() bool
	State() (timerdomain.State, timerdomain.PauseReason)
}

// Targets resolves the timers to drive at the moment a signal arrives, so a
// task timer replaced between tasks is picked up without resubscribing.
type Targets interface {
	SessionCode() string
	Timers() []Timer
	// ExternalTask reports the current task when it is an external redirect.
	ExternalTask() (code string, ok bool)
}
