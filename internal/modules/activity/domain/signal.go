package domain

import (
	"fmt"
	"time"
)

type SignalKind string

const (
	SignalInput   SignalKind = "input"
	SignalHidden  SignalKind = "visibility_hidden"
	SignalVisible SignalKind = "visibility_visible"
	SignalBlur    SignalKind = "blur"
	SignalFocus   SignalKind = "focus"
)

func (k SignalKind) Validate() error {
	switch k {
	case SignalInput, SignalHidden, SignalVisible, SignalBlur, SignalFocus:
		return nil
	default:
		return fmt.Errorf("unknown signal kind %q", k)
	}
}

// Signal is one observation from an input source: pointer or keyboard input,
// a visibility change, or a window focus change.
type Signal struct {
	Kind SignalKind
	At   time.Time
}

// EventType is the audit event type a signal is forwarded as.
func (k SignalKind) EventType() string {
	return "activity_" + string(k)
}
