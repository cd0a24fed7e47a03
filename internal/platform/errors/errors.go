package apperrors

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrNoActiveSession = errors.New("no active session")
	ErrSessionClosed   = errors.New("session is closed")
	ErrLockTimeout     = errors.New("document lock timeout")
	ErrUnknownAction   = errors.New("unknown action")
)
