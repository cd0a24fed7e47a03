package tx

import (
	"context"
	"fmt"
	"time"

	apperrors "studyrun/internal/platform/errors"
)

// Manager wraps transactional boundaries for multi-adapter operations.
type Manager interface {
	Within(ctx context.Context, fn func(context.Context) error) error
}

// DefaultLockTimeout bounds how long a writer waits for the document lock.
const DefaultLockTimeout = 30 * time.Second

// DocumentLock serializes every writer against the whole backing store. A
// caller that cannot acquire it within the timeout fails with
// apperrors.ErrLockTimeout instead of waiting forever.
type DocumentLock struct {
	sem     chan struct{}
	timeout time.Duration
}

func NewDocumentLock(timeout time.Duration) *DocumentLock {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &DocumentLock{sem: make(chan struct{}, 1), timeout: timeout}
}

func (l *DocumentLock) Within(ctx context.Context, fn func(context.Context) error) error {
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()
	select {
	case l.sem <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("%w after %s", apperrors.ErrLockTimeout, l.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()
	return fn(ctx)
}
