package out

import (
	"context"
	"sync"
	"sync/atomic"

	hclog "github.com/hashicorp/go-hclog"

	"studyrun/internal/platform/audit"
)

const DefaultAsyncQueue = 256

// AsyncSink hands events to a slower sink on a background goroutine. Emit
// never blocks: when the queue is full the event is dropped and counted.
type AsyncSink struct {
	next  audit.Sink
	queue chan audit.Event
	log   hclog.Logger

	dropped   atomic.Int64
	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

var _ audit.Sink = (*AsyncSink)(nil)

func NewAsyncSink(next audit.Sink, size int, log hclog.Logger) *AsyncSink {
	if size <= 0 {
		size = DefaultAsyncQueue
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	s := &AsyncSink{
		next:  next,
		queue: make(chan audit.Event, size),
		log:   log.Named("audit-async"),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for event := range s.queue {
		s.next.Emit(context.Background(), event)
	}
}

func (s *AsyncSink) Emit(_ context.Context, event audit.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- event:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.log.Warn("audit queue full, dropping events", "dropped", n)
		}
	}
}

// Dropped reports how many events were discarded.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to end.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
