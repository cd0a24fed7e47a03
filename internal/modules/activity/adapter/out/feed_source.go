package out

import (
	"sync"

	"studyrun/internal/modules/activity/domain"
	activityout "studyrun/internal/modules/activity/port/out"
	"studyrun/internal/platform/clock"
)

// FeedSource is an input source fed programmatically, by a terminal program
// or by a test replaying synthetic events.
type FeedSource struct {
	clock clock.Clock

	mu       sync.Mutex
	nextID   int
	handlers map[int]func(domain.Signal)
}

var _ activityout.InputSource = (*FeedSource)(nil)

func NewFeedSource(clk clock.Clock) *FeedSource {
	return &FeedSource{clock: clk, handlers: map[int]func(domain.Signal){}}
}

func (f *FeedSource) Subscribe(handler func(domain.Signal)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.handlers[id] = handler
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.handlers, id)
		})
	}
}

// Emit publishes a signal of kind stamped with the current time.
func (f *FeedSource) Emit(kind domain.SignalKind) {
	f.Publish(domain.Signal{Kind: kind, At: f.clock.Now()})
}

func (f *FeedSource) Publish(sig domain.Signal) {
	f.mu.Lock()
	handlers := make([]func(domain.Signal), 0, len(f.handlers))
	for id := 1; id <= f.nextID; id++ {
		if h, ok := f.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(sig)
	}
}

// Subscribers reports how many handlers are attached.
func (f *FeedSource) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}
