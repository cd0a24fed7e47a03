package out

import (
	"context"

	"studyrun/internal/platform/audit"
	"studyrun/internal/platform/id"
)

// MultiSink fans every event out to each sink in order. Events are given an
// ID first so every sink records the same one.
type MultiSink []audit.Sink

var _ audit.Sink = MultiSink(nil)

func (m MultiSink) Emit(ctx context.Context, event audit.Event) {
	if event.ID == "" {
		event.ID = id.UUID{}.New()
	}
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}
