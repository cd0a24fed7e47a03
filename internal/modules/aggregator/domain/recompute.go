package domain

import (
	"slices"
	"sort"
	"time"

	sequencedomain "studyrun/internal/modules/sequence/domain"
)

// Window is the span covered by a session's log and record timestamps.
type Window struct {
	Earliest time.Time
	Latest   time.Time
}

func RecomputeWindow(rec Record, events []Event) Window {
	w := Window{}
	observe := func(ts time.Time) {
		if ts.IsZero() {
			return
		}
		if w.Earliest.IsZero() || ts.Before(w.Earliest) {
			w.Earliest = ts
		}
		if ts.After(w.Latest) {
			w.Latest = ts
		}
	}
	observe(rec.CreatedAt)
	observe(rec.LastActivityAt)
	for _, e := range events {
		observe(e.Timestamp)
	}
	return w
}

// RecomputeTotals derives totals from the log. Only the latest finishing
// event of each task counts, so a retried delivery is not added twice.
func RecomputeTotals(rec Record, events []Event) Totals {
	w := RecomputeWindow(rec, events)
	totals := Totals{Paused: rec.PausedTime}
	if !w.Earliest.IsZero() {
		totals.Total = w.Latest.Sub(w.Earliest)
	}
	for _, e := range latestFinishes(events) {
		totals.Active += e.Seconds("active_seconds")
		totals.Inactive += e.Seconds("inactive_seconds")
	}
	totals.Idle = totals.Total - totals.Active - totals.Paused
	if totals.Idle < 0 {
		totals.Idle = 0
	}
	return totals
}

// RecomputePauses folds pause and resume events in timestamp order, so the
// result does not depend on delivery order. A pause that is still open is
// returned as openedAt.
func RecomputePauses(events []Event) (paused time.Duration, openedAt time.Time) {
	ordered := slices.Clone(events)
	SortEvents(ordered)
	for _, e := range ordered {
		switch e.Action {
		case ActionPauseSession:
			if openedAt.IsZero() {
				openedAt = e.Timestamp
			}
		case ActionResumeSession:
			if openedAt.IsZero() {
				continue
			}
			if d := e.Timestamp.Sub(openedAt); d > 0 {
				paused += d
			}
			openedAt = time.Time{}
		}
	}
	return paused, openedAt
}

// Completion is the required-versus-finished view of a session.
type Completion struct {
	Required  []string
	Finished  []string
	Exempted  []string
	Completed int
	Status    Status
}

// RecomputeCompletion counts required tasks with a completion or skip event.
// A task is not required when any event declares its exemption tag.
func RecomputeCompletion(catalog sequencedomain.Catalog, rec Record, events []Event) Completion {
	declared := map[string]bool{}
	finished := map[string]bool{}
	for _, e := range events {
		for _, tag := range e.Exemptions() {
			declared[tag] = true
		}
		if e.Action.Finishes() && e.Task() != "" {
			finished[e.Task()] = true
		}
	}

	c := Completion{Required: []string{}, Finished: []string{}, Exempted: []string{}}
	for _, code := range catalog.TasksFor(sequencedomain.ParseDeviceClass(rec.DeviceClass)) {
		task, ok := catalog.Task(code)
		if ok && task.ExemptionTag != "" && declared[task.ExemptionTag] {
			c.Exempted = append(c.Exempted, code)
			continue
		}
		c.Required = append(c.Required, code)
		if finished[code] {
			c.Completed++
		}
	}
	for code := range finished {
		c.Finished = append(c.Finished, code)
	}
	sort.Strings(c.Finished)

	switch {
	case len(c.Required) > 0 && c.Completed == len(c.Required):
		c.Status = StatusComplete
	case !rec.PauseOpenedAt.IsZero():
		c.Status = StatusPaused
	default:
		c.Status = StatusActive
	}
	return c
}

// Recompute refreshes every derived field of rec from the log.
func Recompute(catalog sequencedomain.Catalog, rec Record, events []Event) Record {
	w := RecomputeWindow(rec, events)
	if rec.CreatedAt.IsZero() || (!w.Earliest.IsZero() && w.Earliest.Before(rec.CreatedAt)) {
		rec.CreatedAt = w.Earliest
	}
	if w.Latest.After(rec.LastActivityAt) {
		rec.LastActivityAt = w.Latest
	}
	rec.PausedTime, rec.PauseOpenedAt = RecomputePauses(events)
	rec.Totals = RecomputeTotals(rec, events)
	completion := RecomputeCompletion(catalog, rec, events)
	rec.RequiredCount = len(completion.Required)
	rec.CompletedCount = completion.Completed
	rec.Status = completion.Status
	return rec
}

// Replay rebuilds a record from nothing but its log.
func Replay(catalog sequencedomain.Catalog, code string, events []Event) (Record, error) {
	rec := Record{Code: code}
	for _, e := range events {
		if err := rec.Apply(e); err != nil {
			return Record{}, err
		}
	}
	return Recompute(catalog, rec, events), nil
}

func latestFinishes(events []Event) []Event {
	latest := map[string]Event{}
	order := []string{}
	for _, e := range events {
		if !e.Action.Finishes() || e.Task() == "" {
			continue
		}
		task := e.Task()
		prev, seen := latest[task]
		if !seen {
			order = append(order, task)
		}
		if !seen || !e.Timestamp.Before(prev.Timestamp) {
			latest[task] = e
		}
	}
	out := make([]Event, 0, len(order))
	for _, task := range order {
		out = append(out, latest[task])
	}
	return out
}

// SortEvents orders events by timestamp, keeping arrival order for ties.
func SortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}
