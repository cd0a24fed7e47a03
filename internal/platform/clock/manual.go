package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a hand-driven Clock and Scheduler. Advance moves time forward and
// fires every registration that comes due, in due-time order, on the caller's
// goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	jobs   map[int]*manualJob
}

type manualJob struct {
	id       int
	interval time.Duration
	due      time.Time
	fn       func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start, jobs: map[int]*manualJob{}}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Every(interval time.Duration, fn func()) Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.jobs[id] = &manualJob{id: id, interval: interval, due: m.now.Add(interval), fn: fn}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.jobs, id)
	}
}

// Pending reports how many registrations are still active.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Advance moves the clock forward by d, firing due callbacks as it goes.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	for {
		m.mu.Lock()
		job := m.nextDue(target)
		if job == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = job.due
		job.due = job.due.Add(job.interval)
		fn := job.fn
		m.mu.Unlock()
		fn()
	}
}

// Set jumps the clock to t without firing anything, like a frozen tab waking up.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
	for _, job := range m.jobs {
		if job.due.Before(t) {
			job.due = t.Add(job.interval)
		}
	}
}

func (m *Manual) nextDue(target time.Time) *manualJob {
	due := make([]*manualJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		if !job.due.After(target) {
			due = append(due, job)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})
	return due[0]
}
