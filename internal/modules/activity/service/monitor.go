package service

import (
	"context"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"studyrun/internal/modules/activity/domain"
	activityout "studyrun/internal/modules/activity/port/out"
	timerdomain "studyrun/internal/modules/timer/domain"
	"studyrun/internal/platform/audit"
	"studyrun/internal/platform/clock"
)

const (
	HeartbeatInterval = 30 * time.Second
	StuckAfter        = 10 * time.Minute
)

type Monitor struct {
	targets activityout.Targets
	sink    audit.Sink
	clock   clock.Clock
	sched   clock.Scheduler
	log     hclog.Logger

	mu          sync.Mutex
	unsubscribe func()
	heartbeat   clock.Cancel
	awaySince   time.Time
	awayTask    string
	stuckSent   bool
}

func NewMonitor(targets activityout.Targets, sink audit.Sink, clk clock.Clock, sched clock.Scheduler, log hclog.Logger) *Monitor {
	if sink == nil {
		sink = audit.Discard{}
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Monitor{targets: targets, sink: sink, clock: clk, sched: sched, log: log.Named("monitor")}
}

// Start subscribes to source. A monitor observes one source at a time.
func (m *Monitor) Start(source activityout.InputSource) {
	unsubscribe := source.Subscribe(m.Handle)
	m.mu.Lock()
	previous := m.unsubscribe
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
	if previous != nil {
		previous()
	}
}

// Stop unsubscribes and cancels any running heartbeat.
func (m *Monitor) Stop() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	heartbeat := m.stopHeartbeatLocked()
	m.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	if heartbeat != nil {
		heartbeat()
	}
}

func (m *Monitor) Handle(sig domain.Signal) {
	if err := sig.Kind.Validate(); err != nil {
		m.log.Warn("ignoring signal", "error", err)
		return
	}
	timers := m.targets.Timers()
	var stopBeat clock.Cancel

	switch sig.Kind {
	case domain.SignalInput:
		for _, t := range timers {
			t.RecordActivity()
		}
	case domain.SignalHidden:
		for _, t := range timers {
			t.Pause(timerdomain.PauseVisibility)
		}
	case domain.SignalBlur:
		for _, t := range timers {
			t.Pause(timerdomain.PauseBlur)
		}
		if task, ok := m.targets.ExternalTask(); ok {
			m.startHeartbeat(task)
		}
	case domain.SignalVisible, domain.SignalFocus:
		for _, t := range timers {
			// Manual and inactivity pauses outlive the participant coming back.
			if _, reason := t.State(); reason == timerdomain.PauseVisibility || reason == timerdomain.PauseBlur {
				t.Resume()
			}
		}
		m.mu.Lock()
		stopBeat = m.stopHeartbeatLocked()
		m.mu.Unlock()
	}
	if stopBeat != nil {
		stopBeat()
	}
	m.emit(sig.Kind.EventType(), map[string]any{"signal": string(sig.Kind)})
}

// InactivityDetected is called when a timer auto-pauses for inactivity.
func (m *Monitor) InactivityDetected(timer string) {
	m.emit(audit.EventInactivityTimeout, map[string]any{"timer": timer})
}

func (m *Monitor) startHeartbeat(task string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.heartbeat != nil || m.sched == nil {
		return
	}
	m.awaySince = m.clock.Now()
	m.awayTask = task
	m.stuckSent = false
	m.heartbeat = m.sched.Every(HeartbeatInterval, m.beat)
}

func (m *Monitor) stopHeartbeatLocked() clock.Cancel {
	cancel := m.heartbeat
	m.heartbeat = nil
	m.awayTask = ""
	return cancel
}

func (m *Monitor) beat() {
	m.mu.Lock()
	if m.heartbeat == nil {
		m.mu.Unlock()
		return
	}
	away := m.clock.Now().Sub(m.awaySince)
	task := m.awayTask
	stuck := away >= StuckAfter && !m.stuckSent
	if stuck {
		m.stuckSent = true
	}
	m.mu.Unlock()

	details := map[string]any{"task": task, "away_seconds": int64(away / time.Second)}
	m.emit(audit.EventExternalHeartbeat, details)
	if stuck {
		m.log.Warn("participant away from external task", "task", task, "away", away)
		m.emit(audit.EventExternalStuck, details)
	}
}

func (m *Monitor) emit(eventType string, details map[string]any) {
	m.sink.Emit(context.Background(), audit.Event{
		Timestamp:   m.clock.Now(),
		SessionCode: m.targets.SessionCode(),
		Type:        eventType,
		Details:     details,
	})
}
