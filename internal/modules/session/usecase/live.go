package usecase

import (
	"sync"

	activityout "studyrun/internal/modules/activity/port/out"
	"studyrun/internal/modules/session/domain"
	sessiondto "studyrun/internal/modules/session/dto"
	sessionout "studyrun/internal/modules/session/port/out"
	timerdomain "studyrun/internal/modules/timer/domain"
	"studyrun/internal/platform/clock"
)

type liveSession struct {
	code string

	mu       sync.Mutex
	snap     domain.Snapshot
	carry    timerdomain.Summary
	session  *timerdomain.Timer
	task     *timerdomain.Timer
	taskCode string
	external bool
	monitor  sessionout.ActivityMonitor
	autosave clock.Cancel
	closed   bool
}

var _ activityout.Targets = (*liveSession)(nil)

func (l *liveSession) SessionCode() string {
	return l.code
}

func (l *liveSession) Timers() []activityout.Timer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	timers := l.timersLocked()
	out := make([]activityout.Timer, 0, len(timers))
	for _, t := range timers {
		out = append(out, t)
	}
	return out
}

func (l *liveSession) ExternalTask() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.taskCode, l.external && l.taskCode != "" && !l.closed
}

func (l *liveSession) timersLocked() []*timerdomain.Timer {
	if l.task == nil {
		return []*timerdomain.Timer{l.session}
	}
	return []*timerdomain.Timer{l.session, l.task}
}

// sessionTimeLocked is the carried time of earlier segments plus the running
// segment.
func (l *liveSession) sessionTimeLocked() timerdomain.Summary {
	return l.carry.Add(l.session.Summary())
}

func (l *liveSession) outputLocked() sessiondto.SessionOutput {
	out := snapshotOutput(l.snap)
	out.Live = !l.closed
	out.Session = timeOutput(l.sessionTimeLocked())
	if l.task != nil {
		out.Task = timeOutput(l.task.Summary())
	}
	return out
}

func snapshotOutput(snap domain.Snapshot) sessiondto.SessionOutput {
	current, _ := snap.CurrentTask()
	return sessiondto.SessionOutput{
		Code:            snap.SessionCode,
		Email:           snap.Participant.Email,
		DeviceClass:     string(snap.Participant.DeviceClass),
		Sequence:        append([]string(nil), snap.Sequence...),
		CurrentIndex:    snap.CurrentIndex,
		CurrentTask:     current,
		CompletedTasks:  append([]string(nil), snap.CompletedTasks...),
		SkippedTasks:    append([]string(nil), snap.SkippedTasks...),
		Done:            snap.Done(),
		Paused:          snap.Pause.Paused,
		PauseReason:     string(snap.Pause.Reason),
		RecordingStatus: string(snap.Recording.Status),
		Session:         timeOutput(snap.SessionTime),
		Totals:          timeOutput(snap.Totals),
		CreatedAt:       snap.CreatedAt,
		LastActivityAt:  snap.LastActivityAt,
	}
}

func timeOutput(s timerdomain.Summary) sessiondto.TimeOutput {
	return sessiondto.TimeOutput{
		Elapsed:         s.Elapsed,
		Active:          s.Active,
		Paused:          s.Paused,
		Inactive:        s.Inactive,
		PauseCount:      s.PauseCount,
		ActivityPercent: s.ActivityPercent,
	}
}
