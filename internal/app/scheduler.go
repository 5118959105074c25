package app

import (
	"sync"
	"time"
)

type TaskKind string

const (
	TaskQuestionTimeout  TaskKind = "question-timeout"
	TaskFinalLeaderboard TaskKind = "final-leaderboard"
	TaskHostGrace        TaskKind = "host-grace"
)

// TaskKey identifies a deferred task. QuestionID is empty for tasks that
// are not tied to a question.
type TaskKey struct {
	SessionID  string
	QuestionID string
	Kind       TaskKind
}

// Scheduler runs fn once after the delay. Tasks are never cancelled one by
// one; callbacks re-check the session state when they fire. Scheduling a key
// that is still pending replaces it.
type Scheduler interface {
	Schedule(key TaskKey, after time.Duration, fn func())
	Stop()
}

// TimerScheduler is a Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[TaskKey]*time.Timer
	stopped bool
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[TaskKey]*time.Timer)}
}

func (s *TimerScheduler) Schedule(key TaskKey, after time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(after, func() {
		s.mu.Lock()
		if s.timers[key] == t {
			delete(s.timers, key)
		}
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = t
}

// Pending is the number of tasks that have not fired yet.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop drops every pending task. Later Schedule calls are ignored.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
