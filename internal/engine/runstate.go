package engine

import (
	"sync"
	"sync/atomic"
)

// RunState holds the externally controlled flags of one engine.
//
// The flags are atomics so the interpreter can read them without locking.
// Every change also closes the current notification channel, waking any
// goroutine blocked in a pause.
type RunState struct {
	cancelled atomic.Bool
	paused    atomic.Bool

	mu      sync.Mutex
	changed chan struct{}
}

func newRunState() *RunState {
	return &RunState{changed: make(chan struct{})}
}

// Cancelled reports whether Cancel was called since the last run started.
func (s *RunState) Cancelled() bool { return s.cancelled.Load() }

// Paused reports whether the engine is paused.
func (s *RunState) Paused() bool { return s.paused.Load() }

func (s *RunState) setPaused(v bool) {
	s.paused.Store(v)
	s.notify()
}

func (s *RunState) cancel() {
	s.cancelled.Store(true)
	s.notify()
}

func (s *RunState) resetCancelled() {
	s.cancelled.Store(false)
}

// wait returns a channel closed on the next flag change.
func (s *RunState) wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *RunState) notify() {
	s.mu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}
