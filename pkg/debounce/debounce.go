// Package debounce coalesces bursts of trigger events into at most one
// downstream action per quiescence window. Each key owns an independent
// timer, so a short window for coordinate edits and a longer window for
// free-text search can be in flight at the same time.
package debounce

import (
	"sync"
	"time"
)

// Scheduler schedules actions to run after a quiescence window. Scheduling
// under a key that already has a pending action cancels the pending one, so
// a burst of N schedule calls within the window yields exactly one
// execution, using the function captured at the last call.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	gens    map[string]uint64
	stopped bool
}

// NewScheduler creates a scheduler with no pending actions.
func NewScheduler() *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		gens:   make(map[string]uint64),
	}
}

// Schedule cancels any pending action under key and arms fn to run after
// delay of quiescence. fn runs on a timer goroutine; it must serialize its
// own access to shared state.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if t, ok := s.timers[key]; ok {
		t.Stop()
	}

	// The generation counter guards against a timer that already fired but
	// whose callback has not yet acquired the lock: such a callback sees a
	// newer generation and returns without running its stale fn.
	s.gens[key]++
	gen := s.gens[key]

	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.stopped || s.gens[key] != gen {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()

		fn()
	})
}

// Cancel drops any pending action under key. It is a no-op if nothing is
// pending.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
	s.gens[key]++
}

// Pending reports whether an action is currently scheduled under key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Stop cancels every pending action and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	s.stopped = true
}
