package zwave

import (
	"sync"
	"time"
)

// Timer purpose tags. Scheduling under a tag replaces any earlier timer
// with the same tag, so two oscillators can never race for one device.
const (
	timerTagFlash       = "flash"
	timerTagEffectCheck = "effect-check"
)

// Scheduler runs one-shot deferred callbacks keyed by purpose tag.
//
// Each device holds its own scheduler; tags are scoped to it. Callbacks
// fire on timer goroutines and are expected to re-enter the bridge's
// dispatch path like any inbound event.
//
// Thread Safety: all methods are safe for concurrent use.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*time.Timer)}
}

// ScheduleOnce arranges for fn to run once after delay under the given
// purpose tag, cancelling and replacing any timer already scheduled under
// that tag.
func (s *Scheduler) ScheduleOnce(tag string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if t, ok := s.timers[tag]; ok {
		t.Stop()
	}

	s.timers[tag] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, tag)
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			fn()
		}
	})
}

// Cancel stops any timer scheduled under the tag. A missing tag is a no-op.
func (s *Scheduler) Cancel(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[tag]; ok {
		t.Stop()
		delete(s.timers, tag)
	}
}

// Pending reports whether a timer is scheduled under the tag.
func (s *Scheduler) Pending(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[tag]
	return ok
}

// Stop cancels all timers and rejects further scheduling. Used during
// bridge shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for tag, t := range s.timers {
		t.Stop()
		delete(s.timers, tag)
	}
}
