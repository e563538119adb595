// Package schedule provides the timer abstraction used by bootstrap and
// persistence.
//
// Components never call time.AfterFunc directly. They take a Scheduler,
// which production code backs with the wall clock and tests back with a
// virtual clock they advance explicitly.
package schedule

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Cancel stops a scheduled callback. It reports whether the call stopped
// the callback before it ran. Calling Cancel more than once is safe.
type Cancel func() bool

// Scheduler runs fn once after delay, on a goroutine of its choosing.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Cancel
}

// ClockScheduler is a Scheduler driven by a clock.Clock.
//
// Thread-safety: safe for concurrent use.
type ClockScheduler struct {
	clock clock.Clock
}

// New returns a scheduler driven by c.
func New(c clock.Clock) *ClockScheduler {
	return &ClockScheduler{clock: c}
}

// Real returns a scheduler driven by the wall clock.
func Real() *ClockScheduler {
	return New(clock.New())
}

// Clock returns the underlying clock.
func (s *ClockScheduler) Clock() clock.Clock {
	return s.clock
}

// Schedule runs fn after delay. A non-positive delay still goes through
// the clock so that fn never runs on the caller's goroutine.
func (s *ClockScheduler) Schedule(delay time.Duration, fn func()) Cancel {
	if delay < 0 {
		delay = 0
	}
	t := s.clock.AfterFunc(delay, fn)
	var once sync.Once
	return func() bool {
		stopped := false
		once.Do(func() { stopped = t.Stop() })
		return stopped
	}
}

// Nop is a Cancel for a callback that was never scheduled.
func Nop() bool { return false }

// Sleep blocks until delay has elapsed on s or done is closed. It reports
// whether the full delay elapsed.
func Sleep(s Scheduler, delay time.Duration, done <-chan struct{}) bool {
	if delay <= 0 {
		return true
	}
	elapsed := make(chan struct{})
	cancel := s.Schedule(delay, func() { close(elapsed) })
	select {
	case <-elapsed:
		return true
	case <-done:
		cancel()
		return false
	}
}
