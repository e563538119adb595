package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/roach88/chatsync/internal/schedule"
)

// ManualScheduler is a schedule.Scheduler whose callbacks run synchronously
// inside Advance, in due-time order. Timers due at the same instant run in
// the order they were scheduled.
//
// Unlike the mock clock, which fires callbacks on fresh goroutines,
// ManualScheduler lets unit tests assert immediately after Advance.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
// Callbacks run without the mutex held, so they may schedule again.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int64
	timers []*manualTimer
}

type manualTimer struct {
	due     time.Duration
	seq     int64
	fn      func()
	stopped bool
}

// NewManualScheduler creates a scheduler at virtual time 0.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule implements schedule.Scheduler.
func (s *ManualScheduler) Schedule(delay time.Duration, fn func()) schedule.Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()

	if delay < 0 {
		delay = 0
	}
	s.seq++
	t := &manualTimer{due: s.now + delay, seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)

	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// Advance moves virtual time forward by d and runs every callback that
// falls due, including callbacks scheduled by earlier callbacks.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDueLocked(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		next.stopped = true
		s.now = next.due
		s.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of callbacks scheduled and not yet run or
// cancelled.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Now returns the elapsed virtual time.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Reset drops all timers and rewinds virtual time to 0.
func (s *ManualScheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = 0
	s.seq = 0
	s.timers = nil
}

func (s *ManualScheduler) nextDueLocked(target time.Duration) *manualTimer {
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	s.timers = live

	sort.SliceStable(s.timers, func(i, j int) bool {
		if s.timers[i].due != s.timers[j].due {
			return s.timers[i].due < s.timers[j].due
		}
		return s.timers[i].seq < s.timers[j].seq
	})
	if len(s.timers) == 0 || s.timers[0].due > target {
		return nil
	}
	return s.timers[0]
}
