// Package bootstrap implements the history bootstrap state machine.
//
// A session starts in AwaitingSnapshot and moves to Live exactly once, on
// the first of: a snapshot payload, a failure to obtain one, or the
// bootstrap timer. Every later trigger is a stale race and is ignored.
//
// The machine decides; it does not act. Subscribing, unsubscribing and
// applying the resulting log are left to the caller, which receives an
// Outcome from the transition that won.
package bootstrap

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/codec"
	"github.com/roach88/chatsync/internal/schedule"
)

// Phase is the bootstrap state.
type Phase int

const (
	AwaitingSnapshot Phase = iota
	Live
)

func (p Phase) String() string {
	switch p {
	case AwaitingSnapshot:
		return "awaiting_snapshot"
	case Live:
		return "live"
	default:
		return "unknown"
	}
}

// Source names the trigger that ended bootstrap.
type Source string

const (
	SourceSnapshot Source = "snapshot"
	SourceTimeout  Source = "timeout"
	SourceFailure  Source = "failure"
)

// Outcome is the result of the winning transition.
type Outcome struct {
	// Log is the initial live log. Empty on timeout, failure or a cleared
	// snapshot.
	Log chat.Log

	Source Source

	// Cleared is set when the snapshot was the explicit empty sentinel.
	Cleared bool

	// Err carries the decode error of a malformed snapshot, or the error
	// passed to OnFailure. Bootstrap still completes with an empty log.
	Err error
}

// ErrStale is reported to observers when a trigger arrives after the
// machine is already Live.
var ErrStale = errors.New("bootstrap already completed")

// Machine is the bootstrap state machine.
//
// Thread-safety: safe for concurrent use. In the session, every method is
// called from the event loop and onTimeout only enqueues an event.
type Machine struct {
	mu        sync.Mutex
	sched     schedule.Scheduler
	timeout   time.Duration
	onTimeout func()
	logger    *slog.Logger

	phase    Phase
	started  bool
	received bool
	cancel   schedule.Cancel
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// New creates a machine in AwaitingSnapshot. onTimeout runs on the
// scheduler's goroutine when the timer elapses; the caller is expected to
// route it back to its own goroutine and call OnTimeout there.
func New(sched schedule.Scheduler, timeout time.Duration, onTimeout func(), opts ...Option) *Machine {
	m := &Machine{
		sched:     sched,
		timeout:   timeout,
		onTimeout: onTimeout,
		logger:    slog.Default(),
		cancel:    schedule.Nop,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start arms the bootstrap timer. Calling Start again, or after the
// machine is Live, does nothing.
func (m *Machine) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.phase == Live {
		return
	}
	m.started = true
	m.cancel = m.sched.Schedule(m.timeout, m.onTimeout)
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Received reports whether a snapshot payload won the race.
func (m *Machine) Received() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

// OnSnapshot handles a snapshot payload. It returns false if the machine
// was already Live; the payload is then a stale race and must be ignored.
//
// A malformed payload still completes bootstrap, with an empty log and
// Outcome.Err set.
func (m *Machine) OnSnapshot(payload []byte) (Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == Live {
		m.logger.Debug("stale snapshot ignored", "bytes", len(payload))
		return Outcome{}, false
	}
	m.received = true

	snap, err := codec.DecodeSnapshot(payload)
	if err != nil {
		m.goLiveLocked()
		return Outcome{Log: chat.NewLog(), Source: SourceSnapshot, Err: err}, true
	}
	m.goLiveLocked()
	return Outcome{Log: snap.Log(), Source: SourceSnapshot, Cleared: snap.Cleared}, true
}

// OnFailure completes bootstrap with an empty log when the snapshot could
// not be obtained at all.
func (m *Machine) OnFailure(err error) (Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == Live {
		return Outcome{}, false
	}
	m.goLiveLocked()
	return Outcome{Log: chat.NewLog(), Source: SourceFailure, Err: err}, true
}

// OnTimeout completes bootstrap with an empty log. A timer event that
// loses the race against a snapshot returns false.
func (m *Machine) OnTimeout() (Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == Live {
		return Outcome{}, false
	}
	m.goLiveLocked()
	return Outcome{Log: chat.NewLog(), Source: SourceTimeout}, true
}

// Stop cancels the timer without changing phase. Used on teardown.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel()
}

func (m *Machine) goLiveLocked() {
	m.phase = Live
	m.cancel()
}
