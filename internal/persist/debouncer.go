package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/codec"
	"github.com/roach88/chatsync/internal/schedule"
)

// DefaultDelay is the quiet period before a scheduled write.
const DefaultDelay = 1500 * time.Millisecond

// DefaultWriteTimeout bounds a timer-driven write.
const DefaultWriteTimeout = 10 * time.Second

// Result describes what happened to one write attempt.
type Result string

const (
	ResultWritten   Result = "written"
	ResultUnchanged Result = "unchanged"
	ResultFailed    Result = "failed"
)

// Debouncer coalesces snapshot writes.
//
// Thread-safety: safe for concurrent use. Timer-driven writes run on the
// scheduler's goroutine; writes never overlap.
//
// INVARIANTS:
//   - no write happens before Enable
//   - only the most recently scheduled view is written (last write wins)
//   - a view identical to the last successful write is not written again
type Debouncer struct {
	sched        schedule.Scheduler
	delay        time.Duration
	writer       Writer
	logger       *slog.Logger
	writeTimeout time.Duration
	observe      func(Result, error)

	mu      sync.Mutex
	enabled bool
	stopped bool
	pending []chat.Message
	gen     uint64
	cancel  schedule.Cancel

	writeMu    sync.Mutex
	lastDigest string
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Debouncer) {
		d.logger = l
	}
}

// WithWriteTimeout bounds each timer-driven write.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(d *Debouncer) {
		d.writeTimeout = timeout
	}
}

// WithObserver registers fn to be told the result of every write attempt.
// fn runs on the writing goroutine.
func WithObserver(fn func(Result, error)) Option {
	return func(d *Debouncer) {
		d.observe = fn
	}
}

// NewDebouncer creates a gated debouncer.
func NewDebouncer(sched schedule.Scheduler, delay time.Duration, w Writer, opts ...Option) *Debouncer {
	d := &Debouncer{
		sched:        sched,
		delay:        delay,
		writer:       w,
		logger:       slog.Default(),
		writeTimeout: DefaultWriteTimeout,
		observe:      func(Result, error) {},
		cancel:       schedule.Nop,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enable opens the gate. Mutations scheduled before Enable were dropped;
// the caller schedules the current log again if it needs writing.
func (d *Debouncer) Enable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = true
}

// Enabled reports whether the gate is open.
func (d *Debouncer) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Schedule records msgs as the latest view and restarts the quiet period.
// It reports whether a write was scheduled; it is not while gated or
// stopped.
func (d *Debouncer) Schedule(msgs []chat.Message) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled || d.stopped {
		return false
	}
	d.cancel()
	d.pending = Filter(msgs)
	d.gen++
	gen := d.gen
	d.cancel = d.sched.Schedule(d.delay, func() { d.fire(gen) })
	return true
}

// Flush cancels any pending write and writes msgs now. It is a no-op
// while gated. Flush still works after Stop: teardown stops the timer
// first and flushes last.
func (d *Debouncer) Flush(ctx context.Context, msgs []chat.Message) error {
	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return nil
	}
	d.cancel()
	d.pending = nil
	d.gen++
	d.mu.Unlock()

	_, err := d.write(ctx, Filter(msgs))
	return err
}

// Stop cancels any pending write and refuses later Schedule calls.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.cancel()
	d.pending = nil
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.stopped {
		d.mu.Unlock()
		return
	}
	msgs := d.pending
	d.pending = nil
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.writeTimeout)
	defer cancel()
	_, _ = d.write(ctx, msgs)
}

func (d *Debouncer) write(ctx context.Context, msgs []chat.Message) (Result, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	data, err := codec.EncodeSnapshot(msgs)
	if err != nil {
		err = fmt.Errorf("persist: %w", err)
		d.observe(ResultFailed, err)
		return ResultFailed, err
	}
	digest := chat.Digest(chat.DomainSnapshot, data)
	if digest == d.lastDigest {
		d.observe(ResultUnchanged, nil)
		return ResultUnchanged, nil
	}

	if err := d.writer.Write(ctx, msgs); err != nil {
		d.logger.Warn("snapshot write failed", "messages", len(msgs), "error", err)
		err = fmt.Errorf("persist: %w", err)
		d.observe(ResultFailed, err)
		return ResultFailed, err
	}
	d.lastDigest = digest
	d.logger.Debug("snapshot written", "messages", len(msgs), "digest", digest[:12])
	d.observe(ResultWritten, nil)
	return ResultWritten, nil
}
