package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/persist"
	"github.com/roach88/chatsync/internal/schedule"
)

// Defaults mirror the public deployment.
const (
	DefaultLiveTopic        = "pro-react-chat-app/realtime-chat-v3"
	DefaultSnapshotTopic    = "pro-react-chat-app/history-v3"
	DefaultBootstrapTimeout = 4 * time.Second
	DefaultExitGrace        = 200 * time.Millisecond
	DefaultFlushTimeout     = 5 * time.Second
	DefaultOutboxSize       = 256
)

// SnapshotSource fetches the snapshot from a request/response store.
// When configured, it replaces the retained snapshot channel for
// bootstrap.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) ([]byte, error)
}

// Option configures a Session.
type Option func(*Session)

// WithTopics sets the live and snapshot channel names.
func WithTopics(live, snapshot string) Option {
	return func(s *Session) {
		s.liveTopic = live
		s.snapshotTopic = snapshot
	}
}

// WithBootstrapTimeout bounds the wait for a snapshot.
//
// Default: 4s (DefaultBootstrapTimeout)
func WithBootstrapTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.bootstrapTimeout = d
	}
}

// WithPersistDelay sets the debounce quiet period.
//
// Default: 1.5s (persist.DefaultDelay)
func WithPersistDelay(d time.Duration) Option {
	return func(s *Session) {
		s.persistDelay = d
	}
}

// WithExitGrace sets the pause between the final flush and closing the
// transport. Zero disables it.
//
// Default: 200ms (DefaultExitGrace)
func WithExitGrace(d time.Duration) Option {
	return func(s *Session) {
		s.exitGrace = d
	}
}

// WithFlushTimeout bounds the final flush, each queued publish during
// teardown, and each wait for a subscribe or unsubscribe acknowledgement.
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.flushTimeout = d
	}
}

// WithQoS sets the publish and subscribe QoS.
//
// Default: transport.AtLeastOnce
func WithQoS(qos byte) Option {
	return func(s *Session) {
		s.qos = qos
	}
}

// WithScheduler sets the scheduler for the bootstrap and debounce timers.
func WithScheduler(sched schedule.Scheduler) Option {
	return func(s *Session) {
		s.sched = sched
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithMetrics sets the metrics sink. Default: NopMetrics().
func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithIDGenerator sets the message id generator.
//
// Default: chat.UUIDv7Generator
func WithIDGenerator(g chat.IDGenerator) Option {
	return func(s *Session) {
		s.ids = g
	}
}

// WithSnapshotSource bootstraps from src instead of the retained snapshot
// channel.
func WithSnapshotSource(src SnapshotSource) Option {
	return func(s *Session) {
		s.source = src
	}
}

// WithPersistWriter sends debounced snapshots to w instead of republishing
// them retained on the snapshot channel.
func WithPersistWriter(w persist.Writer) Option {
	return func(s *Session) {
		s.writer = w
	}
}

// WithObserver registers fn to receive every Update. fn runs on the
// session loop and must not block.
func WithObserver(fn func(Update)) Option {
	return func(s *Session) {
		s.observe = fn
	}
}

// WithOutboxSize bounds the number of local actions waiting to be
// published. When full, further actions are applied but not published.
func WithOutboxSize(n int) Option {
	return func(s *Session) {
		s.outboxSize = n
	}
}
