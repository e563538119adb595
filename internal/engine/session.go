package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/chatsync/internal/bootstrap"
	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/codec"
	"github.com/roach88/chatsync/internal/persist"
	"github.com/roach88/chatsync/internal/reducer"
	"github.com/roach88/chatsync/internal/schedule"
	"github.com/roach88/chatsync/internal/transport"
)

// Session is the live sync controller for one client.
//
// The session owns the transport connection, the bootstrap machine, the
// persistence debouncer and the message log. Every input (transport
// callbacks, timers, local commands) becomes an event on one queue, and
// the Run loop applies events one at a time.
//
// CRITICAL: The log is mutated only in the Run loop goroutine.
//
// Thread-safety model:
//   - Send, Delete, ToggleReaction, ClearAll: safe from any goroutine;
//     they enqueue a command and wait for the loop's reply
//   - Messages, Status, Phase: safe from any goroutine; they read the
//     last published view
//   - Run: must be called exactly once
//
// INVARIANTS:
//   - the live channel is subscribed only after bootstrap is Live
//   - nothing is persisted before bootstrap is Live
//   - local actions are applied before they are published, and never
//     rolled back
type Session struct {
	dialer transport.Dialer
	self   string
	queue  *eventQueue

	liveTopic        string
	snapshotTopic    string
	bootstrapTimeout time.Duration
	persistDelay     time.Duration
	exitGrace        time.Duration
	flushTimeout     time.Duration
	outboxSize       int
	qos              byte
	sched            schedule.Scheduler
	logger           *slog.Logger
	metrics          *Metrics
	ids              chat.IDGenerator
	source           SnapshotSource
	writer           persist.Writer
	observe          func(Update)

	// Loop-owned state.
	conn             transport.Conn
	log              chat.Log
	boot             *bootstrap.Machine
	deb              *persist.Debouncer
	out              *outbox
	bootstrapStarted bool
	interrupted      bool
	echoes           map[string]int
	status           Status
	fetches          sync.WaitGroup

	// Published view, readable from any goroutine.
	mu        sync.RWMutex
	viewLog   chat.Log
	viewStat  Status
	viewPhase bootstrap.Phase

	// stopping is cancelled by Stop. It cuts short broker acknowledgement
	// waits on the loop goroutine.
	stopping context.Context
	stop     context.CancelFunc

	running atomic.Bool
	done    chan struct{}
}

// New creates a session for client self. Call Run to connect.
func New(dialer transport.Dialer, self string, opts ...Option) *Session {
	s := &Session{
		dialer:           dialer,
		self:             self,
		queue:            newEventQueue(),
		liveTopic:        DefaultLiveTopic,
		snapshotTopic:    DefaultSnapshotTopic,
		bootstrapTimeout: DefaultBootstrapTimeout,
		persistDelay:     persist.DefaultDelay,
		exitGrace:        DefaultExitGrace,
		flushTimeout:     DefaultFlushTimeout,
		outboxSize:       DefaultOutboxSize,
		qos:              transport.AtLeastOnce,
		logger:           slog.Default(),
		ids:              chat.UUIDv7Generator{},
		observe:          func(Update) {},
		log:              chat.NewLog(),
		viewLog:          chat.NewLog(),
		echoes:           make(map[string]int),
		status:           StatusConnecting,
		viewStat:         StatusConnecting,
		done:             make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.sched == nil {
		s.sched = schedule.Real()
	}
	if s.metrics == nil {
		s.metrics = NopMetrics()
	}
	s.logger = s.logger.With("client_id", self)
	s.stopping, s.stop = context.WithCancel(context.Background())
	s.boot = bootstrap.New(s.sched, s.bootstrapTimeout, func() {
		s.queue.Enqueue(event{kind: evBootstrapTimeout})
	}, bootstrap.WithLogger(s.logger))
	return s
}

// ClientID returns the session's actor id.
func (s *Session) ClientID() string {
	return s.self
}

// Messages returns a copy of the current log.
func (s *Session) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLog.Messages()
}

// Log returns the current log. Logs are immutable values.
func (s *Session) Log() chat.Log {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLog
}

// Status returns the connection status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewStat
}

// Phase returns the bootstrap phase. It reports Live once the live
// channel is subscribed and the loaded history is visible.
func (s *Session) Phase() bootstrap.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewPhase
}

// Done is closed when Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop shuts the session down. Run performs the final flush and returns.
// A pending subscribe acknowledgement is abandoned.
func (s *Session) Stop() {
	s.stop()
	s.queue.Close()
}

// Run connects and processes events until ctx is cancelled, Stop is
// called, or the transport fails.
//
// Run returns nil after Stop, ctx.Err() after cancellation, and a
// transport SyncError when the connection failed. On every path the final
// flush runs (if bootstrap reached Live) and the connection is closed.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)

	s.logger.Info("session starting", "live_topic", s.liveTopic, "snapshot_topic", s.snapshotTopic)

	conn, err := s.dialer.Dial(ctx, s.self, handler{s: s})
	if err != nil {
		s.queue.Close()
		s.setStatus(StatusError)
		terr := NewTransportError("dial", "", err)
		s.logger.Error("session failed to connect", "error", err)
		return terr
	}
	s.conn = conn
	s.out = newOutbox(s, s.outboxSize)
	s.deb = persist.NewDebouncer(s.sched, s.persistDelay, s.persistWriter(),
		persist.WithLogger(s.logger),
		persist.WithObserver(s.observePersist),
	)

	loopCtx, cancel := context.WithCancel(ctx)
	runErr := s.loop(loopCtx)
	cancel()

	s.teardown()
	return runErr
}

// loop is the single-writer event loop.
//
// ERROR HANDLING: decode, persistence and stale-snapshot errors are logged
// and processing continues. A transport error ends the loop.
func (s *Session) loop(ctx context.Context) error {
	for {
		ev, ok := s.queue.TryDequeue()
		if ok {
			if err := s.process(ctx, ev); err != nil {
				if IsTransportError(err) {
					if s.stopping.Err() != nil {
						s.logger.Info("session stopping: stopped", "abandoned", err)
						return nil
					}
					s.setStatus(StatusError)
					s.logger.Error("session closing on transport error", "seq", ev.seq, "error", err)
					return err
				}
				s.logEventError(ev, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("session stopping: context cancelled")
			return ctx.Err()

		case <-s.queue.Wait():
			if s.queue.Closed() && s.queue.Len() == 0 {
				s.logger.Info("session stopping: stopped")
				return nil
			}
		}
	}
}

// process routes an event to its handler.
// CRITICAL: Called only from the loop goroutine.
func (s *Session) process(ctx context.Context, ev event) error {
	switch ev.kind {
	case evConnected:
		return s.onConnected(ctx, ev)

	case evReconnecting:
		s.interrupted = true
		s.setStatus(StatusReconnecting)
		s.notify(Update{Seq: ev.seq, Kind: UpdateStatus})
		return nil

	case evDisconnected:
		s.interrupted = true
		s.setStatus(StatusDisconnected)
		s.notify(Update{Seq: ev.seq, Kind: UpdateStatus})
		if ev.err != nil {
			s.logger.Warn("connection lost", "error", ev.err)
		}
		return nil

	case evTransportError:
		return NewTransportError("connection", "", ev.err)

	case evMessage:
		switch ev.topic {
		case s.snapshotTopic:
			return s.onSnapshot(ctx, ev)
		case s.liveTopic:
			return s.onLive(ev)
		default:
			s.logger.Debug("message on unknown topic ignored", "topic", ev.topic)
			return nil
		}

	case evBootstrapTimeout:
		out, ok := s.boot.OnTimeout()
		if !ok {
			return nil
		}
		s.logger.Info("no snapshot received, proceeding with empty history", "timeout", s.bootstrapTimeout)
		return s.goLive(ctx, ev, out)

	case evSnapshotFetched:
		var (
			out bootstrap.Outcome
			ok  bool
		)
		if ev.err != nil {
			out, ok = s.boot.OnFailure(ev.err)
		} else {
			out, ok = s.boot.OnSnapshot(ev.payload)
		}
		if !ok {
			s.metrics.StaleSnapshots.Inc()
			return NewStaleSnapshotError("")
		}
		return s.goLive(ctx, ev, out)

	case evPublishFailed:
		s.forgetEcho(ev.payload)
		return nil

	case evCommand:
		if ev.cmd.kind == cmdSync {
			s.out.mark(ev.cmd.reply)
			return nil
		}
		ev.cmd.reply <- s.handleCommand(ev)
		return nil

	default:
		return fmt.Errorf("unknown event kind: %d", ev.kind)
	}
}

func (s *Session) onConnected(ctx context.Context, ev event) error {
	s.setStatus(StatusConnected)
	s.notify(Update{Seq: ev.seq, Kind: UpdateStatus})

	if !s.bootstrapStarted {
		s.bootstrapStarted = true
		return s.startBootstrap(ctx)
	}
	if !s.interrupted {
		return nil
	}
	s.interrupted = false

	// Clean sessions lose subscriptions across reconnects.
	if s.boot.Phase() == bootstrap.Live {
		s.logger.Info("resubscribing after reconnect", "topic", s.liveTopic)
		return s.subscribe(ctx, s.liveTopic)
	}
	if s.source == nil {
		return s.subscribe(ctx, s.snapshotTopic)
	}
	return nil
}

// startBootstrap arms the bootstrap timer and requests the snapshot.
func (s *Session) startBootstrap(ctx context.Context) error {
	s.boot.Start()

	if s.source != nil {
		s.fetches.Add(1)
		go func() {
			defer s.fetches.Done()
			data, err := s.source.FetchSnapshot(ctx)
			s.queue.Enqueue(event{kind: evSnapshotFetched, payload: data, err: err})
		}()
		return nil
	}
	return s.subscribe(ctx, s.snapshotTopic)
}

func (s *Session) onSnapshot(ctx context.Context, ev event) error {
	if s.source != nil {
		return nil
	}
	out, ok := s.boot.OnSnapshot(ev.payload)
	if !ok {
		s.metrics.StaleSnapshots.Inc()
		return NewStaleSnapshotError(ev.topic)
	}
	return s.goLive(ctx, ev, out)
}

// goLive hands the log to the live phase: swap topics, open the
// persistence gate, publish the view.
func (s *Session) goLive(ctx context.Context, ev event, out bootstrap.Outcome) error {
	s.metrics.Bootstraps.WithLabelValues(string(out.Source)).Inc()
	s.log = out.Log

	if s.source == nil {
		uctx, cancel := s.ackContext(ctx)
		err := s.conn.Unsubscribe(uctx, s.snapshotTopic)
		cancel()
		if err != nil {
			s.logger.Warn("unsubscribe snapshot channel failed", "topic", s.snapshotTopic, "error", err)
		}
	}
	if err := s.subscribe(ctx, s.liveTopic); err != nil {
		return err
	}
	s.deb.Enable()
	s.publishView()
	s.mu.Lock()
	s.viewPhase = bootstrap.Live
	s.mu.Unlock()
	s.logger.Info("history loaded", "source", out.Source, "messages", s.log.Len(), "cleared", out.Cleared)
	s.notify(Update{Seq: ev.seq, Kind: UpdateBootstrap})

	if out.Err != nil {
		if codec.IsDecodeError(out.Err) {
			s.metrics.DecodeErrors.Inc()
			return NewDecodeError(s.snapshotTopic, out.Err)
		}
		s.logger.Warn("history unavailable, starting empty", "error", out.Err)
	}
	return nil
}

func (s *Session) onLive(ev event) error {
	if s.boot.Phase() != bootstrap.Live {
		return nil
	}

	a, err := codec.Decode(ev.payload)
	if err != nil {
		s.metrics.DecodeErrors.Inc()
		return NewDecodeError(ev.topic, err)
	}

	if s.isEcho(a, ev.payload) {
		s.metrics.EchoesSuppressed.Inc()
		return nil
	}

	s.apply(ev.seq, a, OriginRemote)
	return nil
}

// isEcho reports whether a is this session's own publication coming back.
// Own messages are always dropped. Own toggles are dropped once per
// publication, since applying them again would undo them.
func (s *Session) isEcho(a chat.Action, payload []byte) bool {
	switch a := a.(type) {
	case chat.NewMessage:
		return a.Message.SenderID == s.self
	case chat.ToggleReaction:
		if a.ActorID != s.self {
			return false
		}
		return s.consumeEcho(payload)
	default:
		return false
	}
}

// apply runs the reducer and, if the log changed, publishes the view and
// schedules persistence.
func (s *Session) apply(seq int64, a chat.Action, origin Origin) {
	changed := reducer.Changed(s.log, a)
	s.log = reducer.Apply(s.log, a, s.self)
	s.metrics.ActionsApplied.WithLabelValues(string(origin), chat.Label(a)).Inc()

	if !changed {
		return
	}
	s.publishView()
	s.deb.Schedule(s.log.Messages())
	s.notify(Update{Seq: seq, Kind: UpdateAction, Action: a, Origin: origin})
}

func (s *Session) subscribe(ctx context.Context, topic string) error {
	ctx, cancel := s.ackContext(ctx)
	defer cancel()
	if err := s.conn.Subscribe(ctx, topic, s.qos); err != nil {
		return NewTransportError("subscribe", topic, err)
	}
	s.logger.Debug("subscribed", "topic", topic)
	return nil
}

// ackContext bounds a wait for a broker acknowledgement on the loop
// goroutine by flushTimeout and by Stop.
func (s *Session) ackContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, s.flushTimeout)
	unhook := context.AfterFunc(s.stopping, cancel)
	return ctx, func() {
		unhook()
		cancel()
	}
}

// teardown runs once on every exit path after the connection was opened.
func (s *Session) teardown() {
	s.stop()
	s.queue.Close()
	s.boot.Stop()
	s.deb.Stop()

	// Let queued publishes go out before the final snapshot.
	s.out.close()

	if s.boot.Phase() == bootstrap.Live {
		ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
		if err := s.deb.Flush(ctx, s.log.Messages()); err != nil {
			s.logEventError(event{}, NewPersistenceError(err))
		}
		cancel()
	}

	schedule.Sleep(s.sched, s.exitGrace, nil)

	if err := s.conn.Close(); err != nil {
		s.logger.Warn("close transport failed", "error", err)
	}
	s.fetches.Wait()

	if s.status != StatusError {
		s.setStatus(StatusDisconnected)
		s.notify(Update{Seq: s.queue.Seq(), Kind: UpdateStatus})
	}
	s.drain()
	s.logger.Info("session stopped", "messages", s.log.Len())
}

// drain answers commands still queued after the loop exited.
func (s *Session) drain() {
	for {
		ev, ok := s.queue.TryDequeue()
		if !ok {
			return
		}
		if ev.kind == evCommand {
			ev.cmd.reply <- commandResult{err: ErrStopped}
		}
	}
}

func (s *Session) persistWriter() persist.Writer {
	if s.writer != nil {
		return s.writer
	}
	return persist.NewRetainedWriter(persist.PublisherFunc(func(ctx context.Context, payload []byte) error {
		return s.conn.Publish(ctx, s.snapshotTopic, payload, transport.PublishOptions{Retain: true, QoS: s.qos})
	}))
}

func (s *Session) observePersist(r persist.Result, err error) {
	s.metrics.PersistWrites.WithLabelValues(string(r)).Inc()
	if err != nil {
		s.logEventError(event{}, NewPersistenceError(err))
	}
}

func (s *Session) setStatus(st Status) {
	s.status = st
	if st == StatusConnected {
		s.metrics.Connected.Set(1)
	} else {
		s.metrics.Connected.Set(0)
	}
	s.mu.Lock()
	s.viewStat = st
	s.mu.Unlock()
}

func (s *Session) publishView() {
	s.metrics.LogMessages.Set(float64(s.log.Len()))
	s.mu.Lock()
	s.viewLog = s.log
	s.mu.Unlock()
}

func (s *Session) notify(u Update) {
	u.Status = s.status
	u.Messages = s.log.Len()
	s.observe(u)
}

// logEventError logs a non-fatal sync error at the level its code calls
// for.
func (s *Session) logEventError(ev event, err error) {
	attrs := []any{"error", err}
	if ev.kind != 0 {
		attrs = append(attrs, "seq", ev.seq, "event", ev.kind.String())
		if ev.topic != "" {
			attrs = append(attrs, "topic", ev.topic)
		}
	}

	switch {
	case IsStaleSnapshot(err):
		s.logger.Warn("stale snapshot ignored", attrs...)
	case IsDecodeError(err):
		s.logger.Warn("payload discarded", attrs...)
	case IsPersistenceError(err):
		s.logger.Warn("persistence failed", attrs...)
	default:
		s.logger.Error("event processing failed", attrs...)
	}
}

// handler turns transport callbacks into events. Every method only
// enqueues.
type handler struct {
	s *Session
}

func (h handler) OnConnected()    { h.s.queue.Enqueue(event{kind: evConnected}) }
func (h handler) OnReconnecting() { h.s.queue.Enqueue(event{kind: evReconnecting}) }

func (h handler) OnDisconnected(err error) {
	h.s.queue.Enqueue(event{kind: evDisconnected, err: err})
}

func (h handler) OnError(err error) {
	h.s.queue.Enqueue(event{kind: evTransportError, err: err})
}

func (h handler) OnMessage(topic string, payload []byte) {
	h.s.queue.Enqueue(event{kind: evMessage, topic: topic, payload: payload})
}
