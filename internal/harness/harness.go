package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/codec"
	"github.com/roach88/chatsync/internal/engine"
	"github.com/roach88/chatsync/internal/testutil"
	"github.com/roach88/chatsync/internal/transport"
)

// stepTimeout bounds every wait on a session. Sessions answer in
// microseconds; hitting it means a session is wedged.
const stepTimeout = 5 * time.Second

// Option configures a harness run.
type Option func(*Harness)

// WithLogger sends session logs to l. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Harness executes one scenario.
//
// Every client is a real engine.Session dialed into one in-memory broker.
// All sessions share one manual scheduler, so bootstrap timeouts and
// persistence delays only pass when a step advances time. After each step
// the harness waits until every session has applied what it was sent,
// which makes traces reproducible.
type Harness struct {
	broker  *transport.Broker
	sched   *testutil.ManualScheduler
	logger  *slog.Logger
	timeout time.Duration

	order   []string
	clients map[string]*client
}

type client struct {
	sess    *engine.Session
	errc    chan error
	running bool
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Seed the retained snapshot and start the initial clients
//  2. Execute steps, settling after each one
//  3. Capture the final state and evaluate assertions
//  4. Stop every client still running
//
// The returned error is reserved for harness failures (a session that
// never answers). Failed steps and assertions are reported in the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		broker:  transport.NewBroker(),
		sched:   testutil.NewManualScheduler(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: scenario.BootstrapTimeout,
		clients: make(map[string]*client),
	}
	if h.timeout <= 0 {
		h.timeout = engine.DefaultBootstrapTimeout
	}
	for _, opt := range opts {
		opt(h)
	}
	defer h.shutdown()

	if err := h.seed(scenario); err != nil {
		return nil, err
	}
	h.broker.SetRedelivery(scenario.Redelivery)

	result := NewResult()
	n := 0
	for _, name := range scenario.Clients {
		n++
		if err := h.execute(n, Step{Do: StepJoin, Client: name}, result); err != nil {
			return nil, err
		}
	}
	for _, step := range scenario.Steps {
		n++
		if err := h.execute(n, step, result); err != nil {
			return nil, err
		}
	}

	if err := h.capture(result); err != nil {
		return nil, err
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) seed(scenario *Scenario) error {
	if len(scenario.Retained) == 0 {
		return nil
	}
	msgs := make([]chat.Message, len(scenario.Retained))
	for i, m := range scenario.Retained {
		msgs[i] = chat.Message{ID: m.ID, Text: m.Text, SenderID: m.Sender}
	}
	data, err := codec.EncodeSnapshot(msgs)
	if err != nil {
		return fmt.Errorf("failed to encode retained snapshot: %w", err)
	}
	h.broker.SetRetained(engine.DefaultSnapshotTopic, data)
	return nil
}

// execute runs one step, settles, and records it in the trace. Step
// failures go to the result; only a wedged session is returned.
func (h *Harness) execute(n int, step Step, result *Result) error {
	out, err := h.do(step)
	if err != nil {
		return fmt.Errorf("step %d (%s): %w", n, step.Do, err)
	}
	if err := h.settle(); err != nil {
		return fmt.Errorf("step %d (%s): %w", n, step.Do, err)
	}

	ev := TraceEvent{
		Step:   n,
		Do:     step.Do,
		Client: step.Client,
		At:     h.sched.Now().String(),
		ID:     out.id,
		Logs:   h.logIDs(),
	}
	stepErr := out.err
	if stepErr != nil {
		ev.Error = stepErr.Error()
	}
	result.Trace = append(result.Trace, ev)

	switch {
	case step.ExpectError != "" && stepErr == nil:
		result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got none", n, step.Do, step.ExpectError))
	case step.ExpectError != "" && !strings.Contains(stepErr.Error(), step.ExpectError):
		result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got %q", n, step.Do, step.ExpectError, stepErr))
	case step.ExpectError == "" && stepErr != nil:
		result.AddError(fmt.Sprintf("step %d (%s): %v", n, step.Do, stepErr))
	}
	return nil
}

// outcome is what a step produced: a created message id, or the error the
// session answered with.
type outcome struct {
	id  string
	err error
}

// do performs step. The returned error is a harness failure, not the
// step's own.
func (h *Harness) do(step Step) (outcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
	defer cancel()

	switch step.Do {
	case StepJoin:
		return outcome{}, h.join(step.Client)
	case StepLeave:
		return outcome{}, h.leave(step.Client)
	case StepAdvance:
		h.sched.Advance(step.Duration)
		return outcome{}, nil
	case StepBootstrap:
		h.sched.Advance(h.timeout)
		return outcome{}, nil
	case StepInject:
		h.broker.Inject(engine.DefaultLiveTopic, []byte(step.Payload))
		return outcome{}, nil
	case StepInterrupt:
		h.broker.Interrupt(step.Client)
		return outcome{}, nil
	case StepRestore:
		h.broker.Restore(step.Client)
		return outcome{}, nil
	}

	c := h.clients[step.Client]
	if c == nil || !c.running {
		return outcome{err: engine.ErrStopped}, nil
	}
	var (
		msg chat.Message
		err error
	)
	switch step.Do {
	case StepSend:
		msg, err = c.sess.Send(ctx, step.Text, step.ReplyTo)
	case StepReact:
		err = c.sess.ToggleReaction(ctx, step.Message, step.Emoji)
	case StepDelete:
		err = c.sess.Delete(ctx, step.Message)
	case StepClear:
		err = c.sess.ClearAll(ctx)
	default:
		return outcome{}, fmt.Errorf("unknown step %q", step.Do)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return outcome{}, err
	}
	return outcome{id: msg.ID, err: err}, nil
}

func (h *Harness) join(name string) error {
	sess := engine.New(h.broker, name,
		engine.WithScheduler(h.sched),
		engine.WithIDGenerator(testutil.NewSequenceGenerator(name)),
		engine.WithBootstrapTimeout(h.timeout),
		engine.WithExitGrace(0),
		engine.WithLogger(h.logger),
	)
	c := &client{sess: sess, errc: make(chan error, 1), running: true}
	h.clients[name] = c
	h.order = append(h.order, name)
	go func() { c.errc <- sess.Run(context.Background()) }()

	// The connected event is queued by Dial; wait until the loop took it
	// so the settle below runs after bootstrap started.
	deadline := time.Now().Add(stepTimeout)
	for sess.Status() == engine.StatusConnecting {
		select {
		case <-sess.Done():
			c.running = false
			return fmt.Errorf("client %s stopped while connecting: %w", name, <-c.errc)
		default:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("client %s never connected", name)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (h *Harness) leave(name string) error {
	c := h.clients[name]
	if !c.running {
		return nil
	}
	c.sess.Stop()
	c.running = false
	select {
	case <-c.sess.Done():
		return nil
	case <-time.After(stepTimeout):
		return fmt.Errorf("client %s did not stop", name)
	}
}

// settle waits until the system is quiet. The first round makes every
// session apply its queue and hand its outbox to the broker, which
// delivers synchronously; the second applies what those deliveries
// queued. Sessions never publish in response to a remote action, so two
// rounds suffice.
func (h *Harness) settle() error {
	for range 2 {
		for _, name := range h.order {
			c := h.clients[name]
			if !c.running {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
			err := c.sess.Sync(ctx)
			cancel()
			if errors.Is(err, engine.ErrStopped) {
				// Run ended on its own (transport error).
				c.running = false
				continue
			}
			if err != nil {
				return fmt.Errorf("client %s did not settle: %w", name, err)
			}
		}
	}
	return nil
}

func (h *Harness) logIDs() map[string][]string {
	out := make(map[string][]string, len(h.order))
	for _, name := range h.order {
		out[name] = h.clients[name].sess.Log().IDs()
	}
	return out
}

func (h *Harness) capture(result *Result) error {
	for _, name := range h.order {
		sess := h.clients[name].sess
		result.State.Logs[name] = sess.Messages()
		result.State.Status[name] = sess.Status().String()
	}

	data, ok := h.broker.Retained(engine.DefaultSnapshotTopic)
	if !ok {
		return nil
	}
	snap, err := codec.DecodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("retained snapshot is malformed: %w", err)
	}
	result.State.Retained = snap.Messages
	return nil
}

func (h *Harness) shutdown() {
	for _, name := range h.order {
		c := h.clients[name]
		c.sess.Stop()
		select {
		case <-c.sess.Done():
		case <-time.After(stepTimeout):
			h.logger.Error("client did not stop", "client", name)
		}
	}
}
