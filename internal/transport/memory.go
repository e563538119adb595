package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrTakeover is passed to OnDisconnected when another connection dials
// with the same client id.
var ErrTakeover = errors.New("transport: session taken over by another connection")

// Broker is an in-process broker with MQTT-like semantics:
//
//   - retained messages, replayed to each new subscription; a retained
//     empty payload deletes the retained message
//   - publishers receive their own messages when subscribed
//   - clean sessions: an interrupted connection loses its subscriptions
//
// Handlers run synchronously on the publishing goroutine, without broker
// locks held. Fault injection (failed subscribes, redelivery, interrupts)
// makes the at-least-once edge cases reproducible.
//
// Thread-safety: safe for concurrent use.
type Broker struct {
	mu         sync.Mutex
	conns      map[string]*memConn
	retained   map[string][]byte
	failSub    map[string]error
	redelivery int
	subscribes map[string]map[string]int
	publishLog map[string][][]byte
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		conns:      make(map[string]*memConn),
		retained:   make(map[string][]byte),
		failSub:    make(map[string]error),
		subscribes: make(map[string]map[string]int),
		publishLog: make(map[string][][]byte),
	}
}

// Dial connects clientID. An existing connection with the same id is
// disconnected with ErrTakeover.
func (b *Broker) Dial(ctx context.Context, clientID string, h Handler) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if clientID == "" {
		return nil, fmt.Errorf("transport: client id is required")
	}

	c := &memConn{broker: b, id: clientID, handler: h, connected: true, subs: make(map[string]bool)}

	b.mu.Lock()
	old := b.conns[clientID]
	b.conns[clientID] = c
	if old != nil {
		old.mu.Lock()
		old.closed = true
		old.mu.Unlock()
	}
	b.mu.Unlock()

	if old != nil {
		old.handler.OnDisconnected(ErrTakeover)
	}
	h.OnConnected()
	return c, nil
}

// SetRedelivery makes every delivery happen 1+n times.
func (b *Broker) SetRedelivery(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.redelivery = n
}

// FailSubscribe makes subscriptions to topic fail with err. A nil err
// removes the fault.
func (b *Broker) FailSubscribe(topic string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failSub, topic)
		return
	}
	b.failSub[topic] = err
}

// Interrupt drops clientID's connection: subscriptions are lost and the
// handler sees OnReconnecting. Publishes fail until Restore.
func (b *Broker) Interrupt(clientID string) {
	c := b.conn(clientID)
	if c == nil {
		return
	}
	c.mu.Lock()
	c.connected = false
	c.subs = make(map[string]bool)
	c.mu.Unlock()
	c.handler.OnReconnecting()
}

// Restore reconnects an interrupted client.
func (b *Broker) Restore(clientID string) {
	c := b.conn(clientID)
	if c == nil {
		return
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.handler.OnConnected()
}

// Disconnect drops clientID with err and no reconnect.
func (b *Broker) Disconnect(clientID string, err error) {
	c := b.conn(clientID)
	if c == nil {
		return
	}
	c.mu.Lock()
	c.connected = false
	c.subs = make(map[string]bool)
	c.mu.Unlock()
	c.handler.OnDisconnected(err)
}

// InjectError reports err to clientID's handler.
func (b *Broker) InjectError(clientID string, err error) {
	if c := b.conn(clientID); c != nil {
		c.handler.OnError(err)
	}
}

// Inject delivers a raw payload to topic's subscribers without retaining
// it, as if a foreign peer had published it.
func (b *Broker) Inject(topic string, payload []byte) {
	b.deliver(topic, payload)
}

// Retained returns topic's retained payload.
func (b *Broker) Retained(topic string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.retained[topic]
	return slices.Clone(p), ok
}

// SetRetained stores a retained payload directly, as if published by a
// client that has since left.
func (b *Broker) SetRetained(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(payload) == 0 {
		delete(b.retained, topic)
		return
	}
	b.retained[topic] = slices.Clone(payload)
}

// SubscribeCount returns how many successful subscriptions clientID made
// to topic.
func (b *Broker) SubscribeCount(clientID, topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribes[clientID][topic]
}

// Subscribed reports whether clientID currently subscribes to topic.
func (b *Broker) Subscribed(clientID, topic string) bool {
	c := b.conn(clientID)
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[topic]
}

// Published returns every payload published to topic, in order.
func (b *Broker) Published(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.publishLog[topic]))
	for i, p := range b.publishLog[topic] {
		out[i] = slices.Clone(p)
	}
	return out
}

// Connected reports whether clientID has an open, uninterrupted
// connection.
func (b *Broker) Connected(clientID string) bool {
	c := b.conn(clientID)
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.closed
}

func (b *Broker) conn(clientID string) *memConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conns[clientID]
}

func (b *Broker) publish(topic string, payload []byte, retain bool) {
	b.mu.Lock()
	b.publishLog[topic] = append(b.publishLog[topic], slices.Clone(payload))
	if retain {
		if len(payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = slices.Clone(payload)
		}
	}
	b.mu.Unlock()

	b.deliver(topic, payload)
}

func (b *Broker) deliver(topic string, payload []byte) {
	b.mu.Lock()
	var targets []*memConn
	for _, c := range b.conns {
		c.mu.Lock()
		if c.connected && !c.closed && c.subs[topic] {
			targets = append(targets, c)
		}
		c.mu.Unlock()
	}
	times := 1 + b.redelivery
	b.mu.Unlock()

	// deterministic order for scenario replay
	slices.SortFunc(targets, func(x, y *memConn) int {
		switch {
		case x.id < y.id:
			return -1
		case x.id > y.id:
			return 1
		}
		return 0
	})
	for _, c := range targets {
		for range times {
			c.handler.OnMessage(topic, slices.Clone(payload))
		}
	}
}

type memConn struct {
	broker  *Broker
	id      string
	handler Handler

	mu        sync.Mutex
	connected bool
	closed    bool
	subs      map[string]bool
}

func (c *memConn) ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.connected {
		return ErrNotConnected
	}
	return nil
}

func (c *memConn) Subscribe(ctx context.Context, topic string, _ byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.ready(); err != nil {
		return err
	}

	b := c.broker
	b.mu.Lock()
	if err := b.failSub[topic]; err != nil {
		b.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	if b.subscribes[c.id] == nil {
		b.subscribes[c.id] = make(map[string]int)
	}
	b.subscribes[c.id][topic]++
	retained, hasRetained := b.retained[topic]
	retained = slices.Clone(retained)
	b.mu.Unlock()

	c.mu.Lock()
	c.subs[topic] = true
	c.mu.Unlock()

	if hasRetained {
		c.handler.OnMessage(topic, retained)
	}
	return nil
}

func (c *memConn) Unsubscribe(ctx context.Context, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.ready(); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()
	return nil
}

func (c *memConn) Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.ready(); err != nil {
		return err
	}
	c.broker.publish(topic, payload, opts.Retain)
	return nil
}

func (c *memConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	b := c.broker
	b.mu.Lock()
	if b.conns[c.id] == c {
		delete(b.conns, c.id)
	}
	b.mu.Unlock()
	return nil
}
