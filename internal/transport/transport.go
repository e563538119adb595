// Package transport defines the publish/subscribe connection a session
// owns, plus two implementations: an MQTT driver for real brokers and an
// in-process Broker for tests and local scenarios.
//
// Delivery is at-least-once. Implementations may redeliver a payload and
// may deliver a client's own publications back to it.
package transport

import (
	"context"
	"errors"
)

// QoS levels. The session publishes at AtLeastOnce.
const (
	AtMostOnce  byte = 0
	AtLeastOnce byte = 1
)

var (
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("transport: connection closed")

	// ErrNotConnected is returned while the connection is interrupted.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrReconnectFailed is reported through Handler.OnError when a
	// dropped connection could not be restored.
	ErrReconnectFailed = errors.New("transport: reconnect failed")
)

// Handler receives connection callbacks. Implementations must not block:
// the session's handler only enqueues events.
type Handler interface {
	OnConnected()
	OnReconnecting()
	OnDisconnected(err error)
	OnMessage(topic string, payload []byte)
	OnError(err error)
}

// PublishOptions control a single publish.
type PublishOptions struct {
	// Retain asks the broker to keep the payload as the topic's retained
	// message. A retained empty payload clears it.
	Retain bool

	QoS byte
}

// Conn is an open connection. Methods are safe for concurrent use.
type Conn interface {
	Subscribe(ctx context.Context, topic string, qos byte) error
	Unsubscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error
	Close() error
}

// Dialer opens connections. Dial returns once the first connection
// attempt has succeeded; h.OnConnected is called for it as well.
type Dialer interface {
	Dial(ctx context.Context, clientID string, h Handler) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, clientID string, h Handler) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, clientID string, h Handler) (Conn, error) {
	return f(ctx, clientID, h)
}
