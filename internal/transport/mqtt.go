package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Default MQTT settings.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultKeepAlive      = 30 * time.Second
	DefaultQuiesce        = 250 * time.Millisecond
	DefaultMaxReconnects  = 10
)

// MQTTDialer dials an MQTT broker with paho. Sessions are clean: after a
// reconnect the broker holds no subscriptions and the caller resubscribes
// on OnConnected.
type MQTTDialer struct {
	// Broker is the server URL, e.g. "wss://broker.emqx.io:8084/mqtt".
	Broker string

	ConnectTimeout time.Duration
	KeepAlive      time.Duration

	// MaxReconnects is the number of consecutive failed reconnect attempts
	// after which the connection is reported broken through OnError.
	// Zero retries forever.
	MaxReconnects int

	Logger *slog.Logger
}

// NewMQTTDialer returns a dialer for broker with default timeouts.
func NewMQTTDialer(broker string, logger *slog.Logger) *MQTTDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTDialer{
		Broker:         broker,
		ConnectTimeout: DefaultConnectTimeout,
		KeepAlive:      DefaultKeepAlive,
		MaxReconnects:  DefaultMaxReconnects,
		Logger:         logger,
	}
}

func (d *MQTTDialer) options(clientID string, h Handler) *mqtt.ClientOptions {
	connectTimeout := d.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	keepAlive := d.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}

	// paho retries reconnects forever. A run of failed attempts is
	// reported as a transport error.
	var attempts atomic.Int32
	var failed atomic.Bool

	return mqtt.NewClientOptions().
		AddBroker(d.Broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetOnConnectHandler(func(mqtt.Client) {
			attempts.Store(0)
			h.OnConnected()
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			h.OnDisconnected(err)
		}).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			n := int(attempts.Add(1))
			if d.MaxReconnects > 0 && n > d.MaxReconnects {
				if failed.CompareAndSwap(false, true) {
					h.OnError(fmt.Errorf("%w: %d reconnect attempts failed", ErrReconnectFailed, n-1))
				}
				return
			}
			h.OnReconnecting()
		})
}

// Dial connects and waits for the CONNACK.
func (d *MQTTDialer) Dial(ctx context.Context, clientID string, h Handler) (Conn, error) {
	client := mqtt.NewClient(d.options(clientID, h))
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", d.Broker, err)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("mqtt connected", "broker", d.Broker, "client_id", clientID)
	return &mqttConn{client: client, handler: h}, nil
}

type mqttConn struct {
	client  mqtt.Client
	handler Handler

	closeOnce sync.Once
}

func (c *mqttConn) Subscribe(ctx context.Context, topic string, qos byte) error {
	tok := c.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		c.handler.OnMessage(m.Topic(), m.Payload())
	})
	if err := wait(ctx, tok); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *mqttConn) Unsubscribe(ctx context.Context, topic string) error {
	if err := wait(ctx, c.client.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

func (c *mqttConn) Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	if err := wait(ctx, c.client.Publish(topic, opts.QoS, opts.Retain, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *mqttConn) Close() error {
	c.closeOnce.Do(func() {
		c.client.Disconnect(uint(DefaultQuiesce / time.Millisecond))
	})
	return nil
}

// wait blocks until tok completes or ctx is done.
func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pahoLogger routes paho's internal logging into slog.
type pahoLogger struct {
	logger *slog.Logger
	level  slog.Level
}

func (l pahoLogger) Println(v ...interface{}) {
	l.logger.Log(context.Background(), l.level, fmt.Sprint(v...), "component", "paho")
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	l.logger.Log(context.Background(), l.level, fmt.Sprintf(format, v...), "component", "paho")
}

// InstallPahoLogger sends paho's ERROR, CRITICAL and WARN output to
// logger. paho's loggers are package globals, so this affects every
// client in the process.
func InstallPahoLogger(logger *slog.Logger) {
	mqtt.ERROR = pahoLogger{logger: logger, level: slog.LevelError}
	mqtt.CRITICAL = pahoLogger{logger: logger, level: slog.LevelError}
	mqtt.WARN = pahoLogger{logger: logger, level: slog.LevelWarn}
}
