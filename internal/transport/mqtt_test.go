package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMQTTDialer_Options(t *testing.T) {
	d := NewMQTTDialer("tcp://127.0.0.1:1883", nil)
	h := newRecorder()

	opts := d.options("chat-client-1", h)

	assert.Equal(t, "chat-client-1", opts.ClientID)
	assert.True(t, opts.CleanSession)
	assert.True(t, opts.AutoReconnect)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "127.0.0.1:1883", opts.Servers[0].Host)

	opts.OnConnect(nil)
	opts.OnReconnecting(nil, opts)
	opts.OnConnectionLost(nil, errors.New("eof"))
	assert.Equal(t, []string{"connected", "reconnecting", "disconnected"}, h.seen())
}

func TestMQTTDialer_ReconnectExhaustionIsAnError(t *testing.T) {
	d := NewMQTTDialer("tcp://127.0.0.1:1883", nil)
	d.MaxReconnects = 2
	h := newRecorder()

	opts := d.options("chat-client-1", h)
	opts.OnConnect(nil)
	opts.OnConnectionLost(nil, errors.New("eof"))
	for range 4 {
		opts.OnReconnecting(nil, opts)
	}
	assert.Equal(t, []string{"connected", "disconnected", "reconnecting", "reconnecting", "error"}, h.seen())
	require.Len(t, h.errs, 2)
	assert.ErrorIs(t, h.errs[1], ErrReconnectFailed)
}

func TestMQTTDialer_ReconnectCountResetsOnConnect(t *testing.T) {
	d := NewMQTTDialer("tcp://127.0.0.1:1883", nil)
	d.MaxReconnects = 1
	h := newRecorder()

	opts := d.options("chat-client-1", h)
	opts.OnReconnecting(nil, opts)
	opts.OnConnect(nil)
	opts.OnReconnecting(nil, opts)
	assert.Equal(t, []string{"reconnecting", "connected", "reconnecting"}, h.seen())
}

func TestMQTTDialer_DialFailure(t *testing.T) {
	d := NewMQTTDialer("tcp://127.0.0.1:1", nil)
	d.ConnectTimeout = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := d.Dial(ctx, "chat-client-1", newRecorder())
	assert.Error(t, err)
}

func TestPahoLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var l mqtt.Logger = pahoLogger{logger: logger, level: slog.LevelWarn}
	l.Printf("lost %d packets", 3)
	l.Println("reconnect", "failed")

	out := buf.String()
	assert.Contains(t, out, "lost 3 packets")
	assert.Contains(t, out, "component=paho")
	assert.Contains(t, out, "level=WARN")
}
