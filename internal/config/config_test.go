package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "wss://broker.emqx.io:8084/mqtt", cfg.Client.Broker)
	assert.Equal(t, "pro-react-chat-app/realtime-chat-v3", cfg.Client.LiveTopic)
	assert.Equal(t, "pro-react-chat-app/history-v3", cfg.Client.SnapshotTopic)
	assert.Equal(t, 4*time.Second, cfg.Client.BootstrapTimeout.Duration())
	assert.Equal(t, 1500*time.Millisecond, cfg.Client.PersistDelay.Duration())
	assert.Equal(t, 200*time.Millisecond, cfg.Client.ExitGrace.Duration())
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	path := writeFile(t, "chatsync.yaml", `
client:
  broker: tcp://localhost:1883
  bootstrap_timeout: 2s
  persist_delay: 0.5
server:
  backend: pebble
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.Client.Broker)
	assert.Equal(t, 2*time.Second, cfg.Client.BootstrapTimeout.Duration())
	assert.Equal(t, 500*time.Millisecond, cfg.Client.PersistDelay.Duration())
	assert.Equal(t, DefaultLiveTopic, cfg.Client.LiveTopic, "unset keys keep defaults")
	assert.Equal(t, "pebble", cfg.Server.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "config file not found")

	path := writeFile(t, "bad.yaml", "client:\n  persist_delay: soon\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, "invalid duration")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CHATSYNC_BROKER", "mqtt://broker:1883")
	t.Setenv("CHATSYNC_EXIT_GRACE", "0")
	t.Setenv("CHATSYNC_QOS", "0")
	t.Setenv("CHATSYNC_RATE_RPS", "2.5")
	t.Setenv("CHATSYNC_LOG_LEVEL", "WARN")
	t.Setenv("CHATSYNC_IDENTITY_DB", "")

	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg))

	assert.Equal(t, "mqtt://broker:1883", cfg.Client.Broker)
	assert.Equal(t, time.Duration(0), cfg.Client.ExitGrace.Duration())
	assert.Equal(t, 0, cfg.Client.QoS)
	assert.Equal(t, 2.5, cfg.Server.RateRPS)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Empty(t, cfg.Client.IdentityDB, "set-but-empty selects an ephemeral identity")
	assert.NoError(t, Validate(cfg))
}

func TestApplyEnv_ReportsAllBadValues(t *testing.T) {
	t.Setenv("CHATSYNC_QOS", "one")
	t.Setenv("CHATSYNC_PERSIST_DELAY", "later")

	cfg := Default()
	err := ApplyEnv(&cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "CHATSYNC_QOS")
	assert.ErrorContains(t, err, "CHATSYNC_PERSIST_DELAY")
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"broker scheme", func(c *Config) { c.Client.Broker = "localhost:1883" }, "client.broker"},
		{"empty live topic", func(c *Config) { c.Client.LiveTopic = "" }, "client.live_topic"},
		{"qos 2", func(c *Config) { c.Client.QoS = 2 }, "client.qos"},
		{"zero bootstrap timeout", func(c *Config) { c.Client.BootstrapTimeout = 0 }, "client.bootstrap_timeout_ms"},
		{"history url scheme", func(c *Config) { c.Client.HistoryURL = "ftp://x" }, "client.history_url"},
		{"backend", func(c *Config) { c.Server.Backend = "redis" }, "server.backend"},
		{"burst", func(c *Config) { c.Server.RateBurst = 0 }, "server.rate_burst"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"same topics", func(c *Config) { c.Client.SnapshotTopic = c.Client.LiveTopic }, "client.snapshot_topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadEffective_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, "chatsync.yaml", "client:\n  live_topic: from-file\n  snapshot_topic: snap-file\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHATSYNC_SNAPSHOT_TOPIC=snap-dotenv\n"), 0o644))
	t.Setenv("CHATSYNC_LIVE_TOPIC", "live-env")
	t.Cleanup(func() { os.Unsetenv("CHATSYNC_SNAPSHOT_TOPIC") })

	cfg, err := LoadEffective(path)
	require.NoError(t, err)
	assert.Equal(t, "live-env", cfg.Client.LiveTopic)
	assert.Equal(t, "snap-dotenv", cfg.Client.SnapshotTopic)
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/chatsync.yaml")

	assert.Equal(t, "flag.yaml", ResolvePath("flag.yaml", true))
	assert.Equal(t, "/etc/chatsync.yaml", ResolvePath("default.yaml", false))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" Warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))

	var buf bytes.Buffer
	l := NewLogger(&buf, "warn")
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
