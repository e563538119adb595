// Package config loads chatsync configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, variables
// from a .env file, then CHATSYNC_* environment variables. The effective
// configuration is validated against an embedded CUE schema.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the public deployment.
const (
	DefaultBroker           = "wss://broker.emqx.io:8084/mqtt"
	DefaultLiveTopic        = "pro-react-chat-app/realtime-chat-v3"
	DefaultSnapshotTopic    = "pro-react-chat-app/history-v3"
	DefaultBootstrapTimeout = 4 * time.Second
	DefaultPersistDelay     = 1500 * time.Millisecond
	DefaultExitGrace        = 200 * time.Millisecond
	DefaultIdentityDB       = "chatsync.db"
	DefaultListen           = ":8080"
	DefaultBackend          = "sqlite"
	DefaultDataPath         = "chatsync-history.db"
	DefaultRateRPS          = 5
	DefaultRateBurst        = 10
	DefaultLogLevel         = "info"
)

// EnvConfigPath names the config file when no flag is given.
const EnvConfigPath = "CHATSYNC_CONFIG"

// Config is the effective configuration.
type Config struct {
	Client ClientConfig `yaml:"client"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// ClientConfig configures a chat session.
type ClientConfig struct {
	Broker        string `yaml:"broker"`
	LiveTopic     string `yaml:"live_topic"`
	SnapshotTopic string `yaml:"snapshot_topic"`

	// HistoryURL, when set, bootstraps and persists through a history
	// server instead of the retained snapshot channel.
	HistoryURL string `yaml:"history_url"`

	BootstrapTimeout Duration `yaml:"bootstrap_timeout"`
	PersistDelay     Duration `yaml:"persist_delay"`
	ExitGrace        Duration `yaml:"exit_grace"`

	// IdentityDB is the SQLite file holding the persistent client id.
	// Empty means an ephemeral identity.
	IdentityDB string `yaml:"identity_db"`

	QoS int `yaml:"qos"`
}

// ServerConfig configures the history server.
type ServerConfig struct {
	Listen    string  `yaml:"listen"`
	Backend   string  `yaml:"backend"`
	DataPath  string  `yaml:"data_path"`
	RateRPS   float64 `yaml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Client: ClientConfig{
			Broker:           DefaultBroker,
			LiveTopic:        DefaultLiveTopic,
			SnapshotTopic:    DefaultSnapshotTopic,
			BootstrapTimeout: Duration(DefaultBootstrapTimeout),
			PersistDelay:     Duration(DefaultPersistDelay),
			ExitGrace:        Duration(DefaultExitGrace),
			IdentityDB:       DefaultIdentityDB,
			QoS:              1,
		},
		Server: ServerConfig{
			Listen:    DefaultListen,
			Backend:   DefaultBackend,
			DataPath:  DefaultDataPath,
			RateRPS:   DefaultRateRPS,
			RateBurst: DefaultRateBurst,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// Load reads the YAML file at path over the defaults. Keys absent from the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config file not found: %s", path)
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEffective builds the effective configuration: defaults, then the
// file at path (skipped when path is empty), then .env, then the
// environment. The result is validated.
func LoadEffective(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	if err := LoadDotEnv(".env"); err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ResolvePath picks the config file: the flag value when set, else
// $CHATSYNC_CONFIG, else the flag default.
func ResolvePath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return flagPath
}

// Duration is a time.Duration that reads "1.5s"-style strings or plain
// numbers of seconds from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return td, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
