package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from path into the environment. Variables
// already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies CHATSYNC_* overrides onto cfg.
func ApplyEnv(cfg *Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(name string, dst *Duration) {
		v, ok := os.LookupEnv(name)
		if !ok {
			return
		}
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = Duration(d)
	}
	num := func(name string, dst *int) {
		v, ok := os.LookupEnv(name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", name, v))
			return
		}
		*dst = n
	}

	str("CHATSYNC_BROKER", &cfg.Client.Broker)
	str("CHATSYNC_LIVE_TOPIC", &cfg.Client.LiveTopic)
	str("CHATSYNC_SNAPSHOT_TOPIC", &cfg.Client.SnapshotTopic)
	str("CHATSYNC_HISTORY_URL", &cfg.Client.HistoryURL)
	dur("CHATSYNC_BOOTSTRAP_TIMEOUT", &cfg.Client.BootstrapTimeout)
	dur("CHATSYNC_PERSIST_DELAY", &cfg.Client.PersistDelay)
	dur("CHATSYNC_EXIT_GRACE", &cfg.Client.ExitGrace)
	str("CHATSYNC_IDENTITY_DB", &cfg.Client.IdentityDB)
	num("CHATSYNC_QOS", &cfg.Client.QoS)

	str("CHATSYNC_LISTEN", &cfg.Server.Listen)
	str("CHATSYNC_BACKEND", &cfg.Server.Backend)
	str("CHATSYNC_DATA_PATH", &cfg.Server.DataPath)
	if v, ok := os.LookupEnv("CHATSYNC_RATE_RPS"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CHATSYNC_RATE_RPS: invalid number %q", v))
		} else {
			cfg.Server.RateRPS = f
		}
	}
	num("CHATSYNC_RATE_BURST", &cfg.Server.RateBurst)

	str("CHATSYNC_LOG_LEVEL", &cfg.Log.Level)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	return errors.Join(errs...)
}
