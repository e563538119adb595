package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// ValidationError is one schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// A cue.Context is not safe for concurrent use.
var (
	schemaMu   sync.Mutex
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Config"))
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks cfg against the schema. All violations are reported,
// joined.
func Validate(cfg Config) error {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}

	v := def.Unify(ctx.Encode(schemaInput(cfg)))
	var errs []error
	if err := v.Validate(cue.Concrete(true)); err != nil {
		for _, e := range cueerrors.Errors(err) {
			format, args := e.Msg()
			errs = append(errs, ValidationError{
				Field:   strings.TrimPrefix(strings.Join(e.Path(), "."), "#Config."),
				Message: fmt.Sprintf(format, args...),
			})
		}
	}
	if cfg.Client.LiveTopic != "" && cfg.Client.LiveTopic == cfg.Client.SnapshotTopic {
		errs = append(errs, ValidationError{
			Field:   "client.snapshot_topic",
			Message: "must differ from client.live_topic",
		})
	}
	return errors.Join(errs...)
}

// schemaInput is the view of cfg the schema describes.
func schemaInput(cfg Config) map[string]any {
	c, s := cfg.Client, cfg.Server
	return map[string]any{
		"client": map[string]any{
			"broker":               c.Broker,
			"live_topic":           c.LiveTopic,
			"snapshot_topic":       c.SnapshotTopic,
			"history_url":          c.HistoryURL,
			"bootstrap_timeout_ms": c.BootstrapTimeout.Duration().Milliseconds(),
			"persist_delay_ms":     c.PersistDelay.Duration().Milliseconds(),
			"exit_grace_ms":        c.ExitGrace.Duration().Milliseconds(),
			"identity_db":          c.IdentityDB,
			"qos":                  c.QoS,
		},
		"server": map[string]any{
			"listen":     s.Listen,
			"backend":    s.Backend,
			"data_path":  s.DataPath,
			"rate_rps":   s.RateRPS,
			"rate_burst": s.RateBurst,
		},
		"log": map[string]any{
			"level": cfg.Log.Level,
		},
	}
}
