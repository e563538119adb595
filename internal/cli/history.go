package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/chatsync/internal/history"
	"github.com/roach88/chatsync/internal/store"
)

const shutdownTimeout = 5 * time.Second

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Run or query the history server",
	}
	cmd.AddCommand(NewHistoryServeCommand(rootOpts))
	cmd.AddCommand(NewHistoryShowCommand(rootOpts))
	return cmd
}

// ServeOptions holds flags for the history serve command.
type ServeOptions struct {
	*RootOptions
	Listen   string
	Backend  string
	DataPath string

	// onListen is called with the bound address once the server accepts
	// connections (for testing).
	onListen func(net.Addr)
}

// NewHistoryServeCommand creates the history serve command.
func NewHistoryServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newHistoryServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newHistoryServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat history over HTTP",
		Long: `Serve the stored chat history.

  GET  /history   the stored message array ([] when empty)
  POST /history   replace the stored array
  GET  /healthz   liveness
  GET  /metrics   Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runHistoryServe(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "storage backend: sqlite or pebble (overrides config)")
	cmd.Flags().StringVar(&opts.DataPath, "data", "", "storage path (overrides config)")

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd
}

func runHistoryServe(ctx context.Context, cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}
	if opts.Backend != "" {
		cfg.Server.Backend = opts.Backend
	}
	if opts.DataPath != "" {
		cfg.Server.DataPath = opts.DataPath
	}
	logger := opts.logger(cmd, cfg)

	blobs, err := store.OpenBlobs(store.Backend(cfg.Server.Backend), cfg.Server.DataPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history store", err)
	}
	defer blobs.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := &http.Server{
		Handler: history.NewServer(blobs,
			history.WithLogger(logger),
			history.WithRateLimit(cfg.Server.RateRPS, cfg.Server.RateBurst),
			history.WithRegistry(reg),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	logger.Info("history server listening",
		"addr", ln.Addr().String(),
		"backend", cfg.Server.Backend,
		"data", cfg.Server.DataPath,
	)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	if opts.onListen != nil {
		opts.onListen(ln.Addr())
	}

	select {
	case err := <-errc:
		return WrapExitError(ExitFailure, "history server failed", err)
	case <-ctx.Done():
	}

	logger.Info("history server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "history server shutdown", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "history server failed", err)
	}
	return nil
}

// ShowOptions holds flags for the history show command.
type ShowOptions struct {
	*RootOptions
	URL     string
	Timeout time.Duration
}

// NewHistoryShowCommand creates the history show command.
func NewHistoryShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the history stored on a history server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "history server URL (default client.history_url)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", history.DefaultTimeout, "request timeout")

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd
}

func runHistoryShow(cmd *cobra.Command, opts *ShowOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.logger(cmd, cfg)

	url := opts.URL
	if url == "" {
		url = cfg.Client.HistoryURL
	}
	if url == "" {
		return NewExitError(ExitCommandError, "no history server: pass --url or set client.history_url")
	}

	client := history.NewClient(url, history.WithTimeout(opts.Timeout), history.WithClientLogger(logger))
	msgs, err := client.Load(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load history", err)
	}

	return opts.formatter(cmd).Render(msgs, func(w io.Writer) {
		renderLog(w, msgs, "")
		fmt.Fprintf(w, "%d message(s)\n", len(msgs))
	})
}
