package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/config"
	"github.com/roach88/chatsync/internal/engine"
	"github.com/roach88/chatsync/internal/history"
	"github.com/roach88/chatsync/internal/identity"
	"github.com/roach88/chatsync/internal/store"
	"github.com/roach88/chatsync/internal/transport"
)

const joinHelp = `commands:
  <text>               send a message
  /reply <id> <text>   reply to a message
  /react <id> <emoji>  toggle a reaction
  /delete <id>         delete one of your messages
  /clear               clear the history for everyone
  /list                show the log
  /quit                leave`

// JoinOptions holds flags for the join command.
type JoinOptions struct {
	*RootOptions
	Broker     string
	HistoryURL string
	Ephemeral  bool

	// Dialer overrides the MQTT dialer (for testing).
	Dialer transport.Dialer
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	return newJoinCommand(&JoinOptions{RootOptions: rootOpts})
}

func newJoinCommand(opts *JoinOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join the chat room",
		Long: `Connect to the broker, load the shared history and chat interactively.

Lines read from stdin are sent as messages; lines starting with / are
commands. End of input leaves the room after a final history flush.

` + joinHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runJoin(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Broker, "broker", "", "broker URL (overrides config)")
	cmd.Flags().StringVar(&opts.HistoryURL, "history-url", "", "history server URL (overrides config)")
	cmd.Flags().BoolVar(&opts.Ephemeral, "ephemeral", false, "use a one-off client id")

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd
}

func runJoin(ctx context.Context, cmd *cobra.Command, opts *JoinOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Broker != "" {
		cfg.Client.Broker = opts.Broker
	}
	if opts.HistoryURL != "" {
		cfg.Client.HistoryURL = opts.HistoryURL
	}
	logger := opts.logger(cmd, cfg)

	dbPath := cfg.Client.IdentityDB
	if opts.Ephemeral {
		dbPath = ""
	}
	id, err := resolveIdentity(ctx, dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve identity", err)
	}
	logger.Debug("identity resolved", "client_id", id.ClientID, "persistent", id.Persistent)

	dialer := opts.Dialer
	if dialer == nil {
		dialer = transport.NewMQTTDialer(cfg.Client.Broker, logger)
	}

	out := &lockedWriter{w: cmd.OutOrStdout()}
	ready := make(chan struct{})
	var readyOnce sync.Once
	var live atomic.Bool
	var sess *engine.Session

	observe := func(u engine.Update) {
		switch u.Kind {
		case engine.UpdateBootstrap:
			renderLog(out, sess.Messages(), id.ClientID)
			live.Store(true)
			readyOnce.Do(func() { close(ready) })
		case engine.UpdateAction:
			if u.Origin == engine.OriginRemote {
				renderRemote(out, u.Action, id.ClientID)
			}
		case engine.UpdateStatus:
			if live.Load() {
				renderStatus(out, u.Status)
			}
		}
	}

	sess = engine.New(dialer, id.ClientID, sessionOptions(cfg, logger, observe)...)

	errc := make(chan error, 1)
	go func() { errc <- sess.Run(ctx) }()

	fmt.Fprintf(out, "joining as %s, loading history...\n", id.ClientID)
	select {
	case <-ready:
	case <-sess.Done():
		return sessionExit(<-errc)
	}
	fmt.Fprintln(out, "type /help for commands")

	lines := readLines(cmd.InOrStdin())
	for quit := false; !quit; {
		select {
		case line, ok := <-lines:
			if !ok {
				quit = true
				break
			}
			quit = handleLine(ctx, out, sess, line)
		case <-sess.Done():
			return sessionExit(<-errc)
		}
	}

	sess.Stop()
	return sessionExit(<-errc)
}

// sessionOptions maps the client config onto session options.
func sessionOptions(cfg config.Config, logger *slog.Logger, observe func(engine.Update)) []engine.Option {
	opts := []engine.Option{
		engine.WithTopics(cfg.Client.LiveTopic, cfg.Client.SnapshotTopic),
		engine.WithBootstrapTimeout(cfg.Client.BootstrapTimeout.Duration()),
		engine.WithPersistDelay(cfg.Client.PersistDelay.Duration()),
		engine.WithExitGrace(cfg.Client.ExitGrace.Duration()),
		engine.WithQoS(byte(cfg.Client.QoS)),
		engine.WithLogger(logger),
		engine.WithObserver(observe),
	}
	if cfg.Client.HistoryURL != "" {
		hc := history.NewClient(cfg.Client.HistoryURL, history.WithClientLogger(logger))
		opts = append(opts, engine.WithSnapshotSource(hc), engine.WithPersistWriter(hc))
	}
	return opts
}

// resolveIdentity loads the persistent client id from the SQLite file at
// path, or returns an ephemeral one when path is empty.
func resolveIdentity(ctx context.Context, path string) (identity.Identity, error) {
	gen := chat.UUIDv4Generator{}
	if path == "" {
		return identity.Ephemeral(gen), nil
	}
	st, err := store.Open(path)
	if err != nil {
		return identity.Identity{}, err
	}
	defer st.Close()
	return identity.Resolve(ctx, st, gen)
}

// sessionExit maps the result of Session.Run onto a command error.
func sessionExit(err error) error {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case engine.IsTransportError(err):
		return WrapExitError(ExitFailure, "connection lost", err)
	default:
		return WrapExitError(ExitFailure, "session failed", err)
	}
}

// readLines feeds r line by line into the returned channel, closing it at
// end of input.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// handleLine runs one input line against the session. It reports whether
// the user asked to leave.
func handleLine(ctx context.Context, w io.Writer, sess *engine.Session, line string) bool {
	cmdline := strings.TrimSpace(line)
	if cmdline == "" {
		return false
	}
	if !strings.HasPrefix(cmdline, "/") {
		report(w, sendMessage(ctx, w, sess, line, ""))
		return false
	}

	name, rest, _ := strings.Cut(cmdline, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(w, joinHelp)
	case "/list":
		renderLog(w, sess.Messages(), sess.ClientID())
	case "/clear":
		report(w, sess.ClearAll(ctx))
	case "/delete":
		if rest == "" {
			fmt.Fprintln(w, "! usage: /delete <id>")
			return false
		}
		report(w, sess.Delete(ctx, rest))
	case "/react":
		msgID, emoji, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(emoji) == "" {
			fmt.Fprintln(w, "! usage: /react <id> <emoji>")
			return false
		}
		report(w, sess.ToggleReaction(ctx, msgID, strings.TrimSpace(emoji)))
	case "/reply":
		msgID, text, ok := strings.Cut(rest, " ")
		if !ok {
			fmt.Fprintln(w, "! usage: /reply <id> <text>")
			return false
		}
		report(w, sendMessage(ctx, w, sess, text, msgID))
	default:
		fmt.Fprintf(w, "! unknown command %s (try /help)\n", name)
	}
	return false
}

func sendMessage(ctx context.Context, w io.Writer, sess *engine.Session, text, replyTo string) error {
	m, err := sess.Send(ctx, text, replyTo)
	if err != nil {
		return err
	}
	renderMessage(w, m, sess.ClientID())
	return nil
}

func report(w io.Writer, err error) {
	if err != nil {
		fmt.Fprintf(w, "! %v\n", err)
	}
}
