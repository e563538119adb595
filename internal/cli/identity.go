package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chatsync/internal/identity"
	"github.com/roach88/chatsync/internal/store"
)

// IdentityOptions holds flags for the identity command.
type IdentityOptions struct {
	*RootOptions
	Reset bool
}

// identityInfo is the JSON shape of the identity command.
type identityInfo struct {
	ClientID   string `json:"client_id"`
	Persistent bool   `json:"persistent"`
	Created    bool   `json:"created"`
	Path       string `json:"path,omitempty"`
}

// NewIdentityCommand creates the identity command.
func NewIdentityCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IdentityOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Show the persisted client id",
		Long: `Print the client id this machine chats as, creating it on first use.

With --reset the stored id is discarded and a new one is created; messages
sent under the old id can no longer be deleted from this machine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIdentity(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "discard the stored id and create a new one")

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd
}

func runIdentity(cmd *cobra.Command, opts *IdentityOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	opts.logger(cmd, cfg)
	ctx := cmd.Context()

	path := cfg.Client.IdentityDB
	if path == "" {
		return NewExitError(ExitCommandError, "no identity database configured (client.identity_db)")
	}

	if opts.Reset {
		st, err := store.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open identity database", err)
		}
		err = st.Delete(ctx, identity.Scope, identity.Key)
		st.Close()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to reset identity", err)
		}
	}

	id, err := resolveIdentity(ctx, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve identity", err)
	}

	info := identityInfo{ClientID: id.ClientID, Persistent: id.Persistent, Created: id.Created, Path: path}
	return opts.formatter(cmd).Render(info, func(w io.Writer) {
		fmt.Fprintln(w, info.ClientID)
		if info.Created {
			fmt.Fprintf(w, "(new id stored in %s)\n", path)
		}
	})
}
