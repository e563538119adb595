package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/chatsync/internal/config"
	"github.com/roach88/chatsync/internal/transport"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	configSet bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the chatsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chatsync",
		Short: "chatsync - group chat over a pub/sub broker",
		Long: "A chat client that keeps a shared message log in sync across peers " +
			"through a public pub/sub broker, with an optional history server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.configSet = cmd.Flags().Changed("config")
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default $"+config.EnvConfigPath+")")

	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewIdentityCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadConfig resolves the effective configuration for a command.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.LoadEffective(config.ResolvePath(o.ConfigPath, o.configSet))
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// logger builds the process logger on the command's stderr and installs it
// as the slog and paho default. --verbose forces debug level.
func (o *RootOptions) logger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level := cfg.Log.Level
	if o.Verbose {
		level = "debug"
	}
	logger := config.NewLogger(cmd.ErrOrStderr(), level)
	slog.SetDefault(logger)
	transport.InstallPahoLogger(logger)
	return logger
}

// formatter returns an OutputFormatter on the command's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
