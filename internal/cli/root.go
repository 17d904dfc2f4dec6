// Package cli implements the erpsync command-line entry point: init, test,
// sync, status, conflicts, and webhook subcommands over the engine package.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentworkforce/erpsync/internal/config"
)

// RootOptions holds flags shared by every subcommand.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand builds the erpsync root command and wires its subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "erpsync",
		Short:         "Bidirectional document sync between a cloud and local endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newTestCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newConflictsCommand(opts))
	cmd.AddCommand(newWebhookCommand(opts))

	return cmd
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}
	return cfg, nil
}
