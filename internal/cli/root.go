// Package cli implements the worldforge command line.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/worldforge/internal/app"
	"github.com/roach88/worldforge/internal/config"
	"github.com/roach88/worldforge/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "yaml"
	Config  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the worldforge CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "worldforge",
		Short: "Event-sourced world content with per-owner storage quotas",
		Long: `worldforge stores world content (items, talents) as event-sourced
aggregates. Every write is a create-or-replace upsert that records only the
fields that changed, and every write is admitted against the world owner's
storage allocation.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "config file (default $WORLDFORGE_CONFIG)")

	cmd.AddCommand(NewWorldCommand(opts))
	cmd.AddCommand(NewQuotaCommand(opts))
	cmd.AddCommand(NewEntityCommand(opts, "item"))
	cmd.AddCommand(NewEntityCommand(opts, "talent"))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// openApp loads the configuration and wires an App. The configured logger
// is only used with --verbose.
func openApp(ctx context.Context, opts *RootOptions) (*app.App, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	var appOpts []app.Option
	if !opts.Verbose {
		appOpts = append(appOpts, app.WithLogger(logging.Nop()))
	}
	a, err := app.New(ctx, cfg, appOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open stores", err)
	}
	return a, nil
}

func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
