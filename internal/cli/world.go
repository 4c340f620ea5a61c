package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// WorldOptions holds flags for the world commands.
type WorldOptions struct {
	*RootOptions
	Owner string
}

// WorldResult is the output of world register.
type WorldResult struct {
	WorldID string `json:"world_id" yaml:"world_id"`
	OwnerID string `json:"owner_id" yaml:"owner_id"`
}

// WorldListResult is the output of world list.
type WorldListResult struct {
	OwnerID string   `json:"owner_id" yaml:"owner_id"`
	Worlds  []string `json:"worlds" yaml:"worlds"`
}

// NewWorldCommand creates the world command group.
func NewWorldCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "world",
		Short: "Manage world ownership",
	}
	cmd.AddCommand(newWorldRegisterCommand(rootOpts))
	cmd.AddCommand(newWorldListCommand(rootOpts))
	return cmd
}

func newWorldRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WorldOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register <world-id>",
		Short: "Register a world and its owner",
		Long: `Register a world and the owner whose allocation its content counts against.
Registering an existing world again moves it to the new owner.

Examples:
  worldforge world register w1 --owner alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorldRegister(commandContext(cmd), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner id (required)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func runWorldRegister(ctx context.Context, opts *WorldOptions, worldID string, cmd *cobra.Command) error {
	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	out := formatter(cmd, opts.RootOptions)
	if err := a.Store.SetWorldOwner(ctx, worldID, opts.Owner); err != nil {
		return out.DomainError(err)
	}
	result := WorldResult{WorldID: worldID, OwnerID: opts.Owner}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ World %s registered to %s\n", worldID, opts.Owner)
	})
}

func newWorldListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WorldOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List the worlds of an owner",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := openApp(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.Close()

			out := formatter(cmd, opts.RootOptions)
			worlds, err := a.Store.ListWorlds(ctx, opts.Owner)
			if err != nil {
				return out.DomainError(err)
			}
			if worlds == nil {
				worlds = []string{}
			}
			return out.Success(WorldListResult{OwnerID: opts.Owner, Worlds: worlds}, func(w io.Writer) {
				if len(worlds) == 0 {
					fmt.Fprintf(w, "No worlds owned by %s.\n", opts.Owner)
					return
				}
				for _, id := range worlds {
					fmt.Fprintln(w, id)
				}
			})
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner id (required)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
