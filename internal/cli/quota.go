package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/worldforge/internal/quota"
)

// QuotaShowResult is the output of quota show.
type QuotaShowResult struct {
	quota.Summary `yaml:",inline"`

	Entries []quota.Entry `json:"entries,omitempty" yaml:"entries,omitempty"`
}

// NewQuotaCommand creates the quota command group.
func NewQuotaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and set owner storage allocations",
	}
	cmd.AddCommand(newQuotaSetCommand(rootOpts))
	cmd.AddCommand(newQuotaShowCommand(rootOpts))
	return cmd
}

func newQuotaSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <owner-id> <bytes>",
		Short: "Set an owner's allocation",
		Long: `Set the number of bytes an owner's worlds may occupy. Lowering an
allocation below current usage is allowed; further growth is then rejected
until usage drops.

Examples:
  worldforge quota set alice 1048576`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bytes, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || bytes < 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid byte count %q", args[1]))
			}
			return runQuotaSet(cmd, rootOpts, args[0], bytes)
		},
	}
}

func runQuotaSet(cmd *cobra.Command, opts *RootOptions, owner string, bytes int64) error {
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	out := formatter(cmd, opts)
	if err := a.Store.SetAllocation(ctx, owner, bytes); err != nil {
		return out.DomainError(err)
	}
	summary, err := a.Gate.Summary(ctx, owner)
	if err != nil {
		return out.DomainError(err)
	}
	return out.Success(summary, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s may use %d bytes (%d used)\n", owner, summary.AllocatedBytes, summary.UsedBytes)
	})
}

func newQuotaShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <owner-id>",
		Short: "Show an owner's allocation and usage",
		Long: `Show an owner's allocation, usage and available bytes. With --verbose
every recorded entity is listed with its size.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuotaShow(cmd, rootOpts, args[0])
		},
	}
}

func runQuotaShow(cmd *cobra.Command, opts *RootOptions, owner string) error {
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	out := formatter(cmd, opts)
	summary, err := a.Gate.Summary(ctx, owner)
	if err != nil {
		return out.DomainError(err)
	}
	result := QuotaShowResult{Summary: summary}
	if opts.Verbose {
		if result.Entries, err = a.Store.Entries(ctx, owner); err != nil {
			return out.DomainError(err)
		}
	}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Owner:     %s\n", summary.OwnerID)
		fmt.Fprintf(w, "Allocated: %d bytes\n", summary.AllocatedBytes)
		fmt.Fprintf(w, "Used:      %d bytes\n", summary.UsedBytes)
		fmt.Fprintf(w, "Available: %d bytes\n", summary.AvailableBytes)
		for _, e := range result.Entries {
			fmt.Fprintf(w, "  %s  %d\n", e.StorageKey, e.SizeInBytes)
		}
	})
}
