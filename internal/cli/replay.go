package cli

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/worldforge/internal/app"
	"github.com/roach88/worldforge/internal/content/item"
	"github.com/roach88/worldforge/internal/content/talent"
	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/readmodel"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	EntityType string // optional - one entity type only
	Workers    int
}

// ReplayAggregateResult holds the replay result for a single aggregate.
type ReplayAggregateResult struct {
	ID            string `json:"id" yaml:"id"`
	EntityType    string `json:"entity_type" yaml:"entity_type"`
	Version       int64  `json:"version" yaml:"version"`
	Deterministic bool   `json:"deterministic" yaml:"deterministic"`
	ViewVersion   int64  `json:"view_version" yaml:"view_version"`
}

// InSync reports whether the read model holds the replayed version.
func (r ReplayAggregateResult) InSync() bool { return r.ViewVersion == r.Version }

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Aggregates       []ReplayAggregateResult `json:"aggregates" yaml:"aggregates"`
	Total            int                     `json:"total" yaml:"total"`
	AllDeterministic bool                    `json:"all_deterministic" yaml:"all_deterministic"`
	Stale            int                     `json:"stale" yaml:"stale"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the event log and verify determinism",
		Long: `Fold every aggregate from its events twice and verify that both folds
project to the same state. Aggregates whose read model lags the replayed
version are reported as stale.

Exit codes:
  0 - All aggregates replay deterministically
  1 - Determinism verification failed
  2 - Command error (database not found, corrupt event, etc.)

Examples:
  worldforge replay
  worldforge replay --type talent --workers 4 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(commandContext(cmd), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EntityType, "type", "", "replay one entity type only (item|talent)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 8, "aggregates replayed concurrently")

	return cmd
}

// projector folds an aggregate and returns its version and pure projection.
type projector func(ctx context.Context, id es.AggregateID) (int64, any, error)

// viewVersion returns the version held by the read model, 0 when absent.
type viewVersion func(ctx context.Context, id es.AggregateID) (int64, error)

type replayTarget struct {
	entityType string
	project    projector
	view       viewVersion
}

func replayTargets(a *app.App) []replayTarget {
	return []replayTarget{
		{
			entityType: item.AggregateType,
			project: func(ctx context.Context, id es.AggregateID) (int64, any, error) {
				agg, err := a.ItemRepo.LoadByID(ctx, id)
				if err != nil {
					return 0, nil, err
				}
				v := item.Vertical{}.Project(agg)
				return v.Version, v, nil
			},
			view: func(ctx context.Context, id es.AggregateID) (int64, error) {
				v, err := readmodel.Item(ctx, a.Views, id)
				if es.IsNotFound(err) {
					return 0, nil
				}
				return v.Version, err
			},
		},
		{
			entityType: talent.AggregateType,
			project: func(ctx context.Context, id es.AggregateID) (int64, any, error) {
				agg, err := a.TalentRepo.LoadByID(ctx, id)
				if err != nil {
					return 0, nil, err
				}
				v := talent.Vertical{}.Project(agg)
				return v.Version, v, nil
			},
			view: func(ctx context.Context, id es.AggregateID) (int64, error) {
				v, err := readmodel.Talent(ctx, a.Views, id)
				if es.IsNotFound(err) {
					return 0, nil
				}
				return v.Version, err
			},
		},
	}
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	if opts.EntityType != "" && opts.EntityType != item.AggregateType && opts.EntityType != talent.AggregateType {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown entity type %q", opts.EntityType))
	}
	if opts.Workers < 1 {
		return NewExitError(ExitCommandError, "--workers must be at least 1")
	}

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	out := formatter(cmd, opts.RootOptions)
	result, err := replayAll(ctx, a, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	if opts.Format != "text" {
		if !result.AllDeterministic {
			if err := out.encode(CLIResponse{
				Status: "error",
				Data:   result,
				Error:  &CLIError{Code: "E_DETERMINISM", Message: "determinism verification failed"},
			}); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "determinism verification failed")
		}
		return out.Success(result, nil)
	}
	return outputReplayText(cmd.OutOrStdout(), result, opts.Verbose)
}

func replayAll(ctx context.Context, a *app.App, opts *ReplayOptions) (ReplayResult, error) {
	result := ReplayResult{Aggregates: []ReplayAggregateResult{}, AllDeterministic: true}

	for _, target := range replayTargets(a) {
		if opts.EntityType != "" && opts.EntityType != target.entityType {
			continue
		}
		ids, err := a.Store.ListAggregates(ctx, target.entityType)
		if err != nil {
			return ReplayResult{}, fmt.Errorf("failed to list %s aggregates: %w", target.entityType, err)
		}

		results := make([]ReplayAggregateResult, len(ids))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for i, id := range ids {
			i, id := i, id
			g.Go(func() error {
				r, err := replayOne(gctx, target, id)
				if err != nil {
					return fmt.Errorf("%s %s: %w", target.entityType, id, err)
				}
				results[i] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return ReplayResult{}, err
		}

		for _, r := range results {
			if !r.Deterministic {
				result.AllDeterministic = false
			}
			if !r.InSync() {
				result.Stale++
			}
		}
		result.Aggregates = append(result.Aggregates, results...)
	}
	result.Total = len(result.Aggregates)
	return result, nil
}

func replayOne(ctx context.Context, target replayTarget, id es.AggregateID) (ReplayAggregateResult, error) {
	v1, first, err := target.project(ctx, id)
	if err != nil {
		return ReplayAggregateResult{}, fmt.Errorf("first replay failed: %w", err)
	}
	v2, second, err := target.project(ctx, id)
	if err != nil {
		return ReplayAggregateResult{}, fmt.Errorf("second replay failed: %w", err)
	}
	viewVersion, err := target.view(ctx, id)
	if err != nil {
		return ReplayAggregateResult{}, fmt.Errorf("failed to read view: %w", err)
	}
	return ReplayAggregateResult{
		ID:            id.String(),
		EntityType:    target.entityType,
		Version:       v1,
		Deterministic: v1 == v2 && reflect.DeepEqual(first, second),
		ViewVersion:   viewVersion,
	}, nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(w io.Writer, result ReplayResult, verbose bool) error {
	if result.Total == 0 {
		fmt.Fprintln(w, "No aggregates found in the event log.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d aggregate(s)\n", result.Total)
	fmt.Fprintln(w)

	for _, r := range result.Aggregates {
		if r.Deterministic && r.InSync() && !verbose {
			continue
		}
		status := "✓"
		if !r.Deterministic {
			status = "✗"
		}
		fmt.Fprintf(w, "%s %s %s v%d\n", status, r.EntityType, r.ID, r.Version)
		if !r.Deterministic {
			fmt.Fprintln(w, "  Warning: Non-deterministic replay detected!")
		}
		if !r.InSync() {
			fmt.Fprintf(w, "  Read model is at version %d\n", r.ViewVersion)
		}
	}

	if result.Stale > 0 {
		fmt.Fprintf(w, "%d read model(s) behind the event log\n", result.Stale)
	}
	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All aggregates verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
