package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/worldforge/internal/app"
	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/readmodel"
	"github.com/roach88/worldforge/internal/upsert"
)

// UpsertOptions holds flags for the upsert and show commands.
type UpsertOptions struct {
	*RootOptions
	EntityType      string
	File            string
	World           string
	ID              string
	ExpectedVersion int64
	Actor           string
}

// NewEntityCommand creates the command group for one entity type.
func NewEntityCommand(rootOpts *RootOptions, entityType string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   entityType,
		Short: fmt.Sprintf("Write and read %ss", entityType),
	}
	cmd.AddCommand(newUpsertCommand(rootOpts, entityType))
	cmd.AddCommand(newShowCommand(rootOpts, entityType))
	return cmd
}

func newUpsertCommand(rootOpts *RootOptions, entityType string) *cobra.Command {
	opts := &UpsertOptions{RootOptions: rootOpts, EntityType: entityType}

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: fmt.Sprintf("Create or replace a %s", entityType),
		Long: fmt.Sprintf(`Create or replace a %[1]s from a YAML or JSON payload file.

Without --id a new %[1]s is created. With --id an existing %[1]s is replaced:
only the fields that differ from the version named by --expected-version
(default: the current version) are written.

Exit codes:
  0 - created, updated, unchanged or not_found
  1 - rejected (validation, permission, conflict, quota, invariant)
  2 - command error

Examples:
  worldforge %[1]s upsert -f denier.yaml --world w1 --actor alice
  worldforge %[1]s upsert -f denier.yaml --world w1 --actor alice --id <uuid> --expected-version 3`, entityType),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpsert(commandContext(cmd), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", `payload file, "-" for stdin (required)`)
	cmd.Flags().StringVar(&opts.World, "world", "", "world id (required)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "entity id to replace")
	cmd.Flags().Int64Var(&opts.ExpectedVersion, "expected-version", 0, "version the payload was derived from")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "acting user (required)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("world")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func runUpsert(ctx context.Context, opts *UpsertOptions, cmd *cobra.Command) error {
	payload, err := readPayload(opts.File, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read payload", err)
	}

	raw := app.RawCommand{
		EntityType: opts.EntityType,
		WorldID:    opts.World,
		ActorID:    opts.Actor,
		Payload:    payload,
	}
	if opts.ID != "" {
		id, err := uuid.Parse(opts.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --id", err)
		}
		raw.ID = &id
	}
	if cmd.Flags().Changed("expected-version") {
		v := opts.ExpectedVersion
		raw.ExpectedVersion = &v
	}

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	out := formatter(cmd, opts.RootOptions)
	res, err := a.Upsert(ctx, raw)
	if err != nil {
		return out.DomainError(err)
	}
	if !opts.Verbose {
		res.View = nil
	}
	return out.Success(res, func(w io.Writer) {
		switch res.Status {
		case upsert.StatusNotFound:
			fmt.Fprintf(w, "%s %s not found in %s\n", opts.EntityType, opts.ID, opts.World)
		default:
			fmt.Fprintf(w, "✓ %s %s %s at version %d\n", opts.EntityType, res.ID, res.Status, res.Version)
		}
		if res.View != nil {
			writeYAML(w, res.View)
		}
	})
}

// readPayload decodes a YAML or JSON document; JSON is read as YAML.
func readPayload(path string, stdin io.Reader) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return payload, nil
}

func newShowCommand(rootOpts *RootOptions, entityType string) *cobra.Command {
	opts := &UpsertOptions{RootOptions: rootOpts, EntityType: entityType}

	cmd := &cobra.Command{
		Use:           "show <id>",
		Short:         fmt.Sprintf("Show the read model of a %s", entityType),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := uuid.Parse(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid id", err)
			}
			return runShow(commandContext(cmd), opts, es.AggregateID{World: opts.World, Entity: entity}, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.World, "world", "", "world id (required)")
	_ = cmd.MarkFlagRequired("world")

	return cmd
}

func runShow(ctx context.Context, opts *UpsertOptions, id es.AggregateID, cmd *cobra.Command) error {
	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	out := formatter(cmd, opts.RootOptions)
	var view any
	switch opts.EntityType {
	case "item":
		view, err = readmodel.Item(ctx, a.Views, id)
	default:
		view, err = readmodel.Talent(ctx, a.Views, id)
	}
	if err != nil {
		return out.DomainError(err)
	}
	return out.Success(view, func(w io.Writer) { writeYAML(w, view) })
}

// writeYAML prints v as YAML under its JSON field names.
func writeYAML(w io.Writer, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(w, v)
		return
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		fmt.Fprintln(w, v)
		return
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	_ = enc.Encode(doc)
	_ = enc.Close()
}
