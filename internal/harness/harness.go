package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/worldforge/internal/app"
	"github.com/roach88/worldforge/internal/config"
	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/logging"
	"github.com/roach88/worldforge/internal/testutil"
)

// refNamespace seeds the UUIDs that scenario refs map to.
var refNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("worldforge/harness/ref"))

// RefID returns the entity id a scenario ref maps to.
func RefID(ref string) uuid.UUID {
	return uuid.NewSHA1(refNamespace, []byte(ref))
}

// Harness executes one scenario against a wired App.
type Harness struct {
	app      *app.App
	scenario *Scenario
	owners   map[string]string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh SQLite databases in a temporary
// directory. A returned error means the scenario could not run at all;
// failed expectations are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "worldforge-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(dir, "events.db")
	cfg.ReadModel.DSN = filepath.Join(dir, "views.db")
	if scenario.DefaultAllocatedBytes > 0 {
		cfg.Quota.DefaultAllocatedBytes = scenario.DefaultAllocatedBytes
	}

	a, err := app.New(ctx, cfg,
		app.WithLogger(logging.Nop()),
		app.WithClock(testutil.NewStepClock()),
		app.WithIDs(es.NewSequentialGenerator("harness/entities"), es.NewSequentialGenerator("harness/events")))
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	defer a.Close()

	h := &Harness{app: a, scenario: scenario, owners: make(map[string]string)}
	if err := h.setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) setup(ctx context.Context) error {
	for _, w := range h.scenario.Worlds {
		if err := h.app.Store.SetWorldOwner(ctx, w.ID, w.Owner); err != nil {
			return err
		}
		h.owners[w.ID] = w.Owner
		if w.AllocatedBytes != nil {
			if err := h.app.Store.SetAllocation(ctx, w.Owner, *w.AllocatedBytes); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Harness) world(name string) string {
	if name != "" {
		return name
	}
	return h.scenario.Worlds[0].ID
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	worldID := h.world(step.World)
	actor := step.Actor
	if actor == "" {
		actor = h.owners[worldID]
	}

	cmd := app.RawCommand{
		EntityType:      step.Upsert,
		WorldID:         worldID,
		ExpectedVersion: step.ExpectedVersion,
		ActorID:         actor,
		Payload:         resolveRefs(step.Payload),
	}

	var before int64
	if step.Ref != "" {
		id := RefID(step.Ref)
		cmd.ID = &id
		n, err := h.app.Store.CountEvents(ctx, es.AggregateID{World: worldID, Entity: id})
		if err != nil {
			return err
		}
		before = n
	}

	res, err := h.app.Upsert(ctx, cmd)

	trace := TraceStep{Step: index, EntityType: step.Upsert, Ref: step.Ref, Events: []TraceEvent{}}
	switch {
	case res.ID != "":
		trace.ID = res.ID
	case step.Ref != "":
		trace.ID = es.AggregateID{World: worldID, Entity: *cmd.ID}.String()
	}
	if err != nil {
		trace.Error = string(es.CodeOf(err))
	} else {
		trace.Status = string(res.Status)
		trace.Version = res.Version
	}

	if trace.ID != "" {
		id, perr := es.ParseAggregateID(trace.ID)
		if perr != nil {
			return perr
		}
		records, lerr := h.app.Store.Load(ctx, id, 0)
		if lerr != nil {
			return lerr
		}
		for _, rec := range records {
			if rec.Version <= before {
				continue
			}
			trace.Events = append(trace.Events, TraceEvent{
				Version:     rec.Version,
				Type:        string(rec.EventType),
				Payload:     rec.Payload,
				PayloadHash: rec.PayloadHash,
			})
		}
	}
	result.Trace = append(result.Trace, trace)

	if msg := checkExpect(index, step.Expect, res, err); msg != "" {
		result.AddError(msg)
	}
	return nil
}

func checkExpect(index int, e *Expect, res app.RawResult, err error) string {
	if e == nil {
		if err != nil {
			return fmt.Sprintf("steps[%d]: unexpected error: %v", index, err)
		}
		return ""
	}
	if e.Error != "" {
		if err == nil {
			return fmt.Sprintf("steps[%d]: expected error %s, got status %s", index, e.Error, res.Status)
		}
		if got := string(es.CodeOf(err)); got != e.Error {
			return fmt.Sprintf("steps[%d]: expected error %s, got %s (%v)", index, e.Error, got, err)
		}
		return ""
	}
	if err != nil {
		return fmt.Sprintf("steps[%d]: unexpected error: %v", index, err)
	}
	if e.Status != "" && string(res.Status) != e.Status {
		return fmt.Sprintf("steps[%d]: expected status %s, got %s", index, e.Status, res.Status)
	}
	if e.Version != 0 && res.Version != e.Version {
		return fmt.Sprintf("steps[%d]: expected version %d, got %d", index, e.Version, res.Version)
	}
	return ""
}

// resolveRefs replaces "@ref" strings with the ref's UUID.
func resolveRefs(v any) any {
	switch val := v.(type) {
	case string:
		if ref, ok := strings.CutPrefix(val, "@"); ok && ref != "" {
			return RefID(ref).String()
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolveRefs(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveRefs(item)
		}
		return out
	default:
		return v
	}
}
