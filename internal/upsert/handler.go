package upsert

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/logging"
	"github.com/roach88/worldforge/internal/quota"
)

const instrumentationName = "github.com/roach88/worldforge/internal/upsert"

// Deps holds the collaborators shared by every vertical's handler. Zero
// fields get defaults: no validation, allow-all authorization, the system
// clock, UUIDv7 ids, a no-op logger and the global OpenTelemetry providers.
type Deps struct {
	Validator  Validator
	Authorizer Authorizer
	Clock      es.Clock
	IDs        es.IDGenerator
	Logger     *logging.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
}

// Handler executes create-or-replace commands for one aggregate type.
type Handler[A es.Aggregate, P any, R any] struct {
	vertical   Vertical[A, P, R]
	repo       *es.Repository[A]
	gate       *quota.Gate
	validator  Validator
	authorizer Authorizer
	projector  Projector[R]
	prechecker Prechecker[A]
	clock      es.Clock
	ids        es.IDGenerator
	log        *logging.Logger
	tracer     trace.Tracer
	commands   metric.Int64Counter
}

// NewHandler wires a handler for vertical.
func NewHandler[A es.Aggregate, P any, R any](vertical Vertical[A, P, R], repo *es.Repository[A], gate *quota.Gate, deps Deps) *Handler[A, P, R] {
	h := &Handler[A, P, R]{
		vertical:   vertical,
		repo:       repo,
		gate:       gate,
		validator:  deps.Validator,
		authorizer: deps.Authorizer,
		clock:      deps.Clock,
		ids:        deps.IDs,
		log:        logging.OrNop(deps.Logger).With("entity_type", vertical.EntityType()),
		tracer:     deps.Tracer,
	}
	if h.authorizer == nil {
		h.authorizer = allowAll{}
	}
	if h.clock == nil {
		h.clock = es.SystemClock{}
	}
	if h.ids == nil {
		h.ids = es.UUIDv7Generator{}
	}
	if h.tracer == nil {
		h.tracer = otel.Tracer(instrumentationName)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	counter, err := meter.Int64Counter("worldforge.upsert.commands",
		metric.WithDescription("Create-or-replace commands by entity type and outcome"))
	if err == nil {
		h.commands = counter
	}
	return h
}

// WithProjector sets the read-model writer.
func (h *Handler[A, P, R]) WithProjector(p Projector[R]) *Handler[A, P, R] {
	h.projector = p
	return h
}

// WithPrechecker sets the pre-save conflict check.
func (h *Handler[A, P, R]) WithPrechecker(p Prechecker[A]) *Handler[A, P, R] {
	h.prechecker = p
	return h
}

// Execute runs one command. See the package documentation for the steps.
func (h *Handler[A, P, R]) Execute(ctx context.Context, cmd Command[P]) (Result[R], error) {
	entityType := h.vertical.EntityType()
	ctx, span := h.tracer.Start(ctx, entityType+".upsert",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("worldforge.entity_type", entityType),
			attribute.String("worldforge.world_id", cmd.WorldID),
		))
	defer span.End()

	res, err := h.execute(ctx, cmd)

	outcome := string(res.Status)
	if err != nil {
		outcome = string(es.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		h.logFailure(cmd, err)
	} else {
		span.SetAttributes(
			attribute.String("worldforge.status", outcome),
			attribute.String("worldforge.aggregate_id", res.ID.String()),
			attribute.Int64("worldforge.version", res.Version),
		)
		h.log.Info("upsert",
			"world", cmd.WorldID, "id", res.ID.String(), "status", outcome,
			"version", res.Version, "actor", cmd.ActorID)
	}
	if h.commands != nil {
		h.commands.Add(ctx, 1, metric.WithAttributes(
			attribute.String("entity_type", entityType),
			attribute.String("outcome", outcome),
		))
	}
	return res, err
}

func (h *Handler[A, P, R]) logFailure(cmd Command[P], err error) {
	kv := []any{"world", cmd.WorldID, "actor", cmd.ActorID, "code", string(es.CodeOf(err)), "error", err}
	switch es.CodeOf(err) {
	case es.CodeInternal:
		h.log.Error("upsert failed", kv...)
	case es.CodeVersionConflict, es.CodeQuotaExceeded, es.CodeConflict:
		h.log.Warn("upsert rejected", kv...)
	default:
		h.log.Debug("upsert rejected", kv...)
	}
}

func (h *Handler[A, P, R]) execute(ctx context.Context, cmd Command[P]) (Result[R], error) {
	entityType := h.vertical.EntityType()
	op := entityType + ".upsert"

	if cmd.WorldID == "" {
		return Result[R]{}, es.Validation(op, []es.FieldError{{Field: "world_id", Code: "required", Message: "world id is required"}})
	}
	if cmd.ActorID == "" {
		return Result[R]{}, es.Errorf(es.CodePermissionDenied, op, "actor is required")
	}
	if h.validator != nil {
		if err := h.validator.Validate(entityType, cmd.Payload); err != nil {
			return Result[R]{}, err
		}
	}

	var (
		id    es.AggregateID
		agg   A
		found bool
	)
	if cmd.ID != nil {
		var err error
		if id, err = es.NewAggregateID(cmd.WorldID, *cmd.ID); err != nil {
			return Result[R]{}, err
		}
		agg, err = h.repo.LoadByID(ctx, id)
		switch {
		case err == nil:
			found = true
		case es.IsNotFound(err):
		default:
			return Result[R]{}, err
		}
	}

	stamp := es.NewStamp(cmd.ActorID, h.clock)
	var status Status

	if !found {
		if cmd.ExpectedVersion != nil {
			return Result[R]{Status: StatusNotFound, ID: id}, nil
		}
		if err := h.authorizer.AuthorizeCreate(ctx, cmd.ActorID, cmd.WorldID, entityType); err != nil {
			return Result[R]{}, err
		}
		if cmd.ID == nil {
			id = es.AggregateID{World: cmd.WorldID, Entity: h.ids.NewID()}
		}
		created, err := h.vertical.Create(id, cmd.Payload, stamp)
		if err != nil {
			return Result[R]{}, err
		}
		agg = created
		status = StatusCreated
	} else {
		if err := h.authorizer.AuthorizeUpdate(ctx, cmd.ActorID, id, entityType); err != nil {
			return Result[R]{}, err
		}
		reference := agg
		if cmd.ExpectedVersion != nil {
			ref, err := h.repo.LoadAtVersion(ctx, id, *cmd.ExpectedVersion)
			if err != nil {
				return Result[R]{}, err
			}
			reference = ref
		}
		if err := h.vertical.Replace(agg, reference, cmd.Payload); err != nil {
			return Result[R]{}, err
		}
		if err := h.vertical.Commit(agg, stamp); err != nil {
			return Result[R]{}, err
		}
		if !agg.Root().Dirty() {
			return h.result(StatusUnchanged, agg), nil
		}
		status = StatusUpdated
	}

	if h.prechecker != nil {
		if err := h.prechecker.Precheck(ctx, agg); err != nil {
			return Result[R]{}, err
		}
	}

	md := h.vertical.Metadata(agg)
	err := h.gate.Admit(ctx, md, func(ctx context.Context) error {
		return h.repo.Save(ctx, agg)
	})
	if err != nil {
		return Result[R]{}, err
	}

	res := h.result(status, agg)
	if h.projector != nil {
		if err := h.projector.Project(ctx, *res.View); err != nil {
			return res, es.Wrap(es.CodeInternal, op+": project", err)
		}
	}
	return res, nil
}

func (h *Handler[A, P, R]) result(status Status, agg A) Result[R] {
	version, _ := agg.Root().Version()
	view := h.vertical.Project(agg)
	return Result[R]{Status: status, ID: agg.Root().ID(), Version: version, View: &view}
}

type allowAll struct{}

func (allowAll) AuthorizeCreate(context.Context, string, string, string) error { return nil }

func (allowAll) AuthorizeUpdate(context.Context, string, es.AggregateID, string) error {
	return nil
}
