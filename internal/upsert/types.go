package upsert

import (
	"context"

	"github.com/google/uuid"

	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/quota"
)

// Status is the outcome of a command.
type Status string

const (
	// StatusCreated indicates a new aggregate was saved at version 1.
	StatusCreated Status = "created"

	// StatusUpdated indicates one update event was saved.
	StatusUpdated Status = "updated"

	// StatusUnchanged indicates the payload matched the reference; nothing
	// was saved.
	StatusUnchanged Status = "unchanged"

	// StatusNotFound indicates a replace against an absent id with an
	// expected version. It is a result, not an error.
	StatusNotFound Status = "not_found"
)

// Command is one create-or-replace request.
type Command[P any] struct {
	WorldID string

	// ID selects the aggregate to replace. Nil creates a new one with a
	// generated id; an unknown id creates one with that id.
	ID *uuid.UUID

	// ExpectedVersion pins the reference the payload is diffed against.
	ExpectedVersion *int64

	ActorID string
	Payload P
}

// Result reports what a command did. View is nil for StatusNotFound.
type Result[R any] struct {
	Status  Status
	ID      es.AggregateID
	Version int64
	View    *R
}

// Validator checks a payload before anything is loaded. A failure must be a
// CodeValidation *es.Error listing every bad field.
type Validator interface {
	Validate(entityType string, payload any) error
}

// Authorizer decides whether the actor may create or update an entity.
// Denials must be CodePermissionDenied.
type Authorizer interface {
	AuthorizeCreate(ctx context.Context, actorID, worldID, entityType string) error
	AuthorizeUpdate(ctx context.Context, actorID string, id es.AggregateID, entityType string) error
}

// Projector persists a read model after a successful save.
type Projector[R any] interface {
	Project(ctx context.Context, view R) error
}

// Prechecker enforces cross-aggregate rules such as slug uniqueness right
// before saving. Violations must be CodeConflict.
type Prechecker[A es.Aggregate] interface {
	Precheck(ctx context.Context, a A) error
}

// Vertical adapts one aggregate type to the handler.
type Vertical[A es.Aggregate, P any, R any] interface {
	EntityType() string

	// Create builds a new aggregate at version 1 from a full payload.
	Create(id es.AggregateID, payload P, stamp es.Stamp) (A, error)

	// Replace stages on live every payload field that differs from the same
	// field on reference. It must not commit.
	Replace(live, reference A, payload P) error

	// Commit turns staged changes into at most one event.
	Commit(a A, stamp es.Stamp) error

	// Metadata sizes the aggregate for quota accounting.
	Metadata(a A) quota.EntityMetadata

	// Project is the pure read-model projection.
	Project(a A) R
}
