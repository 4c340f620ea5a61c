package es

import (
	"context"
)

// EventLog is the append-only storage behind a Repository.
type EventLog interface {
	// Load returns the records of id ordered by version. upTo > 0 limits the
	// result to versions <= upTo. A missing aggregate yields an empty slice.
	Load(ctx context.Context, id AggregateID, upTo int64) ([]Record, error)

	// LoadMany returns the full histories of ids keyed by id. Missing
	// aggregates are absent from the map.
	LoadMany(ctx context.Context, ids []AggregateID) (map[AggregateID][]Record, error)

	// Append stores records atomically. For every aggregate in the batch the
	// first version must be the stored latest plus one and versions must be
	// contiguous, otherwise nothing is written and a CodeVersionConflict
	// error is returned.
	Append(ctx context.Context, records []Record) error
}

// Repository loads and saves one aggregate type.
type Repository[A Aggregate] struct {
	log      EventLog
	registry *Registry
	factory  func() A
	ids      IDGenerator
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	ids IDGenerator
}

// WithEventIDs sets the generator used for event ids. Defaults to UUIDv7.
func WithEventIDs(ids IDGenerator) RepositoryOption {
	return func(o *repositoryOptions) { o.ids = ids }
}

// NewRepository creates a repository. factory must return a fresh, empty
// aggregate.
func NewRepository[A Aggregate](log EventLog, registry *Registry, factory func() A, opts ...RepositoryOption) *Repository[A] {
	o := repositoryOptions{ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[A]{log: log, registry: registry, factory: factory, ids: o.ids}
}

// Registry returns the codec used by the repository.
func (r *Repository[A]) Registry() *Registry { return r.registry }

// LoadByID returns the aggregate at its latest version.
func (r *Repository[A]) LoadByID(ctx context.Context, id AggregateID) (A, error) {
	var zero A
	records, err := r.log.Load(ctx, id, 0)
	if err != nil {
		return zero, Wrap(CodeInternal, "load "+r.registry.AggregateType(), err)
	}
	if len(records) == 0 {
		return zero, NotFound("load "+r.registry.AggregateType(), id)
	}
	return r.fold(records)
}

// LoadAtVersion returns the aggregate as it was right after version was
// committed. A version below 1 or beyond the latest one is CodeNotFound.
func (r *Repository[A]) LoadAtVersion(ctx context.Context, id AggregateID, version int64) (A, error) {
	var zero A
	op := "load " + r.registry.AggregateType() + " at version"
	if version < 1 {
		return zero, NotFound(op, id).WithDetail("version", itoa(version))
	}
	records, err := r.log.Load(ctx, id, version)
	if err != nil {
		return zero, Wrap(CodeInternal, op, err)
	}
	if int64(len(records)) < version {
		return zero, NotFound(op, id).WithDetail("version", itoa(version))
	}
	return r.fold(records)
}

// LoadMany returns the aggregates that exist, in the order of ids.
// Duplicate ids are returned once.
func (r *Repository[A]) LoadMany(ctx context.Context, ids []AggregateID) ([]A, error) {
	if len(ids) == 0 {
		return []A{}, nil
	}
	histories, err := r.log.LoadMany(ctx, ids)
	if err != nil {
		return nil, Wrap(CodeInternal, "load many "+r.registry.AggregateType(), err)
	}
	out := make([]A, 0, len(histories))
	seen := make(map[AggregateID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		records, ok := histories[id]
		if !ok || len(records) == 0 {
			continue
		}
		a, err := r.fold(records)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Save appends the aggregate's uncommitted events.
func (r *Repository[A]) Save(ctx context.Context, a A) error {
	return r.SaveMany(ctx, a)
}

// SaveMany appends the uncommitted events of all aggregates in one atomic
// batch. Aggregates with nothing uncommitted are skipped.
func (r *Repository[A]) SaveMany(ctx context.Context, aggregates ...A) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var records []Record
	claims := make(map[AggregateID][]Claim)
	for _, a := range aggregates {
		if !a.Root().Dirty() {
			continue
		}
		for _, env := range a.Root().uncommitted {
			rec, err := r.registry.Encode(env, r.ids.NewID())
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		if c, ok := any(a).(Claimant); ok {
			claims[a.Root().ID()] = c.Claims()
		}
	}
	if len(records) == 0 {
		return nil
	}
	if err := r.append(ctx, records, claims); err != nil {
		return err
	}
	for _, a := range aggregates {
		a.Root().markPersisted()
	}
	return nil
}

func (r *Repository[A]) append(ctx context.Context, records []Record, claims map[AggregateID][]Claim) error {
	if cl, ok := r.log.(ClaimingLog); ok && len(claims) > 0 {
		return cl.AppendClaiming(ctx, records, claims)
	}
	return r.log.Append(ctx, records)
}

func (r *Repository[A]) fold(records []Record) (A, error) {
	var zero A
	history := make([]Envelope, 0, len(records))
	for _, rec := range records {
		env, err := r.registry.Decode(rec)
		if err != nil {
			return zero, err
		}
		history = append(history, env)
	}
	a := r.factory()
	if err := Replay(a, history); err != nil {
		return zero, err
	}
	return a, nil
}
