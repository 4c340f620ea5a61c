package quota

import (
	"context"
	"math"
	"strconv"

	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/logging"
)

// DefaultAllocatedBytes applies to owners without an explicit allocation.
const DefaultAllocatedBytes = 1 << 20

// Gate admits or rejects writes against per-owner allocations.
type Gate struct {
	store            Store
	locker           Locker
	defaultAllocated int64
	log              *logging.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLocker sets the admission lock. Defaults to an in-process KeyedMutex.
func WithLocker(l Locker) Option {
	return func(g *Gate) { g.locker = l }
}

// WithDefaultAllocation sets the allocation used when the ledger has none.
func WithDefaultAllocation(bytes int64) Option {
	return func(g *Gate) { g.defaultAllocated = bytes }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// NewGate creates a gate over store.
func NewGate(store Store, opts ...Option) *Gate {
	g := &Gate{
		store:            store,
		locker:           NewKeyedMutex(),
		defaultAllocated: DefaultAllocatedBytes,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = logging.OrNop(g.log)
	return g
}

// EnsureAvailable rejects md with quota_exceeded if recording it would push
// the owner's usage past the allocation. It never writes.
func (g *Gate) EnsureAvailable(ctx context.Context, md EntityMetadata) error {
	owner, err := g.store.OwnerOf(ctx, md.WorldID)
	if err != nil {
		return err
	}
	return g.ensure(ctx, owner, md)
}

func (g *Gate) ensure(ctx context.Context, owner string, md EntityMetadata) error {
	allocated, err := g.allocated(ctx, owner)
	if err != nil {
		return err
	}
	used, existing, err := g.store.Usage(ctx, owner, md.StorageKey)
	if err != nil {
		return es.Wrap(es.CodeInternal, "quota usage", err)
	}
	projected := used - existing + md.SizeInBytes
	if projected > allocated {
		g.log.Warn("quota rejected",
			"owner", owner, "key", md.StorageKey,
			"allocated", allocated, "used", used, "projected", projected)
		return Exceeded(owner, allocated, used, projected)
	}
	g.log.Debug("quota admitted",
		"owner", owner, "key", md.StorageKey, "used", used, "projected", projected)
	return nil
}

// Commit records md's size against its owner, replacing any earlier size for
// the same storage key. Call it only after the entity was saved.
func (g *Gate) Commit(ctx context.Context, md EntityMetadata) error {
	owner, err := g.store.OwnerOf(ctx, md.WorldID)
	if err != nil {
		return err
	}
	return g.commit(ctx, owner, md)
}

func (g *Gate) commit(ctx context.Context, owner string, md EntityMetadata) error {
	allocated, err := g.allocated(ctx, owner)
	if err != nil {
		return err
	}
	return g.store.Record(ctx, owner, md, allocated)
}

// Admit runs check, write and commit as one sequence under the owner's lock.
// write is not called when the check fails, and nothing is committed when
// write fails. Once write succeeds the commit ignores cancellation of ctx so
// a saved entity is never left unaccounted.
//
// If the ledger rejects the commit after write succeeded, another writer got
// past the lock. The size is recorded anyway, since the entity exists, and
// Admit returns an internal error rather than quota_exceeded.
func (g *Gate) Admit(ctx context.Context, md EntityMetadata, write func(ctx context.Context) error) error {
	owner, err := g.store.OwnerOf(ctx, md.WorldID)
	if err != nil {
		return err
	}

	unlock, err := g.locker.Lock(ctx, "quota:"+owner)
	if err != nil {
		return err
	}
	defer unlock()

	if err := g.ensure(ctx, owner, md); err != nil {
		return err
	}
	if err := write(ctx); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	err = g.commit(ctx, owner, md)
	if err == nil || !es.IsQuotaExceeded(err) {
		return err
	}
	return g.overrun(ctx, owner, md, err)
}

// overrun records a saved entity whose size the ledger refused.
func (g *Gate) overrun(ctx context.Context, owner string, md EntityMetadata, rejected error) error {
	g.log.Error("quota accounting overrun",
		"owner", owner, "key", md.StorageKey, "size", md.SizeInBytes, "error", rejected)

	out := es.Errorf(es.CodeInternal, "quota accounting",
		"%s was saved past the allocation of %s", md.StorageKey, owner).
		WithDetail("owner", owner).
		WithDetail("storage_key", md.StorageKey)
	out.Cause = rejected
	if err := g.store.Record(ctx, owner, md, math.MaxInt64); err != nil {
		g.log.Error("quota accounting failed", "owner", owner, "key", md.StorageKey, "error", err)
		out.Cause = err
	}
	return out
}

// Summary returns the owner's allocation and usage.
func (g *Gate) Summary(ctx context.Context, owner string) (Summary, error) {
	allocated, err := g.allocated(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	used, _, err := g.store.Usage(ctx, owner, "")
	if err != nil {
		return Summary{}, es.Wrap(es.CodeInternal, "quota usage", err)
	}
	return NewSummary(owner, allocated, used), nil
}

// WorldSummary resolves the owner of worldID and returns its summary.
func (g *Gate) WorldSummary(ctx context.Context, worldID string) (Summary, error) {
	owner, err := g.store.OwnerOf(ctx, worldID)
	if err != nil {
		return Summary{}, err
	}
	return g.Summary(ctx, owner)
}

func (g *Gate) allocated(ctx context.Context, owner string) (int64, error) {
	allocated, ok, err := g.store.Allocation(ctx, owner)
	if err != nil {
		return 0, es.Wrap(es.CodeInternal, "quota allocation", err)
	}
	if !ok {
		return g.defaultAllocated, nil
	}
	return allocated, nil
}

// Exceeded builds the quota_exceeded error.
func Exceeded(owner string, allocated, used, projected int64) *es.Error {
	return es.Errorf(es.CodeQuotaExceeded, "quota", "storage quota exceeded").
		WithDetail("owner", owner).
		WithDetail("allocated", strconv.FormatInt(allocated, 10)).
		WithDetail("used", strconv.FormatInt(used, 10)).
		WithDetail("projected", strconv.FormatInt(projected, 10))
}
