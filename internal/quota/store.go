package quota

import "context"

// Store is the durable ledger behind a Gate.
type Store interface {
	// OwnerOf returns the owner of worldID, or a not_found error.
	OwnerOf(ctx context.Context, worldID string) (string, error)

	// Allocation returns the owner's allocated bytes. ok is false when no
	// allocation was ever set.
	Allocation(ctx context.Context, ownerID string) (allocated int64, ok bool, err error)

	// Usage returns the owner's total recorded bytes and the bytes already
	// recorded for storageKey.
	Usage(ctx context.Context, ownerID, storageKey string) (used, existing int64, err error)

	// Record replaces the contribution of md.StorageKey with md.SizeInBytes
	// in one transaction, failing with quota_exceeded if the result would
	// exceed limit.
	Record(ctx context.Context, ownerID string, md EntityMetadata, limit int64) error

	// Entries lists the owner's contributions ordered by storage key.
	Entries(ctx context.Context, ownerID string) ([]Entry, error)
}
