package testutil

import (
	"context"
	"testing"

	"github.com/roach88/worldforge/internal/quota"
)

// Ledger returns an in-memory quota store where owner holds every world in
// worlds with the given allocation.
func Ledger(t testing.TB, owner string, allocated int64, worlds ...string) *quota.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := quota.NewMemoryStore()
	for _, w := range worlds {
		if err := store.SetWorldOwner(ctx, w, owner); err != nil {
			t.Fatalf("failed to register world %s: %v", w, err)
		}
	}
	if err := store.SetAllocation(ctx, owner, allocated); err != nil {
		t.Fatalf("failed to set allocation: %v", err)
	}
	return store
}
