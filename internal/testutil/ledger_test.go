package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	ctx := context.Background()
	store := Ledger(t, "alice", 500, "w1", "w2")

	for _, w := range []string{"w1", "w2"} {
		owner, err := store.OwnerOf(ctx, w)
		require.NoError(t, err)
		assert.Equal(t, "alice", owner)
	}
	allocated, ok, err := store.Allocation(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(500), allocated)
}
