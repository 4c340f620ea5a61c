package authz

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/quota"
)

func TestOwnerAuthorizer(t *testing.T) {
	ctx := context.Background()
	ledger := quota.NewMemoryStore()
	require.NoError(t, ledger.SetWorldOwner(ctx, "w1", "alice"))
	a := NewOwnerAuthorizer(ledger)
	id := es.MustAggregateID("w1", uuid.MustParse("0190a6e8-0000-7000-8000-000000000001"))

	assert.NoError(t, a.AuthorizeCreate(ctx, "alice", "w1", "item"))
	assert.NoError(t, a.AuthorizeUpdate(ctx, "alice", id, "item"))

	err := a.AuthorizeCreate(ctx, "bob", "w1", "item")
	assert.True(t, es.IsCode(err, es.CodePermissionDenied))
	err = a.AuthorizeUpdate(ctx, "bob", id, "talent")
	assert.True(t, es.IsCode(err, es.CodePermissionDenied))
	assert.Contains(t, err.Error(), "talent.update")

	err = a.AuthorizeCreate(ctx, "alice", "w9", "item")
	assert.True(t, es.IsNotFound(err))
}

func TestAllowAll(t *testing.T) {
	var a AllowAll
	assert.NoError(t, a.AuthorizeCreate(context.Background(), "", "w9", "item"))
	assert.NoError(t, a.AuthorizeUpdate(context.Background(), "", es.AggregateID{}, "item"))
}
