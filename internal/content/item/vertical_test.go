package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldforge/internal/es"
)

func strPtr(s string) *string { return &s }

func basePayload() Payload {
	return Payload{Name: "Denier", Slug: "denier", Category: "Money", WeightGrams: 2, Price: 1}
}

func TestVertical_ReplaceDiffsAgainstReference(t *testing.T) {
	live := denier(t)
	reference := denier(t)
	_, _ = live.SetName("B")
	require.NoError(t, live.Commit(stampAt("u2", 1)))

	// Payload matches the reference: the concurrent change survives.
	require.NoError(t, Vertical{}.Replace(live, reference, basePayload()))
	assert.True(t, live.Pending().IsEmpty())
	assert.Equal(t, "B", live.State().Name)

	// Payload differs from the reference: it wins.
	p := basePayload()
	p.Name = "C"
	require.NoError(t, Vertical{}.Replace(live, reference, p))
	require.NotNil(t, live.Pending().Name)
	assert.Equal(t, "C", live.State().Name)
}

func TestVertical_ReplaceSetsNullDescription(t *testing.T) {
	live := denier(t)
	_, _ = live.SetDescription(es.Some("A coin"))
	require.NoError(t, live.Commit(stampAt("u1", 1)))

	require.NoError(t, Vertical{}.Replace(live, live, basePayload()))
	pending := live.Pending()
	require.NotNil(t, pending.Description)
	assert.False(t, pending.Description.Value.Valid)
}

func TestVertical_Project(t *testing.T) {
	i := denier(t)
	_, _ = i.SetDescription(es.Some("A coin"))
	require.NoError(t, i.Commit(stampAt("u1", 1)))

	view := Vertical{}.Project(i)
	assert.Equal(t, testID().String(), view.ID)
	assert.Equal(t, "w1", view.WorldID)
	assert.Equal(t, int64(2), view.Version)
	assert.Equal(t, strPtr("A coin"), view.Description)
	assert.Equal(t, "Money", view.Category)
	assert.Equal(t, i.Size(), view.SizeBytes)

	md := Vertical{}.Metadata(i)
	assert.Equal(t, "w1/item/"+testID().Entity.String(), md.StorageKey)
	assert.Equal(t, i.Size(), md.SizeInBytes)
}

func TestPayload_Fields(t *testing.T) {
	p := basePayload()
	p.Description = strPtr("x")
	f := p.Fields()
	assert.Equal(t, es.Some("x"), f.Description)
	assert.Equal(t, CategoryMoney, f.Category)
}
