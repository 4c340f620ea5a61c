package readmodel

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/roach88/worldforge/internal/es"
)

var testTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "views.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func itemView(entity string, version int64, name, slug string) ItemView {
	id := "w1:" + entity
	return ItemView{
		ID: id, WorldID: "w1", EntityID: entity, Version: version,
		Name: name, Slug: slug, Category: "Money",
		CreatedBy: "u1", CreatedAt: testTime, UpdatedBy: "u1", UpdatedAt: testTime,
	}
}

const (
	entityA = "0190a6e8-0000-7000-8000-000000000001"
	entityB = "0190a6e8-0000-7000-8000-000000000002"
)

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "")
	assert.ErrorContains(t, err, "unsupported")
}

func TestWriter_VersionGuard(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	w := NewItemWriter(db)

	require.NoError(t, w.Project(ctx, itemView(entityA, 1, "Denier", "denier")))
	require.NoError(t, w.Project(ctx, itemView(entityA, 3, "Silver Denier", "denier")))
	// A late writer carrying v2 must not roll the row back.
	require.NoError(t, w.Project(ctx, itemView(entityA, 2, "Old", "denier")))

	got, err := Item(ctx, db, es.MustAggregateID("w1", mustUUID(entityA)))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, "Silver Denier", got.Name)
	assert.True(t, got.CreatedAt.Equal(testTime))
}

func TestItem_NotFound(t *testing.T) {
	_, err := Item(context.Background(), openTestDB(t), es.MustAggregateID("w1", mustUUID(entityA)))
	assert.True(t, es.IsNotFound(err))
}

func TestItems_OrderedBySlug(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	w := NewItemWriter(db)
	require.NoError(t, w.Project(ctx, itemView(entityA, 1, "Sword", "sword")))
	require.NoError(t, w.Project(ctx, itemView(entityB, 1, "Axe", "axe")))

	items, err := Items(ctx, db, "w1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "axe", items[0].Slug)

	none, err := Items(ctx, db, "w2")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestItemSlugTaken(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, NewItemWriter(db).Project(ctx, itemView(entityA, 1, "Denier", "denier")))

	self := es.MustAggregateID("w1", mustUUID(entityA))
	other := es.MustAggregateID("w1", mustUUID(entityB))

	_, taken, err := ItemSlugTaken(ctx, db, "w1", "denier", self)
	require.NoError(t, err)
	assert.False(t, taken, "own slug")

	owner, taken, err := ItemSlugTaken(ctx, db, "w1", "denier", other)
	require.NoError(t, err)
	assert.True(t, taken)
	assert.Equal(t, self.String(), owner)

	_, taken, err = ItemSlugTaken(ctx, db, "w2", "denier", other)
	require.NoError(t, err)
	assert.False(t, taken, "other world")
}

func TestTalentWriter_Requirements(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	desc := "Deflect a blow"
	view := TalentView{
		ID: "w1:" + entityA, WorldID: "w1", EntityID: entityA, Version: 1,
		Name: "Parry", Description: &desc, Tier: 3,
		Requirements: []Requirement{{TalentID: entityB, Tier: 2}},
		CreatedBy: "u1", CreatedAt: testTime, UpdatedBy: "u1", UpdatedAt: testTime,
	}
	require.NoError(t, NewTalentWriter(db).Project(ctx, view))

	got, err := Talent(ctx, db, es.MustAggregateID("w1", mustUUID(entityA)))
	require.NoError(t, err)
	assert.Equal(t, view.Requirements, got.Requirements)
	assert.Equal(t, &desc, got.Description)

	talents, err := Talents(ctx, db, "w1")
	require.NoError(t, err)
	assert.Len(t, talents, 1)
}

func mustUUID(s string) uuid.UUID { return uuid.MustParse(s) }
