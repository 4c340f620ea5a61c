package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldforge/internal/es"
)

func TestAppend_AndLoad(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := testAggregateID(1)

	err := s.Append(ctx, []es.Record{
		createTestRecord(id, 1, "item.created", `{"name":"Denier"}`),
		createTestRecord(id, 2, "item.updated", `{"description":{"value":"A coin"}}`),
	})
	require.NoError(t, err)

	records, err := s.Load(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].Version)
	assert.Equal(t, es.EventType("item.updated"), records[1].EventType)
	assert.Equal(t, `{"description":{"value":"A coin"}}`, string(records[1].Payload))
	assert.Equal(t, id, records[1].AggregateID)
	assert.Equal(t, "u1", records[0].ActorID)
	assert.True(t, testTime.Equal(records[0].OccurredAt), "occurred_at round trip: %v", records[0].OccurredAt)
}

func TestLoad_UpTo(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := testAggregateID(1)
	require.NoError(t, s.Append(ctx, []es.Record{
		createTestRecord(id, 1, "item.created", `{}`),
		createTestRecord(id, 2, "item.updated", `{}`),
		createTestRecord(id, 3, "item.updated", `{"a":1}`),
	}))

	records, err := s.Load(ctx, id, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	n, err := s.CountEvents(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestLoad_UnknownIsEmpty(t *testing.T) {
	s := createTestStore(t)
	records, err := s.Load(context.Background(), testAggregateID(9), 0)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestAppend_GapIsVersionConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := testAggregateID(1)
	require.NoError(t, s.Append(ctx, []es.Record{createTestRecord(id, 1, "item.created", `{}`)}))

	err := s.Append(ctx, []es.Record{createTestRecord(id, 3, "item.updated", `{}`)})
	assert.True(t, es.IsVersionConflict(err))

	err = s.Append(ctx, []es.Record{createTestRecord(id, 1, "item.created", `{}`)})
	assert.True(t, es.IsVersionConflict(err))
}

func TestAppend_BatchIsAtomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a, b := testAggregateID(1), testAggregateID(2)
	require.NoError(t, s.Append(ctx, []es.Record{createTestRecord(b, 1, "item.created", `{}`)}))

	err := s.Append(ctx, []es.Record{
		createTestRecord(a, 1, "item.created", `{}`),
		createTestRecord(b, 1, "item.created", `{}`),
	})
	require.True(t, es.IsVersionConflict(err))

	n, err := s.CountEvents(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "first aggregate of a failed batch must not be written")
}

func TestAppend_ConcurrentWritersOneWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := testAggregateID(1)
	require.NoError(t, s.Append(ctx, []es.Record{createTestRecord(id, 1, "item.created", `{}`)}))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := createTestRecord(id, 2, "item.updated", `{}`)
			rec.EventID[0] = byte(i + 1)
			errs[i] = s.Append(ctx, []es.Record{rec})
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		if err == nil {
			ok++
		} else if es.IsVersionConflict(err) {
			conflicts++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
}

func TestLoad_DetectsTamperedPayload(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := testAggregateID(1)
	require.NoError(t, s.Append(ctx, []es.Record{createTestRecord(id, 1, "item.created", `{"name":"a"}`)}))

	_, err := s.DB().Exec(`UPDATE events SET payload = '{"name":"b"}'`)
	require.NoError(t, err)

	_, err = s.Load(ctx, id, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload hash mismatch")
}

func TestLoadMany_AndList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a, b := testAggregateID(1), testAggregateID(2)
	require.NoError(t, s.Append(ctx, []es.Record{
		createTestRecord(a, 1, "item.created", `{}`),
		createTestRecord(b, 1, "item.created", `{}`),
		createTestRecord(a, 2, "item.updated", `{}`),
	}))

	got, err := s.LoadMany(ctx, []es.AggregateID{a, b, testAggregateID(3)})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, got[a], 2)
	assert.Len(t, got[b], 1)
	_, missing := got[testAggregateID(3)]
	assert.False(t, missing)

	ids, err := s.ListAggregates(ctx, "item")
	require.NoError(t, err)
	assert.Equal(t, []es.AggregateID{a, b}, ids)

	none, err := s.ListAggregates(ctx, "talent")
	require.NoError(t, err)
	assert.Empty(t, none)
}
