package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/logging/loggingtest"
)

func newTestGate(t *testing.T, allocated int64, opts ...Option) (*Gate, *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.SetWorldOwner(ctx, "w1", "u1"))
	require.NoError(t, store.SetAllocation(ctx, "u1", allocated))
	return NewGate(store, opts...), store
}

func md(n byte, size int64) EntityMetadata {
	return NewMetadata(es.MustAggregateID("w1", uuid.UUID{15: n}), "item", size)
}

func TestStorageKeyFor(t *testing.T) {
	id := uuid.MustParse("0190a6e8-0000-7000-8000-000000000001")
	assert.Equal(t, "w1/item/0190a6e8-0000-7000-8000-000000000001", StorageKeyFor("w1", "item", id))
	assert.Equal(t, StorageKeyFor("w1", "item", id), NewMetadata(es.MustAggregateID("w1", id), "item", 3).StorageKey)
}

func TestGate_AdmissionScenario(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t, 100)

	require.NoError(t, g.Commit(ctx, md(1, 90)))
	s, err := g.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(90), s.UsedBytes)

	// Raises usage to 95: admitted.
	require.NoError(t, g.EnsureAvailable(ctx, md(2, 5)))
	require.NoError(t, g.Commit(ctx, md(2, 5)))
	s, err = g.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, NewSummary("u1", 100, 95), s)
	assert.Equal(t, int64(5), s.AvailableBytes)

	// Would raise usage to 110 from 95: rejected, usage unchanged.
	err = g.EnsureAvailable(ctx, md(3, 15))
	require.Error(t, err)
	assert.True(t, es.IsQuotaExceeded(err))
	s, err = g.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(95), s.UsedBytes)
}

func TestGate_RejectFrom90(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t, 100)
	require.NoError(t, g.Commit(ctx, md(1, 90)))

	written := false
	err := g.Admit(ctx, md(2, 20), func(context.Context) error {
		written = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, es.IsQuotaExceeded(err))
	assert.False(t, written, "write must not run after a rejected check")

	var e *es.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "110", e.Details["projected"])
	assert.Equal(t, "90", e.Details["used"])

	s, err := g.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(90), s.UsedBytes)
}

func TestGate_UpdateReplacesContribution(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t, 100)
	require.NoError(t, g.Commit(ctx, md(1, 60)))

	// Growing the same key from 60 to 100 fits: 60 - 60 + 100 = 100.
	require.NoError(t, g.EnsureAvailable(ctx, md(1, 100)))
	require.NoError(t, g.Commit(ctx, md(1, 100)))

	s, err := g.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), s.UsedBytes)
	assert.Equal(t, int64(0), s.AvailableBytes)
}

func TestGate_AdmitWriteFailureCommitsNothing(t *testing.T) {
	ctx := context.Background()
	g, store := newTestGate(t, 100)

	boom := errors.New("save failed")
	err := g.Admit(ctx, md(1, 10), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	entries, err := store.Entries(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGate_AdmitCommitsAfterCancelledWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, store := newTestGate(t, 100)

	err := g.Admit(ctx, md(1, 10), func(context.Context) error {
		cancel()
		return nil
	})
	require.NoError(t, err)

	entries, err := store.Entries(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].SizeInBytes)
}

// openLocker grants every Lock immediately, standing in for a lease that
// expired while its holder was still writing.
type openLocker struct{}

func (openLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

func TestGate_AdmitRecordsSavedEntityWhenLedgerRejects(t *testing.T) {
	ctx := context.Background()
	log, logs := loggingtest.New(zapcore.DebugLevel)
	g, store := newTestGate(t, 100, WithLocker(openLocker{}), WithLogger(log))

	var saved int
	err := g.Admit(ctx, md(1, 60), func(ctx context.Context) error {
		saved++
		inner := g.Admit(ctx, md(2, 60), func(context.Context) error {
			saved++
			return nil
		})
		require.NoError(t, inner)
		return nil
	})

	assert.Equal(t, 2, saved)
	require.Error(t, err)
	assert.Equal(t, es.CodeInternal, es.CodeOf(err))
	assert.False(t, es.IsQuotaExceeded(err))

	s, err := g.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(120), s.UsedBytes)
	assert.Equal(t, int64(0), s.AvailableBytes)

	entries, err := store.Entries(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Len(t, logs.FilterMessage("quota accounting overrun").All(), 1)
}

func TestGate_UnknownWorld(t *testing.T) {
	g, _ := newTestGate(t, 100)
	err := g.EnsureAvailable(context.Background(), NewMetadata(es.MustAggregateID("nowhere", uuid.New()), "item", 1))
	assert.True(t, es.IsNotFound(err))
}

func TestGate_DefaultAllocation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.SetWorldOwner(ctx, "w1", "u1"))
	g := NewGate(store, WithDefaultAllocation(50))

	s, err := g.WorldSummary(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), s.AllocatedBytes)
	assert.True(t, es.IsQuotaExceeded(g.EnsureAvailable(ctx, md(1, 51))))
}

func TestGate_ConcurrentAdmissionsNeverExceed(t *testing.T) {
	ctx := context.Background()
	g, store := newTestGate(t, 100)

	const writers = 20
	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := g.Admit(ctx, md(byte(i+1), 30), func(context.Context) error { return nil })
			if err == nil {
				admitted.Add(1)
			} else {
				assert.True(t, es.IsQuotaExceeded(err))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(3), admitted.Load())
	used, _, err := store.Usage(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(90), used)
}

func TestGate_LogsRejection(t *testing.T) {
	log, logs := loggingtest.New(zapcore.DebugLevel)
	g, _ := newTestGate(t, 10, WithLogger(log))

	require.Error(t, g.EnsureAvailable(context.Background(), md(1, 11)))
	warns := logs.FilterMessage("quota rejected").All()
	require.Len(t, warns, 1)
	assert.Equal(t, "u1", warns[0].ContextMap()["owner"])
}

func TestMemoryStore_RecordRechecksLimit(t *testing.T) {
	ctx := context.Background()
	_, store := newTestGate(t, 100)
	require.NoError(t, store.Record(ctx, "u1", md(1, 90), 100))

	err := store.Record(ctx, "u1", md(2, 20), 100)
	assert.True(t, es.IsQuotaExceeded(err))
}

func TestNewSummary_ClampsAvailable(t *testing.T) {
	s := NewSummary("u1", 50, 80)
	assert.Equal(t, int64(0), s.AvailableBytes)
}

func TestSizes(t *testing.T) {
	assert.Equal(t, int64(6), TextSize("Denier"))
	assert.Equal(t, int64(2), TextSize("\u00e9"))
	assert.Equal(t, TextSize("\u00e9"), TextSize("e\u0301"))
	assert.Equal(t, int64(0), NullableTextSize(es.Null[string]()))
	assert.Equal(t, int64(6), NullableTextSize(es.Some("A coin")))
}
