package upsert

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/worldforge/internal/content/item"
	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/logging/loggingtest"
	"github.com/roach88/worldforge/internal/quota"
	"github.com/roach88/worldforge/internal/readmodel"
	"github.com/roach88/worldforge/internal/testutil"
)

var (
	denierID    = uuid.MustParse("0190a6e8-0000-7000-8000-000000000001")
	generatedID = uuid.MustParse("0190a6e8-0000-7000-8000-0000000000ff")
)

type itemHandler = Handler[*item.Item, item.Payload, readmodel.ItemView]

type fixture struct {
	handler *itemHandler
	repo    *es.Repository[*item.Item]
	log     *es.MemoryLog
	ledger  *quota.MemoryStore
	views   *recordingProjector
}

func newFixture(t *testing.T, allocated int64, deps Deps) *fixture {
	t.Helper()
	log := es.NewMemoryLog()
	repo := es.NewRepository(log, item.NewRegistry(), func() *item.Item { return &item.Item{} })
	ledger := testutil.Ledger(t, "alice", allocated, "w1")
	if deps.Clock == nil {
		deps.Clock = testutil.NewStepClock()
	}
	if deps.IDs == nil {
		deps.IDs = es.NewFixedGenerator(generatedID)
	}
	views := &recordingProjector{}
	h := NewHandler[*item.Item, item.Payload, readmodel.ItemView](item.Vertical{}, repo, quota.NewGate(ledger), deps).
		WithProjector(views)
	return &fixture{handler: h, repo: repo, log: log, ledger: ledger, views: views}
}

func (f *fixture) events(t *testing.T, id uuid.UUID) []es.Record {
	t.Helper()
	records, err := f.log.Load(context.Background(), es.MustAggregateID("w1", id), 0)
	require.NoError(t, err)
	return records
}

type recordingProjector struct {
	views []readmodel.ItemView
	err   error
}

func (p *recordingProjector) Project(_ context.Context, v readmodel.ItemView) error {
	if p.err != nil {
		return p.err
	}
	p.views = append(p.views, v)
	return nil
}

func denierPayload() item.Payload {
	return item.Payload{Name: "Denier", Slug: "denier", Category: "Money", WeightGrams: 2, Price: 1}
}

func idPtr(id uuid.UUID) *uuid.UUID { return &id }
func versionPtr(v int64) *int64     { return &v }
func strPtr(s string) *string       { return &s }

func replace(id uuid.UUID, version *int64, p item.Payload) Command[item.Payload] {
	return Command[item.Payload]{WorldID: "w1", ID: idPtr(id), ExpectedVersion: version, ActorID: "u1", Payload: p}
}

func TestExecute_CreateWithoutID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000, Deps{})

	res, err := f.handler.Execute(ctx, Command[item.Payload]{WorldID: "w1", ActorID: "u1", Payload: denierPayload()})
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, res.Status)
	assert.Equal(t, es.MustAggregateID("w1", generatedID), res.ID)
	assert.Equal(t, int64(1), res.Version)
	require.NotNil(t, res.View)
	assert.Equal(t, "Denier", res.View.Name)
	assert.Equal(t, testutil.Epoch, res.View.CreatedAt)
	require.Len(t, f.views.views, 1)
	assert.Len(t, f.events(t, generatedID), 1)

	entries, err := f.ledger.Entries(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.View.SizeBytes, entries[0].SizeInBytes)
}

func TestExecute_CreateWithUnknownID(t *testing.T) {
	f := newFixture(t, 1000, Deps{})

	res, err := f.handler.Execute(context.Background(), replace(denierID, nil, denierPayload()))
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, res.Status)
	assert.Equal(t, denierID, res.ID.Entity)
}

func TestExecute_DenierScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000, Deps{})

	_, err := f.handler.Execute(ctx, replace(denierID, nil, denierPayload()))
	require.NoError(t, err)

	p := denierPayload()
	p.Description = strPtr("A coin")
	res, err := f.handler.Execute(ctx, replace(denierID, versionPtr(1), p))
	require.NoError(t, err)

	assert.Equal(t, StatusUpdated, res.Status)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, strPtr("A coin"), res.View.Description)

	records := f.events(t, denierID)
	require.Len(t, records, 2)
	assert.Equal(t, item.EventUpdated, records[1].EventType)
	assert.JSONEq(t, `{"description":{"value":"A coin"}}`, string(records[1].Payload))
}

func TestExecute_DiffsAgainstExpectedVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000, Deps{})

	// v1..v3 keep the name A, v4 renames to B.
	p := denierPayload()
	p.Name = "A"
	_, err := f.handler.Execute(ctx, replace(denierID, nil, p))
	require.NoError(t, err)
	for _, price := range []int64{2, 3} {
		p.Price = price
		_, err = f.handler.Execute(ctx, replace(denierID, nil, p))
		require.NoError(t, err)
	}
	renamed := p
	renamed.Name = "B"
	res, err := f.handler.Execute(ctx, replace(denierID, nil, renamed))
	require.NoError(t, err)
	require.Equal(t, int64(4), res.Version)

	// A client holding v3 resubmits what it saw: nothing to write.
	res, err = f.handler.Execute(ctx, replace(denierID, versionPtr(3), p))
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, res.Status)
	assert.Equal(t, int64(4), res.Version)
	assert.Equal(t, "B", res.View.Name)

	// The same client edits the name: its value wins.
	edited := p
	edited.Name = "C"
	res, err = f.handler.Execute(ctx, replace(denierID, versionPtr(3), edited))
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, res.Status)
	assert.Equal(t, int64(5), res.Version)
	assert.Equal(t, "C", res.View.Name)
	assert.Equal(t, int64(3), res.View.Price)
}

func TestExecute_ExpectedVersionOutOfRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000, Deps{})
	_, err := f.handler.Execute(ctx, replace(denierID, nil, denierPayload()))
	require.NoError(t, err)

	_, err = f.handler.Execute(ctx, replace(denierID, versionPtr(7), denierPayload()))
	assert.True(t, es.IsNotFound(err))
}

func TestExecute_NotFoundWithExpectedVersion(t *testing.T) {
	f := newFixture(t, 1000, Deps{})

	res, err := f.handler.Execute(context.Background(), replace(denierID, versionPtr(1), denierPayload()))
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)
	assert.Nil(t, res.View)
	assert.Empty(t, f.events(t, denierID))
	assert.Empty(t, f.views.views)
}

func TestExecute_UnchangedWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000, Deps{})
	_, err := f.handler.Execute(ctx, replace(denierID, nil, denierPayload()))
	require.NoError(t, err)

	res, err := f.handler.Execute(ctx, replace(denierID, nil, denierPayload()))
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, res.Status)
	assert.Equal(t, int64(1), res.Version)
	assert.Len(t, f.events(t, denierID), 1)
	assert.Len(t, f.views.views, 1, "no projection for unchanged")
}

type fieldValidator struct{ calls int }

func (v *fieldValidator) Validate(entityType string, payload any) error {
	v.calls++
	p := payload.(item.Payload)
	if p.Name == "" {
		return es.Validation(entityType+".upsert", []es.FieldError{{Field: "name", Code: "required"}})
	}
	return nil
}

func TestExecute_ValidationFirst(t *testing.T) {
	ctx := context.Background()
	v := &fieldValidator{}
	f := newFixture(t, 1000, Deps{Validator: v})

	_, err := f.handler.Execute(ctx, Command[item.Payload]{ActorID: "u1", Payload: denierPayload()})
	assert.True(t, es.IsCode(err, es.CodeValidation))
	assert.Equal(t, 0, v.calls)

	_, err = f.handler.Execute(ctx, Command[item.Payload]{WorldID: "w1", Payload: denierPayload()})
	assert.True(t, es.IsCode(err, es.CodePermissionDenied))

	_, err = f.handler.Execute(ctx, replace(denierID, nil, item.Payload{Category: "Money"}))
	var e *es.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, es.CodeValidation, e.Code)
	assert.Equal(t, "name", e.Fields[0].Field)
	assert.Empty(t, f.events(t, denierID))
}

type denyUpdates struct{}

func (denyUpdates) AuthorizeCreate(context.Context, string, string, string) error { return nil }

func (denyUpdates) AuthorizeUpdate(_ context.Context, actor string, _ es.AggregateID, _ string) error {
	return es.Errorf(es.CodePermissionDenied, "authorize", "%s may not edit", actor)
}

func TestExecute_AuthorizationDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000, Deps{Authorizer: denyUpdates{}})
	_, err := f.handler.Execute(ctx, replace(denierID, nil, denierPayload()))
	require.NoError(t, err)

	p := denierPayload()
	p.Price = 9
	_, err = f.handler.Execute(ctx, replace(denierID, nil, p))
	assert.True(t, es.IsCode(err, es.CodePermissionDenied))
	assert.Len(t, f.events(t, denierID), 1)
}

func TestExecute_InvariantViolation(t *testing.T) {
	f := newFixture(t, 1000, Deps{})
	p := denierPayload()
	p.Category = "Pebble"

	_, err := f.handler.Execute(context.Background(), replace(denierID, nil, p))
	assert.True(t, es.IsCode(err, es.CodeInvariantViolation))
}

func TestExecute_QuotaExceeded(t *testing.T) {
	ctx := context.Background()
	// Denier occupies 33 bytes.
	f := newFixture(t, 40, Deps{})
	_, err := f.handler.Execute(ctx, replace(denierID, nil, denierPayload()))
	require.NoError(t, err)

	p := denierPayload()
	p.Description = strPtr("A coin that is rather too long")
	_, err = f.handler.Execute(ctx, replace(denierID, nil, p))
	require.True(t, es.IsQuotaExceeded(err))

	assert.Len(t, f.events(t, denierID), 1)
	latest, err := f.repo.LoadByID(ctx, es.MustAggregateID("w1", denierID))
	require.NoError(t, err)
	assert.False(t, latest.State().Description.Valid)

	summary, err := quota.NewGate(f.ledger).Summary(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(33), summary.UsedBytes)
}

func TestExecute_UnregisteredWorld(t *testing.T) {
	f := newFixture(t, 1000, Deps{})
	cmd := replace(denierID, nil, denierPayload())
	cmd.WorldID = "w9"

	_, err := f.handler.Execute(context.Background(), cmd)
	assert.True(t, es.IsNotFound(err))
}

type precheckFunc func(ctx context.Context, i *item.Item) error

func (f precheckFunc) Precheck(ctx context.Context, i *item.Item) error { return f(ctx, i) }

func TestExecute_PrecheckConflict(t *testing.T) {
	f := newFixture(t, 1000, Deps{})
	f.handler.WithPrechecker(precheckFunc(func(context.Context, *item.Item) error {
		return es.Errorf(es.CodeConflict, "item.upsert", "slug taken")
	}))

	_, err := f.handler.Execute(context.Background(), replace(denierID, nil, denierPayload()))
	assert.True(t, es.IsCode(err, es.CodeConflict))
	assert.Empty(t, f.events(t, denierID))
}

func TestExecute_LostRaceIsVersionConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000, Deps{})
	_, err := f.handler.Execute(ctx, replace(denierID, nil, denierPayload()))
	require.NoError(t, err)

	// Another writer saves between our load and our save.
	f.handler.WithPrechecker(precheckFunc(func(ctx context.Context, i *item.Item) error {
		other, err := f.repo.LoadByID(ctx, i.Root().ID())
		if err != nil {
			return err
		}
		if _, err := other.SetPrice(50); err != nil {
			return err
		}
		if err := other.Commit(es.Stamp{Actor: "u2", At: testutil.Epoch}); err != nil {
			return err
		}
		return f.repo.Save(ctx, other)
	}))

	p := denierPayload()
	p.Name = "Silver Denier"
	_, err = f.handler.Execute(ctx, replace(denierID, nil, p))
	require.Error(t, err)
	assert.True(t, es.IsVersionConflict(err))
	assert.True(t, es.IsRetryable(err))

	latest, err := f.repo.LoadByID(ctx, es.MustAggregateID("w1", denierID))
	require.NoError(t, err)
	assert.Equal(t, "Denier", latest.State().Name)
	assert.Equal(t, int64(50), latest.State().Price)
}

func TestExecute_ProjectorFailureKeepsEvents(t *testing.T) {
	f := newFixture(t, 1000, Deps{})
	f.views.err = errors.New("disk full")

	res, err := f.handler.Execute(context.Background(), replace(denierID, nil, denierPayload()))
	require.Error(t, err)
	assert.Equal(t, es.CodeInternal, es.CodeOf(err))
	assert.Equal(t, StatusCreated, res.Status)
	assert.Len(t, f.events(t, denierID), 1)
}

func TestExecute_Logs(t *testing.T) {
	ctx := context.Background()
	logger, logs := loggingtest.New(zapcore.DebugLevel)
	f := newFixture(t, 40, Deps{Logger: logger})

	_, err := f.handler.Execute(ctx, replace(denierID, nil, denierPayload()))
	require.NoError(t, err)
	p := denierPayload()
	p.Description = strPtr("A coin that is rather too long")
	_, err = f.handler.Execute(ctx, replace(denierID, nil, p))
	require.Error(t, err)

	ok := logs.FilterMessage("upsert").All()
	require.Len(t, ok, 1)
	assert.Equal(t, "created", ok[0].ContextMap()["status"])
	assert.Equal(t, "item", ok[0].ContextMap()["entity_type"])

	rejected := logs.FilterMessage("upsert rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, zapcore.WarnLevel, rejected[0].Level)
	assert.Equal(t, "quota_exceeded", rejected[0].ContextMap()["code"])
}
