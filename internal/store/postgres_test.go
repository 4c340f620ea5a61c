package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldforge/internal/es"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, DialectPostgres), mock
}

func TestPostgres_AppendUsesDollarPlaceholders(t *testing.T) {
	s, mock := newMockStore(t)
	id := testAggregateID(1)
	rec := createTestRecord(id, 1, "item.created", `{"name":"Denier"}`)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1`)).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO events .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10\)`).
		WithArgs(id.String(), int64(1), rec.EventID.String(), "item", "w1", "item.created", "u1",
			sqlmock.AnyArg(), `{"name":"Denier"}`, rec.PayloadHash).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Append(context.Background(), []es.Record{rec}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UniqueViolationIsVersionConflict(t *testing.T) {
	s, mock := newMockStore(t)
	id := testAggregateID(1)
	rec := createTestRecord(id, 2, "item.updated", `{}`)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM events`).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO events`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := s.Append(context.Background(), []es.Record{rec})
	assert.True(t, es.IsVersionConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_StaleVersionRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	id := testAggregateID(1)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM events`).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(4))
	mock.ExpectRollback()

	err := s.Append(context.Background(), []es.Record{createTestRecord(id, 4, "item.updated", `{}`)})
	require.True(t, es.IsVersionConflict(err))
	var e *es.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "5", e.Details["expected_version"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadUpTo(t *testing.T) {
	s, mock := newMockStore(t)
	id := testAggregateID(1)
	rec := createTestRecord(id, 1, "item.created", `{"name":"Denier"}`)

	rows := sqlmock.NewRows([]string{"aggregate_id", "version", "event_id", "aggregate_type", "event_type", "actor_id", "occurred_at", "payload", "payload_hash"}).
		AddRow(id.String(), int64(1), rec.EventID.String(), "item", "item.created", "u1", testTime, `{"name":"Denier"}`, rec.PayloadHash)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM events WHERE aggregate_id = $1 AND version <= $2 ORDER BY version ASC`)).
		WithArgs(id.String(), int64(3)).
		WillReturnRows(rows)

	records, err := s.Load(context.Background(), id, 3)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.EventID, records[0].EventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordSerializable(t *testing.T) {
	s, mock := newMockStore(t)
	md := itemMD(1, 30)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT\s+COALESCE\(SUM\(size_bytes\), 0\)`).
		WithArgs(md.StorageKey, "u1").
		WillReturnRows(sqlmock.NewRows([]string{"used", "existing"}).AddRow(50, 10))
	mock.ExpectExec(`INSERT INTO storage_entries`).
		WithArgs("u1", md.StorageKey, "w1", "item", md.EntityID.String(), int64(30)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Record(context.Background(), "u1", md, 100))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordSerializationFailure(t *testing.T) {
	s, mock := newMockStore(t)
	md := itemMD(1, 30)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT\s+COALESCE\(SUM\(size_bytes\), 0\)`).
		WillReturnRows(sqlmock.NewRows([]string{"used", "existing"}).AddRow(0, 0))
	mock.ExpectExec(`INSERT INTO storage_entries`).
		WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()

	err := s.Record(context.Background(), "u1", md, 100)
	assert.True(t, es.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_OwnerOfNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT owner_id FROM world_owners WHERE world_id = $1`)).
		WithArgs("w9").
		WillReturnError(sql.ErrNoRows)

	_, err := s.OwnerOf(context.Background(), "w9")
	assert.True(t, es.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
