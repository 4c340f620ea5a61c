package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/worldforge/internal/codec"
	"github.com/roach88/worldforge/internal/es"
)

// createTestStore creates a new temp-dir SQLite store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testTime = time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)

func testAggregateID(n byte) es.AggregateID {
	return es.MustAggregateID("w1", uuid.UUID{15: n})
}

// createTestRecord builds a record with a valid payload hash.
func createTestRecord(id es.AggregateID, version int64, eventType, payload string) es.Record {
	return es.Record{
		EventID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte(id.String()+eventType+string(rune('0'+version)))),
		AggregateType: "item",
		AggregateID:   id,
		Version:       version,
		EventType:     es.EventType(eventType),
		ActorID:       "u1",
		OccurredAt:    testTime,
		Payload:       []byte(payload),
		PayloadHash:   codec.PayloadHash(eventType, []byte(payload)),
	}
}
