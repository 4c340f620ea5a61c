package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/worldforge/internal/codec"
	"github.com/roach88/worldforge/internal/es"
)

// loadManyChunk bounds the number of ids per IN (...) list.
const loadManyChunk = 500

const eventColumns = `aggregate_id, version, event_id, aggregate_type, event_type, actor_id, occurred_at, payload, payload_hash`

// Append writes records in one transaction. For each aggregate the first
// record must carry the stored latest version plus one and the rest must
// follow contiguously; otherwise the whole batch is rolled back with
// es.CodeVersionConflict.
func (s *Store) Append(ctx context.Context, records []es.Record) error {
	return s.AppendClaiming(ctx, records, nil)
}

// AppendClaiming is Append plus the aggregates' claims, written in the same
// transaction. A claim held by another aggregate rolls the batch back with
// es.CodeConflict.
func (s *Store) AppendClaiming(ctx context.Context, records []es.Record, claims map[es.AggregateID][]es.Claim) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append events: begin: %w", err)
	}
	defer tx.Rollback()

	next := make(map[es.AggregateID]int64)
	for _, rec := range records {
		expected, seen := next[rec.AggregateID]
		if !seen {
			var latest int64
			err := tx.QueryRowContext(ctx,
				s.rebind(`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`),
				rec.AggregateID.String(),
			).Scan(&latest)
			if err != nil {
				return fmt.Errorf("append events: latest version: %w", err)
			}
			expected = latest + 1
		}
		if rec.Version != expected {
			return es.VersionConflict(rec.AggregateID, expected, rec.Version)
		}
		next[rec.AggregateID] = expected + 1

		_, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO events
			(aggregate_id, version, event_id, aggregate_type, world_id, event_type, actor_id, occurred_at, payload, payload_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`),
			rec.AggregateID.String(),
			rec.Version,
			rec.EventID.String(),
			rec.AggregateType,
			rec.AggregateID.World,
			string(rec.EventType),
			rec.ActorID,
			rec.OccurredAt.UTC(),
			string(rec.Payload),
			rec.PayloadHash,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return es.VersionConflict(rec.AggregateID, expected, rec.Version)
			}
			return fmt.Errorf("append events: insert %s v%d: %w", rec.AggregateID, rec.Version, err)
		}
	}

	if err := s.putClaims(ctx, tx, claims); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) || isSerializationFailure(err) {
			return es.Wrap(es.CodeVersionConflict, "append", err)
		}
		return fmt.Errorf("append events: commit: %w", err)
	}
	return nil
}

// Load returns the events of id ordered by version. upTo > 0 stops at that
// version. An unknown id yields an empty slice.
func (s *Store) Load(ctx context.Context, id es.AggregateID, upTo int64) ([]es.Record, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE aggregate_id = ?`
	args := []any{id.String()}
	if upTo > 0 {
		query += ` AND version <= ?`
		args = append(args, upTo)
	}
	query += ` ORDER BY version ASC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	records := make([]es.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("load events: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return records, nil
}

// LoadMany returns the full histories of ids. Unknown ids are absent from
// the result.
func (s *Store) LoadMany(ctx context.Context, ids []es.AggregateID) (map[es.AggregateID][]es.Record, error) {
	out := make(map[es.AggregateID][]es.Record, len(ids))
	for start := 0; start < len(ids); start += loadManyChunk {
		end := min(start+loadManyChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id.String()
		}
		query := `SELECT ` + eventColumns + ` FROM events WHERE aggregate_id IN (` +
			strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ") +
			`) ORDER BY aggregate_id ASC, version ASC`

		if err := s.loadInto(ctx, out, s.rebind(query), args); err != nil {
			return nil, fmt.Errorf("load many events: %w", err)
		}
	}
	return out, nil
}

func (s *Store) loadInto(ctx context.Context, out map[es.AggregateID][]es.Record, query string, args []any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		out[rec.AggregateID] = append(out[rec.AggregateID], rec)
	}
	return rows.Err()
}

// ListAggregates returns the ids of every aggregate of aggregateType,
// ordered by id text.
func (s *Store) ListAggregates(ctx context.Context, aggregateType string) ([]es.AggregateID, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT DISTINCT aggregate_id FROM events
		WHERE aggregate_type = ?
		ORDER BY aggregate_id ASC
	`), aggregateType)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	defer rows.Close()

	ids := make([]es.AggregateID, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("list aggregates: %w", err)
		}
		id, err := es.ParseAggregateID(raw)
		if err != nil {
			return nil, fmt.Errorf("list aggregates: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	return ids, nil
}

// CountEvents returns the number of events stored for id, which is also
// its latest version.
func (s *Store) CountEvents(ctx context.Context, id es.AggregateID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM events WHERE aggregate_id = ?`), id.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one events row and verifies its payload hash.
func scanRecord(row scanner) (es.Record, error) {
	var (
		rawID, eventID, aggregateType, eventType, actorID, payload, hash string
		version                                                          int64
		occurredAt                                                       time.Time
	)
	if err := row.Scan(&rawID, &version, &eventID, &aggregateType, &eventType, &actorID, &occurredAt, &payload, &hash); err != nil {
		return es.Record{}, err
	}

	id, err := es.ParseAggregateID(rawID)
	if err != nil {
		return es.Record{}, err
	}
	evID, err := uuid.Parse(eventID)
	if err != nil {
		return es.Record{}, fmt.Errorf("event %s v%d: bad event id: %w", rawID, version, err)
	}
	if got := codec.PayloadHash(eventType, []byte(payload)); got != hash {
		return es.Record{}, es.Errorf(es.CodeInternal, "load events",
			"payload hash mismatch for %s v%d", rawID, version)
	}

	return es.Record{
		EventID:       evID,
		AggregateType: aggregateType,
		AggregateID:   id,
		Version:       version,
		EventType:     es.EventType(eventType),
		ActorID:       actorID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       []byte(payload),
		PayloadHash:   hash,
	}, nil
}

var _ es.EventLog = (*Store)(nil)
