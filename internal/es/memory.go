package es

import (
	"context"
	"strconv"
	"sync"
)

// MemoryLog is an in-process ClaimingLog with the same append rules as the
// SQL store. It backs unit tests and dry runs.
type MemoryLog struct {
	mu      sync.Mutex
	streams map[AggregateID][]Record
	claims  map[claimKey]AggregateID
}

type claimKey struct {
	world string
	scope string
	value string
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		streams: make(map[AggregateID][]Record),
		claims:  make(map[claimKey]AggregateID),
	}
}

// Load implements EventLog.
func (m *MemoryLog) Load(ctx context.Context, id AggregateID, upTo int64) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stream := m.streams[id]
	out := make([]Record, 0, len(stream))
	for _, rec := range stream {
		if upTo > 0 && rec.Version > upTo {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

// LoadMany implements EventLog.
func (m *MemoryLog) LoadMany(ctx context.Context, ids []AggregateID) (map[AggregateID][]Record, error) {
	out := make(map[AggregateID][]Record, len(ids))
	for _, id := range ids {
		records, err := m.Load(ctx, id, 0)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			out[id] = records
		}
	}
	return out, nil
}

// Append implements EventLog.
func (m *MemoryLog) Append(ctx context.Context, records []Record) error {
	return m.AppendClaiming(ctx, records, nil)
}

// AppendClaiming implements ClaimingLog.
func (m *MemoryLog) AppendClaiming(ctx context.Context, records []Record, claims map[AggregateID][]Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[AggregateID]int64)
	for _, rec := range records {
		expected, seen := next[rec.AggregateID]
		if !seen {
			expected = int64(len(m.streams[rec.AggregateID])) + 1
		}
		if rec.Version != expected {
			return VersionConflict(rec.AggregateID, expected, rec.Version)
		}
		next[rec.AggregateID] = expected + 1
	}
	batch := make(map[claimKey]AggregateID)
	for id, cs := range claims {
		for _, c := range cs {
			if c.Value == "" {
				continue
			}
			key := claimKey{id.World, c.Scope, c.Value}
			if holder, ok := m.claims[key]; ok && holder != id {
				return ClaimConflict(id, c, holder.String())
			}
			if holder, ok := batch[key]; ok && holder != id {
				return ClaimConflict(id, c, holder.String())
			}
			batch[key] = id
		}
	}

	for _, rec := range records {
		m.streams[rec.AggregateID] = append(m.streams[rec.AggregateID], rec)
	}
	for id, cs := range claims {
		for _, c := range cs {
			for k, holder := range m.claims {
				if holder == id && k.scope == c.Scope {
					delete(m.claims, k)
				}
			}
			if c.Value != "" {
				m.claims[claimKey{id.World, c.Scope, c.Value}] = id
			}
		}
	}
	return nil
}

// IDs returns every stored aggregate id of aggregateType.
func (m *MemoryLog) IDs(aggregateType string) []AggregateID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AggregateID
	for id, stream := range m.streams {
		if len(stream) > 0 && stream[0].AggregateType == aggregateType {
			out = append(out, id)
		}
	}
	return out
}

// VersionConflict builds the error EventLog implementations return when the
// stored latest version is not the one the batch extends.
func VersionConflict(id AggregateID, expected, got int64) *Error {
	return Errorf(CodeVersionConflict, "append",
		"aggregate %s advanced concurrently", id).
		WithDetail("id", id.String()).
		WithDetail("expected_version", itoa(expected)).
		WithDetail("got_version", itoa(got))
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
