package es

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces entity and event identifiers.
type IDGenerator interface {
	NewID() uuid.UUID
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID creates a new UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// FixedGenerator returns predetermined identifiers for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []uuid.UUID
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...uuid.UUID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// NewID returns the next predetermined id.
//
// Panics if all ids have been consumed, so a test that creates more entities
// than it planned for fails loudly.
func (g *FixedGenerator) NewID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SequentialGenerator derives ids from a namespace and a counter, so a long
// scenario never runs out and every run yields the same ids.
type SequentialGenerator struct {
	mu        sync.Mutex
	namespace uuid.UUID
	n         int
}

// NewSequentialGenerator creates a generator seeded by name.
func NewSequentialGenerator(name string) *SequentialGenerator {
	return &SequentialGenerator{namespace: uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))}
}

// NewID returns the next id in the sequence.
func (g *SequentialGenerator) NewID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return uuid.NewSHA1(g.namespace, []byte{byte(g.n >> 24), byte(g.n >> 16), byte(g.n >> 8), byte(g.n)})
}
