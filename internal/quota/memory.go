package quota

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/worldforge/internal/es"
)

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	mu          sync.Mutex
	owners      map[string]string
	allocations map[string]int64
	entries     map[string]map[string]Entry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		owners:      make(map[string]string),
		allocations: make(map[string]int64),
		entries:     make(map[string]map[string]Entry),
	}
}

// SetWorldOwner assigns worldID to ownerID.
func (m *MemoryStore) SetWorldOwner(_ context.Context, worldID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[worldID] = ownerID
	return nil
}

// SetAllocation sets the owner's allocated bytes.
func (m *MemoryStore) SetAllocation(_ context.Context, ownerID string, bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocations[ownerID] = bytes
	return nil
}

// OwnerOf implements Store.
func (m *MemoryStore) OwnerOf(ctx context.Context, worldID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.owners[worldID]
	if !ok {
		return "", es.Errorf(es.CodeNotFound, "quota owner", "world %q is not registered", worldID)
	}
	return owner, nil
}

// Allocation implements Store.
func (m *MemoryStore) Allocation(_ context.Context, ownerID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	allocated, ok := m.allocations[ownerID]
	return allocated, ok, nil
}

// Usage implements Store.
func (m *MemoryStore) Usage(ctx context.Context, ownerID, storageKey string) (int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usageLocked(ownerID, storageKey)
}

func (m *MemoryStore) usageLocked(ownerID, storageKey string) (int64, int64, error) {
	var used int64
	for _, e := range m.entries[ownerID] {
		used += e.SizeInBytes
	}
	return used, m.entries[ownerID][storageKey].SizeInBytes, nil
}

// Record implements Store.
func (m *MemoryStore) Record(ctx context.Context, ownerID string, md EntityMetadata, limit int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	used, existing, _ := m.usageLocked(ownerID, md.StorageKey)
	if projected := used - existing + md.SizeInBytes; projected > limit {
		return Exceeded(ownerID, limit, used, projected)
	}
	if m.entries[ownerID] == nil {
		m.entries[ownerID] = make(map[string]Entry)
	}
	m.entries[ownerID][md.StorageKey] = Entry{
		StorageKey:  md.StorageKey,
		WorldID:     md.WorldID,
		EntityType:  md.EntityType,
		EntityID:    md.EntityID,
		SizeInBytes: md.SizeInBytes,
	}
	return nil
}

// Entries implements Store.
func (m *MemoryStore) Entries(_ context.Context, ownerID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries[ownerID]))
	for _, e := range m.entries[ownerID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StorageKey < out[j].StorageKey })
	return out, nil
}
