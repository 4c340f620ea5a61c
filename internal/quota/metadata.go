package quota

import (
	"github.com/google/uuid"

	"github.com/roach88/worldforge/internal/es"
)

// EntityMetadata describes how many bytes an entity occupies for quota
// purposes, independent of its read model.
type EntityMetadata struct {
	WorldID     string
	EntityType  string
	EntityID    uuid.UUID
	StorageKey  string
	SizeInBytes int64
}

// StorageKeyFor returns "<world>/<entityType>/<entity>".
func StorageKeyFor(worldID, entityType string, entityID uuid.UUID) string {
	return worldID + "/" + entityType + "/" + entityID.String()
}

// NewMetadata builds metadata for the aggregate id with its storage key filled in.
func NewMetadata(id es.AggregateID, entityType string, size int64) EntityMetadata {
	return EntityMetadata{
		WorldID:     id.World,
		EntityType:  entityType,
		EntityID:    id.Entity,
		StorageKey:  StorageKeyFor(id.World, entityType, id.Entity),
		SizeInBytes: size,
	}
}

// Summary is an owner's storage position.
type Summary struct {
	OwnerID        string `json:"owner_id" yaml:"owner_id"`
	AllocatedBytes int64  `json:"allocated_bytes" yaml:"allocated_bytes"`
	UsedBytes      int64  `json:"used_bytes" yaml:"used_bytes"`
	AvailableBytes int64  `json:"available_bytes" yaml:"available_bytes"`
}

// NewSummary computes AvailableBytes, clamped at zero for owners whose
// allocation was lowered below current usage.
func NewSummary(owner string, allocated, used int64) Summary {
	available := allocated - used
	if available < 0 {
		available = 0
	}
	return Summary{OwnerID: owner, AllocatedBytes: allocated, UsedBytes: used, AvailableBytes: available}
}

// Entry is one recorded contribution.
type Entry struct {
	StorageKey  string    `json:"storage_key" yaml:"storage_key"`
	WorldID     string    `json:"world_id" yaml:"world_id"`
	EntityType  string    `json:"entity_type" yaml:"entity_type"`
	EntityID    uuid.UUID `json:"entity_id" yaml:"entity_id"`
	SizeInBytes int64     `json:"size_bytes" yaml:"size_bytes"`
}
