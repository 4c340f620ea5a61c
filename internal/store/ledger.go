package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/quota"
)

// SetWorldOwner assigns worldID to ownerID, replacing any previous owner.
func (s *Store) SetWorldOwner(ctx context.Context, worldID, ownerID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO world_owners (world_id, owner_id) VALUES (?, ?)
		ON CONFLICT (world_id) DO UPDATE SET owner_id = excluded.owner_id
	`), worldID, ownerID)
	if err != nil {
		return fmt.Errorf("set world owner: %w", err)
	}
	return nil
}

// OwnerOf returns the owner of worldID, or es.CodeNotFound.
func (s *Store) OwnerOf(ctx context.Context, worldID string) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT owner_id FROM world_owners WHERE world_id = ?`), worldID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", es.Errorf(es.CodeNotFound, "quota owner", "world %q is not registered", worldID).
			WithDetail("world", worldID)
	}
	if err != nil {
		return "", fmt.Errorf("owner of %s: %w", worldID, err)
	}
	return owner, nil
}

// ListWorlds returns the worlds owned by ownerID.
func (s *Store) ListWorlds(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT world_id FROM world_owners WHERE owner_id = ? ORDER BY world_id ASC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list worlds: %w", err)
	}
	defer rows.Close()

	worlds := make([]string, 0)
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("list worlds: %w", err)
		}
		worlds = append(worlds, w)
	}
	return worlds, rows.Err()
}

// SetAllocation sets the owner's allocated bytes. Only the admin surface
// calls this; the gate reads allocations but never writes them.
func (s *Store) SetAllocation(ctx context.Context, ownerID string, bytes int64) error {
	if bytes < 0 {
		return es.Errorf(es.CodeValidation, "set allocation", "allocated bytes must be >= 0, got %d", bytes)
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO storage_allocations (owner_id, allocated_bytes) VALUES (?, ?)
		ON CONFLICT (owner_id) DO UPDATE SET allocated_bytes = excluded.allocated_bytes
	`), ownerID, bytes)
	if err != nil {
		return fmt.Errorf("set allocation: %w", err)
	}
	return nil
}

// Allocation implements quota.Store.
func (s *Store) Allocation(ctx context.Context, ownerID string) (int64, bool, error) {
	var allocated int64
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT allocated_bytes FROM storage_allocations WHERE owner_id = ?`), ownerID,
	).Scan(&allocated)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("allocation of %s: %w", ownerID, err)
	}
	return allocated, true, nil
}

const usageQuery = `
	SELECT
		COALESCE(SUM(size_bytes), 0),
		COALESCE(SUM(CASE WHEN storage_key = ? THEN size_bytes ELSE 0 END), 0)
	FROM storage_entries
	WHERE owner_id = ?
`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) usage(ctx context.Context, q queryRower, ownerID, storageKey string) (int64, int64, error) {
	var used, existing int64
	if err := q.QueryRowContext(ctx, s.rebind(usageQuery), storageKey, ownerID).Scan(&used, &existing); err != nil {
		return 0, 0, fmt.Errorf("usage of %s: %w", ownerID, err)
	}
	return used, existing, nil
}

// Usage implements quota.Store.
func (s *Store) Usage(ctx context.Context, ownerID, storageKey string) (int64, int64, error) {
	return s.usage(ctx, s.db, ownerID, storageKey)
}

// Record implements quota.Store. The limit is re-checked inside the
// transaction against the usage it reads.
func (s *Store) Record(ctx context.Context, ownerID string, md quota.EntityMetadata, limit int64) error {
	tx, err := s.db.BeginTx(ctx, s.serializable())
	if err != nil {
		return fmt.Errorf("record usage: begin: %w", err)
	}
	defer tx.Rollback()

	used, existing, err := s.usage(ctx, tx, ownerID, md.StorageKey)
	if err != nil {
		return s.ledgerError("record usage", err)
	}
	if projected := used - existing + md.SizeInBytes; projected > limit {
		return quota.Exceeded(ownerID, limit, used, projected)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO storage_entries (owner_id, storage_key, world_id, entity_type, entity_id, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, storage_key) DO UPDATE SET
			world_id = excluded.world_id,
			entity_type = excluded.entity_type,
			entity_id = excluded.entity_id,
			size_bytes = excluded.size_bytes
	`), ownerID, md.StorageKey, md.WorldID, md.EntityType, md.EntityID.String(), md.SizeInBytes)
	if err != nil {
		return s.ledgerError("record usage", err)
	}

	if err := tx.Commit(); err != nil {
		return s.ledgerError("record usage: commit", err)
	}
	return nil
}

func (s *Store) ledgerError(op string, err error) error {
	if isSerializationFailure(err) {
		return es.Wrap(es.CodeVersionConflict, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Entries implements quota.Store.
func (s *Store) Entries(ctx context.Context, ownerID string) ([]quota.Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT storage_key, world_id, entity_type, entity_id, size_bytes
		FROM storage_entries
		WHERE owner_id = ?
		ORDER BY storage_key ASC
	`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := make([]quota.Entry, 0)
	for rows.Next() {
		var e quota.Entry
		var entityID string
		if err := rows.Scan(&e.StorageKey, &e.WorldID, &e.EntityType, &entityID, &e.SizeInBytes); err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		if e.EntityID, err = uuid.Parse(entityID); err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

var _ quota.Store = (*Store)(nil)
