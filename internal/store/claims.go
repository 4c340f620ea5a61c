package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/worldforge/internal/es"
)

// putClaims moves each aggregate's claim in a scope to its new value.
// Aggregates are visited in id order.
func (s *Store) putClaims(ctx context.Context, tx *sql.Tx, claims map[es.AggregateID][]es.Claim) error {
	ids := make([]es.AggregateID, 0, len(claims))
	for id := range claims {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		for _, c := range claims[id] {
			if err := s.putClaim(ctx, tx, id, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) putClaim(ctx context.Context, tx *sql.Tx, id es.AggregateID, c es.Claim) error {
	if c.Value != "" {
		var holder string
		err := tx.QueryRowContext(ctx,
			s.rebind(`SELECT aggregate_id FROM claims WHERE world_id = ? AND scope = ? AND value = ?`),
			id.World, c.Scope, c.Value,
		).Scan(&holder)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("claim %s: %w", c.Scope, err)
		case holder == id.String():
			return nil
		default:
			return es.ClaimConflict(id, c, holder)
		}
	}

	_, err := tx.ExecContext(ctx,
		s.rebind(`DELETE FROM claims WHERE aggregate_id = ? AND scope = ?`),
		id.String(), c.Scope)
	if err != nil {
		return fmt.Errorf("claim %s: release: %w", c.Scope, err)
	}
	if c.Value == "" {
		return nil
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO claims (world_id, scope, value, aggregate_id)
		VALUES (?, ?, ?, ?)
	`), id.World, c.Scope, c.Value, id.String())
	if err != nil {
		if isUniqueViolation(err) {
			return es.ClaimConflict(id, c, "")
		}
		return fmt.Errorf("claim %s: %w", c.Scope, err)
	}
	return nil
}

// ClaimHolder returns the aggregate holding value in scope of worldID.
func (s *Store) ClaimHolder(ctx context.Context, worldID, scope, value string) (string, bool, error) {
	var holder string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT aggregate_id FROM claims WHERE world_id = ? AND scope = ? AND value = ?`),
		worldID, scope, value,
	).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("claim holder: %w", err)
	}
	return holder, true, nil
}

var _ es.ClaimingLog = (*Store)(nil)
