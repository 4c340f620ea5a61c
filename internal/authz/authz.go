// Package authz decides who may create or change content in a world.
package authz

import (
	"context"

	"github.com/roach88/worldforge/internal/es"
)

// Owners resolves a world's owner. quota.Store satisfies it.
type Owners interface {
	OwnerOf(ctx context.Context, worldID string) (string, error)
}

// OwnerAuthorizer allows writes only by the owner of the world.
type OwnerAuthorizer struct {
	owners Owners
}

// NewOwnerAuthorizer creates an authorizer backed by owners.
func NewOwnerAuthorizer(owners Owners) *OwnerAuthorizer {
	return &OwnerAuthorizer{owners: owners}
}

// AuthorizeCreate implements upsert.Authorizer.
func (a *OwnerAuthorizer) AuthorizeCreate(ctx context.Context, actorID, worldID, entityType string) error {
	return a.check(ctx, actorID, worldID, entityType+".create")
}

// AuthorizeUpdate implements upsert.Authorizer.
func (a *OwnerAuthorizer) AuthorizeUpdate(ctx context.Context, actorID string, id es.AggregateID, entityType string) error {
	return a.check(ctx, actorID, id.World, entityType+".update")
}

func (a *OwnerAuthorizer) check(ctx context.Context, actorID, worldID, action string) error {
	owner, err := a.owners.OwnerOf(ctx, worldID)
	if err != nil {
		return err
	}
	if actorID != owner {
		return es.Errorf(es.CodePermissionDenied, "authorize "+action,
			"actor %q may not write to world %q", actorID, worldID).
			WithDetail("world_id", worldID)
	}
	return nil
}

// AllowAll permits everything. Used by operator tooling.
type AllowAll struct{}

func (AllowAll) AuthorizeCreate(context.Context, string, string, string) error { return nil }

func (AllowAll) AuthorizeUpdate(context.Context, string, es.AggregateID, string) error {
	return nil
}
