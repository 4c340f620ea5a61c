package app

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/worldforge/internal/content/item"
	"github.com/roach88/worldforge/internal/content/talent"
	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/upsert"
)

// EntityTypes lists the entity types Upsert accepts.
var EntityTypes = []string{item.AggregateType, talent.AggregateType}

// RawCommand is an upsert whose payload is an untyped document, as read
// from a YAML or JSON file.
type RawCommand struct {
	EntityType      string
	WorldID         string
	ID              *uuid.UUID
	ExpectedVersion *int64
	ActorID         string
	Payload         any
}

// RawResult is an upsert.Result with the view left untyped.
type RawResult struct {
	Status  upsert.Status `json:"status" yaml:"status"`
	ID      string        `json:"id,omitempty" yaml:"id,omitempty"`
	Version int64         `json:"version,omitempty" yaml:"version,omitempty"`
	View    any           `json:"view,omitempty" yaml:"view,omitempty"`
}

// Upsert validates the raw document against the entity's schema, decodes it
// into the vertical's payload and runs the matching handler.
func (a *App) Upsert(ctx context.Context, cmd RawCommand) (RawResult, error) {
	op := cmd.EntityType + ".upsert"
	if !slices.Contains(EntityTypes, cmd.EntityType) {
		return RawResult{}, es.Errorf(es.CodeValidation, op, "unknown entity type %q", cmd.EntityType)
	}
	raw, err := json.Marshal(cmd.Payload)
	if err != nil {
		return RawResult{}, es.Errorf(es.CodeValidation, op, "payload is not representable as JSON: %v", err)
	}
	if err := a.Validator.Validate(cmd.EntityType, json.RawMessage(raw)); err != nil {
		return RawResult{}, err
	}

	switch cmd.EntityType {
	case item.AggregateType:
		var p item.Payload
		if err := decodeStrict(raw, &p); err != nil {
			return RawResult{}, es.Wrap(es.CodeValidation, op, err)
		}
		res, err := a.Items.Execute(ctx, upsert.Command[item.Payload]{
			WorldID: cmd.WorldID, ID: cmd.ID, ExpectedVersion: cmd.ExpectedVersion, ActorID: cmd.ActorID, Payload: p,
		})
		return rawResult(res), err
	case talent.AggregateType:
		var p talent.Payload
		if err := decodeStrict(raw, &p); err != nil {
			return RawResult{}, es.Wrap(es.CodeValidation, op, err)
		}
		res, err := a.Talents.Execute(ctx, upsert.Command[talent.Payload]{
			WorldID: cmd.WorldID, ID: cmd.ID, ExpectedVersion: cmd.ExpectedVersion, ActorID: cmd.ActorID, Payload: p,
		})
		return rawResult(res), err
	default:
		return RawResult{}, es.Errorf(es.CodeInternal, op, "no handler for entity type %q", cmd.EntityType)
	}
}

func decodeStrict(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func rawResult[R any](res upsert.Result[R]) RawResult {
	out := RawResult{Status: res.Status, Version: res.Version}
	if !res.ID.IsZero() {
		out.ID = res.ID.String()
	}
	if res.View != nil {
		out.View = *res.View
	}
	return out
}
