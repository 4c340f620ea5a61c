package es

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/roach88/worldforge/internal/codec"
)

// Registry maps the event types of one aggregate type to their Go variants
// and converts between Envelopes and Records.
type Registry struct {
	aggregateType string
	factories     map[EventType]func() Event
}

// NewRegistry creates an empty registry for aggregateType.
func NewRegistry(aggregateType string) *Registry {
	return &Registry{
		aggregateType: aggregateType,
		factories:     make(map[EventType]func() Event),
	}
}

// Register adds a variant. factory must return a fresh pointer each call.
// Panics on a duplicate type: registries are built once at init.
func (r *Registry) Register(factory func() Event) *Registry {
	t := factory().EventType()
	if _, dup := r.factories[t]; dup {
		panic(fmt.Sprintf("es: event type %q registered twice for %s", t, r.aggregateType))
	}
	r.factories[t] = factory
	return r
}

// AggregateType returns the aggregate type the registry serves.
func (r *Registry) AggregateType() string { return r.aggregateType }

// Types returns the registered event types in sorted order.
func (r *Registry) Types() []EventType {
	out := make([]EventType, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Encode converts env into its persisted form with a canonical payload.
func (r *Registry) Encode(env Envelope, eventID uuid.UUID) (Record, error) {
	t := env.Event.EventType()
	if _, ok := r.factories[t]; !ok {
		return Record{}, Errorf(CodeInternal, "encode event", "type %q not registered for %s", t, r.aggregateType)
	}
	payload, err := codec.Marshal(env.Event)
	if err != nil {
		return Record{}, Wrap(CodeInternal, "encode event", err)
	}
	return Record{
		EventID:       eventID,
		AggregateType: env.AggregateType,
		AggregateID:   env.AggregateID,
		Version:       env.Version,
		EventType:     t,
		ActorID:       env.ActorID,
		OccurredAt:    env.OccurredAt.UTC(),
		Payload:       payload,
		PayloadHash:   codec.PayloadHash(string(t), payload),
	}, nil
}

// Decode converts a persisted record back into an Envelope. Unknown payload
// fields are ignored so that old binaries can read newer optional fields.
func (r *Registry) Decode(rec Record) (Envelope, error) {
	if rec.AggregateType != r.aggregateType {
		return Envelope{}, Errorf(CodeInternal, "decode event",
			"record for %s decoded as %s", rec.AggregateType, r.aggregateType)
	}
	factory, ok := r.factories[rec.EventType]
	if !ok {
		return Envelope{}, Errorf(CodeInternal, "decode event",
			"unknown event type %q for %s", rec.EventType, r.aggregateType)
	}
	evt := factory()
	if err := json.Unmarshal(rec.Payload, evt); err != nil {
		return Envelope{}, Wrap(CodeInternal, "decode event", fmt.Errorf("%s v%d: %w", rec.AggregateID, rec.Version, err))
	}
	return Envelope{
		AggregateType: rec.AggregateType,
		AggregateID:   rec.AggregateID,
		Version:       rec.Version,
		ActorID:       rec.ActorID,
		OccurredAt:    rec.OccurredAt,
		Event:         evt,
	}, nil
}
