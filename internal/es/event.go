package es

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminates event variants, e.g. "item.created".
type EventType string

// Event is implemented by every event variant. Variants are pointer types and
// each aggregate's Apply switches over its own closed set.
type Event interface {
	EventType() EventType
}

// Stamp attributes a mutation to an actor at an instant.
type Stamp struct {
	Actor string
	At    time.Time
}

// NewStamp reads clock once. Aggregates take a Stamp instead of reading
// the wall clock.
func NewStamp(actor string, clock Clock) Stamp {
	return Stamp{Actor: actor, At: clock.Now().UTC()}
}

// Envelope is an event positioned in an aggregate's history.
type Envelope struct {
	AggregateType string
	AggregateID   AggregateID
	Version       int64
	ActorID       string
	OccurredAt    time.Time
	Event         Event
}

// Record is the persisted form of an Envelope.
type Record struct {
	EventID       uuid.UUID
	AggregateType string
	AggregateID   AggregateID
	Version       int64
	EventType     EventType
	ActorID       string
	OccurredAt    time.Time

	// Payload is the canonical JSON encoding of the event.
	Payload []byte

	// PayloadHash is codec.PayloadHash(EventType, Payload).
	PayloadHash string
}
