package item

import "github.com/roach88/worldforge/internal/es"

const (
	EventCreated es.EventType = "item.created"
	EventUpdated es.EventType = "item.updated"
)

// Created is raised once, at version 1.
type Created struct {
	Name        string              `json:"name"`
	Slug        string              `json:"slug"`
	Description es.Nullable[string] `json:"description"`
	Category    Category            `json:"category"`
	WeightGrams int64               `json:"weight_grams"`
	Price       int64               `json:"price"`
}

// EventType implements es.Event.
func (*Created) EventType() es.EventType { return EventCreated }

// Updated carries only the fields that changed. It doubles as the pending
// accumulator returned by every setter.
type Updated struct {
	Name        *es.Change[string]              `json:"name,omitempty"`
	Slug        *es.Change[string]              `json:"slug,omitempty"`
	Description *es.Change[es.Nullable[string]] `json:"description,omitempty"`
	Category    *es.Change[Category]            `json:"category,omitempty"`
	WeightGrams *es.Change[int64]               `json:"weight_grams,omitempty"`
	Price       *es.Change[int64]               `json:"price,omitempty"`
}

// EventType implements es.Event.
func (*Updated) EventType() es.EventType { return EventUpdated }

// IsEmpty reports whether no field is set.
func (u Updated) IsEmpty() bool {
	return u.Name == nil && u.Slug == nil && u.Description == nil &&
		u.Category == nil && u.WeightGrams == nil && u.Price == nil
}

// NewRegistry returns the codec for item events.
func NewRegistry() *es.Registry {
	return es.NewRegistry(AggregateType).
		Register(func() es.Event { return &Created{} }).
		Register(func() es.Event { return &Updated{} })
}
