package talent

import "github.com/roach88/worldforge/internal/es"

const (
	EventCreated es.EventType = "talent.created"
	EventUpdated es.EventType = "talent.updated"
)

// Created is raised once, at version 1.
type Created struct {
	Name         string              `json:"name"`
	Description  es.Nullable[string] `json:"description"`
	Tier         int                 `json:"tier"`
	Requirements []Requirement       `json:"requirements"`
}

// EventType implements es.Event.
func (*Created) EventType() es.EventType { return EventCreated }

// Updated carries only the fields that changed.
type Updated struct {
	Name         *es.Change[string]              `json:"name,omitempty"`
	Description  *es.Change[es.Nullable[string]] `json:"description,omitempty"`
	Tier         *es.Change[int]                 `json:"tier,omitempty"`
	Requirements *es.Change[[]Requirement]       `json:"requirements,omitempty"`
}

// EventType implements es.Event.
func (*Updated) EventType() es.EventType { return EventUpdated }

// IsEmpty reports whether no field is set.
func (u Updated) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Tier == nil && u.Requirements == nil
}

// NewRegistry returns the codec for talent events.
func NewRegistry() *es.Registry {
	return es.NewRegistry(AggregateType).
		Register(func() es.Event { return &Created{} }).
		Register(func() es.Event { return &Updated{} })
}
