package es

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AggregateID identifies an entity within a world. Its text form is
// "<world>:<entity>".
type AggregateID struct {
	World  string
	Entity uuid.UUID
}

// NewAggregateID validates and builds an AggregateID.
func NewAggregateID(world string, entity uuid.UUID) (AggregateID, error) {
	if world == "" {
		return AggregateID{}, Errorf(CodeValidation, "aggregate id", "world id is required")
	}
	if entity == uuid.Nil {
		return AggregateID{}, Errorf(CodeValidation, "aggregate id", "entity id is required")
	}
	return AggregateID{World: world, Entity: entity}, nil
}

// MustAggregateID is NewAggregateID that panics on error. Intended for tests
// and constants.
func MustAggregateID(world string, entity uuid.UUID) AggregateID {
	id, err := NewAggregateID(world, entity)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseAggregateID parses the "<world>:<entity>" form. The entity part is
// taken after the last colon so world ids may themselves contain colons.
func ParseAggregateID(s string) (AggregateID, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return AggregateID{}, Errorf(CodeValidation, "parse aggregate id", "missing ':' in %q", s)
	}
	entity, err := uuid.Parse(s[i+1:])
	if err != nil {
		return AggregateID{}, &Error{
			Code:    CodeValidation,
			Op:      "parse aggregate id",
			Message: fmt.Sprintf("invalid entity id in %q", s),
			Cause:   err,
		}
	}
	return NewAggregateID(s[:i], entity)
}

// String returns "<world>:<entity>".
func (id AggregateID) String() string {
	return id.World + ":" + id.Entity.String()
}

// IsZero reports whether id is the zero value.
func (id AggregateID) IsZero() bool {
	return id.World == "" && id.Entity == uuid.Nil
}

// MarshalText implements encoding.TextMarshaler.
func (id AggregateID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *AggregateID) UnmarshalText(text []byte) error {
	parsed, err := ParseAggregateID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
