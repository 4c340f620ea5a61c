package es

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateID_String(t *testing.T) {
	entity := uuid.MustParse("0190a6e8-0000-7000-8000-000000000001")
	id := MustAggregateID("w1", entity)
	assert.Equal(t, "w1:0190a6e8-0000-7000-8000-000000000001", id.String())
}

func TestParseAggregateID_Errors(t *testing.T) {
	for _, s := range []string{"", "nocolon", "w1:not-a-uuid", ":0190a6e8-0000-7000-8000-000000000001"} {
		_, err := ParseAggregateID(s)
		assert.Error(t, err, s)
		assert.Equal(t, CodeValidation, CodeOf(err), s)
	}
}

func TestAggregateID_WorldWithColon(t *testing.T) {
	id := MustAggregateID("realm:north", uuid.New())
	parsed, err := ParseAggregateID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestAggregateID_JSON(t *testing.T) {
	id := MustAggregateID("w1", uuid.New())
	data, err := json.Marshal(map[string]AggregateID{"id": id})
	require.NoError(t, err)

	var back map[string]AggregateID
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, id, back["id"])
}

func TestAggregateID_RoundTripProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("parse(string(id)) == id", prop.ForAll(
		func(world string, hi, lo uint64) bool {
			var entity uuid.UUID
			for i := 0; i < 8; i++ {
				entity[i] = byte(hi >> (8 * i))
				entity[8+i] = byte(lo >> (8 * i))
			}
			if entity == uuid.Nil {
				return true
			}
			id, err := NewAggregateID(world, entity)
			if err != nil {
				return false
			}
			parsed, err := ParseAggregateID(id.String())
			return err == nil && parsed == id
		},
		gen.AnyString().SuchThat(func(s string) bool { return s != "" }),
		gen.UInt64(),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
