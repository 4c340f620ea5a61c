package codec

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Canonical output must be a fixed point: re-canonicalizing it changes nothing.
func TestCanonicalize_Idempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("canonicalize is idempotent", prop.ForAll(
		func(keys []string, values []string, n int64) bool {
			obj := map[string]any{"n": n}
			for i := 0; i < len(keys) && i < len(values); i++ {
				obj[keys[i]] = values[i]
			}
			raw, err := json.Marshal(obj)
			if err != nil {
				return false
			}
			once, err := Canonicalize(raw)
			if err != nil {
				return false
			}
			twice, err := Canonicalize(once)
			if err != nil {
				return false
			}
			return string(once) == string(twice)
		},
		gen.SliceOf(gen.AnyString()),
		gen.SliceOf(gen.AnyString()),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
