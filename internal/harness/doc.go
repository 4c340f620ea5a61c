// Package harness runs YAML upsert scenarios against a fresh worldforge
// instance and checks the outcome of every step.
//
// # Scenario Format
//
//	name: denier_lifecycle
//	description: "Create an item, then replace it"
//	default_allocated_bytes: 1048576
//	worlds:
//	  - id: w1
//	    owner: alice
//	    allocated_bytes: 100
//	steps:
//	  - upsert: item
//	    ref: denier
//	    payload: { name: Denier, slug: denier, category: Money, weight_grams: 2, price: 1 }
//	    expect: { status: created, version: 1 }
//	  - upsert: item
//	    ref: denier
//	    expected_version: 1
//	    payload: { name: Denier, slug: denier, description: A coin, category: Money, weight_grams: 2, price: 1 }
//	    expect: { status: updated, version: 2 }
//	assertions:
//	  - type: usage
//	    owner: alice
//	    used_bytes: 39
//	  - type: event_count
//	    ref: denier
//	    count: 2
//
// A ref names an entity within the scenario; it maps to a fixed UUID so the
// same scenario always produces the same ids. String payload values of the
// form "@ref" are replaced with that UUID, which lets talent requirements
// point at other talents.
//
// # Assertion Types
//
//   - usage: the owner's used (and optionally available) bytes
//   - view: a subset match against the entity's read model
//   - event_count: the number of stored events for an entity
//
// # Deterministic Testing
//
// Every run uses a fresh SQLite event log and read model in a temporary
// directory, a stepping clock (testutil.StepClock) and sequential entity and
// event ids, so traces can be compared against golden files with goldie.
package harness
