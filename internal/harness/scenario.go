package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance scenario.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// DefaultAllocatedBytes overrides the gate's default allocation for
	// owners without an explicit one. Zero keeps the configured default.
	DefaultAllocatedBytes int64 `yaml:"default_allocated_bytes,omitempty"`

	Worlds     []World     `yaml:"worlds"`
	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// World registers a world, its owner and optionally the owner's allocation.
type World struct {
	ID             string `yaml:"id"`
	Owner          string `yaml:"owner"`
	AllocatedBytes *int64 `yaml:"allocated_bytes,omitempty"`
}

// Step is one upsert command.
type Step struct {
	// Upsert is the entity type ("item" or "talent").
	Upsert string `yaml:"upsert"`

	// World defaults to the first declared world.
	World string `yaml:"world,omitempty"`

	// Ref selects the entity. Without a ref the step creates an entity with
	// a generated id.
	Ref string `yaml:"ref,omitempty"`

	ExpectedVersion *int64 `yaml:"expected_version,omitempty"`

	// Actor defaults to the world's owner.
	Actor string `yaml:"actor,omitempty"`

	Payload map[string]any `yaml:"payload"`
	Expect  *Expect        `yaml:"expect,omitempty"`
}

// Expect checks a step's outcome. Error is an es.Code; when set the step
// must fail with that code.
type Expect struct {
	Status  string `yaml:"status,omitempty"`
	Version int64  `yaml:"version,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

// Assertion checks final state.
type Assertion struct {
	Type string `yaml:"type"`

	// usage
	Owner          string `yaml:"owner,omitempty"`
	UsedBytes      *int64 `yaml:"used_bytes,omitempty"`
	AvailableBytes *int64 `yaml:"available_bytes,omitempty"`

	// view, event_count
	EntityType string         `yaml:"entity_type,omitempty"`
	World      string         `yaml:"world,omitempty"`
	Ref        string         `yaml:"ref,omitempty"`
	Expect     map[string]any `yaml:"expect,omitempty"`
	Count      *int64         `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertUsage      = "usage"
	AssertView       = "view"
	AssertEventCount = "event_count"
)

var (
	entityTypes = map[string]bool{"item": true, "talent": true}
	statuses    = map[string]bool{"created": true, "updated": true, "unchanged": true, "not_found": true}
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.DefaultAllocatedBytes < 0 {
		return fmt.Errorf("default_allocated_bytes must not be negative")
	}
	if len(s.Worlds) == 0 {
		return fmt.Errorf("worlds list is required and must be non-empty")
	}
	worlds := make(map[string]bool, len(s.Worlds))
	for i, w := range s.Worlds {
		if w.ID == "" || w.Owner == "" {
			return fmt.Errorf("worlds[%d]: id and owner are required", i)
		}
		if w.AllocatedBytes != nil && *w.AllocatedBytes < 0 {
			return fmt.Errorf("worlds[%d]: allocated_bytes must not be negative", i)
		}
		worlds[w.ID] = true
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if !entityTypes[step.Upsert] {
			return fmt.Errorf("steps[%d]: upsert must be item or talent, got %q", i, step.Upsert)
		}
		if step.World != "" && !worlds[step.World] {
			return fmt.Errorf("steps[%d]: world %q is not declared", i, step.World)
		}
		if step.Payload == nil {
			return fmt.Errorf("steps[%d]: payload is required", i)
		}
		if e := step.Expect; e != nil {
			if e.Status != "" && !statuses[e.Status] {
				return fmt.Errorf("steps[%d].expect: unknown status %q", i, e.Status)
			}
			if e.Status != "" && e.Error != "" {
				return fmt.Errorf("steps[%d].expect: status and error are mutually exclusive", i)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertUsage:
		if a.Owner == "" {
			return fmt.Errorf("assertions[%d]: owner is required for usage", index)
		}
		if a.UsedBytes == nil && a.AvailableBytes == nil {
			return fmt.Errorf("assertions[%d]: used_bytes or available_bytes is required for usage", index)
		}
	case AssertView:
		if a.Ref == "" || !entityTypes[a.EntityType] {
			return fmt.Errorf("assertions[%d]: ref and entity_type are required for view", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for view", index)
		}
	case AssertEventCount:
		if a.Ref == "" {
			return fmt.Errorf("assertions[%d]: ref is required for event_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
