package harness

import "encoding/json"

// TraceEvent is one event stored by a step.
type TraceEvent struct {
	Version     int64           `json:"version"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	PayloadHash string          `json:"payload_hash"`
}

// TraceStep is the observable outcome of one step.
type TraceStep struct {
	Step       int          `json:"step"`
	EntityType string       `json:"entity_type"`
	Ref        string       `json:"ref,omitempty"`
	ID         string       `json:"id,omitempty"`
	Status     string       `json:"status,omitempty"`
	Version    int64        `json:"version,omitempty"`
	Error      string       `json:"error,omitempty"`
	Events     []TraceEvent `json:"events"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceStep `json:"trace"`
	Errors []string    `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceStep{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
