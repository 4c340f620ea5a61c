package es

import "context"

// Claim reserves Value within Scope of the aggregate's world, such as an item
// slug. Within one world and scope a value is held by at most one aggregate,
// and an aggregate holds at most one value per scope. An empty Value releases
// the scope.
type Claim struct {
	Scope string
	Value string
}

// Claimant is implemented by aggregates that hold claims. Claims reflects the
// current state, uncommitted changes included.
type Claimant interface {
	Claims() []Claim
}

// ClaimingLog is an EventLog that stores claims in the same transaction as
// the events that establish them.
type ClaimingLog interface {
	EventLog

	// AppendClaiming appends records like Append and sets each aggregate's
	// claims. A value held by another aggregate fails the whole batch with
	// CodeConflict.
	AppendClaiming(ctx context.Context, records []Record, claims map[AggregateID][]Claim) error
}

// ClaimConflict builds the error a ClaimingLog returns when holder already
// has c in id's world. holder may be empty when the log cannot tell.
func ClaimConflict(id AggregateID, c Claim, holder string) *Error {
	e := Errorf(CodeConflict, "append", "%s %q is already used", c.Scope, c.Value).
		WithDetail(c.Scope, c.Value).
		WithDetail("world", id.World)
	if holder != "" {
		e.WithDetail("conflicting_id", holder)
	}
	return e
}
