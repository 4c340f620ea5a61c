// Package talent is the talent content vertical. A talent has a tier and
// may require other talents at a minimum tier; a requirement can never ask
// for a higher tier than the talent's own.
package talent

import (
	"bytes"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/quota"
)

// AggregateType names talents in the event log and the quota ledger.
const AggregateType = "talent"

const (
	MinTier = 1
	MaxTier = 5
)

// Requirement is a prerequisite talent at a minimum tier.
type Requirement struct {
	TalentID uuid.UUID `json:"talent_id"`
	Tier     int       `json:"tier"`
}

// requirementSize is a UUID plus a fixed-width tier.
const requirementSize = quota.SizeUUID + quota.SizeInt64

// Fields are the business fields of a talent.
type Fields struct {
	Name         string
	Description  es.Nullable[string]
	Tier         int
	Requirements []Requirement
}

// State is the folded state of a talent.
type State struct {
	Fields

	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
}

// Talent is the event-sourced talent aggregate.
type Talent struct {
	root    es.Root
	state   State
	base    Fields
	pending Updated
}

// Root implements es.Aggregate.
func (t *Talent) Root() *es.Root { return &t.root }

// New creates a talent at version 1.
func New(id es.AggregateID, f Fields, stamp es.Stamp) (*Talent, error) {
	if err := checkTier(f.Tier); err != nil {
		return nil, err
	}
	reqs := normalize(f.Requirements)
	if err := checkRequirements(id.Entity, f.Tier, reqs); err != nil {
		return nil, err
	}

	t := &Talent{}
	if err := es.Begin(t, id, AggregateType); err != nil {
		return nil, err
	}
	err := es.Raise(t, &Created{
		Name:         f.Name,
		Description:  f.Description,
		Tier:         f.Tier,
		Requirements: reqs,
	}, stamp)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func checkTier(tier int) error {
	if tier < MinTier || tier > MaxTier {
		return es.Invariant("talent", "tier must be between %d and %d, got %d", MinTier, MaxTier, tier)
	}
	return nil
}

func checkRequirements(self uuid.UUID, tier int, reqs []Requirement) error {
	seen := make(map[uuid.UUID]bool, len(reqs))
	for _, r := range reqs {
		if r.TalentID == self {
			return es.Invariant("talent", "a talent cannot require itself")
		}
		if seen[r.TalentID] {
			return es.Errorf(es.CodeConflict, "talent", "talent %s is required more than once", r.TalentID).
				WithDetail("talent_id", r.TalentID.String())
		}
		seen[r.TalentID] = true
		if err := checkTier(r.Tier); err != nil {
			return err
		}
		if r.Tier > tier {
			return es.Invariant("talent",
				"requirement %s at tier %d exceeds talent tier %d", r.TalentID, r.Tier, tier).
				WithDetail("talent_id", r.TalentID.String())
		}
	}
	return nil
}

// normalize orders requirements by talent id so equal sets compare equal.
func normalize(reqs []Requirement) []Requirement {
	out := slices.Clone(reqs)
	if out == nil {
		out = []Requirement{}
	}
	slices.SortFunc(out, func(a, b Requirement) int {
		return bytes.Compare(a.TalentID[:], b.TalentID[:])
	})
	return out
}

// State returns a copy of the current state.
func (t *Talent) State() State {
	s := t.state
	s.Requirements = slices.Clone(s.Requirements)
	return s
}

// Pending returns the changes staged since the last commit.
func (t *Talent) Pending() Updated { return t.pending }

// SetName stages a new name.
func (t *Talent) SetName(name string) (Updated, error) {
	if err := t.root.Guard(); err != nil {
		return Updated{}, err
	}
	es.Assign(&t.state.Name, name, t.base.Name, &t.pending.Name)
	return t.pending, nil
}

// SetDescription stages a new description; es.Null clears it.
func (t *Talent) SetDescription(description es.Nullable[string]) (Updated, error) {
	if err := t.root.Guard(); err != nil {
		return Updated{}, err
	}
	es.Assign(&t.state.Description, description, t.base.Description, &t.pending.Description)
	return t.pending, nil
}

// SetTier fails without staging anything when an existing requirement
// would exceed the new tier.
func (t *Talent) SetTier(tier int) (Updated, error) {
	if err := t.root.Guard(); err != nil {
		return Updated{}, err
	}
	if err := checkTier(tier); err != nil {
		return t.pending, err
	}
	if err := checkRequirements(t.root.ID().Entity, tier, t.state.Requirements); err != nil {
		return t.pending, err
	}
	es.Assign(&t.state.Tier, tier, t.base.Tier, &t.pending.Tier)
	return t.pending, nil
}

// SetRequirements replaces the requirement set, checked against the
// current tier.
func (t *Talent) SetRequirements(reqs []Requirement) (Updated, error) {
	if err := t.root.Guard(); err != nil {
		return Updated{}, err
	}
	reqs = normalize(reqs)
	if err := checkRequirements(t.root.ID().Entity, t.state.Tier, reqs); err != nil {
		return t.pending, err
	}
	es.AssignFunc(&t.state.Requirements, reqs, t.base.Requirements, &t.pending.Requirements, slices.Equal[[]Requirement, Requirement])
	return t.pending, nil
}

// Commit raises one Updated event with the staged changes. Without staged
// changes it does nothing.
func (t *Talent) Commit(stamp es.Stamp) error {
	if err := t.root.Guard(); err != nil {
		return err
	}
	if t.pending.IsEmpty() {
		return nil
	}
	changes := t.pending
	if err := es.Raise(t, &changes, stamp); err != nil {
		return err
	}
	t.pending = Updated{}
	return nil
}

// Apply implements es.Aggregate.
func (t *Talent) Apply(env es.Envelope) error {
	switch e := env.Event.(type) {
	case *Created:
		t.state = State{
			Fields: Fields{
				Name:         e.Name,
				Description:  e.Description,
				Tier:         e.Tier,
				Requirements: normalize(e.Requirements),
			},
			CreatedBy: env.ActorID,
			CreatedAt: env.OccurredAt,
			UpdatedBy: env.ActorID,
			UpdatedAt: env.OccurredAt,
		}
	case *Updated:
		if e.Name != nil {
			t.state.Name = e.Name.Value
		}
		if e.Description != nil {
			t.state.Description = e.Description.Value
		}
		if e.Tier != nil {
			t.state.Tier = e.Tier.Value
		}
		if e.Requirements != nil {
			t.state.Requirements = normalize(e.Requirements.Value)
		}
		t.state.UpdatedBy = env.ActorID
		t.state.UpdatedAt = env.OccurredAt
	default:
		return fmt.Errorf("talent: unhandled event %T", env.Event)
	}
	t.base = t.state.Fields
	t.base.Requirements = slices.Clone(t.state.Requirements)
	return nil
}

// Size is the talent's quota footprint.
func (t *Talent) Size() int64 {
	s := t.state
	return quota.TextSize(s.Name) +
		quota.NullableTextSize(s.Description) +
		quota.SizeInt64 +
		int64(len(s.Requirements))*requirementSize
}
