package talent

import (
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/quota"
	"github.com/roach88/worldforge/internal/readmodel"
)

// RequirementPayload is one requirement as sent by clients.
type RequirementPayload struct {
	TalentID uuid.UUID `json:"talent_id" yaml:"talent_id"`
	Tier     int       `json:"tier" yaml:"tier"`
}

// Payload is the full client representation of a talent.
type Payload struct {
	Name         string               `json:"name" yaml:"name"`
	Description  *string              `json:"description" yaml:"description"`
	Tier         int                  `json:"tier" yaml:"tier"`
	Requirements []RequirementPayload `json:"requirements" yaml:"requirements"`
}

// Fields converts the payload to business fields.
func (p Payload) Fields() Fields {
	reqs := make([]Requirement, 0, len(p.Requirements))
	for _, r := range p.Requirements {
		reqs = append(reqs, Requirement{TalentID: r.TalentID, Tier: r.Tier})
	}
	return Fields{
		Name:         p.Name,
		Description:  es.FromPtr(p.Description),
		Tier:         p.Tier,
		Requirements: normalize(reqs),
	}
}

// Vertical adapts Talent to upsert.Handler.
type Vertical struct{}

// EntityType returns the aggregate type.
func (Vertical) EntityType() string { return AggregateType }

// Create builds a new talent from the payload.
func (Vertical) Create(id es.AggregateID, p Payload, stamp es.Stamp) (*Talent, error) {
	return New(id, p.Fields(), stamp)
}

// Replace writes each payload field that differs from reference onto live.
// Tier and requirements are ordered so that raising both, or lowering both,
// never passes through a state that breaks the tier rule.
func (Vertical) Replace(live, reference *Talent, p Payload) error {
	ref := reference.State()
	f := p.Fields()

	if ref.Name != f.Name {
		if _, err := live.SetName(f.Name); err != nil {
			return err
		}
	}
	if ref.Description != f.Description {
		if _, err := live.SetDescription(f.Description); err != nil {
			return err
		}
	}

	setTier := func() error {
		if ref.Tier == f.Tier {
			return nil
		}
		_, err := live.SetTier(f.Tier)
		return err
	}
	setRequirements := func() error {
		if slices.Equal(ref.Requirements, f.Requirements) {
			return nil
		}
		_, err := live.SetRequirements(f.Requirements)
		return err
	}
	steps := []func() error{setTier, setRequirements}
	if f.Tier < live.state.Tier {
		steps = []func() error{setRequirements, setTier}
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// Commit raises the staged changes as one event.
func (Vertical) Commit(t *Talent, stamp es.Stamp) error { return t.Commit(stamp) }

// Metadata sizes the talent for the quota gate.
func (Vertical) Metadata(t *Talent) quota.EntityMetadata {
	return quota.NewMetadata(t.root.ID(), AggregateType, t.Size())
}

// Project builds the read model. It is pure.
func (Vertical) Project(t *Talent) readmodel.TalentView {
	s := t.state
	id := t.root.ID()
	version, _ := t.root.Version()
	reqs := make([]readmodel.Requirement, 0, len(s.Requirements))
	for _, r := range s.Requirements {
		reqs = append(reqs, readmodel.Requirement{TalentID: r.TalentID.String(), Tier: r.Tier})
	}
	return readmodel.TalentView{
		ID:           id.String(),
		WorldID:      id.World,
		EntityID:     id.Entity.String(),
		Version:      version,
		Name:         s.Name,
		Description:  s.Description.Ptr(),
		Tier:         s.Tier,
		Requirements: reqs,
		SizeBytes:    t.Size(),
		CreatedBy:    s.CreatedBy,
		CreatedAt:    s.CreatedAt,
		UpdatedBy:    s.UpdatedBy,
		UpdatedAt:    s.UpdatedAt,
	}
}
