package item

import (
	"context"

	"gorm.io/gorm"

	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/quota"
	"github.com/roach88/worldforge/internal/readmodel"
)

// Payload is the full client representation of an item.
type Payload struct {
	Name        string  `json:"name" yaml:"name"`
	Slug        string  `json:"slug" yaml:"slug"`
	Description *string `json:"description" yaml:"description"`
	Category    string  `json:"category" yaml:"category"`
	WeightGrams int64   `json:"weight_grams" yaml:"weight_grams"`
	Price       int64   `json:"price" yaml:"price"`
}

// Fields converts the payload to business fields.
func (p Payload) Fields() Fields {
	return Fields{
		Name:        p.Name,
		Slug:        p.Slug,
		Description: es.FromPtr(p.Description),
		Category:    Category(p.Category),
		WeightGrams: p.WeightGrams,
		Price:       p.Price,
	}
}

// Vertical adapts Item to upsert.Handler.
type Vertical struct{}

// EntityType returns the aggregate type.
func (Vertical) EntityType() string { return AggregateType }

// Create builds a new item from the payload.
func (Vertical) Create(id es.AggregateID, p Payload, stamp es.Stamp) (*Item, error) {
	return New(id, p.Fields(), stamp)
}

// Replace writes each payload field that differs from reference onto live.
func (Vertical) Replace(live, reference *Item, p Payload) error {
	ref := reference.State()
	f := p.Fields()

	if ref.Name != f.Name {
		if _, err := live.SetName(f.Name); err != nil {
			return err
		}
	}
	if ref.Slug != f.Slug {
		if _, err := live.SetSlug(f.Slug); err != nil {
			return err
		}
	}
	if ref.Description != f.Description {
		if _, err := live.SetDescription(f.Description); err != nil {
			return err
		}
	}
	if ref.Category != f.Category {
		if _, err := live.SetCategory(f.Category); err != nil {
			return err
		}
	}
	if ref.WeightGrams != f.WeightGrams {
		if _, err := live.SetWeightGrams(f.WeightGrams); err != nil {
			return err
		}
	}
	if ref.Price != f.Price {
		if _, err := live.SetPrice(f.Price); err != nil {
			return err
		}
	}
	return nil
}

// Commit raises the staged changes as one event.
func (Vertical) Commit(i *Item, stamp es.Stamp) error { return i.Commit(stamp) }

// Metadata sizes the item for the quota gate.
func (Vertical) Metadata(i *Item) quota.EntityMetadata {
	return quota.NewMetadata(i.root.ID(), AggregateType, i.Size())
}

// Project builds the read model. It is pure.
func (Vertical) Project(i *Item) readmodel.ItemView {
	s := i.state
	id := i.root.ID()
	version, _ := i.root.Version()
	return readmodel.ItemView{
		ID:          id.String(),
		WorldID:     id.World,
		EntityID:    id.Entity.String(),
		Version:     version,
		Name:        s.Name,
		Slug:        s.Slug,
		Description: s.Description.Ptr(),
		Category:    string(s.Category),
		WeightGrams: s.WeightGrams,
		Price:       s.Price,
		SizeBytes:   i.Size(),
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt,
		UpdatedBy:   s.UpdatedBy,
		UpdatedAt:   s.UpdatedAt,
	}
}

// SlugPrecheck rejects an item whose slug another item of the same world
// already uses.
type SlugPrecheck struct {
	DB *gorm.DB
}

// Precheck implements upsert.Prechecker.
func (p SlugPrecheck) Precheck(ctx context.Context, i *Item) error {
	id := i.root.ID()
	slug := i.state.Slug
	other, taken, err := readmodel.ItemSlugTaken(ctx, p.DB, id.World, slug, id)
	if err != nil {
		return es.Wrap(es.CodeInternal, "item slug precheck", err)
	}
	if taken {
		return es.Errorf(es.CodeConflict, "item.upsert", "slug %q is already used", slug).
			WithDetail("slug", slug).
			WithDetail("conflicting_id", other)
	}
	return nil
}
