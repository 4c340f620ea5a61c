// Package item is the item content vertical: an event-sourced Item
// aggregate plus its adapter for the upsert handler.
package item

import (
	"fmt"
	"time"

	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/quota"
)

// AggregateType names items in the event log and the quota ledger.
const AggregateType = "item"

// Category classifies an item.
type Category string

const (
	CategoryMoney      Category = "Money"
	CategoryWeapon     Category = "Weapon"
	CategoryArmor      Category = "Armor"
	CategoryConsumable Category = "Consumable"
	CategoryTool       Category = "Tool"
	CategoryTreasure   Category = "Treasure"
)

// Categories lists the defined categories in display order.
var Categories = []Category{
	CategoryMoney, CategoryWeapon, CategoryArmor, CategoryConsumable, CategoryTool, CategoryTreasure,
}

// Valid reports whether c is a defined category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Fields are the business fields of an item.
type Fields struct {
	Name        string
	Slug        string
	Description es.Nullable[string]
	Category    Category
	WeightGrams int64
	Price       int64
}

// State is the folded state of an item.
type State struct {
	Fields

	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
}

// Item is the event-sourced item aggregate.
type Item struct {
	root    es.Root
	state   State
	base    Fields
	pending Updated
}

// Root implements es.Aggregate.
func (i *Item) Root() *es.Root { return &i.root }

// New creates an item at version 1.
func New(id es.AggregateID, f Fields, stamp es.Stamp) (*Item, error) {
	if err := checkFields(f); err != nil {
		return nil, err
	}
	i := &Item{}
	if err := es.Begin(i, id, AggregateType); err != nil {
		return nil, err
	}
	err := es.Raise(i, &Created{
		Name:        f.Name,
		Slug:        f.Slug,
		Description: f.Description,
		Category:    f.Category,
		WeightGrams: f.WeightGrams,
		Price:       f.Price,
	}, stamp)
	if err != nil {
		return nil, err
	}
	return i, nil
}

func checkFields(f Fields) error {
	if !f.Category.Valid() {
		return invalidCategory(f.Category)
	}
	if f.WeightGrams < 0 {
		return es.Invariant("item", "weight must not be negative, got %d", f.WeightGrams)
	}
	if f.Price < 0 {
		return es.Invariant("item", "price must not be negative, got %d", f.Price)
	}
	return nil
}

func invalidCategory(c Category) error {
	return es.Invariant("item", "unknown category %q", c).WithDetail("category", string(c))
}

// State returns a copy of the current state.
func (i *Item) State() State { return i.state }

// Pending returns the changes staged since the last commit.
func (i *Item) Pending() Updated { return i.pending }

// SetName stages a new name.
func (i *Item) SetName(name string) (Updated, error) {
	if err := i.root.Guard(); err != nil {
		return Updated{}, err
	}
	es.Assign(&i.state.Name, name, i.base.Name, &i.pending.Name)
	return i.pending, nil
}

// SetSlug stages a new slug. Uniqueness is enforced when the item is saved.
func (i *Item) SetSlug(slug string) (Updated, error) {
	if err := i.root.Guard(); err != nil {
		return Updated{}, err
	}
	es.Assign(&i.state.Slug, slug, i.base.Slug, &i.pending.Slug)
	return i.pending, nil
}

// SetDescription stages a new description; es.Null clears it.
func (i *Item) SetDescription(description es.Nullable[string]) (Updated, error) {
	if err := i.root.Guard(); err != nil {
		return Updated{}, err
	}
	es.Assign(&i.state.Description, description, i.base.Description, &i.pending.Description)
	return i.pending, nil
}

// SetCategory stages a new category. An unknown category stages nothing.
func (i *Item) SetCategory(category Category) (Updated, error) {
	if err := i.root.Guard(); err != nil {
		return Updated{}, err
	}
	if !category.Valid() {
		return i.pending, invalidCategory(category)
	}
	es.Assign(&i.state.Category, category, i.base.Category, &i.pending.Category)
	return i.pending, nil
}

// SetWeightGrams stages a new weight. A negative weight stages nothing.
func (i *Item) SetWeightGrams(grams int64) (Updated, error) {
	if err := i.root.Guard(); err != nil {
		return Updated{}, err
	}
	if grams < 0 {
		return i.pending, es.Invariant("item", "weight must not be negative, got %d", grams)
	}
	es.Assign(&i.state.WeightGrams, grams, i.base.WeightGrams, &i.pending.WeightGrams)
	return i.pending, nil
}

// SetPrice stages a new price. A negative price stages nothing.
func (i *Item) SetPrice(price int64) (Updated, error) {
	if err := i.root.Guard(); err != nil {
		return Updated{}, err
	}
	if price < 0 {
		return i.pending, es.Invariant("item", "price must not be negative, got %d", price)
	}
	es.Assign(&i.state.Price, price, i.base.Price, &i.pending.Price)
	return i.pending, nil
}

// Commit raises one Updated event with the staged changes. Without staged
// changes it does nothing.
func (i *Item) Commit(stamp es.Stamp) error {
	if err := i.root.Guard(); err != nil {
		return err
	}
	if i.pending.IsEmpty() {
		return nil
	}
	changes := i.pending
	if err := es.Raise(i, &changes, stamp); err != nil {
		return err
	}
	i.pending = Updated{}
	return nil
}

// Apply implements es.Aggregate.
func (i *Item) Apply(env es.Envelope) error {
	switch e := env.Event.(type) {
	case *Created:
		i.state = State{
			Fields: Fields{
				Name:        e.Name,
				Slug:        e.Slug,
				Description: e.Description,
				Category:    e.Category,
				WeightGrams: e.WeightGrams,
				Price:       e.Price,
			},
			CreatedBy: env.ActorID,
			CreatedAt: env.OccurredAt,
			UpdatedBy: env.ActorID,
			UpdatedAt: env.OccurredAt,
		}
	case *Updated:
		if e.Name != nil {
			i.state.Name = e.Name.Value
		}
		if e.Slug != nil {
			i.state.Slug = e.Slug.Value
		}
		if e.Description != nil {
			i.state.Description = e.Description.Value
		}
		if e.Category != nil {
			i.state.Category = e.Category.Value
		}
		if e.WeightGrams != nil {
			i.state.WeightGrams = e.WeightGrams.Value
		}
		if e.Price != nil {
			i.state.Price = e.Price.Value
		}
		i.state.UpdatedBy = env.ActorID
		i.state.UpdatedAt = env.OccurredAt
	default:
		return fmt.Errorf("item: unhandled event %T", env.Event)
	}
	i.base = i.state.Fields
	return nil
}

// SlugScope is the claim scope that keeps slugs unique within a world.
const SlugScope = "slug"

// Claims implements es.Claimant.
func (i *Item) Claims() []es.Claim {
	return []es.Claim{{Scope: SlugScope, Value: i.state.Slug}}
}

// Size is the item's quota footprint: its text fields plus two fixed-width
// integers.
func (i *Item) Size() int64 {
	s := i.state
	return quota.TextSize(s.Name) +
		quota.TextSize(s.Slug) +
		quota.NullableTextSize(s.Description) +
		quota.TextSize(string(s.Category)) +
		2*quota.SizeInt64
}
