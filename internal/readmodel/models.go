// Package readmodel holds the query-side projections of content aggregates,
// stored with GORM in SQLite or PostgreSQL.
package readmodel

import "time"

// ItemView is the read model of an item.
type ItemView struct {
	ID          string  `gorm:"primaryKey;size:200" json:"id"`
	WorldID     string  `gorm:"index:idx_item_world_slug,priority:1;not null" json:"world_id"`
	EntityID    string  `gorm:"size:36;not null" json:"entity_id"`
	Version     int64   `gorm:"not null" json:"version"`
	Name        string  `gorm:"not null" json:"name"`
	Slug        string  `gorm:"index:idx_item_world_slug,priority:2;not null" json:"slug"`
	Description *string `json:"description"`
	Category    string  `gorm:"not null" json:"category"`
	WeightGrams int64   `gorm:"not null" json:"weight_grams"`
	Price       int64   `gorm:"not null" json:"price"`
	SizeBytes   int64   `gorm:"not null" json:"size_bytes"`

	CreatedBy string    `gorm:"not null" json:"created_by"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedBy string    `gorm:"not null" json:"updated_by"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName implements gorm's Tabler.
func (ItemView) TableName() string { return "item_views" }

// Requirement is a prerequisite talent at a minimum tier.
type Requirement struct {
	TalentID string `json:"talent_id"`
	Tier     int    `json:"tier"`
}

// TalentView is the read model of a talent.
type TalentView struct {
	ID           string        `gorm:"primaryKey;size:200" json:"id"`
	WorldID      string        `gorm:"index;not null" json:"world_id"`
	EntityID     string        `gorm:"size:36;not null" json:"entity_id"`
	Version      int64         `gorm:"not null" json:"version"`
	Name         string        `gorm:"not null" json:"name"`
	Description  *string       `json:"description"`
	Tier         int           `gorm:"not null" json:"tier"`
	Requirements []Requirement `gorm:"serializer:json" json:"requirements"`
	SizeBytes    int64         `gorm:"not null" json:"size_bytes"`

	CreatedBy string    `gorm:"not null" json:"created_by"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedBy string    `gorm:"not null" json:"updated_by"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName implements gorm's Tabler.
func (TalentView) TableName() string { return "talent_views" }

// Models lists every projection for AutoMigrate.
func Models() []any {
	return []any{&ItemView{}, &TalentView{}}
}
