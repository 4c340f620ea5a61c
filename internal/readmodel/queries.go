package readmodel

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/roach88/worldforge/internal/es"
)

// Item returns the item view with the given aggregate id.
func Item(ctx context.Context, db *gorm.DB, id es.AggregateID) (ItemView, error) {
	var v ItemView
	err := db.WithContext(ctx).Where("id = ?", id.String()).Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ItemView{}, es.NotFound("item view", id)
	}
	return v, err
}

// Talent returns the talent view with the given aggregate id.
func Talent(ctx context.Context, db *gorm.DB, id es.AggregateID) (TalentView, error) {
	var v TalentView
	err := db.WithContext(ctx).Where("id = ?", id.String()).Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TalentView{}, es.NotFound("talent view", id)
	}
	return v, err
}

// Items lists a world's items ordered by slug.
func Items(ctx context.Context, db *gorm.DB, worldID string) ([]ItemView, error) {
	views := make([]ItemView, 0)
	err := db.WithContext(ctx).Where("world_id = ?", worldID).Order("slug ASC").Find(&views).Error
	return views, err
}

// Talents lists a world's talents ordered by tier then name.
func Talents(ctx context.Context, db *gorm.DB, worldID string) ([]TalentView, error) {
	views := make([]TalentView, 0)
	err := db.WithContext(ctx).Where("world_id = ?", worldID).Order("tier ASC, name ASC").Find(&views).Error
	return views, err
}

// ItemSlugTaken reports whether another item in the world already uses slug.
// The slug owner itself is excluded so replaces keep their own slug.
func ItemSlugTaken(ctx context.Context, db *gorm.DB, worldID, slug string, self es.AggregateID) (string, bool, error) {
	var v ItemView
	err := db.WithContext(ctx).
		Where("world_id = ? AND slug = ? AND id <> ?", worldID, slug, self.String()).
		Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v.ID, true, nil
}
