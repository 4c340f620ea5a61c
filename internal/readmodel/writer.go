package readmodel

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Writer upserts projections of type R into table. A row is only replaced
// by a projection with a higher version, so a slow writer cannot roll a
// view back.
type Writer[R any] struct {
	db    *gorm.DB
	table string
}

// NewWriter creates a writer for table.
func NewWriter[R any](db *gorm.DB, table string) *Writer[R] {
	return &Writer[R]{db: db, table: table}
}

// NewItemWriter writes ItemView rows.
func NewItemWriter(db *gorm.DB) *Writer[ItemView] {
	return NewWriter[ItemView](db, ItemView{}.TableName())
}

// NewTalentWriter writes TalentView rows.
func NewTalentWriter(db *gorm.DB) *Writer[TalentView] {
	return NewWriter[TalentView](db, TalentView{}.TableName())
}

// Project implements upsert.Projector.
func (w *Writer[R]) Project(ctx context.Context, view R) error {
	return w.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: w.table + ".version < excluded.version"},
			}},
		}).
		Create(&view).Error
}
