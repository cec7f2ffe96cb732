// Package gormstore keeps the playground snapshot in a SQL table, one row per
// state key.
package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/prompt-playground/internal/chat"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type stateRow struct {
	StateKey  string `gorm:"primaryKey;size:128"`
	Blob      []byte
	UpdatedAt time.Time
}

func (stateRow) TableName() string {
	return "playground_state"
}

type Store struct {
	db  *gorm.DB
	key string
}

func New(db *gorm.DB, key string) *Store {
	return &Store{db: db, key: key}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&stateRow{})
}

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	var row stateRow
	err := s.db.WithContext(ctx).First(&row, "state_key = ?", s.key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, chat.ErrNoState
	}
	if err != nil {
		return nil, err
	}
	return row.Blob, nil
}

func (s *Store) Save(ctx context.Context, blob []byte) error {
	row := stateRow{StateKey: s.key, Blob: blob, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "state_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"blob", "updated_at"}),
		}).
		Create(&row).Error
}
