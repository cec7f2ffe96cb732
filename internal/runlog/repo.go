package runlog

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(&Run{})
}

// Insert stores run. A run whose id already exists is left untouched, so a
// redelivered event is harmless.
func (r *Repo) Insert(ctx context.Context, run *Run) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(run).Error
}

func (r *Repo) Get(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns runs newest first. An empty sessionID lists every session.
func (r *Repo) List(ctx context.Context, sessionID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := r.db.WithContext(ctx).
		Order("started_at DESC").
		Order("id DESC").
		Limit(limit)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}

	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Record implements Recorder by writing straight to the database.
func (r *Repo) Record(ctx context.Context, run Run) error {
	return r.Insert(ctx, &run)
}
