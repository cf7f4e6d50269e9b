package repository

import (
	"context"
	"database/sql"

	"espresso_rig/internal/models"
)

type StateRepo interface {
	Save(ctx context.Context, st models.CombinedState) error
	Load(ctx context.Context) (models.CombinedState, bool, error)
}

type Repository struct {
	StateRepo StateRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo: NewStateSQLite(db),
	}
}
