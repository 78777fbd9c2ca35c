package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/brightpath/safety-engine/internal/database"
	"github.com/brightpath/safety-engine/internal/model"
)

// ProfileRepository reads the child profile projection. The engine never
// writes profiles.
type ProfileRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChildProfile, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ProfileRepository
}

type profileRepo struct {
	db database.DBTX
}

func NewProfileRepository(db *sqlx.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) WithTx(tx *sqlx.Tx) ProfileRepository {
	return &profileRepo{db: tx}
}

func (r *profileRepo) FindByID(ctx context.Context, id string) (*model.ChildProfile, error) {
	var profile model.ChildProfile
	err := r.db.GetContext(ctx, &profile, `
		SELECT id, name, age_band, parent_id, educator_ids, locale,
			daily_limit_minutes, content_filter
		FROM children WHERE id = $1
	`, id)
	return HandleNotFound(&profile, err)
}
