package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/brightpath/safety-engine/internal/database"
	"github.com/brightpath/safety-engine/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	FindOpenByChildID(ctx context.Context, childID string) (*model.Session, error)
	FindByChildIDBetween(ctx context.Context, childID string, from, to time.Time) ([]model.Session, error)
	SumDurationBetween(ctx context.Context, childID string, from, to time.Time) (int64, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// Close ends an open session. It returns nil without error when the
	// session is already closed.
	Close(ctx context.Context, params model.CloseSessionParams) (*model.Session, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `SELECT * FROM sessions WHERE id = $1`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindOpenByChildID(ctx context.Context, childID string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions
		WHERE child_id = $1 AND end_time IS NULL
		ORDER BY start_time DESC
		LIMIT 1
	`, childID)
	return HandleNotFound(&session, err)
}

// FindByChildIDBetween returns sessions whose start falls in [from, to], most
// recent first.
func (r *sessionRepo) FindByChildIDBetween(ctx context.Context, childID string, from, to time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE child_id = $1 AND start_time >= $2 AND start_time <= $3
		ORDER BY start_time DESC, id DESC
	`, childID, from, to)
	return sessions, err
}

// SumDurationBetween totals closed-session seconds for sessions starting in
// [from, to).
func (r *sessionRepo) SumDurationBetween(ctx context.Context, childID string, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(duration_seconds), 0)::bigint FROM sessions
		WHERE child_id = $1 AND start_time >= $2 AND start_time < $3
		AND end_time IS NOT NULL
	`, childID, from, to)
	return total, err
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (child_id, start_time, content_type, subject, content_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.ChildID, params.StartTime, params.ContentType, params.Subject, params.ContentID)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Close(ctx context.Context, params model.CloseSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			end_time = $2,
			duration_seconds = $3,
			points_earned = $4
		WHERE id = $1 AND end_time IS NULL
		RETURNING *
	`, params.ID, params.EndTime, params.DurationSeconds, params.PointsEarned)
	return HandleNotFound(&session, err)
}
