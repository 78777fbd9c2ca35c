package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/brightpath/safety-engine/internal/database"
	"github.com/brightpath/safety-engine/internal/model"
)

type AlertRepository interface {
	FindByID(ctx context.Context, id string) (*model.Alert, error)
	ListByChildID(ctx context.Context, childID string, filter model.AlertFilter) ([]model.Alert, error)
	FindByChildIDBetween(ctx context.Context, childID string, from, to time.Time) ([]model.Alert, error)
	CountByChildTypeSince(ctx context.Context, childID string, alertType model.AlertType, since time.Time) (int, error)
	Create(ctx context.Context, params model.CreateAlertParams) (*model.Alert, error)
	// Transition moves an active alert to a terminal status. It returns nil
	// without error when the alert is no longer active.
	Transition(ctx context.Context, params model.TransitionAlertParams) (*model.Alert, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AlertRepository
}

type alertRepo struct {
	db database.DBTX
}

func NewAlertRepository(db *sqlx.DB) AlertRepository {
	return &alertRepo{db: db}
}

func (r *alertRepo) WithTx(tx *sqlx.Tx) AlertRepository {
	return &alertRepo{db: tx}
}

func (r *alertRepo) FindByID(ctx context.Context, id string) (*model.Alert, error) {
	var alert model.Alert
	err := r.db.GetContext(ctx, &alert, `SELECT * FROM alerts WHERE id = $1`, id)
	return HandleNotFound(&alert, err)
}

func (r *alertRepo) ListByChildID(ctx context.Context, childID string, filter model.AlertFilter) ([]model.Alert, error) {
	conditions := []string{"child_id = $1"}
	args := []any{childID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}

	query := `
		SELECT * FROM alerts
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var alerts []model.Alert
	err := r.db.SelectContext(ctx, &alerts, query, args...)
	return alerts, err
}

func (r *alertRepo) FindByChildIDBetween(ctx context.Context, childID string, from, to time.Time) ([]model.Alert, error) {
	var alerts []model.Alert
	err := r.db.SelectContext(ctx, &alerts, `
		SELECT * FROM alerts
		WHERE child_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC, id DESC
	`, childID, from, to)
	return alerts, err
}

func (r *alertRepo) CountByChildTypeSince(ctx context.Context, childID string, alertType model.AlertType, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM alerts
		WHERE child_id = $1 AND type = $2 AND created_at >= $3
	`, childID, alertType, since)
	return count, err
}

func (r *alertRepo) Create(ctx context.Context, params model.CreateAlertParams) (*model.Alert, error) {
	var alert model.Alert
	err := r.db.GetContext(ctx, &alert, `
		INSERT INTO alerts (child_id, type, severity, message, guidance, source, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.ChildID, params.Type, params.Severity, params.Message, params.Guidance,
		params.Source, jsonParam(params.Metadata))
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *alertRepo) Transition(ctx context.Context, params model.TransitionAlertParams) (*model.Alert, error) {
	var alert model.Alert
	err := r.db.GetContext(ctx, &alert, `
		UPDATE alerts SET
			status = $2,
			resolved_by = $3,
			resolved_at = $4
		WHERE id = $1 AND status = 'active'
		RETURNING *
	`, params.ID, params.To, params.ResolvedBy, params.ResolvedAt)
	return HandleNotFound(&alert, err)
}

// jsonParam passes raw JSON as text; lib/pq would otherwise encode []byte as bytea.
func jsonParam(raw *json.RawMessage) *string {
	if raw == nil || len(*raw) == 0 {
		return nil
	}
	s := string(*raw)
	return &s
}
