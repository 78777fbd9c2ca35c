package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/brightpath/safety-engine/internal/audit"
	"github.com/brightpath/safety-engine/internal/database"
	apperrors "github.com/brightpath/safety-engine/internal/errors"
	"github.com/brightpath/safety-engine/internal/model"
	"github.com/brightpath/safety-engine/internal/observability"
	"github.com/brightpath/safety-engine/internal/repository"
	"github.com/brightpath/safety-engine/internal/safety"
	"github.com/brightpath/safety-engine/internal/sse"
	"github.com/brightpath/safety-engine/internal/util"
)

// ChildLocker runs fn in a transaction that excludes every other writer for
// the same child.
type ChildLocker interface {
	WithChildLock(ctx context.Context, childID string, fn database.TxFunc) error
}

type AlertPublisher interface {
	Publish(ctx context.Context, childID string, event sse.Event) error
}

type RaiseAlertRequest struct {
	ChildID  string
	Type     model.AlertType
	Severity model.Severity
	Message  model.LocalizedText
	Guidance model.LocalizedText
	Source   model.AlertSource
	Metadata map[string]any
}

type AlertService struct {
	locker      ChildLocker
	alertRepo   repository.AlertRepository
	profileRepo repository.ProfileRepository
	publisher   AlertPublisher
	metrics     *observability.Metrics
	retry       RetryPolicy
	now         func() time.Time
}

func NewAlertService(
	locker ChildLocker,
	alertRepo repository.AlertRepository,
	profileRepo repository.ProfileRepository,
	publisher AlertPublisher,
	metrics *observability.Metrics,
	retry RetryPolicy,
) *AlertService {
	return &AlertService{
		locker:      locker,
		alertRepo:   alertRepo,
		profileRepo: profileRepo,
		publisher:   publisher,
		metrics:     metrics,
		retry:       retry,
		now:         time.Now,
	}
}

// Raise records a guardian-reported alert. The caller must guard the child.
func (s *AlertService) Raise(ctx context.Context, caller *model.Caller, req RaiseAlertRequest) (*model.Alert, error) {
	if req.Source == "" {
		req.Source = model.AlertSourceGuardian
	}
	if err := validateRaise(req); err != nil {
		return nil, err
	}

	profile, err := s.findProfile(ctx, req.ChildID)
	if err != nil {
		return nil, err
	}
	if err := authorizeGuardian(ctx, caller, profile, "alert.raise"); err != nil {
		return nil, err
	}

	alert, err := s.RaiseInternal(ctx, req)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventAlertRaisedManual,
		ActorID:   caller.ID,
		ActorRole: string(caller.Role),
		ChildID:   alert.ChildID,
		Details: map[string]interface{}{
			"alert_id": alert.ID,
			"type":     string(alert.Type),
			"severity": string(alert.Severity),
		},
	})
	return alert, nil
}

// RaiseInternal records an engine-generated alert in its own child-locked
// transaction and publishes it once committed. No permission check applies.
func (s *AlertService) RaiseInternal(ctx context.Context, req RaiseAlertRequest) (*model.Alert, error) {
	if err := validateRaise(req); err != nil {
		return nil, err
	}

	alert, err := retry(ctx, s.retry, s.metrics, "alert.raise", func() (*model.Alert, error) {
		var created *model.Alert
		err := s.locker.WithChildLock(ctx, req.ChildID, func(tx *sqlx.Tx) error {
			var err error
			created, err = s.RaiseWithin(ctx, tx, req)
			return err
		})
		return created, err
	})
	if err != nil {
		return nil, err
	}

	s.Notify(ctx, sse.EventAlertRaised, alert)
	return alert, nil
}

// RaiseWithin inserts an alert inside an existing transaction. The caller
// publishes it with Notify after commit.
func (s *AlertService) RaiseWithin(ctx context.Context, tx *sqlx.Tx, req RaiseAlertRequest) (*model.Alert, error) {
	if err := validateRaise(req); err != nil {
		return nil, err
	}

	params := model.CreateAlertParams{
		ChildID:  req.ChildID,
		Type:     req.Type,
		Severity: req.Severity,
		Message:  req.Message,
		Guidance: req.Guidance.Merge(safety.Guidance(req.Type)),
		Source:   req.Source,
	}
	if len(req.Metadata) > 0 {
		data, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, apperrors.InvalidInput("metadata", err.Error())
		}
		raw := json.RawMessage(data)
		params.Metadata = &raw
	}

	alert, err := s.alertRepo.WithTx(tx).Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}

	s.metrics.ObserveAlertRaised(string(alert.Type), string(alert.Severity), string(alert.Source))
	log.Info().
		Str("alertId", alert.ID).
		Str("childId", alert.ChildID).
		Str("type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Str("source", string(alert.Source)).
		Msg("Alert raised")

	return alert, nil
}

func (s *AlertService) countSinceWithin(ctx context.Context, tx *sqlx.Tx, childID string, alertType model.AlertType, since time.Time) (int, error) {
	return s.alertRepo.WithTx(tx).CountByChildTypeSince(ctx, childID, alertType, since)
}

func (s *AlertService) Resolve(ctx context.Context, caller *model.Caller, alertID string) (*model.Alert, error) {
	return s.transition(ctx, caller, alertID, model.AlertStatusResolved)
}

func (s *AlertService) Dismiss(ctx context.Context, caller *model.Caller, alertID string) (*model.Alert, error) {
	return s.transition(ctx, caller, alertID, model.AlertStatusDismissed)
}

func (s *AlertService) transition(ctx context.Context, caller *model.Caller, alertID string, to model.AlertStatus) (*model.Alert, error) {
	alert, err := retry(ctx, s.retry, s.metrics, "alert.find", func() (*model.Alert, error) {
		return s.alertRepo.FindByID(ctx, alertID)
	})
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, apperrors.NotFound("Alert")
	}

	profile, err := s.findProfile(ctx, alert.ChildID)
	if err != nil {
		return nil, err
	}
	if err := authorizeGuardian(ctx, caller, profile, "alert."+string(to)); err != nil {
		return nil, err
	}

	if alert.Status != model.AlertStatusActive {
		return nil, apperrors.InvalidTransition(string(alert.Status), string(to))
	}

	updated, err := retry(ctx, s.retry, s.metrics, "alert.transition", func() (*model.Alert, error) {
		var result *model.Alert
		err := s.locker.WithChildLock(ctx, alert.ChildID, func(tx *sqlx.Tx) error {
			repo := s.alertRepo.WithTx(tx)
			moved, err := repo.Transition(ctx, model.TransitionAlertParams{
				ID:         alert.ID,
				To:         to,
				ResolvedBy: caller.ID,
				ResolvedAt: s.now(),
			})
			if err != nil {
				return err
			}
			if moved == nil {
				// Lost a race with another resolver.
				current, err := repo.FindByID(ctx, alert.ID)
				if err != nil {
					return err
				}
				from := string(model.AlertStatusResolved)
				if current != nil {
					from = string(current.Status)
				}
				return apperrors.InvalidTransition(from, string(to))
			}
			result = moved
			return nil
		})
		return result, err
	})
	if err != nil {
		return nil, err
	}

	eventType := sse.EventAlertResolved
	auditType := audit.EventAlertResolved
	if to == model.AlertStatusDismissed {
		eventType = sse.EventAlertDismissed
		auditType = audit.EventAlertDismissed
	}

	s.metrics.ObserveAlertTransition(string(to))
	log.Info().
		Str("alertId", updated.ID).
		Str("childId", updated.ChildID).
		Str("status", string(updated.Status)).
		Str("resolvedBy", caller.ID).
		Msg("Alert transitioned")
	audit.Log(ctx, audit.Event{
		Type:      auditType,
		ActorID:   caller.ID,
		ActorRole: string(caller.Role),
		ChildID:   updated.ChildID,
		Details:   map[string]interface{}{"alert_id": updated.ID},
	})
	s.Notify(ctx, eventType, updated)

	return updated, nil
}

// List returns a child's alerts, most recent first. The child itself and its
// guardians may read them.
func (s *AlertService) List(ctx context.Context, caller *model.Caller, childID string, filter model.AlertFilter) ([]model.Alert, error) {
	if !util.IsValidEnum(string(filter.Status), model.AlertStatuses) {
		return nil, apperrors.InvalidInput("status", "unknown alert status")
	}
	if !util.IsValidEnum(string(filter.Type), model.AlertTypes) {
		return nil, apperrors.InvalidInput("type", "unknown alert type")
	}

	profile, err := s.findProfile(ctx, childID)
	if err != nil {
		return nil, err
	}
	if err := authorizeReader(ctx, caller, profile, "alert.list"); err != nil {
		return nil, err
	}

	alerts, err := retry(ctx, s.retry, s.metrics, "alert.list", func() ([]model.Alert, error) {
		return s.alertRepo.ListByChildID(ctx, childID, filter)
	})
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	return alerts, nil
}

// AuthorizeFeed checks that caller may follow the live alert feed of childID.
func (s *AlertService) AuthorizeFeed(ctx context.Context, caller *model.Caller, childID string) error {
	profile, err := s.findProfile(ctx, childID)
	if err != nil {
		return err
	}
	return authorizeGuardian(ctx, caller, profile, "alert.stream")
}

// Notify publishes an alert event. Failures are logged only: the alert is
// already committed.
func (s *AlertService) Notify(ctx context.Context, eventType string, alert *model.Alert) {
	if s.publisher == nil || alert == nil {
		return
	}
	event, err := sse.NewEvent(eventType, alert)
	if err == nil {
		err = s.publisher.Publish(ctx, alert.ChildID, event)
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("alertId", alert.ID).
			Str("eventType", eventType).
			Msg("Failed to publish alert event")
	}
}

func (s *AlertService) findProfile(ctx context.Context, childID string) (*model.ChildProfile, error) {
	return findProfile(ctx, s.profileRepo, s.retry, s.metrics, childID)
}

func findProfile(
	ctx context.Context,
	repo repository.ProfileRepository,
	policy RetryPolicy,
	metrics *observability.Metrics,
	childID string,
) (*model.ChildProfile, error) {
	if childID == "" {
		return nil, apperrors.MissingRequired("childId")
	}
	profile, err := retry(ctx, policy, metrics, "profile.find", func() (*model.ChildProfile, error) {
		return repo.FindByID(ctx, childID)
	})
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, apperrors.NotFound("Child")
	}
	return profile, nil
}

func validateRaise(req RaiseAlertRequest) error {
	if req.ChildID == "" {
		return apperrors.MissingRequired("childId")
	}
	if req.Type == "" || !util.IsValidEnum(string(req.Type), model.AlertTypes) {
		return apperrors.InvalidInput("type", "must be one of the alert types")
	}
	if req.Severity == "" || !util.IsValidEnum(string(req.Severity), model.Severities) {
		return apperrors.InvalidInput("severity", "must be low, medium, high or critical")
	}
	if req.Source == "" {
		return apperrors.MissingRequired("source")
	}
	if req.Message.IsEmpty() && req.Guidance.IsEmpty() && safety.Guidance(req.Type).IsEmpty() {
		return apperrors.ValidationError("message or guidance is required")
	}
	return nil
}
