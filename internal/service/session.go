package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/brightpath/safety-engine/internal/database"
	apperrors "github.com/brightpath/safety-engine/internal/errors"
	"github.com/brightpath/safety-engine/internal/model"
	"github.com/brightpath/safety-engine/internal/observability"
	"github.com/brightpath/safety-engine/internal/repository"
	"github.com/brightpath/safety-engine/internal/sse"
	"github.com/brightpath/safety-engine/internal/util"
)

type SessionServiceConfig struct {
	DefaultDailyLimitMinutes int
	BudgetAlertDebounce      bool
	Location                 *time.Location
	Retry                    RetryPolicy
}

type StartSessionRequest struct {
	ChildID     string
	ContentType model.ContentType
	Subject     *model.Subject
	ContentID   *string
}

type EndSessionResult struct {
	Session *model.Session `json:"session"`
	Budget  BudgetDecision `json:"budget"`
	Alert   *model.Alert   `json:"alert,omitempty"`
}

// SessionService tracks learning sessions and evaluates the daily time budget
// whenever one closes.
type SessionService struct {
	locker      ChildLocker
	sessionRepo repository.SessionRepository
	profileRepo repository.ProfileRepository
	alerts      *AlertService
	metrics     *observability.Metrics
	cfg         SessionServiceConfig
	now         func() time.Time
}

func NewSessionService(
	locker ChildLocker,
	sessionRepo repository.SessionRepository,
	profileRepo repository.ProfileRepository,
	alerts *AlertService,
	metrics *observability.Metrics,
	cfg SessionServiceConfig,
) *SessionService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DefaultDailyLimitMinutes <= 0 {
		cfg.DefaultDailyLimitMinutes = 60
	}
	return &SessionService{
		locker:      locker,
		sessionRepo: sessionRepo,
		profileRepo: profileRepo,
		alerts:      alerts,
		metrics:     metrics,
		cfg:         cfg,
		now:         time.Now,
	}
}

// StartSession opens a session for the calling child. A child has at most one
// open session at a time.
func (s *SessionService) StartSession(ctx context.Context, caller *model.Caller, req StartSessionRequest) (*model.Session, error) {
	childID, err := requireChildCaller(ctx, caller, req.ChildID, "session.start")
	if err != nil {
		return nil, err
	}
	if req.ContentType == "" {
		return nil, apperrors.MissingRequired("contentType")
	}
	if !util.IsValidEnum(string(req.ContentType), model.ContentTypes) {
		return nil, apperrors.InvalidInput("contentType", "must be game, quest, creative or explore")
	}
	if req.Subject != nil && !util.IsValidEnum(string(*req.Subject), model.Subjects) {
		return nil, apperrors.InvalidInput("subject", "unknown subject")
	}
	if req.ContentID != nil && strings.TrimSpace(*req.ContentID) == "" {
		req.ContentID = nil
	}

	if _, err := findProfile(ctx, s.profileRepo, s.cfg.Retry, s.metrics, childID); err != nil {
		return nil, err
	}

	session, err := retry(ctx, s.cfg.Retry, s.metrics, "session.start", func() (*model.Session, error) {
		var created *model.Session
		err := s.locker.WithChildLock(ctx, childID, func(tx *sqlx.Tx) error {
			repo := s.sessionRepo.WithTx(tx)
			open, err := repo.FindOpenByChildID(ctx, childID)
			if err != nil {
				return err
			}
			if open != nil {
				return apperrors.SessionAlreadyOpen(open.ID)
			}
			created, err = repo.Create(ctx, model.CreateSessionParams{
				ChildID:     childID,
				StartTime:   s.now(),
				ContentType: req.ContentType,
				Subject:     req.Subject,
				ContentID:   req.ContentID,
			})
			if database.IsUniqueViolation(err) {
				return apperrors.SessionAlreadyOpen("")
			}
			return err
		})
		return created, err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveSessionStarted()
	log.Info().
		Str("sessionId", session.ID).
		Str("childId", childID).
		Str("contentType", string(session.ContentType)).
		Msg("Session started")

	return session, nil
}

// EndSession closes the caller's session exactly once, then evaluates the
// daily budget and raises an alert when it is exceeded. Close, evaluation and
// alert insert commit together.
func (s *SessionService) EndSession(ctx context.Context, caller *model.Caller, sessionID string, pointsEarned int) (*EndSessionResult, error) {
	if caller == nil || caller.Role != model.RoleChild {
		denyAccess(ctx, caller, "", "session.end")
		return nil, apperrors.Forbidden("Only the child can end its own session")
	}
	if pointsEarned < 0 {
		return nil, apperrors.InvalidInput("pointsEarned", "must not be negative")
	}

	existing, err := retry(ctx, s.cfg.Retry, s.metrics, "session.find", func() (*model.Session, error) {
		return s.sessionRepo.FindByID(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.ChildID != caller.ID {
		return nil, apperrors.NotFound("Session")
	}
	if !existing.IsOpen() {
		return nil, apperrors.AlreadyClosed()
	}

	result, err := retry(ctx, s.cfg.Retry, s.metrics, "session.end", func() (*EndSessionResult, error) {
		var out *EndSessionResult
		err := s.locker.WithChildLock(ctx, existing.ChildID, func(tx *sqlx.Tx) error {
			var err error
			out, err = s.closeWithin(ctx, tx, existing.ID, existing.ChildID, pointsEarned)
			return err
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}

	closed := result.Session
	s.metrics.ObserveSessionClosed(time.Duration(closed.DurationSeconds)*time.Second, result.Budget.Exceeded)
	log.Info().
		Str("sessionId", closed.ID).
		Str("childId", closed.ChildID).
		Int64("durationSeconds", closed.DurationSeconds).
		Int("pointsEarned", closed.PointsEarned).
		Int64("usedSeconds", result.Budget.UsedSeconds).
		Int64("limitSeconds", result.Budget.LimitSeconds).
		Msg("Session closed")

	if result.Budget.Exceeded {
		log.Warn().
			Str("childId", closed.ChildID).
			Int64("usedSeconds", result.Budget.UsedSeconds).
			Int("limitMinutes", result.Budget.LimitMinutes).
			Bool("debounced", result.Budget.Debounced).
			Msg("Daily time budget exceeded")
	}
	if result.Alert != nil {
		s.alerts.Notify(ctx, sse.EventAlertRaised, result.Alert)
	}

	return result, nil
}

func (s *SessionService) closeWithin(ctx context.Context, tx *sqlx.Tx, sessionID, childID string, points int) (*EndSessionResult, error) {
	repo := s.sessionRepo.WithTx(tx)

	current, err := repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.NotFound("Session")
	}
	if !current.IsOpen() {
		return nil, apperrors.AlreadyClosed()
	}

	end := s.now()
	if end.Before(current.StartTime) {
		end = current.StartTime
	}
	closed, err := repo.Close(ctx, model.CloseSessionParams{
		ID:              current.ID,
		EndTime:         end,
		DurationSeconds: int64(end.Sub(current.StartTime) / time.Second),
		PointsEarned:    points,
	})
	if err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}
	if closed == nil {
		return nil, apperrors.AlreadyClosed()
	}

	decision, err := s.evaluateWithin(ctx, tx, childID, end)
	if err != nil {
		return nil, err
	}
	result := &EndSessionResult{Session: closed, Budget: decision}
	if !decision.Exceeded {
		return result, nil
	}

	if s.cfg.BudgetAlertDebounce {
		count, err := s.alerts.countSinceWithin(ctx, tx, childID, model.AlertTypeExcessiveGaming, decision.DayStart)
		if err != nil {
			return nil, fmt.Errorf("count budget alerts: %w", err)
		}
		if count > 0 {
			result.Budget.Debounced = true
			return result, nil
		}
	}

	alert, err := s.alerts.RaiseWithin(ctx, tx, budgetAlertRequest(childID, decision.LimitMinutes, decision))
	if err != nil {
		return nil, err
	}
	result.Alert = alert
	result.Budget.AlertID = &alert.ID
	return result, nil
}

func (s *SessionService) evaluateWithin(ctx context.Context, tx *sqlx.Tx, childID string, asOf time.Time) (BudgetDecision, error) {
	profile, err := s.profileRepo.WithTx(tx).FindByID(ctx, childID)
	if err != nil {
		return BudgetDecision{}, fmt.Errorf("load profile: %w", err)
	}
	limit := s.cfg.DefaultDailyLimitMinutes
	if profile != nil {
		limit = profile.LimitMinutes(limit)
	}

	dayStart, dayEnd := localDay(asOf, s.cfg.Location)
	used, err := s.sessionRepo.WithTx(tx).SumDurationBetween(ctx, childID, dayStart, dayEnd)
	if err != nil {
		return BudgetDecision{}, fmt.Errorf("sum durations: %w", err)
	}

	decision := EvaluateBudget(used, limit)
	decision.ChildID = childID
	decision.DayStart = dayStart
	decision.Day = dayStart.Format(dayKeyLayout)
	return decision, nil
}

// EvaluateDailyBudget reports the budget for the local day containing asOf
// without raising anything.
func (s *SessionService) EvaluateDailyBudget(ctx context.Context, caller *model.Caller, childID string, asOf time.Time) (*BudgetDecision, error) {
	profile, err := findProfile(ctx, s.profileRepo, s.cfg.Retry, s.metrics, childID)
	if err != nil {
		return nil, err
	}
	if err := authorizeReader(ctx, caller, profile, "budget.read"); err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}

	dayStart, dayEnd := localDay(asOf, s.cfg.Location)
	used, err := retry(ctx, s.cfg.Retry, s.metrics, "budget.evaluate", func() (int64, error) {
		return s.sessionRepo.SumDurationBetween(ctx, childID, dayStart, dayEnd)
	})
	if err != nil {
		return nil, err
	}

	decision := EvaluateBudget(used, profile.LimitMinutes(s.cfg.DefaultDailyLimitMinutes))
	decision.ChildID = childID
	decision.DayStart = dayStart
	decision.Day = dayStart.Format(dayKeyLayout)
	return &decision, nil
}

// GetSession returns a session to its child or to the child's guardians.
func (s *SessionService) GetSession(ctx context.Context, caller *model.Caller, sessionID string) (*model.Session, error) {
	session, err := retry(ctx, s.cfg.Retry, s.metrics, "session.find", func() (*model.Session, error) {
		return s.sessionRepo.FindByID(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}

	profile, err := findProfile(ctx, s.profileRepo, s.cfg.Retry, s.metrics, session.ChildID)
	if err != nil {
		return nil, err
	}
	if err := authorizeReader(ctx, caller, profile, "session.read"); err != nil {
		// Do not reveal sessions of other children.
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

// requireChildCaller resolves the child a child-only operation acts on: the
// caller itself. Any other target is forbidden.
func requireChildCaller(ctx context.Context, caller *model.Caller, requested, action string) (string, error) {
	if caller == nil || caller.Role != model.RoleChild {
		denyAccess(ctx, caller, requested, action)
		return "", apperrors.Forbidden("Only a child can perform this action for itself")
	}
	if requested != "" && requested != caller.ID {
		denyAccess(ctx, caller, requested, action)
		return "", apperrors.Forbidden("A child can only act for itself")
	}
	return caller.ID, nil
}
