package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brightpath/safety-engine/internal/config"
	apperrors "github.com/brightpath/safety-engine/internal/errors"
	"github.com/brightpath/safety-engine/internal/model"
	"github.com/brightpath/safety-engine/internal/observability"
	"github.com/brightpath/safety-engine/internal/repository"
	"github.com/brightpath/safety-engine/internal/safety"
)

type ContentClassifier interface {
	Classify(text string) safety.Verdict
}

type MonitoringServiceConfig struct {
	DefaultDailyLimitMinutes int
	MaxWindowDays            int
	Location                 *time.Location
	Retry                    RetryPolicy
}

type CheckContentRequest struct {
	ChildID string
	Text    string
	Source  model.AlertSource
	// Locale is the guardian's display language. Child callers always get
	// their profile locale.
	Locale model.Locale
}

type ContentCheckResult struct {
	Verdict  safety.Verdict
	Locale   model.Locale
	Guidance string
	Alert    *model.Alert
}

// MonitoringService runs content checks and builds guardian dashboards.
type MonitoringService struct {
	classifier  ContentClassifier
	alerts      *AlertService
	sessionRepo repository.SessionRepository
	alertRepo   repository.AlertRepository
	profileRepo repository.ProfileRepository
	metrics     *observability.Metrics
	cfg         MonitoringServiceConfig
	now         func() time.Time
}

func NewMonitoringService(
	classifier ContentClassifier,
	alerts *AlertService,
	sessionRepo repository.SessionRepository,
	alertRepo repository.AlertRepository,
	profileRepo repository.ProfileRepository,
	metrics *observability.Metrics,
	cfg MonitoringServiceConfig,
) *MonitoringService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxWindowDays <= 0 {
		cfg.MaxWindowDays = 90
	}
	if cfg.DefaultDailyLimitMinutes <= 0 {
		cfg.DefaultDailyLimitMinutes = 60
	}
	return &MonitoringService{
		classifier:  classifier,
		alerts:      alerts,
		sessionRepo: sessionRepo,
		alertRepo:   alertRepo,
		profileRepo: profileRepo,
		metrics:     metrics,
		cfg:         cfg,
		now:         time.Now,
	}
}

// CheckContent classifies text for a child and raises an alert when it is
// unsafe. Children check their own content; guardians name the child.
func (s *MonitoringService) CheckContent(ctx context.Context, caller *model.Caller, req CheckContentRequest) (*ContentCheckResult, error) {
	if caller == nil {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	switch req.Source {
	case "":
		req.Source = model.AlertSourceContentFilter
	case model.AlertSourceContentFilter, model.AlertSourceChat:
	default:
		return nil, apperrors.InvalidInput("source", "must be content_filter or chat")
	}

	var profile *model.ChildProfile
	var err error
	if caller.Role == model.RoleChild {
		childID, err := requireChildCaller(ctx, caller, req.ChildID, "content.check")
		if err != nil {
			return nil, err
		}
		if profile, err = findProfile(ctx, s.profileRepo, s.cfg.Retry, s.metrics, childID); err != nil {
			return nil, err
		}
	} else {
		if profile, err = findProfile(ctx, s.profileRepo, s.cfg.Retry, s.metrics, req.ChildID); err != nil {
			return nil, err
		}
		if err := authorizeGuardian(ctx, caller, profile, "content.check"); err != nil {
			return nil, err
		}
	}

	verdict := s.classifier.Classify(req.Text)
	s.metrics.ObserveContentCheck(string(verdict.Reason), string(verdict.Severity))

	locale := profile.PreferredLocale()
	if caller.Role != model.RoleChild && req.Locale != "" {
		locale = req.Locale
	}
	result := &ContentCheckResult{Verdict: verdict, Locale: locale}
	if verdict.IsSafe {
		return result, nil
	}

	guidance := safety.Guidance(verdict.Reason)
	result.Guidance = guidance.Get(locale)

	alert, err := s.alerts.RaiseInternal(ctx, RaiseAlertRequest{
		ChildID:  profile.ID,
		Type:     verdict.Reason,
		Severity: verdict.Severity,
		Message:  verdict.Message,
		Guidance: guidance,
		Source:   req.Source,
		Metadata: map[string]any{
			"text":           req.Text,
			"lexiconVersion": verdict.LexiconVersion,
		},
	})
	if err != nil {
		return nil, err
	}
	result.Alert = alert

	log.Info().
		Str("childId", profile.ID).
		Str("reason", string(verdict.Reason)).
		Str("severity", string(verdict.Severity)).
		Str("lexiconVersion", verdict.LexiconVersion).
		Str("alertId", alert.ID).
		Msg("Unsafe content detected")

	return result, nil
}

// BuildDashboard summarizes the trailing windowDays for a guardian. Storage
// failures are returned, never rendered as an empty snapshot.
func (s *MonitoringService) BuildDashboard(ctx context.Context, caller *model.Caller, childID string, windowDays int) (*DashboardSnapshot, error) {
	if windowDays == 0 {
		windowDays = config.DefaultDashboardWindowDays
	}
	if windowDays < 1 || windowDays > s.cfg.MaxWindowDays {
		return nil, apperrors.InvalidInput("days", "out of range").
			WithDetails(map[string]int{"min": 1, "max": s.cfg.MaxWindowDays})
	}

	profile, err := findProfile(ctx, s.profileRepo, s.cfg.Retry, s.metrics, childID)
	if err != nil {
		return nil, err
	}
	if err := authorizeGuardian(ctx, caller, profile, "dashboard.read"); err != nil {
		return nil, err
	}

	now := s.now()
	from := now.AddDate(0, 0, -windowDays)

	type windowData struct {
		sessions []model.Session
		alerts   []model.Alert
	}
	data, err := retry(ctx, s.cfg.Retry, s.metrics, "dashboard.build", func() (windowData, error) {
		sessions, err := s.sessionRepo.FindByChildIDBetween(ctx, childID, from, now)
		if err != nil {
			return windowData{}, err
		}
		alerts, err := s.alertRepo.FindByChildIDBetween(ctx, childID, from, now)
		if err != nil {
			return windowData{}, err
		}
		return windowData{sessions: sessions, alerts: alerts}, nil
	})
	if err != nil {
		s.metrics.ObserveDashboardBuild("error")
		log.Error().Err(err).Str("childId", childID).Msg("Dashboard build failed")
		return nil, err
	}

	snapshot := BuildSnapshot(SnapshotInput{
		Profile:             profile,
		Sessions:            data.sessions,
		Alerts:              data.alerts,
		Now:                 now,
		WindowDays:          windowDays,
		Location:            s.cfg.Location,
		DefaultLimitMinutes: s.cfg.DefaultDailyLimitMinutes,
	})
	s.metrics.ObserveDashboardBuild("ok")
	return snapshot, nil
}
