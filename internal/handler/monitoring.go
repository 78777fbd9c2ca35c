package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apperrors "github.com/brightpath/safety-engine/internal/errors"
	"github.com/brightpath/safety-engine/internal/middleware"
	"github.com/brightpath/safety-engine/internal/model"
	"github.com/brightpath/safety-engine/internal/service"
)

type MonitoringHandlerConfig struct {
	// RequestTimeout applies to every route except the alert stream.
	RequestTimeout time.Duration
	// ContentCheckLimit wraps the content check route, typically with the
	// redis rate limiter.
	ContentCheckLimit func(http.Handler) http.Handler
}

type MonitoringHandler struct {
	sessions   *service.SessionService
	alerts     *service.AlertService
	monitoring *service.MonitoringService
	events     *EventsHandler
	cfg        MonitoringHandlerConfig
}

func NewMonitoringHandler(
	sessions *service.SessionService,
	alerts *service.AlertService,
	monitoring *service.MonitoringService,
	events *EventsHandler,
	cfg MonitoringHandlerConfig,
) *MonitoringHandler {
	return &MonitoringHandler{
		sessions:   sessions,
		alerts:     alerts,
		monitoring: monitoring,
		events:     events,
		cfg:        cfg,
	}
}

func (h *MonitoringHandler) Routes() chi.Router {
	r := chi.NewRouter()

	if h.events != nil {
		r.Get("/children/{childId}/alerts/stream", h.events.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		if h.cfg.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(h.cfg.RequestTimeout))
		}

		r.Post("/sessions/start", h.StartSession)
		r.Get("/sessions/{sessionId}", h.GetSession)
		r.Post("/sessions/{sessionId}/end", h.EndSession)

		checkContent := http.Handler(http.HandlerFunc(h.CheckContent))
		if h.cfg.ContentCheckLimit != nil {
			checkContent = h.cfg.ContentCheckLimit(checkContent)
		}
		r.Method(http.MethodPost, "/check-content", checkContent)

		r.Get("/children/{childId}/alerts", h.ListAlerts)
		r.Post("/children/{childId}/alerts", h.RaiseAlert)
		r.Get("/children/{childId}/dashboard", h.Dashboard)
		r.Get("/children/{childId}/budget", h.Budget)

		r.Post("/alerts/{alertId}/resolve", h.ResolveAlert)
		r.Post("/alerts/{alertId}/dismiss", h.DismissAlert)
	})

	return r
}

// POST /v1/monitoring/sessions/start
func (h *MonitoringHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChildID     string         `json:"childId"`
		ContentType string         `json:"contentType"`
		Subject     *model.Subject `json:"subject"`
		ContentID   *string        `json:"contentId"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.StartSession(r.Context(), middleware.GetCaller(r.Context()), service.StartSessionRequest{
		ChildID:     req.ChildID,
		ContentType: model.ContentType(req.ContentType),
		Subject:     req.Subject,
		ContentID:   req.ContentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"session": session})
}

// GET /v1/monitoring/sessions/{sessionId}
func (h *MonitoringHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionId")
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), middleware.GetCaller(r.Context()), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

// POST /v1/monitoring/sessions/{sessionId}/end
func (h *MonitoringHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionId")
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		PointsEarned int `json:"pointsEarned"`
	}
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.sessions.EndSession(r.Context(), middleware.GetCaller(r.Context()), sessionID, req.PointsEarned)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type checkContentResponse struct {
	IsSafe         bool                `json:"isSafe"`
	Reason         model.AlertType     `json:"reason,omitempty"`
	Severity       model.Severity      `json:"severity,omitempty"`
	Message        string              `json:"message,omitempty"`
	Messages       model.LocalizedText `json:"messages,omitempty"`
	Guidance       string              `json:"guidance,omitempty"`
	Locale         model.Locale        `json:"locale"`
	LexiconVersion string              `json:"lexiconVersion"`
	AlertID        string              `json:"alertId,omitempty"`
}

// POST /v1/monitoring/check-content
func (h *MonitoringHandler) CheckContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChildID string          `json:"childId"`
		Text    json.RawMessage `json:"text"`
		Source  string          `json:"source"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	// Anything but a JSON string is treated as empty text.
	var text string
	_ = json.Unmarshal(req.Text, &text)

	check := service.CheckContentRequest{
		ChildID: req.ChildID,
		Text:    text,
		Source:  model.AlertSource(req.Source),
	}
	if locale, ok := model.ParseLocale(r.Header.Get("Accept-Language")); ok {
		check.Locale = locale
	}

	result, err := h.monitoring.CheckContent(r.Context(), middleware.GetCaller(r.Context()), check)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := checkContentResponse{
		IsSafe:         result.Verdict.IsSafe,
		Reason:         result.Verdict.Reason,
		Severity:       result.Verdict.Severity,
		Message:        result.Verdict.Message.Get(result.Locale),
		Messages:       result.Verdict.Message,
		Guidance:       result.Guidance,
		Locale:         result.Locale,
		LexiconVersion: result.Verdict.LexiconVersion,
	}
	if result.Alert != nil {
		resp.AlertID = result.Alert.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /v1/monitoring/children/{childId}/alerts
func (h *MonitoringHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	childID, err := childIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	limit, offset := parsePage(r)
	filter := model.AlertFilter{
		Status: model.AlertStatus(r.URL.Query().Get("status")),
		Type:   model.AlertType(r.URL.Query().Get("type")),
		Limit:  limit,
		Offset: offset,
	}

	alerts, err := h.alerts.List(r.Context(), middleware.GetCaller(r.Context()), childID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"limit":  limit,
		"offset": offset,
	})
}

// POST /v1/monitoring/children/{childId}/alerts
func (h *MonitoringHandler) RaiseAlert(w http.ResponseWriter, r *http.Request) {
	childID, err := childIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Type       string         `json:"type"`
		Severity   string         `json:"severity"`
		Message    string         `json:"message"`
		MessageAr  string         `json:"messageAr"`
		Guidance   string         `json:"guidanceText"`
		GuidanceAr string         `json:"guidanceTextAr"`
		Metadata   map[string]any `json:"metadata"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	alert, err := h.alerts.Raise(r.Context(), middleware.GetCaller(r.Context()), service.RaiseAlertRequest{
		ChildID:  childID,
		Type:     model.AlertType(req.Type),
		Severity: model.Severity(req.Severity),
		Message:  model.NewLocalizedText(req.Message, req.MessageAr),
		Guidance: model.NewLocalizedText(req.Guidance, req.GuidanceAr),
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"alert": alert})
}

// GET /v1/monitoring/children/{childId}/dashboard?days=7
func (h *MonitoringHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	childID, err := childIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	days, err := intQuery(r, "days", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	snapshot, err := h.monitoring.BuildDashboard(r.Context(), middleware.GetCaller(r.Context()), childID, days)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// GET /v1/monitoring/children/{childId}/budget?at=2026-05-10T12:00:00Z
func (h *MonitoringHandler) Budget(w http.ResponseWriter, r *http.Request) {
	childID, err := childIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var asOf time.Time
	if raw := r.URL.Query().Get("at"); raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, apperrors.InvalidInput("at", "must be an RFC 3339 timestamp"))
			return
		}
	}

	decision, err := h.sessions.EvaluateDailyBudget(r.Context(), middleware.GetCaller(r.Context()), childID, asOf)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// POST /v1/monitoring/alerts/{alertId}/resolve
func (h *MonitoringHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, h.alerts.Resolve)
}

// POST /v1/monitoring/alerts/{alertId}/dismiss
func (h *MonitoringHandler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, h.alerts.Dismiss)
}

type alertTransition func(ctx context.Context, caller *model.Caller, alertID string) (*model.Alert, error)

func (h *MonitoringHandler) transitionAlert(w http.ResponseWriter, r *http.Request, move alertTransition) {
	alertID, err := uuidParam(r, "alertId")
	if err != nil {
		writeError(w, err)
		return
	}

	alert, err := move(r.Context(), middleware.GetCaller(r.Context()), alertID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"alert": alert})
}
