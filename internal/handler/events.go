package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/brightpath/safety-engine/internal/errors"
	"github.com/brightpath/safety-engine/internal/middleware"
	"github.com/brightpath/safety-engine/internal/model"
	"github.com/brightpath/safety-engine/internal/observability"
	"github.com/brightpath/safety-engine/internal/sse"
)

// AlertFeed hands out per-child event subscriptions.
type AlertFeed interface {
	Subscribe(childID string) *sse.Client
	Unsubscribe(client *sse.Client)
}

// FeedAuthorizer decides who may follow a child's alerts.
type FeedAuthorizer interface {
	AuthorizeFeed(ctx context.Context, caller *model.Caller, childID string) error
}

type EventsHandler struct {
	feed      AlertFeed
	auth      FeedAuthorizer
	metrics   *observability.Metrics
	heartbeat time.Duration
}

func NewEventsHandler(feed AlertFeed, auth FeedAuthorizer, metrics *observability.Metrics) *EventsHandler {
	return &EventsHandler{
		feed:      feed,
		auth:      auth,
		metrics:   metrics,
		heartbeat: sse.HeartbeatInterval,
	}
}

// GET /v1/monitoring/children/{childId}/alerts/stream
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	childID, err := childIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.auth.AuthorizeFeed(r.Context(), caller, childID); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.feed.Subscribe(childID)
	defer h.feed.Unsubscribe(client)

	h.metrics.AlertFeedConnected()
	defer h.metrics.AlertFeedDisconnected()

	log.Info().
		Str("childId", childID).
		Str("callerId", caller.ID).
		Msg("Alert feed connected")

	if err := h.sendEvent(w, flusher, "connected", map[string]any{
		"childId": childID,
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("childId", childID).
				Str("callerId", caller.ID).
				Msg("Alert feed closed by client")
			return

		case <-client.Done:
			log.Info().
				Str("childId", childID).
				Msg("Alert feed closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Str("childId", childID).Msg("Failed to send alert event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("childId", childID).
					Msg("Heartbeat failed, closing alert feed")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
