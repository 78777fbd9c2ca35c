package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventAlertRaisedManual EventType = "alert_raised_manual"
	EventAlertResolved     EventType = "alert_resolved"
	EventAlertDismissed    EventType = "alert_dismissed"
	EventAccessDenied      EventType = "access_denied"
	EventAuthFailure       EventType = "auth_failure"
	EventRateLimitExceed   EventType = "rate_limit_exceeded"
	EventLexiconReload     EventType = "lexicon_reload"
)

type Event struct {
	Type      EventType
	ActorID   string
	ActorRole string
	ChildID   string
	IP        string
	UserAgent string
	RequestID string
	Details   map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.RequestID == "" && ctx != nil {
		event.RequestID = middleware.GetReqID(ctx)
	}

	e := logger.Info()
	e = optionalStr(e, "actor_id", event.ActorID)
	e = optionalStr(e, "actor_role", event.ActorRole)
	e = optionalStr(e, "child_id", event.ChildID)
	e = optionalStr(e, "ip", event.IP)
	e = optionalStr(e, "user_agent", event.UserAgent)
	e = optionalStr(e, "request_id", event.RequestID)
	for k, v := range event.Details {
		e = addField(e, k, v)
	}
	e.Msg("security audit event")
}

func optionalStr(e *zerolog.Event, key, value string) *zerolog.Event {
	if value == "" {
		return e
	}
	return e.Str(key, value)
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = r.RemoteAddr
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}
