package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ContentChecks    *prometheus.CounterVec
	AlertsRaised     *prometheus.CounterVec
	AlertTransitions *prometheus.CounterVec
	SessionsStarted  prometheus.Counter
	SessionsClosed   prometheus.Counter
	SessionDuration  prometheus.Histogram
	BudgetExceeded   prometheus.Counter
	DashboardBuilds  *prometheus.CounterVec
	StorageRetries   *prometheus.CounterVec
	AlertFeedClients prometheus.Gauge
}

// NewMetrics registers the instruments with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ContentChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_checks_total",
			Help:      "Content safety checks by verdict reason (safe when clean).",
		}, []string{"reason", "severity"}),
		AlertsRaised: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by type, severity and source.",
		}, []string{"type", "severity", "source"}),
		AlertTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "Alert status transitions by target status.",
		}, []string{"status"}),
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Learning sessions opened.",
		}),
		SessionsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Learning sessions closed.",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of closed learning sessions.",
			Buckets:   []float64{60, 300, 600, 1200, 1800, 3600, 7200},
		}),
		BudgetExceeded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_exceeded_total",
			Help:      "Session closes that left a child over the daily time budget.",
		}),
		DashboardBuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_builds_total",
			Help:      "Dashboard snapshot builds by outcome.",
		}, []string{"outcome"}),
		StorageRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_retries_total",
			Help:      "Retried storage operations by operation name.",
		}, []string{"operation"}),
		AlertFeedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_feed_clients",
			Help:      "Connected live alert feed clients.",
		}),
	}
}

func (m *Metrics) ObserveContentCheck(reason, severity string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "safe"
	}
	m.ContentChecks.WithLabelValues(reason, severity).Inc()
}

func (m *Metrics) ObserveAlertRaised(alertType, severity, source string) {
	if m == nil {
		return
	}
	m.AlertsRaised.WithLabelValues(alertType, severity, source).Inc()
}

func (m *Metrics) ObserveAlertTransition(status string) {
	if m == nil {
		return
	}
	m.AlertTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

func (m *Metrics) ObserveSessionClosed(d time.Duration, exceeded bool) {
	if m == nil {
		return
	}
	m.SessionsClosed.Inc()
	m.SessionDuration.Observe(d.Seconds())
	if exceeded {
		m.BudgetExceeded.Inc()
	}
}

func (m *Metrics) ObserveDashboardBuild(outcome string) {
	if m == nil {
		return
	}
	m.DashboardBuilds.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStorageRetry(operation string) {
	if m == nil {
		return
	}
	m.StorageRetries.WithLabelValues(operation).Inc()
}

func (m *Metrics) AlertFeedConnected() {
	if m == nil {
		return
	}
	m.AlertFeedClients.Inc()
}

func (m *Metrics) AlertFeedDisconnected() {
	if m == nil {
		return
	}
	m.AlertFeedClients.Dec()
}

func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
