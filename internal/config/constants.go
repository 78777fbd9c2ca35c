package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Storage retry backoff
const (
	StorageRetryInitialInterval = 50 * time.Millisecond
	StorageRetryMaxInterval     = 1 * time.Second
)

// Monitoring defaults
const (
	DefaultDashboardWindowDays = 7
	DashboardRecentSessions    = 10
)

// Rate limiting window for content checks
const ContentCheckRateWindow = 60 * time.Second

// Prometheus namespace
const MetricsNamespace = "safety_engine"

// Lexicon file polling for hot reload
const LexiconPollInterval = 30 * time.Second
