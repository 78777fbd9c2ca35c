package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/brightpath/safety-engine/internal/config"
	"github.com/brightpath/safety-engine/internal/database"
	"github.com/brightpath/safety-engine/internal/handler"
	"github.com/brightpath/safety-engine/internal/jobs"
	"github.com/brightpath/safety-engine/internal/middleware"
	"github.com/brightpath/safety-engine/internal/observability"
	"github.com/brightpath/safety-engine/internal/redis"
	"github.com/brightpath/safety-engine/internal/repository"
	"github.com/brightpath/safety-engine/internal/safety"
	"github.com/brightpath/safety-engine/internal/service"
	"github.com/brightpath/safety-engine/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := cfg.IsProduction()
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load timezone")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	classifier := safety.NewClassifier(nil)
	if cfg.LexiconPath != "" {
		if err := classifier.Reload(cfg.LexiconPath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.LexiconPath).Msg("failed to load lexicon")
		}
	}
	log.Info().Str("version", classifier.Version()).Msg("lexicon loaded")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(config.MetricsNamespace, registry)

	sessionRepo := repository.NewSessionRepository(db.DB)
	alertRepo := repository.NewAlertRepository(db.DB)
	profileRepo := repository.NewProfileRepository(db.DB)

	broker := sse.NewBroker(redisClient.Client)

	retry := service.NewRetryPolicy(cfg.StorageRetryMaxTries)

	alertService := service.NewAlertService(db, alertRepo, profileRepo, broker, metrics, retry)
	sessionService := service.NewSessionService(db, sessionRepo, profileRepo, alertService, metrics, service.SessionServiceConfig{
		DefaultDailyLimitMinutes: cfg.DefaultDailyLimitMinutes,
		BudgetAlertDebounce:      cfg.BudgetAlertDebounce,
		Location:                 loc,
		Retry:                    retry,
	})
	monitoringService := service.NewMonitoringService(
		classifier, alertService, sessionRepo, alertRepo, profileRepo, metrics,
		service.MonitoringServiceConfig{
			DefaultDailyLimitMinutes: cfg.DefaultDailyLimitMinutes,
			MaxWindowDays:            cfg.DashboardMaxWindowDays,
			Location:                 loc,
			Retry:                    retry,
		},
	)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer)
	contentCheckLimit := middleware.NewRateLimitMiddleware(
		middleware.NewRedisRateLimiter(redisClient.Client),
		"content-check", cfg.ContentCheckRateLimitPerMin, config.ContentCheckRateWindow,
	)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	eventsHandler := handler.NewEventsHandler(broker, alertService, metrics)
	monitoringHandler := handler.NewMonitoringHandler(
		sessionService, alertService, monitoringService, eventsHandler,
		handler.MonitoringHandlerConfig{
			RequestTimeout:    config.ServerRequestTimeout,
			ContentCheckLimit: contentCheckLimit.Handler,
		},
	)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("health check: database unreachable")
			status, code = "degraded", http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":         status,
			"lexiconVersion": classifier.Version(),
			"timestamp":      time.Now().UnixMilli(),
		})
	})

	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler(registry))

	r.Route("/v1/monitoring", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Mount("/", monitoringHandler.Routes())
	})

	var lexiconJob *jobs.LexiconReloadJob
	if cfg.LexiconPath != "" {
		lexiconJob = jobs.NewLexiconReloadJob(classifier, cfg.LexiconPath, config.LexiconPollInterval)
		lexiconJob.Start()
		defer lexiconJob.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range quit {
		if sig != syscall.SIGHUP {
			break
		}
		if lexiconJob == nil {
			log.Warn().Msg("SIGHUP ignored: LEXICON_PATH is not set")
			continue
		}
		log.Info().Msg("SIGHUP received, reloading lexicon")
		lexiconJob.Trigger()
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	// Open alert streams end once the broker closes, letting Shutdown drain.
	broker.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
