// Attention Labs - engagement monitor and adaptive prompt server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/attention-labs/internal/api"
	"github.com/ashureev/attention-labs/internal/config"
	"github.com/ashureev/attention-labs/internal/engagement"
	"github.com/ashureev/attention-labs/internal/eventlog"
	"github.com/ashureev/attention-labs/internal/identity"
	"github.com/ashureev/attention-labs/internal/metrics"
	"github.com/ashureev/attention-labs/internal/middleware"
	"github.com/ashureev/attention-labs/internal/retention"
	"github.com/ashureev/attention-labs/internal/store"
	"github.com/ashureev/attention-labs/internal/stream"
	"github.com/ashureev/attention-labs/internal/telemetry"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "attention-labs"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"min_dwell", cfg.Engagement.MinDwell,
		"cooldown", cfg.Engagement.Cooldown,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.Telemetry)
	if err != nil {
		slog.Warn("Tracing disabled, failed to set up exporter", "error", err)
	}

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	eventLog, err := eventlog.New(eventlog.Config{
		Enabled:   cfg.EventLog.Enabled,
		Dir:       cfg.EventLog.Dir,
		QueueSize: cfg.EventLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize event log", "error", err)
		os.Exit(1)
	}

	// Engagement pipeline: monitors -> events -> hub -> SSE/websocket/event log.
	events := make(chan engagement.Event, cfg.Engagement.EventBuffer)
	sessions := engagement.NewManager(engagement.MonitorConfig{
		Trigger: engagement.TriggerConfig{
			MinDwell: cfg.Engagement.MinDwell,
			Cooldown: cfg.Engagement.Cooldown,
			Rotation: cfg.Engagement.Rotation,
		},
		Logger: logger,
		Events: events,
	}, api.NewArchiveHook(repo))

	hub := stream.NewHub(stream.HubConfig{
		ReplaySize: cfg.SSE.ReplaySize,
		EventLog:   eventLog,
		Observer: func(sessionID string) string {
			m, err := sessions.Get(sessionID)
			if err != nil {
				return ""
			}
			return m.ObserverID()
		},
		Logger: logger,
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx, events)
	}()

	// Initialize handlers.
	handler := api.NewHandler(sessions, repo, hub, cfg)
	handler.StartBackground(ctx)
	healthHandler := api.NewHealthHandler(repo, sessions)

	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins))

	// Public routes.
	r.Handle("/metrics", metrics.Handler())
	healthHandler.RegisterHealth(r)

	// Observer-scoped routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		handler.RegisterRoutes(r)
	})

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(r, serviceName),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	retention.StartWorker(ctx, repo, sessions, retention.Config{
		Interval:          cfg.Reports.SweepInterval,
		Retention:         cfg.Reports.Retention,
		EndedSessionGrace: cfg.Reports.EndedSessionGrace,
	}, hub.Prune)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	// End live sessions so their reports are archived and session_ended
	// reaches the event log before subscribers are disconnected.
	sessions.Close()
	stopHub()
	<-hubDone
	if n := hub.Drain(events); n > 0 {
		slog.Info("Drained buffered events", "count", n)
	}
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if err := eventLog.Close(); err != nil {
		slog.Error("Failed to close event log", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("Failed to flush traces", "error", err)
	}

	slog.Info("Server stopped successfully")
}
