// Mentora - assistant task orchestration server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mentora-labs/mentora/internal/api"
	"github.com/mentora-labs/mentora/internal/config"
	"github.com/mentora-labs/mentora/internal/domain"
	"github.com/mentora-labs/mentora/internal/engine"
	"github.com/mentora-labs/mentora/internal/events"
	"github.com/mentora-labs/mentora/internal/identity"
	"github.com/mentora-labs/mentora/internal/metrics"
	"github.com/mentora-labs/mentora/internal/middleware"
	"github.com/mentora-labs/mentora/internal/periods"
	"github.com/mentora-labs/mentora/internal/remote"
	"github.com/mentora-labs/mentora/internal/session"
	"github.com/mentora-labs/mentora/internal/transcript"
)

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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	transcripts, err := transcript.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Error("Failed to close transcript store", "error", closeErr)
		}
	}()

	if err := transcripts.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	registry := session.NewRegistry(cfg.ExclusiveDispatch, logger)
	registry.Register("tutor", domain.AgentTutoring)
	registry.Register("financial-coach", domain.AgentFinancial)
	registry.Register("wellness-coach", domain.AgentWellness)

	sims := periods.New(cfg.SimulationFacets, cfg.SimulationPeriods)
	hub := events.NewHub(logger)

	promRegistry := prometheus.NewRegistry()
	engineMetrics := metrics.New(promRegistry)

	backend := remote.NewClient(remote.DefaultClientConfig(cfg.BackendURL), logger)

	engineCfg := engine.DefaultConfig()
	engineCfg.StreamTimeouts[domain.KindChatReply] = cfg.ChatStreamTimeout
	engineCfg.StreamTimeouts[domain.KindDocumentAnalysis] = cfg.AnalysisStreamTimeout

	eng := engine.New(registry, transcripts, sims, backend, hub, engineMetrics, engineCfg, logger)

	// Initialize handlers.
	apiHandler := api.NewHandler(eng, logger)
	healthHandler := api.NewHealthHandler(transcripts)
	wsHandler := api.NewWSHandler(hub, cfg.FrontendURL, cfg.IsDevelopment(), logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	// Engine routes.
	apiHandler.RegisterRoutes(r)

	// WebSocket event feed.
	r.Get("/ws/events", wsHandler.ServeHTTP)

	// Create server.
	// Note: streaming tasks outlive individual requests; WriteTimeout stays
	// unset so the event feed is never cut mid-push.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := eng.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Engine shutdown incomplete", "error", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
