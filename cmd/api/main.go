package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tutorlink/backend/internal/breaker"
	"github.com/tutorlink/backend/internal/browser"
	"github.com/tutorlink/backend/internal/cache"
	"github.com/tutorlink/backend/internal/config"
	"github.com/tutorlink/backend/internal/database"
	"github.com/tutorlink/backend/internal/extractor"
	"github.com/tutorlink/backend/internal/knowledge"
	"github.com/tutorlink/backend/internal/llm"
	"github.com/tutorlink/backend/internal/logging"
	"github.com/tutorlink/backend/internal/monitoring"
	"github.com/tutorlink/backend/internal/reclaimer"
	"github.com/tutorlink/backend/internal/registry"
	"github.com/tutorlink/backend/internal/server"
	"github.com/tutorlink/backend/internal/session"
	"github.com/tutorlink/backend/internal/upload"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Str("name", cfg.Server.Name).
		Msg("Starting TutorLink API server")

	// Initialize database connection
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Redis backs session records and rate limiting
	redis, err := cache.New(cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redis.Close()

	// Initialize Prometheus metrics
	monitoring.Init()

	// Start metrics server if enabled
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(cfg.Monitoring.PrometheusPort)
	}

	// Shared circuit breakers for the browser provider and the model
	breakers := breaker.NewManager(breaker.DefaultConfig())

	reg := registry.NewPostgresStore(db.Pool)
	idx := knowledge.NewPostgresIndex(db.Pool)
	sessions := session.NewManager(
		session.NewRedisStore(redis),
		browser.NewClient(&cfg.Browser, breakers),
		extractor.New(),
		reg,
		idx,
		cfg.Upload.Dir,
	)

	srv := server.NewAPIServer(cfg, server.Deps{
		DB:        db.Pool,
		Redis:     redis,
		Sessions:  sessions,
		Uploads:   upload.NewService(reg, &cfg.Upload),
		Knowledge: idx,
		LLM:       llm.NewClient(&cfg.LLM, breakers),
		Reclaimer: reclaimer.New(reg, idx, cfg.Upload.Dir),
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Msg("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info().
		Int("port", port).
		Msg("Prometheus metrics server listening")

	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
