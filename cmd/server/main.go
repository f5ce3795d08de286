package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/app"
	"github.com/stemsi/exstem-grading/internal/config"
	"github.com/stemsi/exstem-grading/internal/handler"
	"github.com/stemsi/exstem-grading/internal/logger"
	"github.com/stemsi/exstem-grading/internal/middleware"
	"github.com/stemsi/exstem-grading/internal/router"
	"github.com/stemsi/exstem-grading/internal/validator"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Grading")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect Stores & Build Services ───────────────────────────────
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	// ─── Initialize Handlers ──────────────────────────────────────────
	checks := map[string]handler.HealthCheck{
		"redis": func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
	}
	if a.Pool != nil {
		checks["postgres"] = a.Pool.Ping
	}

	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(a.Attempts, a.Results, log),
		Result:  handler.NewResultHandler(a.Results, log),
		Admin:   handler.NewAdminHandler(a.Attempts, a.Sweep, a.Catalog, log),
		Monitor: handler.NewMonitorHandler(a.Redis, a.Catalog, a.Results, log),
		WS:      handler.NewWSHandler(a.Attempts, log, cfg.AllowedOrigins),
		Health:  handler.NewHealthHandler(checks, log),
	}

	var limiter *middleware.RateLimiter
	if cfg.CandidateRateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.CandidateRateLimit, time.Minute)
		go limiter.StartCleanup(ctx)
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workersDone := a.StartWorkers(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(a.Auth, handlers, limiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	select {
	case <-workersDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Workers did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
