// Package main is the entrypoint for the ComplyCheck analysis server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/complycheck/complycheck/internal/ai"
	"github.com/complycheck/complycheck/internal/api"
	"github.com/complycheck/complycheck/internal/api/handler"
	mw "github.com/complycheck/complycheck/internal/api/middleware"
	"github.com/complycheck/complycheck/internal/api/response"
	"github.com/complycheck/complycheck/internal/config"
	"github.com/complycheck/complycheck/internal/queue"
	"github.com/complycheck/complycheck/internal/store"
	"github.com/complycheck/complycheck/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis queue store
	redisQueue, err := queue.NewRedisQueue(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis queue: %w", err)
	}
	defer redisQueue.Close()

	if err := redisQueue.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create AI provider
	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", provider.Name())

	// 6. Create store and processor
	pgStore := store.NewPostgresStore(pool)

	processor := worker.New(worker.Config{
		QueueName:        cfg.Queue.Name,
		MaxJobsPerRun:    cfg.Queue.MaxJobsPerRun,
		MaxRunDuration:   cfg.Queue.MaxRunDuration,
		StaleAfter:       cfg.Queue.StaleAfter,
		InferenceTimeout: cfg.AI.InferenceTimeout,
	}, redisQueue, pgStore, provider)

	if cfg.Queue.PollInterval > 0 {
		go processor.RunEvery(ctx, cfg.Queue.PollInterval)
	}

	// 7. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisQueue, cfg.Queue.RequestsPerMinute),

		HealthHandler:        healthHandler(pgStore, redisQueue),
		ProcessHandler:       handler.NewProcessHandler(processor),
		AssessHandler:        handler.NewAssessHandler(redisQueue, cfg.Queue.Name),
		GetAssessmentHandler: handler.NewGetAssessmentHandler(pgStore),
		GetJobHandler:        handler.NewGetJobHandler(redisQueue),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and queue store connectivity.
func healthHandler(s store.Store, q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"queue":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := q.Ping(r.Context()); err != nil {
			checks["queue"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["queue"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
