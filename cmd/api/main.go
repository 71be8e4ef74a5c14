package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"

	"github.com/inaiurai/gateway/internal/config"
	"github.com/inaiurai/gateway/internal/database"
	"github.com/inaiurai/gateway/internal/logging"
	"github.com/inaiurai/gateway/internal/middleware"
	"github.com/inaiurai/gateway/internal/repository"
	"github.com/inaiurai/gateway/internal/usage"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. make dev-up", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Schema and River migrations applied")

	// Usage records are written by River workers off the request path.
	workers := river.NewWorkers()
	river.AddWorker(workers, usage.NewRecordUsageWorker(repository.NewUsageRepo(pool)))
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: max(1, cfg.UsageWorkers)},
		},
		Workers: workers,
	})
	if err != nil {
		logger.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	recorder := usage.NewQueueRecorder(func(ctx context.Context, args usage.RecordUsageArgs) error {
		_, err := riverClient.Insert(ctx, args, nil)
		return err
	})

	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, alerts degrade to logging only", "error", err)
		}
		rdb = client
	}

	api, err := buildAPI(cfg, pool, recorder, rdb, logger)
	if err != nil {
		logger.Error("failed to build API", "error", err)
		os.Exit(1)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}).Handler(api)
	handler = middleware.WithRequestID(middleware.WithRequestLog(logger)(middleware.WithSecurityHeaders(handler)))

	// River is stopped explicitly after the HTTP server drains.
	if err := riverClient.Start(context.WithoutCancel(ctx)); err != nil {
		logger.Error("River client failed to start", "error", err)
		os.Exit(1)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + cfg.RetryDelay + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown failed", "error", err)
		}
		if err := riverClient.Stop(shutdownCtx); err != nil {
			logger.Error("River client stop failed", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
