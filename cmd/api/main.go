package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicedesk_backend/internal/calls"
	"voicedesk_backend/internal/calls/postcall"
	"voicedesk_backend/internal/events"
	apphttp "voicedesk_backend/internal/http"
	"voicedesk_backend/internal/http/router"
	"voicedesk_backend/migrations"
	"voicedesk_backend/platform/config"
	"voicedesk_backend/platform/db"
	"voicedesk_backend/platform/logger"
	"voicedesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	queue, closeQueue := initPostCallQueue(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	callsModule, err := calls.NewModule(ctx, pool, eventBus, queue, cfg, val, log)
	if err != nil {
		log.Error("failed to initialize calls module", "error", err)
		panic("failed to initialize calls module: " + err.Error())
	}

	if err := withRetry(ctx, log, "ensure call-archives bucket", 5, 2*time.Second, func() error {
		return callsModule.EnsureArchiveBucket(ctx)
	}); err != nil {
		log.Error("failed to ensure archive bucket exists", "error", err)
		panic("failed to ensure archive bucket exists: " + err.Error())
	}

	// Resume interrupted call workflows before accepting traffic so providers
	// signalling in-flight calls find them running.
	if err := withRetry(ctx, log, "call workflow recovery", 5, 2*time.Second, func() error {
		return callsModule.Recover(ctx)
	}); err != nil {
		log.Error("failed to recover call workflows", "error", err)
		panic("failed to recover call workflows: " + err.Error())
	}
	log.Info("call workflow recovery complete", "live_calls", callsModule.Runtime().LiveCount())

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			callsModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		callsModule.Shutdown(cfg.GetShutdownGrace())
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initPostCallQueue(cfg config.SchedulerConfig, log *logger.Logger) (*postcall.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; post-call processing disabled")
		return nil, nil
	}

	queueClient, err := postcall.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize post-call queue client", "error", err)
		return nil, nil
	}

	return queueClient, func() {
		_ = queueClient.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
