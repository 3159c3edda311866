package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadgen_backend/internal/audit"
	"leadgen_backend/internal/billing"
	"leadgen_backend/internal/buyers"
	"leadgen_backend/internal/classification"
	"leadgen_backend/internal/dedupe"
	"leadgen_backend/internal/delivery/queue"
	"leadgen_backend/internal/events"
	apphttp "leadgen_backend/internal/http"
	"leadgen_backend/internal/http/router"
	"leadgen_backend/internal/leads"
	leadrepo "leadgen_backend/internal/leads/repository"
	"leadgen_backend/internal/monitoring"
	"leadgen_backend/internal/postback"
	"leadgen_backend/internal/routing"
	"leadgen_backend/internal/validation"
	"leadgen_backend/migrations"
	"leadgen_backend/platform/config"
	"leadgen_backend/platform/db"
	"leadgen_backend/platform/httpkit"
	"leadgen_backend/platform/logger"
	"leadgen_backend/platform/redisclient"
	"leadgen_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// The ingest surface carries an in-process limiter on top of the shared
// Redis window, so one hot client ip cannot drain the shared budget.
const (
	ingestRatePerSecond = 20
	ingestBurst         = 40
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting api", "env", cfg.Env, "addr", cfg.HTTPAddr)

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

	var rdb *redis.Client
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		client, err := redisclient.New(ctx, cfg)
		if err != nil {
			return err
		}
		rdb = client
		return nil
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer rdb.Close()
	log.Info("redis connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Pipeline (Composition Root)
	// ========================================================================

	leadStore := leadrepo.New(pool)
	deliveryQueue := queue.New(rdb, cfg, log)
	billingService := billing.NewService(billing.NewRepository(pool), eventBus, log)

	pipeline := leads.NewPipeline(leads.Stages{
		Classifier: classification.NewResolver(classification.NewRepository(pool), log),
		Repo:       leadStore,
		Deduper:    dedupe.NewDetector(dedupe.NewRepository(pool), log),
		Validator:  validation.NewEngine(validation.NewRepository(pool), log),
		Router:     routing.NewEngine(routing.NewRepository(pool), log),
		Queue:      deliveryQueue,
	}, eventBus, log)

	// Audit subscriber rides the bus; it has no HTTP surface.
	audit.New(audit.NewRepository(pool), log).RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:        cfg,
		Logger:        log,
		RateLimiter:   httpkit.NewRedisRateLimiter(rdb, cfg, log),
		IngestLimiter: httpkit.NewIPRateLimiter(rate.Limit(ingestRatePerSecond), ingestBurst, log),
		EventBus:      eventBus,
		Modules: []apphttp.Module{
			leads.NewModule(pipeline, leadStore, val),
			buyers.NewModule(pool, val),
			billing.NewModule(billingService, val),
			postback.NewModule(pool, eventBus, log),
			monitoring.NewModule(pool, rdb, deliveryQueue, log),
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
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
