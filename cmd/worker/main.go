package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadgen_backend/internal/audit"
	"leadgen_backend/internal/billing"
	"leadgen_backend/internal/delivery"
	"leadgen_backend/internal/delivery/queue"
	"leadgen_backend/internal/email"
	"leadgen_backend/internal/events"
	leadrepo "leadgen_backend/internal/leads/repository"
	"leadgen_backend/internal/routing"
	"leadgen_backend/internal/scheduler"
	"leadgen_backend/internal/sms"
	"leadgen_backend/platform/config"
	"leadgen_backend/platform/db"
	"leadgen_backend/platform/logger"
	"leadgen_backend/platform/redisclient"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The api runs migrations; the worker only needs the schema present.
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

	eventBus := events.NewInMemoryBus(log)
	audit.New(audit.NewRepository(pool), log).RegisterHandlers(eventBus)

	billingService := billing.NewService(billing.NewRepository(pool), eventBus, log)

	// Delivery engine with the fallback channel chain, in priority order.
	engine := delivery.NewEngine(
		delivery.NewRepository(pool),
		[]delivery.Channel{
			delivery.NewWebhookChannel(cfg),
			delivery.NewEmailChannel(email.New(cfg, log)),
			delivery.NewSMSChannel(sms.New(cfg, log)),
		},
		billingService,
		eventBus,
		log,
	)

	deliveryQueue := queue.New(rdb, cfg, log)
	queueWorker := queue.NewWorker(deliveryQueue, engine, cfg, eventBus, log)

	maintScheduler, err := scheduler.NewScheduler(cfg, log)
	if err != nil {
		log.Error("failed to initialize maintenance scheduler", "error", err)
		panic("failed to initialize maintenance scheduler: " + err.Error())
	}

	maintWorker, err := scheduler.NewWorker(cfg, rdb, scheduler.Deps{
		Leads:   leadrepo.New(pool),
		Router:  routing.NewEngine(routing.NewRepository(pool), log),
		Billing: billingService,
		Queue:   deliveryQueue,
	}, log)
	if err != nil {
		log.Error("failed to initialize maintenance worker", "error", err)
		panic("failed to initialize maintenance worker: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("delivery workers started", "concurrency", cfg.GetQueueConcurrency())
		return queueWorker.Run(gctx)
	})
	g.Go(func() error {
		maintWorker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		maintScheduler.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", "error", err)
		panic("worker stopped with error: " + err.Error())
	}
	log.Info("worker stopped")
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
