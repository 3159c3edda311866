package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/internal/routing"
	"leadgen_backend/platform/config"
	"leadgen_backend/platform/logger"
	"leadgen_backend/platform/redislock"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const lockTTL = 5 * time.Minute

// SweepRepository lists leads the router left without a buyer.
type SweepRepository interface {
	StaleValidated(ctx context.Context, olderThan time.Time, limit int) ([]domain.Lead, error)
}

// LeadRouter re-runs buyer selection for one lead.
type LeadRouter interface {
	Route(ctx context.Context, lead domain.Lead) (routing.Result, error)
}

// BillingService is the slice of billing the maintenance passes drive.
type BillingService interface {
	Reconcile(ctx context.Context, limit int) (int, error)
	GenerateInvoices(ctx context.Context, periodStart time.Time) (int, error)
}

// DeliveryQueue is the slice of the delivery queue the passes touch.
type DeliveryQueue interface {
	Enqueue(ctx context.Context, leadID int64) (string, error)
	PurgeQueue(ctx context.Context) (int, error)
	PurgeDeadLetters(ctx context.Context) (int, error)
}

// Deps are the domain services the maintenance tasks drive.
type Deps struct {
	Leads   SweepRepository
	Router  LeadRouter
	Billing BillingService
	Queue   DeliveryQueue
}

// Worker processes the maintenance tasks the Scheduler emits.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	rdb    *redis.Client
	deps   Deps
	log    *logger.Logger
}

// NewWorker builds the asynq server and registers the task handlers.
func NewWorker(cfg config.SchedulerConfig, rdb *redis.Client, deps Deps, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 4
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		rdb:    rdb,
		deps:   deps,
		log:    log,
	}

	mux.HandleFunc(TaskRoutingSweep, w.handleRoutingSweep)
	mux.HandleFunc(TaskBillingReconcile, w.handleBillingReconcile)
	mux.HandleFunc(TaskQueuePurge, w.handleQueuePurge)
	mux.HandleFunc(TaskInvoiceGenerate, w.handleInvoiceGenerate)

	return w, nil
}

// Run blocks until the context ends.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("maintenance worker stopped", "error", err)
	}
}

func (w *Worker) handleRoutingSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRoutingSweepPayload(task)
	if err != nil {
		return err
	}
	if payload.GraceMinutes < 1 {
		payload.GraceMinutes = defaultSweepGraceMinutes
	}
	if payload.Limit < 1 {
		payload.Limit = defaultSweepLimit
	}

	return w.withLock(ctx, "routing_sweep", func(ctx context.Context) error {
		return w.sweepRouting(ctx, payload)
	})
}

// sweepRouting re-runs buyer selection for validated leads that sat
// unrouted past the grace period and queues delivery for fresh wins.
func (w *Worker) sweepRouting(ctx context.Context, payload RoutingSweepPayload) error {
	cutoff := time.Now().UTC().Add(-time.Duration(payload.GraceMinutes) * time.Minute)
	leads, err := w.deps.Leads.StaleValidated(ctx, cutoff, payload.Limit)
	if err != nil {
		return err
	}
	if len(leads) == 0 {
		return nil
	}

	routed := 0
	for _, lead := range leads {
		result, err := w.deps.Router.Route(ctx, lead)
		if err != nil {
			w.log.Error("sweep routing failed", "lead_id", lead.ID, "error", err.Error())
			continue
		}
		// A pass with no winner leaves the lead for the next sweep, and
		// a concurrent winner owns its own delivery.
		if result.Strategy == "" {
			continue
		}
		if _, err := w.deps.Queue.Enqueue(ctx, lead.ID); err != nil {
			w.log.Error("sweep enqueue failed", "lead_id", lead.ID, "error", err.Error())
			continue
		}
		routed++
	}

	w.log.Info("routing sweep completed", "scanned", len(leads), "routed", routed)
	return nil
}

func (w *Worker) handleBillingReconcile(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseBillingReconcilePayload(task)
	if err != nil {
		return err
	}
	if payload.Limit < 1 {
		payload.Limit = defaultReconcileLimit
	}

	return w.withLock(ctx, "billing_reconcile", func(ctx context.Context) error {
		applied, err := w.deps.Billing.Reconcile(ctx, payload.Limit)
		if err != nil {
			return err
		}
		if applied > 0 {
			w.log.Info("billing reconciliation applied", "count", applied)
		}
		return nil
	})
}

func (w *Worker) handleQueuePurge(ctx context.Context, _ *asynq.Task) error {
	return w.withLock(ctx, "queue_purge", func(ctx context.Context) error {
		stale, err := w.deps.Queue.PurgeQueue(ctx)
		if err != nil {
			return err
		}
		expired, err := w.deps.Queue.PurgeDeadLetters(ctx)
		if err != nil {
			return err
		}
		if stale > 0 || expired > 0 {
			w.log.Info("queue purge completed", "stale", stale, "expired_dead_letters", expired)
		}
		return nil
	})
}

func (w *Worker) handleInvoiceGenerate(ctx context.Context, _ *asynq.Task) error {
	return w.withLock(ctx, "invoice_generate", func(ctx context.Context) error {
		now := time.Now().UTC()
		previousMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		_, err := w.deps.Billing.GenerateInvoices(ctx, previousMonth)
		return err
	})
}

// withLock serializes a maintenance pass across instances. A pass
// already running elsewhere is skipped, not queued behind the lock.
func (w *Worker) withLock(ctx context.Context, name string, fn func(context.Context) error) error {
	if w.rdb == nil {
		return fn(ctx)
	}

	lock := redislock.New(w.rdb, "lock:scheduler:"+name, lockTTL)
	if err := lock.Acquire(ctx); err != nil {
		if errors.Is(err, redislock.ErrNotAcquired) {
			w.log.Debug("maintenance pass already running", "task", name)
			return nil
		}
		return err
	}
	defer func() { _ = lock.Release(ctx) }()

	return fn(ctx)
}
