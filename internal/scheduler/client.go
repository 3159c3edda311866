package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"leadgen_backend/platform/config"
	"leadgen_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	routingSweepSpec     = "@every 5m"
	billingReconcileSpec = "@every 15m"
	queuePurgeSpec       = "@every 1h"

	// 02:00 UTC on the first of the month, over the month just closed.
	invoiceGenerateSpec = "0 2 1 * *"

	defaultSweepGraceMinutes = 10
	defaultSweepLimit        = 100
	defaultReconcileLimit    = 200
)

// Scheduler is the enqueue side of maintenance: it registers the
// periodic entries and emits a task whenever one comes due.
type Scheduler struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

// NewScheduler builds the periodic entry table. Every worker instance
// may run one; duplicate emissions collapse behind the task locks.
func NewScheduler(cfg config.SchedulerConfig, log *logger.Logger) (*Scheduler, error) {
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

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	if err := registerEntries(scheduler, queue); err != nil {
		return nil, err
	}

	return &Scheduler{scheduler: scheduler, log: log}, nil
}

func registerEntries(scheduler *asynq.Scheduler, queue string) error {
	sweep, err := NewRoutingSweepTask(RoutingSweepPayload{
		GraceMinutes: defaultSweepGraceMinutes,
		Limit:        defaultSweepLimit,
	})
	if err != nil {
		return err
	}
	reconcile, err := NewBillingReconcileTask(BillingReconcilePayload{Limit: defaultReconcileLimit})
	if err != nil {
		return err
	}

	entries := []struct {
		spec string
		task *asynq.Task
	}{
		{routingSweepSpec, sweep},
		{billingReconcileSpec, reconcile},
		{queuePurgeSpec, NewQueuePurgeTask()},
		{invoiceGenerateSpec, NewInvoiceGenerateTask()},
	}
	for _, entry := range entries {
		if _, err := scheduler.Register(entry.spec, entry.task, asynq.Queue(queue)); err != nil {
			return fmt.Errorf("register %s: %w", entry.task.Type(), err)
		}
	}
	return nil
}

// Run blocks until the context ends.
func (s *Scheduler) Run(ctx context.Context) {
	if s == nil || s.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		s.scheduler.Shutdown()
	}()

	if err := s.scheduler.Run(); err != nil {
		s.log.Error("maintenance scheduler stopped", "error", err)
	}
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
