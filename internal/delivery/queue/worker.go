package queue

import (
	"context"
	"errors"
	"time"

	"leadgen_backend/internal/delivery"
	"leadgen_backend/internal/events"
	"leadgen_backend/platform/config"
	"leadgen_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

// Deliverer executes one delivery pass for a lead. A non-nil error means
// the lead is in a state delivery cannot fix; Success=false with a nil
// error means the pass failed and may be retried.
type Deliverer interface {
	Deliver(ctx context.Context, leadID int64) (delivery.Result, error)
}

// Worker pulls jobs off the queue and runs delivery passes until its
// context is canceled.
type Worker struct {
	queue  *Queue
	engine Deliverer
	cfg    config.QueueConfig
	bus    events.Bus
	log    *logger.Logger
}

// NewWorker creates a worker bound to a queue and delivery engine.
func NewWorker(queue *Queue, engine Deliverer, cfg config.QueueConfig, bus events.Bus, log *logger.Logger) *Worker {
	return &Worker{queue: queue, engine: engine, cfg: cfg, bus: bus, log: log}
}

// Run starts the configured number of consumers plus the reclaim sweep
// and blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.GetQueueConcurrency(); i++ {
		g.Go(func() error {
			return w.consume(ctx)
		})
	}
	g.Go(func() error {
		return w.reclaimLoop(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (w *Worker) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("claim failed", "error", err.Error())
			sleepCtx(ctx, w.cfg.GetQueuePollInterval())
			continue
		}
		if job == nil {
			sleepCtx(ctx, w.cfg.GetQueuePollInterval())
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	result, err := w.engine.Deliver(ctx, job.LeadID)
	switch {
	case err != nil:
		// Retrying cannot change the outcome for these leads.
		if derr := w.queue.DeadLetter(ctx, job, err.Error()); derr != nil {
			w.log.Error("dead-letter failed", "job_id", job.ID, "error", derr.Error())
			return
		}
		w.publishExhausted(ctx, job, job.Attempt+1, err.Error())
	case result.Success:
		if err := w.queue.Ack(ctx, job); err != nil {
			w.log.Error("ack failed", "job_id", job.ID, "error", err.Error())
		}
	default:
		w.retryOrPark(ctx, job)
	}
}

func (w *Worker) retryOrPark(ctx context.Context, job *Job) {
	const lastErr = "all delivery channels failed"

	completed := job.Attempt + 1
	if completed >= w.cfg.GetQueueMaxAttempts() {
		if err := w.queue.DeadLetter(ctx, job, lastErr); err != nil {
			w.log.Error("dead-letter failed", "job_id", job.ID, "error", err.Error())
			return
		}
		w.publishExhausted(ctx, job, completed, lastErr)
		return
	}

	delay := retryDelay(w.cfg.GetQueueRetryDelays(), completed)
	if err := w.queue.Retry(ctx, job, delay, lastErr); err != nil {
		w.log.Error("retry failed", "job_id", job.ID, "error", err.Error())
		return
	}
	w.log.DeliveryRetryScheduled(job.ID, job.LeadID, completed+1, delay.Seconds())
}

func (w *Worker) publishExhausted(ctx context.Context, job *Job, attempts int, lastErr string) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(ctx, events.DeliveryExhausted{
		BaseEvent: events.NewBaseEvent(),
		JobID:     job.ID,
		LeadID:    job.LeadID,
		Attempts:  attempts,
		LastErr:   lastErr,
	})
}

func (w *Worker) reclaimLoop(ctx context.Context) error {
	interval := w.cfg.GetQueueVisibilityTimeout()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := w.queue.Reclaim(ctx)
			if err != nil {
				w.log.Error("reclaim failed", "error", err.Error())
				continue
			}
			if n > 0 {
				w.log.Info("reclaimed stalled delivery jobs", "count", n)
			}
		}
	}
}

// retryDelay indexes the delay schedule by completed passes, holding the
// last entry once the schedule runs out.
func retryDelay(delays []time.Duration, completed int) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	if completed >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[completed]
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
