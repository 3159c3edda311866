// Package queue is the Redis-backed delivery queue. Jobs live in sorted
// sets: ready jobs carry small priority scores, delayed retries carry a
// future Unix timestamp, so one range query finds everything due. A
// claimed job moves atomically into a processing set scored by its
// visibility deadline; jobs whose worker died resurface through the
// reclaim sweep, and jobs out of attempts are parked in a dead-letter
// set until an operator reprocesses or retention trims them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"leadgen_backend/platform/config"
	"leadgen_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	queueKey      = "delivery:queue"
	processingKey = "delivery:processing"
	deadLetterKey = "delivery:dead_letter"

	// Fresh jobs score 1 so they sort ahead of any due retry timestamp.
	defaultPriority = 1
)

// Job is one queued delivery pass for a lead. Attempt counts passes
// already completed.
type Job struct {
	ID         string    `json:"id"`
	LeadID     int64     `json:"lead_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`

	// raw is the member string this job was claimed as; Ack, Retry and
	// DeadLetter key off it.
	raw string
}

// DeadJob is a dead-lettered job with its death context.
type DeadJob struct {
	Job       Job       `json:"job"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	DiedAt    time.Time `json:"died_at"`
}

// Stats are the live set sizes.
type Stats struct {
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	DeadLetter int64 `json:"deadLetter"`
}

// claimScript pops the lowest-score due member and parks it in the
// processing set under its visibility deadline, in one atomic step.
var claimScript = redis.NewScript(`
local member = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #member == 0 then
	return false
end
redis.call('ZREM', KEYS[1], member[1])
redis.call('ZADD', KEYS[2], ARGV[2], member[1])
return member[1]
`)

// Queue is a handle on the delivery sets of one Redis instance.
type Queue struct {
	rdb *redis.Client
	cfg config.QueueConfig
	log *logger.Logger
}

// New creates a queue handle.
func New(rdb *redis.Client, cfg config.QueueConfig, log *logger.Logger) *Queue {
	return &Queue{rdb: rdb, cfg: cfg, log: log}
}

// Enqueue adds a fresh delivery job for the lead and returns its id.
func (q *Queue) Enqueue(ctx context.Context, leadID int64) (string, error) {
	job := Job{
		ID:         uuid.NewString(),
		LeadID:     leadID,
		EnqueuedAt: time.Now().UTC(),
	}
	doc, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal delivery job: %w", err)
	}
	if err := q.rdb.ZAdd(ctx, queueKey, redis.Z{Score: defaultPriority, Member: string(doc)}).Err(); err != nil {
		return "", fmt.Errorf("enqueue delivery job: %w", err)
	}
	q.log.Info("delivery job enqueued", "job_id", job.ID, "lead_id", leadID)
	return job.ID, nil
}

// Claim pops the next due job, or nil when nothing is due. The claimed
// job stays invisible to other workers until its visibility deadline.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	now := time.Now()
	deadline := now.Add(q.cfg.GetQueueVisibilityTimeout())

	raw, err := claimScript.Run(ctx, q.rdb, []string{queueKey, processingKey},
		now.Unix(), deadline.Unix()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim delivery job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// A member that does not decode can never be processed; park it
		// out of the way instead of re-claiming it forever.
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, processingKey, raw)
		pipe.ZAdd(ctx, deadLetterKey, redis.Z{Score: float64(now.Unix()), Member: raw})
		_, _ = pipe.Exec(ctx)
		return nil, fmt.Errorf("decode delivery job: %w", err)
	}
	job.raw = raw
	return &job, nil
}

// Ack removes a completed job from the processing set.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	if err := q.rdb.ZRem(ctx, processingKey, job.raw).Err(); err != nil {
		return fmt.Errorf("ack delivery job: %w", err)
	}
	return nil
}

// Retry moves a claimed job back to the queue, due after the delay,
// with its attempt count advanced.
func (q *Queue) Retry(ctx context.Context, job *Job, delay time.Duration, lastErr string) error {
	next := *job
	next.Attempt = job.Attempt + 1
	next.LastError = lastErr

	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal retry job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, processingKey, job.raw)
	pipe.ZAdd(ctx, queueKey, redis.Z{
		Score:  float64(time.Now().Add(delay).Unix()),
		Member: string(doc),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue delivery job: %w", err)
	}
	return nil
}

// DeadLetter parks an unprocessable job in the dead-letter set.
func (q *Queue) DeadLetter(ctx context.Context, job *Job, lastErr string) error {
	record := DeadJob{
		Job:       *job,
		Attempts:  job.Attempt + 1,
		LastError: lastErr,
		DiedAt:    time.Now().UTC(),
	}
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal dead job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, processingKey, job.raw)
	pipe.ZAdd(ctx, deadLetterKey, redis.Z{Score: float64(record.DiedAt.Unix()), Member: string(doc)})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-letter delivery job: %w", err)
	}
	q.log.DeadLettered(job.ID, job.LeadID, record.Attempts)
	return nil
}

// Reclaim moves processing jobs whose visibility deadline passed back to
// the queue. Any instance may sweep; the ZREM settles races.
func (q *Queue) Reclaim(ctx context.Context) (int, error) {
	now := time.Now()
	expired, err := q.rdb.ZRangeByScore(ctx, processingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan processing jobs: %w", err)
	}

	reclaimed := 0
	for _, member := range expired {
		removed, err := q.rdb.ZRem(ctx, processingKey, member).Result()
		if err != nil {
			return reclaimed, fmt.Errorf("reclaim delivery job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.ZAdd(ctx, queueKey, redis.Z{Score: float64(now.Unix()), Member: member}).Err(); err != nil {
			return reclaimed, fmt.Errorf("requeue reclaimed job: %w", err)
		}
		reclaimed++
	}
	return reclaimed, nil
}

// PurgeQueue drops jobs that sat queued longer than the configured age.
func (q *Queue) PurgeQueue(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-q.cfg.GetQueuePurgeAge())
	members, err := q.rdb.ZRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("scan queued jobs: %w", err)
	}

	purged := 0
	for _, member := range members {
		var job Job
		if err := json.Unmarshal([]byte(member), &job); err == nil && job.EnqueuedAt.After(cutoff) {
			continue
		}
		removed, err := q.rdb.ZRem(ctx, queueKey, member).Result()
		if err != nil {
			return purged, fmt.Errorf("purge queued job: %w", err)
		}
		purged += int(removed)
	}
	return purged, nil
}

// PurgeDeadLetters trims dead jobs older than the retention window.
func (q *Queue) PurgeDeadLetters(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-q.cfg.GetQueueDeadLetterRetention())
	n, err := q.rdb.ZRemRangeByScore(ctx, deadLetterKey, "-inf", strconv.FormatInt(cutoff.Unix(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return int(n), nil
}

// Stats returns the current set sizes.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	queued := pipe.ZCard(ctx, queueKey)
	processing := pipe.ZCard(ctx, processingKey)
	dead := pipe.ZCard(ctx, deadLetterKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{
		Queued:     queued.Val(),
		Processing: processing.Val(),
		DeadLetter: dead.Val(),
	}, nil
}

// DeadLetters lists dead jobs, most recent death first.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]DeadJob, error) {
	if limit <= 0 {
		limit = 50
	}
	members, err := q.rdb.ZRevRange(ctx, deadLetterKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	jobs := make([]DeadJob, 0, len(members))
	for _, member := range members {
		var dead DeadJob
		if err := json.Unmarshal([]byte(member), &dead); err != nil {
			continue
		}
		jobs = append(jobs, dead)
	}
	return jobs, nil
}

// ReprocessDeadLetters requeues up to max dead jobs, oldest first, with
// a fresh attempt budget. Returns how many were moved.
func (q *Queue) ReprocessDeadLetters(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		max = 10
	}
	members, err := q.rdb.ZRange(ctx, deadLetterKey, 0, int64(max-1)).Result()
	if err != nil {
		return 0, fmt.Errorf("scan dead letters: %w", err)
	}

	moved := 0
	for _, member := range members {
		removed, err := q.rdb.ZRem(ctx, deadLetterKey, member).Result()
		if err != nil {
			return moved, fmt.Errorf("remove dead letter: %w", err)
		}
		if removed == 0 {
			continue
		}

		var dead DeadJob
		if err := json.Unmarshal([]byte(member), &dead); err != nil {
			q.log.Warn("dropping undecodable dead letter", "member_bytes", len(member))
			continue
		}

		job := dead.Job
		job.Attempt = 0
		job.LastError = ""
		job.EnqueuedAt = time.Now().UTC()
		doc, err := json.Marshal(job)
		if err != nil {
			return moved, fmt.Errorf("marshal reprocessed job: %w", err)
		}
		if err := q.rdb.ZAdd(ctx, queueKey, redis.Z{Score: defaultPriority, Member: string(doc)}).Err(); err != nil {
			return moved, fmt.Errorf("requeue dead letter: %w", err)
		}
		q.log.Info("dead letter requeued", "job_id", job.ID, "lead_id", job.LeadID)
		moved++
	}
	return moved, nil
}
