// Package monitoring exposes the operational surface: dependency health
// probes, delivery queue depths, pipeline throughput, and dead-letter
// recovery.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"leadgen_backend/internal/delivery/queue"
	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	probeTimeout = 2 * time.Second

	defaultWindowHours = 24
	maxWindowHours     = 168

	maxDeadLetterLimit = 200
	maxReprocessBatch  = 1000
)

// Pinger answers a connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger adapts a Redis client to the Pinger probe.
type RedisPinger struct {
	RDB *redis.Client
}

func (p RedisPinger) Ping(ctx context.Context) error { return p.RDB.Ping(ctx).Err() }

// QueueInspector is the slice of the delivery queue the monitors read.
type QueueInspector interface {
	Stats(ctx context.Context) (queue.Stats, error)
	DeadLetters(ctx context.Context, limit int) ([]queue.DeadJob, error)
	ReprocessDeadLetters(ctx context.Context, max int) (int, error)
}

// PipelineRepository reads aggregate lead counts.
type PipelineRepository interface {
	CountLeadsByStatus(ctx context.Context, since time.Time) (map[domain.Status]int64, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates the Postgres-backed pipeline stats reader.
func NewRepository(pool *pgxpool.Pool) PipelineRepository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) CountLeadsByStatus(ctx context.Context, since time.Time) (map[domain.Status]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM leads WHERE created_at >= $1 GROUP BY status`, since)
	if err != nil {
		return nil, fmt.Errorf("count leads by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}

// ComponentHealth is one dependency's probe result.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthReport is the rollup across critical dependencies.
type HealthReport struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks"`
}

// PipelineStats is the lead throughput rollup for a trailing window.
type PipelineStats struct {
	WindowHours int              `json:"windowHours"`
	Total       int64            `json:"total"`
	ByStatus    map[string]int64 `json:"byStatus"`
}

// DeadLetterEntry is a parked delivery job as the admin surface shows it.
type DeadLetterEntry struct {
	JobID      string    `json:"jobId"`
	LeadID     int64     `json:"leadId"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"lastError,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	DiedAt     time.Time `json:"diedAt"`
}

// ReprocessResult reports how many dead jobs went back on the queue.
type ReprocessResult struct {
	Reprocessed int `json:"reprocessed"`
}

// Service answers health probes and monitoring reads.
type Service struct {
	db    Pinger
	redis Pinger
	queue QueueInspector
	repo  PipelineRepository
	log   *logger.Logger
}

// NewService creates the monitoring service.
func NewService(db, redisConn Pinger, q QueueInspector, repo PipelineRepository, log *logger.Logger) *Service {
	return &Service{db: db, redis: redisConn, queue: q, repo: repo, log: log}
}

// Health probes every critical dependency and rolls the results up. A
// failing dependency degrades the report; the request itself succeeds.
func (s *Service) Health(ctx context.Context) HealthReport {
	checks := map[string]ComponentHealth{
		"database": s.probe(ctx, s.db),
		"redis":    s.probe(ctx, s.redis),
	}

	status := "ok"
	for _, check := range checks {
		if check.Status != "ok" {
			status = "degraded"
		}
	}
	return HealthReport{Status: status, Checks: checks}
}

// Ready reports whether the service can take traffic. Both the pool and
// Redis must answer before a load balancer routes here.
func (s *Service) Ready(ctx context.Context) (HealthReport, bool) {
	report := s.Health(ctx)
	if report.Status != "ok" {
		report.Status = "not_ready"
		return report, false
	}
	report.Status = "ready"
	return report, true
}

func (s *Service) probe(ctx context.Context, p Pinger) ComponentHealth {
	if p == nil {
		return ComponentHealth{Status: "unavailable", Error: "not configured"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := p.Ping(probeCtx); err != nil {
		return ComponentHealth{Status: "unavailable", Error: err.Error()}
	}
	return ComponentHealth{Status: "ok"}
}

// QueueStats returns the live delivery queue depths.
func (s *Service) QueueStats(ctx context.Context) (queue.Stats, error) {
	return s.queue.Stats(ctx)
}

// PipelineStats counts leads by status over the trailing window.
func (s *Service) PipelineStats(ctx context.Context, hours int) (PipelineStats, error) {
	if hours < 1 {
		hours = defaultWindowHours
	}
	if hours > maxWindowHours {
		hours = maxWindowHours
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	counts, err := s.repo.CountLeadsByStatus(ctx, since)
	if err != nil {
		return PipelineStats{}, err
	}

	byStatus := make(map[string]int64, len(counts))
	var total int64
	for status, n := range counts {
		byStatus[string(status)] = n
		total += n
	}
	return PipelineStats{WindowHours: hours, Total: total, ByStatus: byStatus}, nil
}

// DeadLetters lists parked delivery jobs, most recent death first.
func (s *Service) DeadLetters(ctx context.Context, limit int) ([]DeadLetterEntry, error) {
	if limit > maxDeadLetterLimit {
		limit = maxDeadLetterLimit
	}

	jobs, err := s.queue.DeadLetters(ctx, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]DeadLetterEntry, 0, len(jobs))
	for _, dead := range jobs {
		entries = append(entries, DeadLetterEntry{
			JobID:      dead.Job.ID,
			LeadID:     dead.Job.LeadID,
			Attempts:   dead.Attempts,
			LastError:  dead.LastError,
			EnqueuedAt: dead.Job.EnqueuedAt,
			DiedAt:     dead.DiedAt,
		})
	}
	return entries, nil
}

// Reprocess moves up to max dead jobs back onto the live queue.
func (s *Service) Reprocess(ctx context.Context, max int) (ReprocessResult, error) {
	if max > maxReprocessBatch {
		max = maxReprocessBatch
	}

	moved, err := s.queue.ReprocessDeadLetters(ctx, max)
	if err != nil {
		return ReprocessResult{}, err
	}
	s.log.Info("dead letters reprocessed", "count", moved)
	return ReprocessResult{Reprocessed: moved}, nil
}
