package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadgen_backend/internal/delivery/queue"
	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/logger"
)

const msgUnexpectedError = "unexpected error: %v"

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeQueue struct {
	stats    queue.Stats
	statsErr error
	dead     []queue.DeadJob
	moved    int
	gotLimit int
	gotMax   int
}

func (f *fakeQueue) Stats(context.Context) (queue.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeQueue) DeadLetters(_ context.Context, limit int) ([]queue.DeadJob, error) {
	f.gotLimit = limit
	return f.dead, nil
}

func (f *fakeQueue) ReprocessDeadLetters(_ context.Context, max int) (int, error) {
	f.gotMax = max
	return f.moved, nil
}

type fakeStatsRepo struct {
	counts   map[domain.Status]int64
	err      error
	gotSince time.Time
}

func (f *fakeStatsRepo) CountLeadsByStatus(_ context.Context, since time.Time) (map[domain.Status]int64, error) {
	f.gotSince = since
	return f.counts, f.err
}

func newTestService(db, redisConn Pinger, q QueueInspector, repo PipelineRepository) *Service {
	return NewService(db, redisConn, q, repo, logger.New("test"))
}

func TestHealthReportsOKWhenDependenciesAnswer(t *testing.T) {
	svc := newTestService(fakePinger{}, fakePinger{}, &fakeQueue{}, &fakeStatsRepo{})

	report := svc.Health(context.Background())
	if report.Status != "ok" {
		t.Fatalf("expected ok status, got %q", report.Status)
	}
	if report.Checks["database"].Status != "ok" || report.Checks["redis"].Status != "ok" {
		t.Fatalf("unexpected checks: %+v", report.Checks)
	}
}

func TestHealthDegradesWhenRedisFails(t *testing.T) {
	svc := newTestService(fakePinger{}, fakePinger{err: errors.New("connection refused")}, &fakeQueue{}, &fakeStatsRepo{})

	report := svc.Health(context.Background())
	if report.Status != "degraded" {
		t.Fatalf("expected degraded status, got %q", report.Status)
	}
	if report.Checks["database"].Status != "ok" {
		t.Fatalf("database check should stay ok, got %+v", report.Checks["database"])
	}
	redisCheck := report.Checks["redis"]
	if redisCheck.Status != "unavailable" || redisCheck.Error != "connection refused" {
		t.Fatalf("unexpected redis check: %+v", redisCheck)
	}
}

func TestHealthFlagsUnconfiguredDependency(t *testing.T) {
	svc := newTestService(fakePinger{}, nil, &fakeQueue{}, &fakeStatsRepo{})

	report := svc.Health(context.Background())
	if report.Status != "degraded" {
		t.Fatalf("expected degraded status, got %q", report.Status)
	}
	if report.Checks["redis"].Status != "unavailable" {
		t.Fatalf("unexpected redis check: %+v", report.Checks["redis"])
	}
}

func TestReadyRequiresEveryDependency(t *testing.T) {
	svc := newTestService(fakePinger{err: errors.New("pool closed")}, fakePinger{}, &fakeQueue{}, &fakeStatsRepo{})

	report, ready := svc.Ready(context.Background())
	if ready {
		t.Fatal("expected not ready with a failing pool")
	}
	if report.Status != "not_ready" {
		t.Fatalf("expected not_ready status, got %q", report.Status)
	}

	svc = newTestService(fakePinger{}, fakePinger{}, &fakeQueue{}, &fakeStatsRepo{})
	report, ready = svc.Ready(context.Background())
	if !ready || report.Status != "ready" {
		t.Fatalf("expected ready, got %v %q", ready, report.Status)
	}
}

func TestPipelineStatsAggregatesWindow(t *testing.T) {
	repo := &fakeStatsRepo{counts: map[domain.Status]int64{
		domain.StatusReceived:  2,
		domain.StatusDelivered: 3,
	}}
	svc := newTestService(fakePinger{}, fakePinger{}, &fakeQueue{}, repo)

	stats, err := svc.PipelineStats(context.Background(), 0)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if stats.WindowHours != 24 {
		t.Fatalf("expected default 24h window, got %d", stats.WindowHours)
	}
	if stats.Total != 5 || stats.ByStatus["delivered"] != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	window := time.Since(repo.gotSince)
	if window < 24*time.Hour || window > 24*time.Hour+time.Minute {
		t.Fatalf("expected since near 24h ago, got %v", window)
	}
}

func TestPipelineStatsClampsOversizedWindow(t *testing.T) {
	repo := &fakeStatsRepo{counts: map[domain.Status]int64{}}
	svc := newTestService(fakePinger{}, fakePinger{}, &fakeQueue{}, repo)

	stats, err := svc.PipelineStats(context.Background(), 5000)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if stats.WindowHours != maxWindowHours {
		t.Fatalf("expected clamp to %d hours, got %d", maxWindowHours, stats.WindowHours)
	}
}

func TestDeadLettersMapsParkedJobs(t *testing.T) {
	died := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := &fakeQueue{dead: []queue.DeadJob{{
		Job:       queue.Job{ID: "job-1", LeadID: 42, EnqueuedAt: died.Add(-time.Hour)},
		Attempts:  5,
		LastError: "webhook returned 500",
		DiedAt:    died,
	}}}
	svc := newTestService(fakePinger{}, fakePinger{}, q, &fakeStatsRepo{})

	entries, err := svc.DeadLetters(context.Background(), 10)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.JobID != "job-1" || entry.LeadID != 42 || entry.Attempts != 5 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.LastError != "webhook returned 500" || !entry.DiedAt.Equal(died) {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if q.gotLimit != 10 {
		t.Fatalf("expected limit 10 passed through, got %d", q.gotLimit)
	}
}

func TestReprocessClampsBatchSize(t *testing.T) {
	q := &fakeQueue{moved: 4}
	svc := newTestService(fakePinger{}, fakePinger{}, q, &fakeStatsRepo{})

	result, err := svc.Reprocess(context.Background(), 100000)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if result.Reprocessed != 4 {
		t.Fatalf("expected 4 reprocessed, got %d", result.Reprocessed)
	}
	if q.gotMax != maxReprocessBatch {
		t.Fatalf("expected clamp to %d, got %d", maxReprocessBatch, q.gotMax)
	}
}
