package scheduler

import (
	"context"
	"testing"
	"time"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/internal/routing"
	"leadgen_backend/platform/logger"
)

const msgUnexpectedError = "unexpected error: %v"

type fakeSweepRepo struct {
	leads     []domain.Lead
	gotCutoff time.Time
	gotLimit  int
}

func (f *fakeSweepRepo) StaleValidated(_ context.Context, olderThan time.Time, limit int) ([]domain.Lead, error) {
	f.gotCutoff = olderThan
	f.gotLimit = limit
	return f.leads, nil
}

type fakeRouter struct {
	results map[int64]routing.Result
}

func (f *fakeRouter) Route(_ context.Context, lead domain.Lead) (routing.Result, error) {
	return f.results[lead.ID], nil
}

type fakeMaintQueue struct {
	enqueued []int64
	stale    int
	expired  int
}

func (f *fakeMaintQueue) Enqueue(_ context.Context, leadID int64) (string, error) {
	f.enqueued = append(f.enqueued, leadID)
	return "job-1", nil
}

func (f *fakeMaintQueue) PurgeQueue(context.Context) (int, error) { return f.stale, nil }

func (f *fakeMaintQueue) PurgeDeadLetters(context.Context) (int, error) { return f.expired, nil }

type fakeBilling struct {
	applied   int
	created   int
	gotLimit  int
	gotPeriod time.Time
}

func (f *fakeBilling) Reconcile(_ context.Context, limit int) (int, error) {
	f.gotLimit = limit
	return f.applied, nil
}

func (f *fakeBilling) GenerateInvoices(_ context.Context, periodStart time.Time) (int, error) {
	f.gotPeriod = periodStart
	return f.created, nil
}

// newTestWorker skips the asynq server; withLock runs inline when no
// Redis client is wired.
func newTestWorker(deps Deps) *Worker {
	return &Worker{deps: deps, log: logger.New("test")}
}

func int64Ptr(v int64) *int64 { return &v }

func TestRoutingSweepQueuesFreshWins(t *testing.T) {
	repo := &fakeSweepRepo{leads: []domain.Lead{
		{ID: 1, Status: domain.StatusValidated},
		{ID: 2, Status: domain.StatusValidated},
	}}
	router := &fakeRouter{results: map[int64]routing.Result{
		1: {BuyerID: int64Ptr(7), Strategy: routing.StrategyPriority},
		2: {NoRouteReason: routing.ReasonNoEligibleBuyers},
	}}
	q := &fakeMaintQueue{}
	w := newTestWorker(Deps{Leads: repo, Router: router, Queue: q})

	task, err := NewRoutingSweepTask(RoutingSweepPayload{GraceMinutes: 30, Limit: 25})
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if err := w.handleRoutingSweep(context.Background(), task); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	if len(q.enqueued) != 1 || q.enqueued[0] != 1 {
		t.Fatalf("expected lead 1 enqueued, got %v", q.enqueued)
	}
	if repo.gotLimit != 25 {
		t.Fatalf("expected limit 25, got %d", repo.gotLimit)
	}

	grace := time.Since(repo.gotCutoff)
	if grace < 30*time.Minute || grace > 30*time.Minute+time.Minute {
		t.Fatalf("expected cutoff near 30m ago, got %v", grace)
	}
}

func TestRoutingSweepSkipsConcurrentWinners(t *testing.T) {
	repo := &fakeSweepRepo{leads: []domain.Lead{{ID: 5, Status: domain.StatusValidated}}}
	// No strategy on the result means another pass applied the buyer.
	router := &fakeRouter{results: map[int64]routing.Result{
		5: {BuyerID: int64Ptr(3)},
	}}
	q := &fakeMaintQueue{}
	w := newTestWorker(Deps{Leads: repo, Router: router, Queue: q})

	task, err := NewRoutingSweepTask(RoutingSweepPayload{})
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if err := w.handleRoutingSweep(context.Background(), task); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	if len(q.enqueued) != 0 {
		t.Fatalf("concurrent winner must not be re-enqueued, got %v", q.enqueued)
	}
	if repo.gotLimit != defaultSweepLimit {
		t.Fatalf("expected default limit %d, got %d", defaultSweepLimit, repo.gotLimit)
	}
}

func TestBillingReconcileDefaultsLimit(t *testing.T) {
	billing := &fakeBilling{applied: 3}
	w := newTestWorker(Deps{Billing: billing})

	task, err := NewBillingReconcileTask(BillingReconcilePayload{})
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if err := w.handleBillingReconcile(context.Background(), task); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	if billing.gotLimit != defaultReconcileLimit {
		t.Fatalf("expected default limit %d, got %d", defaultReconcileLimit, billing.gotLimit)
	}
}

func TestQueuePurgeTrimsBothSets(t *testing.T) {
	q := &fakeMaintQueue{stale: 2, expired: 4}
	w := newTestWorker(Deps{Queue: q})

	if err := w.handleQueuePurge(context.Background(), NewQueuePurgeTask()); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
}

func TestInvoiceGenerateTargetsPreviousMonth(t *testing.T) {
	billing := &fakeBilling{created: 2}
	w := newTestWorker(Deps{Billing: billing})

	if err := w.handleInvoiceGenerate(context.Background(), NewInvoiceGenerateTask()); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	got := billing.gotPeriod
	if got.Day() != 1 || got.Hour() != 0 || got.Minute() != 0 {
		t.Fatalf("expected first of month at midnight, got %v", got)
	}
	age := time.Since(got)
	if age <= 0 || age > 62*24*time.Hour {
		t.Fatalf("expected previous month start, got %v", got)
	}
}
