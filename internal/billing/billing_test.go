package billing

import (
	"context"
	"testing"
	"time"

	"leadgen_backend/internal/events"
	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/apperr"
	"leadgen_backend/platform/logger"
)

const (
	msgUnexpectedError = "unexpected error: %v"
	msgWrongEventCount = "published events = %d, want %d"
)

type fakeRepository struct {
	credits map[int64]*Credit
	billed  map[int64]bool

	status   domain.Status
	billing  domain.BillingStatus
	stateErr error

	pending    []int64
	pendingErr error

	billCalls     []int64
	capturedLimit int
	genStart      time.Time
	genEnd        time.Time
	genCount      int
}

func (f *fakeRepository) BillLead(_ context.Context, leadID int64) (*Credit, error) {
	f.billCalls = append(f.billCalls, leadID)
	if credit, ok := f.credits[leadID]; ok {
		delete(f.credits, leadID)
		if f.billed == nil {
			f.billed = make(map[int64]bool)
		}
		f.billed[leadID] = true
		return credit, nil
	}
	return nil, nil
}

func (f *fakeRepository) BillingState(context.Context, int64) (domain.Status, domain.BillingStatus, error) {
	if f.stateErr != nil {
		return "", "", f.stateErr
	}
	if len(f.billed) > 0 {
		return domain.StatusDelivered, domain.BillingBilled, nil
	}
	return f.status, f.billing, nil
}

func (f *fakeRepository) PendingDelivered(_ context.Context, limit int) ([]int64, error) {
	f.capturedLimit = limit
	return f.pending, f.pendingErr
}

func (f *fakeRepository) GenerateInvoices(_ context.Context, periodStart, periodEnd time.Time) (int, error) {
	f.genStart = periodStart
	f.genEnd = periodEnd
	return f.genCount, nil
}

func (f *fakeRepository) Invoices(context.Context, ListParams) (ListResult, error) {
	return ListResult{}, nil
}

func (f *fakeRepository) InvoiceByID(context.Context, int64) (Invoice, error) {
	return Invoice{}, nil
}

type fakeBus struct {
	published []events.Event
}

func (b *fakeBus) Publish(_ context.Context, e events.Event) {
	b.published = append(b.published, e)
}

func (b *fakeBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *fakeBus) Subscribe(string, events.Handler) {}

func newTestService(repo Repository, bus events.Bus) *Service {
	return NewService(repo, bus, logger.New("test"))
}

func TestBillCreditsTheBuyerExactlyOnce(t *testing.T) {
	repo := &fakeRepository{
		credits: map[int64]*Credit{
			42: {BuyerID: 5, PriceCents: 4500, BalanceCents: 9000},
		},
	}
	bus := &fakeBus{}
	svc := newTestService(repo, bus)

	if err := svc.Bill(context.Background(), 42); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if len(bus.published) != 1 {
		t.Fatalf(msgWrongEventCount, len(bus.published), 1)
	}
	billed, ok := bus.published[0].(events.LeadBilled)
	if !ok {
		t.Fatalf("published %T, want LeadBilled", bus.published[0])
	}
	if billed.LeadID != 42 || billed.BuyerID != 5 || billed.PriceCents != 4500 {
		t.Fatalf("unexpected event payload: %+v", billed)
	}

	// The second invocation hits the flipped guard and must not re-credit.
	if err := svc.Bill(context.Background(), 42); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if len(bus.published) != 1 {
		t.Fatalf(msgWrongEventCount, len(bus.published), 1)
	}
	if len(repo.billCalls) != 2 {
		t.Fatalf("bill statements = %d, want 2", len(repo.billCalls))
	}
}

func TestBillMissingLeadSurfacesNotFound(t *testing.T) {
	repo := &fakeRepository{stateErr: apperr.NotFound("lead not found")}
	svc := newTestService(repo, &fakeBus{})

	err := svc.Bill(context.Background(), 99)
	if err == nil {
		t.Fatal("expected an error")
	}
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("expected not found kind, got %v", apperr.GetKind(err))
	}
}

func TestBillUndeliveredLeadIsQuietNoOp(t *testing.T) {
	repo := &fakeRepository{
		status:  domain.StatusValidated,
		billing: domain.BillingPending,
	}
	bus := &fakeBus{}
	svc := newTestService(repo, bus)

	if err := svc.Bill(context.Background(), 7); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if len(bus.published) != 0 {
		t.Fatalf(msgWrongEventCount, len(bus.published), 0)
	}
}

func TestReconcileBillsPendingLeads(t *testing.T) {
	repo := &fakeRepository{
		pending: []int64{1, 2, 3},
		credits: map[int64]*Credit{
			1: {BuyerID: 5, PriceCents: 4500},
			3: {BuyerID: 6, PriceCents: 5000},
		},
	}
	bus := &fakeBus{}
	svc := newTestService(repo, bus)

	applied, err := svc.Reconcile(context.Background(), 100)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if applied != 2 {
		t.Fatalf("applied = %d, want 2", applied)
	}
	if repo.capturedLimit != 100 {
		t.Fatalf("limit = %d, want 100", repo.capturedLimit)
	}
	if len(bus.published) != 2 {
		t.Fatalf(msgWrongEventCount, len(bus.published), 2)
	}
}

func TestReconcileDefaultsTheLimit(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(repo, &fakeBus{})

	if _, err := svc.Reconcile(context.Background(), 0); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if repo.capturedLimit != 500 {
		t.Fatalf("limit = %d, want 500", repo.capturedLimit)
	}
}

func TestGenerateInvoicesSnapsToCalendarMonth(t *testing.T) {
	repo := &fakeRepository{genCount: 3}
	svc := newTestService(repo, &fakeBus{})

	midMonth := time.Date(2026, time.March, 17, 10, 30, 0, 0, time.UTC)
	n, err := svc.GenerateInvoices(context.Background(), midMonth)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if n != 3 {
		t.Fatalf("generated = %d, want 3", n)
	}

	wantStart := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	if !repo.genStart.Equal(wantStart) || !repo.genEnd.Equal(wantEnd) {
		t.Fatalf("period = [%v, %v), want [%v, %v)", repo.genStart, repo.genEnd, wantStart, wantEnd)
	}
}
