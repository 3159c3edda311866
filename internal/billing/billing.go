// Package billing credits buyer balances for delivered leads and rolls
// billed leads into monthly invoices. The credit runs as one guarded CTE
// so a lead is billed at most once no matter how many times Bill is
// invoked, and a failed credit leaves the lead pending for the
// reconciliation sweep.
package billing

import (
	"context"
	"fmt"
	"time"

	"leadgen_backend/internal/events"
	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/logger"
)

// Service applies billing and serves the invoice surface.
type Service struct {
	repo Repository
	bus  events.Bus
	log  *logger.Logger
}

// NewService creates the billing service.
func NewService(repo Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// Bill credits the assigned buyer for a delivered lead. Re-invocation on
// a billed lead and invocation on a lead in the wrong state are logged
// no-ops; only storage failures return an error.
func (s *Service) Bill(ctx context.Context, leadID int64) error {
	credit, err := s.apply(ctx, leadID)
	if err != nil {
		return err
	}
	if credit != nil {
		return nil
	}

	status, billing, err := s.repo.BillingState(ctx, leadID)
	if err != nil {
		return err
	}
	switch {
	case billing != domain.BillingPending:
		s.log.BillingSkipped(leadID, "already_billed")
	case status != domain.StatusDelivered:
		s.log.BillingSkipped(leadID, "lead_not_delivered")
	default:
		// Pending and delivered yet nothing credited: no active buyer row.
		s.log.BillingSkipped(leadID, "buyer_not_billable")
	}
	return nil
}

// Reconcile re-runs billing for delivered leads still pending, oldest
// delivery first, and returns how many credits applied.
func (s *Service) Reconcile(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	ids, err := s.repo.PendingDelivered(ctx, limit)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, id := range ids {
		credit, err := s.apply(ctx, id)
		if err != nil {
			s.log.Error("billing reconciliation failed", "lead_id", id, "error", err.Error())
			continue
		}
		if credit != nil {
			applied++
		}
	}
	return applied, nil
}

func (s *Service) apply(ctx context.Context, leadID int64) (*Credit, error) {
	credit, err := s.repo.BillLead(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("bill lead %d: %w", leadID, err)
	}
	if credit == nil {
		return nil, nil
	}

	s.log.BillingApplied(leadID, credit.BuyerID, credit.PriceCents)
	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadBilled{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     leadID,
			BuyerID:    credit.BuyerID,
			PriceCents: credit.PriceCents,
		})
	}
	return credit, nil
}

// GenerateInvoices rolls the calendar month containing periodStart into
// per-buyer draft invoices. Safe to re-run; drafts refresh, sent and paid
// invoices stay untouched.
func (s *Service) GenerateInvoices(ctx context.Context, periodStart time.Time) (int, error) {
	start := time.Date(periodStart.Year(), periodStart.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	n, err := s.repo.GenerateInvoices(ctx, start, end)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("invoices generated", "period", start.Format("2006-01"), "count", n)
	}
	return n, nil
}

// ListInvoices returns one page of invoices.
func (s *Service) ListInvoices(ctx context.Context, params ListParams) (ListResult, error) {
	return s.repo.Invoices(ctx, params)
}

// GetInvoice returns one invoice by id.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.InvoiceByID(ctx, id)
}
