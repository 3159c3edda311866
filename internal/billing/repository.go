package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const msgLeadNotFound = "lead not found"

// Credit is one applied balance credit.
type Credit struct {
	BuyerID      int64
	PriceCents   int64
	BalanceCents int64
}

// Invoice mirrors one invoices row.
type Invoice struct {
	ID               int64
	BuyerID          int64
	InvoiceNumber    string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	TotalLeads       int
	AmountDueCents   int64
	TaxAmountCents   int64
	TotalAmountCents int64
	Status           string
	DueDate          *time.Time
	PaidAt           *time.Time
	CreatedAt        time.Time
}

// ListParams filter the invoice list.
type ListParams struct {
	BuyerID  *int64
	Status   string
	Page     int
	PageSize int
}

// ListResult is one page of invoices.
type ListResult struct {
	Items      []Invoice
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// Repository is the storage surface billing needs.
type Repository interface {
	// BillLead credits the assigned buyer for a delivered lead in one
	// atomic statement. Nil credit with nil error means the guard did not
	// match and nothing changed.
	BillLead(ctx context.Context, leadID int64) (*Credit, error)
	// BillingState reads the lead's status pair for skip classification.
	BillingState(ctx context.Context, leadID int64) (domain.Status, domain.BillingStatus, error)
	// PendingDelivered lists delivered leads still awaiting billing,
	// oldest delivery first.
	PendingDelivered(ctx context.Context, limit int) ([]int64, error)
	// GenerateInvoices rolls billed leads in [periodStart, periodEnd)
	// into per-buyer invoices and returns how many rows were written.
	GenerateInvoices(ctx context.Context, periodStart, periodEnd time.Time) (int, error)
	Invoices(ctx context.Context, params ListParams) (ListResult, error)
	InvoiceByID(ctx context.Context, id int64) (Invoice, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed billing repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// BillLead resolves the price (buyer_offer override, buyer default, offer
// default), flips billing_status under guard, and credits the balance, all
// in one statement. Zero matched rows leave every table untouched.
func (r *pgRepository) BillLead(ctx context.Context, leadID int64) (*Credit, error) {
	query := `
		WITH price AS (
			SELECT l.id AS lead_id,
			       COALESCE(bo.price_per_lead_cents, b.price_per_lead_cents, o.default_price_per_lead_cents) AS cents
			FROM leads l
			JOIN buyers b ON b.id = l.buyer_id AND b.is_active = TRUE
			JOIN offers o ON o.id = l.offer_id
			LEFT JOIN buyer_offers bo
			       ON bo.buyer_id = l.buyer_id AND bo.offer_id = l.offer_id AND bo.is_active = TRUE
			WHERE l.id = $1
		),
		lead_update AS (
			UPDATE leads l
			SET billing_status = 'billed',
			    price_cents = p.cents,
			    billed_at = now(),
			    updated_at = now()
			FROM price p
			WHERE l.id = p.lead_id
			  AND l.billing_status = 'pending'
			  AND l.status = 'delivered'
			RETURNING l.id, l.buyer_id, l.price_cents
		),
		buyer_update AS (
			UPDATE buyers b
			SET balance_cents = b.balance_cents + lu.price_cents,
			    updated_at = now()
			FROM lead_update lu
			WHERE b.id = lu.buyer_id
			RETURNING b.id, b.balance_cents
		)
		SELECT lu.buyer_id, lu.price_cents, bu.balance_cents
		FROM lead_update lu
		JOIN buyer_update bu ON bu.id = lu.buyer_id
	`

	var credit Credit
	err := r.pool.QueryRow(ctx, query, leadID).Scan(&credit.BuyerID, &credit.PriceCents, &credit.BalanceCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bill lead: %w", err)
	}
	return &credit, nil
}

func (r *pgRepository) BillingState(ctx context.Context, leadID int64) (domain.Status, domain.BillingStatus, error) {
	query := `SELECT status, billing_status FROM leads WHERE id = $1`

	var status domain.Status
	var billing domain.BillingStatus
	err := r.pool.QueryRow(ctx, query, leadID).Scan(&status, &billing)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", apperr.NotFound(msgLeadNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("read billing state: %w", err)
	}
	return status, billing, nil
}

func (r *pgRepository) PendingDelivered(ctx context.Context, limit int) ([]int64, error) {
	query := `
		SELECT id FROM leads
		WHERE status = 'delivered' AND billing_status = 'pending'
		ORDER BY delivered_at ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending billing: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending billing: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending billing: %w", err)
	}
	return ids, nil
}

// GenerateInvoices upserts one invoice per buyer with billed leads in the
// period. Regeneration refreshes drafts only; sent and paid invoices are
// never overwritten.
func (r *pgRepository) GenerateInvoices(ctx context.Context, periodStart, periodEnd time.Time) (int, error) {
	query := `
		INSERT INTO invoices (buyer_id, invoice_number, period_start, period_end,
		                      total_leads, amount_due_cents, tax_amount_cents,
		                      total_amount_cents, status, due_date)
		SELECT l.buyer_id,
		       'INV-' || to_char($1::date, 'YYYYMM') || '-' || l.buyer_id,
		       $1::date, $2::date,
		       COUNT(*),
		       SUM(l.price_cents),
		       0,
		       SUM(l.price_cents),
		       'draft',
		       $2::date + 14
		FROM leads l
		WHERE l.billing_status IN ('billed', 'paid')
		  AND l.billed_at >= $1
		  AND l.billed_at < $2
		  AND l.buyer_id IS NOT NULL
		GROUP BY l.buyer_id
		ON CONFLICT (buyer_id, period_start, period_end) DO UPDATE
		SET total_leads = EXCLUDED.total_leads,
		    amount_due_cents = EXCLUDED.amount_due_cents,
		    total_amount_cents = EXCLUDED.total_amount_cents,
		    updated_at = now()
		WHERE invoices.status = 'draft'
	`

	tag, err := r.pool.Exec(ctx, query, periodStart, periodEnd)
	if err != nil {
		return 0, fmt.Errorf("generate invoices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const invoiceColumns = `
	id, buyer_id, invoice_number, period_start, period_end,
	total_leads, amount_due_cents, tax_amount_cents, total_amount_cents,
	status, due_date, paid_at, created_at
`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.BuyerID, &inv.InvoiceNumber, &inv.PeriodStart, &inv.PeriodEnd,
		&inv.TotalLeads, &inv.AmountDueCents, &inv.TaxAmountCents, &inv.TotalAmountCents,
		&inv.Status, &inv.DueDate, &inv.PaidAt, &inv.CreatedAt,
	)
	return inv, err
}

// Invoices returns invoices newest period first with optional buyer and
// status filters.
func (r *pgRepository) Invoices(ctx context.Context, params ListParams) (ListResult, error) {
	var status *string
	if params.Status != "" {
		status = &params.Status
	}

	baseQuery := `
		FROM invoices
		WHERE ($1::bigint IS NULL OR buyer_id = $1)
			AND ($2::text IS NULL OR status = $2)
	`
	args := []interface{}{params.BuyerID, status}

	var total int
	countQuery := "SELECT COUNT(*) " + baseQuery
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count invoices: %w", err)
	}

	page := params.Page
	pageSize := params.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize
	pageTotal := 0
	if pageSize > 0 {
		pageTotal = (total + pageSize - 1) / pageSize
	}

	selectQuery := `SELECT ` + invoiceColumns + `
	` + baseQuery + `
		ORDER BY period_start DESC, buyer_id ASC
		LIMIT $3 OFFSET $4
	`

	args = append(args, pageSize, offset)
	rows, err := r.pool.Query(ctx, selectQuery, args...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	items := make([]Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return ListResult{}, fmt.Errorf("scan invoice: %w", err)
		}
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("iterate invoices: %w", err)
	}

	return ListResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: pageTotal,
	}, nil
}

func (r *pgRepository) InvoiceByID(ctx context.Context, id int64) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	inv, err := scanInvoice(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, apperr.NotFound("invoice not found")
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}
