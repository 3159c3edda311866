// Package repository provides database operations for leads: atomic
// admission, row reads, and the paginated admin listing. Stage-specific
// guarded transitions live with their pipeline stage.
package repository

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

const leadNotFoundMsg = "lead not found"

// Repository provides database operations for leads.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new leads repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AdmitParams carries everything a new lead row is inserted with.
type AdmitParams struct {
	SourceID   int64
	OfferID    int64
	MarketID   int64
	VerticalID int64

	IdempotencyKey string

	Name        *string
	Email       *string
	Phone       *string
	CountryCode *string
	PostalCode  *string
	City        *string
	RegionCode  *string
	Message     *string

	NormalizedEmail *string
	NormalizedPhone *string

	UTMSource   *string
	UTMMedium   *string
	UTMCampaign *string
	IPAddress   *string
	UserAgent   *string
}

// AdmitResult reports the row the submission landed on. Under N
// concurrent identical submissions every caller gets the same LeadID
// and exactly one observes CreatedNew.
type AdmitResult struct {
	LeadID     int64
	Status     domain.Status
	CreatedNew bool
}

// Admit inserts the lead or, when (source_id, idempotency_key) already
// exists, touches the existing row. One statement, never read-then-write;
// xmax = 0 distinguishes a fresh insert from a conflict-update.
func (r *Repository) Admit(ctx context.Context, params AdmitParams) (AdmitResult, error) {
	query := `
		INSERT INTO leads (
			source_id, offer_id, market_id, vertical_id, idempotency_key,
			name, email, phone, country_code, postal_code, city, region_code, message,
			normalized_email, normalized_phone,
			utm_source, utm_medium, utm_campaign, ip_address, user_agent
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15,
			$16, $17, $18, $19, $20
		)
		ON CONFLICT (source_id, idempotency_key) DO UPDATE SET updated_at = now()
		RETURNING id, status, (xmax = 0) AS created_new
	`

	var result AdmitResult
	err := r.pool.QueryRow(ctx, query,
		params.SourceID,
		params.OfferID,
		params.MarketID,
		params.VerticalID,
		params.IdempotencyKey,
		params.Name,
		params.Email,
		params.Phone,
		params.CountryCode,
		params.PostalCode,
		params.City,
		params.RegionCode,
		params.Message,
		params.NormalizedEmail,
		params.NormalizedPhone,
		params.UTMSource,
		params.UTMMedium,
		params.UTMCampaign,
		params.IPAddress,
		params.UserAgent,
	).Scan(&result.LeadID, &result.Status, &result.CreatedNew)
	if err != nil {
		return AdmitResult{}, fmt.Errorf("admit lead: %w", err)
	}

	return result, nil
}

const leadColumns = `
	id, source_id, offer_id, market_id, vertical_id, idempotency_key,
	name, email, phone, country_code, postal_code, city, region_code, message,
	normalized_email, normalized_phone,
	utm_source, utm_medium, utm_campaign, ip_address, user_agent,
	status, validation_reason, is_duplicate, duplicate_of_lead_id,
	buyer_id, delivery_attempts, delivery_result, delivered_at,
	billing_status, price_cents, billed_at,
	created_at, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var lead domain.Lead
	err := row.Scan(
		&lead.ID,
		&lead.SourceID,
		&lead.OfferID,
		&lead.MarketID,
		&lead.VerticalID,
		&lead.IdempotencyKey,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.CountryCode,
		&lead.PostalCode,
		&lead.City,
		&lead.RegionCode,
		&lead.Message,
		&lead.NormalizedEmail,
		&lead.NormalizedPhone,
		&lead.UTMSource,
		&lead.UTMMedium,
		&lead.UTMCampaign,
		&lead.IPAddress,
		&lead.UserAgent,
		&lead.Status,
		&lead.ValidationReason,
		&lead.IsDuplicate,
		&lead.DuplicateOfLeadID,
		&lead.BuyerID,
		&lead.DeliveryAttempts,
		&lead.DeliveryResult,
		&lead.DeliveredAt,
		&lead.BillingStatus,
		&lead.PriceCents,
		&lead.BilledAt,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	return lead, err
}

// GetByID loads one lead.
func (r *Repository) GetByID(ctx context.Context, id int64) (domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	lead, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, apperr.NotFound(leadNotFoundMsg)
		}
		return domain.Lead{}, fmt.Errorf("get lead: %w", err)
	}

	return lead, nil
}

type ListParams struct {
	Status   string
	OfferID  *int64
	SourceID *int64
	BuyerID  *int64
	Page     int
	PageSize int
}

type ListResult struct {
	Items      []domain.Lead
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// List returns leads newest-first with optional status, offer, source,
// and buyer filters.
func (r *Repository) List(ctx context.Context, params ListParams) (ListResult, error) {
	var status *string
	if params.Status != "" {
		status = &params.Status
	}

	baseQuery := `
		FROM leads
		WHERE ($1::text IS NULL OR status = $1)
			AND ($2::bigint IS NULL OR offer_id = $2)
			AND ($3::bigint IS NULL OR source_id = $3)
			AND ($4::bigint IS NULL OR buyer_id = $4)
	`
	args := []interface{}{status, params.OfferID, params.SourceID, params.BuyerID}

	var total int
	countQuery := "SELECT COUNT(*) " + baseQuery
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count leads: %w", err)
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

	selectQuery := `SELECT ` + leadColumns + `
	` + baseQuery + `
		ORDER BY created_at DESC, id DESC
		LIMIT $5 OFFSET $6
	`

	args = append(args, pageSize, offset)
	rows, err := r.pool.Query(ctx, selectQuery, args...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return ListResult{}, fmt.Errorf("scan lead: %w", err)
		}
		items = append(items, lead)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("iterate leads: %w", err)
	}

	return ListResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: pageTotal,
	}, nil
}

// StaleValidated lists validated leads that still carry no buyer, oldest
// first. The cutoff keeps leads an ingest pass is actively routing out
// of the sweep.
func (r *Repository) StaleValidated(ctx context.Context, olderThan time.Time, limit int) ([]domain.Lead, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE status = 'validated' AND buyer_id IS NULL AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale validated leads: %w", err)
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale lead: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale leads: %w", err)
	}

	return leads, nil
}
