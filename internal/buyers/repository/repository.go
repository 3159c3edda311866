package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadgen_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const buyerNotFoundMsg = "buyer not found"

// Repository provides database operations for buyers.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new buyers repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Buyer struct {
	ID                      int64
	Name                    string
	Email                   *string
	Phone                   *string
	WebhookURL              *string
	WebhookSecret           *string
	EmailNotifications      bool
	SMSNotifications        bool
	BalanceCents            int64
	PricePerLeadCents       *int64
	MinBalanceRequiredCents *int64
	RoutingPriority         int
	IsActive                bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

type BuyerUpdate struct {
	ID                      int64
	Name                    *string
	Email                   *string
	Phone                   *string
	WebhookURL              *string
	WebhookSecret           *string
	EmailNotifications      *bool
	SMSNotifications        *bool
	PricePerLeadCents       *int64
	MinBalanceRequiredCents *int64
	RoutingPriority         *int
	IsActive                *bool
}

type BuyerStats struct {
	TotalLeads     int
	DeliveredLeads int
}

type ListParams struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}

type ListResult struct {
	Items      []Buyer
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

type BuyerOffer struct {
	ID                    int64
	BuyerID               int64
	OfferID               int64
	OfferName             string
	PricePerLeadCents     *int64
	WebhookURLOverride    *string
	WebhookSecretOverride *string
	EmailOverride         *string
	CapacityPerDay        *int
	CapacityPerHour       *int
	RoutingPriority       *int
	PauseUntil            *time.Time
	IsActive              bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type EnrollParams struct {
	BuyerID               int64
	OfferID               int64
	PricePerLeadCents     *int64
	WebhookURLOverride    *string
	WebhookSecretOverride *string
	EmailOverride         *string
	CapacityPerDay        *int
	CapacityPerHour       *int
	RoutingPriority       *int
	PauseUntil            *time.Time
}

type ServiceArea struct {
	ID         int64
	BuyerID    int64
	MarketID   int64
	ScopeType  string
	ScopeValue string
	IsActive   bool
	CreatedAt  time.Time
}

type Exclusivity struct {
	ID         int64
	OfferID    int64
	BuyerID    int64
	ScopeType  string
	ScopeValue string
	IsActive   bool
	CreatedAt  time.Time
}

const buyerColumns = `id, name, email, phone, webhook_url, webhook_secret,
		email_notifications, sms_notifications, balance_cents, price_per_lead_cents,
		min_balance_required_cents, routing_priority, is_active, created_at, updated_at`

func scanBuyer(row pgx.Row) (Buyer, error) {
	var b Buyer
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Email,
		&b.Phone,
		&b.WebhookURL,
		&b.WebhookSecret,
		&b.EmailNotifications,
		&b.SMSNotifications,
		&b.BalanceCents,
		&b.PricePerLeadCents,
		&b.MinBalanceRequiredCents,
		&b.RoutingPriority,
		&b.IsActive,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

func (r *Repository) Create(ctx context.Context, buyer Buyer) (Buyer, error) {
	query := `
		INSERT INTO buyers (
			name, email, phone, webhook_url, webhook_secret,
			email_notifications, sms_notifications, price_per_lead_cents,
			min_balance_required_cents, routing_priority
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10
		)
		RETURNING ` + buyerColumns

	created, err := scanBuyer(r.pool.QueryRow(ctx, query,
		buyer.Name,
		buyer.Email,
		buyer.Phone,
		buyer.WebhookURL,
		buyer.WebhookSecret,
		buyer.EmailNotifications,
		buyer.SMSNotifications,
		buyer.PricePerLeadCents,
		buyer.MinBalanceRequiredCents,
		buyer.RoutingPriority,
	))
	if err != nil {
		return Buyer{}, fmt.Errorf("create buyer: %w", err)
	}

	return created, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (Buyer, error) {
	query := `SELECT ` + buyerColumns + ` FROM buyers WHERE id = $1`

	buyer, err := scanBuyer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Buyer{}, apperr.NotFound(buyerNotFoundMsg)
		}
		return Buyer{}, fmt.Errorf("get buyer: %w", err)
	}

	return buyer, nil
}

func (r *Repository) Update(ctx context.Context, update BuyerUpdate) (Buyer, error) {
	query := `
		UPDATE buyers
		SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			webhook_url = COALESCE($5, webhook_url),
			webhook_secret = COALESCE($6, webhook_secret),
			email_notifications = COALESCE($7, email_notifications),
			sms_notifications = COALESCE($8, sms_notifications),
			price_per_lead_cents = COALESCE($9, price_per_lead_cents),
			min_balance_required_cents = COALESCE($10, min_balance_required_cents),
			routing_priority = COALESCE($11, routing_priority),
			is_active = COALESCE($12, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + buyerColumns

	buyer, err := scanBuyer(r.pool.QueryRow(ctx, query,
		update.ID,
		update.Name,
		update.Email,
		update.Phone,
		update.WebhookURL,
		update.WebhookSecret,
		update.EmailNotifications,
		update.SMSNotifications,
		update.PricePerLeadCents,
		update.MinBalanceRequiredCents,
		update.RoutingPriority,
		update.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Buyer{}, apperr.NotFound(buyerNotFoundMsg)
		}
		return Buyer{}, fmt.Errorf("update buyer: %w", err)
	}

	return buyer, nil
}

func (r *Repository) List(ctx context.Context, params ListParams) (ListResult, error) {
	searchParam := optionalSearch(params.Search)

	baseQuery := `
		FROM buyers
		WHERE ($1::text IS NULL OR name ILIKE $1 OR email ILIKE $1)
			AND ($2::boolean IS NULL OR is_active = $2)
	`
	args := []interface{}{searchParam, params.Active}

	var total int
	countQuery := "SELECT COUNT(*) " + baseQuery
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count buyers: %w", err)
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

	selectQuery := `SELECT ` + buyerColumns + baseQuery + `
		ORDER BY name ASC, id ASC
		LIMIT $3 OFFSET $4
	`

	args = append(args, pageSize, offset)
	rows, err := r.pool.Query(ctx, selectQuery, args...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list buyers: %w", err)
	}
	defer rows.Close()

	items := make([]Buyer, 0)
	for rows.Next() {
		buyer, err := scanBuyer(rows)
		if err != nil {
			return ListResult{}, fmt.Errorf("scan buyer: %w", err)
		}
		items = append(items, buyer)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("iterate buyers: %w", err)
	}

	return ListResult{Items: items, Total: total, Page: page, PageSize: pageSize, TotalPages: pageTotal}, nil
}

func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM buyers WHERE id = $1)`
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check buyer exists: %w", err)
	}
	return exists, nil
}

// NameOrEmailTaken reports whether another buyer already uses the name
// (case-insensitive) or email. Pass excludeID 0 when creating.
func (r *Repository) NameOrEmailTaken(ctx context.Context, name string, email *string, excludeID int64) (bool, error) {
	var taken bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM buyers
			WHERE (lower(name) = lower($1) OR ($2::text IS NOT NULL AND email = $2))
				AND id <> $3
		)
	`
	if err := r.pool.QueryRow(ctx, query, name, email, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("check buyer conflict: %w", err)
	}
	return taken, nil
}

// Stats counts a buyer's leads. Delivered includes leads that later
// moved to accepted or rejected.
func (r *Repository) Stats(ctx context.Context, buyerID int64) (BuyerStats, error) {
	var stats BuyerStats
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE delivered_at IS NOT NULL)
		FROM leads
		WHERE buyer_id = $1
	`
	if err := r.pool.QueryRow(ctx, query, buyerID).Scan(&stats.TotalLeads, &stats.DeliveredLeads); err != nil {
		return BuyerStats{}, fmt.Errorf("count buyer leads: %w", err)
	}
	return stats, nil
}

func (r *Repository) OfferName(ctx context.Context, offerID int64) (string, error) {
	var name string
	query := `SELECT name FROM offers WHERE id = $1`
	if err := r.pool.QueryRow(ctx, query, offerID).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("offer not found")
		}
		return "", fmt.Errorf("get offer name: %w", err)
	}
	return name, nil
}

// EnrollOffer inserts or refreshes a buyer's enrollment on an offer.
// A previously deactivated enrollment comes back active.
func (r *Repository) EnrollOffer(ctx context.Context, params EnrollParams) (BuyerOffer, error) {
	query := `
		INSERT INTO buyer_offers (
			buyer_id, offer_id, price_per_lead_cents, webhook_url_override,
			webhook_secret_override, email_override, capacity_per_day,
			capacity_per_hour, routing_priority, pause_until
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10
		)
		ON CONFLICT (buyer_id, offer_id) DO UPDATE SET
			price_per_lead_cents = EXCLUDED.price_per_lead_cents,
			webhook_url_override = EXCLUDED.webhook_url_override,
			webhook_secret_override = EXCLUDED.webhook_secret_override,
			email_override = EXCLUDED.email_override,
			capacity_per_day = EXCLUDED.capacity_per_day,
			capacity_per_hour = EXCLUDED.capacity_per_hour,
			routing_priority = EXCLUDED.routing_priority,
			pause_until = EXCLUDED.pause_until,
			is_active = TRUE,
			updated_at = now()
		RETURNING id, buyer_id, offer_id, price_per_lead_cents, webhook_url_override,
			webhook_secret_override, email_override, capacity_per_day,
			capacity_per_hour, routing_priority, pause_until, is_active,
			created_at, updated_at
	`

	var enrollment BuyerOffer
	err := r.pool.QueryRow(ctx, query,
		params.BuyerID,
		params.OfferID,
		params.PricePerLeadCents,
		params.WebhookURLOverride,
		params.WebhookSecretOverride,
		params.EmailOverride,
		params.CapacityPerDay,
		params.CapacityPerHour,
		params.RoutingPriority,
		params.PauseUntil,
	).Scan(
		&enrollment.ID,
		&enrollment.BuyerID,
		&enrollment.OfferID,
		&enrollment.PricePerLeadCents,
		&enrollment.WebhookURLOverride,
		&enrollment.WebhookSecretOverride,
		&enrollment.EmailOverride,
		&enrollment.CapacityPerDay,
		&enrollment.CapacityPerHour,
		&enrollment.RoutingPriority,
		&enrollment.PauseUntil,
		&enrollment.IsActive,
		&enrollment.CreatedAt,
		&enrollment.UpdatedAt,
	)
	if err != nil {
		return BuyerOffer{}, fmt.Errorf("enroll buyer offer: %w", err)
	}

	return enrollment, nil
}

func (r *Repository) ListOffers(ctx context.Context, buyerID int64) ([]BuyerOffer, error) {
	query := `
		SELECT bo.id, bo.buyer_id, bo.offer_id, o.name, bo.price_per_lead_cents,
			bo.webhook_url_override, bo.webhook_secret_override, bo.email_override,
			bo.capacity_per_day, bo.capacity_per_hour, bo.routing_priority,
			bo.pause_until, bo.is_active, bo.created_at, bo.updated_at
		FROM buyer_offers bo
		JOIN offers o ON o.id = bo.offer_id
		WHERE bo.buyer_id = $1
		ORDER BY o.name ASC
	`

	rows, err := r.pool.Query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list buyer offers: %w", err)
	}
	defer rows.Close()

	offers := make([]BuyerOffer, 0)
	for rows.Next() {
		var enrollment BuyerOffer
		if err := rows.Scan(
			&enrollment.ID,
			&enrollment.BuyerID,
			&enrollment.OfferID,
			&enrollment.OfferName,
			&enrollment.PricePerLeadCents,
			&enrollment.WebhookURLOverride,
			&enrollment.WebhookSecretOverride,
			&enrollment.EmailOverride,
			&enrollment.CapacityPerDay,
			&enrollment.CapacityPerHour,
			&enrollment.RoutingPriority,
			&enrollment.PauseUntil,
			&enrollment.IsActive,
			&enrollment.CreatedAt,
			&enrollment.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan buyer offer: %w", err)
		}
		offers = append(offers, enrollment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buyer offers: %w", err)
	}

	return offers, nil
}

func (r *Repository) MarketExists(ctx context.Context, marketID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)`
	if err := r.pool.QueryRow(ctx, query, marketID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check market exists: %w", err)
	}
	return exists, nil
}

// AddServiceArea inserts a coverage row, reactivating it when the same
// scope was added before.
func (r *Repository) AddServiceArea(ctx context.Context, area ServiceArea) (ServiceArea, error) {
	query := `
		INSERT INTO buyer_service_areas (buyer_id, market_id, scope_type, scope_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (buyer_id, market_id, scope_type, scope_value) DO UPDATE SET
			is_active = TRUE
		RETURNING id, buyer_id, market_id, scope_type, scope_value, is_active, created_at
	`

	var created ServiceArea
	err := r.pool.QueryRow(ctx, query,
		area.BuyerID,
		area.MarketID,
		area.ScopeType,
		area.ScopeValue,
	).Scan(
		&created.ID,
		&created.BuyerID,
		&created.MarketID,
		&created.ScopeType,
		&created.ScopeValue,
		&created.IsActive,
		&created.CreatedAt,
	)
	if err != nil {
		return ServiceArea{}, fmt.Errorf("add buyer service area: %w", err)
	}

	return created, nil
}

func (r *Repository) ListServiceAreas(ctx context.Context, buyerID int64) ([]ServiceArea, error) {
	query := `
		SELECT id, buyer_id, market_id, scope_type, scope_value, is_active, created_at
		FROM buyer_service_areas
		WHERE buyer_id = $1
		ORDER BY market_id ASC, scope_type ASC, scope_value ASC
	`

	rows, err := r.pool.Query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list buyer service areas: %w", err)
	}
	defer rows.Close()

	areas := make([]ServiceArea, 0)
	for rows.Next() {
		var area ServiceArea
		if err := rows.Scan(
			&area.ID,
			&area.BuyerID,
			&area.MarketID,
			&area.ScopeType,
			&area.ScopeValue,
			&area.IsActive,
			&area.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan buyer service area: %w", err)
		}
		areas = append(areas, area)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buyer service areas: %w", err)
	}

	return areas, nil
}

// GrantExclusivity reserves a scope on an offer for this buyer. The
// partial unique index admits one active holder per scope, so a taken
// scope inserts nothing.
func (r *Repository) GrantExclusivity(ctx context.Context, grant Exclusivity) (Exclusivity, error) {
	query := `
		INSERT INTO offer_exclusivities (offer_id, buyer_id, scope_type, scope_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (offer_id, scope_type, scope_value) WHERE is_active DO NOTHING
		RETURNING id, offer_id, buyer_id, scope_type, scope_value, is_active, created_at
	`

	var created Exclusivity
	err := r.pool.QueryRow(ctx, query,
		grant.OfferID,
		grant.BuyerID,
		grant.ScopeType,
		grant.ScopeValue,
	).Scan(
		&created.ID,
		&created.OfferID,
		&created.BuyerID,
		&created.ScopeType,
		&created.ScopeValue,
		&created.IsActive,
		&created.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Exclusivity{}, apperr.Conflict("scope already exclusively assigned")
		}
		return Exclusivity{}, fmt.Errorf("grant offer exclusivity: %w", err)
	}

	return created, nil
}

func (r *Repository) ListExclusivities(ctx context.Context, buyerID int64) ([]Exclusivity, error) {
	query := `
		SELECT id, offer_id, buyer_id, scope_type, scope_value, is_active, created_at
		FROM offer_exclusivities
		WHERE buyer_id = $1
		ORDER BY offer_id ASC, scope_type ASC, scope_value ASC
	`

	rows, err := r.pool.Query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list offer exclusivities: %w", err)
	}
	defer rows.Close()

	grants := make([]Exclusivity, 0)
	for rows.Next() {
		var grant Exclusivity
		if err := rows.Scan(
			&grant.ID,
			&grant.OfferID,
			&grant.BuyerID,
			&grant.ScopeType,
			&grant.ScopeValue,
			&grant.IsActive,
			&grant.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan offer exclusivity: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offer exclusivities: %w", err)
	}

	return grants, nil
}

func optionalSearch(value string) interface{} {
	if value == "" {
		return nil
	}
	return "%" + value + "%"
}
