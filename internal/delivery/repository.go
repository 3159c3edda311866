package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const msgLeadNotFound = "lead not found"

// Repository is the database surface of the delivery engine.
type Repository interface {
	LoadTarget(ctx context.Context, leadID int64) (*Target, error)
	MarkDelivered(ctx context.Context, leadID int64) (domain.Outcome, domain.Status, error)
	RecordAttempt(ctx context.Context, leadID int64, rec domain.AttemptRecord) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// LoadTarget loads the lead together with the buyer's channel settings,
// buyer_offer overrides already applied. Buyer columns come back empty
// when no buyer is assigned yet.
func (r *pgRepository) LoadTarget(ctx context.Context, leadID int64) (*Target, error) {
	query := `
		SELECT
			l.id, l.buyer_id, l.status, l.idempotency_key, s.source_key, l.delivery_attempts,
			l.name, l.email, l.phone, l.country_code, l.postal_code, l.city,
			l.region_code, l.message, l.utm_source, l.utm_medium, l.utm_campaign,
			COALESCE(bo.webhook_url_override, b.webhook_url) AS webhook_url,
			COALESCE(bo.webhook_secret_override, b.webhook_secret) AS webhook_secret,
			COALESCE(b.email_notifications, FALSE) AS email_enabled,
			COALESCE(bo.email_override, b.email) AS email_to,
			COALESCE(b.sms_notifications, FALSE) AS sms_enabled,
			b.phone AS sms_to
		FROM leads l
		JOIN sources s ON s.id = l.source_id
		LEFT JOIN buyers b ON b.id = l.buyer_id
		LEFT JOIN buyer_offers bo
		       ON bo.buyer_id = l.buyer_id AND bo.offer_id = l.offer_id AND bo.is_active = TRUE
		WHERE l.id = $1`

	var t Target
	err := r.pool.QueryRow(ctx, query, leadID).Scan(
		&t.LeadID, &t.BuyerID, &t.Status, &t.IdempotencyKey, &t.SourceKey, &t.Attempts,
		&t.Name, &t.Email, &t.Phone, &t.CountryCode, &t.PostalCode, &t.City,
		&t.RegionCode, &t.Message, &t.UTMSource, &t.UTMMedium, &t.UTMCampaign,
		&t.WebhookURL, &t.WebhookSecret,
		&t.EmailEnabled, &t.EmailTo,
		&t.SMSEnabled, &t.SMSTo,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(msgLeadNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load delivery target: %w", err)
	}
	return &t, nil
}

// MarkDelivered performs the guarded validated -> delivered transition.
func (r *pgRepository) MarkDelivered(ctx context.Context, leadID int64) (domain.Outcome, domain.Status, error) {
	query := `
		UPDATE leads
		SET status = 'delivered', delivered_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'validated'`

	tag, err := r.pool.Exec(ctx, query, leadID)
	if err != nil {
		return domain.OutcomeConflict, "", fmt.Errorf("mark lead delivered: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return domain.OutcomeApplied, domain.StatusDelivered, nil
	}

	var status domain.Status
	if err := r.pool.QueryRow(ctx, `SELECT status FROM leads WHERE id = $1`, leadID).Scan(&status); err != nil {
		return domain.OutcomeConflict, "", fmt.Errorf("re-read lead status: %w", err)
	}
	switch status {
	case domain.StatusDelivered, domain.StatusAccepted:
		return domain.OutcomeAlreadyApplied, status, nil
	default:
		return domain.OutcomeConflict, status, nil
	}
}

// RecordAttempt appends one attempt record to the lead's delivery
// history and bumps the attempt counter in the same statement.
func (r *pgRepository) RecordAttempt(ctx context.Context, leadID int64, rec domain.AttemptRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal attempt record: %w", err)
	}

	query := `
		UPDATE leads
		SET delivery_attempts = delivery_attempts + 1,
		    delivery_result = delivery_result || $2::jsonb,
		    updated_at = now()
		WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, leadID, doc); err != nil {
		return fmt.Errorf("record delivery attempt: %w", err)
	}
	return nil
}
