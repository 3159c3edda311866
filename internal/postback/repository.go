package postback

import (
	"context"
	"errors"
	"fmt"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const msgLeadNotFound = "lead not found"

// Repository is the database surface of the postback receiver.
type Repository interface {
	BuyerSecret(ctx context.Context, buyerID int64) (*string, error)
	RecordDisposition(ctx context.Context, leadID, buyerID int64, target domain.Status) (domain.Outcome, domain.Status, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) BuyerSecret(ctx context.Context, buyerID int64) (*string, error) {
	var secret *string
	err := r.pool.QueryRow(ctx, `SELECT webhook_secret FROM buyers WHERE id = $1`, buyerID).Scan(&secret)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("buyer not found")
		}
		return nil, fmt.Errorf("get buyer secret: %w", err)
	}
	return secret, nil
}

// RecordDisposition performs the guarded delivered -> accepted/rejected
// transition for a lead the buyer owns. A rejection also flags the
// lead's billing as disputed. Zero guarded rows trigger a re-read so the
// caller learns what state won the race.
func (r *pgRepository) RecordDisposition(ctx context.Context, leadID, buyerID int64, target domain.Status) (domain.Outcome, domain.Status, error) {
	var query string
	switch target {
	case domain.StatusAccepted:
		query = `
			UPDATE leads
			SET status = 'accepted', updated_at = now()
			WHERE id = $1 AND buyer_id = $2 AND status = 'delivered'`
	case domain.StatusRejected:
		query = `
			UPDATE leads
			SET status = 'rejected', billing_status = 'disputed', updated_at = now()
			WHERE id = $1 AND buyer_id = $2 AND status = 'delivered'`
	default:
		return domain.OutcomeConflict, "", fmt.Errorf("disposition target %q is not recordable", target)
	}

	tag, err := r.pool.Exec(ctx, query, leadID, buyerID)
	if err != nil {
		return domain.OutcomeConflict, "", fmt.Errorf("record disposition: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return domain.OutcomeApplied, target, nil
	}

	var status domain.Status
	var owner *int64
	err = r.pool.QueryRow(ctx, `SELECT status, buyer_id FROM leads WHERE id = $1`, leadID).Scan(&status, &owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OutcomeConflict, "", apperr.NotFound(msgLeadNotFound)
		}
		return domain.OutcomeConflict, "", fmt.Errorf("re-read lead: %w", err)
	}
	// A lead routed to another buyer is invisible to this caller.
	if owner == nil || *owner != buyerID {
		return domain.OutcomeConflict, "", apperr.NotFound(msgLeadNotFound)
	}
	if status == target {
		return domain.OutcomeAlreadyApplied, status, nil
	}
	return domain.OutcomeConflict, status, nil
}
