package validation

import (
	"context"
	"errors"
	"fmt"

	"leadgen_backend/internal/leads/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the database surface of the validation engine.
type Repository interface {
	ActivePolicy(ctx context.Context, offerID int64) (*Policy, error)
	MarkValidated(ctx context.Context, leadID int64) (domain.Outcome, domain.Status, error)
	MarkRejected(ctx context.Context, leadID int64, reason string) (domain.Outcome, domain.Status, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// ActivePolicy loads the offer's active validation policy, or nil when
// none is configured.
func (r *pgRepository) ActivePolicy(ctx context.Context, offerID int64) (*Policy, error) {
	query := `
		SELECT vp.id, vp.name, vp.version, vp.rules
		FROM validation_policies vp
		JOIN offers o ON o.validation_policy_id = vp.id
		WHERE o.id = $1 AND vp.is_active = TRUE`

	var policy Policy
	err := r.pool.QueryRow(ctx, query, offerID).Scan(&policy.ID, &policy.Name, &policy.Version, &policy.Rules)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load validation policy: %w", err)
	}
	return &policy, nil
}

// MarkValidated performs the guarded received -> validated transition.
// Zero guarded rows trigger a re-read so the caller learns what state
// won the race.
func (r *pgRepository) MarkValidated(ctx context.Context, leadID int64) (domain.Outcome, domain.Status, error) {
	query := `
		UPDATE leads
		SET status = 'validated', updated_at = now()
		WHERE id = $1 AND status = 'received'`

	tag, err := r.pool.Exec(ctx, query, leadID)
	if err != nil {
		return domain.OutcomeConflict, "", fmt.Errorf("mark lead validated: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return domain.OutcomeApplied, domain.StatusValidated, nil
	}

	status, err := r.currentStatus(ctx, leadID)
	if err != nil {
		return domain.OutcomeConflict, "", err
	}
	switch status {
	case domain.StatusValidated, domain.StatusDelivered, domain.StatusAccepted:
		return domain.OutcomeAlreadyApplied, status, nil
	default:
		return domain.OutcomeConflict, status, nil
	}
}

// MarkRejected performs the guarded received -> rejected transition with
// the failure reason.
func (r *pgRepository) MarkRejected(ctx context.Context, leadID int64, reason string) (domain.Outcome, domain.Status, error) {
	query := `
		UPDATE leads
		SET status = 'rejected', validation_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'received'`

	tag, err := r.pool.Exec(ctx, query, leadID, reason)
	if err != nil {
		return domain.OutcomeConflict, "", fmt.Errorf("mark lead rejected: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return domain.OutcomeApplied, domain.StatusRejected, nil
	}

	status, err := r.currentStatus(ctx, leadID)
	if err != nil {
		return domain.OutcomeConflict, "", err
	}
	if status == domain.StatusRejected {
		return domain.OutcomeAlreadyApplied, status, nil
	}
	return domain.OutcomeConflict, status, nil
}

func (r *pgRepository) currentStatus(ctx context.Context, leadID int64) (domain.Status, error) {
	var status domain.Status
	if err := r.pool.QueryRow(ctx, `SELECT status FROM leads WHERE id = $1`, leadID).Scan(&status); err != nil {
		return "", fmt.Errorf("re-read lead status: %w", err)
	}
	return status, nil
}
