package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one recorded pipeline transition.
type Entry struct {
	EventName string
	LeadID    *int64
	BuyerID   *int64
	Details   map[string]interface{}
}

// Repository persists audit entries.
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates the Postgres-backed audit store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Insert(ctx context.Context, entry Entry) error {
	details := entry.Details
	if details == nil {
		details = map[string]interface{}{}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_log (event_name, lead_id, buyer_id, details) VALUES ($1, $2, $3, $4)`,
		entry.EventName, entry.LeadID, entry.BuyerID, details)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
