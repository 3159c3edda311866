package routing

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

// EligibilityQuery scopes the candidate search to the lead's offer,
// market and location. Nil postal code and city cannot match any
// service area, so a lead without either yields no candidates.
type EligibilityQuery struct {
	OfferID    int64
	MarketID   int64
	PostalCode *string
	City       *string
}

// Repository is the database surface of the routing engine.
type Repository interface {
	ActivePolicy(ctx context.Context, offerID int64) (*Policy, error)
	ExclusiveBuyer(ctx context.Context, offerID int64, scopeType, scopeValue string) (*int64, error)
	EligibleBuyers(ctx context.Context, q EligibilityQuery) ([]Candidate, error)
	LastAssignments(ctx context.Context, offerID int64, buyerIDs []int64) (map[int64]time.Time, error)
	AssignBuyer(ctx context.Context, leadID, buyerID int64) (domain.Outcome, *int64, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// ActivePolicy loads the offer's active routing policy, or nil when none
// is configured.
func (r *pgRepository) ActivePolicy(ctx context.Context, offerID int64) (*Policy, error) {
	query := `
		SELECT rp.id, rp.name, rp.version, rp.strategy, rp.exclusivity_fallback
		FROM routing_policies rp
		JOIN offers o ON o.routing_policy_id = rp.id
		WHERE o.id = $1 AND rp.is_active = TRUE`

	var policy Policy
	err := r.pool.QueryRow(ctx, query, offerID).
		Scan(&policy.ID, &policy.Name, &policy.Version, &policy.Strategy, &policy.ExclusivityFallback)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load routing policy: %w", err)
	}
	return &policy, nil
}

// ExclusiveBuyer returns the active exclusivity holder for the scope,
// or nil when the scope is unclaimed.
func (r *pgRepository) ExclusiveBuyer(ctx context.Context, offerID int64, scopeType, scopeValue string) (*int64, error) {
	query := `
		SELECT oe.buyer_id
		FROM offer_exclusivities oe
		JOIN buyers b ON b.id = oe.buyer_id
		WHERE oe.offer_id = $1
		  AND oe.scope_type = $2
		  AND oe.scope_value = $3
		  AND oe.is_active = TRUE
		  AND b.is_active = TRUE
		LIMIT 1`

	var buyerID int64
	err := r.pool.QueryRow(ctx, query, offerID, scopeType, scopeValue).Scan(&buyerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up exclusive buyer: %w", err)
	}
	return &buyerID, nil
}

// EligibleBuyers returns the buyers enrolled on the offer whose service
// area covers the lead, who are active, unpaused and above their balance
// floor, together with their trailing delivered counts. Capacity caps
// are returned, not enforced; the engine filters on them.
func (r *pgRepository) EligibleBuyers(ctx context.Context, q EligibilityQuery) ([]Candidate, error) {
	query := `
		SELECT DISTINCT
			bo.buyer_id,
			COALESCE(bo.routing_priority, b.routing_priority) AS routing_priority,
			bo.price_per_lead_cents,
			bo.capacity_per_day,
			bo.capacity_per_hour,
			(SELECT COUNT(*) FROM leads l
			  WHERE l.buyer_id = bo.buyer_id AND l.offer_id = bo.offer_id
			    AND l.delivered_at >= CURRENT_TIMESTAMP - INTERVAL '24 hours') AS delivered_day,
			(SELECT COUNT(*) FROM leads l
			  WHERE l.buyer_id = bo.buyer_id AND l.offer_id = bo.offer_id
			    AND l.delivered_at >= CURRENT_TIMESTAMP - INTERVAL '1 hour') AS delivered_hour
		FROM buyer_offers bo
		JOIN buyers b ON b.id = bo.buyer_id
		JOIN buyer_service_areas bsa ON bsa.buyer_id = bo.buyer_id
		WHERE bo.offer_id = $1
		  AND bo.is_active = TRUE
		  AND b.is_active = TRUE
		  AND bsa.market_id = $2
		  AND bsa.is_active = TRUE
		  AND (
		        (bsa.scope_type = 'postal_code' AND $3::text IS NOT NULL AND bsa.scope_value = $3)
		     OR (bsa.scope_type = 'city' AND $4::text IS NOT NULL AND bsa.scope_value = $4)
		  )
		  AND (bo.pause_until IS NULL OR bo.pause_until < CURRENT_TIMESTAMP)
		  AND (b.min_balance_required_cents IS NULL OR b.balance_cents >= b.min_balance_required_cents)
		ORDER BY routing_priority DESC, buyer_id ASC`

	rows, err := r.pool.Query(ctx, query, q.OfferID, q.MarketID, q.PostalCode, q.City)
	if err != nil {
		return nil, fmt.Errorf("query eligible buyers: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		err := rows.Scan(&c.BuyerID, &c.RoutingPriority, &c.PriceCents,
			&c.CapacityPerDay, &c.CapacityPerHour, &c.DeliveredDay, &c.DeliveredHour)
		if err != nil {
			return nil, fmt.Errorf("scan eligible buyer: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eligible buyers: %w", err)
	}
	return candidates, nil
}

// LastAssignments returns, per buyer, when the buyer last had a lead of
// this offer assigned. Buyers never assigned are absent from the map.
func (r *pgRepository) LastAssignments(ctx context.Context, offerID int64, buyerIDs []int64) (map[int64]time.Time, error) {
	query := `
		SELECT buyer_id, MAX(updated_at)
		FROM leads
		WHERE offer_id = $1 AND buyer_id = ANY($2)
		GROUP BY buyer_id`

	rows, err := r.pool.Query(ctx, query, offerID, buyerIDs)
	if err != nil {
		return nil, fmt.Errorf("query last assignments: %w", err)
	}
	defer rows.Close()

	last := make(map[int64]time.Time, len(buyerIDs))
	for rows.Next() {
		var buyerID int64
		var at time.Time
		if err := rows.Scan(&buyerID, &at); err != nil {
			return nil, fmt.Errorf("scan last assignment: %w", err)
		}
		last[buyerID] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate last assignments: %w", err)
	}
	return last, nil
}

// AssignBuyer performs the guarded assignment. The status guard plus the
// buyer_id IS NULL guard make the write first-winner-only; zero guarded
// rows trigger a re-read so the caller learns who won.
func (r *pgRepository) AssignBuyer(ctx context.Context, leadID, buyerID int64) (domain.Outcome, *int64, error) {
	query := `
		UPDATE leads
		SET buyer_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'validated' AND buyer_id IS NULL`

	tag, err := r.pool.Exec(ctx, query, leadID, buyerID)
	if err != nil {
		return domain.OutcomeConflict, nil, fmt.Errorf("assign buyer: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return domain.OutcomeApplied, &buyerID, nil
	}

	var current *int64
	var status domain.Status
	err = r.pool.QueryRow(ctx, `SELECT buyer_id, status FROM leads WHERE id = $1`, leadID).
		Scan(&current, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OutcomeConflict, nil, apperr.NotFound(msgLeadNotFound)
	}
	if err != nil {
		return domain.OutcomeConflict, nil, fmt.Errorf("re-read lead after assignment: %w", err)
	}
	if current != nil {
		return domain.OutcomeAlreadyApplied, current, nil
	}
	return domain.OutcomeConflict, nil, nil
}
