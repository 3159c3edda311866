package classification

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository resolves sources against the catalog. Lookups return
// (nil, nil) when no active mapping exists.
type Repository interface {
	BySourceID(ctx context.Context, sourceID int64) (*Attribution, error)
	BySourceKey(ctx context.Context, sourceKey string) (*Attribution, error)
	ByHostPath(ctx context.Context, host, path string) ([]HTTPCandidate, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const attributionColumns = `s.id, s.offer_id, o.market_id, o.vertical_id`

func (r *pgRepository) BySourceID(ctx context.Context, sourceID int64) (*Attribution, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM sources s
		JOIN offers o ON o.id = s.offer_id
		WHERE s.id = $1 AND s.is_active = TRUE AND o.is_active = TRUE`, attributionColumns)

	attr, err := r.scanOne(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("lookup source by id: %w", err)
	}
	return attr, nil
}

func (r *pgRepository) BySourceKey(ctx context.Context, sourceKey string) (*Attribution, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM sources s
		JOIN offers o ON o.id = s.offer_id
		WHERE s.source_key = $1 AND s.is_active = TRUE AND o.is_active = TRUE`, attributionColumns)

	attr, err := r.scanOne(ctx, query, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("lookup source by key: %w", err)
	}
	return attr, nil
}

// ByHostPath returns the best host/path candidates ranked by longest
// configured path prefix. Two rows with equal PrefixLen signal an
// ambiguous mapping that the resolver must refuse.
func (r *pgRepository) ByHostPath(ctx context.Context, host, path string) ([]HTTPCandidate, error) {
	query := fmt.Sprintf(`
		WITH candidates AS (
			SELECT %s,
				LENGTH(COALESCE(s.path_prefix, '')) AS prefix_len
			FROM sources s
			JOIN offers o ON o.id = s.offer_id
			WHERE s.hostname = $1
				AND s.is_active = TRUE
				AND o.is_active = TRUE
				AND (s.path_prefix IS NULL OR $2 LIKE s.path_prefix || '%%')
		)
		SELECT id, offer_id, market_id, vertical_id, prefix_len
		FROM candidates
		ORDER BY prefix_len DESC, id ASC
		LIMIT 2`, attributionColumns)

	rows, err := r.pool.Query(ctx, query, host, path)
	if err != nil {
		return nil, fmt.Errorf("lookup source by host and path: %w", err)
	}
	defer rows.Close()

	var candidates []HTTPCandidate
	for rows.Next() {
		var c HTTPCandidate
		if err := rows.Scan(&c.SourceID, &c.OfferID, &c.MarketID, &c.VerticalID, &c.PrefixLen); err != nil {
			return nil, fmt.Errorf("scan host path candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate host path candidates: %w", err)
	}
	return candidates, nil
}

func (r *pgRepository) scanOne(ctx context.Context, query string, arg any) (*Attribution, error) {
	var attr Attribution
	err := r.pool.QueryRow(ctx, query, arg).Scan(&attr.SourceID, &attr.OfferID, &attr.MarketID, &attr.VerticalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attr, nil
}
