package dedupe

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MatchParams drives the candidate search. NormalizedPhone and
// NormalizedEmail are nil when the corresponding key is not configured
// or the value did not survive normalization.
type MatchParams struct {
	OfferID         int64
	LeadID          int64
	SourceID        int64
	WindowHours     int
	NormalizedPhone *string
	NormalizedEmail *string
	ExcludeStatuses []string
	IncludeAny      bool
	MatchMode       string
}

// Match is the winning duplicate candidate.
type Match struct {
	LeadID     int64
	PhoneMatch bool
	EmailMatch bool
}

// MatchedKeys lists which configured keys matched, phone first.
func (m Match) MatchedKeys() []string {
	var keys []string
	if m.PhoneMatch {
		keys = append(keys, "phone")
	}
	if m.EmailMatch {
		keys = append(keys, "email")
	}
	return keys
}

// MarkParams records a detected duplicate on the new lead.
type MarkParams struct {
	LeadID          int64
	NormalizedPhone *string
	NormalizedEmail *string
	MatchedLeadID   int64
	Action          string
	ReasonCode      string
}

// Repository is the database surface of the detector.
type Repository interface {
	PolicyDocument(ctx context.Context, offerID int64) ([]byte, error)
	FindMatch(ctx context.Context, params MatchParams) (*Match, error)
	PersistNormalized(ctx context.Context, leadID int64, phone, email *string) error
	MarkDuplicate(ctx context.Context, params MarkParams) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// PolicyDocument returns the duplicate_detection document of the offer's
// active validation policy, or nil when the offer has none. A missing
// policy row disables duplicate detection; the validator decides whether
// that is fatal for the lead.
func (r *pgRepository) PolicyDocument(ctx context.Context, offerID int64) ([]byte, error) {
	query := `
		SELECT vp.rules -> 'duplicate_detection'
		FROM validation_policies vp
		JOIN offers o ON o.validation_policy_id = vp.id
		WHERE o.id = $1 AND vp.is_active = TRUE`

	var doc []byte
	err := r.pool.QueryRow(ctx, query, offerID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load duplicate policy: %w", err)
	}
	return doc, nil
}

// FindMatch returns the most recent candidate inside the window that
// satisfies the configured keys under the configured match mode, or nil.
func (r *pgRepository) FindMatch(ctx context.Context, params MatchParams) (*Match, error) {
	query := `
		WITH candidates AS (
			SELECT
				l.id AS matched_lead_id,
				l.created_at AS matched_created_at,
				(CASE WHEN $4::text IS NOT NULL AND l.normalized_phone = $4 THEN 1 ELSE 0 END) AS phone_match,
				(CASE WHEN $5::text IS NOT NULL AND l.normalized_email = $5 THEN 1 ELSE 0 END) AS email_match
			FROM leads l
			WHERE l.offer_id = $1
				AND l.id <> $2
				AND l.created_at >= (CURRENT_TIMESTAMP - ($3::int * INTERVAL '1 hour'))
				AND (l.status <> ALL($6::text[]))
				AND ($7 OR l.source_id = $8)
				AND (
					($4::text IS NOT NULL AND l.normalized_phone = $4)
					OR
					($5::text IS NOT NULL AND l.normalized_email = $5)
				)
		),
		filtered AS (
			SELECT *
			FROM candidates
			WHERE
				CASE
					WHEN $9 = 'any' THEN (phone_match = 1 OR email_match = 1)
					WHEN $9 = 'all' THEN
						(
							($4::text IS NULL OR phone_match = 1)
							AND
							($5::text IS NULL OR email_match = 1)
							AND
							(CASE
								WHEN ($4::text IS NOT NULL AND $5::text IS NOT NULL) THEN (phone_match = 1 AND email_match = 1)
								ELSE true
							END)
						)
					ELSE false
				END
		)
		SELECT matched_lead_id, phone_match, email_match
		FROM filtered
		ORDER BY matched_created_at DESC, matched_lead_id DESC
		LIMIT 1`

	exclude := params.ExcludeStatuses
	if exclude == nil {
		exclude = []string{}
	}

	var (
		matchedID              int64
		phoneMatch, emailMatch int
	)
	err := r.pool.QueryRow(ctx, query,
		params.OfferID,
		params.LeadID,
		params.WindowHours,
		params.NormalizedPhone,
		params.NormalizedEmail,
		exclude,
		params.IncludeAny,
		params.SourceID,
		params.MatchMode,
	).Scan(&matchedID, &phoneMatch, &emailMatch)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find duplicate candidate: %w", err)
	}

	return &Match{
		LeadID:     matchedID,
		PhoneMatch: phoneMatch == 1,
		EmailMatch: emailMatch == 1,
	}, nil
}

// PersistNormalized stores normalized contact fields without clobbering
// values already present.
func (r *pgRepository) PersistNormalized(ctx context.Context, leadID int64, phone, email *string) error {
	query := `
		UPDATE leads
		SET
			updated_at = CURRENT_TIMESTAMP,
			normalized_phone = COALESCE($2, normalized_phone),
			normalized_email = COALESCE($3, normalized_email)
		WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, leadID, phone, email); err != nil {
		return fmt.Errorf("persist normalized fields: %w", err)
	}
	return nil
}

// MarkDuplicate records the duplicate linkage. For the reject action the
// status flip is guarded on 'received' so a later state is never
// regressed; flag and accept touch linkage fields only.
func (r *pgRepository) MarkDuplicate(ctx context.Context, params MarkParams) error {
	if params.Action == ActionReject {
		query := `
			UPDATE leads
			SET
				updated_at = CURRENT_TIMESTAMP,
				normalized_phone = COALESCE($2, normalized_phone),
				normalized_email = COALESCE($3, normalized_email),
				is_duplicate = TRUE,
				duplicate_of_lead_id = $4,
				status = CASE WHEN status = 'received' THEN 'rejected' ELSE status END,
				validation_reason = CASE WHEN status = 'received' THEN $5 ELSE validation_reason END
			WHERE id = $1`

		if _, err := r.pool.Exec(ctx, query,
			params.LeadID, params.NormalizedPhone, params.NormalizedEmail, params.MatchedLeadID, params.ReasonCode,
		); err != nil {
			return fmt.Errorf("mark duplicate rejected: %w", err)
		}
		return nil
	}

	query := `
		UPDATE leads
		SET
			updated_at = CURRENT_TIMESTAMP,
			normalized_phone = COALESCE($2, normalized_phone),
			normalized_email = COALESCE($3, normalized_email),
			is_duplicate = TRUE,
			duplicate_of_lead_id = $4
		WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query,
		params.LeadID, params.NormalizedPhone, params.NormalizedEmail, params.MatchedLeadID,
	); err != nil {
		return fmt.Errorf("mark duplicate: %w", err)
	}
	return nil
}
