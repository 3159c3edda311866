// Package domain holds the lead entity and the pure rules of the intake
// pipeline: lifecycle states, transition outcomes, contact normalization,
// and idempotency key derivation.
package domain

import (
	"encoding/json"
	"time"
)

// Status is the lead lifecycle state. The machine is strictly forward:
// received -> validated -> delivered -> accepted, with rejected terminal
// and absorbing from any pre-delivery state.
type Status string

const (
	StatusReceived  Status = "received"
	StatusValidated Status = "validated"
	StatusDelivered Status = "delivered"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
)

// BillingStatus tracks the buyer-side money state of a lead.
type BillingStatus string

const (
	BillingPending  BillingStatus = "pending"
	BillingBilled   BillingStatus = "billed"
	BillingPaid     BillingStatus = "paid"
	BillingDisputed BillingStatus = "disputed"
	BillingRefunded BillingStatus = "refunded"
)

// Outcome reports how a guarded state transition landed. Zero rows from
// the guard never surfaces as a bare failure; the caller re-reads and
// classifies.
type Outcome int

const (
	// OutcomeApplied means this call performed the transition.
	OutcomeApplied Outcome = iota
	// OutcomeAlreadyApplied means another actor performed it first, or the
	// lead has since moved further along the machine.
	OutcomeAlreadyApplied
	// OutcomeConflict means the lead is in a state the transition cannot
	// reconcile with.
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyApplied:
		return "already_applied"
	case OutcomeConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Lead is the central mutable entity of the pipeline. Attribution fields
// are immutable once admitted.
type Lead struct {
	ID         int64
	SourceID   int64
	OfferID    int64
	MarketID   int64
	VerticalID int64

	IdempotencyKey string

	Name            *string
	Email           *string
	Phone           *string
	CountryCode     *string
	PostalCode      *string
	City            *string
	RegionCode      *string
	Message         *string
	NormalizedEmail *string
	NormalizedPhone *string

	UTMSource   *string
	UTMMedium   *string
	UTMCampaign *string
	IPAddress   *string
	UserAgent   *string

	Status            Status
	ValidationReason  *string
	IsDuplicate       bool
	DuplicateOfLeadID *int64

	BuyerID          *int64
	DeliveryAttempts int
	DeliveryResult   json.RawMessage
	DeliveredAt      *time.Time

	BillingStatus BillingStatus
	PriceCents    *int64
	BilledAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttemptRecord is one entry of the lead's delivery attempt history,
// stored as a JSON array on the lead row.
type AttemptRecord struct {
	Attempt    int       `json:"attempt"`
	Channel    string    `json:"channel"`
	Timestamp  time.Time `json:"timestamp"`
	HTTPStatus *int      `json:"http_status,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// AttemptHistory decodes the stored delivery attempt history.
// A missing or empty column decodes to no records.
func (l Lead) AttemptHistory() ([]AttemptRecord, error) {
	if len(l.DeliveryResult) == 0 {
		return nil, nil
	}
	var records []AttemptRecord
	if err := json.Unmarshal(l.DeliveryResult, &records); err != nil {
		return nil, err
	}
	return records, nil
}
