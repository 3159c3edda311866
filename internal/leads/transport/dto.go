// Package transport defines the wire DTOs of the leads module. The
// ingest surface is a frozen external contract and speaks snake_case;
// the admin surface follows the dashboard convention of camelCase.
package transport

import "time"

// SubmitLeadRequest is one inbound submission. Exactly one of source_id,
// source_key, or page_host identifies the source; idempotency_key is
// optional and derived from content when absent. Form tags serve the
// form-encoded landing page variant.
type SubmitLeadRequest struct {
	SourceID       *int64 `json:"source_id,omitempty" form:"source_id"`
	SourceKey      string `json:"source_key,omitempty" form:"source_key" validate:"omitempty,max=128"`
	PageHost       string `json:"page_host,omitempty" form:"page_host" validate:"omitempty,max=255"`
	PagePath       string `json:"page_path,omitempty" form:"page_path" validate:"omitempty,max=1024"`
	IdempotencyKey string `json:"idempotency_key,omitempty" form:"idempotency_key" validate:"omitempty,max=128"`

	Name        string `json:"name,omitempty" form:"name" validate:"omitempty,max=200"`
	Email       string `json:"email,omitempty" form:"email" validate:"omitempty,max=320"`
	Phone       string `json:"phone,omitempty" form:"phone" validate:"omitempty,max=50"`
	CountryCode string `json:"country_code,omitempty" form:"country_code" validate:"omitempty,max=8"`
	PostalCode  string `json:"postal_code,omitempty" form:"postal_code" validate:"omitempty,max=20"`
	City        string `json:"city,omitempty" form:"city" validate:"omitempty,max=120"`
	RegionCode  string `json:"region_code,omitempty" form:"region_code" validate:"omitempty,max=10"`
	Message     string `json:"message,omitempty" form:"message" validate:"omitempty,max=5000"`

	UTMSource   string `json:"utm_source,omitempty" form:"utm_source" validate:"omitempty,max=255"`
	UTMMedium   string `json:"utm_medium,omitempty" form:"utm_medium" validate:"omitempty,max=255"`
	UTMCampaign string `json:"utm_campaign,omitempty" form:"utm_campaign" validate:"omitempty,max=255"`
}

// SubmitLeadResponse is the admission result returned with 202 Accepted.
// Status reflects the lead after synchronous pipeline stages ran.
type SubmitLeadResponse struct {
	LeadID         int64  `json:"lead_id"`
	Status         string `json:"status"`
	CreatedNew     bool   `json:"created_new"`
	SourceID       int64  `json:"source_id"`
	OfferID        int64  `json:"offer_id"`
	MarketID       int64  `json:"market_id"`
	VerticalID     int64  `json:"vertical_id"`
	IdempotencyKey string `json:"idempotency_key"`
	IsDuplicate    bool   `json:"is_duplicate,omitempty"`
	BuyerID        *int64 `json:"buyer_id,omitempty"`
	PriceCents     *int64 `json:"price_cents,omitempty"`
}

type LeadResponse struct {
	ID         int64 `json:"id"`
	SourceID   int64 `json:"sourceId"`
	OfferID    int64 `json:"offerId"`
	MarketID   int64 `json:"marketId"`
	VerticalID int64 `json:"verticalId"`

	IdempotencyKey string `json:"idempotencyKey"`

	Name            *string `json:"name,omitempty"`
	Email           *string `json:"email,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	CountryCode     *string `json:"countryCode,omitempty"`
	PostalCode      *string `json:"postalCode,omitempty"`
	City            *string `json:"city,omitempty"`
	RegionCode      *string `json:"regionCode,omitempty"`
	Message         *string `json:"message,omitempty"`
	NormalizedEmail *string `json:"normalizedEmail,omitempty"`
	NormalizedPhone *string `json:"normalizedPhone,omitempty"`

	UTMSource   *string `json:"utmSource,omitempty"`
	UTMMedium   *string `json:"utmMedium,omitempty"`
	UTMCampaign *string `json:"utmCampaign,omitempty"`

	Status            string  `json:"status"`
	ValidationReason  *string `json:"validationReason,omitempty"`
	IsDuplicate       bool    `json:"isDuplicate"`
	DuplicateOfLeadID *int64  `json:"duplicateOfLeadId,omitempty"`

	BuyerID          *int64     `json:"buyerId,omitempty"`
	DeliveryAttempts int        `json:"deliveryAttempts"`
	DeliveredAt      *time.Time `json:"deliveredAt,omitempty"`

	BillingStatus string     `json:"billingStatus"`
	PriceCents    *int64     `json:"priceCents,omitempty"`
	BilledAt      *time.Time `json:"billedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ListLeadsRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=received validated delivered accepted rejected"`
	OfferID  *int64 `form:"offerId" validate:"omitempty,min=1"`
	SourceID *int64 `form:"sourceId" validate:"omitempty,min=1"`
	BuyerID  *int64 `form:"buyerId" validate:"omitempty,min=1"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type ListLeadsResponse struct {
	Items      []LeadResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

type DeliveryAttemptResponse struct {
	Attempt    int       `json:"attempt"`
	Channel    string    `json:"channel"`
	Timestamp  time.Time `json:"timestamp"`
	HTTPStatus *int      `json:"httpStatus,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// RedeliverResponse acknowledges a manual re-drive request.
type RedeliverResponse struct {
	LeadID int64  `json:"leadId"`
	Status string `json:"status"`
	JobID  string `json:"jobId,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// RequestMeta carries request-scoped metadata recorded on admission.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
