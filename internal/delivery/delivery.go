// Package delivery pushes routed leads to their buyer. One delivery
// pass walks the channel chain in priority order (webhook, then email,
// then SMS) and stops at the first channel that accepts the lead. Every
// channel try is appended to the lead's attempt history; retry pacing
// between passes belongs to the queue, not this package.
package delivery

import (
	"leadgen_backend/internal/leads/domain"
)

// Channel names recorded in the attempt history.
const (
	ChannelWebhook = "webhook"
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
)

// Error codes for leads a delivery pass cannot act on.
const (
	CodeNoBuyerAssigned = "no_buyer_assigned"
	CodeNotDeliverable  = "lead_not_deliverable"
)

// Target is the lead together with the buyer's resolved channel
// configuration. Webhook and email settings already have the buyer_offer
// override folded in.
type Target struct {
	LeadID         int64
	BuyerID        *int64
	Status         domain.Status
	IdempotencyKey string
	SourceKey      string
	Attempts       int

	Name        *string
	Email       *string
	Phone       *string
	CountryCode *string
	PostalCode  *string
	City        *string
	RegionCode  *string
	Message     *string
	UTMSource   *string
	UTMMedium   *string
	UTMCampaign *string

	WebhookURL    *string
	WebhookSecret *string
	EmailEnabled  bool
	EmailTo       *string
	SMSEnabled    bool
	SMSTo         *string
}
