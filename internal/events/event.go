// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadgen_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Pipeline Events
// =============================================================================

// LeadAdmitted is published when an admission resolves to a lead row.
// CreatedNew is true for the caller that inserted the row.
type LeadAdmitted struct {
	BaseEvent
	LeadID     int64  `json:"leadId"`
	SourceID   int64  `json:"sourceId"`
	OfferID    int64  `json:"offerId"`
	CreatedNew bool   `json:"createdNew"`
	Key        string `json:"idempotencyKey"`
}

func (e LeadAdmitted) EventName() string { return "pipeline.lead.admitted" }

// LeadRejected is published when a lead reaches the terminal rejected state,
// whether by duplicate policy or validation.
type LeadRejected struct {
	BaseEvent
	LeadID  int64  `json:"leadId"`
	OfferID int64  `json:"offerId"`
	Reason  string `json:"reason"`
}

func (e LeadRejected) EventName() string { return "pipeline.lead.rejected" }

// LeadValidated is published after the received -> validated transition.
type LeadValidated struct {
	BaseEvent
	LeadID  int64 `json:"leadId"`
	OfferID int64 `json:"offerId"`
}

func (e LeadValidated) EventName() string { return "pipeline.lead.validated" }

// LeadRouted is published when a buyer is assigned to a lead.
type LeadRouted struct {
	BaseEvent
	LeadID   int64  `json:"leadId"`
	OfferID  int64  `json:"offerId"`
	BuyerID  int64  `json:"buyerId"`
	Strategy string `json:"strategy"`
}

func (e LeadRouted) EventName() string { return "pipeline.lead.routed" }

// LeadDelivered is published after the validated -> delivered transition.
type LeadDelivered struct {
	BaseEvent
	LeadID  int64  `json:"leadId"`
	BuyerID int64  `json:"buyerId"`
	Channel string `json:"channel"`
}

func (e LeadDelivered) EventName() string { return "pipeline.lead.delivered" }

// DeliveryExhausted is published when a delivery job runs out of attempts
// and is parked in the dead-letter store.
type DeliveryExhausted struct {
	BaseEvent
	JobID    string `json:"jobId"`
	LeadID   int64  `json:"leadId"`
	Attempts int    `json:"attempts"`
	LastErr  string `json:"lastError,omitempty"`
}

func (e DeliveryExhausted) EventName() string { return "pipeline.delivery.exhausted" }

// LeadBilled is published after the buyer balance credit applies.
type LeadBilled struct {
	BaseEvent
	LeadID     int64 `json:"leadId"`
	BuyerID    int64 `json:"buyerId"`
	PriceCents int64 `json:"priceCents"`
}

func (e LeadBilled) EventName() string { return "pipeline.lead.billed" }

// PostbackReceived is published when a buyer reports a disposition for a
// delivered lead.
type PostbackReceived struct {
	BaseEvent
	LeadID      int64  `json:"leadId"`
	BuyerID     int64  `json:"buyerId"`
	Disposition string `json:"disposition"`
}

func (e PostbackReceived) EventName() string { return "pipeline.postback.received" }
