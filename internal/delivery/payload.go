package delivery

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"leadgen_backend/internal/leads/domain"
)

// Contact carries the lead's contact block of the delivery payload.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Location carries the lead's location block of the delivery payload.
type Location struct {
	CountryCode string `json:"country_code"`
	PostalCode  string `json:"postal_code"`
	City        string `json:"city,omitempty"`
	RegionCode  string `json:"region_code,omitempty"`
}

// Attribution carries the marketing attribution block, present only when
// the lead arrived with a utm_source.
type Attribution struct {
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
}

// Payload is the document buyers receive. Field names and nesting are a
// published contract; receivers verify signatures over these exact
// serialized bytes.
type Payload struct {
	LeadID         int64        `json:"lead_id"`
	IdempotencyKey string       `json:"idempotency_key"`
	Source         string       `json:"source"`
	Contact        Contact      `json:"contact"`
	Location       Location     `json:"location"`
	Timestamp      string       `json:"timestamp"`
	Message        string       `json:"message,omitempty"`
	Attribution    *Attribution `json:"attribution,omitempty"`
}

// DeliveryKey returns the deterministic idempotency key a buyer can
// dedupe deliveries by. Replays of the same lead produce the same key.
func DeliveryKey(leadID int64, idempotencyKey string) string {
	return fmt.Sprintf("delivery:%d:%s", leadID, idempotencyKey)
}

// BuildPayload assembles the delivery document for a target at the given
// send time.
func BuildPayload(t *Target, now time.Time) Payload {
	p := Payload{
		LeadID:         t.LeadID,
		IdempotencyKey: DeliveryKey(t.LeadID, t.IdempotencyKey),
		Source:         t.SourceKey,
		Contact: Contact{
			Name:  domain.Deref(t.Name),
			Email: domain.Deref(t.Email),
			Phone: domain.Deref(t.Phone),
		},
		Location: Location{
			CountryCode: domain.Deref(t.CountryCode),
			PostalCode:  domain.Deref(t.PostalCode),
			City:        domain.Deref(t.City),
			RegionCode:  domain.Deref(t.RegionCode),
		},
		Timestamp: now.UTC().Format(time.RFC3339),
		Message:   domain.Deref(t.Message),
	}
	if source := domain.Deref(t.UTMSource); source != "" {
		p.Attribution = &Attribution{
			UTMSource:   source,
			UTMMedium:   domain.Deref(t.UTMMedium),
			UTMCampaign: domain.Deref(t.UTMCampaign),
		}
	}
	return p
}

// Sign computes the webhook signature over the exact body bytes.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
