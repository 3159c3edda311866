package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/config"

	"github.com/google/uuid"
)

const (
	userAgent          = "LeadGen-Delivery/1.0"
	eventLeadDelivered = "lead.delivered"

	// Upstream error bodies are truncated to keep attempt records small.
	maxErrorBody = 200
)

// Channel delivers one payload over one transport. Send returns the
// transport's HTTP status when it has one.
type Channel interface {
	Name() string
	Available(t *Target) bool
	Send(ctx context.Context, t *Target, p Payload) (*int, error)
}

// WebhookChannel POSTs the signed payload to the buyer's webhook URL.
type WebhookChannel struct {
	http *http.Client
}

// NewWebhookChannel creates the webhook channel with the configured
// request timeout.
func NewWebhookChannel(cfg config.DeliveryConfig) *WebhookChannel {
	return &WebhookChannel{
		http: &http.Client{Timeout: cfg.GetWebhookTimeout()},
	}
}

func (c *WebhookChannel) Name() string { return ChannelWebhook }

func (c *WebhookChannel) Available(t *Target) bool {
	return domain.Deref(t.WebhookURL) != ""
}

// Send posts the payload. The signature is computed over the exact bytes
// written to the wire, so the body must not be re-serialized after
// signing.
func (c *WebhookChannel) Send(ctx context.Context, t *Target, p Payload) (*int, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal delivery payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *t.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Event", eventLeadDelivered)
	req.Header.Set("X-Webhook-ID", uuid.NewString())
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("X-Idempotency-Key", p.IdempotencyKey)
	if secret := domain.Deref(t.WebhookSecret); secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(body, secret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	status := resp.StatusCode
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &status, fmt.Errorf("webhook returned %d: %s", status, strings.TrimSpace(string(data)))
	}
	return &status, nil
}

// LeadMailer sends the lead summary email to a buyer inbox.
type LeadMailer interface {
	SendLeadNotification(ctx context.Context, to string, p Payload) error
}

// EmailChannel mails the lead summary to the buyer's notification
// address.
type EmailChannel struct {
	mailer LeadMailer
}

// NewEmailChannel creates the email channel. A nil mailer disables it.
func NewEmailChannel(mailer LeadMailer) *EmailChannel {
	return &EmailChannel{mailer: mailer}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Available(t *Target) bool {
	return c.mailer != nil && t.EmailEnabled && domain.Deref(t.EmailTo) != ""
}

func (c *EmailChannel) Send(ctx context.Context, t *Target, p Payload) (*int, error) {
	return nil, c.mailer.SendLeadNotification(ctx, *t.EmailTo, p)
}

// TextSender sends a short text message to a phone number.
type TextSender interface {
	Send(ctx context.Context, phone, message string) error
}

// SMSChannel texts a short lead summary to the buyer's phone.
type SMSChannel struct {
	sender TextSender
}

// NewSMSChannel creates the SMS channel. A nil sender disables it.
func NewSMSChannel(sender TextSender) *SMSChannel {
	return &SMSChannel{sender: sender}
}

func (c *SMSChannel) Name() string { return ChannelSMS }

func (c *SMSChannel) Available(t *Target) bool {
	return c.sender != nil && t.SMSEnabled && domain.Deref(t.SMSTo) != ""
}

func (c *SMSChannel) Send(ctx context.Context, t *Target, p Payload) (*int, error) {
	return nil, c.sender.Send(ctx, *t.SMSTo, smsText(p))
}

func smsText(p Payload) string {
	parts := []string{fmt.Sprintf("New lead #%d", p.LeadID)}
	if p.Contact.Name != "" {
		parts = append(parts, p.Contact.Name)
	}
	if p.Contact.Phone != "" {
		parts = append(parts, p.Contact.Phone)
	}
	if loc := strings.TrimSpace(p.Location.PostalCode + " " + p.Location.City); loc != "" {
		parts = append(parts, loc)
	}
	return strings.Join(parts, ", ")
}
