// Package sms sends buyer text notifications through a JSON HTTP
// gateway, with a console fallback for environments without one.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadgen_backend/platform/config"
	"leadgen_backend/platform/logger"
	"leadgen_backend/platform/phone"
)

// Sender delivers short text notifications.
type Sender interface {
	Send(ctx context.Context, phoneNumber, message string) error
}

// New selects the sender for the configured provider. Anything but a
// configured gateway falls back to the console sender.
func New(cfg config.SMSConfig, log *logger.Logger) Sender {
	if cfg.GetSMSProvider() == "gateway" {
		if client := NewGatewayClient(cfg, log); client != nil {
			return client
		}
	}
	return NewConsoleSender(log)
}

// GatewayClient posts messages to an HTTP SMS gateway.
type GatewayClient struct {
	baseURL string
	apiKey  string
	from    string
	http    *http.Client
	log     *logger.Logger
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

// NewGatewayClient creates a gateway client, or nil when no gateway URL
// is configured.
func NewGatewayClient(cfg config.SMSConfig, log *logger.Logger) *GatewayClient {
	if cfg.GetSMSGatewayURL() == "" {
		return nil
	}

	return &GatewayClient{
		baseURL: strings.TrimRight(cfg.GetSMSGatewayURL(), "/"),
		apiKey:  cfg.GetSMSGatewayAPIKey(),
		from:    cfg.GetSMSFromNumber(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Send posts one message. A nil client is a no-op.
func (c *GatewayClient) Send(ctx context.Context, phoneNumber, message string) error {
	if c == nil {
		return nil
	}

	payload := sendRequest{
		To:      phone.NormalizeE164(phoneNumber),
		From:    c.from,
		Message: message,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	url := c.baseURL + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("sms sent", "to", payload.To)
	return nil
}

// ConsoleSender logs messages instead of sending them.
type ConsoleSender struct {
	log *logger.Logger
}

// NewConsoleSender creates a console sender.
func NewConsoleSender(log *logger.Logger) *ConsoleSender {
	return &ConsoleSender{log: log}
}

func (s *ConsoleSender) Send(_ context.Context, phoneNumber, message string) error {
	s.log.Info("sms notification",
		"provider", "console",
		"to", phone.NormalizeE164(phoneNumber),
		"message", message,
	)
	return nil
}
