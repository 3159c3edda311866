// Package email sends buyer lead notifications. The SMTP sender renders
// an HTML summary and delivers it through the configured relay; the
// console sender logs instead, for environments without one.
package email

import (
	"context"

	"leadgen_backend/internal/delivery"
	"leadgen_backend/platform/config"
	"leadgen_backend/platform/logger"
)

// Sender delivers lead notifications to buyers.
type Sender interface {
	SendLeadNotification(ctx context.Context, to string, p delivery.Payload) error
}

// New selects the sender for the configured provider. Anything but smtp
// falls back to the console sender.
func New(cfg config.EmailConfig, log *logger.Logger) Sender {
	if cfg.GetEmailProvider() == "smtp" {
		return NewSMTPSender(cfg)
	}
	return NewConsoleSender(log)
}

// ConsoleSender logs notifications instead of sending them.
type ConsoleSender struct {
	log *logger.Logger
}

// NewConsoleSender creates a console sender.
func NewConsoleSender(log *logger.Logger) *ConsoleSender {
	return &ConsoleSender{log: log}
}

func (s *ConsoleSender) SendLeadNotification(_ context.Context, to string, p delivery.Payload) error {
	s.log.Info("lead notification",
		"provider", "console",
		"to", to,
		"lead_id", p.LeadID,
		"source", p.Source,
	)
	return nil
}
