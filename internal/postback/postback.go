// Package postback receives buyer disposition callbacks for delivered
// leads. Callers authenticate by signing the raw body with the buyer's
// webhook secret, the same scheme outbound deliveries are signed with.
package postback

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"

	"leadgen_backend/internal/delivery"
	"leadgen_backend/internal/events"
	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/apperr"
	"leadgen_backend/platform/logger"
)

const (
	DispositionAccepted = "accepted"
	DispositionRejected = "rejected"
)

// Request is the callback body buyers post. The field names are a frozen
// wire contract.
type Request struct {
	LeadID      int64  `json:"lead_id"`
	Disposition string `json:"disposition"`
	Reason      string `json:"reason,omitempty"`
}

// Response reports how the disposition landed.
type Response struct {
	LeadID  int64  `json:"lead_id"`
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
}

// Service verifies and applies disposition postbacks.
type Service struct {
	repo Repository
	bus  events.Bus
	log  *logger.Logger
}

// NewService creates the postback service.
func NewService(repo Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// Record authenticates the raw body against the buyer's webhook secret,
// then applies the guarded transition for the disposition it carries.
// Replayed postbacks are acknowledged without re-applying.
func (s *Service) Record(ctx context.Context, buyerID int64, body []byte, signature string) (Response, error) {
	secret, err := s.repo.BuyerSecret(ctx, buyerID)
	if err != nil {
		return Response{}, err
	}
	if secret == nil || *secret == "" {
		return Response{}, apperr.Forbidden("postbacks are not configured for this buyer")
	}
	if !verifySignature(body, *secret, signature) {
		return Response{}, apperr.Unauthorized("invalid postback signature")
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Response{}, apperr.BadRequest("malformed postback body")
	}
	if req.LeadID < 1 {
		return Response{}, apperr.Validation("lead_id is required")
	}

	var target domain.Status
	switch req.Disposition {
	case DispositionAccepted:
		target = domain.StatusAccepted
	case DispositionRejected:
		target = domain.StatusRejected
	default:
		return Response{}, apperr.Validation("unknown disposition")
	}

	outcome, status, err := s.repo.RecordDisposition(ctx, req.LeadID, buyerID, target)
	if err != nil {
		return Response{}, err
	}
	if outcome == domain.OutcomeConflict {
		return Response{}, apperr.Conflict(fmt.Sprintf("lead is %s, cannot record %s", status, req.Disposition))
	}

	if outcome == domain.OutcomeApplied {
		s.log.PostbackRecorded(req.LeadID, buyerID, req.Disposition, req.Reason)
		if s.bus != nil {
			s.bus.Publish(ctx, events.PostbackReceived{
				BaseEvent:   events.NewBaseEvent(),
				LeadID:      req.LeadID,
				BuyerID:     buyerID,
				Disposition: req.Disposition,
			})
		}
	}

	return Response{LeadID: req.LeadID, Status: string(status), Outcome: outcome.String()}, nil
}

// verifySignature compares in constant time against the sha256=<hex>
// signature scheme shared with outbound deliveries.
func verifySignature(body []byte, secret, signature string) bool {
	want := delivery.Sign(body, secret)
	return hmac.Equal([]byte(want), []byte(signature))
}
