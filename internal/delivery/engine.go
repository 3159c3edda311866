package delivery

import (
	"context"
	"fmt"
	"time"

	"leadgen_backend/internal/events"
	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/apperr"
	"leadgen_backend/platform/logger"
)

// Biller applies the post-delivery billing transition. Failures are the
// biller's to report; delivery never rolls back over them.
type Biller interface {
	Bill(ctx context.Context, leadID int64) error
}

// Result reports how one delivery pass settled.
type Result struct {
	Success bool
	Channel string
	Attempt int
	Status  domain.Status
}

// Engine executes delivery passes. One pass tries each configured
// channel once, in order; pacing between passes is the queue's job.
type Engine struct {
	repo     Repository
	channels []Channel
	billing  Biller
	bus      events.Bus
	log      *logger.Logger
}

// NewEngine creates a delivery engine trying the given channels in
// order.
func NewEngine(repo Repository, channels []Channel, billing Biller, bus events.Bus, log *logger.Logger) *Engine {
	return &Engine{repo: repo, channels: channels, billing: billing, bus: bus, log: log}
}

// Deliver runs one pass for the lead. A false Success with a nil error
// means every available channel failed and the pass may be retried; an
// error means the lead is not in a deliverable state and retrying cannot
// help.
func (e *Engine) Deliver(ctx context.Context, leadID int64) (Result, error) {
	t, err := e.repo.LoadTarget(ctx, leadID)
	if err != nil {
		return Result{}, err
	}

	switch t.Status {
	case domain.StatusDelivered, domain.StatusAccepted:
		// Replay of a settled job.
		return Result{Success: true, Status: t.Status}, nil
	case domain.StatusValidated:
	default:
		return Result{}, apperr.Conflict(fmt.Sprintf("lead %d is %s and cannot be delivered", leadID, t.Status)).
			WithCode(CodeNotDeliverable)
	}
	if t.BuyerID == nil {
		return Result{}, apperr.Conflict(fmt.Sprintf("lead %d has no buyer assigned", leadID)).
			WithCode(CodeNoBuyerAssigned)
	}

	payload := BuildPayload(t, time.Now())

	attempt := t.Attempts
	for _, ch := range e.channels {
		if !ch.Available(t) {
			continue
		}
		attempt++

		httpStatus, sendErr := ch.Send(ctx, t, payload)
		rec := domain.AttemptRecord{
			Attempt:    attempt,
			Channel:    ch.Name(),
			Timestamp:  time.Now().UTC(),
			HTTPStatus: httpStatus,
			Success:    sendErr == nil,
		}
		if sendErr != nil {
			rec.Error = sendErr.Error()
		}
		if err := e.repo.RecordAttempt(ctx, leadID, rec); err != nil {
			return Result{}, err
		}
		e.log.DeliveryAttempted(leadID, ch.Name(), attempt, sendErr == nil, rec.Error)

		if sendErr == nil {
			return e.finish(ctx, t, ch.Name(), attempt)
		}
	}

	return Result{Success: false, Attempt: attempt, Status: t.Status}, nil
}

// finish applies the guarded delivered transition after a channel
// accepted the lead, then hands the lead to billing. A lost race against
// another worker still counts as success.
func (e *Engine) finish(ctx context.Context, t *Target, channel string, attempt int) (Result, error) {
	outcome, status, err := e.repo.MarkDelivered(ctx, t.LeadID)
	if err != nil {
		return Result{}, err
	}
	if outcome == domain.OutcomeConflict {
		return Result{}, apperr.Conflict(fmt.Sprintf("lead %d moved to %s during delivery", t.LeadID, status)).
			WithCode(CodeNotDeliverable)
	}

	if outcome == domain.OutcomeApplied {
		if e.bus != nil {
			e.bus.Publish(ctx, events.LeadDelivered{
				BaseEvent: events.NewBaseEvent(),
				LeadID:    t.LeadID,
				BuyerID:   *t.BuyerID,
				Channel:   channel,
			})
		}
		if e.billing != nil {
			if err := e.billing.Bill(ctx, t.LeadID); err != nil {
				// Billing stays pending; reconciliation picks it up.
				e.log.Error("billing failed after delivery", "lead_id", t.LeadID, "error", err.Error())
			}
		}
	}

	return Result{Success: true, Channel: channel, Attempt: attempt, Status: status}, nil
}
