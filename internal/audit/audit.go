// Package audit keeps the pipeline's paper trail. A recorder subscribes
// to every pipeline event and writes one audit_log row per transition,
// so the full history of a lead survives even where the lead row only
// holds the latest state.
package audit

import (
	"context"

	"leadgen_backend/internal/events"
	"leadgen_backend/platform/logger"
)

// Recorder subscribes to pipeline events and writes the audit trail.
type Recorder struct {
	repo Repository
	log  *logger.Logger
}

// New creates a recorder on the given store.
func New(repo Repository, log *logger.Logger) *Recorder {
	return &Recorder{repo: repo, log: log}
}

// RegisterHandlers subscribes the recorder to every pipeline event.
func (r *Recorder) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadAdmitted{}.EventName(), r)
	bus.Subscribe(events.LeadRejected{}.EventName(), r)
	bus.Subscribe(events.LeadValidated{}.EventName(), r)
	bus.Subscribe(events.LeadRouted{}.EventName(), r)
	bus.Subscribe(events.LeadDelivered{}.EventName(), r)
	bus.Subscribe(events.DeliveryExhausted{}.EventName(), r)
	bus.Subscribe(events.LeadBilled{}.EventName(), r)
	bus.Subscribe(events.PostbackReceived{}.EventName(), r)
}

// Handle maps one event to its audit row.
func (r *Recorder) Handle(ctx context.Context, event events.Event) error {
	entry, ok := entryFor(event)
	if !ok {
		return nil
	}

	if err := r.repo.Insert(ctx, entry); err != nil {
		r.log.Error("audit write failed", "event", event.EventName(), "error", err.Error())
		return err
	}
	return nil
}

func entryFor(event events.Event) (Entry, bool) {
	switch e := event.(type) {
	case events.LeadAdmitted:
		return Entry{
			EventName: e.EventName(),
			LeadID:    &e.LeadID,
			Details: map[string]interface{}{
				"source_id":   e.SourceID,
				"offer_id":    e.OfferID,
				"created_new": e.CreatedNew,
			},
		}, true
	case events.LeadRejected:
		return Entry{
			EventName: e.EventName(),
			LeadID:    &e.LeadID,
			Details: map[string]interface{}{
				"offer_id": e.OfferID,
				"reason":   e.Reason,
			},
		}, true
	case events.LeadValidated:
		return Entry{
			EventName: e.EventName(),
			LeadID:    &e.LeadID,
			Details: map[string]interface{}{
				"offer_id": e.OfferID,
			},
		}, true
	case events.LeadRouted:
		return Entry{
			EventName: e.EventName(),
			LeadID:    &e.LeadID,
			BuyerID:   &e.BuyerID,
			Details: map[string]interface{}{
				"offer_id": e.OfferID,
				"strategy": e.Strategy,
			},
		}, true
	case events.LeadDelivered:
		return Entry{
			EventName: e.EventName(),
			LeadID:    &e.LeadID,
			BuyerID:   &e.BuyerID,
			Details: map[string]interface{}{
				"channel": e.Channel,
			},
		}, true
	case events.DeliveryExhausted:
		return Entry{
			EventName: e.EventName(),
			LeadID:    &e.LeadID,
			Details: map[string]interface{}{
				"job_id":     e.JobID,
				"attempts":   e.Attempts,
				"last_error": e.LastErr,
			},
		}, true
	case events.LeadBilled:
		return Entry{
			EventName: e.EventName(),
			LeadID:    &e.LeadID,
			BuyerID:   &e.BuyerID,
			Details: map[string]interface{}{
				"price_cents": e.PriceCents,
			},
		}, true
	case events.PostbackReceived:
		return Entry{
			EventName: e.EventName(),
			LeadID:    &e.LeadID,
			BuyerID:   &e.BuyerID,
			Details: map[string]interface{}{
				"disposition": e.Disposition,
			},
		}, true
	default:
		return Entry{}, false
	}
}
