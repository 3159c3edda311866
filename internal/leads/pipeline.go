// Package leads owns lead intake: the synchronous pipeline run behind
// the ingest endpoint, admission bookkeeping, and the HTTP surface for
// submitting and administering leads.
package leads

import (
	"context"
	"strings"

	"leadgen_backend/internal/classification"
	"leadgen_backend/internal/dedupe"
	"leadgen_backend/internal/events"
	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/internal/leads/repository"
	"leadgen_backend/internal/leads/transport"
	"leadgen_backend/internal/routing"
	"leadgen_backend/internal/validation"
	"leadgen_backend/platform/apperr"
	"leadgen_backend/platform/logger"
)

// Classifier resolves a submission to its commercial attribution.
type Classifier interface {
	Resolve(ctx context.Context, in classification.Input) (*classification.Attribution, error)
}

// Repository is the slice of the lead store the pipeline drives.
type Repository interface {
	Admit(ctx context.Context, params repository.AdmitParams) (repository.AdmitResult, error)
	GetByID(ctx context.Context, id int64) (domain.Lead, error)
}

// Deduper checks a fresh lead against its offer's duplicate policy.
type Deduper interface {
	Inspect(ctx context.Context, lead domain.Lead) (dedupe.Result, error)
}

// Validator applies the offer's validation policy to a lead.
type Validator interface {
	Validate(ctx context.Context, lead domain.Lead) (validation.Result, error)
}

// Router assigns a buyer to a validated lead.
type Router interface {
	Route(ctx context.Context, lead domain.Lead) (routing.Result, error)
}

// Enqueuer schedules a lead for asynchronous delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, leadID int64) (string, error)
}

// Stages bundles the pipeline's collaborators.
type Stages struct {
	Classifier Classifier
	Repo       Repository
	Deduper    Deduper
	Validator  Validator
	Router     Router
	Queue      Enqueuer
}

// Pipeline chains the intake stages for one submission: classify, admit,
// and for leads still in flight dedupe, validate, route, and hand off to
// the delivery queue. Every stage is a guarded transition on the lead
// row, so replayed and concurrent runs settle on the same end state.
type Pipeline struct {
	classify Classifier
	repo     Repository
	dedupe   Deduper
	validate Validator
	route    Router
	queue    Enqueuer
	bus      events.Bus
	log      *logger.Logger
}

// NewPipeline wires the intake pipeline.
func NewPipeline(s Stages, bus events.Bus, log *logger.Logger) *Pipeline {
	return &Pipeline{
		classify: s.Classifier,
		repo:     s.Repo,
		dedupe:   s.Deduper,
		validate: s.Validator,
		route:    s.Router,
		queue:    s.Queue,
		bus:      bus,
		log:      log,
	}
}

// Ingest runs the synchronous half of the pipeline for one submission
// and reports the lead's state once the run settles. Classification and
// idempotency key errors surface to the caller; once the lead row
// exists, stage failures are logged and the submission is still
// acknowledged, because every later stage can be resumed.
func (p *Pipeline) Ingest(ctx context.Context, req transport.SubmitLeadRequest, meta transport.RequestMeta) (transport.SubmitLeadResponse, error) {
	attr, err := p.classify.Resolve(ctx, classification.Input{
		SourceID:  req.SourceID,
		SourceKey: req.SourceKey,
		Host:      req.PageHost,
		Path:      req.PagePath,
	})
	if err != nil {
		return transport.SubmitLeadResponse{}, err
	}

	key, err := idempotencyKey(*attr, req)
	if err != nil {
		return transport.SubmitLeadResponse{}, err
	}

	admitted, err := p.repo.Admit(ctx, admitParams(*attr, key, req, meta))
	if err != nil {
		return transport.SubmitLeadResponse{}, err
	}

	p.log.LeadAdmitted(admitted.LeadID, attr.SourceID, admitted.CreatedNew)
	p.bus.Publish(ctx, events.LeadAdmitted{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     admitted.LeadID,
		SourceID:   attr.SourceID,
		OfferID:    attr.OfferID,
		CreatedNew: admitted.CreatedNew,
		Key:        key,
	})

	// A replay that finds the lead still in received resumes it; the
	// guarded transitions make a concurrent resume harmless.
	if admitted.Status == domain.StatusReceived {
		p.advance(ctx, admitted.LeadID)
	}

	lead, err := p.repo.GetByID(ctx, admitted.LeadID)
	if err != nil {
		return transport.SubmitLeadResponse{}, err
	}
	return submitResponse(lead, admitted.CreatedNew), nil
}

// advance drives a lead in received through dedupe, validation, routing,
// and the delivery hand-off. Stage failures stop the run and are logged,
// not surfaced: the lead row is durable and every stage re-entrant, so a
// replay or the routing sweep picks the lead back up.
func (p *Pipeline) advance(ctx context.Context, leadID int64) {
	lead, err := p.repo.GetByID(ctx, leadID)
	if err != nil {
		p.log.Error("pipeline read failed", "lead_id", leadID, "error", err)
		return
	}

	dup, err := p.dedupe.Inspect(ctx, lead)
	if err != nil {
		p.log.Error("dedupe stage failed", "lead_id", leadID, "error", err)
		return
	}
	if dup.IsDuplicate && dup.Action == dedupe.ActionReject {
		p.log.LeadRejected(leadID, dup.ReasonCode)
		p.bus.Publish(ctx, events.LeadRejected{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
			OfferID:   lead.OfferID,
			Reason:    dup.ReasonCode,
		})
		return
	}

	verdict, err := p.validate.Validate(ctx, lead)
	if err != nil {
		p.log.Error("validation stage failed", "lead_id", leadID, "error", err)
		return
	}
	if !verdict.Valid {
		p.log.LeadRejected(leadID, verdict.Reason)
		p.bus.Publish(ctx, events.LeadRejected{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
			OfferID:   lead.OfferID,
			Reason:    verdict.Reason,
		})
		return
	}
	p.bus.Publish(ctx, events.LeadValidated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		OfferID:   lead.OfferID,
	})

	// The router reads the settled status, so work from the row the
	// validator just wrote, not the pre-validation snapshot.
	lead, err = p.repo.GetByID(ctx, leadID)
	if err != nil {
		p.log.Error("pipeline read failed", "lead_id", leadID, "error", err)
		return
	}

	routed, err := p.route.Route(ctx, lead)
	if err != nil {
		p.log.Error("routing stage failed", "lead_id", leadID, "error", err)
		return
	}
	if routed.Strategy == "" {
		// No fresh win this run: either no eligible buyer yet, which the
		// sweep retries, or a concurrent run won the assignment and owns
		// the delivery hand-off.
		if routed.NoRouteReason != "" {
			p.log.RouteSkipped(leadID, routed.NoRouteReason)
		}
		return
	}

	p.log.LeadRouted(leadID, *routed.BuyerID, routed.Strategy)
	p.bus.Publish(ctx, events.LeadRouted{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		OfferID:   lead.OfferID,
		BuyerID:   *routed.BuyerID,
		Strategy:  routed.Strategy,
	})

	if _, err := p.queue.Enqueue(ctx, leadID); err != nil {
		p.log.Error("delivery enqueue failed", "lead_id", leadID, "error", err)
	}
}

// Redeliver puts a routed lead back on the delivery queue. A lead that
// already reached its buyer is acknowledged without a new job.
func (p *Pipeline) Redeliver(ctx context.Context, leadID int64) (transport.RedeliverResponse, error) {
	lead, err := p.repo.GetByID(ctx, leadID)
	if err != nil {
		return transport.RedeliverResponse{}, err
	}

	switch lead.Status {
	case domain.StatusDelivered, domain.StatusAccepted:
		return transport.RedeliverResponse{
			LeadID: leadID,
			Status: string(lead.Status),
			Detail: "lead already delivered",
		}, nil
	case domain.StatusRejected:
		return transport.RedeliverResponse{}, apperr.Conflict("rejected lead cannot be delivered")
	case domain.StatusReceived:
		return transport.RedeliverResponse{}, apperr.Conflict("lead has not been validated")
	}
	if lead.BuyerID == nil {
		return transport.RedeliverResponse{}, apperr.Conflict("lead has no buyer assigned")
	}

	jobID, err := p.queue.Enqueue(ctx, leadID)
	if err != nil {
		return transport.RedeliverResponse{}, err
	}

	p.log.Info("redelivery queued", "lead_id", leadID, "job_id", jobID)
	return transport.RedeliverResponse{
		LeadID: leadID,
		Status: string(lead.Status),
		JobID:  jobID,
	}, nil
}

func idempotencyKey(attr classification.Attribution, req transport.SubmitLeadRequest) (string, error) {
	if strings.TrimSpace(req.IdempotencyKey) != "" {
		return domain.ValidateClientKey(req.IdempotencyKey)
	}
	return domain.DeriveKey(domain.DeriveInput{
		SourceID:    attr.SourceID,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		CountryCode: req.CountryCode,
		PostalCode:  req.PostalCode,
		Message:     req.Message,
	})
}

func admitParams(attr classification.Attribution, key string, req transport.SubmitLeadRequest, meta transport.RequestMeta) repository.AdmitParams {
	return repository.AdmitParams{
		SourceID:        attr.SourceID,
		OfferID:         attr.OfferID,
		MarketID:        attr.MarketID,
		VerticalID:      attr.VerticalID,
		IdempotencyKey:  key,
		Name:            optional(req.Name),
		Email:           optional(req.Email),
		Phone:           optional(req.Phone),
		CountryCode:     optional(req.CountryCode),
		PostalCode:      optional(req.PostalCode),
		City:            optional(req.City),
		RegionCode:      optional(req.RegionCode),
		Message:         optional(req.Message),
		NormalizedEmail: domain.NormalizeEmail(req.Email),
		NormalizedPhone: domain.NormalizePhone(req.Phone),
		UTMSource:       optional(req.UTMSource),
		UTMMedium:       optional(req.UTMMedium),
		UTMCampaign:     optional(req.UTMCampaign),
		IPAddress:       optional(meta.IPAddress),
		UserAgent:       optional(meta.UserAgent),
	}
}

func submitResponse(lead domain.Lead, createdNew bool) transport.SubmitLeadResponse {
	return transport.SubmitLeadResponse{
		LeadID:         lead.ID,
		Status:         string(lead.Status),
		CreatedNew:     createdNew,
		SourceID:       lead.SourceID,
		OfferID:        lead.OfferID,
		MarketID:       lead.MarketID,
		VerticalID:     lead.VerticalID,
		IdempotencyKey: lead.IdempotencyKey,
		IsDuplicate:    lead.IsDuplicate,
		BuyerID:        lead.BuyerID,
		PriceCents:     lead.PriceCents,
	}
}

// optional trims s and returns nil when nothing remains. Values are
// stored as submitted; normalization belongs to the comparison sites.
func optional(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
