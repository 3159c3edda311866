package dedupe

import (
	"context"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/logger"
)

// Result reports what the detector found and what it already did about
// it. When IsDuplicate is true the linkage fields are persisted; for the
// reject action the lead is rejected too.
type Result struct {
	IsDuplicate   bool
	Action        string
	MatchedLeadID *int64
	MatchedOn     []string
	ReasonCode    string
}

// Detector runs duplicate detection for newly admitted leads.
type Detector struct {
	repo Repository
	log  *logger.Logger
}

// NewDetector creates a new duplicate detector.
func NewDetector(repo Repository, log *logger.Logger) *Detector {
	return &Detector{repo: repo, log: log}
}

// Inspect evaluates the lead against its offer's duplicate policy.
// Normalized contact fields are persisted whatever the outcome, so later
// leads can match against this one even when no signal exists yet.
func (d *Detector) Inspect(ctx context.Context, lead domain.Lead) (Result, error) {
	doc, err := d.repo.PolicyDocument(ctx, lead.OfferID)
	if err != nil {
		return Result{}, err
	}
	policy, err := ParsePolicy(doc)
	if err != nil {
		return Result{}, err
	}
	if !policy.Enabled {
		return Result{}, nil
	}
	if err := policy.validate(); err != nil {
		return Result{}, err
	}

	var normPhone, normEmail *string
	if policy.keyEnabled("phone") {
		normPhone = domain.NormalizePhone(domain.Deref(lead.Phone))
	}
	if policy.keyEnabled("email") {
		normEmail = domain.NormalizeEmail(domain.Deref(lead.Email))
	}

	if !minFieldsPresent(policy.MinFields, normPhone, normEmail) || (normPhone == nil && normEmail == nil) {
		if err := d.repo.PersistNormalized(ctx, lead.ID, normPhone, normEmail); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	}

	match, err := d.repo.FindMatch(ctx, MatchParams{
		OfferID:         lead.OfferID,
		LeadID:          lead.ID,
		SourceID:        lead.SourceID,
		WindowHours:     policy.WindowHours,
		NormalizedPhone: normPhone,
		NormalizedEmail: normEmail,
		ExcludeStatuses: policy.ExcludeStatuses,
		IncludeAny:      policy.IncludeSources == "any",
		MatchMode:       policy.MatchMode,
	})
	if err != nil {
		return Result{}, err
	}
	if match == nil {
		if err := d.repo.PersistNormalized(ctx, lead.ID, normPhone, normEmail); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	}

	if err := d.repo.MarkDuplicate(ctx, MarkParams{
		LeadID:          lead.ID,
		NormalizedPhone: normPhone,
		NormalizedEmail: normEmail,
		MatchedLeadID:   match.LeadID,
		Action:          policy.Action,
		ReasonCode:      policy.ReasonCode,
	}); err != nil {
		return Result{}, err
	}

	d.log.Info("duplicate lead detected",
		"lead_id", lead.ID, "matched_lead_id", match.LeadID, "action", policy.Action)

	matchedID := match.LeadID
	return Result{
		IsDuplicate:   true,
		Action:        policy.Action,
		MatchedLeadID: &matchedID,
		MatchedOn:     match.MatchedKeys(),
		ReasonCode:    policy.ReasonCode,
	}, nil
}

func minFieldsPresent(minFields []string, normPhone, normEmail *string) bool {
	for _, f := range minFields {
		if f == "phone" && normPhone == nil {
			return false
		}
		if f == "email" && normEmail == nil {
			return false
		}
	}
	return true
}
