package dedupe

import (
	"context"
	"testing"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/apperr"
	"leadgen_backend/platform/logger"
)

const msgUnexpectedError = "unexpected error: %v"

type fakeRepository struct {
	policyDoc []byte
	match     *Match

	matchParams    *MatchParams
	persistedLeads []int64
	markParams     *MarkParams
}

func (f *fakeRepository) PolicyDocument(_ context.Context, _ int64) ([]byte, error) {
	return f.policyDoc, nil
}

func (f *fakeRepository) FindMatch(_ context.Context, params MatchParams) (*Match, error) {
	f.matchParams = &params
	return f.match, nil
}

func (f *fakeRepository) PersistNormalized(_ context.Context, leadID int64, _, _ *string) error {
	f.persistedLeads = append(f.persistedLeads, leadID)
	return nil
}

func (f *fakeRepository) MarkDuplicate(_ context.Context, params MarkParams) error {
	f.markParams = &params
	return nil
}

func strPtr(s string) *string { return &s }

func testLead() domain.Lead {
	return domain.Lead{
		ID:       42,
		SourceID: 3,
		OfferID:  7,
		Phone:    strPtr("(512) 555-0123"),
		Email:    strPtr("Jane@Example.com"),
		Status:   domain.StatusReceived,
	}
}

func TestParsePolicyDefaults(t *testing.T) {
	policy, err := ParsePolicy([]byte(`{"enabled": true}`))
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if !policy.Enabled {
		t.Fatalf("expected enabled")
	}
	if policy.WindowHours != 24 {
		t.Fatalf("expected default window 24, got %d", policy.WindowHours)
	}
	if policy.MatchMode != "any" || policy.IncludeSources != "any" {
		t.Fatalf("expected any/any defaults, got %q/%q", policy.MatchMode, policy.IncludeSources)
	}
	if policy.Action != ActionReject || policy.ReasonCode != "duplicate_lead" {
		t.Fatalf("expected reject/duplicate_lead defaults, got %q/%q", policy.Action, policy.ReasonCode)
	}
	if len(policy.Keys) != 2 || len(policy.ExcludeStatuses) != 1 || policy.ExcludeStatuses[0] != "rejected" {
		t.Fatalf("unexpected key/status defaults: %v %v", policy.Keys, policy.ExcludeStatuses)
	}
}

func TestParsePolicyAbsentDocumentDisabled(t *testing.T) {
	for _, doc := range [][]byte{nil, []byte("null")} {
		policy, err := ParsePolicy(doc)
		if err != nil {
			t.Fatalf(msgUnexpectedError, err)
		}
		if policy.Enabled {
			t.Fatalf("expected disabled policy for absent document")
		}
	}
}

func TestInspectDisabledPolicySkips(t *testing.T) {
	repo := &fakeRepository{policyDoc: []byte(`{"enabled": false}`)}
	detector := NewDetector(repo, logger.New("test"))

	result, err := detector.Inspect(context.Background(), testLead())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if result.IsDuplicate {
		t.Fatalf("expected no duplicate signal")
	}
	if repo.matchParams != nil || len(repo.persistedLeads) != 0 {
		t.Fatalf("expected no repository activity for disabled policy")
	}
}

func TestInspectInvalidWindow(t *testing.T) {
	repo := &fakeRepository{policyDoc: []byte(`{"enabled": true, "window_hours": 9000}`)}
	detector := NewDetector(repo, logger.New("test"))

	_, err := detector.Inspect(context.Background(), testLead())
	if code := apperr.CodeOf(err); code != CodeInvalidWindowHours {
		t.Fatalf("expected code %q, got %q", CodeInvalidWindowHours, code)
	}
}

func TestInspectInvalidScope(t *testing.T) {
	repo := &fakeRepository{policyDoc: []byte(`{"enabled": true, "scope": "market"}`)}
	detector := NewDetector(repo, logger.New("test"))

	_, err := detector.Inspect(context.Background(), testLead())
	if code := apperr.CodeOf(err); code != CodeInvalidPolicyScope {
		t.Fatalf("expected code %q, got %q", CodeInvalidPolicyScope, code)
	}
}

func TestInspectMinFieldMissingPersistsAndStops(t *testing.T) {
	repo := &fakeRepository{policyDoc: []byte(`{"enabled": true, "min_fields": ["phone"]}`)}
	detector := NewDetector(repo, logger.New("test"))

	lead := testLead()
	lead.Phone = strPtr("123")

	result, err := detector.Inspect(context.Background(), lead)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if result.IsDuplicate {
		t.Fatalf("expected no duplicate signal")
	}
	if len(repo.persistedLeads) != 1 || repo.persistedLeads[0] != 42 {
		t.Fatalf("expected normalized fields persisted, got %v", repo.persistedLeads)
	}
	if repo.matchParams != nil {
		t.Fatalf("expected no candidate search")
	}
}

func TestInspectKeysGateNormalization(t *testing.T) {
	repo := &fakeRepository{policyDoc: []byte(`{"enabled": true, "keys": ["phone"]}`)}
	detector := NewDetector(repo, logger.New("test"))

	if _, err := detector.Inspect(context.Background(), testLead()); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if repo.matchParams == nil {
		t.Fatalf("expected candidate search")
	}
	if repo.matchParams.NormalizedEmail != nil {
		t.Fatalf("email key disabled, expected nil normalized email")
	}
	if repo.matchParams.NormalizedPhone == nil || *repo.matchParams.NormalizedPhone != "5125550123" {
		t.Fatalf("unexpected normalized phone: %v", repo.matchParams.NormalizedPhone)
	}
}

func TestInspectNoMatchPersists(t *testing.T) {
	repo := &fakeRepository{policyDoc: []byte(`{"enabled": true}`)}
	detector := NewDetector(repo, logger.New("test"))

	result, err := detector.Inspect(context.Background(), testLead())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if result.IsDuplicate {
		t.Fatalf("expected no duplicate")
	}
	if len(repo.persistedLeads) != 1 {
		t.Fatalf("expected normalized fields persisted")
	}
	if repo.markParams != nil {
		t.Fatalf("expected no duplicate marking")
	}
}

func TestInspectMatchMarksAndReports(t *testing.T) {
	repo := &fakeRepository{
		policyDoc: []byte(`{"enabled": true, "window_hours": 48, "include_sources": "same_source_only"}`),
		match:     &Match{LeadID: 17, PhoneMatch: true, EmailMatch: true},
	}
	detector := NewDetector(repo, logger.New("test"))

	result, err := detector.Inspect(context.Background(), testLead())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if !result.IsDuplicate || result.Action != ActionReject {
		t.Fatalf("expected reject duplicate, got %+v", result)
	}
	if result.MatchedLeadID == nil || *result.MatchedLeadID != 17 {
		t.Fatalf("expected matched lead 17, got %v", result.MatchedLeadID)
	}
	if len(result.MatchedOn) != 2 || result.MatchedOn[0] != "phone" {
		t.Fatalf("unexpected matched keys: %v", result.MatchedOn)
	}
	if result.ReasonCode != "duplicate_lead" {
		t.Fatalf("unexpected reason code: %q", result.ReasonCode)
	}

	if repo.matchParams.WindowHours != 48 {
		t.Fatalf("expected window 48, got %d", repo.matchParams.WindowHours)
	}
	if repo.matchParams.IncludeAny {
		t.Fatalf("expected same-source restriction")
	}
	if repo.markParams == nil || repo.markParams.MatchedLeadID != 17 || repo.markParams.Action != ActionReject {
		t.Fatalf("unexpected mark params: %+v", repo.markParams)
	}
}
