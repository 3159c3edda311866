package validation

import (
	"context"
	"encoding/json"
	"testing"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/apperr"
	"leadgen_backend/platform/logger"
)

const (
	msgUnexpectedError = "unexpected error: %v"
	msgExpectedReason  = "expected reason %q, got %q"
)

type fakeRepository struct {
	policy *Policy

	validatedLead int64
	rejectedLead  int64
	rejectReason  string

	validateOutcome domain.Outcome
	validateStatus  domain.Status
	rejectOutcome   domain.Outcome
	rejectStatus    domain.Status
}

func (f *fakeRepository) ActivePolicy(_ context.Context, _ int64) (*Policy, error) {
	return f.policy, nil
}

func (f *fakeRepository) MarkValidated(_ context.Context, leadID int64) (domain.Outcome, domain.Status, error) {
	f.validatedLead = leadID
	if f.validateStatus == "" {
		return domain.OutcomeApplied, domain.StatusValidated, nil
	}
	return f.validateOutcome, f.validateStatus, nil
}

func (f *fakeRepository) MarkRejected(_ context.Context, leadID int64, reason string) (domain.Outcome, domain.Status, error) {
	f.rejectedLead = leadID
	f.rejectReason = reason
	if f.rejectStatus == "" {
		return domain.OutcomeApplied, domain.StatusRejected, nil
	}
	return f.rejectOutcome, f.rejectStatus, nil
}

func strPtr(s string) *string { return &s }

func policyWith(rules string) *Policy {
	return &Policy{ID: 1, Name: "standard", Version: 1, Rules: json.RawMessage(rules)}
}

func receivedLead() domain.Lead {
	return domain.Lead{
		ID:          9,
		OfferID:     4,
		Status:      domain.StatusReceived,
		Name:        strPtr("Jane Roe"),
		Email:       strPtr("jane@example.com"),
		Phone:       strPtr("+15125550123"),
		CountryCode: strPtr("US"),
		PostalCode:  strPtr("78701"),
	}
}

func TestValidateNoOpOutsideReceived(t *testing.T) {
	engine := NewEngine(&fakeRepository{}, logger.New("test"))

	cases := map[domain.Status]bool{
		domain.StatusValidated: true,
		domain.StatusDelivered: true,
		domain.StatusAccepted:  true,
		domain.StatusRejected:  false,
	}
	for status, wantValid := range cases {
		lead := receivedLead()
		lead.Status = status

		result, err := engine.Validate(context.Background(), lead)
		if err != nil {
			t.Fatalf(msgUnexpectedError, err)
		}
		if result.Valid != wantValid {
			t.Fatalf("status %s: expected valid=%v", status, wantValid)
		}
		if result.RulesEvaluated != 0 {
			t.Fatalf("status %s: expected no rules evaluated", status)
		}
	}
}

func TestValidateMissingPolicyFatal(t *testing.T) {
	engine := NewEngine(&fakeRepository{}, logger.New("test"))

	_, err := engine.Validate(context.Background(), receivedLead())
	if code := apperr.CodeOf(err); code != CodePolicyNotFound {
		t.Fatalf("expected code %q, got %q", CodePolicyNotFound, code)
	}
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal kind, got %v", apperr.GetKind(err))
	}
}

func TestValidateRequiredFieldFailure(t *testing.T) {
	repo := &fakeRepository{policy: policyWith(`{"required_fields": ["name", "message"]}`)}
	engine := NewEngine(repo, logger.New("test"))

	result, err := engine.Validate(context.Background(), receivedLead())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if result.Valid {
		t.Fatalf("expected invalid")
	}
	if result.Reason != "missing_required_field:message" {
		t.Fatalf(msgExpectedReason, "missing_required_field:message", result.Reason)
	}
	if repo.rejectedLead != 9 || repo.rejectReason != result.Reason {
		t.Fatalf("expected guarded rejection with reason, got lead %d reason %q", repo.rejectedLead, repo.rejectReason)
	}
}

func TestValidateBlankCountsAsMissing(t *testing.T) {
	repo := &fakeRepository{policy: policyWith(`{"required_fields": ["name"]}`)}
	engine := NewEngine(repo, logger.New("test"))

	lead := receivedLead()
	lead.Name = strPtr("   ")

	result, err := engine.Validate(context.Background(), lead)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if result.Reason != "missing_required_field:name" {
		t.Fatalf(msgExpectedReason, "missing_required_field:name", result.Reason)
	}
}

func TestValidateFormatFailure(t *testing.T) {
	repo := &fakeRepository{policy: policyWith(`{"format_validations": {"postal_code": "^[0-9]{5}$"}}`)}
	engine := NewEngine(repo, logger.New("test"))

	lead := receivedLead()
	lead.PostalCode = strPtr("ABC123")

	result, err := engine.Validate(context.Background(), lead)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if result.Reason != "invalid_format_postal_code" {
		t.Fatalf(msgExpectedReason, "invalid_format_postal_code", result.Reason)
	}
}

func TestValidateEmptyValuePassesFormatAndAllowed(t *testing.T) {
	repo := &fakeRepository{policy: policyWith(`{
		"format_validations": {"region_code": "^[A-Z]{2}$"},
		"allowed_values": {"region_code": ["TX", "CA"]}
	}`)}
	engine := NewEngine(repo, logger.New("test"))

	result, err := engine.Validate(context.Background(), receivedLead())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if !result.Valid {
		t.Fatalf("empty optional field should pass, got reason %q", result.Reason)
	}
}

func TestValidateBrokenPatternSkipped(t *testing.T) {
	repo := &fakeRepository{policy: policyWith(`{"format_validations": {"email": "([unclosed"}}`)}
	engine := NewEngine(repo, logger.New("test"))

	result, err := engine.Validate(context.Background(), receivedLead())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if !result.Valid {
		t.Fatalf("broken stored pattern must be skipped, got reason %q", result.Reason)
	}
}

func TestValidateAllowedValuesTrimsBeforeComparing(t *testing.T) {
	repo := &fakeRepository{policy: policyWith(`{"allowed_values": {"country_code": ["US", "CA"]}}`)}
	engine := NewEngine(repo, logger.New("test"))

	lead := receivedLead()
	lead.CountryCode = strPtr(" US ")

	result, err := engine.Validate(context.Background(), lead)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if !result.Valid {
		t.Fatalf("trimmed value should be allowed, got reason %q", result.Reason)
	}

	lead.CountryCode = strPtr("MX")
	result, err = engine.Validate(context.Background(), lead)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if result.Reason != "value_not_allowed:country_code" {
		t.Fatalf(msgExpectedReason, "value_not_allowed:country_code", result.Reason)
	}
}

func TestValidateShortCircuitsOnFirstFailure(t *testing.T) {
	repo := &fakeRepository{policy: policyWith(`{
		"required_fields": ["message"],
		"format_validations": {"postal_code": "^[0-9]{5}$"}
	}`)}
	engine := NewEngine(repo, logger.New("test"))

	lead := receivedLead()
	lead.PostalCode = strPtr("also-bad")

	result, err := engine.Validate(context.Background(), lead)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if result.Reason != "missing_required_field:message" {
		t.Fatalf(msgExpectedReason, "missing_required_field:message", result.Reason)
	}
	if result.RulesEvaluated != 1 {
		t.Fatalf("expected evaluation to stop at first failure, evaluated %d", result.RulesEvaluated)
	}
}

func TestValidateSuccessMarksValidated(t *testing.T) {
	repo := &fakeRepository{policy: policyWith(`{"required_fields": ["name", "email"]}`)}
	engine := NewEngine(repo, logger.New("test"))

	result, err := engine.Validate(context.Background(), receivedLead())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if !result.Valid {
		t.Fatalf("expected valid, got reason %q", result.Reason)
	}
	if repo.validatedLead != 9 {
		t.Fatalf("expected guarded validation of lead 9, got %d", repo.validatedLead)
	}
}

func TestValidateLostRaceReportsSettledState(t *testing.T) {
	repo := &fakeRepository{
		policy:          policyWith(`{"required_fields": ["name"]}`),
		validateOutcome: domain.OutcomeConflict,
		validateStatus:  domain.StatusRejected,
	}
	engine := NewEngine(repo, logger.New("test"))

	result, err := engine.Validate(context.Background(), receivedLead())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if result.Valid {
		t.Fatalf("concurrently rejected lead must report invalid")
	}
}
