package delivery

import (
	"context"
	"errors"
	"testing"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/apperr"
	"leadgen_backend/platform/logger"
)

const (
	msgUnexpectedError = "unexpected error: %v"
	msgExpectedCode    = "expected code %q, got %q"
)

type fakeRepository struct {
	target *Target

	markOutcome domain.Outcome
	markStatus  domain.Status

	recorded   []domain.AttemptRecord
	markedLead int64
}

func (f *fakeRepository) LoadTarget(_ context.Context, _ int64) (*Target, error) {
	if f.target == nil {
		return nil, apperr.NotFound(msgLeadNotFound)
	}
	return f.target, nil
}

func (f *fakeRepository) MarkDelivered(_ context.Context, leadID int64) (domain.Outcome, domain.Status, error) {
	f.markedLead = leadID
	if f.markOutcome == domain.OutcomeApplied {
		return domain.OutcomeApplied, domain.StatusDelivered, nil
	}
	return f.markOutcome, f.markStatus, nil
}

func (f *fakeRepository) RecordAttempt(_ context.Context, _ int64, rec domain.AttemptRecord) error {
	f.recorded = append(f.recorded, rec)
	return nil
}

type fakeChannel struct {
	name      string
	available bool
	status    *int
	err       error
	calls     int
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Available(_ *Target) bool { return c.available }

func (c *fakeChannel) Send(_ context.Context, _ *Target, _ Payload) (*int, error) {
	c.calls++
	return c.status, c.err
}

type fakeBiller struct {
	billed []int64
	err    error
}

func (b *fakeBiller) Bill(_ context.Context, leadID int64) error {
	b.billed = append(b.billed, leadID)
	return b.err
}

func strPtr(s string) *string { return &s }

func deliverableTarget() *Target {
	buyerID := int64(5)
	return &Target{
		LeadID:         42,
		BuyerID:        &buyerID,
		Status:         domain.StatusValidated,
		IdempotencyKey: "a1b2c3d4e5f6a7b8",
		SourceKey:      "solar-landing",
		Name:           strPtr("Jane Doe"),
		Email:          strPtr("jane@example.com"),
		Phone:          strPtr("+32470000001"),
		CountryCode:    strPtr("BE"),
		PostalCode:     strPtr("2000"),
		WebhookURL:     strPtr("https://buyer.example.com/hook"),
	}
}

func newTestEngine(repo *fakeRepository, biller Biller, channels ...Channel) *Engine {
	return NewEngine(repo, channels, biller, nil, logger.New("test"))
}

func TestDeliverAlreadyDeliveredIsNoOp(t *testing.T) {
	target := deliverableTarget()
	target.Status = domain.StatusDelivered
	repo := &fakeRepository{target: target}
	ch := &fakeChannel{name: ChannelWebhook, available: true}
	engine := newTestEngine(repo, nil, ch)

	result, err := engine.Deliver(context.Background(), 42)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if !result.Success || result.Status != domain.StatusDelivered {
		t.Fatalf("expected settled success, got %+v", result)
	}
	if ch.calls != 0 {
		t.Fatalf("expected no channel calls, got %d", ch.calls)
	}
}

func TestDeliverWithoutBuyerFails(t *testing.T) {
	target := deliverableTarget()
	target.BuyerID = nil
	engine := newTestEngine(&fakeRepository{target: target}, nil)

	_, err := engine.Deliver(context.Background(), 42)
	if code := apperr.CodeOf(err); code != CodeNoBuyerAssigned {
		t.Fatalf(msgExpectedCode, CodeNoBuyerAssigned, code)
	}
}

func TestDeliverRejectedLeadFails(t *testing.T) {
	target := deliverableTarget()
	target.Status = domain.StatusRejected
	engine := newTestEngine(&fakeRepository{target: target}, nil)

	_, err := engine.Deliver(context.Background(), 42)
	if code := apperr.CodeOf(err); code != CodeNotDeliverable {
		t.Fatalf(msgExpectedCode, CodeNotDeliverable, code)
	}
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict kind, got %v", apperr.GetKind(err))
	}
}

func TestDeliverFirstChannelWins(t *testing.T) {
	repo := &fakeRepository{target: deliverableTarget()}
	status := 200
	webhook := &fakeChannel{name: ChannelWebhook, available: true, status: &status}
	email := &fakeChannel{name: ChannelEmail, available: true}
	biller := &fakeBiller{}
	engine := newTestEngine(repo, biller, webhook, email)

	result, err := engine.Deliver(context.Background(), 42)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if !result.Success || result.Channel != ChannelWebhook || result.Attempt != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if email.calls != 0 {
		t.Fatalf("expected email channel untouched, got %d calls", email.calls)
	}
	if repo.markedLead != 42 {
		t.Fatalf("expected guarded delivered transition for lead 42, got %d", repo.markedLead)
	}
	if len(repo.recorded) != 1 || !repo.recorded[0].Success || repo.recorded[0].Channel != ChannelWebhook {
		t.Fatalf("unexpected attempt history: %+v", repo.recorded)
	}
	if repo.recorded[0].HTTPStatus == nil || *repo.recorded[0].HTTPStatus != 200 {
		t.Fatalf("expected recorded http status 200, got %v", repo.recorded[0].HTTPStatus)
	}
	if len(biller.billed) != 1 || biller.billed[0] != 42 {
		t.Fatalf("expected billing for lead 42, got %v", biller.billed)
	}
}

func TestDeliverFallsThroughFailedChannels(t *testing.T) {
	target := deliverableTarget()
	target.Attempts = 2
	repo := &fakeRepository{target: target}
	status := 503
	webhook := &fakeChannel{name: ChannelWebhook, available: true, status: &status, err: errors.New("webhook returned 503")}
	email := &fakeChannel{name: ChannelEmail, available: true}
	engine := newTestEngine(repo, &fakeBiller{}, webhook, email)

	result, err := engine.Deliver(context.Background(), 42)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if !result.Success || result.Channel != ChannelEmail {
		t.Fatalf("expected email success, got %+v", result)
	}
	if len(repo.recorded) != 2 {
		t.Fatalf("expected 2 attempt records, got %d", len(repo.recorded))
	}
	// Attempt numbers continue from the lead's prior count.
	if repo.recorded[0].Attempt != 3 || repo.recorded[1].Attempt != 4 {
		t.Fatalf("unexpected attempt numbering: %d, %d", repo.recorded[0].Attempt, repo.recorded[1].Attempt)
	}
	if repo.recorded[0].Success || repo.recorded[0].Error == "" {
		t.Fatalf("expected failed webhook record with error, got %+v", repo.recorded[0])
	}
}

func TestDeliverSkipsUnavailableChannels(t *testing.T) {
	repo := &fakeRepository{target: deliverableTarget()}
	webhook := &fakeChannel{name: ChannelWebhook, available: false}
	sms := &fakeChannel{name: ChannelSMS, available: true}
	engine := newTestEngine(repo, &fakeBiller{}, webhook, sms)

	result, err := engine.Deliver(context.Background(), 42)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if result.Channel != ChannelSMS || result.Attempt != 1 {
		t.Fatalf("expected sms on attempt 1, got %+v", result)
	}
	if webhook.calls != 0 {
		t.Fatalf("expected unavailable channel skipped")
	}
}

func TestDeliverAllChannelsFailedIsRetryable(t *testing.T) {
	repo := &fakeRepository{target: deliverableTarget()}
	webhook := &fakeChannel{name: ChannelWebhook, available: true, err: errors.New("connection refused")}
	engine := newTestEngine(repo, &fakeBiller{}, webhook)

	result, err := engine.Deliver(context.Background(), 42)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if result.Success {
		t.Fatalf("expected failed pass")
	}
	if repo.markedLead != 0 {
		t.Fatalf("expected no delivered transition, got lead %d", repo.markedLead)
	}
}

func TestDeliverBillingFailureDoesNotFailPass(t *testing.T) {
	repo := &fakeRepository{target: deliverableTarget()}
	webhook := &fakeChannel{name: ChannelWebhook, available: true}
	biller := &fakeBiller{err: errors.New("balance update failed")}
	engine := newTestEngine(repo, biller, webhook)

	result, err := engine.Deliver(context.Background(), 42)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if !result.Success {
		t.Fatalf("expected delivery success despite billing failure")
	}
}

func TestDeliverLostRaceStillSucceeds(t *testing.T) {
	repo := &fakeRepository{
		target:      deliverableTarget(),
		markOutcome: domain.OutcomeAlreadyApplied,
		markStatus:  domain.StatusDelivered,
	}
	webhook := &fakeChannel{name: ChannelWebhook, available: true}
	biller := &fakeBiller{}
	engine := newTestEngine(repo, biller, webhook)

	result, err := engine.Deliver(context.Background(), 42)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if !result.Success {
		t.Fatalf("expected success on lost race")
	}
	// The winning worker bills; the loser must not double-bill.
	if len(biller.billed) != 0 {
		t.Fatalf("expected no billing from losing worker, got %v", biller.billed)
	}
}

func TestDeliverTransitionConflictFails(t *testing.T) {
	repo := &fakeRepository{
		target:      deliverableTarget(),
		markOutcome: domain.OutcomeConflict,
		markStatus:  domain.StatusRejected,
	}
	webhook := &fakeChannel{name: ChannelWebhook, available: true}
	engine := newTestEngine(repo, &fakeBiller{}, webhook)

	_, err := engine.Deliver(context.Background(), 42)
	if code := apperr.CodeOf(err); code != CodeNotDeliverable {
		t.Fatalf(msgExpectedCode, CodeNotDeliverable, code)
	}
}
