package leads

import (
	"context"
	"errors"
	"testing"

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

const (
	msgUnexpectedError = "unexpected error: %v"

	testClientKey = "portal-west-0001-key"
)

type fakeClassifier struct {
	attr *classification.Attribution
	err  error
	got  classification.Input
}

func (f *fakeClassifier) Resolve(_ context.Context, in classification.Input) (*classification.Attribution, error) {
	f.got = in
	return f.attr, f.err
}

// fakeStore serves GetByID from a scripted sequence of snapshots, one
// per read, holding the last one once the script runs out.
type fakeStore struct {
	admitResult repository.AdmitResult
	admitErr    error
	gotAdmit    *repository.AdmitParams
	reads       []domain.Lead
	readErr     error
	readCount   int
}

func (f *fakeStore) Admit(_ context.Context, params repository.AdmitParams) (repository.AdmitResult, error) {
	f.gotAdmit = &params
	return f.admitResult, f.admitErr
}

func (f *fakeStore) GetByID(_ context.Context, _ int64) (domain.Lead, error) {
	if f.readErr != nil {
		return domain.Lead{}, f.readErr
	}
	idx := f.readCount
	if idx >= len(f.reads) {
		idx = len(f.reads) - 1
	}
	f.readCount++
	return f.reads[idx], nil
}

type fakeDeduper struct {
	result dedupe.Result
	err    error
	calls  int
}

func (f *fakeDeduper) Inspect(_ context.Context, _ domain.Lead) (dedupe.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeValidator struct {
	result validation.Result
	err    error
	calls  int
}

func (f *fakeValidator) Validate(_ context.Context, _ domain.Lead) (validation.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeRouter struct {
	result routing.Result
	err    error
	calls  int
}

func (f *fakeRouter) Route(_ context.Context, _ domain.Lead) (routing.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeEnqueuer struct {
	jobID    string
	err      error
	enqueued []int64
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, leadID int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, leadID)
	return f.jobID, nil
}

type fakeBus struct {
	published []events.Event
}

func (f *fakeBus) Publish(_ context.Context, event events.Event) {
	f.published = append(f.published, event)
}

func (f *fakeBus) PublishSync(_ context.Context, event events.Event) error {
	f.published = append(f.published, event)
	return nil
}

func (f *fakeBus) Subscribe(string, events.Handler) {}

func (f *fakeBus) names() []string {
	names := make([]string, 0, len(f.published))
	for _, e := range f.published {
		names = append(names, e.EventName())
	}
	return names
}

func testAttribution() *classification.Attribution {
	return &classification.Attribution{SourceID: 3, OfferID: 9, MarketID: 1, VerticalID: 2}
}

func receivedLead(id int64) domain.Lead {
	return domain.Lead{ID: id, SourceID: 3, OfferID: 9, MarketID: 1, VerticalID: 2,
		IdempotencyKey: testClientKey, Status: domain.StatusReceived}
}

func int64Ptr(v int64) *int64 { return &v }

func newTestPipeline(s Stages, bus events.Bus) *Pipeline {
	return NewPipeline(s, bus, logger.New("test"))
}

func submitRequest() transport.SubmitLeadRequest {
	return transport.SubmitLeadRequest{
		SourceID:       int64Ptr(3),
		IdempotencyKey: testClientKey,
		Name:           "Jane Doe",
		Email:          "Jane.Doe@Example.com",
		Phone:          "+1 (512) 555-0134",
		CountryCode:    "US",
		PostalCode:     "78701",
		Message:        "need a quote",
	}
}

func TestIngestRunsFreshLeadThroughRouting(t *testing.T) {
	validated := receivedLead(42)
	validated.Status = domain.StatusValidated
	settled := validated
	settled.BuyerID = int64Ptr(7)

	classifier := &fakeClassifier{attr: testAttribution()}
	store := &fakeStore{
		admitResult: repository.AdmitResult{LeadID: 42, Status: domain.StatusReceived, CreatedNew: true},
		reads:       []domain.Lead{receivedLead(42), validated, settled},
	}
	router := &fakeRouter{result: routing.Result{BuyerID: int64Ptr(7), Strategy: routing.StrategyPriority}}
	queue := &fakeEnqueuer{jobID: "job-1"}
	bus := &fakeBus{}

	p := newTestPipeline(Stages{
		Classifier: classifier,
		Repo:       store,
		Deduper:    &fakeDeduper{},
		Validator:  &fakeValidator{result: validation.Result{Valid: true}},
		Router:     router,
		Queue:      queue,
	}, bus)

	resp, err := p.Ingest(context.Background(), submitRequest(), transport.RequestMeta{IPAddress: "203.0.113.9"})
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if resp.LeadID != 42 || !resp.CreatedNew || resp.Status != "validated" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.BuyerID == nil || *resp.BuyerID != 7 {
		t.Fatalf("expected buyer 7 in response, got %+v", resp.BuyerID)
	}
	if len(queue.enqueued) != 1 || queue.enqueued[0] != 42 {
		t.Fatalf("expected lead 42 enqueued, got %v", queue.enqueued)
	}
	if store.gotAdmit.IdempotencyKey != testClientKey {
		t.Fatalf("expected client key to pass through, got %q", store.gotAdmit.IdempotencyKey)
	}
	if store.gotAdmit.NormalizedEmail == nil || *store.gotAdmit.NormalizedEmail != "jane.doe@example.com" {
		t.Fatalf("expected normalized email persisted, got %+v", store.gotAdmit.NormalizedEmail)
	}
	if store.gotAdmit.IPAddress == nil || *store.gotAdmit.IPAddress != "203.0.113.9" {
		t.Fatalf("expected request ip persisted, got %+v", store.gotAdmit.IPAddress)
	}

	want := []string{"pipeline.lead.admitted", "pipeline.lead.validated", "pipeline.lead.routed"}
	got := bus.names()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("expected event %q at %d, got %v", name, i, got)
		}
	}
}

func TestIngestDerivesKeyWhenClientSendsNone(t *testing.T) {
	req := submitRequest()
	req.IdempotencyKey = ""

	store := &fakeStore{
		admitResult: repository.AdmitResult{LeadID: 5, Status: domain.StatusReceived, CreatedNew: true},
		reads:       []domain.Lead{receivedLead(5)},
	}
	p := newTestPipeline(Stages{
		Classifier: &fakeClassifier{attr: testAttribution()},
		Repo:       store,
		Deduper:    &fakeDeduper{},
		Validator:  &fakeValidator{result: validation.Result{Valid: false, Reason: "missing_required_field:email"}},
		Router:     &fakeRouter{},
		Queue:      &fakeEnqueuer{},
	}, &fakeBus{})

	if _, err := p.Ingest(context.Background(), req, transport.RequestMeta{}); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	want, err := domain.DeriveKey(domain.DeriveInput{
		SourceID:    3,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		CountryCode: req.CountryCode,
		PostalCode:  req.PostalCode,
		Message:     req.Message,
	})
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if store.gotAdmit.IdempotencyKey != want {
		t.Fatalf("expected derived key %q, got %q", want, store.gotAdmit.IdempotencyKey)
	}
}

func TestIngestIdenticalSubmissionsConverge(t *testing.T) {
	req := submitRequest()
	req.SourceID = nil
	req.IdempotencyKey = ""
	req.PageHost = "lp.austin.plumbing"
	req.PagePath = "/quote"

	store := &fakeStore{
		admitResult: repository.AdmitResult{LeadID: 42, Status: domain.StatusReceived, CreatedNew: true},
		reads:       []domain.Lead{receivedLead(42)},
	}
	p := newTestPipeline(Stages{
		Classifier: &fakeClassifier{attr: testAttribution()},
		Repo:       store,
		Deduper:    &fakeDeduper{},
		Validator:  &fakeValidator{result: validation.Result{Valid: true}},
		Router:     &fakeRouter{result: routing.Result{NoRouteReason: routing.ReasonNoEligibleBuyers}},
		Queue:      &fakeEnqueuer{},
	}, &fakeBus{})

	first, err := p.Ingest(context.Background(), req, transport.RequestMeta{})
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	firstKey := store.gotAdmit.IdempotencyKey

	// The row now exists; the second submission replays against it.
	store.admitResult.CreatedNew = false
	second, err := p.Ingest(context.Background(), req, transport.RequestMeta{})
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	if store.gotAdmit.IdempotencyKey != firstKey {
		t.Fatalf("expected both submissions to derive one key, got %q then %q",
			firstKey, store.gotAdmit.IdempotencyKey)
	}
	if !first.CreatedNew || second.CreatedNew {
		t.Fatalf("expected only the first submission to create, got %v then %v",
			first.CreatedNew, second.CreatedNew)
	}
	if first.LeadID != second.LeadID {
		t.Fatalf("expected one lead, got %d and %d", first.LeadID, second.LeadID)
	}
}

func TestIngestReplayOfSettledLeadIsReadOnly(t *testing.T) {
	settled := receivedLead(42)
	settled.Status = domain.StatusDelivered
	settled.BuyerID = int64Ptr(7)
	settled.PriceCents = int64Ptr(4500)

	deduper := &fakeDeduper{}
	val := &fakeValidator{}
	router := &fakeRouter{}
	bus := &fakeBus{}
	p := newTestPipeline(Stages{
		Classifier: &fakeClassifier{attr: testAttribution()},
		Repo: &fakeStore{
			admitResult: repository.AdmitResult{LeadID: 42, Status: domain.StatusDelivered, CreatedNew: false},
			reads:       []domain.Lead{settled},
		},
		Deduper:   deduper,
		Validator: val,
		Router:    router,
		Queue:     &fakeEnqueuer{},
	}, bus)

	resp, err := p.Ingest(context.Background(), submitRequest(), transport.RequestMeta{})
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if resp.CreatedNew || resp.Status != "delivered" {
		t.Fatalf("unexpected replay response: %+v", resp)
	}
	if resp.PriceCents == nil || *resp.PriceCents != 4500 {
		t.Fatalf("expected settled price in response, got %+v", resp.PriceCents)
	}
	if deduper.calls != 0 || val.calls != 0 || router.calls != 0 {
		t.Fatalf("expected no stage to run on a settled replay")
	}
	if names := bus.names(); len(names) != 1 || names[0] != "pipeline.lead.admitted" {
		t.Fatalf("expected only the admitted event, got %v", names)
	}
}

func TestIngestDuplicateRejectShortCircuits(t *testing.T) {
	rejected := receivedLead(42)
	rejected.Status = domain.StatusRejected
	rejected.IsDuplicate = true

	val := &fakeValidator{}
	bus := &fakeBus{}
	p := newTestPipeline(Stages{
		Classifier: &fakeClassifier{attr: testAttribution()},
		Repo: &fakeStore{
			admitResult: repository.AdmitResult{LeadID: 42, Status: domain.StatusReceived, CreatedNew: true},
			reads:       []domain.Lead{receivedLead(42), rejected},
		},
		Deduper: &fakeDeduper{result: dedupe.Result{
			IsDuplicate:   true,
			Action:        dedupe.ActionReject,
			MatchedLeadID: int64Ptr(17),
			ReasonCode:    "duplicate_lead",
		}},
		Validator: val,
		Router:    &fakeRouter{},
		Queue:     &fakeEnqueuer{},
	}, bus)

	resp, err := p.Ingest(context.Background(), submitRequest(), transport.RequestMeta{})
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if resp.Status != "rejected" || !resp.IsDuplicate {
		t.Fatalf("unexpected duplicate response: %+v", resp)
	}
	if val.calls != 0 {
		t.Fatalf("expected validation to be skipped after a duplicate reject")
	}

	names := bus.names()
	if len(names) != 2 || names[1] != "pipeline.lead.rejected" {
		t.Fatalf("expected rejected event, got %v", names)
	}
	if reason := bus.published[1].(events.LeadRejected).Reason; reason != "duplicate_lead" {
		t.Fatalf("expected duplicate reason, got %q", reason)
	}
}

func TestIngestValidationFailureRejects(t *testing.T) {
	rejected := receivedLead(42)
	rejected.Status = domain.StatusRejected

	router := &fakeRouter{}
	bus := &fakeBus{}
	p := newTestPipeline(Stages{
		Classifier: &fakeClassifier{attr: testAttribution()},
		Repo: &fakeStore{
			admitResult: repository.AdmitResult{LeadID: 42, Status: domain.StatusReceived, CreatedNew: true},
			reads:       []domain.Lead{receivedLead(42), rejected},
		},
		Deduper:   &fakeDeduper{},
		Validator: &fakeValidator{result: validation.Result{Valid: false, Reason: "missing_required_field:phone"}},
		Router:    router,
		Queue:     &fakeEnqueuer{},
	}, bus)

	resp, err := p.Ingest(context.Background(), submitRequest(), transport.RequestMeta{})
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if resp.Status != "rejected" {
		t.Fatalf("expected rejected status, got %q", resp.Status)
	}
	if router.calls != 0 {
		t.Fatalf("expected routing to be skipped for an invalid lead")
	}

	names := bus.names()
	if len(names) != 2 || names[1] != "pipeline.lead.rejected" {
		t.Fatalf("expected rejected event, got %v", names)
	}
	if reason := bus.published[1].(events.LeadRejected).Reason; reason != "missing_required_field:phone" {
		t.Fatalf("unexpected rejection reason %q", reason)
	}
}

func TestIngestNoEligibleBuyerLeavesLeadValidated(t *testing.T) {
	validated := receivedLead(42)
	validated.Status = domain.StatusValidated

	queue := &fakeEnqueuer{}
	bus := &fakeBus{}
	p := newTestPipeline(Stages{
		Classifier: &fakeClassifier{attr: testAttribution()},
		Repo: &fakeStore{
			admitResult: repository.AdmitResult{LeadID: 42, Status: domain.StatusReceived, CreatedNew: true},
			reads:       []domain.Lead{receivedLead(42), validated},
		},
		Deduper:   &fakeDeduper{},
		Validator: &fakeValidator{result: validation.Result{Valid: true}},
		Router:    &fakeRouter{result: routing.Result{NoRouteReason: routing.ReasonNoEligibleBuyers}},
		Queue:     queue,
	}, bus)

	resp, err := p.Ingest(context.Background(), submitRequest(), transport.RequestMeta{})
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if resp.Status != "validated" || resp.BuyerID != nil {
		t.Fatalf("unexpected response for unrouted lead: %+v", resp)
	}
	if len(queue.enqueued) != 0 {
		t.Fatalf("expected no delivery hand-off, got %v", queue.enqueued)
	}
	if names := bus.names(); len(names) != 2 || names[1] != "pipeline.lead.validated" {
		t.Fatalf("expected admitted and validated events only, got %v", names)
	}
}

func TestIngestClassificationErrorSurfaces(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(Stages{
		Classifier: &fakeClassifier{err: apperr.BadRequest("no source mapping")},
		Repo:       store,
		Deduper:    &fakeDeduper{},
		Validator:  &fakeValidator{},
		Router:     &fakeRouter{},
		Queue:      &fakeEnqueuer{},
	}, &fakeBus{})

	_, err := p.Ingest(context.Background(), submitRequest(), transport.RequestMeta{})
	if apperr.GetKind(err) != apperr.KindBadRequest {
		t.Fatalf("expected classification error to surface, got %v", err)
	}
	if store.gotAdmit != nil {
		t.Fatalf("expected no admission after a classification failure")
	}
}

func TestIngestStageFailureStillAcknowledges(t *testing.T) {
	router := &fakeRouter{}
	p := newTestPipeline(Stages{
		Classifier: &fakeClassifier{attr: testAttribution()},
		Repo: &fakeStore{
			admitResult: repository.AdmitResult{LeadID: 42, Status: domain.StatusReceived, CreatedNew: true},
			reads:       []domain.Lead{receivedLead(42)},
		},
		Deduper:   &fakeDeduper{},
		Validator: &fakeValidator{err: errors.New("policy store down")},
		Router:    router,
		Queue:     &fakeEnqueuer{},
	}, &fakeBus{})

	resp, err := p.Ingest(context.Background(), submitRequest(), transport.RequestMeta{})
	if err != nil {
		t.Fatalf("expected admission to be acknowledged despite the stage failure, got %v", err)
	}
	if resp.LeadID != 42 || resp.Status != "received" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if router.calls != 0 {
		t.Fatalf("expected the run to stop at the failed stage")
	}
}

func TestRedeliverQueuesRoutedLead(t *testing.T) {
	lead := receivedLead(42)
	lead.Status = domain.StatusValidated
	lead.BuyerID = int64Ptr(7)

	queue := &fakeEnqueuer{jobID: "job-9"}
	p := newTestPipeline(Stages{Repo: &fakeStore{reads: []domain.Lead{lead}}, Queue: queue}, &fakeBus{})

	resp, err := p.Redeliver(context.Background(), 42)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if resp.JobID != "job-9" || resp.Status != "validated" {
		t.Fatalf("unexpected redeliver response: %+v", resp)
	}
	if len(queue.enqueued) != 1 || queue.enqueued[0] != 42 {
		t.Fatalf("expected lead 42 enqueued, got %v", queue.enqueued)
	}
}

func TestRedeliverAcknowledgesDeliveredLeadWithoutJob(t *testing.T) {
	lead := receivedLead(42)
	lead.Status = domain.StatusDelivered
	lead.BuyerID = int64Ptr(7)

	queue := &fakeEnqueuer{jobID: "job-9"}
	p := newTestPipeline(Stages{Repo: &fakeStore{reads: []domain.Lead{lead}}, Queue: queue}, &fakeBus{})

	resp, err := p.Redeliver(context.Background(), 42)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if resp.JobID != "" || resp.Detail == "" {
		t.Fatalf("expected a no-op acknowledgement, got %+v", resp)
	}
	if len(queue.enqueued) != 0 {
		t.Fatalf("expected no new job for a delivered lead")
	}
}

func TestRedeliverGuardsUnreadyStates(t *testing.T) {
	cases := []struct {
		name   string
		status domain.Status
		buyer  *int64
	}{
		{name: "received", status: domain.StatusReceived},
		{name: "rejected", status: domain.StatusRejected},
		{name: "validated without buyer", status: domain.StatusValidated},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lead := receivedLead(42)
			lead.Status = tc.status
			lead.BuyerID = tc.buyer

			queue := &fakeEnqueuer{}
			p := newTestPipeline(Stages{Repo: &fakeStore{reads: []domain.Lead{lead}}, Queue: queue}, &fakeBus{})

			_, err := p.Redeliver(context.Background(), 42)
			if apperr.GetKind(err) != apperr.KindConflict {
				t.Fatalf("expected conflict, got %v", err)
			}
			if len(queue.enqueued) != 0 {
				t.Fatalf("expected no job, got %v", queue.enqueued)
			}
		})
	}
}
