package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"nurture_backend/internal/events"
	"nurture_backend/internal/followup/channels"
	"nurture_backend/internal/followup/content"
	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/followuptest"
	"nurture_backend/internal/followup/scheduling"
	"nurture_backend/platform/ai/completion"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
)

type stubCompleter struct{ text string }

func (s stubCompleter) Complete(context.Context, completion.Prompt) (completion.Result, error) {
	return completion.Result{Text: s.text, Model: "stub-model"}, nil
}

func (s stubCompleter) ModelName() string { return "stub-model" }

type failingCompleter struct{}

func (failingCompleter) Complete(context.Context, completion.Prompt) (completion.Result, error) {
	return completion.Result{}, apperr.Dependency("model unavailable", errors.New("503"))
}

func (failingCompleter) ModelName() string { return "stub-model" }

// flakyStore fails the first failures dispatch records.
type flakyStore struct {
	*followuptest.Store
	failures int
}

func (f *flakyStore) RecordDispatch(ctx context.Context, in domain.FollowupInteraction, fromStep int, contactedAt time.Time) (bool, error) {
	if f.failures > 0 {
		f.failures--
		return false, errors.New("connection reset by peer")
	}
	return f.Store.RecordDispatch(ctx, in, fromStep, contactedAt)
}

type fakeDispatcher struct {
	channel domain.StepType
	err     error
	sent    []channels.Message
}

func (f *fakeDispatcher) Channel() domain.StepType { return f.channel }

func (f *fakeDispatcher) Dispatch(_ context.Context, msg channels.Message) (channels.Receipt, error) {
	if f.err != nil {
		return channels.Receipt{}, f.err
	}
	f.sent = append(f.sent, msg)
	return channels.Receipt{Channel: f.channel, ProviderID: "msg-1"}, nil
}

type harness struct {
	store    *followuptest.Store
	bus      *followuptest.Bus
	sched    *scheduling.Service
	sms      *fakeDispatcher
	email    *fakeDispatcher
	log      *logger.Logger
	executor *Executor
	owner    uuid.UUID
	lead     domain.LeadContext
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.New("test")
	h := &harness{
		store: followuptest.NewStore(),
		bus:   followuptest.NewBus(),
		sms:   &fakeDispatcher{channel: domain.StepSMS},
		email: &fakeDispatcher{channel: domain.StepEmail},
		owner: uuid.New(),
		log:   log,
	}
	h.lead = domain.LeadContext{
		ID:      uuid.New(),
		OwnerID: h.owner,
		Name:    "Dana Whitfield",
		Email:   "dana@example.com",
		Phone:   "+15555550100",
		Source:  "zillow",
	}
	h.store.AddLead(h.lead)
	h.sched = scheduling.New(h.store, h.bus, log)
	h.executor = h.newExecutor(h.store, stubCompleter{text: "Subject: Quick question\n\nHi Dana, are you still looking in Maple Heights?"})
	return h
}

func (h *harness) newExecutor(repo Repository, completer completion.Completer) *Executor {
	gen := content.NewGenerator(h.store, completer, h.log)
	x := New(repo, h.sched, gen, channels.NewRegistry(h.sms, h.email), h.bus, h.log)
	x.wait = func(context.Context, time.Duration) error { return nil }
	return x
}

func (h *harness) enroll(t *testing.T, steps ...domain.SequenceStep) (domain.LeadFollowup, []domain.SequenceStep) {
	t.Helper()
	seq, stored := h.store.AddSequence(h.owner, domain.TriggerLeadCapture, steps...)
	e, err := h.sched.Enroll(context.Background(), h.owner, h.lead.ID, seq.ID)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	return e, stored
}

func TestExecuteDispatchesAdvancesAndArmsNextStep(t *testing.T) {
	h := newHarness(t)
	e, steps := h.enroll(t,
		domain.SequenceStep{StepType: domain.StepSMS, ContentTemplate: "Hi {{lead.first_name}}"},
		domain.SequenceStep{StepType: domain.StepEmail, DelayDays: 2, ContentTemplate: "Following up"},
	)

	outcome, err := h.executor.Execute(context.Background(), e.ID, steps[0].ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome != OutcomeDispatched {
		t.Fatalf("expected dispatched, got %s", outcome)
	}
	if len(h.sms.sent) != 1 {
		t.Fatalf("expected one sms, got %d", len(h.sms.sent))
	}

	got := h.store.Enrollment(e.ID)
	if got.CurrentStep != 2 {
		t.Fatalf("expected cursor on step 2, got %d", got.CurrentStep)
	}
	if got.LastContactDate == nil {
		t.Fatal("expected last contact date to be set")
	}

	interactions := h.store.InteractionsFor(e.ID)
	if len(interactions) != 1 || interactions[0].InteractionType != "sms_sent" || interactions[0].Status != domain.InteractionSent {
		t.Fatalf("unexpected interactions %+v", interactions)
	}
	if interactions[0].ResponseData["providerId"] != "msg-1" {
		t.Fatalf("expected provider id in response data, got %v", interactions[0].ResponseData)
	}

	if _, ok := h.store.JobFor(e.ID, steps[1].ID); !ok {
		t.Fatal("expected job for step 2")
	}
	if n := len(h.bus.Published(events.FollowupStepDispatched{}.EventName())); n != 1 {
		t.Fatalf("expected one dispatched event, got %d", n)
	}
}

func TestExecuteReplayDoesNotSendTwice(t *testing.T) {
	h := newHarness(t)
	e, steps := h.enroll(t,
		domain.SequenceStep{StepType: domain.StepSMS, ContentTemplate: "Hi"},
		domain.SequenceStep{StepType: domain.StepSMS, DelayDays: 1, ContentTemplate: "Hi again"},
	)

	if _, err := h.executor.Execute(context.Background(), e.ID, steps[0].ID); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	outcome, err := h.executor.Execute(context.Background(), e.ID, steps[0].ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected replay to be skipped, got %s", outcome)
	}
	if len(h.sms.sent) != 1 {
		t.Fatalf("expected one sms, got %d", len(h.sms.sent))
	}
	if n := len(h.store.InteractionsFor(e.ID)); n != 1 {
		t.Fatalf("expected one interaction, got %d", n)
	}
}

func TestExecuteDispatchFailureLeavesEnrollmentUntouched(t *testing.T) {
	h := newHarness(t)
	h.sms.err = apperr.Dependency("gateway timeout", errors.New("504"))
	e, steps := h.enroll(t, domain.SequenceStep{StepType: domain.StepSMS, ContentTemplate: "Hi"})

	_, err := h.executor.Execute(context.Background(), e.ID, steps[0].ID)
	if err == nil {
		t.Fatal("expected dispatch error")
	}
	if !apperr.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if got := h.store.Enrollment(e.ID); got.CurrentStep != 1 || got.Status != domain.EnrollmentActive {
		t.Fatalf("expected enrollment unchanged, got step %d status %s", got.CurrentStep, got.Status)
	}
	if n := len(h.store.InteractionsFor(e.ID)); n != 0 {
		t.Fatalf("expected no interactions, got %d", n)
	}
}

func TestExecuteUnconfiguredChannelIsNotRetryable(t *testing.T) {
	h := newHarness(t)
	e, steps := h.enroll(t, domain.SequenceStep{StepType: domain.StepSocial, ContentTemplate: "New listing"})

	_, err := h.executor.Execute(context.Background(), e.ID, steps[0].ID)
	if !errors.Is(err, channels.ErrChannelUnavailable) {
		t.Fatalf("expected channel unavailable, got %v", err)
	}
	if apperr.IsRetryable(err) {
		t.Fatal("expected unconfigured channel to be terminal")
	}
}

func TestExecuteConditionNotMetAdvancesWithoutContact(t *testing.T) {
	h := newHarness(t)
	e, steps := h.enroll(t,
		domain.SequenceStep{StepType: domain.StepSMS, ContentTemplate: "Hi", Conditions: map[string]any{"min_engagement_score": 50}},
		domain.SequenceStep{StepType: domain.StepEmail, DelayDays: 1, ContentTemplate: "Hello"},
	)

	outcome, err := h.executor.Execute(context.Background(), e.ID, steps[0].ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome != OutcomeAdvanced {
		t.Fatalf("expected condition_not_met, got %s", outcome)
	}
	if len(h.sms.sent) != 0 {
		t.Fatal("expected nothing sent")
	}
	if got := h.store.Enrollment(e.ID); got.CurrentStep != 2 {
		t.Fatalf("expected cursor on step 2, got %d", got.CurrentStep)
	}
	if _, ok := h.store.JobFor(e.ID, steps[1].ID); !ok {
		t.Fatal("expected job for step 2")
	}
}

func TestExecuteSkipsPausedEnrollment(t *testing.T) {
	h := newHarness(t)
	e, steps := h.enroll(t, domain.SequenceStep{StepType: domain.StepSMS, ContentTemplate: "Hi"})
	if _, err := h.sched.Pause(context.Background(), e.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	outcome, err := h.executor.Execute(context.Background(), e.ID, steps[0].ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome != OutcomeSkipped || len(h.sms.sent) != 0 {
		t.Fatalf("expected skip without send, got %s and %d sends", outcome, len(h.sms.sent))
	}
}

func TestExecuteLastStepCompletesEnrollment(t *testing.T) {
	h := newHarness(t)
	e, steps := h.enroll(t, domain.SequenceStep{StepType: domain.StepEmail, ContentTemplate: "Hello"})

	if _, err := h.executor.Execute(context.Background(), e.ID, steps[0].ID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := h.store.Enrollment(e.ID); got.Status != domain.EnrollmentCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if h.email.sent[0].Subject != "Quick question" {
		t.Fatalf("expected generated subject, got %q", h.email.sent[0].Subject)
	}
}

func TestRecordTerminalFailureWritesFailedInteraction(t *testing.T) {
	h := newHarness(t)
	e, steps := h.enroll(t, domain.SequenceStep{StepType: domain.StepSMS, ContentTemplate: "Hi"})

	if err := h.executor.RecordTerminalFailure(context.Background(), e.ID, steps[0].ID, errors.New("carrier rejected")); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	interactions := h.store.InteractionsFor(e.ID)
	if len(interactions) != 1 || interactions[0].InteractionType != "sms_failed" || interactions[0].Status != domain.InteractionFailed {
		t.Fatalf("unexpected interactions %+v", interactions)
	}
	if got := h.store.Enrollment(e.ID); got.CurrentStep != 1 {
		t.Fatalf("expected cursor to stay on step 1, got %d", got.CurrentStep)
	}
	if n := len(h.bus.Published(events.FollowupStepFailed{}.EventName())); n != 1 {
		t.Fatalf("expected one failed event, got %d", n)
	}
}

func TestExecuteSchedulesEachStepFromTheLastContact(t *testing.T) {
	h := newHarness(t)
	e, steps := h.enroll(t,
		domain.SequenceStep{StepType: domain.StepSMS, ContentTemplate: "Hi"},
		domain.SequenceStep{StepType: domain.StepSMS, DelayHours: 24, ContentTemplate: "Checking in"},
		domain.SequenceStep{StepType: domain.StepEmail, DelayHours: 72, ContentTemplate: "New listings"},
	)
	t0 := time.Date(2026, 4, 6, 15, 0, 0, 0, time.UTC)

	h.executor.now = func() time.Time { return t0 }
	if _, err := h.executor.Execute(context.Background(), e.ID, steps[0].ID); err != nil {
		t.Fatalf("execute step 1: %v", err)
	}
	want := t0.Add(24 * time.Hour)
	if got := h.store.Enrollment(e.ID); got.NextContactDate == nil || !got.NextContactDate.Equal(want) {
		t.Fatalf("expected next contact %s after step 1, got %v", want, got.NextContactDate)
	}
	if job, ok := h.store.JobFor(e.ID, steps[1].ID); !ok || !job.DueAt.Equal(want) {
		t.Fatalf("expected step 2 due at %s, got %+v", want, job)
	}

	h.executor.now = func() time.Time { return want }
	if _, err := h.executor.Execute(context.Background(), e.ID, steps[1].ID); err != nil {
		t.Fatalf("execute step 2: %v", err)
	}
	want = t0.Add(24 * time.Hour).Add(72 * time.Hour)
	if got := h.store.Enrollment(e.ID); got.NextContactDate == nil || !got.NextContactDate.Equal(want) {
		t.Fatalf("expected next contact %s after step 2, got %v", want, got.NextContactDate)
	}
	if job, ok := h.store.JobFor(e.ID, steps[2].ID); !ok || !job.DueAt.Equal(want) {
		t.Fatalf("expected step 3 due at %s, got %+v", want, job)
	}
}

func TestExecuteGenerationFailureLeavesEnrollmentUntouched(t *testing.T) {
	h := newHarness(t)
	h.executor = h.newExecutor(h.store, failingCompleter{})
	e, steps := h.enroll(t, domain.SequenceStep{StepType: domain.StepSMS, ContentTemplate: "Hi"})

	_, err := h.executor.Execute(context.Background(), e.ID, steps[0].ID)
	if err == nil {
		t.Fatal("expected generation error")
	}
	if !apperr.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if len(h.sms.sent) != 0 {
		t.Fatalf("expected nothing sent, got %d", len(h.sms.sent))
	}
	if got := h.store.Enrollment(e.ID); got.CurrentStep != 1 || got.LastContactDate != nil {
		t.Fatalf("expected cursor untouched, got step %d", got.CurrentStep)
	}
	if n := len(h.store.InteractionsFor(e.ID)); n != 0 {
		t.Fatalf("expected no interactions, got %d", n)
	}
}

func TestExecuteRetriesRecordWithoutResending(t *testing.T) {
	h := newHarness(t)
	h.executor = h.newExecutor(&flakyStore{Store: h.store, failures: 1}, stubCompleter{text: "Hi Dana"})
	e, steps := h.enroll(t,
		domain.SequenceStep{StepType: domain.StepSMS, ContentTemplate: "Hi"},
		domain.SequenceStep{StepType: domain.StepSMS, DelayDays: 1, ContentTemplate: "Hi again"},
	)

	outcome, err := h.executor.Execute(context.Background(), e.ID, steps[0].ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome != OutcomeDispatched || len(h.sms.sent) != 1 {
		t.Fatalf("expected one dispatch, got %s with %d sends", outcome, len(h.sms.sent))
	}
	if got := h.store.Enrollment(e.ID); got.CurrentStep != 2 {
		t.Fatalf("expected cursor on step 2, got %d", got.CurrentStep)
	}
}

func TestUnrecordedDeliveryIsStoredInsteadOfResent(t *testing.T) {
	h := newHarness(t)
	h.executor = h.newExecutor(&flakyStore{Store: h.store, failures: recordAttempts}, stubCompleter{text: "Hi Dana"})
	e, steps := h.enroll(t,
		domain.SequenceStep{StepType: domain.StepSMS, ContentTemplate: "Hi"},
		domain.SequenceStep{StepType: domain.StepSMS, DelayDays: 1, ContentTemplate: "Hi again"},
	)

	_, err := h.executor.Execute(context.Background(), e.ID, steps[0].ID)
	var unrecorded *UnrecordedDelivery
	if !errors.As(err, &unrecorded) {
		t.Fatalf("expected unrecorded delivery, got %v", err)
	}
	if apperr.IsRetryable(err) {
		t.Fatal("expected a delivered step never to be retried")
	}
	if got := h.store.Enrollment(e.ID); got.CurrentStep != 1 {
		t.Fatalf("expected cursor still on step 1, got %d", got.CurrentStep)
	}

	if err := h.executor.RecordTerminalFailure(context.Background(), e.ID, steps[0].ID, err); err != nil {
		t.Fatalf("store delivery: %v", err)
	}
	if len(h.sms.sent) != 1 {
		t.Fatalf("expected exactly one sms, got %d", len(h.sms.sent))
	}
	interactions := h.store.InteractionsFor(e.ID)
	if len(interactions) != 1 || interactions[0].InteractionType != "sms_sent" {
		t.Fatalf("expected the delivery to be stored, got %+v", interactions)
	}
	if got := h.store.Enrollment(e.ID); got.CurrentStep != 2 {
		t.Fatalf("expected cursor on step 2, got %d", got.CurrentStep)
	}
	if _, ok := h.store.JobFor(e.ID, steps[1].ID); !ok {
		t.Fatal("expected job for step 2")
	}
}

func TestRecordTerminalFailureSkipsStoppedEnrollment(t *testing.T) {
	h := newHarness(t)
	e, steps := h.enroll(t, domain.SequenceStep{StepType: domain.StepSMS, ContentTemplate: "Hi"})
	if _, err := h.sched.Pause(context.Background(), e.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if err := h.executor.RecordTerminalFailure(context.Background(), e.ID, steps[0].ID, errors.New("carrier rejected")); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if n := len(h.store.InteractionsFor(e.ID)); n != 0 {
		t.Fatalf("expected no interaction for a paused enrollment, got %d", n)
	}
	if n := len(h.bus.Published(events.FollowupStepFailed{}.EventName())); n != 0 {
		t.Fatalf("expected no failed event, got %d", n)
	}
}
