// Package execution runs one scheduled step of an enrollment: it checks the
// step still applies, writes the content, delivers it and advances the cursor.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nurture_backend/internal/events"
	"nurture_backend/internal/followup/channels"
	"nurture_backend/internal/followup/content"
	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/repository"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
)

// Outcome tells the caller what Execute did.
type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeAdvanced   Outcome = "condition_not_met"
	OutcomeSkipped    Outcome = "skipped"
)

const (
	recordAttempts = 3
	recordBackoff  = 200 * time.Millisecond
)

// UnrecordedDelivery is returned when a step reached the lead but its
// interaction could not be stored. It carries what was sent so the record can
// be completed later without sending again.
type UnrecordedDelivery struct {
	Interaction domain.FollowupInteraction
	Err         error
}

func (u *UnrecordedDelivery) Error() string {
	return fmt.Sprintf("step %d delivered but not recorded: %v", u.Interaction.StepNumber, u.Err)
}

func (u *UnrecordedDelivery) Unwrap() error {
	return apperr.SideEffect("step delivered but not recorded", u.Err)
}

// Repository is the data access needed by the executor.
type Repository interface {
	GetSequence(ctx context.Context, id uuid.UUID) (domain.SequenceTemplate, error)
	GetStep(ctx context.Context, id uuid.UUID) (domain.SequenceStep, error)
	GetEnrollment(ctx context.Context, id uuid.UUID) (domain.LeadFollowup, error)
	repository.LeadReader
	RecordDispatch(ctx context.Context, in domain.FollowupInteraction, fromStep int, contactedAt time.Time) (bool, error)
	AdvanceWithoutContact(ctx context.Context, enrollmentID uuid.UUID, fromStep int) (bool, error)
	RecordFailure(ctx context.Context, in domain.FollowupInteraction) error
}

// Scheduler arms the step after the cursor.
type Scheduler interface {
	ScheduleNext(ctx context.Context, enrollmentID uuid.UUID) error
}

// ContentWriter produces the message for a step.
type ContentWriter interface {
	Generate(ctx context.Context, req content.Request) (content.Result, error)
}

// ChannelRouter delivers a message over a step's channel.
type ChannelRouter interface {
	Dispatch(ctx context.Context, channel domain.StepType, msg channels.Message) (channels.Receipt, error)
}

// Executor runs steps.
type Executor struct {
	repo       Repository
	scheduler  Scheduler
	writer     ContentWriter
	router     ChannelRouter
	conditions domain.ConditionEvaluator
	eventBus   events.Bus
	log        *logger.Logger
	now        func() time.Time
	wait       func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithConditionEvaluator replaces the default rule evaluator.
func WithConditionEvaluator(ev domain.ConditionEvaluator) Option {
	return func(e *Executor) { e.conditions = ev }
}

// New creates an executor.
func New(repo Repository, scheduler Scheduler, writer ContentWriter, router ChannelRouter, eventBus events.Bus, log *logger.Logger, opts ...Option) *Executor {
	e := &Executor{
		repo:       repo,
		scheduler:  scheduler,
		writer:     writer,
		router:     router,
		conditions: domain.RuleEvaluator{},
		eventBus:   eventBus,
		log:        log,
		now:        time.Now,
		wait:       sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type target struct {
	enrollment domain.LeadFollowup
	step       domain.SequenceStep
	sequence   domain.SequenceTemplate
}

// Execute runs stepID for enrollmentID. Replays of a step that already ran,
// or steps of an enrollment that stopped, are skipped without side effects.
// A generation or delivery error leaves the enrollment untouched so the step
// can be retried.
func (x *Executor) Execute(ctx context.Context, enrollmentID, stepID uuid.UUID) (Outcome, error) {
	t, reason, err := x.load(ctx, enrollmentID, stepID)
	if err != nil {
		return "", err
	}
	if reason != "" {
		x.log.StepSkipped(enrollmentID.String(), stepID.String(), reason)
		if reason == skipCursorMoved {
			// a previous run advanced the cursor but may have died before arming the next step
			if err := x.scheduler.ScheduleNext(ctx, enrollmentID); err != nil {
				return "", err
			}
		}
		return OutcomeSkipped, nil
	}

	lead, err := x.repo.GetLeadContext(ctx, t.enrollment.LeadID)
	if err != nil {
		return "", err
	}

	allowed, err := x.conditions.Allow(ctx, domain.ConditionInput{Enrollment: t.enrollment, Step: t.step, Lead: lead})
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "step conditions cannot be evaluated", err)
	}
	if !allowed {
		return x.advance(ctx, t)
	}

	req := content.Request{
		LeadID:         lead.ID,
		ContentType:    domain.ContentTypeForStep(t.step.StepType),
		Lead:           &lead,
		Template:       t.step.ContentTemplate,
		PromptOverride: t.step.AIPrompt,
		Fields:         t.step.PersonalizationFields,
	}
	if t.step.Subject != nil {
		req.Subject = *t.step.Subject
	}
	generated, err := x.writer.Generate(ctx, req)
	if err != nil {
		return "", err
	}

	// the enrollment may have been paused or ended while content was generated
	current, err := x.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return "", err
	}
	if current.Status != domain.EnrollmentActive || current.CurrentStep != t.step.StepNumber {
		x.log.StepSkipped(enrollmentID.String(), stepID.String(), "enrollment changed during generation")
		return OutcomeSkipped, nil
	}

	receipt, err := x.router.Dispatch(ctx, t.step.StepType, channels.Message{
		EnrollmentID: enrollmentID,
		StepID:       stepID,
		StepNumber:   t.step.StepNumber,
		Lead:         lead,
		Subject:      generated.Subject,
		Body:         generated.Body,
	})
	if err != nil {
		return "", err
	}

	return x.record(ctx, t, generated, receipt)
}

func (x *Executor) record(ctx context.Context, t target, generated content.Result, receipt channels.Receipt) (Outcome, error) {
	now := x.now()
	data := map[string]any{
		"generationId": generated.GenerationID.String(),
		"qualityScore": generated.QualityScore,
	}
	if generated.Subject != "" {
		data["subject"] = generated.Subject
	}
	if receipt.ProviderID != "" {
		data["providerId"] = receipt.ProviderID
	}
	for k, v := range receipt.Data {
		data[k] = v
	}

	interaction := domain.FollowupInteraction{
		ID:              uuid.New(),
		LeadFollowupID:  t.enrollment.ID,
		StepID:          t.step.ID,
		StepNumber:      t.step.StepNumber,
		InteractionType: domain.InteractionType(t.step.StepType, "sent"),
		Content:         generated.Body,
		Status:          domain.InteractionSent,
		ResponseData:    data,
		SentAt:          now,
	}
	advanced, err := x.storeDispatch(ctx, interaction, t.step.StepNumber, now)
	if err != nil {
		x.log.Error("step delivered but not recorded",
			"enrollmentId", t.enrollment.ID, "stepNumber", t.step.StepNumber, "error", err)
		return "", &UnrecordedDelivery{Interaction: interaction, Err: err}
	}
	return x.finish(ctx, t.enrollment, t.step, interaction, advanced)
}

// storeDispatch retries the dispatch record a few times. The message is
// already out, so the step itself is never run again from here.
func (x *Executor) storeDispatch(ctx context.Context, in domain.FollowupInteraction, fromStep int, contactedAt time.Time) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		advanced, err := x.repo.RecordDispatch(ctx, in, fromStep, contactedAt)
		if err == nil {
			return advanced, nil
		}
		lastErr = err
		if attempt < recordAttempts {
			if err := x.wait(ctx, time.Duration(attempt)*recordBackoff); err != nil {
				return false, err
			}
		}
	}
	return false, fmt.Errorf("record dispatch: %w", lastErr)
}

func (x *Executor) finish(ctx context.Context, e domain.LeadFollowup, step domain.SequenceStep, interaction domain.FollowupInteraction, advanced bool) (Outcome, error) {
	if !advanced {
		// delivered, but a concurrent transition ended the enrollment first
		x.log.Warn("step delivered after enrollment changed", "enrollmentId", e.ID, "stepNumber", step.StepNumber)
		return OutcomeSkipped, nil
	}

	x.log.StepDispatched(e.ID.String(), step.ID.String(), step.StepNumber, string(step.StepType))
	if err := x.scheduler.ScheduleNext(ctx, e.ID); err != nil {
		return "", fmt.Errorf("schedule after step %d: %w", step.StepNumber, err)
	}

	x.eventBus.Publish(ctx, events.FollowupStepDispatched{
		BaseEvent:     events.NewBaseEvent(),
		EnrollmentID:  e.ID,
		LeadID:        e.LeadID,
		StepID:        step.ID,
		StepNumber:    step.StepNumber,
		Channel:       string(step.StepType),
		InteractionID: interaction.ID,
	})
	return OutcomeDispatched, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (x *Executor) advance(ctx context.Context, t target) (Outcome, error) {
	advanced, err := x.repo.AdvanceWithoutContact(ctx, t.enrollment.ID, t.step.StepNumber)
	if err != nil {
		return "", err
	}
	if !advanced {
		return OutcomeSkipped, nil
	}
	x.log.StepSkipped(t.enrollment.ID.String(), t.step.ID.String(), "conditions not met")
	if err := x.scheduler.ScheduleNext(ctx, t.enrollment.ID); err != nil {
		return "", err
	}
	return OutcomeAdvanced, nil
}

const (
	skipMissing          = "enrollment, step or sequence no longer exists"
	skipInactive         = "enrollment is not active"
	skipSequenceInactive = "sequence is not active"
	skipCursorMoved      = "step already executed"
	skipWrongSequence    = "step belongs to another sequence"
)

func (x *Executor) load(ctx context.Context, enrollmentID, stepID uuid.UUID) (target, string, error) {
	var t target
	var err error

	if t.enrollment, err = x.repo.GetEnrollment(ctx, enrollmentID); err != nil {
		return missingOr(err)
	}
	if t.step, err = x.repo.GetStep(ctx, stepID); err != nil {
		return missingOr(err)
	}
	if t.sequence, err = x.repo.GetSequence(ctx, t.enrollment.SequenceID); err != nil {
		return missingOr(err)
	}

	switch {
	case t.step.SequenceID != t.enrollment.SequenceID:
		return t, skipWrongSequence, nil
	case t.enrollment.Status != domain.EnrollmentActive:
		return t, skipInactive, nil
	case t.sequence.Status != domain.SequenceActive:
		return t, skipSequenceInactive, nil
	case t.enrollment.CurrentStep > t.step.StepNumber:
		return t, skipCursorMoved, nil
	case t.enrollment.CurrentStep != t.step.StepNumber:
		return t, "step is not due yet", nil
	}
	return t, "", nil
}

func missingOr(err error) (target, string, error) {
	if apperr.Is(err, apperr.KindNotFound) {
		return target{}, skipMissing, nil
	}
	return target{}, "", err
}

// RecordTerminalFailure closes a step that will not be retried automatically.
// A failed interaction is written while the enrollment is still active on the
// step, and the cursor stays there. When cause is an UnrecordedDelivery the
// delivered message is stored instead and the enrollment moves on.
func (x *Executor) RecordTerminalFailure(ctx context.Context, enrollmentID, stepID uuid.UUID, cause error) error {
	var unrecorded *UnrecordedDelivery
	if errors.As(cause, &unrecorded) {
		return x.recordDelivered(ctx, unrecorded.Interaction)
	}

	e, err := x.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}
	step, err := x.repo.GetStep(ctx, stepID)
	if err != nil {
		return err
	}
	if e.Status != domain.EnrollmentActive || e.CurrentStep != step.StepNumber {
		x.log.StepSkipped(enrollmentID.String(), stepID.String(), "enrollment changed before the failure was recorded")
		return nil
	}

	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	in := domain.FollowupInteraction{
		ID:              uuid.New(),
		LeadFollowupID:  e.ID,
		StepID:          step.ID,
		StepNumber:      step.StepNumber,
		InteractionType: domain.InteractionType(step.StepType, "failed"),
		Status:          domain.InteractionFailed,
		ResponseData:    map[string]any{"error": reason},
		SentAt:          x.now(),
	}
	if err := x.repo.RecordFailure(ctx, in); err != nil {
		return err
	}

	x.eventBus.Publish(ctx, events.FollowupStepFailed{
		BaseEvent:    events.NewBaseEvent(),
		EnrollmentID: e.ID,
		LeadID:       e.LeadID,
		StepID:       step.ID,
		StepNumber:   step.StepNumber,
		Reason:       reason,
	})
	return nil
}

func (x *Executor) recordDelivered(ctx context.Context, in domain.FollowupInteraction) error {
	e, err := x.repo.GetEnrollment(ctx, in.LeadFollowupID)
	if err != nil {
		return err
	}
	step, err := x.repo.GetStep(ctx, in.StepID)
	if err != nil {
		return err
	}
	advanced, err := x.storeDispatch(ctx, in, in.StepNumber, in.SentAt)
	if err != nil {
		return err
	}
	_, err = x.finish(ctx, e, step, in, advanced)
	return err
}
