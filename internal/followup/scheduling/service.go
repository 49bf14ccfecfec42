// Package scheduling owns the enrollment lifecycle: enrolling leads, moving
// the step cursor forward and arming the durable job for the next step.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nurture_backend/internal/events"
	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/repository"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
)

const msgEnrollmentNotFound = "enrollment not found"

// Repository is the data access needed by the scheduling service.
type Repository interface {
	repository.SequenceStore
	repository.StepStore
	repository.EnrollmentStore
	repository.InteractionStore
	repository.JobStore
}

// Service manages enrollments and their schedule.
type Service struct {
	repo     Repository
	eventBus events.Bus
	log      *logger.Logger
	now      func() time.Time
}

// New creates a new scheduling service.
func New(repo Repository, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, eventBus: eventBus, log: log, now: time.Now}
}

// Enroll starts a lead on step 1 of an active sequence owned by ownerID.
func (s *Service) Enroll(ctx context.Context, ownerID, leadID, sequenceID uuid.UUID) (domain.LeadFollowup, error) {
	seq, err := s.repo.GetSequence(ctx, sequenceID)
	if err != nil {
		return domain.LeadFollowup{}, err
	}
	if seq.OwnerID != ownerID {
		return domain.LeadFollowup{}, apperr.NotFound("sequence not found")
	}
	return s.enroll(ctx, seq, leadID)
}

func (s *Service) enroll(ctx context.Context, seq domain.SequenceTemplate, leadID uuid.UUID) (domain.LeadFollowup, error) {
	if seq.Status != domain.SequenceActive {
		return domain.LeadFollowup{}, apperr.Validation("sequence is not active")
	}

	if _, found, err := s.repo.FindOpenEnrollment(ctx, leadID, seq.ID); err != nil {
		return domain.LeadFollowup{}, err
	} else if found {
		return domain.LeadFollowup{}, apperr.Conflict("lead is already enrolled in this sequence")
	}

	now := s.now()
	enrollment, err := s.repo.CreateEnrollment(ctx, domain.LeadFollowup{
		ID:              uuid.New(),
		LeadID:          leadID,
		SequenceID:      seq.ID,
		CurrentStep:     1,
		Status:          domain.EnrollmentActive,
		StartDate:       now,
		NextContactDate: &now,
	})
	if err != nil {
		return domain.LeadFollowup{}, err
	}

	if err := s.ScheduleNext(ctx, enrollment.ID); err != nil {
		return domain.LeadFollowup{}, fmt.Errorf("schedule first step: %w", err)
	}
	return s.repo.GetEnrollment(ctx, enrollment.ID)
}

// EnrollForTrigger enrolls a lead in every active sequence of the owner that
// starts on trigger. Sequences the lead is already enrolled in are skipped.
func (s *Service) EnrollForTrigger(ctx context.Context, ownerID uuid.UUID, trigger domain.TriggerType, leadID uuid.UUID) ([]domain.LeadFollowup, error) {
	sequences, err := s.repo.ListActiveSequencesByTrigger(ctx, ownerID, trigger)
	if err != nil {
		return nil, err
	}

	var (
		enrolled []domain.LeadFollowup
		errs     []error
	)
	for _, seq := range sequences {
		e, err := s.enroll(ctx, seq, leadID)
		if err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				continue
			}
			errs = append(errs, fmt.Errorf("sequence %s: %w", seq.ID, err))
			continue
		}
		enrolled = append(enrolled, e)
	}
	return enrolled, errors.Join(errs...)
}

// ScheduleNext finds the step at the cursor, stores its contact time and arms
// its job. An enrollment with no step left is completed. Nothing happens while
// the enrollment or its sequence is not active.
func (s *Service) ScheduleNext(ctx context.Context, enrollmentID uuid.UUID) error {
	e, err := s.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if e.Status != domain.EnrollmentActive {
		return nil
	}
	seq, err := s.repo.GetSequence(ctx, e.SequenceID)
	if err != nil {
		return err
	}
	if seq.Status != domain.SequenceActive {
		return nil
	}

	step, found, err := s.repo.FindStepAtOrAfter(ctx, seq.ID, e.CurrentStep)
	if err != nil {
		return err
	}
	if !found {
		return s.complete(ctx, e)
	}

	next := domain.NextContactAt(e, step)
	updated, err := s.repo.SetSchedule(ctx, e.ID, step.StepNumber, next)
	if err != nil {
		return err
	}
	if !updated {
		// status or cursor moved concurrently; whoever moved it schedules
		return nil
	}
	_, err = s.arm(ctx, e.ID, step, next)
	return err
}

func (s *Service) arm(ctx context.Context, enrollmentID uuid.UUID, step domain.SequenceStep, due time.Time) (domain.ScheduledJob, error) {
	job, err := s.repo.ArmJob(ctx, domain.ScheduledJob{
		ID:           uuid.New(),
		EnrollmentID: enrollmentID,
		StepID:       step.ID,
		StepNumber:   step.StepNumber,
		DueAt:        due,
		Status:       domain.JobPending,
	})
	if err != nil {
		return domain.ScheduledJob{}, fmt.Errorf("arm step %d: %w", step.StepNumber, err)
	}
	s.log.Debug("step armed", "enrollmentId", enrollmentID, "stepNumber", step.StepNumber, "dueAt", due)
	return job, nil
}

func (s *Service) complete(ctx context.Context, e domain.LeadFollowup) error {
	ok, err := s.repo.TransitionEnrollment(ctx, e.ID, domain.EnrollmentActive, domain.EnrollmentCompleted)
	if err != nil || !ok {
		return err
	}
	if err := s.repo.CancelJobsForEnrollment(ctx, e.ID); err != nil {
		return err
	}
	s.log.Info("enrollment completed", "enrollmentId", e.ID, "leadId", e.LeadID)
	s.eventBus.Publish(ctx, events.EnrollmentCompleted{
		BaseEvent:    events.NewBaseEvent(),
		EnrollmentID: e.ID,
		LeadID:       e.LeadID,
		SequenceID:   e.SequenceID,
	})
	return nil
}

// Pause stops an active enrollment. Pending jobs are cancelled and the stored
// next contact date is kept for Resume.
func (s *Service) Pause(ctx context.Context, enrollmentID uuid.UUID) (domain.LeadFollowup, error) {
	if err := s.transition(ctx, enrollmentID, domain.EnrollmentPaused); err != nil {
		return domain.LeadFollowup{}, err
	}
	return s.repo.GetEnrollment(ctx, enrollmentID)
}

// Resume reactivates a paused enrollment at the step it stopped on.
func (s *Service) Resume(ctx context.Context, enrollmentID uuid.UUID) (domain.LeadFollowup, error) {
	if err := s.transition(ctx, enrollmentID, domain.EnrollmentActive); err != nil {
		return domain.LeadFollowup{}, err
	}

	e, err := s.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return domain.LeadFollowup{}, err
	}
	if err := s.rearm(ctx, e); err != nil {
		return domain.LeadFollowup{}, err
	}
	return s.repo.GetEnrollment(ctx, enrollmentID)
}

func (s *Service) rearm(ctx context.Context, e domain.LeadFollowup) error {
	if e.NextContactDate == nil {
		return s.ScheduleNext(ctx, e.ID)
	}
	step, found, err := s.repo.FindStepAtOrAfter(ctx, e.SequenceID, e.CurrentStep)
	if err != nil {
		return err
	}
	if !found || step.StepNumber != e.CurrentStep {
		return s.ScheduleNext(ctx, e.ID)
	}
	_, err = s.arm(ctx, e.ID, step, *e.NextContactDate)
	return err
}

// Unsubscribe ends an enrollment because the lead opted out.
func (s *Service) Unsubscribe(ctx context.Context, enrollmentID uuid.UUID) (domain.LeadFollowup, error) {
	if err := s.transition(ctx, enrollmentID, domain.EnrollmentUnsubscribed); err != nil {
		return domain.LeadFollowup{}, err
	}
	return s.repo.GetEnrollment(ctx, enrollmentID)
}

// MarkConverted ends an enrollment because the lead became a client.
func (s *Service) MarkConverted(ctx context.Context, enrollmentID uuid.UUID) (domain.LeadFollowup, error) {
	if err := s.transition(ctx, enrollmentID, domain.EnrollmentConverted); err != nil {
		return domain.LeadFollowup{}, err
	}
	return s.repo.GetEnrollment(ctx, enrollmentID)
}

func (s *Service) transition(ctx context.Context, enrollmentID uuid.UUID, to domain.EnrollmentStatus) error {
	e, err := s.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if !domain.CanTransition(e.Status, to) {
		return apperr.Validation(fmt.Sprintf("cannot move enrollment from %s to %s", e.Status, to))
	}
	ok, err := s.repo.TransitionEnrollment(ctx, e.ID, e.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("enrollment was changed concurrently")
	}
	if to != domain.EnrollmentActive {
		if err := s.repo.CancelJobsForEnrollment(ctx, e.ID); err != nil {
			return err
		}
	}
	s.log.Info("enrollment status changed", "enrollmentId", e.ID, "from", e.Status, "to", to)
	return nil
}

// EndForLead moves every open enrollment of a lead to a terminal status.
func (s *Service) EndForLead(ctx context.Context, leadID uuid.UUID, to domain.EnrollmentStatus) error {
	if !to.IsTerminal() {
		return apperr.Validation("target status must be terminal")
	}
	items, err := s.repo.ListEnrollmentsByLead(ctx, leadID)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range items {
		if !e.Status.IsOpen() {
			continue
		}
		if err := s.transition(ctx, e.ID, to); err != nil && !apperr.Is(err, apperr.KindConflict) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RetryStep re-arms the dead-lettered job of the enrollment's current step.
func (s *Service) RetryStep(ctx context.Context, enrollmentID uuid.UUID) (domain.ScheduledJob, error) {
	e, err := s.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return domain.ScheduledJob{}, err
	}
	if e.Status != domain.EnrollmentActive {
		return domain.ScheduledJob{}, apperr.Validation("only active enrollments can retry a step")
	}
	step, found, err := s.repo.FindStepAtOrAfter(ctx, e.SequenceID, e.CurrentStep)
	if err != nil {
		return domain.ScheduledJob{}, err
	}
	if !found {
		return domain.ScheduledJob{}, apperr.Validation("enrollment has no step left")
	}
	if _, failed, err := s.repo.FailedJobForEnrollment(ctx, e.ID, step.ID); err != nil {
		return domain.ScheduledJob{}, err
	} else if !failed {
		return domain.ScheduledJob{}, apperr.Validation("current step has not failed")
	}
	return s.arm(ctx, e.ID, step, s.now())
}

// Owned returns an enrollment whose sequence belongs to ownerID.
func (s *Service) Owned(ctx context.Context, ownerID, enrollmentID uuid.UUID) (domain.LeadFollowup, error) {
	e, err := s.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return domain.LeadFollowup{}, err
	}
	seq, err := s.repo.GetSequence(ctx, e.SequenceID)
	if err != nil {
		return domain.LeadFollowup{}, err
	}
	if seq.OwnerID != ownerID {
		return domain.LeadFollowup{}, apperr.NotFound(msgEnrollmentNotFound)
	}
	return e, nil
}

// ListForLead returns a lead's enrollments in sequences owned by ownerID.
func (s *Service) ListForLead(ctx context.Context, ownerID, leadID uuid.UUID) ([]domain.LeadFollowup, error) {
	items, err := s.repo.ListEnrollmentsByLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	owned := make(map[uuid.UUID]bool)
	out := make([]domain.LeadFollowup, 0, len(items))
	for _, e := range items {
		mine, seen := owned[e.SequenceID]
		if !seen {
			seq, err := s.repo.GetSequence(ctx, e.SequenceID)
			if err != nil {
				return nil, err
			}
			mine = seq.OwnerID == ownerID
			owned[e.SequenceID] = mine
		}
		if mine {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListForSequence returns the enrollments of a sequence owned by ownerID.
func (s *Service) ListForSequence(ctx context.Context, ownerID, sequenceID uuid.UUID) ([]domain.LeadFollowup, error) {
	seq, err := s.repo.GetSequence(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	if seq.OwnerID != ownerID {
		return nil, apperr.NotFound("sequence not found")
	}
	return s.repo.ListEnrollmentsBySequence(ctx, sequenceID)
}

// ListInteractions returns an enrollment's interactions in execution order.
func (s *Service) ListInteractions(ctx context.Context, ownerID, enrollmentID uuid.UUID) ([]domain.FollowupInteraction, error) {
	if _, err := s.Owned(ctx, ownerID, enrollmentID); err != nil {
		return nil, err
	}
	return s.repo.ListInteractions(ctx, enrollmentID)
}

// RecordEngagement applies a delivery or engagement report to an interaction.
// Reports that would move engagement backwards are ignored.
func (s *Service) RecordEngagement(ctx context.Context, ownerID, interactionID uuid.UUID, status domain.InteractionStatus, at time.Time) (domain.FollowupInteraction, error) {
	if !status.IsEngagementReport() {
		return domain.FollowupInteraction{}, apperr.Validation("unsupported engagement status")
	}
	in, err := s.repo.GetInteraction(ctx, interactionID)
	if err != nil {
		return domain.FollowupInteraction{}, err
	}
	if _, err := s.Owned(ctx, ownerID, in.LeadFollowupID); err != nil {
		return domain.FollowupInteraction{}, apperr.NotFound("interaction not found")
	}
	if !domain.CanReport(in.Status, status) {
		return in, nil
	}
	if at.IsZero() {
		at = s.now()
	}
	if err := s.repo.UpdateInteractionEngagement(ctx, interactionID, status, at); err != nil {
		return domain.FollowupInteraction{}, err
	}
	return s.repo.GetInteraction(ctx, interactionID)
}
