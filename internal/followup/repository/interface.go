package repository

import (
	"context"
	"time"

	"nurture_backend/internal/followup/domain"

	"github.com/google/uuid"
)

// SequenceStore persists sequence templates.
type SequenceStore interface {
	CreateSequence(ctx context.Context, seq domain.SequenceTemplate) (domain.SequenceTemplate, error)
	GetSequence(ctx context.Context, id uuid.UUID) (domain.SequenceTemplate, error)
	ListSequences(ctx context.Context, ownerID uuid.UUID) ([]domain.SequenceTemplate, error)
	ListActiveSequencesByTrigger(ctx context.Context, ownerID uuid.UUID, trigger domain.TriggerType) ([]domain.SequenceTemplate, error)
	UpdateSequenceStatus(ctx context.Context, id uuid.UUID, status domain.SequenceStatus) error
	DeleteSequence(ctx context.Context, id uuid.UUID) error
	CountEnrollmentsForSequence(ctx context.Context, sequenceID uuid.UUID) (int, error)
}

// StepStore persists sequence steps.
type StepStore interface {
	// CreateStep inserts the step and raises the template's total_steps to at
	// least the number of steps it owns.
	CreateStep(ctx context.Context, step domain.SequenceStep) (domain.SequenceStep, error)
	GetStep(ctx context.Context, id uuid.UUID) (domain.SequenceStep, error)
	ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]domain.SequenceStep, error)
	// FindStepAtOrAfter returns the lowest-numbered step with step_number >= n.
	FindStepAtOrAfter(ctx context.Context, sequenceID uuid.UUID, n int) (domain.SequenceStep, bool, error)
}

// EnrollmentStore persists lead enrollments.
type EnrollmentStore interface {
	CreateEnrollment(ctx context.Context, e domain.LeadFollowup) (domain.LeadFollowup, error)
	GetEnrollment(ctx context.Context, id uuid.UUID) (domain.LeadFollowup, error)
	FindOpenEnrollment(ctx context.Context, leadID, sequenceID uuid.UUID) (domain.LeadFollowup, bool, error)
	ListEnrollmentsByLead(ctx context.Context, leadID uuid.UUID) ([]domain.LeadFollowup, error)
	ListEnrollmentsBySequence(ctx context.Context, sequenceID uuid.UUID) ([]domain.LeadFollowup, error)
	// SetSchedule moves the cursor to step and stores next contact, only while active.
	SetSchedule(ctx context.Context, id uuid.UUID, step int, next time.Time) (bool, error)
	// TransitionEnrollment is a compare-and-set on status.
	TransitionEnrollment(ctx context.Context, id uuid.UUID, from, to domain.EnrollmentStatus) (bool, error)
	SetEngagementScore(ctx context.Context, leadID uuid.UUID, score int) error
}

// InteractionStats summarises a lead's outreach history for scoring.
type InteractionStats struct {
	Total     int
	ByType    map[string]int
	ByStatus  map[domain.InteractionStatus]int
	LastSent  *time.Time
	Responded int
}

// InteractionStore persists interactions. Writes that advance an enrollment
// are transactional with the cursor update.
type InteractionStore interface {
	// RecordDispatch inserts the interaction and advances the cursor from
	// fromStep to fromStep+1, setting last_contact_date. It returns false and
	// writes nothing when the enrollment is no longer active at fromStep.
	RecordDispatch(ctx context.Context, in domain.FollowupInteraction, fromStep int, contactedAt time.Time) (bool, error)
	// AdvanceWithoutContact moves the cursor past a step whose condition failed.
	AdvanceWithoutContact(ctx context.Context, enrollmentID uuid.UUID, fromStep int) (bool, error)
	RecordFailure(ctx context.Context, in domain.FollowupInteraction) error
	GetInteraction(ctx context.Context, id uuid.UUID) (domain.FollowupInteraction, error)
	ListInteractions(ctx context.Context, enrollmentID uuid.UUID) ([]domain.FollowupInteraction, error)
	UpdateInteractionEngagement(ctx context.Context, id uuid.UUID, status domain.InteractionStatus, at time.Time) error
	InteractionStatsForLead(ctx context.Context, leadID uuid.UUID) (InteractionStats, error)
}

// ScoringStore persists the single latest score per lead.
type ScoringStore interface {
	UpsertScore(ctx context.Context, s domain.AILeadScoring) error
	GetScore(ctx context.Context, leadID uuid.UUID) (domain.AILeadScoring, error)
}

// ContentStore appends generation audit rows.
type ContentStore interface {
	InsertGeneration(ctx context.Context, g domain.AIContentGeneration) error
}

// JobStore is the durable timeline of scheduled steps.
type JobStore interface {
	// ArmJob creates or re-arms the job for (enrollment, step). Jobs that are
	// pending, cancelled or failed take the new due time; jobs in flight or
	// finished are left alone.
	ArmJob(ctx context.Context, job domain.ScheduledJob) (domain.ScheduledJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (domain.ScheduledJob, error)
	ClaimDueJobs(ctx context.Context, dueBefore, staleBefore time.Time, limit int) ([]domain.ScheduledJob, error)
	MarkJobPending(ctx context.Context, id uuid.UUID, lastError *string) error
	// BeginJob moves an enqueued job to processing and counts the attempt.
	BeginJob(ctx context.Context, id uuid.UUID) (domain.ScheduledJob, bool, error)
	MarkJobSucceeded(ctx context.Context, id uuid.UUID) error
	MarkJobFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleJobRetry(ctx context.Context, id uuid.UUID, dueAt time.Time, lastError string) error
	CancelJobsForEnrollment(ctx context.Context, enrollmentID uuid.UUID) error
	FailedJobForEnrollment(ctx context.Context, enrollmentID uuid.UUID, stepID uuid.UUID) (domain.ScheduledJob, bool, error)
	DeleteFinishedJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// LeadReader reads leads and listings owned by the surrounding application.
type LeadReader interface {
	GetLeadContext(ctx context.Context, leadID uuid.UUID) (domain.LeadContext, error)
}

// EnrollmentCounts are enrollment totals per status.
type EnrollmentCounts map[domain.EnrollmentStatus]int

// AnalyticsStore provides aggregate read queries scoped to an owner.
type AnalyticsStore interface {
	CountEnrollmentsByStatus(ctx context.Context, ownerID uuid.UUID) (EnrollmentCounts, error)
	CountInteractions(ctx context.Context, ownerID uuid.UUID) (total int, failed int, err error)
	AverageLeadScore(ctx context.Context, ownerID uuid.UUID) (avg float64, scored int, err error)
}

// Repository is the full persistence surface of the follow-up engine.
type Repository interface {
	SequenceStore
	StepStore
	EnrollmentStore
	InteractionStore
	ScoringStore
	ContentStore
	JobStore
	LeadReader
	AnalyticsStore
}
