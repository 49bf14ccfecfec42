// Package followuptest provides an in-memory follow-up repository for tests.
package followuptest

import (
	"context"
	"sort"
	"sync"
	"time"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/repository"
	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
)

// Store is a mutex-guarded in-memory repository.Repository.
type Store struct {
	mu           sync.Mutex
	Sequences    map[uuid.UUID]domain.SequenceTemplate
	Steps        map[uuid.UUID]domain.SequenceStep
	Enrollments  map[uuid.UUID]domain.LeadFollowup
	Interactions []domain.FollowupInteraction
	Scores       map[uuid.UUID]domain.AILeadScoring
	Generations  []domain.AIContentGeneration
	Jobs         map[uuid.UUID]domain.ScheduledJob
	Leads        map[uuid.UUID]domain.LeadContext

	claimedAt map[uuid.UUID]time.Time
}

var _ repository.Repository = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		Sequences:   map[uuid.UUID]domain.SequenceTemplate{},
		Steps:       map[uuid.UUID]domain.SequenceStep{},
		Enrollments: map[uuid.UUID]domain.LeadFollowup{},
		Scores:      map[uuid.UUID]domain.AILeadScoring{},
		Jobs:        map[uuid.UUID]domain.ScheduledJob{},
		Leads:       map[uuid.UUID]domain.LeadContext{},
		claimedAt:   map[uuid.UUID]time.Time{},
	}
}

// AddSequence stores an active sequence for owner with the given steps.
// Steps are numbered by their position unless StepNumber is set.
func (s *Store) AddSequence(ownerID uuid.UUID, trigger domain.TriggerType, steps ...domain.SequenceStep) (domain.SequenceTemplate, []domain.SequenceStep) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := domain.SequenceTemplate{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        "sequence",
		TriggerType: trigger,
		Status:      domain.SequenceActive,
		TotalSteps:  len(steps),
	}
	s.Sequences[seq.ID] = seq

	out := make([]domain.SequenceStep, 0, len(steps))
	for i, step := range steps {
		step.ID = uuid.New()
		step.SequenceID = seq.ID
		if step.StepNumber == 0 {
			step.StepNumber = i + 1
		}
		s.Steps[step.ID] = step
		out = append(out, step)
	}
	return seq, out
}

// AddLead stores a lead.
func (s *Store) AddLead(lead domain.LeadContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Leads[lead.ID] = lead
}

// Enrollment returns a copy of a stored enrollment.
func (s *Store) Enrollment(id uuid.UUID) domain.LeadFollowup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Enrollments[id]
}

// JobFor returns the job of (enrollment, step) if one exists.
func (s *Store) JobFor(enrollmentID, stepID uuid.UUID) (domain.ScheduledJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobFor(enrollmentID, stepID)
}

func (s *Store) jobFor(enrollmentID, stepID uuid.UUID) (domain.ScheduledJob, bool) {
	for _, j := range s.Jobs {
		if j.EnrollmentID == enrollmentID && j.StepID == stepID {
			return j, true
		}
	}
	return domain.ScheduledJob{}, false
}

// InteractionsFor returns the interactions of an enrollment.
func (s *Store) InteractionsFor(enrollmentID uuid.UUID) []domain.FollowupInteraction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FollowupInteraction
	for _, in := range s.Interactions {
		if in.LeadFollowupID == enrollmentID {
			out = append(out, in)
		}
	}
	return out
}

// Sequences

func (s *Store) CreateSequence(_ context.Context, seq domain.SequenceTemplate) (domain.SequenceTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sequences[seq.ID] = seq
	return seq, nil
}

func (s *Store) GetSequence(_ context.Context, id uuid.UUID) (domain.SequenceTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.Sequences[id]
	if !ok {
		return domain.SequenceTemplate{}, apperr.NotFound("sequence not found")
	}
	return seq, nil
}

func (s *Store) ListSequences(_ context.Context, ownerID uuid.UUID) ([]domain.SequenceTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SequenceTemplate
	for _, seq := range s.Sequences {
		if seq.OwnerID == ownerID {
			out = append(out, seq)
		}
	}
	return out, nil
}

func (s *Store) ListActiveSequencesByTrigger(_ context.Context, ownerID uuid.UUID, trigger domain.TriggerType) ([]domain.SequenceTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SequenceTemplate
	for _, seq := range s.Sequences {
		if seq.OwnerID == ownerID && seq.TriggerType == trigger && seq.Status == domain.SequenceActive {
			out = append(out, seq)
		}
	}
	return out, nil
}

func (s *Store) UpdateSequenceStatus(_ context.Context, id uuid.UUID, status domain.SequenceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.Sequences[id]
	if !ok {
		return apperr.NotFound("sequence not found")
	}
	seq.Status = status
	s.Sequences[id] = seq
	return nil
}

func (s *Store) DeleteSequence(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Sequences, id)
	return nil
}

func (s *Store) CountEnrollmentsForSequence(_ context.Context, sequenceID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.Enrollments {
		if e.SequenceID == sequenceID {
			n++
		}
	}
	return n, nil
}

// Steps

func (s *Store) CreateStep(_ context.Context, step domain.SequenceStep) (domain.SequenceStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 1
	for _, existing := range s.Steps {
		if existing.SequenceID != step.SequenceID {
			continue
		}
		if existing.StepNumber == step.StepNumber {
			return domain.SequenceStep{}, apperr.Conflict("step number already exists")
		}
		count++
	}
	s.Steps[step.ID] = step
	seq := s.Sequences[step.SequenceID]
	seq.TotalSteps = max(seq.TotalSteps, count)
	s.Sequences[step.SequenceID] = seq
	return step, nil
}

func (s *Store) GetStep(_ context.Context, id uuid.UUID) (domain.SequenceStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.Steps[id]
	if !ok {
		return domain.SequenceStep{}, apperr.NotFound("sequence step not found")
	}
	return step, nil
}

func (s *Store) ListSteps(_ context.Context, sequenceID uuid.UUID) ([]domain.SequenceStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedSteps(sequenceID), nil
}

func (s *Store) sortedSteps(sequenceID uuid.UUID) []domain.SequenceStep {
	var out []domain.SequenceStep
	for _, step := range s.Steps {
		if step.SequenceID == sequenceID {
			out = append(out, step)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out
}

func (s *Store) FindStepAtOrAfter(_ context.Context, sequenceID uuid.UUID, n int) (domain.SequenceStep, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, step := range s.sortedSteps(sequenceID) {
		if step.StepNumber >= n {
			return step, true, nil
		}
	}
	return domain.SequenceStep{}, false, nil
}

// Enrollments

func (s *Store) CreateEnrollment(_ context.Context, e domain.LeadFollowup) (domain.LeadFollowup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.Enrollments {
		if existing.LeadID == e.LeadID && existing.SequenceID == e.SequenceID && existing.Status.IsOpen() {
			return domain.LeadFollowup{}, apperr.Conflict("lead is already enrolled in this sequence")
		}
	}
	s.Enrollments[e.ID] = e
	return e, nil
}

func (s *Store) GetEnrollment(_ context.Context, id uuid.UUID) (domain.LeadFollowup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.Enrollments[id]
	if !ok {
		return domain.LeadFollowup{}, apperr.NotFound("enrollment not found")
	}
	return e, nil
}

func (s *Store) FindOpenEnrollment(_ context.Context, leadID, sequenceID uuid.UUID) (domain.LeadFollowup, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.Enrollments {
		if e.LeadID == leadID && e.SequenceID == sequenceID && e.Status.IsOpen() {
			return e, true, nil
		}
	}
	return domain.LeadFollowup{}, false, nil
}

func (s *Store) ListEnrollmentsByLead(_ context.Context, leadID uuid.UUID) ([]domain.LeadFollowup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LeadFollowup
	for _, e := range s.Enrollments {
		if e.LeadID == leadID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListEnrollmentsBySequence(_ context.Context, sequenceID uuid.UUID) ([]domain.LeadFollowup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LeadFollowup
	for _, e := range s.Enrollments {
		if e.SequenceID == sequenceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) SetSchedule(_ context.Context, id uuid.UUID, step int, next time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.Enrollments[id]
	if !ok || e.Status != domain.EnrollmentActive || e.CurrentStep > step {
		return false, nil
	}
	e.CurrentStep = step
	e.NextContactDate = &next
	s.Enrollments[id] = e
	return true, nil
}

func (s *Store) TransitionEnrollment(_ context.Context, id uuid.UUID, from, to domain.EnrollmentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.Enrollments[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	s.Enrollments[id] = e
	return true, nil
}

func (s *Store) SetEngagementScore(_ context.Context, leadID uuid.UUID, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.Enrollments {
		if e.LeadID == leadID && e.Status.IsOpen() {
			e.EngagementScore = score
			s.Enrollments[id] = e
		}
	}
	return nil
}

// Interactions

func (s *Store) RecordDispatch(_ context.Context, in domain.FollowupInteraction, fromStep int, contactedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.Enrollments[in.LeadFollowupID]
	if !ok || e.Status != domain.EnrollmentActive || e.CurrentStep != fromStep {
		return false, nil
	}
	e.CurrentStep = fromStep + 1
	e.LastContactDate = &contactedAt
	s.Enrollments[e.ID] = e
	s.Interactions = append(s.Interactions, in)
	return true, nil
}

func (s *Store) AdvanceWithoutContact(_ context.Context, enrollmentID uuid.UUID, fromStep int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.Enrollments[enrollmentID]
	if !ok || e.Status != domain.EnrollmentActive || e.CurrentStep != fromStep {
		return false, nil
	}
	e.CurrentStep = fromStep + 1
	s.Enrollments[e.ID] = e
	return true, nil
}

func (s *Store) RecordFailure(_ context.Context, in domain.FollowupInteraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Interactions = append(s.Interactions, in)
	return nil
}

func (s *Store) GetInteraction(_ context.Context, id uuid.UUID) (domain.FollowupInteraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.Interactions {
		if in.ID == id {
			return in, nil
		}
	}
	return domain.FollowupInteraction{}, apperr.NotFound("interaction not found")
}

func (s *Store) ListInteractions(_ context.Context, enrollmentID uuid.UUID) ([]domain.FollowupInteraction, error) {
	out := s.InteractionsFor(enrollmentID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out, nil
}

func (s *Store) UpdateInteractionEngagement(_ context.Context, id uuid.UUID, status domain.InteractionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, in := range s.Interactions {
		if in.ID != id {
			continue
		}
		in.Status = status
		if (status == domain.InteractionOpened || status == domain.InteractionClicked) && in.OpenedAt == nil {
			in.OpenedAt = &at
		}
		if status == domain.InteractionClicked && in.ClickedAt == nil {
			in.ClickedAt = &at
		}
		s.Interactions[i] = in
		return nil
	}
	return apperr.NotFound("interaction not found")
}

func (s *Store) InteractionStatsForLead(_ context.Context, leadID uuid.UUID) (repository.InteractionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := repository.InteractionStats{
		ByType:   map[string]int{},
		ByStatus: map[domain.InteractionStatus]int{},
	}
	for _, in := range s.Interactions {
		if s.Enrollments[in.LeadFollowupID].LeadID != leadID {
			continue
		}
		stats.Total++
		stats.ByType[in.InteractionType]++
		stats.ByStatus[in.Status]++
		if in.RespondedAt != nil {
			stats.Responded++
		}
		if stats.LastSent == nil || in.SentAt.After(*stats.LastSent) {
			sent := in.SentAt
			stats.LastSent = &sent
		}
	}
	return stats, nil
}

// Scores and content

func (s *Store) UpsertScore(_ context.Context, score domain.AILeadScoring) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Scores[score.LeadID] = score
	return nil
}

func (s *Store) GetScore(_ context.Context, leadID uuid.UUID) (domain.AILeadScoring, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.Scores[leadID]
	if !ok {
		return domain.AILeadScoring{}, apperr.NotFound("lead has not been scored")
	}
	return score, nil
}

func (s *Store) InsertGeneration(_ context.Context, g domain.AIContentGeneration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Generations = append(s.Generations, g)
	return nil
}

// Jobs

func (s *Store) ArmJob(_ context.Context, job domain.ScheduledJob) (domain.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobFor(job.EnrollmentID, job.StepID)
	if !ok {
		job.Status = domain.JobPending
		s.Jobs[job.ID] = job
		return job, nil
	}
	switch existing.Status {
	case domain.JobPending:
		existing.DueAt = job.DueAt
	case domain.JobCancelled, domain.JobFailed:
		existing.DueAt = job.DueAt
		existing.Status = domain.JobPending
		existing.Attempts = 0
		existing.LastError = nil
	default:
		return existing, nil
	}
	s.Jobs[existing.ID] = existing
	return existing, nil
}

func (s *Store) GetJob(_ context.Context, id uuid.UUID) (domain.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.Jobs[id]
	if !ok {
		return domain.ScheduledJob{}, apperr.NotFound("scheduled job not found")
	}
	return j, nil
}

// ClaimDueJobs treats dueBefore as the claim time. Enqueued jobs claimed by
// an earlier call are reclaimed once that time falls behind staleBefore;
// staleness of processing jobs is ignored.
func (s *Store) ClaimDueJobs(_ context.Context, dueBefore, staleBefore time.Time, limit int) ([]domain.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ScheduledJob
	for id, j := range s.Jobs {
		if len(out) >= limit {
			break
		}
		due := j.Status == domain.JobPending && !j.DueAt.After(dueBefore)
		claimed, ok := s.claimedAt[id]
		stale := j.Status == domain.JobEnqueued && ok && !claimed.After(staleBefore)
		if due || stale {
			j.Status = domain.JobEnqueued
			j.EnqueueCount++
			s.Jobs[id] = j
			s.claimedAt[id] = dueBefore
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].DueAt.Before(out[k].DueAt) })
	return out, nil
}

func (s *Store) MarkJobPending(_ context.Context, id uuid.UUID, lastError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.Jobs[id]
	if j.Status != domain.JobEnqueued && j.Status != domain.JobProcessing {
		return nil
	}
	j.Status = domain.JobPending
	if lastError != nil {
		j.LastError = lastError
	}
	s.Jobs[id] = j
	return nil
}

func (s *Store) BeginJob(_ context.Context, id uuid.UUID) (domain.ScheduledJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.Jobs[id]
	if !ok || j.Status != domain.JobEnqueued {
		return domain.ScheduledJob{}, false, nil
	}
	j.Status = domain.JobProcessing
	j.Attempts++
	s.Jobs[id] = j
	return j, true, nil
}

func (s *Store) MarkJobSucceeded(_ context.Context, id uuid.UUID) error {
	return s.setJob(id, func(j *domain.ScheduledJob) {
		j.Status = domain.JobSucceeded
		j.LastError = nil
	})
}

func (s *Store) MarkJobFailed(_ context.Context, id uuid.UUID, lastError string) error {
	return s.setJob(id, func(j *domain.ScheduledJob) {
		j.Status = domain.JobFailed
		j.LastError = &lastError
	})
}

func (s *Store) ScheduleJobRetry(_ context.Context, id uuid.UUID, dueAt time.Time, lastError string) error {
	return s.setJob(id, func(j *domain.ScheduledJob) {
		j.Status = domain.JobPending
		j.DueAt = dueAt
		j.LastError = &lastError
	})
}

func (s *Store) setJob(id uuid.UUID, fn func(*domain.ScheduledJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.Jobs[id]
	if !ok {
		return apperr.NotFound("scheduled job not found")
	}
	fn(&j)
	s.Jobs[id] = j
	return nil
}

func (s *Store) CancelJobsForEnrollment(_ context.Context, enrollmentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.Jobs {
		if j.EnrollmentID == enrollmentID && (j.Status == domain.JobPending || j.Status == domain.JobEnqueued) {
			j.Status = domain.JobCancelled
			s.Jobs[id] = j
		}
	}
	return nil
}

func (s *Store) FailedJobForEnrollment(_ context.Context, enrollmentID uuid.UUID, stepID uuid.UUID) (domain.ScheduledJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobFor(enrollmentID, stepID)
	if !ok || j.Status != domain.JobFailed {
		return domain.ScheduledJob{}, false, nil
	}
	return j, true, nil
}

// DeleteFinishedJobsBefore removes every succeeded or cancelled job; the
// store does not track update times.
func (s *Store) DeleteFinishedJobsBefore(_ context.Context, _ time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, j := range s.Jobs {
		if j.Status == domain.JobSucceeded || j.Status == domain.JobCancelled {
			delete(s.Jobs, id)
			n++
		}
	}
	return n, nil
}

// Leads and analytics

func (s *Store) GetLeadContext(_ context.Context, leadID uuid.UUID) (domain.LeadContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.Leads[leadID]
	if !ok {
		return domain.LeadContext{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (s *Store) ownedEnrollments(ownerID uuid.UUID) []domain.LeadFollowup {
	var out []domain.LeadFollowup
	for _, e := range s.Enrollments {
		if s.Sequences[e.SequenceID].OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) CountEnrollmentsByStatus(_ context.Context, ownerID uuid.UUID) (repository.EnrollmentCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := repository.EnrollmentCounts{}
	for _, e := range s.ownedEnrollments(ownerID) {
		counts[e.Status]++
	}
	return counts, nil
}

func (s *Store) CountInteractions(_ context.Context, ownerID uuid.UUID) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total, failed int
	for _, in := range s.Interactions {
		e := s.Enrollments[in.LeadFollowupID]
		if s.Sequences[e.SequenceID].OwnerID != ownerID {
			continue
		}
		total++
		if in.Status == domain.InteractionFailed || in.Status == domain.InteractionBounced {
			failed++
		}
	}
	return total, failed, nil
}

func (s *Store) AverageLeadScore(_ context.Context, ownerID uuid.UUID) (float64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	leads := map[uuid.UUID]bool{}
	for _, e := range s.ownedEnrollments(ownerID) {
		leads[e.LeadID] = true
	}
	var sum, n int
	for leadID := range leads {
		if score, ok := s.Scores[leadID]; ok {
			sum += score.Score
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(n), n, nil
}
