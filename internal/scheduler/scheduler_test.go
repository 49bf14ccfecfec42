package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/execution"
	"nurture_backend/internal/followup/followuptest"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type tuning struct{}

func (tuning) GetFollowupMaxAttempts() int                  { return 3 }
func (tuning) GetFollowupRetryBaseDelay() time.Duration     { return time.Minute }
func (tuning) GetFollowupRetryMaxDelay() time.Duration      { return 10 * time.Minute }
func (tuning) GetFollowupDispatchInterval() time.Duration   { return time.Second }
func (tuning) GetFollowupDispatchBatch() int                { return 10 }
func (tuning) GetFollowupStaleEnqueuedAfter() time.Duration { return time.Minute }
func (tuning) GetFollowupJobRetention() time.Duration       { return time.Hour }
func (tuning) GetPhoneDefaultRegion() string                { return "US" }

type fakeExecutor struct {
	err         error
	calls       int
	terminal    []error
	terminalErr error
}

func (f *fakeExecutor) Execute(context.Context, uuid.UUID, uuid.UUID) (execution.Outcome, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return execution.OutcomeDispatched, nil
}

func (f *fakeExecutor) RecordTerminalFailure(_ context.Context, _, _ uuid.UUID, cause error) error {
	f.terminal = append(f.terminal, cause)
	return f.terminalErr
}

type fakeQueue struct {
	err  error
	jobs []domain.ScheduledJob
}

func (f *fakeQueue) EnqueueStep(_ context.Context, job domain.ScheduledJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func addJob(store *followuptest.Store, status domain.JobStatus, due time.Time, attempts int) domain.ScheduledJob {
	job := domain.ScheduledJob{
		ID:           uuid.New(),
		EnrollmentID: uuid.New(),
		StepID:       uuid.New(),
		StepNumber:   1,
		DueAt:        due,
		Status:       status,
		Attempts:     attempts,
	}
	store.Jobs[job.ID] = job
	return job
}

func newRunner(store *followuptest.Store, exec *fakeExecutor) *StepRunner {
	r := NewStepRunner(store, exec, tuning{}, logger.New("test"))
	r.now = func() time.Time { return testNow }
	return r
}

func TestStepRunnerMarksSuccess(t *testing.T) {
	store := followuptest.NewStore()
	job := addJob(store, domain.JobEnqueued, testNow.Add(-time.Minute), 0)
	exec := &fakeExecutor{}

	if err := newRunner(store, exec).run(context.Background(), job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := store.Jobs[job.ID]
	if got.Status != domain.JobSucceeded || got.Attempts != 1 {
		t.Fatalf("expected succeeded after 1 attempt, got %s after %d", got.Status, got.Attempts)
	}
}

func TestStepRunnerSchedulesBackoffForRetryableError(t *testing.T) {
	store := followuptest.NewStore()
	job := addJob(store, domain.JobEnqueued, testNow.Add(-time.Minute), 1)
	exec := &fakeExecutor{err: apperr.Dependency("smtp unavailable", errors.New("dial tcp"))}

	if err := newRunner(store, exec).run(context.Background(), job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := store.Jobs[job.ID]
	if got.Status != domain.JobPending {
		t.Fatalf("expected pending retry, got %s", got.Status)
	}
	if want := testNow.Add(2 * time.Minute); !got.DueAt.Equal(want) {
		t.Fatalf("expected retry at %s, got %s", want, got.DueAt)
	}
	if len(exec.terminal) != 0 {
		t.Fatal("expected no terminal failure")
	}
}

func TestStepRunnerDeadLettersAfterMaxAttempts(t *testing.T) {
	store := followuptest.NewStore()
	job := addJob(store, domain.JobEnqueued, testNow.Add(-time.Minute), 2)
	exec := &fakeExecutor{err: apperr.Dependency("smtp unavailable", nil)}

	if err := newRunner(store, exec).run(context.Background(), job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := store.Jobs[job.ID]
	if got.Status != domain.JobFailed || got.LastError == nil {
		t.Fatalf("expected failed job with error, got %+v", got)
	}
	if len(exec.terminal) != 1 {
		t.Fatalf("expected terminal failure recorded, got %d", len(exec.terminal))
	}
}

func TestStepRunnerFailsValidationErrorsImmediately(t *testing.T) {
	store := followuptest.NewStore()
	job := addJob(store, domain.JobEnqueued, testNow.Add(-time.Minute), 0)
	exec := &fakeExecutor{err: apperr.Validation("lead has no phone number")}

	if err := newRunner(store, exec).run(context.Background(), job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := store.Jobs[job.ID]; got.Status != domain.JobFailed || got.Attempts != 1 {
		t.Fatalf("expected failed after first attempt, got %s after %d", got.Status, got.Attempts)
	}
}

func TestStepRunnerNeverRetriesDeliveredStep(t *testing.T) {
	store := followuptest.NewStore()
	job := addJob(store, domain.JobEnqueued, testNow.Add(-time.Minute), 0)
	delivered := apperr.SideEffect("step delivered but not recorded", errors.New("connection reset"))
	exec := &fakeExecutor{err: delivered}

	if err := newRunner(store, exec).run(context.Background(), job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := store.Jobs[job.ID]; got.Status != domain.JobSucceeded {
		t.Fatalf("expected job finished once the delivery is stored, got %s", got.Status)
	}
	if exec.calls != 1 || len(exec.terminal) != 1 {
		t.Fatalf("expected one run and one stored delivery, got %d and %d", exec.calls, len(exec.terminal))
	}
}

func TestStepRunnerDeadLettersDeliveredStepItCannotStore(t *testing.T) {
	store := followuptest.NewStore()
	job := addJob(store, domain.JobEnqueued, testNow.Add(-time.Minute), 0)
	exec := &fakeExecutor{
		err:         apperr.SideEffect("step delivered but not recorded", errors.New("connection reset")),
		terminalErr: errors.New("connection reset"),
	}

	if err := newRunner(store, exec).run(context.Background(), job.ID); err == nil {
		t.Fatal("expected the storage error to be reported")
	}
	if got := store.Jobs[job.ID]; got.Status != domain.JobFailed {
		t.Fatalf("expected failed job so the step is not resent, got %s", got.Status)
	}
}

func TestStepRunnerReleasesEarlyJob(t *testing.T) {
	store := followuptest.NewStore()
	job := addJob(store, domain.JobEnqueued, testNow.Add(time.Hour), 0)
	exec := &fakeExecutor{}

	if err := newRunner(store, exec).run(context.Background(), job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if exec.calls != 0 {
		t.Fatal("expected executor not to run")
	}
	if got := store.Jobs[job.ID]; got.Status != domain.JobPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
}

func TestStepRunnerIgnoresDuplicateDelivery(t *testing.T) {
	store := followuptest.NewStore()
	job := addJob(store, domain.JobSucceeded, testNow.Add(-time.Minute), 1)
	exec := &fakeExecutor{}

	if err := newRunner(store, exec).run(context.Background(), job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if exec.calls != 0 {
		t.Fatal("expected executor not to run for a finished job")
	}
	if err := newRunner(store, exec).run(context.Background(), uuid.New()); err != nil {
		t.Fatalf("expected missing job to be ignored, got %v", err)
	}
}

func TestProcessTaskRejectsBadPayload(t *testing.T) {
	runner := newRunner(followuptest.NewStore(), &fakeExecutor{})
	err := runner.ProcessTask(context.Background(), asynq.NewTask(TaskFollowupStepDue, []byte(`{"jobId":"nope"}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Minute},
		{attempt: 2, want: 2 * time.Minute},
		{attempt: 4, want: 8 * time.Minute},
		{attempt: 5, want: 10 * time.Minute},
		{attempt: 64, want: 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := retryDelay(tc.attempt, time.Minute, 10*time.Minute); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestDispatcherEnqueuesDueJobs(t *testing.T) {
	store := followuptest.NewStore()
	due := addJob(store, domain.JobPending, testNow.Add(-time.Second), 0)
	later := addJob(store, domain.JobPending, testNow.Add(time.Hour), 0)
	queue := &fakeQueue{}

	d := NewFollowupJobDispatcher(queue, store, tuning{}, logger.New("test"))
	d.now = func() time.Time { return testNow }

	n, err := d.dispatchDue(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if n != 1 || len(queue.jobs) != 1 || queue.jobs[0].ID != due.ID {
		t.Fatalf("expected only the due job enqueued, got %d", n)
	}
	if store.Jobs[due.ID].Status != domain.JobEnqueued {
		t.Fatalf("expected due job enqueued, got %s", store.Jobs[due.ID].Status)
	}
	if store.Jobs[later.ID].Status != domain.JobPending {
		t.Fatal("expected future job untouched")
	}
}

func TestDispatcherReleasesJobWhenQueueFails(t *testing.T) {
	store := followuptest.NewStore()
	job := addJob(store, domain.JobPending, testNow.Add(-time.Second), 0)
	queue := &fakeQueue{err: errors.New("redis: connection refused")}

	d := NewFollowupJobDispatcher(queue, store, tuning{}, logger.New("test"))
	d.now = func() time.Time { return testNow }

	if _, err := d.dispatchDue(context.Background()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got := store.Jobs[job.ID]
	if got.Status != domain.JobPending || got.LastError == nil {
		t.Fatalf("expected job back to pending with error, got %+v", got)
	}
}

func TestCleanupKeepsFailedJobs(t *testing.T) {
	store := followuptest.NewStore()
	done := addJob(store, domain.JobSucceeded, testNow.Add(-48*time.Hour), 1)
	failed := addJob(store, domain.JobFailed, testNow.Add(-48*time.Hour), 3)

	NewFollowupJobCleanup(store, logger.New("test"), time.Hour, time.Hour).cleanup(context.Background())

	if _, ok := store.Jobs[done.ID]; ok {
		t.Fatal("expected succeeded job removed")
	}
	if _, ok := store.Jobs[failed.ID]; !ok {
		t.Fatal("expected failed job kept")
	}
}

func TestClientEnqueueStepIsIdempotentPerClaim(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(asynq.RedisClientOpt{Addr: mr.Addr()}, "followups")
	t.Cleanup(func() { _ = client.Close() })

	job := domain.ScheduledJob{
		ID:           uuid.New(),
		EnrollmentID: uuid.New(),
		StepID:       uuid.New(),
		DueAt:        time.Now().Add(time.Hour),
		Status:       domain.JobEnqueued,
		EnqueueCount: 1,
	}
	for i := 0; i < 2; i++ {
		if err := client.EnqueueStep(context.Background(), job); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	scheduled, err := mr.ZMembers("asynq:{followups}:scheduled")
	if err != nil {
		t.Fatalf("read scheduled set: %v", err)
	}
	if len(scheduled) != 1 || scheduled[0] != stepTaskID(job) {
		t.Fatalf("expected one scheduled task %q, got %v", stepTaskID(job), scheduled)
	}

	job.EnqueueCount = 2
	if err := client.EnqueueStep(context.Background(), job); err != nil {
		t.Fatalf("enqueue second claim: %v", err)
	}
	if scheduled, _ = mr.ZMembers("asynq:{followups}:scheduled"); len(scheduled) != 2 {
		t.Fatalf("expected second claim to be scheduled separately, got %v", scheduled)
	}
}

func TestDispatcherReclaimsJobWhoseTaskWasArchived(t *testing.T) {
	mr := miniredis.RunT(t)
	opt := asynq.RedisClientOpt{Addr: mr.Addr()}
	client := newClient(opt, "followups")
	t.Cleanup(func() { _ = client.Close() })
	inspector := asynq.NewInspector(opt)
	t.Cleanup(func() { _ = inspector.Close() })

	store := followuptest.NewStore()
	job := addJob(store, domain.JobPending, testNow.Add(-time.Second), 0)

	d := NewFollowupJobDispatcher(client, store, tuning{}, logger.New("test"))
	d.now = func() time.Time { return testNow }
	if n, err := d.dispatchDue(context.Background()); err != nil || n != 1 {
		t.Fatalf("expected first claim enqueued, got %d, %v", n, err)
	}
	firstID := stepTaskID(store.Jobs[job.ID])

	// the worker failed before claiming the job; the queue keeps the task archived
	if err := inspector.ArchiveTask("followups", firstID); err != nil {
		t.Fatalf("archive task: %v", err)
	}

	d.now = func() time.Time { return testNow.Add(5 * time.Minute) }
	if n, err := d.dispatchDue(context.Background()); err != nil || n != 1 {
		t.Fatalf("expected stale job reclaimed, got %d, %v", n, err)
	}

	secondID := stepTaskID(store.Jobs[job.ID])
	if secondID == firstID {
		t.Fatalf("expected a new task id for the reclaim, got %q twice", firstID)
	}
	info, err := inspector.GetTaskInfo("followups", secondID)
	if err != nil {
		t.Fatalf("reclaimed task not in queue: %v", err)
	}
	if info.State == asynq.TaskStateArchived {
		t.Fatal("expected reclaimed task to be runnable")
	}
}
