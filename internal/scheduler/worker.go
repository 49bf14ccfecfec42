package scheduler

import (
	"context"
	"fmt"
	"time"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/execution"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/config"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	defaultMaxAttempts    = 5
	defaultRetryBaseDelay = time.Minute
	defaultRetryMaxDelay  = time.Hour
)

// JobRunner is the part of the job table a worker needs.
type JobRunner interface {
	GetJob(ctx context.Context, id uuid.UUID) (domain.ScheduledJob, error)
	MarkJobPending(ctx context.Context, id uuid.UUID, lastError *string) error
	BeginJob(ctx context.Context, id uuid.UUID) (domain.ScheduledJob, bool, error)
	MarkJobSucceeded(ctx context.Context, id uuid.UUID) error
	MarkJobFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleJobRetry(ctx context.Context, id uuid.UUID, dueAt time.Time, lastError string) error
}

// StepExecutor runs one step and records steps that will not be retried.
type StepExecutor interface {
	Execute(ctx context.Context, enrollmentID, stepID uuid.UUID) (execution.Outcome, error)
	RecordTerminalFailure(ctx context.Context, enrollmentID, stepID uuid.UUID, cause error) error
}

// StepRunner handles followups.step_due tasks. Each task is one attempt;
// retries are scheduled through the job table with exponential backoff.
type StepRunner struct {
	jobs        JobRunner
	executor    StepExecutor
	log         *logger.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	now         func() time.Time
}

func NewStepRunner(jobs JobRunner, executor StepExecutor, cfg config.FollowupConfig, log *logger.Logger) *StepRunner {
	r := &StepRunner{
		jobs:        jobs,
		executor:    executor,
		log:         log,
		maxAttempts: cfg.GetFollowupMaxAttempts(),
		baseDelay:   cfg.GetFollowupRetryBaseDelay(),
		maxDelay:    cfg.GetFollowupRetryMaxDelay(),
		now:         time.Now,
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.baseDelay <= 0 {
		r.baseDelay = defaultRetryBaseDelay
	}
	if r.maxDelay < r.baseDelay {
		r.maxDelay = max(defaultRetryMaxDelay, r.baseDelay)
	}
	return r
}

func (r *StepRunner) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowupStepDuePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	return r.run(ctx, jobID)
}

func (r *StepRunner) run(ctx context.Context, jobID uuid.UUID) error {
	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}
	if job.Status != domain.JobEnqueued {
		return nil
	}
	if job.DueAt.After(r.now()) {
		// re-armed to a later time after this task was queued
		return r.jobs.MarkJobPending(ctx, job.ID, nil)
	}

	job, started, err := r.jobs.BeginJob(ctx, job.ID)
	if err != nil || !started {
		return err
	}

	_, execErr := r.executor.Execute(ctx, job.EnrollmentID, job.StepID)
	if execErr == nil {
		return r.jobs.MarkJobSucceeded(ctx, job.ID)
	}

	terminal := !apperr.IsRetryable(execErr) || job.Attempts >= r.maxAttempts
	r.log.StepFailed(job.EnrollmentID.String(), job.StepID.String(), job.Attempts, terminal, execErr)

	if !terminal {
		due := r.now().Add(retryDelay(job.Attempts, r.baseDelay, r.maxDelay))
		return r.jobs.ScheduleJobRetry(ctx, job.ID, due, execErr.Error())
	}

	if apperr.Is(execErr, apperr.KindSideEffect) {
		// the lead already has the message: store it and never send it again
		if err := r.executor.RecordTerminalFailure(ctx, job.EnrollmentID, job.StepID, execErr); err != nil {
			if markErr := r.jobs.MarkJobFailed(ctx, job.ID, execErr.Error()); markErr != nil {
				return markErr
			}
			return err
		}
		return r.jobs.MarkJobSucceeded(ctx, job.ID)
	}

	if err := r.jobs.MarkJobFailed(ctx, job.ID, execErr.Error()); err != nil {
		return err
	}
	return r.executor.RecordTerminalFailure(ctx, job.EnrollmentID, job.StepID, execErr)
}

// retryDelay doubles base for every attempt after the first, capped at limit.
func retryDelay(attempt int, base, limit time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return limit
	}
	d := base << (attempt - 1)
	if d <= 0 || d > limit {
		return limit
	}
	return d
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runner *StepRunner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskFollowupStepDue, runner)

	return &Worker{
		server: server,
		mux:    mux,
		log:    log,
	}, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
