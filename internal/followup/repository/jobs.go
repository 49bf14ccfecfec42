package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const jobColumns = `id, lead_followup_id, step_id, step_number, due_at, status, attempts, enqueue_count, last_error`

func scanJob(row pgx.Row) (domain.ScheduledJob, error) {
	var j domain.ScheduledJob
	var status string
	if err := row.Scan(&j.ID, &j.EnrollmentID, &j.StepID, &j.StepNumber, &j.DueAt, &status, &j.Attempts, &j.EnqueueCount, &j.LastError); err != nil {
		return domain.ScheduledJob{}, err
	}
	j.Status = domain.JobStatus(status)
	return j, nil
}

// ArmJob inserts the job for (enrollment, step) or re-arms an idle one.
func (r *Repo) ArmJob(ctx context.Context, job domain.ScheduledJob) (domain.ScheduledJob, error) {
	query := `
		INSERT INTO followup_jobs (id, lead_followup_id, step_id, step_number, due_at, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		ON CONFLICT (lead_followup_id, step_id) DO UPDATE SET
			due_at = EXCLUDED.due_at,
			status = 'pending',
			attempts = CASE WHEN followup_jobs.status = 'pending' THEN followup_jobs.attempts ELSE 0 END,
			last_error = CASE WHEN followup_jobs.status = 'pending' THEN followup_jobs.last_error ELSE NULL END,
			updated_at = now()
		WHERE followup_jobs.status IN ('pending', 'cancelled', 'failed')
		RETURNING ` + jobColumns

	armed, err := scanJob(r.pool.QueryRow(ctx, query, job.ID, job.EnrollmentID, job.StepID, job.StepNumber, job.DueAt))
	if err == nil {
		return armed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.ScheduledJob{}, fmt.Errorf("arm job: %w", err)
	}

	// Conflict with an in-flight or finished job: report it unchanged.
	existing, err := scanJob(r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM followup_jobs WHERE lead_followup_id = $1 AND step_id = $2`,
		job.EnrollmentID, job.StepID))
	if err != nil {
		return domain.ScheduledJob{}, fmt.Errorf("load existing job: %w", err)
	}
	return existing, nil
}

// GetJob retrieves a job by id.
func (r *Repo) GetJob(ctx context.Context, id uuid.UUID) (domain.ScheduledJob, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM followup_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ScheduledJob{}, apperr.NotFound(jobNotFoundMsg)
		}
		return domain.ScheduledJob{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ClaimDueJobs marks a batch of jobs enqueued and returns them. It picks
// pending jobs due before dueBefore, plus enqueued or processing jobs that
// have not moved since staleBefore (lost queue entries, crashed workers).
func (r *Repo) ClaimDueJobs(ctx context.Context, dueBefore, staleBefore time.Time, limit int) ([]domain.ScheduledJob, error) {
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM followup_jobs
		WHERE (status = 'pending' AND due_at <= $1)
		   OR (status = 'enqueued' AND due_at <= $2 AND enqueued_at <= $2)
		   OR (status = 'processing' AND updated_at <= $2)
		ORDER BY due_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	)
	UPDATE followup_jobs j
	SET status = 'enqueued', enqueue_count = j.enqueue_count + 1, enqueued_at = now(), updated_at = now()
	FROM cte
	WHERE j.id = cte.id
	RETURNING j.id, j.lead_followup_id, j.step_id, j.step_number, j.due_at, j.status, j.attempts, j.enqueue_count, j.last_error`,
		dueBefore, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	var results []domain.ScheduledJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		results = append(results, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// MarkJobPending returns a job to the dispatcher.
func (r *Repo) MarkJobPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE followup_jobs
		SET status = 'pending', last_error = COALESCE($2, last_error), updated_at = now()
		WHERE id = $1 AND status IN ('enqueued', 'processing')`,
		id, lastError,
	)
	return err
}

// BeginJob claims an enqueued job for execution.
func (r *Repo) BeginJob(ctx context.Context, id uuid.UUID) (domain.ScheduledJob, bool, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `
		UPDATE followup_jobs
		SET status = 'processing', attempts = attempts + 1, updated_at = now()
		WHERE id = $1 AND status = 'enqueued'
		RETURNING `+jobColumns, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ScheduledJob{}, false, nil
		}
		return domain.ScheduledJob{}, false, fmt.Errorf("begin job: %w", err)
	}
	return j, true, nil
}

// MarkJobSucceeded finishes a job.
func (r *Repo) MarkJobSucceeded(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE followup_jobs
		SET status = 'succeeded', last_error = NULL, updated_at = now()
		WHERE id = $1`, id)
	return err
}

// MarkJobFailed dead-letters a job.
func (r *Repo) MarkJobFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE followup_jobs
		SET status = 'failed', last_error = $2, updated_at = now()
		WHERE id = $1`, id, lastError)
	return err
}

// ScheduleJobRetry puts a job back in the timeline at dueAt.
func (r *Repo) ScheduleJobRetry(ctx context.Context, id uuid.UUID, dueAt time.Time, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE followup_jobs
		SET status = 'pending', due_at = $2, last_error = $3, updated_at = now()
		WHERE id = $1`, id, dueAt, lastError)
	return err
}

// CancelJobsForEnrollment cancels every job that has not started.
func (r *Repo) CancelJobsForEnrollment(ctx context.Context, enrollmentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE followup_jobs
		SET status = 'cancelled', updated_at = now()
		WHERE lead_followup_id = $1 AND status IN ('pending', 'enqueued')`, enrollmentID)
	if err != nil {
		return fmt.Errorf("cancel enrollment jobs: %w", err)
	}
	return nil
}

// FailedJobForEnrollment returns the dead-lettered job of a step, if any.
func (r *Repo) FailedJobForEnrollment(ctx context.Context, enrollmentID uuid.UUID, stepID uuid.UUID) (domain.ScheduledJob, bool, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM followup_jobs
		WHERE lead_followup_id = $1 AND step_id = $2 AND status = 'failed'`, enrollmentID, stepID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ScheduledJob{}, false, nil
		}
		return domain.ScheduledJob{}, false, fmt.Errorf("find failed job: %w", err)
	}
	return j, true, nil
}

// DeleteFinishedJobsBefore removes succeeded and cancelled jobs older than cutoff.
// Failed jobs are kept as the dead-letter record.
func (r *Repo) DeleteFinishedJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM followup_jobs
		WHERE status IN ('succeeded', 'cancelled') AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete finished jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
