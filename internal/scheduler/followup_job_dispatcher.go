package scheduler

import (
	"context"
	"time"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/platform/config"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultDispatchInterval = 2 * time.Second
	defaultDispatchBatch    = 50
	defaultStaleAfter       = 10 * time.Minute
)

// JobClaimer is the part of the job table the dispatcher needs.
type JobClaimer interface {
	ClaimDueJobs(ctx context.Context, dueBefore, staleBefore time.Time, limit int) ([]domain.ScheduledJob, error)
	MarkJobPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

// FollowupJobDispatcher moves due jobs from the job table onto the task queue.
// Jobs stuck in enqueued or processing longer than the stale window are
// claimed again.
type FollowupJobDispatcher struct {
	queue      StepEnqueuer
	repo       JobClaimer
	log        *logger.Logger
	interval   time.Duration
	batch      int
	staleAfter time.Duration
	now        func() time.Time
}

func NewFollowupJobDispatcher(queue StepEnqueuer, repo JobClaimer, cfg config.FollowupConfig, log *logger.Logger) *FollowupJobDispatcher {
	d := &FollowupJobDispatcher{
		queue:      queue,
		repo:       repo,
		log:        log,
		interval:   cfg.GetFollowupDispatchInterval(),
		batch:      cfg.GetFollowupDispatchBatch(),
		staleAfter: cfg.GetFollowupStaleEnqueuedAfter(),
		now:        time.Now,
	}
	if d.interval <= 0 {
		d.interval = defaultDispatchInterval
	}
	if d.batch <= 0 {
		d.batch = defaultDispatchBatch
	}
	if d.staleAfter <= 0 {
		d.staleAfter = defaultStaleAfter
	}
	return d
}

func (d *FollowupJobDispatcher) Run(ctx context.Context) {
	if d == nil || d.queue == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := d.dispatchDue(ctx); err != nil {
			d.log.Warn("followup job claim failed", "error", err)
		}
	}
}

// dispatchDue claims one batch and enqueues it. Jobs that cannot be enqueued
// go back to pending for the next tick.
func (d *FollowupJobDispatcher) dispatchDue(ctx context.Context) (int, error) {
	now := d.now()
	jobs, err := d.repo.ClaimDueJobs(ctx, now, now.Add(-d.staleAfter), d.batch)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, job := range jobs {
		if err := d.queue.EnqueueStep(ctx, job); err != nil {
			msg := err.Error()
			if markErr := d.repo.MarkJobPending(ctx, job.ID, &msg); markErr != nil {
				d.log.Warn("followup job release failed", "jobId", job.ID, "error", markErr)
			}
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		d.log.Debug("followup jobs enqueued", "count", enqueued)
	}
	return enqueued, nil
}
