package scheduler

import (
	"context"
	"time"

	"nurture_backend/platform/logger"
)

const (
	defaultFollowupJobCleanupInterval = time.Hour
	defaultFinishedJobRetention       = 30 * 24 * time.Hour
)

// FinishedJobPruner deletes finished jobs older than a cutoff.
type FinishedJobPruner interface {
	DeleteFinishedJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// FollowupJobCleanup periodically removes succeeded and cancelled jobs.
// Failed jobs are kept as the dead-letter record.
type FollowupJobCleanup struct {
	repo      FinishedJobPruner
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewFollowupJobCleanup(repo FinishedJobPruner, log *logger.Logger, interval, retention time.Duration) *FollowupJobCleanup {
	if interval <= 0 {
		interval = defaultFollowupJobCleanupInterval
	}
	if retention <= 0 {
		retention = defaultFinishedJobRetention
	}

	return &FollowupJobCleanup{
		repo:      repo,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (c *FollowupJobCleanup) Run(ctx context.Context) {
	if c == nil || c.repo == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *FollowupJobCleanup) cleanup(ctx context.Context) {
	deleted, err := c.repo.DeleteFinishedJobsBefore(ctx, c.now().Add(-c.retention))
	if err != nil {
		c.log.Warn("followup job cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("followup job cleanup deleted finished jobs", "deleted", deleted)
	}
}
