package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

// StepEnqueuer hands a claimed job to the task queue.
type StepEnqueuer interface {
	EnqueueStep(ctx context.Context, job domain.ScheduledJob) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return newClient(opt, queueName(cfg)), nil
}

func newClient(opt asynq.RedisConnOpt, queue string) *Client {
	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueStep schedules the task for job at its due time. Enqueueing the same
// claim twice is a no-op. Retries are owned by the job table, so the task
// itself is never retried by the queue.
func (c *Client) EnqueueStep(ctx context.Context, job domain.ScheduledJob) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewFollowupStepDueTask(FollowupStepDuePayload{
		JobID:        job.ID.String(),
		EnrollmentID: job.EnrollmentID.String(),
		StepID:       job.StepID.String(),
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.TaskID(stepTaskID(job)),
		asynq.ProcessAt(job.DueAt),
		asynq.Queue(c.queue),
		asynq.MaxRetry(0),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func queueName(cfg config.SchedulerConfig) string {
	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	return queue
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
