package postcall

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues post-call and follow-up tasks. It implements the engine's
// PostCallQueue contract.
type Client struct {
	client *asynq.Client
	queue  string
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

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Enqueue submits a post-call job for immediate processing. Retries are
// managed by the processor, not asynq, so the task itself gets no retry
// budget.
func (c *Client) Enqueue(ctx context.Context, job activity.PostCallJob) error {
	if c == nil || c.client == nil {
		return apperr.New(apperr.KindValidation, "post-call queue not configured")
	}

	task, err := NewPostCallTask(job)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(0))
	return err
}

// EnqueueAfter resubmits a failed job with its bumped attempt counter.
func (c *Client) EnqueueAfter(ctx context.Context, job activity.PostCallJob, delay time.Duration) error {
	if c == nil || c.client == nil {
		return apperr.New(apperr.KindValidation, "post-call queue not configured")
	}

	task, err := NewPostCallTask(job)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(0), asynq.ProcessIn(delay))
	return err
}

// ScheduleFollowUp books a follow-up task to fire at its due time.
func (c *Client) ScheduleFollowUp(ctx context.Context, payload FollowUpDuePayload, dueAt time.Time) error {
	if c == nil || c.client == nil {
		return apperr.New(apperr.KindValidation, "post-call queue not configured")
	}

	task, err := NewFollowUpDueTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.ProcessAt(dueAt))
	return err
}

var _ activity.PostCallQueue = (*Client)(nil)

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
