// Package scheduler owns the asynq plumbing: the enqueue client, the
// dispatchers and sweepers that feed it, and the worker that consumes the
// queue. Task payloads carry string UUIDs so they survive the JSON round
// trip without custom codecs.
package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"estatedesk_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

// ExportEnqueuer is the narrow slice of the client the webhook admin
// surface needs to kick off a bulk export.
type ExportEnqueuer interface {
	EnqueueWebhookExport(ctx context.Context, payload WebhookExportPayload) error
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

// EnqueueNotificationOutboxDue schedules delivery of one outbox record at
// its run-at instant.
func (c *Client) EnqueueNotificationOutboxDue(ctx context.Context, payload NotificationOutboxDuePayload, runAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewNotificationOutboxDueTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.ProcessAt(runAt), asynq.Queue(c.queue))
	return err
}

// EnqueueLeadRescore schedules an immediate background re-score of one lead.
func (c *Client) EnqueueLeadRescore(ctx context.Context, payload LeadRescorePayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewLeadRescoreTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

// EnqueueWebhookExport schedules a bulk export of an agency's leads updated
// since the given instant.
func (c *Client) EnqueueWebhookExport(ctx context.Context, payload WebhookExportPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewWebhookExportTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
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
