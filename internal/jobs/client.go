// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Client enqueues background jobs on Asynq.
type Client struct {
	client *asynq.Client
}

// ClientConfig contains the Redis connection settings for the job queue.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewClient creates a job client for enqueueing tasks.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueTreeFlush enqueues a deferred full cache flush.
func (c *Client) EnqueueTreeFlush(ctx context.Context, payload TreeFlushPayload, delay time.Duration) error {
	task, err := NewTreeFlushTask(payload, delay)
	if err != nil {
		return fmt.Errorf("create flush task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue flush task: %w", err)
	}

	slog.Info("tree flush job queued",
		"task_id", info.ID,
		"queue", info.Queue,
		"delay", delay,
		"affected_ids", payload.AffectedIDs,
	)
	return nil
}
