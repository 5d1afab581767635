// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"taxopress/internal/metrics"
)

// Flusher is the cache surface the flush handler drives; implemented by
// cache.TreeCache.
type Flusher interface {
	FlushAll(ctx context.Context) (int, error)
}

// AuditLog records executed flushes; implemented by store.CacheLogStore.
type AuditLog interface {
	Log(ctx context.Context, action string, affectedIDs []uuid.UUID, reason string)
}

// WorkerConfig holds the configuration for the job worker.
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// Worker processes background jobs.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker creates a background job worker with the flush handler
// registered.
func NewWorker(cfg WorkerConfig, flusher Flusher, audit AuditLog) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"default":        5,
				QueueMaintenance: 2,
			},
		},
	)

	mux := asynq.NewServeMux()
	handler := &flushHandler{flusher: flusher, audit: audit}
	mux.HandleFunc(TypeTreeFlush, handler.HandleTreeFlush)

	return &Worker{server: server, mux: mux}
}

// Start begins processing jobs in the background.
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start job worker: %w", err)
	}
	slog.Info("job worker started")
	return nil
}

// Shutdown stops the worker, waiting for in-flight tasks.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
	slog.Info("job worker stopped")
}

// flushHandler executes deferred full-tag cache flushes.
type flushHandler struct {
	flusher Flusher
	audit   AuditLog
}

// HandleTreeFlush performs the unconditional full-tag flush. By the time a
// job reaches here, targeting has already failed or been deemed unreliable,
// so precision would buy nothing. The flush is idempotent; re-delivery of
// the same task is harmless.
func (h *flushHandler) HandleTreeFlush(ctx context.Context, t *asynq.Task) error {
	var payload TreeFlushPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Undecodable payload: still flush, the ids are audit-only.
		slog.Warn("flush payload undecodable, flushing anyway", "error", err)
	}

	deleted, err := h.flusher.FlushAll(ctx)
	if err != nil {
		return fmt.Errorf("full cache flush: %w", err)
	}

	metrics.FlushJobsTotal.WithLabelValues("executed").Inc()
	slog.Info("tree cache fully flushed",
		"deleted", deleted,
		"affected_ids", payload.AffectedIDs,
		"requested_at", payload.RequestedAt,
	)

	if h.audit != nil {
		ids := make([]uuid.UUID, 0, len(payload.AffectedIDs))
		for _, s := range payload.AffectedIDs {
			if id, err := uuid.Parse(s); err == nil {
				ids = append(ids, id)
			}
		}
		h.audit.Log(ctx, "full_flush", ids, "deferred flush executed")
	}
	return nil
}
