// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package jobs carries the deferred cache-flush pipeline: a debouncing
// scheduler that collapses invalidation bursts into one delayed Asynq task,
// and the worker that executes the flush. Delivery is at-least-once and the
// flush is idempotent, so duplicate executions are harmless.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeTreeFlush is the task type for the deferred full-tag cache flush.
const TypeTreeFlush = "cache:tree_flush"

// QueueMaintenance is the queue flush tasks are dispatched on.
const QueueMaintenance = "maintenance"

// TreeFlushPayload carries the id set that triggered the flush. The flush
// itself is unconditional — the ids are kept for the audit trail only.
type TreeFlushPayload struct {
	AffectedIDs []string  `json:"affected_ids"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewTreeFlushTask builds the delayed flush task.
func NewTreeFlushTask(payload TreeFlushPayload, delay time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal flush payload: %w", err)
	}
	return asynq.NewTask(TypeTreeFlush, data,
		asynq.Queue(QueueMaintenance),
		asynq.ProcessIn(delay),
	), nil
}
