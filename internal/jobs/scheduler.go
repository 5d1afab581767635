// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// scheduler.go debounces full-flush requests: N triggers inside one
// debounce window collapse into exactly one dispatched job. The window is
// a short-lived Valkey lock; whoever acquires it schedules the job, and
// everyone who finds it held is a no-op — the scheduled job covers them.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"taxopress/internal/metrics"
)

// debounceLockKey names the Valkey lock that defines the debounce window.
const debounceLockKey = "tree:flush:debounce"

// Default debounce timings. The lock TTL bounds the window even if the
// process crashes after acquiring it — a dead holder can never block
// future invalidations.
const (
	DefaultLockTTL    = 5 * time.Second
	DefaultFlushDelay = 3 * time.Second
)

// Locker acquires the short-lived debounce lock. Acquisition must be
// atomic (set-if-absent with TTL).
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Enqueuer dispatches the deferred flush task; implemented by Client.
type Enqueuer interface {
	EnqueueTreeFlush(ctx context.Context, payload TreeFlushPayload, delay time.Duration) error
}

// ValkeyLocker implements Locker with SETNX.
type ValkeyLocker struct {
	client *redis.Client
}

// NewValkeyLocker wraps a connected Valkey client.
func NewValkeyLocker(client *redis.Client) *ValkeyLocker {
	return &ValkeyLocker{client: client}
}

// AcquireLock sets the lock key if absent. Returns true when this caller
// won the window.
func (l *ValkeyLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, time.Now().UnixNano(), ttl).Result()
}

// Scheduler debounces invalidation fallbacks into single flush jobs.
type Scheduler struct {
	locker     Locker
	enqueuer   Enqueuer
	lockTTL    time.Duration
	flushDelay time.Duration
}

// NewScheduler creates a Scheduler. Zero durations select the defaults.
func NewScheduler(locker Locker, enqueuer Enqueuer, lockTTL, flushDelay time.Duration) *Scheduler {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if flushDelay <= 0 {
		flushDelay = DefaultFlushDelay
	}
	return &Scheduler{
		locker:     locker,
		enqueuer:   enqueuer,
		lockTTL:    lockTTL,
		flushDelay: flushDelay,
	}
}

// RequestDebouncedFlush schedules at most one deferred full flush per
// debounce window. Fire-and-forget: failures are logged, never returned;
// a lost request leaves entries stale for at most the cache TTL.
func (s *Scheduler) RequestDebouncedFlush(ctx context.Context, affectedIDs []uuid.UUID) {
	acquired, err := s.locker.AcquireLock(ctx, debounceLockKey, s.lockTTL)
	if err != nil {
		// Lock state unknown: schedule anyway. A duplicate job is harmless
		// since the flush is idempotent.
		slog.Warn("debounce lock check failed, scheduling flush anyway", "error", err)
		acquired = true
	}
	if !acquired {
		slog.Debug("flush already scheduled in this window, skipping")
		metrics.FlushJobsTotal.WithLabelValues("suppressed").Inc()
		return
	}

	ids := make([]string, len(affectedIDs))
	for i, id := range affectedIDs {
		ids[i] = id.String()
	}
	payload := TreeFlushPayload{AffectedIDs: ids, RequestedAt: time.Now()}

	if err := s.enqueuer.EnqueueTreeFlush(ctx, payload, s.flushDelay); err != nil {
		slog.Warn("failed to schedule tree flush", "error", err, "affected_ids", ids)
		return
	}
	metrics.FlushJobsTotal.WithLabelValues("scheduled").Inc()
}
