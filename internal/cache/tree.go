// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// tree.go is the read-through cache over tree queries and the shard-aware
// invalidation path. The policy is deliberately conservative: any ambiguity
// while targeting (missing root, backend failure, bad path) degrades to a
// debounced full flush rather than risking a stale tree. Cache failures are
// never surfaced to the mutation path — the store is the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"taxopress/internal/metrics"
	"taxopress/internal/models"
	"taxopress/internal/tree"
)

// DefaultTTL is how long a cached tree query result stays valid.
const DefaultTTL = 10 * time.Minute

// FlushScheduler is the debounce surface the cache degrades to when
// targeted invalidation fails or cannot be computed.
type FlushScheduler interface {
	RequestDebouncedFlush(ctx context.Context, affectedIDs []uuid.UUID)
}

// AuditLog records invalidation events; implemented by store.CacheLogStore.
type AuditLog interface {
	Log(ctx context.Context, action string, affectedIDs []uuid.UUID, reason string)
}

// TreeCache coordinates the derived read cache for the category tree.
type TreeCache struct {
	backend   Backend
	source    tree.NodeSource
	scheduler FlushScheduler
	audit     AuditLog
	ttl       time.Duration
}

// NewTreeCache creates a TreeCache. audit may be nil.
func NewTreeCache(backend Backend, source tree.NodeSource, scheduler FlushScheduler, audit AuditLog, ttl time.Duration) *TreeCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TreeCache{
		backend:   backend,
		source:    source,
		scheduler: scheduler,
		audit:     audit,
		ttl:       ttl,
	}
}

// GetOrCompute returns the cached result for key, or runs compute against
// the store on a miss and caches the result for ttl (<= 0 selects the
// configured default). Backend failures fall through to compute — a broken
// cache degrades to slower reads, never to errors.
func (tc *TreeCache) GetOrCompute(ctx context.Context, key QueryKey, ttl time.Duration, compute func(context.Context) ([]models.Category, error)) ([]models.Category, error) {
	if ttl <= 0 {
		ttl = tc.ttl
	}
	k := key.String()

	raw, ok, err := tc.backend.Get(ctx, k)
	if err != nil {
		slog.Warn("tree cache get failed", "key", k, "error", err)
		observe(func() { metrics.CacheErrorsTotal.WithLabelValues("get").Inc() })
	}
	if ok {
		var cached []models.Category
		if err := json.Unmarshal(raw, &cached); err == nil {
			observe(func() { metrics.CacheHitsTotal.WithLabelValues(key.Scope).Inc() })
			return cached, nil
		}
		// Undecodable entry: drop it and recompute.
		_ = tc.backend.DeleteByKey(ctx, k)
	}
	observe(func() { metrics.CacheMissesTotal.WithLabelValues(key.Scope).Inc() })

	start := time.Now()
	result, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	observe(func() {
		metrics.QueryDuration.WithLabelValues(key.Scope).Observe(time.Since(start).Seconds())
	})

	payload, err := json.Marshal(result)
	if err != nil {
		slog.Warn("tree cache marshal failed", "key", k, "error", err)
		return result, nil
	}
	if err := tc.backend.Set(ctx, k, payload, ttl); err != nil {
		slog.Warn("tree cache set failed", "key", k, "error", err)
		observe(func() { metrics.CacheErrorsTotal.WithLabelValues("set").Inc() })
	}
	return result, nil
}

// InvalidateAffected clears the shards a mutation touched: the node's
// current root ancestor and, for moves, the pre-move root. The distinct,
// non-empty id set is cleared shard by shard; the global shard goes with
// it since unscoped queries see every shape change. Any failure or
// ambiguity routes to the debounced full flush.
func (tc *TreeCache) InvalidateAffected(ctx context.Context, node *models.Category, previousRootID uuid.UUID) {
	affected := make([]uuid.UUID, 0, 2)

	currentRoot, err := tree.NewRootResolver(tc.source).Resolve(ctx, node)
	if err != nil {
		slog.Warn("shard targeting failed, scheduling full flush",
			"category_id", node.ID, "error", err)
		tc.fallback(ctx, affected, "root unresolved: "+err.Error())
		return
	}
	affected = append(affected, currentRoot)
	if previousRootID != uuid.Nil && previousRootID != currentRoot {
		affected = append(affected, previousRootID)
	}

	failed := false
	for _, rootID := range affected {
		if _, err := tc.backend.DeleteByTag(ctx, ShardTag(rootID)); err != nil {
			slog.Warn("targeted shard clear failed", "root_id", rootID, "error", err)
			observe(func() { metrics.ShardClearsTotal.WithLabelValues("error").Inc() })
			failed = true
			continue
		}
		observe(func() { metrics.ShardClearsTotal.WithLabelValues("ok").Inc() })
	}
	if _, err := tc.backend.DeleteByTag(ctx, GlobalShardTag()); err != nil {
		slog.Warn("global shard clear failed", "error", err)
		failed = true
	}

	if failed {
		tc.fallback(ctx, affected, "targeted clear failed")
		return
	}

	if tc.audit != nil {
		tc.audit.Log(ctx, "shard_clear", affected, "targeted")
	}
}

// ForgetCategory removes the narrow per-node caches (breadcrumbs, child
// lists) for a single node. Finer-grained companion to shard clearing.
func (tc *TreeCache) ForgetCategory(ctx context.Context, id uuid.UUID) {
	if _, err := tc.backend.DeleteByTag(ctx, NodeTag(id)); err != nil {
		slog.Warn("forget category failed, scheduling full flush", "category_id", id, "error", err)
		tc.fallback(ctx, []uuid.UUID{id}, "forget failed")
		return
	}
	if tc.audit != nil {
		tc.audit.Log(ctx, "forget", []uuid.UUID{id}, "per-node clear")
	}
}

// FlushAll unconditionally clears every tree cache entry. Idempotent:
// flushing an already-empty tag deletes nothing. Used by the deferred
// flush job.
func (tc *TreeCache) FlushAll(ctx context.Context) (int, error) {
	return tc.backend.DeleteByTag(ctx, FullTag())
}

// fallback schedules the debounced full flush. Correctness over
// efficiency: clearing more than necessary beats serving a stale tree.
func (tc *TreeCache) fallback(ctx context.Context, affected []uuid.UUID, reason string) {
	observe(func() { metrics.ShardClearsTotal.WithLabelValues("fallback").Inc() })
	if tc.audit != nil {
		tc.audit.Log(ctx, "full_flush", affected, reason)
	}
	tc.scheduler.RequestDebouncedFlush(ctx, affected)
}

// observe runs a metrics recording, swallowing any panic. Telemetry must
// never affect correctness.
func observe(record func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("metrics recording failed", "panic", r)
		}
	}()
	record()
}
