// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// cache_log.go records cache invalidation events in the database for audit
// and debugging. Each entry captures what was invalidated (targeted shard
// clear vs. full flush), the affected root ids, and why.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Invalidation actions recorded in the audit log.
const (
	ActionShardClear = "shard_clear"
	ActionForget     = "forget"
	ActionFullFlush  = "full_flush"
)

// CacheLogStore handles cache invalidation audit operations.
type CacheLogStore struct {
	db *sql.DB
}

// NewCacheLogStore creates a new CacheLogStore.
func NewCacheLogStore(db *sql.DB) *CacheLogStore {
	return &CacheLogStore{db: db}
}

// Log records a cache invalidation event. Best-effort: failures are logged
// and swallowed, never surfaced to the mutation path.
func (s *CacheLogStore) Log(ctx context.Context, action string, affectedIDs []uuid.UUID, reason string) {
	ids := make([]string, len(affectedIDs))
	for i, id := range affectedIDs {
		ids[i] = id.String()
	}
	affected := strings.Join(ids, ",")

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_invalidation_log (action, affected_ids, reason)
		VALUES ($1, $2, $3)
	`, action, affected, reason)
	if err != nil {
		slog.Warn("failed to log cache invalidation",
			"action", action,
			"affected_ids", affected,
			"reason", reason,
			"error", err,
		)
		return
	}
	slog.Debug("cache invalidation logged",
		"action", action,
		"affected_ids", affected,
		"reason", reason,
	)
}

// CacheLogEntry represents a single cache invalidation event.
type CacheLogEntry struct {
	ID            int64
	Action        string
	AffectedIDs   string
	Reason        string
	InvalidatedAt time.Time
}

// RecentEntries returns the most recent cache invalidation events for
// debugging. Limited to the specified count.
func (s *CacheLogStore) RecentEntries(ctx context.Context, limit int) ([]CacheLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, affected_ids, reason, invalidated_at
		FROM cache_invalidation_log
		ORDER BY invalidated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cache log: %w", err)
	}
	defer rows.Close()

	var entries []CacheLogEntry
	for rows.Next() {
		var e CacheLogEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.AffectedIDs, &e.Reason, &e.InvalidatedAt); err != nil {
			return nil, fmt.Errorf("scan cache log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
