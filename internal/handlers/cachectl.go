// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"taxopress/internal/cache"
	"taxopress/internal/store"
)

// defaultLogLimit caps the invalidation log page size.
const defaultLogLimit = 50

// CacheCtl exposes operator controls over the tree cache: a manual flush
// and the invalidation audit trail.
type CacheCtl struct {
	treeCache *cache.TreeCache
	cacheLog  *store.CacheLogStore
}

// NewCacheCtl creates the cache control handler group.
func NewCacheCtl(treeCache *cache.TreeCache, cacheLog *store.CacheLogStore) *CacheCtl {
	return &CacheCtl{treeCache: treeCache, cacheLog: cacheLog}
}

// Flush drops every cached tree query immediately. Manual escape hatch for
// when an operator suspects stale reads; normal invalidation is automatic.
func (h *CacheCtl) Flush(w http.ResponseWriter, r *http.Request) {
	n, err := h.treeCache.FlushAll(r.Context())
	if err != nil {
		slog.Error("manual cache flush failed", "error", err)
		respondError(w, http.StatusBadGateway, "The cache backend did not complete the flush.")
		return
	}
	h.cacheLog.Log(r.Context(), store.ActionFullFlush, nil, "manual flush")
	respondJSON(w, http.StatusOK, map[string]any{"status": "flushed", "keys_removed": n})
}

// Log returns the most recent cache invalidation log entries.
func (h *CacheCtl) Log(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.cacheLog.RecentEntries(r.Context(), limit)
	if err != nil {
		slog.Error("cache log read failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not read the invalidation log.")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
