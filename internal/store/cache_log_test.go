// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestCacheLogStoreLog(t *testing.T) {
	db := testDB(t)
	s := NewCacheLogStore(db)

	// Log should not error (best-effort).
	rootID := uuid.New()
	s.Log(ctx(), ActionShardClear, []uuid.UUID{rootID}, "move")

	t.Cleanup(func() {
		db.Exec("DELETE FROM cache_invalidation_log WHERE affected_ids = $1", rootID.String())
	})

	// Verify entry was written.
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM cache_invalidation_log WHERE affected_ids = $1", rootID.String(),
	).Scan(&count)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 log entry, got %d", count)
	}
}

func TestCacheLogStoreLogMultipleIDs(t *testing.T) {
	db := testDB(t)
	s := NewCacheLogStore(db)

	oldRoot := uuid.New()
	newRoot := uuid.New()
	s.Log(ctx(), ActionShardClear, []uuid.UUID{oldRoot, newRoot}, "cross-shard move")

	joined := oldRoot.String() + "," + newRoot.String()
	t.Cleanup(func() {
		db.Exec("DELETE FROM cache_invalidation_log WHERE affected_ids = $1", joined)
	})

	var stored string
	err := db.QueryRow(
		"SELECT affected_ids FROM cache_invalidation_log WHERE affected_ids = $1", joined,
	).Scan(&stored)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(stored, oldRoot.String()) || !strings.Contains(stored, newRoot.String()) {
		t.Errorf("affected_ids %q should contain both roots", stored)
	}
}

func TestCacheLogStoreRecentEntries(t *testing.T) {
	db := testDB(t)
	s := NewCacheLogStore(db)

	id1 := uuid.New()
	id2 := uuid.New()
	s.Log(ctx(), ActionForget, []uuid.UUID{id1}, "delete")
	s.Log(ctx(), ActionFullFlush, []uuid.UUID{id2}, "fallback: root unresolved")

	t.Cleanup(func() {
		db.Exec("DELETE FROM cache_invalidation_log WHERE affected_ids IN ($1, $2)", id1.String(), id2.String())
	})

	entries, err := s.RecentEntries(ctx(), 10)
	if err != nil {
		t.Fatalf("RecentEntries: %v", err)
	}

	if len(entries) < 2 {
		t.Errorf("expected at least 2 entries, got %d", len(entries))
	}

	// Most recent should be first.
	if len(entries) >= 2 {
		if entries[0].InvalidatedAt.Before(entries[1].InvalidatedAt) {
			t.Error("expected entries ordered by invalidated_at DESC")
		}
	}
}
