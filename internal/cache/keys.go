// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// keys.go derives deterministic cache keys. The namespace layout is what
// makes targeted invalidation possible:
//
//	tree:                                 full-flush tag (everything below)
//	tree:shard:<rootID>:...               entries for one root's subtree
//	tree:shard:all:...                    unscoped (whole-tree) entries
//	tree:node:<id>:...                    narrow per-node entries
package cache

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Query scopes. Breadcrumbs and child lists live in the per-node namespace;
// tree and subtree results live in shards.
const (
	ScopeTree        = "tree"
	ScopeSubtree     = "subtree"
	ScopeBreadcrumbs = "breadcrumbs"
	ScopeChildren    = "children"
)

// fullTag is the coarse invalidation tag covering every tree cache entry.
const fullTag = "tree:"

// FullTag returns the coarse tag used by the full-flush fallback.
func FullTag() string { return fullTag }

// ShardTag returns the tag covering all entries sharded under one root
// ancestor.
func ShardTag(rootID uuid.UUID) string {
	return fullTag + "shard:" + rootID.String() + ":"
}

// GlobalShardTag returns the tag for unscoped (whole-tree) entries.
func GlobalShardTag() string {
	return fullTag + "shard:all:"
}

// NodeTag returns the tag covering the narrow per-node entries for id.
func NodeTag(id uuid.UUID) string {
	return fullTag + "node:" + id.String() + ":"
}

// QueryKey identifies one cached query result: its shape (scope), its scope
// parameters, and the shard it invalidates with. The derived string is
// deterministic, so equal queries always share an entry.
type QueryKey struct {
	Scope      string
	ShardID    *uuid.UUID // root ancestor id; nil = global shard
	NodeID     *uuid.UUID // set for per-node scopes
	MaxDepth   int        // <= 0 means unlimited
	ActiveOnly bool
}

// String renders the deterministic cache key.
func (k QueryKey) String() string {
	var b strings.Builder

	if k.Scope == ScopeBreadcrumbs || k.Scope == ScopeChildren {
		// Per-node namespace, cleared by ForgetCategory.
		b.WriteString(NodeTag(nodeOrNil(k.NodeID)))
	} else if k.ShardID != nil {
		b.WriteString(ShardTag(*k.ShardID))
	} else {
		b.WriteString(GlobalShardTag())
	}

	b.WriteString(k.Scope)
	b.WriteString(":")
	if k.NodeID != nil {
		b.WriteString(k.NodeID.String())
	} else {
		b.WriteString("-")
	}
	b.WriteString(":")
	if k.MaxDepth > 0 {
		b.WriteString(strconv.Itoa(k.MaxDepth))
	} else {
		b.WriteString("unlimited")
	}
	b.WriteString(":")
	if k.ActiveOnly {
		b.WriteString("active")
	} else {
		b.WriteString("any")
	}
	return b.String()
}

// nodeOrNil guards against a per-node key built without a node id.
func nodeOrNil(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
