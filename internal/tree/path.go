// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package tree keeps the materialized-path category tree consistent under
// mutation. path.go holds the pure path/depth arithmetic; maintainer.go
// orchestrates the mutation lifecycle around it.
package tree

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"taxopress/internal/models"
)

// Delimiter separates id segments in a materialized path.
const Delimiter = "/"

// maxWalkHops bounds the fallback parent walk so corrupted ancestry
// (a cycle written by hand, for instance) cannot loop forever.
const maxWalkHops = 20

// NodeSource is the lookup surface the path fallbacks need. Lookups
// include soft-deleted nodes: during the grace window a descendant may
// still reference a soft-deleted ancestor's path.
type NodeSource interface {
	// FindAny returns a category by id regardless of soft-delete state,
	// or nil when absent.
	FindAny(ctx context.Context, id uuid.UUID) (*models.Category, error)

	// AncestorChain returns the parent chain starting at id, nearest
	// ancestor first, following parent references for at most maxHops
	// nodes in a single query. The chain ends early at a missing parent.
	AncestorChain(ctx context.Context, id uuid.UUID, maxHops int) ([]models.Category, error)
}

// ComputePath returns the materialized path for a node with the given id
// under parent. A nil parent yields a root path. The parent's own Path must
// already be populated; use ResolvePath when it may not be.
func ComputePath(id uuid.UUID, parent *models.Category) string {
	if parent == nil {
		return Delimiter + id.String() + Delimiter
	}
	return parent.Path + id.String() + Delimiter
}

// ComputeDepth returns the depth for a node under parent: 0 for a root,
// parent depth + 1 otherwise.
func ComputeDepth(parent *models.Category) int {
	if parent == nil {
		return 0
	}
	return parent.Depth + 1
}

// SplitPath decomposes a materialized path into its id segments, root
// first. Malformed segments produce an error rather than being skipped,
// since a half-parsed ancestry is worse than none.
func SplitPath(path string) ([]uuid.UUID, error) {
	trimmed := strings.Trim(path, Delimiter)
	if trimmed == "" {
		return nil, fmt.Errorf("empty path %q", path)
	}
	parts := strings.Split(trimmed, Delimiter)
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		id, err := uuid.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("bad path segment %q in %q: %w", p, path, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RootAncestorID extracts the root ancestor id from a node's stored path.
// This is the primary O(1) strategy; it fails (ok=false) only when Path is
// absent or malformed, in which case callers fall back to RootResolver.
func RootAncestorID(c *models.Category) (uuid.UUID, bool) {
	if c.Path == "" {
		return uuid.Nil, false
	}
	rest, found := strings.CutPrefix(c.Path, Delimiter)
	if !found {
		return uuid.Nil, false
	}
	seg, _, found := strings.Cut(rest, Delimiter)
	if !found {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(seg)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ResolvePath computes the path a node would have under parent even when
// intermediate nodes have no stored path: it fetches the parent's ancestor
// chain in one query, finds the nearest node with a populated path (or a
// root), then synthesizes forward. The chain is bounded by maxWalkHops.
func ResolvePath(ctx context.Context, source NodeSource, id uuid.UUID, parent *models.Category) (string, error) {
	if parent == nil {
		return ComputePath(id, nil), nil
	}
	if parent.Path != "" {
		return ComputePath(id, parent), nil
	}

	// Collect the unpathed chain, nearest ancestor first.
	unpathed := []uuid.UUID{parent.ID}
	base := Delimiter
	if parent.ParentID != nil {
		chain, err := source.AncestorChain(ctx, *parent.ParentID, maxWalkHops)
		if err != nil {
			return "", fmt.Errorf("resolve path for %s: %w", id, err)
		}
		pathed := false
		for i := range chain {
			if chain[i].Path != "" {
				base = chain[i].Path
				pathed = true
				break
			}
			unpathed = append(unpathed, chain[i].ID)
		}
		if !pathed {
			if len(chain) == 0 {
				return "", fmt.Errorf("resolve path for %s: %w", id, ErrParentNotFound)
			}
			if last := chain[len(chain)-1]; last.ParentID != nil {
				if len(chain) >= maxWalkHops {
					return "", fmt.Errorf("resolve path for %s: %w", id, ErrAncestryTooDeep)
				}
				return "", fmt.Errorf("resolve path for %s: %w", id, ErrParentNotFound)
			}
			// The chain ends at an unpathed root; base stays the delimiter.
		}
	}

	// Synthesize forward: base covers everything above the unpathed chain.
	var b strings.Builder
	b.WriteString(base)
	for i := len(unpathed) - 1; i >= 0; i-- {
		b.WriteString(unpathed[i].String())
		b.WriteString(Delimiter)
	}
	b.WriteString(id.String())
	b.WriteString(Delimiter)
	return b.String(), nil
}

// RootResolver resolves root ancestor ids with an explicit request-scoped
// memo, so repeated resolutions within one mutation batch the work without
// hiding process-wide mutable state. Construct one per request.
type RootResolver struct {
	source NodeSource
	memo   map[uuid.UUID]uuid.UUID
}

// NewRootResolver creates a resolver with an empty memo.
func NewRootResolver(source NodeSource) *RootResolver {
	return &RootResolver{
		source: source,
		memo:   make(map[uuid.UUID]uuid.UUID),
	}
}

// Resolve returns the root ancestor id for a node. The stored path is
// preferred; when it is absent the resolver fetches the whole ancestor
// chain in one query, bounded by maxWalkHops, and memoizes every node on
// it.
func (r *RootResolver) Resolve(ctx context.Context, c *models.Category) (uuid.UUID, error) {
	if root, ok := r.memo[c.ID]; ok {
		return root, nil
	}
	if root, ok := RootAncestorID(c); ok {
		r.memo[c.ID] = root
		return root, nil
	}
	if c.ParentID == nil {
		r.memo[c.ID] = c.ID
		return c.ID, nil
	}
	if root, ok := r.memo[*c.ParentID]; ok {
		r.memo[c.ID] = root
		return root, nil
	}

	chain, err := r.source.AncestorChain(ctx, *c.ParentID, maxWalkHops)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve root for %s: %w", c.ID, err)
	}
	if len(chain) == 0 {
		return uuid.Nil, fmt.Errorf("resolve root for %s: %w", c.ID, ErrParentNotFound)
	}

	visited := []uuid.UUID{c.ID}
	for i := range chain {
		anc := &chain[i]
		if root, ok := r.memo[anc.ID]; ok {
			r.rememberAll(visited, root)
			return root, nil
		}
		visited = append(visited, anc.ID)
		if root, ok := RootAncestorID(anc); ok {
			r.rememberAll(visited, root)
			return root, nil
		}
		if anc.ParentID == nil {
			r.rememberAll(visited, anc.ID)
			return anc.ID, nil
		}
	}

	if len(chain) >= maxWalkHops {
		return uuid.Nil, fmt.Errorf("resolve root for %s: %w", c.ID, ErrAncestryTooDeep)
	}
	return uuid.Nil, fmt.Errorf("resolve root for %s: %w", c.ID, ErrParentNotFound)
}

// rememberAll memoizes a resolved root for every node on the walked chain.
func (r *RootResolver) rememberAll(ids []uuid.UUID, root uuid.UUID) {
	for _, id := range ids {
		r.memo[id] = root
	}
}
