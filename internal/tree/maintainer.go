// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// maintainer.go orchestrates category mutations as explicit lifecycle
// stages (BeforeCreate/AfterCreate/...) invoked directly by the handlers —
// a plain call sequence rather than an event bus, so ordering and failure
// propagation stay visible. The Before* stages validate and never write;
// the After* stages persist derived state inside the mutation's
// transaction; the Notify* stages fire cache invalidation once it commits.
// Clearing before the commit would let a racing read repopulate the cache
// from pre-commit state, pinning the old tree for a full TTL.
package tree

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"taxopress/internal/models"
	"taxopress/internal/slug"
)

// Store is the persistence surface the maintainer needs. The concrete
// implementation lives in internal/store; tests use an in-memory fake.
type Store interface {
	NodeSource

	// FindActive returns a non-deleted category, or nil when absent.
	FindActive(ctx context.Context, id uuid.UUID) (*models.Category, error)

	// HasActiveChildren reports whether any non-deleted direct child exists.
	HasActiveChildren(ctx context.Context, id uuid.UUID) (bool, error)

	// SlugExists reports whether slug is taken by any non-deleted category
	// other than excludeID (pass uuid.Nil on create).
	SlugExists(ctx context.Context, s string, excludeID uuid.UUID) (bool, error)

	// NextPosition returns the next free ordering slot among the siblings
	// of parentID (nil for root siblings).
	NextPosition(ctx context.Context, parentID *uuid.UUID) (int, error)

	// SetPath persists a recomputed path and depth for a single node.
	SetPath(ctx context.Context, id uuid.UUID, path string, depth int) error

	// MaxSubtreeDepth returns the largest depth stored under a path prefix,
	// including the node itself.
	MaxSubtreeDepth(ctx context.Context, pathPrefix string) (int, error)

	// RewriteSubtree replaces oldPrefix with newPrefix on every descendant
	// path and shifts their depths by depthDelta, processed in bounded-size
	// chunks. Returns the number of rows rewritten.
	RewriteSubtree(ctx context.Context, oldPrefix, newPrefix string, depthDelta int) (int, error)
}

// Invalidator is the cache surface the maintainer notifies after writes.
// Implementations must never return an error to the mutation path; cache
// failures degrade internally (see internal/cache).
type Invalidator interface {
	// InvalidateAffected clears the shards for the node's current root and,
	// when previousRootID is non-nil, the pre-move root.
	InvalidateAffected(ctx context.Context, node *models.Category, previousRootID uuid.UUID)

	// ForgetCategory drops the per-node caches (breadcrumbs, child lists,
	// descendant lists) for a single category.
	ForgetCategory(ctx context.Context, id uuid.UUID)
}

// slugAttempts bounds the numeric-suffix retry on slug collision.
const slugAttempts = 3

// defaultMaxDepth caps the tree when no limit is configured.
const defaultMaxDepth = 10

// Maintainer enforces the tree invariants around every category mutation:
// acyclicity, path/depth consistency for the node and all descendants, the
// depth ceiling, and slug uniqueness.
type Maintainer struct {
	store    Store
	cache    Invalidator
	maxDepth int
}

// NewMaintainer creates a Maintainer. maxDepth <= 0 selects the default.
func NewMaintainer(store Store, cache Invalidator, maxDepth int) *Maintainer {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return &Maintainer{store: store, cache: cache, maxDepth: maxDepth}
}

// WithStore returns a copy of the maintainer bound to a different store,
// typically a transaction-scoped view for the duration of one mutation.
func (m *Maintainer) WithStore(store Store) *Maintainer {
	return &Maintainer{store: store, cache: m.cache, maxDepth: m.maxDepth}
}

// CreateInput carries the caller-supplied fields for a new category.
type CreateInput struct {
	Name        string
	Slug        string
	Description string
	ParentID    *uuid.UUID
	Position    *int
	Status      models.Status
}

// UpdateChanges carries the fields being changed on an existing category.
// ParentID only takes effect when MoveParent is set, so "set parent to
// nil" (promote to root) is distinguishable from "parent unchanged".
type UpdateChanges struct {
	Name        *string
	Slug        *string
	Description *string
	Position    *int
	Status      *models.Status
	ParentID    *uuid.UUID
	MoveParent  bool
}

// MoveState captures what AfterUpdate needs from before the write: the old
// path prefix for the descendant rewrite and the pre-move root for shard
// invalidation. The old parent must still be resolvable when this is built,
// which is why it happens in BeforeUpdate.
type MoveState struct {
	Moved      bool
	OldPath    string
	OldDepth   int
	OldRootID  uuid.UUID
	NewParent  *models.Category // nil when promoted to root
}

// BeforeCreate validates input and returns a category ready for insertion:
// slug derived and deduplicated, depth computed from the parent, position
// assigned. Path stays empty — the node's id is only known post-insert.
func (m *Maintainer) BeforeCreate(ctx context.Context, in CreateInput) (*models.Category, error) {
	c := &models.Category{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		ParentID:    in.ParentID,
		Status:      in.Status,
	}
	if c.Status == "" {
		c.Status = models.StatusActive
	}

	var parent *models.Category
	if in.ParentID != nil {
		var err error
		parent, err = m.store.FindActive(ctx, *in.ParentID)
		if err != nil {
			return nil, fmt.Errorf("resolve parent: %w", err)
		}
		if parent == nil {
			return nil, ErrParentNotFound
		}
	}

	c.Depth = ComputeDepth(parent)
	if c.Depth >= m.maxDepth {
		return nil, ErrMaxDepthExceeded
	}

	s, err := m.uniqueSlug(ctx, in.Slug, c.Name, uuid.Nil)
	if err != nil {
		return nil, err
	}
	c.Slug = s

	if in.Position != nil {
		c.Position = *in.Position
	} else {
		pos, err := m.store.NextPosition(ctx, in.ParentID)
		if err != nil {
			return nil, fmt.Errorf("next position: %w", err)
		}
		c.Position = pos
	}

	return c, nil
}

// AfterCreate computes and persists the path now that the id exists. Runs
// inside the mutation's transaction; cache notification waits for the
// commit (NotifyCreated).
func (m *Maintainer) AfterCreate(ctx context.Context, c *models.Category) error {
	var parent *models.Category
	if c.ParentID != nil {
		var err error
		parent, err = m.store.FindAny(ctx, *c.ParentID)
		if err != nil {
			return fmt.Errorf("resolve parent: %w", err)
		}
	}

	path, err := ResolvePath(ctx, m.store, c.ID, parent)
	if err != nil {
		return err
	}
	c.Path = path

	if err := m.store.SetPath(ctx, c.ID, c.Path, c.Depth); err != nil {
		return fmt.Errorf("persist path: %w", err)
	}
	return nil
}

// NotifyCreated fires the cache invalidation for a committed create: the
// tree shape changed, and the parent's child list is stale.
func (m *Maintainer) NotifyCreated(ctx context.Context, c *models.Category) {
	m.cache.InvalidateAffected(ctx, c, uuid.Nil)
	if c.ParentID != nil {
		m.cache.ForgetCategory(ctx, *c.ParentID)
	}
}

// BeforeUpdate validates pending changes and applies the scalar ones to the
// in-memory node. When the parent is changing it enforces acyclicity and
// the depth ceiling, recomputes the node's depth, and captures the move
// state needed by AfterUpdate. The path rewrite itself is deferred to
// AfterUpdate so the pre-move ancestry stays resolvable here.
func (m *Maintainer) BeforeUpdate(ctx context.Context, c *models.Category, ch UpdateChanges) (*MoveState, error) {
	ms := &MoveState{}

	if ch.Name != nil {
		c.Name = strings.TrimSpace(*ch.Name)
	}
	if ch.Description != nil {
		c.Description = *ch.Description
	}
	if ch.Position != nil {
		c.Position = *ch.Position
	}
	if ch.Status != nil {
		c.Status = *ch.Status
	}
	if ch.Slug != nil && *ch.Slug != c.Slug {
		s, err := m.uniqueSlug(ctx, *ch.Slug, c.Name, c.ID)
		if err != nil {
			return nil, err
		}
		c.Slug = s
	}

	if !ch.MoveParent || sameParent(c.ParentID, ch.ParentID) {
		return ms, nil
	}

	var parent *models.Category
	if ch.ParentID != nil {
		if *ch.ParentID == c.ID {
			return nil, ErrCircularReference
		}
		var err error
		parent, err = m.store.FindActive(ctx, *ch.ParentID)
		if err != nil {
			return nil, fmt.Errorf("resolve new parent: %w", err)
		}
		if parent == nil {
			return nil, ErrParentNotFound
		}
		// The prospective parent must not sit inside the moved subtree.
		if c.Path != "" && strings.HasPrefix(parent.Path, c.Path) {
			return nil, ErrCircularReference
		}
	}

	newDepth := ComputeDepth(parent)
	if err := m.checkMoveDepth(ctx, c, newDepth); err != nil {
		return nil, err
	}

	ms.Moved = true
	ms.OldPath = c.Path
	ms.OldDepth = c.Depth
	ms.NewParent = parent
	if root, err := NewRootResolver(m.store).Resolve(ctx, c); err == nil {
		ms.OldRootID = root
	} else {
		// Root indeterminable: the coordinator will degrade to a full
		// flush when it sees uuid.Nil alongside a targeting ambiguity.
		slog.Warn("pre-move root unresolved", "category_id", c.ID, "error", err)
	}

	c.ParentID = ch.ParentID
	c.Depth = newDepth
	return ms, nil
}

// AfterUpdate finishes a parent change: recomputes the node's path and
// runs the chunked prefix rewrite over every descendant. Runs inside the
// mutation's transaction; shard invalidation waits for the commit
// (NotifyUpdated). A no-op for non-move updates.
func (m *Maintainer) AfterUpdate(ctx context.Context, c *models.Category, ms *MoveState) error {
	if ms == nil || !ms.Moved {
		return nil
	}

	newPath, err := ResolvePath(ctx, m.store, c.ID, ms.NewParent)
	if err != nil {
		return err
	}
	c.Path = newPath

	if err := m.store.SetPath(ctx, c.ID, c.Path, c.Depth); err != nil {
		return fmt.Errorf("persist moved path: %w", err)
	}

	if ms.OldPath != "" {
		rewritten, err := m.store.RewriteSubtree(ctx, ms.OldPath, newPath, c.Depth-ms.OldDepth)
		if err != nil {
			return fmt.Errorf("rewrite descendants: %w", err)
		}
		if rewritten > 0 {
			slog.Info("descendant paths rewritten",
				"category_id", c.ID,
				"old_prefix", ms.OldPath,
				"new_prefix", newPath,
				"rows", rewritten,
			)
		}
	}
	return nil
}

// NotifyUpdated fires the cache invalidation for a committed update. For a
// move both the pre-move and post-move shards clear; for a scalar update
// only the node's own caches and current shard.
func (m *Maintainer) NotifyUpdated(ctx context.Context, c *models.Category, ms *MoveState) {
	m.cache.ForgetCategory(ctx, c.ID)
	previousRoot := uuid.Nil
	if ms != nil && ms.Moved {
		previousRoot = ms.OldRootID
	}
	m.cache.InvalidateAffected(ctx, c, previousRoot)
}

// BeforeDelete rejects deletion of a node with non-deleted direct children.
// This is a hard precondition for both soft and hard deletes — there is no
// cascade, so an orphaned subtree can never be produced silently.
func (m *Maintainer) BeforeDelete(ctx context.Context, c *models.Category) error {
	has, err := m.store.HasActiveChildren(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("check children: %w", err)
	}
	if has {
		return ErrHasChildren
	}
	return nil
}

// BeforeRestore re-validates a soft-deleted node against the live tree
// before the marker clears: the former parent must still be active, and a
// slug claimed during the grace window goes back through the suffix retry.
func (m *Maintainer) BeforeRestore(ctx context.Context, c *models.Category) error {
	if c.ParentID != nil {
		parent, err := m.store.FindActive(ctx, *c.ParentID)
		if err != nil {
			return fmt.Errorf("resolve parent: %w", err)
		}
		if parent == nil {
			return ErrParentNotFound
		}
	}

	s, err := m.uniqueSlug(ctx, c.Slug, c.Name, c.ID)
	if err != nil {
		return err
	}
	c.Slug = s
	return nil
}

// NotifyDeleted invalidates the shard of the node's pre-delete root. The
// coordinator degrades to a debounced full flush if the root cannot be
// determined.
func (m *Maintainer) NotifyDeleted(ctx context.Context, c *models.Category) {
	m.cache.ForgetCategory(ctx, c.ID)
	if c.ParentID != nil {
		m.cache.ForgetCategory(ctx, *c.ParentID)
	}
	m.cache.InvalidateAffected(ctx, c, uuid.Nil)
}

// NotifyRestored mirrors NotifyDeleted for a soft-delete reversal: the
// node's stored path survived the grace window, so the same shard is
// affected.
func (m *Maintainer) NotifyRestored(ctx context.Context, c *models.Category) {
	m.cache.ForgetCategory(ctx, c.ID)
	if c.ParentID != nil {
		m.cache.ForgetCategory(ctx, *c.ParentID)
	}
	m.cache.InvalidateAffected(ctx, c, uuid.Nil)
}

// NotifyReordered invalidates the caches touched by a sibling position
// shuffle. The payload may span several parents; each distinct parent's
// child list is forgotten and each distinct shard cleared once.
func (m *Maintainer) NotifyReordered(ctx context.Context, nodes []*models.Category) {
	parents := make(map[uuid.UUID]bool)
	roots := make(map[uuid.UUID]bool)
	for _, c := range nodes {
		if c.ParentID != nil && !parents[*c.ParentID] {
			parents[*c.ParentID] = true
			m.cache.ForgetCategory(ctx, *c.ParentID)
		}
		// Nodes with an unresolvable root collapse onto uuid.Nil; the
		// coordinator resolves or degrades when it sees them.
		root, _ := RootAncestorID(c)
		if roots[root] {
			continue
		}
		roots[root] = true
		m.cache.InvalidateAffected(ctx, c, uuid.Nil)
	}
}

// uniqueSlug derives a slug (from the explicit value or the name) and
// resolves collisions with numeric suffixes, bounded by slugAttempts.
func (m *Maintainer) uniqueSlug(ctx context.Context, explicit, name string, excludeID uuid.UUID) (string, error) {
	base := slug.Generate(explicit)
	if base == "" {
		base = slug.Generate(name)
	}
	if base == "" {
		return "", ErrSlugGenerationExhausted
	}

	candidate := base
	for attempt := 0; attempt <= slugAttempts; attempt++ {
		if attempt > 0 {
			candidate = slug.WithSuffix(base, attempt)
		}
		taken, err := m.store.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrSlugGenerationExhausted
}

// checkMoveDepth verifies that after the move neither the node nor its
// deepest descendant exceeds the depth ceiling.
func (m *Maintainer) checkMoveDepth(ctx context.Context, c *models.Category, newDepth int) error {
	if newDepth >= m.maxDepth {
		return ErrMaxDepthExceeded
	}
	if c.Path == "" {
		return nil
	}
	deepest, err := m.store.MaxSubtreeDepth(ctx, c.Path)
	if err != nil {
		return fmt.Errorf("subtree depth: %w", err)
	}
	if deepest-c.Depth+newDepth >= m.maxDepth {
		return ErrMaxDepthExceeded
	}
	return nil
}

// sameParent compares two optional parent references.
func sameParent(a, b *uuid.UUID) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
