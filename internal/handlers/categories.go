// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"taxopress/internal/cache"
	"taxopress/internal/models"
	"taxopress/internal/store"
	"taxopress/internal/tree"
)

// Categories groups the category tree HTTP handlers. Reads go through the
// tree cache; mutations run the maintainer lifecycle inside a transaction.
type Categories struct {
	categories *store.CategoryStore
	maintainer *tree.Maintainer
	treeCache  *cache.TreeCache
}

// NewCategories creates the category handler group.
func NewCategories(categories *store.CategoryStore, maintainer *tree.Maintainer, treeCache *cache.TreeCache) *Categories {
	return &Categories{
		categories: categories,
		maintainer: maintainer,
		treeCache:  treeCache,
	}
}

// List returns all categories as a flat, depth-ordered list.
// ?include_inactive=1 adds status=inactive rows.
func (h *Categories) List(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "1"

	key := cache.QueryKey{Scope: cache.ScopeTree, ActiveOnly: !includeInactive}
	items, err := h.treeCache.GetOrCompute(r.Context(), key, 0, func(ctx context.Context) ([]models.Category, error) {
		return h.categories.ListAll(ctx, includeInactive)
	})
	if err != nil {
		slog.Error("list categories failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not list categories.")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// Tree returns all categories as a nested tree.
func (h *Categories) Tree(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "1"

	key := cache.QueryKey{Scope: cache.ScopeTree, ActiveOnly: !includeInactive}
	flat, err := h.treeCache.GetOrCompute(r.Context(), key, 0, func(ctx context.Context) ([]models.Category, error) {
		return h.categories.ListAll(ctx, includeInactive)
	})
	if err != nil {
		slog.Error("category tree failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not build the category tree.")
		return
	}
	respondJSON(w, http.StatusOK, store.BuildTree(flat))
}

// Get returns a single category with its breadcrumb trail.
func (h *Categories) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	c, err := h.categories.FindActive(r.Context(), id)
	if err != nil {
		slog.Error("find category failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not load the category.")
		return
	}
	if c == nil {
		respondError(w, http.StatusNotFound, "Category not found.")
		return
	}

	crumbs, err := h.breadcrumbs(r.Context(), c)
	if err != nil {
		slog.Error("breadcrumbs failed", "category_id", id, "error", err)
		// Breadcrumbs are decoration; the node itself is the answer.
		crumbs = nil
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"category":    c,
		"breadcrumbs": crumbs,
	})
}

// Children returns the direct children of a category.
func (h *Categories) Children(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	key := cache.QueryKey{Scope: cache.ScopeChildren, NodeID: &id, ActiveOnly: true}
	items, err := h.treeCache.GetOrCompute(r.Context(), key, 0, func(ctx context.Context) ([]models.Category, error) {
		return h.categories.FindChildren(ctx, &id)
	})
	if err != nil {
		slog.Error("children failed", "category_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Could not list children.")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// Subtree returns every descendant of a category, optionally limited by
// ?depth=N. The result is cached in the shard of the node's root ancestor.
func (h *Categories) Subtree(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	maxDepth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxDepth = n
		}
	}

	c, err := h.categories.FindActive(r.Context(), id)
	if err != nil {
		slog.Error("find category failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not load the category.")
		return
	}
	if c == nil {
		respondError(w, http.StatusNotFound, "Category not found.")
		return
	}

	key := cache.QueryKey{Scope: cache.ScopeSubtree, NodeID: &id, MaxDepth: maxDepth, ActiveOnly: true}
	if rootID, ok := tree.RootAncestorID(c); ok {
		key.ShardID = &rootID
	}

	items, err := h.treeCache.GetOrCompute(r.Context(), key, 0, func(ctx context.Context) ([]models.Category, error) {
		descendants, err := h.categories.FindByPathPrefix(ctx, c.Path, true)
		if err != nil {
			return nil, err
		}
		if maxDepth <= 0 {
			return descendants, nil
		}
		limited := descendants[:0:0]
		for _, d := range descendants {
			if d.Depth-c.Depth <= maxDepth {
				limited = append(limited, d)
			}
		}
		return limited, nil
	})
	if err != nil {
		slog.Error("subtree failed", "category_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Could not load the subtree.")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// Deleted returns soft-deleted categories awaiting restore or purge.
func (h *Categories) Deleted(w http.ResponseWriter, r *http.Request) {
	items, err := h.categories.ListDeleted(r.Context())
	if err != nil {
		slog.Error("list deleted categories failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not list deleted categories.")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// categoryCreateRequest is the JSON payload for category creation.
type categoryCreateRequest struct {
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Position    *int       `json:"position"`
	Status      string     `json:"status"`
}

// Create inserts a new category. The whole lifecycle — validation, insert,
// two-phase path write — runs in one transaction.
func (h *Categories) Create(w http.ResponseWriter, r *http.Request) {
	var req categoryCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON payload.")
		return
	}
	if msg := validateCategory(req.Name, req.Slug, req.Description); msg != "" {
		respondError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	input := tree.CreateInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		ParentID:    req.ParentID,
		Position:    req.Position,
		Status:      models.Status(req.Status),
	}

	var created *models.Category
	err := h.categories.WithinTransaction(r.Context(), func(tx *store.CategoryStore) error {
		m := h.maintainer.WithStore(tx)

		prepared, err := m.BeforeCreate(r.Context(), input)
		if err != nil {
			return err
		}
		created, err = tx.Create(r.Context(), prepared)
		if err != nil {
			return err
		}
		return m.AfterCreate(r.Context(), created)
	})
	if err != nil {
		respondTreeError(w, err)
		return
	}

	// Cache invalidation waits for the commit: clearing inside the
	// transaction would let a racing read repopulate from pre-commit rows.
	h.maintainer.NotifyCreated(r.Context(), created)
	respondJSON(w, http.StatusCreated, created)
}

// categoryUpdateRequest is the JSON payload for scalar field updates.
// Parent changes go through Move, which has its own validation path.
type categoryUpdateRequest struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
	Position    *int    `json:"position"`
	Status      *string `json:"status"`
}

// Update modifies scalar fields of a category. No tree impact.
func (h *Categories) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req categoryUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON payload.")
		return
	}
	if req.Name != nil {
		if msg := validateCategory(*req.Name, deref(req.Slug), deref(req.Description)); msg != "" {
			respondError(w, http.StatusUnprocessableEntity, msg)
			return
		}
	}

	changes := tree.UpdateChanges{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Position:    req.Position,
	}
	if req.Status != nil {
		st := models.Status(*req.Status)
		if st != models.StatusActive && st != models.StatusInactive {
			respondError(w, http.StatusUnprocessableEntity, "Status must be active or inactive.")
			return
		}
		changes.Status = &st
	}

	updated, err := h.applyUpdate(r.Context(), id, changes)
	if err != nil {
		respondTreeError(w, err)
		return
	}
	if updated == nil {
		respondError(w, http.StatusNotFound, "Category not found.")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// categoryMoveRequest is the JSON payload for re-parenting a category.
// A null parent_id promotes the node to a root.
type categoryMoveRequest struct {
	ParentID *uuid.UUID `json:"parent_id"`
}

// Move re-parents a category, rewriting the paths and depths of the whole
// subtree and invalidating both affected shards.
func (h *Categories) Move(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req categoryMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON payload.")
		return
	}

	changes := tree.UpdateChanges{ParentID: req.ParentID, MoveParent: true}
	updated, err := h.applyUpdate(r.Context(), id, changes)
	if err != nil {
		respondTreeError(w, err)
		return
	}
	if updated == nil {
		respondError(w, http.StatusNotFound, "Category not found.")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// applyUpdate runs the update lifecycle in a transaction and returns the
// updated node, or nil when the id does not resolve.
func (h *Categories) applyUpdate(ctx context.Context, id uuid.UUID, changes tree.UpdateChanges) (*models.Category, error) {
	var (
		updated *models.Category
		ms      *tree.MoveState
	)
	err := h.categories.WithinTransaction(ctx, func(tx *store.CategoryStore) error {
		m := h.maintainer.WithStore(tx)

		node, err := tx.FindActive(ctx, id)
		if err != nil {
			return err
		}
		if node == nil {
			return nil // signalled by updated == nil
		}

		ms, err = m.BeforeUpdate(ctx, node, changes)
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, node); err != nil {
			return err
		}
		if err := m.AfterUpdate(ctx, node, ms); err != nil {
			return err
		}
		updated = node
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated != nil {
		h.maintainer.NotifyUpdated(ctx, updated, ms)
	}
	return updated, nil
}

// Delete soft-deletes a childless category.
func (h *Categories) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var deleted *models.Category
	err := h.categories.WithinTransaction(r.Context(), func(tx *store.CategoryStore) error {
		m := h.maintainer.WithStore(tx)

		node, err := tx.FindActive(r.Context(), id)
		if err != nil {
			return err
		}
		if node == nil {
			return nil
		}
		if err := m.BeforeDelete(r.Context(), node); err != nil {
			return err
		}
		if err := tx.SoftDelete(r.Context(), id); err != nil {
			return err
		}
		deleted = node
		return nil
	})
	if err != nil {
		respondTreeError(w, err)
		return
	}
	if deleted == nil {
		respondError(w, http.StatusNotFound, "Category not found.")
		return
	}

	h.maintainer.NotifyDeleted(r.Context(), deleted)
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Restore reverses a soft delete. The former parent must still be active
// (otherwise the node would re-attach to a ghost), and a slug claimed
// during the grace window is re-deduplicated instead of tripping the
// unique index.
func (h *Categories) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var restored *models.Category
	err := h.categories.WithinTransaction(r.Context(), func(tx *store.CategoryStore) error {
		m := h.maintainer.WithStore(tx)

		node, err := tx.FindAny(r.Context(), id)
		if err != nil {
			return err
		}
		if node == nil || !node.IsDeleted() {
			return nil
		}
		slugBefore := node.Slug
		if err := m.BeforeRestore(r.Context(), node); err != nil {
			return err
		}
		if err := tx.Restore(r.Context(), id); err != nil {
			return err
		}
		if node.Slug != slugBefore {
			if err := tx.Update(r.Context(), node); err != nil {
				return err
			}
		}
		restored = node
		return nil
	})
	if err != nil {
		respondTreeError(w, err)
		return
	}
	if restored == nil {
		respondError(w, http.StatusNotFound, "No soft-deleted category with that id.")
		return
	}

	h.maintainer.NotifyRestored(r.Context(), restored)
	respondJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// Purge hard-deletes a soft-deleted, childless category. Terminal.
func (h *Categories) Purge(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var purged *models.Category
	err := h.categories.WithinTransaction(r.Context(), func(tx *store.CategoryStore) error {
		m := h.maintainer.WithStore(tx)

		node, err := tx.FindAny(r.Context(), id)
		if err != nil {
			return err
		}
		if node == nil || !node.IsDeleted() {
			return nil
		}
		// Surviving descendants would be left with an undefined ancestry.
		if err := m.BeforeDelete(r.Context(), node); err != nil {
			return err
		}
		if err := tx.HardDelete(r.Context(), id); err != nil {
			return err
		}
		purged = node
		return nil
	})
	if err != nil {
		respondTreeError(w, err)
		return
	}
	if purged == nil {
		respondError(w, http.StatusNotFound, "No soft-deleted category with that id.")
		return
	}

	h.maintainer.NotifyDeleted(r.Context(), purged)
	respondJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

// reorderRequest is the JSON payload for sibling reordering.
type reorderRequest struct {
	Items []struct {
		ID       uuid.UUID `json:"id"`
		Position int       `json:"position"`
	} `json:"items"`
}

// Reorder updates sibling positions in one transaction. Positions only —
// re-parenting goes through Move so the tree invariants stay enforced.
func (h *Categories) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON payload.")
		return
	}

	var reordered []*models.Category
	err := h.categories.WithinTransaction(r.Context(), func(tx *store.CategoryStore) error {
		for _, item := range req.Items {
			node, err := tx.FindActive(r.Context(), item.ID)
			if err != nil {
				return err
			}
			if node == nil {
				continue
			}
			node.Position = item.Position
			if err := tx.Update(r.Context(), node); err != nil {
				return err
			}
			reordered = append(reordered, node)
		}
		return nil
	})
	if err != nil {
		slog.Error("reorder failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not reorder categories.")
		return
	}

	// Ordering is part of every cached tree shape. The payload may span
	// several parents, so every affected child list and shard clears.
	h.maintainer.NotifyReordered(r.Context(), reordered)
	respondJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
}

// breadcrumbs returns the ancestor chain for a node, root first, decoded
// from its materialized path and fetched in one range query.
func (h *Categories) breadcrumbs(ctx context.Context, c *models.Category) ([]models.Category, error) {
	ids, err := tree.SplitPath(c.Path)
	if err != nil {
		return nil, err
	}

	key := cache.QueryKey{Scope: cache.ScopeBreadcrumbs, NodeID: &c.ID, ActiveOnly: true}
	return h.treeCache.GetOrCompute(ctx, key, 0, func(ctx context.Context) ([]models.Category, error) {
		return h.categories.Breadcrumbs(ctx, ids)
	})
}

// parseID extracts and validates the {id} URL parameter.
func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid category id.")
		return uuid.Nil, false
	}
	return id, true
}

// deref returns the string behind p, or empty.
func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
