// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"taxopress/internal/models"
)

// rewriteChunkSize bounds how many descendant rows a single UPDATE touches
// during a subtree path rewrite, keeping lock duration and memory bounded.
const rewriteChunkSize = 500

// querier is satisfied by both *sql.DB and *sql.Tx, so the same store
// methods run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CategoryStore manages category rows in the database. It implements the
// persistence surface the tree maintainer and the cache coordinator consume.
type CategoryStore struct {
	db *sql.DB
	q  querier
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db, q: db}
}

// WithinTransaction runs fn against a transaction-scoped view of the store.
// The transaction commits when fn returns nil and rolls back otherwise.
// Mutating requests run their whole lifecycle (validate, insert, set path)
// inside one of these, so a half-updated node is never visible.
func (s *CategoryStore) WithinTransaction(ctx context.Context, fn func(*CategoryStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&CategoryStore{db: s.db, q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

const categoryColumns = `id, name, slug, description, parent_id, path, depth, position, status, deleted_at, created_at, updated_at`

// scanCategory scans a row into a Category struct.
func scanCategory(scanner interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	err := scanner.Scan(
		&c.ID, &c.Name, &c.Slug, &c.Description, &c.ParentID,
		&c.Path, &c.Depth, &c.Position, &c.Status, &c.DeletedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// collect drains rows into a slice of categories.
func collect(rows *sql.Rows) ([]models.Category, error) {
	defer rows.Close()
	var items []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// FindActive retrieves a non-deleted category by id. Returns nil if absent.
func (s *CategoryStore) FindActive(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1 AND deleted_at IS NULL`, id)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category: %w", err)
	}
	return c, nil
}

// FindAny retrieves a category by id regardless of soft-delete state.
// Descendants may still reference a soft-deleted ancestor's path during the
// restore grace window, so ancestry walks must see those rows.
func (s *CategoryStore) FindAny(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category: %w", err)
	}
	return c, nil
}

// AncestorChain returns the parent chain starting at id, nearest ancestor
// first, fetched in one recursive query. Soft-deleted ancestors are
// included for the same reason FindAny sees them. The recursion is capped
// at maxHops rows so corrupted ancestry cannot loop without bound.
func (s *CategoryStore) AncestorChain(ctx context.Context, id uuid.UUID, maxHops int) ([]models.Category, error) {
	rows, err := s.q.QueryContext(ctx, `
		WITH RECURSIVE chain AS (
			SELECT `+categoryColumns+`, 1 AS hop
			FROM categories
			WHERE id = $1
			UNION ALL
			SELECT c.id, c.name, c.slug, c.description, c.parent_id, c.path,
			       c.depth, c.position, c.status, c.deleted_at, c.created_at,
			       c.updated_at, chain.hop + 1
			FROM categories c
			JOIN chain ON c.id = chain.parent_id
			WHERE chain.hop < $2
		)
		SELECT `+categoryColumns+` FROM chain ORDER BY hop
	`, id, maxHops)
	if err != nil {
		return nil, fmt.Errorf("ancestor chain: %w", err)
	}
	return collect(rows)
}

// FindChildren returns the non-deleted direct children of parentID ordered
// by position. A nil parentID lists the root nodes.
func (s *CategoryStore) FindChildren(ctx context.Context, parentID *uuid.UUID) ([]models.Category, error) {
	var rows *sql.Rows
	var err error
	if parentID == nil {
		rows, err = s.q.QueryContext(ctx,
			`SELECT `+categoryColumns+` FROM categories
			 WHERE parent_id IS NULL AND deleted_at IS NULL
			 ORDER BY position, name`)
	} else {
		rows, err = s.q.QueryContext(ctx,
			`SELECT `+categoryColumns+` FROM categories
			 WHERE parent_id = $1 AND deleted_at IS NULL
			 ORDER BY position, name`, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("find children: %w", err)
	}
	return collect(rows)
}

// FindByPathPrefix returns every category whose path starts with prefix,
// shallowest first. activeOnly excludes soft-deleted and inactive rows.
// The node owning the prefix is included.
func (s *CategoryStore) FindByPathPrefix(ctx context.Context, prefix string, activeOnly bool) ([]models.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE path LIKE $1 || '%'`
	if activeOnly {
		query += ` AND deleted_at IS NULL AND status = 'active'`
	} else {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY depth, position, name`

	rows, err := s.q.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("find by path prefix: %w", err)
	}
	return collect(rows)
}

// ListAll returns every non-deleted category ordered for tree assembly.
// includeInactive controls whether status='inactive' rows appear.
func (s *CategoryStore) ListAll(ctx context.Context, includeInactive bool) ([]models.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE deleted_at IS NULL`
	if !includeInactive {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY depth, position, name`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return collect(rows)
}

// ListDeleted returns soft-deleted categories, most recent first.
func (s *CategoryStore) ListDeleted(ctx context.Context) ([]models.Category, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories
		 WHERE deleted_at IS NOT NULL ORDER BY deleted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list deleted categories: %w", err)
	}
	return collect(rows)
}

// Breadcrumbs returns the ancestor chain for a node, root first, decoded
// from its materialized path in a single range query.
func (s *CategoryStore) Breadcrumbs(ctx context.Context, ids []uuid.UUID) ([]models.Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories
		 WHERE id IN (`+strings.Join(placeholders, ", ")+`) ORDER BY depth`, args...)
	if err != nil {
		return nil, fmt.Errorf("breadcrumbs: %w", err)
	}
	return collect(rows)
}

// HasActiveChildren reports whether id has any non-deleted direct children.
func (s *CategoryStore) HasActiveChildren(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE parent_id = $1 AND deleted_at IS NULL)`,
		id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has children: %w", err)
	}
	return exists, nil
}

// SlugExists reports whether slug is taken by a non-deleted category other
// than excludeID. Uniqueness is scoped to the active population — a
// soft-deleted node releases its slug.
func (s *CategoryStore) SlugExists(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM categories
			WHERE slug = $1 AND deleted_at IS NULL AND id <> $2
		)`, slug, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("slug exists: %w", err)
	}
	return exists, nil
}

// NextPosition returns the next free ordering slot among the siblings of
// parentID (nil for the root level).
func (s *CategoryStore) NextPosition(ctx context.Context, parentID *uuid.UUID) (int, error) {
	var maxPos sql.NullInt64
	var err error
	if parentID == nil {
		err = s.q.QueryRowContext(ctx,
			`SELECT MAX(position) FROM categories WHERE parent_id IS NULL AND deleted_at IS NULL`).Scan(&maxPos)
	} else {
		err = s.q.QueryRowContext(ctx,
			`SELECT MAX(position) FROM categories WHERE parent_id = $1 AND deleted_at IS NULL`, *parentID).Scan(&maxPos)
	}
	if err != nil {
		return 0, fmt.Errorf("next position: %w", err)
	}
	if maxPos.Valid {
		return int(maxPos.Int64) + 1, nil
	}
	return 0, nil
}

// Create inserts a new category and returns it with the store-assigned id.
// Path is inserted empty; the maintainer computes and persists it once the
// id is known (path construction is two-phase).
func (s *CategoryStore) Create(ctx context.Context, c *models.Category) (*models.Category, error) {
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO categories (name, slug, description, parent_id, path, depth, position, status)
		VALUES ($1, $2, $3, $4, '', $5, $6, $7)
		RETURNING `+categoryColumns,
		c.Name, c.Slug, c.Description, c.ParentID, c.Depth, c.Position, c.Status,
	)
	result, err := scanCategory(row)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return result, nil
}

// Update persists the scalar fields of an existing category. Path and depth
// go through SetPath/RewriteSubtree, which own the tree-shaped state.
func (s *CategoryStore) Update(ctx context.Context, c *models.Category) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE categories SET
			name = $1, slug = $2, description = $3, parent_id = $4,
			position = $5, status = $6, updated_at = NOW()
		WHERE id = $7
	`, c.Name, c.Slug, c.Description, c.ParentID, c.Position, c.Status, c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// SetPath persists a recomputed path and depth for a single node.
func (s *CategoryStore) SetPath(ctx context.Context, id uuid.UUID, path string, depth int) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE categories SET path = $1, depth = $2, updated_at = NOW() WHERE id = $3`,
		path, depth, id)
	if err != nil {
		return fmt.Errorf("set path: %w", err)
	}
	return nil
}

// MaxSubtreeDepth returns the largest depth stored under a path prefix,
// including the prefix owner itself.
func (s *CategoryStore) MaxSubtreeDepth(ctx context.Context, pathPrefix string) (int, error) {
	var depth sql.NullInt64
	err := s.q.QueryRowContext(ctx,
		`SELECT MAX(depth) FROM categories WHERE path LIKE $1 || '%'`, pathPrefix).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("max subtree depth: %w", err)
	}
	return int(depth.Int64), nil
}

// RewriteSubtree replaces oldPrefix with newPrefix on every descendant path
// and shifts depths by depthDelta. Rows are processed in chunks of
// rewriteChunkSize so a large subtree never sits behind one long UPDATE.
// A reader racing the rewrite against the store may briefly see a
// partially rewritten subtree; cached reads only refresh after the
// rewrite completes and invalidation runs. Rewriting an already-rewritten
// subtree matches zero rows.
func (s *CategoryStore) RewriteSubtree(ctx context.Context, oldPrefix, newPrefix string, depthDelta int) (int, error) {
	total := 0
	for {
		res, err := s.q.ExecContext(ctx, `
			UPDATE categories SET
				path = $2 || substr(path, length($1) + 1),
				depth = depth + $3,
				updated_at = NOW()
			WHERE id IN (
				SELECT id FROM categories
				WHERE path LIKE $1 || '%' AND path <> $1
				ORDER BY id
				LIMIT $4
			)
		`, oldPrefix, newPrefix, depthDelta, rewriteChunkSize)
		if err != nil {
			return total, fmt.Errorf("rewrite subtree: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rewrite subtree rows: %w", err)
		}
		total += int(n)
		if n < rewriteChunkSize {
			return total, nil
		}
	}
}

// SoftDelete marks a category as deleted. Its path is retained so a restore
// can re-attach it without recomputation.
func (s *CategoryStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE categories SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete category: %w", err)
	}
	return nil
}

// Restore clears the soft-delete marker.
func (s *CategoryStore) Restore(ctx context.Context, id uuid.UUID) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE categories SET deleted_at = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("restore category: %w", err)
	}
	return nil
}

// HardDelete removes a category row permanently. Callers must have run the
// children check first; this is terminal.
func (s *CategoryStore) HardDelete(ctx context.Context, id uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("hard delete category: %w", err)
	}
	return nil
}

// Count returns the number of non-deleted categories.
func (s *CategoryStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE deleted_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}

// BuildTree assembles a nested tree from a flat, depth-ordered list.
func BuildTree(flat []models.Category) []models.Category {
	return buildLevel(flat, nil)
}

// buildLevel recursively attaches children under parentID.
func buildLevel(flat []models.Category, parentID *uuid.UUID) []models.Category {
	var result []models.Category
	for _, c := range flat {
		if ptrEqual(c.ParentID, parentID) {
			c.Children = buildLevel(flat, &c.ID)
			result = append(result, c)
		}
	}
	return result
}

// ptrEqual compares two *uuid.UUID for equality (both nil or same value).
func ptrEqual(a, b *uuid.UUID) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
