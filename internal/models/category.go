// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Status marks whether a category participates in active tree queries.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Category represents one node of the product-category tree.
//
// Path is the materialized ancestor chain, rendered as a delimited string
// of ids ending with the node's own id, e.g. "/a1/b2/c3/". It always equals
// the parent's path plus the node's id; for a root node it is "/" + id + "/".
// Depth is the number of ancestors, so depth(root) = 0 and
// depth(node) = depth(parent) + 1.
type Category struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Path        string     `json:"path"`
	Depth       int        `json:"depth"`
	Position    int        `json:"position"`
	Status      Status     `json:"status"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Children is populated by tree-shaped queries only.
	Children []Category `json:"children,omitempty"`
}

// IsRoot reports whether the category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// IsDeleted reports whether the category is soft-deleted. A soft-deleted
// node is absent from active traversals but keeps its stored path so that
// a restore can re-attach it (and its descendants) without recomputation.
func (c *Category) IsDeleted() bool {
	return c.DeletedAt != nil
}

// IsActive reports whether the category is live and not soft-deleted.
func (c *Category) IsActive() bool {
	return c.Status == StatusActive && c.DeletedAt == nil
}
