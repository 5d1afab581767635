// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package tree

import "errors"

// Validation errors returned by the maintainer. These are rejected before
// any write reaches the store; handlers map them to human-readable 422
// responses. Store failures are wrapped and propagated as-is — callers own
// retry policy.
var (
	// ErrParentNotFound means the supplied parent id does not resolve to an
	// existing, non-deleted category.
	ErrParentNotFound = errors.New("parent category not found")

	// ErrCircularReference means a move would make a node its own ancestor.
	ErrCircularReference = errors.New("category cannot be moved under itself or one of its descendants")

	// ErrMaxDepthExceeded means the mutation would push the tree past the
	// configured maximum depth.
	ErrMaxDepthExceeded = errors.New("maximum tree depth exceeded")

	// ErrHasChildren means a delete was attempted on a node that still has
	// non-deleted direct children. Deletes never cascade.
	ErrHasChildren = errors.New("category still has children")

	// ErrSlugGenerationExhausted means the bounded suffix retry could not
	// find a free slug.
	ErrSlugGenerationExhausted = errors.New("could not generate a unique slug")

	// ErrAncestryTooDeep means the fallback parent walk hit its iteration
	// ceiling, which indicates corrupted ancestry data.
	ErrAncestryTooDeep = errors.New("ancestor chain exceeds walk ceiling")
)
