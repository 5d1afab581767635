// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package tree

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"taxopress/internal/models"
)

// fakeStore is an in-memory Store. Paths and depths behave like the real
// table: lookups scan the node map, RewriteSubtree does a literal prefix
// replacement.
type fakeStore struct {
	nodes      map[uuid.UUID]*models.Category
	extraSlugs map[string]bool // slugs taken outside the node map
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:      make(map[uuid.UUID]*models.Category),
		extraSlugs: make(map[string]bool),
	}
}

// add inserts a node with a computed path, returning it for convenience.
func (f *fakeStore) add(name, slugVal string, parent *models.Category) *models.Category {
	c := &models.Category{
		ID:     uuid.New(),
		Name:   name,
		Slug:   slugVal,
		Status: models.StatusActive,
	}
	if parent != nil {
		c.ParentID = &parent.ID
		c.Depth = parent.Depth + 1
	}
	c.Path = ComputePath(c.ID, parent)
	f.nodes[c.ID] = c
	return c
}

func (f *fakeStore) FindAny(_ context.Context, id uuid.UUID) (*models.Category, error) {
	return f.nodes[id], nil
}

func (f *fakeStore) AncestorChain(_ context.Context, id uuid.UUID, maxHops int) ([]models.Category, error) {
	var chain []models.Category
	for cur := f.nodes[id]; cur != nil && len(chain) < maxHops; {
		chain = append(chain, *cur)
		if cur.ParentID == nil {
			break
		}
		cur = f.nodes[*cur.ParentID]
	}
	return chain, nil
}

func (f *fakeStore) FindActive(_ context.Context, id uuid.UUID) (*models.Category, error) {
	c := f.nodes[id]
	if c == nil || c.IsDeleted() {
		return nil, nil
	}
	return c, nil
}

func (f *fakeStore) HasActiveChildren(_ context.Context, id uuid.UUID) (bool, error) {
	for _, c := range f.nodes {
		if c.ParentID != nil && *c.ParentID == id && !c.IsDeleted() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SlugExists(_ context.Context, s string, excludeID uuid.UUID) (bool, error) {
	if f.extraSlugs[s] {
		return true, nil
	}
	for _, c := range f.nodes {
		if c.Slug == s && c.ID != excludeID && !c.IsDeleted() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) NextPosition(_ context.Context, parentID *uuid.UUID) (int, error) {
	next := 0
	for _, c := range f.nodes {
		if sameParent(c.ParentID, parentID) && c.Position >= next {
			next = c.Position + 1
		}
	}
	return next, nil
}

func (f *fakeStore) SetPath(_ context.Context, id uuid.UUID, path string, depth int) error {
	c := f.nodes[id]
	if c == nil {
		return errors.New("no such node")
	}
	c.Path = path
	c.Depth = depth
	return nil
}

func (f *fakeStore) MaxSubtreeDepth(_ context.Context, pathPrefix string) (int, error) {
	deepest := 0
	for _, c := range f.nodes {
		if strings.HasPrefix(c.Path, pathPrefix) && c.Depth > deepest {
			deepest = c.Depth
		}
	}
	return deepest, nil
}

func (f *fakeStore) RewriteSubtree(_ context.Context, oldPrefix, newPrefix string, depthDelta int) (int, error) {
	n := 0
	for _, c := range f.nodes {
		if c.Path != oldPrefix && strings.HasPrefix(c.Path, oldPrefix) {
			c.Path = newPrefix + c.Path[len(oldPrefix):]
			c.Depth += depthDelta
			n++
		}
	}
	return n, nil
}

// fakeCache records invalidation calls.
type fakeCache struct {
	invalidations []invalidation
	forgotten     []uuid.UUID
}

type invalidation struct {
	nodeID       uuid.UUID
	previousRoot uuid.UUID
}

func (f *fakeCache) InvalidateAffected(_ context.Context, node *models.Category, previousRootID uuid.UUID) {
	f.invalidations = append(f.invalidations, invalidation{node.ID, previousRootID})
}

func (f *fakeCache) ForgetCategory(_ context.Context, id uuid.UUID) {
	f.forgotten = append(f.forgotten, id)
}

func (f *fakeCache) forgot(id uuid.UUID) bool {
	for _, got := range f.forgotten {
		if got == id {
			return true
		}
	}
	return false
}

func TestBeforeCreateParentNotFound(t *testing.T) {
	fs := newFakeStore()
	m := NewMaintainer(fs, &fakeCache{}, 0)

	missing := uuid.New()
	_, err := m.BeforeCreate(context.Background(), CreateInput{
		Name:     "Orphan",
		ParentID: &missing,
	})
	if !errors.Is(err, ErrParentNotFound) {
		t.Errorf("got %v, want ErrParentNotFound", err)
	}
}

func TestBeforeCreateSoftDeletedParentRejected(t *testing.T) {
	fs := newFakeStore()
	parent := fs.add("Gone", "gone", nil)
	now := time.Now()
	parent.DeletedAt = &now
	m := NewMaintainer(fs, &fakeCache{}, 0)

	_, err := m.BeforeCreate(context.Background(), CreateInput{
		Name:     "Child",
		ParentID: &parent.ID,
	})
	if !errors.Is(err, ErrParentNotFound) {
		t.Errorf("got %v, want ErrParentNotFound", err)
	}
}

func TestBeforeCreateDepthCeiling(t *testing.T) {
	fs := newFakeStore()
	root := fs.add("L0", "l0", nil)
	l1 := fs.add("L1", "l1", root)
	l2 := fs.add("L2", "l2", l1)
	m := NewMaintainer(fs, &fakeCache{}, 3)

	// A child of the depth-2 node would sit at depth 3, past the ceiling.
	_, err := m.BeforeCreate(context.Background(), CreateInput{
		Name:     "Too Deep",
		ParentID: &l2.ID,
	})
	if !errors.Is(err, ErrMaxDepthExceeded) {
		t.Errorf("got %v, want ErrMaxDepthExceeded", err)
	}

	// One level up still fits.
	c, err := m.BeforeCreate(context.Background(), CreateInput{
		Name:     "Fits",
		ParentID: &l1.ID,
	})
	if err != nil {
		t.Fatalf("BeforeCreate: %v", err)
	}
	if c.Depth != 2 {
		t.Errorf("depth: got %d, want 2", c.Depth)
	}
}

func TestBeforeCreateSlugSuffixRetry(t *testing.T) {
	t.Run("one collision", func(t *testing.T) {
		fs := newFakeStore()
		fs.extraSlugs["phones"] = true
		m := NewMaintainer(fs, &fakeCache{}, 0)

		c, err := m.BeforeCreate(context.Background(), CreateInput{Name: "Phones"})
		if err != nil {
			t.Fatalf("BeforeCreate: %v", err)
		}
		if c.Slug != "phones-1" {
			t.Errorf("slug: got %q, want phones-1", c.Slug)
		}
	})

	t.Run("two collisions", func(t *testing.T) {
		fs := newFakeStore()
		fs.extraSlugs["phones"] = true
		fs.extraSlugs["phones-1"] = true
		m := NewMaintainer(fs, &fakeCache{}, 0)

		c, err := m.BeforeCreate(context.Background(), CreateInput{Name: "Phones"})
		if err != nil {
			t.Fatalf("BeforeCreate: %v", err)
		}
		if c.Slug != "phones-2" {
			t.Errorf("slug: got %q, want phones-2", c.Slug)
		}
	})
}

func TestBeforeCreateSlugExhaustion(t *testing.T) {
	fs := newFakeStore()
	for _, s := range []string{"phones", "phones-1", "phones-2", "phones-3"} {
		fs.extraSlugs[s] = true
	}
	m := NewMaintainer(fs, &fakeCache{}, 0)

	_, err := m.BeforeCreate(context.Background(), CreateInput{Name: "Phones"})
	if !errors.Is(err, ErrSlugGenerationExhausted) {
		t.Errorf("got %v, want ErrSlugGenerationExhausted", err)
	}
}

func TestBeforeCreateAssignsPosition(t *testing.T) {
	fs := newFakeStore()
	root := fs.add("Root", "root", nil)
	sibling := fs.add("Sibling", "sibling", root)
	sibling.Position = 2
	m := NewMaintainer(fs, &fakeCache{}, 0)

	c, err := m.BeforeCreate(context.Background(), CreateInput{
		Name:     "Appended",
		ParentID: &root.ID,
	})
	if err != nil {
		t.Fatalf("BeforeCreate: %v", err)
	}
	if c.Position != 3 {
		t.Errorf("position: got %d, want 3", c.Position)
	}

	explicit := 7
	c, err = m.BeforeCreate(context.Background(), CreateInput{
		Name:     "Pinned",
		ParentID: &root.ID,
		Position: &explicit,
	})
	if err != nil {
		t.Fatalf("BeforeCreate: %v", err)
	}
	if c.Position != 7 {
		t.Errorf("explicit position: got %d, want 7", c.Position)
	}
}

func TestCreateLifecycle(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeCache{}
	root := fs.add("Electronics", "electronics", nil)
	m := NewMaintainer(fs, fc, 0)

	prepared, err := m.BeforeCreate(context.Background(), CreateInput{
		Name:     "Phones",
		ParentID: &root.ID,
	})
	if err != nil {
		t.Fatalf("BeforeCreate: %v", err)
	}
	if prepared.Path != "" {
		t.Errorf("path before insert: got %q, want empty", prepared.Path)
	}

	// Simulate the insert: the store assigns the id.
	prepared.ID = uuid.New()
	fs.nodes[prepared.ID] = prepared

	if err := m.AfterCreate(context.Background(), prepared); err != nil {
		t.Fatalf("AfterCreate: %v", err)
	}

	want := root.Path + prepared.ID.String() + "/"
	if prepared.Path != want {
		t.Errorf("path: got %q, want %q", prepared.Path, want)
	}
	if fs.nodes[prepared.ID].Path != want {
		t.Error("path was not persisted through SetPath")
	}

	// Nothing clears until the surrounding transaction commits; a racing
	// read must not be able to repopulate the cache from pre-commit rows.
	if len(fc.invalidations) != 0 || len(fc.forgotten) != 0 {
		t.Fatal("cache touched before NotifyCreated")
	}

	m.NotifyCreated(context.Background(), prepared)

	if len(fc.invalidations) != 1 {
		t.Fatalf("invalidations: got %d, want 1", len(fc.invalidations))
	}
	if fc.invalidations[0].previousRoot != uuid.Nil {
		t.Error("create must not carry a previous root")
	}
	if !fc.forgot(root.ID) {
		t.Error("parent's per-node caches should be forgotten")
	}
}

func TestBeforeUpdateScalarsOnly(t *testing.T) {
	fs := newFakeStore()
	c := fs.add("Old Name", "old-name", nil)
	m := NewMaintainer(fs, &fakeCache{}, 0)

	name := "  New Name  "
	status := models.StatusInactive
	ms, err := m.BeforeUpdate(context.Background(), c, UpdateChanges{
		Name:   &name,
		Status: &status,
	})
	if err != nil {
		t.Fatalf("BeforeUpdate: %v", err)
	}
	if ms.Moved {
		t.Error("scalar update must not be a move")
	}
	if c.Name != "New Name" {
		t.Errorf("name: got %q", c.Name)
	}
	if c.Status != models.StatusInactive {
		t.Errorf("status: got %q", c.Status)
	}
	// Slug untouched when not supplied.
	if c.Slug != "old-name" {
		t.Errorf("slug: got %q", c.Slug)
	}
}

func TestBeforeUpdateSelfParent(t *testing.T) {
	fs := newFakeStore()
	c := fs.add("Self", "self", nil)
	m := NewMaintainer(fs, &fakeCache{}, 0)

	_, err := m.BeforeUpdate(context.Background(), c, UpdateChanges{
		ParentID:   &c.ID,
		MoveParent: true,
	})
	if !errors.Is(err, ErrCircularReference) {
		t.Errorf("got %v, want ErrCircularReference", err)
	}
}

func TestBeforeUpdateDescendantParent(t *testing.T) {
	fs := newFakeStore()
	root := fs.add("Root", "root", nil)
	child := fs.add("Child", "child", root)
	grandchild := fs.add("Grandchild", "grandchild", child)
	m := NewMaintainer(fs, &fakeCache{}, 0)

	_, err := m.BeforeUpdate(context.Background(), root, UpdateChanges{
		ParentID:   &grandchild.ID,
		MoveParent: true,
	})
	if !errors.Is(err, ErrCircularReference) {
		t.Errorf("got %v, want ErrCircularReference", err)
	}
}

func TestBeforeUpdateMoveDepthCeiling(t *testing.T) {
	fs := newFakeStore()
	shallow := fs.add("Shallow", "shallow", nil)
	deepRoot := fs.add("Deep Root", "deep-root", nil)
	l1 := fs.add("L1", "l1", deepRoot)
	fs.add("L2", "l2", l1)
	m := NewMaintainer(fs, &fakeCache{}, 3)

	// Moving deepRoot (subtree height 2) under shallow would put L2 at
	// depth 3, past the ceiling.
	_, err := m.BeforeUpdate(context.Background(), deepRoot, UpdateChanges{
		ParentID:   &shallow.ID,
		MoveParent: true,
	})
	if !errors.Is(err, ErrMaxDepthExceeded) {
		t.Errorf("got %v, want ErrMaxDepthExceeded", err)
	}
}

func TestMoveLifecycleRewritesDescendants(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeCache{}
	oldRoot := fs.add("Old Root", "old-root", nil)
	newRoot := fs.add("New Root", "new-root", nil)
	moved := fs.add("Moved", "moved", oldRoot)
	child := fs.add("Child", "child", moved)
	grandchild := fs.add("Grandchild", "grandchild", child)
	m := NewMaintainer(fs, fc, 0)

	ms, err := m.BeforeUpdate(context.Background(), moved, UpdateChanges{
		ParentID:   &newRoot.ID,
		MoveParent: true,
	})
	if err != nil {
		t.Fatalf("BeforeUpdate: %v", err)
	}
	if !ms.Moved {
		t.Fatal("expected a move")
	}
	if ms.OldRootID != oldRoot.ID {
		t.Errorf("old root: got %s, want %s", ms.OldRootID, oldRoot.ID)
	}
	if moved.Depth != 1 {
		t.Errorf("depth after reparent: got %d, want 1", moved.Depth)
	}

	if err := m.AfterUpdate(context.Background(), moved, ms); err != nil {
		t.Fatalf("AfterUpdate: %v", err)
	}

	wantMoved := newRoot.Path + moved.ID.String() + "/"
	if moved.Path != wantMoved {
		t.Errorf("moved path: got %q, want %q", moved.Path, wantMoved)
	}
	wantChild := wantMoved + child.ID.String() + "/"
	if child.Path != wantChild {
		t.Errorf("child path: got %q, want %q", child.Path, wantChild)
	}
	wantGrand := wantChild + grandchild.ID.String() + "/"
	if grandchild.Path != wantGrand {
		t.Errorf("grandchild path: got %q, want %q", grandchild.Path, wantGrand)
	}
	if child.Depth != 2 || grandchild.Depth != 3 {
		t.Errorf("descendant depths: got %d/%d, want 2/3", child.Depth, grandchild.Depth)
	}

	// Invalidation is deferred to the post-commit notification.
	if len(fc.invalidations) != 0 {
		t.Fatal("cache invalidated before NotifyUpdated")
	}

	m.NotifyUpdated(context.Background(), moved, ms)

	if len(fc.invalidations) != 1 {
		t.Fatalf("invalidations: got %d, want 1", len(fc.invalidations))
	}
	if fc.invalidations[0].previousRoot != oldRoot.ID {
		t.Error("move must invalidate the pre-move root's shard")
	}
}

func TestMoveToRootPromotion(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeCache{}
	root := fs.add("Root", "root", nil)
	child := fs.add("Child", "child", root)
	fs.add("Grandchild", "grandchild", child)
	m := NewMaintainer(fs, fc, 0)

	ms, err := m.BeforeUpdate(context.Background(), child, UpdateChanges{
		ParentID:   nil,
		MoveParent: true,
	})
	if err != nil {
		t.Fatalf("BeforeUpdate: %v", err)
	}
	if !ms.Moved {
		t.Fatal("promotion to root is a move")
	}
	if err := m.AfterUpdate(context.Background(), child, ms); err != nil {
		t.Fatalf("AfterUpdate: %v", err)
	}

	if child.ParentID != nil || child.Depth != 0 {
		t.Errorf("promoted node: parent=%v depth=%d", child.ParentID, child.Depth)
	}
	if child.Path != "/"+child.ID.String()+"/" {
		t.Errorf("promoted path: got %q", child.Path)
	}
}

func TestBeforeUpdateSameParentIsNotAMove(t *testing.T) {
	fs := newFakeStore()
	root := fs.add("Root", "root", nil)
	child := fs.add("Child", "child", root)
	m := NewMaintainer(fs, &fakeCache{}, 0)

	ms, err := m.BeforeUpdate(context.Background(), child, UpdateChanges{
		ParentID:   &root.ID,
		MoveParent: true,
	})
	if err != nil {
		t.Fatalf("BeforeUpdate: %v", err)
	}
	if ms.Moved {
		t.Error("reasserting the current parent must not trigger a rewrite")
	}
}

func TestBeforeDelete(t *testing.T) {
	fs := newFakeStore()
	root := fs.add("Root", "root", nil)
	leaf := fs.add("Leaf", "leaf", root)
	m := NewMaintainer(fs, &fakeCache{}, 0)

	if err := m.BeforeDelete(context.Background(), root); !errors.Is(err, ErrHasChildren) {
		t.Errorf("parent with children: got %v, want ErrHasChildren", err)
	}
	if err := m.BeforeDelete(context.Background(), leaf); err != nil {
		t.Errorf("leaf: got %v, want nil", err)
	}
}

func TestNotifyDeletedInvalidates(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeCache{}
	root := fs.add("Root", "root", nil)
	leaf := fs.add("Leaf", "leaf", root)
	m := NewMaintainer(fs, fc, 0)

	m.NotifyDeleted(context.Background(), leaf)

	if !fc.forgot(leaf.ID) || !fc.forgot(root.ID) {
		t.Error("both the node and its parent should be forgotten")
	}
	if len(fc.invalidations) != 1 || fc.invalidations[0].nodeID != leaf.ID {
		t.Errorf("invalidations: %+v", fc.invalidations)
	}
}

func TestNotifyUpdatedScalarChange(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeCache{}
	c := fs.add("Node", "node", nil)
	m := NewMaintainer(fs, fc, 0)

	m.NotifyUpdated(context.Background(), c, &MoveState{})

	if !fc.forgot(c.ID) {
		t.Error("node's per-node caches should be forgotten")
	}
	if len(fc.invalidations) != 1 || fc.invalidations[0].previousRoot != uuid.Nil {
		t.Errorf("invalidations: %+v", fc.invalidations)
	}
}

func TestBeforeRestore(t *testing.T) {
	t.Run("parent gone", func(t *testing.T) {
		fs := newFakeStore()
		parent := fs.add("Parent", "parent", nil)
		leaf := fs.add("Leaf", "leaf", parent)
		now := time.Now()
		parent.DeletedAt = &now
		leaf.DeletedAt = &now
		m := NewMaintainer(fs, &fakeCache{}, 0)

		if err := m.BeforeRestore(context.Background(), leaf); !errors.Is(err, ErrParentNotFound) {
			t.Errorf("got %v, want ErrParentNotFound", err)
		}
	})

	t.Run("slug reclaimed while deleted", func(t *testing.T) {
		fs := newFakeStore()
		leaf := fs.add("Leaf", "leaf", nil)
		now := time.Now()
		leaf.DeletedAt = &now
		fs.add("Usurper", "leaf", nil)
		m := NewMaintainer(fs, &fakeCache{}, 0)

		if err := m.BeforeRestore(context.Background(), leaf); err != nil {
			t.Fatalf("BeforeRestore: %v", err)
		}
		if leaf.Slug != "leaf-1" {
			t.Errorf("slug: got %q, want leaf-1", leaf.Slug)
		}
	})

	t.Run("slug still free", func(t *testing.T) {
		fs := newFakeStore()
		leaf := fs.add("Leaf", "leaf", nil)
		now := time.Now()
		leaf.DeletedAt = &now
		m := NewMaintainer(fs, &fakeCache{}, 0)

		if err := m.BeforeRestore(context.Background(), leaf); err != nil {
			t.Fatalf("BeforeRestore: %v", err)
		}
		if leaf.Slug != "leaf" {
			t.Errorf("slug: got %q, want leaf", leaf.Slug)
		}
	})
}

func TestNotifyReordered(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeCache{}
	rootA := fs.add("Root A", "root-a", nil)
	rootB := fs.add("Root B", "root-b", nil)
	a1 := fs.add("A1", "a1", rootA)
	a2 := fs.add("A2", "a2", rootA)
	b1 := fs.add("B1", "b1", rootB)
	m := NewMaintainer(fs, fc, 0)

	m.NotifyReordered(context.Background(), []*models.Category{a1, a2, b1})

	// One forget per distinct parent, even with two siblings under rootA.
	if len(fc.forgotten) != 2 || !fc.forgot(rootA.ID) || !fc.forgot(rootB.ID) {
		t.Errorf("forgotten: %v", fc.forgotten)
	}
	// One shard clear per distinct root.
	if len(fc.invalidations) != 2 {
		t.Errorf("invalidations: %+v", fc.invalidations)
	}
}
