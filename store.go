package ramus

import (
	"context"
	"fmt"
)

// Store is a view of the repository bound to one branch. Reads resolve
// against the branch head; every successful write stores a commit and
// advances the head through the merge-aware update, so concurrent
// writers converge instead of overwriting each other.
//
// Reading an absent branch behaves like reading an empty tree.
type Store struct {
	repo   *Repo
	branch string
}

// Name returns the branch this view is bound to.
func (s *Store) Name() string { return s.branch }

// Head returns the branch head commit, absent as (zero, false, nil).
func (s *Store) Head(ctx context.Context) (Key, bool, error) {
	return s.repo.branches.Read(ctx, s.branch)
}

// root resolves the current root node key. The zero Key stands in for
// an absent branch.
func (s *Store) root(ctx context.Context) (root, head Key, hasHead bool, err error) {
	head, ok, err := s.repo.branches.Read(ctx, s.branch)
	if err != nil || !ok {
		return Key{}, Key{}, false, err
	}
	c, found, err := s.repo.commits.Get(ctx, head)
	if err != nil {
		return Key{}, Key{}, false, err
	}
	if !found {
		return Key{}, Key{}, false, fmt.Errorf("%w: head commit %s", ErrUnknownKey, head)
	}
	return c.Root, head, true, nil
}

// Get returns the bytes bound at path, absent as (nil, false, nil).
func (s *Store) Get(ctx context.Context, path string) ([]byte, bool, error) {
	v, ok, err := s.GetValue(ctx, path)
	if err != nil || !ok {
		return nil, false, err
	}
	return v.Data, true, nil
}

// GetValue returns the value at path including its metadata.
func (s *Store) GetValue(ctx context.Context, path string) (Value, bool, error) {
	root, _, _, err := s.root(ctx)
	if err != nil {
		return Value{}, false, err
	}
	return s.repo.graph.ReadFull(ctx, root, ParsePath(path))
}

// GetEntry resolves path to its entry, of either kind, without loading
// contents.
func (s *Store) GetEntry(ctx context.Context, path string) (Entry, bool, error) {
	root, _, _, err := s.root(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	return s.repo.graph.ReadEntry(ctx, root, ParsePath(path))
}

// List returns the entries of the node at path in insertion order, nil
// when path is absent.
func (s *Store) List(ctx context.Context, path string) ([]Entry, error) {
	root, _, _, err := s.root(ctx)
	if err != nil {
		return nil, err
	}
	entries, _, err := s.repo.graph.List(ctx, root, ParsePath(path))
	return entries, err
}

// Mem reports whether path is bound, to a value or a subtree.
func (s *Store) Mem(ctx context.Context, path string) (bool, error) {
	root, _, _, err := s.root(ctx)
	if err != nil {
		return false, err
	}
	return s.repo.graph.Mem(ctx, root, ParsePath(path))
}

// Set binds data at path with default metadata and returns the new
// head. Binding the bytes already present is a no-op that stores no
// commit.
func (s *Store) Set(ctx context.Context, path string, data []byte) (Key, error) {
	return s.SetValue(ctx, path, Value{Data: data})
}

// SetValue is Set with explicit metadata.
func (s *Store) SetValue(ctx context.Context, path string, v Value) (Key, error) {
	p := ParsePath(path)
	root, head, hasHead, err := s.root(ctx)
	if err != nil {
		return Key{}, err
	}
	newRoot, err := s.repo.graph.AddContents(ctx, root, p, v)
	if err != nil {
		return Key{}, err
	}
	if hasHead && newRoot == root {
		return head, nil
	}
	return s.commitAndAdvance(ctx, newRoot, head, hasHead, "set "+pathLabel(p))
}

// Remove unbinds path, value or whole subtree. Removing an absent path
// is a no-op that stores no commit.
func (s *Store) Remove(ctx context.Context, path string) (Key, error) {
	p := ParsePath(path)
	root, head, hasHead, err := s.root(ctx)
	if err != nil {
		return Key{}, err
	}
	e, ok, err := s.repo.graph.ReadEntry(ctx, root, p)
	if err != nil {
		return Key{}, err
	}
	if !ok {
		return head, nil
	}
	var newRoot Key
	if e.Kind == KindNode {
		newRoot, err = s.repo.graph.RemoveNode(ctx, root, p)
	} else {
		newRoot, err = s.repo.graph.RemoveContents(ctx, root, p)
	}
	if err != nil {
		return Key{}, err
	}
	if hasHead && newRoot == root {
		return head, nil
	}
	return s.commitAndAdvance(ctx, newRoot, head, hasHead, "remove "+pathLabel(p))
}

// Commit stores a commit with the current tree and the given message,
// an annotation point in the history. On a fresh branch it creates the
// empty root.
func (s *Store) Commit(ctx context.Context, message string) (Key, error) {
	root, head, hasHead, err := s.root(ctx)
	if err != nil {
		return Key{}, err
	}
	if !hasHead {
		root, err = s.repo.graph.Empty(ctx)
		if err != nil {
			return Key{}, err
		}
	}
	return s.commitAndAdvance(ctx, root, head, hasHead, message)
}

// Snapshot returns the current root tree key, a stable handle for
// reads against Graph while the branch moves on. Zero when the branch
// is absent.
func (s *Store) Snapshot(ctx context.Context) (Key, error) {
	root, _, _, err := s.root(ctx)
	return root, err
}

// History lists commits reachable from the head along first parents,
// newest first, up to limit (no limit when limit <= 0).
func (s *Store) History(ctx context.Context, limit int) ([]CommitRecord, error) {
	head, ok, err := s.repo.branches.Read(ctx, s.branch)
	if err != nil || !ok {
		return nil, err
	}
	return s.repo.commits.History(ctx, head, limit)
}

// Merge folds another head commit into the branch and returns the
// resulting head. Divergence without resolution surfaces as a
// *ConflictError and the branch stays put.
func (s *Store) Merge(ctx context.Context, other Key) (Key, error) {
	return s.repo.branches.Update(ctx, s.branch, other)
}

// Revert moves the branch content back to target's tree. History stays
// intact: the revert is a new commit whose parent is the current head.
func (s *Store) Revert(ctx context.Context, target Key) (Key, error) {
	c, ok, err := s.repo.commits.Get(ctx, target)
	if err != nil {
		return Key{}, err
	}
	if !ok {
		return Key{}, fmt.Errorf("%w: commit %s", ErrUnknownKey, target)
	}
	head, hasHead, err := s.repo.branches.Read(ctx, s.branch)
	if err != nil {
		return Key{}, err
	}
	if !hasHead {
		return s.repo.branches.Update(ctx, s.branch, target)
	}
	if head == target {
		return head, nil
	}
	return s.commitAndAdvance(ctx, c.Root, head, true, "revert to "+target.Short())
}

// Watch streams a notification for every branch update that changes
// the subtree at path. See Branches.Watch for delivery guarantees.
func (s *Store) Watch(ctx context.Context, path string) (<-chan Notification, error) {
	return s.repo.branches.Watch(ctx, s.branch, ParsePath(path))
}

func (s *Store) commitAndAdvance(ctx context.Context, root, parent Key, hasParent bool, message string) (Key, error) {
	var parents []Key
	if hasParent {
		parents = []Key{parent}
	}
	ck, err := s.repo.commits.New(ctx, root, parents, s.repo.commitInfo(message))
	if err != nil {
		return Key{}, err
	}
	return s.repo.branches.Update(ctx, s.branch, ck)
}

func pathLabel(p Path) string {
	if p.IsRoot() {
		return "/"
	}
	return p.String()
}
