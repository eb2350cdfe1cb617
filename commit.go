package ramus

import (
	"context"
	"fmt"
	"time"
)

// Commits builds and walks the commit DAG.
type Commits struct {
	obj *Objects
}

func newCommits(obj *Objects) *Commits {
	return &Commits{obj: obj}
}

// New stores a commit for root with the given parents. Parents must
// already be stored commits (ErrDanglingParent otherwise), so the DAG
// is acyclic by construction. Time is normalized to whole seconds UTC
// before encoding; identical inputs yield identical keys.
func (c *Commits) New(ctx context.Context, root Key, parents []Key, info CommitInfo) (Key, error) {
	for _, p := range parents {
		ok, err := c.obj.Mem(ctx, p)
		if err != nil {
			return Key{}, err
		}
		if !ok {
			return Key{}, fmt.Errorf("%w: %s", ErrDanglingParent, p)
		}
	}
	if info.Time.IsZero() {
		info.Time = time.Now()
	}
	info.Time = info.Time.UTC().Truncate(time.Second)
	return c.obj.putCommit(ctx, Commit{Root: root, Parents: parents, Info: info})
}

// Get retrieves a commit. Absence is (zero, false, nil).
func (c *Commits) Get(ctx context.Context, key Key) (Commit, bool, error) {
	return c.obj.commit(ctx, key)
}

// Ancestors walks parents transitively from head and returns the
// closure as an adjacency map (commit key to its parent keys). The
// head itself is included.
func (c *Commits) Ancestors(ctx context.Context, head Key) (map[Key][]Key, error) {
	seen := make(map[Key][]Key)
	queue := []Key{head}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if _, ok := seen[k]; ok {
			continue
		}
		commit, ok, err := c.obj.commit(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: commit %s", ErrUnknownKey, k)
		}
		seen[k] = commit.Parents
		queue = append(queue, commit.Parents...)
	}
	return seen, nil
}

// IsAncestor reports whether a is head itself or one of its ancestors.
func (c *Commits) IsAncestor(ctx context.Context, a, head Key) (bool, error) {
	seen := make(map[Key]struct{})
	queue := []Key{head}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if k == a {
			return true, nil
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		commit, ok, err := c.obj.commit(ctx, k)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("%w: commit %s", ErrUnknownKey, k)
		}
		queue = append(queue, commit.Parents...)
	}
	return false, nil
}

// CommitRecord pairs a commit with its key for history listings.
type CommitRecord struct {
	Key    Key
	Commit Commit
}

// History walks the first-parent chain from head, newest first, up to
// limit records (no limit when limit <= 0).
func (c *Commits) History(ctx context.Context, head Key, limit int) ([]CommitRecord, error) {
	var out []CommitRecord
	cur := head
	for !cur.IsZero() {
		if limit > 0 && len(out) >= limit {
			break
		}
		commit, ok, err := c.obj.commit(ctx, cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: commit %s", ErrUnknownKey, cur)
		}
		out = append(out, CommitRecord{Key: cur, Commit: commit})
		if len(commit.Parents) == 0 {
			break
		}
		cur = commit.Parents[0]
	}
	return out, nil
}
