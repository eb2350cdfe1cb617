package ramus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ramusdb/ramus/internal/kv"
)

// Branches maps mutable branch names to commit keys. Updates are
// merge-aware and atomic: concurrent writers never lose commits, they
// converge through merges instead.
type Branches struct {
	kv      kv.Branches
	graph   *Graph
	commits *Commits
	merger  *merger
	log     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	hub *watchHub
}

func newBranches(backend kv.Branches, graph *Graph, commits *Commits, m *merger, log *slog.Logger) *Branches {
	return &Branches{
		kv:      backend,
		graph:   graph,
		commits: commits,
		merger:  m,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
		hub:     newWatchHub(),
	}
}

func checkBranch(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidBranch)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	}
	if strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	}
	return nil
}

// Read returns the branch head. A removed or never-created branch is
// (zero, false, nil).
func (b *Branches) Read(ctx context.Context, name string) (Key, bool, error) {
	if err := checkBranch(name); err != nil {
		return Key{}, false, err
	}
	return b.readHead(ctx, name)
}

func (b *Branches) readHead(ctx context.Context, name string) (Key, bool, error) {
	raw, ok, err := b.kv.Read(ctx, name)
	if err != nil {
		return Key{}, false, err
	}
	if !ok {
		return Key{}, false, nil
	}
	key, err := KeyFromBytes(raw)
	if err != nil {
		return Key{}, false, fmt.Errorf("branch %q: %w", name, err)
	}
	if key.Kind() != KindCommit {
		return Key{}, false, fmt.Errorf("branch %q: %w: %s head", name, ErrTypeMismatch, key.Kind())
	}
	return key, true, nil
}

// Update moves the branch to head and returns the resulting head. An
// absent branch is bound directly. When the branch already points at a
// commit that does not contain head, the two are merged and the branch
// advances to the merge commit; a *ConflictError leaves the branch
// untouched. The returned key therefore differs from head exactly when
// a merge happened or the branch already contained head.
func (b *Branches) Update(ctx context.Context, name string, head Key) (Key, error) {
	if err := checkBranch(name); err != nil {
		return Key{}, err
	}
	if head.Kind() != KindCommit {
		return Key{}, fmt.Errorf("%w: %s key as branch head", ErrTypeMismatch, head.Kind())
	}
	if _, ok, err := b.commits.Get(ctx, head); err != nil {
		return Key{}, err
	} else if !ok {
		return Key{}, fmt.Errorf("%w: commit %s", ErrUnknownKey, head)
	}

	lock := b.branchLock(name)
	lock.Lock()
	defer lock.Unlock()

	for {
		cur, ok, err := b.readHead(ctx, name)
		if err != nil {
			return Key{}, err
		}

		target := head
		if ok {
			if cur == head {
				return cur, nil
			}
			target, err = b.merger.Merge(ctx, cur, head)
			if err != nil {
				return Key{}, err
			}
			if target == cur {
				return cur, nil
			}
		}

		var old []byte
		if ok {
			old = cur.Bytes()
		}
		if err := b.kv.Update(ctx, name, old, target.Bytes()); err != nil {
			if errors.Is(err, kv.ErrHeadMoved) {
				b.log.DebugContext(ctx, "branch head moved, retrying",
					slog.String("branch", name))
				continue
			}
			return Key{}, err
		}
		b.log.DebugContext(ctx, "branch updated",
			slog.String("branch", name),
			slog.String("head", target.String()))
		b.notify(ctx, name, cur, target)
		return target, nil
	}
}

// Remove deletes the branch and ends its watch streams. Removing an
// absent branch is a no-op.
func (b *Branches) Remove(ctx context.Context, name string) error {
	if err := checkBranch(name); err != nil {
		return err
	}
	lock := b.branchLock(name)
	lock.Lock()
	defer lock.Unlock()

	if err := b.kv.Remove(ctx, name); err != nil {
		return err
	}
	b.hub.closeBranch(name)
	return nil
}

// List returns all branch names in lexical order.
func (b *Branches) List(ctx context.Context) ([]string, error) {
	return b.kv.List(ctx)
}

// Watch streams a notification for every update of name whose commit
// changes the subtree at path, in commit order, without drops. The
// channel closes when ctx is canceled or the branch is removed.
// Watching a branch that does not exist yet is allowed; the stream
// starts delivering once the branch is created.
func (b *Branches) Watch(ctx context.Context, name string, path Path) (<-chan Notification, error) {
	if err := checkBranch(name); err != nil {
		return nil, err
	}
	w := newWatcher(name, path)
	b.hub.add(w)
	go func() {
		<-ctx.Done()
		b.hub.remove(w)
		w.close()
	}()
	return w.ch, nil
}

// notify runs inside the branch critical section so each watcher sees
// updates in the order the heads were swapped in.
func (b *Branches) notify(ctx context.Context, name string, old, new Key) {
	watchers := b.hub.branch(name)
	if len(watchers) == 0 {
		return
	}
	for _, w := range watchers {
		changed, err := b.subtreeChanged(ctx, old, new, w.path)
		if err != nil {
			b.log.WarnContext(ctx, "watch filter failed, notifying anyway",
				slog.String("branch", name),
				slog.String("path", w.path.String()),
				slog.Any("error", err))
			changed = true
		}
		if !changed {
			continue
		}
		w.send(Notification{Branch: name, Path: w.path, Commit: new})
	}
}

// subtreeChanged compares what path binds to under the two commits.
// Equal keys short-circuit without loading, so an update that rewrites
// an unrelated subtree costs one entry resolution per watcher.
func (b *Branches) subtreeChanged(ctx context.Context, old, new Key, path Path) (bool, error) {
	oldRoot, err := b.root(ctx, old)
	if err != nil {
		return false, err
	}
	newRoot, err := b.root(ctx, new)
	if err != nil {
		return false, err
	}
	if oldRoot == newRoot {
		return false, nil
	}
	oe, oOK, err := b.graph.ReadEntry(ctx, oldRoot, path)
	if err != nil {
		return false, err
	}
	ne, nOK, err := b.graph.ReadEntry(ctx, newRoot, path)
	if err != nil {
		return false, err
	}
	if !oOK && !nOK {
		return false, nil
	}
	if oOK != nOK {
		return true, nil
	}
	return oe.Key != ne.Key || oe.Meta != ne.Meta, nil
}

func (b *Branches) root(ctx context.Context, commit Key) (Key, error) {
	if commit.IsZero() {
		return Key{}, nil
	}
	c, ok, err := b.commits.Get(ctx, commit)
	if err != nil {
		return Key{}, err
	}
	if !ok {
		return Key{}, fmt.Errorf("%w: commit %s", ErrUnknownKey, commit)
	}
	return c.Root, nil
}

func (b *Branches) branchLock(name string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		b.locks[name] = lock
	}
	return lock
}
