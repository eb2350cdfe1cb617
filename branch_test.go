package ramus

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBranchNameValidation(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	for _, name := range []string{"", ".", "..", "a/b", "a\x00b"} {
		_, _, err := r.Branches().Read(ctx, name)
		require.ErrorIs(t, err, ErrInvalidBranch, "read %q", name)

		_, err = r.Branches().Update(ctx, name, Key{})
		require.ErrorIs(t, err, ErrInvalidBranch, "update %q", name)

		err = r.Branches().Remove(ctx, name)
		require.ErrorIs(t, err, ErrInvalidBranch, "remove %q", name)

		_, err = r.Branches().Watch(ctx, name, nil)
		require.ErrorIs(t, err, ErrInvalidBranch, "watch %q", name)
	}

	// Dots inside a name are fine.
	_, _, err := r.Branches().Read(ctx, "release.1")
	require.NoError(t, err)
}

func TestBranchUpdateValidatesHead(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	node, err := r.Graph().Empty(ctx)
	require.NoError(t, err)
	_, err = r.Branches().Update(ctx, "main", node)
	require.ErrorIs(t, err, ErrTypeMismatch)

	ghost := newKey(KindCommit, bytes.Repeat([]byte{0x33}, len(node.Digest())))
	_, err = r.Branches().Update(ctx, "main", ghost)
	require.ErrorIs(t, err, ErrUnknownKey)

	_, ok, err := r.Branches().Read(ctx, "main")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBranchListAndRemove(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	mustSet(t, r.Branch("zeta"), "x", "1")
	mustSet(t, r.Branch("alpha"), "x", "1")

	names, err := r.Branches().List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "zeta"}, names)

	require.NoError(t, r.Branches().Remove(ctx, "alpha"))
	names, err = r.Branches().List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"zeta"}, names)

	_, ok, err := r.Branches().Read(ctx, "alpha")
	require.NoError(t, err)
	require.False(t, ok)

	// Removing again is a no-op.
	require.NoError(t, r.Branches().Remove(ctx, "alpha"))
}

func TestBranchWatchDeliversInOrder(t *testing.T) {
	r := testRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	main := r.Branch("main")

	ch, err := main.Watch(ctx, "")
	require.NoError(t, err)

	h1 := mustSet(t, main, "a", "1")
	h2 := mustSet(t, main, "b", "2")
	h3 := mustSet(t, main, "a", "3")

	for i, want := range []Key{h1, h2, h3} {
		n := recvNotification(t, ch)
		require.Equal(t, "main", n.Branch, "notification %d", i)
		require.Equal(t, want, n.Commit, "notification %d", i)
	}

	cancel()
	requireClosed(t, ch)
}

func TestBranchWatchFiltersSubtree(t *testing.T) {
	r := testRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	main := r.Branch("main")

	ch, err := main.Watch(ctx, "a")
	require.NoError(t, err)

	inA := mustSet(t, main, "a/x", "1")
	mustSet(t, main, "b/y", "2")
	// Rebinding identical bytes commits nothing at all.
	mustSet(t, main, "a/x", "1")
	outA, err := main.Remove(ctx, "a")
	require.NoError(t, err)

	n := recvNotification(t, ch)
	require.Equal(t, inA, n.Commit)
	require.Equal(t, Path{"a"}, n.Path)

	n = recvNotification(t, ch)
	require.Equal(t, outA, n.Commit)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected notification for %s", extra.Commit.Short())
	default:
	}
}

func TestBranchWatchBeforeCreate(t *testing.T) {
	r := testRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := r.Branches().Watch(ctx, "later", nil)
	require.NoError(t, err)

	head := mustSet(t, r.Branch("later"), "x", "1")
	n := recvNotification(t, ch)
	require.Equal(t, head, n.Commit)
}

func TestBranchRemoveClosesWatch(t *testing.T) {
	r := testRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	main := r.Branch("main")

	ch, err := main.Watch(ctx, "")
	require.NoError(t, err)

	mustSet(t, main, "x", "1")
	recvNotification(t, ch)

	require.NoError(t, r.Branches().Remove(ctx, "main"))
	requireClosed(t, ch)
}

func TestBranchConcurrentWritersConverge(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s := r.Branch("main")
			path := fmt.Sprintf("w/%d", id)
			if _, err := s.Set(ctx, path, []byte(fmt.Sprintf("%d", id))); err != nil {
				errs <- fmt.Errorf("writer %d: %w", id, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Every write survived the races: heads converged through merges.
	main := r.Branch("main")
	for i := 0; i < writers; i++ {
		require.Equal(t, fmt.Sprintf("%d", i), mustGet(t, main, fmt.Sprintf("w/%d", i)))
	}

	head, ok, err := main.Head(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, KindCommit, head.Kind())
}

func recvNotification(tb testing.TB, ch <-chan Notification) Notification {
	tb.Helper()
	select {
	case n, ok := <-ch:
		require.True(tb, ok, "watch stream closed early")
		return n
	case <-time.After(5 * time.Second):
		tb.Fatal("timed out waiting for notification")
		return Notification{}
	}
}

func requireClosed(tb testing.TB, ch <-chan Notification) {
	tb.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			tb.Fatal("watch stream still open")
		}
	}
}
