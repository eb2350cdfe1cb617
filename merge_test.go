package ramus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// forkAt binds a new branch to the given head and returns its store.
func forkAt(tb testing.TB, r *Repo, name string, head Key) *Store {
	tb.Helper()
	_, err := r.Branches().Update(context.Background(), name, head)
	require.NoError(tb, err)
	return r.Branch(name)
}

func TestMergeFastForward(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	main := r.Branch("main")

	c1 := mustSet(t, main, "a", "1")
	fork := forkAt(t, r, "fork", c1)
	c2 := mustSet(t, main, "b", "2")

	// The fork is behind: merging the newer head fast-forwards, no
	// merge commit.
	got, err := fork.Merge(ctx, c2)
	require.NoError(t, err)
	require.Equal(t, c2, got)

	// Merging an ancestor into the newer branch changes nothing.
	got, err = main.Merge(ctx, c1)
	require.NoError(t, err)
	require.Equal(t, c2, got)

	// Merging the current head is a no-op too.
	got, err = main.Merge(ctx, c2)
	require.NoError(t, err)
	require.Equal(t, c2, got)
}

func TestMergeDisjointEdits(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	main := r.Branch("main")

	c1 := mustSet(t, main, "shared", "base")
	fork := forkAt(t, r, "fork", c1)

	c2 := mustSet(t, main, "ours", "1")
	c3 := mustSet(t, fork, "theirs", "2")

	merged, err := main.Merge(ctx, c3)
	require.NoError(t, err)
	require.NotEqual(t, c2, merged)
	require.NotEqual(t, c3, merged)

	mc, ok, err := r.Commits().Get(ctx, merged)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []Key{c2, c3}, mc.Parents)

	for path, want := range map[string]string{
		"shared": "base",
		"ours":   "1",
		"theirs": "2",
	} {
		require.Equal(t, want, mustGet(t, main, path))
	}

	// The fork branch itself has not moved.
	head, ok, err := fork.Head(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c3, head)
}

func TestMergeUnrelatedHistories(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	main := r.Branch("main")
	other := r.Branch("other")

	mustSet(t, main, "a", "1")
	oh := mustSet(t, other, "b", "2")

	merged, err := main.Merge(ctx, oh)
	require.NoError(t, err)

	mc, ok, err := r.Commits().Get(ctx, merged)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, mc.Parents, 2)
	require.Equal(t, "1", mustGet(t, main, "a"))
	require.Equal(t, "2", mustGet(t, main, "b"))
}

func TestMergeConflictLeavesBranchAlone(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	main := r.Branch("main")

	c1 := mustSet(t, main, "dir/x", "base")
	fork := forkAt(t, r, "fork", c1)

	c2 := mustSet(t, main, "dir/x", "ours")
	c3 := mustSet(t, fork, "dir/x", "theirs")

	_, err := main.Merge(ctx, c3)
	require.ErrorIs(t, err, ErrMergeConflict)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, Path{"dir", "x"}, conflict.Path)
	require.False(t, conflict.Left.IsZero())
	require.False(t, conflict.Right.IsZero())
	require.NotEqual(t, conflict.Left, conflict.Right)

	head, ok, err := main.Head(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c2, head)
	require.Equal(t, "ours", mustGet(t, main, "dir/x"))
}

func TestMergeModifyAgainstRemove(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	main := r.Branch("main")

	c1 := mustSet(t, main, "f", "v")
	fork := forkAt(t, r, "fork", c1)

	_, err := main.Remove(ctx, "f")
	require.NoError(t, err)
	c3 := mustSet(t, fork, "f", "w")

	_, err = main.Merge(ctx, c3)
	require.ErrorIs(t, err, ErrMergeConflict)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, Path{"f"}, conflict.Path)
	require.True(t, conflict.Left.IsZero())
	require.False(t, conflict.Right.IsZero())
}

func TestMergeTextResolvesDivergedContents(t *testing.T) {
	r := testRepo(t, WithMerge(MergeText))
	ctx := context.Background()
	main := r.Branch("main")

	c1 := mustSet(t, main, "doc", "hello world")
	fork := forkAt(t, r, "fork", c1)

	mustSet(t, main, "doc", "hello brave world")
	c3 := mustSet(t, fork, "doc", "hello world!")

	_, err := main.Merge(ctx, c3)
	require.NoError(t, err)
	require.Equal(t, "hello brave world!", mustGet(t, main, "doc"))
}

func TestMergeJSONResolvesDivergedContents(t *testing.T) {
	r := testRepo(t, WithMerge(MergeJSON))
	ctx := context.Background()
	main := r.Branch("main")

	c1 := mustSet(t, main, "cfg", `{"a":1}`)
	fork := forkAt(t, r, "fork", c1)

	mustSet(t, main, "cfg", `{"a":1,"b":2}`)
	c3 := mustSet(t, fork, "cfg", `{"a":1,"c":3}`)

	_, err := main.Merge(ctx, c3)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1,"b":2,"c":3}`, mustGet(t, main, "cfg"))
}

func TestMergeFuncDropAndArguments(t *testing.T) {
	var (
		gotPath  Path
		baseNil  bool
		gotOurs  string
		gotTheir string
	)
	drop := func(ctx context.Context, path Path, ours, theirs, base *Value) (*Value, error) {
		gotPath = path
		baseNil = base == nil
		gotOurs = string(ours.Data)
		gotTheir = string(theirs.Data)
		return nil, nil
	}

	r := testRepo(t, WithMerge(drop))
	ctx := context.Background()
	main := r.Branch("main")

	c1 := mustSet(t, main, "keep", "stays")
	fork := forkAt(t, r, "fork", c1)

	// Added differently on both sides, so base is nil.
	mustSet(t, main, "clash", "ours")
	c3 := mustSet(t, fork, "clash", "theirs")

	_, err := main.Merge(ctx, c3)
	require.NoError(t, err)

	require.Equal(t, Path{"clash"}, gotPath)
	require.True(t, baseNil)
	require.Equal(t, "ours", gotOurs)
	require.Equal(t, "theirs", gotTheir)

	// The dropped entry is gone; untouched entries survive.
	ok, err := main.Mem(ctx, "clash")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "stays", mustGet(t, main, "keep"))
}

func TestMergeCrissCrossConverges(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	a := r.Branch("a")

	c0 := mustSet(t, a, "seed", "s")
	b := forkAt(t, r, "b", c0)

	a1 := mustSet(t, a, "a", "1")
	b1 := mustSet(t, b, "b", "2")

	// Each branch merges the other's first commit, producing the
	// criss-cross: two merge commits covering the same pair.
	ma, err := a.Merge(ctx, b1)
	require.NoError(t, err)
	mb, err := b.Merge(ctx, a1)
	require.NoError(t, err)
	require.NotEqual(t, ma, mb)

	// Merging the two merge heads has two lowest common ancestors,
	// folded into a virtual base. No conflict, nothing lost.
	final, err := a.Merge(ctx, mb)
	require.NoError(t, err)

	fc, ok, err := r.Commits().Get(ctx, final)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []Key{ma, mb}, fc.Parents)

	require.Equal(t, "s", mustGet(t, a, "seed"))
	require.Equal(t, "1", mustGet(t, a, "a"))
	require.Equal(t, "2", mustGet(t, a, "b"))
}

func TestMergeMetaDivergence(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	main := r.Branch("main")

	c1 := mustSet(t, main, "bin", "payload")
	fork := forkAt(t, r, "fork", c1)

	// Only one side touches the mode: it wins without a MergeFunc.
	_, err := main.SetValue(ctx, "bin", Value{Meta: 0o755, Data: []byte("payload")})
	require.NoError(t, err)
	c3 := mustSet(t, fork, "extra", "x")

	_, err = main.Merge(ctx, c3)
	require.NoError(t, err)

	v, ok, err := main.GetValue(ctx, "bin")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Meta(0o755), v.Meta)
}
