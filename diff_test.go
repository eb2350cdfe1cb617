package ramus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffAddRemoveModify(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()

	a := addLeaf(t, g, Key{}, "a", "1")
	a = addLeaf(t, g, a, "dir/x", "2")
	a = addLeaf(t, g, a, "gone", "3")

	b := addLeaf(t, g, a, "a", "changed")
	b, err := g.RemoveContents(ctx, b, ParsePath("gone"))
	require.NoError(t, err)
	b = addLeaf(t, g, b, "new", "4")

	changes, err := g.Diff(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	require.Equal(t, ChangeModified, changes[0].Kind)
	require.Equal(t, Path{"a"}, changes[0].Path)
	require.False(t, changes[0].Old.Key.IsZero())
	require.False(t, changes[0].New.Key.IsZero())
	require.NotEqual(t, changes[0].Old.Key, changes[0].New.Key)

	require.Equal(t, ChangeRemoved, changes[1].Kind)
	require.Equal(t, Path{"gone"}, changes[1].Path)
	require.True(t, changes[1].New.Key.IsZero())

	require.Equal(t, ChangeAdded, changes[2].Kind)
	require.Equal(t, Path{"new"}, changes[2].Path)
	require.True(t, changes[2].Old.Key.IsZero())
}

func TestDiffSkipsSharedSubtrees(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()

	a := addLeaf(t, g, Key{}, "big/one", "1")
	a = addLeaf(t, g, a, "big/two", "2")
	a = addLeaf(t, g, a, "dir/deep/file", "old")

	b := addLeaf(t, g, a, "dir/deep/file", "new")

	changes, err := g.Diff(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, ChangeModified, changes[0].Kind)
	require.Equal(t, Path{"dir", "deep", "file"}, changes[0].Path)
}

func TestDiffKindFlip(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()

	a := addLeaf(t, g, Key{}, "thing", "flat")

	b, err := g.RemoveContents(ctx, a, ParsePath("thing"))
	require.NoError(t, err)
	b = addLeaf(t, g, b, "thing/sub", "nested")

	changes, err := g.Diff(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	require.Equal(t, ChangeRemoved, changes[0].Kind)
	require.Equal(t, Path{"thing"}, changes[0].Path)
	require.Equal(t, ChangeAdded, changes[1].Kind)
	require.Equal(t, Path{"thing", "sub"}, changes[1].Path)
}

func TestDiffAgainstEmpty(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()

	root := addLeaf(t, g, Key{}, "x", "1")
	root = addLeaf(t, g, root, "d/y", "2")

	changes, err := g.Diff(ctx, Key{}, root)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	for _, c := range changes {
		require.Equal(t, ChangeAdded, c.Kind)
	}

	changes, err = g.Diff(ctx, root, Key{})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	for _, c := range changes {
		require.Equal(t, ChangeRemoved, c.Kind)
	}

	changes, err = g.Diff(ctx, root, root)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestDiffMetaOnlyChange(t *testing.T) {
	r := testRepo(t)
	g := r.Graph()
	ctx := context.Background()

	a, err := g.AddContents(ctx, Key{}, ParsePath("f"), Value{Meta: 0o644, Data: []byte("same")})
	require.NoError(t, err)
	b, err := g.AddContents(ctx, a, ParsePath("f"), Value{Meta: 0o755, Data: []byte("same")})
	require.NoError(t, err)

	changes, err := g.Diff(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, ChangeModified, changes[0].Kind)
	require.Equal(t, Meta(0o644), changes[0].Old.Meta)
	require.Equal(t, Meta(0o755), changes[0].New.Meta)
	require.Equal(t, changes[0].Old.Key, changes[0].New.Key)
}

func TestChangeKindString(t *testing.T) {
	require.Equal(t, "added", ChangeAdded.String())
	require.Equal(t, "removed", ChangeRemoved.String())
	require.Equal(t, "modified", ChangeModified.String())
	require.Equal(t, "unknown", ChangeKind(0).String())
}
