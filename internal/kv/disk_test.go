package kv

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, _, err := OpenDisk(dir)
	require.NoError(t, err)
	ctx := context.Background()

	small := []byte("tiny")
	large := bytes.Repeat([]byte("commit 64\x00abcdef"), 512)
	smallKey := []byte{0x01, 0xab, 0xcd}
	largeKey := []byte{0x01, 0xef, 0x01}

	require.NoError(t, store.Put(ctx, smallKey, small))
	require.NoError(t, store.Put(ctx, largeKey, large))

	got, ok, err := store.Get(ctx, smallKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, small, got)

	got, ok, err = store.Get(ctx, largeKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, large, got)

	ok, err = store.Mem(ctx, largeKey)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.Mem(ctx, []byte{0x01, 0x00, 0x00})
	require.NoError(t, err)
	require.False(t, ok)

	// Objects are sharded by the first hex byte of the key.
	_, err = os.Stat(filepath.Join(dir, "objects", "01", "abcd"))
	require.NoError(t, err)

	// The large object landed compressed.
	raw, err := os.ReadFile(filepath.Join(dir, "objects", "01", "ef01"))
	require.NoError(t, err)
	require.Less(t, len(raw), len(large))
	require.True(t, bytes.HasPrefix(raw, zstdMagic))
}

func TestDiskStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, branches, err := OpenDisk(dir)
	require.NoError(t, err)
	key := []byte{0x01, 0x22, 0x33}
	largeKey := []byte{0x01, 0x22, 0x44}
	large := bytes.Repeat([]byte("node 4096\x00steps"), 512)
	require.NoError(t, store.Put(ctx, key, []byte("persisted")))
	require.NoError(t, store.Put(ctx, largeKey, large))
	require.NoError(t, branches.Update(ctx, "main", nil, []byte{0xbe, 0xef}))

	// A fresh handle has a cold cache, so reads hit the files,
	// including the decompression path.
	store2, branches2, err := OpenDisk(dir)
	require.NoError(t, err)

	got, ok, err := store2.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "persisted", string(got))

	got, ok, err = store2.Get(ctx, largeKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, large, got)

	head, ok, err := branches2.Read(ctx, "main")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0xbe, 0xef}, head)
}

func TestDiskStoreWriteOnce(t *testing.T) {
	dir := t.TempDir()
	store, _, err := OpenDisk(dir)
	require.NoError(t, err)
	ctx := context.Background()

	key := []byte{0x02, 0x44}
	require.NoError(t, store.Put(ctx, key, []byte("first")))
	require.NoError(t, store.Put(ctx, key, []byte("second")))

	got, _, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "first", string(got))
}

func TestDiskBranchesCAS(t *testing.T) {
	_, b, err := OpenDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Update(ctx, "main", nil, []byte{0x01}))
	require.ErrorIs(t, b.Update(ctx, "main", nil, []byte{0x02}), ErrHeadMoved)
	require.ErrorIs(t, b.Update(ctx, "main", []byte{0x99}, []byte{0x02}), ErrHeadMoved)
	require.NoError(t, b.Update(ctx, "main", []byte{0x01}, []byte{0x02}))

	head, ok, err := b.Read(ctx, "main")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x02}, head)

	require.NoError(t, b.Remove(ctx, "main"))
	require.NoError(t, b.Remove(ctx, "main"))
	_, ok, err = b.Read(ctx, "main")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDiskBranchesSanitizeNames(t *testing.T) {
	dir := t.TempDir()
	_, b, err := OpenDisk(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Update(ctx, "feature:wip", nil, []byte{0x0a}))

	// The colon never reaches the filesystem.
	_, err = os.Stat(filepath.Join(dir, "refs", "feature__wip"))
	require.NoError(t, err)

	head, ok, err := b.Read(ctx, "feature:wip")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x0a}, head)

	names, err := b.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"feature:wip"}, names)
}
