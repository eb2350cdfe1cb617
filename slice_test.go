package ramus

import (
	"bytes"
	"context"
	"testing"

	"github.com/ramusdb/ramus/internal/kv"
	"github.com/stretchr/testify/require"
)

func TestSliceExportImportRoundTrip(t *testing.T) {
	src := testRepo(t)
	ctx := context.Background()
	main := src.Branch("main")
	side := src.Branch("side")

	mustSet(t, main, "a/one", "1")
	mh := mustSet(t, main, "a/two", "2")
	sh := mustSet(t, side, "other", "3")

	s, err := src.Export(ctx, []Key{mh, sh}, nil)
	require.NoError(t, err)
	require.Equal(t, []Key{mh, sh}, s.Heads())
	require.NotZero(t, s.Len())

	var buf bytes.Buffer
	require.NoError(t, s.Encode(&buf))
	decoded, err := DecodeSlice(&buf)
	require.NoError(t, err)
	require.Equal(t, s.Heads(), decoded.Heads())
	require.Equal(t, s.Len(), decoded.Len())

	dst := testRepo(t)
	require.NoError(t, dst.Import(ctx, decoded))

	// Importing moves objects only; heads are bound explicitly.
	names, err := dst.Branches().List(ctx)
	require.NoError(t, err)
	require.Empty(t, names)

	_, err = dst.Branches().Update(ctx, "main", mh)
	require.NoError(t, err)
	_, err = dst.Branches().Update(ctx, "side", sh)
	require.NoError(t, err)

	require.Equal(t, "1", mustGet(t, dst.Branch("main"), "a/one"))
	require.Equal(t, "2", mustGet(t, dst.Branch("main"), "a/two"))
	require.Equal(t, "3", mustGet(t, dst.Branch("side"), "other"))

	recs, err := dst.Branch("main").History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestSliceDeltaExport(t *testing.T) {
	src := testRepo(t)
	ctx := context.Background()
	main := src.Branch("main")

	c1 := mustSet(t, main, "base", "b")
	c2 := mustSet(t, main, "extra", "e")

	full, err := src.Export(ctx, []Key{c2}, nil)
	require.NoError(t, err)
	delta, err := src.Export(ctx, []Key{c2}, []Key{c1})
	require.NoError(t, err)
	require.Less(t, delta.Len(), full.Len())

	// A receiver that has c1 can complete c2 from the delta alone.
	dst := testRepo(t)
	first, err := src.Export(ctx, []Key{c1}, nil)
	require.NoError(t, err)
	require.NoError(t, dst.Import(ctx, first))
	require.NoError(t, dst.Import(ctx, delta))

	_, err = dst.Branches().Update(ctx, "main", c2)
	require.NoError(t, err)
	require.Equal(t, "b", mustGet(t, dst.Branch("main"), "base"))
	require.Equal(t, "e", mustGet(t, dst.Branch("main"), "extra"))
}

func TestSliceDeltaNeedsBase(t *testing.T) {
	src := testRepo(t)
	ctx := context.Background()
	main := src.Branch("main")

	c1 := mustSet(t, main, "base", "b")
	c2 := mustSet(t, main, "extra", "e")

	delta, err := src.Export(ctx, []Key{c2}, []Key{c1})
	require.NoError(t, err)

	// Without c1 the delta's commits dangle.
	empty := testRepo(t)
	err = empty.Import(ctx, delta)
	require.ErrorIs(t, err, ErrDanglingParent)
}

func TestSliceImportIdempotent(t *testing.T) {
	src := testRepo(t)
	ctx := context.Background()
	head := mustSet(t, src.Branch("main"), "k", "v")

	s, err := src.Export(ctx, []Key{head}, nil)
	require.NoError(t, err)

	store := kv.NewMem()
	dst, err := New(store, kv.NewMemBranches())
	require.NoError(t, err)

	require.NoError(t, dst.Import(ctx, s))
	stored := store.Len()
	require.NoError(t, dst.Import(ctx, s))
	require.Equal(t, stored, store.Len())
}

func TestSliceEmptyBetweenEqualHeads(t *testing.T) {
	src := testRepo(t)
	ctx := context.Background()
	head := mustSet(t, src.Branch("main"), "k", "v")

	s, err := src.Export(ctx, []Key{head}, []Key{head})
	require.NoError(t, err)
	require.Zero(t, s.Len())
	require.Equal(t, []Key{head}, s.Heads())

	var buf bytes.Buffer
	require.NoError(t, s.Encode(&buf))
	decoded, err := DecodeSlice(&buf)
	require.NoError(t, err)
	require.Zero(t, decoded.Len())

	require.NoError(t, testRepo(t).Import(ctx, decoded))
}

func TestSliceExportValidation(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	_, err := r.Export(ctx, nil, nil)
	require.ErrorIs(t, err, ErrInvalidSlice)

	node, err := r.Graph().Empty(ctx)
	require.NoError(t, err)
	_, err = r.Export(ctx, []Key{node}, nil)
	require.ErrorIs(t, err, ErrTypeMismatch)

	head := mustSet(t, r.Branch("main"), "k", "v")
	_, err = r.Export(ctx, []Key{head}, []Key{node})
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestNewSliceValidation(t *testing.T) {
	_, err := NewSlice(nil, nil)
	require.ErrorIs(t, err, ErrInvalidSlice)

	r := testRepo(t)
	node, err := r.Graph().Empty(context.Background())
	require.NoError(t, err)
	_, err = NewSlice([]Key{node}, nil)
	require.ErrorIs(t, err, ErrInvalidSlice)
}

func TestSliceDecodeRejectsGarbage(t *testing.T) {
	src := testRepo(t)
	ctx := context.Background()
	head := mustSet(t, src.Branch("main"), "k", "v")
	s, err := src.Export(ctx, []Key{head}, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, s.Encode(&buf))
	valid := buf.Bytes()

	_, err = DecodeSlice(bytes.NewReader([]byte("RS")))
	require.ErrorIs(t, err, ErrInvalidSlice)

	bad := append([]byte(nil), valid...)
	bad[0] = 'X'
	_, err = DecodeSlice(bytes.NewReader(bad))
	require.ErrorIs(t, err, ErrInvalidSlice)

	bad = append([]byte(nil), valid...)
	bad[4] = 9
	_, err = DecodeSlice(bytes.NewReader(bad))
	require.ErrorIs(t, err, ErrInvalidSlice)

	_, err = DecodeSlice(bytes.NewReader(valid[:8]))
	require.ErrorIs(t, err, ErrInvalidSlice)
}
