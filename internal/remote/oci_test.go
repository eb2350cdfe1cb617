package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/ramusdb/ramus"
)

func TestTagFor(t *testing.T) {
	cases := map[string]string{
		"main":        "main",
		"release.1":   "release.1",
		"feature/wip": "feature-wip",
		"a b\tc":      "a-b-c",
		".hidden":     "_.hidden",
		"-lead":       "_-lead",
		"":            "_",
	}
	for branch, want := range cases {
		require.Equal(t, want, tagFor(branch), "branch %q", branch)
	}

	long := tagFor(strings.Repeat("x", 300))
	require.Len(t, long, 127)
}

func TestBlobLayer(t *testing.T) {
	data := bytes.Repeat([]byte("layer payload "), 256)
	layer := newBlobLayer(data)

	mt, err := layer.MediaType()
	require.NoError(t, err)
	require.Equal(t, types.OCILayerZStd, mt)

	rc, err := layer.Compressed()
	require.NoError(t, err)
	comp, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Less(t, len(comp), len(data))

	size, err := layer.Size()
	require.NoError(t, err)
	require.Equal(t, int64(len(comp)), size)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(comp, nil)
	require.NoError(t, err)
	require.Equal(t, data, plain)

	rc, err = layer.Uncompressed()
	require.NoError(t, err)
	plain, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, data, plain)

	digest, err := layer.Digest()
	require.NoError(t, err)
	diffID, err := layer.DiffID()
	require.NoError(t, err)
	require.Equal(t, "sha256", digest.Algorithm)
	require.NotEqual(t, digest, diffID, "digest covers the compressed stream, diff id the raw one")
}

func TestBuildImageCarriesHead(t *testing.T) {
	head, err := ramus.ParseKey("03" + strings.Repeat("ab", 20))
	require.NoError(t, err)

	img, err := buildImage(nil, head)
	require.NoError(t, err)
	got, err := headOf(img)
	require.NoError(t, err)
	require.Equal(t, head, got)

	layer := newBlobLayer(packLayer(map[string][]byte{"01aabb": []byte("blob")}))
	img, err = buildImage([]v1.Layer{layer}, head)
	require.NoError(t, err)
	got, err = headOf(img)
	require.NoError(t, err)
	require.Equal(t, head, got)

	layers, err := img.Layers()
	require.NoError(t, err)
	require.Len(t, layers, 1)
}

func TestHeadOfRejectsUnlabeledImage(t *testing.T) {
	_, err := headOf(empty.Image)
	require.ErrorContains(t, err, headLabel)
}

func TestTransportErrorClassification(t *testing.T) {
	notFound := &transport.Error{StatusCode: 404}
	require.True(t, isNotFound(notFound))
	require.True(t, permanent(notFound))
	require.True(t, isNotFound(fmt.Errorf("fetch manifest: %w", notFound)))

	require.False(t, isNotFound(&transport.Error{StatusCode: 500}))
	require.False(t, permanent(&transport.Error{StatusCode: 500}))
	require.False(t, permanent(&transport.Error{StatusCode: 429}))
	require.True(t, permanent(&transport.Error{StatusCode: 403}))

	require.False(t, isNotFound(io.EOF))
	require.False(t, permanent(io.EOF))
}

func TestRetryReturnsFirstSuccess(t *testing.T) {
	calls := 0
	v, err := retry(context.Background(), 3, func() (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, 1, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	denied := &transport.Error{StatusCode: 403}
	calls := 0
	_, err := retry(context.Background(), 3, func() (int, error) {
		calls++
		return 0, denied
	})
	require.ErrorIs(t, err, denied)
	require.Equal(t, 1, calls, "a 4xx is not retried")
}

func TestRetryExhaustsAttempts(t *testing.T) {
	boom := &transport.Error{StatusCode: 503}
	calls := 0
	_, err := retry(context.Background(), 1, func() (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := retry(ctx, 3, func() (int, error) {
		calls++
		return 0, &transport.Error{StatusCode: 503}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls, "cancellation wins over the backoff sleep")
}
