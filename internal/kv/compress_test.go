package kv

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressorSmallStaysRaw(t *testing.T) {
	c, err := newCompressor()
	require.NoError(t, err)

	data := []byte("contents 5\x00small")
	out := c.compress(data)
	require.Equal(t, data, out)
	require.False(t, bytes.HasPrefix(out, zstdMagic))

	back, err := c.decompress(out)
	require.NoError(t, err)
	require.Equal(t, data, back)
}

func TestCompressorRoundTrip(t *testing.T) {
	c, err := newCompressor()
	require.NoError(t, err)

	data := bytes.Repeat([]byte("node 512\x00abcdefgh"), 256)
	out := c.compress(data)
	require.Less(t, len(out), len(data))
	require.True(t, bytes.HasPrefix(out, zstdMagic))

	back, err := c.decompress(out)
	require.NoError(t, err)
	require.Equal(t, data, back)
}

func TestCompressorIncompressibleStaysRaw(t *testing.T) {
	c, err := newCompressor()
	require.NoError(t, err)

	data := make([]byte, 512)
	_, err = rand.Read(data)
	require.NoError(t, err)

	out := c.compress(data)
	require.Equal(t, data, out)

	back, err := c.decompress(out)
	require.NoError(t, err)
	require.Equal(t, data, back)
}

func TestCompressorRejectsCorruptStream(t *testing.T) {
	c, err := newCompressor()
	require.NoError(t, err)

	bad := append(append([]byte(nil), zstdMagic...), 0xde, 0xad, 0xbe, 0xef)
	_, err = c.decompress(bad)
	require.Error(t, err)
}
