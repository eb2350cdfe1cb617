package ramus

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyRoundTrip(t *testing.T) {
	digest := bytes.Repeat([]byte{0xab}, 20)
	k := newKey(KindNode, digest)

	require.Equal(t, KindNode, k.Kind())
	require.Equal(t, digest, k.Digest())
	require.Len(t, k.Bytes(), 21)
	require.Equal(t, byte(KindNode), k.Bytes()[0])

	parsed, err := ParseKey(k.String())
	require.NoError(t, err)
	require.Equal(t, k, parsed)

	fromBytes, err := KeyFromBytes(k.Bytes())
	require.NoError(t, err)
	require.Equal(t, k, fromBytes)
}

func TestKeyZero(t *testing.T) {
	var k Key
	require.True(t, k.IsZero())
	require.Nil(t, k.Bytes())
	require.Equal(t, "", k.String())
	require.Equal(t, "", k.Short())
}

func TestKeyShort(t *testing.T) {
	k := newKey(KindContents, bytes.Repeat([]byte{0x01}, 20))
	require.Len(t, k.Short(), 10)
	require.Equal(t, k.String()[:10], k.Short())
}

func TestParseKeyRejectsGarbage(t *testing.T) {
	_, err := ParseKey("not hex at all")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParseKey("ff")
	require.ErrorIs(t, err, ErrInvalidKey)

	// 0x07 is not a known kind tag.
	_, err = KeyFromBytes([]byte{0x07, 0x01, 0x02})
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = KeyFromBytes([]byte{0x01})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "contents", KindContents.String())
	require.Equal(t, "node", KindNode.String())
	require.Equal(t, "commit", KindCommit.String())
}
