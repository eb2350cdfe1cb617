package remote

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	blobs := map[string][]byte{
		"01aabb": []byte("contents one"),
		"02ccdd": []byte("a node"),
		"03eeff": {},
	}

	packed := packLayer(blobs)
	back, err := unpackLayer(packed)
	require.NoError(t, err)
	require.Equal(t, blobs, back)
}

func TestPackLayerIsDeterministic(t *testing.T) {
	blobs := map[string][]byte{
		"01zz": []byte("z"),
		"01aa": []byte("a"),
		"01mm": []byte("m"),
	}
	require.Equal(t, packLayer(blobs), packLayer(blobs))

	// Records are sorted by key, not map order.
	packed := packLayer(blobs)
	require.Less(t, strings.Index(string(packed), "01aa"), strings.Index(string(packed), "01zz"))
}

func TestUnpackLayerEmpty(t *testing.T) {
	back, err := unpackLayer(nil)
	require.NoError(t, err)
	require.Empty(t, back)
}

func TestUnpackLayerTruncated(t *testing.T) {
	packed := packLayer(map[string][]byte{"01abcd": []byte("payload bytes")})

	for _, cut := range []int{1, 3, len(packed) / 2, len(packed) - 1} {
		_, err := unpackLayer(packed[:cut])
		require.Error(t, err, "cut at %d", cut)
	}
}

func TestKeyPrefixSkipsKindTag(t *testing.T) {
	require.Equal(t, "ab", keyPrefix("01abcdef"))
	require.Equal(t, "ab", keyPrefix("03abcdef"))
	require.Equal(t, "00", keyPrefix("01"))
}

func TestGroupByPrefix(t *testing.T) {
	objects := map[string][]byte{
		"01ab11": []byte("x"),
		"02ab22": []byte("y"),
		"01cd33": []byte("z"),
	}
	byPrefix := groupByPrefix(objects)
	require.Len(t, byPrefix, 2)
	require.Len(t, byPrefix["ab"], 2)
	require.Len(t, byPrefix["cd"], 1)

	sizes := prefixSizes(byPrefix)
	require.Equal(t, int64(2), sizes["ab"])
	require.Equal(t, int64(1), sizes["cd"])

	collected := collectPrefixes([]string{"ab", "cd"}, byPrefix)
	require.Equal(t, objects, collected)
}

func TestPlanLayersPacksSmallPrefixesTogether(t *testing.T) {
	sizes := map[string]int64{
		"aa": 1 << 20,
		"bb": 1 << 20,
		"cc": 1 << 20,
	}
	layers := planLayers(sizes)
	require.Equal(t, [][]string{{"aa", "bb", "cc"}}, layers)
}

func TestPlanLayersSplitsLargePrefixes(t *testing.T) {
	sizes := map[string]int64{
		"aa": 6 << 20,
		"bb": 6 << 20,
	}
	layers := planLayers(sizes)
	require.Equal(t, [][]string{{"aa"}, {"bb"}}, layers)
}

func TestPlanLayersCombinesUndersizedLayer(t *testing.T) {
	// One tiny prefix followed by a huge one: closing at the soft
	// maximum would strand a sub-minimum layer, so they ride together.
	sizes := map[string]int64{
		"aa": 1 << 20,
		"bb": 11 << 20,
	}
	layers := planLayers(sizes)
	require.Equal(t, [][]string{{"aa", "bb"}}, layers)
}
