package remote

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// Registry layers want to be a few megabytes: small enough to retry
// cheaply, large enough that a push is not thousands of round trips.
const (
	layerMinSize = 2 << 20
	layerSoftMax = 10 << 20
)

// groupByPrefix buckets encoded objects by the first digest byte of
// their key, so related keys land in the same layer. Keys are the
// canonical hex form; the leading two characters are the kind tag and
// carry almost no entropy, hence the offset.
func groupByPrefix(objects map[string][]byte) map[string]map[string][]byte {
	byPrefix := make(map[string]map[string][]byte)
	for key, data := range objects {
		p := keyPrefix(key)
		if byPrefix[p] == nil {
			byPrefix[p] = make(map[string][]byte)
		}
		byPrefix[p][key] = data
	}
	return byPrefix
}

func keyPrefix(key string) string {
	if len(key) >= 4 {
		return key[2:4]
	}
	return "00"
}

func prefixSizes(byPrefix map[string]map[string][]byte) map[string]int64 {
	sizes := make(map[string]int64, len(byPrefix))
	for p, blobs := range byPrefix {
		var total int64
		for _, data := range blobs {
			total += int64(len(data))
		}
		sizes[p] = total
	}
	return sizes
}

// planLayers assigns prefixes to layers greedily in prefix order,
// closing a layer once adding the next prefix would push it past the
// soft maximum, unless the layer is still under the minimum and
// combining stays within twice the maximum.
func planLayers(sizes map[string]int64) [][]string {
	prefixes := make([]string, 0, len(sizes))
	for p := range sizes {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var layers [][]string
	var current []string
	var size int64
	for _, p := range prefixes {
		next := size + sizes[p]
		switch {
		case len(current) == 0:
			current, size = []string{p}, sizes[p]
		case next <= layerSoftMax:
			current, size = append(current, p), next
		case size < layerMinSize && next <= 2*layerSoftMax:
			current, size = append(current, p), next
		default:
			layers = append(layers, current)
			current, size = []string{p}, sizes[p]
		}
	}
	if len(current) > 0 {
		layers = append(layers, current)
	}
	return layers
}

func collectPrefixes(prefixes []string, byPrefix map[string]map[string][]byte) map[string][]byte {
	blobs := make(map[string][]byte)
	for _, p := range prefixes {
		for key, data := range byPrefix[p] {
			blobs[key] = data
		}
	}
	return blobs
}

// packLayer serializes blobs sorted by key. Each record is a u16 key
// length, the key hex, a u64 data length and the data, so the format
// is independent of the configured digest size.
func packLayer(blobs map[string][]byte) []byte {
	keys := make([]string, 0, len(blobs))
	for k := range blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var u16 [2]byte
	var u64 [8]byte
	for _, key := range keys {
		binary.BigEndian.PutUint16(u16[:], uint16(len(key)))
		buf.Write(u16[:])
		buf.WriteString(key)
		binary.BigEndian.PutUint64(u64[:], uint64(len(blobs[key])))
		buf.Write(u64[:])
		buf.Write(blobs[key])
	}
	return buf.Bytes()
}

func unpackLayer(data []byte) (map[string][]byte, error) {
	blobs := make(map[string][]byte)
	r := bytes.NewReader(data)
	var u16 [2]byte
	var u64 [8]byte
	for r.Len() > 0 {
		if _, err := io.ReadFull(r, u16[:]); err != nil {
			return nil, fmt.Errorf("layer key length: %w", err)
		}
		key := make([]byte, binary.BigEndian.Uint16(u16[:]))
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("layer key: %w", err)
		}
		if _, err := io.ReadFull(r, u64[:]); err != nil {
			return nil, fmt.Errorf("layer data length: %w", err)
		}
		n := binary.BigEndian.Uint64(u64[:])
		if n > uint64(r.Len()) {
			return nil, fmt.Errorf("layer data truncated at key %s", key)
		}
		blob := make([]byte, n)
		if _, err := io.ReadFull(r, blob); err != nil {
			return nil, fmt.Errorf("layer data: %w", err)
		}
		blobs[string(key)] = blob
	}
	return blobs, nil
}
