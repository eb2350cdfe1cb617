package kv

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

const compressMin = 128

// compressor wraps shared zstd coders for small-object storage.
// Objects below the threshold, or ones zstd cannot shrink, are stored
// raw; the zstd magic tells the two apart on read. Encoded objects
// begin with an ASCII kind name, so a raw object can never carry the
// magic.
type compressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCompressor() (*compressor, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &compressor{enc: enc, dec: dec}, nil
}

func (c *compressor) compress(data []byte) []byte {
	if len(data) < compressMin {
		return data
	}
	out := c.enc.EncodeAll(data, make([]byte, 0, len(data)))
	if len(out) >= len(data) {
		return data
	}
	return out
}

func (c *compressor) decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}
