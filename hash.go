package ramus

import (
	"fmt"

	"github.com/multiformats/go-multihash"
)

// Hasher produces the fixed-length digest behind every Key.
// Implementations must be deterministic: identical input bytes yield
// identical digests in every store.
type Hasher interface {
	// Sum digests data. len(Sum(x)) == Size() for all x.
	Sum(data []byte) []byte
	// Size is the digest length in bytes.
	Size() int
	// Name identifies the hash function, e.g. "sha1" or "sha2-256".
	Name() string
}

// DefaultHash is the hash function used when none is configured.
// 160-bit SHA-1, which keeps keys short; pick "sha2-256" via WithHash
// where collision resistance against adversarial input matters.
const DefaultHash = "sha1"

type mhHasher struct {
	name string
	code uint64
	size int
}

// NewHasher returns a Hasher for a named multihash function such as
// "sha1", "sha2-256" or "blake2b-256".
func NewHasher(name string) (Hasher, error) {
	code, ok := multihash.Names[name]
	if !ok {
		return nil, fmt.Errorf("unknown hash function %q", name)
	}
	size, ok := multihash.DefaultLengths[code]
	if !ok {
		return nil, fmt.Errorf("hash function %q has no fixed length", name)
	}
	return &mhHasher{name: name, code: code, size: size}, nil
}

func defaultHasher() Hasher {
	h, err := NewHasher(DefaultHash)
	if err != nil {
		panic(err)
	}
	return h
}

func (h *mhHasher) Sum(data []byte) []byte {
	mh, err := multihash.Sum(data, h.code, -1)
	if err != nil {
		panic(fmt.Sprintf("multihash %s: %v", h.name, err))
	}
	dec, err := multihash.Decode(mh)
	if err != nil {
		panic(fmt.Sprintf("multihash %s: %v", h.name, err))
	}
	return dec.Digest
}

func (h *mhHasher) Size() int    { return h.size }
func (h *mhHasher) Name() string { return h.name }
