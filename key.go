package ramus

import (
	"encoding/hex"
	"fmt"
)

// Kind discriminates the three immutable object kinds.
type Kind uint8

const (
	KindContents Kind = 1
	KindNode     Kind = 2
	KindCommit   Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindContents:
		return "contents"
	case KindNode:
		return "node"
	case KindCommit:
		return "commit"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool { return k >= KindContents && k <= KindCommit }

func kindFromHeader(name string) (Kind, bool) {
	switch name {
	case "contents":
		return KindContents, true
	case "node":
		return KindNode, true
	case "commit":
		return KindCommit, true
	default:
		return 0, false
	}
}

// Key identifies an immutable object: a one-byte kind tag followed by a
// fixed-length digest over the object's serialized bytes. Identical
// bytes always yield identical Keys, so Keys are the sole means of
// referencing objects. The zero Key means "absent".
type Key struct {
	kind   Kind
	digest string
}

func newKey(kind Kind, digest []byte) Key {
	return Key{kind: kind, digest: string(digest)}
}

// Kind returns the object kind encoded in the tag byte.
func (k Key) Kind() Kind { return k.kind }

// Digest returns a copy of the digest bytes.
func (k Key) Digest() []byte { return []byte(k.digest) }

// IsZero reports whether k is the absent key.
func (k Key) IsZero() bool { return k.kind == 0 && k.digest == "" }

// Bytes returns the encoded form: tag byte followed by digest bytes.
// The zero Key encodes as nil.
func (k Key) Bytes() []byte {
	if k.IsZero() {
		return nil
	}
	b := make([]byte, 1+len(k.digest))
	b[0] = byte(k.kind)
	copy(b[1:], k.digest)
	return b
}

// String returns the canonical lower-case hex form of Bytes. It is the
// round-trippable representation used at CLI and wire boundaries.
func (k Key) String() string {
	if k.IsZero() {
		return ""
	}
	return hex.EncodeToString(k.Bytes())
}

// Short returns an abbreviated hex form for logs and messages.
func (k Key) Short() string {
	s := k.String()
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

// ParseKey decodes the hex form produced by String.
func ParseKey(s string) (Key, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q is not hex", ErrInvalidKey, s)
	}
	return KeyFromBytes(b)
}

// KeyFromBytes decodes the tag+digest encoding produced by Bytes.
// Digest length is validated against the configured hasher when the key
// is first used against a store.
func KeyFromBytes(b []byte) (Key, error) {
	if len(b) < 2 {
		return Key{}, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(b))
	}
	kind := Kind(b[0])
	if !kind.valid() {
		return Key{}, fmt.Errorf("%w: unknown kind tag %d", ErrInvalidKey, b[0])
	}
	return newKey(kind, b[1:]), nil
}
