package ramus

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ramusdb/ramus/internal/kv"
)

// Objects is the content-addressed object store. It wraps a kv backend
// with the object envelope codec and key/kind verification. Objects are
// append-only: there is no delete.
type Objects struct {
	kv     kv.Store
	hasher Hasher
}

func newObjects(backend kv.Store, h Hasher) *Objects {
	return &Objects{kv: backend, hasher: h}
}

// KeySize is the length in bytes of an encoded key under the configured
// hasher: one tag byte plus the digest.
func (o *Objects) KeySize() int { return 1 + o.hasher.Size() }

// Put stores raw contents and returns its key. Identical bytes always
// return the same key; re-putting is a no-op at the storage level.
func (o *Objects) Put(ctx context.Context, data []byte) (Key, error) {
	return o.putKind(ctx, KindContents, data)
}

// Get retrieves raw contents. Absence is (nil, false, nil), not an
// error. A non-contents key fails with ErrTypeMismatch.
func (o *Objects) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	return o.getKind(ctx, key, KindContents)
}

// Mem reports whether the object behind key is stored.
func (o *Objects) Mem(ctx context.Context, key Key) (bool, error) {
	if err := o.checkKey(key); err != nil {
		return false, err
	}
	return o.kv.Mem(ctx, key.Bytes())
}

// GetEncoded returns the stored envelope bytes for any object kind,
// for transport to another store.
func (o *Objects) GetEncoded(ctx context.Context, key Key) ([]byte, bool, error) {
	if err := o.checkKey(key); err != nil {
		return nil, false, err
	}
	return o.kv.Get(ctx, key.Bytes())
}

// PutEncoded verifies envelope bytes against their claimed key and
// stores them. The digest must match (ErrInvalidKey) and the envelope
// kind must agree with the key tag (ErrTypeMismatch).
func (o *Objects) PutEncoded(ctx context.Context, key Key, data []byte) error {
	if err := o.checkKey(key); err != nil {
		return err
	}
	if digest := o.hasher.Sum(data); !bytes.Equal(digest, key.Digest()) {
		return fmt.Errorf("%w: digest mismatch for %s", ErrInvalidKey, key)
	}
	kind, _, err := decodeObject(data)
	if err != nil {
		return err
	}
	if kind != key.Kind() {
		return fmt.Errorf("%w: %s envelope under %s key", ErrTypeMismatch, kind, key.Kind())
	}
	return o.kv.Put(ctx, key.Bytes(), data)
}

func (o *Objects) putKind(ctx context.Context, kind Kind, body []byte) (Key, error) {
	enc := encodeObject(kind, body)
	key := newKey(kind, o.hasher.Sum(enc))
	if err := o.kv.Put(ctx, key.Bytes(), enc); err != nil {
		return Key{}, fmt.Errorf("put %s: %w", kind, err)
	}
	return key, nil
}

func (o *Objects) getKind(ctx context.Context, key Key, want Kind) ([]byte, bool, error) {
	if err := o.checkKey(key); err != nil {
		return nil, false, err
	}
	if key.Kind() != want {
		return nil, false, fmt.Errorf("%w: %s key where %s expected", ErrTypeMismatch, key.Kind(), want)
	}
	data, ok, err := o.kv.Get(ctx, key.Bytes())
	if err != nil || !ok {
		return nil, ok, err
	}
	kind, body, err := decodeObject(data)
	if err != nil {
		return nil, false, err
	}
	if kind != key.Kind() {
		return nil, false, fmt.Errorf("%w: stored %s under %s key", ErrTypeMismatch, kind, key.Kind())
	}
	return body, true, nil
}

func (o *Objects) node(ctx context.Context, key Key) ([]Entry, bool, error) {
	body, ok, err := o.getKind(ctx, key, KindNode)
	if err != nil || !ok {
		return nil, ok, err
	}
	entries, err := decodeNode(body, o.KeySize())
	if err != nil {
		return nil, false, fmt.Errorf("decode node %s: %w", key, err)
	}
	return entries, true, nil
}

func (o *Objects) putNode(ctx context.Context, entries []Entry) (Key, error) {
	body, err := encodeNode(entries)
	if err != nil {
		return Key{}, err
	}
	return o.putKind(ctx, KindNode, body)
}

func (o *Objects) commit(ctx context.Context, key Key) (Commit, bool, error) {
	body, ok, err := o.getKind(ctx, key, KindCommit)
	if err != nil || !ok {
		return Commit{}, ok, err
	}
	c, err := decodeCommit(body, o.KeySize())
	if err != nil {
		return Commit{}, false, fmt.Errorf("decode commit %s: %w", key, err)
	}
	return c, true, nil
}

func (o *Objects) putCommit(ctx context.Context, c Commit) (Key, error) {
	body, err := encodeCommit(c)
	if err != nil {
		return Key{}, err
	}
	return o.putKind(ctx, KindCommit, body)
}

func (o *Objects) checkKey(key Key) error {
	if key.IsZero() {
		return fmt.Errorf("%w: zero key", ErrInvalidKey)
	}
	if len(key.Digest()) != o.hasher.Size() {
		return fmt.Errorf("%w: digest is %d bytes, %s uses %d", ErrInvalidKey, len(key.Digest()), o.hasher.Name(), o.hasher.Size())
	}
	return nil
}
