// Package kv defines the flat storage the data store runs on: a
// write-once bucket of objects and a small mutable table of branch
// heads. Both sides are deliberately dumb; everything content
// addressed lives above them.
package kv

import (
	"context"
	"errors"
)

// ErrHeadMoved reports a compare-and-swap whose expected value no
// longer matches the stored one. Callers re-read and retry.
var ErrHeadMoved = errors.New("kv: branch head moved")

// Store is a bucket of opaque values under opaque keys. Keys are
// written at most once and never mutated afterwards, so
// implementations are free to cache reads forever and to treat a
// re-put of an existing key as a no-op.
type Store interface {
	// Get returns the value stored under key. Absence is
	// (nil, false, nil), not an error.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)

	// Put stores value under key. Writing a key that already exists
	// succeeds without observable effect.
	Put(ctx context.Context, key, value []byte) error

	// Mem reports whether key is stored, without fetching the value.
	Mem(ctx context.Context, key []byte) (bool, error)
}

// Branches is a mutable name-to-head table with atomic updates.
type Branches interface {
	// Read returns the head stored under name. Absence is
	// (nil, false, nil).
	Read(ctx context.Context, name string) ([]byte, bool, error)

	// Update stores head under name only if the current value equals
	// old, where a nil old means the name must be absent. Any mismatch
	// fails with ErrHeadMoved and leaves the table unchanged.
	Update(ctx context.Context, name string, old, head []byte) error

	// Remove deletes name. Removing an absent name is a no-op.
	Remove(ctx context.Context, name string) error

	// List returns all names in lexical order.
	List(ctx context.Context) ([]string, error)
}
