package ramus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey reports a malformed or wrong-length key on decode.
	ErrInvalidKey = errors.New("ramus: invalid key")

	// ErrUnknownKey reports a dangling reference: a key that did not
	// resolve in the object store during a graph walk.
	ErrUnknownKey = errors.New("ramus: unknown key")

	// ErrTypeMismatch reports a path segment that resolved to contents
	// where a node was required, or the other way around.
	ErrTypeMismatch = errors.New("ramus: type mismatch")

	// ErrDanglingParent reports a commit referencing a parent that is
	// neither stored nor part of the slice being imported.
	ErrDanglingParent = errors.New("ramus: dangling parent commit")

	// ErrMergeConflict is matched by every ConflictError.
	ErrMergeConflict = errors.New("ramus: merge conflict")

	// ErrNonFastForward reports a push whose remote head is not an
	// ancestor of the head being pushed.
	ErrNonFastForward = errors.New("ramus: non-fast-forward")

	// ErrBranchRemoved reports an operation that needs a branch head on
	// a branch that has none.
	ErrBranchRemoved = errors.New("ramus: branch removed")

	// ErrInvalidBranch reports a branch name containing forbidden
	// characters or no characters at all.
	ErrInvalidBranch = errors.New("ramus: invalid branch name")

	// ErrInvalidSlice reports slice bytes that do not decode: bad magic,
	// unsupported version, or a truncated stream.
	ErrInvalidSlice = errors.New("ramus: invalid slice")
)

// ConflictError reports a three-way merge divergence. Path is the exact
// location of the clash; Left and Right are the child keys on each side
// (zero when that side removed the entry).
type ConflictError struct {
	Path  Path
	Left  Key
	Right Key
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("ramus: merge conflict at %q (%s vs %s)", e.Path.String(), keyOrNone(e.Left), keyOrNone(e.Right))
}

func (e *ConflictError) Is(target error) bool { return target == ErrMergeConflict }

// TypeMismatchError carries the path at which a tree walk found the
// wrong object kind.
type TypeMismatchError struct {
	Path Path
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("ramus: type mismatch at %q", e.Path.String())
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

func keyOrNone(k Key) string {
	if k.IsZero() {
		return "none"
	}
	return k.String()
}
