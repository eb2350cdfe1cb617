package ramus

import (
	"github.com/ramusdb/ramus/internal/kv"
)

// ObjectBackend is flat write-once storage for encoded objects. The
// built-in backends cover memory, local disk, and another repository
// served over HTTP; anything satisfying the interface plugs in.
type ObjectBackend = kv.Store

// BranchBackend is the mutable branch head table. Update must be a
// true compare-and-swap for merge-aware branch updates to hold under
// concurrency.
type BranchBackend = kv.Branches

// ErrHeadMoved is returned by BranchBackend implementations when a
// compare-and-swap loses a race. Repository updates retry on it.
var ErrHeadMoved = kv.ErrHeadMoved
