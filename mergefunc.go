package ramus

import (
	"context"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// MergeFunc resolves contents that diverged on both sides of a merge.
// ours and theirs are never nil; base is nil when the path did not
// exist in the common ancestor. Returning nil removes the entry from
// the merged tree. Returning an error that matches ErrMergeConflict
// turns the divergence into a *ConflictError at the path; any other
// error aborts the merge.
type MergeFunc func(ctx context.Context, path Path, ours, theirs, base *Value) (*Value, error)

// MergeText merges text three-way by replaying the edits between base
// and theirs on top of ours. Overlapping edits that cannot be replayed
// cleanly are a conflict.
func MergeText(ctx context.Context, path Path, ours, theirs, base *Value) (*Value, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: %q added on both sides", ErrMergeConflict, path.String())
	}
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(string(base.Data), string(theirs.Data))
	merged, applied := dmp.PatchApply(patches, string(ours.Data))
	for _, ok := range applied {
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMergeConflict, path.String())
		}
	}
	return &Value{Meta: ours.Meta, Data: []byte(merged)}, nil
}

// MergeJSON merges JSON documents by applying each side's merge patch
// against base to the other side. The merge succeeds only when both
// application orders converge on the same document, so the result is
// independent of which side is "ours".
func MergeJSON(ctx context.Context, path Path, ours, theirs, base *Value) (*Value, error) {
	if base == nil {
		if jsonpatch.Equal(ours.Data, theirs.Data) {
			return &Value{Meta: ours.Meta, Data: ours.Data}, nil
		}
		return nil, fmt.Errorf("%w: %q added on both sides", ErrMergeConflict, path.String())
	}
	theirEdits, err := jsonpatch.CreateMergePatch(base.Data, theirs.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMergeConflict, path.String(), err)
	}
	ourEdits, err := jsonpatch.CreateMergePatch(base.Data, ours.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMergeConflict, path.String(), err)
	}
	ontoOurs, err := jsonpatch.MergePatch(ours.Data, theirEdits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMergeConflict, path.String(), err)
	}
	ontoTheirs, err := jsonpatch.MergePatch(theirs.Data, ourEdits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMergeConflict, path.String(), err)
	}
	if !jsonpatch.Equal(ontoOurs, ontoTheirs) {
		return nil, fmt.Errorf("%w: %q", ErrMergeConflict, path.String())
	}
	return &Value{Meta: ours.Meta, Data: ontoOurs}, nil
}
