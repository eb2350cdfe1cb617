package ramus

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// merger implements three-way merging of commits. The base for a merge
// is derived from the lowest common ancestors of the two heads; when
// several exist they are folded into a virtual base commit first, the
// recursive strategy git calls "merge-ort".
type merger struct {
	obj     *Objects
	graph   *Graph
	commits *Commits
	fn      MergeFunc
	info    func(message string) CommitInfo
}

func newMerger(obj *Objects, graph *Graph, commits *Commits, fn MergeFunc, info func(string) CommitInfo) *merger {
	return &merger{obj: obj, graph: graph, commits: commits, fn: fn, info: info}
}

// Merge combines two commits into one. Equal or comparable heads
// short-circuit without writing: ours == theirs returns ours, an
// ancestor fast-forwards to its descendant. Otherwise the trees are
// merged three-way against the common ancestor and a new commit with
// parents [ours, theirs] is stored. Unresolvable divergence surfaces
// as a *ConflictError and nothing observable changes.
func (m *merger) Merge(ctx context.Context, ours, theirs Key) (Key, error) {
	for _, k := range []Key{ours, theirs} {
		if k.Kind() != KindCommit {
			return Key{}, fmt.Errorf("%w: merge of %s key", ErrTypeMismatch, k.Kind())
		}
	}
	if ours == theirs {
		return ours, nil
	}
	if ok, err := m.commits.IsAncestor(ctx, ours, theirs); err != nil {
		return Key{}, err
	} else if ok {
		return theirs, nil
	}
	if ok, err := m.commits.IsAncestor(ctx, theirs, ours); err != nil {
		return Key{}, err
	} else if ok {
		return ours, nil
	}

	base, err := m.mergeBase(ctx, ours, theirs)
	if err != nil {
		return Key{}, err
	}
	oc, ok, err := m.commits.Get(ctx, ours)
	if err != nil {
		return Key{}, err
	}
	if !ok {
		return Key{}, fmt.Errorf("%w: commit %s", ErrUnknownKey, ours)
	}
	tc, ok, err := m.commits.Get(ctx, theirs)
	if err != nil {
		return Key{}, err
	}
	if !ok {
		return Key{}, fmt.Errorf("%w: commit %s", ErrUnknownKey, theirs)
	}

	root, empty, err := m.mergeTrees(ctx, nil, oc.Root, tc.Root, base)
	if err != nil {
		return Key{}, err
	}
	if empty {
		root, err = m.obj.putNode(ctx, nil)
		if err != nil {
			return Key{}, err
		}
	}
	return m.commits.New(ctx, root, []Key{ours, theirs}, m.info("merge "+theirs.Short()))
}

// mergeBase returns the tree key to diff against, or the zero Key when
// the heads share no history. Multiple lowest common ancestors are
// folded pairwise through Merge; the intermediate commits are content
// addressed and referenced by nothing, so retries converge on the same
// keys.
func (m *merger) mergeBase(ctx context.Context, ours, theirs Key) (Key, error) {
	lcas, err := m.lca(ctx, ours, theirs)
	if err != nil {
		return Key{}, err
	}
	if len(lcas) == 0 {
		return Key{}, nil
	}
	acc := lcas[0]
	for _, next := range lcas[1:] {
		acc, err = m.Merge(ctx, acc, next)
		if err != nil {
			return Key{}, fmt.Errorf("fold merge bases: %w", err)
		}
	}
	c, ok, err := m.commits.Get(ctx, acc)
	if err != nil {
		return Key{}, err
	}
	if !ok {
		return Key{}, fmt.Errorf("%w: commit %s", ErrUnknownKey, acc)
	}
	return c.Root, nil
}

// lca returns the lowest common ancestors of a and b in a fixed order.
// The common ancestor set is closed under parents, so its maximal
// elements are exactly the members no other member names as a parent.
func (m *merger) lca(ctx context.Context, a, b Key) ([]Key, error) {
	ancA, err := m.commits.Ancestors(ctx, a)
	if err != nil {
		return nil, err
	}
	ancB, err := m.commits.Ancestors(ctx, b)
	if err != nil {
		return nil, err
	}

	common := make(map[Key][]Key)
	for k, parents := range ancA {
		if _, ok := ancB[k]; ok {
			common[k] = parents
		}
	}
	dominated := make(map[Key]struct{})
	for _, parents := range common {
		for _, p := range parents {
			dominated[p] = struct{}{}
		}
	}

	var out []Key
	for k := range common {
		if _, ok := dominated[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// mergeTrees merges two node trees against a base tree, bottom up.
// Unchanged subtrees are shared by key without loading them. The
// returned bool reports an entry-less result, which the caller prunes
// (or materializes, at the root).
func (m *merger) mergeTrees(ctx context.Context, at Path, ours, theirs, base Key) (Key, bool, error) {
	if ours == theirs {
		return ours, false, nil
	}
	if theirs == base {
		return ours, false, nil
	}
	if ours == base {
		return theirs, false, nil
	}

	oEntries, err := m.entries(ctx, at, ours)
	if err != nil {
		return Key{}, false, err
	}
	tEntries, err := m.entries(ctx, at, theirs)
	if err != nil {
		return Key{}, false, err
	}
	bEntries, err := m.entries(ctx, at, base)
	if err != nil {
		return Key{}, false, err
	}

	tIndex := stepIndex(tEntries)
	bIndex := stepIndex(bEntries)
	oIndex := stepIndex(oEntries)

	// Our steps first in our order, then steps only theirs added, in
	// their order. Steps present only in base were dropped by both
	// sides and stay dropped.
	steps := make([]Step, 0, len(oEntries)+len(tEntries))
	for _, e := range oEntries {
		steps = append(steps, e.Step)
	}
	for _, e := range tEntries {
		if _, ok := oIndex[e.Step]; !ok {
			steps = append(steps, e.Step)
		}
	}

	var merged []Entry
	for _, step := range steps {
		oe, oHas := oIndex[step]
		te, tHas := tIndex[step]
		be, bHas := bIndex[step]
		e, keep, err := m.mergeEntry(ctx, at.Child(step), oe, oHas, te, tHas, be, bHas)
		if err != nil {
			return Key{}, false, err
		}
		if keep {
			merged = append(merged, e)
		}
	}

	if len(merged) == 0 {
		return Key{}, true, nil
	}
	key, err := m.obj.putNode(ctx, merged)
	if err != nil {
		return Key{}, false, err
	}
	return key, false, nil
}

// mergeEntry resolves one step three-way. The presence flags encode
// additions and removals; a false return drops the step from the
// merged node.
func (m *merger) mergeEntry(ctx context.Context, p Path, oe Entry, oHas bool, te Entry, tHas bool, be Entry, bHas bool) (Entry, bool, error) {
	// Both sides agree, changed or not.
	if oHas && tHas && entryEq(oe, te) {
		return oe, true, nil
	}
	// Theirs did not touch the step: ours wins, including our removal.
	if tHas == bHas && (!tHas || entryEq(te, be)) {
		return oe, oHas, nil
	}
	// Ours did not touch the step: theirs wins.
	if oHas == bHas && (!oHas || entryEq(oe, be)) {
		return te, tHas, nil
	}

	// Both sides changed the step in different ways.
	if !oHas || !tHas {
		// One side modified what the other removed.
		return Entry{}, false, conflictAt(p, oe, te)
	}
	if oe.Kind != te.Kind {
		return Entry{}, false, conflictAt(p, oe, te)
	}

	switch oe.Kind {
	case KindNode:
		var baseChild Key
		if bHas && be.Kind == KindNode {
			baseChild = be.Key
		}
		childKey, empty, err := m.mergeTrees(ctx, p, oe.Key, te.Key, baseChild)
		if err != nil {
			return Entry{}, false, err
		}
		if empty {
			return Entry{}, false, nil
		}
		return Entry{Step: p[len(p)-1], Kind: KindNode, Key: childKey, Meta: oe.Meta}, true, nil

	case KindContents:
		var baseMeta Meta
		baseContents := bHas && be.Kind == KindContents
		if baseContents {
			baseMeta = be.Meta
		}
		meta, ok := mergeMeta(oe.Meta, te.Meta, baseMeta, baseContents)
		if !ok {
			return Entry{}, false, conflictAt(p, oe, te)
		}
		if oe.Key == te.Key {
			return Entry{Step: p[len(p)-1], Kind: KindContents, Key: oe.Key, Meta: meta}, true, nil
		}
		key, keep, err := m.mergeValues(ctx, p, oe, te, be, baseContents)
		if err != nil {
			return Entry{}, false, err
		}
		if !keep {
			return Entry{}, false, nil
		}
		return Entry{Step: p[len(p)-1], Kind: KindContents, Key: key, Meta: meta}, true, nil

	default:
		return Entry{}, false, conflictAt(p, oe, te)
	}
}

// mergeValues hands diverged contents to the configured MergeFunc. A
// nil merged value removes the entry. Without a MergeFunc, or when it
// reports ErrMergeConflict, the divergence is a conflict.
func (m *merger) mergeValues(ctx context.Context, p Path, oe, te, be Entry, baseContents bool) (Key, bool, error) {
	if m.fn == nil {
		return Key{}, false, conflictAt(p, oe, te)
	}
	ours, err := m.value(ctx, p, oe)
	if err != nil {
		return Key{}, false, err
	}
	theirs, err := m.value(ctx, p, te)
	if err != nil {
		return Key{}, false, err
	}
	var base *Value
	if baseContents {
		base, err = m.value(ctx, p, be)
		if err != nil {
			return Key{}, false, err
		}
	}
	out, err := m.fn(ctx, p, ours, theirs, base)
	if err != nil {
		if errors.Is(err, ErrMergeConflict) {
			return Key{}, false, conflictAt(p, oe, te)
		}
		return Key{}, false, fmt.Errorf("merge %q: %w", p.String(), err)
	}
	if out == nil {
		return Key{}, false, nil
	}
	key, err := m.obj.Put(ctx, out.Data)
	if err != nil {
		return Key{}, false, err
	}
	return key, true, nil
}

func (m *merger) value(ctx context.Context, p Path, e Entry) (*Value, error) {
	data, ok, err := m.obj.Get(ctx, e.Key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: contents %s at %q", ErrUnknownKey, e.Key, p.String())
	}
	return &Value{Meta: e.Meta, Data: data}, nil
}

// entries loads a node's entry list, treating the zero Key as empty.
func (m *merger) entries(ctx context.Context, at Path, key Key) ([]Entry, error) {
	if key.IsZero() {
		return nil, nil
	}
	entries, ok, err := m.graph.ReadNode(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: node %s at %q", ErrUnknownKey, key, at.String())
	}
	return entries, nil
}

// mergeMeta resolves metadata with the same rules as entries: agreement
// wins, a side equal to base yields to the other, divergence conflicts.
func mergeMeta(o, t, b Meta, bHas bool) (Meta, bool) {
	switch {
	case o == t:
		return o, true
	case bHas && t == b:
		return o, true
	case bHas && o == b:
		return t, true
	default:
		return 0, false
	}
}

func entryEq(a, b Entry) bool {
	return a.Kind == b.Kind && a.Key == b.Key && a.Meta == b.Meta
}

func conflictAt(p Path, oe, te Entry) error {
	return &ConflictError{Path: p, Left: oe.Key, Right: te.Key}
}

func stepIndex(entries []Entry) map[Step]Entry {
	idx := make(map[Step]Entry, len(entries))
	for _, e := range entries {
		idx[e.Step] = e
	}
	return idx
}
