package ramus

import "context"

// ChangeKind classifies one leaf-level tree change.
type ChangeKind uint8

const (
	ChangeAdded ChangeKind = iota + 1
	ChangeRemoved
	ChangeModified
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeModified:
		return "modified"
	default:
		return "unknown"
	}
}

// Change reports one contents leaf that differs between two trees.
// Old is zero for additions, New is zero for removals.
type Change struct {
	Path Path
	Kind ChangeKind
	Old  Entry
	New  Entry
}

// Diff reports every contents leaf that differs between the trees
// rooted at a and b. Subtrees with equal keys are skipped whole, so
// the cost is linear in the number of changes, not the tree size.
func (g *Graph) Diff(ctx context.Context, a, b Key) ([]Change, error) {
	var out []Change
	if err := g.diffNodes(ctx, nil, a, b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Graph) diffNodes(ctx context.Context, at Path, a, b Key, out *[]Change) error {
	if a == b {
		return nil
	}

	aEntries, _, err := g.loadNode(ctx, a, at)
	if err != nil {
		return err
	}
	bEntries, _, err := g.loadNode(ctx, b, at)
	if err != nil {
		return err
	}

	bSteps := make(map[Step]Entry, len(bEntries))
	for _, e := range bEntries {
		bSteps[e.Step] = e
	}

	// Removals and modifications follow a's order, additions b's.
	for _, ae := range aEntries {
		be, ok := bSteps[ae.Step]
		if !ok {
			if err := g.collectLeaves(ctx, at, ae, ChangeRemoved, out); err != nil {
				return err
			}
			continue
		}
		if ae.Key == be.Key && ae.Meta == be.Meta {
			continue
		}
		switch {
		case ae.Kind == KindNode && be.Kind == KindNode:
			if err := g.diffNodes(ctx, at.Child(ae.Step), ae.Key, be.Key, out); err != nil {
				return err
			}
		case ae.Kind == KindContents && be.Kind == KindContents:
			*out = append(*out, Change{Path: at.Child(ae.Step), Kind: ChangeModified, Old: ae, New: be})
		default:
			if err := g.collectLeaves(ctx, at, ae, ChangeRemoved, out); err != nil {
				return err
			}
			if err := g.collectLeaves(ctx, at, be, ChangeAdded, out); err != nil {
				return err
			}
		}
	}

	aSteps := make(map[Step]struct{}, len(aEntries))
	for _, e := range aEntries {
		aSteps[e.Step] = struct{}{}
	}
	for _, be := range bEntries {
		if _, ok := aSteps[be.Step]; ok {
			continue
		}
		if err := g.collectLeaves(ctx, at, be, ChangeAdded, out); err != nil {
			return err
		}
	}
	return nil
}

// collectLeaves emits one change per contents leaf under e.
func (g *Graph) collectLeaves(ctx context.Context, at Path, e Entry, kind ChangeKind, out *[]Change) error {
	p := at.Child(e.Step)
	if e.Kind == KindContents {
		c := Change{Path: p, Kind: kind}
		if kind == ChangeRemoved {
			c.Old = e
		} else {
			c.New = e
		}
		*out = append(*out, c)
		return nil
	}
	entries, _, err := g.loadNode(ctx, e.Key, p)
	if err != nil {
		return err
	}
	for _, child := range entries {
		if err := g.collectLeaves(ctx, p, child, kind, out); err != nil {
			return err
		}
	}
	return nil
}
