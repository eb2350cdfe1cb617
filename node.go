package ramus

import (
	"context"
	"fmt"
	"strings"
)

// Step is one path segment.
type Step = string

// Path addresses a location in a node tree, root downward.
type Path []Step

// ParsePath splits a slash-separated string into a Path. Empty
// segments are dropped, so "/a//b/" parses the same as "a/b".
func ParsePath(s string) Path {
	var p Path
	for _, seg := range strings.Split(s, "/") {
		if seg != "" {
			p = append(p, seg)
		}
	}
	return p
}

func (p Path) String() string { return strings.Join(p, "/") }

// IsRoot reports whether p addresses the tree root.
func (p Path) IsRoot() bool { return len(p) == 0 }

// Child returns a copy of p extended by one step.
func (p Path) Child(s Step) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, s)
}

func checkStep(s Step) error {
	if s == "" {
		return fmt.Errorf("empty path step")
	}
	if strings.ContainsAny(s, "/\x00") {
		return fmt.Errorf("path step %q contains / or NUL", s)
	}
	if len(s) > 0xffff {
		return fmt.Errorf("path step longer than %d bytes", 0xffff)
	}
	return nil
}

// Graph implements the persistent node tree over the object store.
// Trees are immutable: every update builds a new spine of nodes from
// the changed leaf up to a new root and shares every untouched subtree
// with the old tree by key. The zero Key stands for the empty tree
// wherever a root is accepted.
type Graph struct {
	obj *Objects
}

func newGraph(obj *Objects) *Graph {
	return &Graph{obj: obj}
}

// Empty returns the key of the canonical empty node, storing it on
// first use. Every store configured with the same hasher agrees on it.
func (g *Graph) Empty(ctx context.Context) (Key, error) {
	return g.obj.putNode(ctx, nil)
}

// CreateNode serializes entries as a node in the given order and
// stores it. Entry order is part of the node's identity.
func (g *Graph) CreateNode(ctx context.Context, entries []Entry) (Key, error) {
	return g.obj.putNode(ctx, entries)
}

// ReadNode returns the entries of the node behind key, in stored order.
func (g *Graph) ReadNode(ctx context.Context, key Key) ([]Entry, bool, error) {
	return g.obj.node(ctx, key)
}

// ReadFull resolves path from root and returns the contents value
// there. An absent path is (zero, false, nil). A path whose final or
// intermediate segment resolves to the wrong kind fails with a
// TypeMismatchError carrying the offending prefix.
func (g *Graph) ReadFull(ctx context.Context, root Key, path Path) (Value, bool, error) {
	e, ok, err := g.ReadEntry(ctx, root, path)
	if err != nil || !ok {
		return Value{}, ok, err
	}
	if e.Kind != KindContents {
		return Value{}, false, &TypeMismatchError{Path: path}
	}
	data, ok, err := g.obj.Get(ctx, e.Key)
	if err != nil {
		return Value{}, false, err
	}
	if !ok {
		return Value{}, false, fmt.Errorf("%w: contents %s at %q", ErrUnknownKey, e.Key, path.String())
	}
	return Value{Meta: e.Meta, Data: data}, true, nil
}

// ReadEntry resolves path from root to the entry bound there, of
// either kind. The root path resolves to a synthetic node entry
// holding root itself.
func (g *Graph) ReadEntry(ctx context.Context, root Key, path Path) (Entry, bool, error) {
	if path.IsRoot() {
		if root.IsZero() {
			return Entry{}, false, nil
		}
		return Entry{Kind: KindNode, Key: root}, true, nil
	}

	cur := root
	for i, step := range path {
		entries, ok, err := g.loadNode(ctx, cur, path[:i])
		if err != nil {
			return Entry{}, false, err
		}
		if !ok {
			return Entry{}, false, nil
		}
		e, found := findStep(entries, step)
		if !found {
			return Entry{}, false, nil
		}
		if i == len(path)-1 {
			return e, true, nil
		}
		if e.Kind != KindNode {
			return Entry{}, false, &TypeMismatchError{Path: path[:i+1]}
		}
		cur = e.Key
	}
	return Entry{}, false, nil
}

// List returns the entries of the node at path, in stored order.
// Absent is (nil, false, nil); contents at path is a type mismatch.
func (g *Graph) List(ctx context.Context, root Key, path Path) ([]Entry, bool, error) {
	e, ok, err := g.ReadEntry(ctx, root, path)
	if err != nil || !ok {
		return nil, ok, err
	}
	if e.Kind != KindNode {
		return nil, false, &TypeMismatchError{Path: path}
	}
	entries, ok, err := g.obj.node(ctx, e.Key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("%w: node %s at %q", ErrUnknownKey, e.Key, path.String())
	}
	return entries, true, nil
}

// Mem reports whether path is bound in the tree rooted at root.
func (g *Graph) Mem(ctx context.Context, root Key, path Path) (bool, error) {
	_, ok, err := g.ReadEntry(ctx, root, path)
	return ok, err
}

// AddContents binds a contents value at path, copying the spine and
// sharing everything else. Missing intermediate nodes are created; an
// existing entry at path is replaced in place, keeping its position.
// Returns the new root key; the old tree stays valid under its old key.
func (g *Graph) AddContents(ctx context.Context, root Key, path Path, v Value) (Key, error) {
	if path.IsRoot() {
		return Key{}, &TypeMismatchError{Path: path}
	}
	ck, err := g.obj.Put(ctx, v.Data)
	if err != nil {
		return Key{}, err
	}
	meta := v.Meta
	if meta == 0 {
		meta = DefaultMeta
	}
	return g.insert(ctx, root, path, 0, Entry{Kind: KindContents, Key: ck, Meta: meta})
}

// AddNode grafts an existing node (subtree) at path. An empty path
// replaces the root wholesale.
func (g *Graph) AddNode(ctx context.Context, root Key, path Path, node Key) (Key, error) {
	if node.Kind() != KindNode {
		return Key{}, fmt.Errorf("%w: %s key grafted as node", ErrTypeMismatch, node.Kind())
	}
	if path.IsRoot() {
		return node, nil
	}
	return g.insert(ctx, root, path, 0, Entry{Kind: KindNode, Key: node})
}

// RemoveContents unbinds the contents entry at path. Removing an
// absent path returns the root unchanged; a node at path is a type
// mismatch. Intermediate nodes emptied by the removal are pruned from
// their parents.
func (g *Graph) RemoveContents(ctx context.Context, root Key, path Path) (Key, error) {
	if path.IsRoot() {
		return Key{}, &TypeMismatchError{Path: path}
	}
	key, _, _, err := g.remove(ctx, root, path, 0, KindContents)
	if err != nil {
		return Key{}, err
	}
	return key, nil
}

// RemoveNode unbinds the subtree at path, with the same pruning and
// absent-path behavior as RemoveContents. An empty path empties the
// whole tree.
func (g *Graph) RemoveNode(ctx context.Context, root Key, path Path) (Key, error) {
	if path.IsRoot() {
		return g.Empty(ctx)
	}
	key, _, _, err := g.remove(ctx, root, path, 0, KindNode)
	if err != nil {
		return Key{}, err
	}
	return key, nil
}

// Closure collects the keys of every node and contents object
// reachable from max but not from any element of min, children before
// parents. A subtree whose root is reachable from min is pruned whole:
// matching Merkle keys guarantee matching subtrees.
func (g *Graph) Closure(ctx context.Context, min, max []Key) ([]Key, error) {
	excluded := make(map[Key]struct{})
	for _, k := range min {
		if err := g.excludeWalk(ctx, k, excluded); err != nil {
			return nil, err
		}
	}

	visited := make(map[Key]struct{})
	var order []Key

	var visit func(k Key) error
	visit = func(k Key) error {
		if k.IsZero() {
			return nil
		}
		if _, ok := visited[k]; ok {
			return nil
		}
		if _, ok := excluded[k]; ok {
			return nil
		}
		visited[k] = struct{}{}

		entries, ok, err := g.obj.node(ctx, k)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: node %s in closure", ErrUnknownKey, k)
		}
		for _, e := range entries {
			switch e.Kind {
			case KindNode:
				if err := visit(e.Key); err != nil {
					return err
				}
			case KindContents:
				if _, seen := visited[e.Key]; seen {
					continue
				}
				if _, skip := excluded[e.Key]; skip {
					continue
				}
				visited[e.Key] = struct{}{}
				order = append(order, e.Key)
			}
		}
		order = append(order, k)
		return nil
	}

	for _, k := range max {
		if err := visit(k); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// excludeWalk marks every key reachable from k. Keys that do not
// resolve locally are still marked; their subtrees just cannot be
// expanded for deeper pruning.
func (g *Graph) excludeWalk(ctx context.Context, k Key, excluded map[Key]struct{}) error {
	if k.IsZero() {
		return nil
	}
	if _, ok := excluded[k]; ok {
		return nil
	}
	excluded[k] = struct{}{}
	if k.Kind() != KindNode {
		return nil
	}
	entries, ok, err := g.obj.node(ctx, k)
	if err != nil || !ok {
		return err
	}
	for _, e := range entries {
		if err := g.excludeWalk(ctx, e.Key, excluded); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) insert(ctx context.Context, nodeKey Key, path Path, depth int, leaf Entry) (Key, error) {
	entries, ok, err := g.loadNode(ctx, nodeKey, path[:depth])
	if err != nil {
		return Key{}, err
	}
	if !ok {
		entries = nil
	}

	step := path[depth]
	var entry Entry
	if depth == len(path)-1 {
		entry = leaf
		entry.Step = step
	} else {
		child := Key{}
		if e, found := findStep(entries, step); found {
			if e.Kind != KindNode {
				return Key{}, &TypeMismatchError{Path: path[:depth+1]}
			}
			child = e.Key
		}
		childKey, err := g.insert(ctx, child, path, depth+1, leaf)
		if err != nil {
			return Key{}, err
		}
		entry = Entry{Step: step, Kind: KindNode, Key: childKey}
	}

	return g.obj.putNode(ctx, setStep(entries, entry))
}

// remove returns the rebuilt node key plus whether the node ended up
// empty and whether anything changed at all.
func (g *Graph) remove(ctx context.Context, nodeKey Key, path Path, depth int, want Kind) (Key, bool, bool, error) {
	entries, ok, err := g.loadNode(ctx, nodeKey, path[:depth])
	if err != nil {
		return Key{}, false, false, err
	}
	if !ok {
		return nodeKey, false, false, nil
	}

	step := path[depth]
	e, found := findStep(entries, step)
	if !found {
		return nodeKey, len(entries) == 0, false, nil
	}

	var next []Entry
	if depth == len(path)-1 {
		if e.Kind != want {
			return Key{}, false, false, &TypeMismatchError{Path: path}
		}
		next = dropStep(entries, step)
	} else {
		if e.Kind != KindNode {
			return Key{}, false, false, &TypeMismatchError{Path: path[:depth+1]}
		}
		childKey, childEmpty, changed, err := g.remove(ctx, e.Key, path, depth+1, want)
		if err != nil {
			return Key{}, false, false, err
		}
		if !changed {
			return nodeKey, false, false, nil
		}
		if childEmpty {
			next = dropStep(entries, step)
		} else {
			next = setStep(entries, Entry{Step: step, Kind: KindNode, Key: childKey})
		}
	}

	key, err := g.obj.putNode(ctx, next)
	if err != nil {
		return Key{}, false, false, err
	}
	return key, len(next) == 0, true, nil
}

// loadNode resolves a node key during a walk. A zero key is the empty
// tree; a non-zero key that does not resolve is a dangling reference.
func (g *Graph) loadNode(ctx context.Context, key Key, at Path) ([]Entry, bool, error) {
	if key.IsZero() {
		return nil, false, nil
	}
	entries, ok, err := g.obj.node(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("%w: node %s at %q", ErrUnknownKey, key, at.String())
	}
	return entries, true, nil
}

func findStep(entries []Entry, step Step) (Entry, bool) {
	for _, e := range entries {
		if e.Step == step {
			return e, true
		}
	}
	return Entry{}, false
}

// setStep replaces the entry bound to e.Step in place, or appends it.
// Existing entries keep their positions: order is insertion order.
func setStep(entries []Entry, e Entry) []Entry {
	out := make([]Entry, len(entries), len(entries)+1)
	copy(out, entries)
	for i := range out {
		if out[i].Step == e.Step {
			out[i] = e
			return out
		}
	}
	return append(out, e)
}

func dropStep(entries []Entry, step Step) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Step != step {
			out = append(out, e)
		}
	}
	return out
}
