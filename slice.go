package ramus

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/sourcegraph/conc/pool"
)

const (
	sliceMagic   = "RSLC"
	sliceVersion = 1

	exportConcurrency = 8
)

// Slice is a self-contained bundle of objects: the closure of a set of
// head commits, minus everything reachable from a set of known
// commits. Slices are how repositories exchange history; importing one
// adds objects and nothing else, branch heads never move.
type Slice struct {
	heads   []Key
	keys    []Key
	objects map[Key][]byte
	keySize int
}

// NewSlice assembles a slice from head keys and encoded objects, as a
// remote does after fetching them piecemeal. Objects are verified at
// import, not here.
func NewSlice(heads []Key, objects map[Key][]byte) (*Slice, error) {
	if len(heads) == 0 {
		return nil, fmt.Errorf("%w: no heads", ErrInvalidSlice)
	}
	size := len(heads[0].Bytes())
	keys := make([]Key, 0, len(objects))
	for k := range objects {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	s := &Slice{heads: append([]Key(nil), heads...), keys: keys, objects: objects, keySize: size}
	if err := s.checkKeySizes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Slice) checkKeySizes() error {
	for _, h := range s.heads {
		if len(h.Bytes()) != s.keySize || h.Kind() != KindCommit {
			return fmt.Errorf("%w: head %s", ErrInvalidSlice, h)
		}
	}
	for _, k := range s.keys {
		if len(k.Bytes()) != s.keySize {
			return fmt.Errorf("%w: key %s", ErrInvalidSlice, k)
		}
	}
	return nil
}

// Heads returns the commit keys the slice was exported for.
func (s *Slice) Heads() []Key { return append([]Key(nil), s.heads...) }

// Keys returns every object key in the slice, dependencies first.
func (s *Slice) Keys() []Key { return append([]Key(nil), s.keys...) }

// Object returns the encoded bytes bundled for key.
func (s *Slice) Object(key Key) ([]byte, bool) {
	data, ok := s.objects[key]
	return data, ok
}

// Len reports the number of bundled objects. A slice between heads the
// receiver already has is empty and still valid.
func (s *Slice) Len() int { return len(s.keys) }

// Encode writes the slice: a plain header (magic, version, key size)
// followed by a zstd stream of heads and length-prefixed objects.
func (s *Slice) Encode(w io.Writer) error {
	header := make([]byte, 0, 6)
	header = append(header, sliceMagic...)
	header = append(header, sliceVersion, byte(s.keySize))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write slice header: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("slice compressor: %w", err)
	}
	bw := bufio.NewWriter(zw)

	writeU16 := func(v int) {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v))
		bw.Write(b[:])
	}
	writeU32 := func(v int) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		bw.Write(b[:])
	}

	writeU16(len(s.heads))
	for _, h := range s.heads {
		bw.Write(h.Bytes())
	}
	writeU32(len(s.keys))
	for _, k := range s.keys {
		bw.Write(k.Bytes())
		data := s.objects[k]
		writeU32(len(data))
		bw.Write(data)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write slice: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush slice: %w", err)
	}
	return nil
}

// DecodeSlice reads a slice produced by Encode.
func DecodeSlice(r io.Reader) (*Slice, error) {
	header := make([]byte, 6)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrInvalidSlice)
	}
	if string(header[:4]) != sliceMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidSlice)
	}
	if header[4] != sliceVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSlice, header[4])
	}
	keySize := int(header[5])
	if keySize < 2 {
		return nil, fmt.Errorf("%w: key size %d", ErrInvalidSlice, keySize)
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlice, err)
	}
	defer zr.Close()
	br := bufio.NewReader(zr)

	readKey := func() (Key, error) {
		buf := make([]byte, keySize)
		if _, err := io.ReadFull(br, buf); err != nil {
			return Key{}, fmt.Errorf("%w: truncated key", ErrInvalidSlice)
		}
		k, err := KeyFromBytes(buf)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %v", ErrInvalidSlice, err)
		}
		return k, nil
	}

	var n16 [2]byte
	if _, err := io.ReadFull(br, n16[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated", ErrInvalidSlice)
	}
	heads := make([]Key, 0, binary.BigEndian.Uint16(n16[:]))
	for i := 0; i < cap(heads); i++ {
		h, err := readKey()
		if err != nil {
			return nil, err
		}
		heads = append(heads, h)
	}

	var n32 [4]byte
	if _, err := io.ReadFull(br, n32[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated", ErrInvalidSlice)
	}
	count := int(binary.BigEndian.Uint32(n32[:]))
	keys := make([]Key, 0, count)
	objects := make(map[Key][]byte, count)
	for i := 0; i < count; i++ {
		k, err := readKey()
		if err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(br, n32[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated object size", ErrInvalidSlice)
		}
		data := make([]byte, binary.BigEndian.Uint32(n32[:]))
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, fmt.Errorf("%w: truncated object", ErrInvalidSlice)
		}
		keys = append(keys, k)
		objects[k] = data
	}

	s := &Slice{heads: heads, keys: keys, objects: objects, keySize: keySize}
	if err := s.checkKeySizes(); err != nil {
		return nil, err
	}
	return s, nil
}

// Export bundles everything reachable from heads but not from the min
// commits. Commits the receiver named in min bound the walk on the
// commit level, and their trees prune the object walk, so a slice
// between close heads stays proportional to the change. Object bytes
// are fetched concurrently once the key order is fixed.
func (r *Repo) Export(ctx context.Context, heads []Key, min []Key) (*Slice, error) {
	if len(heads) == 0 {
		return nil, fmt.Errorf("%w: no heads", ErrInvalidSlice)
	}
	for _, h := range heads {
		if h.Kind() != KindCommit {
			return nil, fmt.Errorf("%w: export of %s key", ErrTypeMismatch, h.Kind())
		}
	}

	excluded := make(map[Key]struct{})
	for _, m := range min {
		if m.Kind() != KindCommit {
			return nil, fmt.Errorf("%w: export min of %s key", ErrTypeMismatch, m.Kind())
		}
		if err := r.excludeCommits(ctx, m, excluded); err != nil {
			return nil, err
		}
	}

	// Commits to ship, parents before children.
	var commitOrder []Key
	roots := make(map[Key]Key)
	visited := make(map[Key]struct{})
	var visit func(k Key) error
	visit = func(k Key) error {
		if _, ok := visited[k]; ok {
			return nil
		}
		if _, ok := excluded[k]; ok {
			return nil
		}
		visited[k] = struct{}{}
		c, ok, err := r.commits.Get(ctx, k)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: commit %s", ErrUnknownKey, k)
		}
		for _, p := range c.Parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		roots[k] = c.Root
		commitOrder = append(commitOrder, k)
		return nil
	}
	for _, h := range heads {
		if err := visit(h); err != nil {
			return nil, err
		}
	}

	// Trees of boundary commits are known to the receiver and prune
	// the object walk. A boundary commit we cannot load locally just
	// prunes nothing.
	var treeMin []Key
	seenRoot := make(map[Key]struct{})
	for _, m := range min {
		if root, err := r.commitRoot(ctx, m); err == nil && !root.IsZero() {
			if _, ok := seenRoot[root]; !ok {
				seenRoot[root] = struct{}{}
				treeMin = append(treeMin, root)
			}
		}
	}
	var treeMax []Key
	for _, k := range commitOrder {
		root := roots[k]
		if _, ok := seenRoot[root]; !ok {
			seenRoot[root] = struct{}{}
			treeMax = append(treeMax, root)
		}
	}

	treeKeys, err := r.graph.Closure(ctx, treeMin, treeMax)
	if err != nil {
		return nil, err
	}

	keys := make([]Key, 0, len(treeKeys)+len(commitOrder))
	keys = append(keys, treeKeys...)
	keys = append(keys, commitOrder...)

	encoded := make([][]byte, len(keys))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(exportConcurrency).WithCancelOnError()
	for i, k := range keys {
		p.Go(func(ctx context.Context) error {
			data, ok, err := r.obj.GetEncoded(ctx, k)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s during export", ErrUnknownKey, k)
			}
			encoded[i] = data
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	objects := make(map[Key][]byte, len(keys))
	for i, k := range keys {
		objects[k] = encoded[i]
	}
	size := len(heads[0].Bytes())
	return &Slice{
		heads:   append([]Key(nil), heads...),
		keys:    keys,
		objects: objects,
		keySize: size,
	}, nil
}

// excludeCommits marks every commit reachable from k. Commits that do
// not resolve locally are still marked; their ancestry just cannot be
// expanded.
func (r *Repo) excludeCommits(ctx context.Context, k Key, excluded map[Key]struct{}) error {
	if _, ok := excluded[k]; ok {
		return nil
	}
	excluded[k] = struct{}{}
	c, ok, err := r.commits.Get(ctx, k)
	if err != nil || !ok {
		return err
	}
	for _, p := range c.Parents {
		if err := r.excludeCommits(ctx, p, excluded); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) commitRoot(ctx context.Context, k Key) (Key, error) {
	c, ok, err := r.commits.Get(ctx, k)
	if err != nil || !ok {
		return Key{}, err
	}
	return c.Root, nil
}

// Import verifies and stores every object in the slice. Each object
// must hash to its key and match its kind tag, and each commit's
// parents must resolve in the store or the slice itself. Importing the
// same slice twice is a no-op; heads are the caller's business.
func (r *Repo) Import(ctx context.Context, s *Slice) error {
	inSlice := make(map[Key]struct{}, len(s.keys))
	for _, k := range s.keys {
		inSlice[k] = struct{}{}
	}

	for _, k := range s.keys {
		data := s.objects[k]
		if k.Kind() == KindCommit {
			if err := r.checkSliceParents(ctx, k, data, inSlice); err != nil {
				return err
			}
		}
		if err := r.obj.PutEncoded(ctx, k, data); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) checkSliceParents(ctx context.Context, k Key, data []byte, inSlice map[Key]struct{}) error {
	kind, body, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("%w: commit %s: %v", ErrInvalidSlice, k, err)
	}
	if kind != KindCommit {
		return fmt.Errorf("%w: %s tagged commit", ErrTypeMismatch, kind)
	}
	c, err := decodeCommit(body, r.obj.KeySize())
	if err != nil {
		return fmt.Errorf("%w: commit %s: %v", ErrInvalidSlice, k, err)
	}
	for _, p := range c.Parents {
		if _, ok := inSlice[p]; ok {
			continue
		}
		stored, err := r.obj.Mem(ctx, p)
		if err != nil {
			return err
		}
		if !stored {
			return fmt.Errorf("%w: %s of %s", ErrDanglingParent, p, k)
		}
	}
	return nil
}
