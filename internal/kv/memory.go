package kv

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// Mem is an in-memory Store. It is the default backend for fresh
// repositories and the workhorse of the test suite.
type Mem struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewMem returns an empty in-memory object store.
func NewMem() *Mem {
	return &Mem{m: make(map[string][]byte)}
}

func (s *Mem) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[string(key)]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (s *Mem) Put(ctx context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[string(key)]; ok {
		return nil
	}
	s.m[string(key)] = bytes.Clone(value)
	return nil
}

func (s *Mem) Mem(ctx context.Context, key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[string(key)]
	return ok, nil
}

// Len reports the number of stored objects.
func (s *Mem) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// MemBranches is an in-memory Branches table guarded by a single
// mutex, which makes every Update a true compare-and-swap.
type MemBranches struct {
	mu sync.Mutex
	m  map[string][]byte
}

// NewMemBranches returns an empty in-memory branch table.
func NewMemBranches() *MemBranches {
	return &MemBranches{m: make(map[string][]byte)}
}

func (b *MemBranches) Read(ctx context.Context, name string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.m[name]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (b *MemBranches) Update(ctx context.Context, name string, old, head []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.m[name]
	switch {
	case old == nil && ok:
		return ErrHeadMoved
	case old != nil && !ok:
		return ErrHeadMoved
	case old != nil && !bytes.Equal(cur, old):
		return ErrHeadMoved
	}
	b.m[name] = bytes.Clone(head)
	return nil
}

func (b *MemBranches) Remove(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.m, name)
	return nil
}

func (b *MemBranches) List(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.m))
	for name := range b.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
