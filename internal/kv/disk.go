package kv

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const diskCacheSize = 1024

// Disk stores objects under a directory with git-style sharding
// (objects/ab/cdef...), zstd-compressed past a size threshold. Writes
// go through a temp file and rename, so a crash never leaves a torn
// object behind.
type Disk struct {
	dir   string
	comp  *compressor
	cache *cache
}

// DiskBranches keeps branch heads as hex text files under refs/.
// Compare-and-swap combines a process-wide mutex with atomic renames;
// processes sharing a directory should front it with the server
// instead of racing each other.
type DiskBranches struct {
	dir string
	mu  sync.Mutex
}

// OpenDisk opens the object and branch stores under dir, creating the
// layout on first use.
func OpenDisk(dir string) (*Disk, *DiskBranches, error) {
	objectsDir := filepath.Join(dir, "objects")
	refsDir := filepath.Join(dir, "refs")
	for _, d := range []string{objectsDir, refsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create %s: %w", d, err)
		}
	}
	comp, err := newCompressor()
	if err != nil {
		return nil, nil, err
	}
	disk := &Disk{dir: objectsDir, comp: comp, cache: newCache(diskCacheSize)}
	return disk, &DiskBranches{dir: refsDir}, nil
}

func (s *Disk) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	name := hex.EncodeToString(key)
	if data, ok := s.cache.get(name); ok {
		return bytes.Clone(data), true, nil
	}
	raw, err := os.ReadFile(s.objectPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read object %s: %w", name, err)
	}
	data, err := s.comp.decompress(raw)
	if err != nil {
		return nil, false, fmt.Errorf("object %s: %w", name, err)
	}
	s.cache.add(name, data)
	return bytes.Clone(data), true, nil
}

func (s *Disk) Put(ctx context.Context, key, value []byte) error {
	name := hex.EncodeToString(key)
	path := s.objectPath(name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := writeFileAtomic(path, s.comp.compress(value)); err != nil {
		return fmt.Errorf("write object %s: %w", name, err)
	}
	s.cache.add(name, bytes.Clone(value))
	return nil
}

func (s *Disk) Mem(ctx context.Context, key []byte) (bool, error) {
	name := hex.EncodeToString(key)
	if s.cache.has(name) {
		return true, nil
	}
	_, err := os.Stat(s.objectPath(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *Disk) objectPath(name string) string {
	if len(name) < 4 {
		return filepath.Join(s.dir, name)
	}
	return filepath.Join(s.dir, name[:2], name[2:])
}

func (b *DiskBranches) Read(ctx context.Context, name string) ([]byte, bool, error) {
	data, err := os.ReadFile(b.refPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read ref %s: %w", name, err)
	}
	head, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, false, fmt.Errorf("ref %s: %w", name, err)
	}
	return head, true, nil
}

func (b *DiskBranches) Update(ctx context.Context, name string, old, head []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok, err := b.Read(ctx, name)
	if err != nil {
		return err
	}
	switch {
	case old == nil && ok:
		return ErrHeadMoved
	case old != nil && !ok:
		return ErrHeadMoved
	case old != nil && !bytes.Equal(cur, old):
		return ErrHeadMoved
	}
	return writeFileAtomic(b.refPath(name), []byte(hex.EncodeToString(head)+"\n"))
}

func (b *DiskBranches) Remove(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := os.Remove(b.refPath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *DiskBranches) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, unsanitizeRef(e.Name()))
	}
	sort.Strings(names)
	return names, nil
}

func (b *DiskBranches) refPath(name string) string {
	return filepath.Join(b.dir, sanitizeRef(name))
}

// sanitizeRef escapes characters filesystems dislike. The mapping is
// not injective for names that already contain the escape, which is
// the usual tradeoff for human-readable ref files.
func sanitizeRef(name string) string {
	return strings.ReplaceAll(name, ":", "__")
}

func unsanitizeRef(file string) string {
	return strings.ReplaceAll(file, "__", ":")
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
