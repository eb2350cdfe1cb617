package ramus

import (
	"log/slog"
	"time"

	"github.com/ramusdb/ramus/internal/kv"
)

// Repo is a content-addressed, branchable data store. Objects are
// immutable and keyed by digest, trees and commits form a Merkle DAG
// over them, and branches are the only mutable state: named heads that
// advance through merge-aware updates.
type Repo struct {
	store  ObjectBackend
	heads  BranchBackend
	hasher Hasher
	author string
	log    *slog.Logger

	obj      *Objects
	graph    *Graph
	commits  *Commits
	merger   *merger
	branches *Branches
}

// New assembles a repository over explicit backends.
func New(store ObjectBackend, heads BranchBackend, opts ...Option) (*Repo, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	hasher, err := NewHasher(options.Hash)
	if err != nil {
		return nil, err
	}
	r := &Repo{
		store:  store,
		heads:  heads,
		hasher: hasher,
		author: options.Author,
		log:    options.Logger,
	}
	r.obj = newObjects(store, hasher)
	r.graph = newGraph(r.obj)
	r.commits = newCommits(r.obj)
	r.merger = newMerger(r.obj, r.graph, r.commits, options.Merge, r.commitInfo)
	r.branches = newBranches(heads, r.graph, r.commits, r.merger, options.Logger)
	return r, nil
}

// Open opens the repository stored under dir, creating it on first
// use.
func Open(dir string, opts ...Option) (*Repo, error) {
	store, heads, err := kv.OpenDisk(dir)
	if err != nil {
		return nil, err
	}
	return New(store, heads, opts...)
}

// OpenMem returns a repository backed by process memory, gone when the
// process is.
func OpenMem(opts ...Option) (*Repo, error) {
	return New(kv.NewMem(), kv.NewMemBranches(), opts...)
}

// Objects exposes the content-addressed object store.
func (r *Repo) Objects() *Objects { return r.obj }

// Graph exposes tree reads and copy-on-write updates against explicit
// root keys.
func (r *Repo) Graph() *Graph { return r.graph }

// Commits exposes the commit DAG.
func (r *Repo) Commits() *Commits { return r.commits }

// Branches exposes branch heads, updates, and watches.
func (r *Repo) Branches() *Branches { return r.branches }

// Hasher returns the digest algorithm keys are derived with.
func (r *Repo) Hasher() Hasher { return r.hasher }

// Branch returns a view bound to the named branch with git-like
// semantics: every write is a commit advancing that branch.
func (r *Repo) Branch(name string) *Store {
	return &Store{repo: r, branch: name}
}

func (r *Repo) commitInfo(message string) CommitInfo {
	return CommitInfo{Author: r.author, Message: message, Time: time.Now()}
}
