// Package ramus is a content-addressed, branchable data store with
// git-like semantics over arbitrary values.
//
// Objects are immutable and keyed by digest: values, tree nodes, and
// commits form a Merkle DAG. Branches are the only mutable state, named
// heads that advance through merge-aware compare-and-swap updates, so
// concurrent writers converge through three-way merges instead of
// overwriting each other.
//
// Basic usage (in memory):
//
//	repo, _ := ramus.OpenMem()
//	store := repo.Branch("main")
//
//	// Bind values by path; every write is a commit.
//	store.Set(ctx, "users/ada", data)
//
//	// Read them back.
//	data, ok, _ := store.Get(ctx, "users/ada")
//
//	// Walk history, newest first.
//	records, _ := store.History(ctx, 10)
//
//	// Fork, write on both sides, merge.
//	fork, _ := repo.Branches().Read(ctx, "main")
//	repo.Branches().Update(ctx, "feature", fork)
//	head, err := store.Merge(ctx, featureHead)
//
//	// Watch a subtree for updates.
//	ch, _ := store.Watch(ctx, "users")
//
// On disk, with line-level value merging:
//
//	repo, _ := ramus.Open(dir, ramus.WithMerge(ramus.MergeText))
//
// Repositories exchange history as slices, self-contained bundles of
// objects:
//
//	slice, _ := repo.Export(ctx, []ramus.Key{head}, nil)
//	err = other.Import(ctx, slice)
//
// or sync whole branches against a served repository or an OCI
// registry with Push, Pull, and Clone.
package ramus
