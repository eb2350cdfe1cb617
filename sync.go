package ramus

import (
	"context"
	"fmt"
)

// Remote is the far side of a synchronization. Implementations talk
// HTTP to another repository or treat an OCI registry as passive
// storage; either way the contract is the same three operations.
type Remote interface {
	// Head returns the remote's head for branch, absent as
	// (zero, false, nil).
	Head(ctx context.Context, branch string) (Key, bool, error)

	// Fetch returns a slice covering the remote's current head for
	// branch, bounded below by commits the caller already has. Remotes
	// that cannot compute deltas may bundle more than necessary;
	// import deduplicates.
	Fetch(ctx context.Context, branch string, have []Key) (*Slice, error)

	// Push uploads the slice and advances the remote branch from old
	// to head in one step. The remote refuses with ErrNonFastForward
	// when its current head is not old anymore.
	Push(ctx context.Context, branch string, old, head Key, s *Slice) error
}

// Push sends the local branch to the remote. Only fast-forwards are
// accepted: when the remote head is not contained in the local branch,
// Push fails with ErrNonFastForward and the caller pulls first.
func (r *Repo) Push(ctx context.Context, remote Remote, branch string) (Key, error) {
	head, ok, err := r.branches.Read(ctx, branch)
	if err != nil {
		return Key{}, err
	}
	if !ok {
		return Key{}, fmt.Errorf("%w: %q", ErrBranchRemoved, branch)
	}

	remoteHead, remoteOK, err := remote.Head(ctx, branch)
	if err != nil {
		return Key{}, err
	}
	var min []Key
	if remoteOK {
		if remoteHead == head {
			return head, nil
		}
		contained, err := r.commits.IsAncestor(ctx, remoteHead, head)
		if err != nil {
			return Key{}, err
		}
		if !contained {
			return Key{}, fmt.Errorf("%w: remote %q at %s", ErrNonFastForward, branch, remoteHead.Short())
		}
		min = []Key{remoteHead}
	}

	s, err := r.Export(ctx, []Key{head}, min)
	if err != nil {
		return Key{}, err
	}
	if err := remote.Push(ctx, branch, remoteHead, head, s); err != nil {
		return Key{}, err
	}
	r.log.InfoContext(ctx, "pushed",
		"branch", branch,
		"head", head.String(),
		"objects", s.Len())
	return head, nil
}

// Pull fetches the remote branch and folds it into the local one with
// the usual merge-aware update. The returned key is the resulting
// local head, a merge commit when histories diverged.
func (r *Repo) Pull(ctx context.Context, remote Remote, branch string) (Key, error) {
	if _, ok, err := remote.Head(ctx, branch); err != nil {
		return Key{}, err
	} else if !ok {
		return Key{}, fmt.Errorf("%w: remote %q", ErrBranchRemoved, branch)
	}

	var have []Key
	if cur, ok, err := r.branches.Read(ctx, branch); err != nil {
		return Key{}, err
	} else if ok {
		have = []Key{cur}
	}

	s, err := remote.Fetch(ctx, branch, have)
	if err != nil {
		return Key{}, err
	}
	if err := r.Import(ctx, s); err != nil {
		return Key{}, err
	}
	heads := s.Heads()
	if len(heads) == 0 {
		return Key{}, fmt.Errorf("%w: fetched slice has no heads", ErrInvalidSlice)
	}
	r.log.InfoContext(ctx, "pulled",
		"branch", branch,
		"head", heads[0].String(),
		"objects", s.Len())
	return r.branches.Update(ctx, branch, heads[0])
}

// Clone fetches a branch this repository has never seen. It is Pull
// with a guard against silently merging into existing local state.
func (r *Repo) Clone(ctx context.Context, remote Remote, branch string) (Key, error) {
	if _, ok, err := r.branches.Read(ctx, branch); err != nil {
		return Key{}, err
	} else if ok {
		return Key{}, fmt.Errorf("ramus: branch %q already exists, pull instead", branch)
	}
	return r.Pull(ctx, remote, branch)
}
