package ramus

import (
	"sync"
)

// Notification reports a branch update whose commit changed the
// subtree under the watched path.
type Notification struct {
	Branch string
	Path   Path
	Commit Key
}

const watchBuffer = 16

// watcher is one watch stream. Delivery never drops: once the buffer
// fills, the branch update blocks until the consumer catches up or the
// stream is closed.
type watcher struct {
	branch string
	path   Path

	ch   chan Notification
	done chan struct{}

	sendMu sync.Mutex
	once   sync.Once
}

func newWatcher(branch string, path Path) *watcher {
	return &watcher{
		branch: branch,
		path:   append(Path(nil), path...),
		ch:     make(chan Notification, watchBuffer),
		done:   make(chan struct{}),
	}
}

func (w *watcher) send(n Notification) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	select {
	case <-w.done:
	case w.ch <- n:
	}
}

// close ends the stream. Closing done first unblocks any in-flight
// send, and sendMu keeps the channel close from racing it.
func (w *watcher) close() {
	w.once.Do(func() {
		close(w.done)
		w.sendMu.Lock()
		defer w.sendMu.Unlock()
		close(w.ch)
	})
}

// watchHub tracks live watchers per branch.
type watchHub struct {
	mu       sync.Mutex
	byBranch map[string]map[*watcher]struct{}
}

func newWatchHub() *watchHub {
	return &watchHub{byBranch: make(map[string]map[*watcher]struct{})}
}

func (h *watchHub) add(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.byBranch[w.branch]
	if !ok {
		set = make(map[*watcher]struct{})
		h.byBranch[w.branch] = set
	}
	set[w] = struct{}{}
}

func (h *watchHub) remove(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.byBranch[w.branch]; ok {
		delete(set, w)
		if len(set) == 0 {
			delete(h.byBranch, w.branch)
		}
	}
}

// branch snapshots the watchers registered for name, so delivery runs
// without holding the hub lock.
func (h *watchHub) branch(name string) []*watcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.byBranch[name]
	if !ok {
		return nil
	}
	out := make([]*watcher, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	return out
}

// closeBranch ends every stream on name, used when the branch itself
// is removed.
func (h *watchHub) closeBranch(name string) {
	h.mu.Lock()
	set := h.byBranch[name]
	delete(h.byBranch, name)
	h.mu.Unlock()
	for w := range set {
		w.close()
	}
}
