package app

import (
	"sort"
	"sync"
)

// changeTracker is the polling contract for derived-state consumers: a
// monotonic version counter plus a drain-on-read set of transfer identifiers
// touched since the last drain. The version advances by exactly one per
// accepted event or explicit recompute; duplicate submissions never touch it.
type changeTracker struct {
	mu       sync.Mutex
	version  int64
	affected map[string]struct{}
}

func newChangeTracker() *changeTracker {
	return &changeTracker{affected: make(map[string]struct{})}
}

// MarkMutated records a derived-state change and returns the new version.
func (t *changeTracker) MarkMutated(transferID string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.version++
	t.affected[transferID] = struct{}{}
	return t.version
}

// Version returns the current version without side effects.
func (t *changeTracker) Version() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

// Drain returns the current version together with the accumulated affected
// set, then clears the set. A second immediate call returns an empty set.
func (t *changeTracker) Drain() (int64, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.affected))
	for id := range t.affected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	t.affected = make(map[string]struct{})
	return t.version, ids
}
