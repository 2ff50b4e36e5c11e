package component

import (
	"fmt"
	"sort"
	"sync"
)

// IDAllocator hands out "<prefix>_<n>" local ids. Released suffixes are
// kept on a LIFO free list: the next Allocate call reuses the most
// recently released suffix before minting a new high-water one (spec
// §8 scenario S2: four function blocks added as _1.._4, then _1, _2,
// _4 removed in that order, and the next add comes back as "_4" — the
// last one freed, not the lowest one free).
type IDAllocator struct {
	mu       sync.Mutex
	prefix   string
	inUse    map[int]struct{}
	free     []int // LIFO stack, most recently released on top
	nextHigh int
}

// NewIDAllocator creates an allocator for the given prefix (e.g. "mock_fb_uid").
func NewIDAllocator(prefix string) *IDAllocator {
	return &IDAllocator{prefix: prefix, inUse: make(map[int]struct{}), nextHigh: 1}
}

// Allocate returns the next id: the top of the free-list stack if one
// exists, otherwise a fresh, never-before-used suffix.
func (a *IDAllocator) Allocate() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var n int
	if len(a.free) > 0 {
		n = a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
	} else {
		n = a.nextHigh
		a.nextHigh++
	}
	a.inUse[n] = struct{}{}
	return fmt.Sprintf("%s_%d", a.prefix, n)
}

// Release frees the numeric suffix of localID, pushing it onto the
// free-list stack so the next Allocate call returns it.
func (a *IDAllocator) Release(localID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := suffixOf(a.prefix, localID)
	if n <= 0 {
		return
	}
	if _, ok := a.inUse[n]; !ok {
		return
	}
	delete(a.inUse, n)
	a.free = append(a.free, n)
}

func suffixOf(prefix, localID string) int {
	want := prefix + "_"
	if len(localID) <= len(want) || localID[:len(want)] != want {
		return -1
	}
	var n int
	if _, err := fmt.Sscanf(localID[len(want):], "%d", &n); err != nil {
		return -1
	}
	return n
}

// Observe marks localID's numeric suffix as already in use, advancing
// the high-water mark past it without touching the free list. Used
// when a component is reattached under an id it already held (a
// persisted function block restored by internal/persist) rather than
// one minted by Allocate, so a later Allocate call never reissues it.
func (a *IDAllocator) Observe(localID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := suffixOf(a.prefix, localID)
	if n <= 0 {
		return
	}
	a.inUse[n] = struct{}{}
	if n >= a.nextHigh {
		a.nextHigh = n + 1
	}
}

// InUse returns the currently allocated suffixes in ascending order, for
// diagnostics and tests.
func (a *IDAllocator) InUse() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int, 0, len(a.inUse))
	for n := range a.inUse {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
