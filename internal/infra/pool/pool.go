// Package pool implements the typed, thread-safe object pool that backs
// Storage (internal/infra/storage): a slab allocator with a LIFO
// free-list, versioned slots, per-slot reference counts, and a GUID↔handle
// map.
//
// Grounded on _examples/original_source/src/util/PoolAllocatorTFH.h
// (freelist + expand/resize) composed with assets/Storage.hpp's
// VersionMap/RefCountMap/guid maps, and on the teacher's
// internal/infra/engine/pool.go (handle-returning, refcounted, single
// mutex per pool). Go has no pointer-stable slice storage and no portable
// way to overlay a free-list pointer onto T's raw bytes the way the C++
// original does, so the free-list here is a parallel []uint32 stack
// instead of an embedded union — this preserves every externally
// observable invariant (LIFO reuse, O(1) push/pop, geometric growth) while
// staying inside what the language safely allows.
package pool

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/cjgribel/eeng-core/internal/domain"
)

// Pool is a slab allocator for a single reflected type T.
type Pool[T any] struct {
	mu sync.Mutex

	alignment uintptr

	elems     []T
	versions  []uint16
	refcounts []uint32
	free      []uint32 // LIFO stack of free slot indices

	guidToHandle map[domain.GUID]domain.Handle[T]
	handleToGuid map[domain.Handle[T]]domain.GUID
}

// New returns an empty pool. Capacity grows lazily on first Add.
//
// alignment requests a forced minimum element alignment in bytes (spec.md
// §4.1: "a natural element alignment and optional forced alignment (power
// of two, >= a minimum)"). Pass 0 to accept T's natural alignment
// (unsafe.Alignof(T)) — every []T slice the Go runtime allocates already
// starts its backing array aligned to that value, so the natural case
// needs no extra work here. A non-zero request must be a power of two and
// must not exceed T's natural alignment: forcing alignment *stronger*
// than natural (e.g. rounding a small struct up to a 64-byte cache line)
// would require carving the pool out of a raw []byte slab and
// reinterpreting it as []T via unsafe.Slice, and for any T containing
// pointers that defeats the garbage collector's ability to find and scan
// them — so it is rejected here instead of silently ignored or
// implemented unsoundly (see SPEC_FULL.md's Supplemented Features for the
// full writeup of this gap).
func New[T any](alignment uintptr) (*Pool[T], error) {
	natural := unsafe.Alignof(*new(T))
	if alignment == 0 {
		alignment = natural
	}
	if alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("pool: alignment %d is not a power of two", alignment)
	}
	if alignment > natural {
		return nil, fmt.Errorf("pool: forced alignment %d exceeds this type's natural alignment %d; over-alignment is not supported (see SPEC_FULL.md)", alignment, natural)
	}
	return &Pool[T]{
		alignment:    alignment,
		guidToHandle: make(map[domain.GUID]domain.Handle[T]),
		handleToGuid: make(map[domain.Handle[T]]domain.GUID),
	}, nil
}

// Alignment returns the pool's effective element alignment, in bytes.
func (p *Pool[T]) Alignment() uintptr { return p.alignment }

// AddressOf returns the address of the value for h. Exposed so callers
// (and tests) can verify spec.md §8's "the returned object pointer's
// address is a multiple of the pool's alignment" directly.
func (p *Pool[T]) AddressOf(h domain.Handle[T]) (uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validateLocked(h) {
		return 0, domain.ErrInvalidHandle
	}
	return uintptr(unsafe.Pointer(&p.elems[h.Slot])), nil
}

// Capacity returns the number of slots currently allocated (used + free).
func (p *Pool[T]) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.elems)
}

// CountFree returns the number of free slots.
func (p *Pool[T]) CountFree() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// ElementSize reports the size, in pool slots, that one element occupies.
// Always 1: unlike the original C++ slab, Go elements are never packed by
// byte size, only addressed by index.
func (p *Pool[T]) ElementSize() int { return 1 }

func nextPowerOfTwo(n int) int {
	result := 1
	for result < n {
		result <<= 1
	}
	return result
}

// grow doubles (to the next power of two) the backing slices and appends
// the new slot indices to the free-list. Must be called with p.mu held.
func (p *Pool[T]) grow() {
	oldCap := len(p.elems)
	newCap := nextPowerOfTwo(oldCap + 1)

	grownElems := make([]T, newCap)
	copy(grownElems, p.elems)
	p.elems = grownElems

	grownVersions := make([]uint16, newCap)
	copy(grownVersions, p.versions)
	p.versions = grownVersions

	grownRefs := make([]uint32, newCap)
	copy(grownRefs, p.refcounts)
	p.refcounts = grownRefs

	for i := oldCap; i < newCap; i++ {
		p.free = append(p.free, uint32(i))
	}
}

// Add allocates a slot for value, binds it to guid, sets refcount to 1,
// and returns the new handle. Fails if guid is invalid or already bound.
func (p *Pool[T]) Add(value T, guid domain.GUID) (domain.Handle[T], error) {
	if !guid.Valid() {
		return domain.Handle[T]{}, domain.ErrInvalidGUID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.guidToHandle[guid]; exists {
		return domain.Handle[T]{}, fmt.Errorf("add %s: %w", guid, domain.ErrGUIDExists)
	}

	if len(p.free) == 0 {
		p.grow()
	}

	// Pop from the free-list's head (LIFO reuse).
	last := len(p.free) - 1
	slot := p.free[last]
	p.free = p.free[:last]

	p.elems[slot] = value
	p.refcounts[slot] = 1

	h := domain.Handle[T]{Slot: slot, Version: p.versions[slot]}
	p.guidToHandle[guid] = h
	p.handleToGuid[h] = guid
	return h, nil
}

// validateLocked reports whether h addresses a live slot. Caller must hold p.mu.
func (p *Pool[T]) validateLocked(h domain.Handle[T]) bool {
	if h.IsNull() {
		return false
	}
	if int(h.Slot) >= len(p.elems) {
		return false
	}
	return h.Version == p.versions[h.Slot]
}

// Get returns a pointer to the value for h. Fails on null, out-of-range,
// or version mismatch.
func (p *Pool[T]) Get(h domain.Handle[T]) (*T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validateLocked(h) {
		return nil, domain.ErrInvalidHandle
	}
	return &p.elems[h.Slot], nil
}

// TryGet is the non-failing form of Get.
func (p *Pool[T]) TryGet(h domain.Handle[T]) (*T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validateLocked(h) {
		return nil, false
	}
	return &p.elems[h.Slot], true
}

// Modify runs fn against the value for h under the pool lock, for atomic
// read-modify-write.
func (p *Pool[T]) Modify(h domain.Handle[T], fn func(*T)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validateLocked(h) {
		return domain.ErrInvalidHandle
	}
	fn(&p.elems[h.Slot])
	return nil
}

// Retain increments the refcount for h and returns the new count.
func (p *Pool[T]) Retain(h domain.Handle[T]) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validateLocked(h) {
		return 0, domain.ErrInvalidHandle
	}
	p.refcounts[h.Slot]++
	return p.refcounts[h.Slot], nil
}

// Release decrements the refcount for h; at zero it destroys the slot.
// Underflow is a programmer error and fails loudly rather than wrapping.
func (p *Pool[T]) Release(h domain.Handle[T]) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validateLocked(h) {
		return 0, domain.ErrInvalidHandle
	}
	if p.refcounts[h.Slot] == 0 {
		return 0, domain.ErrRefcountUnder
	}
	p.refcounts[h.Slot]--
	if p.refcounts[h.Slot] == 0 {
		p.destroyLocked(h)
		return 0, nil
	}
	return p.refcounts[h.Slot], nil
}

// RemoveNow force-destroys the slot regardless of refcount.
func (p *Pool[T]) RemoveNow(h domain.Handle[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validateLocked(h) {
		return domain.ErrInvalidHandle
	}
	p.destroyLocked(h)
	return nil
}

// destroyLocked bumps the slot version, clears bookkeeping, and pushes the
// slot back onto the free-list. Caller must hold p.mu.
func (p *Pool[T]) destroyLocked(h domain.Handle[T]) {
	var zero T
	p.elems[h.Slot] = zero
	p.refcounts[h.Slot] = 0
	p.versions[h.Slot]++

	if guid, ok := p.handleToGuid[h]; ok {
		delete(p.handleToGuid, h)
		delete(p.guidToHandle, guid)
	}
	p.free = append(p.free, h.Slot)
}

// HandleForGUID looks up the handle currently bound to guid.
func (p *Pool[T]) HandleForGUID(guid domain.GUID) (domain.Handle[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.guidToHandle[guid]
	return h, ok
}

// GUIDForHandle looks up the guid bound to h, validating it first.
func (p *Pool[T]) GUIDForHandle(h domain.Handle[T]) (domain.GUID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validateLocked(h) {
		return domain.InvalidGUID, false
	}
	g, ok := p.handleToGuid[h]
	return g, ok
}

// Clear destroys every live slot, keeping allocated capacity.
func (p *Pool[T]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = p.free[:0]
	var zero T
	for i := range p.elems {
		p.elems[i] = zero
		p.refcounts[i] = 0
		p.versions[i]++
		p.free = append(p.free, uint32(i))
	}
	p.guidToHandle = make(map[domain.GUID]domain.Handle[T])
	p.handleToGuid = make(map[domain.Handle[T]]domain.GUID)
}

// Visit walks every live slot in index order, under the pool lock.
func (p *Pool[T]) Visit(fn func(domain.Handle[T], *T)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	free := make(map[uint32]bool, len(p.free))
	for _, idx := range p.free {
		free[idx] = true
	}
	for i := range p.elems {
		if free[uint32(i)] {
			continue
		}
		h := domain.Handle[T]{Slot: uint32(i), Version: p.versions[i]}
		fn(h, &p.elems[i])
	}
}

// String renders a short debug summary, mirroring the original's
// PoolAllocatorTFH::to_string diagnostic dump.
func (p *Pool[T]) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("Pool: capacity=%d, free=%d, alignment=%d", len(p.elems), len(p.free), p.alignment)
}
