// Package arena provides a reference-counted slot arena.
//
// Values live in slots addressed by stable index handles rather than
// by pointer, so many independent owners can hold the same logical
// value and the graph stays acyclic by construction. Each slot carries
// an owner count: Alloc starts it at one, Retain adds an owner,
// Release removes one and evicts the slot when the count reaches
// zero. Evicted slots are recycled through a free list under a new
// generation tag, which turns any use of a stale handle into a
// deterministic fatal fault.Violation instead of silent aliasing.
//
// Like the cell package, an Arena serves one sequential flow of
// control and is not safe for concurrent use.
package arena

import (
	"github.com/castamos/learn-rust-by-testing/internal/fault"
)

// Handle addresses one arena slot. The zero Handle is dead: slot
// generations start at one, so a zero-valued Handle never resolves.
type Handle struct {
	index int
	gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

type slot[T any] struct {
	value T
	refs  int
	gen   uint32
}

// Arena holds reference-counted slots of T.
type Arena[T any] struct {
	slots []slot[T]
	free  []int
	live  int
}

// New returns an empty arena.
func New[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Alloc stores v in a fresh slot with an owner count of one and
// returns its handle.
func (a *Arena[T]) Alloc(v T) Handle {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.value = v
		s.refs = 1
		a.live++
		return Handle{index: idx, gen: s.gen}
	}
	a.slots = append(a.slots, slot[T]{value: v, refs: 1, gen: 1})
	a.live++
	return Handle{index: len(a.slots) - 1, gen: 1}
}

// Retain adds an owner to the slot and returns the same handle, so a
// retain can be assigned to the new owner in one expression.
//
// Raises fault.CodeUseAfterFree if the handle is stale.
func (a *Arena[T]) Retain(h Handle) Handle {
	s := a.resolve(h, "arena.Retain")
	s.refs++
	return h
}

// Release removes an owner from the slot and returns the remaining
// owner count. At zero the slot is evicted: the value is cleared for
// the garbage collector and the slot is recycled under a new
// generation.
//
// Releasing an already-dead handle raises fault.CodeDoubleRelease.
func (a *Arena[T]) Release(h Handle) int {
	s := a.lookup(h)
	if s == nil {
		fault.Raise(fault.CodeDoubleRelease, "arena.Release",
			"handle {index %d, gen %d} is dead", h.index, h.gen)
	}
	s.refs--
	if s.refs > 0 {
		return s.refs
	}
	var zero T
	s.value = zero
	s.gen++
	a.free = append(a.free, h.index)
	a.live--
	return 0
}

// Get returns a copy of the slot's value.
//
// Raises fault.CodeUseAfterFree if the handle is stale.
func (a *Arena[T]) Get(h Handle) T {
	return a.resolve(h, "arena.Get").value
}

// Set replaces the slot's value.
//
// Raises fault.CodeUseAfterFree if the handle is stale.
func (a *Arena[T]) Set(h Handle, v T) {
	a.resolve(h, "arena.Set").value = v
}

// RefCount returns the slot's owner count.
//
// Raises fault.CodeUseAfterFree if the handle is stale.
func (a *Arena[T]) RefCount(h Handle) int {
	return a.resolve(h, "arena.RefCount").refs
}

// Alive reports whether h still addresses a live slot.
func (a *Arena[T]) Alive(h Handle) bool {
	return a.lookup(h) != nil
}

// Live returns the number of live slots. A demonstration that ends
// with Live() != 0 has leaked owners.
func (a *Arena[T]) Live() int {
	return a.live
}

// lookup returns the slot for h, or nil when h is stale.
func (a *Arena[T]) lookup(h Handle) *slot[T] {
	if h.index < 0 || h.index >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.index]
	if s.gen != h.gen || s.refs == 0 {
		return nil
	}
	return s
}

// resolve is lookup that raises fault.CodeUseAfterFree on a stale
// handle.
func (a *Arena[T]) resolve(h Handle, op string) *slot[T] {
	s := a.lookup(h)
	if s == nil {
		fault.Raise(fault.CodeUseAfterFree, op,
			"handle {index %d, gen %d} is dead", h.index, h.gen)
	}
	return s
}
