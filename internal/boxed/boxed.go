// Package boxed provides a single-field owning wrapper with an
// explicit accessor pair in place of operator overloading.
//
// Get is the read view and Ptr is the writable view: a writable view
// always also serves reads, while no writable view can be derived
// from the value copy Get returns. Method calls on the wrapped type
// go through the accessor pair at the call site, which makes each
// coercion visible where it happens instead of implicit.
//
// Move and Take relocate the contents out of a box and permanently
// invalidate it. Any later access through the source raises a fatal
// fault.Violation. These operations also carry movecheck directives,
// so the statics analyzer reports a use of the moved-from box before
// the code ever runs.
package boxed

import (
	"github.com/castamos/learn-rust-by-testing/internal/fault"
)

// Box owns exactly one value.
type Box[T any] struct {
	value T
	moved bool
}

// New returns a box owning v.
func New[T any](v T) *Box[T] {
	return &Box[T]{value: v}
}

// Get returns a read view: a copy of the contents. Equal to *Ptr()
// while the box is live.
//
// Raises fault.CodeUseAfterMove if the contents have been moved out.
func (b *Box[T]) Get() T {
	if b.moved {
		fault.Raise(fault.CodeUseAfterMove, "boxed.Get",
			"box contents moved out")
	}
	return b.value
}

// Ptr returns the writable view: a pointer to the contents. Mutation
// through it is visible via the box afterwards. The view stays valid
// only until the box is moved; the runtime check guards the box API,
// not pointers that escaped before the move.
//
// Raises fault.CodeUseAfterMove if the contents have been moved out.
func (b *Box[T]) Ptr() *T {
	if b.moved {
		fault.Raise(fault.CodeUseAfterMove, "boxed.Ptr",
			"box contents moved out")
	}
	return &b.value
}

// Set replaces the contents.
//
// Raises fault.CodeUseAfterMove if the contents have been moved out.
func (b *Box[T]) Set(v T) {
	if b.moved {
		fault.Raise(fault.CodeUseAfterMove, "boxed.Set",
			"box contents moved out")
	}
	b.value = v
}

// Moved reports whether the contents have been moved out.
func (b *Box[T]) Moved() bool {
	return b.moved
}

// Move relocates the contents into a fresh box and invalidates b.
// After a move only the returned box may access the value.
//
// Raises fault.CodeUseAfterMove if the contents were already moved.
//
//movecheck:consumes b
func (b *Box[T]) Move() *Box[T] {
	return New(b.Take())
}

// Take relocates the contents out of the box and invalidates b. The
// vacated storage is zeroed for the garbage collector.
//
// Raises fault.CodeUseAfterMove if the contents were already moved.
//
//movecheck:consumes b
func (b *Box[T]) Take() T {
	if b.moved {
		fault.Raise(fault.CodeUseAfterMove, "boxed.Take",
			"box contents moved out")
	}
	v := b.value
	var zero T
	b.value = zero
	b.moved = true
	return v
}
