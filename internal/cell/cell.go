// Package cell provides a runtime-checked mutable-access cell.
//
// A Cell owns one value and hands out scoped access tickets: any
// number of read tickets, or exactly one write ticket, never both.
// The rule is enforced at the moment each ticket is requested, and a
// request that would break it raises a fatal fault.Violation instead
// of returning an error. Correct code never trips the check, so there
// is nothing to recover from.
//
// A Cell enforces exclusivity only within a single sequential flow of
// control. It is not safe for concurrent use and deliberately carries
// no locks or atomics: overlapping access from one goroutine is a
// logic bug to be surfaced, not a race to be serialized.
package cell

import (
	"github.com/castamos/learn-rust-by-testing/internal/fault"
)

// Cell owns a value plus the access state tracking outstanding
// tickets: free, N readers, or one writer.
type Cell[T any] struct {
	value   T
	readers int
	writing bool
}

// New returns a cell owning v.
func New[T any](v T) *Cell[T] {
	return &Cell[T]{value: v}
}

// Borrow grants a read ticket.
//
// Raises fault.CodeBorrowConflict if a write ticket is outstanding.
// The ticket must be released exactly once when its scope ends,
// typically with defer.
func (c *Cell[T]) Borrow() *Ref[T] {
	if c.writing {
		fault.Raise(fault.CodeBorrowConflict, "cell.Borrow",
			"write ticket outstanding")
	}
	c.readers++
	return &Ref[T]{cell: c}
}

// BorrowMut grants the write ticket.
//
// Raises fault.CodeBorrowConflict if any ticket, read or write, is
// outstanding. The ticket must be released exactly once when its
// scope ends.
func (c *Cell[T]) BorrowMut() *RefMut[T] {
	if c.writing {
		fault.Raise(fault.CodeBorrowConflict, "cell.BorrowMut",
			"write ticket outstanding")
	}
	if c.readers > 0 {
		fault.Raise(fault.CodeBorrowConflict, "cell.BorrowMut",
			"%d read ticket(s) outstanding", c.readers)
	}
	c.writing = true
	return &RefMut[T]{cell: c}
}

// Readers returns the number of outstanding read tickets.
func (c *Cell[T]) Readers() int {
	return c.readers
}

// Writing reports whether the write ticket is outstanding.
func (c *Cell[T]) Writing() bool {
	return c.writing
}

// Ref is a read ticket. It grants access to the cell's value until
// released.
type Ref[T any] struct {
	cell     *Cell[T]
	released bool
}

// Get returns the cell's value.
//
// Raises fault.CodeUseAfterRelease if the ticket has been released.
func (r *Ref[T]) Get() T {
	if r.released {
		fault.Raise(fault.CodeUseAfterRelease, "cell.Ref.Get",
			"read ticket already released")
	}
	return r.cell.value
}

// Release returns the ticket. Releasing twice raises
// fault.CodeDoubleRelease, the same contract as unlocking an unlocked
// mutex.
func (r *Ref[T]) Release() {
	if r.released {
		fault.Raise(fault.CodeDoubleRelease, "cell.Ref.Release",
			"read ticket already released")
	}
	r.released = true
	r.cell.readers--
}

// RefMut is the write ticket. It grants exclusive access to the
// cell's value until released.
type RefMut[T any] struct {
	cell     *Cell[T]
	released bool
}

// Get returns the cell's value.
//
// Raises fault.CodeUseAfterRelease if the ticket has been released.
func (r *RefMut[T]) Get() T {
	if r.released {
		fault.Raise(fault.CodeUseAfterRelease, "cell.RefMut.Get",
			"write ticket already released")
	}
	return r.cell.value
}

// Set replaces the cell's value.
//
// Raises fault.CodeUseAfterRelease if the ticket has been released.
func (r *RefMut[T]) Set(v T) {
	if r.released {
		fault.Raise(fault.CodeUseAfterRelease, "cell.RefMut.Set",
			"write ticket already released")
	}
	r.cell.value = v
}

// Update applies fn to the current value and stores the result.
func (r *RefMut[T]) Update(fn func(T) T) {
	r.Set(fn(r.Get()))
}

// Release returns the ticket. Releasing twice raises
// fault.CodeDoubleRelease.
func (r *RefMut[T]) Release() {
	if r.released {
		fault.Raise(fault.CodeDoubleRelease, "cell.RefMut.Release",
			"write ticket already released")
	}
	r.released = true
	r.cell.writing = false
}
