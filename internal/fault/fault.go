// Package fault defines the fatal usage violation raised by the
// ownership primitives.
//
// A Violation is a panic payload, not an error return. The primitives
// in cell, arena, conslist, and boxed raise it synchronously at the
// exact call that breaks an access invariant, and nothing between that
// call and the harness boundary is allowed to recover it. The harness
// converts an expected violation into a recorded outcome; everywhere
// else the process dies, which is the point.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes usage violations.
type Code string

const (
	// CodeBorrowConflict indicates overlapping read and write access
	// to one cell: a write ticket requested while any ticket is
	// outstanding, or a read ticket requested while a write ticket is
	// outstanding.
	CodeBorrowConflict Code = "BORROW_CONFLICT"

	// CodeUseAfterRelease indicates access through a ticket that has
	// already been released.
	CodeUseAfterRelease Code = "USE_AFTER_RELEASE"

	// CodeDoubleRelease indicates a second release of the same ticket
	// or handle.
	CodeDoubleRelease Code = "DOUBLE_RELEASE"

	// CodeUseAfterFree indicates use of an arena handle whose slot has
	// been evicted or recycled.
	CodeUseAfterFree Code = "USE_AFTER_FREE"

	// CodeUseAfterMove indicates access through a box whose contents
	// have been moved out.
	CodeUseAfterMove Code = "USE_AFTER_MOVE"
)

// Violation describes a fatal misuse of an ownership primitive.
//
// Violation implements error so recovered values compose with the
// errors package, but it is raised with panic, never returned.
type Violation struct {
	// Code identifies the violation category.
	Code Code

	// Op names the operation that detected the violation, in
	// "type.method" form (for example "cell.BorrowMut").
	Op string

	// Detail is a human-readable description of the specific breach.
	Detail string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	if v.Op != "" {
		return fmt.Sprintf("%s: %s: %s", v.Code, v.Op, v.Detail)
	}
	return fmt.Sprintf("%s: %s", v.Code, v.Detail)
}

// Raise panics with a Violation for the given code and operation.
func Raise(code Code, op, format string, args ...any) {
	panic(&Violation{
		Code:   code,
		Op:     op,
		Detail: fmt.Sprintf(format, args...),
	})
}

// As inspects a recovered panic value and reports whether it is a
// Violation, unwrapping error chains along the way.
func As(recovered any) (*Violation, bool) {
	switch r := recovered.(type) {
	case *Violation:
		return r, true
	case error:
		var v *Violation
		if errors.As(r, &v) {
			return v, true
		}
	}
	return nil, false
}

// CodeOf reports the violation code carried by err, if any.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) (Code, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v.Code, true
	}
	return "", false
}

// Catch runs fn and converts an escaping Violation panic into a
// return value. Any other panic propagates unchanged.
//
// Catch exists for the runner boundary, where a demonstration that
// dies with an expected violation counts as having passed. Library
// code must not call it.
func Catch(fn func()) (v *Violation) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		vio, ok := As(r)
		if !ok {
			panic(r)
		}
		v = vio
	}()
	fn()
	return nil
}
