package fault

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestViolation_Error tests the error string format.
func TestViolation_Error(t *testing.T) {
	v := &Violation{
		Code:   CodeBorrowConflict,
		Op:     "cell.BorrowMut",
		Detail: "1 read ticket outstanding",
	}
	assert.Equal(t, "BORROW_CONFLICT: cell.BorrowMut: 1 read ticket outstanding", v.Error())

	// Op is optional.
	v = &Violation{Code: CodeUseAfterFree, Detail: "handle 3 is dead"}
	assert.Equal(t, "USE_AFTER_FREE: handle 3 is dead", v.Error())
}

// TestRaise_PanicsWithViolation tests that Raise panics with a typed payload.
func TestRaise_PanicsWithViolation(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r, "Raise must panic")

		v, ok := As(r)
		require.True(t, ok)
		assert.Equal(t, CodeDoubleRelease, v.Code)
		assert.Equal(t, "cell.Ref.Release", v.Op)
		assert.Equal(t, "ticket already released", v.Detail)
	}()

	Raise(CodeDoubleRelease, "cell.Ref.Release", "ticket already released")
}

// TestAs_NonViolation tests that As rejects foreign panic values.
func TestAs_NonViolation(t *testing.T) {
	_, ok := As("some string panic")
	assert.False(t, ok)

	_, ok = As(fmt.Errorf("ordinary error"))
	assert.False(t, ok)

	_, ok = As(nil)
	assert.False(t, ok)
}

// TestAs_WrappedViolation tests unwrapping a violation inside an error chain.
func TestAs_WrappedViolation(t *testing.T) {
	inner := &Violation{Code: CodeUseAfterMove, Detail: "box moved"}
	wrapped := fmt.Errorf("step failed: %w", inner)

	v, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeUseAfterMove, v.Code)

	code, ok := CodeOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeUseAfterMove, code)
}

// TestCatch_ReturnsViolation tests converting an expected violation at the
// runner boundary.
func TestCatch_ReturnsViolation(t *testing.T) {
	v := Catch(func() {
		Raise(CodeBorrowConflict, "cell.Borrow", "write ticket outstanding")
	})

	require.NotNil(t, v)
	assert.Equal(t, CodeBorrowConflict, v.Code)
}

// TestCatch_NoPanic tests that a clean run returns nil.
func TestCatch_NoPanic(t *testing.T) {
	v := Catch(func() {})
	assert.Nil(t, v)
}

// TestCatch_ForeignPanicPropagates tests that non-violation panics are not
// swallowed.
func TestCatch_ForeignPanicPropagates(t *testing.T) {
	assert.PanicsWithValue(t, "not a violation", func() {
		Catch(func() { panic("not a violation") })
	})
}
