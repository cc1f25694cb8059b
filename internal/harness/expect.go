package harness

import (
	"bytes"
	"fmt"

	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

// ExpectError reports one failed step expectation.
type ExpectError struct {
	Step     int // zero-based index into the scenario's steps
	Op       string
	Field    string // "result", "violation", or "messages"
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *ExpectError) Error() string {
	return fmt.Sprintf("steps[%d] %s: %s mismatch: expected %s, got %s",
		e.Step, e.Op, e.Field, e.Expected, e.Actual)
}

// checkExpect evaluates a step's expect clause against its recorded
// outcome. All mismatches are collected, not just the first.
func checkExpect(i int, st Step, out trace.Outcome) []error {
	e := st.Expect
	if e == nil {
		return nil
	}
	var errs []error

	if e.Violation != "" {
		if out.OutputCase != trace.OutputViolation {
			errs = append(errs, &ExpectError{
				Step: i, Op: st.Op, Field: "violation",
				Expected: e.Violation,
				Actual:   "no violation raised",
			})
		} else if code := resultCode(out.Result); code != e.Violation {
			errs = append(errs, &ExpectError{
				Step: i, Op: st.Op, Field: "violation",
				Expected: e.Violation,
				Actual:   code,
			})
		}
		return errs
	}

	// The step was expected to complete. Result and message checks are
	// meaningless against a violation outcome.
	if out.OutputCase == trace.OutputViolation {
		errs = append(errs, &ExpectError{
			Step: i, Op: st.Op, Field: "violation",
			Expected: "no violation",
			Actual:   describeViolation(out.Result),
		})
		return errs
	}

	if e.Result != nil {
		want, err := convertArgs(e.Result)
		if err != nil {
			errs = append(errs, fmt.Errorf("steps[%d] %s: expect.result: %w", i, st.Op, err))
		} else if !subsetMatch(want, out.Result) {
			errs = append(errs, &ExpectError{
				Step: i, Op: st.Op, Field: "result",
				Expected: canonString(want),
				Actual:   canonString(out.Result),
			})
		}
	}

	if e.Messages != nil {
		got := resultMessages(out.Result)
		if !equalStrings(e.Messages, got) {
			errs = append(errs, &ExpectError{
				Step: i, Op: st.Op, Field: "messages",
				Expected: fmt.Sprintf("%q", e.Messages),
				Actual:   fmt.Sprintf("%q", got),
			})
		}
	}

	return errs
}

// subsetMatch reports whether every key in want appears in got with an
// equal value. got may carry extra keys; excess detail in a recorded
// result is not a mismatch.
func subsetMatch(want, got trace.Object) bool {
	for k, wv := range want {
		gv, ok := got[k]
		if !ok || !valueEqual(wv, gv) {
			return false
		}
	}
	return true
}

// valueEqual compares trace values by their canonical encoding, the
// same bytes the content IDs are computed over.
func valueEqual(a, b trace.Value) bool {
	ab, err := trace.MarshalCanonical(a)
	if err != nil {
		return false
	}
	bb, err := trace.MarshalCanonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// resultCode extracts the violation code from a violation outcome's
// result object.
func resultCode(result trace.Object) string {
	code, _ := result["code"].(trace.Str)
	return string(code)
}

// describeViolation renders a violation result as "CODE in op".
func describeViolation(result trace.Object) string {
	code, _ := result["code"].(trace.Str)
	op, _ := result["op"].(trace.Str)
	if op == "" {
		return string(code)
	}
	return fmt.Sprintf("%s in %s", code, op)
}

// resultMessages extracts the notifier texts from a quota.set result.
func resultMessages(result trace.Object) []string {
	arr, _ := result["messages"].(trace.Array)
	msgs := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(trace.Str); ok {
			msgs = append(msgs, string(s))
		}
	}
	return msgs
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// canonString renders a value as canonical JSON for error messages.
func canonString(v trace.Value) string {
	data, err := trace.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
