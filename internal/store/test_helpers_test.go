package store

import (
	"path/filepath"
	"testing"

	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

// createTestStore creates a new on-disk store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run record for a given token.
func createTestRun(runToken string, firstSeq, lastSeq int64) trace.Run {
	return trace.Run{
		RunToken:    runToken,
		Lesson:      "borrowing",
		Scenario:    "shared_then_exclusive",
		CatalogHash: "test-catalog-hash",
		Verdict:     trace.VerdictPass,
		FirstSeq:    firstSeq,
		LastSeq:     lastSeq,
	}
}

// createTestStep creates a step with a proper content-addressed ID.
func createTestStep(t *testing.T, runToken, op string, args trace.Object, seq int64) trace.Step {
	t.Helper()
	step, err := trace.NewStep(runToken, op, args, seq)
	if err != nil {
		t.Fatalf("NewStep() failed: %v", err)
	}
	return step
}

// createTestOutcome creates an outcome with a proper content-addressed ID.
func createTestOutcome(t *testing.T, stepID, outputCase string, result trace.Object, seq int64) trace.Outcome {
	t.Helper()
	out, err := trace.NewOutcome(stepID, outputCase, result, seq)
	if err != nil {
		t.Fatalf("NewOutcome() failed: %v", err)
	}
	return out
}
