package store

import (
	"context"
	"testing"

	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", 1, 4)

	for i := 0; i < 2; i++ {
		if err := s.WriteRun(ctx, run); err != nil {
			t.Fatalf("WriteRun() attempt %d failed: %v", i+1, err)
		}
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if count != 1 {
		t.Errorf("runs count = %d, want 1 after duplicate write", count)
	}
}

func TestWriteStep_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteRun(ctx, createTestRun("run-1", 1, 2)); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	args := trace.Object{
		"name":  trace.Str("five"),
		"value": trace.Int(5),
	}
	step := createTestStep(t, "run-1", "rc.alloc", args, 1)

	if err := s.WriteStep(ctx, step); err != nil {
		t.Fatalf("WriteStep() failed: %v", err)
	}

	got, err := s.ReadStep(ctx, step.ID)
	if err != nil {
		t.Fatalf("ReadStep() failed: %v", err)
	}
	if got.Op != "rc.alloc" {
		t.Errorf("Op = %q, want %q", got.Op, "rc.alloc")
	}
	if got.Seq != 1 {
		t.Errorf("Seq = %d, want 1", got.Seq)
	}
	if v, ok := got.Args["value"].(trace.Int); !ok || v != 5 {
		t.Errorf("Args[value] = %#v, want trace.Int(5)", got.Args["value"])
	}
}

func TestWriteStep_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteRun(ctx, createTestRun("run-1", 1, 2)); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	step := createTestStep(t, "run-1", "cell.new", trace.Object{}, 1)

	for i := 0; i < 3; i++ {
		if err := s.WriteStep(ctx, step); err != nil {
			t.Fatalf("WriteStep() attempt %d failed: %v", i+1, err)
		}
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM steps").Scan(&count); err != nil {
		t.Fatalf("count steps: %v", err)
	}
	if count != 1 {
		t.Errorf("steps count = %d, want 1 after duplicate writes", count)
	}
}

func TestWriteStep_RequiresRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	step := createTestStep(t, "no-such-run", "cell.new", trace.Object{}, 1)

	if err := s.WriteStep(ctx, step); err == nil {
		t.Error("expected foreign key error for step without run, got nil")
	}
}

func TestWriteOutcome_OnePerStep(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteRun(ctx, createTestRun("run-1", 1, 2)); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	step := createTestStep(t, "run-1", "cell.borrow", trace.Object{}, 1)
	if err := s.WriteStep(ctx, step); err != nil {
		t.Fatalf("WriteStep() failed: %v", err)
	}

	first := createTestOutcome(t, step.ID, trace.OutputOK, trace.Object{}, 2)
	if err := s.WriteOutcome(ctx, first); err != nil {
		t.Fatalf("WriteOutcome() failed: %v", err)
	}

	// A second outcome for the same step hits the UNIQUE(step_id)
	// constraint and is silently dropped.
	second := createTestOutcome(t, step.ID, trace.OutputViolation, trace.Object{
		"code": trace.Str("BORROW_CONFLICT"),
	}, 3)
	if err := s.WriteOutcome(ctx, second); err != nil {
		t.Fatalf("second WriteOutcome() failed: %v", err)
	}

	got, err := s.ReadOutcomeForStep(ctx, step.ID)
	if err != nil {
		t.Fatalf("ReadOutcomeForStep() failed: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("outcome ID = %q, want first outcome %q", got.ID, first.ID)
	}
	if got.OutputCase != trace.OutputOK {
		t.Errorf("OutputCase = %q, want %q", got.OutputCase, trace.OutputOK)
	}
}

func TestWriteOutcome_RequiresStep(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	out := createTestOutcome(t, "missing-step-id", trace.OutputOK, trace.Object{}, 1)

	if err := s.WriteOutcome(ctx, out); err == nil {
		t.Error("expected foreign key error for outcome without step, got nil")
	}
}

func TestWriteRunAtomic_FreshRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", 1, 4)
	step1 := createTestStep(t, "run-1", "cell.new", trace.Object{"value": trace.Str("Hello")}, 1)
	out1 := createTestOutcome(t, step1.ID, trace.OutputOK, trace.Object{}, 2)
	step2 := createTestStep(t, "run-1", "cell.borrow", trace.Object{}, 3)
	out2 := createTestOutcome(t, step2.ID, trace.OutputOK, trace.Object{"value": trace.Str("Hello")}, 4)

	inserted, err := s.WriteRunAtomic(ctx, run,
		[]trace.Step{step1, step2},
		[]trace.Outcome{out1, out2},
	)
	if err != nil {
		t.Fatalf("WriteRunAtomic() failed: %v", err)
	}
	if !inserted {
		t.Error("inserted = false, want true for fresh run")
	}

	steps, err := s.ReadRunSteps(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRunSteps() failed: %v", err)
	}
	if len(steps) != 2 {
		t.Errorf("len(steps) = %d, want 2", len(steps))
	}
	outcomes, err := s.ReadRunOutcomes(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRunOutcomes() failed: %v", err)
	}
	if len(outcomes) != 2 {
		t.Errorf("len(outcomes) = %d, want 2", len(outcomes))
	}
}

func TestWriteRunAtomic_ExistingRunIsNoOp(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", 1, 2)
	step := createTestStep(t, "run-1", "cell.new", trace.Object{}, 1)
	out := createTestOutcome(t, step.ID, trace.OutputOK, trace.Object{}, 2)

	inserted, err := s.WriteRunAtomic(ctx, run, []trace.Step{step}, []trace.Outcome{out})
	if err != nil {
		t.Fatalf("first WriteRunAtomic() failed: %v", err)
	}
	if !inserted {
		t.Fatal("first write reported inserted = false")
	}

	// Second write with the same token: nothing is written, even if
	// the caller hands in different steps.
	other := createTestStep(t, "run-1", "cell.release", trace.Object{}, 3)
	otherOut := createTestOutcome(t, other.ID, trace.OutputOK, trace.Object{}, 4)
	inserted, err = s.WriteRunAtomic(ctx, run, []trace.Step{other}, []trace.Outcome{otherOut})
	if err != nil {
		t.Fatalf("second WriteRunAtomic() failed: %v", err)
	}
	if inserted {
		t.Error("inserted = true, want false for existing run")
	}

	steps, err := s.ReadRunSteps(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRunSteps() failed: %v", err)
	}
	if len(steps) != 1 {
		t.Errorf("len(steps) = %d, want 1 (second write must not add rows)", len(steps))
	}
}

func TestWriteRunAtomic_RollsBackOnBadOutcome(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", 1, 2)
	step := createTestStep(t, "run-1", "cell.new", trace.Object{}, 1)
	// Outcome referencing a step outside the batch trips the foreign
	// key and must roll back the whole run.
	orphan := createTestOutcome(t, "missing-step-id", trace.OutputOK, trace.Object{}, 2)

	_, err := s.WriteRunAtomic(ctx, run, []trace.Step{step}, []trace.Outcome{orphan})
	if err == nil {
		t.Fatal("expected error for orphan outcome, got nil")
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if count != 0 {
		t.Errorf("runs count = %d, want 0 after rollback", count)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM steps").Scan(&count); err != nil {
		t.Fatalf("count steps: %v", err)
	}
	if count != 0 {
		t.Errorf("steps count = %d, want 0 after rollback", count)
	}
}
