package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

// WriteRun inserts a run record into the store.
// Uses ON CONFLICT(run_token) DO NOTHING for idempotency - replaying a
// recorded run writes identical rows, so duplicates are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run trace.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(run_token, lesson, scenario, catalog_hash, verdict, first_seq, last_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_token) DO NOTHING
	`,
		run.RunToken,
		run.Lesson,
		run.Scenario,
		run.CatalogHash,
		run.Verdict,
		run.FirstSeq,
		run.LastSeq,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	return nil
}

// WriteStep inserts a step record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are
// silently ignored. Other constraint violations (e.g., a missing run
// row) still return errors.
//
// The step's Args are serialized to canonical JSON per RFC 8785 so the
// stored text is byte-identical across re-recordings.
func (s *Store) WriteStep(ctx context.Context, step trace.Step) error {
	argsJSON, err := marshalObject(step.Args)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO steps
		(id, run_token, op, args, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		step.ID,
		step.RunToken,
		step.Op,
		argsJSON,
		step.Seq,
	)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}

	return nil
}

// WriteOutcome inserts an outcome record into the store.
// Each step has exactly ONE outcome (enforced by the UNIQUE constraint
// on step_id).
//
// ON CONFLICT DO NOTHING handles both:
//  1. Duplicate outcome ID (same outcome written twice)
//  2. Duplicate step_id (second outcome for the same step)
//
// Both are silently ignored for idempotency. The step referenced by
// StepID must already exist (foreign key constraint).
func (s *Store) WriteOutcome(ctx context.Context, out trace.Outcome) error {
	resultJSON, err := marshalObject(out.Result)
	if err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outcomes
		(id, step_id, output_case, result, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		out.ID,
		out.StepID,
		out.OutputCase,
		resultJSON,
		out.Seq,
	)
	if err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}

	return nil
}

// WriteRunAtomic persists a complete run - the run row plus all of its
// steps and outcomes - in a single transaction. The harness records a
// scenario in memory and calls this once at the end, so a crash never
// leaves a partial run behind.
//
// Returns inserted=false when the run token already exists, in which
// case no rows are written (the run was recorded previously).
func (s *Store) WriteRunAtomic(
	ctx context.Context,
	run trace.Run,
	steps []trace.Step,
	outcomes []trace.Outcome,
) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("atomic run write: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// Claim the run token first; the conflict tells us whether this
	// run was already recorded.
	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_token, lesson, scenario, catalog_hash, verdict, first_seq, last_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_token) DO NOTHING
	`,
		run.RunToken,
		run.Lesson,
		run.Scenario,
		run.CatalogHash,
		run.Verdict,
		run.FirstSeq,
		run.LastSeq,
	)
	if err != nil {
		return false, fmt.Errorf("atomic run write: insert run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("atomic run write: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("atomic run write: commit (existing): %w", err)
		}
		return false, nil
	}

	for _, step := range steps {
		if err := writeStepTx(ctx, tx, step); err != nil {
			return false, fmt.Errorf("atomic run write: %w", err)
		}
	}

	for _, out := range outcomes {
		if err := writeOutcomeTx(ctx, tx, out); err != nil {
			return false, fmt.Errorf("atomic run write: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("atomic run write: commit: %w", err)
	}

	return true, nil
}

func writeStepTx(ctx context.Context, tx *sql.Tx, step trace.Step) error {
	argsJSON, err := marshalObject(step.Args)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO steps
		(id, run_token, op, args, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		step.ID,
		step.RunToken,
		step.Op,
		argsJSON,
		step.Seq,
	)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}

	return nil
}

func writeOutcomeTx(ctx context.Context, tx *sql.Tx, out trace.Outcome) error {
	resultJSON, err := marshalObject(out.Result)
	if err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outcomes
		(id, step_id, output_case, result, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		out.ID,
		out.StepID,
		out.OutputCase,
		resultJSON,
		out.Seq,
	)
	if err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}

	return nil
}
