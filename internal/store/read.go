package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

// ReadRun retrieves a single run by its token.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, runToken string) (trace.Run, error) {
	var run trace.Run
	err := s.db.QueryRowContext(ctx, `
		SELECT run_token, lesson, scenario, catalog_hash, verdict, first_seq, last_seq
		FROM runs
		WHERE run_token = ?
	`, runToken).Scan(
		&run.RunToken, &run.Lesson, &run.Scenario, &run.CatalogHash,
		&run.Verdict, &run.FirstSeq, &run.LastSeq,
	)
	if err != nil {
		return trace.Run{}, err
	}
	return run, nil
}

// ListRuns returns all recorded runs with deterministic ordering:
// ORDER BY first_seq ASC, run_token COLLATE BINARY ASC.
//
// Returns an empty slice (not nil) if the store holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]trace.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_token, lesson, scenario, catalog_hash, verdict, first_seq, last_seq
		FROM runs
		ORDER BY first_seq ASC, run_token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []trace.Run
	for rows.Next() {
		var run trace.Run
		if err := rows.Scan(
			&run.RunToken, &run.Lesson, &run.Scenario, &run.CatalogHash,
			&run.Verdict, &run.FirstSeq, &run.LastSeq,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	if runs == nil {
		runs = []trace.Run{}
	}

	return runs, nil
}

// ReadRunSteps returns all steps for a run token.
// Results are ordered deterministically: ORDER BY seq ASC, id COLLATE
// BINARY ASC, so two reads of the same run always agree byte for byte.
//
// Returns an empty slice (not nil) if no steps exist for the token.
func (s *Store) ReadRunSteps(ctx context.Context, runToken string) ([]trace.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_token, op, args, seq
		FROM steps
		WHERE run_token = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runToken)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var steps []trace.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}

	if steps == nil {
		steps = []trace.Step{}
	}

	return steps, nil
}

// ReadRunOutcomes returns all outcomes for a run token, joined through
// the steps table. Same deterministic ordering as ReadRunSteps.
//
// Returns an empty slice (not nil) if no outcomes exist for the token.
func (s *Store) ReadRunOutcomes(ctx context.Context, runToken string) ([]trace.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.step_id, o.output_case, o.result, o.seq
		FROM outcomes o
		JOIN steps st ON o.step_id = st.id
		WHERE st.run_token = ?
		ORDER BY o.seq ASC, o.id COLLATE BINARY ASC
	`, runToken)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []trace.Outcome
	for rows.Next() {
		out, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, out)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}

	if outcomes == nil {
		outcomes = []trace.Outcome{}
	}

	return outcomes, nil
}

// ReadStep retrieves a single step by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadStep(ctx context.Context, id string) (trace.Step, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_token, op, args, seq
		FROM steps
		WHERE id = ?
	`, id)

	return scanStepRow(row)
}

// ReadOutcomeForStep retrieves the outcome recorded for a step.
// Returns sql.ErrNoRows if the step has no outcome yet.
func (s *Store) ReadOutcomeForStep(ctx context.Context, stepID string) (trace.Outcome, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, step_id, output_case, result, seq
		FROM outcomes
		WHERE step_id = ?
	`, stepID)

	return scanOutcomeRow(row)
}

// StepFilter narrows a QuerySteps call. Zero-valued fields are
// ignored, so the empty filter matches every recorded step.
type StepFilter struct {
	RunToken   string // exact run token
	Op         string // exact op name, e.g. "cell.borrow_mut"
	OutputCase string // "ok" or "violation"
}

// StepRecord pairs a step with its outcome for filtered queries.
type StepRecord struct {
	Step    trace.Step
	Outcome trace.Outcome
}

// QuerySteps returns step/outcome pairs matching the filter, ordered
// by step seq ASC, step id COLLATE BINARY ASC.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) QuerySteps(ctx context.Context, filter StepFilter) ([]StepRecord, error) {
	query := `
		SELECT st.id, st.run_token, st.op, st.args, st.seq,
		       o.id, o.step_id, o.output_case, o.result, o.seq
		FROM steps st
		JOIN outcomes o ON o.step_id = st.id
	`
	var conds []string
	var args []any
	if filter.RunToken != "" {
		conds = append(conds, "st.run_token = ?")
		args = append(args, filter.RunToken)
	}
	if filter.Op != "" {
		conds = append(conds, "st.op = ?")
		args = append(args, filter.Op)
	}
	if filter.OutputCase != "" {
		conds = append(conds, "o.output_case = ?")
		args = append(args, filter.OutputCase)
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY st.seq ASC, st.id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query step records: %w", err)
	}
	defer rows.Close()

	var records []StepRecord
	for rows.Next() {
		var rec StepRecord
		var argsJSON, resultJSON string
		if err := rows.Scan(
			&rec.Step.ID, &rec.Step.RunToken, &rec.Step.Op, &argsJSON, &rec.Step.Seq,
			&rec.Outcome.ID, &rec.Outcome.StepID, &rec.Outcome.OutputCase, &resultJSON, &rec.Outcome.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan step record: %w", err)
		}
		if rec.Step.Args, err = unmarshalObject(argsJSON); err != nil {
			return nil, err
		}
		if rec.Outcome.Result, err = unmarshalObject(resultJSON); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step records: %w", err)
	}

	if records == nil {
		records = []StepRecord{}
	}

	return records, nil
}

// scanStep scans a row into a Step struct.
func scanStep(rows *sql.Rows) (trace.Step, error) {
	var step trace.Step
	var argsJSON string

	if err := rows.Scan(
		&step.ID, &step.RunToken, &step.Op, &argsJSON, &step.Seq,
	); err != nil {
		return trace.Step{}, fmt.Errorf("scan step: %w", err)
	}

	args, err := unmarshalObject(argsJSON)
	if err != nil {
		return trace.Step{}, err
	}
	step.Args = args

	return step, nil
}

// scanStepRow scans a single row into a Step struct.
func scanStepRow(row *sql.Row) (trace.Step, error) {
	var step trace.Step
	var argsJSON string

	if err := row.Scan(
		&step.ID, &step.RunToken, &step.Op, &argsJSON, &step.Seq,
	); err != nil {
		return trace.Step{}, err
	}

	args, err := unmarshalObject(argsJSON)
	if err != nil {
		return trace.Step{}, err
	}
	step.Args = args

	return step, nil
}

// scanOutcome scans a row into an Outcome struct.
func scanOutcome(rows *sql.Rows) (trace.Outcome, error) {
	var out trace.Outcome
	var resultJSON string

	if err := rows.Scan(
		&out.ID, &out.StepID, &out.OutputCase, &resultJSON, &out.Seq,
	); err != nil {
		return trace.Outcome{}, fmt.Errorf("scan outcome: %w", err)
	}

	result, err := unmarshalObject(resultJSON)
	if err != nil {
		return trace.Outcome{}, err
	}
	out.Result = result

	return out, nil
}

// scanOutcomeRow scans a single row into an Outcome struct.
func scanOutcomeRow(row *sql.Row) (trace.Outcome, error) {
	var out trace.Outcome
	var resultJSON string

	if err := row.Scan(
		&out.ID, &out.StepID, &out.OutputCase, &resultJSON, &out.Seq,
	); err != nil {
		return trace.Outcome{}, err
	}

	result, err := unmarshalObject(resultJSON)
	if err != nil {
		return trace.Outcome{}, err
	}
	out.Result = result

	return out, nil
}
