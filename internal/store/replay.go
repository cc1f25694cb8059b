package store

import (
	"context"
	"fmt"

	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

// RunState represents the recorded state of a run for analysis.
type RunState struct {
	Run          trace.Run
	Steps        []trace.Step
	Outcomes     []trace.Outcome
	LastSeq      int64
	IsComplete   bool   // True if every step has an outcome and at least one step exists
	PendingCount int    // Steps without outcomes
	TerminalCase string // Output case of the last outcome: "ok" or "violation"
}

// GetRunState retrieves the complete state of a run for analysis.
// Returns all steps and outcomes plus completeness bookkeeping.
func (s *Store) GetRunState(ctx context.Context, runToken string) (RunState, error) {
	run, err := s.ReadRun(ctx, runToken)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	state := RunState{Run: run}

	steps, err := s.ReadRunSteps(ctx, runToken)
	if err != nil {
		return state, fmt.Errorf("get run state: %w", err)
	}
	state.Steps = steps

	outcomes, err := s.ReadRunOutcomes(ctx, runToken)
	if err != nil {
		return state, fmt.Errorf("get run state: %w", err)
	}
	state.Outcomes = outcomes

	resolved := make(map[string]bool)
	for _, out := range outcomes {
		resolved[out.StepID] = true
		if out.Seq > state.LastSeq {
			state.LastSeq = out.Seq
		}
	}

	for _, step := range steps {
		if step.Seq > state.LastSeq {
			state.LastSeq = step.Seq
		}
		if !resolved[step.ID] {
			state.PendingCount++
		}
	}

	state.IsComplete = state.PendingCount == 0 && len(steps) > 0

	if len(outcomes) > 0 {
		state.TerminalCase = outcomes[len(outcomes)-1].OutputCase
	}

	return state, nil
}

// FindIncompleteRuns returns tokens of runs where some step has no
// outcome. WriteRunAtomic makes this impossible for runs recorded
// through the harness; a hit means the log was written by hand or the
// database is damaged, so `ownlab vet` reports these.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT st.run_token
		FROM steps st
		LEFT JOIN outcomes o ON st.id = o.step_id
		WHERE o.id IS NULL
		ORDER BY st.run_token
	`)
	if err != nil {
		return nil, fmt.Errorf("find incomplete runs: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan run token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run tokens: %w", err)
	}

	if tokens == nil {
		tokens = []string{}
	}

	return tokens, nil
}

// ReplayRun returns all events for a run as a merged, seq-ordered
// stream of steps and outcomes. Replaying a scenario and reading this
// stream back must produce identical events; the replay command relies
// on that to verify determinism.
func (s *Store) ReplayRun(ctx context.Context, runToken string) ([]RunEvent, error) {
	state, err := s.GetRunState(ctx, runToken)
	if err != nil {
		return nil, err
	}

	var events []RunEvent

	for i := range state.Steps {
		events = append(events, RunEvent{
			Type: EventStep,
			Seq:  state.Steps[i].Seq,
			ID:   state.Steps[i].ID,
			Step: &state.Steps[i],
		})
	}

	for i := range state.Outcomes {
		events = append(events, RunEvent{
			Type:    EventOutcome,
			Seq:     state.Outcomes[i].Seq,
			ID:      state.Outcomes[i].ID,
			Outcome: &state.Outcomes[i],
		})
	}

	sortRunEvents(events)

	return events, nil
}

// RunEvent represents a single event in a run (step or outcome).
type RunEvent struct {
	Type    RunEventType
	Seq     int64
	ID      string
	Step    *trace.Step
	Outcome *trace.Outcome
}

// RunEventType distinguishes between steps and outcomes.
type RunEventType int

const (
	EventStep RunEventType = iota
	EventOutcome
)

// String returns the event type as a string.
func (t RunEventType) String() string {
	switch t {
	case EventStep:
		return "step"
	case EventOutcome:
		return "outcome"
	default:
		return "unknown"
	}
}

// sortRunEvents sorts events by seq, with steps before outcomes for
// equal seq, then by ID. Keeps the stream deterministic.
func sortRunEvents(events []RunEvent) {
	// Insertion sort; runs are a handful of events.
	for i := 1; i < len(events); i++ {
		j := i
		for j > 0 && eventLess(events[j], events[j-1]) {
			events[j], events[j-1] = events[j-1], events[j]
			j--
		}
	}
}

func eventLess(a, b RunEvent) bool {
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	if a.Type != b.Type {
		return a.Type < b.Type // Step (0) before Outcome (1)
	}
	return a.ID < b.ID
}

// IDMismatch reports a stored event whose content-addressed ID does
// not match the hash of its stored fields.
type IDMismatch struct {
	Kind     string // "step" or "outcome"
	Seq      int64
	StoredID string
	WantID   string
}

// VerifyRun recomputes the content-addressed ID of every stored step
// and outcome in a run and reports rows whose stored ID disagrees.
// An empty result means the log is internally consistent: the stored
// fields hash back to the stored IDs.
func (s *Store) VerifyRun(ctx context.Context, runToken string) ([]IDMismatch, error) {
	state, err := s.GetRunState(ctx, runToken)
	if err != nil {
		return nil, err
	}

	mismatches := []IDMismatch{}

	for _, step := range state.Steps {
		want, err := trace.StepID(step.RunToken, step.Op, step.Args, step.Seq)
		if err != nil {
			return nil, fmt.Errorf("verify run: hash step seq=%d: %w", step.Seq, err)
		}
		if want != step.ID {
			mismatches = append(mismatches, IDMismatch{
				Kind:     "step",
				Seq:      step.Seq,
				StoredID: step.ID,
				WantID:   want,
			})
		}
	}

	for _, out := range state.Outcomes {
		want, err := trace.OutcomeID(out.StepID, out.OutputCase, out.Result, out.Seq)
		if err != nil {
			return nil, fmt.Errorf("verify run: hash outcome seq=%d: %w", out.Seq, err)
		}
		if want != out.ID {
			mismatches = append(mismatches, IDMismatch{
				Kind:     "outcome",
				Seq:      out.Seq,
				StoredID: out.ID,
				WantID:   want,
			})
		}
	}

	return mismatches, nil
}

// GetLastSeq returns the highest seq number used in the store.
// Used to resume the logical clock past everything already recorded.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var maxSeq int64

	var stepSeq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM steps
	`).Scan(&stepSeq)
	if err != nil {
		return 0, fmt.Errorf("get last seq from steps: %w", err)
	}
	maxSeq = stepSeq

	var outSeq int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM outcomes
	`).Scan(&outSeq)
	if err != nil {
		return 0, fmt.Errorf("get last seq from outcomes: %w", err)
	}
	if outSeq > maxSeq {
		maxSeq = outSeq
	}

	return maxSeq, nil
}
