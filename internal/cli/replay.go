package cli

import (
	"context"
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/castamos/learn-rust-by-testing/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunToken string // optional - specific run only
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunToken      string `json:"run_token"`
	Lesson        string `json:"lesson"`
	Steps         int    `json:"steps"`
	Outcomes      int    `json:"outcomes"`
	IsComplete    bool   `json:"is_complete"`
	TerminalCase  string `json:"terminal_case,omitempty"`
	Deterministic bool   `json:"deterministic"`
	IDMismatches  int    `json:"id_mismatches"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the event log and verify determinism",
		Long: `Replay the event log to verify determinism and report run statistics.

Each run is re-read twice in sequence order and both readings must
agree. Every stored step and outcome ID is also recomputed from the
stored fields; a mismatch means the log was edited or corrupted after
recording.

Exit codes:
  0 - All runs replay identically and all IDs verify
  1 - Determinism verification failed (differences or ID mismatches)
  2 - Command error (database not found, etc.)

Examples:
  ownlab replay --db ./ownlab.db
  ownlab replay --db ./ownlab.db --run golden-quota
  ownlab replay --db ./ownlab.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunToken, "run", "", "replay specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	// Collect the run tokens to process
	var runTokens []string
	if opts.RunToken != "" {
		runTokens = []string{opts.RunToken}
	} else {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		for _, run := range runs {
			runTokens = append(runTokens, run.RunToken)
		}
	}

	if len(runTokens) == 0 {
		if opts.Format == "json" {
			result := ReplayResult{
				Runs:             []ReplayRunResult{},
				TotalRuns:        0,
				AllDeterministic: true,
			}
			return outputReplayJSON(cmd, result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No runs found in database.")
		return nil
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runTokens)),
		TotalRuns:        len(runTokens),
		AllDeterministic: true,
	}

	for _, token := range runTokens {
		runResult, err := replayAndVerifyRun(ctx, st, token)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", token), err)
		}

		result.Runs = append(result.Runs, runResult)
		if !runResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}

	return outputReplayText(cmd, result, opts.Verbose)
}

// replayAndVerifyRun replays a single run twice, compares the two
// readings, and recomputes every stored ID.
func replayAndVerifyRun(ctx context.Context, st *store.Store, runToken string) (ReplayRunResult, error) {
	state, err := st.GetRunState(ctx, runToken)
	if err != nil {
		return ReplayRunResult{}, err
	}

	events1, err := st.ReplayRun(ctx, runToken)
	if err != nil {
		return ReplayRunResult{}, fmt.Errorf("first replay failed: %w", err)
	}

	events2, err := st.ReplayRun(ctx, runToken)
	if err != nil {
		return ReplayRunResult{}, fmt.Errorf("second replay failed: %w", err)
	}

	deterministic := compareEventSequences(events1, events2)

	mismatches, err := st.VerifyRun(ctx, runToken)
	if err != nil {
		return ReplayRunResult{}, fmt.Errorf("id verification failed: %w", err)
	}

	return ReplayRunResult{
		RunToken:      runToken,
		Lesson:        state.Run.Lesson,
		Steps:         len(state.Steps),
		Outcomes:      len(state.Outcomes),
		IsComplete:    state.IsComplete,
		TerminalCase:  state.TerminalCase,
		Deterministic: deterministic && len(mismatches) == 0,
		IDMismatches:  len(mismatches),
	}, nil
}

// compareEventSequences compares two event sequences for equality.
func compareEventSequences(events1, events2 []store.RunEvent) bool {
	if len(events1) != len(events2) {
		return false
	}

	for i := range events1 {
		if !eventsEqual(events1[i], events2[i]) {
			return false
		}
	}

	return true
}

// eventsEqual compares two RunEvents for equality.
func eventsEqual(a, b store.RunEvent) bool {
	if a.Type != b.Type || a.Seq != b.Seq || a.ID != b.ID {
		return false
	}

	if (a.Step == nil) != (b.Step == nil) {
		return false
	}
	if a.Step != nil && !reflect.DeepEqual(a.Step, b.Step) {
		return false
	}

	if (a.Outcome == nil) != (b.Outcome == nil) {
		return false
	}
	if a.Outcome != nil && !reflect.DeepEqual(a.Outcome, b.Outcome) {
		return false
	}

	return true
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	if err := writeJSON(cmd, response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		status := "✓"
		if !run.Deterministic {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Run: %s\n", status, run.RunToken)

		if verbose {
			fmt.Fprintf(w, "  Lesson: %s\n", run.Lesson)
			fmt.Fprintf(w, "  Steps: %d\n", run.Steps)
			fmt.Fprintf(w, "  Outcomes: %d\n", run.Outcomes)
			fmt.Fprintf(w, "  Terminal Case: %s\n", run.TerminalCase)
			fmt.Fprintf(w, "  Complete: %v\n", run.IsComplete)
		} else {
			fmt.Fprintf(w, "  Events: %d steps, %d outcomes\n", run.Steps, run.Outcomes)
		}

		if run.IDMismatches > 0 {
			fmt.Fprintf(w, "  Warning: %d stored ID(s) do not hash back to their fields!\n", run.IDMismatches)
		}
		if !run.Deterministic {
			fmt.Fprintln(w, "  Warning: Non-deterministic replay detected!")
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All runs verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
