package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/castamos/learn-rust-by-testing/internal/store"
	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunToken string
	Op       string // optional - filter to specific op
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Seq        int64        `json:"seq"`
	Kind       string       `json:"kind"` // "step" or "outcome"
	ID         string       `json:"id"`
	Op         string       `json:"op,omitempty"`
	Args       trace.Object `json:"args,omitempty"`
	OutputCase string       `json:"output_case,omitempty"`
	Result     trace.Object `json:"result,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunToken    string       `json:"run_token"`
	Lesson      string       `json:"lesson"`
	Scenario    string       `json:"scenario"`
	Verdict     string       `json:"verdict"`
	CatalogHash string       `json:"catalog_hash"`
	Timeline    []TraceEvent `json:"timeline"`
	Stats       TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int  `json:"total_events"`
	Steps       int  `json:"steps"`
	Outcomes    int  `json:"outcomes"`
	Violations  int  `json:"violations"`
	IsComplete  bool `json:"is_complete"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the timeline of a recorded run",
		Long: `Show the recorded trace of one lesson run.

Interleaves steps with their outcomes in sequence order, exactly as
the run recorded them. Violations appear as outcomes with their fault
code and the operation that raised them.

The output includes:
- Timeline: Chronological list of steps and outcomes
- Stats: Summary statistics for the run

Examples:
  ownlab trace --db ./ownlab.db --run 0190d5a2-82fd-7cc8-ba21-4f3a286a1b5e
  ownlab trace --db ./ownlab.db --run golden-quota --op quota.set
  ownlab trace --db ./ownlab.db --run golden-quota --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunToken, "run", "", "run token to trace (required)")
	_ = cmd.MarkFlagRequired("run")
	cmd.Flags().StringVar(&opts.Op, "op", "", "filter to steps with this op")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	state, err := st.GetRunState(ctx, opts.RunToken)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	events, err := st.ReplayRun(ctx, opts.RunToken)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay run", err)
	}

	timeline := buildTimeline(events, opts.Op)

	violations := 0
	for _, out := range state.Outcomes {
		if out.OutputCase == trace.OutputViolation {
			violations++
		}
	}

	result := TraceResult{
		RunToken:    opts.RunToken,
		Lesson:      state.Run.Lesson,
		Scenario:    state.Run.Scenario,
		Verdict:     state.Run.Verdict,
		CatalogHash: state.Run.CatalogHash,
		Timeline:    timeline,
		Stats: TraceStats{
			TotalEvents: len(timeline),
			Steps:       len(state.Steps),
			Outcomes:    len(state.Outcomes),
			Violations:  violations,
			IsComplete:  state.IsComplete,
		},
	}

	if opts.Format == "json" {
		return writeJSON(cmd, CLIResponse{Status: "ok", Data: result, RunToken: opts.RunToken})
	}

	return outputTraceText(cmd, result, opts.Verbose)
}

// buildTimeline converts store events to trace timeline events.
// When opFilter is set, only includes steps with that op and their
// corresponding outcomes.
func buildTimeline(events []store.RunEvent, opFilter string) []TraceEvent {
	// First pass: identify matching steps if a filter is set, so
	// their outcomes survive the second pass
	matchedStepIDs := make(map[string]bool)
	if opFilter != "" {
		for _, event := range events {
			if event.Type == store.EventStep && event.Step != nil && event.Step.Op == opFilter {
				matchedStepIDs[event.Step.ID] = true
			}
		}
	}

	var timeline []TraceEvent
	for _, event := range events {
		switch event.Type {
		case store.EventStep:
			if event.Step == nil {
				continue
			}
			step := event.Step

			if opFilter != "" && step.Op != opFilter {
				continue
			}

			timeline = append(timeline, TraceEvent{
				Seq:  event.Seq,
				Kind: "step",
				ID:   step.ID,
				Op:   step.Op,
				Args: step.Args,
			})

		case store.EventOutcome:
			if event.Outcome == nil {
				continue
			}
			out := event.Outcome

			if opFilter != "" && !matchedStepIDs[out.StepID] {
				continue
			}

			timeline = append(timeline, TraceEvent{
				Seq:        event.Seq,
				Kind:       "outcome",
				ID:         out.ID,
				OutputCase: out.OutputCase,
				Result:     out.Result,
			})
		}
	}

	return timeline
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "=== Run ===")
	fmt.Fprintf(w, "  Token:    %s\n", result.RunToken)
	fmt.Fprintf(w, "  Lesson:   %s\n", result.Lesson)
	fmt.Fprintf(w, "  Scenario: %s\n", result.Scenario)
	fmt.Fprintf(w, "  Verdict:  %s\n", result.Verdict)
	if verbose {
		fmt.Fprintf(w, "  Catalog:  %s\n", truncateID(result.CatalogHash))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Steps:        %d\n", result.Stats.Steps)
	fmt.Fprintf(w, "  Outcomes:     %d\n", result.Stats.Outcomes)
	fmt.Fprintf(w, "  Violations:   %d\n", result.Stats.Violations)
	fmt.Fprintf(w, "  Status:       %s\n", completeStatus(result.Stats.IsComplete))

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w interface{ Write([]byte) (int, error) }, event TraceEvent, verbose bool) {
	switch event.Kind {
	case "step":
		fmt.Fprintf(w, "  [%d] STEP %s %s\n", event.Seq, event.Op, formatArgs(event.Args))
		if verbose {
			fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
		}

	case "outcome":
		fmt.Fprintf(w, "  [%d] OUT  %s %s\n", event.Seq, event.OutputCase, formatArgs(event.Result))
		if verbose {
			fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
		}
	}
}

// formatArgs formats a trace object for display.
// Uses sorted keys to ensure deterministic output.
func formatArgs(args trace.Object) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single trace value for display, handling
// nested structures deterministically.
func formatValue(v trace.Value) string {
	switch val := v.(type) {
	case trace.Object:
		return formatArgs(val)
	case trace.Array:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case trace.Str:
		return string(val)
	case trace.Int:
		return fmt.Sprintf("%d", int64(val))
	case trace.Bool:
		return fmt.Sprintf("%t", bool(val))
	case trace.Null:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// completeStatus returns a human-readable completion status.
func completeStatus(isComplete bool) string {
	if isComplete {
		return "Complete"
	}
	return "Incomplete (pending steps)"
}
