package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/castamos/learn-rust-by-testing/internal/catalog"
	"github.com/castamos/learn-rust-by-testing/internal/harness"
	"github.com/castamos/learn-rust-by-testing/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string // optional; empty means throwaway in-memory stores
	Filter    string // run only lessons whose name contains this
	Update    bool   // regenerate golden trace files
	GoldenDir string // directory of golden trace files

	// TokenGenerator allows overriding the run token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	TokenGenerator harness.TokenGenerator
}

// LessonRunResult holds the outcome of a single lesson.
type LessonRunResult struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Pass     bool     `json:"pass"`
	RunToken string   `json:"run_token,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// RunResult holds the overall catalog run.
type RunResult struct {
	Lessons     []LessonRunResult `json:"lessons"`
	Passed      int               `json:"passed"`
	Failed      int               `json:"failed"`
	Total       int               `json:"total"`
	CatalogHash string            `json:"catalog_hash"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <catalog-dir>",
		Short: "Run the lessons in a catalog",
		Long: `Run every lesson in a catalog and report pass or fail per lesson.

Runtime lessons execute their scenario step by step and check the
recorded trace against the scenario's expectations. Static lessons
type-check and move-check their Go fragment without running it. With
--db, runtime traces persist to a SQLite event log for later
inspection with trace and replay; without it each lesson runs against
a throwaway in-memory store.

With --golden-dir, the trace of every runtime lesson is also compared
byte for byte against a golden snapshot; --update rewrites the
snapshots instead of comparing. Scenarios meant for golden comparison
should fix their run_token, otherwise every run diverges.

Exit codes:
  0 - All lessons passed
  1 - One or more lessons failed
  2 - Command error (catalog invalid, database not found, etc.)

Examples:
  ownlab run ./lessons
  ownlab run ./lessons --db ./ownlab.db
  ownlab run ./lessons --filter quota
  ownlab run ./lessons --golden-dir ./lessons/golden --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (omit for in-memory)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only lessons whose name contains this substring")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden trace files")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "directory of golden trace files")

	return cmd
}

func runCatalog(opts *RunOptions, catalogDir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// The catalog must be valid before anything executes; a lesson
	// that references a missing scenario should fail loudly here, not
	// halfway through a run
	slog.Info("loading catalog", "dir", catalogDir)
	validationErrors, err := ValidateCatalogDir(catalogDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	if len(validationErrors) > 0 {
		return WrapExitError(ExitCommandError, "catalog is not valid; run ownlab validate", validationErrors[0])
	}

	cat, loadErrors := catalog.Load(catalogDir, catalog.LoadModeFailFast)
	if len(loadErrors) > 0 {
		return WrapExitError(ExitCommandError, "failed to load catalog", loadErrors[0])
	}
	slog.Info("catalog loaded", "lessons", len(cat.Lessons), "files", cat.FileCount)

	hash, err := cat.Hash()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash catalog", err)
	}

	// Open the event log if one was asked for
	var st *store.Store
	if opts.Database != "" {
		slog.Info("opening database", "path", opts.Database)
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
	}

	runner := &harness.Runner{Tokens: opts.TokenGenerator}

	summary, err := runner.RunCatalog(ctx, cat, opts.Filter, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run catalog", err)
	}

	result := RunResult{
		Lessons:     make([]LessonRunResult, 0, len(summary.Results)),
		CatalogHash: hash,
	}
	for _, lr := range summary.Results {
		lessonResult := LessonRunResult{
			Name:   lr.Lesson,
			Kind:   lr.Kind,
			Pass:   lr.Passed,
			Errors: lr.Failures,
		}
		if lr.Scenario != nil {
			lessonResult.RunToken = lr.Scenario.RunToken

			// Golden comparison applies only to lessons that produced
			// a trace; static lessons have nothing to snapshot
			if opts.GoldenDir != "" {
				if err := harness.CompareGolden(opts.GoldenDir, lr.Lesson, lr.Scenario, opts.Update); err != nil {
					lessonResult.Pass = false
					lessonResult.Errors = append(lessonResult.Errors, err.Error())
				}
			}
		}

		result.Lessons = append(result.Lessons, lessonResult)
		if lessonResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	result.Total = len(result.Lessons)

	if opts.Format == "json" {
		if err := outputRunJSON(cmd, result); err != nil {
			return err
		}
	} else {
		outputRunText(cmd, result, opts)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d lesson(s) failed", result.Failed, result.Total))
	}
	return nil
}

// outputRunText prints one line per lesson plus a summary.
func outputRunText(cmd *cobra.Command, result RunResult, opts *RunOptions) {
	w := cmd.OutOrStdout()

	if result.Total == 0 {
		fmt.Fprintln(w, "No lessons matched.")
		return
	}

	for _, l := range result.Lessons {
		if l.Pass {
			if opts.Update && opts.GoldenDir != "" && l.RunToken != "" {
				fmt.Fprintf(w, "✓ %s (golden updated)\n", l.Name)
			} else {
				fmt.Fprintf(w, "✓ %s\n", l.Name)
			}
			continue
		}

		fmt.Fprintf(w, "✗ %s\n", l.Name)
		for _, e := range l.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintf(w, "\n%d/%d lesson(s) passed\n", result.Passed, result.Total)
}

// outputRunJSON outputs the run result as JSON.
func outputRunJSON(cmd *cobra.Command, result RunResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    catalog.ErrCodeGeneric,
			Message: fmt.Sprintf("%d of %d lesson(s) failed", result.Failed, result.Total),
		}
	}
	return writeJSON(cmd, response)
}
