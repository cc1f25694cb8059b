package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/castamos/learn-rust-by-testing/internal/catalog"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled catalog.
type CompilationResult struct {
	Lessons     []catalog.Lesson `json:"lessons"`
	CatalogHash string           `json:"catalog_hash"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	LessonCount  int
	RuntimeCount int
	StaticCount  int
	FileCount    int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <catalog-dir>",
		Short: "Compile lesson manifests to canonical JSON",
		Long: `Compile CUE lesson manifests to the canonical catalog format.

The compiler parses CUE files, validates every lesson against the
catalog schema, and outputs canonical JSON keyed by lesson name. The
same lesson content always produces the same bytes, whatever the file
layout, so the output diffs cleanly between catalog versions.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, catalogDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	// Collect-all mode so authors see every problem at once
	cat, loadErrors := catalog.Load(catalogDir, catalog.LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if cat == nil && len(loadErrors) > 0 {
		var loadErr *catalog.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, catalog.ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", cat.FileCount, catalogDir)

	for _, lesson := range cat.Lessons {
		formatter.VerboseLog("Compiling lesson: %s", lesson.Name)
	}

	// Schema validation runs even when some manifests already failed
	// to load, so one pass reports both kinds of problem
	var validationErrors []catalog.ValidationError
	for i := range cat.Lessons {
		validationErrors = append(validationErrors, catalog.Validate(&cat.Lessons[i])...)
	}

	if len(loadErrors) > 0 || len(validationErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors, validationErrors)
	}

	hash, err := cat.Hash()
	if err != nil {
		return outputCompileError(formatter, catalog.ErrCodeGeneric, fmt.Sprintf("hashing catalog: %v", err), nil)
	}

	result := &CompilationResult{
		Lessons:     cat.Lessons,
		CatalogHash: hash,
	}

	stats := calculateStats(cat)

	// Write canonical form to file if --output specified
	if opts.Output != "" {
		data, err := cat.MarshalCanonical()
		if err != nil {
			return outputCompileError(formatter, catalog.ErrCodeGeneric, fmt.Sprintf("marshaling catalog: %v", err), nil)
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return outputCompileError(formatter, catalog.ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

// calculateStats computes summary statistics from the loaded catalog.
func calculateStats(cat *catalog.Catalog) CompilationStats {
	stats := CompilationStats{
		LessonCount: len(cat.Lessons),
		FileCount:   cat.FileCount,
	}
	for _, l := range cat.Lessons {
		switch l.Kind {
		case catalog.KindRuntime:
			stats.RuntimeCount++
		case catalog.KindStatic:
			stats.StaticCount++
		}
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	// Human-readable text output
	fmt.Fprintf(formatter.Writer, "✓ Compiled %d lesson(s) from %d file(s)\n\n",
		stats.LessonCount, stats.FileCount)

	if len(result.Lessons) > 0 {
		fmt.Fprintln(formatter.Writer, "Lessons:")
		for _, l := range result.Lessons {
			source := l.Scenario
			if source == "" {
				source = l.Fragment
			}
			fmt.Fprintf(formatter.Writer, "  %s: %s %s (%s)\n", l.Name, l.Topic, l.Kind, source)
		}
		fmt.Fprintln(formatter.Writer)
	}

	fmt.Fprintf(formatter.Writer, "Catalog hash: %s\n", result.CatalogHash)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote canonical catalog to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs every load and validation error found.
func outputCompileErrors(formatter *OutputFormatter, loadErrs []error, validationErrs []catalog.ValidationError) error {
	cliErrors := make([]CLIError, 0, len(loadErrs)+len(validationErrs))
	for _, err := range loadErrs {
		code, message := parseLoadError(err)
		cliErrors = append(cliErrors, CLIError{Code: code, Message: message})
	}
	for _, verr := range validationErrs {
		cliErrors = append(cliErrors, CLIError{
			Code:    verr.Code,
			Message: fmt.Sprintf("%s: %s", verr.Field, verr.Message),
		})
	}

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "✗ Compilation failed with %d error(s):\n\n", len(cliErrors))
		for _, cliErr := range cliErrors {
			fmt.Fprintf(formatter.Writer, "  [%s] %s\n", cliErr.Code, cliErr.Message)
		}
	}

	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(cliErrors)))
}

// parseLoadError extracts a code and message from a load error.
func parseLoadError(err error) (string, string) {
	var loadErr *catalog.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return catalog.ErrCodeGeneric, err.Error()
}
