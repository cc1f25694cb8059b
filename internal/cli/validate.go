package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castamos/learn-rust-by-testing/internal/catalog"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                      `json:"valid"`
	Errors []catalog.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog-dir>",
		Short: "Validate a catalog without running it",
		Long: `Validate lesson manifests without executing anything.

Checks every lesson against the catalog schema and verifies that the
scenario and fragment files lessons reference actually exist. Faster
than a full run for catalog authoring feedback.

Exit codes:
  0 - Catalog is valid
  1 - Validation errors found
  2 - Command error (directory not found, manifests unreadable, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, catalogDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	cat, loadErrors := catalog.Load(catalogDir, catalog.LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if cat == nil && len(loadErrors) > 0 {
		var loadErr *catalog.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, catalog.ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", cat.FileCount, catalogDir)

	var validationErrors []catalog.ValidationError

	// Manifests that failed to compile surface as validation errors
	// alongside the schema problems of the ones that compiled
	for _, err := range loadErrors {
		var loadErr *catalog.LoadError
		if errors.As(err, &loadErr) {
			validationErrors = append(validationErrors, catalog.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
			})
		} else {
			validationErrors = append(validationErrors, catalog.ValidationError{
				Field:   "load",
				Message: err.Error(),
				Code:    catalog.ErrCodeGeneric,
			})
		}
	}

	for i := range cat.Lessons {
		lesson := &cat.Lessons[i]
		formatter.VerboseLog("Validating lesson: %s", lesson.Name)

		errs := catalog.Validate(lesson)
		validationErrors = append(validationErrors, errs...)

		// Reference checks only make sense for paths the schema accepted
		if len(errs) == 0 {
			validationErrors = append(validationErrors, catalog.ValidateSources(lesson, catalogDir)...)
		}
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, len(cat.Lessons))
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, lessonCount int) error {
	if formatter.Format == "json" {
		result := ValidationResult{Valid: true}
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Catalog valid (%d lesson(s))\n", lessonCount)
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Load problems are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []catalog.ValidationError) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  [%s] %s: %s\n", err.Code, err.Field, err.Message)
	}
	fmt.Fprintln(formatter.Writer)

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateCatalogDir validates every lesson in a catalog directory.
// This is a helper for external callers; run uses it as a preflight.
func ValidateCatalogDir(catalogDir string) ([]catalog.ValidationError, error) {
	cat, loadErrors := catalog.Load(catalogDir, catalog.LoadModeFailFast)
	if cat == nil && len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}

	var validationErrors []catalog.ValidationError
	for _, err := range loadErrors {
		var loadErr *catalog.LoadError
		if errors.As(err, &loadErr) {
			validationErrors = append(validationErrors, catalog.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
			})
		}
	}
	for i := range cat.Lessons {
		lesson := &cat.Lessons[i]
		errs := catalog.Validate(lesson)
		validationErrors = append(validationErrors, errs...)
		if len(errs) == 0 {
			validationErrors = append(validationErrors, catalog.ValidateSources(lesson, catalogDir)...)
		}
	}

	return validationErrors, nil
}
