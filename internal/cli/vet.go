package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/castamos/learn-rust-by-testing/internal/statics"
)

// VetOptions holds flags for the vet command.
type VetOptions struct {
	*RootOptions
}

// FragmentResult holds the check result for a single fragment.
type FragmentResult struct {
	File        string   `json:"file"`
	Accepted    bool     `json:"accepted"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// VetResult holds the overall vet result.
type VetResult struct {
	Fragments []FragmentResult `json:"fragments"`
	Accepted  int              `json:"accepted"`
	Rejected  int              `json:"rejected"`
	Total     int              `json:"total"`
}

// NewVetCommand creates the vet command.
func NewVetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "vet <fragments-dir>",
		Short: "Check held-out Go fragments",
		Long: `Type-check and move-check every Go fragment in a directory.

Runs the same static analysis as static lessons, but against loose
fragments with no expectation attached: each file is reported as
accepted or rejected with its diagnostics. Useful while authoring
fragments, before wiring them into a catalog.

Exit codes:
  0 - All fragments accepted
  1 - One or more fragments rejected
  2 - Command error (directory not found, unreadable files, etc.)

Examples:
  ownlab vet ./lessons/fragments
  ownlab vet ./lessons/fragments --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVet(opts, args[0], cmd)
		},
	}

	return cmd
}

func runVet(opts *VetOptions, fragmentsDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(fragmentsDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("fragments directory not found: %s", fragmentsDir))
	}

	files, err := findFragmentFiles(fragmentsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find fragments", err)
	}

	if len(files) == 0 {
		if opts.Format == "json" {
			return writeJSON(cmd, CLIResponse{
				Status: "ok",
				Data:   VetResult{Fragments: []FragmentResult{}},
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No fragments found.")
		return nil
	}

	result := VetResult{
		Fragments: make([]FragmentResult, 0, len(files)),
		Total:     len(files),
	}

	for _, file := range files {
		report, err := statics.CheckFragment(file)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to check %s", file), err)
		}

		fragResult := FragmentResult{
			File:     filepath.Base(file),
			Accepted: !report.Rejected(),
		}
		for _, d := range report.TypeErrors {
			fragResult.Diagnostics = append(fragResult.Diagnostics, fmt.Sprintf("%s: %s", d.Pos, d.Message))
		}
		for _, d := range report.MoveErrors {
			fragResult.Diagnostics = append(fragResult.Diagnostics, fmt.Sprintf("%s: %s", d.Pos, d.Message))
		}

		result.Fragments = append(result.Fragments, fragResult)
		if fragResult.Accepted {
			result.Accepted++
		} else {
			result.Rejected++
		}
	}

	if opts.Format == "json" {
		if err := outputVetJSON(cmd, result); err != nil {
			return err
		}
	} else {
		outputVetText(cmd, result)
	}

	if result.Rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d fragment(s) rejected", result.Rejected, result.Total))
	}
	return nil
}

// findFragmentFiles finds all Go files in a directory, sorted so the
// report order is stable.
func findFragmentFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".go" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// outputVetText prints one line per fragment plus diagnostics.
func outputVetText(cmd *cobra.Command, result VetResult) {
	w := cmd.OutOrStdout()

	for _, frag := range result.Fragments {
		if frag.Accepted {
			fmt.Fprintf(w, "✓ %s\n", frag.File)
			continue
		}

		fmt.Fprintf(w, "✗ %s\n", frag.File)
		for _, d := range frag.Diagnostics {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}

	fmt.Fprintf(w, "\n%d/%d fragment(s) accepted\n", result.Accepted, result.Total)
}

// outputVetJSON outputs the vet result as JSON.
func outputVetJSON(cmd *cobra.Command, result VetResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if result.Rejected > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_REJECTED",
			Message: fmt.Sprintf("%d of %d fragment(s) rejected", result.Rejected, result.Total),
		}
	}
	return writeJSON(cmd, response)
}
