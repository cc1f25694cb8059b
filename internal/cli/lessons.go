package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/castamos/learn-rust-by-testing/internal/catalog"
)

// LessonInfo is one catalog entry as listed to the user.
type LessonInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Topic   string `json:"topic"`
	Kind    string `json:"kind"`
	Order   int    `json:"order"`
	Summary string `json:"summary,omitempty"`
	Source  string `json:"source"` // scenario or fragment path
}

// LessonsResult holds the catalog listing.
type LessonsResult struct {
	Lessons     []LessonInfo `json:"lessons"`
	Total       int          `json:"total"`
	CatalogHash string       `json:"catalog_hash"`
}

// NewLessonsCommand creates the lessons command.
func NewLessonsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lessons <catalog-dir>",
		Short: "List the lessons in a catalog",
		Long: `List every lesson a catalog declares, in display order.

Shows each lesson's name, topic, kind, and title, plus the content
hash of the whole catalog. The catalog is loaded but nothing is
executed.

Examples:
  ownlab lessons ./lessons
  ownlab lessons ./lessons --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLessons(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runLessons(opts *RootOptions, catalogDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cat, loadErrors := catalog.Load(catalogDir, catalog.LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *catalog.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return WrapExitError(ExitCommandError, loadErr.Message, nil)
		}
		_ = formatter.Error(catalog.ErrCodeGeneric, loadErrors[0].Error(), nil)
		return WrapExitError(ExitCommandError, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", cat.FileCount, catalogDir)

	hash, err := cat.Hash()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash catalog", err)
	}

	result := LessonsResult{
		Lessons:     make([]LessonInfo, 0, len(cat.Lessons)),
		Total:       len(cat.Lessons),
		CatalogHash: hash,
	}
	for _, l := range cat.Lessons {
		source := l.Scenario
		if source == "" {
			source = l.Fragment
		}
		result.Lessons = append(result.Lessons, LessonInfo{
			Name:    l.Name,
			Title:   l.Title,
			Topic:   l.Topic,
			Kind:    l.Kind,
			Order:   l.Order,
			Summary: l.Summary,
			Source:  source,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	return outputLessonsText(cmd, result)
}

// outputLessonsText renders the catalog listing as a table.
func outputLessonsText(cmd *cobra.Command, result LessonsResult) error {
	w := cmd.OutOrStdout()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Name", "Topic", "Kind", "Title"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
	})

	for _, l := range result.Lessons {
		table.Append([]string{strconv.Itoa(l.Order), l.Name, l.Topic, l.Kind, l.Title})
	}
	table.Render()

	fmt.Fprintf(w, "\n%d lesson(s), catalog %s\n", result.Total, result.CatalogHash)
	return nil
}
