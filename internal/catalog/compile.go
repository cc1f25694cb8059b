package catalog

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileLesson parses a CUE value into a Lesson.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The CUE value should be the lesson struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`lesson: borrowing: { ... }`)
//	lesson, err := CompileLesson(v.LookupPath(cue.ParsePath("lesson.borrowing")))
//
// Compilation is fail-fast and only checks structure: required fields
// present, every field the right CUE kind. Semantic rules (known
// topics, kind/source agreement) belong to Validate.
func CompileLesson(v cue.Value) (*Lesson, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	lesson := &Lesson{}

	// Lesson name comes from the struct label (the path selector).
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		lesson.Name = labels[len(labels)-1].String()
	}

	// title is required.
	titleVal := v.LookupPath(cue.ParsePath("title"))
	if !titleVal.Exists() {
		return nil, &CompileError{
			Field:   "title",
			Message: "title is required",
			Pos:     v.Pos(),
		}
	}
	title, err := titleVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	lesson.Title = title

	// kind is required.
	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return nil, &CompileError{
			Field:   "kind",
			Message: "kind is required",
			Pos:     v.Pos(),
		}
	}
	kind, err := kindVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	lesson.Kind = kind

	if lesson.Summary, err = optionalString(v, "summary"); err != nil {
		return nil, err
	}
	if lesson.Topic, err = optionalString(v, "topic"); err != nil {
		return nil, err
	}
	if lesson.Scenario, err = optionalString(v, "scenario"); err != nil {
		return nil, err
	}
	if lesson.Fragment, err = optionalString(v, "fragment"); err != nil {
		return nil, err
	}
	if lesson.Expect, err = optionalString(v, "expect"); err != nil {
		return nil, err
	}

	orderVal := v.LookupPath(cue.ParsePath("order"))
	if orderVal.Exists() {
		order, err := orderVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		lesson.Order = int(order)
	}

	diagVal := v.LookupPath(cue.ParsePath("want_diagnostics"))
	if diagVal.Exists() {
		iter, err := diagVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			diag, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			lesson.WantDiagnostics = append(lesson.WantDiagnostics, diag)
		}
	}

	return lesson, nil
}

// optionalString reads a string field, returning "" when absent.
func optionalString(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", nil
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors.
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info.
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
