package catalog

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // value is not a Lesson

	// Lesson errors (E101-E111)
	ErrTitleEmpty         = "E101" // title is required
	ErrUnknownTopic       = "E102" // topic not in ValidTopics
	ErrUnknownKind        = "E103" // kind not runtime/static
	ErrMissingScenario    = "E104" // runtime lesson without scenario
	ErrMissingFragment    = "E105" // static lesson without fragment
	ErrInvalidExpect      = "E106" // expect not accept/reject
	ErrConflictingSource  = "E107" // runtime lesson naming a fragment or vice versa
	ErrBadSourcePath      = "E108" // wrong extension or absolute path
	ErrUselessDiagnostics = "E109" // want_diagnostics on a non-reject lesson
	ErrBadLessonName      = "E110" // lesson label not lower_snake_case
	ErrDanglingSource     = "E111" // referenced file does not exist
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled lesson against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch lesson := v.(type) {
	case *Lesson:
		return validateLesson(lesson)
	case Lesson:
		return validateLesson(&lesson)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

// validateLesson checks one lesson.
func validateLesson(l *Lesson) []ValidationError {
	var errs []ValidationError

	// E110: lesson labels are lower_snake_case
	if !ValidLessonName(l.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("lesson name %q must be lower_snake_case", l.Name),
			Code:    ErrBadLessonName,
		})
	}

	// E101: title is required
	if strings.TrimSpace(l.Title) == "" {
		errs = append(errs, ValidationError{
			Field:   "title",
			Message: "title is required and must be non-empty",
			Code:    ErrTitleEmpty,
		})
	}

	// E102: topic must be known
	if !ValidTopics[l.Topic] {
		errs = append(errs, ValidationError{
			Field:   "topic",
			Message: fmt.Sprintf("unknown topic %q, must be one of %s", l.Topic, topicList()),
			Code:    ErrUnknownTopic,
		})
	}

	switch l.Kind {
	case KindRuntime:
		errs = append(errs, validateRuntimeLesson(l)...)
	case KindStatic:
		errs = append(errs, validateStaticLesson(l)...)
	default:
		// E103: kind must be runtime or static
		errs = append(errs, ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("unknown kind %q, must be %q or %q", l.Kind, KindRuntime, KindStatic),
			Code:    ErrUnknownKind,
		})
	}

	return errs
}

func validateRuntimeLesson(l *Lesson) []ValidationError {
	var errs []ValidationError

	// E104: runtime lessons need a scenario
	if strings.TrimSpace(l.Scenario) == "" {
		errs = append(errs, ValidationError{
			Field:   "scenario",
			Message: fmt.Sprintf("runtime lesson %q must name a scenario file", l.Name),
			Code:    ErrMissingScenario,
		})
	} else {
		errs = append(errs, validateSourcePath(l.Scenario, "scenario", ".yaml", ".yml")...)
	}

	// E107: runtime lessons must not carry static fields
	if l.Fragment != "" {
		errs = append(errs, ValidationError{
			Field:   "fragment",
			Message: fmt.Sprintf("runtime lesson %q must not name a fragment", l.Name),
			Code:    ErrConflictingSource,
		})
	}
	if l.Expect != "" {
		errs = append(errs, ValidationError{
			Field:   "expect",
			Message: fmt.Sprintf("expect applies only to static lessons, not runtime lesson %q", l.Name),
			Code:    ErrConflictingSource,
		})
	}
	if len(l.WantDiagnostics) > 0 {
		errs = append(errs, ValidationError{
			Field:   "want_diagnostics",
			Message: fmt.Sprintf("want_diagnostics applies only to static reject lessons, not runtime lesson %q", l.Name),
			Code:    ErrUselessDiagnostics,
		})
	}

	return errs
}

func validateStaticLesson(l *Lesson) []ValidationError {
	var errs []ValidationError

	// E105: static lessons need a fragment
	if strings.TrimSpace(l.Fragment) == "" {
		errs = append(errs, ValidationError{
			Field:   "fragment",
			Message: fmt.Sprintf("static lesson %q must name a Go fragment", l.Name),
			Code:    ErrMissingFragment,
		})
	} else {
		errs = append(errs, validateSourcePath(l.Fragment, "fragment", ".go")...)
	}

	// E106: expect must be accept or reject
	if l.Expect != ExpectAccept && l.Expect != ExpectReject {
		errs = append(errs, ValidationError{
			Field:   "expect",
			Message: fmt.Sprintf("static lesson %q must expect %q or %q, got %q", l.Name, ExpectAccept, ExpectReject, l.Expect),
			Code:    ErrInvalidExpect,
		})
	}

	// E107: static lessons must not carry runtime fields
	if l.Scenario != "" {
		errs = append(errs, ValidationError{
			Field:   "scenario",
			Message: fmt.Sprintf("static lesson %q must not name a scenario", l.Name),
			Code:    ErrConflictingSource,
		})
	}

	// E109: diagnostics only make sense when rejecting
	if l.Expect == ExpectAccept && len(l.WantDiagnostics) > 0 {
		errs = append(errs, ValidationError{
			Field:   "want_diagnostics",
			Message: fmt.Sprintf("lesson %q expects accept; want_diagnostics would never be checked", l.Name),
			Code:    ErrUselessDiagnostics,
		})
	}

	return errs
}

// ValidateSources checks that the files a lesson references exist
// under the catalog directory rooted at dir. Schema validation stays
// off the filesystem; commands that need references to resolve run
// this as a separate pass.
func ValidateSources(l *Lesson, dir string) []ValidationError {
	var errs []ValidationError
	check := func(rel, field string) {
		if rel == "" {
			return
		}
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("lesson %q references %s %q, which does not exist", l.Name, field, rel),
				Code:    ErrDanglingSource,
			})
		}
	}
	check(l.Scenario, "scenario")
	check(l.Fragment, "fragment")
	return errs
}

// validateSourcePath checks that a lesson source path is relative and
// carries one of the allowed extensions.
func validateSourcePath(p, field string, allowedExts ...string) []ValidationError {
	var errs []ValidationError

	if path.IsAbs(p) || strings.HasPrefix(p, "../") {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("path %q must stay inside the catalog directory", p),
			Code:    ErrBadSourcePath,
		})
	}

	ext := path.Ext(p)
	for _, allowed := range allowedExts {
		if ext == allowed {
			return errs
		}
	}
	errs = append(errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf("path %q must end in %s", p, strings.Join(allowedExts, " or ")),
		Code:    ErrBadSourcePath,
	})

	return errs
}

func topicList() string {
	names := make([]string, 0, len(ValidTopics))
	for name := range ValidTopics {
		names = append(names, name)
	}
	// Stable order for error messages.
	for i := 1; i < len(names); i++ {
		j := i
		for j > 0 && names[j] < names[j-1] {
			names[j], names[j-1] = names[j-1], names[j]
			j--
		}
	}
	return strings.Join(names, ", ")
}

// lessonNamePattern matches valid lesson labels: lower_snake_case.
var lessonNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidLessonName reports whether a lesson label is well-formed.
func ValidLessonName(name string) bool {
	return lessonNamePattern.MatchString(name)
}
