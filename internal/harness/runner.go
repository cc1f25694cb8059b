package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/castamos/learn-rust-by-testing/internal/catalog"
	"github.com/castamos/learn-rust-by-testing/internal/statics"
	"github.com/castamos/learn-rust-by-testing/internal/store"
	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

// Result is the outcome of one scenario execution.
type Result struct {
	Name     string
	RunToken string
	Passed   bool
	Failures []string
	Steps    []trace.Step
	Outcomes []trace.Outcome
}

// Verdict maps Passed onto the run verdict the store records.
func (r *Result) Verdict() string {
	if r.Passed {
		return trace.VerdictPass
	}
	return trace.VerdictFail
}

func (r *Result) fail(msg string) {
	r.Passed = false
	r.Failures = append(r.Failures, msg)
}

// Runner executes scenarios and lessons. The zero Runner is usable and
// mints UUIDv7 run tokens.
type Runner struct {
	// Tokens mints run tokens for scenarios that do not fix one.
	Tokens TokenGenerator
}

func (r *Runner) token(sc *Scenario) string {
	if sc.RunToken != "" {
		return sc.RunToken
	}
	if r.Tokens != nil {
		return r.Tokens.Generate()
	}
	return UUIDv7Generator{}.Generate()
}

// Run executes sc in a fresh session. The returned error covers
// authoring problems, which leave nothing worth recording; expectation
// mismatches and unexpected violations land in Result.Failures with
// Passed false.
func (r *Runner) Run(sc *Scenario) (*Result, error) {
	if err := validateScenario(sc); err != nil {
		return nil, err
	}

	sess := NewSession(r.token(sc))
	res := &Result{Name: sc.Name, RunToken: sess.RunToken(), Passed: true}

	for i := range sc.Steps {
		st := sc.Steps[i]
		_, out, err := sess.Execute(st)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		for _, mismatch := range checkExpect(i, st, out) {
			res.fail(mismatch.Error())
		}
		if out.OutputCase == trace.OutputViolation {
			// The violation already failed the scenario via checkExpect
			// unless this step expected it. Either way nothing runs
			// after a fatal violation.
			if st.Expect == nil {
				res.fail(fmt.Sprintf("steps[%d] %s: unexpected violation: %s",
					i, st.Op, describeViolation(out.Result)))
			}
			break
		}
	}

	res.Steps, res.Outcomes = sess.Recorded()
	return res, nil
}

// Persist writes the run and its full trace to st in one transaction.
// Returns false when the run token was already recorded, in which case
// nothing is written; replaying a recorded run is a no-op.
func Persist(ctx context.Context, st *store.Store, lesson, catalogHash string, res *Result) (bool, error) {
	if len(res.Steps) == 0 || len(res.Outcomes) == 0 {
		return false, fmt.Errorf("nothing to persist: empty trace")
	}
	run := trace.Run{
		RunToken:    res.RunToken,
		Lesson:      lesson,
		Scenario:    res.Name,
		CatalogHash: catalogHash,
		Verdict:     res.Verdict(),
		FirstSeq:    res.Steps[0].Seq,
		LastSeq:     res.Outcomes[len(res.Outcomes)-1].Seq,
	}
	return st.WriteRunAtomic(ctx, run, res.Steps, res.Outcomes)
}

// LessonResult reports one lesson execution.
type LessonResult struct {
	Lesson   string
	Kind     string
	Passed   bool
	Failures []string

	// Scenario is set for runtime lessons.
	Scenario *Result

	// Report is set for static lessons.
	Report *statics.Report
}

func (lr *LessonResult) fail(msg string) {
	lr.Passed = false
	lr.Failures = append(lr.Failures, msg)
}

// RunLesson executes one lesson from a catalog rooted at dir.
//
// Runtime lessons load and run their scenario, then persist the trace:
// into st when given, otherwise into a throwaway in-memory store, so
// every run exercises the whole record-and-persist path. Static
// lessons check their fragment and pass when the report matches the
// lesson's expectation.
func (r *Runner) RunLesson(ctx context.Context, lesson catalog.Lesson, dir string, st *store.Store, catalogHash string) (*LessonResult, error) {
	switch lesson.Kind {
	case catalog.KindRuntime:
		return r.runRuntimeLesson(ctx, lesson, dir, st, catalogHash)
	case catalog.KindStatic:
		return runStaticLesson(lesson, dir)
	}
	return nil, fmt.Errorf("lesson %s: unknown kind %q", lesson.Name, lesson.Kind)
}

func (r *Runner) runRuntimeLesson(ctx context.Context, lesson catalog.Lesson, dir string, st *store.Store, catalogHash string) (*LessonResult, error) {
	sc, err := LoadScenario(filepath.Join(dir, lesson.Scenario))
	if err != nil {
		return nil, fmt.Errorf("lesson %s: %w", lesson.Name, err)
	}
	res, err := r.Run(sc)
	if err != nil {
		return nil, fmt.Errorf("lesson %s: %w", lesson.Name, err)
	}

	if st == nil {
		mem, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("lesson %s: opening in-memory store: %w", lesson.Name, err)
		}
		defer mem.Close()
		st = mem
	}
	if _, err := Persist(ctx, st, lesson.Name, catalogHash, res); err != nil {
		return nil, fmt.Errorf("lesson %s: persisting run: %w", lesson.Name, err)
	}

	return &LessonResult{
		Lesson:   lesson.Name,
		Kind:     lesson.Kind,
		Passed:   res.Passed,
		Failures: res.Failures,
		Scenario: res,
	}, nil
}

func runStaticLesson(lesson catalog.Lesson, dir string) (*LessonResult, error) {
	report, err := statics.CheckFragment(filepath.Join(dir, lesson.Fragment))
	if err != nil {
		return nil, fmt.Errorf("lesson %s: %w", lesson.Name, err)
	}

	lr := &LessonResult{Lesson: lesson.Name, Kind: lesson.Kind, Passed: true, Report: &report}
	switch lesson.Expect {
	case catalog.ExpectReject:
		if !report.Rejected() {
			lr.fail(fmt.Sprintf("fragment %s was accepted, expected a rejection", lesson.Fragment))
			break
		}
		for _, want := range lesson.WantDiagnostics {
			if !reportMentions(report, want) {
				lr.fail(fmt.Sprintf("diagnostics do not mention %q", want))
			}
		}
	case catalog.ExpectAccept:
		if report.Rejected() {
			lr.fail(fmt.Sprintf("fragment %s was rejected: %s", lesson.Fragment, firstDiagnostic(report)))
		}
	default:
		return nil, fmt.Errorf("lesson %s: unknown expectation %q", lesson.Name, lesson.Expect)
	}
	return lr, nil
}

func reportMentions(report statics.Report, want string) bool {
	for _, d := range report.TypeErrors {
		if strings.Contains(d.Message, want) {
			return true
		}
	}
	for _, d := range report.MoveErrors {
		if strings.Contains(d.Message, want) {
			return true
		}
	}
	return false
}

func firstDiagnostic(report statics.Report) string {
	if len(report.TypeErrors) > 0 {
		return report.TypeErrors[0].Message
	}
	if len(report.MoveErrors) > 0 {
		return report.MoveErrors[0].Message
	}
	return "no diagnostics"
}

// LessonFailure pins one failed lesson to its reasons.
type LessonFailure struct {
	Lesson  string
	Kind    string
	Reasons []string
}

// CatalogSummary aggregates a whole catalog execution.
type CatalogSummary struct {
	TotalLessons int
	Passed       int
	Failed       int
	Failures     []LessonFailure
	Results      []*LessonResult
}

// RunCatalog executes every lesson in the catalog, in catalog order.
// filter, when non-empty, restricts execution to lessons whose name
// contains it. A failing lesson does not stop the ones after it.
func (r *Runner) RunCatalog(ctx context.Context, cat *catalog.Catalog, filter string, st *store.Store) (*CatalogSummary, error) {
	hash, err := cat.Hash()
	if err != nil {
		return nil, fmt.Errorf("hashing catalog: %w", err)
	}

	sum := &CatalogSummary{}
	for _, lesson := range cat.Lessons {
		if filter != "" && !strings.Contains(lesson.Name, filter) {
			continue
		}
		sum.TotalLessons++

		lr, err := r.RunLesson(ctx, lesson, cat.Dir, st, hash)
		if err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, LessonFailure{
				Lesson:  lesson.Name,
				Kind:    lesson.Kind,
				Reasons: []string{err.Error()},
			})
			continue
		}
		sum.Results = append(sum.Results, lr)
		if lr.Passed {
			sum.Passed++
			continue
		}
		sum.Failed++
		sum.Failures = append(sum.Failures, LessonFailure{
			Lesson:  lesson.Name,
			Kind:    lesson.Kind,
			Reasons: lr.Failures,
		})
	}
	return sum, nil
}
