// Package catalog compiles lesson manifests written in CUE into the
// Lesson records the rest of the tool consumes.
//
// A lesson manifest declares what a lesson teaches and how it is
// checked: runtime lessons name a YAML scenario interpreted by the
// harness, static lessons name a Go fragment checked by the analyzer.
// Compilation is fail-fast on structural problems; Validate collects
// every semantic error so authors see the full list at once.
package catalog

import (
	"sort"

	"cuelang.org/go/cue"

	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

// Lesson kinds.
const (
	// KindRuntime lessons execute a YAML scenario against the runtime
	// ownership primitives and compare the recorded trace.
	KindRuntime = "runtime"
	// KindStatic lessons type-check and move-check a Go source
	// fragment without running it.
	KindStatic = "static"
)

// Expectations for static lessons.
const (
	// ExpectAccept means the fragment must compile cleanly.
	ExpectAccept = "accept"
	// ExpectReject means the fragment must be refused, and every
	// entry in WantDiagnostics must appear among the diagnostics.
	ExpectReject = "reject"
)

// Topics group lessons by the ownership concept they teach.
var ValidTopics = map[string]bool{
	"moves":     true,
	"borrowing": true,
	"sharing":   true,
	"quota":     true,
	"deref":     true,
	"inference": true,
}

// Lesson is one compiled lesson manifest.
type Lesson struct {
	Name    string // struct label in the CUE file, e.g. "shared_borrows"
	Title   string
	Summary string
	Topic   string
	Kind    string // KindRuntime or KindStatic
	Order   int    // display order within the catalog

	// Runtime lessons.
	Scenario string // path to the YAML scenario, relative to the catalog dir

	// Static lessons.
	Fragment        string   // path to the Go fragment, relative to the catalog dir
	Expect          string   // ExpectAccept or ExpectReject
	WantDiagnostics []string // substrings that must appear when Expect is reject
}

// Catalog is a set of compiled lessons loaded from one directory.
type Catalog struct {
	Lessons   []Lesson  // sorted by (Order, Name)
	Dir       string    // directory the catalog was loaded from
	FileCount int       // number of .cue files found
	Value     cue.Value // the built CUE value, for callers that need raw access
}

// Lesson returns the lesson with the given name.
func (c *Catalog) Lesson(name string) (*Lesson, bool) {
	for i := range c.Lessons {
		if c.Lessons[i].Name == name {
			return &c.Lessons[i], true
		}
	}
	return nil, false
}

// sortLessons orders lessons by Order, breaking ties by Name.
func sortLessons(lessons []Lesson) {
	sort.Slice(lessons, func(i, j int) bool {
		if lessons[i].Order != lessons[j].Order {
			return lessons[i].Order < lessons[j].Order
		}
		return lessons[i].Name < lessons[j].Name
	})
}

// lessonsObject renders the catalog as a trace object keyed by
// lesson name, the form both hashing and canonical output consume.
func (c *Catalog) lessonsObject() trace.Object {
	lessons := trace.Object{}
	for _, l := range c.Lessons {
		lessons[l.Name] = l.traceValue()
	}
	return lessons
}

// Hash returns the content-addressed hash of the whole catalog.
// Lessons are keyed by name, so the hash is independent of display
// order and file layout; any change to lesson content changes it.
func (c *Catalog) Hash() (string, error) {
	return trace.CatalogHash(c.lessonsObject())
}

// MarshalCanonical renders the catalog as canonical JSON: lessons
// keyed by name plus the catalog hash. Loading the same lesson
// content from any file layout yields the same bytes, so the output
// diffs cleanly between catalog versions.
func (c *Catalog) MarshalCanonical() ([]byte, error) {
	lessons := c.lessonsObject()
	hash, err := trace.CatalogHash(lessons)
	if err != nil {
		return nil, err
	}
	data, err := trace.MarshalCanonical(trace.Object{
		"catalog_hash": trace.Str(hash),
		"lessons":      lessons,
	})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// traceValue renders the lesson as a trace value for hashing.
// Empty optional fields are omitted rather than encoded as "".
func (l Lesson) traceValue() trace.Object {
	obj := trace.Object{
		"title": trace.Str(l.Title),
		"topic": trace.Str(l.Topic),
		"kind":  trace.Str(l.Kind),
		"order": trace.Int(l.Order),
	}
	if l.Summary != "" {
		obj["summary"] = trace.Str(l.Summary)
	}
	if l.Scenario != "" {
		obj["scenario"] = trace.Str(l.Scenario)
	}
	if l.Fragment != "" {
		obj["fragment"] = trace.Str(l.Fragment)
	}
	if l.Expect != "" {
		obj["expect"] = trace.Str(l.Expect)
	}
	if len(l.WantDiagnostics) > 0 {
		obj["want_diagnostics"] = trace.Strings(l.WantDiagnostics...)
	}
	return obj
}
