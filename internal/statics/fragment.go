package statics

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
)

// Diagnostic is one finding against a fragment, with its position
// already rendered as "file.go:line:col".
type Diagnostic struct {
	Pos     string `json:"pos"`
	Message string `json:"message"`
}

// Report is the outcome of checking one held-out fragment. A fragment
// is rejected when translation fails at any stage: scanning, parsing,
// type checking, or move checking.
type Report struct {
	Name       string       `json:"name"`
	TypeErrors []Diagnostic `json:"type_errors,omitempty"`
	MoveErrors []Diagnostic `json:"move_errors,omitempty"`
}

// Rejected reports whether the fragment failed translation. For a
// fragment expected to be refused, this is its pass condition.
func (r Report) Rejected() bool {
	return len(r.TypeErrors) > 0 || len(r.MoveErrors) > 0
}

// CheckFragment reads and checks one fragment file. The returned
// error covers only I/O; every translation failure lands in the
// report.
func CheckFragment(path string) (Report, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("reading fragment: %w", err)
	}
	return CheckFragmentSource(filepath.Base(path), src), nil
}

// CheckFragmentSource checks one self-contained fragment: parse, type
// check, then move check. Fragments import nothing; an import fails
// type checking and counts as a rejection like any other.
func CheckFragmentSource(name string, src []byte) Report {
	report := Report{Name: name}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, name, src, parser.ParseComments)
	if err != nil {
		if list, ok := err.(scanner.ErrorList); ok {
			for _, e := range list {
				report.TypeErrors = append(report.TypeErrors, Diagnostic{
					Pos:     e.Pos.String(),
					Message: e.Msg,
				})
			}
		} else {
			report.TypeErrors = append(report.TypeErrors, Diagnostic{Message: err.Error()})
		}
		return report
	}

	info := &types.Info{
		Defs:  make(map[*ast.Ident]types.Object),
		Uses:  make(map[*ast.Ident]types.Object),
		Types: make(map[ast.Expr]types.TypeAndValue),
	}
	conf := types.Config{
		Error: func(err error) {
			te, ok := err.(types.Error)
			if !ok {
				report.TypeErrors = append(report.TypeErrors, Diagnostic{Message: err.Error()})
				return
			}
			report.TypeErrors = append(report.TypeErrors, Diagnostic{
				Pos:     te.Fset.Position(te.Pos).String(),
				Message: te.Msg,
			})
		},
	}
	// The returned error repeats what the Error callback collected.
	_, _ = conf.Check(file.Name.Name, fset, []*ast.File{file}, info)

	for _, d := range moveDiagnostics(fset, []*ast.File{file}, info) {
		report.MoveErrors = append(report.MoveErrors, Diagnostic{
			Pos:     fset.Position(d.pos).String(),
			Message: d.message,
		})
	}

	return report
}
