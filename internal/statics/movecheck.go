// Package statics holds the translation-time half of the lab: an
// analyzer that rejects use of a value after an ownership-transferring
// call, a standalone fragment checker, and the numeric literal
// default-type probe.
//
// These checks run before any demonstration executes. A held-out
// fragment that must not translate is "checked" by requiring the
// analyzer or the type checker to reject it; there is no runtime
// representation of that failure.
package statics

import (
	"go/ast"
	"go/token"
	"go/types"
	"sort"
	"strings"

	"golang.org/x/tools/go/analysis"
)

// consumesDirective marks a function declaration whose listed
// parameters (or receiver) take ownership of their arguments.
const consumesDirective = "//movecheck:consumes"

// receiverSlot marks the receiver in a consume position list.
const receiverSlot = -1

// MoveCheck reports uses of a local variable after it has been passed
// in a consume position of a call.
//
// A declaration opts in with a directive naming the consuming
// parameters, for example:
//
//	//movecheck:consumes b
//	func (b *Box) Take() string { ... }
//
// After a call through such a declaration, any later use of the
// argument identifier in the same function body is reported, until a
// plain reassignment gives the variable a fresh value. Uses are
// ordered by source position, which matches evaluation order for the
// straight-line fragments this lab checks.
var MoveCheck = &analysis.Analyzer{
	Name: "movecheck",
	Doc:  "report uses of a value after an ownership-transferring call",
	Run:  runMoveCheck,
}

func runMoveCheck(pass *analysis.Pass) (interface{}, error) {
	for _, d := range moveDiagnostics(pass.Fset, pass.Files, pass.TypesInfo) {
		pass.Report(analysis.Diagnostic{Pos: d.pos, Message: d.message})
	}
	return nil, nil
}

// moveDiag is one finding, position still unresolved against a file
// set.
type moveDiag struct {
	pos     token.Pos
	message string
}

// moveDiagnostics runs the analysis over already type-checked files.
// It is shared by the Analyzer and by CheckFragmentSource, which has
// no analysis.Pass to offer.
func moveDiagnostics(fset *token.FileSet, files []*ast.File, info *types.Info) []moveDiag {
	var diags []moveDiag

	consumers := collectConsumers(files, info, &diags)

	for _, file := range files {
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Body == nil {
				continue
			}
			diags = append(diags, analyzeBody(fn.Body, info, consumers)...)
		}
	}

	sort.Slice(diags, func(i, j int) bool { return diags[i].pos < diags[j].pos })
	return diags
}

// collectConsumers indexes the consume positions declared by directive
// comments, keyed by the function object. Bad directive names are
// reported rather than silently dropped.
func collectConsumers(files []*ast.File, info *types.Info, diags *[]moveDiag) map[*types.Func][]int {
	consumers := make(map[*types.Func][]int)

	for _, file := range files {
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Doc == nil {
				continue
			}
			names := directiveNames(fn.Doc)
			if len(names) == 0 {
				continue
			}
			obj, ok := info.Defs[fn.Name].(*types.Func)
			if !ok {
				continue
			}

			slots := make(map[string]int)
			if fn.Recv != nil && len(fn.Recv.List) == 1 && len(fn.Recv.List[0].Names) == 1 {
				slots[fn.Recv.List[0].Names[0].Name] = receiverSlot
			}
			index := 0
			if fn.Type.Params != nil {
				for _, field := range fn.Type.Params.List {
					for _, name := range field.Names {
						slots[name.Name] = index
						index++
					}
				}
			}

			for _, name := range names {
				slot, ok := slots[name]
				if !ok {
					*diags = append(*diags, moveDiag{
						pos:     fn.Pos(),
						message: "unknown name \"" + name + "\" in movecheck:consumes directive",
					})
					continue
				}
				consumers[obj] = append(consumers[obj], slot)
			}
		}
	}

	return consumers
}

// directiveNames extracts the names listed by a consumes directive in
// a doc comment group.
func directiveNames(doc *ast.CommentGroup) []string {
	for _, c := range doc.List {
		if !strings.HasPrefix(c.Text, consumesDirective) {
			continue
		}
		rest := strings.TrimPrefix(c.Text, consumesDirective)
		return strings.Fields(rest)
	}
	return nil
}

// Event kinds, in tie-break order for equal positions: the consuming
// occurrence of an identifier is a use and a move at the same
// position, and must not be reported against its own move.
type eventKind int

const (
	eventUse eventKind = iota
	eventMove
	eventRevive
)

type event struct {
	kind eventKind
	obj  types.Object
	pos  token.Pos
	name string
}

// analyzeBody collects use/move/revive events for one function body
// and replays them in source order.
func analyzeBody(body *ast.BlockStmt, info *types.Info, consumers map[*types.Func][]int) []moveDiag {
	var events []event

	// Plain identifiers on the left of an assignment are writes that
	// revive the variable, not uses of its old value.
	reviveIdents := make(map[*ast.Ident]bool)

	ast.Inspect(body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.AssignStmt:
			for _, lhs := range n.Lhs {
				id, ok := lhs.(*ast.Ident)
				if !ok || id.Name == "_" {
					continue
				}
				reviveIdents[id] = true
				if obj := identVar(id, info); obj != nil {
					// The write completes after the right side has
					// been evaluated, hence the statement end.
					events = append(events, event{kind: eventRevive, obj: obj, pos: n.End(), name: id.Name})
				}
			}

		case *ast.CallExpr:
			fn := calleeFunc(n, info)
			if fn == nil {
				break
			}
			slots, ok := consumers[fn]
			if !ok {
				break
			}
			for _, slot := range slots {
				var arg ast.Expr
				if slot == receiverSlot {
					sel, ok := n.Fun.(*ast.SelectorExpr)
					if !ok {
						continue
					}
					arg = sel.X
				} else if slot < len(n.Args) {
					arg = n.Args[slot]
				}
				id, ok := unwrapExpr(arg).(*ast.Ident)
				if !ok {
					continue
				}
				if obj := identVar(id, info); obj != nil {
					events = append(events, event{kind: eventMove, obj: obj, pos: id.Pos(), name: id.Name})
				}
			}

		case *ast.Ident:
			if reviveIdents[n] {
				break
			}
			if obj := identVar(n, info); obj != nil {
				events = append(events, event{kind: eventUse, obj: obj, pos: n.Pos(), name: n.Name})
			}
		}
		return true
	})

	sort.Slice(events, func(i, j int) bool {
		if events[i].pos != events[j].pos {
			return events[i].pos < events[j].pos
		}
		return events[i].kind < events[j].kind
	})

	var diags []moveDiag
	moved := make(map[types.Object]bool)
	for _, ev := range events {
		switch ev.kind {
		case eventUse:
			if moved[ev.obj] {
				diags = append(diags, moveDiag{
					pos:     ev.pos,
					message: "use of moved value: " + ev.name,
				})
			}
		case eventMove:
			moved[ev.obj] = true
		case eventRevive:
			delete(moved, ev.obj)
		}
	}
	return diags
}

// calleeFunc resolves the function object a call goes through,
// normalized to its generic origin so instantiated methods share one
// directive entry.
func calleeFunc(call *ast.CallExpr, info *types.Info) *types.Func {
	var obj types.Object
	switch fun := unwrapExpr(call.Fun).(type) {
	case *ast.Ident:
		obj = info.Uses[fun]
	case *ast.SelectorExpr:
		obj = info.Uses[fun.Sel]
	}
	fn, ok := obj.(*types.Func)
	if !ok {
		return nil
	}
	if origin := fn.Origin(); origin != nil {
		return origin
	}
	return fn
}

// identVar resolves an identifier to a non-field variable object.
// Everything else (functions, types, fields, the blank identifier) is
// outside move tracking.
func identVar(id *ast.Ident, info *types.Info) types.Object {
	obj := info.Uses[id]
	if obj == nil {
		obj = info.Defs[id]
	}
	v, ok := obj.(*types.Var)
	if !ok || v.IsField() {
		return nil
	}
	return v
}

// unwrapExpr strips parens, address-of, and dereference so the tracked
// identifier underneath an argument expression is visible.
func unwrapExpr(e ast.Expr) ast.Expr {
	for {
		switch inner := e.(type) {
		case *ast.ParenExpr:
			e = inner.X
		case *ast.StarExpr:
			e = inner.X
		case *ast.UnaryExpr:
			if inner.Op != token.AND {
				return e
			}
			e = inner.X
		default:
			return e
		}
	}
}
