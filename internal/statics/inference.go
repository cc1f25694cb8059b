package statics

import (
	"fmt"
	"go/token"
	"go/types"
)

// DefaultKind resolves expr as a constant expression and names the
// type it defaults to absent other constraints. Integer literals
// default to "int" and floating literals to "float64"; those two
// facts are what the inference demonstrations pin down.
func DefaultKind(expr string) (string, error) {
	fset := token.NewFileSet()
	pkg := types.NewPackage("fragment", "fragment")
	tv, err := types.Eval(fset, pkg, token.NoPos, expr)
	if err != nil {
		return "", fmt.Errorf("evaluating %q: %w", expr, err)
	}
	return types.Default(tv.Type).String(), nil
}

// Name reports the dynamic type of v. The runtime mirror of
// DefaultKind: passing an untyped literal lets the caller observe
// what the compiler defaulted it to.
func Name(v any) string {
	return fmt.Sprintf("%T", v)
}
