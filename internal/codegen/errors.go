package codegen

import (
	"errors"
	"fmt"

	"ncgen/internal/ast"
)

var ErrSiteMismatch = errors.New("site offset does not match emitted offset")

// Error reports the node that could not be emitted. Err wraps one of the
// symtab, x86_64 or codegen sentinels.
type Error struct {
	Kind ast.Kind
	Name string
	Line int
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %v", e.Line, msg, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func nodeError(n ast.Node, name string, err error) error {
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Kind: n.Kind(), Name: name, Err: err}
}
