package expr

import "fmt"

// Error is a hard evaluation failure. Expr holds the offending source text.
type Error struct {
	Expr string
	Pos  int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("could not evaluate %q: %s", e.Expr, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Failure is raised by assert() and equal() inside expressions.
type Failure struct {
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}
