// Package apperrors provides a chainable, taggable error type shared by
// every service in the repository. Errors form a tree: a sentinel created
// with New is the root of a family, and derived errors created with
// (Error).New satisfy errors.Is against every ancestor.
package apperrors

// Error is the error type returned across every service boundary.
type Error interface {
	Error() string
	New(msg string) Error
	Msg(msg string) Error
	MsgErr(msg string, err ...error) Error
	Err(err ...error) Error
	Unwrap() []error
	Is(target error) bool
	SetStatusCode(code int) Error
	StatusCode() int
}

type appError struct {
	msg        string
	base       Error
	wrapped    []error
	statuscode int
}

// New creates a new root error sentinel.
func New(msg string) Error {
	return &appError{msg: msg}
}

func (e *appError) Error() string {
	return e.msg
}

// New derives a child error that keeps the parent's status code and
// answers true to Is(parent).
func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statuscode: e.statuscode,
	}
}

func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    e.wrapped,
		statuscode: e.statuscode,
	}
}

func (e *appError) MsgErr(msg string, err ...error) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    append(append([]error{}, e.wrapped...), err...),
		statuscode: e.statuscode,
	}
}

func (e *appError) Err(err ...error) Error {
	return &appError{
		msg:        e.msg,
		base:       e,
		wrapped:    append(append([]error{}, e.wrapped...), err...),
		statuscode: e.statuscode,
	}
}

func (e *appError) Unwrap() []error {
	return e.wrapped
}

func (e *appError) Is(target error) bool {
	if e == target || e.base == target {
		return true
	}
	if e.base != nil && e.base.Is(target) {
		return true
	}
	for _, err := range e.wrapped {
		if err == target {
			return true
		}
	}
	return false
}

func (e *appError) SetStatusCode(code int) Error {
	e.statuscode = code
	return e
}

func (e *appError) StatusCode() int {
	return e.statuscode
}
