// Package fault defines the error taxonomy shared by the domain services and
// the HTTP layer. Services wrap causes with one of the four kinds; the HTTP
// layer maps kinds onto status codes without inspecting package internals.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a uniqueness violation such as a duplicate join.
	ErrConflict = errors.New("conflict")
	// ErrInvalidArgument marks malformed or missing caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDependencyFailure marks an unavailable store or downstream collaborator.
	ErrDependencyFailure = errors.New("dependency failure")
)

// Error carries a dot-separated operation code alongside the fault kind and cause.
type Error struct {
	code  string
	kind  error
	cause error
}

// New wraps cause as the given kind with a code of the form "pkg.op.reason".
func New(kind error, code string, cause error) error {
	return &Error{code: code, kind: kind, cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %v", e.code, e.kind)
	}
	return fmt.Sprintf("%s: %v", e.code, e.cause)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// Code returns the operation code for logging and diagnostics.
func (e *Error) Code() string {
	return e.code
}

// Code extracts the operation code from err when it carries one.
func Code(err error) string {
	var faultErr *Error
	if errors.As(err, &faultErr) {
		return faultErr.Code()
	}
	return ""
}
