// Package errs defines the error taxonomy shared by the monitoring pipeline.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindValidation marks a malformed or incomplete reading.
	KindValidation Kind = "validation"
	// KindSource marks a failing upstream stream or collaborator.
	KindSource Kind = "source"
	// KindDispatch marks a failed alert delivery.
	KindDispatch Kind = "dispatch"
)

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(op string, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

func Source(op string, err error) error {
	return &Error{Kind: KindSource, Op: op, Err: err}
}

func Dispatch(op string, err error) error {
	return &Error{Kind: KindDispatch, Op: op, Err: err}
}

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
