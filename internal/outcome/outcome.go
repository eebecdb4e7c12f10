// Package outcome provides Outcome, a tri-state result (success, error or
// loading) returned by fallible and asynchronous operations in place of
// panics or bare errors.
package outcome

import (
	"context"
	"fmt"
	"reflect"
)

type State int

const (
	StateLoading State = iota
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "loading"
	}
}

// Failure is the payload of an error outcome.
type Failure struct {
	Message string
	Cause   error
	Trace   string
}

// Outcome is immutable once constructed. The zero value is Loading.
type Outcome[T any] struct {
	state   State
	data    T
	failure Failure
}

// Unit is the payload of operations that only report completion.
type Unit = struct{}

func Success[T any](data T) Outcome[T] {
	return Outcome[T]{state: StateSuccess, data: data}
}

func Error[T any](message string, cause error) Outcome[T] {
	return Outcome[T]{state: StateError, failure: Failure{Message: message, Cause: cause}}
}

// ErrorWithTrace records an additional trace, e.g. the operation chain that failed.
func ErrorWithTrace[T any](message string, cause error, trace string) Outcome[T] {
	return Outcome[T]{state: StateError, failure: Failure{Message: message, Cause: cause, Trace: trace}}
}

func Loading[T any]() Outcome[T] {
	return Outcome[T]{state: StateLoading}
}

// FromError bridges a conventional (value, error) pair.
func FromError[T any](data T, err error) Outcome[T] {
	if err != nil {
		return Error[T](err.Error(), err)
	}
	return Success(data)
}

func (o Outcome[T]) State() State    { return o.state }
func (o Outcome[T]) IsSuccess() bool { return o.state == StateSuccess }
func (o Outcome[T]) IsError() bool   { return o.state == StateError }
func (o Outcome[T]) IsLoading() bool { return o.state == StateLoading }

// Data returns the payload and true only for a success.
func (o Outcome[T]) Data() (T, bool) {
	if o.state != StateSuccess {
		var zero T
		return zero, false
	}
	return o.data, true
}

// ErrorMessage is empty unless the outcome is an error.
func (o Outcome[T]) ErrorMessage() string {
	if o.state != StateError {
		return ""
	}
	return o.failure.Message
}

func (o Outcome[T]) Failure() (Failure, bool) {
	return o.failure, o.state == StateError
}

// Err converts an error outcome back into an error. Success and loading return nil.
func (o Outcome[T]) Err() error {
	if o.state != StateError {
		return nil
	}
	if o.failure.Cause != nil {
		return o.failure.Cause
	}
	return fmt.Errorf("%s", o.failure.Message)
}

func (o Outcome[T]) UnwrapOr(def T) T {
	if o.state == StateSuccess {
		return o.data
	}
	return def
}

func (o Outcome[T]) OnSuccess(fn func(T)) Outcome[T] {
	if o.state == StateSuccess {
		fn(o.data)
	}
	return o
}

func (o Outcome[T]) OnError(fn func(Failure)) Outcome[T] {
	if o.state == StateError {
		fn(o.failure)
	}
	return o
}

func (o Outcome[T]) OnLoading(fn func()) Outcome[T] {
	if o.state == StateLoading {
		fn()
	}
	return o
}

// Equal compares the active tag and its payload.
func (o Outcome[T]) Equal(other Outcome[T]) bool {
	if o.state != other.state {
		return false
	}
	switch o.state {
	case StateSuccess:
		return reflect.DeepEqual(o.data, other.data)
	case StateError:
		return o.failure.Message == other.failure.Message &&
			o.failure.Trace == other.failure.Trace &&
			reflect.DeepEqual(o.failure.Cause, other.failure.Cause)
	default:
		return true
	}
}

func (o Outcome[T]) String() string {
	switch o.state {
	case StateSuccess:
		return fmt.Sprintf("Success(%v)", o.data)
	case StateError:
		return fmt.Sprintf("Error(%s)", o.failure.Message)
	default:
		return "Loading"
	}
}

// Map transforms a success payload. Error and loading pass through untouched
// and fn is not called.
func Map[T, U any](o Outcome[T], fn func(T) U) Outcome[U] {
	switch o.state {
	case StateSuccess:
		return Success(fn(o.data))
	case StateError:
		return Outcome[U]{state: StateError, failure: o.failure}
	default:
		return Loading[U]()
	}
}

// Chain sequences a fallible step after a success.
func Chain[T, U any](o Outcome[T], fn func(T) Outcome[U]) Outcome[U] {
	switch o.state {
	case StateSuccess:
		return fn(o.data)
	case StateError:
		return Outcome[U]{state: StateError, failure: o.failure}
	default:
		return Loading[U]()
	}
}

// ChainContext is Chain for blocking steps. A cancelled context turns into an
// error outcome before fn runs.
func ChainContext[T, U any](ctx context.Context, o Outcome[T], fn func(context.Context, T) Outcome[U]) Outcome[U] {
	if o.state != StateSuccess {
		return Chain(o, func(T) Outcome[U] { return Loading[U]() })
	}
	if err := ctx.Err(); err != nil {
		return Error[U](err.Error(), err)
	}
	return fn(ctx, o.data)
}
