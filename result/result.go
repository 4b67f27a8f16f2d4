// Package result turns fallible operations into a (value, error) pair so a
// failure never escapes past the call site as a panic.
package result

import (
	"fmt"
	"runtime/debug"
)

// Result holds exactly one of Data or Err.
type Result[T any] struct {
	Data T
	Err  error
}

// PanicError is returned by Capture when the wrapped function panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Of wraps an already settled value.
func Of[T any](v T) Result[T] {
	return Result[T]{Data: v}
}

// Fail wraps an error.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// FromErr wraps the outcome of an operation that has already run.
func FromErr[T any](v T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Of(v)
}

// Capture runs fn and converts its outcome, including a panic, into a Result.
func Capture[T any](fn func() (T, error)) (r Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			r = Fail[T](&PanicError{Value: p, Stack: debug.Stack()})
		}
	}()
	v, err := fn()
	return FromErr(v, err)
}

// Do is Capture for functions without a value.
func Do(fn func() error) error {
	return Capture(func() (struct{}, error) {
		return struct{}{}, fn()
	}).Err
}

// OK reports whether the result holds data.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Unwrap returns the pair in Go's usual order.
func (r Result[T]) Unwrap() (T, error) {
	return r.Data, r.Err
}
