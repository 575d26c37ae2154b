package workqueue

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	// ErrStopped is returned by Enqueue once Stop has been called.
	ErrStopped = errors.New("work queue stopped")

	// ErrNoHandler is reported for an item whose kind has no registered handler.
	ErrNoHandler = errors.New("no handler for item kind")

	// ErrReservedKind is returned when enqueueing KindStop directly.
	ErrReservedKind = errors.New("reserved item kind")
)

// PanicError wraps a value recovered from a panicking handler or task
// together with the goroutine stack at the point of the panic.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.Value, e.Stack)
}

func newPanicError(v any) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{Value: v, Stack: string(buf[:n])}
}

// Safely runs fn and converts a panic into a *PanicError.
func Safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return fn()
}
