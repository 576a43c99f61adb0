// Package guard isolates panics at dispatch boundaries.
//
// The scheduler wraps each tick, the pool each job and the bus each
// subscriber callback with Run, so one faulty unit of work is reported
// instead of taking down its goroutine.
package guard

import (
	"fmt"
	"runtime/debug"
)

// PanicError captures a recovered panic.
// It includes the stack trace for debugging.
type PanicError struct {
	// Component names the boundary that recovered ("scheduler", "pool", "bus:<topic>").
	Component string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Component, e.Value)
}

// Unwrap returns the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Run calls fn and returns a PanicError if it panicked, nil otherwise.
func Run(component string, fn func()) (perr *PanicError) {
	defer func() {
		if r := recover(); r != nil {
			perr = &PanicError{
				Component: component,
				Value:     r,
				Stack:     string(debug.Stack()),
			}
		}
	}()
	fn()
	return nil
}
