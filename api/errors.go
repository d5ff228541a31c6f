// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-lines.

package api

import "fmt"

// Common errors used across the module.
var (
	ErrExecutorClosed = fmt.Errorf("executor is closed")
	ErrQueueFull      = fmt.Errorf("executor queue is full")
	ErrServerClosed   = fmt.Errorf("server is closed")
	ErrAlreadyRunning = fmt.Errorf("server already running")
	ErrLineTooLong    = fmt.Errorf("line exceeds maximum size")
	ErrSessionClosed  = fmt.Errorf("session is closed")
	ErrNotSupported   = fmt.Errorf("operation not supported")
)

// ErrorCode represents specific error conditions in the module.
type ErrorCode int

const (
	ErrCodeBind   ErrorCode = iota + 1 // listen address could not be bound
	ErrCodePoller                      // readiness backend setup failed
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Wrap attaches a cause to the error.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}
