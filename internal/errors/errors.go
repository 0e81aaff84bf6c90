// Package errors defines the stable error codes shared by the engine's
// components. Callers match on code, not message text.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// DecodeError indicates file content that could not be decoded as text
	DecodeError ErrorCode = "DECODE_ERROR"
	// AlreadyInProgress indicates a duplicate indexing request for a repository
	AlreadyInProgress ErrorCode = "ALREADY_IN_PROGRESS"
	// NotFound indicates an unknown repository, unit, session, or candidate id
	NotFound ErrorCode = "NOT_FOUND"
	// EmbeddingService indicates the external embedding call failed or timed out
	EmbeddingService ErrorCode = "EMBEDDING_SERVICE_ERROR"
	// GraphCorruption indicates a referential-integrity failure in the graph store
	GraphCorruption ErrorCode = "GRAPH_CORRUPTION"
	// InvalidArgument indicates a malformed request parameter
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// Timeout indicates an operation exceeded its deadline
	Timeout ErrorCode = "TIMEOUT"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Error carries a stable code plus a human-readable message.
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates an Error with the given code and formatted message.
func New(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records an underlying cause.
func Wrap(code ErrorCode, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails attaches structured details to the error.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the stable code from err, or InternalError if err does
// not carry one. Returns an empty code for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return InternalError
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
