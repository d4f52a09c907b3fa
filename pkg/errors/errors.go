// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Gestalt.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Gestalt errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates a malformed payload or config value.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeMissingDependency indicates an optional external capability is absent.
	CodeMissingDependency ErrorCode = "MISSING_DEPENDENCY"

	// CodeMissingBinary indicates an external executable is absent.
	CodeMissingBinary ErrorCode = "MISSING_BINARY"

	// CodeIntegrityViolation indicates the certificate is missing or its
	// fingerprint does not match the live identity surface.
	CodeIntegrityViolation ErrorCode = "INTEGRITY_VIOLATION"

	// CodeRecursionExceeded indicates the self-heal depth ceiling was reached.
	CodeRecursionExceeded ErrorCode = "RECURSION_EXCEEDED"

	// CodeNotFound indicates an unknown skill or transform name.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeExternalFault indicates a network or subprocess failure surfaced
	// by a collaborator.
	CodeExternalFault ErrorCode = "EXTERNAL_FAULT"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"
)

// GestaltError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type GestaltError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
}

// Error implements the error interface.
func (e *GestaltError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *GestaltError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *GestaltError) MarshalJSON() ([]byte, error) {
	type Alias GestaltError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new GestaltError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *GestaltError {
	return &GestaltError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *GestaltError) WithContext(key string, value interface{}) *GestaltError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *GestaltError) WithAttribute(key, value string) *GestaltError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *GestaltError) WithRecoverable(recoverable bool) *GestaltError {
	e.Recoverable = recoverable
	return e
}

// AsGestaltError attempts to convert an error to a GestaltError.
// Returns the error as GestaltError if it is one, or wraps it otherwise.
func AsGestaltError(err error) *GestaltError {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*GestaltError); ok {
		return ge
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the classification code of err. Untyped errors map to
// CodeInternal; nil maps to the empty code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if ge, ok := err.(*GestaltError); ok {
		return ge.Code
	}
	return CodeInternal
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *GestaltError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}
