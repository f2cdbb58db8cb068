// Package domainerrors defines the error taxonomy shared by the lifecycle
// core and its callers. Every failure crossing a package boundary carries a
// Code so transports can map it without string matching and callers can
// branch on recoverable vs terminal failures.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	// CodeInvalidTransition: the requested action is not legal from the
	// document's current status. Recoverable, no state change.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeUnauthorized: the actor lacks the required capability or
	// relationship (e.g. segregation of duties). No state change.
	CodeUnauthorized Code = "unauthorized"
	// CodePreconditionFailed: a required field is missing or a validation
	// blocked the transition; Details carries structured context.
	CodePreconditionFailed Code = "precondition_failed"
	// CodeConflict: lock contention or a stale read; callers should retry.
	CodeConflict Code = "conflict"
	CodeNotFound Code = "not_found"

	CodeBadRequest Code = "bad_request"
	CodeInternal   Code = "internal"
)

// Error is the typed error returned across the core's boundaries.
type Error struct {
	Code    Code
	Message string
	// Details carries structured failure context, e.g. the blocking report
	// from the obsolescence validator. JSON-serializable.
	Details any

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewWithDetails attaches a structured payload for the caller to surface.
func NewWithDetails(code Code, message string, details any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// CodeOf extracts the code from any error, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// ToHTTPStatus maps a code to its HTTP response status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidTransition, CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodePreconditionFailed:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
