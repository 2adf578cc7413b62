// Package apperr defines the error taxonomy shared by the accountability core.
// Errors carry a Code so callers can branch with errors.Is against the
// sentinel values without caring about the message.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies an error category.
type Code string

const (
	CodeConflictExhausted  Code = "CONFLICT_EXHAUSTED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeNoMatchingItem     Code = "NO_MATCHING_ITEM"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeNetworkUnavailable Code = "NETWORK_UNAVAILABLE"
	CodeValidation         Code = "VALIDATION"
	CodeInvalidState       Code = "INVALID_STATE"
)

// Error is a categorized error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrConflictExhausted  = &Error{Code: CodeConflictExhausted, Message: "version conflict persisted after retry"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "entity not found"}
	ErrNoMatchingItem     = &Error{Code: CodeNoMatchingItem, Message: "no active session holds an unverified item with that serial number"}
	ErrUnauthorized       = &Error{Code: CodeUnauthorized, Message: "not permitted"}
	ErrNetworkUnavailable = &Error{Code: CodeNetworkUnavailable, Message: "remote service unavailable"}
	ErrValidation         = &Error{Code: CodeValidation, Message: "invalid input"}
	ErrInvalidState       = &Error{Code: CodeInvalidState, Message: "operation not allowed in current state"}
)

// New returns an error with the given code and formatted message.
func New(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err.
func Wrap(code Code, err error, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFound reports a missing or tombstoned entity.
func NotFound(kind, id string) error {
	return New(CodeNotFound, "%s %s not found", kind, id)
}

// Validation reports malformed input.
func Validation(format string, args ...any) error {
	return New(CodeValidation, format, args...)
}

// InvalidState reports an illegal state transition.
func InvalidState(format string, args ...any) error {
	return New(CodeInvalidState, format, args...)
}

// Unauthorized reports a rejected identity or role.
func Unauthorized(format string, args ...any) error {
	return New(CodeUnauthorized, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
