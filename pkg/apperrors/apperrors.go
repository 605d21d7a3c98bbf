package apperrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeValidation      Code = "VALIDATION"
	CodeAuthorization   Code = "AUTHORIZATION"
	CodeNotFound        Code = "NOT_FOUND"
	CodeAlreadyResolved Code = "ALREADY_RESOLVED"
	CodeConflict        Code = "CONFLICT"
)

// Error is a domain error whose Message is safe to show to the end user.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so the sentinels below work
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrValidation      = &Error{Code: CodeValidation, Message: "invalid input"}
	ErrAuthorization   = &Error{Code: CodeAuthorization, Message: "insufficient permission"}
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyResolved = &Error{Code: CodeAlreadyResolved, Message: "already resolved"}
	ErrConflict        = &Error{Code: CodeConflict, Message: "conflict"}
)

func newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(CodeValidation, format, args...)
}

func Authorization(format string, args ...any) *Error {
	return newf(CodeAuthorization, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(CodeNotFound, format, args...)
}

func AlreadyResolved(format string, args ...any) *Error {
	return newf(CodeAlreadyResolved, format, args...)
}

// Conflict wraps a storage-level conflict with a user-facing message.
func Conflict(err error, format string, args ...any) *Error {
	e := newf(CodeConflict, format, args...)
	e.Err = err
	return e
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
