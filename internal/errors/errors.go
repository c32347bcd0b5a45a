// Package errors defines the coded error type shared by the resolution engine,
// the repositories and the transport handlers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// ErrCode classifies an error for callers that need to branch on it.
type ErrCode string

const (
	ErrCodeInternal     ErrCode = "INTERNAL"
	ErrCodeNotFound     ErrCode = "NOT_FOUND"
	ErrCodeInvalidInput ErrCode = "INVALID_INPUT"
	ErrCodeConflict     ErrCode = "CONFLICT"
	ErrCodeUnauthorized ErrCode = "UNAUTHORIZED"

	// ErrCodeConfig marks a strategy whose required parameter is missing.
	ErrCodeConfig ErrCode = "CONFIG_ERROR"
	// ErrCodeLookup marks a user or department id absent from the snapshot.
	ErrCodeLookup ErrCode = "LOOKUP_ERROR"
	// ErrCodeEmptyResult marks a strategy or step that legitimately resolved nobody.
	ErrCodeEmptyResult ErrCode = "EMPTY_RESULT"
)

// Error is a coded error with an optional offending field.
type Error struct {
	Code    ErrCode
	Message string
	Field   string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates an error with the given code.
func New(code ErrCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates err with a code and message. A nil err yields nil.
func Wrap(err error, code ErrCode, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: pkgerrors.WithStack(err)}
}

// NotFound reports a missing persisted resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// InvalidInput reports a bad request field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: message, Field: field}
}

// Config reports a strategy parameter that was not configured.
func Config(strategy, param string) *Error {
	return &Error{
		Code:    ErrCodeConfig,
		Message: fmt.Sprintf("strategy %q is missing %s", strategy, param),
		Field:   param,
	}
}

// Lookup reports a snapshot reference that could not be resolved.
func Lookup(resource, id string) *Error {
	return &Error{Code: ErrCodeLookup, Message: fmt.Sprintf("%s %q not in snapshot", resource, id)}
}

// EmptyResult reports a resolution that produced no users.
func EmptyResult(message string) *Error {
	return &Error{Code: ErrCodeEmptyResult, Message: message}
}

// CodeOf returns the code carried by err, or ErrCodeInternal.
func CodeOf(err error) ErrCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrCode) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps a code onto a response status.
func HTTPStatus(code ErrCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput, ErrCodeConfig:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeLookup, ErrCodeEmptyResult:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
