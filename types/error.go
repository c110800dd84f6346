package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the subsystem.
type ErrorCode string

const (
	ErrValidation          ErrorCode = "VALIDATION"
	ErrNotFound            ErrorCode = "NOT_FOUND"
	ErrPermissionDenied    ErrorCode = "PERMISSION_DENIED"
	ErrDuplicate           ErrorCode = "DUPLICATE"
	ErrStorageUnavailable  ErrorCode = "STORAGE_UNAVAILABLE"
	ErrExtractionDegraded  ErrorCode = "EXTRACTION_DEGRADED"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: defaultStatus(code), Retryable: defaultRetryable(code)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus overrides the HTTP status mapping.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable overrides the retryable flag.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func defaultStatus(code ErrorCode) int {
	switch code {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrPermissionDenied:
		return http.StatusForbidden
	case ErrDuplicate:
		return http.StatusConflict
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrStorageUnavailable, ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func defaultRetryable(code ErrorCode) bool {
	switch code {
	case ErrStorageUnavailable, ErrTimeout, ErrServiceUnavailable:
		return true
	}
	return false
}

// Convenience constructors used throughout the subsystem.

func NewValidationError(message string) *Error {
	return NewError(ErrValidation, message)
}

func NewNotFoundError(message string) *Error {
	return NewError(ErrNotFound, message)
}

func NewPermissionError(message string) *Error {
	return NewError(ErrPermissionDenied, message)
}

func NewDuplicateError(message string) *Error {
	return NewError(ErrDuplicate, message)
}

func NewStorageError(message string, cause error) *Error {
	return NewError(ErrStorageUnavailable, message).WithCause(cause)
}

func NewExtractionDegradedError(message string, cause error) *Error {
	return NewError(ErrExtractionDegraded, message).WithCause(cause)
}

// AsError extracts a *Error from err, wrapping unknown errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(ErrInternalError, err.Error()).WithCause(err)
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsCode(err, ErrNotFound) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsCode(err, ErrValidation) }

// IsPermissionDenied reports whether err is a permission error.
func IsPermissionDenied(err error) bool { return IsCode(err, ErrPermissionDenied) }

// IsDuplicate reports whether err is a duplicate error.
func IsDuplicate(err error) bool { return IsCode(err, ErrDuplicate) }

// IsStorageUnavailable reports whether err indicates the durable store is down.
func IsStorageUnavailable(err error) bool { return IsCode(err, ErrStorageUnavailable) }
