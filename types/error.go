package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

// Pipeline error codes, one family per failure class: validation failures
// stay inside Intake, dependency failures degrade the Risk Scorer,
// configuration failures abort startup, conflicts reject store writes.
const (
	ErrValidation    ErrorCode = "VALIDATION"
	ErrDependency    ErrorCode = "DEPENDENCY"
	ErrConfiguration ErrorCode = "CONFIGURATION"
	ErrConflict      ErrorCode = "CONFLICT"
	ErrNotFoundCode  ErrorCode = "NOT_FOUND"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Transport-facing error codes used by the review API.
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Stage      string    `json:"stage,omitempty"`
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
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithStage tags the error with the pipeline stage that produced it.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// NewValidationError reports bad input fields. Intake handles these
// locally and surfaces them as an invalid IntakeResult, so they only
// escape to callers that bypass Intake.
func NewValidationError(message string) *Error {
	return &Error{Code: ErrValidation, Message: message, HTTPStatus: http.StatusUnprocessableEntity}
}

// NewDependencyError reports a failed or timed-out external dependency.
// Always retryable: the deterministic pipeline continues without it.
func NewDependencyError(message string) *Error {
	return &Error{Code: ErrDependency, Message: message, HTTPStatus: http.StatusBadGateway, Retryable: true}
}

// NewConfigurationError reports invalid configuration. Fatal at startup
// or at first use; never silently defaulted.
func NewConfigurationError(message string) *Error {
	return &Error{Code: ErrConfiguration, Message: message, HTTPStatus: http.StatusInternalServerError}
}

// NewConflictError reports a duplicate submission or double-decision
// attempt. The operation is rejected, never merged.
func NewConflictError(message string) *Error {
	return &Error{Code: ErrConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// NewNotFoundError reports a missing record.
func NewNotFoundError(message string) *Error {
	return &Error{Code: ErrNotFoundCode, Message: message, HTTPStatus: http.StatusNotFound}
}

// NewInvalidRequestError reports a malformed API request.
func NewInvalidRequestError(message string) *Error {
	return &Error{Code: ErrInvalidRequest, Message: message, HTTPStatus: http.StatusBadRequest}
}

// NewUnauthorizedError reports a failed authentication attempt.
func NewUnauthorizedError(message string) *Error {
	return &Error{Code: ErrUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// NewRateLimitedError reports request throttling.
func NewRateLimitedError(message string) *Error {
	return &Error{Code: ErrRateLimited, Message: message, HTTPStatus: http.StatusTooManyRequests, Retryable: true}
}

// NewTimeoutError reports an operation that exceeded its deadline.
func NewTimeoutError(message string) *Error {
	return &Error{Code: ErrTimeout, Message: message, HTTPStatus: http.StatusGatewayTimeout, Retryable: true}
}

// NewInternalError reports an unexpected internal failure.
func NewInternalError(message string) *Error {
	return &Error{Code: ErrInternalError, Message: message, HTTPStatus: http.StatusInternalServerError}
}

// WrapError wraps err in a new Error with the given code and message.
// Returns nil when err is nil.
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return NewError(code, message).WithCause(err)
}

// AsError extracts a *Error from err's chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	if e := AsError(err); e != nil {
		return e.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e := AsError(err); e != nil {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e := AsError(err); e != nil {
		return e.Code
	}
	return ""
}

// HTTPStatusFor maps an error to the HTTP status the review API should
// return. Unknown errors map to 500.
func HTTPStatusFor(err error) int {
	if e := AsError(err); e != nil && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
