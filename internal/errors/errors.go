package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Glimpse error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrConflict            ErrorCode = "CONFLICT"             // 409
	ErrCaptureFailed       ErrorCode = "CAPTURE_FAILED"       // 502
	ErrProviderFailed      ErrorCode = "PROVIDER_FAILED"      // 502
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE" // 503
	ErrInternal            ErrorCode = "INTERNAL"             // 500
)

// GlimpseError represents a structured error with code, status, and details.
type GlimpseError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *GlimpseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *GlimpseError {
	return &GlimpseError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing resource.
// resource names the kind ("session", "task", "screenshot", "setting").
func NewNotFound(resource, identifier string) *GlimpseError {
	return &GlimpseError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
		Details: map[string]any{"resource": resource, "identifier": identifier},
	}
}

// NewConflict creates a 409 error for state conflicts
// (e.g., starting a capture session while one is already open).
func NewConflict(msg string) *GlimpseError {
	return &GlimpseError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewCaptureFailed creates a 502 error for screen capture failures.
func NewCaptureFailed(msg string) *GlimpseError {
	return &GlimpseError{
		Code:    ErrCaptureFailed,
		Status:  502,
		Message: msg,
	}
}

// NewProviderFailed creates a 502 error for analysis provider failures.
// The provider name is recorded in Details for diagnostics.
func NewProviderFailed(provider, msg string) *GlimpseError {
	return &GlimpseError{
		Code:    ErrProviderFailed,
		Status:  502,
		Message: msg,
		Details: map[string]any{"provider": provider},
	}
}

// NewProviderUnavailable creates a 503 error for an unreachable provider
// (connection refused, readiness poll exhausted).
func NewProviderUnavailable(provider, msg string) *GlimpseError {
	return &GlimpseError{
		Code:    ErrProviderUnavailable,
		Status:  503,
		Message: msg,
		Details: map[string]any{"provider": provider},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message is generic; the underlying error is kept in Details
// so callers can log it without exposing it to clients.
func NewInternal(err error) *GlimpseError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &GlimpseError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error (or anything it wraps) is a GlimpseError with the given code.
func Is(err error, code ErrorCode) bool {
	var gErr *GlimpseError
	if stderrors.As(err, &gErr) {
		return gErr.Code == code
	}
	return false
}
