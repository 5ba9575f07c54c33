package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies scoring-pipeline failures
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeDependency    ErrorType = "dependency_unavailable"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeModelNotReady ErrorType = "model_not_ready"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors

// NewValidationError rejects malformed input before any I/O. Never retried.
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

// NewDependencyUnavailableError signals an unreachable store or cache.
// Retried with bounded backoff at the call site, not by the caller.
func NewDependencyUnavailableError(dependency, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeDependency,
		Code:       "DEPENDENCY_UNAVAILABLE",
		Message:    fmt.Sprintf("%s unavailable: %s", dependency, message),
		Retryable:  true,
		StatusCode: 503,
		Details:    map[string]interface{}{"dependency": dependency},
	}
}

// NewTimeoutError signals a deadline exceeded mid-pipeline. The orchestrator
// converts this into the degraded-response path.
func NewTimeoutError(stage string) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Code:       "DEADLINE_EXCEEDED",
		Message:    fmt.Sprintf("deadline exceeded during %s", stage),
		Retryable:  true,
		StatusCode: 504,
		Details:    map[string]interface{}{"stage": stage},
	}
}

// NewModelNotReadyError signals scoring traffic arrived before the model
// loaded. The process should never have accepted traffic in this state.
func NewModelNotReadyError() *AppError {
	return &AppError{
		Type:       ErrorTypeModelNotReady,
		Code:       "MODEL_NOT_READY",
		Message:    "risk model is not loaded",
		Retryable:  true,
		StatusCode: 503,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
