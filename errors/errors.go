package errors

import (
	"errors"
	"fmt"
	"time"
)

// Application error types organized by category for consistent handling
// across the weather service, cache, and reliability layers.

type ErrorType int

// Domain/Input Errors - errors related to caller input
const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeValidation
	ErrorTypeNotFound

	// Upstream API Errors - errors reported by weather providers
	ErrorTypeRateLimit
	ErrorTypeAPIKey
	ErrorTypeNetwork
	ErrorTypeServiceUnavailable

	// System/Configuration Errors - errors related to system setup
	ErrorTypeConfiguration
)

// String returns the string representation of error type
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND_ERROR"
	case ErrorTypeRateLimit:
		return "RATE_LIMIT_ERROR"
	case ErrorTypeAPIKey:
		return "API_KEY_ERROR"
	case ErrorTypeNetwork:
		return "NETWORK_ERROR"
	case ErrorTypeServiceUnavailable:
		return "SERVICE_UNAVAILABLE_ERROR"
	case ErrorTypeConfiguration:
		return "CONFIGURATION_ERROR"
	default:
		return "WEATHER_SERVICE_ERROR"
	}
}

// AppError is the base error carried through the service. Operation names
// the call site for diagnostics. RetryAfter carries the upstream hint on 429
// responses and the remaining cooldown of an open circuit breaker.
type AppError struct {
	Type       ErrorType
	Message    string
	Operation  string
	RetryAfter time.Duration
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type.String(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type.String(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithOperation annotates the error with the operation it occurred in.
func (e *AppError) WithOperation(operation string) *AppError {
	e.Operation = operation
	return e
}

// WithRetryAfter attaches a retry-after hint to the error.
func (e *AppError) WithRetryAfter(d time.Duration) *AppError {
	e.RetryAfter = d
	return e
}

func New(errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
	}
}

func Wrap(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// Domain/Input Error Constructors
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

func NewNotFoundError(message string) *AppError {
	return New(ErrorTypeNotFound, message)
}

// Upstream API Error Constructors
func NewRateLimitError(message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

func NewAPIKeyError(message string) *AppError {
	return New(ErrorTypeAPIKey, message)
}

func NewNetworkError(message string, cause error) *AppError {
	return Wrap(ErrorTypeNetwork, message, cause)
}

func NewServiceUnavailableError(message string, cause error) *AppError {
	return Wrap(ErrorTypeServiceUnavailable, message, cause)
}

// System/Configuration Error Constructors
func NewConfigurationError(message string, cause error) *AppError {
	return Wrap(ErrorTypeConfiguration, message, cause)
}

// NewWeatherServiceError wraps an unexpected error, always keeping the cause.
func NewWeatherServiceError(message string, cause error) *AppError {
	return Wrap(ErrorTypeUnknown, message, cause)
}

// TypeOf returns the error type of err, or ErrorTypeUnknown when err is not
// an AppError.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether the error represents a transient upstream
// condition worth retrying. Validation, not-found, and API key errors are
// never retryable.
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeNetwork, ErrorTypeServiceUnavailable, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// RetryAfter extracts the retry-after hint from err, if present.
func RetryAfter(err error) (time.Duration, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.RetryAfter > 0 {
		return appErr.RetryAfter, true
	}
	return 0, false
}

// Helper functions for error type checking
func IsValidationError(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

func IsNotFoundError(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

func IsRateLimitError(err error) bool {
	return TypeOf(err) == ErrorTypeRateLimit
}

func IsAPIKeyError(err error) bool {
	return TypeOf(err) == ErrorTypeAPIKey
}

func IsNetworkError(err error) bool {
	return TypeOf(err) == ErrorTypeNetwork
}

func IsServiceUnavailableError(err error) bool {
	return TypeOf(err) == ErrorTypeServiceUnavailable
}

func IsConfigurationError(err error) bool {
	return TypeOf(err) == ErrorTypeConfiguration
}
