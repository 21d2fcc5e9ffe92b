package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeTransport  ErrorType = "transport"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeStale      ErrorType = "stale"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
)

// TrackerError represents a structured error in the glucose tracker
type TrackerError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *TrackerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *TrackerError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *TrackerError {
	return &TrackerError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewTransportError creates a new transport error
func NewTransportError(code, message string, cause error) *TrackerError {
	return &TrackerError{
		Type:    ErrorTypeTransport,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *TrackerError {
	return &TrackerError{
		Type:    ErrorTypeTimeout,
		Code:    ErrCodeTimeout,
		Message: message,
		Cause:   cause,
	}
}

// NewStaleError reports a response superseded by a newer request
func NewStaleError(generation, latest uint64) *TrackerError {
	return &TrackerError{
		Type:    ErrorTypeStale,
		Code:    ErrCodeStaleResponse,
		Message: "response superseded by a newer request",
		Details: map[string]interface{}{
			"generation": generation,
			"latest":     latest,
		},
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *TrackerError {
	return &TrackerError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *TrackerError {
	return &TrackerError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error codes
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeTransport         = "TRANSPORT_ERROR"
	ErrCodeUnexpectedStatus  = "UNEXPECTED_STATUS"
	ErrCodeMalformedResponse = "MALFORMED_RESPONSE"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeStaleResponse     = "STALE_RESPONSE"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// ErrorTypeOf returns the type of the first TrackerError in the chain, or ""
func ErrorTypeOf(err error) ErrorType {
	var te *TrackerError
	if errors.As(err, &te) {
		return te.Type
	}
	return ""
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return ErrorTypeOf(err) == ErrorTypeValidation }

// IsTransport reports whether err is a transport error
func IsTransport(err error) bool { return ErrorTypeOf(err) == ErrorTypeTransport }

// IsTimeout reports whether err is a timeout error
func IsTimeout(err error) bool { return ErrorTypeOf(err) == ErrorTypeTimeout }

// IsStale reports whether err marks a discarded response
func IsStale(err error) bool { return ErrorTypeOf(err) == ErrorTypeStale }

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool { return ErrorTypeOf(err) == ErrorTypeNotFound }
