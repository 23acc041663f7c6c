// Package apperrors defines the typed errors shared by the accounting and
// reconciliation engines. The HTTP layer maps Code to the response status.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an application error
type ErrorType string

const (
	TypeValidation         ErrorType = "validation_error"
	TypeNotFound           ErrorType = "not_found"
	TypeConflict           ErrorType = "conflict"
	TypeDuplicate          ErrorType = "duplicate"
	TypeInvalidState       ErrorType = "invalid_state"
	TypeUnauthorized       ErrorType = "unauthorized"
	TypeGatewayUnavailable ErrorType = "gateway_unavailable"
	TypeInternal           ErrorType = "internal_error"
)

// AppError carries the error class and the HTTP status it maps to
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidation creates an error for invalid input
func NewValidation(message string) *AppError {
	return &AppError{Type: TypeValidation, Message: message, Code: http.StatusBadRequest}
}

// NewNotFound creates an error for an absent referenced entity
func NewNotFound(message string) *AppError {
	return &AppError{Type: TypeNotFound, Message: message, Code: http.StatusNotFound}
}

// NewConflict creates an error for an invariant violation,
// e.g. a second active session for the same user
func NewConflict(message string) *AppError {
	return &AppError{Type: TypeConflict, Message: message, Code: http.StatusConflict}
}

// NewDuplicate creates an error for an idempotent re-submission. Callers are
// expected to recover by returning the existing resource, not by failing.
func NewDuplicate(message string) *AppError {
	return &AppError{Type: TypeDuplicate, Message: message, Code: http.StatusConflict}
}

// NewInvalidState creates an error for an operation that is not valid in the
// entity's current lifecycle state, e.g. recording usage on a stopped session
func NewInvalidState(message string) *AppError {
	return &AppError{Type: TypeInvalidState, Message: message, Code: http.StatusConflict}
}

// NewUnauthorized creates an error for failed credential checks
func NewUnauthorized(message string) *AppError {
	return &AppError{Type: TypeUnauthorized, Message: message, Code: http.StatusUnauthorized}
}

// NewGatewayUnavailable creates an error for a transient payment gateway
// failure. This is distinct from a business "failed" payment status.
func NewGatewayUnavailable(message string) *AppError {
	return &AppError{Type: TypeGatewayUnavailable, Message: message, Code: http.StatusServiceUnavailable}
}

// NewInternal creates an error for unexpected failures
func NewInternal(message string) *AppError {
	return &AppError{Type: TypeInternal, Message: message, Code: http.StatusInternalServerError}
}

// IsType reports whether err is an AppError of the given type
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return IsType(err, TypeNotFound) }

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool { return IsType(err, TypeConflict) }

// IsDuplicate reports whether err is a duplicate-submission error
func IsDuplicate(err error) bool { return IsType(err, TypeDuplicate) }

// IsInvalidState reports whether err is an invalid-state error
func IsInvalidState(err error) bool { return IsType(err, TypeInvalidState) }

// IsGatewayUnavailable reports whether err is a transient gateway failure
func IsGatewayUnavailable(err error) bool { return IsType(err, TypeGatewayUnavailable) }

// StatusCode returns the HTTP status for err, defaulting to 500
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
