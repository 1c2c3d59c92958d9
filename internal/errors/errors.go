// Package errors provides the custom error types used across Compass
package errors

import (
	"fmt"
	"net/http"
)

// CompassError is the base interface for all Compass errors
type CompassError interface {
	error
	HTTPStatus() int
	Code() string
}

// BaseError is the base implementation of CompassError
type BaseError struct {
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	ErrorCode  string `json:"code"`
	Details    string `json:"details,omitempty"`
}

func (e *BaseError) Error() string {
	return e.Message
}

func (e *BaseError) HTTPStatus() int {
	return e.StatusCode
}

func (e *BaseError) Code() string {
	return e.ErrorCode
}

// ValidationError reports a required or malformed field. It is raised
// before any store call is made and is never logged as a system error.
type ValidationError struct {
	BaseError
	Field string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		BaseError: BaseError{
			Message:    message,
			StatusCode: http.StatusBadRequest,
			ErrorCode:  "VALIDATION_ERROR",
		},
		Field: field,
	}
}

// LimitExceededError reports a create rejected by the usage ledger.
// The attempted create is never issued to the store.
type LimitExceededError struct {
	BaseError
	Kind   string
	Reason string
}

func NewLimitExceededError(kind, reason string) *LimitExceededError {
	if reason == "" {
		reason = fmt.Sprintf("you have reached the %s limit for your current plan", kind)
	}
	return &LimitExceededError{
		BaseError: BaseError{
			Message:    reason,
			StatusCode: http.StatusForbidden,
			ErrorCode:  "LIMIT_EXCEEDED",
		},
		Kind:   kind,
		Reason: reason,
	}
}

// ConflictError reports a uniqueness violation, naming the conflicting field
type ConflictError struct {
	BaseError
	Field string
}

func NewConflictError(field string) *ConflictError {
	msg := "this information conflicts with an existing record"
	if field != "" {
		msg = fmt.Sprintf("a record with this %s already exists", field)
	}
	return &ConflictError{
		BaseError: BaseError{
			Message:    msg,
			StatusCode: http.StatusConflict,
			ErrorCode:  "CONFLICT",
		},
		Field: field,
	}
}

// NotFoundError reports an absent row (already deleted, wrong id).
// The operation is terminal; callers do not retry.
type NotFoundError struct {
	BaseError
	Resource string
}

func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{
		BaseError: BaseError{
			Message:    fmt.Sprintf("%s not found", resource),
			StatusCode: http.StatusNotFound,
			ErrorCode:  "NOT_FOUND",
		},
		Resource: resource,
	}
}

// ProviderAuthError reports a 401 from the billing provider. It triggers
// the defensive local downgrade-and-retry in the subscription gate.
type ProviderAuthError struct {
	BaseError
}

func NewProviderAuthError(message string) *ProviderAuthError {
	if message == "" {
		message = "billing provider rejected credentials"
	}
	return &ProviderAuthError{
		BaseError: BaseError{
			Message:    message,
			StatusCode: http.StatusUnauthorized,
			ErrorCode:  "PROVIDER_AUTH",
		},
	}
}

// UnauthorizedError represents a failed authentication on our own API
type UnauthorizedError struct {
	BaseError
}

func NewUnauthorizedError(message string) *UnauthorizedError {
	if message == "" {
		message = "authentication required"
	}
	return &UnauthorizedError{
		BaseError: BaseError{
			Message:    message,
			StatusCode: http.StatusUnauthorized,
			ErrorCode:  "UNAUTHORIZED",
		},
	}
}

// UnknownError wraps anything the taxonomy does not recognize. It is logged
// and surfaced with a generic retry message.
type UnknownError struct {
	BaseError
	OriginalError error
}

func NewUnknownError(original error) *UnknownError {
	return &UnknownError{
		BaseError: BaseError{
			Message:    "something went wrong, please try again",
			StatusCode: http.StatusInternalServerError,
			ErrorCode:  "UNKNOWN",
		},
		OriginalError: original,
	}
}

func (e *UnknownError) Unwrap() error {
	return e.OriginalError
}

// ToHTTPError converts any error to an HTTP status and response body
func ToHTTPError(err error) (int, map[string]interface{}) {
	if err == nil {
		return http.StatusOK, nil
	}

	if ce, ok := err.(CompassError); ok {
		body := map[string]interface{}{
			"error":   ce.Code(),
			"message": ce.Error(),
		}
		switch e := err.(type) {
		case *ValidationError:
			body["field"] = e.Field
		case *ConflictError:
			body["field"] = e.Field
		case *LimitExceededError:
			body["kind"] = e.Kind
		}
		return ce.HTTPStatus(), body
	}

	return http.StatusInternalServerError, map[string]interface{}{
		"error":   "UNKNOWN",
		"message": "something went wrong, please try again",
	}
}
