// Package apperror defines the error taxonomy shared by every layer.
//
// Services return *AppError values wrapping one of the sentinels below.
// The handler layer matches them with errors.Is and picks the HTTP status.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation error")
	ErrConflict       = errors.New("conflict")
	ErrForbidden      = errors.New("forbidden")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUpstream       = errors.New("upstream error")
	ErrAuthentication = errors.New("authentication error")
)

type AppError struct {
	Err     error  // sentinel from the list above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure, kept for errors.As
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is(err, ErrUpstream)
// and errors.As(err, &someTransportError) both work on the same value.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned for bad login credentials or an invalid refresh token.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Upstream wraps a failed call to an external provider (network error,
// timeout, non-2xx status, open circuit breaker).
func Upstream(service string, cause error) *AppError {
	msg := fmt.Sprintf("%s request failed", service)
	if cause != nil {
		msg = fmt.Sprintf("%s request failed: %v", service, cause)
	}
	return &AppError{
		Err:     ErrUpstream,
		Message: msg,
		Cause:   cause,
	}
}

// Authentication reports rejected credentials for an external API.
// Kept apart from Upstream so callers can tell a misconfigured key
// from a provider outage.
func Authentication(service string, cause error) *AppError {
	return &AppError{
		Err:     ErrAuthentication,
		Message: fmt.Sprintf("%s rejected the configured credentials", service),
		Cause:   cause,
	}
}
