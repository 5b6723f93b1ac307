// Package errors defines the service error type shared by services and the
// HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, string based error classification.
type Code string

const (
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeInvalidToken  Code = "INVALID_TOKEN"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeMethod        Code = "METHOD_NOT_ALLOWED"
	CodeInternal      Code = "INTERNAL_ERROR"
)

// ServiceError carries a code, a client-facing message and the HTTP status the
// API layer should answer with.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails returns the error with key set in its details map.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func NotFound(message string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

func AlreadyExists(message string) *ServiceError {
	return newError(CodeAlreadyExists, http.StatusConflict, message, nil)
}

func InvalidInput(message string) *ServiceError {
	return newError(CodeInvalidInput, http.StatusBadRequest, message, nil)
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Unauthorized"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "Forbidden"
	}
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// InvalidToken reports a token with a bad signature, method or expiry.
func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusForbidden, "Invalid or expired token", err)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimit, http.StatusTooManyRequests, "Too many requests", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

func MethodNotAllowed() *ServiceError {
	return newError(CodeMethod, http.StatusMethodNotAllowed, "Method not allowed", nil)
}

func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "Internal server error"
	}
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError returns the first ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
