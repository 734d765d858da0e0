package errors

import (
	stderrors "errors"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeValidation      ErrorType = "VALIDATION"
	ErrorTypeInternal        ErrorType = "INTERNAL"
	ErrorTypeUnauthorized    ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden       ErrorType = "FORBIDDEN"
	ErrorTypeConflict        ErrorType = "CONFLICT"
	ErrorTypeCycle           ErrorType = "CYCLE"
	ErrorTypeUpstream        ErrorType = "UPSTREAM"
	ErrorTypeUpstreamTimeout ErrorType = "UPSTREAM_TIMEOUT"
	ErrorTypeCanceled        ErrorType = "CANCELED"
)

// internalMessage is what clients see for anything that is not a typed error.
const internalMessage = "An unexpected error occurred. Please try again later."

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

func Unauthorized(message string) *Error {
	return &Error{
		Type:    ErrorTypeUnauthorized,
		Message: message,
		Code:    http.StatusUnauthorized,
	}
}

func Forbidden(message string) *Error {
	return &Error{
		Type:    ErrorTypeForbidden,
		Message: message,
		Code:    http.StatusForbidden,
	}
}

func Conflict(message string) *Error {
	return &Error{
		Type:    ErrorTypeConflict,
		Message: message,
		Code:    http.StatusConflict,
	}
}

// Cycle reports a folder hierarchy that loops back on itself.
func Cycle(message string) *Error {
	return &Error{
		Type:    ErrorTypeCycle,
		Message: message,
		Code:    http.StatusConflict,
	}
}

// Internal never carries the cause; log it before returning this.
func Internal() *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: internalMessage,
		Code:    http.StatusInternalServerError,
	}
}

func Upstream(message string) *Error {
	return &Error{
		Type:    ErrorTypeUpstream,
		Message: message,
		Code:    http.StatusBadGateway,
	}
}

func UpstreamTimeout(message string) *Error {
	return &Error{
		Type:    ErrorTypeUpstreamTimeout,
		Message: message,
		Code:    http.StatusGatewayTimeout,
	}
}

// StatusClientClosedRequest is the non-standard status for a request the
// client abandoned. Nobody reads the body; it only shows up in access logs.
const StatusClientClosedRequest = 499

func Canceled() *Error {
	return &Error{
		Type:    ErrorTypeCanceled,
		Message: "Request canceled",
		Code:    StatusClientClosedRequest,
	}
}

// From unwraps err into a typed *Error, if it holds one.
func From(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries a typed error of type t.
func Is(err error, t ErrorType) bool {
	e, ok := From(err)
	return ok && e.Type == t
}
