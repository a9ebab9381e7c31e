package api

import (
	"errors"
	"fmt"

	"github.com/sharesphere/spherecore/internal/apperr"
)

// Application error codes, outside the range reserved by JSON-RPC 2.0
const (
	ErrServerError  = -32000
	ErrUnauthorized = -32003
	ErrNotFound     = -32004
	ErrConflict     = -32009
)

// Error represents an API error with an explicit code
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// codeFor maps a handler error to its JSON-RPC code and message
func codeFor(err error) (int, string) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return ErrInvalidParams, "Invalid params"
	case apperr.KindNotFound:
		return ErrNotFound, "Not found"
	case apperr.KindConflict:
		return ErrConflict, "Conflict"
	case apperr.KindAuthorization:
		return ErrUnauthorized, "Unauthorized"
	default:
		return ErrServerError, "Server error"
	}
}
