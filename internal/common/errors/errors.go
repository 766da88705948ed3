// Package errors defines the application error taxonomy shared by the
// worktree, supervisor and session layers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	CodeNotFound       = "NOT_FOUND"
	CodeAlreadyExists  = "ALREADY_EXISTS"
	CodeAlreadyRunning = "ALREADY_RUNNING"
	CodeNotRunning     = "NOT_RUNNING"
	CodeCommandTimeout = "COMMAND_TIMEOUT"
	CodeCommandFailed  = "COMMAND_FAILED"
	CodeBadRequest     = "BAD_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeInternalError  = "INTERNAL_ERROR"
)

// AppError is an error carrying a stable code and the HTTP status it maps to.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code, so that
// errors.Is(err, ErrNotFound) matches any not-found error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound       = &AppError{Code: CodeNotFound, Message: "not found", HTTPStatus: http.StatusNotFound}
	ErrAlreadyExists  = &AppError{Code: CodeAlreadyExists, Message: "already exists", HTTPStatus: http.StatusConflict}
	ErrAlreadyRunning = &AppError{Code: CodeAlreadyRunning, Message: "already running", HTTPStatus: http.StatusConflict}
	ErrNotRunning     = &AppError{Code: CodeNotRunning, Message: "not running", HTTPStatus: http.StatusConflict}
	ErrCommandTimeout = &AppError{Code: CodeCommandTimeout, Message: "command timed out", HTTPStatus: http.StatusGatewayTimeout}
	ErrCommandFailed  = &AppError{Code: CodeCommandFailed, Message: "command failed", HTTPStatus: http.StatusInternalServerError}
)

// NotFound creates a not-found error for a resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// AlreadyExists creates a conflict error for a resource that exists.
func AlreadyExists(resource, id string) *AppError {
	return &AppError{
		Code:       CodeAlreadyExists,
		Message:    fmt.Sprintf("%s '%s' already exists", resource, id),
		HTTPStatus: http.StatusConflict,
	}
}

// AlreadyRunning reports a supervisor start while one is alive.
func AlreadyRunning(what string) *AppError {
	return &AppError{
		Code:       CodeAlreadyRunning,
		Message:    what + " is already running",
		HTTPStatus: http.StatusConflict,
	}
}

// NotRunning reports an operation against a supervisor that is not alive.
func NotRunning(what string) *AppError {
	return &AppError{
		Code:       CodeNotRunning,
		Message:    what + " is not running",
		HTTPStatus: http.StatusConflict,
	}
}

// CommandTimeout reports a command killed after exceeding its bound.
func CommandTimeout(command string, after time.Duration) *AppError {
	return &AppError{
		Code:       CodeCommandTimeout,
		Message:    fmt.Sprintf("command timed out after %s: %s", after, command),
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

// CommandFailed reports a command that exited non-zero.
func CommandFailed(command, output string, err error) *AppError {
	return &AppError{
		Code:       CodeCommandFailed,
		Message:    fmt.Sprintf("command failed: %s: %s", command, output),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: message, HTTPStatus: http.StatusBadRequest}
}

func Unauthorized(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// InternalError wraps an unexpected failure.
func InternalError(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// GetHTTPStatus returns the HTTP status for err, 500 when it is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
