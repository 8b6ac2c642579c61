package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used across services and handlers.
const (
	CodeValidation      = "validation"
	CodeUnauthorized    = "unauthorized"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeAdmissionDenied = "admission_denied"
	CodeUpstreamTimeout = "upstream_timeout"
	CodeUpstreamFailure = "upstream_failure"
	CodeInternal        = "internal"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(http.StatusBadRequest, CodeValidation, fmt.Errorf(format, args...))
}

func Unauthorized(format string, args ...any) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, fmt.Errorf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(http.StatusNotFound, CodeNotFound, fmt.Errorf(format, args...))
}

func Conflict(format string, args ...any) *Error {
	return New(http.StatusConflict, CodeConflict, fmt.Errorf(format, args...))
}

func AdmissionDenied(format string, args ...any) *Error {
	return New(http.StatusTooManyRequests, CodeAdmissionDenied, fmt.Errorf(format, args...))
}

func UpstreamTimeout(format string, args ...any) *Error {
	return New(http.StatusGatewayTimeout, CodeUpstreamTimeout, fmt.Errorf(format, args...))
}

func UpstreamFailure(format string, args ...any) *Error {
	return New(http.StatusBadGateway, CodeUpstreamFailure, fmt.Errorf(format, args...))
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, CodeInternal, err)
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
