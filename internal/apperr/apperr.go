// Package apperr carries an HTTP status alongside service errors so handlers
// can map failures without knowing which layer produced them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return newf(http.StatusNotFound, format, args...)
}

func Forbidden(format string, args ...any) error {
	return newf(http.StatusForbidden, format, args...)
}

// Invalid is a validation failure (400).
func Invalid(format string, args ...any) error {
	return newf(http.StatusBadRequest, format, args...)
}

func Conflict(format string, args ...any) error {
	return newf(http.StatusConflict, format, args...)
}

func Unauthorized(format string, args ...any) error {
	return newf(http.StatusUnauthorized, format, args...)
}

// StatusOf returns the status attached to err, or fallback when err carries none.
func StatusOf(err error, fallback int) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return fallback
}

// Is reports whether err carries the given status.
func Is(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == status
}

// Public returns the message safe to show a caller. Unclassified errors
// (datastore failures and the like) collapse to a generic message.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "internal server error"
}
