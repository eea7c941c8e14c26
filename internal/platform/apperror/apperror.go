// Package apperror defines the error taxonomy shared by all domain services
// and the translation of those errors onto HTTP responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindDependency
)

// Error is a classified application error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed or missing input.
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness violation such as a duplicate phone number.
func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing patient, head, or record.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Dependency reports a failed side-channel call (email, spreadsheet log).
// Dependency errors are logged by callers and never surfaced as a request
// failure for the primary mutation.
func Dependency(msg string, err error) error {
	return &Error{Kind: KindDependency, Msg: msg, Err: err}
}

// Internal wraps an unexpected failure without leaking detail to clients.
func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// ToHTTP converts an application error into an echo HTTPError. Internal and
// dependency errors map to a generic 500 so no internal detail reaches the
// client.
func ToHTTP(err error) error {
	var ae *Error
	if !errors.As(err, &ae) {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	switch ae.Kind {
	case KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, ae.Msg)
	case KindConflict:
		return echo.NewHTTPError(http.StatusConflict, ae.Msg)
	case KindNotFound:
		return echo.NewHTTPError(http.StatusNotFound, ae.Msg)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
