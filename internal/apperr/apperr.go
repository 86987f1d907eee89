package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error for transport-level status mapping.
type Kind int

const (
	KindValidation Kind = iota
	KindBusinessRule
	KindConflict
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindInternal
)

// Error is a coded domain error. Services return these unchanged all the way
// to the transport boundary; only truly unexpected failures get converted to
// a generic internal error there.
type Error struct {
	Code    string
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func New(code string, kind Kind, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on the error code, so sentinel values compare equal to copies
// carrying per-call details.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy carrying JSON-serialisable metadata for the
// error envelope.
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := *e
	clone.Details = make(map[string]any, len(details))
	for k, v := range details {
		clone.Details[k] = v
	}
	return &clone
}

// WithCause returns a copy wrapping an underlying error.
func (e *Error) WithCause(err error) *Error {
	clone := *e
	clone.cause = err
	return &clone
}

// Internal wraps an unexpected error into the generic internal code.
func Internal(err error) *Error {
	return &Error{Code: "INTERNAL", Kind: KindInternal, Message: "internal error", cause: err}
}

// HTTPStatus maps an error kind to the response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindBusinessRule:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// From extracts an *Error from err, or wraps it as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
