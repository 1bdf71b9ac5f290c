package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the centralized error handler.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindDependency     Kind = "dependency"
)

// Stable error codes. Login failures carry distinct codes so clients can
// tell "unverified" from "wrong password".
const (
	CodeValidation        = "validation_failed"
	CodeAccountExists     = "account_exists"
	CodeEmailNotFound     = "email_not_found"
	CodeInvalidCredential = "invalid_credentials"
	CodeOAuthOnly         = "oauth_only"
	CodeUnverified        = "unverified"
	CodeInvalidToken      = "invalid_or_expired_token"
	CodeUnauthenticated   = "unauthenticated"
	CodeForbidden         = "forbidden"
	CodeInternal          = "internal"
)

// Error is the typed error every service operation returns. Message is safe
// to show to the client; Err is for logs only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
	status  int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind to an HTTP status unless the error overrides it.
func (e *Error) Status() int {
	if e.status != 0 {
		return e.status
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Expected reports whether the error is part of normal operation (bad
// input, bad credentials) rather than a fault.
func (e *Error) Expected() bool { return e.Kind != KindDependency }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Validation reports bad input.
func Validation(msg string) *Error { return newError(KindValidation, CodeValidation, msg) }

// Unauthenticated is the single answer for any token or session failure.
func Unauthenticated(err error) *Error {
	return &Error{Kind: KindAuthentication, Code: CodeUnauthenticated, Message: "please log in again", Err: err}
}

// Forbidden reports a role mismatch.
func Forbidden() *Error {
	return newError(KindAuthorization, CodeForbidden, "you do not have access to this resource")
}

// NotFound reports a missing resource.
func NotFound(msg string) *Error { return newError(KindNotFound, "not_found", msg) }

// Dependency wraps a store, mailer or signing failure. The client only ever
// sees the generic message.
func Dependency(op string, err error) *Error {
	return &Error{Kind: KindDependency, Code: CodeInternal, Message: "something went wrong, please try again", Err: fmt.Errorf("%s: %w", op, err)}
}

// AsError extracts a *Error from err, or nil.
func AsError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return nil
}
