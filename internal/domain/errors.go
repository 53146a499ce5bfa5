package domain

import (
	"errors"
	"fmt"
)

// ErrKind is used to map domain errors to transport semantics (HTTP status,
// retry policy on the broker) consistently.
type ErrKind string

const (
	KindValidation     ErrKind = "validation"     // 400, terminal
	KindAuth           ErrKind = "auth"           // 401, terminal
	KindForbidden      ErrKind = "forbidden"      // 403, terminal
	KindNotFound       ErrKind = "not_found"      // 404, terminal
	KindConflict       ErrKind = "conflict"       // 409, terminal
	KindUpstream       ErrKind = "upstream"       // 502/504, terminal
	KindInfrastructure ErrKind = "infrastructure" // 503, retryable via broker cycle
	KindInternal       ErrKind = "internal"       // 500, terminal
)

// Stable error codes crossing the wire. Do not change casually.
const (
	CodeInvalidCredentials = "auth.invalid_credentials"
	CodeTokenExpired       = "auth.token_expired"
	CodeInvalidToken       = "auth.invalid_token"
	CodeUserExists         = "auth.user_exists"
	CodeForbidden          = "auth.forbidden"
	CodeRefreshInvalid     = "auth.refresh_invalid"

	CodeRPCTimeout     = "rpc.timeout"
	CodeRPCBadResponse = "rpc.bad_response"

	CodeValidationFailed = "validation.failed"

	CodeNotImplemented = "common.not_implemented"
	CodeInternalError  = "common.internal_error"
)

// Error is a structured domain error.
// - Kind: high-level category for transport mapping
// - Code: stable machine code from the taxonomy above
// - Message: safe summary for clients (avoid leaking sensitive details)
// - Cause: wrapped internal error for logging/diagnostics
type Error struct {
	Kind    ErrKind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the broker retry cycle should re-deliver the
// message that produced this error.
func (e *Error) Retryable() bool { return e.Kind == KindInfrastructure }

func New(kind ErrKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind ErrKind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// Is reports whether err carries the given stable code.
func Is(err error, code string) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// AsError extracts a *Error from err, or wraps err as an internal error so
// callers always have a code to put on the wire.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return ErrInternal(err)
}

// ----------------------
// Auth errors
// ----------------------

// Covers both "user not found" and "bad password" to avoid user enumeration.
func ErrInvalidCredentials() *Error {
	return New(KindAuth, CodeInvalidCredentials, "invalid username or password")
}

func ErrTokenExpired() *Error {
	return New(KindAuth, CodeTokenExpired, "token is expired")
}

func ErrInvalidToken() *Error {
	return New(KindAuth, CodeInvalidToken, "invalid token")
}

func ErrUserExists() *Error {
	return New(KindConflict, CodeUserExists, "username or email already registered")
}

func ErrForbidden() *Error {
	return New(KindForbidden, CodeForbidden, "forbidden")
}

func ErrRefreshInvalid() *Error {
	return New(KindAuth, CodeRefreshInvalid, "invalid refresh token")
}

// ----------------------
// RPC errors
// ----------------------

func ErrRPCTimeout() *Error {
	return New(KindUpstream, CodeRPCTimeout, "no reply within the RPC deadline")
}

func ErrRPCBadResponse(cause error) *Error {
	return Wrap(KindUpstream, CodeRPCBadResponse, "malformed or empty reply", cause)
}

// ----------------------
// Validation
// ----------------------

func ErrValidationFailed(details string) *Error {
	msg := "request failed validation"
	if details != "" {
		msg = details
	}
	return New(KindValidation, CodeValidationFailed, msg)
}

// ----------------------
// Infrastructure / internal
// ----------------------

func ErrDBUnavailable(cause error) *Error {
	return Wrap(KindInfrastructure, CodeInternalError, "database unavailable", cause)
}

func ErrRedisUnavailable(cause error) *Error {
	return Wrap(KindInfrastructure, CodeInternalError, "cache unavailable", cause)
}

func ErrBusUnavailable(cause error) *Error {
	return Wrap(KindInfrastructure, CodeInternalError, "message broker unavailable", cause)
}

func ErrNotImplemented() *Error {
	return New(KindInternal, CodeNotImplemented, "not implemented")
}

func ErrInternal(cause error) *Error {
	return Wrap(KindInternal, CodeInternalError, "internal error", cause)
}
