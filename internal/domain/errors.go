package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an AppError independently of its HTTP status.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindAuth        ErrorKind = "auth"
	KindSession     ErrorKind = "session"
	KindGateway     ErrorKind = "gateway"
	KindConflict    ErrorKind = "conflict"
	KindNotFound    ErrorKind = "not_found"
	KindForbidden   ErrorKind = "forbidden"
	KindRateLimited ErrorKind = "rate_limited"
	KindInternal    ErrorKind = "internal"
)

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    int       `json:"code"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"error"`
	Err     error     `json:"-"`
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

// Is matches session sentinels by kind and message so wrapped copies still compare equal.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// Session validation failures. All of them render as 401.
var (
	ErrSessionNotFound = &AppError{Code: http.StatusUnauthorized, Kind: KindSession, Message: "session not found"}
	ErrSessionExpired  = &AppError{Code: http.StatusUnauthorized, Kind: KindSession, Message: "session expired"}
	ErrSessionRevoked  = &AppError{Code: http.StatusUnauthorized, Kind: KindSession, Message: "session revoked"}
)

// Common error constructors.

func ErrNotFound(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Kind: KindNotFound, Message: msg}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Kind: KindAuth, Message: msg}
}

// ErrAuth is the single login failure. Unknown email, wrong password and
// disabled accounts are indistinguishable to the caller.
func ErrAuth() *AppError {
	return ErrUnauthorized("invalid credentials")
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: http.StatusForbidden, Kind: KindForbidden, Message: msg}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: KindValidation, Message: msg}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: KindValidation, Message: msg}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: KindConflict, Message: msg}
}

func ErrGateway(msg string, err error) *AppError {
	return &AppError{Code: http.StatusBadGateway, Kind: KindGateway, Message: msg, Err: err}
}

func ErrTooManyAttempts() *AppError {
	return &AppError{Code: http.StatusTooManyRequests, Kind: KindRateLimited, Message: "too many failed attempts, try again later"}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Kind: KindInternal, Message: msg, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
