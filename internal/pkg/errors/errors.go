// Package errors provides the typed error model for AeroClaim.
//
// Domain services return *AppError values carrying a Kind (the
// machine-facing taxonomy) and a stable wire code; the request boundary
// maps Kind to an HTTP status and never exposes wrapped causes.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/pkg/errors
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping and logging.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindNotFound              Kind = "not_found"
	KindForbidden             Kind = "forbidden"
	KindUnauthenticated       Kind = "unauthenticated"
	KindConflict              Kind = "conflict"
	KindRateLimited           Kind = "rate_limited"
	KindAccountLocked         Kind = "account_locked"
	KindIntegrityCheckFailed  Kind = "integrity_check_failed"
	KindMimeMismatch          Kind = "mime_mismatch"
	KindScannerUnavailable    Kind = "scanner_unavailable"
	KindScannerDetectedThreat Kind = "scanner_detected_threat"
	KindDependencyUnavailable Kind = "dependency_unavailable"
	KindInternal              Kind = "internal"
)

// HTTPStatus returns the fixed status for a kind. Unknown kinds map to 500.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindAccountLocked:
		return http.StatusLocked
	case KindMimeMismatch:
		return http.StatusUnsupportedMediaType
	case KindScannerDetectedThreat:
		return http.StatusUnprocessableEntity
	case KindScannerUnavailable, KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	case KindIntegrityCheckFailed, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AppError is a structured application error.
type AppError struct {
	// Kind is the machine-facing taxonomy entry.
	Kind Kind `json:"-"`

	// Code is the stable wire code (e.g. "consent_missing"). Defaults to
	// the kind itself when a more specific code does not apply.
	Code string `json:"code"`

	// Message is a short human-readable description. Never contains
	// unescaped user input or internal diagnostics.
	Message string `json:"message"`

	// FieldErrors carries field-level validation details.
	FieldErrors []FieldError `json:"details,omitempty"`

	// Err is the wrapped underlying cause. Logged, never serialized.
	Err error `json:"-"`
}

// FieldError describes a field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the transport status for this error.
func (e *AppError) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// New creates an AppError of the given kind with a specific wire code.
func New(kind Kind, code, message string) *AppError {
	if code == "" {
		code = string(kind)
	}
	return &AppError{Kind: kind, Code: code, Message: message}
}

// Wrap attaches an underlying cause to a new AppError.
func Wrap(err error, kind Kind, code, message string) *AppError {
	e := New(kind, code, message)
	e.Err = err
	return e
}

// WithFieldErrors attaches field-level errors.
func (e *AppError) WithFieldErrors(fieldErrors []FieldError) *AppError {
	if e == nil || len(fieldErrors) == 0 {
		return e
	}
	e.FieldErrors = fieldErrors
	return e
}

// Constructors, one per kind.

func Validation(code, message string) *AppError  { return New(KindValidation, code, message) }
func NotFound(code, message string) *AppError    { return New(KindNotFound, code, message) }
func Forbidden(code, message string) *AppError   { return New(KindForbidden, code, message) }
func Conflict(code, message string) *AppError    { return New(KindConflict, code, message) }
func RateLimited(code, message string) *AppError { return New(KindRateLimited, code, message) }
func Internal(code, message string) *AppError    { return New(KindInternal, code, message) }

func Unauthenticated(code, message string) *AppError {
	return New(KindUnauthenticated, code, message)
}

func AccountLocked(code, message string) *AppError {
	return New(KindAccountLocked, code, message)
}

func IntegrityCheckFailed(code, message string) *AppError {
	return New(KindIntegrityCheckFailed, code, message)
}

func MimeMismatch(code, message string) *AppError {
	return New(KindMimeMismatch, code, message)
}

func ScannerUnavailable(code, message string) *AppError {
	return New(KindScannerUnavailable, code, message)
}

func ScannerDetectedThreat(code, message string) *AppError {
	return New(KindScannerDetectedThreat, code, message)
}

func DependencyUnavailable(code, message string) *AppError {
	return New(KindDependencyUnavailable, code, message)
}

// IsAppError checks if an error is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Kind == kind
	}
	return false
}
