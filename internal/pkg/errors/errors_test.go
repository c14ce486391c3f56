package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  NotFound(CodeClaimNotFound, "claim not found"),
			want: "claim_not_found: claim not found",
		},
		{
			name: "with wrapped error",
			err:  Wrap(fmt.Errorf("connection refused"), KindDependencyUnavailable, CodeStorageUnavailable, "object store unreachable"),
			want: "storage_unavailable: object store unreachable: connection refused",
		},
		{
			name: "code defaults to kind",
			err:  New(KindRateLimited, "", "too many requests"),
			want: "rate_limited: too many requests",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(inner, KindInternal, "", "msg")

	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should match inner error")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := ErrClaimNotFound()
	wrapped := fmt.Errorf("wrapped: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError should return true for wrapped AppError")
	}
	if got.Code != CodeClaimNotFound {
		t.Errorf("Code = %q, want %q", got.Code, CodeClaimNotFound)
	}
	if !IsKind(wrapped, KindNotFound) {
		t.Error("IsKind should match through wrapping")
	}
	if IsKind(wrapped, KindConflict) {
		t.Error("IsKind matched the wrong kind")
	}
}

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind       Kind
		wantStatus int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindForbidden, http.StatusForbidden},
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindConflict, http.StatusConflict},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindAccountLocked, http.StatusLocked},
		{KindMimeMismatch, http.StatusUnsupportedMediaType},
		{KindScannerDetectedThreat, http.StatusUnprocessableEntity},
		{KindScannerUnavailable, http.StatusServiceUnavailable},
		{KindDependencyUnavailable, http.StatusServiceUnavailable},
		{KindIntegrityCheckFailed, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
		{Kind("mystery"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestConstructorsCarryKind(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		kind Kind
	}{
		{"Validation", Validation(CodeValidationFailed, "bad input"), KindValidation},
		{"Unauthenticated", ErrInvalidCredentials(), KindUnauthenticated},
		{"Conflict", ErrInvalidTransition("draft", "paid"), KindConflict},
		{"AccountLocked", AccountLocked(CodeAccountLocked, "locked"), KindAccountLocked},
		{"IntegrityCheckFailed", IntegrityCheckFailed(CodeIntegrityFailed, "corrupt"), KindIntegrityCheckFailed},
		{"ScannerUnavailable", ScannerUnavailable(CodeScannerUnavailable, "down"), KindScannerUnavailable},
		{"ScannerDetectedThreat", ScannerDetectedThreat(CodeScannerThreat, "eicar"), KindScannerDetectedThreat},
		{"MimeMismatch", MimeMismatch(CodeMimeMismatch, "not a pdf"), KindMimeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", tt.err.Kind, tt.kind)
			}
			if tt.err.HTTPStatus() != tt.kind.HTTPStatus() {
				t.Errorf("HTTPStatus() = %d, want %d", tt.err.HTTPStatus(), tt.kind.HTTPStatus())
			}
		})
	}
}

func TestWithFieldErrors(t *testing.T) {
	err := Validation(CodeValidationFailed, "invalid claim").
		WithFieldErrors([]FieldError{{Field: "flightNumber", Code: "required"}})

	if len(err.FieldErrors) != 1 {
		t.Fatalf("FieldErrors len = %d, want 1", len(err.FieldErrors))
	}
	if err.FieldErrors[0].Field != "flightNumber" {
		t.Errorf("Field = %q, want flightNumber", err.FieldErrors[0].Field)
	}
}
