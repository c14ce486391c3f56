package errors

// Wire code constants (ADR-0006).
// Codes are lower_snake machine tags; messages stay short and English.
// Clients branch on code, never on message text.

// Auth codes.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeTokenExpired       = "token_expired"
	CodeTokenInvalid       = "token_invalid"
	CodeTokenConsumed      = "token_consumed"
	CodeTokenRevoked       = "token_revoked"
	CodeAccountLocked      = "account_locked"
	CodeEmailTaken         = "email_already_registered"
	CodePasswordPolicy     = "password_policy"
	CodeEmailUnverified    = "email_unverified"
)

// Claim lifecycle codes.
const (
	CodeClaimNotFound          = "claim_not_found"
	CodeInvalidTransition      = "invalid_transition"
	CodeConcurrentModification = "concurrent_modification"
	CodeConsentMissing         = "consent_missing"
	CodeDuplicateClaim         = "duplicate_claim"
	CodeMissingRequiredFields  = "missing_required_fields"
	CodeRejectionReasonMissing = "rejection_reason_required"
	CodeReasonRequired         = "reason_required"
	CodeAmountNotPositive      = "compensation_not_positive"
	CodeOverrideRequired       = "manual_review_override_required"
	CodeGroupNotFound          = "claim_group_not_found"
)

// Document pipeline codes.
const (
	CodeFileNotFound        = "file_not_found"
	CodeFileTooLarge        = "file_too_large"
	CodeMimeMismatch        = "mime_mismatch"
	CodeUnsupportedType     = "unsupported_content_type"
	CodePDFUnsafe           = "pdf_unsafe_content"
	CodeScannerUnavailable  = "scanner_unavailable"
	CodeScannerThreat       = "scanner_detected_threat"
	CodeIntegrityFailed     = "integrity_check_failed"
	CodeStorageUnavailable  = "storage_unavailable"
	CodeFileAlreadyDeleted  = "file_already_deleted"
	CodeFileReviewConcluded = "file_review_concluded"
)

// Request codes.
const (
	CodeValidationFailed = "validation_failed"
	CodeRateLimited      = "rate_limited"
	CodeCustomerNotFound = "customer_not_found"
	CodeAccessDenied     = "access_denied"
)

// Convenience constructors for the most common denials.

// ErrClaimNotFound hides both absence and foreign ownership.
func ErrClaimNotFound() *AppError {
	return NotFound(CodeClaimNotFound, "claim not found")
}

// ErrFileNotFound hides both absence and foreign ownership.
func ErrFileNotFound() *AppError {
	return NotFound(CodeFileNotFound, "file not found")
}

// ErrInvalidTransition reports a transition outside the lifecycle table.
func ErrInvalidTransition(from, to string) *AppError {
	return Conflict(CodeInvalidTransition, "transition from "+from+" to "+to+" is not allowed")
}

// ErrConcurrentModification reports an optimistic-lock version mismatch.
func ErrConcurrentModification() *AppError {
	return Conflict(CodeConcurrentModification, "claim was modified concurrently, re-read and retry")
}

// ErrInvalidCredentials is the single answer for bad email or password.
func ErrInvalidCredentials() *AppError {
	return Unauthenticated(CodeInvalidCredentials, "invalid email or password")
}
