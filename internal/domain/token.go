package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one member of a rotation chain. Only the SHA-256
// digest of the presented token is stored; ReplacedBy links the chain
// so reuse of a rotated-out token is detectable.
type RefreshToken struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	TokenDigest string

	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *uuid.UUID

	UserAgent string
	ClientIP  string
}

// Active reports whether the token can still be exchanged at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

// TokenPurpose tags a single-use login token.
type TokenPurpose string

const (
	PurposeMagicLink     TokenPurpose = "magic_link"
	PurposePasswordReset TokenPurpose = "password_reset"
	PurposeEmailVerify   TokenPurpose = "email_verify"
)

// Valid reports whether p is a known purpose.
func (p TokenPurpose) Valid() bool {
	switch p {
	case PurposeMagicLink, PurposePasswordReset, PurposeEmailVerify:
		return true
	}
	return false
}

// LoginToken is a single-use out-of-band token (magic link, password
// reset, email verification). Stored as digest only; UsedAt is the
// replay guard and is set atomically on first consumption.
type LoginToken struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	Purpose     TokenPurpose
	TokenDigest string

	// ClaimID optionally binds a magic link to the claim it was issued
	// for, so the landing flow can deep-link.
	ClaimID *uuid.UUID

	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Consumable reports whether the token is unexpired and unused at now.
func (t *LoginToken) Consumable(now time.Time) bool {
	return t.UsedAt == nil && t.ExpiresAt.After(now)
}
