package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role gates admin surfaces. Superadmin exists for operations that must
// stay out of day-to-day admin hands (anonymization, seeding).
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// Admin reports whether r grants access to the admin surface.
func (r Role) Admin() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// Address is a postal address. All four fields are PII and stored
// encrypted; the zero value means "not provided".
type Address struct {
	Street     string
	City       string
	PostalCode string
	Country    string
}

// Empty reports whether no address component is set.
func (a Address) Empty() bool {
	return a == Address{}
}

// Customer is an account holder. Email, names, phone and address are
// plaintext in memory and ciphertext at rest; EmailIndex is the blind
// index used for lookups and the uniqueness constraint.
type Customer struct {
	ID uuid.UUID

	Email      string
	EmailIndex string

	// PasswordHash is empty for accounts created through a magic link
	// that never set a password.
	PasswordHash string

	FirstName string
	LastName  string
	Phone     string
	Address   Address

	Role          Role
	EmailVerified bool

	FailedLogins int
	LockedUntil  *time.Time
	LastLoginAt  *time.Time

	// AnonymizedAt marks an erasure-request account. PII columns are
	// overwritten; the row survives so claims keep a valid owner.
	AnonymizedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Anonymized reports whether the account's PII has been scrubbed.
func (c *Customer) Anonymized() bool {
	return c.AnonymizedAt != nil
}

// Locked reports whether the account is under a lockout at now.
func (c *Customer) Locked(now time.Time) bool {
	return c.LockedUntil != nil && c.LockedUntil.After(now)
}

// HasPassword reports whether password login is possible at all.
func (c *Customer) HasPassword() bool {
	return c.PasswordHash != ""
}
