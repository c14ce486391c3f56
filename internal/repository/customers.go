package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/kms"
)

// Customers persists account rows. Email, names, phone and address are
// ciphertext at rest; lookups go through the blind index.
type Customers struct {
	db    DBTX
	codec *kms.FieldCodec
}

const customerColumns = `id, email_enc, email_idx, password_hash,
	first_name_enc, last_name_enc, phone_enc,
	street_enc, city_enc, postal_code_enc, country_enc,
	role, email_verified, failed_logins, locked_until, last_login_at,
	anonymized_at, created_at, updated_at`

// Create inserts a new customer. The repo encrypts PII and computes the
// blind index from the normalized email. A duplicate email maps to the
// email_already_registered conflict.
func (r *Customers) Create(ctx context.Context, c *domain.Customer) error {
	enc, err := r.encryptPII(c)
	if err != nil {
		return err
	}
	c.EmailIndex = r.codec.BlindIndex(c.Email)

	_, err = r.db.Exec(ctx, `
		INSERT INTO customers (
			id, email_enc, email_idx, password_hash,
			first_name_enc, last_name_enc, phone_enc,
			street_enc, city_enc, postal_code_enc, country_enc,
			role, email_verified, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)`,
		c.ID, enc.email, c.EmailIndex, c.PasswordHash,
		enc.firstName, enc.lastName, enc.phone,
		enc.street, enc.city, enc.postalCode, enc.country,
		c.Role, c.EmailVerified, c.CreatedAt,
	)
	if isUniqueViolation(err, "customers_email_idx") {
		return apperrors.Conflict(apperrors.CodeEmailTaken, "email is already registered")
	}
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// GetByID loads one customer with PII decrypted.
func (r *Customers) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return r.scan(row)
}

// GetByEmail resolves the normalized email through the blind index.
func (r *Customers) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email_idx = $1`,
		r.codec.BlindIndex(email),
	)
	return r.scan(row)
}

// UpdateProfile rewrites the mutable PII fields.
func (r *Customers) UpdateProfile(ctx context.Context, c *domain.Customer) error {
	enc, err := r.encryptPII(c)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE customers SET
			first_name_enc = $2, last_name_enc = $3, phone_enc = $4,
			street_enc = $5, city_enc = $6, postal_code_enc = $7, country_enc = $8,
			updated_at = NOW()
		WHERE id = $1 AND anonymized_at IS NULL`,
		c.ID, enc.firstName, enc.lastName, enc.phone,
		enc.street, enc.city, enc.postalCode, enc.country,
	)
	if err != nil {
		return fmt.Errorf("update customer profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeCustomerNotFound, "customer not found")
	}
	return nil
}

// SetPassword replaces the bcrypt hash.
func (r *Customers) SetPassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE customers SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, hash,
	)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeCustomerNotFound, "customer not found")
	}
	return nil
}

// MarkEmailVerified flips the verification flag.
func (r *Customers) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE customers SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

// RecordLoginSuccess clears the failure counter and lockout and stamps
// last_login_at.
func (r *Customers) RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE customers SET
			failed_logins = 0, locked_until = NULL, last_login_at = $2, updated_at = NOW()
		WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	return nil
}

// RecordLoginFailure persists the failure count and, when the schedule
// says so, the lockout deadline. lockedUntil nil leaves any existing
// lock untouched.
func (r *Customers) RecordLoginFailure(ctx context.Context, id uuid.UUID, failures int, lockedUntil *time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE customers SET
			failed_logins = $2,
			locked_until = COALESCE($3, locked_until),
			updated_at = NOW()
		WHERE id = $1`,
		id, failures, lockedUntil,
	)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

// Anonymize scrubs every PII column in place. The blind index is
// replaced with an unguessable sentinel so the uniqueness constraint
// holds and the address can never be re-linked.
func (r *Customers) Anonymize(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE customers SET
			email_enc = '', email_idx = 'anonymized:' || id::text,
			password_hash = '',
			first_name_enc = '', last_name_enc = '', phone_enc = '',
			street_enc = '', city_enc = '', postal_code_enc = '', country_enc = '',
			anonymized_at = $2, updated_at = NOW()
		WHERE id = $1 AND anonymized_at IS NULL`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("anonymize customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Conflict("already_anonymized", "customer is already anonymized")
	}
	return nil
}

type encryptedPII struct {
	email, firstName, lastName, phone string
	street, city, postalCode, country string
}

func (r *Customers) encryptPII(c *domain.Customer) (encryptedPII, error) {
	var enc encryptedPII
	var err error

	fields := []struct {
		dst   *string
		plain string
	}{
		{&enc.email, c.Email},
		{&enc.firstName, c.FirstName},
		{&enc.lastName, c.LastName},
		{&enc.phone, c.Phone},
		{&enc.street, c.Address.Street},
		{&enc.city, c.Address.City},
		{&enc.postalCode, c.Address.PostalCode},
		{&enc.country, c.Address.Country},
	}
	for _, f := range fields {
		if f.plain == "" {
			continue
		}
		if *f.dst, err = r.codec.Encrypt(f.plain); err != nil {
			return enc, fmt.Errorf("encrypt customer field: %w", err)
		}
	}
	return enc, nil
}

func (r *Customers) scan(row pgx.Row) (*domain.Customer, error) {
	var (
		c   domain.Customer
		enc encryptedPII
	)
	err := row.Scan(
		&c.ID, &enc.email, &c.EmailIndex, &c.PasswordHash,
		&enc.firstName, &enc.lastName, &enc.phone,
		&enc.street, &enc.city, &enc.postalCode, &enc.country,
		&c.Role, &c.EmailVerified, &c.FailedLogins, &c.LockedUntil, &c.LastLoginAt,
		&c.AnonymizedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if noRows(err) {
		return nil, apperrors.NotFound(apperrors.CodeCustomerNotFound, "customer not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan customer: %w", err)
	}

	fields := []struct {
		dst    *string
		cipher string
	}{
		{&c.Email, enc.email},
		{&c.FirstName, enc.firstName},
		{&c.LastName, enc.lastName},
		{&c.Phone, enc.phone},
		{&c.Address.Street, enc.street},
		{&c.Address.City, enc.city},
		{&c.Address.PostalCode, enc.postalCode},
		{&c.Address.Country, enc.country},
	}
	for _, f := range fields {
		if f.cipher == "" {
			continue
		}
		plain, err := r.codec.Decrypt(f.cipher)
		if err != nil {
			return nil, fmt.Errorf("decrypt customer field: %w", err)
		}
		*f.dst = plain
	}
	return &c, nil
}
