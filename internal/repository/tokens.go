package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// RefreshTokens stores session refresh tokens. Only the SHA-256 digest
// of a token ever touches the database.
type RefreshTokens struct {
	db DBTX
}

const refreshTokenColumns = `id, customer_id, token_digest, issued_at, expires_at,
	revoked_at, replaced_by, user_agent, client_ip`

// Insert stores a freshly issued token.
func (r *RefreshTokens) Insert(ctx context.Context, t *domain.RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, customer_id, token_digest, issued_at, expires_at, user_agent, client_ip)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.CustomerID, t.TokenDigest, t.IssuedAt, t.ExpiresAt, t.UserAgent, t.ClientIP,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetByDigest finds a token by its digest, revoked or not. Reuse
// detection needs to see revoked rows.
func (r *RefreshTokens) GetByDigest(ctx context.Context, digest string) (*domain.RefreshToken, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_digest = $1`,
		digest,
	)

	var t domain.RefreshToken
	err := row.Scan(&t.ID, &t.CustomerID, &t.TokenDigest, &t.IssuedAt, &t.ExpiresAt,
		&t.RevokedAt, &t.ReplacedBy, &t.UserAgent, &t.ClientIP)
	if noRows(err) {
		return nil, apperrors.Unauthenticated(apperrors.CodeTokenInvalid, "refresh token is not recognized")
	}
	if err != nil {
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &t, nil
}

// Revoke marks a token revoked, optionally linking its successor.
// Returns false when the token was already revoked, which is the
// rotation race the caller treats as token reuse.
func (r *RefreshTokens) Revoke(ctx context.Context, id uuid.UUID, at time.Time, replacedBy *uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2, replaced_by = $3
		WHERE id = $1 AND revoked_at IS NULL`,
		id, at, replacedBy,
	)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeAllForCustomer kills every live session of one customer.
func (r *RefreshTokens) RevokeAllForCustomer(ctx context.Context, customerID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE customer_id = $1 AND revoked_at IS NULL`,
		customerID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("revoke customer refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes rows no longer needed for reuse detection.
func (r *RefreshTokens) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LoginTokens stores single-use tokens for magic links, password
// resets and e-mail verification. Digest-only, like refresh tokens.
type LoginTokens struct {
	db DBTX
}

// Insert stores a new single-use token.
func (r *LoginTokens) Insert(ctx context.Context, t *domain.LoginToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO login_tokens (id, customer_id, purpose, token_digest, claim_id, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.CustomerID, t.Purpose, t.TokenDigest, t.ClaimID, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert login token: %w", err)
	}
	return nil
}

// Consume atomically marks the token used and returns it. A token that
// is unknown, expired, already used, or issued for another purpose
// yields token_invalid; the caller must not learn which.
func (r *LoginTokens) Consume(ctx context.Context, digest string, purpose domain.TokenPurpose, now time.Time) (*domain.LoginToken, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE login_tokens SET used_at = $3
		WHERE token_digest = $1 AND purpose = $2 AND used_at IS NULL AND expires_at > $3
		RETURNING id, customer_id, purpose, token_digest, claim_id, expires_at, used_at, created_at`,
		digest, purpose, now,
	)

	var t domain.LoginToken
	err := row.Scan(&t.ID, &t.CustomerID, &t.Purpose, &t.TokenDigest, &t.ClaimID, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if noRows(err) {
		return nil, apperrors.Unauthenticated(apperrors.CodeTokenInvalid, "token is invalid or has expired")
	}
	if err != nil {
		return nil, fmt.Errorf("consume login token: %w", err)
	}
	return &t, nil
}

// Find loads a token by digest without consuming it. Returns nil when
// the digest is unknown; used to refine consume failures into the
// consumed/expired wire codes.
func (r *LoginTokens) Find(ctx context.Context, digest string) (*domain.LoginToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, customer_id, purpose, token_digest, claim_id, expires_at, used_at, created_at
		FROM login_tokens WHERE token_digest = $1`,
		digest,
	)

	var t domain.LoginToken
	err := row.Scan(&t.ID, &t.CustomerID, &t.Purpose, &t.TokenDigest, &t.ClaimID, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find login token: %w", err)
	}
	return &t, nil
}

// InvalidatePending burns unused tokens of one purpose so that only
// the most recently issued link works.
func (r *LoginTokens) InvalidatePending(ctx context.Context, customerID uuid.UUID, purpose domain.TokenPurpose, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE login_tokens SET used_at = $3
		WHERE customer_id = $1 AND purpose = $2 AND used_at IS NULL`,
		customerID, purpose, at,
	)
	if err != nil {
		return fmt.Errorf("invalidate pending login tokens: %w", err)
	}
	return nil
}

// DeleteExpired removes stale rows.
func (r *LoginTokens) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM login_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired login tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
