package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

const (
	tokenIssuer = "aeroclaim"

	// accessTokenType is asserted on every verification so refresh or
	// single-use tokens can never be replayed as access tokens.
	accessTokenType = "access"
)

// AccessClaims is the payload of a short-lived access token. Subject is
// the customer id, ID is a per-token jti.
type AccessClaims struct {
	Role      domain.Role `json:"role"`
	TokenType string      `json:"token_type"`
	jwt.RegisteredClaims
}

// CustomerID parses the subject claim.
func (c *AccessClaims) CustomerID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenIssuer signs and verifies access tokens. Signing is HS256 with
// the process-wide secret; verification pins the method and never
// trusts the token header.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer for access tokens of the given lifetime.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Issue signs an access token for the customer, returning the compact
// form and its expiry.
func (i *TokenIssuer) Issue(customer *domain.Customer, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(i.ttl)

	claims := AccessClaims{
		Role:      customer.Role,
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   customer.ID.String(),
			ID:        uuid.Must(uuid.NewV7()).String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, apperrors.Wrap(err, apperrors.KindInternal, "", "failed to sign access token")
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a compact access token. The signing
// method is pinned to HS256, expiry and issued-at are required, and
// tokens of any other type are rejected.
func (i *TokenIssuer) Verify(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{},
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Unauthenticated(apperrors.CodeTokenExpired, "access token has expired")
		}
		return nil, apperrors.Unauthenticated(apperrors.CodeTokenInvalid, "access token is invalid")
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, apperrors.Unauthenticated(apperrors.CodeTokenInvalid, "access token is invalid")
	}
	if claims.TokenType != accessTokenType {
		return nil, apperrors.Unauthenticated(apperrors.CodeTokenInvalid, "token is not an access token")
	}
	if _, err := claims.CustomerID(); err != nil {
		return nil, apperrors.Unauthenticated(apperrors.CodeTokenInvalid, "access token is invalid")
	}
	return claims, nil
}
