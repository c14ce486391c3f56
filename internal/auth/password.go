package auth

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"aeroclaim.io/aeroclaim/internal/config"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// bcrypt rejects inputs longer than 72 bytes; cap instead of silently
// truncating.
const maxPasswordLength = 72

// ValidatePassword checks a candidate password against the configured
// policy. The password value itself must never be logged or echoed back.
func ValidatePassword(policy config.PasswordPolicy, password string) error {
	if len(password) < policy.MinLength {
		return apperrors.Validation(apperrors.CodePasswordPolicy,
			"password does not meet the minimum length requirement")
	}
	if len(password) > maxPasswordLength {
		return apperrors.Validation(apperrors.CodePasswordPolicy,
			"password exceeds the maximum supported length")
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}

	switch {
	case policy.RequireUppercase && !upper:
		return apperrors.Validation(apperrors.CodePasswordPolicy,
			"password must contain an uppercase letter")
	case policy.RequireLowercase && !lower:
		return apperrors.Validation(apperrors.CodePasswordPolicy,
			"password must contain a lowercase letter")
	case policy.RequireDigit && !digit:
		return apperrors.Validation(apperrors.CodePasswordPolicy,
			"password must contain a digit")
	case policy.RequireSpecial && !special:
		return apperrors.Validation(apperrors.CodePasswordPolicy,
			"password must contain a special character")
	}
	return nil
}

// HashPassword produces a bcrypt hash at the given cost. Costs below
// the bcrypt default are refused rather than silently weakened.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.DefaultCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.KindInternal, apperrors.CodeValidationFailed,
			"failed to hash password")
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
