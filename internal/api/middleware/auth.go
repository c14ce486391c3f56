package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"aeroclaim.io/aeroclaim/internal/auth"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// AccessCookie carries the access JWT for browser clients. HTTP-only,
// so the in-page script surface never sees token material.
const AccessCookie = "ac_access"

// RefreshCookie carries the refresh token, path-scoped to the auth
// endpoints so it is not replayed on every API call.
const RefreshCookie = "ac_refresh"

// Auth validates the access token from the cookie or the Authorization
// header and stores the caller's Identity. A Bearer header wins over
// the cookie so native clients can override a stale browser session.
func Auth(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			raw, _ = c.Cookie(AccessCookie)
		}
		if raw == "" {
			AbortError(c, apperrors.Unauthenticated(apperrors.CodeTokenInvalid,
				"authentication required"))
			return
		}

		claims, err := tokens.Verify(raw)
		if err != nil {
			AbortError(c, err)
			return
		}
		customerID, err := claims.CustomerID()
		if err != nil {
			AbortError(c, apperrors.Unauthenticated(apperrors.CodeTokenInvalid,
				"access token is invalid"))
			return
		}

		id := Identity{CustomerID: customerID, Role: claims.Role}
		c.Request = c.Request.WithContext(SetIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireAdmin gates a route group on the admin role. Runs after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c.Request.Context())
		if !ok {
			AbortError(c, apperrors.Unauthenticated(apperrors.CodeTokenInvalid,
				"authentication required"))
			return
		}
		if !id.Admin() {
			AbortError(c, apperrors.Forbidden(apperrors.CodeAccessDenied,
				"this endpoint requires an admin role"))
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
