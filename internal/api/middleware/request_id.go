package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/domain"
)

type contextKey string

const (
	// RequestIDHeader is the HTTP header for request tracing.
	RequestIDHeader = "X-Request-ID"

	ctxKeyRequestID contextKey = "request_id"
	ctxKeyIdentity  contextKey = "identity"
)

// Identity is the authenticated caller as established by the access
// token. It never carries PII beyond the customer id.
type Identity struct {
	CustomerID uuid.UUID
	Role       domain.Role
}

// Admin reports whether the caller holds the admin role.
func (i Identity) Admin() bool {
	return i.Role.Admin()
}

// RequestID injects a unique request ID into the context and response
// header. Client-supplied ids are honored only when they parse as a
// UUID, so log lines cannot be polluted with arbitrary strings.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(rid); err != nil {
			rid = uuid.Must(uuid.NewV7()).String()
		}
		c.Set(string(ctxKeyRequestID), rid)
		c.Writer.Header().Set(RequestIDHeader, rid)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), ctxKeyRequestID, rid),
		)
		c.Next()
	}
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// SetIdentity stores the authenticated caller in the context.
func SetIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// GetIdentity extracts the authenticated caller. ok is false on
// unauthenticated requests.
func GetIdentity(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return v, ok
}
