// Package middleware provides the HTTP middleware chain for AeroClaim.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/api/middleware
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
)

// errorBody is the wire shape of every error response:
// {"error":{"code","message","details"?},"timestamp"}.
type errorBody struct {
	Error     *apperrors.AppError `json:"error"`
	Timestamp time.Time           `json:"timestamp"`
}

// ErrorHandler renders errors attached via c.Error into the stable
// error envelope. Internal causes are logged with the request id and
// never serialized; handlers abort and attach, they do not render.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		appErr, ok := apperrors.IsAppError(err)
		switch {
		case !ok:
			logger.Error("unhandled request error",
				zap.String("request_id", GetRequestID(c.Request.Context())),
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
			appErr = apperrors.Internal("internal", "an internal error occurred")
		case appErr.Kind == apperrors.KindInternal || appErr.Kind == apperrors.KindIntegrityCheckFailed:
			logger.Error("request failed",
				zap.String("request_id", GetRequestID(c.Request.Context())),
				zap.String("path", c.FullPath()),
				zap.String("kind", string(appErr.Kind)),
				zap.String("code", appErr.Code),
				zap.Error(appErr.Err),
			)
		default:
			logger.Warn("request rejected",
				zap.String("request_id", GetRequestID(c.Request.Context())),
				zap.String("path", c.FullPath()),
				zap.String("kind", string(appErr.Kind)),
				zap.String("code", appErr.Code),
			)
		}

		if c.Writer.Written() {
			// Too late for an envelope; the stream already started.
			return
		}
		c.JSON(appErr.HTTPStatus(), errorBody{Error: appErr, Timestamp: time.Now().UTC()})
	}
}

// AbortError attaches err and stops the handler chain. The deferred
// ErrorHandler turns it into the error envelope.
func AbortError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Deadline bounds every request context. skip exempts paths that hold
// connections longer than the API budget, such as streamed downloads.
func Deadline(d time.Duration, skip func(path string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 || (skip != nil && skip(c.Request.URL.Path)) {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
