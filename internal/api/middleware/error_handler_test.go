package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

func TestErrorHandler_NoErrors(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	require.Equal(t, http.StatusOK, w.Code)
}

func TestErrorHandler_AppErrorEnvelope(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/missing", func(c *gin.Context) {
		AbortError(c, apperrors.ErrClaimNotFound())
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Timestamp time.Time `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, apperrors.CodeClaimNotFound, body.Error.Code)
	require.NotEmpty(t, body.Error.Message)
	require.False(t, body.Timestamp.IsZero())
}

func TestErrorHandler_ValidationDetails(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.POST("/claims", func(c *gin.Context) {
		AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, "claim draft failed validation").
			WithFieldErrors([]apperrors.FieldError{
				{Field: "flightNumber", Code: "required"},
			}))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/claims", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error struct {
			Code    string                 `json:"code"`
			Details []apperrors.FieldError `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, apperrors.CodeValidationFailed, body.Error.Code)
	require.Len(t, body.Error.Details, 1)
	require.Equal(t, "flightNumber", body.Error.Details[0].Field)
}

func TestErrorHandler_UnknownErrorIsMasked(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/boom", func(c *gin.Context) {
		AbortError(c, errors.New("pq: connection refused at 10.0.0.3"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "10.0.0.3",
		"internal causes must never reach the wire")
}

func TestErrorHandler_SkipsWhenBodyStarted(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/stream", func(c *gin.Context) {
		c.Status(http.StatusOK)
		_, _ = c.Writer.Write([]byte("partial"))
		AbortError(c, apperrors.Internal("stream_failed", "stream failed"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "partial", w.Body.String(), "no envelope after the stream started")
}

func TestDeadline_SkipsExemptPaths(t *testing.T) {
	skip := func(path string) bool { return path == "/download" }
	router := gin.New()
	router.Use(Deadline(time.Nanosecond, skip))
	router.GET("/download", func(c *gin.Context) {
		_, hasDeadline := c.Request.Context().Deadline()
		require.False(t, hasDeadline)
		c.Status(http.StatusOK)
	})
	router.GET("/api", func(c *gin.Context) {
		_, hasDeadline := c.Request.Context().Deadline()
		require.True(t, hasDeadline)
		c.Status(http.StatusOK)
	})

	for _, path := range []string{"/download", "/api"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}
