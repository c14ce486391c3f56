package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"

	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// MustOpenAPIValidator builds the request validator and panics on a
// malformed document. The document is embedded, so a failure here is a
// build defect, not a runtime condition.
func MustOpenAPIValidator(doc *openapi3.T, basePath string) gin.HandlerFunc {
	mw, err := NewOpenAPIValidator(doc, basePath)
	if err != nil {
		panic(fmt.Sprintf("init openapi validator: %v", err))
	}
	return mw
}

// NewOpenAPIValidator validates request shapes against the API
// document before any handler runs. Paths the document does not know
// fall through untouched; response validation is deliberately absent
// because buffering would break streamed downloads.
func NewOpenAPIValidator(doc *openapi3.T, basePath string) (gin.HandlerFunc, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create openapi router: %w", err)
	}
	basePath = normalizeBasePath(basePath)

	return func(c *gin.Context) {
		route, pathParams, routeErr := findRouteWithFallback(router, c.Request, basePath)
		if routeErr != nil {
			if isPathNotFoundError(routeErr) {
				c.Next()
				return
			}
			AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, routeErr.Error()))
			return
		}

		opts := &openapi3filter.Options{
			AuthenticationFunc: func(context.Context, *openapi3filter.AuthenticationInput) error {
				// Token checks belong to the auth middleware.
				return nil
			},
		}
		// Multipart bodies stream straight into the document pipeline;
		// parsing them here would spool the upload twice.
		if ct := c.ContentType(); strings.HasPrefix(ct, "multipart/") {
			opts.ExcludeRequestBody = true
		}

		in := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options:    opts,
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), in); err != nil {
			AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, requestErrorMessage(err)))
			return
		}
		c.Next()
	}, nil
}

// requestErrorMessage flattens a kin-openapi validation error to its
// reason line; schema dumps stay out of the wire message.
func requestErrorMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) && reqErr.Reason != "" {
		return reqErr.Reason
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		msg = msg[:i]
	}
	return msg
}

func normalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" || basePath == "/" {
		return ""
	}
	return "/" + strings.Trim(basePath, "/")
}

func normalizeValidationPath(basePath, path string) string {
	if basePath == "" {
		if path == "" {
			return "/"
		}
		return path
	}
	if path == basePath {
		return "/"
	}
	if strings.HasPrefix(path, basePath+"/") {
		return "/" + strings.TrimPrefix(path, basePath+"/")
	}
	return path
}

// findRouteWithFallback resolves the request against the document,
// trying the raw path first and the base-path-stripped form second.
func findRouteWithFallback(
	router routers.Router,
	req *http.Request,
	basePath string,
) (*routers.Route, map[string]string, error) {
	origPath := req.URL.Path
	origRawPath := req.URL.RawPath
	defer func() {
		req.URL.Path = origPath
		req.URL.RawPath = origRawPath
	}()

	candidates := [][2]string{{origPath, origRawPath}}
	normalizedPath := normalizeValidationPath(basePath, origPath)
	normalizedRawPath := origRawPath
	if origRawPath != "" {
		normalizedRawPath = normalizeValidationPath(basePath, origRawPath)
	}
	if normalizedPath != origPath || normalizedRawPath != origRawPath {
		candidates = append(candidates, [2]string{normalizedPath, normalizedRawPath})
	}

	var lastErr error
	for _, candidate := range candidates {
		req.URL.Path = candidate[0]
		req.URL.RawPath = candidate[1]

		route, pathParams, err := router.FindRoute(req)
		if err == nil {
			return route, pathParams, nil
		}
		if !isPathNotFoundError(err) {
			return nil, nil, err
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

func isPathNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if err == routers.ErrPathNotFound {
		return true
	}
	if strings.Contains(err.Error(), routers.ErrPathNotFound.Error()) {
		return true
	}
	if routeErr, ok := err.(*routers.RouteError); ok && strings.Contains(routeErr.Reason, routers.ErrPathNotFound.Error()) {
		return true
	}
	return false
}
