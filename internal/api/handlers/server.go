// Package handlers implements the HTTP operations behind the embedded
// OpenAPI document (ADR-0021 contract-first). Handlers translate wire
// DTOs to service inputs and attach typed errors for the error-handler
// middleware; they hold no business rules of their own.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/api/handlers
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"aeroclaim.io/aeroclaim/internal/api/middleware"
	"aeroclaim.io/aeroclaim/internal/auth"
	"aeroclaim.io/aeroclaim/internal/config"
	"aeroclaim.io/aeroclaim/internal/docpipe"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/repository"
	"aeroclaim.io/aeroclaim/internal/usecase"
)

// StorageHealth is the slice of the object store the readiness probe
// needs. *storage.Client implements it.
type StorageHealth interface {
	Health(ctx context.Context) error
}

// Server implements all API handlers.
type Server struct {
	cfg     *config.Config
	store   *repository.Store
	pool    *pgxpool.Pool
	redis   redis.UniversalClient
	objects StorageHealth
	auth    *auth.Service
	claims  *usecase.Claims
	files   *docpipe.Service
}

// ServerDeps holds all dependencies for creating a Server.
// ADR-0013: Manual DI, no Wire/Dig.
type ServerDeps struct {
	Config  *config.Config
	Store   *repository.Store
	Pool    *pgxpool.Pool
	Redis   redis.UniversalClient
	Objects StorageHealth
	Auth    *auth.Service
	Claims  *usecase.Claims
	Files   *docpipe.Service
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		cfg:     deps.Config,
		store:   deps.Store,
		pool:    deps.Pool,
		redis:   deps.Redis,
		objects: deps.Objects,
		auth:    deps.Auth,
		claims:  deps.Claims,
		files:   deps.Files,
	}
}

// claimActor builds the claim-service caller from the request identity.
func claimActor(c *gin.Context) (usecase.Actor, bool) {
	id, ok := middleware.GetIdentity(c.Request.Context())
	if !ok {
		return usecase.Actor{}, false
	}
	return usecase.Actor{ID: id.CustomerID, Role: id.Role, ClientIP: c.ClientIP()}, true
}

// fileActor builds the document-pipeline caller; the user agent joins
// the access audit trail.
func fileActor(c *gin.Context) (docpipe.Actor, bool) {
	id, ok := middleware.GetIdentity(c.Request.Context())
	if !ok {
		return docpipe.Actor{}, false
	}
	return docpipe.Actor{
		ID:        id.CustomerID,
		Role:      id.Role,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}, true
}

// abortUnauthenticated is the shared denial for handlers reached
// without an identity, which only happens on middleware misconfig.
func abortUnauthenticated(c *gin.Context) {
	middleware.AbortError(c, apperrors.Unauthenticated(apperrors.CodeTokenInvalid,
		"authentication required"))
}
