package app

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"aeroclaim.io/aeroclaim/internal/api/handlers"
	"aeroclaim.io/aeroclaim/internal/api/middleware"
	"aeroclaim.io/aeroclaim/internal/api/spec"
	"aeroclaim.io/aeroclaim/internal/auth"
	"aeroclaim.io/aeroclaim/internal/config"
)

// apiBase prefixes every versioned route. Health probes live outside
// it so orchestration never depends on the API version.
const apiBase = "/api/v1"

// streamingPath exempts uploads and downloads from the request
// deadline; document transfers legitimately outlive it.
func streamingPath(path string) bool {
	return strings.HasSuffix(path, "/download") ||
		strings.HasSuffix(path, "/files/upload")
}

func newRouter(cfg *config.Config, server *handlers.Server, tokens *auth.TokenIssuer) (*gin.Engine, error) {
	doc, err := spec.Load()
	if err != nil {
		return nil, err
	}
	validator, err := middleware.NewOpenAPIValidator(doc, apiBase)
	if err != nil {
		return nil, err
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())

	if origins := cfg.CORS.OriginList(); len(origins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader, "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.Use(middleware.Deadline(cfg.Server.RequestTimeout, streamingPath))
	router.Use(validator)

	router.GET("/health/live", server.GetLiveness)
	router.GET("/health/ready", server.GetReadiness)

	api := router.Group(apiBase)
	authn := middleware.Auth(tokens)

	// Auth surface. The token-bearing flows are public by design; the
	// session endpoints behind them require the session they manage.
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", server.Register)
		authGroup.POST("/login", server.Login)
		authGroup.POST("/refresh", server.Refresh)
		authGroup.POST("/magic-link/request", server.RequestMagicLink)
		authGroup.POST("/magic-link/verify/:token", server.VerifyMagicLink)
		authGroup.POST("/password/reset-request", server.RequestPasswordReset)
		authGroup.POST("/password/reset-confirm", server.ConfirmPasswordReset)
		authGroup.POST("/email/verify/:token", server.VerifyEmail)

		authGroup.POST("/logout", authn, server.Logout)
		authGroup.POST("/password/change", authn, server.ChangePassword)
		authGroup.GET("/me", authn, server.GetProfile)
		authGroup.PATCH("/me", authn, server.UpdateProfile)
	}

	claims := api.Group("/claims", authn)
	{
		claims.POST("", server.CreateClaim)
		claims.GET("", server.ListClaims)
		claims.POST("/submit", server.SubmitClaim)
		claims.GET("/:id", server.GetClaim)
		claims.PATCH("/:id", server.UpdateClaim)
		claims.POST("/:id/eligibility", server.PreviewEligibility)
		claims.GET("/:id/notes", server.ListClaimNotes)
		claims.GET("/:id/history", server.ListClaimHistory)
		claims.GET("/:id/files", server.ListClaimFiles)
	}

	groups := api.Group("/claim-groups", authn)
	{
		groups.POST("", server.CreateClaimGroup)
		groups.GET("", server.ListClaimGroups)
		groups.GET("/:id", server.GetClaimGroup)
		groups.POST("/:id/consent", server.ConfirmGroupConsent)
		groups.POST("/:id/submit", server.SubmitClaimGroup)
	}

	files := api.Group("/files", authn)
	{
		files.POST("/upload", server.UploadFile)
		files.GET("/:id", server.GetFileMetadata)
		files.DELETE("/:id", server.DeleteFile)
		files.GET("/:id/download", server.DownloadFile)
	}

	admin := api.Group("/admin", authn, middleware.RequireAdmin())
	{
		admin.GET("/claims", server.AdminListClaims)
		admin.PATCH("/claims/:id/status", server.AdminTransitionClaim)
		admin.POST("/claims/:id/notes", server.AdminAddClaimNote)
		admin.PATCH("/claim-groups/:id/status", server.AdminTransitionClaimGroup)
		admin.POST("/files/:id/review", server.AdminReviewFile)
		admin.GET("/files/:id/access-log", server.AdminFileAccessLog)
		admin.POST("/customers/:id/anonymize", server.AdminAnonymizeCustomer)
	}

	return router, nil
}
