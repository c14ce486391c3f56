package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLiveness handles GET /health/live — Kubernetes liveness probe.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetReadiness handles GET /health/ready — Kubernetes readiness probe.
// Degraded dependencies flip the status to 503 so the pod drops out of
// rotation without restarting.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string)
	healthy := true

	if err := s.pool.Ping(c.Request.Context()); err != nil {
		checks["database"] = "error"
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if err := s.redis.Ping(c.Request.Context()).Err(); err != nil {
		checks["redis"] = "error"
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	if s.objects != nil {
		if err := s.objects.Health(c.Request.Context()); err != nil {
			checks["storage"] = "error"
			healthy = false
		} else {
			checks["storage"] = "ok"
		}
	}

	status, httpStatus := "ok", http.StatusOK
	if !healthy {
		status, httpStatus = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, gin.H{"status": status, "checks": checks})
}
