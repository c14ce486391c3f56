package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aeroclaim.io/aeroclaim/internal/api/middleware"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/usecase"
)

type groupCreateRequest struct {
	Name         string `json:"name" binding:"required"`
	FlightNumber string `json:"flightNumber" binding:"required"`
	FlightDate   string `json:"flightDate" binding:"required"`
}

// CreateClaimGroup handles POST /claim-groups.
func (s *Server) CreateClaimGroup(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	var req groupCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}
	flightDate, err := parseDate(req.FlightDate)
	if err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed,
			"flightDate must be YYYY-MM-DD").
			WithFieldErrors([]apperrors.FieldError{{Field: "flightDate", Code: "invalid"}}))
		return
	}

	group, err := s.claims.CreateGroup(c.Request.Context(), actor, usecase.GroupInput{
		Name:         req.Name,
		FlightNumber: req.FlightNumber,
		FlightDate:   flightDate,
	})
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toGroupDTO(group))
}

// ListClaimGroups handles GET /claim-groups.
func (s *Server) ListClaimGroups(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	groups, err := s.claims.ListGroups(c.Request.Context(), actor)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	out := make([]groupDTO, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupDTO(g))
	}
	c.JSON(http.StatusOK, out)
}

// GetClaimGroup handles GET /claim-groups/{id}. The detail view
// materializes membership from claims.group_id.
func (s *Server) GetClaimGroup(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	group, claims, err := s.claims.GetGroup(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupDetailDTO{
		Group:  toGroupDTO(group),
		Claims: toClaimDTOs(claims),
	})
}

// ConfirmGroupConsent handles POST /claim-groups/{id}/consent.
func (s *Server) ConfirmGroupConsent(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	group, err := s.claims.ConfirmGroupConsent(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toGroupDTO(group))
}

// SubmitClaimGroup handles POST /claim-groups/{id}/submit. All member
// claims submit atomically or none do.
func (s *Server) SubmitClaimGroup(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	claims, err := s.claims.SubmitGroup(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toClaimDTOs(claims))
}
