package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/api/middleware"
	"aeroclaim.io/aeroclaim/internal/docpipe"
	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/usecase"
)

// AdminListClaims handles GET /admin/claims.
func (s *Server) AdminListClaims(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	limit, offset := pagination(c)
	in := usecase.AdminListInput{Limit: limit, Offset: offset}
	if raw := c.Query("status"); raw != "" {
		st := domain.ClaimStatus(raw)
		in.Status = &st
	}
	if raw := c.Query("customerId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed,
				"customerId must be a UUID"))
			return
		}
		in.CustomerID = &id
	}
	if raw := c.Query("groupId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed,
				"groupId must be a UUID"))
			return
		}
		in.GroupID = &id
	}

	claims, total, err := s.claims.AdminList(c.Request.Context(), actor, in)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, claimListDTO{
		Claims: toClaimDTOs(claims),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

type transitionRequest struct {
	Status          string `json:"status" binding:"required"`
	Reason          string `json:"reason"`
	ExpectedVersion int    `json:"expectedVersion"`
	Override        bool   `json:"override"`
}

// AdminTransitionClaim handles PATCH /admin/claims/{id}/status.
func (s *Server) AdminTransitionClaim(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}

	claim, err := s.claims.Transition(c.Request.Context(), actor, id, usecase.TransitionInput{
		To:              domain.ClaimStatus(req.Status),
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
		Override:        req.Override,
	})
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toClaimDTO(claim))
}

type noteRequest struct {
	Body     string `json:"body" binding:"required"`
	Internal bool   `json:"internal"`
}

// AdminAddClaimNote handles POST /admin/claims/{id}/notes.
func (s *Server) AdminAddClaimNote(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}

	note, err := s.claims.AddNote(c.Request.Context(), actor, id, usecase.NoteInput{
		Body:     req.Body,
		Internal: req.Internal,
	})
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toNoteDTO(note))
}

// AdminTransitionClaimGroup handles PATCH /admin/claim-groups/{id}/status.
// Every member claim moves or none does.
func (s *Server) AdminTransitionClaimGroup(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}

	claims, err := s.claims.TransitionGroup(c.Request.Context(), actor, id, usecase.TransitionInput{
		To:       domain.ClaimStatus(req.Status),
		Reason:   req.Reason,
		Override: req.Override,
	})
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toClaimDTOs(claims))
}

type reviewRequest struct {
	Approve *bool  `json:"approve" binding:"required"`
	Reason  string `json:"reason"`
}

// AdminReviewFile handles POST /admin/files/{id}/review.
func (s *Server) AdminReviewFile(c *gin.Context) {
	actor, ok := fileActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}

	file, err := s.files.Review(c.Request.Context(), actor, docpipe.ReviewInput{
		FileID:  id,
		Approve: *req.Approve,
		Reason:  req.Reason,
	})
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toFileDTO(file))
}

// AdminFileAccessLog handles GET /admin/files/{id}/access-log.
func (s *Server) AdminFileAccessLog(c *gin.Context) {
	actor, ok := fileActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	trail, err := s.files.AccessTrail(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	out := make([]accessLogDTO, 0, len(trail))
	for _, entry := range trail {
		out = append(out, toAccessLogDTO(entry))
	}
	c.JSON(http.StatusOK, out)
}

// AdminAnonymizeCustomer handles POST /admin/customers/{id}/anonymize.
// Superadmin only: erasure is irreversible and stays out of day-to-day
// admin hands.
func (s *Server) AdminAnonymizeCustomer(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	identity, ok := middleware.GetIdentity(c.Request.Context())
	if !ok {
		abortUnauthenticated(c)
		return
	}
	if identity.Role != domain.RoleSuperadmin {
		middleware.AbortError(c, apperrors.Forbidden(apperrors.CodeAccessDenied,
			"anonymization requires the superadmin role"))
		return
	}
	if err := s.auth.Anonymize(c.Request.Context(), id); err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
