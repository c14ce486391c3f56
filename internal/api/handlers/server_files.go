package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/api/middleware"
	"aeroclaim.io/aeroclaim/internal/docpipe"
	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
)

// UploadFile handles POST /files/upload (multipart form). The content
// streams from the form part; the pipeline sniffs, encrypts, uploads
// and verifies before the metadata row commits.
func (s *Server) UploadFile(c *gin.Context) {
	actor, ok := fileActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}

	claimID, err := uuid.Parse(c.PostForm("claimId"))
	if err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed,
			"claimId must be a UUID"))
		return
	}
	docType := domain.DocumentType(c.PostForm("documentType"))
	if !docType.Valid() {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed,
			"unknown documentType").
			WithFieldErrors([]apperrors.FieldError{{Field: "documentType", Code: "invalid"}}))
		return
	}

	part, err := c.FormFile("file")
	if err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed,
			"multipart field \"file\" is required"))
		return
	}
	src, err := part.Open()
	if err != nil {
		middleware.AbortError(c, apperrors.Internal("upload_failed",
			"open uploaded file"))
		return
	}
	defer src.Close()

	file, err := s.files.Upload(c.Request.Context(), actor, docpipe.UploadInput{
		ClaimID:      claimID,
		DocumentType: docType,
		Filename:     part.Filename,
		DeclaredType: part.Header.Get("Content-Type"),
		Content:      src,
	})
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toFileDTO(file))
}

// GetFileMetadata handles GET /files/{id}.
func (s *Server) GetFileMetadata(c *gin.Context) {
	actor, ok := fileActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	file, err := s.files.Metadata(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toFileDTO(file))
}

// DeleteFile handles DELETE /files/{id}.
func (s *Server) DeleteFile(c *gin.Context) {
	actor, ok := fileActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.files.Delete(c.Request.Context(), actor, id); err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DownloadFile handles GET /files/{id}/download. Headers are set from
// the metadata before the first byte; once the body is flowing a
// failure can only cut the connection, not change the status.
func (s *Server) DownloadFile(c *gin.Context) {
	actor, ok := fileActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	stream, err := s.files.OpenDownload(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", stream.File.ContentType)
	c.Header("Content-Length", strconv.FormatInt(stream.File.PlainSize, 10))
	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", stream.File.Filename))
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)

	if err := stream.Stream(c.Request.Context(), c.Writer); err != nil {
		// Headers are gone; log and sever the response mid-body so the
		// client sees a short read instead of a silently truncated file.
		logger.Warn("document download aborted",
			zap.String("file_id", id.String()), zap.Error(err))
		c.Abort()
	}
}
