package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/api/middleware"
	"aeroclaim.io/aeroclaim/internal/auth"
	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// refreshCookiePath scopes the refresh cookie to the auth surface so
// the long-lived token never rides along on API calls.
const refreshCookiePath = "/api/v1/auth"

// setSessionCookies installs the browser session. Tokens also travel in
// the response body for native clients; cookies are the browser path.
func (s *Server) setSessionCookies(c *gin.Context, session *auth.Session) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessCookie, session.AccessToken,
		int(s.cfg.Auth.AccessTokenTTL.Seconds()), "/", "", s.cfg.Auth.CookieSecure, true)
	c.SetCookie(middleware.RefreshCookie, session.RefreshToken,
		int(s.cfg.Auth.RefreshTokenTTL.Seconds()), refreshCookiePath, "", s.cfg.Auth.CookieSecure, true)
}

func (s *Server) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessCookie, "", -1, "/", "", s.cfg.Auth.CookieSecure, true)
	c.SetCookie(middleware.RefreshCookie, "", -1, refreshCookiePath, "", s.cfg.Auth.CookieSecure, true)
}

type registerRequest struct {
	Email     string      `json:"email" binding:"required"`
	Password  string      `json:"password" binding:"required"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Phone     string      `json:"phone"`
	Address   *addressDTO `json:"address"`
}

// Register handles POST /auth/register.
func (s *Server) Register(c *gin.Context) {
	ctx := c.Request.Context()

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}

	in := auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
	if req.Address != nil {
		in.Address = domain.Address{
			Street:     req.Address.Street,
			City:       req.Address.City,
			PostalCode: req.Address.PostalCode,
			Country:    req.Address.Country,
		}
	}
	if _, err := s.auth.Register(ctx, in); err != nil {
		middleware.AbortError(c, err)
		return
	}

	// Registration signs the account in immediately; verification gates
	// nothing but the reminder mails.
	session, err := s.auth.Login(ctx, req.Email, req.Password, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	s.setSessionCookies(c, session)
	c.JSON(http.StatusCreated, toSessionDTO(session, ""))
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /auth/login.
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}

	session, err := s.auth.Login(c.Request.Context(), req.Email, req.Password,
		c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	s.setSessionCookies(c, session)
	c.JSON(http.StatusOK, toSessionDTO(session, ""))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /auth/refresh. The token comes from the body for
// native clients or from the path-scoped cookie for browsers.
func (s *Server) Refresh(c *gin.Context) {
	var req refreshRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
			return
		}
	}
	raw := req.RefreshToken
	if raw == "" {
		raw, _ = c.Cookie(middleware.RefreshCookie)
	}
	if raw == "" {
		middleware.AbortError(c, apperrors.Unauthenticated(apperrors.CodeTokenInvalid,
			"refresh token is required"))
		return
	}

	session, err := s.auth.Refresh(c.Request.Context(), raw, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		s.clearSessionCookies(c)
		middleware.AbortError(c, err)
		return
	}
	s.setSessionCookies(c, session)
	c.JSON(http.StatusOK, toSessionDTO(session, ""))
}

// Logout handles POST /auth/logout.
func (s *Server) Logout(c *gin.Context) {
	id, ok := middleware.GetIdentity(c.Request.Context())
	if !ok {
		abortUnauthenticated(c)
		return
	}
	if err := s.auth.Logout(c.Request.Context(), id.CustomerID); err != nil {
		middleware.AbortError(c, err)
		return
	}
	s.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

type magicLinkRequest struct {
	Email   string `json:"email" binding:"required"`
	ClaimID string `json:"claimId"`
}

// RequestMagicLink handles POST /auth/magic-link/request. Always 202;
// the response never discloses whether the address is registered.
func (s *Server) RequestMagicLink(c *gin.Context) {
	var req magicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}
	var claimID *uuid.UUID
	if req.ClaimID != "" {
		if id, err := uuid.Parse(req.ClaimID); err == nil {
			claimID = &id
		}
	}
	if err := s.auth.RequestMagicLink(c.Request.Context(), req.Email, claimID, c.ClientIP()); err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// VerifyMagicLink handles POST /auth/magic-link/verify/{token}.
func (s *Server) VerifyMagicLink(c *gin.Context) {
	session, claimID, err := s.auth.VerifyMagicLink(c.Request.Context(),
		strings.TrimSpace(c.Param("token")), c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	var deepLink string
	if claimID != nil {
		deepLink = claimID.String()
	}
	s.setSessionCookies(c, session)
	c.JSON(http.StatusOK, toSessionDTO(session, deepLink))
}

type passwordResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// RequestPasswordReset handles POST /auth/password/reset-request.
func (s *Server) RequestPasswordReset(c *gin.Context) {
	var req passwordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}
	if err := s.auth.RequestPasswordReset(c.Request.Context(), req.Email, c.ClientIP()); err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type passwordResetConfirm struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ConfirmPasswordReset handles POST /auth/password/reset-confirm.
func (s *Server) ConfirmPasswordReset(c *gin.Context) {
	var req passwordResetConfirm
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}
	if err := s.auth.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		middleware.AbortError(c, err)
		return
	}
	// All refresh tokens are revoked by the reset; drop the browser
	// session too.
	s.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// ChangePassword handles POST /auth/password/change.
func (s *Server) ChangePassword(c *gin.Context) {
	id, ok := middleware.GetIdentity(c.Request.Context())
	if !ok {
		abortUnauthenticated(c)
		return
	}
	var req passwordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}
	if err := s.auth.ChangePassword(c.Request.Context(), id.CustomerID,
		req.CurrentPassword, req.NewPassword); err != nil {
		middleware.AbortError(c, err)
		return
	}
	s.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

// VerifyEmail handles POST /auth/email/verify/{token}.
func (s *Server) VerifyEmail(c *gin.Context) {
	if err := s.auth.VerifyEmail(c.Request.Context(), strings.TrimSpace(c.Param("token"))); err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetProfile handles GET /auth/me.
func (s *Server) GetProfile(c *gin.Context) {
	id, ok := middleware.GetIdentity(c.Request.Context())
	if !ok {
		abortUnauthenticated(c)
		return
	}
	customer, err := s.store.Customers.GetByID(c.Request.Context(), id.CustomerID)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerDTO(customer))
}

type profilePatch struct {
	FirstName *string     `json:"firstName"`
	LastName  *string     `json:"lastName"`
	Phone     *string     `json:"phone"`
	Address   *addressDTO `json:"address"`
}

// UpdateProfile handles PATCH /auth/me. Absent fields keep their value;
// email and role are not editable here.
func (s *Server) UpdateProfile(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := middleware.GetIdentity(ctx)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	var req profilePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}

	customer, err := s.store.Customers.GetByID(ctx, id.CustomerID)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	if customer.Anonymized() {
		middleware.AbortError(c, apperrors.Forbidden(apperrors.CodeAccessDenied,
			"account has been anonymized"))
		return
	}

	if req.FirstName != nil {
		customer.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		customer.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Phone != nil {
		customer.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		customer.Address = domain.Address{
			Street:     req.Address.Street,
			City:       req.Address.City,
			PostalCode: req.Address.PostalCode,
			Country:    req.Address.Country,
		}
	}
	if err := s.store.Customers.UpdateProfile(ctx, customer); err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerDTO(customer))
}
