package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/api/middleware"
	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/usecase"
)

// pathID parses the {id} path segment; a malformed id aborts with a
// validation error.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed,
			name+" must be a UUID"))
		return uuid.UUID{}, false
	}
	return id, true
}

// pagination reads limit/offset with the listing defaults.
func pagination(c *gin.Context) (limit, offset int) {
	limit = 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(dateFormat, raw)
}

func parseTimePtr(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type claimDraftRequest struct {
	GroupID             string `json:"groupId"`
	FlightNumber        string `json:"flightNumber"`
	FlightDate          string `json:"flightDate"`
	Airline             string `json:"airline"`
	DepartureAirport    string `json:"departureAirport"`
	ArrivalAirport      string `json:"arrivalAirport"`
	ScheduledDeparture  string `json:"scheduledDeparture"`
	ScheduledArrival    string `json:"scheduledArrival"`
	ActualDeparture     string `json:"actualDeparture"`
	ActualArrival       string `json:"actualArrival"`
	IncidentType        string `json:"incidentType"`
	IncidentDescription string `json:"incidentDescription"`
	Extraordinary       string `json:"extraordinaryCircumstance"`
	BookingReference    string `json:"bookingReference"`
	TicketNumber        string `json:"ticketNumber"`
	AcceptTerms         bool   `json:"acceptTerms"`
	AcceptPrivacy       bool   `json:"acceptPrivacy"`
}

func (r claimDraftRequest) toInput() (usecase.DraftInput, []apperrors.FieldError) {
	var fields []apperrors.FieldError
	in := usecase.DraftInput{
		FlightNumber:        r.FlightNumber,
		Airline:             r.Airline,
		DepartureAirport:    r.DepartureAirport,
		ArrivalAirport:      r.ArrivalAirport,
		IncidentType:        domain.IncidentType(r.IncidentType),
		IncidentDescription: r.IncidentDescription,
		Extraordinary:       domain.ExtraordinaryCircumstance(r.Extraordinary),
		BookingReference:    r.BookingReference,
		TicketNumber:        r.TicketNumber,
		AcceptTerms:         r.AcceptTerms,
		AcceptPrivacy:       r.AcceptPrivacy,
	}
	if r.GroupID != "" {
		id, err := uuid.Parse(r.GroupID)
		if err != nil {
			fields = append(fields, apperrors.FieldError{Field: "groupId", Code: "invalid"})
		} else {
			in.GroupID = &id
		}
	}
	if r.FlightDate != "" {
		d, err := parseDate(r.FlightDate)
		if err != nil {
			fields = append(fields, apperrors.FieldError{Field: "flightDate", Code: "invalid"})
		} else {
			in.FlightDate = d
		}
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  **time.Time
	}{
		{"scheduledDeparture", r.ScheduledDeparture, &in.ScheduledDeparture},
		{"scheduledArrival", r.ScheduledArrival, &in.ScheduledArrival},
		{"actualDeparture", r.ActualDeparture, &in.ActualDeparture},
		{"actualArrival", r.ActualArrival, &in.ActualArrival},
	} {
		t, err := parseTimePtr(f.raw)
		if err != nil {
			fields = append(fields, apperrors.FieldError{Field: f.name, Code: "invalid"})
			continue
		}
		*f.dst = t
	}
	return in, fields
}

// CreateClaim handles POST /claims.
func (s *Server) CreateClaim(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	var req claimDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}
	in, fields := req.toInput()
	if len(fields) > 0 {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed,
			"claim draft failed validation").WithFieldErrors(fields))
		return
	}

	claim, err := s.claims.CreateDraft(c.Request.Context(), actor, in)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toClaimDTO(claim))
}

// ListClaims handles GET /claims.
func (s *Server) ListClaims(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	limit, offset := pagination(c)
	in := usecase.ListInput{Limit: limit, Offset: offset}
	if raw := c.Query("status"); raw != "" {
		st := domain.ClaimStatus(raw)
		in.Status = &st
	}

	claims, total, err := s.claims.List(c.Request.Context(), actor, in)
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

type submitClaimRequest struct {
	ClaimID string `json:"claimId" binding:"required"`
}

// SubmitClaim handles POST /claims/submit.
func (s *Server) SubmitClaim(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	var req submitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}
	claimID, err := uuid.Parse(req.ClaimID)
	if err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed,
			"claimId must be a UUID"))
		return
	}

	claim, err := s.claims.Submit(c.Request.Context(), actor, claimID)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toClaimDTO(claim))
}

// GetClaim handles GET /claims/{id}.
func (s *Server) GetClaim(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	claim, err := s.claims.Get(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toClaimDTO(claim))
}

type claimPatchRequest struct {
	Version             int     `json:"version"`
	FlightNumber        *string `json:"flightNumber"`
	FlightDate          *string `json:"flightDate"`
	Airline             *string `json:"airline"`
	DepartureAirport    *string `json:"departureAirport"`
	ArrivalAirport      *string `json:"arrivalAirport"`
	ScheduledDeparture  *string `json:"scheduledDeparture"`
	ScheduledArrival    *string `json:"scheduledArrival"`
	ActualDeparture     *string `json:"actualDeparture"`
	ActualArrival       *string `json:"actualArrival"`
	IncidentType        *string `json:"incidentType"`
	IncidentDescription *string `json:"incidentDescription"`
	Extraordinary       *string `json:"extraordinaryCircumstance"`
	BookingReference    *string `json:"bookingReference"`
	TicketNumber        *string `json:"ticketNumber"`
	AcceptTerms         bool    `json:"acceptTerms"`
	AcceptPrivacy       bool    `json:"acceptPrivacy"`
}

func (r claimPatchRequest) toPatch() (usecase.DraftPatch, []apperrors.FieldError) {
	var fields []apperrors.FieldError
	patch := usecase.DraftPatch{
		Version:             r.Version,
		FlightNumber:        r.FlightNumber,
		Airline:             r.Airline,
		DepartureAirport:    r.DepartureAirport,
		ArrivalAirport:      r.ArrivalAirport,
		IncidentDescription: r.IncidentDescription,
		BookingReference:    r.BookingReference,
		TicketNumber:        r.TicketNumber,
		AcceptTerms:         r.AcceptTerms,
		AcceptPrivacy:       r.AcceptPrivacy,
	}
	if r.FlightDate != nil {
		d, err := parseDate(*r.FlightDate)
		if err != nil {
			fields = append(fields, apperrors.FieldError{Field: "flightDate", Code: "invalid"})
		} else {
			patch.FlightDate = &d
		}
	}
	if r.IncidentType != nil {
		it := domain.IncidentType(*r.IncidentType)
		patch.IncidentType = &it
	}
	if r.Extraordinary != nil {
		ex := domain.ExtraordinaryCircumstance(*r.Extraordinary)
		patch.Extraordinary = &ex
	}
	for _, f := range []struct {
		name string
		raw  *string
		dst  **time.Time
	}{
		{"scheduledDeparture", r.ScheduledDeparture, &patch.ScheduledDeparture},
		{"scheduledArrival", r.ScheduledArrival, &patch.ScheduledArrival},
		{"actualDeparture", r.ActualDeparture, &patch.ActualDeparture},
		{"actualArrival", r.ActualArrival, &patch.ActualArrival},
	} {
		if f.raw == nil {
			continue
		}
		t, err := parseTimePtr(*f.raw)
		if err != nil {
			fields = append(fields, apperrors.FieldError{Field: f.name, Code: "invalid"})
			continue
		}
		*f.dst = t
	}
	return patch, fields
}

// UpdateClaim handles PATCH /claims/{id}. Draft-only partial edit with
// an optimistic version check.
func (s *Server) UpdateClaim(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req claimPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
		return
	}
	patch, fields := req.toPatch()
	if len(fields) > 0 {
		middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed,
			"claim patch failed validation").WithFieldErrors(fields))
		return
	}

	claim, err := s.claims.UpdateDraft(c.Request.Context(), actor, id, patch)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toClaimDTO(claim))
}

type previewRequest struct {
	IncidentType string `json:"incidentType"`
	Region       string `json:"region"`
}

// PreviewEligibility handles POST /claims/{id}/eligibility. Dry run
// only; nothing on the claim changes.
func (s *Server) PreviewEligibility(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req previewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortError(c, apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
			return
		}
	}
	in := usecase.PreviewInput{Region: domain.Region(req.Region)}
	if req.IncidentType != "" {
		it := domain.IncidentType(req.IncidentType)
		in.Incident = &it
	}

	result, err := s.claims.Preview(c.Request.Context(), actor, id, in)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEligibilityDTO(result))
}

// ListClaimNotes handles GET /claims/{id}/notes. Customers see only
// customer-visible notes; the service filters.
func (s *Server) ListClaimNotes(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	notes, err := s.claims.ListNotes(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	out := make([]noteDTO, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNoteDTO(n))
	}
	c.JSON(http.StatusOK, out)
}

// ListClaimHistory handles GET /claims/{id}/history.
func (s *Server) ListClaimHistory(c *gin.Context) {
	actor, ok := claimActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entries, err := s.claims.ListHistory(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	out := make([]historyDTO, 0, len(entries))
	for _, h := range entries {
		out = append(out, toHistoryDTO(h))
	}
	c.JSON(http.StatusOK, out)
}

// ListClaimFiles handles GET /claims/{id}/files.
func (s *Server) ListClaimFiles(c *gin.Context) {
	actor, ok := fileActor(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	files, err := s.files.ListByClaim(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortError(c, err)
		return
	}
	out := make([]fileDTO, 0, len(files))
	for _, f := range files {
		out = append(out, toFileDTO(f))
	}
	c.JSON(http.StatusOK, out)
}
