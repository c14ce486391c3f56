package handlers

import (
	"time"

	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/auth"
	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/eligibility"
)

// dateFormat is the wire form of calendar dates (flightDate).
const dateFormat = "2006-01-02"

// ---------------------------------------------------------------------------
// Wire DTOs. Field names are the API contract; keep them aligned with
// the embedded OpenAPI document.
// ---------------------------------------------------------------------------

type addressDTO struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type customerDTO struct {
	ID            string      `json:"id"`
	Email         string      `json:"email"`
	FirstName     string      `json:"firstName,omitempty"`
	LastName      string      `json:"lastName,omitempty"`
	Phone         string      `json:"phone,omitempty"`
	Address       *addressDTO `json:"address,omitempty"`
	Role          string      `json:"role"`
	EmailVerified bool        `json:"emailVerified"`
	CreatedAt     string      `json:"createdAt"`
}

type sessionDTO struct {
	Customer         customerDTO `json:"customer"`
	AccessToken      string      `json:"accessToken"`
	AccessExpiresAt  string      `json:"accessExpiresAt"`
	RefreshToken     string      `json:"refreshToken"`
	RefreshExpiresAt string      `json:"refreshExpiresAt"`
	ClaimID          string      `json:"claimId,omitempty"`
}

type flightInfoDTO struct {
	FlightNumber       string   `json:"flightNumber"`
	Airline            string   `json:"airline,omitempty"`
	DepartureDate      string   `json:"departureDate"`
	DepartureAirport   string   `json:"departureAirport,omitempty"`
	ArrivalAirport     string   `json:"arrivalAirport,omitempty"`
	ScheduledDeparture string   `json:"scheduledDeparture,omitempty"`
	ScheduledArrival   string   `json:"scheduledArrival,omitempty"`
	ActualDeparture    string   `json:"actualDeparture,omitempty"`
	ActualArrival      string   `json:"actualArrival,omitempty"`
	Status             string   `json:"status"`
	DelayMinutes       *int     `json:"delayMinutes,omitempty"`
	DistanceKm         *float64 `json:"distanceKm,omitempty"`
}

type claimDTO struct {
	ID                   string        `json:"id"`
	CustomerID           string        `json:"customerId"`
	GroupID              string        `json:"groupId,omitempty"`
	Status               string        `json:"status"`
	Version              int           `json:"version"`
	FlightInfo           flightInfoDTO `json:"flightInfo"`
	IncidentType         string        `json:"incidentType,omitempty"`
	IncidentDescription  string        `json:"incidentDescription,omitempty"`
	Extraordinary        string        `json:"extraordinaryCircumstance,omitempty"`
	CompensationAmount   string        `json:"compensationAmount,omitempty"`
	CompensationCurrency string        `json:"compensationCurrency,omitempty"`
	RejectionReason      string        `json:"rejectionReason,omitempty"`
	BookingReference     string        `json:"bookingReference,omitempty"`
	TicketNumber         string        `json:"ticketNumber,omitempty"`
	TermsConsentAt       string        `json:"termsConsentAt,omitempty"`
	PrivacyConsentAt     string        `json:"privacyConsentAt,omitempty"`
	SubmittedAt          string        `json:"submittedAt,omitempty"`
	CreatedAt            string        `json:"createdAt"`
	UpdatedAt            string        `json:"updatedAt"`
}

type claimListDTO struct {
	Claims []claimDTO `json:"claims"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

type groupDTO struct {
	ID                 string `json:"id"`
	OwnerID            string `json:"ownerId"`
	Name               string `json:"name"`
	FlightNumber       string `json:"flightNumber"`
	FlightDate         string `json:"flightDate"`
	ConsentConfirmed   bool   `json:"consentConfirmed"`
	ConsentConfirmedAt string `json:"consentConfirmedAt,omitempty"`
	CreatedAt          string `json:"createdAt"`
}

type groupDetailDTO struct {
	Group  groupDTO   `json:"group"`
	Claims []claimDTO `json:"claims"`
}

type noteDTO struct {
	ID        string `json:"id"`
	ClaimID   string `json:"claimId"`
	AuthorID  string `json:"authorId"`
	Body      string `json:"body"`
	Internal  bool   `json:"internal"`
	CreatedAt string `json:"createdAt"`
}

type historyDTO struct {
	ID         string `json:"id"`
	ClaimID    string `json:"claimId"`
	FromStatus string `json:"fromStatus"`
	ToStatus   string `json:"toStatus"`
	ActorID    string `json:"actorId,omitempty"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

type reasonDTO struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type eligibilityDTO struct {
	Eligible             bool        `json:"eligible"`
	Amount               *string     `json:"amount"`
	Currency             string      `json:"currency,omitempty"`
	Regulation           string      `json:"regulation"`
	DistanceKm           float64     `json:"distanceKm"`
	DelayMinutes         int         `json:"delayMinutes"`
	ManualReviewRequired bool        `json:"manualReviewRequired"`
	Extraordinary        string      `json:"extraordinaryCircumstance,omitempty"`
	Reasons              []reasonDTO `json:"reasons"`
	RequiredDocuments    []string    `json:"requiredDocuments"`
}

type fileDTO struct {
	ID              string `json:"id"`
	ClaimID         string `json:"claimId"`
	Filename        string `json:"filename"`
	ContentType     string `json:"contentType"`
	DocumentType    string `json:"documentType"`
	Size            int64  `json:"size"`
	Digest          string `json:"digest"`
	ReviewStatus    string `json:"reviewStatus"`
	RejectionReason string `json:"rejectionReason,omitempty"`
	UploadedAt      string `json:"uploadedAt"`
}

type accessLogDTO struct {
	ID        string `json:"id"`
	FileID    string `json:"fileId"`
	ActorID   string `json:"actorId"`
	Action    string `json:"action"`
	Detail    string `json:"detail,omitempty"`
	ClientIP  string `json:"clientIp,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// ---------------------------------------------------------------------------
// Converters
// ---------------------------------------------------------------------------

func toCustomerDTO(c *domain.Customer) customerDTO {
	dto := customerDTO{
		ID:            c.ID.String(),
		Email:         c.Email,
		FirstName:     c.FirstName,
		LastName:      c.LastName,
		Phone:         c.Phone,
		Role:          string(c.Role),
		EmailVerified: c.EmailVerified,
		CreatedAt:     c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !c.Address.Empty() {
		dto.Address = &addressDTO{
			Street:     c.Address.Street,
			City:       c.Address.City,
			PostalCode: c.Address.PostalCode,
			Country:    c.Address.Country,
		}
	}
	return dto
}

func toSessionDTO(s *auth.Session, claimID string) sessionDTO {
	return sessionDTO{
		Customer:         toCustomerDTO(s.Customer),
		AccessToken:      s.AccessToken,
		AccessExpiresAt:  s.AccessExpiresAt.UTC().Format(time.RFC3339),
		RefreshToken:     s.RefreshToken,
		RefreshExpiresAt: s.RefreshExpiresAt.UTC().Format(time.RFC3339),
		ClaimID:          claimID,
	}
}

// flightStatus derives the wire flight status from what the claim
// records. The platform stores incident facts, not a live tracking
// feed, so the status reflects the filed disruption.
func flightStatus(c *domain.Claim) string {
	switch c.IncidentType {
	case domain.IncidentCancellation:
		return "cancelled"
	case domain.IncidentDeniedBoarding:
		return "denied_boarding"
	case domain.IncidentDelay:
		return "delayed"
	}
	if c.ActualArrival != nil {
		return "arrived"
	}
	return "scheduled"
}

func toClaimDTO(c *domain.Claim) claimDTO {
	dto := claimDTO{
		ID:                   c.ID.String(),
		CustomerID:           c.CustomerID.String(),
		Status:               string(c.Status),
		Version:              c.Version,
		IncidentType:         string(c.IncidentType),
		IncidentDescription:  c.IncidentDescription,
		Extraordinary:        string(c.Extraordinary),
		CompensationCurrency: c.CompensationCurrency,
		RejectionReason:      c.RejectionReason,
		BookingReference:     c.BookingReference,
		TicketNumber:         c.TicketNumber,
		TermsConsentAt:       formatTimePtr(c.TermsConsentAt),
		PrivacyConsentAt:     formatTimePtr(c.PrivacyConsentAt),
		SubmittedAt:          formatTimePtr(c.SubmittedAt),
		CreatedAt:            c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            c.UpdatedAt.UTC().Format(time.RFC3339),
		FlightInfo: flightInfoDTO{
			FlightNumber:       c.FlightNumber,
			Airline:            c.Airline,
			DepartureDate:      c.FlightDate.Format(dateFormat),
			DepartureAirport:   c.DepartureAirport,
			ArrivalAirport:     c.ArrivalAirport,
			ScheduledDeparture: formatTimePtr(c.ScheduledDeparture),
			ScheduledArrival:   formatTimePtr(c.ScheduledArrival),
			ActualDeparture:    formatTimePtr(c.ActualDeparture),
			ActualArrival:      formatTimePtr(c.ActualArrival),
			Status:             flightStatus(c),
			DelayMinutes:       c.DelayMinutes,
			DistanceKm:         c.FlightDistanceKm,
		},
	}
	if c.GroupID != nil {
		dto.GroupID = c.GroupID.String()
	}
	if c.CompensationAmount != nil {
		dto.CompensationAmount = c.CompensationAmount.StringFixed(2)
	}
	return dto
}

func toClaimDTOs(claims []*domain.Claim) []claimDTO {
	out := make([]claimDTO, 0, len(claims))
	for _, c := range claims {
		out = append(out, toClaimDTO(c))
	}
	return out
}

func toGroupDTO(g *domain.ClaimGroup) groupDTO {
	return groupDTO{
		ID:                 g.ID.String(),
		OwnerID:            g.OwnerID.String(),
		Name:               g.Name,
		FlightNumber:       g.FlightNumber,
		FlightDate:         g.FlightDate.Format(dateFormat),
		ConsentConfirmed:   g.ConsentConfirmed,
		ConsentConfirmedAt: formatTimePtr(g.ConsentConfirmedAt),
		CreatedAt:          g.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toNoteDTO(n *domain.ClaimNote) noteDTO {
	return noteDTO{
		ID:        n.ID.String(),
		ClaimID:   n.ClaimID.String(),
		AuthorID:  n.AuthorID.String(),
		Body:      n.Body,
		Internal:  n.Internal,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toHistoryDTO(h *domain.ClaimStatusHistory) historyDTO {
	dto := historyDTO{
		ID:         h.ID.String(),
		ClaimID:    h.ClaimID.String(),
		FromStatus: string(h.FromStatus),
		ToStatus:   string(h.ToStatus),
		Reason:     h.Reason,
		CreatedAt:  h.CreatedAt.UTC().Format(time.RFC3339),
	}
	if h.ActorID != uuid.Nil {
		dto.ActorID = h.ActorID.String()
	}
	return dto
}

func toEligibilityDTO(r eligibility.Result) eligibilityDTO {
	dto := eligibilityDTO{
		Eligible:             r.Eligible,
		Currency:             r.Currency,
		Regulation:           string(r.Regulation),
		DistanceKm:           r.DistanceKm,
		DelayMinutes:         r.DelayMinutes,
		ManualReviewRequired: r.ManualReviewRequired,
		Extraordinary:        string(r.Extraordinary),
		Reasons:              make([]reasonDTO, 0, len(r.Reasons)),
		RequiredDocuments:    make([]string, 0, len(r.Requirements)),
	}
	if r.Amount != nil {
		s := r.Amount.StringFixed(2)
		dto.Amount = &s
	}
	for _, reason := range r.Reasons {
		dto.Reasons = append(dto.Reasons, reasonDTO{Code: string(reason.Code), Detail: reason.Detail})
	}
	for _, doc := range r.Requirements {
		dto.RequiredDocuments = append(dto.RequiredDocuments, string(doc))
	}
	return dto
}

func toFileDTO(f *domain.ClaimFile) fileDTO {
	return fileDTO{
		ID:              f.ID.String(),
		ClaimID:         f.ClaimID.String(),
		Filename:        f.Filename,
		ContentType:     f.ContentType,
		DocumentType:    string(f.DocumentType),
		Size:            f.PlainSize,
		Digest:          f.PlainDigest,
		ReviewStatus:    string(f.ReviewStatus),
		RejectionReason: f.RejectionReason,
		UploadedAt:      f.UploadedAt.UTC().Format(time.RFC3339),
	}
}

func toAccessLogDTO(l *domain.FileAccessLog) accessLogDTO {
	return accessLogDTO{
		ID:        l.ID.String(),
		FileID:    l.FileID.String(),
		ActorID:   l.ActorID.String(),
		Action:    string(l.Action),
		Detail:    l.Detail,
		ClientIP:  l.ClientIP,
		UserAgent: l.UserAgent,
		CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
