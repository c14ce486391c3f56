package usecase

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/repository"
)

var (
	flightNumberRe = regexp.MustCompile(`^[A-Z0-9]{2}[0-9]{1,4}[A-Z]?$`)
	airportCodeRe  = regexp.MustCompile(`^[A-Z]{3}$`)
)

// DraftInput carries the fields a customer sets when opening a claim.
// The wizard saves progressively: only the flight identity is required
// up front, everything else may arrive later through UpdateDraft.
type DraftInput struct {
	GroupID *uuid.UUID

	FlightNumber     string
	FlightDate       time.Time
	Airline          string
	DepartureAirport string
	ArrivalAirport   string

	ScheduledDeparture *time.Time
	ScheduledArrival   *time.Time
	ActualDeparture    *time.Time
	ActualArrival      *time.Time

	IncidentType        domain.IncidentType
	IncidentDescription string
	Extraordinary       domain.ExtraordinaryCircumstance

	BookingReference string
	TicketNumber     string

	AcceptTerms   bool
	AcceptPrivacy bool
}

// CreateDraft opens a new draft claim owned by the caller.
func (s *Claims) CreateDraft(ctx context.Context, actor Actor, in DraftInput) (*domain.Claim, error) {
	now := s.now().UTC()

	claim := &domain.Claim{
		ID:         uuid.Must(uuid.NewV7()),
		CustomerID: actor.ID,
		GroupID:    in.GroupID,

		FlightNumber:     in.FlightNumber,
		FlightDate:       in.FlightDate,
		Airline:          in.Airline,
		DepartureAirport: in.DepartureAirport,
		ArrivalAirport:   in.ArrivalAirport,

		ScheduledDeparture: in.ScheduledDeparture,
		ScheduledArrival:   in.ScheduledArrival,
		ActualDeparture:    in.ActualDeparture,
		ActualArrival:      in.ActualArrival,

		IncidentType:        in.IncidentType,
		IncidentDescription: in.IncidentDescription,
		Extraordinary:       in.Extraordinary,

		BookingReference: in.BookingReference,
		TicketNumber:     in.TicketNumber,

		Status:    domain.ClaimStatusDraft,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	captureConsents(claim, in.AcceptTerms, in.AcceptPrivacy, actor.ClientIP, now)

	normalizeClaim(claim)
	if fields := draftFieldErrors(claim); len(fields) > 0 {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed,
			"claim draft failed validation").WithFieldErrors(fields)
	}

	if claim.GroupID != nil {
		if err := s.checkGroupAttachment(ctx, *claim.GroupID, claim); err != nil {
			return nil, err
		}
	}

	if err := s.store.Claims.Create(ctx, claim); err != nil {
		return nil, err
	}

	logger.Info("claim draft created",
		zap.String("claim_id", claim.ID.String()),
		zap.String("customer_id", claim.CustomerID.String()),
		zap.String("flight", claim.FlightNumber),
	)
	return claim, nil
}

// DraftPatch updates a subset of draft fields. Nil fields stay as they
// are; Version is the optimistic-lock stamp the caller last read.
// Group membership is fixed at creation and cannot be patched.
type DraftPatch struct {
	Version int

	FlightNumber     *string
	FlightDate       *time.Time
	Airline          *string
	DepartureAirport *string
	ArrivalAirport   *string

	ScheduledDeparture *time.Time
	ScheduledArrival   *time.Time
	ActualDeparture    *time.Time
	ActualArrival      *time.Time

	IncidentType        *domain.IncidentType
	IncidentDescription *string
	Extraordinary       *domain.ExtraordinaryCircumstance

	BookingReference *string
	TicketNumber     *string

	AcceptTerms   bool
	AcceptPrivacy bool
}

// UpdateDraft applies a partial edit to a draft the caller owns. The
// write CASes on the version the caller read; a mismatch means someone
// else edited in between and returns concurrent_modification.
func (s *Claims) UpdateDraft(ctx context.Context, actor Actor, claimID uuid.UUID, patch DraftPatch) (*domain.Claim, error) {
	if patch.Version <= 0 {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed,
			"draft edits must carry the version they are based on").
			WithFieldErrors([]apperrors.FieldError{{Field: "version", Code: "required"}})
	}

	claim, err := s.loadOwned(ctx, s.store, actor, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != domain.ClaimStatusDraft {
		return nil, apperrors.Conflict(apperrors.CodeInvalidTransition,
			"only draft claims can be edited")
	}

	now := s.now().UTC()
	applyPatch(claim, patch)
	captureConsents(claim, patch.AcceptTerms, patch.AcceptPrivacy, actor.ClientIP, now)

	normalizeClaim(claim)
	if fields := draftFieldErrors(claim); len(fields) > 0 {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed,
			"claim draft failed validation").WithFieldErrors(fields)
	}

	// CAS against the caller's stamp, not the one just read, so a lost
	// update between their read and this write still surfaces.
	claim.Version = patch.Version
	if err := s.store.Claims.UpdateDraft(ctx, claim); err != nil {
		return nil, err
	}
	claim.UpdatedAt = now
	return claim, nil
}

// Get returns one claim. Foreign claims read as not found.
func (s *Claims) Get(ctx context.Context, actor Actor, claimID uuid.UUID) (*domain.Claim, error) {
	return s.loadOwned(ctx, s.store, actor, claimID)
}

// ListInput narrows a customer's claim listing.
type ListInput struct {
	Status *domain.ClaimStatus
	Limit  int
	Offset int
}

// List returns the caller's own claims, newest first, with the total
// for pagination.
func (s *Claims) List(ctx context.Context, actor Actor, in ListInput) ([]*domain.Claim, int64, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, 0, apperrors.Validation(apperrors.CodeValidationFailed,
			"unknown claim status").
			WithFieldErrors([]apperrors.FieldError{{Field: "status", Code: "invalid"}})
	}
	customerID := actor.ID
	f := repository.ListFilter{
		CustomerID: &customerID,
		Status:     in.Status,
		Limit:      in.Limit,
		Offset:     in.Offset,
	}
	claims, err := s.store.Claims.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Claims.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return claims, total, nil
}

// AdminListInput narrows the admin claim listing.
type AdminListInput struct {
	CustomerID *uuid.UUID
	GroupID    *uuid.UUID
	Status     *domain.ClaimStatus
	Limit      int
	Offset     int
}

// AdminList returns claims across all customers. Admin only.
func (s *Claims) AdminList(ctx context.Context, actor Actor, in AdminListInput) ([]*domain.Claim, int64, error) {
	if !actor.Role.Admin() {
		return nil, 0, apperrors.Forbidden(apperrors.CodeAccessDenied,
			"listing all claims requires an admin role")
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, 0, apperrors.Validation(apperrors.CodeValidationFailed,
			"unknown claim status").
			WithFieldErrors([]apperrors.FieldError{{Field: "status", Code: "invalid"}})
	}
	f := repository.ListFilter{
		CustomerID: in.CustomerID,
		GroupID:    in.GroupID,
		Status:     in.Status,
		Limit:      in.Limit,
		Offset:     in.Offset,
	}
	claims, err := s.store.Claims.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Claims.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return claims, total, nil
}

// checkGroupAttachment verifies the target group exists and covers the
// claim's flight. Knowing the group id is the capability: owners share
// it with their co-passengers out of band.
func (s *Claims) checkGroupAttachment(ctx context.Context, groupID uuid.UUID, claim *domain.Claim) error {
	group, err := s.store.Groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if group.FlightNumber != claim.FlightNumber || !sameDate(group.FlightDate, claim.FlightDate) {
		return apperrors.Validation(apperrors.CodeValidationFailed,
			"claim flight does not match the group's flight").
			WithFieldErrors([]apperrors.FieldError{{Field: "groupId", Code: "flight_mismatch"}})
	}
	return nil
}

func applyPatch(c *domain.Claim, p DraftPatch) {
	if p.FlightNumber != nil {
		c.FlightNumber = *p.FlightNumber
	}
	if p.FlightDate != nil {
		c.FlightDate = *p.FlightDate
	}
	if p.Airline != nil {
		c.Airline = *p.Airline
	}
	if p.DepartureAirport != nil {
		c.DepartureAirport = *p.DepartureAirport
	}
	if p.ArrivalAirport != nil {
		c.ArrivalAirport = *p.ArrivalAirport
	}
	if p.ScheduledDeparture != nil {
		c.ScheduledDeparture = p.ScheduledDeparture
	}
	if p.ScheduledArrival != nil {
		c.ScheduledArrival = p.ScheduledArrival
	}
	if p.ActualDeparture != nil {
		c.ActualDeparture = p.ActualDeparture
	}
	if p.ActualArrival != nil {
		c.ActualArrival = p.ActualArrival
	}
	if p.IncidentType != nil {
		c.IncidentType = *p.IncidentType
	}
	if p.IncidentDescription != nil {
		c.IncidentDescription = *p.IncidentDescription
	}
	if p.Extraordinary != nil {
		c.Extraordinary = *p.Extraordinary
	}
	if p.BookingReference != nil {
		c.BookingReference = *p.BookingReference
	}
	if p.TicketNumber != nil {
		c.TicketNumber = *p.TicketNumber
	}
}

// captureConsents stamps accepted consents. Consents are captured, not
// toggled: a later edit cannot retract one.
func captureConsents(c *domain.Claim, terms, privacy bool, ip string, now time.Time) {
	if terms && c.TermsConsentAt == nil {
		t := now
		c.TermsConsentAt = &t
		c.ConsentIP = ip
	}
	if privacy && c.PrivacyConsentAt == nil {
		t := now
		c.PrivacyConsentAt = &t
		c.ConsentIP = ip
	}
}

func normalizeClaim(c *domain.Claim) {
	c.FlightNumber = strings.ToUpper(strings.TrimSpace(c.FlightNumber))
	c.Airline = strings.TrimSpace(c.Airline)
	c.DepartureAirport = strings.ToUpper(strings.TrimSpace(c.DepartureAirport))
	c.ArrivalAirport = strings.ToUpper(strings.TrimSpace(c.ArrivalAirport))
	c.IncidentDescription = strings.TrimSpace(c.IncidentDescription)
	c.BookingReference = strings.TrimSpace(c.BookingReference)
	c.TicketNumber = strings.TrimSpace(c.TicketNumber)
}

// draftFieldErrors checks the shape of whatever fields are present.
// Completeness is not checked here: drafts fill in over time, and the
// submission guard owns the required-field list.
func draftFieldErrors(c *domain.Claim) []apperrors.FieldError {
	var out []apperrors.FieldError

	switch {
	case c.FlightNumber == "":
		out = append(out, apperrors.FieldError{Field: "flightNumber", Code: "required"})
	case !flightNumberRe.MatchString(c.FlightNumber):
		out = append(out, apperrors.FieldError{Field: "flightNumber", Code: "invalid"})
	}
	if c.FlightDate.IsZero() {
		out = append(out, apperrors.FieldError{Field: "flightDate", Code: "required"})
	}
	if c.DepartureAirport != "" && !airportCodeRe.MatchString(c.DepartureAirport) {
		out = append(out, apperrors.FieldError{Field: "departureAirport", Code: "invalid"})
	}
	if c.ArrivalAirport != "" && !airportCodeRe.MatchString(c.ArrivalAirport) {
		out = append(out, apperrors.FieldError{Field: "arrivalAirport", Code: "invalid"})
	}
	if c.IncidentType != "" && !c.IncidentType.Valid() {
		out = append(out, apperrors.FieldError{Field: "incidentType", Code: "invalid"})
	}
	if c.Extraordinary != "" && !c.Extraordinary.Valid() {
		out = append(out, apperrors.FieldError{Field: "extraordinary", Code: "invalid"})
	}
	return out
}

// sameDate compares the calendar-day component in UTC; claims and
// groups store the flight date without a time of day.
func sameDate(a, b time.Time) bool {
	return a.UTC().Format(time.DateOnly) == b.UTC().Format(time.DateOnly)
}
