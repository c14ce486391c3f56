// Package domain provides the domain model for AeroClaim.
//
// Repositories translate between these types and their encrypted storage
// representation; handlers translate them to wire DTOs. PII fields hold
// plaintext here and exist in encrypted form only at rest.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/domain
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClaimStatus is a claim's position in the lifecycle.
type ClaimStatus string

const (
	ClaimStatusDraft       ClaimStatus = "draft"
	ClaimStatusSubmitted   ClaimStatus = "submitted"
	ClaimStatusUnderReview ClaimStatus = "under_review"
	ClaimStatusApproved    ClaimStatus = "approved"
	ClaimStatusRejected    ClaimStatus = "rejected"
	ClaimStatusPaid        ClaimStatus = "paid"
	ClaimStatusClosed      ClaimStatus = "closed"

	// ClaimStatusDiscarded is the terminal state for drafts abandoned past
	// the reminder window. Reachable by the scheduled sweep only.
	ClaimStatusDiscarded ClaimStatus = "discarded"
)

// Valid reports whether s is a known status.
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimStatusDraft, ClaimStatusSubmitted, ClaimStatusUnderReview,
		ClaimStatusApproved, ClaimStatusRejected, ClaimStatusPaid,
		ClaimStatusClosed, ClaimStatusDiscarded:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s ClaimStatus) Terminal() bool {
	switch s {
	case ClaimStatusPaid, ClaimStatusClosed, ClaimStatusDiscarded:
		return true
	}
	return false
}

// IncidentType classifies the flight disruption.
type IncidentType string

const (
	IncidentDelay          IncidentType = "delay"
	IncidentCancellation   IncidentType = "cancellation"
	IncidentDeniedBoarding IncidentType = "denied_boarding"
	IncidentBaggageDelay   IncidentType = "baggage_delay"
)

// Valid reports whether t is a known incident type.
func (t IncidentType) Valid() bool {
	switch t {
	case IncidentDelay, IncidentCancellation, IncidentDeniedBoarding, IncidentBaggageDelay:
		return true
	}
	return false
}

// ExtraordinaryCircumstance is the carrier-liability reduction category.
// Empty means none claimed.
type ExtraordinaryCircumstance string

const (
	ExtraordinaryWeather           ExtraordinaryCircumstance = "weather"
	ExtraordinaryAirTrafficControl ExtraordinaryCircumstance = "air_traffic_control"
	ExtraordinarySecurity          ExtraordinaryCircumstance = "security"
	ExtraordinaryPolitical         ExtraordinaryCircumstance = "political"
)

// Valid reports whether e is a known circumstance tag.
func (e ExtraordinaryCircumstance) Valid() bool {
	switch e {
	case ExtraordinaryWeather, ExtraordinaryAirTrafficControl,
		ExtraordinarySecurity, ExtraordinaryPolitical:
		return true
	}
	return false
}

// Region selects the applicable regulation.
type Region string

const (
	RegionEU Region = "EU"
	RegionUS Region = "US"
	RegionCA Region = "CA"
)

// Claim is one passenger's filing for one disrupted flight.
type Claim struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	GroupID    *uuid.UUID

	FlightNumber     string
	FlightDate       time.Time // date component only
	Airline          string
	DepartureAirport string
	ArrivalAirport   string

	ScheduledDeparture *time.Time
	ScheduledArrival   *time.Time
	ActualDeparture    *time.Time
	ActualArrival      *time.Time

	IncidentType        IncidentType
	IncidentDescription string

	Status ClaimStatus

	// Computed by the eligibility engine. Amount is set only by the
	// approval transition; distance and delay snapshot at submission.
	CompensationAmount   *decimal.Decimal
	CompensationCurrency string
	FlightDistanceKm     *float64
	DelayMinutes         *int

	Extraordinary   ExtraordinaryCircumstance
	RejectionReason string
	AssigneeID      *uuid.UUID
	ReviewerID      *uuid.UUID

	// Encrypted at rest.
	BookingReference string
	TicketNumber     string

	TermsConsentAt   *time.Time
	PrivacyConsentAt *time.Time
	ConsentIP        string

	// Version is the optimistic concurrency stamp; every mutation
	// increments it and writers CAS against the value they read.
	Version int

	CreatedAt   time.Time
	SubmittedAt *time.Time
	UpdatedAt   time.Time
}

// ConsentsCaptured reports whether both consent timestamps are present.
func (c *Claim) ConsentsCaptured() bool {
	return c.TermsConsentAt != nil && c.PrivacyConsentAt != nil
}

// ClaimStatusHistory is one append-only transition record.
type ClaimStatusHistory struct {
	ID         uuid.UUID
	ClaimID    uuid.UUID
	FromStatus ClaimStatus
	ToStatus   ClaimStatus
	ActorID    uuid.UUID
	Reason     string
	CreatedAt  time.Time
}

// ClaimNote is an admin annotation, internal or customer-visible.
type ClaimNote struct {
	ID        uuid.UUID
	ClaimID   uuid.UUID
	AuthorID  uuid.UUID
	Body      string
	Internal  bool
	CreatedAt time.Time
}

// ClaimGroup is a weak multi-passenger grouping. It holds no claim set;
// membership is materialized by query on claims.group_id.
type ClaimGroup struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Name    string

	FlightNumber string
	FlightDate   time.Time

	ConsentConfirmed   bool
	ConsentConfirmedAt *time.Time
	ConsentIP          string

	CreatedAt time.Time
}
