package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/repository"
)

// SeedCustomer inserts an account with the given role. The email is
// unique per call so seeded accounts never collide on the blind index.
func SeedCustomer(t *testing.T, store *repository.Store, role domain.Role) *domain.Customer {
	t.Helper()

	id := uuid.Must(uuid.NewV7())
	c := &domain.Customer{
		ID:            id,
		Email:         fmt.Sprintf("%s@example.test", id),
		FirstName:     "Test",
		LastName:      "Passenger",
		Role:          role,
		EmailVerified: true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.Customers.Create(context.Background(), c); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return c
}

// SeedDraftClaim inserts a draft claim owned by customerID.
func SeedDraftClaim(t *testing.T, store *repository.Store, customerID uuid.UUID) *domain.Claim {
	t.Helper()

	c := &domain.Claim{
		ID:                  uuid.Must(uuid.NewV7()),
		CustomerID:          customerID,
		FlightNumber:        "LH441",
		FlightDate:          time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Airline:             "Lufthansa",
		DepartureAirport:    "FRA",
		ArrivalAirport:      "IAH",
		IncidentType:        domain.IncidentDelay,
		IncidentDescription: "arrived four hours late",
		Status:              domain.ClaimStatusDraft,
		CreatedAt:           time.Now().UTC(),
	}
	if err := store.Claims.Create(context.Background(), c); err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	c.Version = 1
	return c
}

// SeedConsentedDraft is SeedDraftClaim with both consents captured and
// flight times set, ready to pass the submission guards.
func SeedConsentedDraft(t *testing.T, store *repository.Store, customerID uuid.UUID) *domain.Claim {
	t.Helper()

	now := time.Now().UTC()
	dep := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	arr := dep.Add(10 * time.Hour)
	actualArr := arr.Add(4 * time.Hour)

	c := &domain.Claim{
		ID:                  uuid.Must(uuid.NewV7()),
		CustomerID:          customerID,
		FlightNumber:        "LH441",
		FlightDate:          time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Airline:             "Lufthansa",
		DepartureAirport:    "FRA",
		ArrivalAirport:      "IAH",
		ScheduledDeparture:  &dep,
		ScheduledArrival:    &arr,
		ActualArrival:       &actualArr,
		IncidentType:        domain.IncidentDelay,
		IncidentDescription: "arrived four hours late",
		Status:              domain.ClaimStatusDraft,
		TermsConsentAt:      &now,
		PrivacyConsentAt:    &now,
		ConsentIP:           "203.0.113.7",
		CreatedAt:           now,
	}
	if err := store.Claims.Create(context.Background(), c); err != nil {
		t.Fatalf("seed consented claim: %v", err)
	}
	c.Version = 1
	return c
}
