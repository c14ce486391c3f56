package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/eligibility"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/repository"
	"aeroclaim.io/aeroclaim/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

type fixture struct {
	svc   *Claims
	store *repository.Store
	pool  *pgxpool.Pool

	owner *domain.Customer
	admin *domain.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, pool := testutil.OpenStore(t, "usecase")
	queue := testutil.OpenQueue(t, pool)

	reg, err := eligibility.Load()
	require.NoError(t, err)

	svc := NewClaims(Deps{
		Store:  store,
		Pool:   pool,
		Engine: eligibility.NewEngine(reg),
		Queue:  queue,
	})

	return &fixture{
		svc:   svc,
		store: store,
		pool:  pool,
		owner: testutil.SeedCustomer(t, store, domain.RoleCustomer),
		admin: testutil.SeedCustomer(t, store, domain.RoleAdmin),
	}
}

func actor(c *domain.Customer) Actor {
	return Actor{ID: c.ID, Role: c.Role, ClientIP: "198.51.100.7"}
}

// consentedInput is a draft that passes every submission guard:
// complete flight identity, schedule, a four-hour gate delay and both
// consents.
func consentedInput(groupID *uuid.UUID) DraftInput {
	dep := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	arr := dep.Add(10 * time.Hour)
	actualArr := arr.Add(4 * time.Hour)

	return DraftInput{
		GroupID:             groupID,
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
		AcceptTerms:         true,
		AcceptPrivacy:       true,
	}
}

// queuedMails counts email_dispatch jobs referencing the claim.
func queuedMails(t *testing.T, pool *pgxpool.Pool, claimID uuid.UUID, event domain.EventType) int {
	t.Helper()

	var n int
	err := pool.QueryRow(context.Background(), `
		SELECT count(*) FROM river_job
		WHERE kind = 'email_dispatch'
		  AND args->>'claim_id' = $1
		  AND args->>'event' = $2`,
		claimID.String(), string(event),
	).Scan(&n)
	require.NoError(t, err)
	return n
}

// reload fetches the persisted claim row.
func reload(t *testing.T, store *repository.Store, claimID uuid.UUID) *domain.Claim {
	t.Helper()

	claim, err := store.Claims.GetByID(context.Background(), claimID)
	require.NoError(t, err)
	return claim
}
