package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/testutil"
)

func TestCreateGroup_Validates(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateGroup(context.Background(), actor(f.owner), GroupInput{
		Name:         "  ",
		FlightNumber: "441!",
	})
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)

	fields := map[string]string{}
	for _, fe := range appErr.FieldErrors {
		fields[fe.Field] = fe.Code
	}
	assert.Equal(t, "required", fields["name"])
	assert.Equal(t, "invalid", fields["flightNumber"])
	assert.Equal(t, "required", fields["flightDate"])
}

func TestGroupVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	group, err := f.svc.CreateGroup(ctx, actor(f.owner), GroupInput{
		Name:         "Reisegruppe Nord",
		FlightNumber: "lh441",
		FlightDate:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "LH441", group.FlightNumber)

	coPassenger := testutil.SeedCustomer(t, f.store, domain.RoleCustomer)
	memberClaim, err := f.svc.CreateDraft(ctx, actor(coPassenger), consentedInput(&group.ID))
	require.NoError(t, err)

	// Owner and member both see the group, a stranger never learns it
	// exists, an admin always can.
	for _, c := range []*domain.Customer{f.owner, coPassenger, f.admin} {
		got, claims, err := f.svc.GetGroup(ctx, actor(c), group.ID)
		require.NoError(t, err)
		assert.Equal(t, group.ID, got.ID)
		require.Len(t, claims, 1)
		assert.Equal(t, memberClaim.ID, claims[0].ID)
	}

	stranger := testutil.SeedCustomer(t, f.store, domain.RoleCustomer)
	_, _, err = f.svc.GetGroup(ctx, actor(stranger), group.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	groups, err := f.svc.ListGroups(ctx, actor(f.owner))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, group.ID, groups[0].ID)

	groups, err = f.svc.ListGroups(ctx, actor(stranger))
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestConfirmGroupConsent_OnceOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	group, err := f.svc.CreateGroup(ctx, actor(f.owner), GroupInput{
		Name:         "Familie Weber",
		FlightNumber: "LH441",
		FlightDate:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	stranger := testutil.SeedCustomer(t, f.store, domain.RoleCustomer)
	_, err = f.svc.ConfirmGroupConsent(ctx, actor(stranger), group.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	got, err := f.svc.ConfirmGroupConsent(ctx, actor(f.owner), group.ID)
	require.NoError(t, err)
	assert.True(t, got.ConsentConfirmed)
	require.NotNil(t, got.ConsentConfirmedAt)
	assert.Equal(t, "198.51.100.7", got.ConsentIP)

	persisted, err := f.store.Groups.GetByID(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, persisted.ConsentConfirmed)
	assert.NotNil(t, persisted.ConsentConfirmedAt)

	_, err = f.svc.ConfirmGroupConsent(ctx, actor(f.owner), group.ID)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)
	assert.Equal(t, "consent_already_confirmed", appErr.Code)
}
