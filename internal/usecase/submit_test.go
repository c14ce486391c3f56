package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/testutil"
)

func TestSubmit_MovesDraftIntoReviewQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.svc.CreateDraft(ctx, actor(f.owner), consentedInput(nil))
	require.NoError(t, err)

	got, err := f.svc.Submit(ctx, actor(f.owner), claim.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.ClaimStatusSubmitted, got.Status)
	assert.Equal(t, 2, got.Version)
	require.NotNil(t, got.SubmittedAt)

	// Distance and gate delay snapshot with the submission.
	persisted := reload(t, f.store, claim.ID)
	assert.Equal(t, domain.ClaimStatusSubmitted, persisted.Status)
	require.NotNil(t, persisted.FlightDistanceKm)
	assert.InDelta(t, 8400, *persisted.FlightDistanceKm, 100)
	require.NotNil(t, persisted.DelayMinutes)
	assert.Equal(t, 240, *persisted.DelayMinutes)
	assert.Nil(t, persisted.CompensationAmount)

	trail, err := f.store.History.ListByClaim(ctx, claim.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, domain.ClaimStatusDraft, trail[0].FromStatus)
	assert.Equal(t, domain.ClaimStatusSubmitted, trail[0].ToStatus)
	assert.Equal(t, f.owner.ID, trail[0].ActorID)

	assert.Equal(t, 1, queuedMails(t, f.pool, claim.ID, domain.EventClaimSubmitted))
}

func TestSubmit_IncompleteDraftLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Consents but no schedule.
	claim := testutil.SeedDraftClaim(t, f.store, f.owner.ID)

	_, err := f.svc.Submit(ctx, actor(f.owner), claim.ID)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	assert.Equal(t, apperrors.CodeMissingRequiredFields, appErr.Code)
	assert.NotEmpty(t, appErr.FieldErrors)

	persisted := reload(t, f.store, claim.ID)
	assert.Equal(t, domain.ClaimStatusDraft, persisted.Status)
	assert.Equal(t, 1, persisted.Version)

	trail, err := f.store.History.ListByClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Empty(t, trail)
	assert.Equal(t, 0, queuedMails(t, f.pool, claim.ID, domain.EventClaimSubmitted))
}

func TestSubmit_RequiresBothConsents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := consentedInput(nil)
	in.AcceptPrivacy = false
	claim, err := f.svc.CreateDraft(ctx, actor(f.owner), in)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, actor(f.owner), claim.ID)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeConsentMissing, appErr.Code)
}

func TestSubmit_DuplicateFlightConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateDraft(ctx, actor(f.owner), consentedInput(nil))
	require.NoError(t, err)
	second, err := f.svc.CreateDraft(ctx, actor(f.owner), consentedInput(nil))
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, actor(f.owner), first.ID)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, actor(f.owner), second.ID)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)
	assert.Equal(t, apperrors.CodeDuplicateClaim, appErr.Code)

	persisted := reload(t, f.store, second.ID)
	assert.Equal(t, domain.ClaimStatusDraft, persisted.Status)
}

func TestSubmit_ForeignClaimReadsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.svc.CreateDraft(ctx, actor(f.owner), consentedInput(nil))
	require.NoError(t, err)

	stranger := testutil.SeedCustomer(t, f.store, domain.RoleCustomer)
	_, err = f.svc.Submit(ctx, actor(stranger), claim.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestSubmit_GroupConsentGatesTheWholeGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	group, err := f.svc.CreateGroup(ctx, actor(f.owner), GroupInput{
		Name:         "Familie Schmidt",
		FlightNumber: "LH441",
		FlightDate:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	coPassenger := testutil.SeedCustomer(t, f.store, domain.RoleCustomer)
	mine, err := f.svc.CreateDraft(ctx, actor(f.owner), consentedInput(&group.ID))
	require.NoError(t, err)
	theirs, err := f.svc.CreateDraft(ctx, actor(coPassenger), consentedInput(&group.ID))
	require.NoError(t, err)

	// Without the group consent nothing moves.
	_, err = f.svc.Submit(ctx, actor(f.owner), mine.ID)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)
	assert.Equal(t, apperrors.CodeConsentMissing, appErr.Code)
	assert.Equal(t, domain.ClaimStatusDraft, reload(t, f.store, mine.ID).Status)
	assert.Equal(t, domain.ClaimStatusDraft, reload(t, f.store, theirs.ID).Status)

	_, err = f.svc.ConfirmGroupConsent(ctx, actor(f.owner), group.ID)
	require.NoError(t, err)

	// Submitting one member claim submits the whole group.
	got, err := f.svc.Submit(ctx, actor(f.owner), mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)
	assert.Equal(t, domain.ClaimStatusSubmitted, got.Status)

	assert.Equal(t, domain.ClaimStatusSubmitted, reload(t, f.store, mine.ID).Status)
	assert.Equal(t, domain.ClaimStatusSubmitted, reload(t, f.store, theirs.ID).Status)

	// Notification per claim, addressed to its own claimant.
	assert.Equal(t, 1, queuedMails(t, f.pool, mine.ID, domain.EventClaimSubmitted))
	assert.Equal(t, 1, queuedMails(t, f.pool, theirs.ID, domain.EventClaimSubmitted))
}

func TestSubmitGroup_AllOrNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	group, err := f.svc.CreateGroup(ctx, actor(f.owner), GroupInput{
		Name:         "Reisegruppe",
		FlightNumber: "LH441",
		FlightDate:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = f.svc.ConfirmGroupConsent(ctx, actor(f.owner), group.ID)
	require.NoError(t, err)

	complete, err := f.svc.CreateDraft(ctx, actor(f.owner), consentedInput(&group.ID))
	require.NoError(t, err)

	// A member draft missing its schedule blocks the whole group.
	coPassenger := testutil.SeedCustomer(t, f.store, domain.RoleCustomer)
	in := consentedInput(&group.ID)
	in.ScheduledDeparture = nil
	in.ScheduledArrival = nil
	in.ActualArrival = nil
	incomplete, err := f.svc.CreateDraft(ctx, actor(coPassenger), in)
	require.NoError(t, err)

	_, err = f.svc.SubmitGroup(ctx, actor(f.owner), group.ID)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeMissingRequiredFields, appErr.Code)

	assert.Equal(t, domain.ClaimStatusDraft, reload(t, f.store, complete.ID).Status)
	assert.Equal(t, domain.ClaimStatusDraft, reload(t, f.store, incomplete.ID).Status)
	assert.Equal(t, 0, queuedMails(t, f.pool, complete.ID, domain.EventClaimSubmitted))
}

func TestSubmitGroup_OutsiderReadsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	group, err := f.svc.CreateGroup(ctx, actor(f.owner), GroupInput{
		Name:         "Reisegruppe",
		FlightNumber: "LH441",
		FlightDate:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = f.svc.CreateDraft(ctx, actor(f.owner), consentedInput(&group.ID))
	require.NoError(t, err)

	outsider := testutil.SeedCustomer(t, f.store, domain.RoleCustomer)
	_, err = f.svc.SubmitGroup(ctx, actor(outsider), group.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	t.Run("unknown group id", func(t *testing.T) {
		_, err := f.svc.SubmitGroup(ctx, actor(f.owner), uuid.Must(uuid.NewV7()))
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	})
}
