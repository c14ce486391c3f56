package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/testutil"
)

// submitClaim drafts and submits a guard-passing claim owned by f.owner.
func submitClaim(t *testing.T, f *fixture) *domain.Claim {
	t.Helper()

	claim, err := f.svc.CreateDraft(context.Background(), actor(f.owner), consentedInput(nil))
	require.NoError(t, err)
	claim, err = f.svc.Submit(context.Background(), actor(f.owner), claim.ID)
	require.NoError(t, err)
	return claim
}

func TestTransition_WalkToClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := actor(f.admin)

	claim := submitClaim(t, f)

	steps := []domain.ClaimStatus{
		domain.ClaimStatusUnderReview,
		domain.ClaimStatusApproved,
		domain.ClaimStatusPaid,
		domain.ClaimStatusClosed,
	}
	for _, to := range steps {
		got, err := f.svc.Transition(ctx, admin, claim.ID, TransitionInput{To: to})
		require.NoError(t, err, "transition to %s", to)
		assert.Equal(t, to, got.Status)

		// The trail always ends in the current status.
		trail, err := f.store.History.ListByClaim(ctx, claim.ID)
		require.NoError(t, err)
		require.NotEmpty(t, trail)
		assert.Equal(t, to, trail[len(trail)-1].ToStatus)
		assert.Equal(t, f.admin.ID, trail[len(trail)-1].ActorID)
	}

	persisted := reload(t, f.store, claim.ID)
	assert.Equal(t, domain.ClaimStatusClosed, persisted.Status)
	assert.Equal(t, 6, persisted.Version) // draft 1, one bump per step

	// Approval ran the engine: 8400 km long-haul, 4 h gate delay.
	require.NotNil(t, persisted.CompensationAmount)
	assert.True(t, persisted.CompensationAmount.Equal(decimal.NewFromInt(600)),
		"want 600, got %s", persisted.CompensationAmount)
	assert.Equal(t, "EUR", persisted.CompensationCurrency)
	require.NotNil(t, persisted.ReviewerID)
	assert.Equal(t, f.admin.ID, *persisted.ReviewerID)

	// Review queue movement is silent, verdicts and money moves mail.
	assert.Equal(t, 1, queuedMails(t, f.pool, claim.ID, domain.EventClaimApproved))
	assert.Equal(t, 1, queuedMails(t, f.pool, claim.ID, domain.EventClaimPaid))
	assert.Equal(t, 1, queuedMails(t, f.pool, claim.ID, domain.EventClaimClosed))
}

func TestTransition_RequiresAdmin(t *testing.T) {
	f := newFixture(t)

	claim := submitClaim(t, f)

	_, err := f.svc.Transition(context.Background(), actor(f.owner), claim.ID,
		TransitionInput{To: domain.ClaimStatusUnderReview})
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindForbidden, appErr.Kind)
	assert.Equal(t, apperrors.CodeAccessDenied, appErr.Code)
}

func TestTransition_OutsideTableLeavesRowUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim := testutil.SeedDraftClaim(t, f.store, f.owner.ID)

	_, err := f.svc.Transition(ctx, actor(f.admin), claim.ID,
		TransitionInput{To: domain.ClaimStatusApproved})
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr.Code)

	persisted := reload(t, f.store, claim.ID)
	assert.Equal(t, domain.ClaimStatusDraft, persisted.Status)
	assert.Equal(t, 1, persisted.Version)
	assert.Nil(t, persisted.CompensationAmount)

	trail, err := f.store.History.ListByClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestTransition_RejectionNeedsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := actor(f.admin)

	claim := submitClaim(t, f)
	_, err := f.svc.Transition(ctx, admin, claim.ID, TransitionInput{To: domain.ClaimStatusUnderReview})
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, admin, claim.ID, TransitionInput{To: domain.ClaimStatusRejected})
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeRejectionReasonMissing, appErr.Code)

	got, err := f.svc.Transition(ctx, admin, claim.ID, TransitionInput{
		To:     domain.ClaimStatusRejected,
		Reason: "delay caused by crew strike at the carrier",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusRejected, got.Status)
	assert.Equal(t, "delay caused by crew strike at the carrier", got.RejectionReason)

	persisted := reload(t, f.store, claim.ID)
	assert.Equal(t, "delay caused by crew strike at the carrier", persisted.RejectionReason)
	assert.Equal(t, 1, queuedMails(t, f.pool, claim.ID, domain.EventClaimRejected))

	t.Run("reopen needs a reason too", func(t *testing.T) {
		_, err := f.svc.Transition(ctx, admin, claim.ID, TransitionInput{To: domain.ClaimStatusUnderReview})
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeReasonRequired, appErr.Code)

		got, err := f.svc.Transition(ctx, admin, claim.ID, TransitionInput{
			To:     domain.ClaimStatusUnderReview,
			Reason: "claimant appealed with new evidence",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ClaimStatusUnderReview, got.Status)
	})

	t.Run("second verdict mails again", func(t *testing.T) {
		_, err := f.svc.Transition(ctx, admin, claim.ID, TransitionInput{To: domain.ClaimStatusApproved})
		require.NoError(t, err)
		assert.Equal(t, 1, queuedMails(t, f.pool, claim.ID, domain.EventClaimApproved))

		_, err = f.svc.Transition(ctx, admin, claim.ID, TransitionInput{
			To:     domain.ClaimStatusRejected,
			Reason: "approval reversed after fraud review",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, queuedMails(t, f.pool, claim.ID, domain.EventClaimRejected))
	})
}

func TestTransition_ExtraordinaryNeedsOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := actor(f.admin)

	in := consentedInput(nil)
	in.Extraordinary = domain.ExtraordinaryWeather
	claim, err := f.svc.CreateDraft(ctx, actor(f.owner), in)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, actor(f.owner), claim.ID)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, admin, claim.ID, TransitionInput{To: domain.ClaimStatusUnderReview})
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, admin, claim.ID, TransitionInput{To: domain.ClaimStatusApproved})
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)
	assert.Equal(t, apperrors.CodeOverrideRequired, appErr.Code)
	assert.Equal(t, domain.ClaimStatusUnderReview, reload(t, f.store, claim.ID).Status)

	got, err := f.svc.Transition(ctx, admin, claim.ID, TransitionInput{
		To:       domain.ClaimStatusApproved,
		Override: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusApproved, got.Status)
	require.NotNil(t, got.CompensationAmount)
	assert.True(t, got.CompensationAmount.Equal(decimal.NewFromInt(600)))
}

func TestTransition_StaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim := submitClaim(t, f) // version 2

	_, err := f.svc.Transition(ctx, actor(f.admin), claim.ID, TransitionInput{
		To:              domain.ClaimStatusUnderReview,
		ExpectedVersion: 1,
	})
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeConcurrentModification, appErr.Code)

	got, err := f.svc.Transition(ctx, actor(f.admin), claim.ID, TransitionInput{
		To:              domain.ClaimStatusUnderReview,
		ExpectedVersion: claim.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusUnderReview, got.Status)
}

func TestTransitionGroup_AppliesToAllOrNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := actor(f.admin)

	group, err := f.svc.CreateGroup(ctx, actor(f.owner), GroupInput{
		Name:         "Familie Schmidt",
		FlightNumber: "LH441",
		FlightDate:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = f.svc.ConfirmGroupConsent(ctx, actor(f.owner), group.ID)
	require.NoError(t, err)

	coPassenger := testutil.SeedCustomer(t, f.store, domain.RoleCustomer)
	first, err := f.svc.CreateDraft(ctx, actor(f.owner), consentedInput(&group.ID))
	require.NoError(t, err)
	second, err := f.svc.CreateDraft(ctx, actor(coPassenger), consentedInput(&group.ID))
	require.NoError(t, err)
	_, err = f.svc.SubmitGroup(ctx, actor(f.owner), group.ID)
	require.NoError(t, err)

	claims, err := f.svc.TransitionGroup(ctx, admin, group.ID,
		TransitionInput{To: domain.ClaimStatusUnderReview})
	require.NoError(t, err)
	require.Len(t, claims, 2)

	claims, err = f.svc.TransitionGroup(ctx, admin, group.ID,
		TransitionInput{To: domain.ClaimStatusApproved})
	require.NoError(t, err)
	for _, c := range claims {
		assert.Equal(t, domain.ClaimStatusApproved, c.Status)
		require.NotNil(t, c.CompensationAmount)
		assert.True(t, c.CompensationAmount.Equal(decimal.NewFromInt(600)))
	}
	assert.Equal(t, 1, queuedMails(t, f.pool, first.ID, domain.EventClaimApproved))
	assert.Equal(t, 1, queuedMails(t, f.pool, second.ID, domain.EventClaimApproved))

	t.Run("mixed states roll the whole batch back", func(t *testing.T) {
		// One claim moves ahead alone; the group is now approved + paid.
		_, err := f.svc.Transition(ctx, admin, first.ID, TransitionInput{To: domain.ClaimStatusPaid})
		require.NoError(t, err)

		_, err = f.svc.TransitionGroup(ctx, admin, group.ID,
			TransitionInput{To: domain.ClaimStatusPaid})
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeInvalidTransition, appErr.Code)

		// Neither row changed: the paid one is still paid once, the
		// approved one stayed approved.
		assert.Equal(t, domain.ClaimStatusPaid, reload(t, f.store, first.ID).Status)
		assert.Equal(t, domain.ClaimStatusApproved, reload(t, f.store, second.ID).Status)
		assert.Equal(t, 1, queuedMails(t, f.pool, first.ID, domain.EventClaimPaid))
		assert.Equal(t, 0, queuedMails(t, f.pool, second.ID, domain.EventClaimPaid))
	})

	t.Run("group transitions are admin only", func(t *testing.T) {
		_, err := f.svc.TransitionGroup(ctx, actor(f.owner), group.ID,
			TransitionInput{To: domain.ClaimStatusPaid})
		assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
	})
}
