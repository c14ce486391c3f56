package lifecycle

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

var allStatuses = []domain.ClaimStatus{
	domain.ClaimStatusDraft,
	domain.ClaimStatusSubmitted,
	domain.ClaimStatusUnderReview,
	domain.ClaimStatusApproved,
	domain.ClaimStatusRejected,
	domain.ClaimStatusPaid,
	domain.ClaimStatusClosed,
	domain.ClaimStatusDiscarded,
}

func TestAllowed_ExactTable(t *testing.T) {
	allowed := map[[2]domain.ClaimStatus]bool{
		{domain.ClaimStatusDraft, domain.ClaimStatusSubmitted}:       true,
		{domain.ClaimStatusDraft, domain.ClaimStatusDiscarded}:       true,
		{domain.ClaimStatusSubmitted, domain.ClaimStatusUnderReview}: true,
		{domain.ClaimStatusUnderReview, domain.ClaimStatusApproved}:  true,
		{domain.ClaimStatusUnderReview, domain.ClaimStatusRejected}:  true,
		{domain.ClaimStatusApproved, domain.ClaimStatusPaid}:         true,
		{domain.ClaimStatusApproved, domain.ClaimStatusRejected}:     true,
		{domain.ClaimStatusRejected, domain.ClaimStatusUnderReview}:  true,
		{domain.ClaimStatusPaid, domain.ClaimStatusClosed}:           true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[[2]domain.ClaimStatus{from, to}]
			assert.Equal(t, want, Allowed(from, to), "%s -> %s", from, to)
		}
	}
}

func TestAllowed_NoSelfTransitions(t *testing.T) {
	for _, s := range allStatuses {
		assert.False(t, Allowed(s, s), "%s -> %s must not exist", s, s)
	}
}

func TestTargets(t *testing.T) {
	assert.ElementsMatch(t,
		[]domain.ClaimStatus{domain.ClaimStatusApproved, domain.ClaimStatusRejected},
		Targets(domain.ClaimStatusUnderReview))
	assert.Empty(t, Targets(domain.ClaimStatusClosed))
	assert.Empty(t, Targets(domain.ClaimStatusDiscarded))
}

func submittableDraft() *domain.Claim {
	now := time.Date(2025, 8, 18, 10, 0, 0, 0, time.UTC)
	dep := now.Add(3 * time.Hour)
	arr := now.Add(9 * time.Hour)
	return &domain.Claim{
		ID:                 uuid.New(),
		CustomerID:         uuid.New(),
		Status:             domain.ClaimStatusDraft,
		FlightNumber:       "UA988",
		FlightDate:         time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC),
		Airline:            "United Airlines",
		DepartureAirport:   "FRA",
		ArrivalAirport:     "IAD",
		ScheduledDeparture: &dep,
		ScheduledArrival:   &arr,
		IncidentType:       domain.IncidentDelay,
		TermsConsentAt:     &now,
		PrivacyConsentAt:   &now,
		CreatedAt:          now,
	}
}

func TestValidate_CustomerSubmission(t *testing.T) {
	claim := submittableDraft()
	actor := Actor{ID: claim.CustomerID, Role: domain.RoleCustomer}

	err := Validate(Request{Claim: claim, To: domain.ClaimStatusSubmitted, Actor: actor, Now: time.Now()})
	require.NoError(t, err)
}

func TestValidate_SubmissionMissingFields(t *testing.T) {
	claim := submittableDraft()
	claim.FlightNumber = ""
	claim.ScheduledArrival = nil
	actor := Actor{ID: claim.CustomerID, Role: domain.RoleCustomer}

	err := Validate(Request{Claim: claim, To: domain.ClaimStatusSubmitted, Actor: actor})
	require.Error(t, err)

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeMissingRequiredFields, appErr.Code)

	var fields []string
	for _, fe := range appErr.FieldErrors {
		fields = append(fields, fe.Field)
	}
	assert.Contains(t, fields, "flightNumber")
	assert.Contains(t, fields, "scheduledArrival")
}

func TestValidate_SubmissionConsentMissing(t *testing.T) {
	claim := submittableDraft()
	claim.PrivacyConsentAt = nil
	actor := Actor{ID: claim.CustomerID, Role: domain.RoleCustomer}

	err := Validate(Request{Claim: claim, To: domain.ClaimStatusSubmitted, Actor: actor})
	require.Error(t, err)

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeConsentMissing, appErr.Code)
}

func TestValidate_RoleAuthority(t *testing.T) {
	customer := Actor{ID: uuid.New(), Role: domain.RoleCustomer}
	admin := Actor{ID: uuid.New(), Role: domain.RoleAdmin}

	t.Run("customer cannot move submitted to under_review", func(t *testing.T) {
		claim := submittableDraft()
		claim.Status = domain.ClaimStatusSubmitted
		err := Validate(Request{Claim: claim, To: domain.ClaimStatusUnderReview, Actor: customer})
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
	})

	t.Run("admin moves submitted to under_review", func(t *testing.T) {
		claim := submittableDraft()
		claim.Status = domain.ClaimStatusSubmitted
		err := Validate(Request{Claim: claim, To: domain.ClaimStatusUnderReview, Actor: admin})
		require.NoError(t, err)
	})

	t.Run("only the sweep discards drafts", func(t *testing.T) {
		claim := submittableDraft()
		claim.CreatedAt = time.Now().Add(-15 * 24 * time.Hour)
		err := Validate(Request{Claim: claim, To: domain.ClaimStatusDiscarded, Actor: admin, Now: time.Now()})
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

		err = Validate(Request{Claim: claim, To: domain.ClaimStatusDiscarded, Actor: SystemActor(), Now: time.Now()})
		require.NoError(t, err)
	})

	t.Run("paid to closed works for admin and system", func(t *testing.T) {
		claim := submittableDraft()
		claim.Status = domain.ClaimStatusPaid
		require.NoError(t, Validate(Request{Claim: claim, To: domain.ClaimStatusClosed, Actor: admin}))
		require.NoError(t, Validate(Request{Claim: claim, To: domain.ClaimStatusClosed, Actor: SystemActor()}))
	})
}

func TestValidate_DiscardAgeGuard(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	claim := submittableDraft()
	claim.CreatedAt = now.Add(-13 * 24 * time.Hour)

	err := Validate(Request{Claim: claim, To: domain.ClaimStatusDiscarded, Actor: SystemActor(), Now: now})
	require.Error(t, err)

	claim.CreatedAt = now.Add(-DiscardAge - time.Hour)
	err = Validate(Request{Claim: claim, To: domain.ClaimStatusDiscarded, Actor: SystemActor(), Now: now})
	require.NoError(t, err)
}

func TestValidate_ApprovalAmountGuard(t *testing.T) {
	admin := Actor{ID: uuid.New(), Role: domain.RoleAdmin}
	claim := submittableDraft()
	claim.Status = domain.ClaimStatusUnderReview

	err := Validate(Request{Claim: claim, To: domain.ClaimStatusApproved, Actor: admin})
	require.Error(t, err)
	appErr, _ := apperrors.IsAppError(err)
	assert.Equal(t, apperrors.CodeAmountNotPositive, appErr.Code)

	zero := decimal.Zero
	claim.CompensationAmount = &zero
	err = Validate(Request{Claim: claim, To: domain.ClaimStatusApproved, Actor: admin})
	require.Error(t, err)

	amount := decimal.NewFromInt(600)
	claim.CompensationAmount = &amount
	err = Validate(Request{Claim: claim, To: domain.ClaimStatusApproved, Actor: admin})
	require.NoError(t, err)
}

func TestValidate_ReasonGuards(t *testing.T) {
	admin := Actor{ID: uuid.New(), Role: domain.RoleAdmin}

	t.Run("rejection needs a reason", func(t *testing.T) {
		claim := submittableDraft()
		claim.Status = domain.ClaimStatusUnderReview
		err := Validate(Request{Claim: claim, To: domain.ClaimStatusRejected, Actor: admin})
		require.Error(t, err)

		err = Validate(Request{Claim: claim, To: domain.ClaimStatusRejected, Actor: admin, Reason: "no delay evidence"})
		require.NoError(t, err)
	})

	t.Run("approval reversal needs a reason", func(t *testing.T) {
		claim := submittableDraft()
		claim.Status = domain.ClaimStatusApproved
		err := Validate(Request{Claim: claim, To: domain.ClaimStatusRejected, Actor: admin})
		require.Error(t, err)
	})

	t.Run("reopen needs a reason", func(t *testing.T) {
		claim := submittableDraft()
		claim.Status = domain.ClaimStatusRejected
		err := Validate(Request{Claim: claim, To: domain.ClaimStatusUnderReview, Actor: admin})
		require.Error(t, err)
		appErr, _ := apperrors.IsAppError(err)
		assert.Equal(t, apperrors.CodeReasonRequired, appErr.Code)

		err = Validate(Request{Claim: claim, To: domain.ClaimStatusUnderReview, Actor: admin, Reason: "new evidence"})
		require.NoError(t, err)
	})
}

func TestValidate_UnknownTransition(t *testing.T) {
	admin := Actor{ID: uuid.New(), Role: domain.RoleAdmin}
	claim := submittableDraft()
	claim.Status = domain.ClaimStatusSubmitted

	err := Validate(Request{Claim: claim, To: domain.ClaimStatusPaid, Actor: admin})
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr.Code)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}
