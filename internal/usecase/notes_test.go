package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/testutil"
)

func TestNotes_InternalStaysInternal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := actor(f.admin)

	claim := testutil.SeedDraftClaim(t, f.store, f.owner.ID)

	_, err := f.svc.AddNote(ctx, admin, claim.ID, NoteInput{
		Body:     "airline disputes the delay length",
		Internal: true,
	})
	require.NoError(t, err)
	visible, err := f.svc.AddNote(ctx, admin, claim.ID, NoteInput{
		Body: "we requested the flight log from the carrier",
	})
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, visible.AuthorID)

	notes, err := f.svc.ListNotes(ctx, admin, claim.ID)
	require.NoError(t, err)
	assert.Len(t, notes, 2)

	notes, err = f.svc.ListNotes(ctx, actor(f.owner), claim.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, visible.ID, notes[0].ID)
	assert.False(t, notes[0].Internal)
}

func TestAddNote_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim := testutil.SeedDraftClaim(t, f.store, f.owner.ID)

	_, err := f.svc.AddNote(ctx, actor(f.owner), claim.ID, NoteInput{Body: "please hurry"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	_, err = f.svc.AddNote(ctx, actor(f.admin), claim.ID, NoteInput{Body: "   "})
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	require.Len(t, appErr.FieldErrors, 1)
	assert.Equal(t, "body", appErr.FieldErrors[0].Field)
}

func TestListHistory_OwnershipGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim := submitClaim(t, f)

	trail, err := f.svc.ListHistory(ctx, actor(f.owner), claim.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, domain.ClaimStatusDraft, trail[0].FromStatus)
	assert.Equal(t, domain.ClaimStatusSubmitted, trail[0].ToStatus)

	stranger := testutil.SeedCustomer(t, f.store, domain.RoleCustomer)
	_, err = f.svc.ListHistory(ctx, actor(stranger), claim.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}
