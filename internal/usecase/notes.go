package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// NoteInput is one admin annotation. Internal notes never reach the
// claimant.
type NoteInput struct {
	Body     string
	Internal bool
}

// AddNote attaches an annotation to a claim. Admin only.
func (s *Claims) AddNote(ctx context.Context, actor Actor, claimID uuid.UUID, in NoteInput) (*domain.ClaimNote, error) {
	if !actor.Role.Admin() {
		return nil, apperrors.Forbidden(apperrors.CodeAccessDenied,
			"claim notes require an admin role")
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed,
			"note body must not be empty").
			WithFieldErrors([]apperrors.FieldError{{Field: "body", Code: "required"}})
	}

	claim, err := s.store.Claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}

	note := &domain.ClaimNote{
		ID:        uuid.Must(uuid.NewV7()),
		ClaimID:   claim.ID,
		AuthorID:  actor.ID,
		Body:      body,
		Internal:  in.Internal,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Notes.Insert(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// ListNotes returns a claim's notes, oldest first. Customers see only
// the notes marked visible to them.
func (s *Claims) ListNotes(ctx context.Context, actor Actor, claimID uuid.UUID) ([]*domain.ClaimNote, error) {
	claim, err := s.loadOwned(ctx, s.store, actor, claimID)
	if err != nil {
		return nil, err
	}
	return s.store.Notes.ListByClaim(ctx, claim.ID, actor.Role.Admin())
}

// ListHistory returns the claim's transition trail, oldest first.
func (s *Claims) ListHistory(ctx context.Context, actor Actor, claimID uuid.UUID) ([]*domain.ClaimStatusHistory, error) {
	claim, err := s.loadOwned(ctx, s.store, actor, claimID)
	if err != nil {
		return nil, err
	}
	return s.store.History.ListByClaim(ctx, claim.ID)
}
