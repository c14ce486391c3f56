package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
)

// GroupInput names a multi-passenger group and pins it to one flight.
type GroupInput struct {
	Name         string
	FlightNumber string
	FlightDate   time.Time
}

// CreateGroup opens a claim group owned by the caller. Co-passengers
// attach their own drafts to it by id.
func (s *Claims) CreateGroup(ctx context.Context, actor Actor, in GroupInput) (*domain.ClaimGroup, error) {
	name := strings.TrimSpace(in.Name)
	flightNumber := strings.ToUpper(strings.TrimSpace(in.FlightNumber))

	var fields []apperrors.FieldError
	if name == "" {
		fields = append(fields, apperrors.FieldError{Field: "name", Code: "required"})
	}
	switch {
	case flightNumber == "":
		fields = append(fields, apperrors.FieldError{Field: "flightNumber", Code: "required"})
	case !flightNumberRe.MatchString(flightNumber):
		fields = append(fields, apperrors.FieldError{Field: "flightNumber", Code: "invalid"})
	}
	if in.FlightDate.IsZero() {
		fields = append(fields, apperrors.FieldError{Field: "flightDate", Code: "required"})
	}
	if len(fields) > 0 {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed,
			"claim group failed validation").WithFieldErrors(fields)
	}

	group := &domain.ClaimGroup{
		ID:           uuid.Must(uuid.NewV7()),
		OwnerID:      actor.ID,
		Name:         name,
		FlightNumber: flightNumber,
		FlightDate:   in.FlightDate,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Groups.Create(ctx, group); err != nil {
		return nil, err
	}

	logger.Info("claim group created",
		zap.String("group_id", group.ID.String()),
		zap.String("owner_id", group.OwnerID.String()),
		zap.String("flight", group.FlightNumber),
	)
	return group, nil
}

// GetGroup returns a group with its member claims. Visible to the
// owner, the owners of member claims, and admins; everyone else reads
// not found.
func (s *Claims) GetGroup(ctx context.Context, actor Actor, groupID uuid.UUID) (*domain.ClaimGroup, []*domain.Claim, error) {
	group, err := s.store.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	claims, err := s.store.Claims.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	if !groupParticipant(actor, group, claims) {
		return nil, nil, apperrors.NotFound(apperrors.CodeGroupNotFound, "claim group not found")
	}
	return group, claims, nil
}

// ListGroups returns the groups the caller owns, newest first.
func (s *Claims) ListGroups(ctx context.Context, actor Actor) ([]*domain.ClaimGroup, error) {
	return s.store.Groups.ListByOwner(ctx, actor.ID)
}

// ConfirmGroupConsent records that every passenger in the group agreed
// to joint handling. Owner only; the flag is one-way.
func (s *Claims) ConfirmGroupConsent(ctx context.Context, actor Actor, groupID uuid.UUID) (*domain.ClaimGroup, error) {
	group, err := s.store.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.Admin() && group.OwnerID != actor.ID {
		return nil, apperrors.NotFound(apperrors.CodeGroupNotFound, "claim group not found")
	}

	now := s.now().UTC()
	if err := s.store.Groups.ConfirmConsent(ctx, groupID, now, actor.ClientIP); err != nil {
		return nil, err
	}

	group.ConsentConfirmed = true
	group.ConsentConfirmedAt = &now
	group.ConsentIP = actor.ClientIP

	logger.Info("claim group consent confirmed",
		zap.String("group_id", group.ID.String()),
		zap.String("actor_id", actor.ID.String()),
	)
	return group, nil
}
