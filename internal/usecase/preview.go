package usecase

import (
	"context"

	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/eligibility"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// PreviewInput tunes a dry run of the eligibility engine.
type PreviewInput struct {
	// Incident, when set, overrides the claim's filed incident type.
	// Lets the claimant ask "what if this counts as denied boarding"
	// before committing the draft.
	Incident *domain.IncidentType

	// Region selects the regulation regime; empty means EU.
	Region domain.Region
}

// Preview runs the eligibility engine against a claim without writing
// anything. Customers may only preview their own claims.
func (s *Claims) Preview(ctx context.Context, actor Actor, claimID uuid.UUID, in PreviewInput) (eligibility.Result, error) {
	claim, err := s.loadOwned(ctx, s.store, actor, claimID)
	if err != nil {
		return eligibility.Result{}, err
	}

	facts := eligibility.FactsFromClaim(claim)
	if in.Incident != nil {
		if !in.Incident.Valid() {
			return eligibility.Result{}, apperrors.Validation(apperrors.CodeValidationFailed,
				"unknown incident type").
				WithFieldErrors([]apperrors.FieldError{{Field: "incidentType", Code: "invalid"}})
		}
		facts.Incident = *in.Incident
	}

	return s.engine.Evaluate(facts, in.Region), nil
}
