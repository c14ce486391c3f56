package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/eligibility"
	"aeroclaim.io/aeroclaim/internal/lifecycle"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/repository"
)

// Submit moves a draft into the review queue. A draft that belongs to
// a claim group never submits alone: the whole group flips in one
// transaction or none of it does.
func (s *Claims) Submit(ctx context.Context, actor Actor, claimID uuid.UUID) (*domain.Claim, error) {
	// Routing read: group membership decides which writer runs. The
	// writer re-reads under a lock, this copy is never written.
	claim, err := s.loadOwned(ctx, s.store, actor, claimID)
	if err != nil {
		return nil, err
	}

	if claim.GroupID != nil {
		claims, err := s.SubmitGroup(ctx, actor, *claim.GroupID)
		if err != nil {
			return nil, err
		}
		for _, c := range claims {
			if c.ID == claimID {
				return c, nil
			}
		}
		return nil, apperrors.ErrConcurrentModification()
	}

	return s.submitOne(ctx, actor, claimID)
}

func (s *Claims) submitOne(ctx context.Context, actor Actor, claimID uuid.UUID) (*domain.Claim, error) {
	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin submit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	st := s.store.WithTx(tx)

	claim, err := s.loadOwnedForUpdate(ctx, st, actor, claimID)
	if err != nil {
		return nil, err
	}
	if err := s.stageSubmission(ctx, st, tx, actor, claim, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit submit: %w", err)
	}

	logger.Info("claim submitted",
		zap.String("claim_id", claim.ID.String()),
		zap.String("customer_id", claim.CustomerID.String()),
		zap.String("flight", claim.FlightNumber),
	)
	return claim, nil
}

// SubmitGroup submits every claim in a group, all or none. The caller
// must be the group owner, a member claim's owner, or an admin; the
// confirmed group consent stands in for per-claim ownership of the
// co-passenger claims.
func (s *Claims) SubmitGroup(ctx context.Context, actor Actor, groupID uuid.UUID) ([]*domain.Claim, error) {
	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin group submit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	st := s.store.WithTx(tx)

	group, err := st.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	claims, err := st.Claims.ListByGroupForUpdate(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !groupParticipant(actor, group, claims) {
		return nil, apperrors.NotFound(apperrors.CodeGroupNotFound, "claim group not found")
	}
	if !group.ConsentConfirmed {
		return nil, apperrors.Conflict(apperrors.CodeConsentMissing,
			"the claim group has not confirmed passenger consent")
	}
	if len(claims) == 0 {
		return nil, apperrors.Conflict(apperrors.CodeInvalidTransition,
			"claim group has no claims to submit")
	}

	for _, claim := range claims {
		if err := s.stageSubmission(ctx, st, tx, actor, claim, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit group submit: %w", err)
	}

	logger.Info("claim group submitted",
		zap.String("group_id", groupID.String()),
		zap.Int("claims", len(claims)),
	)
	return claims, nil
}

// stageSubmission validates and writes one claim's draft→submitted
// step inside the open transaction, then advances the in-memory claim
// to its post-transition image.
func (s *Claims) stageSubmission(ctx context.Context, st *repository.Store, tx pgx.Tx, actor Actor, claim *domain.Claim, now time.Time) error {
	req := lifecycle.Request{
		Claim: claim,
		To:    domain.ClaimStatusSubmitted,
		Actor: actor.lifecycleActor(),
		Now:   now,
	}
	if err := lifecycle.Validate(req); err != nil {
		return err
	}

	// Friendly pre-check. The partial unique index on live claims is
	// the authority and turns races into the same conflict.
	dup, err := st.Claims.ExistsActive(ctx, claim.CustomerID, claim.FlightNumber, claim.FlightDate)
	if err != nil {
		return err
	}
	if dup {
		return apperrors.Conflict(apperrors.CodeDuplicateClaim,
			"a claim for this flight already exists")
	}

	upd := repository.StatusUpdate{
		ClaimID:         claim.ID,
		ExpectedVersion: claim.Version,
		To:              domain.ClaimStatusSubmitted,
		SubmittedAt:     &now,
	}

	// Snapshot distance and gate delay while the facts are fresh. The
	// approval step later recomputes the amount; these two columns stay
	// as filed.
	res := s.engine.Evaluate(eligibility.FactsFromClaim(claim), domain.RegionEU)
	if res.DistanceKm > 0 {
		upd.DistanceKm = &res.DistanceKm
		upd.DelayMinutes = &res.DelayMinutes
	}

	if err := st.Claims.ApplyStatus(ctx, upd); err != nil {
		return err
	}
	if err := st.History.Insert(ctx, historyRow(claim, domain.ClaimStatusSubmitted, actor.ID, "", now)); err != nil {
		return err
	}
	if err := s.queueStatusMail(ctx, tx, claim, domain.ClaimStatusSubmitted, "", claim.Version+1); err != nil {
		return err
	}

	claim.Status = domain.ClaimStatusSubmitted
	claim.SubmittedAt = &now
	if res.DistanceKm > 0 {
		claim.FlightDistanceKm = upd.DistanceKm
		claim.DelayMinutes = upd.DelayMinutes
	}
	claim.Version++
	claim.UpdatedAt = now
	return nil
}

// groupParticipant reports whether the actor may act on the group:
// admins, the group owner, or the owner of any member claim.
func groupParticipant(actor Actor, group *domain.ClaimGroup, claims []*domain.Claim) bool {
	if actor.Role.Admin() || group.OwnerID == actor.ID {
		return true
	}
	for _, c := range claims {
		if c.CustomerID == actor.ID {
			return true
		}
	}
	return false
}
