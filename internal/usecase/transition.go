package usecase

import (
	"context"
	"fmt"
	"strings"
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

// TransitionInput is one admin state-machine step.
type TransitionInput struct {
	To     domain.ClaimStatus
	Reason string

	// ExpectedVersion, when positive, must match the stored row. Zero
	// skips the caller-side check; the row lock still serializes.
	ExpectedVersion int

	// Override approves a claim the engine flagged for manual review,
	// such as extraordinary circumstances or an unknown airport. The
	// reviewer asserts the facts were checked by hand.
	Override bool
}

// Transition applies one admin step to a claim. Approval runs the
// eligibility engine and persists the computed amount in the same
// transaction, so the amount column fills exactly when the status
// passes review.
func (s *Claims) Transition(ctx context.Context, actor Actor, claimID uuid.UUID, in TransitionInput) (*domain.Claim, error) {
	if !actor.Role.Admin() {
		return nil, apperrors.Forbidden(apperrors.CodeAccessDenied,
			"claim transitions require an admin role")
	}
	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	st := s.store.WithTx(tx)

	claim, err := st.Claims.GetForUpdate(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if in.ExpectedVersion > 0 && in.ExpectedVersion != claim.Version {
		return nil, apperrors.ErrConcurrentModification()
	}

	if err := s.stageTransition(ctx, st, tx, actor, claim, in, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	logger.Info("claim transitioned",
		zap.String("claim_id", claim.ID.String()),
		zap.String("to", string(claim.Status)),
		zap.String("actor_id", actor.ID.String()),
	)
	return claim, nil
}

// TransitionGroup applies one admin step to every claim in a group.
// All rows flip or none do; history and notifications are per claim.
// Per-claim version stamps are not checked here, the row locks carry
// the serialization.
func (s *Claims) TransitionGroup(ctx context.Context, actor Actor, groupID uuid.UUID, in TransitionInput) ([]*domain.Claim, error) {
	if !actor.Role.Admin() {
		return nil, apperrors.Forbidden(apperrors.CodeAccessDenied,
			"claim transitions require an admin role")
	}
	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin group transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	st := s.store.WithTx(tx)

	if _, err := st.Groups.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	claims, err := st.Claims.ListByGroupForUpdate(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, apperrors.Conflict(apperrors.CodeInvalidTransition,
			"claim group has no claims")
	}

	for _, claim := range claims {
		if err := s.stageTransition(ctx, st, tx, actor, claim, in, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit group transition: %w", err)
	}

	logger.Info("claim group transitioned",
		zap.String("group_id", groupID.String()),
		zap.String("to", string(in.To)),
		zap.Int("claims", len(claims)),
		zap.String("actor_id", actor.ID.String()),
	)
	return claims, nil
}

// stageTransition validates and writes one claim's step inside the
// open transaction, then advances the in-memory claim to its
// post-transition image.
func (s *Claims) stageTransition(ctx context.Context, st *repository.Store, tx pgx.Tx, actor Actor, claim *domain.Claim, in TransitionInput, now time.Time) error {
	// Table membership first: an approval attempt from the wrong state
	// reads as invalid_transition, not as a guard failure.
	if !lifecycle.Allowed(claim.Status, in.To) {
		return apperrors.ErrInvalidTransition(string(claim.Status), string(in.To))
	}

	reason := strings.TrimSpace(in.Reason)
	upd := repository.StatusUpdate{
		ClaimID:         claim.ID,
		ExpectedVersion: claim.Version,
		To:              in.To,
		Reason:          reason,
	}

	if in.To == domain.ClaimStatusApproved {
		res := s.engine.Evaluate(eligibility.FactsFromClaim(claim), domain.RegionEU)
		if res.ManualReviewRequired && !in.Override {
			return apperrors.Conflict(apperrors.CodeOverrideRequired,
				"eligibility requires manual review, approve with an explicit override")
		}
		// Staged on the claim so the amount guard sees it; persisted by
		// the same update that flips the status.
		claim.CompensationAmount = res.Amount
		claim.CompensationCurrency = res.Currency
		upd.Amount = res.Amount
		upd.Currency = res.Currency
	}

	req := lifecycle.Request{
		Claim:  claim,
		To:     in.To,
		Actor:  actor.lifecycleActor(),
		Reason: reason,
		Now:    now,
	}
	if err := lifecycle.Validate(req); err != nil {
		return err
	}

	verdict := reviewVerdict(claim.Status, in.To)
	if verdict {
		reviewerID := actor.ID
		upd.ReviewerID = &reviewerID
	}

	if err := st.Claims.ApplyStatus(ctx, upd); err != nil {
		return err
	}
	if err := st.History.Insert(ctx, historyRow(claim, in.To, actor.ID, reason, now)); err != nil {
		return err
	}
	if err := s.queueStatusMail(ctx, tx, claim, in.To, reason, claim.Version+1); err != nil {
		return err
	}

	claim.Status = in.To
	claim.Version++
	claim.UpdatedAt = now
	if in.To == domain.ClaimStatusRejected {
		claim.RejectionReason = reason
	}
	if verdict {
		claim.ReviewerID = upd.ReviewerID
	}
	return nil
}

// reviewVerdict reports whether the step records the acting admin as
// the claim's reviewer: approvals, rejections and re-opens do, queue
// movement does not.
func reviewVerdict(from, to domain.ClaimStatus) bool {
	switch {
	case to == domain.ClaimStatusApproved, to == domain.ClaimStatusRejected:
		return true
	case from == domain.ClaimStatusRejected && to == domain.ClaimStatusUnderReview:
		return true
	}
	return false
}
