// Package usecase orchestrates claim workflows on top of the
// repositories: drafting, submission, admin review, group operations.
// Every writer follows one transactional shape (ADR-0012): begin,
// row-lock, lifecycle.Validate, CAS status update + history row +
// queued mail, commit. Mail rides the same transaction as a river
// insert, so observers never see a notification for a rolled-back
// transition.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/usecase
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"

	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/eligibility"
	"aeroclaim.io/aeroclaim/internal/jobs"
	"aeroclaim.io/aeroclaim/internal/lifecycle"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/repository"
)

// Deps bundles the claim service dependencies (ADR-0013: manual wiring).
type Deps struct {
	Store  *repository.Store
	Pool   *pgxpool.Pool
	Engine *eligibility.Engine
	Queue  *river.Client[pgx.Tx]
}

// Claims runs the claim lifecycle operations.
type Claims struct {
	store  *repository.Store
	pool   *pgxpool.Pool
	engine *eligibility.Engine
	queue  *river.Client[pgx.Tx]
	now    func() time.Time
}

// NewClaims wires a claim service.
func NewClaims(d Deps) *Claims {
	return &Claims{
		store:  d.Store,
		pool:   d.Pool,
		engine: d.Engine,
		queue:  d.Queue,
		now:    time.Now,
	}
}

// Actor is the authenticated caller. ClientIP feeds consent capture.
type Actor struct {
	ID       uuid.UUID
	Role     domain.Role
	ClientIP string
}

func (a Actor) lifecycleActor() lifecycle.Actor {
	return lifecycle.Actor{ID: a.ID, Role: a.Role}
}

// loadOwned loads a claim and hides foreign ones behind not_found, so
// claim ids cannot be probed for existence.
func (s *Claims) loadOwned(ctx context.Context, st *repository.Store, actor Actor, claimID uuid.UUID) (*domain.Claim, error) {
	claim, err := st.Claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.Admin() && claim.CustomerID != actor.ID {
		return nil, apperrors.ErrClaimNotFound()
	}
	return claim, nil
}

// loadOwnedForUpdate is loadOwned under a row lock. Only meaningful
// inside a transaction.
func (s *Claims) loadOwnedForUpdate(ctx context.Context, st *repository.Store, actor Actor, claimID uuid.UUID) (*domain.Claim, error) {
	claim, err := st.Claims.GetForUpdate(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.Admin() && claim.CustomerID != actor.ID {
		return nil, apperrors.ErrClaimNotFound()
	}
	return claim, nil
}

func historyRow(claim *domain.Claim, to domain.ClaimStatus, actorID uuid.UUID, reason string, now time.Time) *domain.ClaimStatusHistory {
	return &domain.ClaimStatusHistory{
		ID:         uuid.Must(uuid.NewV7()),
		ClaimID:    claim.ID,
		FromStatus: claim.Status,
		ToStatus:   to,
		ActorID:    actorID,
		Reason:     reason,
		CreatedAt:  now,
	}
}

// queueStatusMail stages the claimant notification inside the
// transition's transaction. Transitions without a claimant-facing
// event (under_review) queue nothing. The dedupe key carries the
// post-transition version: a claim that is rejected, reopened and
// rejected again mails twice.
func (s *Claims) queueStatusMail(ctx context.Context, tx pgx.Tx, claim *domain.Claim, to domain.ClaimStatus, reason string, newVersion int) error {
	event := domain.ForStatus(to)
	if event == "" {
		return nil
	}
	claimID := claim.ID
	_, err := s.queue.InsertTx(ctx, tx, jobs.EmailArgs{
		Event:      event,
		CustomerID: claim.CustomerID,
		ClaimID:    &claimID,
		Reason:     reason,
		DedupeKey:  fmt.Sprintf("%s:%s:%d", event, claim.ID, newVersion),
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueue %s mail: %w", event, err)
	}
	return nil
}
