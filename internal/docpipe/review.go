package docpipe

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/jobs"

	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// Delete soft-deletes a document. The ciphertext stays on the remote
// store until the reaper purges it after the retention window.
func (s *Service) Delete(ctx context.Context, actor Actor, fileID uuid.UUID) error {
	file, err := s.authorizeFile(ctx, actor, fileID)
	if err != nil {
		return err
	}
	if file.Deleted() {
		return apperrors.Conflict(apperrors.CodeFileAlreadyDeleted, "file is already deleted")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	txStore := s.store.WithTx(tx)
	if err := txStore.Files.SoftDelete(ctx, fileID, s.now().UTC()); err != nil {
		return err
	}
	if err := txStore.AccessLogs.Insert(ctx, s.accessLog(fileID, actor, domain.FileActionDelete, "")); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Metadata returns one file's metadata and audits the view.
func (s *Service) Metadata(ctx context.Context, actor Actor, fileID uuid.UUID) (*domain.ClaimFile, error) {
	file, err := s.authorizeFile(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}
	if file.Deleted() {
		return nil, apperrors.ErrFileNotFound()
	}
	s.appendLog(ctx, file.ID, actor, domain.FileActionViewMetadata, "")
	return file, nil
}

// ListByClaim returns the live documents of a claim, oldest first.
// A foreign claim reads as not_found, matching the claim endpoints.
func (s *Service) ListByClaim(ctx context.Context, actor Actor, claimID uuid.UUID) ([]*domain.ClaimFile, error) {
	if _, err := s.authorizeClaim(ctx, actor, claimID); err != nil {
		if apperrors.IsKind(err, apperrors.KindForbidden) {
			return nil, apperrors.ErrClaimNotFound()
		}
		return nil, err
	}
	return s.store.Files.ListByClaim(ctx, claimID)
}

// AccessTrail returns the audit rows for one file, newest first.
// Admin-only: the trail exposes actor IPs.
func (s *Service) AccessTrail(ctx context.Context, actor Actor, fileID uuid.UUID) ([]*domain.FileAccessLog, error) {
	if !actor.Role.Admin() {
		return nil, apperrors.Forbidden(apperrors.CodeAccessDenied, "the access trail requires an admin role")
	}
	if _, err := s.store.Files.GetByID(ctx, fileID); err != nil {
		return nil, err
	}
	return s.store.AccessLogs.ListByFile(ctx, fileID)
}

// ReviewInput is an admin verdict on an uploaded document.
type ReviewInput struct {
	FileID  uuid.UUID
	Approve bool
	// Reason is mandatory for rejections, optional context otherwise.
	Reason string
}

// Review concludes the admin review of a document. A rejection
// notifies the claim owner by mail, enqueued in the same transaction
// as the verdict so neither outlives the other.
func (s *Service) Review(ctx context.Context, actor Actor, in ReviewInput) (*domain.ClaimFile, error) {
	if !actor.Role.Admin() {
		return nil, apperrors.Forbidden(apperrors.CodeAccessDenied, "file review requires an admin role")
	}

	file, err := s.store.Files.GetByID(ctx, in.FileID)
	if err != nil {
		return nil, err
	}
	if file.Deleted() {
		return nil, apperrors.ErrFileNotFound()
	}

	status := domain.FileApproved
	action := domain.FileActionApprove
	reason := strings.TrimSpace(in.Reason)
	if !in.Approve {
		if reason == "" {
			return nil, apperrors.Validation(apperrors.CodeRejectionReasonMissing,
				"rejecting a document requires a reason")
		}
		status = domain.FileRejected
		action = domain.FileActionReject
	}

	claim, err := s.store.Claims.GetByID(ctx, file.ClaimID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	txStore := s.store.WithTx(tx)
	if err := txStore.Files.MarkReviewed(ctx, file.ID, status, reason, actor.ID, now); err != nil {
		return nil, err
	}
	if err := txStore.AccessLogs.Insert(ctx, s.accessLog(file.ID, actor, action, reason)); err != nil {
		return nil, err
	}
	if status == domain.FileRejected {
		if _, err := s.queue.InsertTx(ctx, tx, jobs.EmailArgs{
			Event:      domain.EventFileRejected,
			CustomerID: claim.CustomerID,
			ClaimID:    &file.ClaimID,
			FileID:     &file.ID,
			Reason:     reason,
			DedupeKey:  fmt.Sprintf("%s:%s", domain.EventFileRejected, file.ID),
		}, nil); err != nil {
			return nil, fmt.Errorf("enqueue file rejection mail: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	file.ReviewStatus = status
	file.RejectionReason = reason
	file.ReviewedBy = &actor.ID
	file.ReviewedAt = &now
	return file, nil
}
