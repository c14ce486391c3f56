package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/kms"
)

// Files persists document metadata. Filenames are ciphertext at rest;
// the remote object itself lives in WebDAV storage under StoragePath.
type Files struct {
	db    DBTX
	codec *kms.FieldCodec
}

const fileColumns = `id, claim_id, file_name_enc, content_type, document_type,
	plain_size, cipher_size, plain_digest, storage_path, encryption_scheme, chunk_size,
	review_status, rejection_reason, reviewed_by, reviewed_at,
	uploaded_by, uploaded_at, deleted_at, purged_at`

// Create inserts a file record.
func (r *Files) Create(ctx context.Context, f *domain.ClaimFile) error {
	nameEnc, err := r.codec.Encrypt(f.Filename)
	if err != nil {
		return fmt.Errorf("encrypt file name: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO claim_files (
			id, claim_id, file_name_enc, content_type, document_type,
			plain_size, cipher_size, plain_digest, storage_path, encryption_scheme, chunk_size,
			review_status, uploaded_by, uploaded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		f.ID, f.ClaimID, nameEnc, f.ContentType, f.DocumentType,
		f.PlainSize, f.CipherSize, f.PlainDigest, f.StoragePath, f.EncryptionScheme, f.ChunkSize,
		f.ReviewStatus, f.UploadedBy, f.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert claim file: %w", err)
	}
	return nil
}

// GetByID loads one file record, soft-deleted rows included; callers
// decide whether deletion matters.
func (r *Files) GetByID(ctx context.Context, id uuid.UUID) (*domain.ClaimFile, error) {
	row := r.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM claim_files WHERE id = $1`, id)
	return r.scan(row)
}

// ListByClaim returns the claim's live files, upload order.
func (r *Files) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*domain.ClaimFile, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+fileColumns+` FROM claim_files
		WHERE claim_id = $1 AND deleted_at IS NULL
		ORDER BY uploaded_at, id`,
		claimID,
	)
	if err != nil {
		return nil, fmt.Errorf("list claim files: %w", err)
	}
	return r.scanAll(rows)
}

// SoftDelete marks the record deleted. The remote object stays until
// the reaper purges it.
func (r *Files) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE claim_files SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("soft delete claim file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Conflict(apperrors.CodeFileAlreadyDeleted, "file is already deleted")
	}
	return nil
}

// SoftDeleteByClaim marks all live files of a claim deleted and
// returns their ids. Used when the sweep discards a draft.
func (r *Files) SoftDeleteByClaim(ctx context.Context, claimID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE claim_files SET deleted_at = $2
		WHERE claim_id = $1 AND deleted_at IS NULL
		RETURNING id`,
		claimID, at,
	)
	if err != nil {
		return nil, fmt.Errorf("soft delete claim files: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted file id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted file ids: %w", err)
	}
	return ids, nil
}

// MarkReviewed records the admin verdict. Only uploaded files can be
// reviewed; a second verdict conflicts.
func (r *Files) MarkReviewed(ctx context.Context, id uuid.UUID, status domain.FileReviewStatus, reason string, reviewerID uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE claim_files SET
			review_status = $2, rejection_reason = $3, reviewed_by = $4, reviewed_at = $5
		WHERE id = $1 AND review_status = 'uploaded' AND deleted_at IS NULL`,
		id, status, reason, reviewerID, at,
	)
	if err != nil {
		return fmt.Errorf("mark file reviewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Conflict(apperrors.CodeFileReviewConcluded, "file review is already concluded")
	}
	return nil
}

// MarkCorrupted flags a file whose ciphertext failed verification.
// The record survives for audit; downloads are refused from then on.
func (r *Files) MarkCorrupted(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE claim_files SET review_status = $2 WHERE id = $1`,
		id, domain.FileCorrupted,
	)
	if err != nil {
		return fmt.Errorf("mark file corrupted: %w", err)
	}
	return nil
}

// ListPurgeable returns soft-deleted files whose retention window has
// passed and whose remote object still exists.
func (r *Files) ListPurgeable(ctx context.Context, deletedBefore time.Time, limit int) ([]*domain.ClaimFile, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+fileColumns+` FROM claim_files
		WHERE deleted_at IS NOT NULL AND deleted_at <= $1 AND purged_at IS NULL
		ORDER BY deleted_at
		LIMIT $2`,
		deletedBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list purgeable files: %w", err)
	}
	return r.scanAll(rows)
}

// MarkPurged records that the remote object is gone.
func (r *Files) MarkPurged(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE claim_files SET purged_at = $2 WHERE id = $1 AND purged_at IS NULL`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("mark file purged: %w", err)
	}
	return nil
}

func (r *Files) scan(row pgx.Row) (*domain.ClaimFile, error) {
	f, err := r.scanRow(row)
	if noRows(err) {
		return nil, apperrors.ErrFileNotFound()
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *Files) scanAll(rows pgx.Rows) ([]*domain.ClaimFile, error) {
	defer rows.Close()

	var out []*domain.ClaimFile
	for rows.Next() {
		f, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim files: %w", err)
	}
	return out, nil
}

func (r *Files) scanRow(row pgx.Row) (*domain.ClaimFile, error) {
	var (
		f       domain.ClaimFile
		nameEnc string
	)
	err := row.Scan(
		&f.ID, &f.ClaimID, &nameEnc, &f.ContentType, &f.DocumentType,
		&f.PlainSize, &f.CipherSize, &f.PlainDigest, &f.StoragePath, &f.EncryptionScheme, &f.ChunkSize,
		&f.ReviewStatus, &f.RejectionReason, &f.ReviewedBy, &f.ReviewedAt,
		&f.UploadedBy, &f.UploadedAt, &f.DeletedAt, &f.PurgedAt,
	)
	if err != nil {
		if noRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan claim file: %w", err)
	}

	if f.Filename, err = r.codec.Decrypt(nameEnc); err != nil {
		return nil, fmt.Errorf("decrypt file name: %w", err)
	}
	return &f, nil
}
