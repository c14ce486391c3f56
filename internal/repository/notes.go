package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/domain"
)

// Notes persists admin annotations on claims.
type Notes struct {
	db DBTX
}

// Insert appends a note.
func (r *Notes) Insert(ctx context.Context, n *domain.ClaimNote) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO claim_notes (id, claim_id, author_id, body, internal, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		n.ID, n.ClaimID, n.AuthorID, n.Body, n.Internal, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert claim note: %w", err)
	}
	return nil
}

// ListByClaim returns notes oldest first. includeInternal=false hides
// internal notes for customer-facing reads.
func (r *Notes) ListByClaim(ctx context.Context, claimID uuid.UUID, includeInternal bool) ([]*domain.ClaimNote, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, claim_id, author_id, body, internal, created_at
		FROM claim_notes
		WHERE claim_id = $1 AND (internal = FALSE OR $2)
		ORDER BY created_at, id`,
		claimID, includeInternal,
	)
	if err != nil {
		return nil, fmt.Errorf("list claim notes: %w", err)
	}
	defer rows.Close()

	var out []*domain.ClaimNote
	for rows.Next() {
		var n domain.ClaimNote
		if err := rows.Scan(&n.ID, &n.ClaimID, &n.AuthorID, &n.Body, &n.Internal, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan claim note: %w", err)
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim notes: %w", err)
	}
	return out, nil
}
