package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/domain"
)

// History appends and reads claim transition records. Append-only:
// there is no update or delete path.
type History struct {
	db DBTX
}

// Insert appends one transition record.
func (r *History) Insert(ctx context.Context, h *domain.ClaimStatusHistory) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO claim_status_history (id, claim_id, from_status, to_status, actor_id, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.ID, h.ClaimID, h.FromStatus, h.ToStatus, h.ActorID, h.Reason, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

// ListByClaim returns the full trail, oldest first.
func (r *History) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*domain.ClaimStatusHistory, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, claim_id, from_status, to_status, actor_id, reason, created_at
		FROM claim_status_history
		WHERE claim_id = $1
		ORDER BY created_at, id`,
		claimID,
	)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var out []*domain.ClaimStatusHistory
	for rows.Next() {
		var h domain.ClaimStatusHistory
		if err := rows.Scan(&h.ID, &h.ClaimID, &h.FromStatus, &h.ToStatus, &h.ActorID, &h.Reason, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}
	return out, nil
}
