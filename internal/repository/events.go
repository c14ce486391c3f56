package repository

import (
	"context"
	"fmt"

	"aeroclaim.io/aeroclaim/internal/domain"
)

// Events is the dedupe ledger for task side-effects. Workers record a
// key only after the effect succeeded, so a redelivered task sees the
// key and skips.
type Events struct {
	db DBTX
}

// MarkProcessed claims an idempotency key. Returns false when the key
// was already claimed, meaning the side-effect already ran.
func (r *Events) MarkProcessed(ctx context.Context, key string, eventType domain.EventType) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO processed_events (idempotency_key, event_type)
		VALUES ($1, $2)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		key, eventType,
	)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Processed reports whether a key has been claimed.
func (r *Events) Processed(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE idempotency_key = $1)`,
		key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed event: %w", err)
	}
	return exists, nil
}
