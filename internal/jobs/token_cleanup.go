package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/repository"
)

// TokenRetention keeps expired credentials queryable for a while so a
// replayed refresh token can still be classified as revoked rather
// than unknown.
const TokenRetention = 7 * 24 * time.Hour

// ---------------------------------------------------------------------------
// Job Args
// ---------------------------------------------------------------------------

// TokenCleanupArgs is the periodic deletion of long-expired refresh and
// single-use login tokens. Revocation semantics never depend on this
// job; it only bounds table growth.
type TokenCleanupArgs struct{}

// Kind returns the job kind identifier for token cleanup.
func (TokenCleanupArgs) Kind() string { return "token_cleanup" }

// InsertOpts ensures at most one cleanup per scheduling period.
func (TokenCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueMaintenance,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

// TokenCleanupWorker deletes token rows whose expiry lies more than
// TokenRetention in the past.
type TokenCleanupWorker struct {
	river.WorkerDefaults[TokenCleanupArgs]
	store *repository.Store
}

// NewTokenCleanupWorker creates a cleanup worker (ADR-0013 manual DI).
func NewTokenCleanupWorker(store *repository.Store) *TokenCleanupWorker {
	return &TokenCleanupWorker{store: store}
}

// Work removes long-expired token rows.
func (w *TokenCleanupWorker) Work(ctx context.Context, _ *river.Job[TokenCleanupArgs]) error {
	if w == nil || w.store == nil {
		return fmt.Errorf("token cleanup worker is not initialized")
	}

	cutoff := time.Now().UTC().Add(-TokenRetention)

	refresh, err := w.store.RefreshTokens.DeleteExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete expired refresh tokens before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	login, err := w.store.LoginTokens.DeleteExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete expired login tokens before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if refresh > 0 || login > 0 {
		logger.Info("token cleanup completed",
			zap.Int64("refresh_tokens", refresh),
			zap.Int64("login_tokens", login),
			zap.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
	return nil
}
