package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/stretchr/testify/require"

	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/pkg/kms"
	"aeroclaim.io/aeroclaim/internal/testutil"
)

func TestTokenCleanupArgsInsertOpts(t *testing.T) {
	t.Parallel()

	opts := (TokenCleanupArgs{}).InsertOpts()
	require.Equal(t, QueueMaintenance, opts.Queue)
	require.Equal(t, 1, opts.MaxAttempts)
	require.Equal(t, 24*time.Hour, opts.UniqueOpts.ByPeriod)
	require.True(t, opts.UniqueOpts.ByQueue)
	require.True(t, opts.UniqueOpts.ByArgs)
}

func TestTokenCleanupWork_Uninitialized(t *testing.T) {
	t.Parallel()

	var w *TokenCleanupWorker
	require.Error(t, w.Work(context.Background(), nil))
	require.Error(t, (&TokenCleanupWorker{}).Work(context.Background(), nil))
}

func TestTokenCleanup_DeletesOnlyBeyondRetention(t *testing.T) {
	store, _ := testutil.OpenStore(t, "token_cleanup")
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, store, domain.RoleCustomer)
	now := time.Now().UTC()

	newRefresh := func(expiresAt time.Time) *domain.RefreshToken {
		_, digest, err := kms.NewToken()
		require.NoError(t, err)
		rt := &domain.RefreshToken{
			ID:          uuid.Must(uuid.NewV7()),
			CustomerID:  customer.ID,
			TokenDigest: digest,
			IssuedAt:    expiresAt.Add(-time.Hour),
			ExpiresAt:   expiresAt,
		}
		require.NoError(t, store.RefreshTokens.Insert(ctx, rt))
		return rt
	}
	newLogin := func(expiresAt time.Time) *domain.LoginToken {
		_, digest, err := kms.NewToken()
		require.NoError(t, err)
		lt := &domain.LoginToken{
			ID:          uuid.Must(uuid.NewV7()),
			CustomerID:  customer.ID,
			TokenDigest: digest,
			Purpose:     domain.PurposeMagicLink,
			ExpiresAt:   expiresAt,
			CreatedAt:   expiresAt.Add(-time.Hour),
		}
		require.NoError(t, store.LoginTokens.Insert(ctx, lt))
		return lt
	}

	stale := newRefresh(now.Add(-TokenRetention - time.Hour))
	live := newRefresh(now.Add(time.Hour))
	staleLink := newLogin(now.Add(-TokenRetention - time.Hour))
	recentLink := newLogin(now.Add(-time.Hour))

	w := NewTokenCleanupWorker(store)
	require.NoError(t, w.Work(ctx, &river.Job[TokenCleanupArgs]{}))

	_, err := store.RefreshTokens.GetByDigest(ctx, stale.TokenDigest)
	require.Error(t, err, "stale refresh token must be gone")
	_, err = store.RefreshTokens.GetByDigest(ctx, live.TokenDigest)
	require.NoError(t, err)

	_, err = store.LoginTokens.Find(ctx, staleLink.TokenDigest)
	require.Error(t, err, "stale login token must be gone")
	_, err = store.LoginTokens.Find(ctx, recentLink.TokenDigest)
	require.NoError(t, err, "recently expired token stays within retention")
}
