package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/lifecycle"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/repository"
)

// Reminder schedule measured from draft creation. Each step fires once;
// a draft older than lifecycle.DiscardAge is discarded instead.
var reminderSteps = []struct {
	After time.Duration
	Label string
}{
	{30 * time.Minute, "30m"},
	{5 * 24 * time.Hour, "5d"},
	{8 * 24 * time.Hour, "8d"},
	{11 * 24 * time.Hour, "11d"},
}

// ---------------------------------------------------------------------------
// Job Args
// ---------------------------------------------------------------------------

// DraftSweepArgs is the periodic pass over unsubmitted drafts: nudge
// the young ones, discard the expired ones.
type DraftSweepArgs struct{}

// Kind returns the job kind identifier for the draft sweep.
func (DraftSweepArgs) Kind() string { return "draft_sweep" }

// InsertOpts ensures at most one sweep is in flight per scheduling period.
func (DraftSweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueMaintenance,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 15 * time.Minute,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

// DraftSweepWorker walks stale drafts in two passes. Discards run
// first so the reminder pass never nudges a draft that just expired.
// Each discard is one transaction: status CAS, history row, document
// soft-delete and the goodbye mail commit or roll back together.
type DraftSweepWorker struct {
	river.WorkerDefaults[DraftSweepArgs]
	store *repository.Store
	pool  *pgxpool.Pool
}

// NewDraftSweepWorker creates a sweep worker (ADR-0013 manual DI).
func NewDraftSweepWorker(store *repository.Store, pool *pgxpool.Pool) *DraftSweepWorker {
	return &DraftSweepWorker{store: store, pool: pool}
}

// Work runs one sweep.
func (w *DraftSweepWorker) Work(ctx context.Context, _ *river.Job[DraftSweepArgs]) error {
	client := river.ClientFromContext[pgx.Tx](ctx)
	now := time.Now().UTC()

	discarded, err := w.discardExpired(ctx, client, now)
	if err != nil {
		return err
	}
	reminded, err := w.remindPending(ctx, client, now)
	if err != nil {
		return err
	}

	if discarded > 0 || reminded > 0 {
		logger.Info("draft sweep completed",
			zap.Int("discarded", discarded),
			zap.Int("reminders", reminded),
		)
	}
	return nil
}

func (w *DraftSweepWorker) discardExpired(ctx context.Context, client *river.Client[pgx.Tx], now time.Time) (int, error) {
	expired, err := w.store.Claims.ListStaleDrafts(ctx, now.Add(-lifecycle.DiscardAge), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired drafts: %w", err)
	}

	var done int
	for _, claim := range expired {
		if err := w.discardOne(ctx, client, claim, now); err != nil {
			// A draft submitted since the listing is fine; anything else
			// is logged and retried on the next sweep.
			if apperrors.IsKind(err, apperrors.KindConflict) {
				logger.Debug("draft changed under sweep, skipping",
					zap.String("claim_id", claim.ID.String()))
				continue
			}
			logger.Error("failed to discard draft",
				zap.String("claim_id", claim.ID.String()), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

func (w *DraftSweepWorker) discardOne(ctx context.Context, client *river.Client[pgx.Tx], claim *domain.Claim, now time.Time) error {
	req := lifecycle.Request{
		Claim: claim,
		To:    domain.ClaimStatusDiscarded,
		Actor: lifecycle.SystemActor(),
		Now:   now,
	}
	if err := lifecycle.Validate(req); err != nil {
		return err
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin discard: %w", err)
	}
	defer tx.Rollback(ctx)
	st := w.store.WithTx(tx)

	if err := st.Claims.ApplyStatus(ctx, repository.StatusUpdate{
		ClaimID:         claim.ID,
		ExpectedVersion: claim.Version,
		To:              domain.ClaimStatusDiscarded,
		Reason:          "draft expired",
	}); err != nil {
		return err
	}
	if err := st.History.Insert(ctx, &domain.ClaimStatusHistory{
		ID:         uuid.Must(uuid.NewV7()),
		ClaimID:    claim.ID,
		FromStatus: domain.ClaimStatusDraft,
		ToStatus:   domain.ClaimStatusDiscarded,
		Reason:     "draft expired",
		CreatedAt:  now,
	}); err != nil {
		return err
	}
	if _, err := st.Files.SoftDeleteByClaim(ctx, claim.ID, now); err != nil {
		return err
	}

	claimID := claim.ID
	if _, err := client.InsertTx(ctx, tx, EmailArgs{
		Event:      domain.EventDraftDiscarded,
		CustomerID: claim.CustomerID,
		ClaimID:    &claimID,
		DedupeKey:  fmt.Sprintf("%s:%s", domain.EventDraftDiscarded, claim.ID),
	}, nil); err != nil {
		return fmt.Errorf("enqueue discard mail: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit discard: %w", err)
	}
	return nil
}

func (w *DraftSweepWorker) remindPending(ctx context.Context, client *river.Client[pgx.Tx], now time.Time) (int, error) {
	pending, err := w.store.Claims.ListStaleDrafts(ctx, now.Add(-reminderSteps[0].After), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list reminder drafts: %w", err)
	}

	var sent int
	for _, claim := range pending {
		label, ok := latestReminderStep(now.Sub(claim.CreatedAt))
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s:%s:%s", domain.EventDraftReminder, claim.ID, label)

		done, err := w.store.Events.Processed(ctx, key)
		if err != nil {
			return sent, fmt.Errorf("check reminder %s: %w", key, err)
		}
		if done {
			continue
		}

		claimID := claim.ID
		if _, err := client.Insert(ctx, EmailArgs{
			Event:      domain.EventDraftReminder,
			CustomerID: claim.CustomerID,
			ClaimID:    &claimID,
			DedupeKey:  key,
		}, nil); err != nil {
			return sent, fmt.Errorf("enqueue reminder %s: %w", key, err)
		}
		sent++
	}
	return sent, nil
}

// latestReminderStep returns the label of the most recent schedule step
// the draft's age has passed.
func latestReminderStep(age time.Duration) (string, bool) {
	label := ""
	for _, step := range reminderSteps {
		if age >= step.After {
			label = step.Label
		}
	}
	return label, label != ""
}
