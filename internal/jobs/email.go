package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/notification"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/kms"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/repository"
)

// ---------------------------------------------------------------------------
// Job Args
// ---------------------------------------------------------------------------

// EmailArgs describes one customer-facing mail. Entities are referenced
// by id and re-read at dispatch time (ADR-0009); TokenCipher carries the
// raw single-use token sealed with the field key, since only its digest
// exists at rest.
type EmailArgs struct {
	Event      domain.EventType `json:"event"`
	CustomerID uuid.UUID        `json:"customer_id"`

	ClaimID     *uuid.UUID `json:"claim_id,omitempty"`
	FileID      *uuid.UUID `json:"file_id,omitempty"`
	TokenCipher string     `json:"token_cipher,omitempty"`
	Reason      string     `json:"reason,omitempty"`

	// DedupeKey identifies the logical event. Re-delivery of the same
	// key sends nothing (processed_events table).
	DedupeKey string `json:"dedupe_key"`
}

// Kind returns the job kind identifier for mail dispatch.
func (EmailArgs) Kind() string { return "email_dispatch" }

// InsertOpts returns default insert options for mail dispatch jobs.
func (EmailArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueNotifications,
		MaxAttempts: 5,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
		},
	}
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

// EmailWorker renders and delivers one mail per job.
//
// Execution flow:
//  1. Idempotency check against processed_events (dedupe key)
//  2. Load customer; anonymized accounts get no mail
//  3. Load the claim/file the event references
//  4. Unseal the single-use token, when the event carries one
//  5. Compose and send
//  6. Mark the dedupe key processed
//
// Send failures are returned so River retries; everything that cannot
// succeed on retry cancels the job.
type EmailWorker struct {
	river.WorkerDefaults[EmailArgs]
	store    *repository.Store
	composer *notification.Composer
	sender   notification.Sender
	codec    *kms.FieldCodec
}

// NewEmailWorker creates a mail dispatch worker (ADR-0013 manual DI).
func NewEmailWorker(store *repository.Store, composer *notification.Composer,
	sender notification.Sender, codec *kms.FieldCodec) *EmailWorker {
	return &EmailWorker{store: store, composer: composer, sender: sender, codec: codec}
}

// Work delivers the mail.
func (w *EmailWorker) Work(ctx context.Context, job *river.Job[EmailArgs]) error {
	args := job.Args
	if args.DedupeKey == "" {
		return river.JobCancel(fmt.Errorf("email job %s has no dedupe key", args.Event))
	}

	// Step 1: skip keys a prior delivery already completed.
	done, err := w.store.Events.Processed(ctx, args.DedupeKey)
	if err != nil {
		return fmt.Errorf("check processed %s: %w", args.DedupeKey, err)
	}
	if done {
		logger.Debug("mail already dispatched, skipping",
			zap.String("dedupe_key", args.DedupeKey))
		return nil
	}

	// Step 2: recipient.
	customer, err := w.store.Customers.GetByID(ctx, args.CustomerID)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return river.JobCancel(fmt.Errorf("mail recipient %s not found", args.CustomerID))
		}
		return fmt.Errorf("load mail recipient %s: %w", args.CustomerID, err)
	}
	if customer.Anonymized() {
		logger.Info("recipient anonymized, dropping mail",
			zap.String("dedupe_key", args.DedupeKey))
		return nil
	}

	// Step 3: referenced entities.
	ec := notification.EventContext{Customer: customer, Reason: args.Reason}
	if args.ClaimID != nil {
		claim, err := w.store.Claims.GetByID(ctx, *args.ClaimID)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				return river.JobCancel(fmt.Errorf("claim %s for mail not found", *args.ClaimID))
			}
			return fmt.Errorf("load claim %s for mail: %w", *args.ClaimID, err)
		}
		ec.Claim = claim
	}
	if args.FileID != nil {
		file, err := w.store.Files.GetByID(ctx, *args.FileID)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				return river.JobCancel(fmt.Errorf("file %s for mail not found", *args.FileID))
			}
			return fmt.Errorf("load file %s for mail: %w", *args.FileID, err)
		}
		ec.File = file
	}

	// Step 4: unseal the link token.
	if args.TokenCipher != "" {
		token, err := w.codec.Decrypt(args.TokenCipher)
		if err != nil {
			return river.JobCancel(fmt.Errorf("unseal token for %s: %w", args.DedupeKey, err))
		}
		ec.Token = token
	}

	// Step 5: render and deliver.
	msg, err := w.composer.Compose(args.Event, ec)
	if err != nil {
		return river.JobCancel(fmt.Errorf("compose %s: %w", args.DedupeKey, err))
	}
	if err := w.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", args.DedupeKey, err)
	}

	// Step 6: record delivery. A failure here retries the job, and the
	// recheck in step 1 races only against our own crash window.
	if _, err := w.store.Events.MarkProcessed(ctx, args.DedupeKey, args.Event); err != nil {
		return fmt.Errorf("mark processed %s: %w", args.DedupeKey, err)
	}

	logger.Info("mail dispatched",
		zap.String("event", string(args.Event)),
		zap.String("dedupe_key", args.DedupeKey),
	)
	return nil
}
