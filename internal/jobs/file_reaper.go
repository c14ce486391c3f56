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

// ---------------------------------------------------------------------------
// Job Args
// ---------------------------------------------------------------------------

// FileReaperArgs is the periodic purge of soft-deleted documents whose
// recovery window has lapsed. The remote ciphertext is removed first;
// the row is marked purged only after the store confirms the delete.
type FileReaperArgs struct{}

// Kind returns the job kind identifier for the file reaper.
func (FileReaperArgs) Kind() string { return "file_reaper" }

// InsertOpts ensures at most one reaper pass per scheduling period.
func (FileReaperArgs) InsertOpts() river.InsertOpts {
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

// ObjectRemover deletes one remote object. *storage.Client implements
// it; tests substitute a fake.
type ObjectRemover interface {
	Remove(ctx context.Context, remotePath string) error
}

// FileReaperWorker purges remote ciphertext for files soft-deleted more
// than PurgeAge ago. A remote delete that fails leaves the row
// unpurged, so the next pass retries it; rows are only marked after
// the object is confirmed gone.
type FileReaperWorker struct {
	river.WorkerDefaults[FileReaperArgs]
	store   *repository.Store
	objects ObjectRemover
}

// NewFileReaperWorker creates a reaper worker (ADR-0013 manual DI).
func NewFileReaperWorker(store *repository.Store, objects ObjectRemover) *FileReaperWorker {
	return &FileReaperWorker{store: store, objects: objects}
}

// Work runs one purge pass.
func (w *FileReaperWorker) Work(ctx context.Context, _ *river.Job[FileReaperArgs]) error {
	if w == nil || w.store == nil || w.objects == nil {
		return fmt.Errorf("file reaper worker is not initialized")
	}

	now := time.Now().UTC()
	purgeable, err := w.store.Files.ListPurgeable(ctx, now.Add(-PurgeAge), sweepBatchSize)
	if err != nil {
		return fmt.Errorf("list purgeable files: %w", err)
	}

	var purged, failed int
	for _, file := range purgeable {
		if err := w.objects.Remove(ctx, file.StoragePath); err != nil {
			logger.Warn("file reaper could not remove remote object",
				zap.String("file_id", file.ID.String()),
				zap.Error(err),
			)
			failed++
			continue
		}
		if err := w.store.Files.MarkPurged(ctx, file.ID, now); err != nil {
			// The object is gone; the row catches up on the next pass
			// when Remove finds nothing to delete.
			logger.Error("file reaper could not mark row purged",
				zap.String("file_id", file.ID.String()),
				zap.Error(err),
			)
			failed++
			continue
		}
		purged++
	}

	if purged > 0 || failed > 0 {
		logger.Info("file reaper completed",
			zap.Int("purged", purged),
			zap.Int("failed", failed),
		)
	}
	return nil
}
