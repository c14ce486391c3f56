// Package jobs defines River Queue job types for async processing.
//
// ADR-0006: River Queue for async task execution. Jobs are enqueued in
// the same transaction as the state they announce (transactional
// outbox), so a committed transition implies an eventually-delivered
// task and a rolled-back one implies none.
// ADR-0009: task args carry identifiers plus at most a sealed token;
// workers re-read current state from the database.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/jobs
package jobs

import "time"

// Queue names. Notifications and documents are isolated from each other
// so a slow SMTP relay cannot starve document processing; maintenance
// sweeps run on their own low-concurrency queue.
const (
	QueueNotifications = "notifications"
	QueueDocuments     = "documents"
	QueueMaintenance   = "maintenance"
)

const (
	// sweepBatchSize bounds how many rows one maintenance run touches.
	// Leftovers are picked up by the next run.
	sweepBatchSize = 500

	// PurgeAge is how long a soft-deleted document stays recoverable
	// before the reaper removes the remote object.
	PurgeAge = 30 * 24 * time.Hour
)
