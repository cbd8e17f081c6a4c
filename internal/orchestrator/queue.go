// Package orchestrator implements the durable, priority-ordered queue
// that folder-scan jobs emitted by a scanactor.Actor are handed off to.
// It is grounded on internal/repository/job_repository.go's plain
// database/sql style, generalized into a capability interface with a
// Postgres lease-based implementation giving the renew/steal/cancel
// semantics asynq's own API doesn't expose.
package orchestrator

import (
	"context"
	"time"

	"github.com/streamvault/streamvault/internal/models"
)

// QueueService is the capability a library actor depends on to persist
// and later reclaim folder-scan work. PGLeaseQueueService implements it
// with a durable, renewable lease model. AsynqQueueService does not
// implement this interface; it carries the simpler process-and-done
// job kinds through its own EnqueueUnique API.
type QueueService interface {
	Enqueue(ctx context.Context, job models.FolderScanJob, priority models.JobPriority, dedupeKey models.DedupeKey) (models.JobID, error)
	Dequeue(ctx context.Context, owner string, lease time.Duration) (*models.Job, error)
	Renew(ctx context.Context, jobID models.JobID, owner string, lease time.Duration) error
	Complete(ctx context.Context, jobID models.JobID) error
	Fail(ctx context.Context, jobID models.JobID, errMsg string, retryable bool) error
	Cancel(ctx context.Context, jobID models.JobID) error
	QueueDepth(ctx context.Context) (int, error)
}
