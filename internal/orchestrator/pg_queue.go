package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamvault/streamvault/internal/models"
)

// PGLeaseQueueService backs the `jobs` table with the standard
// Postgres FOR UPDATE SKIP LOCKED work-queue pattern, giving callers
// renew/complete/fail/cancel primitives that asynq's own lease model
// is too coarse to express.
type PGLeaseQueueService struct {
	db *sql.DB
}

func NewPGLeaseQueueService(db *sql.DB) *PGLeaseQueueService {
	return &PGLeaseQueueService{db: db}
}

var ErrNotFound = errors.New("orchestrator: job not found")

// Enqueue inserts a new job, or returns the existing job's ID if an
// un-terminated job with the same dedupe key already exists. The
// partial unique index on (type, dedupe_key) WHERE status NOT IN
// ('completed','dead_letter') does the conflict detection in one round
// trip; a follow-up SELECT resolves the winning row's ID on conflict.
func (q *PGLeaseQueueService) Enqueue(ctx context.Context, job models.FolderScanJob, priority models.JobPriority, dedupeKey models.DedupeKey) (models.JobID, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return models.JobID{}, fmt.Errorf("marshal folder scan payload: %w", err)
	}

	id := models.NewJobID()
	var returned uuid.UUID
	err = q.db.QueryRowContext(ctx, `
		INSERT INTO jobs (id, type, priority, status, payload, dedupe_key)
		VALUES ($1, $2, $3, 'pending', $4, $5)
		ON CONFLICT (type, dedupe_key) WHERE status NOT IN ('completed', 'dead_letter')
		DO NOTHING
		RETURNING id`,
		id, models.JobTypeFolderScan, priority, payload, int64(dedupeKey),
	).Scan(&returned)

	if errors.Is(err, sql.ErrNoRows) {
		var existing uuid.UUID
		selErr := q.db.QueryRowContext(ctx, `
			SELECT id FROM jobs
			WHERE type=$1 AND dedupe_key=$2 AND status NOT IN ('completed', 'dead_letter')
			ORDER BY created_at DESC LIMIT 1`,
			models.JobTypeFolderScan, int64(dedupeKey),
		).Scan(&existing)
		if selErr != nil {
			return models.JobID{}, fmt.Errorf("resolve conflicting job: %w", selErr)
		}
		return models.JobID(existing), nil
	}
	if err != nil {
		return models.JobID{}, fmt.Errorf("enqueue job: %w", err)
	}
	return models.JobID(returned), nil
}

// Dequeue leases the highest-priority, oldest pending job to owner for
// the given lease duration.
func (q *PGLeaseQueueService) Dequeue(ctx context.Context, owner string, lease time.Duration) (*models.Job, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE jobs SET status='leased', leased_by=$1, lease_expires_at=now()+$2, updated_at=now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status='pending'
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, type, priority, status, payload, attempts, max_attempts, leased_by, lease_expires_at, last_error, created_at, updated_at`,
		owner, lease,
	)
	return scanJob(row)
}

func (q *PGLeaseQueueService) Renew(ctx context.Context, jobID models.JobID, owner string, lease time.Duration) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET lease_expires_at=now()+$1, updated_at=now() WHERE id=$2 AND leased_by=$3 AND status IN ('leased','running')`,
		lease, jobID, owner,
	)
	return checkAffected(res, err)
}

func (q *PGLeaseQueueService) Complete(ctx context.Context, jobID models.JobID) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status='completed', updated_at=now() WHERE id=$1`, jobID)
	return checkAffected(res, err)
}

// Fail records a failed attempt. Retryable failures go back to pending
// for another dequeue, up to max_attempts; non-retryable or exhausted
// attempts move straight to dead_letter.
func (q *PGLeaseQueueService) Fail(ctx context.Context, jobID models.JobID, errMsg string, retryable bool) error {
	var attempts, maxAttempts int
	if err := q.db.QueryRowContext(ctx, "SELECT attempts, max_attempts FROM jobs WHERE id=$1", jobID).Scan(&attempts, &maxAttempts); err != nil {
		return fmt.Errorf("load job for failure accounting: %w", err)
	}

	attempts++
	status := "pending"
	if !retryable || attempts >= maxAttempts {
		status = "dead_letter"
	}

	res, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status=$1, attempts=$2, last_error=$3, leased_by=NULL, lease_expires_at=NULL, updated_at=now() WHERE id=$4`,
		status, attempts, errMsg, jobID,
	)
	return checkAffected(res, err)
}

func (q *PGLeaseQueueService) Cancel(ctx context.Context, jobID models.JobID) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status='dead_letter', last_error='cancelled', updated_at=now() WHERE id=$1 AND status NOT IN ('completed','dead_letter')`,
		jobID,
	)
	return checkAffected(res, err)
}

func (q *PGLeaseQueueService) QueueDepth(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs WHERE status IN ('pending','leased','running')").Scan(&n)
	return n, err
}

// ReapExpiredLeases resets any job whose lease has expired back to
// pending so another worker can pick it up. Called on a cron tick.
func (q *PGLeaseQueueService) ReapExpiredLeases(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status='pending', leased_by=NULL, lease_expires_at=NULL, updated_at=now()
		 WHERE status IN ('leased','running') AND lease_expires_at < now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("reap expired leases: %w", err)
	}
	return res.RowsAffected()
}

func scanJob(row *sql.Row) (*models.Job, error) {
	var j models.Job
	var leasedBy sql.NullString
	var leaseExpires sql.NullTime
	var lastError sql.NullString
	err := row.Scan(&j.ID, &j.Type, &j.Priority, &j.Status, &j.Payload, &j.Attempts, &j.MaxAttempts,
		&leasedBy, &leaseExpires, &lastError, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job row: %w", err)
	}
	if leasedBy.Valid {
		j.LeasedBy = &leasedBy.String
	}
	if leaseExpires.Valid {
		j.LeaseExpiresAt = &leaseExpires.Time
	}
	if lastError.Valid {
		j.LastError = &lastError.String
	}
	return &j, nil
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
