package orchestrator

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/streamvault/streamvault/internal/models"
)

func TestEnqueueReturnsExistingJobOnDedupeConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	job := models.FolderScanJob{
		LibraryID: models.NewLibraryID(),
		Path:      "/media/movies/A",
		Reason:    models.ScanReasonBulk,
	}
	existing := uuid.New()

	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT id FROM jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(existing))

	q := NewPGLeaseQueueService(db)
	id, err := q.Enqueue(context.Background(), job, models.JobPriorityHigh, models.DedupeKey(42))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id != models.JobID(existing) {
		t.Fatalf("expected existing job id %s, got %s", existing, id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnqueueInsertsNewRowWhenNoConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	job := models.FolderScanJob{LibraryID: models.NewLibraryID(), Path: "/media/movies/B"}
	fresh := uuid.New()

	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(fresh))

	q := NewPGLeaseQueueService(db)
	id, err := q.Enqueue(context.Background(), job, models.JobPriorityNormal, models.DedupeKey(7))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id != models.JobID(fresh) {
		t.Fatalf("expected fresh job id %s, got %s", fresh, id)
	}
}

func TestFailRetriesUntilMaxAttemptsThenDeadLetters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	jobID := models.NewJobID()

	// First failure: attempts 0 -> 1, max 3, stays pending.
	mock.ExpectQuery("SELECT attempts, max_attempts FROM jobs").
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(0, 3))
	mock.ExpectExec("UPDATE jobs SET status=").
		WithArgs("pending", 1, "transient", jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	q := NewPGLeaseQueueService(db)
	if err := q.Fail(context.Background(), jobID, "transient", true); err != nil {
		t.Fatalf("Fail (retryable): %v", err)
	}

	// Final failure: attempts 2 -> 3 == max, dead-lettered.
	mock.ExpectQuery("SELECT attempts, max_attempts FROM jobs").
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(2, 3))
	mock.ExpectExec("UPDATE jobs SET status=").
		WithArgs("dead_letter", 3, "still failing", jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := q.Fail(context.Background(), jobID, "still failing", true); err != nil {
		t.Fatalf("Fail (exhausted): %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFailDeadLettersNonRetryableImmediately(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	jobID := models.NewJobID()
	mock.ExpectQuery("SELECT attempts, max_attempts FROM jobs").
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(0, 3))
	mock.ExpectExec("UPDATE jobs SET status=").
		WithArgs("dead_letter", 1, "bad input", jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	q := NewPGLeaseQueueService(db)
	if err := q.Fail(context.Background(), jobID, "bad input", false); err != nil {
		t.Fatalf("Fail (non-retryable): %v", err)
	}
}

func TestCancelReportsNotFoundWhenAlreadyTerminal(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	jobID := models.NewJobID()
	mock.ExpectExec("UPDATE jobs SET status='dead_letter'").
		WillReturnResult(sqlmock.NewResult(0, 0))

	q := NewPGLeaseQueueService(db)
	if err := q.Cancel(context.Background(), jobID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReapExpiredLeasesReturnsCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE jobs SET status='pending'").
		WillReturnResult(sqlmock.NewResult(0, 3))

	q := NewPGLeaseQueueService(db)
	n, err := q.ReapExpiredLeases(context.Background())
	if err != nil {
		t.Fatalf("ReapExpiredLeases: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 reaped leases, got %d", n)
	}
}
