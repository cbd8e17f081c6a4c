package models

import "time"

// DedupeKey is the fast-path hash used to recognize "this is the same
// folder scan we already have outstanding" without a database round
// trip. scanactor.DedupeKeyFor computes it as an xxhash64 of the
// library ID and the cleaned folder path, not of any file contents.
type DedupeKey uint64

// JobStatus tracks a queued unit of work through its lifecycle.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusLeased    JobStatus = "leased"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusDead      JobStatus = "dead_letter"
)

// JobPriority orders work within a queue. Higher values run first.
type JobPriority int

const (
	JobPriorityLow      JobPriority = 0
	JobPriorityNormal   JobPriority = 10
	JobPriorityHigh     JobPriority = 20
	JobPriorityUrgent   JobPriority = 30
)

// JobType names the kind of work a Job payload carries.
type JobType string

const (
	JobTypeFolderScan      JobType = "folder_scan"
	JobTypeBundleRebuild   JobType = "bundle_rebuild"
	JobTypeTranscode       JobType = "transcode"
	JobTypeMetadataRefresh JobType = "metadata_refresh"
)

// Job is the durable envelope persisted by a QueueService. Payload is
// opaque to the queue and interpreted by whichever worker handles
// Type.
type Job struct {
	ID          JobID       `db:"id" json:"id"`
	Type        JobType     `db:"type" json:"type"`
	Priority    JobPriority `db:"priority" json:"priority"`
	Status      JobStatus   `db:"status" json:"status"`
	Payload     []byte      `db:"payload" json:"-"`
	Attempts    int         `db:"attempts" json:"attempts"`
	MaxAttempts int         `db:"max_attempts" json:"max_attempts"`
	LeasedBy    *string     `db:"leased_by" json:"leased_by,omitempty"`
	LeaseExpiresAt *time.Time `db:"lease_expires_at" json:"lease_expires_at,omitempty"`
	LastError   *string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// FolderScanJob is the payload for JobTypeFolderScan: scan one
// directory (non-recursively, per the actor's depth-1 enumeration
// policy) within a library root.
type FolderScanJob struct {
	LibraryID LibraryID `json:"library_id"`
	RootID    RootID    `json:"root_id"`
	Path      string    `json:"path"`
	Reason    ScanReason `json:"reason"`
}

// ScanReason records why a folder was queued, for logging and for the
// actor's coalescing policy (a Bulk reason never gets superseded by a
// later FsEvent reason for the same path).
type ScanReason string

const (
	ScanReasonBulk        ScanReason = "bulk"
	ScanReasonMaintenance ScanReason = "maintenance"
	ScanReasonResume      ScanReason = "resume"
	ScanReasonFsEvent     ScanReason = "fs_event"

	// ScanReasonWatcherOverflow marks a folder re-scan forced by a
	// dropped filesystem event: the watcher's buffer overflowed and it
	// can no longer say precisely what changed, so the affected folder
	// (or the whole root, if even that's unknown) gets rescanned.
	ScanReasonWatcherOverflow ScanReason = "watcher_overflow"
	// ScanReasonHotChange marks a folder re-scan triggered by a
	// coalesced burst of create/modify/delete events the watcher did
	// manage to observe precisely.
	ScanReasonHotChange ScanReason = "hot_change"
)
