// Package scanactor implements one actor goroutine per library: a
// single-threaded state machine that turns filesystem events and job
// completions into folder-scan work, deduplicating and throttling
// along the way. It is grounded on internal/watcher.Watcher's
// goroutine-owns-its-maps idiom, generalized to the full command/event
// set a library needs to track outstanding scan work.
package scanactor

import "github.com/streamvault/streamvault/internal/models"

// StartMode selects how Start seeds initial work.
type StartMode string

const (
	ModeBulk        StartMode = "bulk"
	ModeMaintenance StartMode = "maintenance"
	ModeResume      StartMode = "resume"
)

// Command is the sealed set of messages an actor accepts on its
// command channel. Only types in this file implement it.
type Command interface{ isCommand() }

type StartCmd struct {
	Mode          StartMode
	CorrelationID string
}

// FsEvent is one filesystem change, or a watcher-buffer overflow,
// folded into an FsEventsCmd. An overflow carries no reliable
// Create/Remove semantics — the watcher lost track of exactly what
// happened — so IsOverflow events should be read only for Path (which
// may itself be empty). CorrelationID is set only when the event's
// originator already had one to attach; most real filesystem events
// don't.
type FsEvent struct {
	Path          string
	IsCreate      bool
	IsRemove      bool
	IsOverflow    bool
	CorrelationID string
}

type FsEventsCmd struct {
	RootID        models.RootID
	Events        []FsEvent
	CorrelationID string
}

type JobCompletedCmd struct {
	JobID     models.JobID
	DedupeKey models.DedupeKey
}

type JobFailedCmd struct {
	JobID     models.JobID
	DedupeKey models.DedupeKey
	Retryable bool
	Err       error
}

type PauseCmd struct{}

type ResumeCmd struct{}

type ShutdownCmd struct{}

func (StartCmd) isCommand()        {}
func (FsEventsCmd) isCommand()     {}
func (JobCompletedCmd) isCommand() {}
func (JobFailedCmd) isCommand()    {}
func (PauseCmd) isCommand()        {}
func (ResumeCmd) isCommand()       {}
func (ShutdownCmd) isCommand()     {}
