package scanactor

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/streamvault/streamvault/internal/models"
)

// IssuedJobRecord tracks one outstanding folder-scan job the actor has
// handed to the orchestrator but not yet heard back about.
type IssuedJobRecord struct {
	JobID         models.JobID
	Folder        string
	CorrelationID string
}

// RootState tracks per-root scan progress.
type RootState struct {
	LastScanAt  int64
	IsWatching  bool
}

// Actor owns all mutable state for one library and processes commands
// one at a time off its channel, exactly like internal/watcher.Watcher's
// single eventLoop goroutine.
type Actor struct {
	LibraryID models.LibraryID
	Roots     []string
	MaxOutstanding int

	sink EnqueueSink

	commands chan Command

	outstandingJobs    map[models.DedupeKey]IssuedJobRecord
	roots              map[models.RootID]*RootState
	activeFolderScans  map[models.DedupeKey]struct{}
	currentCorrelation *string
	isPaused           bool
	isBulkScanning     bool

	warnings int
}

// New constructs an Actor for a library with the given root paths. The
// actor does not start processing until Run is called in its own
// goroutine.
func New(libraryID models.LibraryID, roots []string, maxOutstanding int, sink EnqueueSink) *Actor {
	rootStates := make(map[models.RootID]*RootState, len(roots))
	for i := range roots {
		rootStates[models.RootID(i)] = &RootState{}
	}
	return &Actor{
		LibraryID:         libraryID,
		Roots:             roots,
		MaxOutstanding:    maxOutstanding,
		sink:              sink,
		commands:          make(chan Command, 256),
		outstandingJobs:   make(map[models.DedupeKey]IssuedJobRecord),
		roots:             rootStates,
		activeFolderScans: make(map[models.DedupeKey]struct{}),
	}
}

// Send enqueues a command for processing. It blocks only if the
// actor's channel is full, which signals a genuinely overloaded actor.
func (a *Actor) Send(cmd Command) { a.commands <- cmd }

// Run processes commands until a ShutdownCmd is received or the
// channel is closed.
func (a *Actor) Run() {
	for cmd := range a.commands {
		if a.handle(cmd) {
			return
		}
	}
}

func (a *Actor) handle(cmd Command) (shutdown bool) {
	switch c := cmd.(type) {
	case StartCmd:
		a.start(c)
	case FsEventsCmd:
		a.fsEvents(c)
	case JobCompletedCmd:
		delete(a.outstandingJobs, c.DedupeKey)
		delete(a.activeFolderScans, c.DedupeKey)
	case JobFailedCmd:
		delete(a.outstandingJobs, c.DedupeKey)
		delete(a.activeFolderScans, c.DedupeKey)
		if !c.Retryable {
			log.Printf("[scanactor] library=%s job=%s permanently failed: %v", a.LibraryID, c.JobID, c.Err)
		}
	case PauseCmd:
		a.isPaused = true
	case ResumeCmd:
		a.isPaused = false
	case ShutdownCmd:
		return true
	}
	return false
}

func (a *Actor) start(c StartCmd) {
	a.currentCorrelation = &c.CorrelationID
	switch c.Mode {
	case ModeBulk:
		a.isBulkScanning = true
		for rootID, root := range a.Roots {
			a.seedRoot(models.RootID(rootID), root, c.CorrelationID)
		}
		a.isBulkScanning = false
	case ModeMaintenance, ModeResume:
		for _, state := range a.roots {
			state.IsWatching = true
		}
	}
}

// seedRoot enumerates one root non-recursively (depth-1) and emits a
// bulk-priority scan per child directory, skipping dot-prefixed and
// unreadable entries. Failures here are logged, never fatal — a single
// unreadable root must not abort the whole library start.
func (a *Actor) seedRoot(rootID models.RootID, root string, correlationID string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		a.warnings++
		log.Printf("[scanactor] library=%s root=%s unreadable: %v", a.LibraryID, root, err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		folder := filepath.Join(root, entry.Name())
		a.emitFolderScan(rootID, folder, models.JobPriorityHigh, models.ScanReasonBulk, nil, correlationID, true)
	}
	if state, ok := a.roots[rootID]; ok {
		state.IsWatching = true
	}
}

func (a *Actor) fsEvents(c FsEventsCmd) {
	if a.isBulkScanning {
		return
	}

	correlation := a.resolveCorrelation(c)

	var overflow, changes []FsEvent
	for _, ev := range c.Events {
		if ev.IsOverflow {
			overflow = append(overflow, ev)
		} else {
			changes = append(changes, ev)
		}
	}

	if len(overflow) > 0 {
		a.handleOverflow(c.RootID, overflow, correlation)
	}
	a.handleChanges(c.RootID, changes, correlation)
}

// resolveCorrelation picks a correlation id for a batch of fs events:
// an explicit id on the command wins, then the first event that
// carries one, then whatever correlation the actor's last Start call
// recorded. Real watcher-driven batches usually hit the last case.
func (a *Actor) resolveCorrelation(c FsEventsCmd) string {
	if c.CorrelationID != "" {
		return c.CorrelationID
	}
	for _, ev := range c.Events {
		if ev.CorrelationID != "" {
			return ev.CorrelationID
		}
	}
	if a.currentCorrelation != nil {
		return *a.currentCorrelation
	}
	return ""
}

// handleOverflow folds a watcher-buffer overflow into one P0 enqueue
// per distinct folder the overflow events named, falling back to the
// root itself when none of them carried a usable path — fsnotify
// overflows often arrive with no detail about what actually changed.
func (a *Actor) handleOverflow(rootID models.RootID, events []FsEvent, correlation string) {
	folders := map[string]struct{}{}
	for _, ev := range events {
		if ev.Path == "" {
			continue
		}
		folders[filepath.Clean(ev.Path)] = struct{}{}
	}
	if len(folders) == 0 {
		if root := a.rootPath(rootID); root != "" {
			folders[filepath.Clean(root)] = struct{}{}
		}
	}
	for folder := range folders {
		a.emitFolderScan(rootID, folder, models.JobPriorityUrgent, models.ScanReasonWatcherOverflow, nil, correlation, false)
	}
}

// handleChanges coalesces a burst of precisely-observed create/modify/
// delete events by parent directory. Only a path's directory-ness or
// media extension decides whether it's scan-worthy; a deleted media
// file still needs its folder rescanned so the next pass notices it's
// gone. Any event whose path is neither an existing directory nor a
// media file is dropped here, whatever kind of change it reports.
func (a *Actor) handleChanges(rootID models.RootID, events []FsEvent, correlation string) {
	seen := map[string]struct{}{}
	for _, ev := range events {
		if !a.isScanWorthy(ev.Path) {
			continue
		}
		parent := filepath.Dir(ev.Path)
		if _, already := seen[parent]; already {
			continue
		}
		seen[parent] = struct{}{}
		a.emitFolderScan(rootID, parent, models.JobPriorityUrgent, models.ScanReasonHotChange, nil, correlation, false)
	}
}

func (a *Actor) rootPath(rootID models.RootID) string {
	if int(rootID) >= 0 && int(rootID) < len(a.Roots) {
		return a.Roots[rootID]
	}
	return ""
}

// isScanWorthy reports whether a changed path should trigger a folder
// rescan: either the path is still a directory (new/removed
// subfolders change what a scan will find) or its extension matches a
// recognized media file, in which case its removal matters just as
// much as its creation.
func (a *Actor) isScanWorthy(path string) bool {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return true
	}
	return isMediaExtension(strings.ToLower(filepath.Ext(path)))
}

func isMediaExtension(ext string) bool {
	switch ext {
	case ".mp4", ".mkv", ".avi", ".mov", ".m4v", ".wmv", ".flv", ".webm", ".ts", ".m2ts", ".mpg", ".mpeg":
		return true
	default:
		return false
	}
}

// emitFolderScan applies the dedupe/throttle gate and, if it passes,
// hands an EnqueueFolderScan event to the sink. bypassThrottle is set
// only during a bulk seed, which never backs off regardless of
// MaxOutstanding.
func (a *Actor) emitFolderScan(rootID models.RootID, folder string, priority models.JobPriority, reason models.ScanReason, parent *string, correlationID string, bypassThrottle bool) {
	key := DedupeKeyFor(a.LibraryID, folder)

	if _, active := a.activeFolderScans[key]; active {
		return
	}
	if !bypassThrottle && len(a.activeFolderScans) >= a.MaxOutstanding {
		a.sink.Enqueue(JobThrottled{DedupeKey: key})
		return
	}

	a.activeFolderScans[key] = struct{}{}
	a.sink.Enqueue(EnqueueFolderScan{
		LibraryID:     a.LibraryID,
		RootID:        rootID,
		Folder:        folder,
		Priority:      priority,
		Reason:        reason,
		Parent:        parent,
		CorrelationID: correlationID,
		DedupeKey:     key,
	})
}

// DedupeKeyFor hashes a library+path pair into the fast-path equality
// key the actor's maps are keyed on.
func DedupeKeyFor(libraryID models.LibraryID, path string) models.DedupeKey {
	normalized := filepath.Clean(path)
	return models.DedupeKey(xxhash.Sum64String(libraryID.String() + "|" + normalized))
}
