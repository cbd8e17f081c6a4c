package scanactor

import (
	"sync"

	"github.com/streamvault/streamvault/internal/models"
)

// Manager owns one Actor goroutine per library and routes commands and
// completion callbacks to the right one, satisfying both
// internal/watcher.ActorRouter and the JobCompleted/JobFailed half of
// the orchestrator feedback loop. Grounded on the single-map-plus-mutex
// registry idiom already used by internal/bundlecache.Cache for its
// per-library state.
type Manager struct {
	mu     sync.Mutex
	actors map[models.LibraryID]*Actor
}

func NewManager() *Manager {
	return &Manager{actors: make(map[models.LibraryID]*Actor)}
}

// Register starts a new actor for a library and begins processing its
// command channel in its own goroutine. Calling Register twice for the
// same library replaces the old entry without stopping its goroutine -
// callers are expected to Register once per process lifetime, at
// startup.
func (m *Manager) Register(a *Actor) {
	m.mu.Lock()
	m.actors[a.LibraryID] = a
	m.mu.Unlock()
	go a.Run()
}

// Send implements watcher.ActorRouter.
func (m *Manager) Send(libraryID models.LibraryID, cmd Command) {
	m.mu.Lock()
	a, ok := m.actors[libraryID]
	m.mu.Unlock()
	if ok {
		a.Send(cmd)
	}
}

// NotifyCompleted/NotifyFailed fan a scan worker's outcome for one job
// back into the actor that issued it, across every registered library -
// cheap enough at this scale since a dedupe key hashes the library ID
// together with the cleaned folder path (DedupeKeyFor), so only the
// owning actor's activeFolderScans map will actually contain the key.
func (m *Manager) NotifyCompleted(jobID models.JobID, dedupeKey models.DedupeKey) {
	m.broadcast(JobCompletedCmd{JobID: jobID, DedupeKey: dedupeKey})
}

func (m *Manager) NotifyFailed(jobID models.JobID, dedupeKey models.DedupeKey, retryable bool, err error) {
	m.broadcast(JobFailedCmd{JobID: jobID, DedupeKey: dedupeKey, Retryable: retryable, Err: err})
}

func (m *Manager) broadcast(cmd Command) {
	m.mu.Lock()
	actors := make([]*Actor, 0, len(m.actors))
	for _, a := range m.actors {
		actors = append(actors, a)
	}
	m.mu.Unlock()
	for _, a := range actors {
		a.Send(cmd)
	}
}

// Shutdown stops every registered actor's goroutine.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.actors {
		a.Send(ShutdownCmd{})
	}
}
