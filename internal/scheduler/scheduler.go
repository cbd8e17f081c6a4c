// Package scheduler ticks a fixed-cadence periodic rescan of every
// library, grounded on internal/orchestrator's LeaseReaper cron usage
// rather than CineVault's per-library due-date ticker, since nothing
// in this catalog model tracks a per-library last-scanned timestamp.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/streamvault/streamvault/internal/models"
)

// LibraryLister supplies the libraries a rescan sweep should cover.
type LibraryLister interface {
	ListLibraries(ctx context.Context) ([]models.Library, error)
}

// OnScanDue is invoked once per library on every scheduled sweep.
type OnScanDue func(libraryID models.LibraryID)

// Scheduler sweeps every library on a fixed interval and re-triggers a
// scan for each, catching changes a filesystem watcher event missed.
type Scheduler struct {
	libs     LibraryLister
	callback OnScanDue
	cron     *cron.Cron
}

// New creates a scheduler that sweeps libraries hourly.
func New(libs LibraryLister, cb OnScanDue) *Scheduler {
	s := &Scheduler{libs: libs, callback: cb, cron: cron.New()}
	s.cron.AddFunc("@hourly", s.check)
	return s
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("[scheduler] periodic library rescan started (hourly)")
}

// Stop stops the scheduler, waiting for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	libs, err := s.libs.ListLibraries(ctx)
	if err != nil {
		log.Printf("[scheduler] error listing libraries: %v", err)
		return
	}

	for _, lib := range libs {
		log.Printf("[scheduler] sweeping library %q for rescan", lib.Name)
		s.callback(lib.ID)
	}
}
