package scanactor

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/streamvault/streamvault/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Enqueue(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestBulkSeedEmitsOnePerChildDirectory(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"Movie A (2020)", "Movie B (2021)", ".hidden"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "not-a-dir.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	sink := &recordingSink{}
	libID := models.NewLibraryID()
	a := New(libID, []string{root}, 64, sink)
	a.start(StartCmd{Mode: ModeBulk, CorrelationID: "corr-1"})

	events := sink.snapshot()
	var scans int
	for _, e := range events {
		if fs, ok := e.(EnqueueFolderScan); ok {
			scans++
			if fs.Reason != models.ScanReasonBulk {
				t.Errorf("expected bulk reason, got %s", fs.Reason)
			}
			if fs.Priority != models.JobPriorityHigh {
				t.Errorf("expected high priority for bulk seed, got %v", fs.Priority)
			}
			if fs.CorrelationID != "corr-1" {
				t.Errorf("expected start correlation corr-1 on bulk seed, got %q", fs.CorrelationID)
			}
		}
	}
	if scans != 2 {
		t.Fatalf("expected 2 folder scans (dotfile and plain file skipped), got %d", scans)
	}
}

func TestFsEventsCoalesceByParentDirectory(t *testing.T) {
	sink := &recordingSink{}
	libID := models.NewLibraryID()
	a := New(libID, []string{"/media/movies"}, 64, sink)

	a.fsEvents(FsEventsCmd{
		RootID: 0,
		Events: []FsEvent{
			{Path: "/media/movies/Foo/a.mkv", IsCreate: true},
			{Path: "/media/movies/Foo/b.mkv", IsCreate: true},
			{Path: "/media/movies/Bar/c.mkv", IsCreate: true},
		},
		CorrelationID: "corr-2",
	})

	events := sink.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 coalesced folder scans, got %d: %+v", len(events), events)
	}
}

func TestFsEventsDropsSelfWrittenImageButKeepsDeletedMediaFile(t *testing.T) {
	sink := &recordingSink{}
	a := New(models.NewLibraryID(), []string{"/media/movies"}, 64, sink)

	a.fsEvents(FsEventsCmd{
		RootID: 0,
		Events: []FsEvent{
			{Path: "/media/movies/Foo/poster.jpg", IsCreate: true},
			{Path: "/media/movies/Foo/c.mkv", IsRemove: true},
		},
		CorrelationID: "corr-3",
	})

	var scans []EnqueueFolderScan
	for _, e := range sink.snapshot() {
		if fs, ok := e.(EnqueueFolderScan); ok {
			scans = append(scans, fs)
		}
	}
	if len(scans) != 1 {
		t.Fatalf("expected exactly 1 folder scan (image dropped, delete kept), got %d", len(scans))
	}
	if scans[0].Reason != models.ScanReasonHotChange {
		t.Errorf("expected HotChange reason, got %s", scans[0].Reason)
	}
	if scans[0].Priority != models.JobPriorityUrgent {
		t.Errorf("expected P0 priority for a hot change, got %v", scans[0].Priority)
	}
}

func TestFsEventsOverflowFallsBackToNormalizedRoot(t *testing.T) {
	sink := &recordingSink{}
	a := New(models.NewLibraryID(), []string{"/L"}, 64, sink)

	a.fsEvents(FsEventsCmd{
		RootID: 0,
		Events: []FsEvent{{Path: "/L/", IsOverflow: true}},
	})

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 enqueue for the overflow, got %d: %+v", len(events), events)
	}
	fs, ok := events[0].(EnqueueFolderScan)
	if !ok {
		t.Fatalf("expected EnqueueFolderScan, got %T", events[0])
	}
	if fs.Reason != models.ScanReasonWatcherOverflow {
		t.Errorf("expected WatcherOverflow reason, got %s", fs.Reason)
	}
	if fs.Priority != models.JobPriorityUrgent {
		t.Errorf("expected P0 priority for an overflow, got %v", fs.Priority)
	}
	if fs.Folder != "/L" {
		t.Errorf("expected folder to normalize to the root, got %q", fs.Folder)
	}
}

func TestFsEventsOverflowWithNoPathFallsBackToRoot(t *testing.T) {
	sink := &recordingSink{}
	a := New(models.NewLibraryID(), []string{"/L"}, 64, sink)

	a.fsEvents(FsEventsCmd{
		RootID: 0,
		Events: []FsEvent{{IsOverflow: true}},
	})

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 enqueue, got %d: %+v", len(events), events)
	}
	fs := events[0].(EnqueueFolderScan)
	if fs.Folder != "/L" {
		t.Errorf("expected fallback to root, got %q", fs.Folder)
	}
}

func TestFsEventsCorrelationFallsBackToCurrentCorrelation(t *testing.T) {
	sink := &recordingSink{}
	a := New(models.NewLibraryID(), []string{"/media/movies"}, 64, sink)
	a.start(StartCmd{Mode: ModeMaintenance, CorrelationID: "from-start"})

	a.fsEvents(FsEventsCmd{
		RootID: 0,
		Events: []FsEvent{{Path: "/media/movies/Foo/a.mkv", IsCreate: true}},
	})

	fs := sink.snapshot()[0].(EnqueueFolderScan)
	if fs.CorrelationID != "from-start" {
		t.Errorf("expected correlation to fall back to the last Start's correlation, got %q", fs.CorrelationID)
	}
}

func TestFsEventsEventCarriedCorrelationUsedWhenCommandOmitsOne(t *testing.T) {
	sink := &recordingSink{}
	a := New(models.NewLibraryID(), []string{"/media/movies"}, 64, sink)

	a.fsEvents(FsEventsCmd{
		RootID: 0,
		Events: []FsEvent{{Path: "/media/movies/Foo/a.mkv", IsCreate: true, CorrelationID: "from-event"}},
	})

	fs := sink.snapshot()[0].(EnqueueFolderScan)
	if fs.CorrelationID != "from-event" {
		t.Errorf("expected correlation to fall back to the event-carried value, got %q", fs.CorrelationID)
	}
}

func TestFsEventsIgnoredDuringBulkScan(t *testing.T) {
	sink := &recordingSink{}
	a := New(models.NewLibraryID(), []string{"/media/movies"}, 64, sink)
	a.isBulkScanning = true

	a.fsEvents(FsEventsCmd{Events: []FsEvent{{Path: "/media/movies/Foo/a.mkv", IsCreate: true}}})

	if len(sink.snapshot()) != 0 {
		t.Fatalf("expected no events emitted while bulk scanning")
	}
}

func TestThrottleGateBlocksNonBulkReasonsOnly(t *testing.T) {
	sink := &recordingSink{}
	a := New(models.NewLibraryID(), []string{"/media/movies"}, 1, sink)

	a.emitFolderScan(0, "/media/movies/A", models.JobPriorityNormal, models.ScanReasonFsEvent, nil, "c", false)
	a.emitFolderScan(0, "/media/movies/B", models.JobPriorityNormal, models.ScanReasonFsEvent, nil, "c", false)

	events := sink.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 events (1 enqueue + 1 throttle), got %d", len(events))
	}
	if _, ok := events[1].(JobThrottled); !ok {
		t.Fatalf("expected second event to be JobThrottled, got %T", events[1])
	}
}

func TestJobCompletedFreesSlotForRetry(t *testing.T) {
	sink := &recordingSink{}
	a := New(models.NewLibraryID(), []string{"/media/movies"}, 1, sink)

	a.emitFolderScan(0, "/media/movies/A", models.JobPriorityNormal, models.ScanReasonFsEvent, nil, "c", false)
	key := DedupeKeyFor(a.LibraryID, "/media/movies/A")
	a.handle(JobCompletedCmd{DedupeKey: key})

	a.emitFolderScan(0, "/media/movies/B", models.JobPriorityNormal, models.ScanReasonFsEvent, nil, "c", false)

	events := sink.snapshot()
	var scans int
	for _, e := range events {
		if _, ok := e.(EnqueueFolderScan); ok {
			scans++
		}
	}
	if scans != 2 {
		t.Fatalf("expected both scans to succeed after the first completed, got %d scans in %+v", scans, events)
	}
}

func TestDedupeKeyForIsStableAndDistinguishesLibraries(t *testing.T) {
	a := DedupeKeyFor(models.NewLibraryID(), "/media/movies/Foo")
	b := DedupeKeyFor(models.NewLibraryID(), "/media/movies/Foo")
	if a == b {
		t.Fatalf("expected distinct libraries to produce distinct dedupe keys")
	}

	lib := models.NewLibraryID()
	if DedupeKeyFor(lib, "/media/movies/Foo") != DedupeKeyFor(lib, "/media/movies/Foo") {
		t.Fatalf("expected the same library+path to hash stably")
	}
	if DedupeKeyFor(lib, "/media/movies/Foo/") != DedupeKeyFor(lib, "/media/movies/Foo") {
		t.Fatalf("expected trailing slash to normalize to the same key")
	}
}
