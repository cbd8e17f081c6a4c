// Package watcher monitors library root folders for filesystem
// changes and feeds them into the matching library actor's command
// channel, debounced the same way CineVault's single-shot callback
// watcher always did.
package watcher

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/scanactor"
)

// LibraryProvider supplies the set of libraries whose roots should be
// watched. It is satisfied by whatever repository layer backs
// libraries; the watcher itself has no opinion on storage.
type LibraryProvider interface {
	ListLibraries() ([]models.Library, error)
}

// ActorRouter hands a command to the actor owning a given library.
type ActorRouter interface {
	Send(libraryID models.LibraryID, cmd scanactor.Command)
}

// Watcher monitors library folders for filesystem changes.
type Watcher struct {
	libraries LibraryProvider
	router    ActorRouter
	fsw       *fsnotify.Watcher

	mu           sync.Mutex
	watched      map[string]watchedRoot // folder path -> owning library/root
	libraryRoots map[string]watchedRoot // top-level library roots only, for overflow fan-out
	debounce     map[string][]scanactor.FsEvent
	flush        map[string]*time.Timer
	stop         chan struct{}
}

type watchedRoot struct {
	libraryID models.LibraryID
	rootID    models.RootID
}

// New creates a filesystem watcher.
func New(libraries LibraryProvider, router ActorRouter) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		libraries:    libraries,
		router:       router,
		fsw:          fw,
		watched:      make(map[string]watchedRoot),
		libraryRoots: make(map[string]watchedRoot),
		debounce:     make(map[string][]scanactor.FsEvent),
		flush:        make(map[string]*time.Timer),
		stop:         make(chan struct{}),
	}, nil
}

// Start begins watching all libraries and processes events.
func (w *Watcher) Start() {
	go w.eventLoop()
	w.Refresh()
	log.Println("[watcher] filesystem watcher started")
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.stop)
	w.fsw.Close()
}

// Refresh reloads watched library root folders.
func (w *Watcher) Refresh() {
	libs, err := w.libraries.ListLibraries()
	if err != nil {
		log.Printf("[watcher] error loading libraries: %v", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	desired := make(map[string]watchedRoot)
	for _, lib := range libs {
		for i, root := range lib.RootPaths {
			desired[root] = watchedRoot{libraryID: lib.ID, rootID: models.RootID(i)}
		}
	}
	w.libraryRoots = desired

	for p := range w.watched {
		if _, ok := desired[p]; !ok {
			w.fsw.Remove(p)
			delete(w.watched, p)
		}
	}

	for p, wr := range desired {
		if _, ok := w.watched[p]; ok {
			continue
		}
		if err := w.addRecursive(p, wr); err != nil {
			log.Printf("[watcher] error adding %s: %v", p, err)
		}
	}

	log.Printf("[watcher] watching %d roots across %d libraries", len(w.watched), len(libs))
}

func (w *Watcher) addRecursive(root string, wr watchedRoot) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip inaccessible dirs
		}
		if info.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return nil
			}
			w.watched[path] = wr
		}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.handleOverflow()
				continue
			}
			log.Printf("[watcher] error: %v", err)
		case <-w.stop:
			return
		}
	}
}

const debounceWindow = 1 * time.Second

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".part") {
		return
	}

	isCreate := event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
	isRemove := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	if !isCreate && !isRemove {
		return
	}

	if isCreate {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if wr, ok := w.resolveRoot(event.Name); ok {
				w.mu.Lock()
				w.fsw.Add(event.Name)
				w.watched[event.Name] = wr
				w.mu.Unlock()
			}
			return
		}
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if !isMediaExtension(ext) {
		return
	}

	wr, ok := w.resolveRoot(event.Name)
	if !ok {
		return
	}

	w.mu.Lock()
	key := wr.libraryID.String()
	w.debounce[key] = append(w.debounce[key], scanactor.FsEvent{
		Path:     event.Name,
		IsCreate: isCreate,
		IsRemove: isRemove && !isCreate,
	})
	if timer, exists := w.flush[key]; exists {
		timer.Stop()
	}
	w.flush[key] = time.AfterFunc(debounceWindow, func() { w.flushLibrary(wr) })
	w.mu.Unlock()
}

func (w *Watcher) flushLibrary(wr watchedRoot) {
	w.mu.Lock()
	key := wr.libraryID.String()
	events := w.debounce[key]
	delete(w.debounce, key)
	delete(w.flush, key)
	w.mu.Unlock()

	if len(events) == 0 {
		return
	}
	w.router.Send(wr.libraryID, scanactor.FsEventsCmd{
		RootID: wr.rootID,
		Events: events,
	})
}

// handleOverflow fans a dropped-events notification out to every
// watched library root as a single IsOverflow event, since fsnotify's
// queue overflow is process-wide and carries no indication of which
// root lost events.
func (w *Watcher) handleOverflow() {
	w.mu.Lock()
	roots := make(map[string]watchedRoot, len(w.libraryRoots))
	for p, wr := range w.libraryRoots {
		roots[p] = wr
	}
	w.mu.Unlock()

	log.Printf("[watcher] event queue overflowed, forcing a rescan of %d root(s)", len(roots))
	for path, wr := range roots {
		w.router.Send(wr.libraryID, scanactor.FsEventsCmd{
			RootID: wr.rootID,
			Events: []scanactor.FsEvent{{Path: path, IsOverflow: true}},
		})
	}
}

func (w *Watcher) resolveRoot(path string) (watchedRoot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(path)
	for dir != "/" && dir != "." {
		if wr, ok := w.watched[dir]; ok {
			return wr, true
		}
		dir = filepath.Dir(dir)
	}
	return watchedRoot{}, false
}

func isMediaExtension(ext string) bool {
	media := map[string]bool{
		".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
		".m4v": true, ".wmv": true, ".flv": true, ".webm": true,
		".ts": true, ".m2ts": true, ".mpg": true, ".mpeg": true,
	}
	return media[ext]
}
