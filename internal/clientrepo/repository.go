package clientrepo

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/streamvault/streamvault/internal/models"
)

// Repository holds the decoded snapshot plus an in-session overlay of
// adds/modifies/deletes, exactly per the ordering rule: deleted always
// wins, added/modified override the snapshot, and a fresh snapshot
// load clears the overlay and index first.
type Repository struct {
	mu sync.RWMutex

	libraries      map[models.LibraryID]*DecodedLibrary
	librariesIndex []models.LibraryID
	mediaIDIndex   map[models.MediaID]models.LibraryID

	added    map[models.MediaID]models.Movie
	modified map[models.MediaID]models.Movie
	deleted  map[models.MediaID]struct{}
}

func New() *Repository {
	return &Repository{
		libraries:    make(map[models.LibraryID]*DecodedLibrary),
		mediaIDIndex: make(map[models.MediaID]models.LibraryID),
		added:        make(map[models.MediaID]models.Movie),
		modified:     make(map[models.MediaID]models.Movie),
		deleted:      make(map[models.MediaID]struct{}),
	}
}

// Clear drops the overlay and index before a fresh snapshot replaces
// the current one.
func (r *Repository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.libraries = make(map[models.LibraryID]*DecodedLibrary)
	r.librariesIndex = nil
	r.mediaIDIndex = make(map[models.MediaID]models.LibraryID)
	r.added = make(map[models.MediaID]models.Movie)
	r.modified = make(map[models.MediaID]models.Movie)
	r.deleted = make(map[models.MediaID]struct{})
}

// Load decodes a fresh archive buffer and rebuilds the index.
func (r *Repository) Load(archive []byte) error {
	r.Clear()

	if len(archive) < 4 {
		return fmt.Errorf("clientrepo: archive too short")
	}
	count := binary.BigEndian.Uint32(archive[0:4])
	offset := 4

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := uint32(0); i < count; i++ {
		if offset+4 > len(archive) {
			return fmt.Errorf("clientrepo: truncated archive at library %d", i)
		}
		recLen := binary.BigEndian.Uint32(archive[offset : offset+4])
		offset += 4
		if offset+int(recLen) > len(archive) {
			return fmt.Errorf("clientrepo: truncated library record %d", i)
		}
		rec := archive[offset : offset+int(recLen)]
		offset += int(recLen)

		decoded, err := DecodeLibrary(rec)
		if err != nil {
			return fmt.Errorf("decode library %d: %w", i, err)
		}
		r.libraries[decoded.Library.ID] = decoded
		r.librariesIndex = append(r.librariesIndex, decoded.Library.ID)
		for mediaID := range decoded.Movies {
			r.mediaIDIndex[mediaID] = decoded.Library.ID
		}
	}
	return nil
}

// Get resolves a media ID through the overlay first, then the
// snapshot. Deleted always wins even if the snapshot still has it.
func (r *Repository) Get(id models.MediaID) (models.Movie, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, gone := r.deleted[id]; gone {
		return models.Movie{}, false
	}
	if m, ok := r.modified[id]; ok {
		return m, true
	}
	if m, ok := r.added[id]; ok {
		return m, true
	}

	libID, ok := r.mediaIDIndex[id]
	if !ok {
		return models.Movie{}, false
	}
	lib, ok := r.libraries[libID]
	if !ok {
		return models.Movie{}, false
	}
	m, ok := lib.Movies[id]
	return m, ok
}

// GetBorrowed returns a zero-copy view over a movie still backed by
// the snapshot (not present in the overlay). Overlay entries have no
// raw byte span to borrow from, so callers needing overlay-aware
// reads should use Get instead.
func (r *Repository) GetBorrowed(id models.MediaID) (BorrowedMovie, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, gone := r.deleted[id]; gone {
		return BorrowedMovie{}, false
	}
	if _, overridden := r.modified[id]; overridden {
		return BorrowedMovie{}, false
	}
	if _, overridden := r.added[id]; overridden {
		return BorrowedMovie{}, false
	}

	libID, ok := r.mediaIDIndex[id]
	if !ok {
		return BorrowedMovie{}, false
	}
	lib, ok := r.libraries[libID]
	if !ok {
		return BorrowedMovie{}, false
	}
	raw, ok := lib.movieBytes[id]
	if !ok {
		return BorrowedMovie{}, false
	}
	return NewBorrowedMovie(raw), true
}

func (r *Repository) Add(m models.Movie) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := models.MediaID(m.ID)
	delete(r.deleted, id)
	r.added[id] = m
}

func (r *Repository) Modify(m models.Movie) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := models.MediaID(m.ID)
	delete(r.deleted, id)
	r.modified[id] = m
}

func (r *Repository) Delete(id models.MediaID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.added, id)
	delete(r.modified, id)
	r.deleted[id] = struct{}{}
}

// Libraries returns the ordered list of library IDs present in the
// current snapshot.
func (r *Repository) Libraries() []models.LibraryID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.LibraryID, len(r.librariesIndex))
	copy(out, r.librariesIndex)
	return out
}
