package models

import "time"

// LibraryType selects which media kinds a library may contain.
type LibraryType string

const (
	LibraryTypeMovies LibraryType = "movies"
	LibraryTypeShows   LibraryType = "shows"
)

// Library is a named collection of root paths scanned as a unit. Roots
// are ordered since RootID is a positional index into this slice
// rather than its own generated identifier — a root is identified by
// where it sits in the library's configuration, not by a surrogate key.
type Library struct {
	ID        LibraryID   `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Type      LibraryType `db:"type" json:"type"`
	RootPaths []string    `db:"-" json:"root_paths"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// Root returns the path at id, or "" if id is out of range.
func (l Library) Root(id RootID) string {
	if int(id) < 0 || int(id) >= len(l.RootPaths) {
		return ""
	}
	return l.RootPaths[id]
}

// WatchState is per-user, per-media playback progress.
type WatchState struct {
	UserID      UserID    `db:"user_id" json:"user_id"`
	MediaID     MediaID   `db:"media_id" json:"media_id"`
	PositionSec float64   `db:"position_sec" json:"position_sec"`
	DurationSec float64   `db:"duration_sec" json:"duration_sec"`
	Watched     bool      `db:"watched" json:"watched"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// FractionComplete returns PositionSec/DurationSec clamped to [0,1], or
// 0 if DurationSec is unknown.
func (w WatchState) FractionComplete() float64 {
	if w.DurationSec <= 0 {
		return 0
	}
	f := w.PositionSec / w.DurationSec
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
