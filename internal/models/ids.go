// Package models defines the media identity model: strongly-typed IDs,
// the hierarchical media sum type, file descriptors, watch state, jobs,
// and libraries shared across the rest of the system.
package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// RootID indexes into a Library's ordered RootPaths.
type RootID int

// LibraryID identifies a library.
type LibraryID uuid.UUID

// MovieID identifies a movie.
type MovieID uuid.UUID

// SeriesID identifies a series.
type SeriesID uuid.UUID

// SeasonID identifies a season.
type SeasonID uuid.UUID

// EpisodeID identifies an episode.
type EpisodeID uuid.UUID

// MediaFileID identifies a file descriptor.
type MediaFileID uuid.UUID

// JobID identifies a queued job.
type JobID uuid.UUID

// UserID identifies a user.
type UserID uuid.UUID

// DeviceID identifies a registered device.
type DeviceID uuid.UUID

// MediaID is a type-erased identifier for any Media variant, used by
// indexes that need to key on "whatever the concrete kind is" (e.g. the
// client repository's media_id_index). It always wraps one of the
// concrete ID kinds above but carries no kind information itself —
// callers that need the kind back consult the Media.Kind tag.
type MediaID uuid.UUID

// NewLibraryID generates a fresh LibraryID.
func NewLibraryID() LibraryID { return LibraryID(uuid.New()) }

// NewMovieID generates a fresh MovieID.
func NewMovieID() MovieID { return MovieID(uuid.New()) }

// NewSeriesID generates a fresh SeriesID.
func NewSeriesID() SeriesID { return SeriesID(uuid.New()) }

// NewSeasonID generates a fresh SeasonID.
func NewSeasonID() SeasonID { return SeasonID(uuid.New()) }

// NewEpisodeID generates a fresh EpisodeID.
func NewEpisodeID() EpisodeID { return EpisodeID(uuid.New()) }

// NewMediaFileID generates a fresh MediaFileID.
func NewMediaFileID() MediaFileID { return MediaFileID(uuid.New()) }

// NewJobID generates a fresh JobID.
func NewJobID() JobID { return JobID(uuid.New()) }

// NewUserID generates a fresh UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewDeviceID generates a fresh DeviceID.
func NewDeviceID() DeviceID { return DeviceID(uuid.New()) }

func (id LibraryID) String() string   { return uuid.UUID(id).String() }
func (id MovieID) String() string     { return uuid.UUID(id).String() }
func (id SeriesID) String() string    { return uuid.UUID(id).String() }
func (id SeasonID) String() string    { return uuid.UUID(id).String() }
func (id EpisodeID) String() string   { return uuid.UUID(id).String() }
func (id MediaFileID) String() string { return uuid.UUID(id).String() }
func (id JobID) String() string       { return uuid.UUID(id).String() }
func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id DeviceID) String() string    { return uuid.UUID(id).String() }
func (id MediaID) String() string     { return uuid.UUID(id).String() }

func (id LibraryID) MarshalJSON() ([]byte, error)   { return marshalID(uuid.UUID(id)) }
func (id MovieID) MarshalJSON() ([]byte, error)     { return marshalID(uuid.UUID(id)) }
func (id SeriesID) MarshalJSON() ([]byte, error)    { return marshalID(uuid.UUID(id)) }
func (id SeasonID) MarshalJSON() ([]byte, error)    { return marshalID(uuid.UUID(id)) }
func (id EpisodeID) MarshalJSON() ([]byte, error)   { return marshalID(uuid.UUID(id)) }
func (id MediaFileID) MarshalJSON() ([]byte, error) { return marshalID(uuid.UUID(id)) }
func (id JobID) MarshalJSON() ([]byte, error)       { return marshalID(uuid.UUID(id)) }
func (id UserID) MarshalJSON() ([]byte, error)      { return marshalID(uuid.UUID(id)) }
func (id DeviceID) MarshalJSON() ([]byte, error)    { return marshalID(uuid.UUID(id)) }
func (id MediaID) MarshalJSON() ([]byte, error)     { return marshalID(uuid.UUID(id)) }

func marshalID(u uuid.UUID) ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

func (id *LibraryID) UnmarshalJSON(b []byte) error   { return unmarshalID(b, (*uuid.UUID)(id)) }
func (id *MovieID) UnmarshalJSON(b []byte) error     { return unmarshalID(b, (*uuid.UUID)(id)) }
func (id *SeriesID) UnmarshalJSON(b []byte) error    { return unmarshalID(b, (*uuid.UUID)(id)) }
func (id *SeasonID) UnmarshalJSON(b []byte) error    { return unmarshalID(b, (*uuid.UUID)(id)) }
func (id *EpisodeID) UnmarshalJSON(b []byte) error   { return unmarshalID(b, (*uuid.UUID)(id)) }
func (id *MediaFileID) UnmarshalJSON(b []byte) error { return unmarshalID(b, (*uuid.UUID)(id)) }
func (id *JobID) UnmarshalJSON(b []byte) error       { return unmarshalID(b, (*uuid.UUID)(id)) }
func (id *UserID) UnmarshalJSON(b []byte) error      { return unmarshalID(b, (*uuid.UUID)(id)) }
func (id *DeviceID) UnmarshalJSON(b []byte) error    { return unmarshalID(b, (*uuid.UUID)(id)) }
func (id *MediaID) UnmarshalJSON(b []byte) error     { return unmarshalID(b, (*uuid.UUID)(id)) }

func unmarshalID(b []byte, dst *uuid.UUID) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("parse id %q: %w", s, err)
	}
	*dst = parsed
	return nil
}

// Value/Scan implementations let the ID newtypes be used directly as
// database/sql query args and scan targets against lib/pq uuid columns.

func (id LibraryID) Value() (driver.Value, error)   { return uuid.UUID(id).String(), nil }
func (id MovieID) Value() (driver.Value, error)     { return uuid.UUID(id).String(), nil }
func (id SeriesID) Value() (driver.Value, error)    { return uuid.UUID(id).String(), nil }
func (id SeasonID) Value() (driver.Value, error)    { return uuid.UUID(id).String(), nil }
func (id EpisodeID) Value() (driver.Value, error)   { return uuid.UUID(id).String(), nil }
func (id MediaFileID) Value() (driver.Value, error) { return uuid.UUID(id).String(), nil }
func (id JobID) Value() (driver.Value, error)       { return uuid.UUID(id).String(), nil }
func (id UserID) Value() (driver.Value, error)      { return uuid.UUID(id).String(), nil }
func (id DeviceID) Value() (driver.Value, error)    { return uuid.UUID(id).String(), nil }
func (id MediaID) Value() (driver.Value, error)     { return uuid.UUID(id).String(), nil }

func (id *LibraryID) Scan(src interface{}) error   { return scanID(src, (*uuid.UUID)(id)) }
func (id *MovieID) Scan(src interface{}) error     { return scanID(src, (*uuid.UUID)(id)) }
func (id *SeriesID) Scan(src interface{}) error    { return scanID(src, (*uuid.UUID)(id)) }
func (id *SeasonID) Scan(src interface{}) error    { return scanID(src, (*uuid.UUID)(id)) }
func (id *EpisodeID) Scan(src interface{}) error   { return scanID(src, (*uuid.UUID)(id)) }
func (id *MediaFileID) Scan(src interface{}) error { return scanID(src, (*uuid.UUID)(id)) }
func (id *JobID) Scan(src interface{}) error       { return scanID(src, (*uuid.UUID)(id)) }
func (id *UserID) Scan(src interface{}) error      { return scanID(src, (*uuid.UUID)(id)) }
func (id *DeviceID) Scan(src interface{}) error    { return scanID(src, (*uuid.UUID)(id)) }
func (id *MediaID) Scan(src interface{}) error     { return scanID(src, (*uuid.UUID)(id)) }

func scanID(src interface{}, dst *uuid.UUID) error {
	switch v := src.(type) {
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		*dst = parsed
		return nil
	case []byte:
		parsed, err := uuid.ParseBytes(v)
		if err != nil {
			return err
		}
		*dst = parsed
		return nil
	case nil:
		*dst = uuid.Nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into uuid-backed id", src)
	}
}
