package models

import (
	"time"

	"github.com/lib/pq"
)

// MediaKind tags which variant a Media value holds.
type MediaKind string

const (
	MediaKindMovie   MediaKind = "movie"
	MediaKindSeries  MediaKind = "series"
	MediaKindSeason  MediaKind = "season"
	MediaKindEpisode MediaKind = "episode"
)

// Media is the hierarchical sum type over everything a library can
// contain. Exactly one of the pointer fields is populated, selected by
// Kind; the others stay nil. Scan/repository code branches on Kind
// rather than attempting a type switch, since this shape round-trips
// through JSON and Postgres rows the same way a tagged struct does in
// the rest of this codebase.
type Media struct {
	Kind    MediaKind `json:"kind"`
	Movie   *Movie    `json:"movie,omitempty"`
	Series  *Series   `json:"series,omitempty"`
	Season  *Season   `json:"season,omitempty"`
	Episode *Episode  `json:"episode,omitempty"`
}

// Movie is a single standalone feature.
type Movie struct {
	ID          MovieID    `db:"id" json:"id"`
	LibraryID   LibraryID  `db:"library_id" json:"library_id"`
	Title       string     `db:"title" json:"title"`
	SortTitle   string     `db:"sort_title" json:"sort_title"`
	Year        *int       `db:"year" json:"year,omitempty"`
	Overview    *string    `db:"overview" json:"overview,omitempty"`
	ContentRating *string  `db:"content_rating" json:"content_rating,omitempty"`
	Genres      pq.StringArray `db:"genres" json:"genres,omitempty"`
	Rating      *float64   `db:"rating" json:"rating,omitempty"`
	RuntimeMinutes *int    `db:"runtime_minutes" json:"runtime_minutes,omitempty"`
	ReleaseDate *time.Time `db:"release_date" json:"release_date,omitempty"`
	FileIDs     []MediaFileID  `db:"-" json:"file_ids,omitempty"`
	AddedAt     time.Time  `db:"added_at" json:"added_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Series is a TV show's top-level grouping.
type Series struct {
	ID            SeriesID  `db:"id" json:"id"`
	LibraryID     LibraryID `db:"library_id" json:"library_id"`
	Title         string    `db:"title" json:"title"`
	SortTitle     string    `db:"sort_title" json:"sort_title"`
	Year          *int      `db:"year" json:"year,omitempty"`
	Overview      *string   `db:"overview" json:"overview,omitempty"`
	ContentRating *string   `db:"content_rating" json:"content_rating,omitempty"`
	Genres        pq.StringArray `db:"genres" json:"genres,omitempty"`
	Rating        *float64  `db:"rating" json:"rating,omitempty"`
	ReleaseDate   *time.Time `db:"release_date" json:"release_date,omitempty"`
	AddedAt       time.Time `db:"added_at" json:"added_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Season groups episodes under a series.
type Season struct {
	ID           SeasonID `db:"id" json:"id"`
	SeriesID     SeriesID `db:"series_id" json:"series_id"`
	SeasonNumber int      `db:"season_number" json:"season_number"`
	Title        *string  `db:"title" json:"title,omitempty"`
	Overview     *string  `db:"overview" json:"overview,omitempty"`
	AddedAt      time.Time `db:"added_at" json:"added_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Episode is a single installment within a season.
type Episode struct {
	ID            EpisodeID `db:"id" json:"id"`
	SeasonID      SeasonID  `db:"season_id" json:"season_id"`
	SeriesID      SeriesID  `db:"series_id" json:"series_id"`
	EpisodeNumber int       `db:"episode_number" json:"episode_number"`
	Title         string    `db:"title" json:"title"`
	Overview      *string   `db:"overview" json:"overview,omitempty"`
	AirDate       *time.Time `db:"air_date" json:"air_date,omitempty"`
	RuntimeMinutes *int     `db:"runtime_minutes" json:"runtime_minutes,omitempty"`
	FileIDs       []MediaFileID `db:"-" json:"file_ids,omitempty"`
	AddedAt       time.Time `db:"added_at" json:"added_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// MediaFile is one on-disk file backing a Movie or Episode. A single
// logical title can have more than one MediaFile (multiple editions,
// multiple cuts) — the relationship table, not this struct, owns that
// fan-out.
type MediaFile struct {
	ID         MediaFileID `db:"id" json:"id"`
	LibraryID  LibraryID   `db:"library_id" json:"library_id"`
	RootID     RootID      `db:"root_id" json:"root_id"`
	Path       string      `db:"path" json:"path"`
	Size       int64       `db:"size" json:"size"`
	ModifiedAt time.Time   `db:"modified_at" json:"modified_at"`
	DedupeKey  DedupeKey   `db:"dedupe_key" json:"dedupe_key"`
	Technical  *TechnicalMetadata `db:"-" json:"technical,omitempty"`
	AddedAt    time.Time   `db:"added_at" json:"added_at"`
}

// TechnicalMetadata is derived from ffprobe and cached alongside the
// MediaFile row so stream selection and adaptive-bitrate planning don't
// re-probe on every request.
type TechnicalMetadata struct {
	Codec           string  `json:"codec"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	BitDepth        int     `json:"bit_depth"`
	Framerate       float64 `json:"framerate"`
	DurationSeconds float64 `json:"duration_seconds"`
	ColorTransfer   string  `json:"color_transfer"`
	ColorPrimaries  string  `json:"color_primaries"`
	AudioChannels   int     `json:"audio_channels"`
	AudioCodec      string  `json:"audio_codec"`
	BitrateKbps     int     `json:"bitrate_kbps"`
}

// IsHDR reports whether the source is 10-bit or deeper and also uses an
// HDR transfer function (PQ/HLG) or exactly bt2020 primaries. This is
// stricter than transcode.IsHDR, which the streaming path uses for its
// tone mapping decision and which accepts any one of bit depth above 8,
// an HDR transfer, or bt2020-family primaries.
func (t TechnicalMetadata) IsHDR() bool {
	if t.BitDepth < 10 {
		return false
	}
	switch t.ColorTransfer {
	case "smpte2084", "arib-std-b67":
		return true
	}
	return t.ColorPrimaries == "bt2020"
}
