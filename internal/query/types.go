// Package query translates a MediaQuery into a result list of media
// with per-user watch status attached, against the movie/series/
// episode tables in internal/models. Grounded on
// internal/repository/media_queries.go's SQL-builder idiom: string
// concatenation plus a positional $N arg slice built up alongside it.
package query

import "github.com/streamvault/streamvault/internal/models"

// MediaType restricts a query to one kind, or is left empty for the
// multi-type interleave path.
type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeSeries  MediaType = "series"
	MediaTypeSeason  MediaType = "season"
	MediaTypeEpisode MediaType = "episode"
)

// WatchStatus narrows results by a user's playback history. Any
// non-empty value requires a UserContext; ErrMissingUserContext is
// returned otherwise.
type WatchStatus string

const (
	WatchStatusInProgress     WatchStatus = "in_progress"
	WatchStatusCompleted      WatchStatus = "completed"
	WatchStatusUnwatched      WatchStatus = "unwatched"
	WatchStatusRecentlyWatched WatchStatus = "recently_watched"
)

// Filters narrows the candidate set before search and sort apply.
type Filters struct {
	LibraryIDs  []models.LibraryID
	Genres      []string
	YearMin     *int
	YearMax     *int
	RatingMin   *float64
	RatingMax   *float64
	MediaType   MediaType
	WatchStatus WatchStatus
	// RecentlyWatchedDays qualifies WatchStatusRecentlyWatched; ignored
	// for every other WatchStatus value.
	RecentlyWatchedDays int
}

// SearchField selects which column(s) a Search term matches against.
// An empty Fields slice is equivalent to {SearchFieldAll}.
type SearchField string

const (
	SearchFieldTitle    SearchField = "title"
	SearchFieldOverview SearchField = "overview"
	SearchFieldCast     SearchField = "cast"
	SearchFieldAll      SearchField = "all"
)

// SearchMode picks the matching algorithm.
type SearchMode string

const (
	// SearchModeFuzzy uses pg_trgm similarity(), tolerant of typos.
	SearchModeFuzzy SearchMode = "fuzzy"
	// SearchModeLiteral uses a case-insensitive ILIKE substring match.
	SearchModeLiteral SearchMode = "literal"
)

// Search is the optional free-text component of a query.
type Search struct {
	Term   string
	Fields []SearchField
	Mode   SearchMode
}

func (s Search) empty() bool { return s.Term == "" }

func (s Search) fields() []SearchField {
	if len(s.Fields) == 0 {
		return []SearchField{SearchFieldAll}
	}
	return s.Fields
}

func (s Search) hasField(f SearchField) bool {
	for _, want := range s.fields() {
		if want == SearchFieldAll || want == f {
			return true
		}
	}
	return false
}

// SortField selects the column a result set orders by. Null values
// always sort last regardless of Descending.
type SortField string

const (
	SortTitle       SortField = "title"
	SortDateAdded   SortField = "date_added"
	SortCreatedAt   SortField = "created_at"
	SortReleaseDate SortField = "release_date"
	SortRating      SortField = "rating"
	SortRuntime     SortField = "runtime"
)

// Sort is the requested ordering. The series hierarchy path always
// applies a stable secondary sort by (series_id, season_number,
// episode_number) on top of this, to keep the flattened hierarchy
// coherent.
type Sort struct {
	Field      SortField
	Descending bool
}

// Pagination bounds a result window. For the movie path this is
// pushed down to LIMIT/OFFSET; for the series hierarchy path it is
// applied to the flattened series/season/episode list after the full
// hierarchy is assembled, so a page can end part-way through a series.
type Pagination struct {
	Limit  int
	Offset int
}

// UserContext carries the identity needed to resolve watch-status
// filters and per-result watch status. Required whenever Filters.WatchStatus
// is set; optional otherwise.
type UserContext struct {
	UserID models.UserID
}

// MediaQuery is the full input to Engine.Run.
type MediaQuery struct {
	Filters     Filters
	Search      Search
	Sort        Sort
	Pagination  Pagination
	UserContext *UserContext
}

// MediaWithStatus pairs one Media value with the requesting user's
// watch progress, when a UserContext was supplied.
type MediaWithStatus struct {
	Media      models.Media
	WatchState *models.WatchState
}

// Result is the outcome of running a MediaQuery.
type Result struct {
	Items      []MediaWithStatus
	TotalCount int
}
