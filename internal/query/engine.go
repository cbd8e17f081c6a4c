package query

import (
	"context"
	"database/sql"
)

// Engine runs MediaQuery values against the catalog tables.
type Engine struct {
	db *sql.DB
}

// NewEngine wraps a database handle for query execution.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// Run dispatches a MediaQuery to the movie path, the series hierarchy
// path, or — when no MediaType is specified — the multi-type
// interleave that fetches both and alternates them into one window.
func (e *Engine) Run(ctx context.Context, q MediaQuery) (Result, error) {
	if q.Filters.WatchStatus != "" && q.UserContext == nil {
		return Result{}, ErrMissingUserContext
	}
	if q.Pagination.Limit <= 0 {
		q.Pagination.Limit = 50
	}

	switch q.Filters.MediaType {
	case MediaTypeMovie:
		return e.runMoviePath(ctx, q)
	case MediaTypeSeries, MediaTypeSeason, MediaTypeEpisode:
		return e.runSeriesPath(ctx, q)
	default:
		return e.runInterleave(ctx, q)
	}
}

// runInterleave fetches the first offset+limit results of each type
// independently, alternates them (movie, series, movie, …), and
// truncates to the requested window — exactly the behavior described
// for an unspecified media_type.
func (e *Engine) runInterleave(ctx context.Context, q MediaQuery) (Result, error) {
	window := q.Pagination.Offset + q.Pagination.Limit

	movieQuery := q
	movieQuery.Filters.MediaType = MediaTypeMovie
	movieQuery.Pagination = Pagination{Limit: window, Offset: 0}
	movies, err := e.runMoviePath(ctx, movieQuery)
	if err != nil {
		return Result{}, err
	}

	seriesQuery := q
	seriesQuery.Filters.MediaType = MediaTypeSeries
	flatSeries, err := e.buildSeriesHierarchy(ctx, seriesQuery)
	if err != nil {
		return Result{}, err
	}
	if len(flatSeries) > window {
		flatSeries = flatSeries[:window]
	}

	interleaved := make([]MediaWithStatus, 0, len(movies.Items)+len(flatSeries))
	mi, si := 0, 0
	for mi < len(movies.Items) || si < len(flatSeries) {
		if mi < len(movies.Items) {
			interleaved = append(interleaved, movies.Items[mi])
			mi++
		}
		if si < len(flatSeries) {
			interleaved = append(interleaved, flatSeries[si])
			si++
		}
	}

	total := movies.TotalCount + len(flatSeries)

	start := q.Pagination.Offset
	if start > len(interleaved) {
		start = len(interleaved)
	}
	end := start + q.Pagination.Limit
	if end > len(interleaved) {
		end = len(interleaved)
	}
	return Result{Items: interleaved[start:end], TotalCount: total}, nil
}
