package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/streamvault/streamvault/internal/models"
)

func seriesSortColumn(f SortField) string {
	switch f {
	case SortTitle:
		return "s.sort_title"
	case SortDateAdded, SortCreatedAt:
		return "s.added_at"
	case SortReleaseDate:
		return "s.release_date"
	case SortRating:
		return "s.rating"
	default:
		// Series carries no aggregate runtime; fall back to title so a
		// Runtime sort request against the series path still yields a
		// stable, deterministic order instead of an arbitrary one.
		return "s.sort_title"
	}
}

func buildSeriesQuery(q MediaQuery) (selectQuery string, args []interface{}, err error) {
	b := newClauseBuilder(1)

	libIDs := make([]interface{}, len(q.Filters.LibraryIDs))
	for i, id := range q.Filters.LibraryIDs {
		libIDs[i] = id
	}
	b.applyLibraryIDs("s.library_id", libIDs)
	b.applyGenres("s.genres", q.Filters.Genres)
	b.applyYearRating(q.Filters, "s.year", "s.rating")

	if !q.Search.empty() {
		var ors []string
		ors = append(ors, b.applyTitleOverviewSearch(q.Search, "s.title", "s.overview")...)
		if q.Search.hasField(SearchFieldCast) {
			ph := b.param(searchArg(q.Search.Mode, q.Search.Term))
			b.join("JOIN series_cast _sc ON _sc.series_id = s.id JOIN people _p ON _p.id = _sc.person_id")
			ors = append(ors, searchPredicate(q.Search.Mode, "_p.name", ph))
		}
		if len(ors) > 0 {
			combined := "(" + ors[0]
			for _, o := range ors[1:] {
				combined += " OR " + o
			}
			combined += ")"
			b.where(combined)
		}
	}

	if q.Filters.WatchStatus != "" {
		if q.UserContext == nil {
			return "", nil, ErrMissingUserContext
		}
		// A series-level watch-status filter asks "does this series have
		// an episode matching the status," not "is the series itself
		// marked watched" — series have no watch_state row of their own.
		b.where(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM episodes _e WHERE _e.series_id = s.id AND %s)",
			existsEpisodeWatchPredicate(q.Filters.WatchStatus, q.Filters.RecentlyWatchedDays, q.UserContext.UserID, b)))
	}

	cols := `s.id, s.library_id, s.title, s.sort_title, s.year, s.overview, s.content_rating,
		s.genres, s.rating, s.release_date, s.added_at, s.updated_at`

	dir := orderDirection(q.Sort.Descending)
	orderSQL := fmt.Sprintf(" ORDER BY %s, s.id ASC", nullsLast(seriesSortColumn(q.Sort.Field), dir))

	selectQuery = "SELECT DISTINCT " + cols + fmt.Sprintf(" FROM series s%s WHERE 1=1%s", b.joinSQL(), b.whereSQL()) + orderSQL
	return selectQuery, b.args, nil
}

func existsEpisodeWatchPredicate(ws WatchStatus, recentDays int, userID models.UserID, b *clauseBuilder) string {
	inner := newClauseBuilder(b.next)
	watchStatusClause(inner, "_e.id", ws, recentDays, userID)
	b.args = append(b.args, inner.args...)
	b.next = inner.next
	if len(inner.wheres) == 0 {
		return "true"
	}
	return inner.wheres[0]
}

func scanSeries(rows *sql.Rows) (models.Series, error) {
	var s models.Series
	err := rows.Scan(&s.ID, &s.LibraryID, &s.Title, &s.SortTitle, &s.Year, &s.Overview, &s.ContentRating,
		&s.Genres, &s.Rating, &s.ReleaseDate, &s.AddedAt, &s.UpdatedAt)
	return s, err
}

func scanSeason(rows *sql.Rows) (models.Season, error) {
	var s models.Season
	err := rows.Scan(&s.ID, &s.SeriesID, &s.SeasonNumber, &s.Title, &s.Overview, &s.AddedAt, &s.UpdatedAt)
	return s, err
}

func scanEpisode(rows *sql.Rows) (models.Episode, error) {
	var e models.Episode
	err := rows.Scan(&e.ID, &e.SeasonID, &e.SeriesID, &e.EpisodeNumber, &e.Title, &e.Overview, &e.AirDate,
		&e.RuntimeMinutes, &e.AddedAt, &e.UpdatedAt)
	return e, err
}

// runSeriesPath assembles the full series/season/episode hierarchy in
// the requested order, then applies pagination to the flattened
// output — never to the per-table queries. Every series, season and
// episode row counts toward Offset/Limit, so a page boundary can fall
// inside a series or season group.
func (e *Engine) runSeriesPath(ctx context.Context, q MediaQuery) (Result, error) {
	flat, err := e.buildSeriesHierarchy(ctx, q)
	if err != nil {
		return Result{}, err
	}

	total := len(flat)
	start := q.Pagination.Offset
	if start > total {
		start = total
	}
	end := start + q.Pagination.Limit
	if q.Pagination.Limit <= 0 || end > total {
		end = total
	}
	return Result{Items: flat[start:end], TotalCount: total}, nil
}

// buildSeriesHierarchy returns the complete flattened series/season/
// episode list for q, unpaginated. Shared by runSeriesPath and the
// multi-type interleave path, which needs the same ordering before it
// truncates to its own window.
func (e *Engine) buildSeriesHierarchy(ctx context.Context, q MediaQuery) ([]MediaWithStatus, error) {
	selectQuery, args, err := buildSeriesQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	var seriesList []models.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan series: %w", err)
		}
		seriesList = append(seriesList, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var episodeMediaIDs []models.MediaID
	type seasonGroup struct {
		season   models.Season
		episodes []models.Episode
	}

	var flat []MediaWithStatus
	for _, s := range seriesList {
		sCopy := s
		flat = append(flat, MediaWithStatus{Media: models.Media{Kind: models.MediaKindSeries, Series: &sCopy}})

		seasonRows, err := e.db.QueryContext(ctx,
			`SELECT id, series_id, season_number, title, overview, added_at, updated_at
			 FROM seasons WHERE series_id = $1 ORDER BY season_number ASC`, s.ID)
		if err != nil {
			return nil, fmt.Errorf("query seasons for series %s: %w", s.ID, err)
		}
		var groups []seasonGroup
		for seasonRows.Next() {
			season, err := scanSeason(seasonRows)
			if err != nil {
				seasonRows.Close()
				return nil, fmt.Errorf("scan season: %w", err)
			}
			groups = append(groups, seasonGroup{season: season})
		}
		if err := seasonRows.Err(); err != nil {
			seasonRows.Close()
			return nil, err
		}
		seasonRows.Close()

		for gi := range groups {
			episodeRows, err := e.db.QueryContext(ctx,
				`SELECT id, season_id, series_id, episode_number, title, overview, air_date, runtime_minutes, added_at, updated_at
				 FROM episodes WHERE season_id = $1 ORDER BY episode_number ASC`, groups[gi].season.ID)
			if err != nil {
				return nil, fmt.Errorf("query episodes for season %s: %w", groups[gi].season.ID, err)
			}
			for episodeRows.Next() {
				ep, err := scanEpisode(episodeRows)
				if err != nil {
					episodeRows.Close()
					return nil, fmt.Errorf("scan episode: %w", err)
				}
				groups[gi].episodes = append(groups[gi].episodes, ep)
				episodeMediaIDs = append(episodeMediaIDs, models.MediaID(uuid.UUID(ep.ID)))
			}
			if err := episodeRows.Err(); err != nil {
				episodeRows.Close()
				return nil, err
			}
			episodeRows.Close()
		}

		for _, g := range groups {
			seasonCopy := g.season
			flat = append(flat, MediaWithStatus{Media: models.Media{Kind: models.MediaKindSeason, Season: &seasonCopy}})
			for _, ep := range g.episodes {
				epCopy := ep
				flat = append(flat, MediaWithStatus{Media: models.Media{Kind: models.MediaKindEpisode, Episode: &epCopy}})
			}
		}
	}

	watchStates, err := e.watchStatesFor(ctx, q.UserContext, episodeMediaIDs)
	if err != nil {
		return nil, err
	}
	if len(watchStates) > 0 {
		for i := range flat {
			if flat[i].Media.Kind != models.MediaKindEpisode {
				continue
			}
			mid := models.MediaID(uuid.UUID(flat[i].Media.Episode.ID))
			flat[i].WatchState = watchStates[mid]
		}
	}

	return flat, nil
}
