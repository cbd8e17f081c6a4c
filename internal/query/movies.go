package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/streamvault/streamvault/internal/models"
)

func movieSortColumn(f SortField) string {
	switch f {
	case SortTitle:
		return "m.sort_title"
	case SortDateAdded, SortCreatedAt:
		return "m.added_at"
	case SortReleaseDate:
		return "m.release_date"
	case SortRating:
		return "m.rating"
	case SortRuntime:
		return "m.runtime_minutes"
	default:
		return "m.sort_title"
	}
}

// buildMovieQuery assembles the filtered/searched/sorted movie query,
// mirroring buildFilterClauses + ListByLibraryFiltered from the
// teacher's media_queries.go but generalized over MediaQuery.
func buildMovieQuery(q MediaQuery) (whereArgsQuery string, countQuery string, args []interface{}, err error) {
	b := newClauseBuilder(1)

	libIDs := make([]interface{}, len(q.Filters.LibraryIDs))
	for i, id := range q.Filters.LibraryIDs {
		libIDs[i] = id
	}
	b.applyLibraryIDs("m.library_id", libIDs)
	b.applyGenres("m.genres", q.Filters.Genres)
	b.applyYearRating(q.Filters, "m.year", "m.rating")

	if !q.Search.empty() {
		var ors []string
		ors = append(ors, b.applyTitleOverviewSearch(q.Search, "m.title", "m.overview")...)
		if q.Search.hasField(SearchFieldCast) {
			ph := b.param(searchArg(q.Search.Mode, q.Search.Term))
			b.join("JOIN movie_cast _mc ON _mc.movie_id = m.id JOIN people _p ON _p.id = _mc.person_id")
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
			return "", "", nil, ErrMissingUserContext
		}
		watchStatusClause(b, "m.id", q.Filters.WatchStatus, q.Filters.RecentlyWatchedDays, q.UserContext.UserID)
	}

	cols := `m.id, m.library_id, m.title, m.sort_title, m.year, m.overview, m.content_rating,
		m.genres, m.rating, m.runtime_minutes, m.release_date, m.added_at, m.updated_at`

	base := fmt.Sprintf("FROM movies m%s WHERE 1=1%s", b.joinSQL(), b.whereSQL())
	countQuery = "SELECT COUNT(DISTINCT m.id) " + base

	dir := orderDirection(q.Sort.Descending)
	orderSQL := fmt.Sprintf(" ORDER BY %s", nullsLast(movieSortColumn(q.Sort.Field), dir))

	selectQuery := "SELECT DISTINCT " + cols + " " + base + orderSQL

	limit := b.param(q.Pagination.Limit)
	offset := b.param(q.Pagination.Offset)
	selectQuery += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)

	return selectQuery, countQuery, b.args, nil
}

func scanMovie(rows *sql.Rows) (models.Movie, error) {
	var m models.Movie
	err := rows.Scan(&m.ID, &m.LibraryID, &m.Title, &m.SortTitle, &m.Year, &m.Overview, &m.ContentRating,
		&m.Genres, &m.Rating, &m.RuntimeMinutes, &m.ReleaseDate, &m.AddedAt, &m.UpdatedAt)
	return m, err
}

func (e *Engine) runMoviePath(ctx context.Context, q MediaQuery) (Result, error) {
	selectQuery, countQuery, args, err := buildMovieQuery(q)
	if err != nil {
		return Result{}, err
	}

	// countQuery shares every arg except the trailing LIMIT/OFFSET pair
	// buildMovieQuery appended for the select statement.
	countArgs := args[:len(args)-2]
	var total int
	if err := e.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return Result{}, fmt.Errorf("count movies: %w", err)
	}

	rows, err := e.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return Result{}, fmt.Errorf("query movies: %w", err)
	}
	defer rows.Close()

	var movies []models.Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return Result{}, fmt.Errorf("scan movie: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	watchStates, err := e.watchStatesFor(ctx, q.UserContext, movieMediaIDs(movies))
	if err != nil {
		return Result{}, err
	}

	items := make([]MediaWithStatus, 0, len(movies))
	for i := range movies {
		mv := movies[i]
		item := MediaWithStatus{Media: models.Media{Kind: models.MediaKindMovie, Movie: &mv}}
		item.WatchState = watchStates[models.MediaID(uuid.UUID(mv.ID))]
		items = append(items, item)
	}

	return Result{Items: items, TotalCount: total}, nil
}

func movieMediaIDs(movies []models.Movie) []models.MediaID {
	ids := make([]models.MediaID, len(movies))
	for i, m := range movies {
		ids[i] = models.MediaID(uuid.UUID(m.ID))
	}
	return ids
}

// watchStatesFor is a no-op (nil map) when the query carries no user
// context, so every MediaWithStatus.WatchState stays nil rather than
// issuing an empty-keyed query.
func (e *Engine) watchStatesFor(ctx context.Context, uc *UserContext, ids []models.MediaID) (map[models.MediaID]*models.WatchState, error) {
	if uc == nil {
		return map[models.MediaID]*models.WatchState{}, nil
	}
	return loadWatchStates(ctx, e.db, uc.UserID, ids)
}
