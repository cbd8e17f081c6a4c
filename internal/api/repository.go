package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/snapshot"
)

// Repository is the thin read layer internal/api uses to assemble
// snapshot.LibrarySnapshot values and to satisfy
// bundlecache.SeriesSource, grounded on internal/repository's manual
// Scan-call idiom rather than an ORM. Exported so cmd/cinevault can
// hand the same instance to bundlecache.NewCache as its SeriesSource.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository { return &Repository{db: db} }

func (r *Repository) ListLibraries(ctx context.Context) ([]models.Library, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, type, root_paths, created_at, updated_at FROM libraries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	var out []models.Library
	for rows.Next() {
		var l models.Library
		var roots pq.StringArray
		if err := rows.Scan(&l.ID, &l.Name, &l.Type, &roots, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan library: %w", err)
		}
		l.RootPaths = []string(roots)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repository) GetLibrary(ctx context.Context, id models.LibraryID) (models.Library, error) {
	var l models.Library
	var roots pq.StringArray
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, type, root_paths, created_at, updated_at FROM libraries WHERE id = $1`, id,
	).Scan(&l.ID, &l.Name, &l.Type, &roots, &l.CreatedAt, &l.UpdatedAt)
	l.RootPaths = []string(roots)
	return l, err
}

func (r *Repository) ListMovies(ctx context.Context, libraryID models.LibraryID) ([]models.Movie, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, library_id, title, sort_title, year, overview, content_rating,
			genres, rating, runtime_minutes, release_date, added_at, updated_at
		FROM movies WHERE library_id = $1 ORDER BY sort_title`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	defer rows.Close()

	var out []models.Movie
	for rows.Next() {
		var m models.Movie
		if err := rows.Scan(&m.ID, &m.LibraryID, &m.Title, &m.SortTitle, &m.Year, &m.Overview, &m.ContentRating,
			&m.Genres, &m.Rating, &m.RuntimeMinutes, &m.ReleaseDate, &m.AddedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListSeriesIDs implements bundlecache.SeriesSource.
func (r *Repository) ListSeriesIDs(ctx context.Context, libraryID models.LibraryID) ([]models.SeriesID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM series WHERE library_id = $1`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("list series ids: %w", err)
	}
	defer rows.Close()

	var out []models.SeriesID
	for rows.Next() {
		var id models.SeriesID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LoadSeries implements bundlecache.SeriesSource, assembling a series
// together with every season and episode beneath it.
func (r *Repository) LoadSeries(ctx context.Context, seriesID models.SeriesID) (snapshot.SeriesSnapshot, error) {
	var s snapshot.SeriesSnapshot
	err := r.db.QueryRowContext(ctx,
		`SELECT id, library_id, title, sort_title, year, overview, content_rating,
			genres, rating, release_date, added_at, updated_at
		FROM series WHERE id = $1`, seriesID,
	).Scan(&s.Series.ID, &s.Series.LibraryID, &s.Series.Title, &s.Series.SortTitle, &s.Series.Year,
		&s.Series.Overview, &s.Series.ContentRating, &s.Series.Genres, &s.Series.Rating,
		&s.Series.ReleaseDate, &s.Series.AddedAt, &s.Series.UpdatedAt)
	if err != nil {
		return s, fmt.Errorf("load series %s: %w", seriesID, err)
	}

	seasonRows, err := r.db.QueryContext(ctx,
		`SELECT id, series_id, season_number, title, overview, added_at, updated_at
		FROM seasons WHERE series_id = $1 ORDER BY season_number`, seriesID)
	if err != nil {
		return s, fmt.Errorf("list seasons for series %s: %w", seriesID, err)
	}
	defer seasonRows.Close()

	for seasonRows.Next() {
		var season snapshot.SeasonSnapshot
		if err := seasonRows.Scan(&season.Season.ID, &season.Season.SeriesID, &season.Season.SeasonNumber,
			&season.Season.Title, &season.Season.Overview, &season.Season.AddedAt, &season.Season.UpdatedAt); err != nil {
			return s, fmt.Errorf("scan season: %w", err)
		}

		episodes, err := r.listEpisodes(ctx, season.Season.ID)
		if err != nil {
			return s, err
		}
		season.Episodes = episodes
		s.Seasons = append(s.Seasons, season)
	}
	return s, seasonRows.Err()
}

func (r *Repository) listEpisodes(ctx context.Context, seasonID models.SeasonID) ([]models.Episode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, season_id, series_id, episode_number, title, overview, air_date, runtime_minutes, added_at, updated_at
		FROM episodes WHERE season_id = $1 ORDER BY episode_number`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list episodes for season %s: %w", seasonID, err)
	}
	defer rows.Close()

	var out []models.Episode
	for rows.Next() {
		var e models.Episode
		if err := rows.Scan(&e.ID, &e.SeasonID, &e.SeriesID, &e.EpisodeNumber, &e.Title, &e.Overview,
			&e.AirDate, &e.RuntimeMinutes, &e.AddedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// BuildLibrarySnapshot assembles one library's full tree for the
// snapshot encoder: the library row, its movies, and every series with
// its seasons/episodes attached.
func (r *Repository) BuildLibrarySnapshot(ctx context.Context, libraryID models.LibraryID) (snapshot.LibrarySnapshot, error) {
	var ls snapshot.LibrarySnapshot

	lib, err := r.GetLibrary(ctx, libraryID)
	if err != nil {
		return ls, fmt.Errorf("get library %s: %w", libraryID, err)
	}
	ls.Library = lib

	movies, err := r.ListMovies(ctx, libraryID)
	if err != nil {
		return ls, err
	}
	ls.Movies = movies

	seriesIDs, err := r.ListSeriesIDs(ctx, libraryID)
	if err != nil {
		return ls, err
	}
	for _, id := range seriesIDs {
		series, err := r.LoadSeries(ctx, id)
		if err != nil {
			return ls, err
		}
		ls.Series = append(ls.Series, series)
	}
	return ls, nil
}

// sourceFile is the path and probed technical metadata of the file
// backing a movie or episode, the minimum the transcode planner needs
// to size an adaptive-bitrate ladder.
type sourceFile struct {
	Path      string
	Technical *models.TechnicalMetadata
}

// GetSourceFile finds the media file backing a movie or episode ID -
// media_files rows are linked to exactly one of movie_id/episode_id,
// so a mediaID from the query/watch surface resolves through either
// column without the caller needing to know which kind it is.
func (r *Repository) GetSourceFile(ctx context.Context, mediaID models.MediaID) (sourceFile, error) {
	var sf sourceFile
	var technicalJSON []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT path, technical FROM media_files WHERE movie_id = $1 OR episode_id = $1 LIMIT 1`,
		mediaID,
	).Scan(&sf.Path, &technicalJSON)
	if err != nil {
		return sf, err
	}
	if len(technicalJSON) > 0 {
		var tm models.TechnicalMetadata
		if err := json.Unmarshal(technicalJSON, &tm); err != nil {
			return sf, fmt.Errorf("decode technical metadata: %w", err)
		}
		sf.Technical = &tm
	}
	return sf, nil
}

// SourcePath resolves a media ID straight to its backing file's path,
// satisfying internal/thumbnail.SourceLookup without that package
// needing to know about TechnicalMetadata.
func (r *Repository) SourcePath(ctx context.Context, mediaID models.MediaID) (string, error) {
	sf, err := r.GetSourceFile(ctx, mediaID)
	if err != nil {
		return "", err
	}
	return sf.Path, nil
}
