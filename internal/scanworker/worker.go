// Package scanworker executes FolderScanJob payloads leased off
// internal/orchestrator's PGLeaseQueueService: it enumerates the video
// files sitting directly in one folder, probes each with ffprobe, and
// upserts the matching movie/episode and media_files rows. Grounded on
// CineVault's internal/scanner.go, narrowed to single-folder,
// depth-1 work the way the library actor already hands it out, and
// with the regex-driven TV title/season/episode matching kept verbatim
// in spirit since it's the one piece of scan logic spec.md's hierarchy
// can't be derived any other way.
package scanworker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/streamvault/streamvault/internal/ffmpeg"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/scanactor"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".m4v": true, ".wmv": true, ".ts": true, ".webm": true,
}

// tvPatterns mirrors CineVault's path-based TV detection: the first
// pattern that matches wins, in order from most to least specific.
var tvPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(.+?)[.\s_-]+S(\d{1,2})E(\d{1,3})`),
	regexp.MustCompile(`(?i)(.+?)[.\s_-]+(\d{1,2})x(\d{1,3})`),
	regexp.MustCompile(`(?i)(.+?)[.\s_-]+[Ss](?:eason)?\s*(\d{1,2})\s*[Ee](?:pisode)?\s*(\d{1,3})`),
}

// Worker processes one folder_scan job at a time. It has no opinion on
// leasing or retry policy — RunLoop below, started from cmd/cinevault,
// owns that, reporting Run's outcome back to both the orchestrator
// queue and the owning library actor.
type Worker struct {
	db      *sql.DB
	ffprobe *ffmpeg.FFprobe
}

func New(db *sql.DB, ffprobePath string) *Worker {
	return &Worker{db: db, ffprobe: ffmpeg.NewFFprobe(ffprobePath)}
}

// Run scans one folder non-recursively, skipping subdirectories (the
// actor itself seeds a separate job per child directory) and anything
// that isn't a recognized video extension.
func (w *Worker) Run(ctx context.Context, job models.FolderScanJob) error {
	entries, err := os.ReadDir(job.Path)
	if err != nil {
		return fmt.Errorf("read folder %s: %w", job.Path, err)
	}

	lib, err := w.loadLibrary(ctx, job.LibraryID)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !videoExtensions[ext] {
			continue
		}

		path := filepath.Join(job.Path, entry.Name())
		if err := w.ingestFile(ctx, lib, job.RootID, path); err != nil {
			log.Printf("[scanworker] %s: %v", path, err)
		}
	}
	return nil
}

// RefreshMediaFile re-probes an already-ingested file's technical
// metadata, for the metadata_refresh job kind: a file whose codec/HDR
// flags changed out from under the library (a remux, a re-encode in
// place) without its path or size changing, so the depth-1 folder scan
// would otherwise never notice.
func (w *Worker) RefreshMediaFile(ctx context.Context, mediaFileID uuid.UUID) error {
	var path string
	if err := w.db.QueryRowContext(ctx,
		`SELECT path FROM media_files WHERE id = $1`, mediaFileID,
	).Scan(&path); err != nil {
		return fmt.Errorf("load media file %s: %w", mediaFileID, err)
	}

	probe, err := w.ffprobe.Probe(path)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	technical := models.TechnicalMetadata{
		Codec:           probe.GetVideoCodec(),
		Width:           probe.GetWidth(),
		Height:          probe.GetHeight(),
		BitDepth:        probe.GetBitDepth(),
		Framerate:       probe.GetFramerate(),
		DurationSeconds: probe.GetDuration(),
		ColorTransfer:   probe.GetColorTransfer(),
		ColorPrimaries:  probe.GetColorPrimaries(),
	}
	technicalJSON, err := json.Marshal(technical)
	if err != nil {
		return fmt.Errorf("marshal technical metadata: %w", err)
	}

	_, err = w.db.ExecContext(ctx,
		`UPDATE media_files SET technical = $1 WHERE id = $2`, technicalJSON, mediaFileID)
	return err
}

func (w *Worker) loadLibrary(ctx context.Context, id models.LibraryID) (models.Library, error) {
	var lib models.Library
	err := w.db.QueryRowContext(ctx, `SELECT id, name, type FROM libraries WHERE id = $1`, id).
		Scan(&lib.ID, &lib.Name, &lib.Type)
	return lib, err
}

func (w *Worker) ingestFile(ctx context.Context, lib models.Library, rootID models.RootID, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	dedupeKey := models.DedupeKey(xxhash.Sum64String(path))

	var exists bool
	if err := w.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM media_files WHERE dedupe_key = $1)`, int64(dedupeKey),
	).Scan(&exists); err != nil {
		return fmt.Errorf("dedupe check: %w", err)
	}
	if exists {
		return nil
	}

	probe, err := w.ffprobe.Probe(path)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	technical := models.TechnicalMetadata{
		Codec:           probe.GetVideoCodec(),
		Width:           probe.GetWidth(),
		Height:          probe.GetHeight(),
		BitDepth:        probe.GetBitDepth(),
		Framerate:       probe.GetFramerate(),
		DurationSeconds: probe.GetDuration(),
		ColorTransfer:   probe.GetColorTransfer(),
		ColorPrimaries:  probe.GetColorPrimaries(),
	}
	technicalJSON, err := json.Marshal(technical)
	if err != nil {
		return fmt.Errorf("marshal technical metadata: %w", err)
	}

	mediaFileID := uuid.New()

	if lib.Type == models.LibraryTypeShows {
		title, season, episode, ok := parseTVInfo(path)
		if !ok {
			title, season, episode = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), 1, 1
		}
		episodeID, err := w.upsertEpisode(ctx, lib.ID, title, season, episode)
		if err != nil {
			return fmt.Errorf("upsert episode: %w", err)
		}
		_, err = w.db.ExecContext(ctx, `
			INSERT INTO media_files (id, library_id, root_id, path, size, modified_at, dedupe_key, technical, episode_id, added_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
			mediaFileID, lib.ID, int(rootID), path, info.Size(), info.ModTime(), int64(dedupeKey), technicalJSON, episodeID)
		return err
	}

	movieID, err := w.upsertMovie(ctx, lib.ID, path)
	if err != nil {
		return fmt.Errorf("upsert movie: %w", err)
	}
	_, err = w.db.ExecContext(ctx, `
		INSERT INTO media_files (id, library_id, root_id, path, size, modified_at, dedupe_key, technical, movie_id, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
		mediaFileID, lib.ID, int(rootID), path, info.Size(), info.ModTime(), int64(dedupeKey), technicalJSON, movieID)
	return err
}

// parseTVInfo extracts (show title, season, episode) from a file path
// using the same ordered pattern list as CineVault's scanner.
func parseTVInfo(path string) (title string, season, episode int, ok bool) {
	base := filepath.Base(path)
	for _, pat := range tvPatterns {
		m := pat.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		season, _ = strconv.Atoi(m[2])
		episode, _ = strconv.Atoi(m[3])
		title = strings.TrimSpace(strings.ReplaceAll(m[1], ".", " "))
		return title, season, episode, true
	}
	return "", 0, 0, false
}

func movieTitleFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.ReplaceAll(name, ".", " ")
	if i := strings.Index(name, "("); i > 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

func (w *Worker) upsertMovie(ctx context.Context, libraryID models.LibraryID, path string) (uuid.UUID, error) {
	title := movieTitleFromPath(path)

	var id uuid.UUID
	err := w.db.QueryRowContext(ctx,
		`SELECT id FROM movies WHERE library_id = $1 AND title = $2`, libraryID, title,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, err
	}

	id = uuid.New()
	_, err = w.db.ExecContext(ctx, `
		INSERT INTO movies (id, library_id, title, sort_title, added_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())`,
		id, libraryID, title, strings.ToLower(title))
	return id, err
}

func (w *Worker) upsertEpisode(ctx context.Context, libraryID models.LibraryID, showTitle string, season, episode int) (uuid.UUID, error) {
	seriesID, err := w.upsertSeries(ctx, libraryID, showTitle)
	if err != nil {
		return uuid.Nil, err
	}
	seasonID, err := w.upsertSeason(ctx, seriesID, season)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = w.db.QueryRowContext(ctx,
		`SELECT id FROM episodes WHERE season_id = $1 AND episode_number = $2`, seasonID, episode,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, err
	}

	id = uuid.New()
	_, err = w.db.ExecContext(ctx, `
		INSERT INTO episodes (id, season_id, series_id, episode_number, title, added_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())`,
		id, seasonID, seriesID, episode, fmt.Sprintf("%s episode %d", showTitle, episode))
	return id, err
}

func (w *Worker) upsertSeries(ctx context.Context, libraryID models.LibraryID, title string) (uuid.UUID, error) {
	var id uuid.UUID
	err := w.db.QueryRowContext(ctx,
		`SELECT id FROM series WHERE library_id = $1 AND title = $2`, libraryID, title,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, err
	}

	id = uuid.New()
	_, err = w.db.ExecContext(ctx, `
		INSERT INTO series (id, library_id, title, sort_title, added_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())`,
		id, libraryID, title, strings.ToLower(title))
	return id, err
}

func (w *Worker) upsertSeason(ctx context.Context, seriesID uuid.UUID, number int) (uuid.UUID, error) {
	var id uuid.UUID
	err := w.db.QueryRowContext(ctx,
		`SELECT id FROM seasons WHERE series_id = $1 AND season_number = $2`, seriesID, number,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, err
	}

	id = uuid.New()
	_, err = w.db.ExecContext(ctx, `
		INSERT INTO seasons (id, series_id, season_number, added_at, updated_at)
		VALUES ($1, $2, $3, now(), now())`,
		id, seriesID, number)
	return id, err
}

// RunLoop dequeues folder_scan jobs from the orchestrator at a fixed
// poll interval until ctx is canceled, reporting completion back to
// both the durable queue and the owning library actor.
func RunLoop(ctx context.Context, w *Worker, queue FolderScanQueue, onComplete func(models.JobID, models.DedupeKey), onFailed func(models.JobID, models.DedupeKey, bool, error)) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := queue.Dequeue(ctx, "scanworker", 5*time.Minute)
			if err != nil || job == nil {
				continue
			}

			var payload models.FolderScanJob
			if err := json.Unmarshal(job.Payload, &payload); err != nil {
				log.Printf("[scanworker] malformed payload for job %s: %v", job.ID, err)
				continue
			}

			dedupeKey := scanactor.DedupeKeyFor(payload.LibraryID, payload.Path)
			if err := w.Run(ctx, payload); err != nil {
				log.Printf("[scanworker] job %s failed: %v", job.ID, err)
				queue.Fail(ctx, job.ID, err.Error(), true)
				onFailed(job.ID, dedupeKey, true, err)
				continue
			}

			queue.Complete(ctx, job.ID)
			onComplete(job.ID, dedupeKey)
		}
	}
}

// FolderScanQueue is the subset of PGLeaseQueueService's capability
// RunLoop needs, kept as a narrow interface so it can be exercised
// against a fake in tests.
type FolderScanQueue interface {
	Dequeue(ctx context.Context, owner string, lease time.Duration) (*models.Job, error)
	Complete(ctx context.Context, jobID models.JobID) error
	Fail(ctx context.Context, jobID models.JobID, errMsg string, retryable bool) error
}
