package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/streamvault/streamvault/internal/api"
	"github.com/streamvault/streamvault/internal/bundlecache"
	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/db"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/orchestrator"
	"github.com/streamvault/streamvault/internal/scanactor"
	"github.com/streamvault/streamvault/internal/scanworker"
	"github.com/streamvault/streamvault/internal/scheduler"
	"github.com/streamvault/streamvault/internal/thumbnail"
	"github.com/streamvault/streamvault/internal/transcode"
	"github.com/streamvault/streamvault/internal/version"
	"github.com/streamvault/streamvault/internal/watcher"
)

const bannerArt = `
   _____ _                            __      __   _ _
  / ____| |                           \ \    / /  | | |
 | (___ | |_ _ __ ___  __ _ _ __ ___   \ \  / /_ _ | | |_
  \___ \| __| '__/ _ \/ _' | '_ ' _ \   \ \/ / _' || | __|
  ____) | |_| | |  __/ (_| | | | | | |   \  / (_| || | |_
 |_____/ \__|_|  \___|\__,_|_| |_| |_|    \/ \__,_||_|\__|
`

func main() {
	v := version.Load()
	fmt.Println(bannerArt)
	fmt.Printf("  Self-Hosted Media Server\n")
	fmt.Printf("  Version %s\n\n", v.Version)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("database connected")

	if err := db.Migrate(database, "migrations"); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	log.Println("migrations applied")

	repo := api.NewRepository(database)

	// Durable folder-scan job queue, backed by the jobs table's
	// lease-based FOR UPDATE SKIP LOCKED pattern.
	scanQueue := orchestrator.NewPGLeaseQueueService(database)
	reaper := orchestrator.NewLeaseReaper(scanQueue)
	reaper.Start()
	defer reaper.Stop()
	log.Println("orchestrator queue initialized")

	// One library actor per library, all routed through a single
	// Manager so the watcher and the orchestrator feedback loop each
	// have one thing to talk to.
	actorManager := scanactor.NewManager()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	libraries, err := repo.ListLibraries(ctx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to list libraries: %v", err)
	}

	sink := scanactor.EnqueueSinkFunc(func(ev scanactor.Event) {
		switch e := ev.(type) {
		case scanactor.EnqueueFolderScan:
			job := models.FolderScanJob{
				LibraryID: e.LibraryID,
				RootID:    e.RootID,
				Path:      e.Folder,
				Reason:    e.Reason,
			}
			enqCtx, enqCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer enqCancel()
			if _, err := scanQueue.Enqueue(enqCtx, job, e.Priority, e.DedupeKey); err != nil {
				log.Printf("[scan] enqueue failed for %s: %v", e.Folder, err)
			}
		case scanactor.JobThrottled:
			log.Printf("[scan] throttled dedupe key %d", e.DedupeKey)
		}
	})

	for _, lib := range libraries {
		a := scanactor.New(lib.ID, lib.RootPaths, cfg.Scanner.MaxOutstandingJobs, sink)
		actorManager.Register(a)
	}
	log.Printf("scan actors registered for %d libraries", len(libraries))

	// Drain folder_scan jobs off the durable queue and feed outcomes
	// back to the owning actor so its dedupe/throttle state clears.
	scanCtx, scanCancel := context.WithCancel(context.Background())
	scanW := scanworker.New(database, cfg.FFmpeg.FFprobePath)
	go scanworker.RunLoop(scanCtx, scanW, scanQueue, actorManager.NotifyCompleted, actorManager.NotifyFailed)
	defer scanCancel()

	// Series bundle cache, precomputing per-series and full-library
	// payloads on top of the same repository the scan worker writes
	// through.
	bundles := bundlecache.NewCache(repo, bundlecache.NewVersioningRepository(database))

	// Process-and-done job kinds (bundle reconciliation, metadata
	// refresh) ride on asynq/redis instead of the Postgres lease queue,
	// since neither needs a renewable lease.
	asynqQueue := orchestrator.NewAsynqQueueService(cfg.Redis.Address())
	asynqQueue.RegisterHandler(orchestrator.TaskBundleRebuild, func(ctx context.Context, t *asynq.Task) error {
		var payload struct {
			LibraryID models.LibraryID `json:"library_id"`
		}
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return err
		}
		return bundles.EnsureSeriesVersioning(ctx, payload.LibraryID)
	})
	asynqQueue.RegisterHandler(orchestrator.TaskMetadataRefresh, func(ctx context.Context, t *asynq.Task) error {
		var payload struct {
			MediaFileID uuid.UUID `json:"media_file_id"`
		}
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return err
		}
		return scanW.RefreshMediaFile(ctx, payload.MediaFileID)
	})
	asynqCtx, asynqCancel := context.WithCancel(context.Background())
	go func() {
		if err := asynqQueue.Start(asynqCtx); err != nil {
			log.Printf("[orchestrator] asynq worker stopped: %v", err)
		}
	}()
	defer func() {
		asynqCancel()
		asynqQueue.Stop()
	}()

	// Transcoding engine: priority queue, fixed worker pool, cache
	// manager, adaptive-bitrate planner.
	transcodeCache := transcode.NewCacheManager(cfg.Paths.Cache, 30*24*time.Hour, 200<<30)
	transcodeCache.StartCleanupCron()
	defer transcodeCache.StopCleanupCron()

	transcodeQueue := transcode.NewPriorityQueue()
	transcodePool := transcode.NewPool(
		transcodeQueue, cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath, transcodeCache,
		transcode.WithConcurrency(cfg.FFmpeg.MaxWorkers),
	)
	transcodePool.Start()
	defer transcodePool.Stop()

	planner := transcode.NewPlanner(transcodeCache)

	// Thumbnail service: lazy-extracts and caches a poster frame per
	// media ID under Paths.Preview, independent of the transcode cache
	// since thumbnails never expire on the same schedule as HLS output.
	thumbnails := thumbnail.NewService(cfg.Paths.Preview, cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath, repo)

	server := api.NewServer(api.Deps{
		Config:     cfg,
		DB:         database,
		Bundles:    bundles,
		Transcoder: transcodePool,
		Planner:    planner,
		Cache:      transcodeCache,
		Thumbnails: thumbnails,
	})

	// Filesystem watcher feeds FsEvents commands to the actor owning
	// each changed library's root.
	fsWatcher, err := watcher.New(libraryLister{repo}, actorManager)
	if err != nil {
		log.Printf("filesystem watcher failed to start: %v", err)
	} else {
		fsWatcher.Start()
		defer fsWatcher.Stop()
	}

	// Hourly full-library rescan sweep, catching anything a watcher
	// event missed.
	rescan := scheduler.New(repo, func(libraryID models.LibraryID) {
		actorManager.Send(libraryID, scanactor.StartCmd{Mode: scanactor.ModeBulk})
	})
	rescan.Start()
	defer rescan.Stop()

	addr := cfg.Server.Address()
	log.Printf("server starting on http://%s\n", addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// libraryLister adapts api.Repository's context-taking ListLibraries
// to watcher.LibraryProvider's plain signature.
type libraryLister struct {
	repo *api.Repository
}

func (l libraryLister) ListLibraries() ([]models.Library, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return l.repo.ListLibraries(ctx)
}
