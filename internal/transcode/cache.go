package transcode

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
)

// CacheManager owns the on-disk layout of produced HLS output:
// cache_root/media_id/profile_name/. It also runs the
// background age/size-capped cleaner on a fixed cadence.
type CacheManager struct {
	root    string
	maxAge  time.Duration
	maxSize int64
	cron    *cron.Cron
}

// CacheStats summarizes the current state of the cache directory.
type CacheStats struct {
	Entries   int
	TotalSize int64
}

func NewCacheManager(root string, maxAge time.Duration, maxSize int64) *CacheManager {
	return &CacheManager{root: root, maxAge: maxAge, maxSize: maxSize}
}

// GetCachePath returns the directory a (mediaID, profileName) pair's
// output lives in. It only builds the path; the worker that writes the
// output creates the directory.
func (c *CacheManager) GetCachePath(mediaID, profileName string) string {
	return filepath.Join(c.root, mediaID, profileName)
}

// HasCachedVersion reports whether a finalized playlist already exists
// for (mediaID, profileName) — "finalized" meaning the variant/profile
// playlist file itself is present, not just the output directory.
func (c *CacheManager) HasCachedVersion(mediaID, profileName string) bool {
	path := filepath.Join(c.GetCachePath(mediaID, profileName), "playlist.m3u8")
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// HasMasterPlaylist reports whether a master.m3u8 already exists for a
// media ID, regardless of profile.
func (c *CacheManager) HasMasterPlaylist(mediaID string) bool {
	path := filepath.Join(c.root, mediaID, "master.m3u8")
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (c *CacheManager) MasterPlaylistPath(mediaID string) string {
	return filepath.Join(c.root, mediaID, "master.m3u8")
}

// GetStats walks the cache root and reports aggregate entry count and
// size.
func (c *CacheManager) GetStats() (CacheStats, error) {
	var stats CacheStats
	err := filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries, never fatal
		}
		if info.IsDir() {
			return nil
		}
		stats.Entries++
		stats.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walk cache root: %w", err)
	}
	return stats, nil
}

type mediaDirEntry struct {
	path    string
	modTime time.Time
	size    int64
}

// Cleanup evicts media directories older than maxAge, then continues
// evicting oldest-first until total size is under maxSize. Individual
// stat/remove errors are logged and skipped — a cleanup sweep never
// aborts partway because one entry misbehaved.
func (c *CacheManager) Cleanup() error {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache root: %w", err)
	}

	now := time.Now()
	var dirs []mediaDirEntry
	var total int64

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		full := filepath.Join(c.root, e.Name())
		info, err := e.Info()
		if err != nil {
			log.Printf("[transcode] cache cleanup: stat %s: %v", full, err)
			continue
		}
		size, err := dirSize(full)
		if err != nil {
			log.Printf("[transcode] cache cleanup: size %s: %v", full, err)
			continue
		}

		if now.Sub(info.ModTime()) > c.maxAge {
			if err := os.RemoveAll(full); err != nil {
				log.Printf("[transcode] cache cleanup: remove expired %s: %v", full, err)
				continue
			}
			log.Printf("[transcode] cache cleanup: removed expired entry %s", e.Name())
			continue
		}

		dirs = append(dirs, mediaDirEntry{path: full, modTime: info.ModTime(), size: size})
		total += size
	}

	if c.maxSize <= 0 || total <= c.maxSize {
		return nil
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].modTime.Before(dirs[j].modTime) })
	for _, d := range dirs {
		if total <= c.maxSize {
			break
		}
		if err := os.RemoveAll(d.path); err != nil {
			log.Printf("[transcode] cache cleanup: remove over-cap %s: %v", d.path, err)
			continue
		}
		total -= d.size
		log.Printf("[transcode] cache cleanup: removed over-cap entry %s", d.path)
	}
	return nil
}

func dirSize(root string) (int64, error) {
	var size int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// StartCleanupCron schedules the age/size-capped sweep on an hourly
// cadence, using the same robfig/cron scheduler idiom as the lease
// reaper rather than a bare ticker.
func (c *CacheManager) StartCleanupCron() {
	c.cron = cron.New()
	c.cron.AddFunc("@every 1h", func() {
		if err := c.Cleanup(); err != nil {
			log.Printf("[transcode] cache cleanup error: %v", err)
		}
	})
	c.cron.Start()
}

// StopCleanupCron stops the background sweep started by
// StartCleanupCron. Safe to call even if the cron was never started.
func (c *CacheManager) StopCleanupCron() {
	if c.cron != nil {
		c.cron.Stop()
	}
}
