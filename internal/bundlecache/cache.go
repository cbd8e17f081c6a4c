package bundlecache

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/snapshot"
)

// rebuildParallelism bounds how many series are rebuilt concurrently
// during a reconciliation pass, grounded on internal/scanner.go's
// WaitGroup + buffered-channel concurrency limiter used during
// parallel metadata enrichment.
const rebuildParallelism = 8

// SeriesSource loads the data needed to assemble and hash one series'
// bundle. The cache has no opinion on where that data lives.
type SeriesSource interface {
	ListSeriesIDs(ctx context.Context, libraryID models.LibraryID) ([]models.SeriesID, error)
	LoadSeries(ctx context.Context, seriesID models.SeriesID) (snapshot.SeriesSnapshot, error)
}

// bundleSignature is the (series_count, Σ version) pair spec §4.3
// calls a full bundle's signature: two full-library bundles with an
// equal signature are guaranteed to carry the same series set at the
// same versions, so the composed blob can be reused without
// recomposing it from the per-series bundles.
type bundleSignature struct {
	count      int64
	sumVersion int64
}

type libraryState struct {
	mu      sync.RWMutex
	bundles map[models.SeriesID][]byte

	fullSig  bundleSignature
	fullBlob []byte
}

// Cache holds per-library series bundles behind one RWMutex per
// library, so reads against different libraries never serialize
// against each other - only a coarse map mutex guards the top-level
// map insert/lookup itself.
type Cache struct {
	source   SeriesSource
	versions *VersioningRepository

	mapMu     sync.Mutex
	libraries map[models.LibraryID]*libraryState
}

func NewCache(source SeriesSource, versions *VersioningRepository) *Cache {
	return &Cache{
		source:    source,
		versions:  versions,
		libraries: make(map[models.LibraryID]*libraryState),
	}
}

func (c *Cache) stateFor(libraryID models.LibraryID) *libraryState {
	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	ls, ok := c.libraries[libraryID]
	if !ok {
		ls = &libraryState{bundles: make(map[models.SeriesID][]byte)}
		c.libraries[libraryID] = ls
	}
	return ls
}

// GetSeriesBundle returns the cached bundle for one series, building
// it on first access.
func (c *Cache) GetSeriesBundle(ctx context.Context, libraryID models.LibraryID, seriesID models.SeriesID) ([]byte, error) {
	ls := c.stateFor(libraryID)

	ls.mu.RLock()
	if b, ok := ls.bundles[seriesID]; ok {
		ls.mu.RUnlock()
		return b, nil
	}
	ls.mu.RUnlock()

	return c.rebuildOne(ctx, ls, libraryID, seriesID)
}

// GetSeriesBundleSubset returns bundles for exactly the requested
// series, building any that are missing.
func (c *Cache) GetSeriesBundleSubset(ctx context.Context, libraryID models.LibraryID, seriesIDs []models.SeriesID) (map[models.SeriesID][]byte, error) {
	out := make(map[models.SeriesID][]byte, len(seriesIDs))
	for _, id := range seriesIDs {
		b, err := c.GetSeriesBundle(ctx, libraryID, id)
		if err != nil {
			return nil, err
		}
		out[id] = b
	}
	return out, nil
}

// GetLibraryBundle returns every cached series bundle for a library,
// rebuilding any missing ones with bounded parallelism.
func (c *Cache) GetLibraryBundle(ctx context.Context, libraryID models.LibraryID) (map[models.SeriesID][]byte, error) {
	seriesIDs, err := c.source.ListSeriesIDs(ctx, libraryID)
	if err != nil {
		return nil, fmt.Errorf("list series for library %s: %w", libraryID, err)
	}
	return c.rebuildMissing(ctx, libraryID, seriesIDs)
}

// GetLibraryBundleBlob returns the composed full-library bundle blob,
// reusing the last composed blob when the manifest signature hasn't
// moved (spec §4.3 step 4: "if a full bundle with matching signature
// exists, return it"). A signature miss rebuilds any stale/missing
// series, recomposes, and caches the new blob under the new signature.
func (c *Cache) GetLibraryBundleBlob(ctx context.Context, libraryID models.LibraryID) ([]byte, error) {
	count, sumVersion, err := c.versions.ManifestSignature(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	sig := bundleSignature{count: count, sumVersion: sumVersion}

	ls := c.stateFor(libraryID)
	ls.mu.RLock()
	if ls.fullBlob != nil && ls.fullSig == sig {
		blob := ls.fullBlob
		ls.mu.RUnlock()
		return blob, nil
	}
	ls.mu.RUnlock()

	bundles, err := c.GetLibraryBundle(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	blob, _ := ComposeBundle(bundles)

	ls.mu.Lock()
	ls.fullSig = sig
	ls.fullBlob = blob
	ls.mu.Unlock()

	return blob, nil
}

// EnsureSeriesVersioning reconciles the cached bundle count against
// the durable version table. A count divergence (series added/removed
// out from under the cache) triggers a full rebuild of every series in
// the library rather than trying to diff piecemeal.
func (c *Cache) EnsureSeriesVersioning(ctx context.Context, libraryID models.LibraryID) error {
	seriesIDs, err := c.source.ListSeriesIDs(ctx, libraryID)
	if err != nil {
		return fmt.Errorf("list series: %w", err)
	}
	dbCount, err := c.versions.CountForLibrary(ctx, libraryID)
	if err != nil {
		return fmt.Errorf("count versioned series: %w", err)
	}
	if dbCount == len(seriesIDs) {
		return nil
	}

	log.Printf("[bundlecache] library=%s series count diverged (cached=%d actual=%d), rebuilding all",
		libraryID, dbCount, len(seriesIDs))
	ls := c.stateFor(libraryID)
	ls.mu.Lock()
	ls.bundles = make(map[models.SeriesID][]byte)
	ls.mu.Unlock()
	_, err = c.rebuildMissing(ctx, libraryID, seriesIDs)
	return err
}

func (c *Cache) rebuildOne(ctx context.Context, ls *libraryState, libraryID models.LibraryID, seriesID models.SeriesID) ([]byte, error) {
	series, err := c.source.LoadSeries(ctx, seriesID)
	if err != nil {
		return nil, fmt.Errorf("load series %s: %w", seriesID, err)
	}
	payload, err := snapshot.EncodeSeries(series)
	if err != nil {
		return nil, fmt.Errorf("encode series %s: %w", seriesID, err)
	}

	hash := HashBundle(payload)
	existing, err := c.versions.Get(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	version := int64(1)
	if existing != nil {
		version = existing.Version + 1
	}
	if err := c.versions.Upsert(ctx, SeriesVersion{LibraryID: libraryID, SeriesID: seriesID, Version: version, Hash: hash}); err != nil {
		return nil, err
	}

	ls.mu.Lock()
	ls.bundles[seriesID] = payload
	ls.mu.Unlock()
	return payload, nil
}

// rebuildMissing rebuilds any series not already cached, bounded to
// rebuildParallelism concurrent rebuilds at a time.
func (c *Cache) rebuildMissing(ctx context.Context, libraryID models.LibraryID, seriesIDs []models.SeriesID) (map[models.SeriesID][]byte, error) {
	ls := c.stateFor(libraryID)

	var missing []models.SeriesID
	out := make(map[models.SeriesID][]byte, len(seriesIDs))
	ls.mu.RLock()
	for _, id := range seriesIDs {
		if b, ok := ls.bundles[id]; ok {
			out[id] = b
		} else {
			missing = append(missing, id)
		}
	}
	ls.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, rebuildParallelism)
	var mu sync.Mutex
	var firstErr error

	for _, id := range missing {
		wg.Add(1)
		sem <- struct{}{}
		go func(seriesID models.SeriesID) {
			defer wg.Done()
			defer func() { <-sem }()
			b, err := c.rebuildOne(ctx, ls, libraryID, seriesID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			out[seriesID] = b
		}(id)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
