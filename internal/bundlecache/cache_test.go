package bundlecache

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/snapshot"
)

type fakeSource struct {
	loads           int32
	seriesByLibrary map[models.LibraryID][]models.SeriesID
	seriesByID      map[models.SeriesID]snapshot.SeriesSnapshot
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		seriesByLibrary: make(map[models.LibraryID][]models.SeriesID),
		seriesByID:      make(map[models.SeriesID]snapshot.SeriesSnapshot),
	}
}

func (f *fakeSource) addSeries(libraryID models.LibraryID, title string) models.SeriesID {
	id := models.NewSeriesID()
	f.seriesByLibrary[libraryID] = append(f.seriesByLibrary[libraryID], id)
	f.seriesByID[id] = snapshot.SeriesSnapshot{Series: models.Series{ID: id, Title: title}}
	return id
}

func (f *fakeSource) ListSeriesIDs(ctx context.Context, libraryID models.LibraryID) ([]models.SeriesID, error) {
	return append([]models.SeriesID(nil), f.seriesByLibrary[libraryID]...), nil
}

func (f *fakeSource) LoadSeries(ctx context.Context, seriesID models.SeriesID) (snapshot.SeriesSnapshot, error) {
	atomic.AddInt32(&f.loads, 1)
	return f.seriesByID[seriesID], nil
}

// newTestCache wires a Cache against a sqlmock-backed VersioningRepository,
// pre-registering one Get+Upsert pair per expected rebuild. Expectations are
// unordered since rebuildMissing runs rebuilds across goroutines.
func newTestCache(t *testing.T, src *fakeSource, expectedRebuilds int) (*Cache, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	mock.MatchExpectationsInOrder(false)

	for i := 0; i < expectedRebuilds; i++ {
		mock.ExpectQuery("SELECT library_id, series_id, version, hash FROM series_bundle_versioning").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("INSERT INTO series_bundle_versioning").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	t.Cleanup(func() { db.Close() })
	return NewCache(src, NewVersioningRepository(db)), func() {}
}

func TestGetSeriesBundleBuildsOnceAndCaches(t *testing.T) {
	src := newFakeSource()
	libID := models.NewLibraryID()
	seriesID := src.addSeries(libID, "Breaking Bad")

	c, cleanup := newTestCache(t, src, 1)
	defer cleanup()

	first, err := c.GetSeriesBundle(context.Background(), libID, seriesID)
	if err != nil {
		t.Fatalf("GetSeriesBundle: %v", err)
	}
	if len(first) == 0 {
		t.Fatalf("expected non-empty bundle")
	}

	second, err := c.GetSeriesBundle(context.Background(), libID, seriesID)
	if err != nil {
		t.Fatalf("GetSeriesBundle (cached): %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("expected cached bundle to be byte-identical")
	}
	if atomic.LoadInt32(&src.loads) != 1 {
		t.Fatalf("expected exactly one LoadSeries call, got %d", src.loads)
	}
}

func TestGetLibraryBundleBuildsAllMissingConcurrently(t *testing.T) {
	src := newFakeSource()
	libID := models.NewLibraryID()
	for i := 0; i < 20; i++ {
		src.addSeries(libID, "Show")
	}

	c, cleanup := newTestCache(t, src, 20)
	defer cleanup()

	bundles, err := c.GetLibraryBundle(context.Background(), libID)
	if err != nil {
		t.Fatalf("GetLibraryBundle: %v", err)
	}
	if len(bundles) != 20 {
		t.Fatalf("expected 20 bundles, got %d", len(bundles))
	}
	if atomic.LoadInt32(&src.loads) != 20 {
		t.Fatalf("expected 20 LoadSeries calls, got %d", src.loads)
	}
}

func TestGetSeriesBundleSubsetOnlyBuildsRequested(t *testing.T) {
	src := newFakeSource()
	libID := models.NewLibraryID()
	a := src.addSeries(libID, "A")
	_ = src.addSeries(libID, "B")

	c, cleanup := newTestCache(t, src, 1)
	defer cleanup()

	bundles, err := c.GetSeriesBundleSubset(context.Background(), libID, []models.SeriesID{a})
	if err != nil {
		t.Fatalf("GetSeriesBundleSubset: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("expected exactly 1 bundle, got %d", len(bundles))
	}
	if atomic.LoadInt32(&src.loads) != 1 {
		t.Fatalf("expected 1 LoadSeries call, got %d", src.loads)
	}
}

func TestGetLibraryBundleBlobReusesCacheOnMatchingSignature(t *testing.T) {
	src := newFakeSource()
	libID := models.NewLibraryID()
	for i := 0; i < 3; i++ {
		src.addSeries(libID, "Show")
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)

	for i := 0; i < 3; i++ {
		mock.ExpectQuery("SELECT library_id, series_id, version, hash FROM series_bundle_versioning").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("INSERT INTO series_bundle_versioning").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	sigRows := sqlmock.NewRows([]string{"count", "sum"}).AddRow(3, 3)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\), COALESCE\\(SUM\\(version\\), 0\\) FROM series_bundle_versioning").
		WillReturnRows(sigRows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\), COALESCE\\(SUM\\(version\\), 0\\) FROM series_bundle_versioning").
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(3, 3))

	c := NewCache(src, NewVersioningRepository(db))

	first, err := c.GetLibraryBundleBlob(context.Background(), libID)
	if err != nil {
		t.Fatalf("GetLibraryBundleBlob: %v", err)
	}
	second, err := c.GetLibraryBundleBlob(context.Background(), libID)
	if err != nil {
		t.Fatalf("GetLibraryBundleBlob (cached): %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("expected byte-identical bundle across calls with unchanged signature")
	}
	if atomic.LoadInt32(&src.loads) != 3 {
		t.Fatalf("expected exactly 3 LoadSeries calls (no rebuild on second call), got %d", src.loads)
	}
}

func TestEnsureSeriesVersioningRebuildsOnCountDivergence(t *testing.T) {
	src := newFakeSource()
	libID := models.NewLibraryID()
	src.addSeries(libID, "A")
	src.addSeries(libID, "B")

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM series_bundle_versioning").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT library_id, series_id, version, hash FROM series_bundle_versioning").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("INSERT INTO series_bundle_versioning").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	c := NewCache(src, NewVersioningRepository(db))
	if err := c.EnsureSeriesVersioning(context.Background(), libID); err != nil {
		t.Fatalf("EnsureSeriesVersioning: %v", err)
	}
	if atomic.LoadInt32(&src.loads) != 2 {
		t.Fatalf("expected reconciliation to rebuild both series, got %d loads", src.loads)
	}
}
