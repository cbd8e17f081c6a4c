package clientrepo

import (
	"testing"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/snapshot"
)

func buildArchive(t *testing.T, movies ...models.Movie) ([]byte, models.LibraryID) {
	t.Helper()
	libID := models.NewLibraryID()
	ls := snapshot.LibrarySnapshot{
		Library: models.Library{ID: libID, Name: "Movies", Type: models.LibraryTypeMovies},
		Movies:  movies,
	}
	archive, err := snapshot.NewBuilder().Build([]snapshot.LibrarySnapshot{ls})
	if err != nil {
		t.Fatalf("build archive: %v", err)
	}
	return archive, libID
}

func TestLoadAndGetRoundTrip(t *testing.T) {
	year := 1999
	movie := models.Movie{ID: models.NewMovieID(), Title: "The Matrix", SortTitle: "Matrix, The", Year: &year}
	archive, _ := buildArchive(t, movie)

	repo := New()
	if err := repo.Load(archive); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, ok := repo.Get(models.MediaID(movie.ID))
	if !ok {
		t.Fatalf("expected movie to be found")
	}
	if got.Title != movie.Title || got.Year == nil || *got.Year != year {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestDeletedAlwaysWinsOverSnapshot(t *testing.T) {
	movie := models.Movie{ID: models.NewMovieID(), Title: "The Matrix", SortTitle: "Matrix, The"}
	archive, _ := buildArchive(t, movie)

	repo := New()
	if err := repo.Load(archive); err != nil {
		t.Fatalf("Load: %v", err)
	}
	id := models.MediaID(movie.ID)
	repo.Delete(id)

	if _, ok := repo.Get(id); ok {
		t.Fatalf("expected deleted media to be absent regardless of snapshot contents")
	}
}

func TestModifiedOverridesSnapshot(t *testing.T) {
	movie := models.Movie{ID: models.NewMovieID(), Title: "Old Title", SortTitle: "Old Title"}
	archive, _ := buildArchive(t, movie)

	repo := New()
	if err := repo.Load(archive); err != nil {
		t.Fatalf("Load: %v", err)
	}
	id := models.MediaID(movie.ID)
	updated := movie
	updated.Title = "New Title"
	repo.Modify(updated)

	got, ok := repo.Get(id)
	if !ok || got.Title != "New Title" {
		t.Fatalf("expected overlay modification to win, got %+v", got)
	}
}

func TestClearDropsOverlayAndIndex(t *testing.T) {
	movie := models.Movie{ID: models.NewMovieID(), Title: "The Matrix", SortTitle: "Matrix, The"}
	archive, libID := buildArchive(t, movie)

	repo := New()
	if err := repo.Load(archive); err != nil {
		t.Fatalf("Load: %v", err)
	}
	repo.Add(models.Movie{ID: models.NewMovieID(), Title: "New Arrival"})
	repo.Clear()

	if len(repo.Libraries()) != 0 {
		t.Fatalf("expected Clear to drop the library index")
	}
	if _, ok := repo.Get(models.MediaID(movie.ID)); ok {
		t.Fatalf("expected Clear to drop snapshot contents along with the overlay")
	}
	_ = libID
}

func TestGetBorrowedDecodesOnlyRequestedFields(t *testing.T) {
	year := 2010
	movie := models.Movie{ID: models.NewMovieID(), Title: "Inception", SortTitle: "Inception", Year: &year}
	archive, _ := buildArchive(t, movie)

	repo := New()
	if err := repo.Load(archive); err != nil {
		t.Fatalf("Load: %v", err)
	}

	borrowed, ok := repo.GetBorrowed(models.MediaID(movie.ID))
	if !ok {
		t.Fatalf("expected borrowed view to be found")
	}
	if borrowed.Title() != "Inception" {
		t.Fatalf("got title %q", borrowed.Title())
	}
	y, hasYear := borrowed.Year()
	if !hasYear || y != 2010 {
		t.Fatalf("got year %d, hasYear=%v", y, hasYear)
	}
}

func TestGetBorrowedUnavailableAfterOverlayModify(t *testing.T) {
	movie := models.Movie{ID: models.NewMovieID(), Title: "Old", SortTitle: "Old"}
	archive, _ := buildArchive(t, movie)

	repo := New()
	if err := repo.Load(archive); err != nil {
		t.Fatalf("Load: %v", err)
	}
	repo.Modify(movie)

	if _, ok := repo.GetBorrowed(models.MediaID(movie.ID)); ok {
		t.Fatalf("expected borrowed view to be unavailable once the overlay overrides the snapshot")
	}
}
