package snapshot

import (
	"bytes"
	"testing"

	"github.com/streamvault/streamvault/internal/clientrepo"
	"github.com/streamvault/streamvault/internal/models"
)

func sampleLibrary() LibrarySnapshot {
	year := 1999
	overview := "A hacker discovers reality is a simulation."
	return LibrarySnapshot{
		Library: models.Library{ID: models.NewLibraryID(), Name: "Movies", Type: models.LibraryTypeMovies},
		Movies: []models.Movie{
			{ID: models.NewMovieID(), Title: "The Matrix", SortTitle: "Matrix, The", Year: &year, Overview: &overview},
			{ID: models.NewMovieID(), Title: "Untitled", SortTitle: "Untitled"},
		},
	}
}

func TestBuildIsDeterministicForIdenticalInput(t *testing.T) {
	lib := sampleLibrary()
	b := NewBuilder()

	first, err := b.Build([]LibrarySnapshot{lib})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := b.Build([]LibrarySnapshot{lib})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected byte-identical output for identical input")
	}
}

func TestEncodeMovieRoundTripsThroughFields(t *testing.T) {
	year := 2010
	overview := "A thief who steals secrets through dreams."
	rating := "PG-13"
	m := models.Movie{
		ID:            models.NewMovieID(),
		Title:         "Inception",
		SortTitle:     "Inception",
		Year:          &year,
		Overview:      &overview,
		ContentRating: &rating,
	}

	encoded, err := EncodeMovie(m)
	if err != nil {
		t.Fatalf("EncodeMovie: %v", err)
	}
	if len(encoded) == 0 {
		t.Fatalf("expected non-empty encoding")
	}
}
