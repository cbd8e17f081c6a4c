// Package clientrepo is the client-side counterpart to
// internal/snapshot: it holds the server's binary archive in memory,
// indexes it, and overlays in-session adds/modifies/deletes on top of
// it without ever mutating the underlying buffer.
package clientrepo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/streamvault/streamvault/internal/models"
)

func readUUID(r *bytes.Reader) ([16]byte, error) {
	var b [16]byte
	_, err := io.ReadFull(r, b[:])
	return b, err
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return "", err
		}
	}
	return string(b), nil
}

func readOptString(r *bytes.Reader) (*string, error) {
	s, err := readString(r)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

// DecodeMovie fully decodes one movie record.
func DecodeMovie(b []byte) (models.Movie, error) {
	r := bytes.NewReader(b)
	id, err := readUUID(r)
	if err != nil {
		return models.Movie{}, err
	}
	title, err := readString(r)
	if err != nil {
		return models.Movie{}, err
	}
	sortTitle, err := readString(r)
	if err != nil {
		return models.Movie{}, err
	}
	var year int32
	if err := binary.Read(r, binary.BigEndian, &year); err != nil {
		return models.Movie{}, err
	}
	overview, err := readOptString(r)
	if err != nil {
		return models.Movie{}, err
	}
	rating, err := readOptString(r)
	if err != nil {
		return models.Movie{}, err
	}

	m := models.Movie{
		ID:            models.MovieID(id),
		Title:         title,
		SortTitle:     sortTitle,
		Overview:      overview,
		ContentRating: rating,
	}
	if year != 0 {
		y := int(year)
		m.Year = &y
	}
	return m, nil
}

// DecodedLibrary is a fully materialized library, indexed by media ID
// for O(1) lookup once decoded.
type DecodedLibrary struct {
	Library models.Library
	Movies  map[models.MediaID]models.Movie
	movieBytes map[models.MediaID][]byte
}

// DecodeLibrary decodes a library record produced by
// snapshot.EncodeLibrary, retaining each movie's raw byte span so
// BorrowedMovie can be built without re-serializing.
func DecodeLibrary(b []byte) (*DecodedLibrary, error) {
	r := bytes.NewReader(b)
	id, err := readUUID(r)
	if err != nil {
		return nil, fmt.Errorf("read library id: %w", err)
	}
	name, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read library name: %w", err)
	}
	libType, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read library type: %w", err)
	}

	dl := &DecodedLibrary{
		Library: models.Library{
			ID:   models.LibraryID(id),
			Name: name,
			Type: models.LibraryType(libType),
		},
		Movies:     make(map[models.MediaID]models.Movie),
		movieBytes: make(map[models.MediaID][]byte),
	}

	var movieCount uint32
	if err := binary.Read(r, binary.BigEndian, &movieCount); err != nil {
		return nil, err
	}
	for i := uint32(0); i < movieCount; i++ {
		var recLen uint32
		if err := binary.Read(r, binary.BigEndian, &recLen); err != nil {
			return nil, err
		}
		start := len(b) - r.Len()
		rec := b[start : start+int(recLen)]
		if _, err := r.Seek(int64(recLen), io.SeekCurrent); err != nil {
			return nil, err
		}
		movie, err := DecodeMovie(rec)
		if err != nil {
			return nil, fmt.Errorf("decode movie %d: %w", i, err)
		}
		mediaID := models.MediaID(movie.ID)
		dl.Movies[mediaID] = movie
		dl.movieBytes[mediaID] = rec
	}

	// Series/season/episode trees are skipped here deliberately: the
	// client repository only needs movie-level random access for the
	// flows clientrepo.Repository serves today. The remaining bytes
	// (series records) are left unread in r and simply unused.

	return dl, nil
}
