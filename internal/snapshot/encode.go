// Package snapshot builds the server-side binary archive served by
// GET /api/v1/libraries. Go has no rkyv; this reimplements the
// zero-copy idea idiomatically as a flat, length-prefixed binary
// format with a fixed field order, grounded on CineVault's
// preference for explicit hand-rolled binary/SQL code over
// reflection-heavy encoders (internal/ffmpeg/ffprobe.go's manual
// struct shapes, internal/repository's manual Scan calls).
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/streamvault/streamvault/internal/models"
)

// LibrarySnapshot is everything under one library, assembled by the
// caller (typically a repository layer) before encoding.
type LibrarySnapshot struct {
	Library models.Library
	Movies  []models.Movie
	Series  []SeriesSnapshot
}

type SeriesSnapshot struct {
	Series  models.Series
	Seasons []SeasonSnapshot
}

type SeasonSnapshot struct {
	Season   models.Season
	Episodes []models.Episode
}

func writeUUIDBytes(buf *bytes.Buffer, b [16]byte) { buf.Write(b[:]) }

func writeString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func writeOptString(buf *bytes.Buffer, s *string) error {
	if s == nil {
		return writeString(buf, "")
	}
	return writeString(buf, *s)
}

// EncodeMovie writes one movie record in fixed field order:
// id, title, sort_title, year(int32, 0=unset), overview, content_rating.
// Field order here is load-bearing: BorrowedMovie's offsets in
// borrowed.go assume this exact layout.
func EncodeMovie(m models.Movie) ([]byte, error) {
	var buf bytes.Buffer
	id := [16]byte(m.ID)
	writeUUIDBytes(&buf, id)
	if err := writeString(&buf, m.Title); err != nil {
		return nil, err
	}
	if err := writeString(&buf, m.SortTitle); err != nil {
		return nil, err
	}
	year := int32(0)
	if m.Year != nil {
		year = int32(*m.Year)
	}
	if err := binary.Write(&buf, binary.BigEndian, year); err != nil {
		return nil, err
	}
	if err := writeOptString(&buf, m.Overview); err != nil {
		return nil, err
	}
	if err := writeOptString(&buf, m.ContentRating); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func EncodeEpisode(e models.Episode) ([]byte, error) {
	var buf bytes.Buffer
	id := [16]byte(e.ID)
	writeUUIDBytes(&buf, id)
	if err := binary.Write(&buf, binary.BigEndian, int32(e.EpisodeNumber)); err != nil {
		return nil, err
	}
	if err := writeString(&buf, e.Title); err != nil {
		return nil, err
	}
	if err := writeOptString(&buf, e.Overview); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func EncodeSeason(s SeasonSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	id := [16]byte(s.Season.ID)
	writeUUIDBytes(&buf, id)
	if err := binary.Write(&buf, binary.BigEndian, int32(s.Season.SeasonNumber)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(s.Episodes))); err != nil {
		return nil, err
	}
	for _, ep := range s.Episodes {
		epBytes, err := EncodeEpisode(ep)
		if err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, uint32(len(epBytes))); err != nil {
			return nil, err
		}
		buf.Write(epBytes)
	}
	return buf.Bytes(), nil
}

func EncodeSeries(s SeriesSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	id := [16]byte(s.Series.ID)
	writeUUIDBytes(&buf, id)
	if err := writeString(&buf, s.Series.Title); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(s.Seasons))); err != nil {
		return nil, err
	}
	for _, season := range s.Seasons {
		seasonBytes, err := EncodeSeason(season)
		if err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, uint32(len(seasonBytes))); err != nil {
			return nil, err
		}
		buf.Write(seasonBytes)
	}
	return buf.Bytes(), nil
}

// EncodeLibrary writes a full library record: id, name, type, movie
// count + length-prefixed movies, series count + length-prefixed series.
// Root paths are not part of the record.
func EncodeLibrary(ls LibrarySnapshot) ([]byte, error) {
	var buf bytes.Buffer
	id := [16]byte(ls.Library.ID)
	writeUUIDBytes(&buf, id)
	if err := writeString(&buf, ls.Library.Name); err != nil {
		return nil, err
	}
	if err := writeString(&buf, string(ls.Library.Type)); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, uint32(len(ls.Movies))); err != nil {
		return nil, err
	}
	for _, m := range ls.Movies {
		mb, err := EncodeMovie(m)
		if err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, uint32(len(mb))); err != nil {
			return nil, err
		}
		buf.Write(mb)
	}

	if err := binary.Write(&buf, binary.BigEndian, uint32(len(ls.Series))); err != nil {
		return nil, err
	}
	for _, s := range ls.Series {
		sb, err := EncodeSeries(s)
		if err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, uint32(len(sb))); err != nil {
			return nil, err
		}
		buf.Write(sb)
	}

	return buf.Bytes(), nil
}

// Builder assembles the full archive: one {uint32 length}{payload}
// record per library, in the order given.
type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Build(libraries []LibrarySnapshot) ([]byte, error) {
	var out bytes.Buffer
	if err := binary.Write(&out, binary.BigEndian, uint32(len(libraries))); err != nil {
		return nil, fmt.Errorf("write library count: %w", err)
	}
	for _, ls := range libraries {
		payload, err := EncodeLibrary(ls)
		if err != nil {
			return nil, fmt.Errorf("encode library %s: %w", ls.Library.ID, err)
		}
		if err := binary.Write(&out, binary.BigEndian, uint32(len(payload))); err != nil {
			return nil, err
		}
		out.Write(payload)
	}
	return out.Bytes(), nil
}
