package clientrepo

import "encoding/binary"

// BorrowedMovie is a view over a movie's raw encoded bytes, exactly as
// snapshot.EncodeMovie laid them out (id, title, sort_title, year,
// overview, content_rating). Reading Title or Year touches only the
// bytes for that field instead of decoding the whole record, the
// closest idiomatic Go analogue of a zero-copy archived read -
// grounded on avogabo-EDRmount's direct []byte + binary.LittleEndian
// field access over FUSE reads, adapted here to the big-endian layout
// snapshot already commits to.
type BorrowedMovie struct {
	raw []byte
}

func NewBorrowedMovie(raw []byte) BorrowedMovie { return BorrowedMovie{raw: raw} }

// ID reads the 16-byte id prefix directly.
func (b BorrowedMovie) ID() [16]byte {
	var id [16]byte
	copy(id[:], b.raw[0:16])
	return id
}

// Title decodes only the title field, skipping the id prefix.
func (b BorrowedMovie) Title() string {
	off := 16
	n := binary.BigEndian.Uint32(b.raw[off : off+4])
	off += 4
	return string(b.raw[off : off+int(n)])
}

// Year decodes the year field without touching title/sort_title
// bytes, by walking past their length prefixes rather than copying
// them.
func (b BorrowedMovie) Year() (int, bool) {
	off := 16
	off = skipString(b.raw, off) // title
	off = skipString(b.raw, off) // sort_title
	year := int32(binary.BigEndian.Uint32(b.raw[off : off+4]))
	if year == 0 {
		return 0, false
	}
	return int(year), true
}

func skipString(raw []byte, off int) int {
	n := binary.BigEndian.Uint32(raw[off : off+4])
	return off + 4 + int(n)
}
