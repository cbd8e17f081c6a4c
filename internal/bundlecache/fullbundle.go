package bundlecache

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/streamvault/streamvault/internal/models"
)

// ComposeBundle concatenates a set of per-series bundles into one
// content-addressed blob: a uint32 count, then one
// {16-byte series id}{uint32 length}{payload} record per series sorted
// by series ID so the same bundle set always serializes identically
// regardless of map iteration order, matching internal/snapshot's
// length-prefixed layout. The returned signature is HashBundle over the
// composed blob, letting a client cheaply compare "did anything in this
// library's bundle set change" without diffing every series.
func ComposeBundle(bundles map[models.SeriesID][]byte) (blob []byte, signature uint64) {
	ids := make([]models.SeriesID, 0, len(bundles))
	for id := range bundles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(len(ids)))
	for _, id := range ids {
		raw := [16]byte(id)
		buf.Write(raw[:])
		payload := bundles[id]
		binary.Write(&buf, binary.BigEndian, uint32(len(payload)))
		buf.Write(payload)
	}

	blob = buf.Bytes()
	signature = HashBundle(blob)
	return blob, signature
}
