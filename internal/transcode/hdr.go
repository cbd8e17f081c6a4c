package transcode

import (
	"strings"

	"github.com/streamvault/streamvault/internal/models"
)

// hdrColorTransfers are the color transfer characteristics recognized
// as HDR-indicating: PQ (smpte2084), HLG (arib-std-b67), and the
// legacy smpte2086 mastering-metadata transfer tag some encoders emit.
var hdrColorTransfers = map[string]bool{
	"smpte2084":   true,
	"arib-std-b67": true,
	"smpte2086":   true,
}

// IsHDR reports whether source technical metadata indicates HDR
// content: bit depth over 8, a known HDR
// color transfer, or BT.2020 primaries. Any one criterion is
// sufficient — this is the literal spec formula, kept distinct from
// models.TechnicalMetadata.IsHDR (which additionally requires 10-bit)
// since the transcoding engine's tone-mapping decision is the
// authoritative consumer of this exact rule.
func IsHDR(meta *models.TechnicalMetadata) bool {
	if meta == nil {
		return false
	}
	if meta.BitDepth > 8 {
		return true
	}
	if hdrColorTransfers[meta.ColorTransfer] {
		return true
	}
	if strings.Contains(meta.ColorPrimaries, "bt2020") {
		return true
	}
	return false
}
