package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Planner builds the adaptive-bitrate variant set for a source
// resolution, probes which variants are already cached, selects the
// two variants that start playback immediately, and writes both the
// initial and final master playlists. Grounded on CineVault's "Adaptive
// path" algorithm.
type Planner struct {
	cache *CacheManager
}

func NewPlanner(cache *CacheManager) *Planner {
	return &Planner{cache: cache}
}

// GenerateVariants returns the ladder rungs sized for a source of
// sourceWidth x sourceHeight: every standard variant at or below the
// source resolution, plus "original" always included so the player can
// fall back to an untouched copy.
func (p *Planner) GenerateVariants(sourceWidth, sourceHeight int) []ProfileVariant {
	var out []ProfileVariant
	for _, v := range StandardLadder.Variants {
		if v.Name == "original" {
			out = append(out, v)
			continue
		}
		if v.Height <= sourceHeight || sourceHeight == 0 {
			out = append(out, v)
		}
	}
	return out
}

// ProbeCachePresence checks, concurrently, whether every variant in
// variants already has a cached playlist for mediaID. Returns true iff
// all are present AND a master playlist already exists — the
// short-circuit condition for end-to-end scenario 5.
func (p *Planner) ProbeCachePresence(mediaID string, variants []ProfileVariant) bool {
	if !p.cache.HasMasterPlaylist(mediaID) {
		return false
	}
	var wg sync.WaitGroup
	results := make([]bool, len(variants))
	for i, v := range variants {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = p.cache.HasCachedVersion(mediaID, name)
		}(i, v.Name)
	}
	wg.Wait()
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

// SelectInitialVariants picks the two variants submitted eagerly so
// playback can start before the full ladder finishes: a "fast" variant
// (720p, falling back to 480p) and "original", or any two variants if
// neither name is present in the ladder.
func (p *Planner) SelectInitialVariants(variants []ProfileVariant) []ProfileVariant {
	byName := make(map[string]ProfileVariant, len(variants))
	for _, v := range variants {
		byName[v.Name] = v
	}

	var initial []ProfileVariant
	if v, ok := byName["720p"]; ok {
		initial = append(initial, v)
	} else if v, ok := byName["480p"]; ok {
		initial = append(initial, v)
	}
	if v, ok := byName["original"]; ok {
		initial = append(initial, v)
	}
	if len(initial) >= 2 {
		return initial[:2]
	}
	if len(variants) >= 2 {
		return variants[:2]
	}
	return variants
}

// ladderBandwidth returns the BANDWIDTH/RESOLUTION values the master
// playlist advertises for a named variant, keeping the ladder table an
// explicit lookup rather than re-derived from a live Profile.
func ladderBandwidth(variant ProfileVariant) (bandwidth int, width, height int) {
	bandwidth = (variant.VideoBitrateKbps + variant.AudioBitrateKbps) * 1000
	if bandwidth == 0 {
		// "original" carries no fixed bitrate; advertise a
		// conservative high-water value so ABR players don't starve it.
		bandwidth = 20_000_000
	}
	return bandwidth, variant.Width, variant.Height
}

// WriteMasterPlaylist writes outputDir/master.m3u8 listing exactly the
// given variants, in order, each pointing at variant/<name>/playlist.m3u8
// relative to the master playlist.
func WriteMasterPlaylist(outputDir string, variants []ProfileVariant) error {
	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:3\n")
	for _, v := range variants {
		bw, w, h := ladderBandwidth(v)
		sb.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d", bw))
		if w > 0 && h > 0 {
			sb.WriteString(fmt.Sprintf(",RESOLUTION=%dx%d", w, h))
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("variant/%s/playlist.m3u8\n", v.Name))
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create master playlist dir: %w", err)
	}
	return os.WriteFile(filepath.Join(outputDir, "master.m3u8"), []byte(sb.String()), 0o644)
}

// VariantStatus is the status view the aggregator needs for one
// variant job of a master.
type VariantStatus struct {
	Status   Status
	Progress float64
	Started  bool
}

// AggregateMasterStatus implements the status-aggregation formula
// exactly: any Failed dominates; Completed requires every variant
// Completed (and at least one variant); Processing sums progress over
// variants that are Processing or have started, excluding
// Pending/Queued from the denominator to avoid diluting the average;
// otherwise Pending.
func AggregateMasterStatus(variants []VariantStatus) (Status, float64) {
	if len(variants) == 0 {
		return StatusPending, 0
	}

	for _, v := range variants {
		if v.Status == StatusFailed {
			return StatusFailed, 0
		}
	}

	allCompleted := true
	for _, v := range variants {
		if v.Status != StatusCompleted {
			allCompleted = false
			break
		}
	}
	if allCompleted {
		return StatusCompleted, 1
	}

	var sum float64
	var active int
	for _, v := range variants {
		if v.Status == StatusProcessing || v.Started {
			sum += v.Progress
			active++
		}
	}
	if active > 0 {
		return StatusProcessing, sum / float64(active)
	}

	return StatusPending, 0
}
