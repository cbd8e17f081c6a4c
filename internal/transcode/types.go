// Package transcode drives on-demand HLS generation: a priority job
// queue, a worker pool supervising external ffmpeg processes, an
// adaptive-bitrate planner, a hardware-encoder selector, and a
// filesystem cache manager. Grounded on internal/stream/transcoder.go's
// exec.Cmd lifecycle and hwaccel probing, restructured into the
// job/queue/worker-pool split the media server's transcoding engine
// needs for master+variant adaptive bitrate jobs.
package transcode

import (
	"sync"
	"time"

	"github.com/streamvault/streamvault/internal/models"
)

// Priority orders transcoding jobs within the queue. Unlike the scan
// orchestrator's P0/P1/Low scheme, the transcoding engine has four
// levels so the adaptive-bitrate planner can push master-playlist jobs
// below regular variant jobs without starving them outright.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// Status tracks a transcoding job through its lifecycle. Pending ->
// Queued -> Processing -> (Completed | Failed | DeadLetter), mirroring
// the orchestrator queue's state machine but scoped to this package
// since transcode jobs never share rows with scan jobs.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeadLetter Status = "dead_letter"
)

// Profile names one fixed transcoding target: a codec pair, bitrates,
// an optional forced resolution, and whether HDR input should be
// tone-mapped down to SDR for this profile.
type Profile struct {
	Name             string
	VideoCodec       string
	AudioCodec       string
	VideoBitrateKbps int
	AudioBitrateKbps int
	Width            int
	Height           int
	Preset           string
	ApplyToneMapping bool
}

// ProfileVariant is one rung of an adaptive-bitrate ladder.
type ProfileVariant struct {
	Name             string
	Width            int
	Height           int
	VideoBitrateKbps int
	AudioBitrateKbps int
	Preset           string
}

// AdaptiveBitrateProfile is the full ladder a master playlist is built
// from. Variants are assumed sorted from highest to lowest quality.
type AdaptiveBitrateProfile struct {
	Variants []ProfileVariant
}

// StandardLadder is the default variant set the planner sizes down
// from for a given source resolution, keyed by name so the master
// playlist's bandwidth/resolution table (the hardcoded ladder) can
// look values up without re-deriving them from a live Profile.
var StandardLadder = AdaptiveBitrateProfile{
	Variants: []ProfileVariant{
		{Name: "original", Width: 0, Height: 0, VideoBitrateKbps: 0, AudioBitrateKbps: 192, Preset: "slow"},
		{Name: "4k", Width: 3840, Height: 2160, VideoBitrateKbps: 14000, AudioBitrateKbps: 192, Preset: "medium"},
		{Name: "1080p", Width: 1920, Height: 1080, VideoBitrateKbps: 5000, AudioBitrateKbps: 192, Preset: "medium"},
		{Name: "720p", Width: 1280, Height: 720, VideoBitrateKbps: 2800, AudioBitrateKbps: 128, Preset: "fast"},
		{Name: "480p", Width: 854, Height: 480, VideoBitrateKbps: 1400, AudioBitrateKbps: 128, Preset: "fast"},
		{Name: "360p", Width: 640, Height: 360, VideoBitrateKbps: 800, AudioBitrateKbps: 96, Preset: "faster"},
	},
}

// VariantByName looks up a ladder rung by its name.
func VariantByName(name string) (ProfileVariant, bool) {
	for _, v := range StandardLadder.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return ProfileVariant{}, false
}

// ToneMappingConfig carries the source color characteristics the
// filter-chain builder needs to pick a tonemap algorithm and whether
// one is required at all.
type ToneMappingConfig struct {
	SourceColorTransfer  string
	SourceColorPrimaries string
	SourceBitDepth       int
}

// JobKind discriminates a Regular single-profile job from a Master job
// that aggregates a set of variant jobs into one adaptive-bitrate
// playlist.
type JobKind string

const (
	JobKindRegular JobKind = "regular"
	JobKindMaster  JobKind = "master"
)

// Job is one unit of transcoding work. For JobKindMaster, Profile is
// unused and VariantJobIDs names the regular jobs this master
// aggregates progress and status from.
type Job struct {
	ID             string
	MediaID        string
	MediaPath      string
	Kind           JobKind
	Profile        Profile
	VariantJobIDs  []string
	OutputDir      string
	Priority       Priority
	Status         Status
	Progress       float64
	RetryCount     int
	LastError      string
	SourceMetadata *models.TechnicalMetadata
	ToneMapping    *ToneMappingConfig
	SourceDuration float64
	SourceFramerate float64
	CreatedAt      time.Time
	seq            uint64 // FIFO tiebreak within a priority level
}

// snapshot returns a value copy of the job's externally-visible fields,
// safe to hand to a caller without exposing the Pool's internal mutex.
func (j *Job) snapshot() Job {
	cp := *j
	cp.VariantJobIDs = append([]string(nil), j.VariantJobIDs...)
	return cp
}

// jobState is the Pool's internal bookkeeping for one job, guarded by
// its own mu.
type jobState struct {
	job *Job
	mu  sync.Mutex
}
