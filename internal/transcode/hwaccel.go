package transcode

import (
	"log"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// hwCandidate is one platform-specific hardware encoder family the
// selector probes, in preference order: NVENC, QSV,
// VAAPI, VideoToolbox, AMF. Each entry carries the ffmpeg encoder
// suffix (e.g. "_nvenc") and the GOOS it applies to ("" = any).
type hwCandidate struct {
	suffix string
	goos   string
}

var hwPreferenceOrder = []hwCandidate{
	{suffix: "_nvenc", goos: ""},
	{suffix: "_qsv", goos: ""},
	{suffix: "_vaapi", goos: "linux"},
	{suffix: "_videotoolbox", goos: "darwin"},
	{suffix: "_amf", goos: "windows"},
}

// EncoderSelection names the encoder chosen for a codec family along
// with the hwaccel input flags required to feed it, and whether it is
// a hardware path at all (selecting "libx264"/"libx265" counts as
// software).
type EncoderSelection struct {
	Encoder    string
	IsHardware string // empty for software, else the family name (e.g. "nvenc")
	InputArgs  []string
}

// selectorCache is the process-wide hardware-encoder detection cache:
// initialized once on first use and thereafter read-only, per the
// "global mutable state" allowance. It is keyed by codec family
// ("h264"/"hevc") since NVENC availability for one doesn't imply it for
// the other on some GPUs.
type selectorCache struct {
	mu     sync.Mutex
	probed map[string]bool
	result map[string]EncoderSelection
}

var globalSelector = &selectorCache{
	probed: make(map[string]bool),
	result: make(map[string]EncoderSelection),
}

// SelectEncoder returns the best available encoder for codecFamily
// ("h264" or "hevc"), probing hardware paths in preference order and
// caching the result for the lifetime of the process. ffmpegPath is
// used both to list compiled-in encoders and to run the one-frame
// hardware availability test.
func SelectEncoder(ffmpegPath, codecFamily string) EncoderSelection {
	globalSelector.mu.Lock()
	defer globalSelector.mu.Unlock()

	if globalSelector.probed[codecFamily] {
		return globalSelector.result[codecFamily]
	}
	globalSelector.probed[codecFamily] = true

	sel := probeEncoder(ffmpegPath, codecFamily)
	globalSelector.result[codecFamily] = sel
	return sel
}

func probeEncoder(ffmpegPath, codecFamily string) EncoderSelection {
	cmd := exec.Command(ffmpegPath, "-hide_banner", "-encoders")
	output, _ := cmd.Output()
	encoderList := string(output)

	for _, cand := range hwPreferenceOrder {
		if cand.goos != "" && cand.goos != runtime.GOOS {
			continue
		}
		name := codecFamily + cand.suffix
		if !strings.Contains(encoderList, name) {
			continue
		}
		if testHardwareEncoder(ffmpegPath, name) {
			log.Printf("[transcode] selected hardware encoder %s for %s", name, codecFamily)
			return EncoderSelection{
				Encoder:   name,
				IsHardware: familyName(cand.suffix),
				InputArgs: hwInputArgs(name),
			}
		}
		log.Printf("[transcode] encoder %s compiled in but hardware test failed, continuing", name)
	}

	sw := softwareEncoder(codecFamily)
	log.Printf("[transcode] no hardware encoder available for %s, using %s", codecFamily, sw)
	return EncoderSelection{Encoder: sw}
}

func familyName(suffix string) string { return strings.TrimPrefix(suffix, "_") }

func softwareEncoder(codecFamily string) string {
	if codecFamily == "hevc" {
		return "libx265"
	}
	return "libx264"
}

// testHardwareEncoder verifies a hardware encoder actually works by
// encoding a single synthetic test frame, catching the case where
// ffmpeg was compiled with the encoder but the host has no matching
// GPU/driver.
func testHardwareEncoder(ffmpegPath, encoder string) bool {
	args := []string{"-hide_banner", "-v", "error"}

	switch {
	case strings.Contains(encoder, "qsv"):
		args = append(args, "-init_hw_device", "qsv=hw:/dev/dri/renderD128")
	case strings.Contains(encoder, "vaapi"):
		args = append(args, "-init_hw_device", "vaapi=/dev/dri/renderD128")
	}

	args = append(args,
		"-f", "lavfi", "-i", "color=black:s=64x64:d=0.1:r=1",
		"-frames:v", "1", "-an",
	)

	if strings.Contains(encoder, "vaapi") {
		args = append(args, "-vf", "format=nv12,hwupload")
	}

	args = append(args, "-c:v", encoder, "-f", "null", "-")

	cmd := exec.Command(ffmpegPath, args...)
	if err := cmd.Run(); err != nil {
		return false
	}
	return true
}

// hwInputArgs returns the ffmpeg input-side flags needed to decode on
// the same device the encoder will run on, matching
// internal/stream/transcoder.go's buildHWAccelInputArgs.
func hwInputArgs(encoder string) []string {
	switch {
	case strings.Contains(encoder, "nvenc"):
		return []string{"-hwaccel", "cuda", "-hwaccel_output_format", "cuda"}
	case strings.Contains(encoder, "qsv"):
		return []string{"-hwaccel", "qsv", "-qsv_device", "/dev/dri/renderD128", "-hwaccel_output_format", "qsv"}
	case strings.Contains(encoder, "vaapi"):
		return []string{"-hwaccel", "vaapi", "-hwaccel_output_format", "vaapi", "-vaapi_device", "/dev/dri/renderD128"}
	case strings.Contains(encoder, "videotoolbox"):
		return []string{"-hwaccel", "videotoolbox"}
	default:
		return nil
	}
}

// hardwareFailurePatterns are known-bad ffmpeg stderr substrings that
// mean the hardware path is unusable this run (missing device, driver
// crash) rather than a transient encode error — worth one software
// retry rather than burning all of MaxRetries on the same dead path.
var hardwareFailurePatterns = []string{
	"device creation failed",
	"no device available",
	"cannot load libmfx",
	"failed to initialise qsv",
	"error initializing output stream",
	"cannot open the hw device",
}

// IsHardwareFailure reports whether stderr output names a known
// hardware-unavailability condition.
func IsHardwareFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, pat := range hardwareFailurePatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}
