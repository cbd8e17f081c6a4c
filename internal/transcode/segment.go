package transcode

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetOrGenerateSegment returns the on-disk path to segment n of a
// job's output, triggering production if it hasn't been written yet.
// Segments are produced lazily by the running (or re-submitted)
// ffmpeg process, not pre-generated in bulk.
func (p *Pool) GetOrGenerateSegment(jobID string, n int) (string, error) {
	job, ok := p.Get(jobID)
	if !ok {
		return "", fmt.Errorf("unknown job %s", jobID)
	}

	segPath := filepath.Join(job.OutputDir, fmt.Sprintf("segment_%03d.ts", n))
	if _, err := os.Stat(segPath); err == nil {
		return segPath, nil
	}

	// Not yet produced: the job is either still queued/processing (the
	// ongoing ffmpeg invocation will produce it shortly) or finished
	// with fewer segments than requested (out of range). Re-submitting
	// an already-queued/processing job is a no-op from the caller's
	// perspective other than the wait; a dead-lettered job needs a
	// fresh submission to try again.
	if job.Status == StatusDeadLetter || job.Status == StatusFailed {
		p.Submit(&job)
	}
	return "", ErrSegmentPending
}

// ErrSegmentPending signals the caller (an HTTP handler) to respond
// 202/Retry-After, the same pending-resource convention used for
// not-yet-materialized images.
var ErrSegmentPending = fmt.Errorf("segment not yet produced")
