package transcode

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// Defaults for the worker pool's retry and timeout behavior.
const (
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 5 * time.Second
	DefaultJobTimeout  = time.Hour
	DefaultSegmentSecs = 4
)

// ProgressFunc receives live progress updates (0..1) for a job as its
// ffmpeg process reports them, so an SSE/WS fan-out can republish them
// as JobProgress events.
type ProgressFunc func(jobID string, progress float64)

// Pool is the fixed-size worker pool draining a PriorityQueue and
// supervising one ffmpeg child process per Regular job at a time per
// worker slot. Grounded on internal/stream.Transcoder's
// mutex-guarded-sessions idiom, generalized into N independent workers.
type Pool struct {
	queue      *PriorityQueue
	ffmpegPath string
	ffprobePath string
	cache      *CacheManager
	onProgress ProgressFunc

	concurrency int
	maxRetries  int
	retryDelay  time.Duration
	jobTimeout  time.Duration

	affinity *rendezvous.Rendezvous // media ID -> worker slot hash, read only by WorkerSlotFor

	mu   sync.Mutex
	jobs map[string]*Job // all known jobs, regular + master, by ID
	stop chan struct{}
	wg   sync.WaitGroup
}

// PoolOption customizes Pool construction.
type PoolOption func(*Pool)

func WithConcurrency(n int) PoolOption { return func(p *Pool) { p.concurrency = n } }
func WithMaxRetries(n int) PoolOption  { return func(p *Pool) { p.maxRetries = n } }
func WithRetryDelay(d time.Duration) PoolOption { return func(p *Pool) { p.retryDelay = d } }
func WithJobTimeout(d time.Duration) PoolOption { return func(p *Pool) { p.jobTimeout = d } }
func WithProgressFunc(f ProgressFunc) PoolOption { return func(p *Pool) { p.onProgress = f } }

// SetProgressFunc wires a progress callback after construction, for
// callers (internal/api) that need the Pool before they can build the
// callback it feeds.
func (p *Pool) SetProgressFunc(f ProgressFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onProgress = f
}

func NewPool(queue *PriorityQueue, ffmpegPath, ffprobePath string, cache *CacheManager, opts ...PoolOption) *Pool {
	p := &Pool{
		queue:       queue,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		cache:       cache,
		concurrency: 2,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		jobTimeout:  DefaultJobTimeout,
		jobs:        make(map[string]*Job),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.rebuildAffinity()
	return p
}

func (p *Pool) rebuildAffinity() {
	slots := make([]string, p.concurrency)
	for i := range slots {
		slots[i] = fmt.Sprintf("slot-%d", i)
	}
	p.affinity = rendezvous.New(slots, xxhash.Sum64String)
}

// WorkerSlotFor returns the worker slot a media ID maps to under
// rendezvous hashing over the pool's slots. The pool does not route
// jobs by it: every worker takes whichever job is next in the shared
// queue.
func (p *Pool) WorkerSlotFor(mediaID string) string {
	return p.affinity.Lookup(mediaID)
}

// Submit registers a job with the pool and pushes it onto the queue.
func (p *Pool) Submit(job *Job) {
	p.mu.Lock()
	p.jobs[job.ID] = job
	p.mu.Unlock()
	p.queue.Submit(job)
}

// Get returns a snapshot of a known job's current state.
func (p *Pool) Get(jobID string) (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return j.snapshot(), true
}

// Cancel marks a known job failed with LastError "cancelled". It does
// not signal a running ffmpeg process and does not remove the job from
// the queue: a queued job still runs when dequeued, and a running job's
// next progress update sets its status back to processing.
func (p *Pool) Cancel(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if j, ok := p.jobs[jobID]; ok {
		j.Status = StatusFailed
		j.LastError = "cancelled"
	}
}

// Start launches Concurrency worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
}

// Stop signals every worker to exit after its current job and waits
// for them to drain.
func (p *Pool) Stop() {
	close(p.stop)
	p.queue.Close()
	p.wg.Wait()
}

func (p *Pool) runWorker(idx int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		job, ok := p.queue.TryDequeue()
		if !ok {
			select {
			case <-p.stop:
				return
			case <-time.After(250 * time.Millisecond):
			}
			continue
		}

		p.setStatus(job.ID, StatusProcessing, 0)
		if job.Kind == JobKindMaster {
			p.runMaster(job)
		} else {
			p.runRegular(job)
		}
	}
}

// runMaster writes the final master playlist listing the subset of
// variants that exist or will exist: the master job does not
// itself wait on its variants — status is read off via aggregation.
func (p *Pool) runMaster(job *Job) {
	var variants []ProfileVariant
	for _, vid := range job.VariantJobIDs {
		if vj, ok := p.Get(vid); ok {
			if v, found := VariantByName(vj.Profile.Name); found {
				variants = append(variants, v)
			}
		}
	}
	if err := WriteMasterPlaylist(job.OutputDir, variants); err != nil {
		p.fail(job, fmt.Sprintf("write final master playlist: %v", err), false)
		return
	}
	// Master completion itself is a formality; the player-facing status
	// for this job ID is computed by AggregateMasterStatus over its
	// variants, not by this assignment.
	p.setStatus(job.ID, StatusCompleted, 1)
}

// runRegular supervises one ffmpeg invocation end-to-end: encoder
// selection, process launch, stderr progress parsing, hardware-failure
// fallback, timeout enforcement, and retry/dead-letter accounting.
func (p *Pool) runRegular(job *Job) {
	codecFamily := "h264"
	if strings.Contains(strings.ToLower(job.Profile.VideoCodec), "265") || strings.Contains(strings.ToLower(job.Profile.VideoCodec), "hevc") {
		codecFamily = "hevc"
	}

	sel := SelectEncoder(p.ffmpegPath, codecFamily)
	err := p.runFFmpeg(job, sel)
	if err != nil && sel.IsHardware != "" && IsHardwareFailure(err.Error()) {
		log.Printf("[transcode] job=%s hardware encoder %s failed, retrying on software", job.ID, sel.Encoder)
		swSel := EncoderSelection{Encoder: softwareEncoder(codecFamily)}
		err = p.runFFmpeg(job, swSel)
	}

	if err == nil {
		p.setStatus(job.ID, StatusCompleted, 1)
		return
	}

	p.retryOrDeadLetter(job, err.Error())
}

func (p *Pool) retryOrDeadLetter(job *Job, errMsg string) {
	p.mu.Lock()
	job.RetryCount++
	retries := job.RetryCount
	p.mu.Unlock()

	if retries > p.maxRetries {
		p.fail(job, errMsg, false)
		return
	}

	log.Printf("[transcode] job=%s attempt=%d failed: %s, retrying in %s", job.ID, retries, errMsg, p.retryDelay)
	time.Sleep(p.retryDelay)
	p.queue.Submit(job)
}

func (p *Pool) fail(job *Job, errMsg string, retryable bool) {
	p.mu.Lock()
	job.Status = StatusDeadLetter
	job.LastError = errMsg
	p.mu.Unlock()
	log.Printf("[transcode] job=%s dead-lettered: %s", job.ID, errMsg)
}

func (p *Pool) setStatus(jobID string, status Status, progress float64) {
	p.mu.Lock()
	if j, ok := p.jobs[jobID]; ok {
		j.Status = status
		j.Progress = progress
	}
	p.mu.Unlock()
	if p.onProgress != nil {
		p.onProgress(jobID, progress)
	}
}

var (
	reDuration = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)
	reTime     = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	reFrame    = regexp.MustCompile(`frame=\s*(\d+)`)
	reFPS      = regexp.MustCompile(`fps=\s*([\d.]+)`)
	reSpeed    = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

func parseTimecode(m []string) float64 {
	h, _ := strconv.ParseFloat(m[1], 64)
	mi, _ := strconv.ParseFloat(m[2], 64)
	s, _ := strconv.ParseFloat(m[3], 64)
	frac, _ := strconv.ParseFloat("0."+m[4], 64)
	return h*3600 + mi*60 + s + frac
}

// runFFmpeg constructs and executes ffmpeg for one Regular job,
// parsing stderr for progress and enforcing the wall-clock timeout.
func (p *Pool) runFFmpeg(job *Job, sel EncoderSelection) error {
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	args := buildFFmpegArgs(job, sel)

	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attach stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	var totalDuration float64
	var lastLines []string
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		lastLines = append(lastLines, line)
		if len(lastLines) > 10 {
			lastLines = lastLines[len(lastLines)-10:]
		}

		if totalDuration == 0 {
			if m := reDuration.FindStringSubmatch(line); m != nil {
				totalDuration = parseTimecode(m)
			}
		}

		progress := progressFromLine(line, totalDuration, job.SourceFramerate)
		if progress >= 0 {
			p.setStatus(job.ID, StatusProcessing, progress)
		}
	}

	waitErr := cmd.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		killProcess(cmd)
		return fmt.Errorf("transcode timed out after %s", p.jobTimeout)
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpeg exited: %w: %s", waitErr, strings.Join(lastLines, "\n"))
	}
	return nil
}

// progressFromLine extracts a fractional progress value from one
// stderr line, preferring time/duration and falling back to a
// frame-count approximation when duration is unknown. Returns -1 when
// the line carries no progress signal.
func progressFromLine(line string, totalDuration, framerate float64) float64 {
	if m := reTime.FindStringSubmatch(line); m != nil && totalDuration > 0 {
		elapsed := parseTimecode(m)
		frac := elapsed / totalDuration
		if frac > 1 {
			frac = 1
		}
		return frac
	}
	if totalDuration == 0 && framerate > 0 {
		if m := reFrame.FindStringSubmatch(line); m != nil {
			frames, _ := strconv.ParseFloat(m[1], 64)
			estimatedTotalFrames := framerate * 3600 // unknown duration: coarse upper bound
			frac := frames / estimatedTotalFrames
			if frac > 0.99 {
				frac = 0.99
			}
			return frac
		}
	}
	// fps=/speed= lines carry no absolute position, only rate; ignored
	// for progress purposes but still captured in lastLines for
	// diagnostics.
	_ = reFPS
	_ = reSpeed
	return -1
}

func killProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if runtime.GOOS == "windows" {
		exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()
		return
	}
	terminateUnix(cmd)
}

// buildFFmpegArgs mirrors internal/stream/transcoder.go's argument
// construction, adapted to the named-profile model, 4s segment
// duration, and event-type playlist instead of CineVault's VOD list.
func buildFFmpegArgs(job *Job, sel EncoderSelection) []string {
	args := []string{"-nostdin"}
	args = append(args, sel.InputArgs...)
	args = append(args, "-i", job.MediaPath)
	args = append(args, "-map", "0:v:0", "-map", "0:a:0?")

	var filters []string
	if strings.Contains(sel.Encoder, "qsv") {
		filters = append(filters, "hwdownload", "format=nv12")
	}
	if job.Profile.Width > 0 && job.Profile.Height > 0 {
		filters = append(filters, fmt.Sprintf("scale=%d:%d", job.Profile.Width, job.Profile.Height))
	}
	if job.Profile.ApplyToneMapping && job.ToneMapping != nil {
		filters = append(filters, toneMapFilter(sel.Encoder))
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}

	encoder := sel.Encoder
	if encoder == "" {
		encoder = "libx264"
	}
	args = append(args, "-c:v", encoder)
	if job.Profile.Preset != "" {
		args = append(args, "-preset", job.Profile.Preset)
	}
	if job.Profile.VideoBitrateKbps > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%dk", job.Profile.VideoBitrateKbps))
	}

	audioCodec := job.Profile.AudioCodec
	if audioCodec == "" {
		audioCodec = "aac"
	}
	args = append(args, "-c:a", audioCodec)
	if job.Profile.AudioBitrateKbps > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", job.Profile.AudioBitrateKbps))
	}

	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(DefaultSegmentSecs),
		"-hls_playlist_type", "event",
		"-hls_flags", "independent_segments",
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", DefaultSegmentSecs),
		"-hls_segment_filename", filepath.Join(job.OutputDir, "segment_%03d.ts"),
		"-y", filepath.Join(job.OutputDir, "playlist.m3u8"),
	)
	return args
}

// toneMapFilter returns the HDR-to-SDR tonemap filter for the given
// encoder, using a software zscale/tonemap chain for QSV (whose frames
// are already downloaded to system memory by the preceding hwdownload)
// and for every other path.
func toneMapFilter(encoder string) string {
	return "zscale=t=linear:npl=100,format=gbrpf32le,zscale=p=bt709,tonemap=hable,zscale=t=bt709:m=bt709:r=tv,format=yuv420p"
}
