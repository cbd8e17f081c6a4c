package api

import (
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/streamvault/streamvault/internal/apierr"
	"github.com/streamvault/streamvault/internal/transcode"
)

// streamJobs tracks, per media ID, the variant job IDs already
// submitted for it, so a burst of playback requests for the same
// title doesn't each resubmit a fresh ladder of transcode jobs, and so
// a segment request naming only (media ID, profile) in its URL can
// still find the job ID the pool tracks that work under.
type streamJobs struct {
	mu    sync.Mutex
	known map[string]map[string]string // media id -> variant name -> job id
}

func newStreamJobs() *streamJobs { return &streamJobs{known: make(map[string]map[string]string)} }

func buildProfile(v transcode.ProfileVariant, hdr bool) transcode.Profile {
	p := transcode.Profile{
		Name:             v.Name,
		VideoCodec:       "libx264",
		AudioCodec:       "aac",
		VideoBitrateKbps: v.VideoBitrateKbps,
		AudioBitrateKbps: v.AudioBitrateKbps,
		Width:            v.Width,
		Height:           v.Height,
		Preset:           v.Preset,
	}
	if v.Name == "original" {
		p.VideoCodec = "copy"
		p.AudioCodec = "copy"
	}
	if hdr && v.Name != "original" {
		p.ApplyToneMapping = true
	}
	return p
}

// ensureTranscodeJobs submits the full adaptive-bitrate ladder the
// first time a media ID is requested: the two eager variants at
// PriorityHigh so playback can begin immediately, the rest at
// PriorityNormal, and a master job tying them together. An initial
// master playlist listing just the eager variants is written
// synchronously so the very first request already has something to
// serve; the master job, queued at PriorityLow, rewrites it with the
// full ladder when a worker dequeues it, without waiting for the
// variants to finish.
func (s *Server) ensureTranscodeJobs(mediaID, mediaPath string, width, height int, hdr bool) error {
	s.streams.mu.Lock()
	defer s.streams.mu.Unlock()
	if _, ok := s.streams.known[mediaID]; ok {
		return nil
	}

	variants := s.planner.GenerateVariants(width, height)
	initial := s.planner.SelectInitialVariants(variants)
	initialSet := make(map[string]bool, len(initial))
	for _, v := range initial {
		initialSet[v.Name] = true
	}

	masterDir := filepath.Dir(s.cache.MasterPlaylistPath(mediaID))

	jobByVariant := make(map[string]string, len(variants))
	variantJobIDs := make([]string, 0, len(variants))
	for _, v := range variants {
		jobID := uuid.NewString()
		variantJobIDs = append(variantJobIDs, jobID)
		jobByVariant[v.Name] = jobID

		priority := transcode.PriorityNormal
		if initialSet[v.Name] {
			priority = transcode.PriorityHigh
		}

		job := &transcode.Job{
			ID:        jobID,
			MediaID:   mediaID,
			MediaPath: mediaPath,
			Kind:      transcode.JobKindRegular,
			Profile:   buildProfile(v, hdr),
			OutputDir: s.cache.GetCachePath(mediaID, v.Name),
			Priority:  priority,
			Status:    transcode.StatusPending,
			CreatedAt: time.Now(),
		}
		s.transcoder.Submit(job)
		s.events.Publish(JobEvent{JobID: jobID, Meta: EventMeta{Timestamp: time.Now()}, Enqueued: &EnqueuedPayload{}})
	}

	masterJobID := uuid.NewString()
	masterJob := &transcode.Job{
		ID:            masterJobID,
		MediaID:       mediaID,
		Kind:          transcode.JobKindMaster,
		VariantJobIDs: variantJobIDs,
		OutputDir:     masterDir,
		Priority:      transcode.PriorityLow,
		Status:        transcode.StatusPending,
		CreatedAt:     time.Now(),
	}
	s.transcoder.Submit(masterJob)
	s.events.Publish(JobEvent{JobID: masterJobID, Meta: EventMeta{Timestamp: time.Now()}, Enqueued: &EnqueuedPayload{}})

	if err := transcode.WriteMasterPlaylist(masterDir, initial); err != nil {
		return err
	}

	s.streams.known[mediaID] = jobByVariant
	return nil
}

// handleMasterPlaylist serves cache_root/media_id/master.m3u8,
// kicking off transcoding for a title the first time it's requested.
func (s *Server) handleMasterPlaylist(w http.ResponseWriter, r *http.Request) {
	mediaIDStr := chi.URLParam(r, "mediaID")
	mediaID, err := parseMediaID(mediaIDStr)
	if err != nil {
		apierr.WriteHTTP(w, apierr.InvalidInput("invalid media id"))
		return
	}

	if s.cache.HasMasterPlaylist(mediaIDStr) {
		http.ServeFile(w, r, s.cache.MasterPlaylistPath(mediaIDStr))
		return
	}

	sf, err := s.repo.GetSourceFile(r.Context(), mediaID)
	if err != nil {
		apierr.WriteHTTP(w, apierr.NotFound("media file not found"))
		return
	}

	width, height, hdr := 0, 0, false
	if sf.Technical != nil {
		width, height = sf.Technical.Width, sf.Technical.Height
		hdr = transcode.IsHDR(sf.Technical)
	}
	if err := s.ensureTranscodeJobs(mediaIDStr, sf.Path, width, height, hdr); err != nil {
		apierr.WriteHTTP(w, apierr.Internal(err))
		return
	}

	http.ServeFile(w, r, s.cache.MasterPlaylistPath(mediaIDStr))
}

// handleVariantPlaylist serves one ladder rung's own playlist once its
// transcode job has produced it.
func (s *Server) handleVariantPlaylist(w http.ResponseWriter, r *http.Request) {
	mediaIDStr := chi.URLParam(r, "mediaID")
	profile := chi.URLParam(r, "profile")

	if !s.cache.HasCachedVersion(mediaIDStr, profile) {
		apierr.WriteHTTP(w, apierr.Pending("variant playlist not yet produced"))
		return
	}

	path := filepath.Join(s.cache.GetCachePath(mediaIDStr, profile), "playlist.m3u8")
	http.ServeFile(w, r, path)
}

// jobFor returns the job ID ensureTranscodeJobs assigned to a
// (media ID, variant name) pair, if that ladder has been submitted.
func (s *Server) jobFor(mediaID, variant string) (string, bool) {
	s.streams.mu.Lock()
	defer s.streams.mu.Unlock()
	byVariant, ok := s.streams.known[mediaID]
	if !ok {
		return "", false
	}
	jobID, ok := byVariant[variant]
	return jobID, ok
}

// handleSegment serves one HLS segment of a variant, triggering
// (re)generation through the transcode pool if it hasn't been produced
// yet and mapping ErrSegmentPending onto the 202/Retry-After convention
// used for every not-yet-materialized resource.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	mediaIDStr := chi.URLParam(r, "mediaID")
	profile := chi.URLParam(r, "profile")

	jobID, ok := s.jobFor(mediaIDStr, profile)
	if !ok {
		apierr.WriteHTTP(w, apierr.NotFound("no transcode job for this media/profile; request the master playlist first"))
		return
	}

	seqStr := chi.URLParam(r, "seq")
	var seq int
	for _, c := range seqStr {
		if c < '0' || c > '9' {
			apierr.WriteHTTP(w, apierr.InvalidInput("invalid segment number"))
			return
		}
		seq = seq*10 + int(c-'0')
	}

	segPath, err := s.transcoder.GetOrGenerateSegment(jobID, seq)
	if err != nil {
		if err == transcode.ErrSegmentPending {
			apierr.WriteHTTP(w, apierr.Pending("segment not yet produced"))
			return
		}
		apierr.WriteHTTP(w, apierr.NotFound(err.Error()))
		return
	}

	http.ServeFile(w, r, segPath)
}
