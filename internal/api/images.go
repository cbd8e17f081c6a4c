package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/streamvault/streamvault/internal/apierr"
)

// handleMediaThumbnail serves a media item's cached thumbnail,
// triggering lazy extraction on a miss. Matches spec §6's "202
// Accepted ... used to indicate an image is not yet materialized;
// clients must retry" contract: the first request for an
// unmaterialized thumbnail starts a deduped background extraction and
// returns immediately rather than blocking on ffmpeg.
func (s *Server) handleMediaThumbnail(w http.ResponseWriter, r *http.Request) {
	mediaID, err := parseMediaID(chi.URLParam(r, "mediaID"))
	if err != nil {
		apierr.WriteHTTP(w, apierr.InvalidInput("invalid media id"))
		return
	}

	path, ready := s.thumbnails.EnsureThumbnail(mediaID)
	if !ready {
		apierr.WriteHTTP(w, apierr.Pending("thumbnail is being generated"))
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}
