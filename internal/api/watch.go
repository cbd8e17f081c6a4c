package api

import (
	"database/sql"
	"net/http"

	"github.com/streamvault/streamvault/internal/apierr"
	"github.com/streamvault/streamvault/internal/auth"
	"github.com/streamvault/streamvault/internal/httputil"
	"github.com/streamvault/streamvault/internal/models"
)

type updateProgressRequest struct {
	MediaID     string  `json:"media_id"`
	PositionSec float64 `json:"position_sec"`
	DurationSec float64 `json:"duration_sec"`
	Watched     bool    `json:"watched"`
}

// handleUpdateWatchProgress upserts the caller's playback position for
// one media item, the single watch_state table serving both
// in-progress and completed state rather than separate tables per
// status.
func (s *Server) handleUpdateWatchProgress(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		apierr.WriteHTTP(w, apierr.Unauthorized("authentication required"))
		return
	}

	var req updateProgressRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		apierr.WriteHTTP(w, apierr.InvalidInput("malformed request body"))
		return
	}
	mediaID, err := parseMediaID(req.MediaID)
	if err != nil {
		apierr.WriteHTTP(w, apierr.InvalidInput("invalid media_id"))
		return
	}

	_, err = s.db.ExecContext(r.Context(), `
		INSERT INTO watch_state (user_id, media_id, position_sec, duration_sec, watched, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id, media_id) DO UPDATE SET
			position_sec = EXCLUDED.position_sec,
			duration_sec = EXCLUDED.duration_sec,
			watched = EXCLUDED.watched,
			updated_at = now()`,
		user.UserID, mediaID, req.PositionSec, req.DurationSec, req.Watched)
	if err != nil {
		apierr.WriteHTTP(w, apierr.Internal(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleWatchState returns the caller's current watch state for one
// media item, or 404 if none is recorded yet — an item with no rows is
// "unwatched," not a zero-progress record.
func (s *Server) handleWatchState(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		apierr.WriteHTTP(w, apierr.Unauthorized("authentication required"))
		return
	}

	mediaID, err := parseMediaID(r.URL.Query().Get("media_id"))
	if err != nil {
		apierr.WriteHTTP(w, apierr.InvalidInput("invalid media_id"))
		return
	}

	var ws models.WatchState
	err = s.db.QueryRowContext(r.Context(), `
		SELECT user_id, media_id, position_sec, duration_sec, watched, updated_at
		FROM watch_state WHERE user_id = $1 AND media_id = $2`,
		user.UserID, mediaID,
	).Scan(&ws.UserID, &ws.MediaID, &ws.PositionSec, &ws.DurationSec, &ws.Watched, &ws.UpdatedAt)
	if err == sql.ErrNoRows {
		apierr.WriteHTTP(w, apierr.NotFound("no watch state recorded for this media item"))
		return
	}
	if err != nil {
		apierr.WriteHTTP(w, apierr.Internal(err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ws)
}
