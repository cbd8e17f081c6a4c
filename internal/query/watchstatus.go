package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/streamvault/streamvault/internal/models"
)

// watchStatusClause returns a WHERE fragment over watch_state testing
// whether mediaCol (the id column of the row under consideration, e.g.
// m.id or e.id) satisfies ws, for the given user. The recently-watched
// window and the in-progress/completed/unwatched tests are our own
// design decision against the single watch_state table this schema
// uses in place of separate in-progress/completed tables.
func watchStatusClause(b *clauseBuilder, mediaCol string, ws WatchStatus, recentDays int, userID models.UserID) {
	userParam := b.param(userID)
	switch ws {
	case WatchStatusInProgress:
		b.where(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM watch_state _ws WHERE _ws.media_id = %s AND _ws.user_id = %s AND _ws.watched = false AND _ws.position_sec > 0)",
			mediaCol, userParam))
	case WatchStatusCompleted:
		b.where(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM watch_state _ws WHERE _ws.media_id = %s AND _ws.user_id = %s AND _ws.watched = true)",
			mediaCol, userParam))
	case WatchStatusUnwatched:
		b.where(fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM watch_state _ws WHERE _ws.media_id = %s AND _ws.user_id = %s)",
			mediaCol, userParam))
	case WatchStatusRecentlyWatched:
		if recentDays <= 0 {
			recentDays = 7
		}
		daysParam := b.param(recentDays)
		b.where(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM watch_state _ws WHERE _ws.media_id = %s AND _ws.user_id = %s AND _ws.updated_at > now() - (%s || ' days')::interval)",
			mediaCol, userParam, daysParam))
	}
}

// loadWatchStates batch-fetches watch_state rows for a user across an
// arbitrary set of media IDs, keyed by MediaID for assembly into
// MediaWithStatus results.
func loadWatchStates(ctx context.Context, db *sql.DB, userID models.UserID, mediaIDs []models.MediaID) (map[models.MediaID]*models.WatchState, error) {
	out := make(map[models.MediaID]*models.WatchState, len(mediaIDs))
	if len(mediaIDs) == 0 {
		return out, nil
	}

	b := newClauseBuilder(2)
	ids := make([]interface{}, len(mediaIDs))
	for i, id := range mediaIDs {
		ids[i] = id
	}
	b.applyLibraryIDs("media_id", ids)

	query := `SELECT user_id, media_id, position_sec, duration_sec, watched, updated_at
		FROM watch_state WHERE user_id = $1` + b.whereSQL()

	args := append([]interface{}{userID}, b.args...)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load watch states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ws models.WatchState
		if err := rows.Scan(&ws.UserID, &ws.MediaID, &ws.PositionSec, &ws.DurationSec, &ws.Watched, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan watch state: %w", err)
		}
		out[ws.MediaID] = &ws
	}
	return out, rows.Err()
}
