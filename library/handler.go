package library

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"vidvault/auth"
	"vidvault/db"
	"vidvault/httputil"

	"github.com/go-chi/chi/v5"
)

// Handler holds dependencies for the per-user library endpoints:
// watch history, watch later and saved videos.
type Handler struct {
	DB *db.CompatDB
}

// pathUser returns the {userId} path parameter, enforcing that it
// matches the authenticated principal.
func pathUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		httputil.WriteJSON(w, 400, map[string]string{"error": "invalid user id"})
		return 0, false
	}
	principal, ok := auth.ExtractUserID(r)
	if !ok || principal != userID {
		httputil.WriteJSON(w, 403, map[string]string{"error": "forbidden"})
		return 0, false
	}
	return userID, true
}

// HandleListHistory returns the user's watch history, most recent first.
func (h *Handler) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	limit, offset := httputil.ParseLimitOffset(r, 50)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT wh.id, wh.video_id, wh.progress, wh.watched_at,
		       v.title, v.description, v.thumbnail_url, v.duration,
		       v.video_type, v.category, v.view_count
		FROM watch_history wh
		JOIN videos v ON wh.video_id = v.id
		WHERE wh.user_id = ?
		ORDER BY wh.watched_at DESC, wh.id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to fetch watch history"})
		return
	}
	defer rows.Close()

	history := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, videoID, duration, viewCount int64
		var progress float64
		var watchedAt, title, videoType string
		var description, thumbnailURL, category sql.NullString
		if err := rows.Scan(&id, &videoID, &progress, &watchedAt,
			&title, &description, &thumbnailURL, &duration,
			&videoType, &category, &viewCount); err != nil {
			log.Printf("scan watch history: %v", err)
			continue
		}
		history = append(history, map[string]interface{}{
			"id": id, "video_id": videoID, "progress": progress,
			"watched_at": watchedAt, "title": title,
			"description": description.String, "thumbnail_url": thumbnailURL.String,
			"duration": duration, "video_type": videoType,
			"category": category.String, "view_count": viewCount,
		})
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"watchHistory": history})
}

// HistoryRequest is the JSON body for recording watch progress.
type HistoryRequest struct {
	VideoID  int64   `json:"video_id"`
	Progress float64 `json:"progress"`
}

// HandleRecordHistory upserts a watch-history row: one row per
// (user, video), progress and timestamp refreshed on re-watch.
func (h *Handler) HandleRecordHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req HistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoID == 0 {
		httputil.WriteJSON(w, 400, map[string]string{"error": "Video ID is required"})
		return
	}

	var id int64
	var watchedAt string
	err := h.DB.QueryRowContext(r.Context(), `
		INSERT INTO watch_history (user_id, video_id, progress, watched_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, video_id)
		DO UPDATE SET progress = excluded.progress, watched_at = CURRENT_TIMESTAMP
		RETURNING id, watched_at
	`, userID, req.VideoID, req.Progress).Scan(&id, &watchedAt)
	if err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to record watch history"})
		return
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{
		"watchEntry": map[string]interface{}{
			"id": id, "user_id": userID, "video_id": req.VideoID,
			"progress": req.Progress, "watched_at": watchedAt,
		},
	})
}

// HandleListWatchLater returns the user's watch-later queue.
func (h *Handler) HandleListWatchLater(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT wl.id, wl.added_at, v.id, v.title, v.description, v.video_url,
		       v.thumbnail_url, v.youtube_url, v.duration, v.video_type,
		       v.category, v.view_count, v.created_at
		FROM watch_later wl
		JOIN videos v ON wl.video_id = v.id
		WHERE wl.user_id = ?
		ORDER BY wl.added_at DESC, wl.id DESC
	`, userID)
	if err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to fetch watch later videos"})
		return
	}
	defer rows.Close()

	videos := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, videoID, duration, viewCount int64
		var addedAt, title, videoURL, videoType, createdAt string
		var description, thumbnailURL, youtubeURL, category sql.NullString
		if err := rows.Scan(&id, &addedAt, &videoID, &title, &description, &videoURL,
			&thumbnailURL, &youtubeURL, &duration, &videoType,
			&category, &viewCount, &createdAt); err != nil {
			log.Printf("scan watch later: %v", err)
			continue
		}
		videos = append(videos, map[string]interface{}{
			"id": id, "added_at": addedAt, "video_id": videoID,
			"title": title, "description": description.String,
			"video_url": videoURL, "thumbnail_url": thumbnailURL.String,
			"youtube_url": youtubeURL.String, "duration": duration,
			"video_type": videoType, "category": category.String,
			"view_count": viewCount, "created_at": createdAt,
		})
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"watchLaterVideos": videos})
}

// WatchLaterRequest is the JSON body for watch-later add/remove.
type WatchLaterRequest struct {
	VideoID int64 `json:"videoId"`
}

// HandleAddWatchLater queues a video; adding twice is a no-op.
func (h *Handler) HandleAddWatchLater(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req WatchLaterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoID == 0 {
		httputil.WriteJSON(w, 400, map[string]string{"error": "Video ID is required"})
		return
	}

	res, err := h.DB.ExecContext(r.Context(), `
		INSERT INTO watch_later (user_id, video_id) VALUES (?, ?)
		ON CONFLICT (user_id, video_id) DO NOTHING
	`, userID, req.VideoID)
	if err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to add video to watch later"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteJSON(w, 200, map[string]string{"message": "Video already in watch later"})
		return
	}
	httputil.WriteJSON(w, 200, map[string]string{"message": "Video added to watch later"})
}

// HandleRemoveWatchLater removes a video from the queue.
func (h *Handler) HandleRemoveWatchLater(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req WatchLaterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoID == 0 {
		httputil.WriteJSON(w, 400, map[string]string{"error": "Video ID is required"})
		return
	}

	if _, err := h.DB.ExecContext(r.Context(),
		`DELETE FROM watch_later WHERE user_id = ? AND video_id = ?`,
		userID, req.VideoID); err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to remove video from watch later"})
		return
	}
	httputil.WriteJSON(w, 200, map[string]string{"message": "Video removed from watch later"})
}

// HandleListSaved returns the user's saved videos.
func (h *Handler) HandleListSaved(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	limit, offset := httputil.ParseLimitOffset(r, 50)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT sv.id, sv.video_id, sv.saved_at,
		       v.title, v.description, v.thumbnail_url, v.duration,
		       v.video_type, v.category, v.view_count
		FROM saved_videos sv
		JOIN videos v ON sv.video_id = v.id
		WHERE sv.user_id = ?
		ORDER BY sv.saved_at DESC, sv.id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to fetch saved videos"})
		return
	}
	defer rows.Close()

	videos := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, videoID, duration, viewCount int64
		var savedAt, title, videoType string
		var description, thumbnailURL, category sql.NullString
		if err := rows.Scan(&id, &videoID, &savedAt,
			&title, &description, &thumbnailURL, &duration,
			&videoType, &category, &viewCount); err != nil {
			log.Printf("scan saved videos: %v", err)
			continue
		}
		videos = append(videos, map[string]interface{}{
			"id": id, "video_id": videoID, "saved_at": savedAt,
			"title": title, "description": description.String,
			"thumbnail_url": thumbnailURL.String, "duration": duration,
			"video_type": videoType, "category": category.String,
			"view_count": viewCount,
		})
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"savedVideos": videos})
}

// SaveRequest is the JSON body for saving a video.
type SaveRequest struct {
	VideoID int64 `json:"video_id"`
}

// HandleSave saves a video for the user. Saving an already-saved video
// is a no-op, not an error.
func (h *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoID == 0 {
		httputil.WriteJSON(w, 400, map[string]string{"error": "Video ID is required"})
		return
	}

	if _, err := h.DB.ExecContext(r.Context(), `
		INSERT INTO saved_videos (user_id, video_id) VALUES (?, ?)
		ON CONFLICT (user_id, video_id) DO NOTHING
	`, userID, req.VideoID); err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to save video"})
		return
	}

	var id int64
	var savedAt string
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT id, saved_at FROM saved_videos WHERE user_id = ? AND video_id = ?`,
		userID, req.VideoID).Scan(&id, &savedAt); err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to save video"})
		return
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{
		"savedVideo": map[string]interface{}{
			"id": id, "user_id": userID, "video_id": req.VideoID, "saved_at": savedAt,
		},
	})
}

// HandleUnsave removes a saved video; the video id comes from the
// video_id query parameter.
func (h *Handler) HandleUnsave(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}

	videoID, err := strconv.ParseInt(r.URL.Query().Get("video_id"), 10, 64)
	if err != nil || videoID == 0 {
		httputil.WriteJSON(w, 400, map[string]string{"error": "Video ID is required"})
		return
	}

	if _, err := h.DB.ExecContext(r.Context(),
		`DELETE FROM saved_videos WHERE user_id = ? AND video_id = ?`,
		userID, videoID); err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to remove saved video"})
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"success": true})
}
