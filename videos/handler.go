package videos

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"vidvault/auth"
	"vidvault/db"
	"vidvault/httputil"
	"vidvault/ingest"

	"github.com/go-chi/chi/v5"
)

// Handler holds dependencies for the video catalog endpoints.
type Handler struct {
	DB       *db.CompatDB
	Pipeline *ingest.Pipeline
}

// HandleCreate ingests a new video from an external URL.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, 400, "invalid request body")
		return
	}

	video, scraped, err := h.Pipeline.Ingest(r.Context(), req)
	switch {
	case errors.Is(err, ingest.ErrMissingURL):
		httputil.Error(w, 400, "Video URL is required")
		return
	case errors.Is(err, ingest.ErrUnsupportedURL):
		httputil.Error(w, 400, "Invalid YouTube URL")
		return
	case err != nil:
		log.Printf("video ingest failed: %v", err)
		httputil.Error(w, 500, "Failed to create video")
		return
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{
		"success":     true,
		"video":       video,
		"scrapedData": scraped,
	})
}

// HandleList returns videos with pagination and filtering. Videos with
// assignment rows are visible only to the listed users; videos with
// none are public. Each entry carries an isSaved flag computed relative
// to the effective user (token identity wins over the userId param).
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := httputil.ParseLimitOffset(r, 10)
	videoType := r.URL.Query().Get("type")
	category := r.URL.Query().Get("category")

	userID, authed := auth.ExtractUserID(r)
	if !authed {
		param := r.URL.Query().Get("userId")
		if param == "" {
			param = r.URL.Query().Get("user_id")
		}
		if v, err := strconv.ParseInt(param, 10, 64); err == nil {
			userID = v
		}
	}

	query := `
		SELECT DISTINCT v.id, v.title, v.description, v.video_url, v.youtube_url,
		       v.thumbnail_url, v.duration, v.video_type, v.category, v.channel_name,
		       v.view_count, v.likes_count, v.created_at, v.updated_at
		FROM videos v
		LEFT JOIN video_assignments va ON v.id = va.video_id
		WHERE 1=1`
	var args []interface{}

	if userID > 0 {
		query += ` AND (va.user_id = ? OR va.video_id IS NULL)`
		args = append(args, userID)
	}
	if videoType != "" {
		query += ` AND v.video_type = ?`
		args = append(args, videoType)
	}
	if category != "" {
		query += ` AND LOWER(v.category) = LOWER(?)`
		args = append(args, category)
	}
	query += ` ORDER BY v.created_at DESC, v.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := h.DB.QueryContext(r.Context(), query, args...)
	if err != nil {
		httputil.Error(w, 500, "Failed to fetch videos")
		return
	}
	defer rows.Close()
	videos := scanVideos(rows)

	savedIDs := make(map[int64]bool)
	if userID > 0 {
		savedRows, err := h.DB.QueryContext(r.Context(),
			`SELECT video_id FROM saved_videos WHERE user_id = ?`, userID)
		if err == nil {
			defer savedRows.Close()
			for savedRows.Next() {
				var id int64
				if err := savedRows.Scan(&id); err == nil {
					savedIDs[id] = true
				}
			}
		}
	}
	for _, v := range videos {
		id, _ := v["id"].(int64)
		v["isSaved"] = savedIDs[id]
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{
		"success": true,
		"videos":  videos,
		"pagination": map[string]interface{}{
			"limit":   limit,
			"offset":  offset,
			"hasMore": len(videos) == limit,
		},
	})
}

// HandleGet returns a single video, with the derived embed URL when the
// stored URL resolves to a known external identifier.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httputil.Error(w, 400, "invalid video id")
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT v.id, v.title, v.description, v.video_url, v.youtube_url,
		       v.thumbnail_url, v.duration, v.video_type, v.category, v.channel_name,
		       v.view_count, v.likes_count, v.created_at, v.updated_at
		FROM videos v WHERE v.id = ?
	`, id)
	if err != nil {
		httputil.Error(w, 500, "Failed to fetch video")
		return
	}
	defer rows.Close()

	videos := scanVideos(rows)
	if len(videos) == 0 {
		httputil.Error(w, 404, "Video not found")
		return
	}
	video := videos[0]
	if u, ok := video["youtube_url"].(string); ok {
		if videoID, ok := ingest.ExtractVideoID(u); ok {
			video["embed_url"] = ingest.EmbedURL(videoID)
		}
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{"success": true, "video": video})
}

// UpdateRequest enumerates the mutable video fields. Any key outside
// this set is rejected at decode time.
type UpdateRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	VideoURL     *string `json:"video_url"`
	ThumbnailURL *string `json:"thumbnail_url"`
	YouTubeURL   *string `json:"youtube_url"`
	Duration     *int64  `json:"duration"`
	Category     *string `json:"category"`
	LikesCount   *int64  `json:"likes_count"`
}

// HandleUpdate applies a typed partial update to a video.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httputil.Error(w, 400, "invalid video id")
		return
	}
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var req UpdateRequest
	if err := dec.Decode(&req); err != nil {
		httputil.Error(w, 400, "invalid request body")
		return
	}

	var sets []string
	var args []interface{}
	add := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if req.Title != nil {
		add("title", *req.Title)
	}
	if req.Description != nil {
		add("description", *req.Description)
	}
	if req.VideoURL != nil {
		add("video_url", *req.VideoURL)
	}
	if req.ThumbnailURL != nil {
		add("thumbnail_url", *req.ThumbnailURL)
	}
	if req.YouTubeURL != nil {
		add("youtube_url", *req.YouTubeURL)
	}
	if req.Duration != nil {
		add("duration", *req.Duration)
	}
	if req.Category != nil {
		add("category", *req.Category)
	}
	if req.LikesCount != nil {
		add("likes_count", *req.LikesCount)
	}
	if len(sets) == 0 {
		httputil.Error(w, 400, "No valid fields to update")
		return
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	res, err := h.DB.ExecContext(r.Context(),
		fmt.Sprintf("UPDATE videos SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		httputil.Error(w, 500, "Failed to update video")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.Error(w, 404, "Video not found")
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT v.id, v.title, v.description, v.video_url, v.youtube_url,
		       v.thumbnail_url, v.duration, v.video_type, v.category, v.channel_name,
		       v.view_count, v.likes_count, v.created_at, v.updated_at
		FROM videos v WHERE v.id = ?
	`, id)
	if err != nil {
		httputil.Error(w, 500, "Failed to fetch video")
		return
	}
	defer rows.Close()
	videos := scanVideos(rows)
	if len(videos) == 0 {
		httputil.Error(w, 404, "Video not found")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"success": true, "video": videos[0]})
}

// HandleDelete removes a video and all referencing rows atomically.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httputil.Error(w, 400, "invalid video id")
		return
	}

	video, err := h.Pipeline.Delete(r.Context(), id)
	switch {
	case errors.Is(err, ingest.ErrNotFound):
		httputil.Error(w, 404, "Video not found")
		return
	case err != nil:
		log.Printf("video delete failed: %v", err)
		httputil.Error(w, 500, "Failed to delete video")
		return
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{
		"success": true,
		"message": "Video deleted successfully from all locations",
		"video":   video,
	})
}

// HandleLike increments a video's like counter.
func (h *Handler) HandleLike(w http.ResponseWriter, r *http.Request) {
	h.incrementCounter(w, r, "likes_count")
}

// HandleView increments a video's view counter.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	h.incrementCounter(w, r, "view_count")
}

func (h *Handler) incrementCounter(w http.ResponseWriter, r *http.Request, col string) {
	id, err := parseID(r)
	if err != nil {
		httputil.Error(w, 400, "invalid video id")
		return
	}

	var count int64
	err = h.DB.QueryRowContext(r.Context(),
		fmt.Sprintf("UPDATE videos SET %s = %s + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? RETURNING %s", col, col, col),
		id).Scan(&count)
	if err == sql.ErrNoRows {
		httputil.Error(w, 404, "Video not found")
		return
	}
	if err != nil {
		httputil.Error(w, 500, "Failed to update video")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"success": true, col: count})
}

// ExtractThumbnailRequest is the JSON body for the thumbnail utility.
type ExtractThumbnailRequest struct {
	URL string `json:"url"`
}

// HandleExtractThumbnail resolves a URL and probes for its best
// available thumbnail without persisting anything.
func (h *Handler) HandleExtractThumbnail(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req ExtractThumbnailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		httputil.Error(w, 400, "URL is required")
		return
	}

	videoID, ok := ingest.ExtractVideoID(req.URL)
	if !ok {
		httputil.WriteJSON(w, 200, map[string]interface{}{
			"videoId": nil, "thumbnailUrl": nil, "success": false,
		})
		return
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{
		"videoId":      videoID,
		"thumbnailUrl": h.Pipeline.Thumbnails.Best(r.Context(), videoID),
		"success":      true,
	})
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// scanVideos scans catalog rows into response maps with standard fields.
func scanVideos(rows *sql.Rows) []map[string]interface{} {
	videos := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, duration, viewCount, likesCount int64
		var title, videoURL, videoType, createdAt, updatedAt string
		var description, youtubeURL, thumbnailURL, category, channelName sql.NullString

		if err := rows.Scan(&id, &title, &description, &videoURL, &youtubeURL,
			&thumbnailURL, &duration, &videoType, &category, &channelName,
			&viewCount, &likesCount, &createdAt, &updatedAt); err != nil {
			log.Printf("scanVideos: %v", err)
			continue
		}

		videos = append(videos, map[string]interface{}{
			"id": id, "title": title, "description": description.String,
			"video_url": videoURL, "youtube_url": youtubeURL.String,
			"thumbnail_url": thumbnailURL.String, "duration": duration,
			"video_type": videoType, "category": category.String,
			"channel_name": channelName.String,
			"view_count":   viewCount, "likes_count": likesCount,
			"created_at": createdAt, "updated_at": updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		log.Printf("scanVideos iteration error: %v", err)
	}
	return videos
}
