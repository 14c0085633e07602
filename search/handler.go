package search

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

// Handler holds dependencies for catalog search and search history.
type Handler struct {
	DB *db.CompatDB
}

// HandleSearch matches the query against title, description and
// category, most viewed first. When the caller is authenticated the
// query is recorded in their search history; a recording failure is
// logged but never fails the search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		httputil.WriteJSON(w, 200, map[string]interface{}{"videos": []interface{}{}})
		return
	}
	limit, offset := httputil.ParseLimitOffset(r, 20)
	videoType := r.URL.Query().Get("type")

	sqlQuery := `
		SELECT id, title, description, video_url, youtube_url, thumbnail_url,
		       duration, video_type, category, channel_name,
		       view_count, likes_count, created_at
		FROM videos
		WHERE (LOWER(title) LIKE LOWER(?) OR LOWER(description) LIKE LOWER(?)
		       OR LOWER(category) LIKE LOWER(?))`
	pattern := "%" + query + "%"
	args := []interface{}{pattern, pattern, pattern}
	if videoType != "" {
		sqlQuery += ` AND video_type = ?`
		args = append(args, videoType)
	}
	sqlQuery += ` ORDER BY view_count DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := h.DB.QueryContext(r.Context(), sqlQuery, args...)
	if err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to search videos"})
		return
	}
	defer rows.Close()

	videos := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, duration, viewCount, likesCount int64
		var title, videoURL, videoType, createdAt string
		var description, youtubeURL, thumbnailURL, category, channelName sql.NullString
		if err := rows.Scan(&id, &title, &description, &videoURL, &youtubeURL,
			&thumbnailURL, &duration, &videoType, &category, &channelName,
			&viewCount, &likesCount, &createdAt); err != nil {
			log.Printf("scan search result: %v", err)
			continue
		}
		videos = append(videos, map[string]interface{}{
			"id": id, "title": title, "description": description.String,
			"video_url": videoURL, "youtube_url": youtubeURL.String,
			"thumbnail_url": thumbnailURL.String, "duration": duration,
			"video_type": videoType, "category": category.String,
			"channel_name": channelName.String,
			"view_count":   viewCount, "likes_count": likesCount,
			"created_at": createdAt,
		})
	}

	if userID, ok := auth.ExtractUserID(r); ok {
		if _, err := h.DB.ExecContext(r.Context(),
			`INSERT INTO search_history (user_id, query) VALUES (?, ?)`,
			userID, query); err != nil {
			log.Printf("record search history: %v", err)
		}
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{"videos": videos, "query": query})
}

// RecordRequest is the JSON body for explicitly recording a search.
type RecordRequest struct {
	Query string `json:"query"`
}

// HandleRecord stores a search-history entry for the authenticated user.
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.ExtractUserID(r)
	if !ok {
		httputil.WriteJSON(w, 401, map[string]string{"error": "unauthorized"})
		return
	}
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		httputil.WriteJSON(w, 400, map[string]string{"error": "Query is required"})
		return
	}

	if _, err := h.DB.ExecContext(r.Context(),
		`INSERT INTO search_history (user_id, query) VALUES (?, ?)`,
		userID, req.Query); err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to save search history"})
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"success": true})
}

// HandleListHistory returns the user's distinct past queries, most
// recently searched first.
func (h *Handler) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		httputil.WriteJSON(w, 400, map[string]string{"error": "invalid user id"})
		return
	}
	principal, ok := auth.ExtractUserID(r)
	if !ok || principal != userID {
		httputil.WriteJSON(w, 403, map[string]string{"error": "forbidden"})
		return
	}
	limit, _ := httputil.ParseLimitOffset(r, 20)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT query, MAX(searched_at) AS last_searched
		FROM search_history
		WHERE user_id = ?
		GROUP BY query
		ORDER BY last_searched DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to fetch search history"})
		return
	}
	defer rows.Close()

	history := make([]map[string]interface{}, 0)
	for rows.Next() {
		var query, lastSearched string
		if err := rows.Scan(&query, &lastSearched); err != nil {
			continue
		}
		history = append(history, map[string]interface{}{
			"query": query, "last_searched": lastSearched,
		})
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"searchHistory": history})
}
