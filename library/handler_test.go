package library

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"vidvault/auth"
	"vidvault/db"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	rawDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	rawDB.SetMaxOpenConns(1)
	if _, err := rawDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if err := db.RunMigrations(rawDB, db.DialectSQLite); err != nil {
		t.Fatalf("schema migration: %v", err)
	}
	t.Cleanup(func() { rawDB.Close() })
	return &Handler{DB: db.NewCompatDB(rawDB, db.DialectSQLite)}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return m
}

// userRequest builds a request for a user-scoped route: {userId} path
// parameter set to pathUserID, principal authenticated as authedID.
func userRequest(method, url string, body interface{}, pathUserID, authedID int64) *http.Request {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(b))

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("userId", fmt.Sprintf("%d", pathUserID))
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, auth.UserIDKey, authedID)
	return req.WithContext(ctx)
}

func seedUserAndVideo(t *testing.T, d *db.CompatDB) (userID, videoID int64) {
	t.Helper()
	if err := d.QueryRow(`INSERT INTO users (name) VALUES ('alice') RETURNING id`).Scan(&userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if err := d.QueryRow(
		`INSERT INTO videos (title, video_url) VALUES ('seed', 'https://youtu.be/seed1234') RETURNING id`,
	).Scan(&videoID); err != nil {
		t.Fatalf("insert video: %v", err)
	}
	return userID, videoID
}

func TestPathUserMismatch(t *testing.T) {
	h := newTestHandler(t)
	seedUserAndVideo(t, h.DB)

	// Principal 2 requesting user 1's library.
	rec := httptest.NewRecorder()
	h.HandleListHistory(rec, userRequest("GET", "/api/users/1/watch-history", nil, 1, 2))
	if rec.Code != 403 {
		t.Fatalf("mismatched principal: %d, want 403", rec.Code)
	}
}

func TestRecordHistoryUpsert(t *testing.T) {
	h := newTestHandler(t)
	userID, videoID := seedUserAndVideo(t, h.DB)

	rec := httptest.NewRecorder()
	h.HandleRecordHistory(rec, userRequest("POST", "/api/users/1/watch-history",
		map[string]interface{}{"video_id": videoID, "progress": 10.5}, userID, userID))
	if rec.Code != 200 {
		t.Fatalf("record history: %d %s", rec.Code, rec.Body.String())
	}
	entry := decodeJSON(t, rec)["watchEntry"].(map[string]interface{})
	firstID := entry["id"].(float64)

	// Re-watching refreshes the same row instead of inserting a second.
	rec = httptest.NewRecorder()
	h.HandleRecordHistory(rec, userRequest("POST", "/api/users/1/watch-history",
		map[string]interface{}{"video_id": videoID, "progress": 55.0}, userID, userID))
	if rec.Code != 200 {
		t.Fatalf("re-record history: %d %s", rec.Code, rec.Body.String())
	}
	entry = decodeJSON(t, rec)["watchEntry"].(map[string]interface{})
	if entry["id"].(float64) != firstID {
		t.Errorf("upsert created new row: id %v, want %v", entry["id"], firstID)
	}

	var count int
	var progress float64
	if err := h.DB.QueryRow(
		`SELECT COUNT(*) FROM watch_history WHERE user_id = ?`, userID).Scan(&count); err != nil || count != 1 {
		t.Fatalf("history rows = %d (%v), want 1", count, err)
	}
	if err := h.DB.QueryRow(
		`SELECT progress FROM watch_history WHERE user_id = ? AND video_id = ?`,
		userID, videoID).Scan(&progress); err != nil || progress != 55.0 {
		t.Fatalf("progress = %v (%v), want 55", progress, err)
	}

	rec = httptest.NewRecorder()
	h.HandleListHistory(rec, userRequest("GET", "/api/users/1/watch-history", nil, userID, userID))
	if rec.Code != 200 {
		t.Fatalf("list history: %d", rec.Code)
	}
	history := decodeJSON(t, rec)["watchHistory"].([]interface{})
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	if got := history[0].(map[string]interface{})["title"]; got != "seed" {
		t.Errorf("joined title = %v", got)
	}
}

func TestRecordHistoryRequiresVideoID(t *testing.T) {
	h := newTestHandler(t)
	userID, _ := seedUserAndVideo(t, h.DB)

	rec := httptest.NewRecorder()
	h.HandleRecordHistory(rec, userRequest("POST", "/api/users/1/watch-history",
		map[string]interface{}{"progress": 10}, userID, userID))
	if rec.Code != 400 {
		t.Fatalf("missing video_id: %d, want 400", rec.Code)
	}
}

func TestWatchLaterLifecycle(t *testing.T) {
	h := newTestHandler(t)
	userID, videoID := seedUserAndVideo(t, h.DB)

	rec := httptest.NewRecorder()
	h.HandleAddWatchLater(rec, userRequest("POST", "/api/users/1/watch-later",
		map[string]interface{}{"videoId": videoID}, userID, userID))
	if rec.Code != 200 {
		t.Fatalf("add: %d %s", rec.Code, rec.Body.String())
	}
	if resp := decodeJSON(t, rec); resp["message"] != "Video added to watch later" {
		t.Errorf("add message = %v", resp["message"])
	}

	// Adding again is acknowledged, not duplicated.
	rec = httptest.NewRecorder()
	h.HandleAddWatchLater(rec, userRequest("POST", "/api/users/1/watch-later",
		map[string]interface{}{"videoId": videoID}, userID, userID))
	if resp := decodeJSON(t, rec); resp["message"] != "Video already in watch later" {
		t.Errorf("duplicate add message = %v", resp["message"])
	}

	rec = httptest.NewRecorder()
	h.HandleListWatchLater(rec, userRequest("GET", "/api/users/1/watch-later", nil, userID, userID))
	queue := decodeJSON(t, rec)["watchLaterVideos"].([]interface{})
	if len(queue) != 1 {
		t.Fatalf("queue length = %d, want 1", len(queue))
	}
	if got := queue[0].(map[string]interface{})["title"]; got != "seed" {
		t.Errorf("queued title = %v", got)
	}

	rec = httptest.NewRecorder()
	h.HandleRemoveWatchLater(rec, userRequest("DELETE", "/api/users/1/watch-later",
		map[string]interface{}{"videoId": videoID}, userID, userID))
	if rec.Code != 200 {
		t.Fatalf("remove: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleListWatchLater(rec, userRequest("GET", "/api/users/1/watch-later", nil, userID, userID))
	if queue := decodeJSON(t, rec)["watchLaterVideos"].([]interface{}); len(queue) != 0 {
		t.Fatalf("queue length after remove = %d, want 0", len(queue))
	}
}

func TestSaveUnsave(t *testing.T) {
	h := newTestHandler(t)
	userID, videoID := seedUserAndVideo(t, h.DB)

	rec := httptest.NewRecorder()
	h.HandleSave(rec, userRequest("POST", "/api/users/1/saved-videos",
		map[string]interface{}{"video_id": videoID}, userID, userID))
	if rec.Code != 200 {
		t.Fatalf("save: %d %s", rec.Code, rec.Body.String())
	}
	saved := decodeJSON(t, rec)["savedVideo"].(map[string]interface{})
	firstID := saved["id"].(float64)

	// Saving again is idempotent and returns the existing row.
	rec = httptest.NewRecorder()
	h.HandleSave(rec, userRequest("POST", "/api/users/1/saved-videos",
		map[string]interface{}{"video_id": videoID}, userID, userID))
	saved = decodeJSON(t, rec)["savedVideo"].(map[string]interface{})
	if saved["id"].(float64) != firstID {
		t.Errorf("duplicate save id = %v, want %v", saved["id"], firstID)
	}

	var count int
	if err := h.DB.QueryRow(`SELECT COUNT(*) FROM saved_videos`).Scan(&count); err != nil || count != 1 {
		t.Fatalf("saved rows = %d (%v), want 1", count, err)
	}

	rec = httptest.NewRecorder()
	h.HandleListSaved(rec, userRequest("GET", "/api/users/1/saved-videos", nil, userID, userID))
	if list := decodeJSON(t, rec)["savedVideos"].([]interface{}); len(list) != 1 {
		t.Fatalf("saved list = %d, want 1", len(list))
	}

	url := fmt.Sprintf("/api/users/1/saved-videos?video_id=%d", videoID)
	rec = httptest.NewRecorder()
	h.HandleUnsave(rec, userRequest("DELETE", url, nil, userID, userID))
	if rec.Code != 200 {
		t.Fatalf("unsave: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleListSaved(rec, userRequest("GET", "/api/users/1/saved-videos", nil, userID, userID))
	if list := decodeJSON(t, rec)["savedVideos"].([]interface{}); len(list) != 0 {
		t.Fatalf("saved list after unsave = %d, want 0", len(list))
	}
}

func TestUnsaveRequiresVideoID(t *testing.T) {
	h := newTestHandler(t)
	userID, _ := seedUserAndVideo(t, h.DB)

	rec := httptest.NewRecorder()
	h.HandleUnsave(rec, userRequest("DELETE", "/api/users/1/saved-videos", nil, userID, userID))
	if rec.Code != 400 {
		t.Fatalf("unsave without video_id: %d, want 400", rec.Code)
	}
}
