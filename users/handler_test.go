package users

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

func withUserParam(r *http.Request, id int64) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("userId", fmt.Sprintf("%d", id))
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func createUser(t *testing.T, h *Handler, name string) int64 {
	t.Helper()
	b, _ := json.Marshal(map[string]string{"name": name})
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, httptest.NewRequest("POST", "/api/users", bytes.NewReader(b)))
	if rec.Code != 200 {
		t.Fatalf("create user: %d %s", rec.Code, rec.Body.String())
	}
	user := decodeJSON(t, rec)["user"].(map[string]interface{})
	return int64(user["id"].(float64))
}

func TestCreateAndList(t *testing.T) {
	h := newTestHandler(t)
	createUser(t, h, "alice")
	createUser(t, h, "bob")

	rec := httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest("GET", "/api/users", nil))
	if rec.Code != 200 {
		t.Fatalf("list: %d", rec.Code)
	}
	users := decodeJSON(t, rec)["users"].([]interface{})
	if len(users) != 2 {
		t.Fatalf("users = %d, want 2", len(users))
	}
	// Oldest first.
	if users[0].(map[string]interface{})["name"] != "alice" {
		t.Errorf("first user = %v, want alice", users[0])
	}
	// Profile-only users carry no avatar yet.
	if users[0].(map[string]interface{})["avatar_url"] != nil {
		t.Errorf("avatar_url = %v, want null", users[0].(map[string]interface{})["avatar_url"])
	}
}

func TestCreateRequiresName(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, httptest.NewRequest("POST", "/api/users", bytes.NewReader([]byte(`{}`))))
	if rec.Code != 400 {
		t.Fatalf("nameless create: %d, want 400", rec.Code)
	}
}

func TestGetUpdateDelete(t *testing.T) {
	h := newTestHandler(t)
	id := createUser(t, h, "alice")

	rec := httptest.NewRecorder()
	h.HandleGet(rec, withUserParam(httptest.NewRequest("GET", "/api/users/1", nil), id))
	if rec.Code != 200 {
		t.Fatalf("get: %d", rec.Code)
	}
	if user := decodeJSON(t, rec)["user"].(map[string]interface{}); user["name"] != "alice" {
		t.Errorf("name = %v", user["name"])
	}

	body := []byte(`{"name":"alicia","avatar_url":"https://cdn.test/a.png"}`)
	rec = httptest.NewRecorder()
	h.HandleUpdate(rec, withUserParam(httptest.NewRequest("PUT", "/api/users/1", bytes.NewReader(body)), id))
	if rec.Code != 200 {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	user := decodeJSON(t, rec)["user"].(map[string]interface{})
	if user["name"] != "alicia" || user["avatar_url"] != "https://cdn.test/a.png" {
		t.Errorf("updated user = %v", user)
	}

	rec = httptest.NewRecorder()
	h.HandleDelete(rec, withUserParam(httptest.NewRequest("DELETE", "/api/users/1", nil), id))
	if rec.Code != 200 {
		t.Fatalf("delete: %d", rec.Code)
	}
	resp := decodeJSON(t, rec)
	if resp["message"] != "User deleted successfully" {
		t.Errorf("delete message = %v", resp["message"])
	}

	rec = httptest.NewRecorder()
	h.HandleGet(rec, withUserParam(httptest.NewRequest("GET", "/api/users/1", nil), id))
	if rec.Code != 404 {
		t.Fatalf("get after delete: %d, want 404", rec.Code)
	}
}

func TestDeleteUserWithLibraryRows(t *testing.T) {
	h := newTestHandler(t)
	id := createUser(t, h, "alice")

	var videoID int64
	if err := h.DB.QueryRow(
		`INSERT INTO videos (title, video_url) VALUES ('seed', 'https://youtu.be/seed1234') RETURNING id`,
	).Scan(&videoID); err != nil {
		t.Fatalf("insert video: %v", err)
	}
	for _, stmt := range []string{
		`INSERT INTO watch_history (user_id, video_id, progress) VALUES (?, ?, 0.5)`,
		`INSERT INTO watch_later (user_id, video_id) VALUES (?, ?)`,
		`INSERT INTO saved_videos (user_id, video_id) VALUES (?, ?)`,
		`INSERT INTO video_assignments (user_id, video_id) VALUES (?, ?)`,
	} {
		if _, err := h.DB.Exec(stmt, id, videoID); err != nil {
			t.Fatalf("seed referencing row: %v", err)
		}
	}
	if _, err := h.DB.Exec(
		`INSERT INTO search_history (user_id, query) VALUES (?, 'gophers')`, id); err != nil {
		t.Fatalf("seed search history: %v", err)
	}

	rec := httptest.NewRecorder()
	h.HandleDelete(rec, withUserParam(httptest.NewRequest("DELETE", "/api/users/1", nil), id))
	if rec.Code != 200 {
		t.Fatalf("delete user with library rows: %d %s", rec.Code, rec.Body.String())
	}

	for _, table := range []string{
		"users", "watch_history", "watch_later", "saved_videos", "search_history", "video_assignments",
	} {
		var count int
		if err := h.DB.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("%s still has %d rows after user delete", table, count)
		}
	}

	// The video itself is untouched.
	var videoCount int
	if err := h.DB.QueryRow(`SELECT COUNT(*) FROM videos`).Scan(&videoCount); err != nil || videoCount != 1 {
		t.Fatalf("videos = %d (%v), want 1", videoCount, err)
	}
}

func TestUpdateMissingUser(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.HandleUpdate(rec, withUserParam(httptest.NewRequest("PUT", "/api/users/99",
		bytes.NewReader([]byte(`{"name":"x"}`))), 99))
	if rec.Code != 404 {
		t.Fatalf("update missing: %d, want 404", rec.Code)
	}
}

func TestUploadAvatarAccessAndAvailability(t *testing.T) {
	h := newTestHandler(t)
	id := createUser(t, h, "alice")

	// Mismatched principal is rejected before storage is consulted.
	req := withUserParam(httptest.NewRequest("POST", "/api/users/1/avatar", nil), id)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, id+1))
	rec := httptest.NewRecorder()
	h.HandleUploadAvatar(rec, req)
	if rec.Code != 403 {
		t.Fatalf("foreign avatar upload: %d, want 403", rec.Code)
	}

	// No object storage configured.
	req = withUserParam(httptest.NewRequest("POST", "/api/users/1/avatar", nil), id)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, id))
	rec = httptest.NewRecorder()
	h.HandleUploadAvatar(rec, req)
	if rec.Code != 503 {
		t.Fatalf("upload without storage: %d, want 503", rec.Code)
	}
}
