package users

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"vidvault/auth"
	"vidvault/db"
	"vidvault/httputil"
	"vidvault/storage"

	"github.com/go-chi/chi/v5"
)

const maxAvatarSize = 5 << 20 // 5 MB

// Handler holds dependencies for the user endpoints. Avatars is nil
// when object storage is not configured; avatar upload then answers 503.
type Handler struct {
	DB      *db.CompatDB
	Avatars *storage.Store
}

func scanUser(row *sql.Row) (map[string]interface{}, error) {
	var id int64
	var name, createdAt string
	var avatarURL sql.NullString
	if err := row.Scan(&id, &name, &avatarURL, &createdAt); err != nil {
		return nil, err
	}
	var avatar interface{}
	if avatarURL.Valid {
		avatar = avatarURL.String
	}
	return map[string]interface{}{
		"id": id, "name": name, "avatar_url": avatar, "created_at": createdAt,
	}, nil
}

// HandleList returns all users, oldest first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.QueryContext(r.Context(),
		`SELECT id, name, avatar_url, created_at FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to fetch users"})
		return
	}
	defer rows.Close()

	users := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id int64
		var name, createdAt string
		var avatarURL sql.NullString
		if err := rows.Scan(&id, &name, &avatarURL, &createdAt); err != nil {
			log.Printf("scan user: %v", err)
			continue
		}
		var avatar interface{}
		if avatarURL.Valid {
			avatar = avatarURL.String
		}
		users = append(users, map[string]interface{}{
			"id": id, "name": name, "avatar_url": avatar, "created_at": createdAt,
		})
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"users": users})
}

// CreateRequest is the JSON body for creating a profile-only user.
type CreateRequest struct {
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

// HandleCreate adds a user profile without credentials (content curation
// targets; they log in later via registration).
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		httputil.WriteJSON(w, 400, map[string]string{"error": "Name is required"})
		return
	}

	var id int64
	var createdAt string
	err := h.DB.QueryRowContext(r.Context(),
		`INSERT INTO users (name, avatar_url) VALUES (?, ?) RETURNING id, created_at`,
		req.Name, req.AvatarURL).Scan(&id, &createdAt)
	if err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to create user"})
		return
	}

	var avatar interface{}
	if req.AvatarURL != nil {
		avatar = *req.AvatarURL
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{
		"user": map[string]interface{}{
			"id": id, "name": req.Name, "avatar_url": avatar, "created_at": createdAt,
		},
	})
}

// HandleGet returns a single user.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		httputil.WriteJSON(w, 400, map[string]string{"error": "invalid user id"})
		return
	}

	user, err := scanUser(h.DB.QueryRowContext(r.Context(),
		`SELECT id, name, avatar_url, created_at FROM users WHERE id = ?`, id))
	if err != nil {
		httputil.WriteJSON(w, 404, map[string]string{"error": "User not found"})
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"user": user})
}

// HandleUpdate updates a user's name and avatar URL.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		httputil.WriteJSON(w, 400, map[string]string{"error": "invalid user id"})
		return
	}
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		httputil.WriteJSON(w, 400, map[string]string{"error": "Name is required"})
		return
	}

	res, err := h.DB.ExecContext(r.Context(),
		`UPDATE users SET name = ?, avatar_url = ? WHERE id = ?`, req.Name, req.AvatarURL, id)
	if err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to update user"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteJSON(w, 404, map[string]string{"error": "User not found"})
		return
	}

	user, err := scanUser(h.DB.QueryRowContext(r.Context(),
		`SELECT id, name, avatar_url, created_at FROM users WHERE id = ?`, id))
	if err != nil {
		httputil.WriteJSON(w, 404, map[string]string{"error": "User not found"})
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"user": user})
}

// HandleDelete removes a user together with their library, history and
// assignment rows in one transaction.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		httputil.WriteJSON(w, 400, map[string]string{"error": "invalid user id"})
		return
	}

	user, err := scanUser(h.DB.QueryRowContext(r.Context(),
		`SELECT id, name, avatar_url, created_at FROM users WHERE id = ?`, id))
	if err != nil {
		httputil.WriteJSON(w, 404, map[string]string{"error": "User not found"})
		return
	}

	err = db.WithTx(r.Context(), h.DB, func(conn *db.CompatConn) error {
		for _, table := range []string{
			"watch_history", "watch_later", "saved_videos", "search_history", "video_assignments",
		} {
			if _, err := conn.ExecContext(r.Context(),
				`DELETE FROM `+table+` WHERE user_id = ?`, id); err != nil {
				return fmt.Errorf("cascade delete from %s: %w", table, err)
			}
		}
		if _, err := conn.ExecContext(r.Context(), `DELETE FROM users WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Printf("user delete failed for %d: %v", id, err)
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to delete user"})
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{
		"message": "User deleted successfully",
		"user":    user,
	})
}

// HandleUploadAvatar stores an avatar in object storage and points the
// user's avatar_url at it. The upload must be the multipart field
// "avatar" and the caller must be the user being updated.
func (h *Handler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		httputil.WriteJSON(w, 400, map[string]string{"error": "invalid user id"})
		return
	}
	principal, ok := auth.ExtractUserID(r)
	if !ok || principal != id {
		httputil.WriteJSON(w, 403, map[string]string{"error": "forbidden"})
		return
	}
	if h.Avatars == nil {
		httputil.WriteJSON(w, 503, map[string]string{"error": "avatar storage not configured"})
		return
	}

	httputil.MaxBody(r, maxAvatarSize)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		httputil.WriteJSON(w, 400, map[string]string{"error": "avatar file is required"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	url, err := h.Avatars.UploadAvatar(r.Context(), id, file, header.Size, contentType)
	if err != nil {
		log.Printf("avatar upload failed for user %d: %v", id, err)
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to upload avatar"})
		return
	}

	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE users SET avatar_url = ? WHERE id = ?`, url, id); err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "Failed to update avatar"})
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"avatar_url": url})
}
