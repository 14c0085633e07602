package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vidvault/db"
)

// Pipeline failure classes. ErrMissingURL and ErrUnsupportedURL are
// client input errors; ErrNotFound distinguishes a missing video from a
// persistence failure on delete. Anything else is a server error.
var (
	ErrMissingURL     = errors.New("video url is required")
	ErrUnsupportedURL = errors.New("invalid or unsupported video url")
	ErrNotFound       = errors.New("video not found")
)

// Defaults seeded before enrichment.
const (
	DefaultTitle   = "Untitled Video"
	DefaultChannel = "Unknown Channel"

	defaultShortDuration = 60
	defaultLongDuration  = 1800
)

// Request is a client-submitted video-creation request.
type Request struct {
	VideoURL        string  `json:"video_url"`
	YouTubeURL      string  `json:"youtube_url"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	VideoType       string  `json:"video_type"`
	Category        string  `json:"category"`
	Duration        int64   `json:"duration"`
	AssignedUserIDs []int64 `json:"assigned_user_ids"`
}

// Video is a persisted catalog entry.
type Video struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	VideoURL     string `json:"video_url"`
	YouTubeURL   string `json:"youtube_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Duration     int64  `json:"duration"`
	VideoType    string `json:"video_type"`
	Category     string `json:"category"`
	ChannelName  string `json:"channel_name"`
	ViewCount    int64  `json:"view_count"`
	LikesCount   int64  `json:"likes_count"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Pipeline turns a creation request into a persisted Video plus optional
// assignment fan-out, and handles the cascade-delete counterpart.
type Pipeline struct {
	DB         *db.CompatDB
	Thumbnails *ThumbnailNegotiator
	Scraper    *Scraper
}

// Ingest runs the linear pipeline: validate, resolve, negotiate
// thumbnail, enrich, persist. The video row and its assignment rows are
// written in a single transaction so either both succeed or neither
// does. Thumbnail and enrichment failures degrade to defaults and never
// abort the operation.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Video, Metadata, error) {
	finalURL := req.VideoURL
	if finalURL == "" {
		finalURL = req.YouTubeURL
	}
	if finalURL == "" {
		return nil, Metadata{}, ErrMissingURL
	}

	videoID, ok := ExtractVideoID(finalURL)
	if !ok {
		return nil, Metadata{}, ErrUnsupportedURL
	}

	thumbnailURL := p.Thumbnails.Best(ctx, videoID)

	seed := Metadata{
		Title:        req.Title,
		Description:  req.Description,
		ChannelName:  DefaultChannel,
		ThumbnailURL: thumbnailURL,
	}
	if seed.Title == "" {
		seed.Title = DefaultTitle
	}
	if seed.Description == "" {
		seed.Description = "Video ID: " + videoID
	}
	meta := p.Scraper.Enrich(ctx, finalURL, seed)
	meta.ThumbnailURL = thumbnailURL

	videoType := req.VideoType
	if videoType != "short" {
		videoType = "long"
	}
	duration := req.Duration
	if duration <= 0 {
		if videoType == "short" {
			duration = defaultShortDuration
		} else {
			duration = defaultLongDuration
		}
	}

	youtubeURL := req.YouTubeURL
	if youtubeURL == "" {
		youtubeURL = finalURL
	}

	video := &Video{
		Title:        meta.Title,
		Description:  meta.Description,
		VideoURL:     finalURL,
		YouTubeURL:   youtubeURL,
		ThumbnailURL: meta.ThumbnailURL,
		Duration:     duration,
		VideoType:    videoType,
		Category:     req.Category,
		ChannelName:  meta.ChannelName,
	}

	err := db.WithTx(ctx, p.DB, func(conn *db.CompatConn) error {
		err := conn.QueryRowContext(ctx, `
			INSERT INTO videos (title, description, video_url, youtube_url, thumbnail_url,
			                    duration, video_type, category, channel_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id, created_at, updated_at
		`, video.Title, video.Description, video.VideoURL, video.YouTubeURL,
			video.ThumbnailURL, video.Duration, video.VideoType, video.Category,
			video.ChannelName,
		).Scan(&video.ID, &video.CreatedAt, &video.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert video: %w", err)
		}

		for _, userID := range req.AssignedUserIDs {
			if _, err := conn.ExecContext(ctx, `
				INSERT INTO video_assignments (video_id, user_id) VALUES (?, ?)
				ON CONFLICT DO NOTHING
			`, video.ID, userID); err != nil {
				return fmt.Errorf("assign video to user %d: %w", userID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, Metadata{}, err
	}
	return video, meta, nil
}

// Delete removes the video and every row referencing it — watch history,
// watch later, saved videos, assignments — in one atomic transaction.
// Returns ErrNotFound when no video row exists for id.
func (p *Pipeline) Delete(ctx context.Context, id int64) (*Video, error) {
	var video Video
	err := db.WithTx(ctx, p.DB, func(conn *db.CompatConn) error {
		var description, youtubeURL, thumbnailURL, category, channelName sql.NullString
		err := conn.QueryRowContext(ctx, `
			SELECT id, title, description, video_url, youtube_url, thumbnail_url,
			       duration, video_type, category, channel_name,
			       view_count, likes_count, created_at, updated_at
			FROM videos WHERE id = ?
		`, id).Scan(&video.ID, &video.Title, &description, &video.VideoURL,
			&youtubeURL, &thumbnailURL, &video.Duration, &video.VideoType,
			&category, &channelName, &video.ViewCount, &video.LikesCount,
			&video.CreatedAt, &video.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load video %d: %w", id, err)
		}
		video.Description = description.String
		video.YouTubeURL = youtubeURL.String
		video.ThumbnailURL = thumbnailURL.String
		video.Category = category.String
		video.ChannelName = channelName.String

		for _, table := range []string{"watch_history", "watch_later", "saved_videos", "video_assignments"} {
			if _, err := conn.ExecContext(ctx, `DELETE FROM `+table+` WHERE video_id = ?`, id); err != nil {
				return fmt.Errorf("cascade delete from %s: %w", table, err)
			}
		}
		if _, err := conn.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete video: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &video, nil
}
