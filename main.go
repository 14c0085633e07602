package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vidvault/auth"
	"vidvault/db"
	"vidvault/httputil"
	"vidvault/ingest"
	"vidvault/library"
	"vidvault/ratelimit"
	"vidvault/search"
	"vidvault/storage"
	"vidvault/users"
	"vidvault/videos"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"
)

type Config struct {
	DatabaseURL   string // postgres:// DSN; empty means SQLite
	DBPath        string
	ScraperURL    string
	JWTSecret     string
	MinioEndpoint string
	MinioAccess   string
	MinioSecret   string
	MinioBucket   string
	MinioSSL      bool
	Port          string
}

func loadConfig() Config {
	return Config{
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DBPath:        getEnv("DB_PATH", "/data/vidvault.db"),
		ScraperURL:    getEnv("SCRAPER_URL", ""),
		JWTSecret:     getEnv("JWT_SECRET", "supersecretkey"),
		MinioEndpoint: getEnv("MINIO_ENDPOINT", ""),
		MinioAccess:   getEnv("MINIO_ACCESS_KEY", "vidvault"),
		MinioSecret:   getEnv("MINIO_SECRET_KEY", "changeme123"),
		MinioBucket:   getEnv("MINIO_BUCKET", "media"),
		MinioSSL:      getEnv("MINIO_USE_SSL", "false") == "true",
		Port:          getEnv("PORT", "8080"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openDatabase(cfg Config) (*db.CompatDB, error) {
	if strings.HasPrefix(cfg.DatabaseURL, "postgres://") || strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
		rawDB, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rawDB.SetMaxOpenConns(10)
		if err := db.RunMigrations(rawDB, db.DialectPostgres); err != nil {
			return nil, err
		}
		return db.NewCompatDB(rawDB, db.DialectPostgres), nil
	}

	rawDB, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, err
	}
	// Single connection: prevents concurrent write conflicts
	rawDB.SetMaxOpenConns(1)
	rawDB.SetMaxIdleConns(1)
	rawDB.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := rawDB.Exec(pragma); err != nil {
			return nil, err
		}
	}
	if err := db.RunMigrations(rawDB, db.DialectSQLite); err != nil {
		return nil, err
	}
	return db.NewCompatDB(rawDB, db.DialectSQLite), nil
}

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}
	cfg := loadConfig()

	database, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	var avatarStore *storage.Store
	if cfg.MinioEndpoint != "" {
		avatarStore, err = storage.New(context.Background(),
			cfg.MinioEndpoint, cfg.MinioAccess, cfg.MinioSecret, cfg.MinioBucket, cfg.MinioSSL)
		if err != nil {
			log.Fatalf("failed to connect to minio: %v", err)
		}
	}

	pipeline := &ingest.Pipeline{
		DB:         database,
		Thumbnails: &ingest.ThumbnailNegotiator{},
		Scraper:    &ingest.Scraper{Endpoint: cfg.ScraperURL},
	}

	authHandler := &auth.Handler{DB: database, JWTSecret: cfg.JWTSecret}
	videoHandler := &videos.Handler{DB: database, Pipeline: pipeline}
	libraryHandler := &library.Handler{DB: database}
	searchHandler := &search.Handler{DB: database}
	userHandler := &users.Handler{DB: database, Avatars: avatarStore}

	authLimiter := ratelimit.New(20, time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(authLimiter))
		r.Post("/api/auth/register", authHandler.HandleRegister)
		r.Post("/api/auth/login", authHandler.HandleLogin)
	})

	r.Get("/api/videos", authHandler.OptionalAuth(videoHandler.HandleList))
	r.Get("/api/videos/{id}", videoHandler.HandleGet)
	r.Get("/api/search", authHandler.OptionalAuth(searchHandler.HandleSearch))

	r.Group(func(r chi.Router) {
		r.Use(authHandler.Middleware)

		r.Post("/api/videos", videoHandler.HandleCreate)
		r.Put("/api/videos/{id}", videoHandler.HandleUpdate)
		r.Patch("/api/videos/{id}", videoHandler.HandleUpdate)
		r.Delete("/api/videos/{id}", videoHandler.HandleDelete)
		r.Post("/api/videos/{id}/like", videoHandler.HandleLike)
		r.Post("/api/videos/{id}/view", videoHandler.HandleView)
		r.Post("/api/videos/extract-thumbnail", videoHandler.HandleExtractThumbnail)

		r.Post("/api/search", searchHandler.HandleRecord)

		r.Get("/api/users", userHandler.HandleList)
		r.Post("/api/users", userHandler.HandleCreate)
		r.Get("/api/users/{userId}", userHandler.HandleGet)
		r.Put("/api/users/{userId}", userHandler.HandleUpdate)
		r.Delete("/api/users/{userId}", userHandler.HandleDelete)
		r.Post("/api/users/{userId}/avatar", userHandler.HandleUploadAvatar)

		r.Get("/api/users/{userId}/watch-history", libraryHandler.HandleListHistory)
		r.Post("/api/users/{userId}/watch-history", libraryHandler.HandleRecordHistory)
		r.Get("/api/users/{userId}/watch-later", libraryHandler.HandleListWatchLater)
		r.Post("/api/users/{userId}/watch-later", libraryHandler.HandleAddWatchLater)
		r.Delete("/api/users/{userId}/watch-later", libraryHandler.HandleRemoveWatchLater)
		r.Get("/api/users/{userId}/saved-videos", libraryHandler.HandleListSaved)
		r.Post("/api/users/{userId}/saved-videos", libraryHandler.HandleSave)
		r.Delete("/api/users/{userId}/saved-videos", libraryHandler.HandleUnsave)
		r.Get("/api/users/{userId}/search-history", searchHandler.HandleListHistory)
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Printf("vidvault API listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	log.Println("server shut down")
}
