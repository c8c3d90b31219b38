package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"Quill/internal/appwrite"
	"Quill/internal/core/auth"
	"Quill/internal/core/content"
	"Quill/internal/web"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	endpoint := envOr("QUILL_ENDPOINT", "http://localhost:8090/v1")
	projectID := envOr("QUILL_PROJECT_ID", "quill-dev")
	databaseID := envOr("QUILL_DATABASE_ID", "quill")
	collectionID := envOr("QUILL_COLLECTION_ID", "posts")
	bucketID := envOr("QUILL_BUCKET_ID", "post-images")
	cookieSecret := envOr("QUILL_COOKIE_SECRET", "dev-only-secret-change-me-0123456789ab")
	port := envOr("QUILL_PORT", "8080")

	client, err := appwrite.New(endpoint, projectID, databaseID, nil, logger)
	if err != nil {
		log.Fatal("Failed to create remote client:", err)
	}

	// Construct stores once and pass references explicitly. No ambient
	// global lookup anywhere downstream.
	authStore := auth.NewStore(client, logger)
	contentStore := content.NewStore(client, authStore, collectionID, bucketID, logger)

	// One-shot session re-validation before the shell starts serving.
	// No valid session is an expected, silent outcome.
	authStore.CheckAuth(context.Background())
	if snap := authStore.Snapshot(); snap.Authenticated {
		log.Printf("Resumed session for %s", snap.User.Email)
	}

	templates, err := web.NewTemplates()
	if err != nil {
		log.Fatal("Failed to parse templates:", err)
	}
	flash, err := web.NewFlash(cookieSecret)
	if err != nil {
		log.Fatal("Failed to create cookie store:", err)
	}

	handlers := web.NewHandlers(templates, authStore, contentStore, flash, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)

	// Rate limiting: 120 requests per minute per IP
	rateLimiter := web.NewRateLimiter(120, 1*time.Minute)
	r.Use(rateLimiter.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Mount("/", handlers.Routes())

	log.Printf("Quill starting on port %s (remote service: %s)", port, endpoint)
	log.Fatal(http.ListenAndServe(":"+port, r))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
