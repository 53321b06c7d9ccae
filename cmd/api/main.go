package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"leafwiki/api/internal/blob"
	"leafwiki/api/internal/cache"
	"leafwiki/api/internal/config"
	"leafwiki/api/internal/gitmirror"
	"leafwiki/api/internal/identity"
	"leafwiki/api/internal/search"
	"leafwiki/api/internal/store"
	"leafwiki/api/internal/wiki"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv load failed: %v", err)
	}
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	defer meiliClient.Close()

	caches, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer caches.Close()

	var blobs *blob.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobs, err = blob.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
		if err := blobs.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: bucket check failed (exports will not be archived): %v", err)
		}
	}

	if err := os.MkdirAll(cfg.MirrorDir, 0o755); err != nil {
		log.Fatalf("failed to create mirror dir: %v", err)
	}
	mirror := gitmirror.New(cfg.MirrorDir)

	identityService := identity.NewService(dataStore, []byte(cfg.SessionSecret))
	wikiService := wiki.NewService(cfg, dataStore, meiliClient, meiliClient, caches, mirror)

	httpServer := wiki.NewHTTPServer(wikiService, identityService, blobs)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("LeafWiki listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
