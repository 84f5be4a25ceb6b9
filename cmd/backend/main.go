package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"filedrop/internal/blob"
	"filedrop/internal/db"
	"filedrop/internal/server"
	"filedrop/internal/store"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	addr := getenvDefault("FILEDROP_ADDR", ":8080")

	build := server.BuildInfo{
		Version: getenvDefault("FILEDROP_VERSION", "dev"),
		Commit:  getenvDefault("FILEDROP_COMMIT", "unknown"),
	}

	// Database
	dsn := getenvDefault("DATABASE_URL", "")
	dbConn, err := store.OpenDB(dsn)
	if err != nil {
		log.Printf("service=backend msg=%q err=%v", "db_connect_failed", err)
		os.Exit(1)
	}
	defer func() { _ = dbConn.Close() }()

	// Run migrations
	log.Printf("service=backend msg=%q", "running_migrations")
	if err := db.RunMigrations(dbConn); err != nil {
		log.Printf("service=backend msg=%q err=%v", "migration_failed", err)
		os.Exit(1)
	}
	log.Printf("service=backend msg=%q", "migrations_complete")

	// Blob storage
	mblob, err := blob.NewMinio(context.Background(), blob.Options{
		Endpoint:  getenvDefault("FILEDROP_S3_ENDPOINT", ""),
		AccessKey: getenvDefault("FILEDROP_S3_ACCESS_KEY", ""),
		SecretKey: getenvDefault("FILEDROP_S3_SECRET_KEY", ""),
		Bucket:    getenvDefault("FILEDROP_BUCKET", ""),
	})
	if err != nil {
		log.Printf("service=backend msg=%q err=%v", "minio_connect_failed", err)
		os.Exit(1)
	}

	srv := server.New(server.Config{
		Addr:               addr,
		Build:              build,
		UserRegisterRoute:  getenvBool("FILEDROP_USER_REGISTER_ROUTE", true),
		MaxUploadBytes:     getenvInt64("FILEDROP_MAX_UPLOAD_BYTES", 0),
		RateLimitPerMinute: int(getenvInt64("FILEDROP_RATE_LIMIT_PER_MINUTE", 120)),
	}, store.NewPostgres(dbConn), mblob)

	// Start the HTTP server in a background goroutine so we can listen for
	// OS signals while it runs.
	errCh := make(chan error, 1)
	go func() {
		log.Printf("service=backend msg=%q addr=%s version=%s commit=%s",
			"starting", addr, build.Version, build.Commit)
		errCh <- srv.Start()
	}()

	// Graceful shutdown on SIGINT (Ctrl+C) or SIGTERM (container stop).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("service=backend msg=%q signal=%s", "shutting_down", sig.String())
		// Give the server 5 seconds to finish in-flight requests.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("service=backend msg=%q err=%v", "shutdown_error", err)
			os.Exit(1)
		}
		log.Printf("service=backend msg=%q", "shutdown_complete")
	case err := <-errCh:
		if err != nil {
			log.Printf("service=backend msg=%q err=%v", "server_error", err)
			os.Exit(1)
		}
	}
}

// getenvDefault reads an environment variable and returns a default value
// if not set.
func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
