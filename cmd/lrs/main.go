// Copyright 2025 Certen Protocol
//
// Command lrs runs the xAPI 2.0 Learning Record Store Statement core:
// config load, database migration, and HTTP API.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/certen/xapi-lrs/pkg/actor"
	"github.com/certen/xapi-lrs/pkg/config"
	"github.com/certen/xapi-lrs/pkg/database"
	"github.com/certen/xapi-lrs/pkg/query"
	"github.com/certen/xapi-lrs/pkg/server"
	"github.com/certen/xapi-lrs/pkg/signature"
	"github.com/certen/xapi-lrs/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	logger := log.New(log.Writer(), "[LRS] ", log.LstdFlags)

	log.Println("🔌 Connecting to database...")
	dbClient, err := database.NewClient(cfg, database.WithLogger(logger))
	if err != nil {
		if cfg.DatabaseRequired {
			log.Fatal("Failed to connect to database:", err)
		}
		log.Printf("⚠️ Database unavailable, continuing without it: %v", err)
	}

	var srv *server.Server
	var st *store.Store
	if dbClient != nil {
		defer dbClient.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		if err := dbClient.MigrateUp(migrateCtx); err != nil {
			cancel()
			log.Fatal("Failed to apply migrations:", err)
		}
		cancel()

		st = store.New(dbClient.DB())
		actors := actor.NewWithLogger(dbClient.DB(), logger)
		engine := query.New(dbClient.DB(), cfg.StatementsPageLen, cfg.StatementsPageMaxLen)
		verifier := signature.New(logger)
		srv = server.New(cfg, st, actors, engine, verifier, logger)
		log.Println("✅ Statement core ready")
	}

	var mux *http.ServeMux
	if srv != nil {
		mux = srv.Mux()
	} else {
		mux = http.NewServeMux()
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if dbClient == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded","database":"unavailable"}`))
			return
		}
		if err := dbClient.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded","database":"disconnected"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	ctx, cancel := context.WithCancel(context.Background())
	if cfg.TempDir != "" {
		go sweepTempFiles(ctx, cfg.TempDir, cfg.TempFileMaxAge, cfg.TempSweepPeriod, logger)
	}

	go func() {
		log.Printf("🌐 LRS Statement API listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down LRS...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("✅ LRS stopped")
}

// sweepTempFiles periodically deletes files in dir older than maxAge.
// A missing file at delete time (already cleaned up by a prior sweep
// or consumed by the ingest path) is tolerated, not an error.
func sweepTempFiles(ctx context.Context, dir string, maxAge, period time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(dir, maxAge, logger)
		}
	}
}

func sweepOnce(dir string, maxAge time.Duration, logger *log.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Printf("temp sweep: reading %s: %v", dir, err)
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Printf("temp sweep: removing %s: %v", path, err)
		}
	}
}
