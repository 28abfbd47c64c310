package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scribeq/scribeq/internal/api"
	"github.com/scribeq/scribeq/internal/config"
	"github.com/scribeq/scribeq/internal/job"
	"github.com/scribeq/scribeq/internal/media"
	"github.com/scribeq/scribeq/internal/prefs"
	"github.com/scribeq/scribeq/internal/queue"
	"github.com/scribeq/scribeq/internal/transcribe"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	store, err := job.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		slog.Error("store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// The queue is not persisted; rows left queued or processing by a previous
	// run can never finish.
	stale, err := store.FailStale(context.Background(), "interrupted by restart")
	if err != nil {
		slog.Error("recovery", "error", err)
		os.Exit(1)
	}
	if len(stale) > 0 {
		slog.Info("failed stale jobs from previous run", "count", len(stale), "job_ids", stale)
	}

	temp, err := media.NewTempStore(cfg.AudioDir)
	if err != nil {
		slog.Error("temp store", "error", err)
		os.Exit(1)
	}

	prober := media.NewProber(cfg.FFprobePath)
	client := transcribe.NewWebClient(cfg.ScribeURL, 2*time.Minute)
	runner := transcribe.NewRunner(client, cfg.Language,
		time.Duration(cfg.SettleDelaySeconds)*time.Second,
		time.Duration(cfg.PollIntervalSeconds)*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.New(cfg, store, runner, temp)
	q.Start(ctx)

	go cleanupLoop(ctx, store, cfg.JobTTLHours, cfg.CleanupIntervalMinutes)

	mux := http.NewServeMux()
	h := api.NewHandler(store, q, cfg, temp, prober, prefs.New())
	h.RegisterRoutes(mux)

	handler := api.CORSMiddleware(cfg.CORSOrigins,
		api.RequestIDMiddleware(
			api.LoggingMiddleware(mux)))

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 0, // SSE streams stay open for the job's lifetime
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("scribeq listening", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// cleanupLoop periodically deletes terminal jobs older than the TTL.
func cleanupLoop(ctx context.Context, store *job.SQLiteStore, ttlHours, intervalMinutes int) {
	if ttlHours <= 0 || intervalMinutes <= 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-time.Duration(ttlHours) * time.Hour)
			n, err := store.DeleteTerminalBefore(ctx, cutoff)
			if err != nil {
				slog.Error("cleanup", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("cleaned up old jobs", "deleted", n)
			}
		}
	}
}
