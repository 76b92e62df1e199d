package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/iconidentify/mediarelay/internal/api"
	"github.com/iconidentify/mediarelay/internal/api/handler"
	"github.com/iconidentify/mediarelay/internal/cachestore"
	"github.com/iconidentify/mediarelay/internal/config"
	"github.com/iconidentify/mediarelay/internal/delivery"
	"github.com/iconidentify/mediarelay/internal/identity"
	"github.com/iconidentify/mediarelay/internal/pipeline"
	"github.com/iconidentify/mediarelay/internal/provider"
	"github.com/iconidentify/mediarelay/internal/repository"
	"github.com/iconidentify/mediarelay/internal/service"
	"github.com/iconidentify/mediarelay/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mediarelay %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting mediarelay",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Ensure the scratch directory exists
	if err := os.MkdirAll(cfg.Storage.SaveDir, 0o755); err != nil {
		logger.Error("failed to create save directory", "error", err)
		os.Exit(1)
	}

	// The cache is the dedup guarantee; refuse to run without it.
	store, err := cachestore.Open(cfg.Storage.DBPath, logger)
	if err != nil {
		logger.Error("failed to open variant cache", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// External tools
	ytdlp, err := provider.NewYTDLP(cfg.Fetch, cfg.Storage.SaveDir, logger)
	if err != nil {
		logger.Error("fetch tool unavailable", "error", err)
		os.Exit(1)
	}
	ffmpeg, err := provider.NewFFmpeg(logger)
	if err != nil {
		logger.Error("transcode tool unavailable", "error", err)
		os.Exit(1)
	}

	// Upload sinks
	sink, err := delivery.NewLocalStore(filepath.Join(cfg.Storage.SaveDir, "delivered"), logger)
	if err != nil {
		logger.Error("failed to init delivery store", "error", err)
		os.Exit(1)
	}

	// Wire the resolution path
	resolver := identity.NewResolver(ytdlp, logger)
	pipe := pipeline.New(ytdlp, ffmpeg, resolver, ytdlp, cfg.Fetch, cfg.Delivery.AnimSizeCeiling, logger)
	router := delivery.NewRouter(sink, sink, store, cfg.Delivery, logger)

	jobRepo := repository.NewInMemoryJobRepository()
	resolverSvc := service.NewResolverService(
		resolver,
		store,
		pipe,
		router,
		jobRepo,
		cfg.Fetch.MaxParallel,
		cfg.Worker.MaxRetries,
		logger,
	)

	// Initialize handlers
	resolveHandler := handler.NewResolveHandler(resolverSvc, logger)
	healthHandler := handler.NewHealthHandler(jobRepo)

	// Setup router
	mux := api.NewRouter(resolveHandler, healthHandler, cfg.Server.APIKey, logger)

	// Initialize worker pool
	pool := worker.NewPool(
		worker.Config{
			Workers:      cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
		},
		jobRepo,
		resolverSvc,
		logger,
	)

	// Start worker pool
	pool.Start()

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop workers (allow in-flight jobs to complete)
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
