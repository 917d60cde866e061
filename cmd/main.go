package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/courtmix/session-engine/config"
	"github.com/courtmix/session-engine/db"
	"github.com/courtmix/session-engine/handlers"
	"github.com/courtmix/session-engine/live"
	"github.com/courtmix/session-engine/netstatus"
	"github.com/courtmix/session-engine/offline"
	"github.com/courtmix/session-engine/pairing"
	"github.com/courtmix/session-engine/repositories"
	api "github.com/courtmix/session-engine/routes"
	"github.com/courtmix/session-engine/services"
	"github.com/courtmix/session-engine/storage"
)

const probeInterval = 15 * time.Second // how often connectivity is probed

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Results archiver (Cloudflare R2) is optional.
	var archiver storage.ResultsArchiver
	if cfg.R2AccountID != "" {
		archiver, err = storage.NewCloudflareR2Archiver(storage.CloudflareR2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize results archiver", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("results archiver initialized", slog.String("bucket", cfg.R2BucketName))
	}

	queue, err := offline.Open(cfg.QueuePath)
	if err != nil {
		logger.Error("failed to open offline queue", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("offline queue opened",
		slog.String("path", cfg.QueuePath),
		slog.Int("pending", queue.Len()))

	hub := live.NewHub(logger)
	go hub.Run()
	logger.Info("live hub started")

	monitor := netstatus.NewMonitor(cfg.StartOnline)

	sessionRepo := repositories.NewPostgresSessionRepository(dbConn)
	roundRepo := repositories.NewPostgresRoundRepository(dbConn)
	eventRepo := repositories.NewPostgresEventRepository(dbConn)
	logger.Info("repositories initialized")

	runtimes := services.NewRuntimes(sessionRepo, roundRepo)
	pairingEngine := pairing.NewMexicano()

	scoreService := services.NewScoreService(
		runtimes,
		roundRepo,
		sessionRepo,
		eventRepo,
		queue,
		monitor,
		pairingEngine,
		hub,
		logger,
	)
	sessionService := services.NewSessionService(
		runtimes,
		sessionRepo,
		roundRepo,
		eventRepo,
		scoreService,
		queue,
		monitor,
		pairingEngine,
		hub,
		archiver,
		logger,
	)
	syncService := services.NewSyncService(queue, sessionRepo, roundRepo, eventRepo, monitor, hub, logger)
	logger.Info("services initialized")

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// Replay the queue on every offline-to-online transition.
	go syncService.Run(rootCtx)

	// Connectivity probe: a periodic database ping drives the online
	// signal. Operators can override it via the network endpoint.
	go func() {
		ticker := time.NewTicker(probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				online := db.Ping(rootCtx, dbConn, 3*time.Second) == nil
				monitor.SetOnline(online)
			}
		}
	}()
	logger.Info("connectivity probe started", slog.Duration("interval", probeInterval))

	sessionHandler := handlers.NewSessionHandler(sessionService)
	scoreHandler := handlers.NewScoreHandler(scoreService)
	networkHandler := handlers.NewNetworkHandler(monitor)
	webSocketHandler := handlers.NewWebSocketHandler(hub, logger)
	logger.Info("HTTP handlers initialized")

	router := chi.NewRouter()
	api.SetupRoutes(router, sessionHandler, scoreHandler, networkHandler, webSocketHandler)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
