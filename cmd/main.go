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
	"github.com/go-co-op/gocron/v2"

	"github.com/marmotkit/Gold/config"
	"github.com/marmotkit/Gold/db"
	"github.com/marmotkit/Gold/gateway"
	"github.com/marmotkit/Gold/grouping"
	"github.com/marmotkit/Gold/handlers"
	"github.com/marmotkit/Gold/logging"
	"github.com/marmotkit/Gold/realtime"
	"github.com/marmotkit/Gold/repositories"
	api "github.com/marmotkit/Gold/routes"
	"github.com/marmotkit/Gold/services"
	"github.com/marmotkit/Gold/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.Setup(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("backend_url", cfg.BackendURL),
		slog.Duration("debounce_window", cfg.DebounceWindow),
	)

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// Черновики раскладок (опционально)
	var drafts repositories.DraftRepository
	if cfg.DraftsEnabled() {
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
		if err := db.Migrate(rootCtx, dbConn); err != nil {
			logger.Error("failed to migrate database", slog.Any("error", err))
			os.Exit(1)
		}
		drafts = repositories.NewPostgresDraftRepository(dbConn)
		logger.Info("draft persistence enabled")
	} else {
		logger.Info("DATABASE_URL not set, drafts disabled")
	}

	// Архив выгрузок в Cloudflare R2 (опционально)
	var uploader storage.FileUploader
	if cfg.R2.Complete() {
		uploader, err = storage.NewCloudflareR2Uploader(rootCtx, cfg.R2)
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 export archive enabled")
	}

	backend, err := gateway.NewClient(cfg.BackendURL, cfg.BackendTimeout, logger.With(slog.String("component", "gateway")))
	if err != nil {
		logger.Error("failed to create backend client", slog.Any("error", err))
		os.Exit(1)
	}

	wsHub := realtime.NewHub(logger)
	go wsHub.Run(rootCtx)
	logger.Info("WebSocket Hub started")

	sessionService := services.NewSessionService(services.SessionServiceConfig{
		Gateway:  backend,
		Drafts:   drafts,
		Uploader: uploader,
		Hub:      wsHub,
		Engine:   grouping.Options{DebounceWindow: cfg.DebounceWindow, Logger: logger},
		Logger:   logger,
	})

	var scheduler gocron.Scheduler
	if drafts != nil {
		scheduler, err = services.StartDraftScheduler(sessionService, cfg.DraftInterval, nil, logger)
		if err != nil {
			logger.Error("failed to start draft scheduler", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("draft scheduler started", slog.Duration("interval", cfg.DraftInterval))
	}

	sessionHandler := handlers.NewSessionHandler(sessionService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, cfg.CORSAllowedOrigins, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, logger, cfg.CORSAllowedOrigins, sessionHandler, webSocketHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second,
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

	exitCode := 0
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			exitCode = 1
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			exitCode = 1
		}

		// последний снимок черновиков до закрытия сессий
		if n, err := sessionService.SnapshotDrafts(shutdownCtx); err != nil {
			logger.Warn("final draft snapshot incomplete", slog.Int("saved", n), slog.Any("error", err))
		}
	}

	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error("failed to stop draft scheduler", slog.Any("error", err))
		}
	}
	sessionService.CloseAll()
	stop()
	logger.Info("application exited")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
