package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/cache"
	"github.com/SAP-F-2025/assessment-session-service/internal/config"
	"github.com/SAP-F-2025/assessment-session-service/internal/handlers"
	"github.com/SAP-F-2025/assessment-session-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/assessment-session-service/internal/services"
	"github.com/SAP-F-2025/assessment-session-service/internal/session"
	"github.com/SAP-F-2025/assessment-session-service/internal/storage"
	"github.com/SAP-F-2025/assessment-session-service/internal/utils"
	"github.com/SAP-F-2025/assessment-session-service/internal/validator"
	"github.com/SAP-F-2025/assessment-session-service/pkg"
	"github.com/SAP-F-2025/assessment-session-service/pkg/monitoring"
	"github.com/gin-gonic/gin"
)

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	if cfg.Storage.Type == "memory" {
		return storage.NewMemoryStore(cfg.Storage.PublicURL), nil
	}
	return storage.NewMinioStore(ctx, &cfg.Storage)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	appLogger := utils.NewSlogLogger(logger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := pkg.Migrate(db); err != nil {
		logger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	repo := postgres.NewRepository(db)

	treeCache := cache.NewNoopCache()
	if redisClient, err := pkg.NewRedisClient(cfg); err != nil {
		logger.Warn("Redis unavailable, assessment trees will not be cached", "error", err)
	} else {
		defer redisClient.Close()
		treeCache = cache.NewRedisCache(redisClient, logger)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := newObjectStore(startupCtx, cfg)
	cancelStartup()
	if err != nil {
		logger.Error("Failed to initialize object storage", "error", err)
		os.Exit(1)
	}

	publisher, err := cfg.Events.CreateEventPublisher(logger)
	if err != nil {
		logger.Error("Failed to create event publisher", "error", err)
		os.Exit(1)
	}

	monitoring.Init()

	allowJump := !cfg.IsProduction()
	sessionService := services.NewSessionService(
		repo,
		treeCache,
		store,
		publisher,
		monitoring.SessionMetrics{},
		logger,
		validator.New(),
		services.SessionServiceConfig{
			Session: session.Config{
				MaxRecording: cfg.Session.MaxRecording,
				MaxTimed:     cfg.Session.MaxTimedQuestion,
				TextDebounce: cfg.Session.TextSaveDebounce,
				AllowJump:    allowJump,
			},
			MaxUploadBytes: cfg.Session.MaxUploadBytes,
			TreeCacheTTL:   cfg.Session.TreeCacheTTL,
			IdleTimeout:    cfg.Session.IdleTimeout,
		},
	)
	monitoring.RegisterActiveSessions(sessionService.ActiveSessions)
	exportService := services.NewExportService(repo, treeCache, cfg.Session.TreeCacheTTL, logger)

	var tokenParser handlers.TokenParser
	if cfg.Auth.Enabled {
		tokenParser = handlers.NewCasdoorParser(&cfg.Auth)
	} else {
		logger.Warn("Authentication disabled, trusting " + handlers.DevUserHeader + " header")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		utils.LoggerMiddleware(appLogger),
		utils.ContextLogger(appLogger),
		monitoring.MetricsMiddleware(),
		gin.Recovery(),
	)

	handlers.NewHandlerManager(sessionService, exportService, repo, handlers.RouterConfig{
		AllowJump:     allowJump,
		MaxChunkBytes: handlers.DefaultMaxChunkBytes,
		Auth:          tokenParser,
	}, appLogger).SetupRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server running", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Live sessions hold debounced text answers; flush them before the
	// publisher goes away.
	if err := sessionService.Shutdown(ctx); err != nil {
		logger.Error("Failed to flush sessions", "error", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Error("Failed to close event publisher", "error", err)
	}

	logger.Info("Server exiting")
}
