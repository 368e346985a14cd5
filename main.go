package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/audit"
	"github.com/ekaya-inc/botdesk/pkg/auth"
	"github.com/ekaya-inc/botdesk/pkg/config"
	"github.com/ekaya-inc/botdesk/pkg/crypto"
	"github.com/ekaya-inc/botdesk/pkg/database"
	"github.com/ekaya-inc/botdesk/pkg/handlers"
	"github.com/ekaya-inc/botdesk/pkg/logging"
	"github.com/ekaya-inc/botdesk/pkg/middleware"
	"github.com/ekaya-inc/botdesk/pkg/repositories"
	"github.com/ekaya-inc/botdesk/pkg/services"
	"github.com/ekaya-inc/botdesk/pkg/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to read .env file: %v", err)
	}

	cfg, warnings, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.IsLocal(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range warnings {
		logger.Warn(w)
	}

	cfg.Database.URL = config.ResolveDatabaseURLForDocker(cfg.Database.URL)

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL)),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("redis", cfg.Redis.Enabled()),
		zap.Bool("dev_passthrough", cfg.Auth.DevPassthrough))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := migrate(cfg.Database.URL, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.String("error", logging.SanitizeError(err)))
	}

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	var deduper services.Deduper
	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.String("error", logging.SanitizeError(err)))
	}
	if redisClient != nil {
		defer redisClient.Close()
		deduper = services.NewRedisDeduper(redisClient, cfg.Redis.WebhookDedupeTTL)
	}

	sealer, err := crypto.NewCredentialEncryptor(cfg.BotCredentialsKey)
	if err != nil {
		logger.Fatal("Failed to initialize credential encryptor", zap.Error(err))
	}

	tokens, err := auth.NewHMACTokenManager(cfg.Auth.SessionSecret)
	if err != nil {
		logger.Fatal("Failed to initialize token manager", zap.Error(err))
	}

	auditor := audit.NewSecurityAuditor(logger)

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	botRepo := repositories.NewBotRepository()
	fileRepo := repositories.NewKnowledgeFileRepository()
	logRepo := repositories.NewMessageLogRepository()

	// Services
	accountService := services.NewAccountService(userRepo, auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		tokens, cfg.Auth.TokenTTL, auditor, logger)
	botService := services.NewBotService(botRepo, sealer, logger)
	fileService := services.NewKnowledgeFileService(fileRepo, blobs, cfg.Storage.MaxUploadBytes, logger)
	statsService := services.NewStatsService(logRepo)
	webhookService := services.NewWebhookService(botRepo, logRepo, deduper, logger)

	if cfg.Auth.DevPassthrough {
		if err := accountService.EnsureDevUser(ctx); err != nil {
			logger.Fatal("Failed to create development user", zap.Error(err))
		}
		auditor.LogDevPassthroughEnabled(auth.DevPrincipalID)
	}

	authService := auth.NewAuthService(tokens, userRepo, cfg.Auth.DevPassthrough, logger.Named("auth"))
	authMiddleware := auth.NewMiddleware(authService, auditor, logger)
	tenantMiddleware := handlers.TenantMiddleware(database.WithTenantContext(db, logger))
	systemMiddleware := handlers.TenantMiddleware(database.WithSystemContext(db, logger))

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(accountService, logger).RegisterRoutes(mux)
	handlers.NewUsersHandler(accountService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewBotsHandler(botService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewKnowledgeFilesHandler(fileService, cfg.Storage.MaxUploadBytes, logger).
		RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewStatsHandler(statsService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewWebhooksHandler(webhookService, logger).RegisterRoutes(mux, systemMiddleware)

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           middleware.Recover(logger)(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting botdesk", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
		}
	}
}

// migrate applies pending schema migrations over a short-lived database/sql handle.
func migrate(url string, logger *zap.Logger) error {
	sqlDB, err := database.OpenMigrationDB(url)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return database.RunMigrations(sqlDB, logger)
}
