package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trimtrack/vitals-backend/internal/audit"
	"github.com/trimtrack/vitals-backend/internal/azure"
	"github.com/trimtrack/vitals-backend/internal/config"
	"github.com/trimtrack/vitals-backend/internal/handler"
	"github.com/trimtrack/vitals-backend/internal/middleware"
	"github.com/trimtrack/vitals-backend/internal/repository"
	"github.com/trimtrack/vitals-backend/internal/security"
	"github.com/trimtrack/vitals-backend/internal/service"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize Zap logger
	var logger *zap.Logger
	if cfg.Server.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize database connection pool with pgx
	pool, err := pgxpool.New(context.Background(), cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Successfully connected to database")

	// Initialize Redis for draft scratch storage
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to ping redis", zap.Error(err))
	}
	logger.Info("Successfully connected to redis")

	// Draft note fields are encrypted at rest when a key is configured
	var encryptor *security.Encryptor
	if cfg.Wizard.EncryptionKey != "" {
		encryptor, err = security.NewEncryptor([]byte(cfg.Wizard.EncryptionKey))
		if err != nil {
			logger.Fatal("Failed to initialize draft encryptor", zap.Error(err))
		}
	} else {
		logger.Warn("Draft encryption key not configured, notes stored in plaintext")
	}

	// Azure clients are optional: voice and AI features degrade to disabled
	// when their credentials are absent
	var extractor *service.NoteExtractor
	if cfg.Azure.OpenAI.Endpoint != "" {
		openAIClient, err := azure.NewOpenAIClient(
			cfg.Azure.OpenAI.Endpoint,
			cfg.Azure.OpenAI.APIKey,
			cfg.Azure.OpenAI.Deployment,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Azure OpenAI client", zap.Error(err))
		}
		extractor = service.NewNoteExtractor(openAIClient, logger)
	} else {
		logger.Info("Azure OpenAI not configured, note insight extraction disabled")
	}

	var speechClient *azure.SpeechServiceClient
	if cfg.Azure.Speech.SubscriptionKey != "" {
		speechClient, err = azure.NewSpeechServiceClient(
			cfg.Azure.Speech.SubscriptionKey,
			cfg.Azure.Speech.Region,
			cfg.Azure.Speech.Language,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Azure Speech Service client", zap.Error(err))
		}
	} else {
		logger.Info("Azure Speech not configured, voice dictation disabled")
	}

	var blobClient *azure.BlobStorageClient
	if cfg.Azure.Storage.AccountName != "" {
		blobClient, err = azure.NewBlobStorageClient(
			cfg.Azure.Storage.AccountName,
			cfg.Azure.Storage.AccountKey,
			cfg.Azure.Storage.AudioContainer,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Azure Blob Storage client", zap.Error(err))
		}
	} else {
		logger.Info("Azure Storage not configured, dictation audio archival disabled")
	}

	// Initialize repositories
	vitalsRepo := repository.NewVitalsRepository(pool, logger)
	draftRepo := repository.NewDraftRepository(redisClient, encryptor, cfg.Redis.DraftTTL, logger)
	alertRepo := repository.NewAlertRepository(pool, logger)

	// Initialize services
	validator := service.NewValidator(cfg.Thresholds)
	wizard := service.NewWizard(validator)
	escalationService := service.NewEscalationService(alertRepo, logger)
	auditLogger := audit.NewLogger(pool, logger)

	wizardService := service.NewWizardService(
		wizard,
		draftRepo,
		vitalsRepo,
		vitalsRepo,
		escalationService,
		extractor,
		auditLogger,
		logger,
		cfg.Wizard.DraftSaveTimeout,
		nil,
	)

	var dictationService *service.DictationService
	if speechClient != nil {
		var archiver service.AudioArchiver
		if blobClient != nil {
			archiver = blobClient
		}
		dictationService = service.NewDictationService(
			speechClient,
			archiver,
			cfg.Wizard.DictationCountdown,
			logger,
		)
	}

	// Initialize handlers
	var speaker handler.GuidanceSpeaker
	if speechClient != nil {
		speaker = speechClient
	}
	wizardHandler := handler.NewWizardHandler(wizardService, dictationService, speaker, logger)
	healthHandler := handler.NewHealthHandler(pool, redisClient, logger)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	r := gin.New()

	// Add recovery middleware (must be first)
	r.Use(middleware.RecoveryMiddleware(logger))

	// Add CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Configure appropriately for production
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Add request ID middleware
	r.Use(middleware.RequestIDMiddleware())

	// Add request logging middleware
	r.Use(middleware.RequestLoggingMiddleware(logger))

	// Add error logging middleware
	r.Use(middleware.ErrorLoggingMiddleware(logger))

	// Register API routes
	handler.RegisterRoutes(r, wizardHandler, healthHandler)

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	pool.Close()

	logger.Info("Server exited")
}
