package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"fitloop-server/services/chat-api/internal/config"
	domain "fitloop-server/services/chat-api/internal/domain/chat"
	"fitloop-server/services/chat-api/internal/infrastructure/auth"
	"fitloop-server/services/chat-api/internal/infrastructure/broadcast"
	"fitloop-server/services/chat-api/internal/infrastructure/database"
	"fitloop-server/services/chat-api/internal/infrastructure/logger"
	"fitloop-server/services/chat-api/internal/infrastructure/observability"
	repo "fitloop-server/services/chat-api/internal/infrastructure/repository/chat"
	"fitloop-server/services/chat-api/internal/infrastructure/storage"
	"fitloop-server/services/chat-api/internal/interfaces/httpserver"
	"fitloop-server/services/chat-api/internal/interfaces/wsgateway"
)

// @title Chat API
// @version 1.0
// @description Chat session and messaging service
// @BasePath /
type Application struct {
	httpServer *httpserver.HttpServer
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	return a.httpServer.Run(ctx)
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.AutoMigrate(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	publisher, err := broadcast.NewPublisher(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close redis")
		}
	}()

	attachmentStore, err := newAttachmentStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize attachment storage")
	}

	conversationRepository := repo.NewConversationRepository(db)
	messageRepository := repo.NewMessageRepository(db)
	chatService := domain.NewService(cfg, conversationRepository, messageRepository, attachmentStore, publisher, log)

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth validator")
	}

	hub := wsgateway.NewHub(ctx, publisher.Client(), log)

	httpServer := httpserver.New(cfg, log, chatService, authValidator, hub)
	app := NewApplication(httpServer, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

// newAttachmentStore selects the storage backend based on configuration.
func newAttachmentStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (domain.AttachmentStore, error) {
	if cfg.StorageBackend == "local" {
		return storage.NewLocalStorage(cfg, log)
	}
	return storage.NewS3Storage(ctx, cfg, log)
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
