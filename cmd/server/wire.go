//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fitloop-server/services/chat-api/internal/config"
	domain "fitloop-server/services/chat-api/internal/domain/chat"
	"fitloop-server/services/chat-api/internal/infrastructure/auth"
	"fitloop-server/services/chat-api/internal/infrastructure/broadcast"
	"fitloop-server/services/chat-api/internal/infrastructure/database"
	"fitloop-server/services/chat-api/internal/infrastructure/logger"
	repo "fitloop-server/services/chat-api/internal/infrastructure/repository/chat"
	"fitloop-server/services/chat-api/internal/infrastructure/storage"
	"fitloop-server/services/chat-api/internal/interfaces/httpserver"
	"fitloop-server/services/chat-api/internal/interfaces/wsgateway"
)

var chatSet = wire.NewSet(
	repo.NewConversationRepository,
	wire.Bind(new(domain.ConversationRepository), new(*repo.ConversationRepository)),
	repo.NewMessageRepository,
	wire.Bind(new(domain.MessageRepository), new(*repo.MessageRepository)),
	provideStorage,
	broadcast.NewPublisher,
	wire.Bind(new(domain.Broadcaster), new(*broadcast.Publisher)),
	domain.NewService,
	wire.Bind(new(domain.Service), new(*domain.ServiceImpl)),
)

// BuildApplication assembles the chat API with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		auth.NewValidator,
		newDatabaseConfig,
		newGormDB,
		chatSet,
		provideHub,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

// provideStorage selects the attachment storage backend based on configuration.
func provideStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (domain.AttachmentStore, error) {
	if cfg.StorageBackend == "local" {
		return storage.NewLocalStorage(cfg, log)
	}
	return storage.NewS3Storage(ctx, cfg, log)
}

func provideHub(ctx context.Context, publisher *broadcast.Publisher, log zerolog.Logger) *wsgateway.Hub {
	return wsgateway.NewHub(ctx, publisher.Client(), log)
}
