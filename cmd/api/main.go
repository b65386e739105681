package main

import (
	"context"
	"log"
	"time"

	"flock-messaging/config"
	"flock-messaging/internal/domain/chat"
	"flock-messaging/internal/domain/user"
	"flock-messaging/internal/handler"
	"flock-messaging/internal/redis"
	"flock-messaging/internal/repository"
	"flock-messaging/internal/server"
	"flock-messaging/internal/services"
	"flock-messaging/internal/storage"
	"flock-messaging/pkg/database"
	"flock-messaging/pkg/events"
	"flock-messaging/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(loggerMode(cfg.AppMode))
	logger.SetGlobalLogger(l)

	database.Connect(cfg)
	defer database.Close()

	if err := database.AutoMigrate(
		&user.User{},
		&user.Follow{},
		&chat.Conversation{},
		&chat.Participant{},
		&chat.Message{},
		&chat.MessageReaction{},
		&chat.MessageLike{},
		&chat.MessageComment{},
	); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redis.Initialize(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	broker := events.NewRedisBroker(redis.GetClient())
	limiter := redis.NewRateLimiter(redis.GetClient(), redis.DefaultRateLimitConfig())

	blobs, err := storage.NewClient(context.Background(), storage.S3Config{
		Region:     cfg.S3Region,
		Bucket:     cfg.S3Bucket,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		Endpoint:   cfg.S3Endpoint,
		PublicBase: cfg.S3PublicBase,
		PresignTTL: 15 * time.Minute,
	})
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	userRepo := repository.NewUserRepository(database.DB)
	convRepo := repository.NewConversationRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	ledgerRepo := repository.NewLedgerRepository(database.DB)

	access := services.NewAccess(convRepo, userRepo)
	authService := services.NewAuthService(userRepo, cfg)
	convService := services.NewConversationService(convRepo, messageRepo, userRepo, access)
	messageService := services.NewMessageService(messageRepo, ledgerRepo, access, blobs, broker, cfg)
	ledgerService := services.NewLedgerService(ledgerRepo, messageRepo, userRepo, access, broker)

	hub := server.NewHub(broker, access)
	go hub.Run()
	defer hub.Stop()

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		Chat:      handler.NewChatHandler(convService),
		Message:   handler.NewMessageHandler(messageService, convService),
		Ledger:    handler.NewLedgerHandler(ledgerService),
		WebSocket: server.NewWebSocketHandler(hub, authService),
	}, authService, limiter)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func loggerMode(appMode string) string {
	if appMode == server.ReleaseMode {
		return logger.ProductionMode
	}
	return logger.DevelopmentMode
}
