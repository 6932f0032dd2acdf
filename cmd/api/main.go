package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campuscare-go-api/internal/config"
	"github.com/noah-isme/campuscare-go-api/internal/database"
	"github.com/noah-isme/campuscare-go-api/internal/handler"
	"github.com/noah-isme/campuscare-go-api/internal/middleware"
	"github.com/noah-isme/campuscare-go-api/internal/models"
	"github.com/noah-isme/campuscare-go-api/internal/observability"
	"github.com/noah-isme/campuscare-go-api/internal/repository"
	"github.com/noah-isme/campuscare-go-api/internal/router"
	"github.com/noah-isme/campuscare-go-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Room{}, &models.Message{}, &models.Notification{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set, last message cache and relay disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats url not set, cross-node message relay disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, validate, logger)
	roomService := service.NewRoomService(roomRepo, messageRepo, validate, logger)
	chatService := service.NewPeerChatService(roomRepo, messageRepo, redisClient, cfg.ChannelBase, natsConn, notificationService, validate, cfg.LastMessageTTL, logger)

	chatCtx, cancelChat := context.WithCancel(context.Background())
	defer cancelChat()
	chatService.Start(chatCtx)

	peerChatHandler := handler.NewPeerChatHandler(chatService, validate, logger)
	roomHandler := handler.NewRoomHandler(roomService, validate, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.ClientOrigin,
	})
	router.Register(app, cfg, router.Dependencies{
		PeerChatHandler:     peerChatHandler,
		RoomHandler:         roomHandler,
		NotificationHandler: notificationHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		WSMiddleware:        middleware.WSProtected(cfg.JWTSecret),
		RateLimit:           middleware.RateLimit("peer", cfg.ChatRateMax, cfg.ChatRateWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
