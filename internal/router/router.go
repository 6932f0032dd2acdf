package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/campuscare-go-api/internal/config"
	"github.com/noah-isme/campuscare-go-api/internal/handler"
	"github.com/noah-isme/campuscare-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	PeerChatHandler     *handler.PeerChatHandler
	RoomHandler         *handler.RoomHandler
	NotificationHandler *handler.NotificationHandler
	JWTMiddleware       fiber.Handler
	WSMiddleware        fiber.Handler
	RateLimit           fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided middleware, or no-ops if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	wsMiddleware := deps.WSMiddleware
	if wsMiddleware == nil {
		wsMiddleware = jwtMiddleware
	}

	// Peer support chat (websocket + history)
	if deps.PeerChatHandler != nil {
		peer := api.Group("/peer", wsMiddleware)
		if deps.RateLimit != nil {
			peer.Use(deps.RateLimit)
		}
		deps.PeerChatHandler.Register(peer)
	}

	// Room directory
	if deps.RoomHandler != nil {
		rooms := api.Group("/rooms", jwtMiddleware)
		deps.RoomHandler.Register(rooms)
	}

	// Notifications
	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}
}
