package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campuscare-go-api/internal/dto"
	"github.com/noah-isme/campuscare-go-api/internal/middleware"
	"github.com/noah-isme/campuscare-go-api/internal/models"
	"github.com/noah-isme/campuscare-go-api/internal/service"
	"github.com/noah-isme/campuscare-go-api/internal/utils"
)

// PeerChatHandler wires the peer-support websocket upgrade and history REST.
type PeerChatHandler struct {
	service   service.PeerChatService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewPeerChatHandler creates a peer chat handler instance.
func NewPeerChatHandler(service service.PeerChatService, validator *validator.Validate, logger zerolog.Logger) *PeerChatHandler {
	return &PeerChatHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "peer_chat_handler").Logger(),
	}
}

// Register binds peer chat routes under the provided router group.
func (h *PeerChatHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
	router.Get("/history", h.history)
}

func (h *PeerChatHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "user id missing"))
		_ = conn.Close()
		return
	}

	role, _ := conn.Locals("user_role").(string)
	actor, ok := models.ParseActorKind(role)
	if !ok {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "unknown role"))
		_ = conn.Close()
		return
	}

	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.PeerConnectionOptions{
		UserID:        userID,
		Actor:         actor,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Str("user_id", userID).Str("role", role).Msg("peer websocket connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", userID).Msg("peer websocket disconnected")
}

func (h *PeerChatHandler) history(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.PeerHistoryQuery{
		RoomID: c.Query("room_id"),
		Limit:  limit,
	}

	if err := h.validator.Struct(query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))

	messages, err := h.service.History(ctx, query)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Msg("failed to load peer history")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load message history")
	}

	return utils.SendSuccess(c, "peer history", messages)
}
