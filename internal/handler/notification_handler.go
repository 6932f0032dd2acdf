package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campuscare-go-api/internal/dto"
	"github.com/noah-isme/campuscare-go-api/internal/middleware"
	"github.com/noah-isme/campuscare-go-api/internal/models"
	"github.com/noah-isme/campuscare-go-api/internal/repository"
	"github.com/noah-isme/campuscare-go-api/internal/service"
	"github.com/noah-isme/campuscare-go-api/internal/utils"
)

// NotificationHandler exposes stored notification endpoints.
type NotificationHandler struct {
	service service.NotificationService
	logger  zerolog.Logger
}

// NewNotificationHandler creates a notification handler instance.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Register binds notification routes under the provided router group.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", middleware.RequireActor(models.ActorAdmin), h.create)
	router.Patch("/:id/read", h.markRead)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	userID := middleware.UserIDFromLocals(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	items, err := h.service.ListForUser(c.UserContext(), userID, limit)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list notifications")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal error")
	}

	return utils.SendSuccess(c, "notifications", items)
}

func (h *NotificationHandler) create(c *fiber.Ctx) error {
	var req dto.NotificationCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	created, err := h.service.Create(c.UserContext(), req)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to create notification")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal error")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "notification created", created)
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	userID := middleware.UserIDFromLocals(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	err := h.service.MarkRead(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "notification not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to mark notification read")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal error")
	}

	return utils.SendSuccess(c, "notification marked as read", nil)
}
