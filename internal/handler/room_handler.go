package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campuscare-go-api/internal/dto"
	"github.com/noah-isme/campuscare-go-api/internal/middleware"
	"github.com/noah-isme/campuscare-go-api/internal/models"
	"github.com/noah-isme/campuscare-go-api/internal/repository"
	"github.com/noah-isme/campuscare-go-api/internal/service"
	"github.com/noah-isme/campuscare-go-api/internal/utils"
)

// RoomHandler exposes the room directory REST endpoints.
type RoomHandler struct {
	service   service.RoomService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRoomHandler creates a room handler instance.
func NewRoomHandler(service service.RoomService, validator *validator.Validate, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "room_handler").Logger(),
	}
}

// Register binds room routes under the provided router group. Moderator and
// room management endpoints are restricted to administrators.
func (h *RoomHandler) Register(router fiber.Router) {
	adminOnly := middleware.RequireActor(models.ActorAdmin)

	router.Get("/", h.list)
	router.Post("/", adminOnly, h.create)
	router.Post("/moderators", adminOnly, h.addModerator)
	router.Get("/:topic", h.getByTopic)
	router.Get("/:topic/messages", h.messages)
	router.Get("/:topic/stats", h.stats)
	router.Put("/:topic/description", adminOnly, h.updateDescription)
	router.Delete("/:topic/moderators/:volunteerId", adminOnly, h.removeModerator)
}

func (h *RoomHandler) list(c *fiber.Ctx) error {
	rooms, err := h.service.List(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendSuccess(c, "rooms", rooms)
}

func (h *RoomHandler) getByTopic(c *fiber.Ctx) error {
	room, err := h.service.GetByTopic(c.UserContext(), c.Params("topic"))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendSuccess(c, "room", room)
}

func (h *RoomHandler) messages(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	response, err := h.service.Messages(c.UserContext(), c.Params("topic"), page, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendSuccess(c, "room messages", response)
}

func (h *RoomHandler) stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext(), c.Params("topic"))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendSuccess(c, "room stats", stats)
}

func (h *RoomHandler) create(c *fiber.Ctx) error {
	var req dto.RoomCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	room, err := h.service.CreateCustom(c.UserContext(), req)
	if err != nil {
		return h.fail(c, err)
	}

	requestLogger(h.logger, c).Info().Str("topic", room.Topic).Msg("room created")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "room created", room)
}

func (h *RoomHandler) updateDescription(c *fiber.Ctx) error {
	var req dto.RoomDescriptionUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	room, err := h.service.UpdateDescription(c.UserContext(), c.Params("topic"), req.Description)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendSuccess(c, "room description updated", room)
}

func (h *RoomHandler) addModerator(c *fiber.Ctx) error {
	var req dto.RoomModeratorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	room, err := h.service.AddModerator(c.UserContext(), req)
	if err != nil {
		return h.fail(c, err)
	}

	requestLogger(h.logger, c).Info().Str("topic", req.Topic).Str("volunteer_id", req.VolunteerID).Msg("moderator added")
	return utils.SendSuccess(c, "moderator added", room)
}

func (h *RoomHandler) removeModerator(c *fiber.Ctx) error {
	room, err := h.service.RemoveModerator(c.UserContext(), c.Params("topic"), c.Params("volunteerId"))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendSuccess(c, "moderator removed", room)
}

func (h *RoomHandler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidTopic):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrRoomNotFound), errors.Is(err, service.ErrNotModerator):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrRoomExists), errors.Is(err, service.ErrAlreadyModerator):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("room request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal error")
	}
}
