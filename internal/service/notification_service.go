package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campuscare-go-api/internal/dto"
	"github.com/noah-isme/campuscare-go-api/internal/models"
	"github.com/noah-isme/campuscare-go-api/internal/repository"
)

// NotificationService manages stored user notifications. It also implements
// RoomNotifier so the chat gateway can alert room moderators about new
// messages without knowing how notifications are stored.
type NotificationService interface {
	RoomNotifier
	Create(ctx context.Context, req dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type notificationService struct {
	repo      repository.NotificationRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewNotificationService creates a notification service instance.
func NewNotificationService(repo repository.NotificationRepository, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "notification_service").Logger(),
	}
}

func (s *notificationService) Create(ctx context.Context, req dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.NotificationResponse{}, err
	}

	model := models.Notification{
		UserID: req.UserID,
		Kind:   req.Kind,
		Title:  req.Title,
		Body:   req.Body,
	}
	if err := s.repo.Save(ctx, &model); err != nil {
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(model), nil
}

func (s *notificationService) ListForUser(ctx context.Context, userID string, limit int) ([]dto.NotificationResponse, error) {
	items, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return dto.NewNotificationResponseSlice(items), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID string) error {
	return s.repo.MarkRead(ctx, id, userID)
}

// NotifyModerators stores one notification per room moderator, skipping the
// sender. Failures are logged and dropped; chat delivery never depends on
// notification persistence.
func (s *notificationService) NotifyModerators(ctx context.Context, room models.Room, message dto.PeerMessagePayload) {
	for _, moderatorID := range room.Moderators {
		if moderatorID == message.SenderID {
			continue
		}

		model := models.Notification{
			UserID: moderatorID,
			Kind:   "room_message",
			Title:  fmt.Sprintf("New message in %s room", room.Topic),
			Body:   message.Text,
		}
		if err := s.repo.Save(ctx, &model); err != nil {
			s.logger.Warn().Err(err).Str("room_id", room.ID).Str("moderator_id", moderatorID).Msg("failed to store moderator notification")
		}
	}
}
