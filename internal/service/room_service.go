package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campuscare-go-api/internal/dto"
	"github.com/noah-isme/campuscare-go-api/internal/models"
	"github.com/noah-isme/campuscare-go-api/internal/repository"
)

var (
	// ErrInvalidTopic indicates the topic is not in the supported set.
	ErrInvalidTopic = errors.New("invalid topic")
	// ErrRoomExists indicates a room already exists for the topic.
	ErrRoomExists = errors.New("a room with this topic already exists")
	// ErrAlreadyModerator indicates the volunteer already moderates the room.
	ErrAlreadyModerator = errors.New("volunteer is already a moderator for this room")
	// ErrNotModerator indicates the volunteer does not moderate the room.
	ErrNotModerator = errors.New("volunteer is not a moderator for this room")
)

// RoomService exposes the room directory operations behind the REST API.
type RoomService interface {
	List(ctx context.Context) ([]dto.RoomResponse, error)
	GetByTopic(ctx context.Context, topic string) (dto.RoomResponse, error)
	Messages(ctx context.Context, topic string, page, pageSize int) (dto.RoomMessagesResponse, error)
	Stats(ctx context.Context, topic string) (dto.RoomStatsResponse, error)
	AddModerator(ctx context.Context, req dto.RoomModeratorRequest) (dto.RoomResponse, error)
	RemoveModerator(ctx context.Context, topic, volunteerID string) (dto.RoomResponse, error)
	UpdateDescription(ctx context.Context, topic, description string) (dto.RoomResponse, error)
	CreateCustom(ctx context.Context, req dto.RoomCreateRequest) (dto.RoomResponse, error)
}

type roomService struct {
	rooms     repository.RoomRepository
	messages  repository.MessageRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRoomService creates a room directory service instance.
func NewRoomService(rooms repository.RoomRepository, messages repository.MessageRepository, validate *validator.Validate, logger zerolog.Logger) RoomService {
	return &roomService{
		rooms:     rooms,
		messages:  messages,
		validator: validate,
		logger:    logger.With().Str("component", "room_service").Logger(),
	}
}

// List returns all persisted rooms plus placeholder entries for default
// topics that have not been joined yet.
func (s *roomService) List(ctx context.Context) ([]dto.RoomResponse, error) {
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]struct{}, len(rooms))
	for _, room := range rooms {
		existing[room.Topic] = struct{}{}
	}

	out := dto.NewRoomResponseSlice(rooms)
	now := time.Now().UTC()
	for _, topic := range models.SupportTopics {
		if _, ok := existing[topic]; ok {
			continue
		}
		out = append(out, dto.RoomResponse{
			Topic:       topic,
			Description: defaultRoomDescription(topic),
			Moderators:  []string{},
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	return out, nil
}

func (s *roomService) GetByTopic(ctx context.Context, topic string) (dto.RoomResponse, error) {
	topic, err := normalizeTopic(topic)
	if err != nil {
		return dto.RoomResponse{}, err
	}

	room, err := s.rooms.ResolveByTopic(ctx, topic, defaultRoomDescription(topic))
	if err != nil {
		return dto.RoomResponse{}, err
	}

	return dto.NewRoomResponse(room), nil
}

func (s *roomService) Messages(ctx context.Context, topic string, page, pageSize int) (dto.RoomMessagesResponse, error) {
	topic, err := normalizeTopic(topic)
	if err != nil {
		return dto.RoomMessagesResponse{}, err
	}

	room, err := s.rooms.GetByTopic(ctx, topic)
	if err != nil {
		return dto.RoomMessagesResponse{}, err
	}

	messages, total, err := s.messages.ListPage(ctx, room.ID, page, pageSize)
	if err != nil {
		return dto.RoomMessagesResponse{}, err
	}

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 100 {
		pageSize = 100
	}
	totalPages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		totalPages++
	}

	return dto.RoomMessagesResponse{
		Room:     dto.NewRoomResponse(room),
		Messages: dto.NewPeerMessagePayloadSlice(messages),
		Pagination: dto.PaginationMeta{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	}, nil
}

func (s *roomService) Stats(ctx context.Context, topic string) (dto.RoomStatsResponse, error) {
	topic, err := normalizeTopic(topic)
	if err != nil {
		return dto.RoomStatsResponse{}, err
	}

	room, err := s.rooms.GetByTopic(ctx, topic)
	if err != nil {
		return dto.RoomStatsResponse{}, err
	}

	total, err := s.messages.CountByRoom(ctx, room.ID)
	if err != nil {
		return dto.RoomStatsResponse{}, err
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	today, err := s.messages.CountSince(ctx, room.ID, midnight)
	if err != nil {
		return dto.RoomStatsResponse{}, err
	}

	senders, err := s.messages.DistinctSenders(ctx, room.ID)
	if err != nil {
		return dto.RoomStatsResponse{}, err
	}

	return dto.RoomStatsResponse{
		Room:          dto.NewRoomResponse(room),
		TotalMessages: total,
		TodayMessages: today,
		UniqueSenders: senders,
	}, nil
}

func (s *roomService) AddModerator(ctx context.Context, req dto.RoomModeratorRequest) (dto.RoomResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RoomResponse{}, err
	}

	topic, err := normalizeTopic(req.Topic)
	if err != nil {
		return dto.RoomResponse{}, err
	}

	room, err := s.rooms.ResolveByTopic(ctx, topic, defaultRoomDescription(topic))
	if err != nil {
		return dto.RoomResponse{}, err
	}

	if room.HasModerator(req.VolunteerID) {
		return dto.RoomResponse{}, ErrAlreadyModerator
	}

	room.Moderators = append(room.Moderators, req.VolunteerID)
	if err := s.rooms.Update(ctx, &room); err != nil {
		return dto.RoomResponse{}, err
	}

	s.logger.Info().Str("topic", topic).Str("volunteer_id", req.VolunteerID).Msg("moderator added")
	return dto.NewRoomResponse(room), nil
}

func (s *roomService) RemoveModerator(ctx context.Context, topic, volunteerID string) (dto.RoomResponse, error) {
	topic, err := normalizeTopic(topic)
	if err != nil {
		return dto.RoomResponse{}, err
	}

	room, err := s.rooms.GetByTopic(ctx, topic)
	if err != nil {
		return dto.RoomResponse{}, err
	}

	if !room.HasModerator(volunteerID) {
		return dto.RoomResponse{}, ErrNotModerator
	}

	kept := room.Moderators[:0]
	for _, id := range room.Moderators {
		if id != volunteerID {
			kept = append(kept, id)
		}
	}
	room.Moderators = kept

	if err := s.rooms.Update(ctx, &room); err != nil {
		return dto.RoomResponse{}, err
	}

	s.logger.Info().Str("topic", topic).Str("volunteer_id", volunteerID).Msg("moderator removed")
	return dto.NewRoomResponse(room), nil
}

func (s *roomService) UpdateDescription(ctx context.Context, topic, description string) (dto.RoomResponse, error) {
	topic, err := normalizeTopic(topic)
	if err != nil {
		return dto.RoomResponse{}, err
	}

	description = strings.TrimSpace(description)
	if description == "" {
		return dto.RoomResponse{}, fmt.Errorf("description is required")
	}

	room, err := s.rooms.ResolveByTopic(ctx, topic, description)
	if err != nil {
		return dto.RoomResponse{}, err
	}

	if room.Description != description {
		room.Description = description
		if err := s.rooms.Update(ctx, &room); err != nil {
			return dto.RoomResponse{}, err
		}
	}

	return dto.NewRoomResponse(room), nil
}

// CreateCustom creates a room outside the default topic set. Default topics
// are rejected because their rooms are created lazily on first join.
func (s *roomService) CreateCustom(ctx context.Context, req dto.RoomCreateRequest) (dto.RoomResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RoomResponse{}, err
	}

	topic := strings.ToLower(strings.TrimSpace(req.Topic))
	if models.IsSupportTopic(topic) {
		return dto.RoomResponse{}, ErrRoomExists
	}

	if _, err := s.rooms.GetByTopic(ctx, topic); err == nil {
		return dto.RoomResponse{}, ErrRoomExists
	} else if !errors.Is(err, repository.ErrRoomNotFound) {
		return dto.RoomResponse{}, err
	}

	room := models.Room{Topic: topic, Description: req.Description}
	if err := s.rooms.Create(ctx, &room); err != nil {
		return dto.RoomResponse{}, err
	}

	s.logger.Info().Str("topic", topic).Msg("custom room created")
	return dto.NewRoomResponse(room), nil
}

func normalizeTopic(topic string) (string, error) {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if !models.IsSupportTopic(topic) {
		return "", ErrInvalidTopic
	}
	return topic, nil
}

func defaultRoomDescription(topic string) string {
	return "Support room for " + topic
}
