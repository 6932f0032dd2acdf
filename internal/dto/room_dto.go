package dto

import (
	"time"

	"github.com/noah-isme/campuscare-go-api/internal/models"
)

// RoomResponse is the serialized representation of a support room. Topics
// without a persisted room yet are listed with an empty identifier.
type RoomResponse struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Description string    `json:"description"`
	Moderators  []string  `json:"moderators"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoomCreateRequest creates a custom room outside the default topic set.
type RoomCreateRequest struct {
	Topic       string `json:"topic" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"required,min=1,max=2000"`
}

// RoomDescriptionUpdateRequest replaces a room description.
type RoomDescriptionUpdateRequest struct {
	Description string `json:"description" validate:"required,min=1,max=2000"`
}

// RoomModeratorRequest adds a volunteer moderator to a topic room.
type RoomModeratorRequest struct {
	Topic       string `json:"topic" validate:"required,min=1,max=64"`
	VolunteerID string `json:"volunteer_id" validate:"required,min=1,max=64"`
}

// RoomStatsResponse summarizes activity inside a room.
type RoomStatsResponse struct {
	Room          RoomResponse `json:"room"`
	TotalMessages int64        `json:"total_messages"`
	TodayMessages int64        `json:"today_messages"`
	UniqueSenders int64        `json:"unique_senders"`
}

// RoomMessagesResponse wraps a paginated page of room messages.
type RoomMessagesResponse struct {
	Room       RoomResponse         `json:"room"`
	Messages   []PeerMessagePayload `json:"messages"`
	Pagination PaginationMeta       `json:"pagination"`
}

// PaginationMeta describes the page window returned by list endpoints.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int64 `json:"total_pages"`
}

// NewRoomResponse converts a room model into its API form.
func NewRoomResponse(room models.Room) RoomResponse {
	moderators := make([]string, 0, len(room.Moderators))
	moderators = append(moderators, room.Moderators...)
	return RoomResponse{
		ID:          room.ID,
		Topic:       room.Topic,
		Description: room.Description,
		Moderators:  moderators,
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
	}
}

// NewRoomResponseSlice converts rooms into API form.
func NewRoomResponseSlice(rooms []models.Room) []RoomResponse {
	out := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, NewRoomResponse(room))
	}
	return out
}
