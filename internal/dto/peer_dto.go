package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/campuscare-go-api/internal/models"
)

// Peer chat wire protocol event names.
const (
	PeerEventJoin       = "join"
	PeerEventJoined     = "joined"
	PeerEventMessage    = "message"
	PeerEventTyping     = "typing"
	PeerEventHistory    = "history"
	PeerEventUserJoined = "userJoined"
	PeerEventUserLeft   = "userLeft"
	PeerEventError      = "error"
)

// PeerInboundEvent is the envelope read from clients on the peer socket.
type PeerInboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// PeerOutboundEvent is the envelope written to clients on the peer socket.
type PeerOutboundEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// PeerJoinRequest asks to bind the connection to a topic room.
type PeerJoinRequest struct {
	Topic string `json:"topic" validate:"required,min=1,max=64"`
}

// PeerMessageRequest posts a message into the bound room.
type PeerMessageRequest struct {
	RoomID string `json:"roomId" validate:"required,min=1,max=36"`
	Text   string `json:"text" validate:"required,min=1"`
}

// PeerTypingRequest signals an ephemeral typing state change.
type PeerTypingRequest struct {
	RoomID string `json:"roomId"`
	Typing bool   `json:"typing"`
}

// PeerHistoryRequest asks for the most recent messages of the bound room.
type PeerHistoryRequest struct {
	RoomID string `json:"roomId" validate:"required,min=1,max=36"`
	Limit  int    `json:"limit" validate:"omitempty,min=1"`
}

// PeerJoinedPayload acknowledges a successful join to the caller.
type PeerJoinedPayload struct {
	RoomID string `json:"roomId"`
	Topic  string `json:"topic"`
}

// PeerMessagePayload is the broadcast representation of a stored message.
type PeerMessagePayload struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	Text        string    `json:"text"`
	SenderID    string    `json:"senderId"`
	SenderModel string    `json:"senderModel"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PeerTypingPayload relays a typing state to other room members.
type PeerTypingPayload struct {
	UserID string `json:"userId"`
	Typing bool   `json:"typing"`
}

// PeerPresencePayload announces membership changes to other room members.
type PeerPresencePayload struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
}

// PeerHistoryQuery filters the REST history endpoint.
type PeerHistoryQuery struct {
	RoomID string `query:"room_id" validate:"required,min=1,max=36"`
	Limit  int    `query:"limit" validate:"omitempty,min=1"`
}

// NewPeerMessagePayload converts a stored message into its wire form.
func NewPeerMessagePayload(message models.Message) PeerMessagePayload {
	return PeerMessagePayload{
		ID:          message.ID,
		RoomID:      message.RoomID,
		Text:        message.Text,
		SenderID:    message.SenderID,
		SenderModel: string(message.SenderKind),
		CreatedAt:   message.CreatedAt,
	}
}

// NewPeerMessagePayloadSlice converts stored messages into wire form, preserving order.
func NewPeerMessagePayloadSlice(messages []models.Message) []PeerMessagePayload {
	out := make([]PeerMessagePayload, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewPeerMessagePayload(message))
	}
	return out
}
