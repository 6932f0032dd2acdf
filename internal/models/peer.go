package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SupportTopics is the fixed set of peer-support room topics.
var SupportTopics = []string{"general", "anxiety", "depression", "sleep", "exam", "relationships"}

// IsSupportTopic reports whether the value belongs to the default topic set.
func IsSupportTopic(topic string) bool {
	for _, t := range SupportTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// Room is a persistent peer-support channel scoped to a single topic.
// The unique index on topic is the authority for the one-room-per-topic
// invariant; concurrent creators fail on it and retry as a lookup.
type Room struct {
	ID          string                      `gorm:"size:36;primaryKey" json:"id"`
	Topic       string                      `gorm:"size:64;not null;uniqueIndex" json:"topic"`
	Description string                      `gorm:"type:text" json:"description"`
	Moderators  datatypes.JSONSlice[string] `json:"moderators"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// BeforeCreate assigns a generated identifier when none is set.
func (r *Room) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// HasModerator reports whether the volunteer already moderates the room.
func (r *Room) HasModerator(volunteerID string) bool {
	for _, id := range r.Moderators {
		if id == volunteerID {
			return true
		}
	}
	return false
}

// Message is a persisted peer-room chat message. Messages are immutable
// once stored; text arrives sanitized and length-clamped from the gateway.
type Message struct {
	ID         string     `gorm:"size:36;primaryKey" json:"id"`
	RoomID     string     `gorm:"size:36;index;not null" json:"room_id"`
	SenderID   string     `gorm:"size:64;index;not null" json:"sender_id"`
	SenderKind SenderKind `gorm:"size:16;not null" json:"sender_kind"`
	Text       string     `gorm:"size:2000;not null" json:"text"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

// BeforeCreate assigns a generated identifier when none is set.
func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Notification is a stored alert targeted at a single user.
type Notification struct {
	ID        string    `gorm:"size:36;primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;index;not null" json:"user_id"`
	Kind      string    `gorm:"size:64" json:"kind"`
	Title     string    `gorm:"size:255" json:"title"`
	Body      string    `gorm:"type:text" json:"body"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a generated identifier when none is set.
func (n *Notification) BeforeCreate(_ *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
