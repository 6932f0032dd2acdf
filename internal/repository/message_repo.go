package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/campuscare-go-api/internal/models"
)

const (
	historyDefaultLimit = 50
	historyMaxLimit     = 100
)

// MessageRepository persists peer-room messages and serves history reads.
type MessageRepository interface {
	Save(ctx context.Context, message *models.Message) error
	ListRecent(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	ListPage(ctx context.Context, roomID string, page, pageSize int) ([]models.Message, int64, error)
	CountByRoom(ctx context.Context, roomID string) (int64, error)
	CountSince(ctx context.Context, roomID string, since time.Time) (int64, error)
	DistinctSenders(ctx context.Context, roomID string) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Save(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// ListRecent returns up to limit most recent messages in ascending
// chronological order. The limit is clamped to the server maximum
// regardless of what the caller requested.
func (r *messageRepository) ListRecent(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = historyDefaultLimit
	}
	if limit > historyMaxLimit {
		limit = historyMaxLimit
	}

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Reverse to oldest-first for display.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) ListPage(ctx context.Context, roomID string, page, pageSize int) ([]models.Message, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = historyDefaultLimit
	}
	if pageSize > historyMaxLimit {
		pageSize = historyMaxLimit
	}

	var total int64
	scoped := r.db.WithContext(ctx).Model(&models.Message{}).Where("room_id = ?", roomID)
	if err := scoped.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, total, nil
}

func (r *messageRepository) CountByRoom(ctx context.Context, roomID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).Where("room_id = ?", roomID).Count(&total).Error
	return total, err
}

func (r *messageRepository) CountSince(ctx context.Context, roomID string, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("room_id = ? AND created_at >= ?", roomID, since).
		Count(&total).Error
	return total, err
}

func (r *messageRepository) DistinctSenders(ctx context.Context, roomID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("room_id = ?", roomID).
		Distinct("sender_id").
		Count(&total).Error
	return total, err
}
