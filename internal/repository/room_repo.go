package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/campuscare-go-api/internal/models"
)

// ErrRoomNotFound indicates the referenced room does not exist.
var ErrRoomNotFound = errors.New("room not found")

// RoomRepository persists peer-support rooms keyed by topic.
type RoomRepository interface {
	ResolveByTopic(ctx context.Context, topic, description string) (models.Room, error)
	GetByTopic(ctx context.Context, topic string) (models.Room, error)
	GetByID(ctx context.Context, id string) (models.Room, error)
	List(ctx context.Context) ([]models.Room, error)
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository constructs a room repository backed by GORM.
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

// ResolveByTopic returns the room for a topic, creating it on first use.
// The check-then-create is not atomic; a concurrent first join may lose the
// insert race against the unique topic index, in which case the insert error
// degrades to a second lookup.
func (r *roomRepository) ResolveByTopic(ctx context.Context, topic, description string) (models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).Where("topic = ?", topic).First(&room).Error
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Room{}, err
	}

	room = models.Room{Topic: topic, Description: description}
	if createErr := r.db.WithContext(ctx).Create(&room).Error; createErr != nil {
		var existing models.Room
		if lookupErr := r.db.WithContext(ctx).Where("topic = ?", topic).First(&existing).Error; lookupErr == nil {
			return existing, nil
		}
		return models.Room{}, createErr
	}

	return room, nil
}

func (r *roomRepository) GetByTopic(ctx context.Context, topic string) (models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).Where("topic = ?", topic).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Room{}, ErrRoomNotFound
		}
		return models.Room{}, err
	}
	return room, nil
}

func (r *roomRepository) GetByID(ctx context.Context, id string) (models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Room{}, ErrRoomNotFound
		}
		return models.Room{}, err
	}
	return room, nil
}

func (r *roomRepository) List(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := r.db.WithContext(ctx).Order("topic ASC").Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomRepository) Update(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Save(room).Error
}
