package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/campuscare-go-api/internal/dto"
	"github.com/noah-isme/campuscare-go-api/internal/models"
	"github.com/noah-isme/campuscare-go-api/internal/repository"
)

var roomDBSeq atomic.Int64

func newRoomFixture(t *testing.T) (RoomService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:roomfixture%d?mode=memory&cache=shared", roomDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Room{}, &models.Message{}))

	rooms := repository.NewRoomRepository(db)
	messages := repository.NewMessageRepository(db)
	validate := validator.New(validator.WithRequiredStructEnabled())

	return NewRoomService(rooms, messages, validate, zerolog.Nop()), db
}

func TestRoomServiceListIncludesPlaceholders(t *testing.T) {
	svc, db := newRoomFixture(t)

	require.NoError(t, db.Create(&models.Room{Topic: "anxiety", Description: "custom text"}).Error)

	rooms, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, len(models.SupportTopics))

	byTopic := make(map[string]dto.RoomResponse, len(rooms))
	for _, room := range rooms {
		byTopic[room.Topic] = room
	}

	require.NotEmpty(t, byTopic["anxiety"].ID, "persisted room keeps its identifier")
	require.Equal(t, "custom text", byTopic["anxiety"].Description)
	require.Empty(t, byTopic["sleep"].ID, "unjoined topics appear as placeholders")
	require.Equal(t, "Support room for sleep", byTopic["sleep"].Description)
}

func TestRoomServiceGetByTopicCreatesLazily(t *testing.T) {
	svc, db := newRoomFixture(t)

	room, err := svc.GetByTopic(context.Background(), "Exam")
	require.NoError(t, err)
	require.Equal(t, "exam", room.Topic)
	require.NotEmpty(t, room.ID)

	var count int64
	require.NoError(t, db.Model(&models.Room{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	_, err = svc.GetByTopic(context.Background(), "gardening")
	require.ErrorIs(t, err, ErrInvalidTopic)
}

func TestRoomServiceStats(t *testing.T) {
	svc, db := newRoomFixture(t)

	room, err := svc.GetByTopic(context.Background(), "general")
	require.NoError(t, err)

	now := time.Now().UTC()
	seed := []models.Message{
		{RoomID: room.ID, SenderID: "user-1", SenderKind: models.SenderStudent, Text: "old", CreatedAt: now.Add(-48 * time.Hour)},
		{RoomID: room.ID, SenderID: "user-1", SenderKind: models.SenderStudent, Text: "fresh", CreatedAt: now},
		{RoomID: room.ID, SenderID: "user-2", SenderKind: models.SenderVolunteer, Text: "reply", CreatedAt: now},
	}
	for i := range seed {
		require.NoError(t, db.Create(&seed[i]).Error)
	}

	stats, err := svc.Stats(context.Background(), "general")
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.TotalMessages)
	require.Equal(t, int64(2), stats.TodayMessages)
	require.Equal(t, int64(2), stats.UniqueSenders)
}

func TestRoomServiceModeratorLifecycle(t *testing.T) {
	svc, _ := newRoomFixture(t)

	room, err := svc.AddModerator(context.Background(), dto.RoomModeratorRequest{Topic: "anxiety", VolunteerID: "vol-1"})
	require.NoError(t, err)
	require.Contains(t, room.Moderators, "vol-1")

	_, err = svc.AddModerator(context.Background(), dto.RoomModeratorRequest{Topic: "anxiety", VolunteerID: "vol-1"})
	require.ErrorIs(t, err, ErrAlreadyModerator)

	room, err = svc.RemoveModerator(context.Background(), "anxiety", "vol-1")
	require.NoError(t, err)
	require.NotContains(t, room.Moderators, "vol-1")

	_, err = svc.RemoveModerator(context.Background(), "anxiety", "vol-1")
	require.ErrorIs(t, err, ErrNotModerator)
}

func TestRoomServiceCreateCustomRejectsDefaultTopics(t *testing.T) {
	svc, _ := newRoomFixture(t)

	_, err := svc.CreateCustom(context.Background(), dto.RoomCreateRequest{Topic: "general", Description: "dup"})
	require.ErrorIs(t, err, ErrRoomExists)

	room, err := svc.CreateCustom(context.Background(), dto.RoomCreateRequest{Topic: "mindfulness", Description: "guided sessions"})
	require.NoError(t, err)
	require.Equal(t, "mindfulness", room.Topic)

	_, err = svc.CreateCustom(context.Background(), dto.RoomCreateRequest{Topic: "mindfulness", Description: "again"})
	require.ErrorIs(t, err, ErrRoomExists)
}

func TestRoomServiceUpdateDescription(t *testing.T) {
	svc, _ := newRoomFixture(t)

	room, err := svc.UpdateDescription(context.Background(), "sleep", "Rest and recovery support")
	require.NoError(t, err)
	require.Equal(t, "Rest and recovery support", room.Description)

	fetched, err := svc.GetByTopic(context.Background(), "sleep")
	require.NoError(t, err)
	require.Equal(t, "Rest and recovery support", fetched.Description)

	_, err = svc.UpdateDescription(context.Background(), "sleep", "   ")
	require.Error(t, err)
}
