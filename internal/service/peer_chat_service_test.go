package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/campuscare-go-api/internal/dto"
	"github.com/noah-isme/campuscare-go-api/internal/models"
	"github.com/noah-isme/campuscare-go-api/internal/repository"
)

// fakeSocket is an in-memory SocketConn for driving the gateway in tests.
type fakeSocket struct {
	inbound   chan dto.PeerInboundEvent
	outbound  chan dto.PeerOutboundEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		inbound:  make(chan dto.PeerInboundEvent, 16),
		outbound: make(chan dto.PeerOutboundEvent, 64),
		done:     make(chan struct{}),
	}
}

func (f *fakeSocket) ReadJSON(v interface{}) error {
	select {
	case event, ok := <-f.inbound:
		if !ok {
			return errors.New("connection closed")
		}
		target, ok := v.(*dto.PeerInboundEvent)
		if !ok {
			return errors.New("unexpected read target")
		}
		*target = event
		return nil
	case <-f.done:
		return errors.New("connection closed")
	}
}

func (f *fakeSocket) WriteJSON(v interface{}) error {
	event, ok := v.(dto.PeerOutboundEvent)
	if !ok {
		return errors.New("unexpected write payload")
	}
	select {
	case f.outbound <- event:
		return nil
	case <-f.done:
		return errors.New("connection closed")
	}
}

func (f *fakeSocket) WriteMessage(int, []byte) error { return nil }

func (f *fakeSocket) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeSocket) sendEvent(t *testing.T, name string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	f.inbound <- dto.PeerInboundEvent{Event: name, Data: data}
}

func (f *fakeSocket) nextEvent(t *testing.T) dto.PeerOutboundEvent {
	t.Helper()
	select {
	case event := <-f.outbound:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound event")
		return dto.PeerOutboundEvent{}
	}
}

func (f *fakeSocket) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case event := <-f.outbound:
		t.Fatalf("unexpected outbound event %q", event.Event)
	case <-time.After(150 * time.Millisecond):
	}
}

type chatFixture struct {
	db       *gorm.DB
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	service  PeerChatService
}

var chatDBSeq atomic.Int64

func newChatFixture(t *testing.T, redisClient *redis.Client, channelBase string) chatFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:chatfixture%d?mode=memory&cache=shared", chatDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Room{}, &models.Message{}, &models.Notification{}))

	rooms := repository.NewRoomRepository(db)
	messages := repository.NewMessageRepository(db)
	validate := validator.New(validator.WithRequiredStructEnabled())

	svc := NewPeerChatService(rooms, messages, redisClient, channelBase, nil, nil, validate, time.Minute, zerolog.Nop())

	return chatFixture{db: db, rooms: rooms, messages: messages, service: svc}
}

func connect(t *testing.T, svc PeerChatService, userID string, actor models.ActorKind) *fakeSocket {
	t.Helper()
	socket := newFakeSocket()
	go svc.ServeConnection(socket, PeerConnectionOptions{UserID: userID, Actor: actor})
	t.Cleanup(func() { _ = socket.Close() })
	return socket
}

func joinRoom(t *testing.T, socket *fakeSocket, topic string) dto.PeerJoinedPayload {
	t.Helper()
	socket.sendEvent(t, dto.PeerEventJoin, dto.PeerJoinRequest{Topic: topic})
	event := socket.nextEvent(t)
	require.Equal(t, dto.PeerEventJoined, event.Event)
	joined, ok := event.Data.(dto.PeerJoinedPayload)
	require.True(t, ok)
	return joined
}

func TestJoinCreatesRoomAndAcknowledges(t *testing.T) {
	fx := newChatFixture(t, nil, "")
	socket := connect(t, fx.service, "student-1", models.ActorStudent)

	joined := joinRoom(t, socket, " Anxiety ")
	require.Equal(t, "anxiety", joined.Topic)
	require.NotEmpty(t, joined.RoomID)

	room, err := fx.rooms.GetByTopic(context.Background(), "anxiety")
	require.NoError(t, err)
	require.Equal(t, joined.RoomID, room.ID)
}

func TestJoinRejectsUnknownTopic(t *testing.T) {
	fx := newChatFixture(t, nil, "")
	socket := connect(t, fx.service, "student-1", models.ActorStudent)

	socket.sendEvent(t, dto.PeerEventJoin, dto.PeerJoinRequest{Topic: "gardening"})
	event := socket.nextEvent(t)
	require.Equal(t, dto.PeerEventError, event.Event)
	require.Equal(t, "invalid topic", event.Data)

	var count int64
	require.NoError(t, fx.db.Model(&models.Room{}).Count(&count).Error)
	require.Zero(t, count, "rejected joins must not create rooms")
}

func TestMessageBroadcastIncludesSenderAndStaysInRoom(t *testing.T) {
	fx := newChatFixture(t, nil, "")

	sender := connect(t, fx.service, "student-1", models.ActorStudent)
	peer := connect(t, fx.service, "volunteer-1", models.ActorVolunteer)
	outsider := connect(t, fx.service, "student-2", models.ActorStudent)

	joined := joinRoom(t, sender, "general")
	peerJoined := joinRoom(t, peer, "general")
	require.Equal(t, joined.RoomID, peerJoined.RoomID)
	joinRoom(t, outsider, "sleep")

	// The first member sees the second one arrive.
	presence := sender.nextEvent(t)
	require.Equal(t, dto.PeerEventUserJoined, presence.Event)

	sender.sendEvent(t, dto.PeerEventMessage, dto.PeerMessageRequest{RoomID: joined.RoomID, Text: "hello there"})

	for _, socket := range []*fakeSocket{sender, peer} {
		event := socket.nextEvent(t)
		require.Equal(t, dto.PeerEventMessage, event.Event)
		payload, ok := event.Data.(dto.PeerMessagePayload)
		require.True(t, ok)
		require.Equal(t, "hello there", payload.Text)
		require.Equal(t, "student-1", payload.SenderID)
		require.Equal(t, "Student", payload.SenderModel)
		require.NotEmpty(t, payload.ID)
	}

	outsider.expectSilence(t)

	var stored models.Message
	require.NoError(t, fx.db.First(&stored).Error)
	require.Equal(t, "hello there", stored.Text)
	require.Equal(t, models.SenderStudent, stored.SenderKind)
}

func TestMessageSanitizedAndClamped(t *testing.T) {
	fx := newChatFixture(t, nil, "")
	socket := connect(t, fx.service, "student-1", models.ActorStudent)
	joined := joinRoom(t, socket, "exam")

	socket.sendEvent(t, dto.PeerEventMessage, dto.PeerMessageRequest{RoomID: joined.RoomID, Text: "<b>hello</b> world"})
	event := socket.nextEvent(t)
	require.Equal(t, dto.PeerEventMessage, event.Event)
	payload := event.Data.(dto.PeerMessagePayload)
	require.Equal(t, "hello world", payload.Text)

	long := strings.Repeat("a", 2500)
	socket.sendEvent(t, dto.PeerEventMessage, dto.PeerMessageRequest{RoomID: joined.RoomID, Text: long})
	event = socket.nextEvent(t)
	require.Equal(t, dto.PeerEventMessage, event.Event)
	payload = event.Data.(dto.PeerMessagePayload)
	require.Len(t, payload.Text, 2000)
}

func TestMessageClampHoldsAfterEntityEscaping(t *testing.T) {
	fx := newChatFixture(t, nil, "")
	socket := connect(t, fx.service, "student-1", models.ActorStudent)
	joined := joinRoom(t, socket, "exam")

	// Each apostrophe escapes to a five-rune entity; the stored text must
	// still respect the column cap.
	socket.sendEvent(t, dto.PeerEventMessage, dto.PeerMessageRequest{RoomID: joined.RoomID, Text: strings.Repeat("'", 2000)})
	event := socket.nextEvent(t)
	require.Equal(t, dto.PeerEventMessage, event.Event)
	payload := event.Data.(dto.PeerMessagePayload)
	require.LessOrEqual(t, len([]rune(payload.Text)), 2000)
	require.NotEmpty(t, payload.Text)

	var stored models.Message
	require.NoError(t, fx.db.First(&stored).Error)
	require.LessOrEqual(t, len([]rune(stored.Text)), 2000)
	require.Equal(t, payload.Text, stored.Text)
}

func TestMessageRejectedWhenEmptyAfterSanitization(t *testing.T) {
	fx := newChatFixture(t, nil, "")
	socket := connect(t, fx.service, "student-1", models.ActorStudent)
	joined := joinRoom(t, socket, "exam")

	socket.sendEvent(t, dto.PeerEventMessage, dto.PeerMessageRequest{RoomID: joined.RoomID, Text: "<script>alert(1)</script>"})
	event := socket.nextEvent(t)
	require.Equal(t, dto.PeerEventError, event.Event)
	require.Equal(t, "message cannot be empty", event.Data)

	var count int64
	require.NoError(t, fx.db.Model(&models.Message{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestMessageRejectedWithoutJoin(t *testing.T) {
	fx := newChatFixture(t, nil, "")
	socket := connect(t, fx.service, "student-1", models.ActorStudent)

	socket.sendEvent(t, dto.PeerEventMessage, dto.PeerMessageRequest{RoomID: "room-1", Text: "hi"})
	event := socket.nextEvent(t)
	require.Equal(t, dto.PeerEventError, event.Event)
	require.Equal(t, "join the room before sending messages", event.Data)

	var count int64
	require.NoError(t, fx.db.Model(&models.Message{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestMalformedPayloadGetsPrivateError(t *testing.T) {
	fx := newChatFixture(t, nil, "")

	sender := connect(t, fx.service, "student-1", models.ActorStudent)
	peer := connect(t, fx.service, "student-2", models.ActorStudent)
	joinRoom(t, sender, "general")
	joinRoom(t, peer, "general")
	require.Equal(t, dto.PeerEventUserJoined, sender.nextEvent(t).Event)

	sender.inbound <- dto.PeerInboundEvent{Event: dto.PeerEventMessage, Data: json.RawMessage(`"not an object"`)}
	event := sender.nextEvent(t)
	require.Equal(t, dto.PeerEventError, event.Event)
	require.Equal(t, "invalid message data", event.Data)

	peer.expectSilence(t)

	var count int64
	require.NoError(t, fx.db.Model(&models.Message{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestUnknownEventGetsError(t *testing.T) {
	fx := newChatFixture(t, nil, "")
	socket := connect(t, fx.service, "student-1", models.ActorStudent)

	socket.inbound <- dto.PeerInboundEvent{Event: "dance", Data: json.RawMessage(`{}`)}
	event := socket.nextEvent(t)
	require.Equal(t, dto.PeerEventError, event.Event)
}

func TestTypingRelayExcludesSender(t *testing.T) {
	fx := newChatFixture(t, nil, "")

	sender := connect(t, fx.service, "student-1", models.ActorStudent)
	peer := connect(t, fx.service, "student-2", models.ActorStudent)
	joined := joinRoom(t, sender, "depression")
	joinRoom(t, peer, "depression")
	require.Equal(t, dto.PeerEventUserJoined, sender.nextEvent(t).Event)

	sender.sendEvent(t, dto.PeerEventTyping, dto.PeerTypingRequest{RoomID: joined.RoomID, Typing: true})

	event := peer.nextEvent(t)
	require.Equal(t, dto.PeerEventTyping, event.Event)
	payload, ok := event.Data.(dto.PeerTypingPayload)
	require.True(t, ok)
	require.Equal(t, "student-1", payload.UserID)
	require.True(t, payload.Typing)

	sender.expectSilence(t)
}

func TestTypingDroppedSilentlyWhenNotInRoom(t *testing.T) {
	fx := newChatFixture(t, nil, "")
	socket := connect(t, fx.service, "student-1", models.ActorStudent)

	socket.sendEvent(t, dto.PeerEventTyping, dto.PeerTypingRequest{RoomID: "room-1", Typing: true})
	socket.expectSilence(t)
}

func TestRejoinMovesClientBetweenRooms(t *testing.T) {
	fx := newChatFixture(t, nil, "")

	mover := connect(t, fx.service, "student-1", models.ActorStudent)
	witness := connect(t, fx.service, "student-2", models.ActorStudent)

	first := joinRoom(t, mover, "general")
	joinRoom(t, witness, "general")
	require.Equal(t, dto.PeerEventUserJoined, mover.nextEvent(t).Event)

	second := joinRoom(t, mover, "sleep")
	require.NotEqual(t, first.RoomID, second.RoomID)

	// The previous room is told the mover left.
	left := witness.nextEvent(t)
	require.Equal(t, dto.PeerEventUserLeft, left.Event)
	presence, ok := left.Data.(dto.PeerPresencePayload)
	require.True(t, ok)
	require.Equal(t, "student-1", presence.UserID)

	// The mover can no longer post to the first room.
	mover.sendEvent(t, dto.PeerEventMessage, dto.PeerMessageRequest{RoomID: first.RoomID, Text: "ghost"})
	event := mover.nextEvent(t)
	require.Equal(t, dto.PeerEventError, event.Event)
	witness.expectSilence(t)
}

func TestDisconnectBroadcastsUserLeft(t *testing.T) {
	fx := newChatFixture(t, nil, "")

	leaver := connect(t, fx.service, "student-1", models.ActorStudent)
	witness := connect(t, fx.service, "student-2", models.ActorStudent)

	joinRoom(t, leaver, "general")
	joinRoom(t, witness, "general")
	require.Equal(t, dto.PeerEventUserJoined, leaver.nextEvent(t).Event)

	require.NoError(t, leaver.Close())

	event := witness.nextEvent(t)
	require.Equal(t, dto.PeerEventUserLeft, event.Event)
	presence := event.Data.(dto.PeerPresencePayload)
	require.Equal(t, "student-1", presence.UserID)
}

func TestHistoryReturnsAscendingWindowToCallerOnly(t *testing.T) {
	fx := newChatFixture(t, nil, "")

	socket := connect(t, fx.service, "student-1", models.ActorStudent)
	peer := connect(t, fx.service, "student-2", models.ActorStudent)
	joined := joinRoom(t, socket, "general")
	joinRoom(t, peer, "general")
	require.Equal(t, dto.PeerEventUserJoined, socket.nextEvent(t).Event)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		msg := models.Message{
			RoomID:     joined.RoomID,
			SenderID:   "student-9",
			SenderKind: models.SenderStudent,
			Text:       fmt.Sprintf("earlier %d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, fx.db.Create(&msg).Error)
	}

	socket.sendEvent(t, dto.PeerEventHistory, dto.PeerHistoryRequest{RoomID: joined.RoomID, Limit: 3})
	event := socket.nextEvent(t)
	require.Equal(t, dto.PeerEventHistory, event.Event)
	payload, ok := event.Data.([]dto.PeerMessagePayload)
	require.True(t, ok)
	require.Len(t, payload, 3)
	require.Equal(t, "earlier 2", payload[0].Text)
	require.Equal(t, "earlier 4", payload[2].Text)

	peer.expectSilence(t)
}

func TestHistoryRequiresJoin(t *testing.T) {
	fx := newChatFixture(t, nil, "")
	socket := connect(t, fx.service, "student-1", models.ActorStudent)

	socket.sendEvent(t, dto.PeerEventHistory, dto.PeerHistoryRequest{RoomID: "room-1", Limit: 10})
	event := socket.nextEvent(t)
	require.Equal(t, dto.PeerEventError, event.Event)
	require.Equal(t, "join the room before requesting history", event.Data)
}

func TestLastMessageReplayedOnJoin(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fx := newChatFixture(t, client, "test")

	first := connect(t, fx.service, "student-1", models.ActorStudent)
	joined := joinRoom(t, first, "general")
	first.sendEvent(t, dto.PeerEventMessage, dto.PeerMessageRequest{RoomID: joined.RoomID, Text: "welcome newcomers"})
	require.Equal(t, dto.PeerEventMessage, first.nextEvent(t).Event)

	late := connect(t, fx.service, "student-2", models.ActorStudent)
	joinRoom(t, late, "general")

	replay := late.nextEvent(t)
	require.Equal(t, dto.PeerEventMessage, replay.Event)
	payload, ok := replay.Data.(dto.PeerMessagePayload)
	require.True(t, ok)
	require.Equal(t, "welcome newcomers", payload.Text)
}

func TestRestHistoryValidatesQuery(t *testing.T) {
	fx := newChatFixture(t, nil, "")

	_, err := fx.service.History(context.Background(), dto.PeerHistoryQuery{})
	require.Error(t, err, "room id is required")

	messages, err := fx.service.History(context.Background(), dto.PeerHistoryQuery{RoomID: "room-1", Limit: 10})
	require.NoError(t, err)
	require.Empty(t, messages)
}
