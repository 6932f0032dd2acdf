package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campuscare-go-api/internal/dto"
	"github.com/noah-isme/campuscare-go-api/internal/models"
	"github.com/noah-isme/campuscare-go-api/internal/observability"
	"github.com/noah-isme/campuscare-go-api/internal/repository"
)

const (
	peerMessageMaxLen  = 2000
	peerSendBufferSize = 32
)

// SocketConn is the subset of the websocket connection the gateway uses.
// *websocket.Conn satisfies it; tests substitute in-memory fakes.
type SocketConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// RoomNotifier receives a callback for every message stored in a moderated room.
type RoomNotifier interface {
	NotifyModerators(ctx context.Context, room models.Room, message dto.PeerMessagePayload)
}

// PeerConnectionOptions wraps identity extracted during the websocket handshake.
type PeerConnectionOptions struct {
	UserID        string
	Actor         models.ActorKind
	CorrelationID string
	Context       context.Context
}

// PeerChatService manages peer-room websocket connections and message delivery.
type PeerChatService interface {
	ServeConnection(conn SocketConn, opts PeerConnectionOptions)
	History(ctx context.Context, query dto.PeerHistoryQuery) ([]dto.PeerMessagePayload, error)
	Start(ctx context.Context)
}

type peerChatService struct {
	rooms          repository.RoomRepository
	messages       repository.MessageRepository
	notifier       RoomNotifier
	redis          *redis.Client
	redisStream    string
	redisCache     string
	nats           *nats.Conn
	natsSubject    string
	validator      *validator.Validate
	logger         zerolog.Logger
	tracer         trace.Tracer
	sanitizer      *bluemonday.Policy
	hub            *peerHub
	nodeID         string
	lastMessageTTL time.Duration
}

// peerHub tracks room membership for active connections. A connection is
// bound to at most one room; a second join drops the previous binding.
type peerHub struct {
	mu    sync.RWMutex
	rooms map[string]map[*peerClient]struct{}
	log   zerolog.Logger
}

type peerClient struct {
	conn    SocketConn
	send    chan dto.PeerOutboundEvent
	opts    PeerConnectionOptions
	service *peerChatService
	closed  chan struct{}
	once    sync.Once
	baseCtx context.Context

	// roomID is guarded by the hub mutex.
	roomID string
}

// peerRelayEvent is the cross-node representation of a broadcast message.
type peerRelayEvent struct {
	Source  string                 `json:"source"`
	Message dto.PeerMessagePayload `json:"message"`
	SentAt  time.Time              `json:"sent_at"`
}

// NewPeerChatService creates the websocket gateway for peer-support rooms.
// Redis and NATS are optional; when configured they relay broadcasts across
// nodes and cache the latest message per room for replay on join.
func NewPeerChatService(rooms repository.RoomRepository, messages repository.MessageRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, notifier RoomNotifier, validate *validator.Validate, lastMessageTTL time.Duration, logger zerolog.Logger) PeerChatService {
	hub := &peerHub{
		rooms: make(map[string]map[*peerClient]struct{}),
		log:   logger.With().Str("component", "peer_hub").Logger(),
	}

	streamChannel := ""
	cachePrefix := ""
	natsSubject := ""
	if channelBase != "" {
		streamChannel = channelBase + ":peer"
		cachePrefix = channelBase + ":peer:last"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".peer"
	}

	if lastMessageTTL <= 0 {
		lastMessageTTL = 30 * time.Minute
	}

	return &peerChatService{
		rooms:          rooms,
		messages:       messages,
		notifier:       notifier,
		redis:          redisClient,
		redisStream:    streamChannel,
		redisCache:     cachePrefix,
		nats:           natsConn,
		natsSubject:    natsSubject,
		validator:      validate,
		logger:         logger.With().Str("component", "peer_chat_service").Logger(),
		tracer:         otel.Tracer("github.com/noah-isme/campuscare-go-api/internal/service/peer"),
		sanitizer:      bluemonday.StrictPolicy(),
		hub:            hub,
		nodeID:         uuid.NewString(),
		lastMessageTTL: lastMessageTTL,
	}
}

func (s *peerChatService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *peerChatService) ServeConnection(conn SocketConn, opts PeerConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	client := &peerClient{
		conn:    conn,
		send:    make(chan dto.PeerOutboundEvent, peerSendBufferSize),
		opts:    opts,
		service: s,
		closed:  make(chan struct{}),
		baseCtx: baseCtx,
	}

	observability.PeerConnectionsTotal().Inc()

	go client.writer()
	client.reader()
}

func (s *peerChatService) History(ctx context.Context, query dto.PeerHistoryQuery) ([]dto.PeerMessagePayload, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListRecent(ctx, query.RoomID, query.Limit)
	if err != nil {
		return nil, err
	}

	return dto.NewPeerMessagePayloadSlice(messages), nil
}

func (s *peerChatService) dispatch(ctx context.Context, c *peerClient, envelope dto.PeerInboundEvent) {
	switch envelope.Event {
	case dto.PeerEventJoin:
		s.handleJoin(ctx, c, envelope.Data)
	case dto.PeerEventMessage:
		s.handleMessage(ctx, c, envelope.Data)
	case dto.PeerEventTyping:
		s.handleTyping(c, envelope.Data)
	case dto.PeerEventHistory:
		s.handleHistory(ctx, c, envelope.Data)
	default:
		s.sendError(c, envelope.Event, fmt.Sprintf("unknown event %q", envelope.Event))
	}
}

func (s *peerChatService) handleJoin(ctx context.Context, c *peerClient, data json.RawMessage) {
	var payload dto.PeerJoinRequest
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(c, dto.PeerEventJoin, "invalid join payload")
		return
	}

	topic := strings.ToLower(strings.TrimSpace(payload.Topic))
	if !models.IsSupportTopic(topic) {
		s.sendError(c, dto.PeerEventJoin, "invalid topic")
		return
	}

	room, err := s.rooms.ResolveByTopic(ctx, topic, "Support room for "+topic)
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("failed to resolve peer room")
		s.sendError(c, dto.PeerEventJoin, "failed to join room")
		return
	}

	previous := s.hub.bind(c, room.ID)
	if previous != "" {
		s.hub.broadcast(previous, peerEvent(dto.PeerEventUserLeft, dto.PeerPresencePayload{UserID: c.opts.UserID}), c)
	}

	c.push(peerEvent(dto.PeerEventJoined, dto.PeerJoinedPayload{RoomID: room.ID, Topic: room.Topic}))
	s.hub.broadcast(room.ID, peerEvent(dto.PeerEventUserJoined, dto.PeerPresencePayload{
		UserID: c.opts.UserID,
		Role:   string(c.opts.Actor),
	}), c)

	if last := s.fetchLastMessage(ctx, room.ID); last != nil {
		c.push(peerEvent(dto.PeerEventMessage, *last))
	}
}

func (s *peerChatService) handleMessage(ctx context.Context, c *peerClient, data json.RawMessage) {
	var payload dto.PeerMessageRequest
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(c, dto.PeerEventMessage, "invalid message data")
		return
	}
	if err := s.validator.Struct(payload); err != nil {
		s.sendError(c, dto.PeerEventMessage, "invalid message data")
		return
	}

	if s.hub.room(c) != payload.RoomID {
		s.sendError(c, dto.PeerEventMessage, "join the room before sending messages")
		return
	}

	// Sanitize before clamping: the policy entity-escapes quotes and
	// ampersands, so clamping first could leave text over the column size.
	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Text))
	if runes := []rune(clean); len(runes) > peerMessageMaxLen {
		clean = strings.TrimSpace(string(runes[:peerMessageMaxLen]))
	}
	if clean == "" {
		s.sendError(c, dto.PeerEventMessage, "message cannot be empty")
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("peer.room_id", payload.RoomID),
		attribute.String("peer.sender_id", c.opts.UserID),
		attribute.String("peer.sender_kind", string(c.opts.Actor.SenderKind())),
	}
	if c.opts.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", c.opts.CorrelationID))
	}

	spanCtx, span := s.tracer.Start(ctx, "peer.broadcast", trace.WithAttributes(attrs...))
	defer span.End()

	model := models.Message{
		RoomID:     payload.RoomID,
		SenderID:   c.opts.UserID,
		SenderKind: c.opts.Actor.SenderKind(),
		Text:       clean,
	}

	if err := s.messages.Save(spanCtx, &model); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Str("room_id", payload.RoomID).Msg("failed to persist peer message")
		s.sendError(c, dto.PeerEventMessage, "failed to send message")
		return
	}

	response := dto.NewPeerMessagePayload(model)
	s.cacheLastMessage(spanCtx, response)
	s.hub.broadcast(payload.RoomID, peerEvent(dto.PeerEventMessage, response), nil)
	if err := s.publish(spanCtx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish peer event")
	}
	if s.notifier != nil {
		go s.notifyModerators(response)
	}

	observability.PeerMessagesSent().WithLabelValues(string(model.SenderKind)).Inc()
}

func (s *peerChatService) handleTyping(c *peerClient, data json.RawMessage) {
	var payload dto.PeerTypingRequest
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		return
	}
	if s.hub.room(c) != payload.RoomID {
		return
	}

	s.hub.broadcast(payload.RoomID, peerEvent(dto.PeerEventTyping, dto.PeerTypingPayload{
		UserID: c.opts.UserID,
		Typing: payload.Typing,
	}), c)
}

func (s *peerChatService) handleHistory(ctx context.Context, c *peerClient, data json.RawMessage) {
	var payload dto.PeerHistoryRequest
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		s.sendError(c, dto.PeerEventHistory, "invalid history request")
		return
	}
	if s.hub.room(c) != payload.RoomID {
		s.sendError(c, dto.PeerEventHistory, "join the room before requesting history")
		return
	}

	messages, err := s.messages.ListRecent(ctx, payload.RoomID, payload.Limit)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", payload.RoomID).Msg("failed to load peer history")
		s.sendError(c, dto.PeerEventHistory, "failed to load message history")
		return
	}

	c.push(peerEvent(dto.PeerEventHistory, dto.NewPeerMessagePayloadSlice(messages)))
}

// sendError delivers a private error to the offending caller only. Failures
// never terminate the connection or leak to other room members.
func (s *peerChatService) sendError(c *peerClient, event, message string) {
	observability.PeerEventErrors().WithLabelValues(event).Inc()
	c.push(peerEvent(dto.PeerEventError, message))
}

func (s *peerChatService) notifyModerators(message dto.PeerMessagePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, err := s.rooms.GetByID(ctx, message.RoomID)
	if err != nil {
		s.logger.Debug().Err(err).Str("room_id", message.RoomID).Msg("skipping moderator notification")
		return
	}
	if len(room.Moderators) == 0 {
		return
	}

	s.notifier.NotifyModerators(ctx, room, message)
}

func (s *peerChatService) cacheLastMessage(ctx context.Context, message dto.PeerMessagePayload) {
	if s.redis == nil || s.redisCache == "" {
		return
	}

	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal peer message for cache")
		return
	}

	key := fmt.Sprintf("%s:%s", s.redisCache, message.RoomID)
	if err := s.redis.Set(ctx, key, payload, s.lastMessageTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache peer message")
	}
}

func (s *peerChatService) fetchLastMessage(ctx context.Context, roomID string) *dto.PeerMessagePayload {
	if s.redis == nil || s.redisCache == "" {
		return nil
	}

	key := fmt.Sprintf("%s:%s", s.redisCache, roomID)
	result, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return nil
	}

	var message dto.PeerMessagePayload
	if err := json.Unmarshal([]byte(result), &message); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unmarshal cached peer message")
		return nil
	}

	return &message
}

func (s *peerChatService) publish(ctx context.Context, message dto.PeerMessagePayload) error {
	event := peerRelayEvent{
		Source:  s.nodeID,
		Message: message,
		SentAt:  time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *peerChatService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("peer redis subscription closed")
			return
		}
		s.handleRelay([]byte(msg.Payload))
	}
}

func (s *peerChatService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "campuscare-peer", func(msg *nats.Msg) {
		s.handleRelay(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats peer subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain peer nats subscription")
		}
	}()
}

func (s *peerChatService) handleRelay(data []byte) {
	var event peerRelayEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid peer relay event")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.hub.broadcast(event.Message.RoomID, peerEvent(dto.PeerEventMessage, event.Message), nil)
}

// bind attaches the client to a room and returns the previous room, if any.
func (h *peerHub) bind(client *peerClient, roomID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	previous := client.roomID
	if previous != "" {
		if members, ok := h.rooms[previous]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, previous)
			}
		}
	}

	if _, exists := h.rooms[roomID]; !exists {
		h.rooms[roomID] = make(map[*peerClient]struct{})
	}
	h.rooms[roomID][client] = struct{}{}
	client.roomID = roomID

	h.log.Debug().Str("room_id", roomID).Str("user_id", client.opts.UserID).Msg("peer client joined room")
	return previous
}

// release drops the client's membership and returns the room it was in.
func (h *peerHub) release(client *peerClient) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	roomID := client.roomID
	if roomID == "" {
		return ""
	}

	if members, ok := h.rooms[roomID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	client.roomID = ""

	h.log.Debug().Str("room_id", roomID).Str("user_id", client.opts.UserID).Msg("peer client left room")
	return roomID
}

func (h *peerHub) room(client *peerClient) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return client.roomID
}

func (h *peerHub) broadcast(roomID string, event dto.PeerOutboundEvent, except *peerClient) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[roomID] {
		if client == except {
			continue
		}
		select {
		case client.send <- event:
		default:
			h.log.Warn().Str("room_id", roomID).Str("user_id", client.opts.UserID).Msg("dropping peer event for slow client")
		}
	}
}

func peerEvent(name string, data interface{}) dto.PeerOutboundEvent {
	return dto.PeerOutboundEvent{Event: name, Data: data}
}

func (c *peerClient) push(event dto.PeerOutboundEvent) {
	select {
	case c.send <- event:
	default:
		c.service.logger.Warn().Str("user_id", c.opts.UserID).Str("event", event.Event).Msg("sender queue full, dropping event")
	}
}

func (c *peerClient) reader() {
	defer c.close()

	ctx := c.baseCtx
	for {
		var envelope dto.PeerInboundEvent
		if err := c.conn.ReadJSON(&envelope); err != nil {
			c.service.logger.Debug().Err(err).Msg("peer read loop ended")
			return
		}

		c.service.dispatch(ctx, c, envelope)
	}
}

func (c *peerClient) writer() {
	defer c.close()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.service.logger.Debug().Err(err).Msg("peer write loop terminated")
				return
			}
		case <-time.After(30 * time.Second):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("peer ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *peerClient) close() {
	c.once.Do(func() {
		close(c.closed)
		if roomID := c.service.hub.release(c); roomID != "" {
			c.service.hub.broadcast(roomID, peerEvent(dto.PeerEventUserLeft, dto.PeerPresencePayload{UserID: c.opts.UserID}), nil)
		}
		_ = c.conn.Close()
	})
}
