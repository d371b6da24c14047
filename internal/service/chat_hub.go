package service

import (
	"cardofun_backend/internal/repository"
	"cardofun_backend/pkg/logger"
	"cardofun_backend/pkg/monitoring"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	shardCount     = 32
	onlineTTL      = 2 * time.Minute
	statusFlush    = 500 * time.Millisecond
	chatChannel    = "chat_channel"
)

const (
	EventNewMessage    = "NEW_MESSAGE"
	EventFriendRequest = "FRIEND_REQUEST"
	EventFriendStatus  = "FRIEND_STATUS"
	EventUserStatus    = "USER_STATUS"
	EventTyping        = "TYPING"
)

var messagePool = sync.Pool{
	New: func() interface{} {
		return &WSMessage{}
	},
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Notifier hands a live event to whoever delivers it. Notify never blocks.
type Notifier interface {
	Notify(userID uint, msg WSMessage)
}

type Client struct {
	Hub     *ChatHub
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  uint
	Limiter *rate.Limiter
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.Uint("userId", c.UserID))
			}
			break
		}

		if !c.Limiter.Allow() {
			continue
		}

		wsMsg := messagePool.Get().(*WSMessage)
		if err := json.Unmarshal(message, wsMsg); err == nil {
			monitoring.IMMessageCounter.WithLabelValues(wsMsg.Type, "in").Inc()
			c.Hub.HandleTransientEvent(c.UserID, *wsMsg)
		}
		*wsMsg = WSMessage{}
		messagePool.Put(wsMsg)
	}
}

// HandleTransientEvent relays client events that are never stored.
// Only TYPING is relayed, and only to the single targetUserId it names.
func (h *ChatHub) HandleTransientEvent(senderID uint, msg WSMessage) {
	if msg.Type != EventTyping {
		return
	}
	data, ok := msg.Data.(map[string]interface{})
	if !ok {
		return
	}
	target, ok := data["targetUserId"].(float64)
	if !ok || target <= 0 || uint(target) == senderID {
		return
	}
	h.Notify(uint(target), WSMessage{
		Type: EventTyping,
		Data: map[string]interface{}{"userId": senderID},
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if n := len(c.Send); n > 0 {
				for i := 0; i < n; i++ {
					w.Write(<-c.Send)
				}
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shard holds every session of a user; one user may be connected from several devices.
type shard struct {
	clients map[uint]map[*Client]struct{}
	mu      sync.RWMutex
}

type delivery struct {
	userID uint
	msg    WSMessage
}

type statusUpdate struct {
	userID uint
	status string
}

// ChatHub owns the websocket sessions of this instance and the delivery queue
// that feeds them. With Redis configured, deliveries fan out through pub/sub so
// a recipient connected to another instance still receives them.
type ChatHub struct {
	shards         [shardCount]*shard
	deliveries     chan delivery
	Redis          *redis.Client
	FriendshipRepo *repository.FriendshipRepository

	statusMu sync.Mutex
	pending  []statusUpdate

	// set while this instance is subscribed to chatChannel
	subscribed atomic.Bool

	ready     chan struct{}
	readyOnce sync.Once
}

func NewChatHub(rdb *redis.Client, friendRepo *repository.FriendshipRepository, queueSize int) *ChatHub {
	if queueSize <= 0 {
		queueSize = 1
	}
	h := &ChatHub{
		deliveries:     make(chan delivery, queueSize),
		Redis:          rdb,
		FriendshipRepo: friendRepo,
		ready:          make(chan struct{}),
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &shard{
			clients: make(map[uint]map[*Client]struct{}),
		}
	}
	return h
}

func (h *ChatHub) getShard(userID uint) *shard {
	return h.shards[userID%shardCount]
}

// Ready is closed once Run has subscribed and is consuming deliveries.
func (h *ChatHub) Ready() <-chan struct{} {
	return h.ready
}

// Notify enqueues msg for userID and returns immediately. A full queue drops the event.
func (h *ChatHub) Notify(userID uint, msg WSMessage) {
	select {
	case h.deliveries <- delivery{userID: userID, msg: msg}:
	default:
		monitoring.IMDeliveriesDropped.WithLabelValues("queue_full").Inc()
		logger.Log.Warn("Delivery queue full, dropping event",
			zap.Uint("userId", userID), zap.String("type", msg.Type))
	}
}

func (h *ChatHub) Register(client *Client) {
	s := h.getShard(client.UserID)
	s.mu.Lock()
	sessions, ok := s.clients[client.UserID]
	if !ok {
		sessions = make(map[*Client]struct{})
		s.clients[client.UserID] = sessions
	}
	sessions[client] = struct{}{}
	s.mu.Unlock()

	monitoring.IMOnlineUsers.Inc()
	if !ok {
		h.queueStatus(client.UserID, "online")
	}
}

func (h *ChatHub) Unregister(client *Client) {
	s := h.getShard(client.UserID)
	s.mu.Lock()
	sessions, ok := s.clients[client.UserID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, ok := sessions[client]; !ok {
		s.mu.Unlock()
		return
	}
	delete(sessions, client)
	close(client.Send)
	lastSession := len(sessions) == 0
	if lastSession {
		delete(s.clients, client.UserID)
	}
	s.mu.Unlock()

	monitoring.IMOnlineUsers.Dec()
	if lastSession {
		h.queueStatus(client.UserID, "offline")
	}
}

func (h *ChatHub) queueStatus(userID uint, status string) {
	h.statusMu.Lock()
	h.pending = append(h.pending, statusUpdate{userID, status})
	h.statusMu.Unlock()
}

type PubSubMessage struct {
	TargetUsers []uint          `json:"targetUsers"`
	Payload     json.RawMessage `json:"payload"`
}

// Run drains the delivery queue until ctx is done. A failed subscription is
// retried on every heartbeat; until it succeeds deliveries are pushed locally.
func (h *ChatHub) Run(ctx context.Context) {
	var pubsub *redis.PubSub
	var remote <-chan *redis.Message
	if h.Redis != nil {
		pubsub, remote = h.subscribe(ctx)
	}
	defer func() {
		h.subscribed.Store(false)
		if pubsub != nil {
			pubsub.Close()
		}
	}()
	h.readyOnce.Do(func() { close(h.ready) })

	ticker := time.NewTicker(statusFlush)
	heartbeatTicker := time.NewTicker(1 * time.Minute)
	defer func() {
		ticker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case d := <-h.deliveries:
			h.PushToUsers(ctx, []uint{d.userID}, d.msg)

		case msg, ok := <-remote:
			if !ok {
				h.subscribed.Store(false)
				pubsub.Close()
				pubsub, remote = nil, nil
				continue
			}
			var psMsg PubSubMessage
			if err := json.Unmarshal([]byte(msg.Payload), &psMsg); err != nil {
				logger.Log.Error("PubSub unmarshal error", zap.Error(err))
				continue
			}
			h.pushToLocalRawUsers(psMsg.TargetUsers, psMsg.Payload)

		case <-heartbeatTicker.C:
			if h.Redis != nil && pubsub == nil {
				pubsub, remote = h.subscribe(ctx)
			}
			h.refreshOnlineStatus(ctx)

		case <-ticker.C:
			h.flushStatus(ctx)
		}
	}
}

func (h *ChatHub) subscribe(ctx context.Context) (*redis.PubSub, <-chan *redis.Message) {
	pubsub := h.Redis.Subscribe(ctx, chatChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		logger.Log.Error("Redis subscribe failed, delivering locally only", zap.Error(err))
		pubsub.Close()
		return nil, nil
	}
	h.subscribed.Store(true)
	return pubsub, pubsub.Channel()
}

func (h *ChatHub) flushStatus(ctx context.Context) {
	h.statusMu.Lock()
	updates := h.pending
	h.pending = nil
	h.statusMu.Unlock()
	if len(updates) == 0 {
		return
	}

	if h.Redis != nil {
		pipe := h.Redis.Pipeline()
		for _, update := range updates {
			key := onlineKey(update.userID)
			if update.status == "online" {
				pipe.Set(ctx, key, "true", onlineTTL)
			} else {
				pipe.Del(ctx, key)
			}
		}
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Log.Error("Redis pipeline error", zap.Error(err))
		}
	}

	for _, update := range updates {
		h.NotifyStatus(ctx, update.userID, update.status)
	}
}

func onlineKey(userID uint) string {
	return fmt.Sprintf("user:online:%d", userID)
}

func (h *ChatHub) localUserIDs() []uint {
	var ids []uint
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.RLock()
		for userID := range s.clients {
			ids = append(ids, userID)
		}
		s.mu.RUnlock()
	}
	return ids
}

func (h *ChatHub) refreshOnlineStatus(ctx context.Context) {
	if h.Redis == nil {
		return
	}
	ids := h.localUserIDs()
	if len(ids) == 0 {
		return
	}
	pipe := h.Redis.Pipeline()
	for _, userID := range ids {
		pipe.Expire(ctx, onlineKey(userID), onlineTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Error("Redis pipeline error", zap.Error(err))
		return
	}
	logger.Log.Debug("Refreshed online status", zap.Int("count", len(ids)))
}

// NotifyStatus tells userID's accepted friends that they went online or offline.
func (h *ChatHub) NotifyStatus(ctx context.Context, userID uint, status string) {
	if h.FriendshipRepo == nil {
		return
	}
	ids, err := h.FriendshipRepo.GetFriendIDsCached(ctx, userID)
	if err != nil {
		logger.Log.Warn("Failed to load friends for status update", zap.Uint("userId", userID), zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}
	h.PushToUsers(ctx, ids, WSMessage{
		Type: EventUserStatus,
		Data: map[string]interface{}{
			"userId": userID,
			"status": status,
		},
	})
}

// Stop closes every local session and clears their presence keys.
func (h *ChatHub) Stop() {
	logger.Log.Info("ChatHub stopping: clearing online status and closing connections...")

	var allUserIDs []uint
	closed := 0
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.Lock()
		for userID, sessions := range s.clients {
			allUserIDs = append(allUserIDs, userID)
			for client := range sessions {
				close(client.Send)
				closed++
			}
			delete(s.clients, userID)
		}
		s.mu.Unlock()
	}

	if h.Redis != nil && len(allUserIDs) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pipe := h.Redis.Pipeline()
		for _, userID := range allUserIDs {
			pipe.Del(ctx, onlineKey(userID))
		}
		pipe.Exec(ctx)
	}

	monitoring.IMOnlineUsers.Set(0)
	logger.Log.Info("ChatHub stopped", zap.Int("closedConnections", closed))
}

// PushToUsers delivers msg to every session of userIDs, across instances when Redis is set.
// An empty userIDs broadcasts to everyone.
func (h *ChatHub) PushToUsers(ctx context.Context, userIDs []uint, msg WSMessage) {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Error("Failed to marshal ws message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	monitoring.IMMessageCounter.WithLabelValues(msg.Type, "out").Inc()

	if h.Redis == nil {
		h.pushToLocalRawUsers(userIDs, msgBytes)
		return
	}

	// an unsubscribed instance never hears its own publish back
	subscribed := h.subscribed.Load()
	if !subscribed {
		h.pushToLocalRawUsers(userIDs, msgBytes)
	}

	payload, _ := json.Marshal(PubSubMessage{
		TargetUsers: userIDs,
		Payload:     msgBytes,
	})
	if err := h.Redis.Publish(ctx, chatChannel, payload).Err(); err != nil {
		if subscribed {
			logger.Log.Warn("Redis publish failed, delivering locally", zap.Error(err))
			h.pushToLocalRawUsers(userIDs, msgBytes)
		} else {
			logger.Log.Warn("Redis publish failed", zap.Error(err))
		}
	}
}

func (h *ChatHub) pushToLocalRawUsers(userIDs []uint, payload []byte) {
	if len(userIDs) == 0 {
		userIDs = h.localUserIDs()
	}

	for _, id := range userIDs {
		s := h.getShard(id)
		s.mu.RLock()
		for client := range s.clients[id] {
			select {
			case client.Send <- payload:
			default:
				monitoring.IMDeliveriesDropped.WithLabelValues("client_buffer_full").Inc()
			}
		}
		s.mu.RUnlock()
	}
}

func (h *ChatHub) IsUserOnline(ctx context.Context, userID uint) bool {
	s := h.getShard(userID)
	s.mu.RLock()
	_, ok := s.clients[userID]
	s.mu.RUnlock()
	if ok {
		return true
	}

	if h.Redis == nil {
		return false
	}
	val, err := h.Redis.Get(ctx, onlineKey(userID)).Result()
	return err == nil && val == "true"
}

func ServeWs(hub *ChatHub, w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	client := &Client{
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		UserID:  userID,
		Limiter: rate.NewLimiter(rate.Limit(30), 50),
	}
	hub.Register(client)

	go client.writePump()
	go client.readPump()
}
