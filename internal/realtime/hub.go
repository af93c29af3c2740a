// Package realtime fans newly inserted messages out to open conversation
// views over WebSocket. Each server instance runs one Hub; instances share
// inserts over a Redis channel so a subscriber is reached no matter which
// instance stored the message.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/loopmarket/backend/internal/model"
)

const messagesChannel = "realtime:messages"

// Event is the envelope written to conversation sockets.
type Event struct {
	Type    string         `json:"type"` // "message" or "presence"
	Message *model.Message `json:"message,omitempty"`
	UID     string         `json:"uid,omitempty"`
	Online  bool           `json:"online,omitempty"`
}

// wireMessage crosses instances via Redis. Node lets the origin skip its
// own echo; it already delivered locally.
type wireMessage struct {
	Node    string        `json:"node"`
	Message model.Message `json:"message"`
}

type Hub struct {
	log  zerolog.Logger
	rdb  *redis.Client
	node string

	register   chan *Client
	unregister chan *Client
	broadcast  chan *model.Message

	// Closed when Run returns; keeps Register/Unregister/PublishMessage
	// from blocking forever during shutdown.
	done chan struct{}

	// Subscribers keyed by conversation id. Touched only by Run.
	clients map[uint64]map[*Client]bool
}

func NewHub(rdb *redis.Client, log zerolog.Logger) *Hub {
	return &Hub{
		log:        log.With().Str("component", "realtime").Logger(),
		rdb:        rdb,
		node:       uuid.NewString(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *model.Message, 64),
		done:       make(chan struct{}),
		clients:    make(map[uint64]map[*Client]bool),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, subs := range h.clients {
				for client := range subs {
					client.closeSend()
				}
			}
			return

		case client := <-h.register:
			subs := h.clients[client.conversationID]
			if subs == nil {
				subs = make(map[*Client]bool)
				h.clients[client.conversationID] = subs
			}
			subs[client] = true

		case client := <-h.unregister:
			if subs, ok := h.clients[client.conversationID]; ok {
				if subs[client] {
					delete(subs, client)
					client.closeSend()
				}
				if len(subs) == 0 {
					delete(h.clients, client.conversationID)
				}
			}

		case msg := <-h.broadcast:
			for client := range h.clients[msg.ConversationID] {
				client.Deliver(Event{Type: "message", Message: msg})
			}
		}
	}
}

// SubscribeRedis pipes inserts from other instances into the local
// broadcast loop. Blocks until ctx is done.
func (h *Hub) SubscribeRedis(ctx context.Context) {
	if h.rdb == nil {
		return
	}
	pubsub := h.rdb.Subscribe(ctx, messagesChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			var wm wireMessage
			if err := json.Unmarshal([]byte(redisMsg.Payload), &wm); err != nil {
				h.log.Warn().Err(err).Msg("bad realtime payload")
				continue
			}
			if wm.Node == h.node {
				continue
			}
			msg := wm.Message
			select {
			case h.broadcast <- &msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// PublishMessage delivers msg to local subscribers and relays it to the
// other instances. Satisfies service.MessagePublisher.
func (h *Hub) PublishMessage(msg *model.Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
		return
	}
	if h.rdb == nil {
		return
	}
	payload, err := json.Marshal(wireMessage{Node: h.node, Message: *msg})
	if err != nil {
		h.log.Warn().Err(err).Msg("marshal realtime payload")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.rdb.Publish(ctx, messagesChannel, payload).Err(); err != nil {
		h.log.Warn().Err(err).Uint64("conversation", msg.ConversationID).Msg("relay publish failed")
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.closeSend()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.closeSend()
	}
}
