package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/loopmarket/backend/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// incomingFrame is what the browser sends over the socket.
type incomingFrame struct {
	Type string `json:"type"` // "send" or "read"
	Body string `json:"body,omitempty"`
}

// Client is the middleman between one conversation socket and the hub.
// The initial history fetch and the live stream can both hand it the same
// row around the subscribe boundary, so delivery is de-duplicated by
// message id.
type Client struct {
	hub            *Hub
	conn           *websocket.Conn
	log            zerolog.Logger
	conversationID uint64
	uid            string

	send chan Event

	mu     sync.Mutex
	seen   map[uint64]bool
	closed bool

	// Set by the handler; invoked from the read pump.
	OnSend func(body string) error
	OnRead func() error
}

func NewClient(hub *Hub, conn *websocket.Conn, log zerolog.Logger, conversationID uint64, uid string) *Client {
	return &Client{
		hub:            hub,
		conn:           conn,
		log:            log,
		conversationID: conversationID,
		uid:            uid,
		send:           make(chan Event, 64),
		seen:           make(map[uint64]bool),
	}
}

func (c *Client) UID() string {
	return c.uid
}

// Deliver queues an event for the socket. Message events already delivered
// in this session are dropped, as is anything arriving after the hub has
// let go of the client — an observer goroutine can still fire in that
// window. A slow consumer is disconnected rather than allowed to block the
// hub.
func (c *Client) Deliver(ev Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if ev.Message != nil {
		if c.seen[ev.Message.ID] {
			c.mu.Unlock()
			return
		}
		c.seen[ev.Message.ID] = true
	}
	select {
	case c.send <- ev:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.log.Warn().Str("uid", c.uid).Uint64("conversation", c.conversationID).Msg("subscriber too slow, dropping")
		c.conn.Close()
	}
}

// closeSend marks the client finished and closes its queue. Only the hub
// calls this; the closed flag keeps late Deliver calls from panicking on
// the closed channel.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Replay writes the history snapshot straight to the socket, before the
// pumps start, and records the ids so the live stream cannot deliver the
// same rows again. Synchronous on purpose: a long thread must not compete
// with the live queue's capacity.
func (c *Client) Replay(msgs []model.Message) error {
	for i := range msgs {
		c.mu.Lock()
		c.seen[msgs[i].ID] = true
		c.mu.Unlock()
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(Event{Type: "message", Message: &msgs[i]}); err != nil {
			return err
		}
	}
	return nil
}

// ReadPump consumes frames from the socket until it closes, then
// unregisters the client. Runs as a goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Msg("socket closed")
			}
			return
		}
		var frame incomingFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "send":
			if c.OnSend != nil {
				if err := c.OnSend(frame.Body); err != nil {
					c.log.Debug().Err(err).Str("uid", c.uid).Msg("ws send rejected")
				}
			}
		case "read":
			if c.OnRead != nil {
				if err := c.OnRead(); err != nil {
					c.log.Debug().Err(err).Str("uid", c.uid).Msg("ws read-receipt failed")
				}
			}
		}
	}
}

// WritePump drains the send queue to the socket and keeps the connection
// alive with pings. Runs as a goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
