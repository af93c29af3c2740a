package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/loopmarket/backend/internal/presence"
	"github.com/loopmarket/backend/internal/realtime"
	"github.com/loopmarket/backend/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin is already gated by the CORS layer and token auth.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub     *realtime.Hub
	tracker *presence.Tracker
	rdb     *redis.Client
	conv    service.ConversationService
	log     zerolog.Logger
}

func NewWSHandler(hub *realtime.Hub, tracker *presence.Tracker, rdb *redis.Client, conv service.ConversationService, log zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, tracker: tracker, rdb: rdb, conv: conv, log: log}
}

// ServeConversation streams a conversation: history after the "after"
// cursor, live inserts, and the counterpart's presence transitions. The
// subscription and the observer are released on every exit path.
func (h *WSHandler) ServeConversation(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	convID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid conversation id"))
	}
	afterID, _ := strconv.ParseUint(c.QueryParam("after"), 10, 64)

	cv, err := h.conv.Get(c.Request().Context(), convID, uid)
	if err != nil {
		return c.JSON(http.StatusForbidden, NewErrorResponse("forbidden", "not a participant"))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}

	client := realtime.NewClient(h.hub, conn, h.log, convID, uid)
	client.OnSend = func(body string) error {
		_, err := h.conv.Send(context.Background(), convID, uid, body)
		return err
	}
	client.OnRead = func() error {
		return h.conv.MarkRead(context.Background(), convID, uid)
	}

	h.hub.Register(client)

	// Register first, then fetch: anything inserted in between arrives on
	// both paths and is dropped by the client's id de-duplication. History
	// is written synchronously so a long thread never competes with the
	// live queue's capacity.
	msgs, err := h.conv.ListMessages(c.Request().Context(), convID, uid, afterID)
	if err == nil {
		if err := client.Replay(msgs); err != nil {
			h.hub.Unregister(client)
			conn.Close()
			return nil
		}
	}
	go client.WritePump()

	var observer *presence.Observer
	if counterpart := cv.Counterpart(uid); counterpart != "" && h.rdb != nil {
		observer = presence.NewObserver(h.rdb, h.log, func(watchedUID string, online bool) {
			client.Deliver(realtime.Event{Type: "presence", UID: watchedUID, Online: online})
		})
		if err := observer.Watch(c.Request().Context(), []string{counterpart}); err != nil {
			h.log.Warn().Err(err).Str("uid", counterpart).Msg("presence watch failed")
		} else {
			client.Deliver(realtime.Event{Type: "presence", UID: counterpart, Online: observer.IsOnline(counterpart)})
		}
	}

	client.ReadPump()
	if observer != nil {
		observer.Close()
	}
	return nil
}

// ServePresence keeps the caller marked online for the lifetime of the
// socket. The client sends nothing meaningful; the open connection is the
// signal, and tracking stops on any exit path. An ungraceful drop ages out
// via the tracker's TTL.
func (h *WSHandler) ServePresence(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer conn.Close()

	session, err := h.tracker.Start(c.Request().Context(), uid)
	if err != nil {
		h.log.Warn().Err(err).Str("uid", uid).Msg("presence start failed")
		return nil
	}
	defer session.Stop()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(45 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	return nil
}
