package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/bazarkua/molexa-api/internal/publisher"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamBuffer = 8
	writeWait    = 10 * time.Second
	pingPeriod   = 25 * time.Second
)

type StreamHandler struct {
	hub      *publisher.Hub
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewStreamHandler(hub *publisher.Hub, log logger.Logger) *StreamHandler {
	return &StreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Handles GET /api/analytics/stream as server-sent events
func (h *StreamHandler) SSE(c *gin.Context) {
	sub := publisher.NewStreamSubscriber(streamBuffer)
	if err := h.hub.Subscribe(sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open stream"})
		return
	}
	defer h.hub.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-sub.Done():
			return false
		case msg := <-sub.Messages():
			c.SSEvent("analytics", string(msg))
			return true
		}
	})
}

// Handles GET /api/analytics/ws
func (h *StreamHandler) WebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	sub := publisher.NewStreamSubscriber(streamBuffer)
	if err := h.hub.Subscribe(sub); err != nil {
		return
	}
	defer h.hub.Unsubscribe(sub)

	// Reads only to notice the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-sub.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-sub.Messages():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
