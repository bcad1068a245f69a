package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/exedis/omnicore-back/internal/events"
	"github.com/exedis/omnicore-back/internal/models"
)

const (
	heartbeatInterval = 30 * time.Second
	writeWait         = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients from arbitrary sites authenticate with their API key
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Handler) subscribe(ctx context.Context, c *gin.Context) (<-chan models.Event, func(), bool) {
	stream, cancel, err := h.deps.Events.Subscribe(ctx, ownerID(c))
	if errors.Is(err, events.ErrTooManySubscribers) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many open event streams"})
		return nil, nil, false
	}
	if err != nil {
		h.logger.Errorf("Failed to subscribe to events: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe"})
		return nil, nil, false
	}
	return stream, cancel, true
}

// StreamEvents pushes new submissions of the caller as server-sent events.
func (h *Handler) StreamEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cancel, ok := h.subscribe(ctx, c)
	if !ok {
		return
	}
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("connected", gin.H{"userId": ownerID(c)})
	c.Writer.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"timestamp": time.Now()})
			return true
		case <-ctx.Done():
			return false
		}
	})
	h.logger.Debugf("Event stream closed for user %s", ownerID(c))
}

// WebSocketEvents is the websocket variant of StreamEvents.
func (h *Handler) WebSocketEvents(c *gin.Context) {
	ctx, stop := context.WithCancel(c.Request.Context())
	defer stop()

	stream, cancel, ok := h.subscribe(ctx, c)
	if !ok {
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade websocket: %v", err)
		return
	}
	defer conn.Close()
	h.logger.Infof("Websocket connected for user %s", ownerID(c))

	// Reads only detect the peer going away
	go func() {
		defer stop()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Warnf("Failed to write websocket event for user %s: %v", ownerID(c), err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			h.logger.Infof("Websocket closed for user %s", ownerID(c))
			return
		}
	}
}
