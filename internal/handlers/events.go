package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"

	"tubeinsight/dashboard/internal/middleware"
	"tubeinsight/dashboard/internal/watcher"
)

const eventsHeartbeat = 25 * time.Second

// Events streams session events for the signed-in user as Server-Sent
// Events. The first event is always initial_session.
func (h HandlerSet) Events(c *gin.Context) {
	s, _ := middleware.CurrentSession(c)

	events, unsubscribe := h.hub.Subscribe(s.UserID)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("session", watcher.Event{
		ID:     ksuid.New().String(),
		Type:   watcher.EventInitialSession,
		UserID: s.UserID,
		At:     time.Now().UTC(),
	})
	c.Writer.Flush()

	heartbeat := time.NewTicker(eventsHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("session", e)
			return e.Type != watcher.EventSignedOut
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
