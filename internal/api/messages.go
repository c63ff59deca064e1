package api

import (
	"net/http"
	"time"

	"rental-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) sendMessage(c *gin.Context) {
	var req service.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.svc.Messages.SendMessage(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		h.respondError(c, "Failed to send message", err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) listInbox(c *gin.Context) {
	msgs, err := h.svc.Messages.ListInbox(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "Failed to list messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) listConversation(c *gin.Context) {
	msgs, err := h.svc.Messages.ListConversation(c.Request.Context(), currentUser(c), c.Param("userId"))
	if err != nil {
		h.respondError(c, "Failed to list messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) markMessageRead(c *gin.Context) {
	m, err := h.svc.Messages.MarkRead(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to mark message read", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// stream sends the caller's events as server-sent events until the client
// disconnects, with a ping event whenever the stream is idle for keepAlive
func (h *Handler) stream(c *gin.Context) {
	userID := currentUser(c)
	sub := h.hub.Subscribe(userID)
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	c.SSEvent("ready", gin.H{"user_id": userID})
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			c.SSEvent(ev.Type, ev)
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
		}
		c.Writer.Flush()
	}
}
