package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/nimbusapi/nimbus-sdk-go/internal/errors"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/queues"
)

// CreateQueue creates a queue
// PUT /queues/:name
func (h *Handler) CreateQueue(c *gin.Context) {
	name := c.Param("name")
	createdAt := h.now().UTC().Truncate(time.Millisecond)

	if err := h.storage.CreateQueue(c.Request.Context(), name, createdAt); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, queues.Queue{Name: name, CreatedAt: createdAt})
}

// GetQueue returns queue properties with the current message count
// GET /queues/:name
func (h *Handler) GetQueue(c *gin.Context) {
	queue, err := h.storage.GetQueue(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, queue)
}

// DeleteQueue removes a queue and its messages
// DELETE /queues/:name
func (h *Handler) DeleteQueue(c *gin.Context) {
	if err := h.storage.DeleteQueue(c.Request.Context(), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListQueues returns a page of queues
// GET /queues
func (h *Handler) ListQueues(c *gin.Context) {
	offset := parseAfter(c)
	list, total, err := h.storage.ListQueues(c.Request.Context(), offset, defaultPageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]queues.Queue, 0, len(list))
	for _, q := range list {
		items = append(items, *q)
	}
	c.JSON(http.StatusOK, core.Page[queues.Queue]{
		Items:    items,
		NextLink: nextLink(c, offset, len(items), total),
	})
}

// SendMessage enqueues a message
// POST /queues/:name/messages
func (h *Handler) SendMessage(c *gin.Context) {
	var msg queues.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid message body"))
		return
	}
	if len(msg.Body) == 0 {
		respondError(c, apperrors.NewBadRequestError("message body is required"))
		return
	}
	if msg.TimeToLive < 0 {
		respondError(c, apperrors.NewBadRequestError("message time to live must not be negative"))
		return
	}

	stored, err := h.storage.EnqueueMessage(c.Request.Context(), c.Param("name"), &msg)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// ReceiveMessage locks and returns the next message, or 204 when the queue
// has none available
// POST /queues/:name/messages/head
func (h *Handler) ReceiveMessage(c *gin.Context) {
	msg, err := h.storage.LockNextMessage(c.Request.Context(), c.Param("name"), h.messageLockDuration)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// PeekMessage returns the next message without locking it, or 204 when the
// queue has none available
// POST /queues/:name/messages/peek
func (h *Handler) PeekMessage(c *gin.Context) {
	msg, err := h.storage.PeekNextMessage(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	if msg == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// CompleteMessage removes a locked message, consuming the lock token
// DELETE /queues/:name/messages/:id/:token
func (h *Handler) CompleteMessage(c *gin.Context) {
	err := h.storage.DeleteMessage(c.Request.Context(), c.Param("name"), c.Param("id"), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AbandonMessage releases a message lock, making the message available again
// PUT /queues/:name/messages/:id/:token
func (h *Handler) AbandonMessage(c *gin.Context) {
	err := h.storage.UnlockMessage(c.Request.Context(), c.Param("name"), c.Param("id"), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
