package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/nimbusapi/nimbus-sdk-go/internal/errors"
	"github.com/nimbusapi/nimbus-sdk-go/internal/storage"
)

const defaultPageSize = 100

// Handler handles API requests
type Handler struct {
	storage storage.Storage
	logger  *zap.Logger

	// How long an accepted job transition stays in its transient state
	jobTransitionLatency time.Duration

	// Peek-lock duration handed out on message receives
	messageLockDuration time.Duration

	now func() time.Time
}

// NewHandler creates a new API handler
func NewHandler(store storage.Storage, logger *zap.Logger, jobTransitionLatency, messageLockDuration time.Duration) *Handler {
	return &Handler{
		storage:              store,
		logger:               logger,
		jobTransitionLatency: jobTransitionLatency,
		messageLockDuration:  messageLockDuration,
		now:                  time.Now,
	}
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// parseAfter parses the "after" pagination cursor (a row offset)
func parseAfter(c *gin.Context) int {
	valueStr := c.Query("after")
	if valueStr == "" {
		return 0
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// nextLink builds the server-relative link to the next page, or "" when
// the listing is exhausted
func nextLink(c *gin.Context, offset, returned, total int) string {
	next := offset + returned
	if next >= total || returned == 0 {
		return ""
	}
	query := url.Values{}
	for key, values := range c.Request.URL.Query() {
		if key == "after" {
			continue
		}
		for _, v := range values {
			query.Add(key, v)
		}
	}
	query.Set("after", strconv.Itoa(next))
	return c.Request.URL.Path + "?" + query.Encode()
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeUnauthorized:
			status = http.StatusUnauthorized
		case apperrors.ErrCodeForbidden:
			status = http.StatusForbidden
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeRateLimited:
			status = http.StatusTooManyRequests
		case apperrors.ErrCodeConflict, apperrors.ErrCodeReadOnly:
			status = http.StatusConflict
		case apperrors.ErrCodePreconditionFailed:
			status = http.StatusPreconditionFailed
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	})
}
