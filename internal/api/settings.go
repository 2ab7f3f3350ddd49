package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/nimbusapi/nimbus-sdk-go/internal/errors"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/appconfig"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
)

// GetSetting returns a single configuration setting
// GET /kv/:key
func (h *Handler) GetSetting(c *gin.Context) {
	setting, err := h.storage.GetSetting(c.Request.Context(), c.Param("key"), c.Query("label"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

// PutSetting creates or replaces a configuration setting. If-None-Match: *
// makes the write create-only; If-Match makes it conditional on the stored
// ETag. Writes to a read-only setting are rejected.
// PUT /kv/:key
func (h *Handler) PutSetting(c *gin.Context) {
	var setting appconfig.Setting
	if err := c.ShouldBindJSON(&setting); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid setting body"))
		return
	}
	setting.Key = c.Param("key")
	if label := c.Query("label"); label != "" {
		setting.Label = label
	}

	existing, err := h.storage.GetSetting(c.Request.Context(), setting.Key, setting.Label)
	if err != nil && !apperrors.IsNotFound(err) {
		respondError(c, err)
		return
	}

	if existing != nil {
		if c.GetHeader("If-None-Match") == "*" {
			respondError(c, apperrors.NewPreconditionFailedError("setting already exists"))
			return
		}
		if existing.ReadOnly {
			respondError(c, apperrors.NewReadOnlyError("setting"))
			return
		}
	}
	if ifMatch := c.GetHeader("If-Match"); ifMatch != "" {
		if existing == nil || existing.ETag != ifMatch {
			respondError(c, apperrors.NewPreconditionFailedError("etag mismatch"))
			return
		}
	}

	setting.ETag = uuid.New().String()
	setting.ReadOnly = false
	setting.LastModified = h.now().UTC().Truncate(time.Millisecond)

	if err := h.storage.UpsertSetting(c.Request.Context(), &setting); err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if existing == nil {
		status = http.StatusCreated
	}
	c.JSON(status, setting)
}

// DeleteSetting removes a configuration setting. Deleting an absent setting
// succeeds with no content; deleting a read-only setting is rejected.
// DELETE /kv/:key
func (h *Handler) DeleteSetting(c *gin.Context) {
	key := c.Param("key")
	label := c.Query("label")

	existing, err := h.storage.GetSetting(c.Request.Context(), key, label)
	if err != nil {
		if apperrors.IsNotFound(err) {
			c.Status(http.StatusNoContent)
			return
		}
		respondError(c, err)
		return
	}

	if existing.ReadOnly {
		respondError(c, apperrors.NewReadOnlyError("setting"))
		return
	}
	if ifMatch := c.GetHeader("If-Match"); ifMatch != "" && existing.ETag != ifMatch {
		respondError(c, apperrors.NewPreconditionFailedError("etag mismatch"))
		return
	}

	if err := h.storage.DeleteSetting(c.Request.Context(), key, label); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, existing)
}

// LockSetting marks a setting read-only
// PUT /locks/:key
func (h *Handler) LockSetting(c *gin.Context) {
	h.setReadOnly(c, true)
}

// UnlockSetting clears a setting's read-only flag
// DELETE /locks/:key
func (h *Handler) UnlockSetting(c *gin.Context) {
	h.setReadOnly(c, false)
}

func (h *Handler) setReadOnly(c *gin.Context, readOnly bool) {
	setting, err := h.storage.GetSetting(c.Request.Context(), c.Param("key"), c.Query("label"))
	if err != nil {
		respondError(c, err)
		return
	}

	if setting.ReadOnly != readOnly {
		setting.ReadOnly = readOnly
		setting.ETag = uuid.New().String()
		setting.LastModified = h.now().UTC().Truncate(time.Millisecond)
		if err := h.storage.UpsertSetting(c.Request.Context(), setting); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, setting)
}

// ListSettings returns a page of settings matching the key and label
// filters (trailing * wildcard supported)
// GET /kv
func (h *Handler) ListSettings(c *gin.Context) {
	offset := parseAfter(c)
	settings, total, err := h.storage.ListSettings(c.Request.Context(), c.Query("key"), c.Query("label"), offset, defaultPageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]appconfig.Setting, 0, len(settings))
	for _, s := range settings {
		items = append(items, *s)
	}
	c.JSON(http.StatusOK, core.Page[appconfig.Setting]{
		Items:    items,
		NextLink: nextLink(c, offset, len(items), total),
	})
}
