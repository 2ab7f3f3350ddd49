package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/nimbusapi/nimbus-sdk-go/internal/errors"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/registry"
)

// CreateRepository registers a repository in the registry
// POST /acr/repositories
func (h *Handler) CreateRepository(c *gin.Context) {
	var repo registry.RepositoryProperties
	if err := c.ShouldBindJSON(&repo); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid repository body"))
		return
	}
	if repo.Name == "" {
		respondError(c, apperrors.NewBadRequestError("repository name is required"))
		return
	}

	if _, err := h.storage.GetRepository(c.Request.Context(), repo.Name); err == nil {
		respondError(c, apperrors.NewConflictError("repository already exists"))
		return
	} else if !apperrors.IsNotFound(err) {
		respondError(c, err)
		return
	}

	now := h.now().UTC().Truncate(time.Millisecond)
	repo.CreatedOn = now
	repo.LastUpdatedOn = now
	repo.DeleteEnabled = true
	repo.WriteEnabled = true

	if err := h.storage.SaveRepository(c.Request.Context(), &repo); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, repo)
}

// GetRepository returns a repository's properties
// GET /acr/repositories/:name
func (h *Handler) GetRepository(c *gin.Context) {
	repo, err := h.storage.GetRepository(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, repo)
}

// UpdateRepository patches a repository's mutable flags. Nil fields in the
// body are left unchanged.
// PATCH /acr/repositories/:name
func (h *Handler) UpdateRepository(c *gin.Context) {
	var props registry.WriteableProperties
	if err := c.ShouldBindJSON(&props); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid properties body"))
		return
	}

	repo, err := h.storage.GetRepository(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}

	if props.DeleteEnabled != nil {
		repo.DeleteEnabled = *props.DeleteEnabled
	}
	if props.WriteEnabled != nil {
		repo.WriteEnabled = *props.WriteEnabled
	}
	repo.LastUpdatedOn = h.now().UTC().Truncate(time.Millisecond)

	if err := h.storage.SaveRepository(c.Request.Context(), repo); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, repo)
}

// DeleteRepository removes a repository. Repositories with delete disabled
// are rejected.
// DELETE /acr/repositories/:name
func (h *Handler) DeleteRepository(c *gin.Context) {
	name := c.Param("name")

	repo, err := h.storage.GetRepository(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	if !repo.DeleteEnabled {
		respondError(c, apperrors.NewConflictError("repository has delete disabled"))
		return
	}

	if err := h.storage.DeleteRepository(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListRepositories returns a page of repositories
// GET /acr/repositories
func (h *Handler) ListRepositories(c *gin.Context) {
	offset := parseAfter(c)
	repos, total, err := h.storage.ListRepositories(c.Request.Context(), offset, defaultPageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]registry.RepositoryProperties, 0, len(repos))
	for _, r := range repos {
		items = append(items, *r)
	}
	c.JSON(http.StatusOK, core.Page[registry.RepositoryProperties]{
		Items:    items,
		NextLink: nextLink(c, offset, len(items), total),
	})
}
