package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nimbusapi/nimbus-sdk-go/internal/domain"
	apperrors "github.com/nimbusapi/nimbus-sdk-go/internal/errors"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/batch"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
)

// CreateJob adds a new batch job in the active state
// POST /batch/jobs
func (h *Handler) CreateJob(c *gin.Context) {
	var job batch.Job
	if err := c.ShouldBindJSON(&job); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid job body"))
		return
	}
	if job.ID == "" {
		respondError(c, apperrors.NewBadRequestError("job id is required"))
		return
	}
	if job.PoolID == "" {
		respondError(c, apperrors.NewBadRequestError("job pool id is required"))
		return
	}

	now := h.now().UTC().Truncate(time.Millisecond)
	job.State = batch.JobStateActive
	job.CreationTime = now
	job.StateTransitionTime = now

	if err := h.storage.CreateJob(c.Request.Context(), &job); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// GetJob returns a job by ID
// GET /batch/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.storage.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs returns a page of jobs
// GET /batch/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	offset := parseAfter(c)
	jobs, total, err := h.storage.ListJobs(c.Request.Context(), offset, defaultPageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]batch.Job, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, *j)
	}
	c.JSON(http.StatusOK, core.Page[batch.Job]{
		Items:    items,
		NextLink: nextLink(c, offset, len(items), total),
	})
}

// DeleteJob accepts a job deletion. The job moves to the deleting state and
// the row disappears once the transition settles; polling for it then
// returns not found.
// DELETE /batch/jobs/:id
func (h *Handler) DeleteJob(c *gin.Context) {
	id := c.Param("id")

	job, err := h.storage.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	job.State = batch.JobStateDeleting
	job.StateTransitionTime = h.now().UTC().Truncate(time.Millisecond)
	if err := h.storage.UpdateJobState(c.Request.Context(), id, job.State, job.StateTransitionTime); err != nil {
		respondError(c, err)
		return
	}

	h.settleLater(id, job.State)
	c.JSON(http.StatusAccepted, job)
}

// TransitionJob accepts a terminate, disable, or enable action on a job.
// The job moves through the matching transient state before settling.
// POST /batch/jobs/:id/:action
func (h *Handler) TransitionJob(c *gin.Context) {
	id := c.Param("id")
	action := domain.JobAction(c.Param("action"))

	transient, err := domain.TransientStateFor(action)
	if err != nil {
		respondError(c, apperrors.NewBadRequestError(err.Error()))
		return
	}

	job, err := h.storage.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := domain.ValidateTransition(job.State, action); err != nil {
		respondError(c, err)
		return
	}

	job.State = transient
	job.StateTransitionTime = h.now().UTC().Truncate(time.Millisecond)
	if err := h.storage.UpdateJobState(c.Request.Context(), id, job.State, job.StateTransitionTime); err != nil {
		respondError(c, err)
		return
	}

	h.settleLater(id, job.State)
	c.JSON(http.StatusAccepted, job)
}

// settleLater finishes a transient job state after the configured latency.
// The request context is gone by then, so the settle runs on background
// context.
func (h *Handler) settleLater(id string, transient batch.JobState) {
	time.AfterFunc(h.jobTransitionLatency, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		if final, ok := domain.FinalStateFor(transient); ok {
			err = h.storage.UpdateJobState(ctx, id, final, time.Now().UTC().Truncate(time.Millisecond))
		} else {
			err = h.storage.DeleteJob(ctx, id)
		}
		if err != nil && !apperrors.IsNotFound(err) {
			h.logger.Warn("job transition settle failed",
				zap.String("job_id", id),
				zap.String("transient_state", string(transient)),
				zap.Error(err))
		}
	})
}
