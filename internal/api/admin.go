package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exedis/omnicore-back/internal/queue"
)

func (h *Handler) queueEnabled(c *gin.Context) bool {
	if h.deps.Queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Queue is disabled in sync mode"})
		return false
	}
	return true
}

func (h *Handler) QueueStats(c *gin.Context) {
	if !h.queueEnabled(c) {
		return
	}
	st, err := h.deps.Queue.Stats(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to get queue stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get queue stats"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) FailedJobs(c *gin.Context) {
	if !h.queueEnabled(c) {
		return
	}
	jobs, err := h.deps.Queue.FailedJobs(c.Request.Context(), int64(queryLimit(c, 50)))
	if err != nil {
		h.logger.Errorf("Failed to list failed jobs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list failed jobs"})
		return
	}
	c.JSON(http.StatusOK, jobsOrEmpty(jobs))
}

func (h *Handler) CompletedJobs(c *gin.Context) {
	if !h.queueEnabled(c) {
		return
	}
	jobs, err := h.deps.Queue.CompletedJobs(c.Request.Context(), int64(queryLimit(c, 100)))
	if err != nil {
		h.logger.Errorf("Failed to list completed jobs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list completed jobs"})
		return
	}
	c.JSON(http.StatusOK, jobsOrEmpty(jobs))
}

func (h *Handler) RetryJob(c *gin.Context) {
	if !h.queueEnabled(c) {
		return
	}
	id := c.Param("id")
	err := h.deps.Queue.RetryFailed(c.Request.Context(), id)
	if errors.Is(err, queue.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Failed job not found"})
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to retry job %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retry job"})
		return
	}
	h.logger.Infof("Requeued failed job %s", id)
	c.JSON(http.StatusOK, gin.H{"message": "Job requeued", "jobId": id})
}

func (h *Handler) DedupStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Dedup.Stats())
}

func (h *Handler) ClearDedup(c *gin.Context) {
	h.deps.Dedup.Clear()
	h.logger.Infof("Dedup cache cleared")
	c.JSON(http.StatusOK, gin.H{"message": "Dedup cache cleared"})
}

func jobsOrEmpty(jobs []*queue.Job) []*queue.Job {
	if jobs == nil {
		return []*queue.Job{}
	}
	return jobs
}
