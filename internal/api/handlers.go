package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/db"
	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
	"github.com/exedis/omnicore-back/internal/notification"
	"github.com/exedis/omnicore-back/internal/render"
)

type Handler struct {
	deps     Deps
	settings *notification.SettingsService
	logger   *logging.Logger
}

func NewHandler(deps Deps, logger *logging.Logger) *Handler {
	return &Handler{
		deps:     deps,
		settings: notification.NewSettingsService(deps.Store),
		logger:   logger,
	}
}

func (h *Handler) IngestWebhook(c *gin.Context) {
	var in models.SubmissionCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Errorf("Invalid webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "siteName and formName are required"})
		return
	}

	meta := models.RequestMeta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	if key := apiKey(c); key != nil {
		meta.APIKeyID = key.ID.String()
	}

	res, err := h.deps.Ingester.Ingest(c.Request.Context(), ownerID(c), in, meta)
	if err != nil {
		h.logger.Errorf("Failed to ingest webhook: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
		return
	}

	switch {
	case !res.Accepted:
		c.JSON(http.StatusOK, gin.H{"accepted": false})
	case res.Submission != nil:
		c.JSON(http.StatusCreated, res.Submission)
	default:
		c.JSON(http.StatusAccepted, gin.H{"accepted": true, "jobId": res.JobID})
	}
}

func (h *Handler) ListWebhooks(c *gin.Context) {
	f := models.SubmissionFilter{
		SiteName: c.Query("siteName"),
		FormName: c.Query("formName"),
		Page:     queryInt(c, "page", 1),
		Limit:    queryLimit(c, 10),
	}
	var err error
	if f.StartDate, err = queryDate(c, "startDate"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid startDate"})
		return
	}
	if f.EndDate, err = queryDate(c, "endDate"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid endDate"})
		return
	}

	subs, total, err := h.deps.Store.ListSubmissions(c.Request.Context(), ownerID(c), f)
	if err != nil {
		h.logger.Errorf("Failed to list webhooks: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list webhooks"})
		return
	}
	if subs == nil {
		subs = []models.Submission{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       subs,
		"pagination": models.NewPagination(f.Page, f.Limit, total),
	})
}

func (h *Handler) GetWebhook(c *gin.Context) {
	id, ok := paramUUID(c)
	if !ok {
		return
	}
	sub, err := h.deps.Store.GetSubmission(c.Request.Context(), ownerID(c), id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to get webhook %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get webhook"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) DeleteWebhook(c *gin.Context) {
	id, ok := paramUUID(c)
	if !ok {
		return
	}
	err := h.deps.Store.DeleteSubmission(c.Request.Context(), ownerID(c), id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to delete webhook %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete webhook"})
		return
	}
	h.logger.Infof("Deleted webhook %s", id)
	c.JSON(http.StatusOK, gin.H{"message": "Webhook deleted"})
}

func (h *Handler) GetAnalytics(c *gin.Context) {
	a, err := h.deps.Store.SubmissionAnalytics(c.Request.Context(), ownerID(c))
	if err != nil {
		h.logger.Errorf("Failed to compute analytics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get analytics"})
		return
	}
	c.JSON(http.StatusOK, a)
}

// GetExampleMessage previews the telegram message for the latest submission.
func (h *Handler) GetExampleMessage(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := h.deps.Store.LatestSubmission(ctx, ownerID(c))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No webhooks received yet"})
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to load latest webhook: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build example message"})
		return
	}
	tpl, err := h.deps.Store.GetTemplate(ctx, ownerID(c), models.TemplateTelegram)
	if err != nil {
		h.logger.Warnf("Failed to load telegram template: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"message": render.Message(tpl, sub, nil),
		"webhook": sub,
	})
}

func (h *Handler) GetFields(c *gin.Context) {
	fields, err := h.deps.Store.GetFields(c.Request.Context(), ownerID(c))
	if err != nil {
		h.logger.Errorf("Failed to get fields: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get fields"})
		return
	}
	if fields == nil {
		fields = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"fields": fields})
}

func (h *Handler) ListNotifications(c *gin.Context) {
	page := queryInt(c, "page", 1)
	limit := queryLimit(c, 20)
	deliveries, total, err := h.deps.Store.ListDeliveries(c.Request.Context(), ownerID(c), limit, (page-1)*limit)
	if err != nil {
		h.logger.Errorf("Failed to list deliveries: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get notifications"})
		return
	}
	if deliveries == nil {
		deliveries = []models.Delivery{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       deliveries,
		"pagination": models.NewPagination(page, limit, total),
	})
}

func (h *Handler) GetNotificationStats(c *gin.Context) {
	stats, err := h.deps.Store.DeliveryStats(c.Request.Context(), ownerID(c))
	if err != nil {
		h.logger.Errorf("Failed to count deliveries: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get notification stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func paramUUID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}

// maxPageSize caps every client supplied limit.
const maxPageSize = 100

func queryLimit(c *gin.Context, def int) int {
	if v := queryInt(c, "limit", def); v < maxPageSize {
		return v
	}
	return maxPageSize
}

func queryDate(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("invalid date")
}
