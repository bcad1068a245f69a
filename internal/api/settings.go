package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exedis/omnicore-back/internal/models"
)

func (h *Handler) GetNotificationStatus(c *gin.Context) {
	st, err := h.settings.Status(c.Request.Context(), ownerID(c))
	if err != nil {
		h.logger.Errorf("Failed to get notification status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get status"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) GetChannelSettings(channel models.ChannelType) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := h.settings.Get(c.Request.Context(), ownerID(c), channel)
		if err != nil {
			h.logger.Errorf("Failed to get %s settings: %v", channel, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get settings"})
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

func (h *Handler) SetChannelEnabled(channel models.ChannelType, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := h.settings.SetEnabled(c.Request.Context(), ownerID(c), channel, enabled)
		if err != nil {
			h.logger.Errorf("Failed to update %s settings: %v", channel, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
			return
		}
		h.logger.Infof("User %s set %s enabled=%t", ownerID(c), channel, enabled)
		c.JSON(http.StatusOK, s)
	}
}

func (h *Handler) UpdateTelegramSettings(c *gin.Context) {
	var upd models.TelegramSettingsUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chatId is required"})
		return
	}
	s, err := h.settings.UpdateTelegram(c.Request.Context(), ownerID(c), upd)
	if err != nil {
		h.logger.Errorf("Failed to update telegram settings: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) UpdateEmailSettings(c *gin.Context) {
	var upd models.EmailSettingsUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emailAddresses is required"})
		return
	}
	s, err := h.settings.UpdateEmail(c.Request.Context(), ownerID(c), upd)
	if err != nil {
		h.logger.Errorf("Failed to update email settings: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

// ListTemplates seeds the defaults on first access.
func (h *Handler) ListTemplates(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.deps.Store.SeedDefaultTemplates(ctx, ownerID(c)); err != nil {
		h.logger.Errorf("Failed to seed templates: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get templates"})
		return
	}
	tpls, err := h.deps.Store.ListTemplates(ctx, ownerID(c))
	if err != nil {
		h.logger.Errorf("Failed to list templates: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get templates"})
		return
	}
	c.JSON(http.StatusOK, tpls)
}

func (h *Handler) GetTemplate(c *gin.Context) {
	t, ok := templateType(c)
	if !ok {
		return
	}
	tpl, err := h.deps.Store.GetTemplate(c.Request.Context(), ownerID(c), t)
	if err != nil {
		h.logger.Errorf("Failed to get %s template: %v", t, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get template"})
		return
	}
	if tpl == nil {
		tpl = &models.MessageTemplate{UserID: ownerID(c), Type: t, Template: models.DefaultTemplates[t]}
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	t, ok := templateType(c)
	if !ok {
		return
	}
	var upd models.MessageTemplateUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "template is required"})
		return
	}
	tpl := &models.MessageTemplate{UserID: ownerID(c), Type: t, Template: upd.Template}
	if err := h.deps.Store.UpsertTemplate(c.Request.Context(), tpl); err != nil {
		h.logger.Errorf("Failed to update %s template: %v", t, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update template"})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func templateType(c *gin.Context) (models.TemplateType, bool) {
	raw := c.Param("type")
	if !models.ValidTemplateType(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown template type"})
		return "", false
	}
	return models.TemplateType(raw), true
}
