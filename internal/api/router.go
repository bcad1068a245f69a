package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exedis/omnicore-back/internal/config"
	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
)

func NewRouter(deps Deps, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := NewHandler(deps, logger)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group(cfg.API.BasePath)

	public := api.Group("/public", APIKeyAuth(deps.Store, logger))
	{
		public.POST("/webhooks", h.IngestWebhook)
		public.GET("/webhooks/events", h.StreamEvents)
		public.GET("/webhooks/events/ws", h.WebSocketEvents)
	}

	owner := api.Group("", OwnerAuth())
	{
		// Webhooks
		owner.GET("/webhooks", h.ListWebhooks)
		owner.GET("/webhooks/analytics", h.GetAnalytics)
		owner.GET("/webhooks/example-message", h.GetExampleMessage)
		owner.GET("/webhooks/events", h.StreamEvents)
		owner.GET("/webhooks/:id", h.GetWebhook)
		owner.DELETE("/webhooks/:id", h.DeleteWebhook)

		// Message settings
		owner.GET("/message-settings/status", h.GetNotificationStatus)
		owner.GET("/message-settings/telegram", h.GetChannelSettings(models.ChannelTelegram))
		owner.PUT("/message-settings/telegram", h.UpdateTelegramSettings)
		owner.POST("/message-settings/telegram/enable", h.SetChannelEnabled(models.ChannelTelegram, true))
		owner.POST("/message-settings/telegram/disable", h.SetChannelEnabled(models.ChannelTelegram, false))
		owner.GET("/message-settings/email", h.GetChannelSettings(models.ChannelEmail))
		owner.PUT("/message-settings/email", h.UpdateEmailSettings)
		owner.POST("/message-settings/email/enable", h.SetChannelEnabled(models.ChannelEmail, true))
		owner.POST("/message-settings/email/disable", h.SetChannelEnabled(models.ChannelEmail, false))

		// Templates and fields
		owner.GET("/message-templates", h.ListTemplates)
		owner.GET("/message-templates/:type", h.GetTemplate)
		owner.PUT("/message-templates/:type", h.UpdateTemplate)
		owner.GET("/message-fields", h.GetFields)

		// Delivery history
		owner.GET("/notifications", h.ListNotifications)
		owner.GET("/notifications/stats", h.GetNotificationStats)

		// Chat-bot account linking
		owner.POST("/telegram-bot/auth-token", h.CreateTelegramAuthToken)
		owner.GET("/telegram-bot/auth-tokens", h.ListTelegramAuthTokens)
		owner.POST("/telegram-bot/revoke-token", h.RevokeTelegramAuthToken)
		owner.GET("/telegram-bot/auth-status", h.GetTelegramAuthStatus)
	}

	admin := api.Group("/queue", AdminAuth(cfg.API.AdminToken))
	{
		admin.GET("/stats", h.QueueStats)
		admin.GET("/failed", h.FailedJobs)
		admin.POST("/failed/:id/retry", h.RetryJob)
		admin.GET("/completed", h.CompletedJobs)
		admin.GET("/dedup", h.DedupStats)
		admin.DELETE("/dedup", h.ClearDedup)
	}
	return r
}
