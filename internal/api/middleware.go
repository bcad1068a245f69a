package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/exedis/omnicore-back/internal/db"
	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
)

// Context keys set by the auth middlewares.
const (
	ctxOwnerID = "ownerID"
	ctxAPIKey  = "apiKey"
)

// Header names.
const (
	HeaderAPIKey     = "x-api-key"
	HeaderUserID     = "X-User-ID"
	HeaderAdminToken = "X-Admin-Token"
)

func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger.Infof("Request: %s %s, Status: %d, Latency: %v", method, path, status, latency)
	}
}

// APIKeyAuth resolves the x-api-key header (or apiKey query parameter, for
// browser event streams) to an active key and its owner.
func APIKeyAuth(store Store, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderAPIKey)
		if raw == "" {
			raw = c.Query("apiKey")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key is required"})
			return
		}

		key, err := store.FindActiveAPIKey(c.Request.Context(), raw)
		if errors.Is(err, db.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		if err != nil {
			logger.Errorf("Failed to verify api key: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify API key"})
			return
		}

		if err := store.TouchAPIKey(c.Request.Context(), key.ID); err != nil {
			logger.Warnf("Failed to record api key usage: %v", err)
		}
		c.Set(ctxAPIKey, key)
		c.Set(ctxOwnerID, key.UserID)
		c.Next()
	}
}

// OwnerAuth trusts the user id forwarded by the gateway.
func OwnerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(ctxOwnerID, userID)
		c.Next()
	}
}

// AdminAuth guards operational routes. An empty token disables them.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderAdminToken)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

func ownerID(c *gin.Context) string {
	return c.GetString(ctxOwnerID)
}

func apiKey(c *gin.Context) *models.APIKey {
	v, ok := c.Get(ctxAPIKey)
	if !ok {
		return nil
	}
	key, _ := v.(*models.APIKey)
	return key
}
