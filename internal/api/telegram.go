package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/db"
)

type revokeTokenRequest struct {
	TokenID string `json:"tokenId" binding:"required"`
}

func (h *Handler) linker(c *gin.Context) (TelegramLinker, bool) {
	if h.deps.Linker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telegram bot is not configured"})
		return nil, false
	}
	return h.deps.Linker, true
}

func (h *Handler) CreateTelegramAuthToken(c *gin.Context) {
	l, ok := h.linker(c)
	if !ok {
		return
	}
	tok, err := l.CreateToken(c.Request.Context(), ownerID(c))
	if err != nil {
		h.logger.Errorf("Failed to create telegram auth token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create auth token"})
		return
	}
	c.JSON(http.StatusCreated, tok)
}

func (h *Handler) ListTelegramAuthTokens(c *gin.Context) {
	l, ok := h.linker(c)
	if !ok {
		return
	}
	list, err := l.ActiveTokens(c.Request.Context(), ownerID(c))
	if err != nil {
		h.logger.Errorf("Failed to list telegram auth tokens: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list auth tokens"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) RevokeTelegramAuthToken(c *gin.Context) {
	l, ok := h.linker(c)
	if !ok {
		return
	}
	var req revokeTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tokenId is required"})
		return
	}
	id, err := uuid.Parse(req.TokenID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tokenId"})
		return
	}
	if err := l.RevokeToken(c.Request.Context(), ownerID(c), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Token not found or already used"})
			return
		}
		h.logger.Errorf("Failed to revoke telegram auth token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Token revoked"})
}

func (h *Handler) GetTelegramAuthStatus(c *gin.Context) {
	l, ok := h.linker(c)
	if !ok {
		return
	}
	status, err := l.Status(c.Request.Context(), ownerID(c))
	if err != nil {
		h.logger.Errorf("Failed to get telegram auth status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get auth status"})
		return
	}
	c.JSON(http.StatusOK, status)
}
