package models

import (
	"time"

	"github.com/google/uuid"
)

// TelegramAuthToken is a single-use secret that links a chat to a user
// through the bot's /start deep link.
type TelegramAuthToken struct {
	ID        uuid.UUID  `json:"id"`
	UserID    string     `json:"-"`
	Token     string     `json:"token"`
	AuthLink  string     `json:"authLink,omitempty"`
	ExpiresAt time.Time  `json:"expiresAt"`
	IsUsed    bool       `json:"-"`
	UsedAt    *time.Time `json:"-"`
	ChatID    string     `json:"-"`
	Username  string     `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Usable reports whether the token can still link a chat at now.
func (t *TelegramAuthToken) Usable(now time.Time) bool {
	return !t.IsUsed && now.Before(t.ExpiresAt)
}

// TelegramChat identifies the sender of a bot update.
type TelegramChat struct {
	ChatID    string
	Username  string
	FirstName string
}

// TelegramAuthStatus reports whether a user has a linked chat.
type TelegramAuthStatus struct {
	IsAuthorized bool   `json:"isAuthorized"`
	ChatID       string `json:"chatId,omitempty"`
}

// DeliveryStats counts a user's deliveries by status.
type DeliveryStats struct {
	Total             int `json:"total"`
	Sent              int `json:"sent"`
	Failed            int `json:"failed"`
	Pending           int `json:"pending"`
	TelegramDelivered int `json:"telegramDelivered"`
}
