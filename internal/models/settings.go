package models

import (
	"time"

	"github.com/google/uuid"
)

// ChannelType identifies a notification delivery path.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelEmail    ChannelType = "email"
)

// Channels lists every channel the dispatcher fans out to.
var Channels = []ChannelType{ChannelTelegram, ChannelEmail}

// SMTPSettings are per-user SMTP credentials.
type SMTPSettings struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Secure bool   `json:"secure"`
	User   string `json:"user"`
	Pass   string `json:"pass"`
}

// Complete reports whether the settings can authenticate against a server.
func (s *SMTPSettings) Complete() bool {
	return s != nil && s.Host != "" && s.User != "" && s.Pass != ""
}

// ChannelConfig is stored as jsonb next to the enablement flag.
type ChannelConfig struct {
	ChatID         string        `json:"chatId,omitempty"`
	ParseMode      string        `json:"parseMode,omitempty"`
	EmailAddresses []string      `json:"emailAddresses,omitempty"`
	SMTPEnabled    bool          `json:"smtpEnabled,omitempty"`
	SMTP           *SMTPSettings `json:"smtp,omitempty"`
}

// NotificationSettings is one row per user per channel.
type NotificationSettings struct {
	ID        uuid.UUID     `json:"id"`
	UserID    string        `json:"userId"`
	Channel   ChannelType   `json:"channel"`
	IsEnabled bool          `json:"isEnabled"`
	Config    ChannelConfig `json:"config"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// TelegramSettingsUpdate is the body of PUT /message-settings/telegram.
type TelegramSettingsUpdate struct {
	ChatID    string `json:"chatId" binding:"required"`
	ParseMode string `json:"parseMode,omitempty"`
	IsEnabled *bool  `json:"isEnabled,omitempty"`
}

// EmailSettingsUpdate is the body of PUT /message-settings/email.
type EmailSettingsUpdate struct {
	EmailAddresses string `json:"emailAddresses" binding:"required"` // comma separated
	IsEnabled      *bool  `json:"isEnabled,omitempty"`
	IsSMTPEnabled  bool   `json:"isSmtpEnabled"`
	SMTPHost       string `json:"smtpHost,omitempty"`
	SMTPPort       int    `json:"smtpPort,omitempty"`
	SMTPSecure     bool   `json:"smtpSecure,omitempty"`
	SMTPUser       string `json:"smtpUser,omitempty"`
	SMTPPass       string `json:"smtpPass,omitempty"`
}

// NotificationStatus summarises channel enablement for a user.
type NotificationStatus struct {
	Telegram bool `json:"telegram"`
	Email    bool `json:"email"`
}
