package models

import "time"

const (
	// EventNewWebhook is published after a submission is processed.
	EventNewWebhook = "new_webhook"
	// EventTelegramAuth is published when a chat-bot account gets linked.
	EventTelegramAuth = "telegram_auth_status"
)

// Event is pushed to live subscribers of a user.
type Event struct {
	Type         string      `json:"type"`
	Webhook      *Submission `json:"webhook,omitempty"`
	IsAuthorized *bool       `json:"isAuthorized,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}
