package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey authenticates public webhook posts. BoardID links the key to a board.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	UserID     string     `json:"userId"`
	Name       string     `json:"name"`
	Key        string     `json:"-"`
	IsActive   bool       `json:"isActive"`
	BoardID    *uuid.UUID `json:"boardId,omitempty"`
	UsageCount int        `json:"usageCount"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// BoardColumn is a kanban column.
type BoardColumn struct {
	ID       uuid.UUID `json:"id"`
	BoardID  uuid.UUID `json:"boardId"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
}

// Task is a kanban card generated from a submission.
type Task struct {
	ID          uuid.UUID              `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	BoardID     uuid.UUID              `json:"boardId"`
	ColumnID    *uuid.UUID             `json:"columnId,omitempty"`
	WebhookID   uuid.UUID              `json:"webhookId"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}
