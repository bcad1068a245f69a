package models

import (
	"time"

	"github.com/google/uuid"
)

// TemplateType identifies what a message template renders.
type TemplateType string

const (
	TemplateTelegram TemplateType = "telegram"
	TemplateEmail    TemplateType = "email"
	TemplateTask     TemplateType = "task"
)

// ValidTemplateType reports whether t is a known template type.
func ValidTemplateType(t string) bool {
	switch TemplateType(t) {
	case TemplateTelegram, TemplateEmail, TemplateTask:
		return true
	}
	return false
}

// DefaultTemplates are seeded for every user.
var DefaultTemplates = map[TemplateType]string{
	TemplateTelegram: "New request,\n Name: {{data.name}};\n Phone: {{data.phone}}",
	TemplateEmail:    "New request,\n Name: {{data.name}};\n Phone: {{data.phone}}",
	TemplateTask:     "[TITLE]Request from {{data.name}}[DESCRIPTION]Site: {{siteName}}\nForm: {{formName}}\nPhone: {{data.phone}}",
}

// MessageTemplate is one row per user per template type.
type MessageTemplate struct {
	ID        uuid.UUID    `json:"id"`
	UserID    string       `json:"userId"`
	Type      TemplateType `json:"type"`
	Template  string       `json:"template"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// MessageTemplateUpdate is the body of PUT /message-templates/:type.
type MessageTemplateUpdate struct {
	Template string `json:"template" binding:"required"`
}
