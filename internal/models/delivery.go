package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus tracks a single channel delivery attempt.
type DeliveryStatus string

const (
	DeliveryPending           DeliveryStatus = "PENDING"
	DeliverySent              DeliveryStatus = "SENT"
	DeliveryFailed            DeliveryStatus = "FAILED"
	DeliveryTelegramDelivered DeliveryStatus = "TELEGRAM_DELIVERED"
	// DeliverySkipped is never persisted; the channel was disabled or had no target.
	DeliverySkipped DeliveryStatus = "SKIPPED"
)

// Delivery is the outcome of dispatching one submission over one channel.
type Delivery struct {
	ID           uuid.UUID      `json:"id"`
	SubmissionID uuid.UUID      `json:"submissionId"`
	UserID       string         `json:"userId"`
	Channel      ChannelType    `json:"channel"`
	Status       DeliveryStatus `json:"status"`
	Recipient    string         `json:"recipient,omitempty"`
	MessageID    string         `json:"messageId,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Failed reports whether the delivery ended in failure.
func (d Delivery) Failed() bool {
	return d.Status == DeliveryFailed
}
