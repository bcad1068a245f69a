package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/models"
)

// CreateDelivery records a delivery attempt.
func (d *DB) CreateDelivery(ctx context.Context, del *models.Delivery) error {
	if del.ID == uuid.Nil {
		del.ID = uuid.New()
	}
	now := time.Now().UTC()
	del.CreatedAt, del.UpdatedAt = now, now
	_, err := d.Pool.Exec(ctx, `
	INSERT INTO notification_deliveries (id, submission_id, user_id, channel, status, recipient, message_id, error, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		del.ID, del.SubmissionID, del.UserID, string(del.Channel), string(del.Status),
		del.Recipient, del.MessageID, del.Error, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery: %w", err)
	}
	return nil
}

// UpdateDeliveryStatus moves a delivery to its terminal status.
func (d *DB) UpdateDeliveryStatus(ctx context.Context, del *models.Delivery) error {
	tag, err := d.Pool.Exec(ctx, `
	UPDATE notification_deliveries
	SET status = $1, message_id = $2, error = $3, updated_at = NOW()
	WHERE id = $4`, string(del.Status), del.MessageID, del.Error, del.ID)
	if err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery %s: %w", del.ID, ErrNotFound)
	}
	return nil
}

// ListDeliveries returns a page of userID's delivery history and the total count.
func (d *DB) ListDeliveries(ctx context.Context, userID string, limit, offset int) ([]models.Delivery, int, error) {
	var total int
	if err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM notification_deliveries WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count deliveries: %w", err)
	}

	rows, err := d.Pool.Query(ctx, `
	SELECT id, submission_id, user_id, channel, status, recipient, message_id, error, created_at, updated_at
	FROM notification_deliveries
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	list := []models.Delivery{}
	for rows.Next() {
		var del models.Delivery
		if err := rows.Scan(
			&del.ID, &del.SubmissionID, &del.UserID, &del.Channel, &del.Status,
			&del.Recipient, &del.MessageID, &del.Error, &del.CreatedAt, &del.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan delivery: %w", err)
		}
		list = append(list, del)
	}
	return list, total, rows.Err()
}

// DeliveryStats counts userID's deliveries by status.
func (d *DB) DeliveryStats(ctx context.Context, userID string) (models.DeliveryStats, error) {
	var s models.DeliveryStats
	err := d.Pool.QueryRow(ctx, `
	SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE status = $2),
		COUNT(*) FILTER (WHERE status = $3),
		COUNT(*) FILTER (WHERE status = $4),
		COUNT(*) FILTER (WHERE status = $5)
	FROM notification_deliveries
	WHERE user_id = $1`,
		userID,
		string(models.DeliverySent),
		string(models.DeliveryFailed),
		string(models.DeliveryPending),
		string(models.DeliveryTelegramDelivered),
	).Scan(&s.Total, &s.Sent, &s.Failed, &s.Pending, &s.TelegramDelivered)
	if err != nil {
		return s, fmt.Errorf("failed to count deliveries: %w", err)
	}
	return s, nil
}
