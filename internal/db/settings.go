package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/models"
)

// GetSettings returns userID's settings for channel, or nil when none are stored.
func (d *DB) GetSettings(ctx context.Context, userID string, channel models.ChannelType) (*models.NotificationSettings, error) {
	query := `
	SELECT id, user_id, channel, is_enabled, config, created_at, updated_at
	FROM notification_settings
	WHERE user_id = $1 AND channel = $2`

	var s models.NotificationSettings
	err := d.Pool.QueryRow(ctx, query, userID, string(channel)).Scan(
		&s.ID,
		&s.UserID,
		&s.Channel,
		&s.IsEnabled,
		&s.Config,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(notFound(err), ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s settings: %w", channel, err)
	}
	return &s, nil
}

// UpsertSettings writes s, creating the row on first write.
func (d *DB) UpsertSettings(ctx context.Context, s *models.NotificationSettings) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	query := `
	INSERT INTO notification_settings (id, user_id, channel, is_enabled, config, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $6)
	ON CONFLICT (user_id, channel) DO UPDATE
	SET is_enabled = EXCLUDED.is_enabled, config = EXCLUDED.config, updated_at = EXCLUDED.updated_at
	RETURNING id, created_at, updated_at`

	err := d.Pool.QueryRow(ctx, query, s.ID, s.UserID, string(s.Channel), s.IsEnabled, s.Config, now).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert %s settings: %w", s.Channel, err)
	}
	return nil
}
