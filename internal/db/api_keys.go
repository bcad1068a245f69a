package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/models"
)

const apiKeyColumns = `id, user_id, name, key, is_active, board_id, usage_count, last_used_at`

func scanAPIKey(row rowScanner) (*models.APIKey, error) {
	var k models.APIKey
	if err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.Key, &k.IsActive, &k.BoardID, &k.UsageCount, &k.LastUsedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

// FindActiveAPIKey looks up an active key by its secret value.
func (d *DB) FindActiveAPIKey(ctx context.Context, key string) (*models.APIKey, error) {
	k, err := scanAPIKey(d.Pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key = $1 AND is_active = TRUE`, key))
	if err != nil {
		return nil, fmt.Errorf("failed to find api key: %w", notFound(err))
	}
	return k, nil
}

// GetAPIKey returns a key by id.
func (d *DB) GetAPIKey(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	k, err := scanAPIKey(d.Pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get api key %s: %w", id, notFound(err))
	}
	return k, nil
}

// TouchAPIKey records a successful use of a key.
func (d *DB) TouchAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := d.Pool.Exec(ctx,
		`UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to update api key usage: %w", err)
	}
	return nil
}
