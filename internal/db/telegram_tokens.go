package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/models"
)

const authTokenColumns = `id, user_id, token, expires_at, is_used, used_at, telegram_chat_id, telegram_username, created_at`

// CreateAuthToken stores a new link token.
func (d *DB) CreateAuthToken(ctx context.Context, t *models.TelegramAuthToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := d.Pool.QueryRow(ctx, `
	INSERT INTO telegram_auth_tokens (id, user_id, token, expires_at)
	VALUES ($1, $2, $3, $4)
	RETURNING created_at`, t.ID, t.UserID, t.Token, t.ExpiresAt).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert auth token: %w", err)
	}
	return nil
}

// GetAuthToken looks a token up by its secret, or returns nil when unknown.
func (d *DB) GetAuthToken(ctx context.Context, token string) (*models.TelegramAuthToken, error) {
	row := d.Pool.QueryRow(ctx, `SELECT `+authTokenColumns+` FROM telegram_auth_tokens WHERE token = $1`, token)
	t, err := scanAuthToken(row)
	if errors.Is(notFound(err), ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth token: %w", err)
	}
	return t, nil
}

// UseAuthToken marks the token used by chatID. It returns false when the
// token was already consumed.
func (d *DB) UseAuthToken(ctx context.Context, id uuid.UUID, chat models.TelegramChat) (bool, error) {
	tag, err := d.Pool.Exec(ctx, `
	UPDATE telegram_auth_tokens
	SET is_used = TRUE, used_at = NOW(), telegram_chat_id = $2, telegram_username = $3
	WHERE id = $1 AND NOT is_used`, id, chat.ChatID, chat.Username)
	if err != nil {
		return false, fmt.Errorf("failed to use auth token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ActiveAuthTokens lists userID's unused tokens that expire after now, newest first.
func (d *DB) ActiveAuthTokens(ctx context.Context, userID string, now time.Time) ([]models.TelegramAuthToken, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT `+authTokenColumns+`
	FROM telegram_auth_tokens
	WHERE user_id = $1 AND NOT is_used AND expires_at > $2
	ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth tokens: %w", err)
	}
	defer rows.Close()

	list := []models.TelegramAuthToken{}
	for rows.Next() {
		t, err := scanAuthToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auth token: %w", err)
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

// RevokeAuthToken burns one of userID's unused tokens.
func (d *DB) RevokeAuthToken(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := d.Pool.Exec(ctx, `
	UPDATE telegram_auth_tokens
	SET is_used = TRUE, used_at = NOW()
	WHERE id = $1 AND user_id = $2 AND NOT is_used`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke auth token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAuthToken(row rowScanner) (*models.TelegramAuthToken, error) {
	var t models.TelegramAuthToken
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.IsUsed, &t.UsedAt, &t.ChatID, &t.Username, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
