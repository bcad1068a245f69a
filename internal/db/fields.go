package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MergeFields adds paths to userID's known field list. The union happens in a
// single statement so concurrent jobs for one user do not lose writes.
func (d *DB) MergeFields(ctx context.Context, userID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	query := `
	INSERT INTO message_fields (id, user_id, fields)
	VALUES ($1, $2, to_jsonb($3::text[]))
	ON CONFLICT (user_id) DO UPDATE
	SET fields = (
		SELECT COALESCE(jsonb_agg(DISTINCT f ORDER BY f), '[]'::jsonb)
		FROM jsonb_array_elements_text(message_fields.fields || EXCLUDED.fields) AS f
	),
	updated_at = NOW()`

	if _, err := d.Pool.Exec(ctx, query, uuid.New(), userID, paths); err != nil {
		return fmt.Errorf("failed to merge fields: %w", err)
	}
	return nil
}

// GetFields returns userID's known field paths.
func (d *DB) GetFields(ctx context.Context, userID string) ([]string, error) {
	var fields []string
	err := d.Pool.QueryRow(ctx, `SELECT fields FROM message_fields WHERE user_id = $1`, userID).Scan(&fields)
	if errors.Is(notFound(err), ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fields: %w", err)
	}
	return fields, nil
}
