package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/models"
)

// FindFirstColumn returns the lowest-position column of a board, or nil if the board has none.
func (d *DB) FindFirstColumn(ctx context.Context, boardID uuid.UUID) (*models.BoardColumn, error) {
	var col models.BoardColumn
	err := d.Pool.QueryRow(ctx, `
	SELECT id, board_id, name, position
	FROM board_columns
	WHERE board_id = $1
	ORDER BY position ASC
	LIMIT 1`, boardID).Scan(&col.ID, &col.BoardID, &col.Name, &col.Position)
	if errors.Is(notFound(err), ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find first column of board %s: %w", boardID, err)
	}
	return &col, nil
}

// CreateTask inserts a task.
func (d *DB) CreateTask(ctx context.Context, task *models.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	err := d.Pool.QueryRow(ctx, `
	INSERT INTO tasks (id, title, description, board_id, column_id, webhook_id, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING created_at`,
		task.ID, task.Title, task.Description, task.BoardID, task.ColumnID, task.WebhookID, task.Metadata,
	).Scan(&task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}
