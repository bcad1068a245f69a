package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/models"
)

// GetTemplate returns userID's template of type t, or nil when none is stored.
func (d *DB) GetTemplate(ctx context.Context, userID string, t models.TemplateType) (*models.MessageTemplate, error) {
	query := `
	SELECT id, user_id, type, template, created_at, updated_at
	FROM message_templates
	WHERE user_id = $1 AND type = $2`

	var tpl models.MessageTemplate
	err := d.Pool.QueryRow(ctx, query, userID, string(t)).Scan(
		&tpl.ID, &tpl.UserID, &tpl.Type, &tpl.Template, &tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if errors.Is(notFound(err), ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s template: %w", t, err)
	}
	return &tpl, nil
}

// ListTemplates returns every template of userID.
func (d *DB) ListTemplates(ctx context.Context, userID string) ([]models.MessageTemplate, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT id, user_id, type, template, created_at, updated_at
	FROM message_templates
	WHERE user_id = $1
	ORDER BY type`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	list := []models.MessageTemplate{}
	for rows.Next() {
		var tpl models.MessageTemplate
		if err := rows.Scan(&tpl.ID, &tpl.UserID, &tpl.Type, &tpl.Template, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		list = append(list, tpl)
	}
	return list, rows.Err()
}

// UpsertTemplate replaces the template text of tpl.Type for tpl.UserID.
func (d *DB) UpsertTemplate(ctx context.Context, tpl *models.MessageTemplate) error {
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	query := `
	INSERT INTO message_templates (id, user_id, type, template, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $5)
	ON CONFLICT (user_id, type) DO UPDATE
	SET template = EXCLUDED.template, updated_at = EXCLUDED.updated_at
	RETURNING id, created_at, updated_at`

	err := d.Pool.QueryRow(ctx, query, tpl.ID, tpl.UserID, string(tpl.Type), tpl.Template, time.Now().UTC()).
		Scan(&tpl.ID, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert %s template: %w", tpl.Type, err)
	}
	return nil
}

// SeedDefaultTemplates stores the default templates userID does not have yet.
func (d *DB) SeedDefaultTemplates(ctx context.Context, userID string) error {
	for t, text := range models.DefaultTemplates {
		_, err := d.Pool.Exec(ctx, `
		INSERT INTO message_templates (id, user_id, type, template)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, type) DO NOTHING`, uuid.New(), userID, string(t), text)
		if err != nil {
			return fmt.Errorf("failed to seed %s template: %w", t, err)
		}
	}
	return nil
}
