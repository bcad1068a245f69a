package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/models"
)

const submissionColumns = `id, user_id, site_name, form_name, data, advertising_params, metadata, created_at`

// CreateSubmission inserts sub. Re-inserting the same id is a no-op, so a
// redelivered job never creates a second row. CreatedAt is set to the stored value.
func (d *DB) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	if sub.Data == nil {
		sub.Data = map[string]interface{}{}
	}
	query := `
	INSERT INTO webhooks (` + submissionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
	RETURNING created_at`

	err := d.Pool.QueryRow(ctx, query,
		sub.ID,
		sub.UserID,
		sub.SiteName,
		sub.FormName,
		sub.Data,
		nullableJSON(sub.AdvertisingParams),
		nullableJSON(sub.Metadata),
		sub.CreatedAt,
	).Scan(&sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert webhook: %w", err)
	}
	return nil
}

// GetSubmission returns one of userID's submissions.
func (d *DB) GetSubmission(ctx context.Context, userID string, id uuid.UUID) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM webhooks WHERE id = $1 AND user_id = $2`
	sub, err := scanSubmission(d.Pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook %s: %w", id, notFound(err))
	}
	return sub, nil
}

// LatestSubmission returns userID's most recent submission.
func (d *DB) LatestSubmission(ctx context.Context, userID string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM webhooks WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`
	sub, err := scanSubmission(d.Pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get latest webhook: %w", notFound(err))
	}
	return sub, nil
}

// ListSubmissions returns a page of userID's submissions and the total match count.
func (d *DB) ListSubmissions(ctx context.Context, userID string, f models.SubmissionFilter) ([]models.Submission, int, error) {
	where := ` WHERE user_id = $1`
	args := []interface{}{userID}
	if f.SiteName != "" {
		args = append(args, "%"+f.SiteName+"%")
		where += fmt.Sprintf(" AND site_name ILIKE $%d", len(args))
	}
	if f.FormName != "" {
		args = append(args, "%"+f.FormName+"%")
		where += fmt.Sprintf(" AND form_name ILIKE $%d", len(args))
	}
	if f.StartDate != nil {
		args = append(args, *f.StartDate)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.EndDate != nil {
		args = append(args, *f.EndDate)
		where += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	var total int
	if err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM webhooks`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count webhooks: %w", err)
	}

	query := `SELECT ` + submissionColumns + ` FROM webhooks` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	list := []models.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan webhook: %w", err)
		}
		list = append(list, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate webhooks: %w", err)
	}
	return list, total, nil
}

// DeleteSubmission removes a submission; linked tasks cascade.
func (d *DB) DeleteSubmission(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := d.Pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SubmissionAnalytics counts userID's submissions per site, form and advertising parameter.
func (d *DB) SubmissionAnalytics(ctx context.Context, userID string) (models.SubmissionAnalytics, error) {
	out := models.SubmissionAnalytics{
		SiteAnalytics:        map[string]int{},
		FormAnalytics:        map[string]int{},
		AdvertisingAnalytics: map[string]map[string]int{},
	}

	if err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM webhooks WHERE user_id = $1`, userID).Scan(&out.Total); err != nil {
		return out, fmt.Errorf("failed to count webhooks: %w", err)
	}
	if err := d.countBy(ctx, `SELECT site_name, COUNT(*) FROM webhooks WHERE user_id = $1 GROUP BY site_name`, userID, out.SiteAnalytics); err != nil {
		return out, err
	}
	if err := d.countBy(ctx, `SELECT form_name, COUNT(*) FROM webhooks WHERE user_id = $1 GROUP BY form_name`, userID, out.FormAnalytics); err != nil {
		return out, err
	}

	rows, err := d.Pool.Query(ctx, `
	SELECT p.key, p.value, COUNT(*)
	FROM webhooks w, jsonb_each_text(w.advertising_params) p
	WHERE w.user_id = $1
	GROUP BY p.key, p.value`, userID)
	if err != nil {
		return out, fmt.Errorf("failed to aggregate advertising params: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		var n int
		if err := rows.Scan(&key, &value, &n); err != nil {
			return out, fmt.Errorf("failed to scan advertising params: %w", err)
		}
		if out.AdvertisingAnalytics[key] == nil {
			out.AdvertisingAnalytics[key] = map[string]int{}
		}
		out.AdvertisingAnalytics[key][value] = n
	}
	return out, rows.Err()
}

func (d *DB) countBy(ctx context.Context, query, userID string, into map[string]int) error {
	rows, err := d.Pool.Query(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to aggregate webhooks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan aggregate: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var sub models.Submission
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.SiteName,
		&sub.FormName,
		&sub.Data,
		&sub.AdvertisingParams,
		&sub.Metadata,
		&sub.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// nullableJSON keeps empty maps as SQL NULL.
func nullableJSON(m map[string]interface{}) interface{} {
	if len(m) == 0 {
		return nil
	}
	return m
}
