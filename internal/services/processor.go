// Package services holds the ingestion and processing pipeline that turns an
// inbound submission into stored records, tasks and channel notifications.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
	"github.com/exedis/omnicore-back/internal/notification"
	"github.com/exedis/omnicore-back/internal/queue"
	"github.com/exedis/omnicore-back/internal/render"
)

// SubmissionStore persists submissions. Creating an existing id is a no-op.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub *models.Submission) error
}

// FieldIndex learns the field paths each user has submitted.
type FieldIndex interface {
	MergeFields(ctx context.Context, userID string, paths []string) error
}

// TaskStore resolves the board linked to an API key and creates tasks on it.
type TaskStore interface {
	GetAPIKey(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	FindFirstColumn(ctx context.Context, boardID uuid.UUID) (*models.BoardColumn, error)
	CreateTask(ctx context.Context, task *models.Task) error
	GetTemplate(ctx context.Context, userID string, t models.TemplateType) (*models.MessageTemplate, error)
}

// SettingsLoader loads the channel bundles of a user.
type SettingsLoader interface {
	LoadAll(ctx context.Context, userID string) (notification.Bundles, error)
}

// Dispatcher fans a submission out to every channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, sub *models.Submission, bundles notification.Bundles) []models.Delivery
}

// Publisher delivers live events to connected listeners.
type Publisher interface {
	Publish(userID string, event models.Event)
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Submissions SubmissionStore
	Fields      FieldIndex
	Tasks       TaskStore
	Loader      SettingsLoader
	Dispatcher  Dispatcher
	Publisher   Publisher
}

// Processor runs the full pipeline for one job.
type Processor struct {
	deps   Deps
	logger *logging.Logger
	now    func() time.Time
}

func NewProcessor(deps Deps, logger *logging.Logger) *Processor {
	return &Processor{deps: deps, logger: logger, now: time.Now}
}

// Handle adapts Process to the queue worker signature.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	_, err := p.Process(ctx, job)
	return err
}

// Process persists the submission, indexes its fields, creates a linked task,
// dispatches notifications and publishes a live event, in that order.
// Only a persistence failure is returned; later steps are logged.
func (p *Processor) Process(ctx context.Context, job *queue.Job) (*models.Submission, error) {
	sub := job.Payload.Submission
	if sub.UserID == "" {
		sub.UserID = job.Payload.UserID
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	log := p.logger.WithField("job_id", job.ID).WithField("submission_id", sub.ID.String())

	if err := p.deps.Submissions.CreateSubmission(ctx, &sub); err != nil {
		return nil, fmt.Errorf("failed to persist submission: %w", err)
	}

	if paths := render.Flatten("data", sub.Data); len(paths) > 0 && p.deps.Fields != nil {
		if err := p.deps.Fields.MergeFields(ctx, sub.UserID, paths); err != nil {
			log.Errorf("Failed to update field index: %v", err)
		}
	}

	if p.deps.Tasks != nil {
		if err := p.createTask(ctx, &sub); err != nil {
			log.Errorf("Failed to create task: %v", err)
		}
	}

	bundles, err := p.deps.Loader.LoadAll(ctx, sub.UserID)
	if err != nil {
		log.Errorf("Failed to load notification settings, skipping dispatch: %v", err)
	} else {
		for _, d := range p.deps.Dispatcher.Dispatch(ctx, &sub, bundles) {
			if d.Failed() {
				log.Warnf("Delivery via %s failed: %s", d.Channel, d.Error)
			}
		}
	}

	if p.deps.Publisher != nil {
		p.deps.Publisher.Publish(sub.UserID, models.Event{
			Type:      models.EventNewWebhook,
			Webhook:   &sub,
			Timestamp: p.now(),
		})
	}
	return &sub, nil
}

// createTask files a task on the board linked to the originating API key.
// Submissions without a key, with a key owned by someone else, or whose key
// has no board create nothing.
func (p *Processor) createTask(ctx context.Context, sub *models.Submission) error {
	keyID := sub.APIKeyID()
	if keyID == "" {
		return nil
	}
	id, err := uuid.Parse(keyID)
	if err != nil {
		return fmt.Errorf("invalid api key id %q: %w", keyID, err)
	}
	key, err := p.deps.Tasks.GetAPIKey(ctx, id)
	if err != nil {
		return err
	}
	if key.UserID != sub.UserID {
		p.logger.Warnf("API key %s does not belong to user %s, no task created", keyID, sub.UserID)
		return nil
	}
	if key.BoardID == nil {
		return nil
	}

	var columnID *uuid.UUID
	col, err := p.deps.Tasks.FindFirstColumn(ctx, *key.BoardID)
	if err != nil {
		return err
	}
	if col != nil {
		columnID = &col.ID
	}

	tpl, err := p.deps.Tasks.GetTemplate(ctx, sub.UserID, models.TemplateTask)
	if err != nil {
		p.logger.Warnf("Failed to load task template, using defaults: %v", err)
		tpl = nil
	}
	title, description := render.TaskContent(tpl, sub)

	return p.deps.Tasks.CreateTask(ctx, &models.Task{
		Title:       title,
		Description: description,
		BoardID:     *key.BoardID,
		ColumnID:    columnID,
		WebhookID:   sub.ID,
		Metadata: map[string]interface{}{
			"siteName":    sub.SiteName,
			"formName":    sub.FormName,
			"webhookData": sub.Data,
		},
	})
}
