// Package api exposes the HTTP surface: public ingestion, owner management
// routes and queue administration.
package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/dedup"
	"github.com/exedis/omnicore-back/internal/models"
	"github.com/exedis/omnicore-back/internal/queue"
	"github.com/exedis/omnicore-back/internal/services"
)

// Store is the storage surface the handlers read and write.
type Store interface {
	FindActiveAPIKey(ctx context.Context, key string) (*models.APIKey, error)
	TouchAPIKey(ctx context.Context, id uuid.UUID) error

	GetSubmission(ctx context.Context, userID string, id uuid.UUID) (*models.Submission, error)
	LatestSubmission(ctx context.Context, userID string) (*models.Submission, error)
	ListSubmissions(ctx context.Context, userID string, f models.SubmissionFilter) ([]models.Submission, int, error)
	DeleteSubmission(ctx context.Context, userID string, id uuid.UUID) error
	SubmissionAnalytics(ctx context.Context, userID string) (models.SubmissionAnalytics, error)

	GetSettings(ctx context.Context, userID string, channel models.ChannelType) (*models.NotificationSettings, error)
	UpsertSettings(ctx context.Context, s *models.NotificationSettings) error

	GetTemplate(ctx context.Context, userID string, t models.TemplateType) (*models.MessageTemplate, error)
	ListTemplates(ctx context.Context, userID string) ([]models.MessageTemplate, error)
	UpsertTemplate(ctx context.Context, tpl *models.MessageTemplate) error
	SeedDefaultTemplates(ctx context.Context, userID string) error

	GetFields(ctx context.Context, userID string) ([]string, error)
	ListDeliveries(ctx context.Context, userID string, limit, offset int) ([]models.Delivery, int, error)
	DeliveryStats(ctx context.Context, userID string) (models.DeliveryStats, error)
}

// Ingester accepts inbound submissions.
type Ingester interface {
	Ingest(ctx context.Context, ownerID string, in models.SubmissionCreate, meta models.RequestMeta) (services.IngestResult, error)
}

// QueueAdmin inspects and repairs the job queue.
type QueueAdmin interface {
	Stats(ctx context.Context) (queue.Stats, error)
	FailedJobs(ctx context.Context, limit int64) ([]*queue.Job, error)
	CompletedJobs(ctx context.Context, limit int64) ([]*queue.Job, error)
	RetryFailed(ctx context.Context, id string) error
}

// Subscriber opens live event streams.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan models.Event, func(), error)
}

// DedupCache is the introspection surface of the duplicate guard.
type DedupCache interface {
	Stats() dedup.Stats
	Clear()
}

// TelegramLinker manages chat-bot link tokens.
type TelegramLinker interface {
	CreateToken(ctx context.Context, userID string) (*models.TelegramAuthToken, error)
	ActiveTokens(ctx context.Context, userID string) ([]models.TelegramAuthToken, error)
	RevokeToken(ctx context.Context, userID string, id uuid.UUID) error
	Status(ctx context.Context, userID string) (models.TelegramAuthStatus, error)
}

// Deps wires the router. Queue may be nil in sync mode and Linker is nil
// when no bot is configured.
type Deps struct {
	Store    Store
	Ingester Ingester
	Queue    QueueAdmin
	Events   Subscriber
	Dedup    DedupCache
	Linker   TelegramLinker
}
