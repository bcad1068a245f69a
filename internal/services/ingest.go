package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/config"
	"github.com/exedis/omnicore-back/internal/dedup"
	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
	"github.com/exedis/omnicore-back/internal/queue"
)

// Enqueuer accepts jobs for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) (string, error)
}

// IngestResult reports what happened to an inbound submission. A duplicate
// is not accepted and carries no job.
type IngestResult struct {
	Accepted   bool
	JobID      string
	Submission *models.Submission
}

// Ingestor turns a validated payload into a queued job, or processes it inline
// in sync mode.
type Ingestor struct {
	guard     *dedup.Guard
	queue     Enqueuer
	processor *Processor
	mode      string
	logger    *logging.Logger
	now       func() time.Time
}

func NewIngestor(guard *dedup.Guard, q Enqueuer, processor *Processor, mode string, logger *logging.Logger) *Ingestor {
	if mode == "" {
		mode = config.ModeQueued
	}
	return &Ingestor{
		guard:     guard,
		queue:     q,
		processor: processor,
		mode:      mode,
		logger:    logger,
		now:       time.Now,
	}
}

// Ingest stamps request metadata on the submission and hands it on.
func (i *Ingestor) Ingest(ctx context.Context, ownerID string, in models.SubmissionCreate, meta models.RequestMeta) (IngestResult, error) {
	res := i.guard.Check(ownerID, in.SiteName, in.FormName, in.Data)
	if res.IsDuplicate {
		i.logger.Infof("Duplicate submission from user %s for %s/%s ignored", ownerID, in.SiteName, in.FormName)
		return IngestResult{Accepted: false}, nil
	}

	sub := i.build(ownerID, in, meta)
	job := queue.NewJob(ownerID, sub)

	if i.mode == config.ModeSync {
		job.ID = sub.ID.String()
		job.MarkAsProcessing(i.now())
		processed, err := i.processor.Process(ctx, job)
		if err != nil {
			i.guard.Forget(res.Key)
			return IngestResult{}, err
		}
		return IngestResult{Accepted: true, JobID: job.ID, Submission: processed}, nil
	}

	id, err := i.queue.Enqueue(ctx, job)
	if err != nil {
		i.guard.Forget(res.Key)
		return IngestResult{}, fmt.Errorf("failed to enqueue submission: %w", err)
	}
	return IngestResult{Accepted: true, JobID: id}, nil
}

func (i *Ingestor) build(ownerID string, in models.SubmissionCreate, meta models.RequestMeta) models.Submission {
	now := i.now()
	metadata := make(map[string]interface{}, len(in.Metadata)+4)
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	// The key id is only ever taken from the authenticated request.
	delete(metadata, models.MetaAPIKeyID)
	metadata[models.MetaReceivedAt] = now.UTC().Format(time.RFC3339Nano)
	metadata[models.MetaIP] = orUnknown(meta.IP)
	metadata[models.MetaUserAgent] = orUnknown(meta.UserAgent)
	if meta.APIKeyID != "" {
		metadata[models.MetaAPIKeyID] = meta.APIKeyID
	}

	data := in.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	return models.Submission{
		ID:                uuid.New(),
		UserID:            ownerID,
		SiteName:          in.SiteName,
		FormName:          in.FormName,
		Data:              data,
		AdvertisingParams: in.AdvertisingParams,
		Metadata:          metadata,
		CreatedAt:         now,
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
