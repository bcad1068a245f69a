// Package kafka feeds submissions published on a topic into the ingestion
// pipeline.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
	"github.com/exedis/omnicore-back/internal/services"
	"github.com/exedis/omnicore-back/internal/utils"
)

// Request metadata recorded for stream-sourced submissions.
const (
	SourceIP        = "kafka"
	SourceUserAgent = "kafka-consumer"
)

const (
	ingestAttempts   = 3
	ingestRetryDelay = time.Second
)

// Ingester accepts a submission on behalf of an owner.
type Ingester interface {
	Ingest(ctx context.Context, ownerID string, in models.SubmissionCreate, meta models.RequestMeta) (services.IngestResult, error)
}

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the payload expected on the topic.
type Message struct {
	OwnerID           string                 `json:"ownerId"`
	APIKeyID          string                 `json:"apiKeyId,omitempty"`
	SiteName          string                 `json:"siteName"`
	FormName          string                 `json:"formName"`
	Data              map[string]interface{} `json:"data"`
	AdvertisingParams map[string]interface{} `json:"advertisingParams,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

func (m Message) validate() error {
	var missing []string
	if m.OwnerID == "" {
		missing = append(missing, "ownerId")
	}
	if m.SiteName == "" {
		missing = append(missing, "siteName")
	}
	if m.FormName == "" {
		missing = append(missing, "formName")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type Consumer struct {
	reader   Reader
	ingester Ingester
	logger   *logging.Logger
}

// NewConsumer joins groupID on topic, starting from the earliest offset.
func NewConsumer(brokers []string, topic, groupID string, ingester Ingester, logger *logging.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return NewConsumerWithReader(reader, ingester, logger)
}

func NewConsumerWithReader(reader Reader, ingester Ingester, logger *logging.Logger) *Consumer {
	return &Consumer{reader: reader, ingester: ingester, logger: logger}
}

// Start reads until ctx is cancelled. Every message is committed once it has
// been handled, including malformed ones.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(ingestRetryDelay):
				}
				continue
			}

			if err := c.Handle(ctx, msg.Value); err != nil {
				c.logger.Errorf("Dropping message at offset %d: %v", msg.Offset, err)
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.logger.Errorf("Commit offset %d failed: %v", msg.Offset, err)
			}
		}
	}()
}

// Handle decodes one message and ingests it, retrying transient failures.
func (c *Consumer) Handle(ctx context.Context, value []byte) error {
	var m Message
	if err := json.Unmarshal(value, &m); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	if err := m.validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	in := models.SubmissionCreate{
		SiteName:          m.SiteName,
		FormName:          m.FormName,
		Data:              m.Data,
		AdvertisingParams: m.AdvertisingParams,
		Metadata:          m.Metadata,
	}
	meta := models.RequestMeta{IP: SourceIP, UserAgent: SourceUserAgent, APIKeyID: m.APIKeyID}

	var res services.IngestResult
	err := utils.Retry(ctx, c.logger, ingestAttempts, ingestRetryDelay, func() error {
		var err error
		res, err = c.ingester.Ingest(ctx, m.OwnerID, in, meta)
		return err
	})
	if err != nil {
		return err
	}
	if !res.Accepted {
		c.logger.Debugf("Duplicate message for %s/%s skipped", m.SiteName, m.FormName)
		return nil
	}
	c.logger.WithField("job_id", res.JobID).Infof("Ingested message for user %s", m.OwnerID)
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
