package providers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
)

// Sender delivers a submission over one channel. Dispatch never returns an
// error: every outcome, including failures, is described by the Delivery.
type Sender interface {
	Channel() models.ChannelType
	Dispatch(ctx context.Context, sub *models.Submission, settings *models.NotificationSettings, tpl *models.MessageTemplate) models.Delivery
}

// DeliveryRecorder persists delivery attempts.
type DeliveryRecorder interface {
	CreateDelivery(ctx context.Context, d *models.Delivery) error
	UpdateDeliveryStatus(ctx context.Context, d *models.Delivery) error
}

// NopRecorder discards delivery records.
type NopRecorder struct{}

func (NopRecorder) CreateDelivery(context.Context, *models.Delivery) error       { return nil }
func (NopRecorder) UpdateDeliveryStatus(context.Context, *models.Delivery) error { return nil }

func skipped(channel models.ChannelType, sub *models.Submission) models.Delivery {
	return models.Delivery{
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		Channel:      channel,
		Status:       models.DeliverySkipped,
	}
}

// track runs send as one PENDING -> success|FAILED delivery. Recording
// failures are logged and never change the outcome of the send.
func track(ctx context.Context, rec DeliveryRecorder, logger *logging.Logger, d models.Delivery,
	success models.DeliveryStatus, send func() (messageID string, err error)) models.Delivery {
	d.ID = uuid.New()
	d.Status = models.DeliveryPending
	log := logger.WithField("submission_id", d.SubmissionID.String()).WithField("channel", string(d.Channel))

	recorded := true
	if err := rec.CreateDelivery(ctx, &d); err != nil {
		recorded = false
		log.Errorf("Failed to record pending delivery: %v", err)
	}

	messageID, err := send()
	d.UpdatedAt = time.Now().UTC()
	if err != nil {
		d.Status = models.DeliveryFailed
		d.Error = err.Error()
		log.Errorf("Delivery to %s failed: %v", d.Recipient, err)
	} else {
		d.Status = success
		d.MessageID = messageID
		log.Infof("Delivered to %s", d.Recipient)
	}

	if recorded {
		if err := rec.UpdateDeliveryStatus(ctx, &d); err != nil {
			log.Errorf("Failed to record delivery status %s: %v", d.Status, err)
		}
	}
	return d
}
