package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
	"github.com/exedis/omnicore-back/internal/providers"
)

// Dispatcher sends one submission over every channel in parallel.
type Dispatcher struct {
	senders []providers.Sender
	logger  *logging.Logger
}

func NewDispatcher(logger *logging.Logger, senders ...providers.Sender) *Dispatcher {
	return &Dispatcher{senders: senders, logger: logger}
}

// Dispatch starts every sender and waits for all of them. A sender that
// panics is reported as a failed delivery; it never affects its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, sub *models.Submission, bundles Bundles) []models.Delivery {
	results := make([]models.Delivery, len(d.senders))
	var wg sync.WaitGroup
	for i, sender := range d.senders {
		wg.Add(1)
		go func(i int, sender providers.Sender) {
			defer wg.Done()
			results[i] = d.dispatchOne(ctx, sender, sub, bundles[sender.Channel()])
		}(i, sender)
	}
	wg.Wait()

	var sent, failed int
	for _, r := range results {
		switch r.Status {
		case models.DeliveryFailed:
			failed++
		case models.DeliverySkipped:
		default:
			sent++
		}
	}
	d.logger.WithField("submission_id", sub.ID.String()).
		Infof("Dispatch finished: %d delivered, %d failed, %d channels", sent, failed, len(results))
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sender providers.Sender, sub *models.Submission, b Bundle) (res models.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("Sender %s panicked: %v", sender.Channel(), r)
			res = models.Delivery{
				SubmissionID: sub.ID,
				UserID:       sub.UserID,
				Channel:      sender.Channel(),
				Status:       models.DeliveryFailed,
				Error:        fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	return sender.Dispatch(ctx, sub, b.Settings, b.Template)
}
