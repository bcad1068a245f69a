package providers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/models"
)

type memoryRecorder struct {
	mu      sync.Mutex
	created []models.Delivery
	updated []models.Delivery
}

func (r *memoryRecorder) CreateDelivery(_ context.Context, d *models.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, *d)
	return nil
}

func (r *memoryRecorder) UpdateDeliveryStatus(_ context.Context, d *models.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, *d)
	return nil
}

func submission() *models.Submission {
	return &models.Submission{
		ID:        uuid.New(),
		UserID:    "user-1",
		SiteName:  "acme",
		FormName:  "contact",
		Data:      map[string]interface{}{"name": "Jo <3", "email": "jo@x.com"},
		CreatedAt: time.Now(),
	}
}
