package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffNextDelay(t *testing.T) {
	b := Backoff{Type: BackoffExponential, Delay: 2 * time.Second}
	assert.Equal(t, 2*time.Second, b.NextDelay(1))
	assert.Equal(t, 4*time.Second, b.NextDelay(2))
	assert.Equal(t, 8*time.Second, b.NextDelay(3))
	assert.Equal(t, 2*time.Second, b.NextDelay(0))

	fixed := Backoff{Type: "fixed", Delay: time.Second}
	assert.Equal(t, time.Second, fixed.NextDelay(3))
}

func TestJobLifecycle(t *testing.T) {
	now := time.Now()
	job := &Job{ID: "j1", Status: JobStatusPending, MaxAttempts: 2}

	job.MarkAsProcessing(now)
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.True(t, job.CanRetry())

	job.MarkAsRetrying("boom", now.Add(time.Second), now)
	assert.Equal(t, JobStatusRetrying, job.Status)
	assert.NotNil(t, job.NextRunAt)

	job.MarkAsProcessing(now)
	assert.Equal(t, 2, job.Attempts)
	assert.False(t, job.CanRetry())
	assert.Nil(t, job.NextRunAt)

	job.MarkAsFailed("boom", now)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.ErrorMsg)
	assert.NotNil(t, job.FailedAt)
}
