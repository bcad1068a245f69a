package queue

import (
	"time"

	"github.com/exedis/omnicore-back/internal/models"
)

// JobStatus represents the lifecycle of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// BackoffExponential doubles the delay after every failed attempt.
const BackoffExponential = "exponential"

// Backoff describes how long to wait before the next attempt.
type Backoff struct {
	Type  string        `json:"type"`
	Delay time.Duration `json:"delay"`
}

// NextDelay returns the wait after the given number of failed attempts.
// With a 2s delay: 2s, 4s, 8s.
func (b Backoff) NextDelay(failedAttempts int) time.Duration {
	if failedAttempts < 1 {
		failedAttempts = 1
	}
	if b.Type != BackoffExponential {
		return b.Delay
	}
	delay := b.Delay
	for i := 1; i < failedAttempts; i++ {
		delay *= 2
	}
	return delay
}

// Payload is the submission to be processed on behalf of a user.
type Payload struct {
	UserID     string            `json:"userId"`
	Submission models.Submission `json:"submission"`
}

// Job is a queued unit of processing wrapping one submission.
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Payload     Payload    `json:"payload"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	Backoff     Backoff    `json:"backoff"`
	ErrorMsg    string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	NextRunAt   *time.Time `json:"nextRunAt,omitempty"`
}

// NewJob wraps a submission for userID.
func NewJob(userID string, sub models.Submission) *Job {
	return &Job{
		Status:  JobStatusPending,
		Payload: Payload{UserID: userID, Submission: sub},
	}
}

// CanRetry reports whether the job has attempts left.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// MarkAsProcessing starts a new attempt.
func (j *Job) MarkAsProcessing(now time.Time) {
	j.Status = JobStatusProcessing
	j.Attempts++
	j.ProcessedAt = &now
	j.NextRunAt = nil
	j.UpdatedAt = now
}

// MarkAsCompleted marks the job as successfully finished.
func (j *Job) MarkAsCompleted(now time.Time) {
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.ErrorMsg = ""
	j.UpdatedAt = now
}

// MarkAsRetrying schedules the next attempt.
func (j *Job) MarkAsRetrying(errMsg string, next time.Time, now time.Time) {
	j.Status = JobStatusRetrying
	j.ErrorMsg = errMsg
	j.NextRunAt = &next
	j.UpdatedAt = now
}

// MarkAsFailed marks the job as permanently failed.
func (j *Job) MarkAsFailed(errMsg string, now time.Time) {
	j.Status = JobStatusFailed
	j.ErrorMsg = errMsg
	j.FailedAt = &now
	j.NextRunAt = nil
	j.UpdatedAt = now
}
