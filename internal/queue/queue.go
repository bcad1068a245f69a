// Package queue is a Redis backed job queue with at-least-once delivery,
// exponential retry backoff and retention of permanently failed jobs.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/exedis/omnicore-back/internal/logging"
)

const (
	// Redis keys
	JobKeyPrefix     = "webhook:job:"
	PendingKey       = "webhook:jobs:pending"
	ProcessingKey    = "webhook:jobs:processing"
	DelayedKey       = "webhook:jobs:delayed"
	FailedKey        = "webhook:jobs:failed"
	CompletedKey     = "webhook:jobs:completed"
	StatsKey         = "webhook:jobs:stats"
	statEnqueued     = "enqueued"
	statRetried      = "retried"
	statRecovered    = "recovered"
	defaultPoll      = time.Second
	defaultPromote   = 500 * time.Millisecond
	defaultStuckScan = time.Minute
)

// ErrJobNotFound is returned when a job id has no stored data.
var ErrJobNotFound = errors.New("job not found")

// Handler processes one job attempt. A returned error fails the attempt.
type Handler func(ctx context.Context, job *Job) error

// Options tunes a Queue.
type Options struct {
	Workers           int
	MaxAttempts       int
	BackoffBase       time.Duration
	CompletedHistory  int
	ProcessingTimeout time.Duration
	// PollInterval bounds how long a worker blocks waiting for a job.
	PollInterval time.Duration
	// PromoteInterval is how often due retries are moved back to pending.
	PromoteInterval time.Duration
	// StuckInterval is how often the processing list is scanned for abandoned jobs.
	StuckInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.CompletedHistory <= 0 {
		o.CompletedHistory = 100
	}
	if o.ProcessingTimeout <= 0 {
		o.ProcessingTimeout = time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPoll
	}
	if o.PromoteInterval <= 0 {
		o.PromoteInterval = defaultPromote
	}
	if o.StuckInterval <= 0 {
		o.StuckInterval = defaultStuckScan
	}
}

// Stats summarises queue state.
type Stats struct {
	Counters   map[string]int64 `json:"counters"`
	Pending    int64            `json:"pending"`
	Processing int64            `json:"processing"`
	Delayed    int64            `json:"delayed"`
	Failed     int64            `json:"failed"`
	Completed  int64            `json:"completed"`
}

// Queue manages webhook jobs using Redis.
type Queue struct {
	client redis.UniversalClient
	logger *logging.Logger
	opts   Options
	now    func() time.Time

	handler Handler
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New creates a Queue on top of client.
func New(client redis.UniversalClient, logger *logging.Logger, opts Options) *Queue {
	opts.withDefaults()
	return &Queue{
		client: client,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// Enqueue stores job and pushes it onto the pending list.
func (q *Queue) Enqueue(ctx context.Context, job *Job) (string, error) {
	now := q.now()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.opts.MaxAttempts
	}
	if job.Backoff.Delay <= 0 {
		job.Backoff = Backoff{Type: BackoffExponential, Delay: q.opts.BackoffBase}
	}
	job.Status = JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, JobKeyPrefix+job.ID, data, 0)
		pipe.LPush(ctx, PendingKey, job.ID)
		pipe.HIncrBy(ctx, StatsKey, statEnqueued, 1)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.WithField("job_id", job.ID).Infof("Enqueued job for user %s", job.Payload.UserID)
	return job.ID, nil
}

// Dequeue moves the next pending job to the processing list and marks a new
// attempt. It returns nil, nil when no job arrived within the poll interval.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	id, err := q.client.BRPopLPush(ctx, PendingKey, ProcessingKey, q.opts.PollInterval).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	job, err := q.GetJob(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		// Orphaned id: nothing to process
		_ = q.client.LRem(ctx, ProcessingKey, 1, id).Err()
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if err != nil {
		// Left on the processing list; the stuck sweeper picks it up
		return nil, err
	}

	job.MarkAsProcessing(q.now())
	if err := q.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Complete marks a processing job as done and keeps it in the bounded history.
func (q *Queue) Complete(ctx context.Context, id string) error {
	job, err := q.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return q.complete(ctx, job)
}

func (q *Queue) complete(ctx context.Context, job *Job) error {
	job.MarkAsCompleted(q.now())
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, ProcessingKey, 1, job.ID)
		pipe.Del(ctx, JobKeyPrefix+job.ID)
		pipe.LPush(ctx, CompletedKey, data)
		pipe.LTrim(ctx, CompletedKey, 0, int64(q.opts.CompletedHistory-1))
		pipe.HIncrBy(ctx, StatsKey, string(JobStatusCompleted), 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}
	return nil
}

// Fail records a failed attempt. The job is rescheduled with backoff while it
// has attempts left, otherwise it is parked on the failed list.
func (q *Queue) Fail(ctx context.Context, id string, cause error) (*Job, error) {
	job, err := q.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return job, q.fail(ctx, job, cause)
}

func (q *Queue) fail(ctx context.Context, job *Job, cause error) error {
	now := q.now()
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	log := q.logger.WithField("job_id", job.ID)
	if job.CanRetry() {
		next := now.Add(job.Backoff.NextDelay(job.Attempts))
		job.MarkAsRetrying(msg, next, now)
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, JobKeyPrefix+job.ID, data, 0)
			pipe.LRem(ctx, ProcessingKey, 1, job.ID)
			pipe.ZAdd(ctx, DelayedKey, redis.Z{Score: float64(next.UnixMilli()), Member: job.ID})
			pipe.HIncrBy(ctx, StatsKey, statRetried, 1)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to schedule retry for job %s: %w", job.ID, err)
		}
		log.Warnf("Attempt %d/%d failed, retrying at %s: %s", job.Attempts, job.MaxAttempts, next.Format(time.RFC3339), msg)
		return nil
	}

	job.MarkAsFailed(msg, now)
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, JobKeyPrefix+job.ID, data, 0)
		pipe.LRem(ctx, ProcessingKey, 1, job.ID)
		pipe.LPush(ctx, FailedKey, job.ID)
		pipe.HIncrBy(ctx, StatsKey, string(JobStatusFailed), 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to park job %s: %w", job.ID, err)
	}
	log.Errorf("Job permanently failed after %d attempts: %s", job.Attempts, msg)
	return nil
}

// Start launches the worker pool, the retry promoter and the stuck job sweeper.
func (q *Queue) Start(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.handler = handler
	q.stopCh = make(chan struct{})

	q.logger.Infof("Starting %d queue workers", q.opts.Workers)
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(2)
	go q.promoter()
	go q.stuckSweeper()
}

// Stop signals every goroutine and waits for in-flight jobs.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	close(q.stopCh)
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("All queue workers stopped")
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-q.stopCh
		cancel()
	}()

	for {
		select {
		case <-q.stopCh:
			q.logger.Debugf("Worker %d stopped", id)
			return
		default:
		}

		job, err := q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Errorf("Worker %d: %v", id, err)
			select {
			case <-q.stopCh:
				return
			case <-time.After(q.opts.PollInterval):
			}
			continue
		}
		if job == nil {
			continue
		}
		q.process(job)
	}
}

// process runs one attempt. It uses its own context so a stopping worker
// still records the outcome of the attempt it started.
func (q *Queue) process(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.ProcessingTimeout)
	defer cancel()

	log := q.logger.WithField("job_id", job.ID)
	log.Infof("Processing job (attempt %d/%d)", job.Attempts, job.MaxAttempts)

	if err := q.run(ctx, job); err != nil {
		if ferr := q.fail(context.Background(), job, err); ferr != nil {
			log.Errorf("Recording failure: %v", ferr)
		}
		return
	}
	if err := q.complete(context.Background(), job); err != nil {
		log.Errorf("Recording completion: %v", err)
		return
	}
	log.Infof("Job completed")
}

func (q *Queue) run(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return q.handler(ctx, job)
}

func (q *Queue) promoter() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.PromoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			if _, err := q.PromoteDue(context.Background()); err != nil {
				q.logger.Errorf("Promoting delayed jobs: %v", err)
			}
		}
	}
}

// promoteScript moves one id from the delayed set to the pending list in a
// single step. It returns 0 when another promoter already claimed the id.
var promoteScript = redis.NewScript(`
if redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("LPUSH", KEYS[2], ARGV[1])
return 1
`)

// PromoteDue moves retries whose backoff has elapsed back onto the pending list.
// An id stays in the delayed set until it has been pushed, so a failed step is
// picked up again on the next tick.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	max := strconv.FormatInt(q.now().UnixMilli(), 10)
	ids, err := q.client.ZRangeByScore(ctx, DelayedKey, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	moved := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			q.logger.Errorf("Dropping delayed job %s: %v", id, err)
			q.client.ZRem(ctx, DelayedKey, id)
			continue
		}
		if err != nil {
			return moved, err
		}
		job.Status = JobStatusPending
		job.UpdatedAt = q.now()
		if err := q.save(ctx, job); err != nil {
			return moved, err
		}
		n, err := promoteScript.Run(ctx, q.client, []string{DelayedKey, PendingKey}, id).Int()
		if err != nil {
			return moved, fmt.Errorf("failed to requeue job %s: %w", id, err)
		}
		moved += n
	}
	return moved, nil
}

func (q *Queue) stuckSweeper() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.StuckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			if n, err := q.RecoverStuck(context.Background(), 2*q.opts.ProcessingTimeout); err != nil {
				q.logger.Errorf("Stuck sweeper: %v", err)
			} else if n > 0 {
				q.logger.Warnf("Recovered %d stuck jobs", n)
			}
		}
	}
}

// RecoverStuck requeues jobs that have been processing for longer than maxAge,
// which happens when a worker dies mid attempt.
func (q *Queue) RecoverStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, ProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list processing jobs: %w", err)
	}

	now := q.now()
	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			_ = q.client.LRem(ctx, ProcessingKey, 1, id).Err()
			continue
		}
		if err != nil {
			return recovered, err
		}
		if job.Status == JobStatusCompleted || job.Status == JobStatusFailed {
			_ = q.client.LRem(ctx, ProcessingKey, 1, id).Err()
			continue
		}
		started := job.UpdatedAt
		if job.Status == JobStatusProcessing && job.ProcessedAt != nil {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}

		job.Status = JobStatusPending
		job.ErrorMsg = "recovered by sweeper"
		job.UpdatedAt = now
		data, err := json.Marshal(job)
		if err != nil {
			return recovered, fmt.Errorf("failed to marshal job: %w", err)
		}
		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, JobKeyPrefix+job.ID, data, 0)
			pipe.LRem(ctx, ProcessingKey, 1, job.ID)
			pipe.RPush(ctx, PendingKey, job.ID)
			pipe.HIncrBy(ctx, StatsKey, statRecovered, 1)
			return nil
		})
		if err != nil {
			return recovered, fmt.Errorf("failed to recover job %s: %w", job.ID, err)
		}
		recovered++
	}
	return recovered, nil
}

// GetJob loads a stored job.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, JobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// FailedJobs returns up to limit permanently failed jobs, newest first.
func (q *Queue) FailedJobs(ctx context.Context, limit int64) ([]*Job, error) {
	ids, err := q.client.LRange(ctx, FailedKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// CompletedJobs returns the retained completion history, newest first.
func (q *Queue) CompletedJobs(ctx context.Context, limit int64) ([]*Job, error) {
	raw, err := q.client.LRange(ctx, CompletedKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list completed jobs: %w", err)
	}
	jobs := make([]*Job, 0, len(raw))
	for _, item := range raw {
		var job Job
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			q.logger.Warnf("Skipping unreadable completed job: %v", err)
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// RetryFailed moves a permanently failed job back to pending with a fresh
// attempt budget.
func (q *Queue) RetryFailed(ctx context.Context, id string) error {
	job, err := q.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != JobStatusFailed {
		return fmt.Errorf("job %s is %s, not failed", id, job.Status)
	}

	job.Status = JobStatusPending
	job.Attempts = 0
	job.ErrorMsg = ""
	job.FailedAt = nil
	job.UpdatedAt = q.now()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, JobKeyPrefix+job.ID, data, 0)
		pipe.LRem(ctx, FailedKey, 1, job.ID)
		pipe.LPush(ctx, PendingKey, job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to retry job %s: %w", id, err)
	}
	q.logger.WithField("job_id", id).Infof("Failed job requeued")
	return nil
}

// Stats returns counters and list sizes.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	counters, err := q.client.HGetAll(ctx, StatsKey).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read job stats: %w", err)
	}
	stats := Stats{Counters: make(map[string]int64, len(counters))}
	for k, v := range counters {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			stats.Counters[k] = n
		}
	}

	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, PendingKey)
	processing := pipe.LLen(ctx, ProcessingKey)
	delayed := pipe.ZCard(ctx, DelayedKey)
	failed := pipe.LLen(ctx, FailedKey)
	completed := pipe.LLen(ctx, CompletedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to read queue sizes: %w", err)
	}
	stats.Pending = pending.Val()
	stats.Processing = processing.Val()
	stats.Delayed = delayed.Val()
	stats.Failed = failed.Val()
	stats.Completed = completed.Val()
	return stats, nil
}

func (q *Queue) save(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	return nil
}
