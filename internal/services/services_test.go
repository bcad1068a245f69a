package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exedis/omnicore-back/internal/config"
	"github.com/exedis/omnicore-back/internal/dedup"
	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
	"github.com/exedis/omnicore-back/internal/notification"
	"github.com/exedis/omnicore-back/internal/queue"
)

type fakeStore struct {
	mu       sync.Mutex
	failures int
	calls    int
	saved    map[uuid.UUID]models.Submission
	fields   []string
	apiKeys  map[uuid.UUID]*models.APIKey
	columns  map[uuid.UUID]*models.BoardColumn
	tasks    []models.Task
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		saved:   map[uuid.UUID]models.Submission{},
		apiKeys: map[uuid.UUID]*models.APIKey{},
		columns: map[uuid.UUID]*models.BoardColumn{},
	}
}

func (f *fakeStore) CreateSubmission(_ context.Context, sub *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures < 0 || f.calls <= f.failures {
		return errors.New("connection refused")
	}
	f.saved[sub.ID] = *sub
	return nil
}

func (f *fakeStore) MergeFields(_ context.Context, _ string, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields = append(f.fields, paths...)
	return nil
}

func (f *fakeStore) GetAPIKey(_ context.Context, id uuid.UUID) (*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.apiKeys[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return key, nil
}

func (f *fakeStore) FindFirstColumn(_ context.Context, boardID uuid.UUID) (*models.BoardColumn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.columns[boardID], nil
}

func (f *fakeStore) CreateTask(_ context.Context, task *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, *task)
	return nil
}

func (f *fakeStore) GetTemplate(context.Context, string, models.TemplateType) (*models.MessageTemplate, error) {
	return nil, nil
}

func (f *fakeStore) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticLoader struct {
	bundles notification.Bundles
	err     error
}

func (l staticLoader) LoadAll(context.Context, string) (notification.Bundles, error) {
	return l.bundles, l.err
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls int
}

func (d *recordingDispatcher) Dispatch(context.Context, *models.Submission, notification.Bundles) []models.Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(_ string, e models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type stubSender struct {
	channel models.ChannelType
	panics  bool
	mu      sync.Mutex
	sent    int
}

func (s *stubSender) Channel() models.ChannelType { return s.channel }

func (s *stubSender) Dispatch(_ context.Context, sub *models.Submission, _ *models.NotificationSettings, _ *models.MessageTemplate) models.Delivery {
	if s.panics {
		panic("telegram exploded")
	}
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return models.Delivery{SubmissionID: sub.ID, Channel: s.channel, Status: models.DeliverySent}
}

func newProcessor(store *fakeStore, dispatcher Dispatcher, pub Publisher) *Processor {
	return NewProcessor(Deps{
		Submissions: store,
		Fields:      store,
		Tasks:       store,
		Loader:      staticLoader{bundles: notification.Bundles{}},
		Dispatcher:  dispatcher,
		Publisher:   pub,
	}, logging.NewNop())
}

func testSubmission(meta map[string]interface{}) models.Submission {
	return models.Submission{
		ID:       uuid.New(),
		UserID:   "user-1",
		SiteName: "acme",
		FormName: "contact",
		Data:     map[string]interface{}{"name": "Jo", "contact": map[string]interface{}{"phone": "+1"}},
		Metadata: meta,
	}
}

func TestProcessRunsPipeline(t *testing.T) {
	store := newFakeStore()
	dispatcher := &recordingDispatcher{}
	pub := &recordingPublisher{}
	p := newProcessor(store, dispatcher, pub)

	sub, err := p.Process(context.Background(), queue.NewJob("user-1", testSubmission(nil)))
	require.NoError(t, err)
	require.NotNil(t, sub)

	assert.Len(t, store.saved, 1)
	assert.Equal(t, []string{"data.contact.phone", "data.name"}, store.fields)
	assert.Empty(t, store.tasks)
	assert.Equal(t, 1, dispatcher.calls)
	require.Equal(t, 1, pub.count())
	assert.Equal(t, models.EventNewWebhook, pub.events[0].Type)
	assert.Equal(t, sub.ID, pub.events[0].Webhook.ID)
}

func TestProcessPersistenceFailureStopsPipeline(t *testing.T) {
	store := newFakeStore()
	store.failures = -1
	dispatcher := &recordingDispatcher{}
	pub := &recordingPublisher{}
	p := newProcessor(store, dispatcher, pub)

	_, err := p.Process(context.Background(), queue.NewJob("user-1", testSubmission(nil)))
	require.Error(t, err)
	assert.Zero(t, dispatcher.calls)
	assert.Zero(t, pub.count())
}

func TestProcessSettingsFailureSkipsDispatch(t *testing.T) {
	store := newFakeStore()
	dispatcher := &recordingDispatcher{}
	pub := &recordingPublisher{}
	p := NewProcessor(Deps{
		Submissions: store,
		Loader:      staticLoader{err: errors.New("db down")},
		Dispatcher:  dispatcher,
		Publisher:   pub,
	}, logging.NewNop())

	_, err := p.Process(context.Background(), queue.NewJob("user-1", testSubmission(nil)))
	require.NoError(t, err)
	assert.Zero(t, dispatcher.calls)
	assert.Equal(t, 1, pub.count())
}

func TestProcessCreatesTaskForLinkedKey(t *testing.T) {
	store := newFakeStore()
	keyID, boardID, colID := uuid.New(), uuid.New(), uuid.New()
	store.apiKeys[keyID] = &models.APIKey{ID: keyID, UserID: "user-1", BoardID: &boardID}
	store.columns[boardID] = &models.BoardColumn{ID: colID, BoardID: boardID}
	p := newProcessor(store, &recordingDispatcher{}, nil)

	sub, err := p.Process(context.Background(), queue.NewJob("user-1",
		testSubmission(map[string]interface{}{models.MetaAPIKeyID: keyID.String()})))
	require.NoError(t, err)

	require.Len(t, store.tasks, 1)
	task := store.tasks[0]
	assert.Equal(t, "Request from Jo", task.Title)
	assert.Equal(t, boardID, task.BoardID)
	require.NotNil(t, task.ColumnID)
	assert.Equal(t, colID, *task.ColumnID)
	assert.Equal(t, sub.ID, task.WebhookID)
	assert.Equal(t, "acme", task.Metadata["siteName"])
}

func TestProcessSkipsTaskWithoutBoard(t *testing.T) {
	store := newFakeStore()
	keyID := uuid.New()
	store.apiKeys[keyID] = &models.APIKey{ID: keyID, UserID: "user-1"}
	p := newProcessor(store, &recordingDispatcher{}, nil)

	_, err := p.Process(context.Background(), queue.NewJob("user-1",
		testSubmission(map[string]interface{}{models.MetaAPIKeyID: keyID.String()})))
	require.NoError(t, err)
	assert.Empty(t, store.tasks)
}

func TestProcessSkipsTaskForForeignKey(t *testing.T) {
	store := newFakeStore()
	keyID, boardID := uuid.New(), uuid.New()
	store.apiKeys[keyID] = &models.APIKey{ID: keyID, UserID: "user-2", BoardID: &boardID}
	store.columns[boardID] = &models.BoardColumn{ID: uuid.New(), BoardID: boardID}
	p := newProcessor(store, &recordingDispatcher{}, nil)

	_, err := p.Process(context.Background(), queue.NewJob("user-1",
		testSubmission(map[string]interface{}{models.MetaAPIKeyID: keyID.String()})))
	require.NoError(t, err)
	assert.Empty(t, store.tasks)
	assert.Len(t, store.saved, 1)
}

func TestProcessIsolatesChannels(t *testing.T) {
	store := newFakeStore()
	tg := &stubSender{channel: models.ChannelTelegram, panics: true}
	em := &stubSender{channel: models.ChannelEmail}
	pub := &recordingPublisher{}
	p := newProcessor(store, notification.NewDispatcher(logging.NewNop(), tg, em), pub)

	_, err := p.Process(context.Background(), queue.NewJob("user-1", testSubmission(nil)))
	require.NoError(t, err)
	assert.Equal(t, 1, em.sent)
	assert.Equal(t, 1, pub.count())
}

func newRedisQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return queue.New(client, logging.NewNop(), queue.Options{
		Workers:         1,
		BackoffBase:     20 * time.Millisecond,
		PromoteInterval: 10 * time.Millisecond,
	})
}

func TestQueuedJobRetriesPersistence(t *testing.T) {
	q := newRedisQueue(t)
	store := newFakeStore()
	store.failures = 2
	pub := &recordingPublisher{}
	p := newProcessor(store, &recordingDispatcher{}, pub)

	q.Start(p.Handle)
	defer q.Stop()

	id, err := q.Enqueue(context.Background(), queue.NewJob("user-1", testSubmission(nil)))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return pub.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, store.attempts())

	require.Eventually(t, func() bool {
		_, err := q.GetJob(context.Background(), id)
		return errors.Is(err, queue.ErrJobNotFound)
	}, time.Second, 10*time.Millisecond)
}

func TestQueuedJobExhaustsAttempts(t *testing.T) {
	q := newRedisQueue(t)
	store := newFakeStore()
	store.failures = -1
	p := newProcessor(store, &recordingDispatcher{}, nil)

	q.Start(p.Handle)
	defer q.Stop()

	id, err := q.Enqueue(context.Background(), queue.NewJob("user-1", testSubmission(nil)))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := q.GetJob(context.Background(), id)
		return err == nil && job.Status == queue.JobStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	job, err := q.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 3, job.Attempts)
	assert.Contains(t, job.ErrorMsg, "connection refused")
	assert.Equal(t, 3, store.attempts())
}

type memoryQueue struct {
	jobs []*queue.Job
}

func (m *memoryQueue) Enqueue(_ context.Context, job *queue.Job) (string, error) {
	job.ID = uuid.New().String()
	m.jobs = append(m.jobs, job)
	return job.ID, nil
}

func TestIngestDeduplicates(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	guard := dedup.New(time.Minute, time.Minute, logging.NewNop(), dedup.WithClock(clock))
	mq := &memoryQueue{}
	in := NewIngestor(guard, mq, nil, config.ModeQueued, logging.NewNop())
	in.now = clock

	payload := models.SubmissionCreate{SiteName: "acme", FormName: "contact", Data: map[string]interface{}{"name": "Jo"}}
	meta := models.RequestMeta{IP: "10.0.0.1", APIKeyID: "key-1"}

	first, err := in.Ingest(context.Background(), "user-1", payload, meta)
	require.NoError(t, err)
	assert.True(t, first.Accepted)
	assert.NotEmpty(t, first.JobID)

	second, err := in.Ingest(context.Background(), "user-1", payload, meta)
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Empty(t, second.JobID)
	require.Len(t, mq.jobs, 1)

	now = now.Add(61 * time.Second)
	third, err := in.Ingest(context.Background(), "user-1", payload, meta)
	require.NoError(t, err)
	assert.True(t, third.Accepted)
	assert.NotEqual(t, first.JobID, third.JobID)
	require.Len(t, mq.jobs, 2)

	sub := mq.jobs[0].Payload.Submission
	assert.Equal(t, "user-1", sub.UserID)
	assert.Equal(t, "10.0.0.1", sub.Metadata[models.MetaIP])
	assert.Equal(t, "unknown", sub.Metadata[models.MetaUserAgent])
	assert.Equal(t, "key-1", sub.Metadata[models.MetaAPIKeyID])
	assert.Equal(t, "2026-01-01T12:00:00Z", sub.Metadata[models.MetaReceivedAt])
	assert.NotEqual(t, sub.ID, mq.jobs[1].Payload.Submission.ID)
}

type flakyQueue struct {
	memoryQueue
	failures int
	calls    int
}

func (f *flakyQueue) Enqueue(ctx context.Context, job *queue.Job) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("redis: connection reset")
	}
	return f.memoryQueue.Enqueue(ctx, job)
}

func TestIngestReleasesKeyWhenEnqueueFails(t *testing.T) {
	guard := dedup.New(time.Minute, time.Minute, logging.NewNop())
	fq := &flakyQueue{failures: 1}
	in := NewIngestor(guard, fq, nil, config.ModeQueued, logging.NewNop())
	payload := models.SubmissionCreate{SiteName: "acme", FormName: "contact", Data: map[string]interface{}{"name": "Jo"}}

	_, err := in.Ingest(context.Background(), "user-1", payload, models.RequestMeta{})
	require.Error(t, err)
	assert.Zero(t, guard.Stats().CacheSize)

	res, err := in.Ingest(context.Background(), "user-1", payload, models.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	require.Len(t, fq.jobs, 1)

	dup, err := in.Ingest(context.Background(), "user-1", payload, models.RequestMeta{})
	require.NoError(t, err)
	assert.False(t, dup.Accepted)
}

func TestIngestReleasesKeyWhenSyncProcessFails(t *testing.T) {
	store := newFakeStore()
	store.failures = 1
	p := newProcessor(store, &recordingDispatcher{}, nil)
	guard := dedup.New(time.Minute, time.Minute, logging.NewNop())
	in := NewIngestor(guard, nil, p, config.ModeSync, logging.NewNop())
	payload := models.SubmissionCreate{SiteName: "acme", FormName: "contact"}

	_, err := in.Ingest(context.Background(), "user-1", payload, models.RequestMeta{})
	require.Error(t, err)

	res, err := in.Ingest(context.Background(), "user-1", payload, models.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Len(t, store.saved, 1)
}

func TestIngestIgnoresCallerSuppliedKeyID(t *testing.T) {
	guard := dedup.New(time.Minute, time.Minute, logging.NewNop())
	mq := &memoryQueue{}
	in := NewIngestor(guard, mq, nil, config.ModeQueued, logging.NewNop())

	_, err := in.Ingest(context.Background(), "user-1", models.SubmissionCreate{
		SiteName: "acme",
		FormName: "contact",
		Metadata: map[string]interface{}{models.MetaAPIKeyID: "forged", "page": "/contact"},
	}, models.RequestMeta{})
	require.NoError(t, err)
	require.Len(t, mq.jobs, 1)
	meta := mq.jobs[0].Payload.Submission.Metadata
	assert.NotContains(t, meta, models.MetaAPIKeyID)
	assert.Equal(t, "/contact", meta["page"])
}

func TestIngestSyncModeProcessesInline(t *testing.T) {
	store := newFakeStore()
	p := newProcessor(store, &recordingDispatcher{}, nil)
	guard := dedup.New(time.Minute, time.Minute, logging.NewNop())
	in := NewIngestor(guard, nil, p, config.ModeSync, logging.NewNop())

	res, err := in.Ingest(context.Background(), "user-1",
		models.SubmissionCreate{SiteName: "acme", FormName: "contact"}, models.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	require.NotNil(t, res.Submission)
	assert.Equal(t, "acme", res.Submission.SiteName)
	assert.NotNil(t, res.Submission.Data)
	assert.Len(t, store.saved, 1)
}
