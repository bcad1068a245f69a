package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	settings  map[models.ChannelType]*models.NotificationSettings
	templates map[models.TemplateType]*models.MessageTemplate
	err       error
	upserts   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		settings:  map[models.ChannelType]*models.NotificationSettings{},
		templates: map[models.TemplateType]*models.MessageTemplate{},
	}
}

func (f *fakeStore) GetSettings(_ context.Context, _ string, ch models.ChannelType) (*models.NotificationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.settings[ch], nil
}

func (f *fakeStore) GetTemplate(_ context.Context, _ string, t models.TemplateType) (*models.MessageTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.templates[t], nil
}

func (f *fakeStore) UpsertSettings(_ context.Context, s *models.NotificationSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	cp := *s
	f.settings[s.Channel] = &cp
	return nil
}

func TestLoadAllReturnsEveryChannel(t *testing.T) {
	store := newFakeStore()
	store.settings[models.ChannelTelegram] = &models.NotificationSettings{Channel: models.ChannelTelegram, IsEnabled: true}
	store.templates[models.TemplateEmail] = &models.MessageTemplate{Type: models.TemplateEmail, Template: "hi"}

	bundles, err := NewLoader(store).LoadAll(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, bundles, 2)

	assert.True(t, bundles[models.ChannelTelegram].Settings.IsEnabled)
	assert.Nil(t, bundles[models.ChannelTelegram].Template)
	assert.Nil(t, bundles[models.ChannelEmail].Settings)
	assert.Equal(t, "hi", bundles[models.ChannelEmail].Template.Template)
}

func TestLoadAllPropagatesErrors(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("db down")

	_, err := NewLoader(store).LoadAll(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

type stubSender struct {
	channel models.ChannelType
	delay   time.Duration
	panics  bool
	calls   int
	mu      sync.Mutex
}

func (s *stubSender) Channel() models.ChannelType { return s.channel }

func (s *stubSender) Dispatch(_ context.Context, sub *models.Submission, settings *models.NotificationSettings, _ *models.MessageTemplate) models.Delivery {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panics {
		panic("boom")
	}
	time.Sleep(s.delay)
	return models.Delivery{SubmissionID: sub.ID, Channel: s.channel, Status: models.DeliverySent}
}

func TestDispatchIsolatesPanics(t *testing.T) {
	tg := &stubSender{channel: models.ChannelTelegram, panics: true}
	em := &stubSender{channel: models.ChannelEmail, delay: 20 * time.Millisecond}
	d := NewDispatcher(logging.NewNop(), tg, em)

	sub := &models.Submission{ID: uuid.New(), UserID: "user-1"}
	results := d.Dispatch(context.Background(), sub, Bundles{})

	require.Len(t, results, 2)
	assert.Equal(t, models.DeliveryFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "boom")
	assert.Equal(t, models.ChannelTelegram, results[0].Channel)
	assert.Equal(t, models.DeliverySent, results[1].Status)
	assert.Equal(t, 1, em.calls)
}

func TestSettingsServiceDefaultsAndUpdates(t *testing.T) {
	store := newFakeStore()
	svc := NewSettingsService(store)
	ctx := context.Background()

	cur, err := svc.Get(ctx, "user-1", models.ChannelTelegram)
	require.NoError(t, err)
	assert.False(t, cur.IsEnabled)
	assert.Zero(t, store.upserts)

	_, err = svc.UpdateTelegram(ctx, "user-1", models.TelegramSettingsUpdate{ChatID: " 42 "})
	require.NoError(t, err)
	assert.Equal(t, "42", store.settings[models.ChannelTelegram].Config.ChatID)
	assert.False(t, store.settings[models.ChannelTelegram].IsEnabled)

	_, err = svc.SetEnabled(ctx, "user-1", models.ChannelTelegram, true)
	require.NoError(t, err)
	assert.Equal(t, "42", store.settings[models.ChannelTelegram].Config.ChatID)

	st, err := svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, st.Telegram)
	assert.False(t, st.Email)
}

func TestUpdateEmailParsesAddresses(t *testing.T) {
	store := newFakeStore()
	svc := NewSettingsService(store)
	enabled := true

	got, err := svc.UpdateEmail(context.Background(), "user-1", models.EmailSettingsUpdate{
		EmailAddresses: "a@x.com, ,b@x.com ",
		IsEnabled:      &enabled,
		IsSMTPEnabled:  true,
		SMTPHost:       "smtp.x.com",
		SMTPUser:       "u",
		SMTPPass:       "p",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, got.Config.EmailAddresses)
	require.NotNil(t, got.Config.SMTP)
	assert.Equal(t, 587, got.Config.SMTP.Port)
	assert.True(t, got.IsEnabled)

	_, err = svc.UpdateEmail(context.Background(), "user-1", models.EmailSettingsUpdate{EmailAddresses: " , "})
	assert.Error(t, err)
}
