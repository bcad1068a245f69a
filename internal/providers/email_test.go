package providers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
	"github.com/exedis/omnicore-back/pkg/email"
)

type fakeTransport struct {
	mu   sync.Mutex
	name string
	err  error
	sent []email.Message
}

func (f *fakeTransport) Send(_ context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

type smtpFactory struct {
	transport *fakeTransport
	configs   []email.SMTP
}

func (f *smtpFactory) build(c email.SMTP) email.Transport {
	f.configs = append(f.configs, c)
	return f.transport
}

func newEmail(cfg EmailConfig, rec DeliveryRecorder) (*EmailSender, *smtpFactory, *fakeTransport) {
	factory := &smtpFactory{transport: &fakeTransport{name: "smtp"}}
	sendmail := &fakeTransport{name: "sendmail"}
	return NewEmailSender(cfg, rec, logging.NewNop(), WithTransports(factory.build, sendmail)), factory, sendmail
}

func enabledEmail(cfg models.ChannelConfig) *models.NotificationSettings {
	if cfg.EmailAddresses == nil {
		cfg.EmailAddresses = []string{"a@x.com", "b@x.com"}
	}
	return &models.NotificationSettings{IsEnabled: true, Channel: models.ChannelEmail, Config: cfg}
}

func TestEmailUsesUserSMTP(t *testing.T) {
	rec := &memoryRecorder{}
	s, factory, sendmail := newEmail(EmailConfig{}, rec)
	settings := enabledEmail(models.ChannelConfig{
		SMTPEnabled: true,
		SMTP:        &models.SMTPSettings{Host: "smtp.user.com", User: "me@user.com", Pass: "secret"},
	})

	d := s.Dispatch(context.Background(), submission(), settings, &models.MessageTemplate{Template: "Hi {{data.name}}"})
	assert.Equal(t, models.DeliverySent, d.Status)
	assert.Equal(t, "a@x.com,b@x.com", d.Recipient)

	require.Len(t, factory.configs, 1)
	assert.Equal(t, "smtp.user.com", factory.configs[0].Host)
	assert.Equal(t, 587, factory.configs[0].Port)
	require.Len(t, factory.transport.sent, 1)
	msg := factory.transport.sent[0]
	assert.Equal(t, "New request from acme", msg.Subject)
	assert.Equal(t, "Hi Jo <3", msg.Body)
	assert.Equal(t, "me@user.com", msg.From)
	assert.Empty(t, sendmail.sent)

	require.Len(t, rec.updated, 1)
	assert.Equal(t, models.DeliverySent, rec.updated[0].Status)
}

func TestEmailFallsBackToGlobalSMTP(t *testing.T) {
	s, factory, sendmail := newEmail(EmailConfig{
		SMTP: email.SMTP{Host: "smtp.global", Port: 2525, Username: "svc", Password: "pw"},
		From: "bot@service.com",
	}, nil)

	d := s.Dispatch(context.Background(), submission(), enabledEmail(models.ChannelConfig{}), nil)
	assert.Equal(t, models.DeliverySent, d.Status)
	require.Len(t, factory.configs, 1)
	assert.Equal(t, "smtp.global", factory.configs[0].Host)
	assert.Equal(t, "bot@service.com", factory.transport.sent[0].From)
	assert.Contains(t, factory.transport.sent[0].Body, `New request from site "acme"`)
	assert.Empty(t, sendmail.sent)
}

func TestEmailFallsBackToSendmail(t *testing.T) {
	s, factory, sendmail := newEmail(EmailConfig{}, nil)
	d := s.Dispatch(context.Background(), submission(), enabledEmail(models.ChannelConfig{
		SMTPEnabled: true,
		SMTP:        &models.SMTPSettings{Host: "smtp.user.com"}, // incomplete credentials
	}), nil)
	assert.Equal(t, models.DeliverySent, d.Status)
	assert.Empty(t, factory.configs)
	assert.Len(t, sendmail.sent, 1)

	forced, factory, sendmail := newEmail(EmailConfig{
		UseSendmail: true,
		SMTP:        email.SMTP{Host: "smtp.global", Username: "svc", Password: "pw"},
	}, nil)
	forced.Dispatch(context.Background(), submission(), enabledEmail(models.ChannelConfig{}), nil)
	assert.Empty(t, factory.configs)
	assert.Len(t, sendmail.sent, 1)
}

func TestEmailSkipsWhenDisabledOrNoAddresses(t *testing.T) {
	s, _, sendmail := newEmail(EmailConfig{}, nil)
	sub := submission()

	assert.Equal(t, models.DeliverySkipped, s.Dispatch(context.Background(), sub, nil, nil).Status)
	assert.Equal(t, models.DeliverySkipped, s.Dispatch(context.Background(), sub,
		&models.NotificationSettings{IsEnabled: false, Config: models.ChannelConfig{EmailAddresses: []string{"a@x.com"}}}, nil).Status)
	assert.Equal(t, models.DeliverySkipped, s.Dispatch(context.Background(), sub,
		&models.NotificationSettings{IsEnabled: true}, nil).Status)
	assert.Empty(t, sendmail.sent)
}

func TestEmailFailureIsRecorded(t *testing.T) {
	rec := &memoryRecorder{}
	s, _, sendmail := newEmail(EmailConfig{}, rec)
	sendmail.err = errors.New("connection refused")

	d := s.Dispatch(context.Background(), submission(), enabledEmail(models.ChannelConfig{}), nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Equal(t, "connection refused", d.Error)
	require.Len(t, rec.updated, 1)
	assert.Equal(t, models.DeliveryFailed, rec.updated[0].Status)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "New request from acme", Subject(&models.Submission{SiteName: "acme"}))
	assert.Equal(t, "New request from site", Subject(&models.Submission{}))
}
