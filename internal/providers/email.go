package providers

import (
	"context"
	"strings"

	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
	"github.com/exedis/omnicore-back/internal/render"
	"github.com/exedis/omnicore-back/pkg/email"
)

// EmailConfig holds the global mail settings.
type EmailConfig struct {
	SMTP         email.SMTP
	From         string
	UseSendmail  bool
	SendmailPath string
}

// EmailSender delivers submissions by email.
type EmailSender struct {
	cfg      EmailConfig
	recorder DeliveryRecorder
	logger   *logging.Logger
	// newSMTP builds a transport from SMTP credentials
	newSMTP  func(email.SMTP) email.Transport
	sendmail email.Transport
}

// EmailOption customises an EmailSender.
type EmailOption func(*EmailSender)

// WithTransports replaces the SMTP and sendmail transports.
func WithTransports(newSMTP func(email.SMTP) email.Transport, sendmail email.Transport) EmailOption {
	return func(s *EmailSender) {
		s.newSMTP = newSMTP
		s.sendmail = sendmail
	}
}

// NewEmailSender creates an email sender.
func NewEmailSender(cfg EmailConfig, recorder DeliveryRecorder, logger *logging.Logger, opts ...EmailOption) *EmailSender {
	if cfg.SendmailPath == "" {
		cfg.SendmailPath = "/usr/sbin/sendmail"
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	s := &EmailSender{
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		newSMTP:  func(c email.SMTP) email.Transport { return c },
		sendmail: email.Sendmail{Path: cfg.SendmailPath},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EmailSender) Channel() models.ChannelType {
	return models.ChannelEmail
}

// Subject is the mail subject for sub.
func Subject(sub *models.Submission) string {
	site := sub.SiteName
	if site == "" {
		site = "site"
	}
	return "New request from " + site
}

// Dispatch mails the rendered template to every configured address. It is a
// no-op when the channel is disabled or has no addresses.
func (s *EmailSender) Dispatch(ctx context.Context, sub *models.Submission, settings *models.NotificationSettings, tpl *models.MessageTemplate) models.Delivery {
	if settings == nil || !settings.IsEnabled || len(settings.Config.EmailAddresses) == 0 {
		return skipped(models.ChannelEmail, sub)
	}

	transport, from := s.transportFor(settings)
	msg := email.Message{
		From:    from,
		To:      settings.Config.EmailAddresses,
		Subject: Subject(sub),
		Body:    render.Message(tpl, sub, nil),
	}

	d := models.Delivery{
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		Channel:      models.ChannelEmail,
		Recipient:    strings.Join(msg.To, ","),
	}
	return track(ctx, s.recorder, s.logger, d, models.DeliverySent, func() (string, error) {
		return "", transport.Send(ctx, msg)
	})
}

// transportFor prefers the user's own SMTP server, then the global one, and
// falls back to sendmail.
func (s *EmailSender) transportFor(settings *models.NotificationSettings) (email.Transport, string) {
	if s.cfg.UseSendmail {
		return s.sendmail, s.from("")
	}
	if c := settings.Config; c.SMTPEnabled && c.SMTP.Complete() {
		port := c.SMTP.Port
		if port == 0 {
			port = 587
		}
		return s.newSMTP(email.SMTP{
			Host:     c.SMTP.Host,
			Port:     port,
			Secure:   c.SMTP.Secure,
			Username: c.SMTP.User,
			Password: c.SMTP.Pass,
		}), c.SMTP.User
	}
	if g := s.cfg.SMTP; g.Host != "" && g.Username != "" && g.Password != "" {
		return s.newSMTP(g), s.from(g.Username)
	}
	return s.sendmail, s.from("")
}

func (s *EmailSender) from(fallback string) string {
	if s.cfg.From != "" {
		return s.cfg.From
	}
	if fallback != "" {
		return fallback
	}
	return "noreply@localhost"
}
