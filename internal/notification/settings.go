package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/exedis/omnicore-back/internal/models"
)

// SettingsStore reads and upserts settings rows.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID string, channel models.ChannelType) (*models.NotificationSettings, error)
	UpsertSettings(ctx context.Context, s *models.NotificationSettings) error
}

// SettingsService applies read-modify-write updates to channel settings.
type SettingsService struct {
	store SettingsStore
}

func NewSettingsService(store SettingsStore) *SettingsService {
	return &SettingsService{store: store}
}

// Get returns the stored settings, or a disabled default when none exist.
func (s *SettingsService) Get(ctx context.Context, userID string, channel models.ChannelType) (*models.NotificationSettings, error) {
	cur, err := s.store.GetSettings(ctx, userID, channel)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		cur = &models.NotificationSettings{UserID: userID, Channel: channel}
	}
	return cur, nil
}

func (s *SettingsService) modify(ctx context.Context, userID string, channel models.ChannelType, fn func(*models.NotificationSettings)) (*models.NotificationSettings, error) {
	cur, err := s.Get(ctx, userID, channel)
	if err != nil {
		return nil, err
	}
	fn(cur)
	if err := s.store.UpsertSettings(ctx, cur); err != nil {
		return nil, err
	}
	return cur, nil
}

// SetEnabled flips the enablement flag of a channel.
func (s *SettingsService) SetEnabled(ctx context.Context, userID string, channel models.ChannelType, enabled bool) (*models.NotificationSettings, error) {
	return s.modify(ctx, userID, channel, func(cur *models.NotificationSettings) {
		cur.IsEnabled = enabled
	})
}

// UpdateTelegram stores the chat id and options.
func (s *SettingsService) UpdateTelegram(ctx context.Context, userID string, upd models.TelegramSettingsUpdate) (*models.NotificationSettings, error) {
	chatID := strings.TrimSpace(upd.ChatID)
	if chatID == "" {
		return nil, fmt.Errorf("chatId is required")
	}
	return s.modify(ctx, userID, models.ChannelTelegram, func(cur *models.NotificationSettings) {
		cur.Config.ChatID = chatID
		cur.Config.ParseMode = upd.ParseMode
		if upd.IsEnabled != nil {
			cur.IsEnabled = *upd.IsEnabled
		}
	})
}

// LinkTelegram binds chatID to the user's chat-bot channel and enables it.
func (s *SettingsService) LinkTelegram(ctx context.Context, userID, chatID string) (*models.NotificationSettings, error) {
	return s.modify(ctx, userID, models.ChannelTelegram, func(cur *models.NotificationSettings) {
		cur.Config.ChatID = chatID
		cur.IsEnabled = true
	})
}

// UpdateEmail stores the address list and optional SMTP credentials.
func (s *SettingsService) UpdateEmail(ctx context.Context, userID string, upd models.EmailSettingsUpdate) (*models.NotificationSettings, error) {
	addresses := ParseAddresses(upd.EmailAddresses)
	if len(addresses) == 0 {
		return nil, fmt.Errorf("at least one email address is required")
	}
	return s.modify(ctx, userID, models.ChannelEmail, func(cur *models.NotificationSettings) {
		cur.Config.EmailAddresses = addresses
		cur.Config.SMTPEnabled = upd.IsSMTPEnabled
		if upd.IsSMTPEnabled {
			port := upd.SMTPPort
			if port == 0 {
				port = 587
			}
			cur.Config.SMTP = &models.SMTPSettings{
				Host:   upd.SMTPHost,
				Port:   port,
				Secure: upd.SMTPSecure,
				User:   upd.SMTPUser,
				Pass:   upd.SMTPPass,
			}
		}
		if upd.IsEnabled != nil {
			cur.IsEnabled = *upd.IsEnabled
		}
	})
}

// Status reports which channels are enabled.
func (s *SettingsService) Status(ctx context.Context, userID string) (models.NotificationStatus, error) {
	var st models.NotificationStatus
	tg, err := s.store.GetSettings(ctx, userID, models.ChannelTelegram)
	if err != nil {
		return st, err
	}
	em, err := s.store.GetSettings(ctx, userID, models.ChannelEmail)
	if err != nil {
		return st, err
	}
	st.Telegram = tg != nil && tg.IsEnabled
	st.Email = em != nil && em.IsEnabled
	return st, nil
}

// ParseAddresses splits a comma separated list, dropping blanks.
func ParseAddresses(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
