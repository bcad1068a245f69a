package notification

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
)

// AuthTokenTTL is how long a chat-bot link stays valid.
const AuthTokenTTL = time.Hour

// Replies sent back to the chat.
const (
	ReplyLinked       = "✅ Authorization successful!\n\nYou will now receive notifications about new requests here."
	ReplyInvalidToken = "❌ Invalid authorization token. Check the link and try again."
	ReplyExpiredToken = "⏰ The authorization token has expired. Request a new link in your account."
	ReplyUsedToken    = "⚠️ This token has already been used."
	ReplyAlreadyBound = "⚠️ This account is already linked to a chat."
	ReplyLinkFailed   = "❌ Authorization failed. Please try again later."
	ReplyUseLink      = "ℹ️ To link your account, open the link you received in your account settings."
)

// AuthTokenStore persists chat-bot link tokens.
type AuthTokenStore interface {
	CreateAuthToken(ctx context.Context, t *models.TelegramAuthToken) error
	GetAuthToken(ctx context.Context, token string) (*models.TelegramAuthToken, error)
	UseAuthToken(ctx context.Context, id uuid.UUID, chat models.TelegramChat) (bool, error)
	ActiveAuthTokens(ctx context.Context, userID string, now time.Time) ([]models.TelegramAuthToken, error)
	RevokeAuthToken(ctx context.Context, userID string, id uuid.UUID) error
}

// Publisher pushes live events to a user's subscribers.
type Publisher interface {
	Publish(userID string, event models.Event)
}

// TelegramLinker issues /start deep links and binds the chat that opens one.
type TelegramLinker struct {
	tokens      AuthTokenStore
	settings    *SettingsService
	publisher   Publisher
	botUsername string
	logger      *logging.Logger
	now         func() time.Time
}

func NewTelegramLinker(tokens AuthTokenStore, settings *SettingsService, publisher Publisher, botUsername string, logger *logging.Logger) *TelegramLinker {
	return &TelegramLinker{
		tokens:      tokens,
		settings:    settings,
		publisher:   publisher,
		botUsername: botUsername,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateToken issues a fresh link token for userID.
func (l *TelegramLinker) CreateToken(ctx context.Context, userID string) (*models.TelegramAuthToken, error) {
	secret, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate auth token: %w", err)
	}
	t := &models.TelegramAuthToken{
		UserID:    userID,
		Token:     secret,
		ExpiresAt: l.now().Add(AuthTokenTTL),
	}
	if err := l.tokens.CreateAuthToken(ctx, t); err != nil {
		return nil, err
	}
	t.AuthLink = l.link(secret)
	l.logger.Infof("Created telegram auth token for user %s", userID)
	return t, nil
}

// ActiveTokens lists userID's tokens that can still be used.
func (l *TelegramLinker) ActiveTokens(ctx context.Context, userID string) ([]models.TelegramAuthToken, error) {
	list, err := l.tokens.ActiveAuthTokens(ctx, userID, l.now())
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].AuthLink = l.link(list[i].Token)
	}
	return list, nil
}

func (l *TelegramLinker) RevokeToken(ctx context.Context, userID string, id uuid.UUID) error {
	return l.tokens.RevokeAuthToken(ctx, userID, id)
}

// Status reports whether userID has an enabled, linked chat.
func (l *TelegramLinker) Status(ctx context.Context, userID string) (models.TelegramAuthStatus, error) {
	cur, err := l.settings.Get(ctx, userID, models.ChannelTelegram)
	if err != nil {
		return models.TelegramAuthStatus{}, err
	}
	if !cur.IsEnabled || cur.Config.ChatID == "" {
		return models.TelegramAuthStatus{}, nil
	}
	return models.TelegramAuthStatus{IsAuthorized: true, ChatID: cur.Config.ChatID}, nil
}

// HandleStart answers /start. An empty token gets a greeting; a valid token
// links chat to the token's owner exactly once.
func (l *TelegramLinker) HandleStart(ctx context.Context, chat models.TelegramChat, token string) string {
	if token == "" {
		name := chat.FirstName
		if name == "" {
			name = "there"
		}
		return fmt.Sprintf("👋 Hi, %s!\n\nI deliver notifications about new requests. %s", name, ReplyUseLink)
	}

	t, err := l.tokens.GetAuthToken(ctx, token)
	if err != nil {
		l.logger.Errorf("Failed to load telegram auth token: %v", err)
		return ReplyLinkFailed
	}
	switch {
	case t == nil:
		return ReplyInvalidToken
	case t.IsUsed:
		return ReplyUsedToken
	case !t.Usable(l.now()):
		return ReplyExpiredToken
	}

	cur, err := l.settings.Get(ctx, t.UserID, models.ChannelTelegram)
	if err != nil {
		l.logger.Errorf("Failed to load telegram settings for user %s: %v", t.UserID, err)
		return ReplyLinkFailed
	}
	if cur.Config.ChatID != "" {
		return ReplyAlreadyBound
	}

	ok, err := l.tokens.UseAuthToken(ctx, t.ID, chat)
	if err != nil {
		l.logger.Errorf("Failed to consume telegram auth token: %v", err)
		return ReplyLinkFailed
	}
	if !ok {
		return ReplyUsedToken
	}
	if _, err := l.settings.LinkTelegram(ctx, t.UserID, chat.ChatID); err != nil {
		l.logger.Errorf("Failed to link chat %s to user %s: %v", chat.ChatID, t.UserID, err)
		return ReplyLinkFailed
	}

	l.logger.Infof("Linked telegram chat %s to user %s", chat.ChatID, t.UserID)
	if l.publisher != nil {
		authorized := true
		l.publisher.Publish(t.UserID, models.Event{
			Type:         models.EventTelegramAuth,
			IsAuthorized: &authorized,
			Timestamp:    l.now(),
		})
	}
	return ReplyLinked
}

// HandleText answers any other message.
func (l *TelegramLinker) HandleText(context.Context, models.TelegramChat, string) string {
	return ReplyUseLink
}

func (l *TelegramLinker) link(token string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", l.botUsername, token)
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
