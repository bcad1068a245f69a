package notification

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
)

type memoryTokens struct {
	mu     sync.Mutex
	tokens map[string]*models.TelegramAuthToken
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{tokens: map[string]*models.TelegramAuthToken{}}
}

func (m *memoryTokens) CreateAuthToken(_ context.Context, t *models.TelegramAuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.New()
	cp := *t
	m.tokens[t.Token] = &cp
	return nil
}

func (m *memoryTokens) GetAuthToken(_ context.Context, token string) (*models.TelegramAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memoryTokens) UseAuthToken(_ context.Context, id uuid.UUID, chat models.TelegramChat) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID == id && !t.IsUsed {
			t.IsUsed = true
			t.ChatID = chat.ChatID
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryTokens) ActiveAuthTokens(_ context.Context, userID string, now time.Time) ([]models.TelegramAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TelegramAuthToken
	for _, t := range m.tokens {
		if t.UserID == userID && t.Usable(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memoryTokens) RevokeAuthToken(_ context.Context, userID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID == id && t.UserID == userID {
			t.IsUsed = true
		}
	}
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []models.Event
}

func (e *eventLog) Publish(_ string, ev models.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func newLinker(store *fakeStore, tokens *memoryTokens, pub Publisher) *TelegramLinker {
	return NewTelegramLinker(tokens, NewSettingsService(store), pub, "omnicore_bot", logging.NewNop())
}

var testChat = models.TelegramChat{ChatID: "1001", Username: "jo", FirstName: "Jo"}

func TestLinkerLinksChatOnce(t *testing.T) {
	store := newFakeStore()
	tokens := newMemoryTokens()
	events := &eventLog{}
	l := newLinker(store, tokens, events)
	ctx := context.Background()

	tok, err := l.CreateToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, tok.Token, 64)
	assert.Equal(t, "https://t.me/omnicore_bot?start="+tok.Token, tok.AuthLink)

	active, err := l.ActiveTokens(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, tok.AuthLink, active[0].AuthLink)

	assert.Equal(t, ReplyLinked, l.HandleStart(ctx, testChat, tok.Token))
	tg := store.settings[models.ChannelTelegram]
	require.NotNil(t, tg)
	assert.True(t, tg.IsEnabled)
	assert.Equal(t, "1001", tg.Config.ChatID)

	require.Len(t, events.events, 1)
	assert.Equal(t, models.EventTelegramAuth, events.events[0].Type)
	require.NotNil(t, events.events[0].IsAuthorized)
	assert.True(t, *events.events[0].IsAuthorized)

	assert.Equal(t, ReplyUsedToken, l.HandleStart(ctx, testChat, tok.Token))

	status, err := l.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.TelegramAuthStatus{IsAuthorized: true, ChatID: "1001"}, status)
}

func TestLinkerRejectsBadTokens(t *testing.T) {
	store := newFakeStore()
	tokens := newMemoryTokens()
	l := newLinker(store, tokens, nil)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.Equal(t, ReplyInvalidToken, l.HandleStart(ctx, testChat, "nope"))

	tok, err := l.CreateToken(ctx, "user-1")
	require.NoError(t, err)
	now = now.Add(AuthTokenTTL + time.Second)
	assert.Equal(t, ReplyExpiredToken, l.HandleStart(ctx, testChat, tok.Token))
	assert.Nil(t, store.settings[models.ChannelTelegram])
}

func TestLinkerRefusesAlreadyLinkedUser(t *testing.T) {
	store := newFakeStore()
	store.settings[models.ChannelTelegram] = &models.NotificationSettings{
		Channel: models.ChannelTelegram, Config: models.ChannelConfig{ChatID: "999"},
	}
	l := newLinker(store, newMemoryTokens(), nil)
	ctx := context.Background()

	tok, err := l.CreateToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ReplyAlreadyBound, l.HandleStart(ctx, testChat, tok.Token))
	assert.Equal(t, "999", store.settings[models.ChannelTelegram].Config.ChatID)
}

func TestLinkerGreetsPlainStart(t *testing.T) {
	l := newLinker(newFakeStore(), newMemoryTokens(), nil)
	reply := l.HandleStart(context.Background(), testChat, "")
	assert.True(t, strings.HasPrefix(reply, "👋 Hi, Jo!"))
	assert.Equal(t, ReplyUseLink, l.HandleText(context.Background(), testChat, "hello"))
}

func TestLinkerRevokedTokenIsInactive(t *testing.T) {
	tokens := newMemoryTokens()
	l := newLinker(newFakeStore(), tokens, nil)
	ctx := context.Background()

	tok, err := l.CreateToken(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, l.RevokeToken(ctx, "user-1", tok.ID))

	active, err := l.ActiveTokens(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, ReplyUsedToken, l.HandleStart(ctx, testChat, tok.Token))
}
