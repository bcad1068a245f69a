package providers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
	"github.com/exedis/omnicore-back/internal/render"
	"github.com/exedis/omnicore-back/internal/utils"
)

// ErrBotNotConfigured is recorded when no bot token is set.
var ErrBotNotConfigured = errors.New("telegram bot token is not configured")

// TelegramConfig configures the chat-bot sender.
type TelegramConfig struct {
	BotToken string
	// APIURL overrides the Bot API server, mostly for tests and local proxies.
	APIURL string
	// RateLimit is the number of messages per second across all chats.
	RateLimit  int
	Attempts   int
	RetryDelay time.Duration
}

// TelegramSender delivers submissions through the Telegram Bot API.
type TelegramSender struct {
	bot      *bot.Bot
	limiter  *rate.Limiter
	recorder DeliveryRecorder
	logger   *logging.Logger
	attempts int
	delay    time.Duration
}

// NewTelegramSender creates a sender. An empty token yields a sender whose
// enabled deliveries fail with ErrBotNotConfigured.
func NewTelegramSender(cfg TelegramConfig, recorder DeliveryRecorder, logger *logging.Logger) (*TelegramSender, error) {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 25
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}

	s := &TelegramSender{
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		recorder: recorder,
		logger:   logger,
		attempts: cfg.Attempts,
		delay:    cfg.RetryDelay,
	}
	if cfg.BotToken == "" {
		logger.Warnf("TELEGRAM_BOT_TOKEN is empty, telegram deliveries will fail")
		return s, nil
	}

	opts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithDefaultHandler(func(context.Context, *bot.Bot, *tgmodels.Update) {}),
		bot.WithErrorsHandler(func(err error) { logger.Errorf("Telegram bot: %v", err) }),
	}
	if cfg.APIURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.APIURL))
	}
	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	s.bot = b
	return s, nil
}

func (s *TelegramSender) Channel() models.ChannelType {
	return models.ChannelTelegram
}

// Dispatch sends the rendered template to the configured chat. It is a no-op
// when the channel is disabled or has no chat id.
func (s *TelegramSender) Dispatch(ctx context.Context, sub *models.Submission, settings *models.NotificationSettings, tpl *models.MessageTemplate) models.Delivery {
	if settings == nil || !settings.IsEnabled || settings.Config.ChatID == "" {
		return skipped(models.ChannelTelegram, sub)
	}

	parseMode := tgmodels.ParseModeHTML
	if settings.Config.ParseMode != "" {
		parseMode = tgmodels.ParseMode(settings.Config.ParseMode)
	}
	text := render.Message(tpl, sub, escaperFor(parseMode))

	d := models.Delivery{
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		Channel:      models.ChannelTelegram,
		Recipient:    settings.Config.ChatID,
	}
	return track(ctx, s.recorder, s.logger, d, models.DeliveryTelegramDelivered, func() (string, error) {
		return s.send(ctx, settings.Config.ChatID, text, parseMode)
	})
}

func (s *TelegramSender) send(ctx context.Context, chatID, text string, parseMode tgmodels.ParseMode) (string, error) {
	if s.bot == nil {
		return "", ErrBotNotConfigured
	}

	var messageID string
	err := utils.Retry(ctx, s.logger, s.attempts, s.delay, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram rate limit wait: %w", err)
		}
		msg, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: parseMode,
		})
		if err != nil {
			return fmt.Errorf("failed to send telegram message to chat_id %s: %w", chatID, err)
		}
		messageID = strconv.Itoa(msg.ID)
		return nil
	})
	return messageID, err
}

var legacyMarkdown = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escaperFor picks the value escaper matching how Telegram will parse the text.
func escaperFor(mode tgmodels.ParseMode) render.EscapeFunc {
	switch mode {
	case tgmodels.ParseModeMarkdown:
		return bot.EscapeMarkdown
	case tgmodels.ParseModeMarkdownV1:
		return legacyMarkdown.Replace
	case tgmodels.ParseModeHTML:
		return html.EscapeString
	default:
		return nil
	}
}
