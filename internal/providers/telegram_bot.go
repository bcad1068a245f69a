package providers

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/exedis/omnicore-back/internal/models"
)

// CommandHandler produces replies for messages sent to the bot.
type CommandHandler interface {
	HandleStart(ctx context.Context, chat models.TelegramChat, token string) string
	HandleText(ctx context.Context, chat models.TelegramChat, text string) string
}

// ServeUpdates long-polls the Bot API and answers messages with h until ctx
// is done.
func (s *TelegramSender) ServeUpdates(ctx context.Context, h CommandHandler) error {
	if s.bot == nil {
		return ErrBotNotConfigured
	}
	s.bot.RegisterHandlerMatchFunc(func(u *tgmodels.Update) bool {
		return u.Message != nil && u.Message.Text != ""
	}, s.updateHandler(h))
	s.logger.Infof("Telegram bot polling for updates")
	s.bot.Start(ctx)
	return nil
}

func (s *TelegramSender) updateHandler(h CommandHandler) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, u *tgmodels.Update) {
		msg := u.Message
		chat := models.TelegramChat{ChatID: strconv.FormatInt(msg.Chat.ID, 10)}
		if msg.From != nil {
			chat.Username = msg.From.Username
			chat.FirstName = msg.From.FirstName
		}

		var reply string
		if token, ok := startToken(msg.Text); ok {
			reply = h.HandleStart(ctx, chat, token)
		} else {
			reply = h.HandleText(ctx, chat, msg.Text)
		}
		if reply == "" {
			return
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: reply}); err != nil {
			s.logger.Errorf("Failed to reply to chat %s: %v", chat.ChatID, err)
		}
	}
}

// startToken parses "/start", "/start@bot" and their deep link payload.
func startToken(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	cmd := fields[0]
	if cmd != "/start" && !strings.HasPrefix(cmd, "/start@") {
		return "", false
	}
	if len(fields) > 1 {
		return fields[1], true
	}
	return "", true
}
