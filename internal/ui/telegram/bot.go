package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"molt-highlights/internal/core/ports"
)

// Notifier sends run alerts to one Telegram chat.
type Notifier struct {
	Bot    *tgbotapi.BotAPI
	ChatID int64
	log    zerolog.Logger
}

func NewNotifier(token string, chatIDStr string, log zerolog.Logger) (*Notifier, error) {
	return NewNotifierWithEndpoint(token, chatIDStr, tgbotapi.APIEndpoint, log)
}

// NewNotifierWithEndpoint talks to a non-default Bot API server.
func NewNotifierWithEndpoint(token, chatIDStr, endpoint string, log zerolog.Logger) (*Notifier, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(chatIDStr), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat id: %w", err)
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, err
	}

	return &Notifier{
		Bot:    bot,
		ChatID: chatID,
		log:    log.With().Str("alerter", "telegram").Logger(),
	}, nil
}

var _ ports.Alerter = (*Notifier)(nil)

// Notify sends message. Failures are logged and dropped.
func (n *Notifier) Notify(ctx context.Context, message string) {
	if ctx.Err() != nil {
		return
	}
	msg := tgbotapi.NewMessage(n.ChatID, "🦞 *Moltbook Bot*: "+escapeMarkdown(message))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	if _, err := n.Bot.Send(msg); err != nil {
		n.log.Warn().Err(err).Msg("telegram alert failed")
	}
}

// escapeMarkdown keeps user text from breaking Telegram's Markdown parser.
func escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return replacer.Replace(text)
}
