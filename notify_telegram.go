package chatwatch

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramMaxLen is below Telegram's 4096 character message limit.
const telegramMaxLen = 4000

// TelegramNotifier delivers alerts as bot messages to one chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier authenticates the bot. An empty endpoint selects the
// public Bot API. Requests go through client.
func NewTelegramNotifier(token string, chatID int64, endpoint string, client *LimitedHTTPClient) (*TelegramNotifier, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("unable to authenticate telegram bot: %w", err)
	}
	logger.Info("telegram_authorized", "bot", bot.Self.UserName)
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) Name() string { return "telegram" }

// RequestPermission refuses when no chat is configured to receive alerts.
func (t *TelegramNotifier) RequestPermission(context.Context) error {
	if t.chatID == 0 {
		return ErrPermissionDenied
	}
	return nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := strings.TrimSpace(title + "\n" + body)
	if text == "" {
		return nil
	}
	if r := []rune(text); len(r) > telegramMaxLen {
		text = string(r[:telegramMaxLen])
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
