package notification

import (
	"context"
	"errors"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"confluence-engine/config"
)

var ErrTelegramNotConfigured = errors.New("telegram bot token and chat id are required")

// chatSender is the part of tgbot.BotAPI the notifier uses
type chatSender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// TelegramNotifier sends notifications to one chat via the Bot API
type TelegramNotifier struct {
	bot    chatSender
	chatID int64
}

// NewTelegramNotifier authenticates the bot token against Telegram
func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		return nil, ErrTelegramNotConfigured
	}
	bot, err := tgbot.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID}, nil
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.bot != nil && t.chatID != 0
}

func (t *TelegramNotifier) Send(ctx context.Context, n *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbot.NewMessage(t.chatID, n.Text())
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
