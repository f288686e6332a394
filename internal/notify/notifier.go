package notify

import (
	"fmt"

	"option_bot/internal/modules/config"
	"option_bot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier pushes human-readable outcome messages.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Telegram delivers messages to a fixed chat. Delivery failures are
// logged, never propagated: notifications must not fail trading paths.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

// New picks the Telegram notifier when a token is configured, the no-op
// one otherwise.
func New(cfg *config.Config) (Notifier, error) {
	if cfg.Telegram.Token == "" {
		logger.Info("notify: telegram token not set, notifications disabled")
		return Nop{}, nil
	}
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("notify.New: %w", err)
	}
	return &Telegram{bot: b, chatID: cfg.Telegram.ChatID}, nil
}

func (t *Telegram) Send(msg string) {
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Error("notify: send: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) {
	t.Send(fmt.Sprintf(format, args...))
}

// Nop drops every message.
type Nop struct{}

func (Nop) Send(string)          {}
func (Nop) Sendf(string, ...any) {}
