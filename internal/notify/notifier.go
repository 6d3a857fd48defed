package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"trade_core/pkg/logger"
)

// Notifier шлет событийные сообщения оператору. Send не должен блокировать
// торговый путь: ошибки доставки только логируются.
type Notifier interface {
	Send(text string)
	Sendf(format string, args ...interface{})
}

type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram возвращает nil-safe notifier: при пустом токене все вызовы no-op.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Send(text string) {
	if t == nil || t.bot == nil {
		return
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		logger.Error("telegram send failed: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...interface{}) {
	t.Send(fmt.Sprintf(format, args...))
}
