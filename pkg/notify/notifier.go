package notify

import (
	"context"
	"errors"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier delivers short operator messages, for example when a strategy
// is force-disabled.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Logger writes notifications to the log.
type Logger struct {
	logger *zap.Logger
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger.Named("notify")}
}

func (l *Logger) Notify(_ context.Context, title, message string) error {
	l.logger.Info(title, zap.String("message", message))
	return nil
}

// Telegram sends notifications to one chat.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatId int64
}

func NewTelegram(token string, chatId int64) (*Telegram, error) {
	bot, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create telegram bot: %w", err)
	}
	return NewTelegramWithBot(bot, chatId), nil
}

func NewTelegramWithBot(bot *tgbot.BotAPI, chatId int64) *Telegram {
	return &Telegram{bot: bot, chatId: chatId}
}

func (t *Telegram) Notify(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatId, title+"\n"+message)); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
