package bot

import (
	"context"
	"errors"
	"fmt"
	"net"

	"aris/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// SendText sends a plain message. It satisfies autochat.Sender.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.tg.Send(tgbotapi.NewMessage(chatID, text))
	return classifySendError("send message", err)
}

// SendVoice uploads an audio file as a voice note.
func (b *Bot) SendVoice(ctx context.Context, chatID int64, path string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.tg.Send(tgbotapi.NewVoice(chatID, tgbotapi.FilePath(path)))
	return classifySendError("send voice", err)
}

// Notify delivers a reminder. It satisfies reminders.Notifier.
func (b *Bot) Notify(ctx context.Context, chatID int64, text string) error {
	return b.SendText(ctx, chatID, text)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.SendText(ctx, chatID, text); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}

func (b *Bot) send(ctx context.Context, msg tgbotapi.Chattable) {
	if err := b.limiter.Wait(ctx); err != nil {
		return
	}
	if _, err := b.tg.Send(msg); err != nil {
		zerolog.Ctx(ctx).Error().Err(classifySendError("send", err)).Msg("failed to send message")
	}
}

// classifySendError marks rate limiting, server-side and network failures as
// transient so reminder delivery can retry them.
func classifySendError(op string, err error) error {
	if err == nil {
		return nil
	}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		if tgErr.Code == 429 || tgErr.Code >= 500 {
			return &model.TransientNetworkError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &model.TransientNetworkError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
