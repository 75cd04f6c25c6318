package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"aris/internal/chat"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// maxVoiceBytes caps downloads; Telegram voice notes are far smaller.
const maxVoiceBytes = 20 << 20

func (b *Bot) handleVoice(ctx context.Context, msg *tgbotapi.Message) {
	l := zerolog.Ctx(ctx)
	b.typing(ctx, msg.Chat.ID)

	audio, err := b.download(ctx, msg.Voice.FileID)
	if err != nil {
		l.Error().Err(err).Str("file_id", msg.Voice.FileID).Msg("voice download failed")
		b.reply(ctx, msg.Chat.ID, "Не удалось получить голосовое сообщение")
		return
	}
	b.deliver(ctx, msg.Chat.ID, chat.VoiceMessage{
		UserID: msg.From.ID,
		ChatID: msg.Chat.ID,
		Audio:  audio,
		Format: "ogg",
	})
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	b.typing(ctx, msg.Chat.ID)
	b.deliver(ctx, msg.Chat.ID, chat.PhotoMessage{
		UserID:  msg.From.ID,
		ChatID:  msg.Chat.ID,
		Caption: msg.Caption,
	})
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.tg.GetFileDirectURL(fileID)
	if err != nil {
		return nil, classifySendError("get file", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, classifySendError("download file", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxVoiceBytes))
}
