package bot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"aris/internal/chat"
	"aris/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const msgWebAppFailed = "❌ Произошла ошибка при обработке данных"

// webAppAction is a decoded Mini App request. Only the types below implement it.
type webAppAction interface {
	webAppAction()
}

type webAppSettings struct {
	Settings map[string]any
}

type webAppVoice struct {
	Audio []byte
}

type webAppTTS struct {
	Text string
}

type webAppCommand struct {
	Command string
}

func (webAppSettings) webAppAction() {}
func (webAppVoice) webAppAction()    {}
func (webAppTTS) webAppAction()      {}
func (webAppCommand) webAppAction()  {}

var errUnknownWebAppType = errors.New("unknown web app data type")

// parseWebAppData decodes {"type": ..., ...} into one of the webAppAction kinds.
func parseWebAppData(raw string) (webAppAction, error) {
	var envelope struct {
		Type     string         `json:"type"`
		Settings map[string]any `json:"settings"`
		Audio    string         `json:"audio"`
		Text     string         `json:"text"`
		Command  string         `json:"command"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, fmt.Errorf("decode web app data: %w", err)
	}
	switch envelope.Type {
	case "settings":
		if envelope.Settings == nil {
			return nil, errors.New("settings payload is empty")
		}
		return webAppSettings{Settings: envelope.Settings}, nil
	case "voice":
		audio, err := base64.StdEncoding.DecodeString(envelope.Audio)
		if err != nil {
			return nil, fmt.Errorf("decode voice audio: %w", err)
		}
		if len(audio) == 0 {
			return nil, errors.New("voice payload is empty")
		}
		return webAppVoice{Audio: audio}, nil
	case "tts":
		if strings.TrimSpace(envelope.Text) == "" {
			return nil, errors.New("tts text is empty")
		}
		return webAppTTS{Text: envelope.Text}, nil
	case "command":
		return webAppCommand{Command: strings.TrimSpace(envelope.Command)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownWebAppType, envelope.Type)
	}
}

func (b *Bot) handleWebAppData(ctx context.Context, msg *tgbotapi.Message, raw string) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	action, err := parseWebAppData(raw)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("bad web app data")
		b.reply(ctx, chatID, msgWebAppFailed)
		return
	}

	switch a := action.(type) {
	case webAppSettings:
		st, err := b.settings.Update(ctx, userID, a.Settings)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("web app settings not saved")
			b.reply(ctx, chatID, msgWebAppFailed)
			return
		}
		if _, ok := a.Settings[string(model.FlagAutoChat)]; ok {
			b.syncAutoChat(chatID, userID, st.AutoChatEnabled)
		}
		b.reply(ctx, chatID, "✅ Настройки успешно сохранены!")
		if autoStart, _ := a.Settings[string(model.FlagAutoStart)].(bool); autoStart {
			b.handleStart(ctx, msg)
		}
	case webAppVoice:
		b.typing(ctx, chatID)
		b.deliver(ctx, chatID, chat.VoiceMessage{UserID: userID, ChatID: chatID, Audio: a.Audio, Format: "ogg"})
	case webAppTTS:
		b.deliver(ctx, chatID, chat.SpeakText{UserID: userID, Text: a.Text})
	case webAppCommand:
		switch a.Command {
		case "/start":
			b.handleStart(ctx, msg)
		case "/help":
			b.reply(ctx, chatID, helpText)
		case "/clear":
			b.deliver(ctx, chatID, chat.ClearHistory{UserID: userID})
		default:
			b.reply(ctx, chatID, "Неизвестная команда. Используйте /help")
		}
	}
}
