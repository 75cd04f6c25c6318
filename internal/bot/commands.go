package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"aris/internal/chat"
	"aris/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const helpText = `🤖 Доступные команды:

📝 Основные команды:
/start - Начать общение с ботом
/help - Показать это сообщение помощи
/status - Статус бота и настройки
/settings - Переключатели настроек
/clear - Очистить историю диалога

🎙 Голос и общение:
/tts - Включить/выключить голосовые ответы
/voice - Голосовые ответы на голосовые сообщения
/autochat - Включить/выключить режим автоматического общения
/thoughts - Включить/выключить генерацию мыслей
/facts - Включить/выключить базу фактов
/aris - Режим Арис
/base - Базовый режим

⏰ Напоминания и расписание:
/time ЧЧ ММ "Текст" - Установить напоминание
Пример: /time 16 30 "Сходить в магазин"

/schedule - Управление расписанием дня
/schedule add 9:00 Утренняя встреча
/schedule list
/schedule remove 1
/schedule clear
Или списком:
/schedule
9:00 Утренняя встреча
13:00 Обед

💡 Дополнительно:
• Вы можете отправлять голосовые сообщения
• Бот поддерживает обработку изображений
• В режиме автоматического общения бот может сам инициировать диалог`

var flagLabels = map[model.Flag]string{
	model.FlagFacts:         "📚 База фактов",
	model.FlagTTS:           "🎤 Озвучка текста",
	model.FlagThoughts:      "💭 Автоматические мысли",
	model.FlagAutoChat:      "🗨️ Автоматический чат",
	model.FlagArisMode:      "🎭 Режим Арис",
	model.FlagVoice:         "🎙 Голосовые ответы",
	model.FlagNotifications: "🔔 Напоминания",
	model.FlagSound:         "🔊 Звук",
	model.FlagAutoStart:     "🚀 Автозапуск",
}

// settingsFlags are the toggles shown by /settings, in display order.
var settingsFlags = []model.Flag{
	model.FlagFacts, model.FlagTTS, model.FlagThoughts, model.FlagAutoChat,
	model.FlagArisMode, model.FlagVoice, model.FlagNotifications, model.FlagSound,
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "help":
		b.reply(ctx, chatID, helpText)
	case "status":
		b.reply(ctx, chatID, b.statusText(ctx, userID))
	case "settings":
		b.sendSettings(ctx, chatID, userID, 0)
	case "clear":
		b.deliver(ctx, chatID, chat.ClearHistory{UserID: userID})
	case "reload":
		b.deliver(ctx, chatID, chat.ReloadModel{})
	case "facts", "thoughts", "tts", "voice", "notifications", "sound", "autochat":
		b.handleToggle(ctx, chatID, userID, msg.Command())
	case "toggle":
		if args == "" {
			b.reply(ctx, chatID, "Использование: /toggle <флаг>")
			return
		}
		b.handleToggle(ctx, chatID, userID, args)
	case "aris":
		b.setMode(ctx, chatID, userID, true)
	case "base":
		b.setMode(ctx, chatID, userID, false)
	case "time":
		b.handleTime(ctx, chatID, args)
	case "schedule":
		b.handleSchedule(ctx, chatID, userID, args)
	default:
		b.reply(ctx, chatID, "Неизвестная команда. Используйте /help")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	if b.autochat != nil {
		b.autochat.Activate(msg.Chat.ID, msg.From.ID)
	}
	name := msg.From.FirstName
	if name == "" {
		name = msg.From.UserName
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"Привет, %s! 👋\n\n"+
			"Я Арис - твой персональный ассистент! 🤖\n"+
			"Я могу общаться на разные темы, анализировать изображения\n"+
			"и преобразовывать голосовые сообщения в текст.\n\n"+
			"Используйте /help чтобы узнать больше о моих возможностях.", name))
}

// handleToggle flips a flag and reports the new state. Turning auto-chat on
// or off also changes the chat's membership in the auto-chat set.
func (b *Bot) handleToggle(ctx context.Context, chatID, userID int64, name string) {
	flag, err := model.ParseFlag(name)
	if err != nil {
		b.reply(ctx, chatID, fmt.Sprintf("Неизвестный флаг: %s", name))
		return
	}
	value, err := b.settings.Toggle(ctx, userID, string(flag))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("flag", string(flag)).Msg("toggle failed")
		b.reply(ctx, chatID, "Не удалось изменить настройку")
		return
	}
	if flag == model.FlagAutoChat {
		b.syncAutoChat(chatID, userID, value)
	}
	b.reply(ctx, chatID, fmt.Sprintf("%s: %s", labelFor(flag), onOff(value)))
}

func (b *Bot) setMode(ctx context.Context, chatID, userID int64, aris bool) {
	if _, err := b.settings.SetFlag(ctx, userID, model.FlagArisMode, aris); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("mode switch failed")
		b.reply(ctx, chatID, "Не удалось переключить режим")
		return
	}
	if aris {
		b.reply(ctx, chatID, "Режим переключен: 🎭 Арис")
		return
	}
	b.reply(ctx, chatID, "Режим переключен: ⚡ Базовый")
}

func (b *Bot) syncAutoChat(chatID, userID int64, enabled bool) {
	if b.autochat == nil {
		return
	}
	if enabled {
		b.autochat.Activate(chatID, userID)
		return
	}
	b.autochat.Deactivate(chatID)
}

func (b *Bot) statusText(ctx context.Context, userID int64) string {
	st := b.settings.Get(ctx, userID)
	mode := "⚡ Базовый"
	if st.ArisMode {
		mode = "🎭 Арис"
	}
	active := 0
	if b.autochat != nil {
		active = len(b.autochat.Active())
	}

	var sb strings.Builder
	sb.WriteString("🤖 Статус бота\n")
	fmt.Fprintf(&sb, "Имя: %s\n", b.tg.SelfUser().FirstName)
	fmt.Fprintf(&sb, "Режим: %s\n\n", mode)
	sb.WriteString("Активные функции:\n")
	for _, f := range []model.Flag{model.FlagFacts, model.FlagTTS, model.FlagThoughts, model.FlagAutoChat} {
		v, _ := st.FlagValue(f)
		fmt.Fprintf(&sb, "%s: %s\n", labelFor(f), onOff(v))
	}
	sb.WriteString("\nСтатистика:\n")
	fmt.Fprintf(&sb, "👥 Активных чатов: %d\n", active)
	fmt.Fprintf(&sb, "💬 История диалога: %d сообщений\n", len(st.ChatHistory))
	fmt.Fprintf(&sb, "📅 Задач в расписании: %d\n", len(st.Schedule))
	fmt.Fprintf(&sb, "⏱ Аптайм: %s\n", time.Since(b.startedAt).Truncate(time.Second))
	if b.opts.ModelName != "" || b.opts.VoiceName != "" {
		sb.WriteString("\nСистемная информация:\n")
		if b.opts.ModelName != "" {
			fmt.Fprintf(&sb, "⚙️ Модель ИИ: %s\n", b.opts.ModelName)
		}
		if b.opts.VoiceName != "" {
			fmt.Fprintf(&sb, "🎙️ Голос TTS: %s\n", b.opts.VoiceName)
		}
	}
	return sb.String()
}

func (b *Bot) sendSettings(ctx context.Context, chatID, userID int64, messageID int) {
	st := b.settings.Get(ctx, userID)
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, f := range settingsFlags {
		v, _ := st.FlagValue(f)
		mark := "❌"
		if v {
			mark = "✅"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %s", mark, labelFor(f)), "toggle:"+string(f)),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	text := "⚙️ Настройки\n\nНажмите на пункт, чтобы переключить его."

	if messageID != 0 {
		b.send(ctx, tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup))
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	b.send(ctx, msg)
}

// handleTime sets a one-shot reminder: /time HH MM text.
func (b *Bot) handleTime(ctx context.Context, chatID int64, args string) {
	const usage = "Использование: /time ЧЧ ММ 'Текст напоминания'"
	if b.reminders == nil {
		b.reply(ctx, chatID, "Напоминания недоступны")
		return
	}
	fields := strings.Fields(args)
	if len(fields) < 3 {
		b.reply(ctx, chatID, usage)
		return
	}
	hour, errH := strconv.Atoi(fields[0])
	minute, errM := strconv.Atoi(fields[1])
	if errH != nil || errM != nil {
		b.reply(ctx, chatID, "Ошибка! Используйте формат: /time ЧЧ ММ 'Текст напоминания'")
		return
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		b.reply(ctx, chatID, "Пожалуйста, укажите корректное время (ЧЧ: 0-23, ММ: 0-59)")
		return
	}
	text := strings.Trim(strings.Join(fields[2:], " "), `"'«»`)
	at, err := b.reminders.ScheduleOnce(chatID, hour, minute, text)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("one-shot reminder not scheduled")
		b.reply(ctx, chatID, usage)
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("Напоминание установлено на %s", at.In(b.reminders.Location()).Format("02.01 15:04")))
}

func labelFor(f model.Flag) string {
	if l, ok := flagLabels[f]; ok {
		return l
	}
	return string(f)
}

func onOff(v bool) string {
	if v {
		return "✅ включено"
	}
	return "❌ выключено"
}
