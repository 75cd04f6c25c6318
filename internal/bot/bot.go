// Package bot is the Telegram front end of the assistant.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aris/internal/chat"
	"aris/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ChatService answers inbound messages.
type ChatService interface {
	Handle(ctx context.Context, in chat.Inbound) (chat.Reply, error)
}

// SettingsStore is the part of the settings store used by commands.
type SettingsStore interface {
	Get(ctx context.Context, userID int64) *model.UserSettings
	Toggle(ctx context.Context, userID int64, name string) (bool, error)
	SetFlag(ctx context.Context, userID int64, flag model.Flag, value bool) (*model.UserSettings, error)
	Update(ctx context.Context, userID int64, partial map[string]any) (*model.UserSettings, error)
	AddScheduleEntry(ctx context.Context, userID int64, entry model.ScheduleEntry) (*model.UserSettings, error)
	RemoveScheduleEntry(ctx context.Context, userID int64, index int) (model.ScheduleEntry, error)
	ClearSchedule(ctx context.Context, userID int64) error
	ListSchedule(ctx context.Context, userID int64) []model.ScheduleEntry
}

// AutoChat tracks chats that receive proactive messages.
type AutoChat interface {
	Activate(chatID, userID int64)
	Deactivate(chatID int64)
	Active() []int64
}

// OneShotScheduler queues /time reminders.
type OneShotScheduler interface {
	ScheduleOnce(chatID int64, hour, minute int, text string) (time.Time, error)
	Location() *time.Location
}

// Deps are the collaborators of the bot.
type Deps struct {
	Chat      ChatService
	Settings  SettingsStore
	AutoChat  AutoChat
	Reminders OneShotScheduler
}

// Options tune outbound behaviour.
type Options struct {
	// RatePerSecond and Burst bound outbound API calls; Telegram allows about 30/s.
	RatePerSecond float64
	Burst         int
	ModelName     string
	VoiceName     string
	Debug         bool
}

// Bot routes Telegram updates to the chat service and commands.
type Bot struct {
	tg        telegramClient
	chat      ChatService
	settings  SettingsStore
	autochat  AutoChat
	reminders OneShotScheduler
	limiter   *rate.Limiter
	http      *http.Client
	opts      Options
	logger    *zerolog.Logger
	queues    *userQueues
	startedAt time.Time
}

func New(token string, deps Deps, opts Options, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = opts.Debug
	return newBot(newRealTelegramClient(api, logger), deps, opts, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, deps Deps, opts Options, logger *zerolog.Logger) (*Bot, error) {
	return newBot(tg, deps, opts, logger)
}

func newBot(tg telegramClient, deps Deps, opts Options, logger *zerolog.Logger) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if deps.Chat == nil || deps.Settings == nil {
		return nil, fmt.Errorf("chat service and settings store are required")
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 30
	}
	if opts.Burst <= 0 {
		opts.Burst = 30
	}
	return &Bot{
		tg:        tg,
		chat:      deps.Chat,
		settings:  deps.Settings,
		autochat:  deps.AutoChat,
		reminders: deps.Reminders,
		limiter:   rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		http:      &http.Client{Timeout: 30 * time.Second},
		opts:      opts,
		logger:    logger,
		queues:    newUserQueues(),
		startedAt: time.Now(),
	}, nil
}

// Start polls updates until ctx is done. Updates of one user are handled in
// the order they arrive; different users are served concurrently.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("bot authorized")

	defer b.queues.wait()
	for {
		select {
		case <-ctx.Done():
			b.tg.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			updateCtx := l.WithContext(ctx)
			b.queues.dispatch(updateKey(&update.Update), func() { b.handleUpdate(updateCtx, &update) })
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *incomingUpdate) {
	l := zerolog.Ctx(ctx)
	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg("update handler panicked")
		}
	}()

	if update.CallbackQuery != nil {
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil && update.Message.From != nil {
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Str("text", update.Message.Text).
			Msg("Handling message")
		if update.WebApp != nil {
			b.handleWebAppData(ctx, update.Message, update.WebApp.Data)
			return
		}
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	switch {
	case msg.Voice != nil:
		b.handleVoice(ctx, msg)
		return
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.typing(ctx, msg.Chat.ID)
	b.deliver(ctx, msg.Chat.ID, chat.TextMessage{UserID: msg.From.ID, ChatID: msg.Chat.ID, Text: text})
}

// deliver runs an inbound message through the chat service and sends the reply.
func (b *Bot) deliver(ctx context.Context, chatID int64, in chat.Inbound) {
	reply, err := b.chat.Handle(ctx, in)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("message not handled")
		b.reply(ctx, chatID, "Произошла ошибка при обработке сообщения")
		return
	}
	defer chat.CleanupVoice(reply.VoicePath)

	if reply.Thought != "" {
		b.reply(ctx, chatID, reply.Thought)
	}
	if reply.Text != "" {
		b.reply(ctx, chatID, reply.Text)
	}
	if reply.VoicePath != "" {
		if err := b.SendVoice(ctx, chatID, reply.VoicePath); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Int64("chat_id", chatID).Msg("voice reply not sent")
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq == nil || cq.Message == nil || cq.From == nil {
		return
	}
	_ = b.answerCallback(ctx, cq.ID)
	data := cq.Data
	if data == "noop" {
		return
	}
	userID := cq.From.ID
	chatID := cq.Message.Chat.ID

	switch {
	case strings.HasPrefix(data, "toggle:"):
		b.handleToggle(ctx, chatID, userID, strings.TrimPrefix(data, "toggle:"))
		b.sendSettings(ctx, chatID, userID, cq.Message.MessageID)
	case strings.HasPrefix(data, "sched:del:"):
		b.handleScheduleDeleteCallback(ctx, chatID, userID, cq.Message.MessageID, strings.TrimPrefix(data, "sched:del:"))
	case strings.HasPrefix(data, "sched:page:"):
		b.handleSchedulePageCallback(ctx, chatID, userID, cq.Message.MessageID, strings.TrimPrefix(data, "sched:page:"))
	}
}

func (b *Bot) typing(ctx context.Context, chatID int64) {
	if err := b.limiter.Wait(ctx); err != nil {
		return
	}
	_, _ = b.tg.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

func (b *Bot) answerCallback(ctx context.Context, id string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.tg.Request(tgbotapi.NewCallback(id, ""))
	return err
}
