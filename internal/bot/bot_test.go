package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"aris/internal/chat"
	"aris/internal/model"
	"aris/internal/settings"
	"aris/internal/storage/filestore"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTelegram struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
	updates  chan incomingUpdate
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) <-chan incomingUpdate {
	return f.updates
}

func (f *fakeTelegram) GetFileDirectURL(string) (string, error) {
	return "", errors.New("not available")
}

func (f *fakeTelegram) StopReceivingUpdates() {}

func (f *fakeTelegram) SelfUser() tgbotapi.User {
	return tgbotapi.User{FirstName: "Арис", UserName: "aris_bot"}
}

// texts returns the text of every sent message and edit.
func (f *fakeTelegram) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeTelegram) last() string {
	t := f.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

type fakeChat struct {
	mu    sync.Mutex
	seen  []chat.Inbound
	reply chat.Reply
	err   error
	// echo answers text messages with "re:<text>".
	echo  bool
	delay map[string]time.Duration
}

func (f *fakeChat) Handle(_ context.Context, in chat.Inbound) (chat.Reply, error) {
	f.mu.Lock()
	f.seen = append(f.seen, in)
	reply, err, echo := f.reply, f.err, f.echo
	var d time.Duration
	text := ""
	if m, ok := in.(chat.TextMessage); ok {
		text = m.Text
		d = f.delay[text]
	}
	f.mu.Unlock()

	time.Sleep(d)
	if echo && text != "" {
		return chat.Reply{Text: "re:" + text}, nil
	}
	return reply, err
}

type fakeAutoChat struct {
	active map[int64]int64
}

func (f *fakeAutoChat) Activate(chatID, userID int64) { f.active[chatID] = userID }
func (f *fakeAutoChat) Deactivate(chatID int64)       { delete(f.active, chatID) }
func (f *fakeAutoChat) Active() []int64 {
	var out []int64
	for id := range f.active {
		out = append(out, id)
	}
	return out
}

type fakeOneShot struct {
	calls []string
}

func (f *fakeOneShot) ScheduleOnce(_ int64, hour, minute int, text string) (time.Time, error) {
	f.calls = append(f.calls, text)
	return time.Date(2026, 1, 2, hour, minute, 0, 0, time.UTC), nil
}

func (f *fakeOneShot) Location() *time.Location { return time.UTC }

type fixture struct {
	bot      *Bot
	tg       *fakeTelegram
	chat     *fakeChat
	store    *settings.Store
	autochat *fakeAutoChat
	oneShot  *fakeOneShot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	logger := zerolog.Nop()
	f := &fixture{
		tg:       &fakeTelegram{updates: make(chan incomingUpdate)},
		chat:     &fakeChat{reply: chat.Reply{Text: "ответ"}},
		store:    settings.NewStore(fs, logger),
		autochat: &fakeAutoChat{active: map[int64]int64{}},
		oneShot:  &fakeOneShot{},
	}
	f.bot, err = NewWithTelegramClient(f.tg, Deps{
		Chat:      f.chat,
		Settings:  f.store,
		AutoChat:  f.autochat,
		Reminders: f.oneShot,
	}, Options{RatePerSecond: 1000, Burst: 1000}, &logger)
	require.NoError(t, err)
	return f
}

func textMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, FirstName: "Аня"},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}
}

func command(userID int64, text string) *tgbotapi.Message {
	msg := textMessage(userID, text)
	end := len(text)
	for i, r := range text {
		if r == ' ' || r == '\n' {
			end = i
			break
		}
	}
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	return msg
}

func TestNewValidatesDeps(t *testing.T) {
	logger := zerolog.Nop()
	_, err := NewWithTelegramClient(nil, Deps{}, Options{}, &logger)
	assert.Error(t, err)
	_, err = NewWithTelegramClient(&fakeTelegram{}, Deps{}, Options{}, &logger)
	assert.Error(t, err)
}

func TestPlainTextGoesToChatService(t *testing.T) {
	f := newFixture(t)
	f.chat.reply = chat.Reply{Text: "Привет!", Thought: "💭 думаю"}

	f.bot.handleMessage(context.Background(), textMessage(7, "привет"))

	require.Len(t, f.chat.seen, 1)
	assert.Equal(t, chat.TextMessage{UserID: 7, ChatID: 7, Text: "привет"}, f.chat.seen[0])
	assert.Equal(t, []string{"💭 думаю", "Привет!"}, f.tg.texts())
	assert.Len(t, f.tg.requests, 1, "typing action")
}

func TestChatServiceErrorSendsFallback(t *testing.T) {
	f := newFixture(t)
	f.chat.err = errors.New("boom")

	f.bot.handleMessage(context.Background(), textMessage(7, "привет"))

	assert.Equal(t, "Произошла ошибка при обработке сообщения", f.tg.last())
}

func TestToggleCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, command(7, "/facts"))
	assert.True(t, f.store.Get(ctx, 7).FactsEnabled)
	assert.Contains(t, f.tg.last(), "включено")

	f.bot.handleMessage(ctx, command(7, "/facts"))
	assert.False(t, f.store.Get(ctx, 7).FactsEnabled)
	assert.Contains(t, f.tg.last(), "выключено")

	f.bot.handleMessage(ctx, command(7, "/toggle thoughts"))
	assert.True(t, f.store.Get(ctx, 7).ThoughtsEnabled)

	f.bot.handleMessage(ctx, command(7, "/toggle nope"))
	assert.Contains(t, f.tg.last(), "Неизвестный флаг")
}

func TestAutoChatCommandUpdatesActiveSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, command(7, "/autochat"))
	assert.True(t, f.store.Get(ctx, 7).AutoChatEnabled)
	assert.Contains(t, f.autochat.active, int64(7))

	f.bot.handleMessage(ctx, command(7, "/autochat"))
	assert.NotContains(t, f.autochat.active, int64(7))
}

func TestModeCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, command(7, "/aris"))
	assert.True(t, f.store.Get(ctx, 7).ArisMode)
	f.bot.handleMessage(ctx, command(7, "/base"))
	assert.False(t, f.store.Get(ctx, 7).ArisMode)
}

func TestStartActivatesChat(t *testing.T) {
	f := newFixture(t)
	f.bot.handleMessage(context.Background(), command(7, "/start"))
	assert.Contains(t, f.autochat.active, int64(7))
	assert.Contains(t, f.tg.last(), "Привет, Аня!")
}

func TestClearForwardsToChatService(t *testing.T) {
	f := newFixture(t)
	f.bot.handleMessage(context.Background(), command(7, "/clear"))
	require.Len(t, f.chat.seen, 1)
	assert.Equal(t, chat.ClearHistory{UserID: 7}, f.chat.seen[0])
}

func TestScheduleCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, command(7, "/schedule add 13:00 Обед"))
	f.bot.handleMessage(ctx, command(7, "/schedule\n9:00 Встреча\nплохо\n15:30 Созвон"))

	list := f.store.ListSchedule(ctx, 7)
	require.Len(t, list, 3)
	assert.Equal(t, "09:00 - Встреча", list[0].String())
	assert.Equal(t, "13:00 - Обед", list[1].String())
	assert.Contains(t, f.tg.texts(), "Ошибка в строке: плохо")
	assert.Contains(t, f.tg.last(), "1. 09:00 - Встреча")

	f.bot.handleMessage(ctx, command(7, "/schedule remove 1"))
	assert.Equal(t, "Удалено: 09:00 - Встреча", f.tg.last())

	f.bot.handleMessage(ctx, command(7, "/schedule remove 9"))
	assert.Contains(t, f.tg.last(), "Нет задачи")

	f.bot.handleMessage(ctx, command(7, "/schedule add 24:00 Ночь"))
	assert.Len(t, f.store.ListSchedule(ctx, 7), 2)

	f.bot.handleMessage(ctx, command(7, "/schedule clear"))
	assert.Empty(t, f.store.ListSchedule(ctx, 7))
}

func TestTimeCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, command(7, `/time 16 30 "Сходить в магазин"`))
	assert.Equal(t, []string{"Сходить в магазин"}, f.oneShot.calls)
	assert.Contains(t, f.tg.last(), "16:30")

	f.bot.handleMessage(ctx, command(7, "/time 25 00 поздно"))
	assert.Contains(t, f.tg.last(), "корректное время")

	f.bot.handleMessage(ctx, command(7, "/time 10"))
	assert.Contains(t, f.tg.last(), "Использование")
	assert.Len(t, f.oneShot.calls, 1)
}

func TestStatusReportsFlags(t *testing.T) {
	f := newFixture(t)
	f.bot.handleMessage(context.Background(), command(7, "/status"))
	status := f.tg.last()
	assert.Contains(t, status, "Режим: ⚡ Базовый")
	assert.Contains(t, status, "🎤 Озвучка текста: ✅ включено")
	assert.Contains(t, status, "📚 База фактов: ❌ выключено")
}

func TestToggleCallbackEditsSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cq := &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{MessageID: 42, Chat: &tgbotapi.Chat{ID: 7}},
		Data:    "toggle:" + string(model.FlagSound),
	}

	f.bot.handleCallback(ctx, cq)

	assert.False(t, f.store.Get(ctx, 7).Sound)
	f.tg.mu.Lock()
	defer f.tg.mu.Unlock()
	var edited bool
	for _, c := range f.tg.sent {
		if e, ok := c.(tgbotapi.EditMessageTextConfig); ok && e.MessageID == 42 {
			edited = true
		}
	}
	assert.True(t, edited)
}

func TestScheduleDeleteCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.AddScheduleEntry(ctx, 7, model.ScheduleEntry{Hour: 8, Minute: 0, Task: "Зарядка"})
	require.NoError(t, err)

	f.bot.handleCallback(ctx, &tgbotapi.CallbackQuery{
		ID:      "cb2",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: 7}},
		Data:    "sched:del:0",
	})

	assert.Empty(t, f.store.ListSchedule(ctx, 7))
	assert.Contains(t, f.tg.last(), "Расписание пусто")
}

func TestParseScheduleLines(t *testing.T) {
	entries, bad := parseScheduleLines("9:00 Встреча\n\n  13:30   Обед \n25:00 Нет\n10:00")
	require.Len(t, entries, 2)
	assert.Equal(t, model.ScheduleEntry{Hour: 9, Minute: 0, Task: "Встреча"}, entries[0])
	assert.Equal(t, model.ScheduleEntry{Hour: 13, Minute: 30, Task: "Обед"}, entries[1])
	assert.Equal(t, []string{"25:00 Нет", "10:00"}, bad)
}

func TestClassifySendError(t *testing.T) {
	assert.NoError(t, classifySendError("send", nil))
	assert.True(t, model.IsTransient(classifySendError("send", &tgbotapi.Error{Code: 429, Message: "Too Many Requests"})))
	assert.True(t, model.IsTransient(classifySendError("send", &tgbotapi.Error{Code: 502, Message: "Bad Gateway"})))
	assert.False(t, model.IsTransient(classifySendError("send", &tgbotapi.Error{Code: 403, Message: "Forbidden"})))
	assert.False(t, model.IsTransient(classifySendError("send", errors.New("other"))))
}

func TestNotifyUsesSendText(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bot.Notify(context.Background(), 7, "⏰ Напоминание!\n\nЗарядка"))
	assert.Equal(t, "⏰ Напоминание!\n\nЗарядка", f.tg.last())

	f.tg.sendErr = &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}
	err := f.bot.Notify(context.Background(), 7, "x")
	assert.True(t, model.IsTransient(err))
}

func TestStartStopsWhenContextDone(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.bot.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestUpdatesFromOneUserAreHandledInOrder(t *testing.T) {
	f := newFixture(t)
	f.chat.echo = true
	f.chat.delay = map[string]time.Duration{"first": 200 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.bot.Start(ctx)
		close(done)
	}()

	f.tg.updates <- incomingUpdate{Update: tgbotapi.Update{UpdateID: 1, Message: textMessage(7, "first")}}
	f.tg.updates <- incomingUpdate{Update: tgbotapi.Update{UpdateID: 2, Message: textMessage(7, "second")}}
	f.tg.updates <- incomingUpdate{Update: tgbotapi.Update{UpdateID: 3, Message: textMessage(8, "other")}}

	require.Eventually(t, func() bool { return len(f.tg.texts()) == 3 }, 2*time.Second, 5*time.Millisecond)
	texts := f.tg.texts()
	assert.Equal(t, "re:other", texts[0], "another user is not held up by user 7")
	assert.Equal(t, []string{"re:first", "re:second"}, texts[1:])

	cancel()
	<-done
}

func TestUserQueuesKeepOrderPerKey(t *testing.T) {
	q := newUserQueues()
	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		q.dispatch(1, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.wait()
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func webAppMessage(userID int64) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, FirstName: "Аня"},
		Chat: &tgbotapi.Chat{ID: userID},
	}
}

func TestWebAppSettingsAreMerged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleWebAppData(ctx, webAppMessage(7), `{"type":"settings","settings":{"facts_enabled":true,"auto_chat_enabled":true}}`)

	st := f.store.Get(ctx, 7)
	assert.True(t, st.FactsEnabled)
	assert.True(t, st.AutoChatEnabled)
	assert.Contains(t, f.autochat.active, int64(7))
	assert.Equal(t, "✅ Настройки успешно сохранены!", f.tg.last())
}

func TestWebAppSettingsAutoStartGreets(t *testing.T) {
	f := newFixture(t)
	f.bot.handleWebAppData(context.Background(), webAppMessage(7), `{"type":"settings","settings":{"auto_start":true}}`)
	assert.Contains(t, f.tg.last(), "Привет, Аня!")
}

func TestWebAppVoiceGoesToChatService(t *testing.T) {
	f := newFixture(t)
	audio := base64.StdEncoding.EncodeToString([]byte("ogg-bytes"))

	f.bot.handleWebAppData(context.Background(), webAppMessage(7), `{"type":"voice","audio":"`+audio+`"}`)

	require.Len(t, f.chat.seen, 1)
	assert.Equal(t, chat.VoiceMessage{UserID: 7, ChatID: 7, Audio: []byte("ogg-bytes"), Format: "ogg"}, f.chat.seen[0])
	assert.Equal(t, "ответ", f.tg.last())
}

func TestWebAppTTSRequestsSpeech(t *testing.T) {
	f := newFixture(t)
	f.bot.handleWebAppData(context.Background(), webAppMessage(7), `{"type":"tts","text":"Доброе утро"}`)

	require.Len(t, f.chat.seen, 1)
	assert.Equal(t, chat.SpeakText{UserID: 7, Text: "Доброе утро"}, f.chat.seen[0])
}

func TestWebAppCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleWebAppData(ctx, webAppMessage(7), `{"type":"command","command":"/help"}`)
	assert.Equal(t, helpText, f.tg.last())

	f.bot.handleWebAppData(ctx, webAppMessage(7), `{"type":"command","command":"/clear"}`)
	require.Len(t, f.chat.seen, 1)
	assert.Equal(t, chat.ClearHistory{UserID: 7}, f.chat.seen[0])

	f.bot.handleWebAppData(ctx, webAppMessage(7), `{"type":"command","command":"/start"}`)
	assert.Contains(t, f.tg.last(), "Привет, Аня!")
}

func TestWebAppBadDataRepliesWithError(t *testing.T) {
	for name, raw := range map[string]string{
		"malformed json": `{"type":`,
		"unknown type":   `{"type":"dance"}`,
		"bad audio":      `{"type":"voice","audio":"%%%"}`,
		"empty tts":      `{"type":"tts","text":"  "}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			require.NotPanics(t, func() {
				f.bot.handleWebAppData(context.Background(), webAppMessage(7), raw)
			})
			assert.Equal(t, msgWebAppFailed, f.tg.last())
			assert.Empty(t, f.chat.seen)
		})
	}
}

func TestHandleUpdateRoutesWebAppData(t *testing.T) {
	f := newFixture(t)
	f.bot.handleUpdate(context.Background(), &incomingUpdate{
		Update: tgbotapi.Update{UpdateID: 1, Message: webAppMessage(7)},
		WebApp: &webAppData{Data: `{"type":"command","command":"/help"}`},
	})
	assert.Equal(t, helpText, f.tg.last())
}

func TestDecodeUpdatesKeepsWebAppData(t *testing.T) {
	raw := []byte(`[
		{"update_id": 10, "message": {"message_id": 1, "date": 0, "chat": {"id": 7, "type": "private"}, "from": {"id": 7, "is_bot": false, "first_name": "Аня"}, "text": "привет"}},
		{"update_id": 11, "message": {"message_id": 2, "date": 0, "chat": {"id": 7, "type": "private"}, "from": {"id": 7, "is_bot": false, "first_name": "Аня"}, "web_app_data": {"data": "{\"type\":\"tts\",\"text\":\"hi\"}", "button_text": "Open"}}}
	]`)

	updates, err := decodeUpdates(raw)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "привет", updates[0].Message.Text)
	assert.Nil(t, updates[0].WebApp)
	require.NotNil(t, updates[1].WebApp)
	assert.Equal(t, `{"type":"tts","text":"hi"}`, updates[1].WebApp.Data)
	assert.Equal(t, int64(7), updates[1].Message.From.ID)
}
