// Package autochat sends proactive messages to chats that opted in.
package autochat

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"aris/internal/metrics"
	"aris/internal/model"

	"github.com/rs/zerolog"
)

// Sender delivers messages to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendVoice(ctx context.Context, chatID int64, path string) error
}

// Composer generates unprompted messages for a user.
type Composer interface {
	Compose(ctx context.Context, userID int64, prompt string) (string, error)
	Speak(ctx context.Context, userID int64, text string) string
}

// SettingsReader exposes user flags.
type SettingsReader interface {
	Get(ctx context.Context, userID int64) *model.UserSettings
	UserIDs(ctx context.Context) ([]int64, error)
}

type Config struct {
	Interval   time.Duration
	FirstDelay time.Duration
	Cooldown   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.FirstDelay <= 0 {
		c.FirstDelay = 10 * time.Second
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	return c
}

type chatState struct {
	userID   int64
	lastSent time.Time
}

// Manager owns the set of active chats.
type Manager struct {
	composer Composer
	settings SettingsReader
	sender   Sender
	prompts  PromptSource
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	chats map[int64]*chatState
}

func NewManager(composer Composer, settings SettingsReader, sender Sender, prompts PromptSource, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		composer: composer,
		settings: settings,
		sender:   sender,
		prompts:  prompts,
		cfg:      cfg.withDefaults(),
		logger:   logger.With().Str("component", "autochat").Logger(),
		now:      time.Now,
		chats:    make(map[int64]*chatState),
	}
}

// SetSender replaces the sender; the bot is built after the manager.
func (m *Manager) SetSender(s Sender) {
	m.mu.Lock()
	m.sender = s
	m.mu.Unlock()
}

// Activate adds a chat. Re-activating keeps the cooldown state.
func (m *Manager) Activate(chatID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.chats[chatID]; ok {
		st.userID = userID
		return
	}
	m.chats[chatID] = &chatState{userID: userID}
}

func (m *Manager) Deactivate(chatID int64) {
	m.mu.Lock()
	delete(m.chats, chatID)
	m.mu.Unlock()
}

// Active returns the active chat ids in ascending order.
func (m *Manager) Active() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.chats))
	for id := range m.chats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Restore activates the private chats of users who have auto-chat enabled.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	ids, err := m.settings.UserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	n := 0
	for _, id := range ids {
		if m.settings.Get(ctx, id).AutoChatEnabled {
			m.Activate(id, id)
			n++
		}
	}
	return n, nil
}

// Run ticks after FirstDelay and then every Interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info().Dur("interval", m.cfg.Interval).Dur("cooldown", m.cfg.Cooldown).Msg("auto-chat started")

	timer := time.NewTimer(m.cfg.FirstDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		m.Tick(ctx)
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("auto-chat stopped")
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

type target struct {
	chatID int64
	userID int64
}

// Tick messages every eligible chat and returns how many were sent. A failing
// chat is logged and skipped.
func (m *Manager) Tick(ctx context.Context) int {
	now := m.now()
	var due []target
	m.mu.Lock()
	for chatID, st := range m.chats {
		if st.lastSent.IsZero() || now.Sub(st.lastSent) >= m.cfg.Cooldown {
			due = append(due, target{chatID: chatID, userID: st.userID})
		}
	}
	sender := m.sender
	m.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].chatID < due[j].chatID })

	sent := 0
	for _, t := range due {
		if ctx.Err() != nil {
			break
		}
		if sender == nil {
			break
		}
		ok, err := m.processChat(ctx, sender, t)
		switch {
		case err != nil:
			metrics.IncAutoChat("failed")
			m.logger.Error().Err(err).Int64("chat_id", t.chatID).Msg("auto-chat message failed")
		case ok:
			metrics.IncAutoChat("sent")
			sent++
		default:
			metrics.IncAutoChat("skipped")
		}
	}
	return sent
}

func (m *Manager) processChat(ctx context.Context, sender Sender, t target) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	st := m.settings.Get(ctx, t.userID)
	if !st.AutoChatEnabled {
		return false, nil
	}
	prompt, err := m.prompts.NextPrompt(ctx, st.ChatHistory)
	if err != nil {
		return false, fmt.Errorf("pick prompt: %w", err)
	}
	text, err := m.composer.Compose(ctx, t.userID, prompt)
	if err != nil {
		return false, err
	}
	if err := sender.SendText(ctx, t.chatID, text); err != nil {
		return false, fmt.Errorf("send text: %w", err)
	}
	m.markSent(t.chatID)

	if path := m.composer.Speak(ctx, t.userID, text); path != "" {
		defer os.Remove(path)
		if err := sender.SendVoice(ctx, t.chatID, path); err != nil {
			m.logger.Warn().Err(err).Int64("chat_id", t.chatID).Msg("auto-chat voice not sent")
		}
	}
	return true, nil
}

func (m *Manager) markSent(chatID int64) {
	now := m.now()
	m.mu.Lock()
	if st, ok := m.chats[chatID]; ok {
		st.lastSent = now
	}
	m.mu.Unlock()
}
