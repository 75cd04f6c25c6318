// Package reminders delivers daily schedule entries and one-off reminders.
package reminders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"aris/internal/metrics"
	"aris/internal/model"

	"github.com/rs/zerolog"
)

const messagePrefix = "⏰ Напоминание!\n\n"

// Notifier delivers a reminder text to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Users lists users and their settings.
type Users interface {
	UserIDs(ctx context.Context) ([]int64, error)
	Get(ctx context.Context, userID int64) *model.UserSettings
}

// SchedulerConfig holds configuration for the reminder scheduler.
type SchedulerConfig struct {
	// Timezone the HH:MM of schedule entries refers to.
	Timezone string
	// CheckInterval is how often the clock is checked.
	CheckInterval time.Duration
	// RetryDelays are waited between delivery attempts of a transient failure.
	RetryDelays []time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Timezone:      "Asia/Irkutsk",
		CheckInterval: time.Minute,
		RetryDelays:   []time.Duration{time.Second, 5 * time.Second},
	}
}

type oneShot struct {
	chatID int64
	at     time.Time
	text   string
}

// Scheduler fires each schedule entry at most once per day.
type Scheduler struct {
	config   SchedulerConfig
	users    Users
	notifier Notifier
	location *time.Location
	logger   zerolog.Logger
	now      func() time.Time
	wait     func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	fired    map[string]string // entry key -> date it fired
	pending  []oneShot
	lastTick string
	running  bool
	stopCh   chan struct{}
}

func NewScheduler(config SchedulerConfig, users Users, notifier Notifier, logger zerolog.Logger) (*Scheduler, error) {
	if config.Timezone == "" {
		config.Timezone = DefaultSchedulerConfig().Timezone
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", config.Timezone, err)
	}
	return &Scheduler{
		config:   config,
		users:    users,
		notifier: notifier,
		location: loc,
		logger:   logger.With().Str("component", "reminders").Logger(),
		now:      time.Now,
		wait:     sleepCtx,
		fired:    make(map[string]string),
		stopCh:   make(chan struct{}),
	}, nil
}

// SetNotifier replaces the notifier; the bot is built after the scheduler.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// Location is the timezone of schedule entries.
func (s *Scheduler) Location() *time.Location { return s.location }

// Start runs the check loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Str("timezone", s.config.Timezone).Dur("interval", s.config.CheckInterval).Msg("reminder scheduler started")

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reminder scheduler stopped by context")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.CheckAndRun(ctx)
		}
	}
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
}

// ScheduleOnce queues a reminder for the next occurrence of hour:minute and
// returns when it will fire.
func (s *Scheduler) ScheduleOnce(chatID int64, hour, minute int, text string) (time.Time, error) {
	entry := model.ScheduleEntry{Hour: hour, Minute: minute, Task: text}
	if !entry.Valid() || text == "" {
		return time.Time{}, fmt.Errorf("invalid reminder %02d:%02d %q", hour, minute, text)
	}
	now := s.now().In(s.location)
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, s.location)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}

	s.mu.Lock()
	s.pending = append(s.pending, oneShot{chatID: chatID, at: at, text: text})
	sort.Slice(s.pending, func(i, j int) bool { return s.pending[i].at.Before(s.pending[j].at) })
	s.mu.Unlock()
	return at, nil
}

// Pending returns the number of queued one-off reminders.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// CheckAndRun sends everything due at the current minute and returns how
// many reminders were delivered.
func (s *Scheduler) CheckAndRun(ctx context.Context) int {
	now := s.now().In(s.location)
	today := now.Format("2006-01-02")
	minute := now.Format("2006-01-02 15:04")

	s.mu.Lock()
	if s.lastTick == minute {
		s.mu.Unlock()
		return 0
	}
	s.lastTick = minute
	for k, day := range s.fired {
		if day != today {
			delete(s.fired, k)
		}
	}
	var due []oneShot
	for len(s.pending) > 0 && !s.pending[0].at.After(now) {
		due = append(due, s.pending[0])
		s.pending = s.pending[1:]
	}
	s.mu.Unlock()

	sent := 0
	for _, r := range due {
		if s.deliver(ctx, r.chatID, r.text) {
			sent++
		}
	}
	return sent + s.runSchedules(ctx, now, today)
}

func (s *Scheduler) runSchedules(ctx context.Context, now time.Time, today string) int {
	ids, err := s.users.UserIDs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return 0
	}

	sent := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return sent
		}
		st := s.users.Get(ctx, id)
		if !st.Notifications {
			continue
		}
		for _, e := range st.Schedule {
			if e.Hour != now.Hour() || e.Minute != now.Minute() {
				continue
			}
			key := fmt.Sprintf("%d|%s", id, e.String())
			s.mu.Lock()
			_, done := s.fired[key]
			if !done {
				s.fired[key] = today
			}
			s.mu.Unlock()
			if done {
				continue
			}
			if s.deliver(ctx, id, e.Task) {
				sent++
			}
		}
	}
	return sent
}

func (s *Scheduler) deliver(ctx context.Context, chatID int64, task string) bool {
	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()
	if notifier == nil {
		return false
	}

	text := messagePrefix + task
	var err error
	for attempt := 0; attempt <= len(s.config.RetryDelays); attempt++ {
		if attempt > 0 {
			if werr := s.wait(ctx, s.config.RetryDelays[attempt-1]); werr != nil {
				err = werr
				break
			}
		}
		err = notifier.Notify(ctx, chatID, text)
		if err == nil || !model.IsTransient(err) {
			break
		}
		s.logger.Warn().Err(err).Int64("chat_id", chatID).Int("attempt", attempt+1).Msg("reminder delivery failed, retrying")
	}
	if err != nil {
		metrics.IncReminder("failed")
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("reminder not delivered")
		return false
	}
	metrics.IncReminder("sent")
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
