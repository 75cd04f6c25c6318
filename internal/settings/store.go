package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"aris/internal/events"
	"aris/internal/metrics"
	"aris/internal/model"

	"github.com/rs/zerolog"
)

// Publisher receives flag change events.
type Publisher interface {
	Publish(events.Event)
}

// Store is the process-wide owner of user settings. Reads are served from
// memory; records are loaded from Storage on first access.
type Store struct {
	storage Storage
	logger  zerolog.Logger
	now     func() time.Time
	events  Publisher

	mu      sync.RWMutex
	records map[int64]*model.UserSettings
	dirty   map[int64]struct{}

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// NewStore creates a store backed by storage.
func NewStore(storage Storage, logger zerolog.Logger) *Store {
	return &Store{
		storage: storage,
		logger:  logger.With().Str("component", "settings").Logger(),
		now:     time.Now,
		records: make(map[int64]*model.UserSettings),
		dirty:   make(map[int64]struct{}),
		locks:   make(map[int64]*sync.Mutex),
	}
}

// SetPublisher makes later mutations publish a FlagChanged event per changed flag.
func (s *Store) SetPublisher(p Publisher) {
	s.events = p
}

func (s *Store) userLock(userID int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Get returns a copy of the user's settings. It never fails: a missing or
// corrupt record yields defaults.
func (s *Store) Get(ctx context.Context, userID int64) *model.UserSettings {
	s.mu.RLock()
	rec, ok := s.records[userID]
	s.mu.RUnlock()
	if ok {
		return rec.Clone()
	}

	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return s.current(ctx, userID).Clone()
}

// current returns the cached record, loading it if needed. Caller holds the user lock.
func (s *Store) current(ctx context.Context, userID int64) *model.UserSettings {
	s.mu.RLock()
	rec, ok := s.records[userID]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	rec, err := s.load(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("using default settings")
	}

	s.mu.Lock()
	s.records[userID] = rec
	s.mu.Unlock()
	return rec
}

func (s *Store) load(ctx context.Context, userID int64) (*model.UserSettings, error) {
	data, err := s.storage.Load(ctx, userID)
	if err != nil {
		rec := model.DefaultUserSettings(userID)
		if errors.Is(err, model.ErrNotFound) {
			return rec, nil
		}
		return rec, &model.ConfigurationError{UserID: userID, Err: err}
	}
	rec, err := decode(userID, data)
	if err != nil {
		return rec, &model.ConfigurationError{UserID: userID, Err: fmt.Errorf("corrupt record: %w", err)}
	}
	return rec, nil
}

// mutate applies fn to a copy of the record, persists it and publishes it.
// A failed write is logged and the user is marked dirty; the mutation still
// takes effect in memory. Flag change events are published after the user
// lock is released.
func (s *Store) mutate(ctx context.Context, userID int64, fn func(*model.UserSettings) error) (*model.UserSettings, error) {
	prev, next, err := s.apply(ctx, userID, fn)
	if err != nil {
		return nil, err
	}
	s.publishChanges(prev, next)
	return next, nil
}

func (s *Store) apply(ctx context.Context, userID int64, fn func(*model.UserSettings) error) (prev, next *model.UserSettings, err error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	prev = s.current(ctx, userID)
	next = prev.Clone()
	if err := fn(next); err != nil {
		return nil, nil, err
	}
	now := s.now()
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now

	s.mu.Lock()
	s.records[userID] = next
	s.mu.Unlock()

	if err := s.persist(ctx, next); err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("settings kept in memory")
	}
	return prev, next.Clone(), nil
}

func (s *Store) publishChanges(prev, next *model.UserSettings) {
	if s.events == nil {
		return
	}
	for _, f := range model.Flags() {
		before, _ := prev.FlagValue(f)
		after, _ := next.FlagValue(f)
		if before != after {
			s.events.Publish(events.Event{Type: events.FlagChanged, UserID: next.UserID, Flag: f, Value: after})
		}
	}
}

func (s *Store) persist(ctx context.Context, rec *model.UserSettings) error {
	data, err := json.Marshal(rec)
	if err == nil {
		err = s.storage.Save(ctx, rec.UserID, data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.dirty[rec.UserID] = struct{}{}
		metrics.IncPersistenceFailure()
		return &model.PersistenceError{UserID: rec.UserID, Err: err}
	}
	delete(s.dirty, rec.UserID)
	return nil
}

// Update merges partial into the record. Unknown keys and values of the
// wrong type are ignored.
func (s *Store) Update(ctx context.Context, userID int64, partial map[string]any) (*model.UserSettings, error) {
	fields := toRawFields(partial)
	return s.mutate(ctx, userID, func(rec *model.UserSettings) error {
		if skipped := applyFields(rec, fields); len(skipped) > 0 {
			s.logger.Debug().Int64("user_id", userID).Strs("keys", skipped).Msg("ignored settings fields")
		}
		return nil
	})
}

// Toggle flips a named flag and returns its new value.
func (s *Store) Toggle(ctx context.Context, userID int64, name string) (bool, error) {
	flag, err := model.ParseFlag(name)
	if err != nil {
		return false, err
	}
	var value bool
	_, err = s.mutate(ctx, userID, func(rec *model.UserSettings) error {
		cur, err := rec.FlagValue(flag)
		if err != nil {
			return err
		}
		value = !cur
		return rec.SetFlag(flag, value)
	})
	if err != nil {
		return false, err
	}
	metrics.IncFlagToggle(string(flag))
	return value, nil
}

// SetFlag assigns a flag value.
func (s *Store) SetFlag(ctx context.Context, userID int64, flag model.Flag, value bool) (*model.UserSettings, error) {
	return s.mutate(ctx, userID, func(rec *model.UserSettings) error {
		return rec.SetFlag(flag, value)
	})
}

// AddScheduleEntry appends an entry to the user's schedule.
func (s *Store) AddScheduleEntry(ctx context.Context, userID int64, entry model.ScheduleEntry) (*model.UserSettings, error) {
	if !entry.Valid() {
		return nil, fmt.Errorf("invalid schedule time %02d:%02d", entry.Hour, entry.Minute)
	}
	return s.mutate(ctx, userID, func(rec *model.UserSettings) error {
		rec.Schedule = append(rec.Schedule, entry)
		return nil
	})
}

// RemoveScheduleEntry deletes the entry at index in the time-sorted listing.
func (s *Store) RemoveScheduleEntry(ctx context.Context, userID int64, index int) (model.ScheduleEntry, error) {
	var removed model.ScheduleEntry
	_, err := s.mutate(ctx, userID, func(rec *model.UserSettings) error {
		sorted := model.SortSchedule(rec.Schedule)
		if index < 0 || index >= len(sorted) {
			return fmt.Errorf("no schedule entry #%d", index+1)
		}
		removed = sorted[index]
		rec.Schedule = append(sorted[:index:index], sorted[index+1:]...)
		return nil
	})
	return removed, err
}

// ClearSchedule removes every schedule entry.
func (s *Store) ClearSchedule(ctx context.Context, userID int64) error {
	_, err := s.mutate(ctx, userID, func(rec *model.UserSettings) error {
		rec.Schedule = []model.ScheduleEntry{}
		return nil
	})
	return err
}

// ListSchedule returns the schedule ordered by time.
func (s *Store) ListSchedule(ctx context.Context, userID int64) []model.ScheduleEntry {
	return model.SortSchedule(s.Get(ctx, userID).Schedule)
}

// AppendHistory records conversation turns.
func (s *Store) AppendHistory(ctx context.Context, userID int64, msgs ...model.HistoryMessage) error {
	_, err := s.mutate(ctx, userID, func(rec *model.UserSettings) error {
		for _, m := range msgs {
			rec.AppendHistory(m.Role, m.Content, m.At)
		}
		return nil
	})
	return err
}

// ClearHistory drops the user's chat history.
func (s *Store) ClearHistory(ctx context.Context, userID int64) error {
	_, err := s.mutate(ctx, userID, func(rec *model.UserSettings) error {
		rec.ChatHistory = []model.HistoryMessage{}
		return nil
	})
	return err
}

// UserIDs returns every user known in memory or in storage.
func (s *Store) UserIDs(ctx context.Context) ([]int64, error) {
	stored, err := s.storage.ListUserIDs(ctx)

	seen := make(map[int64]struct{}, len(stored))
	for _, id := range stored {
		seen[id] = struct{}{}
	}
	s.mu.RLock()
	for id := range s.records {
		seen[id] = struct{}{}
	}
	s.mu.RUnlock()

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

// Dirty returns users whose latest state has not reached storage.
func (s *Store) Dirty() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Flush retries writes for dirty users and returns the number still dirty.
func (s *Store) Flush(ctx context.Context) int {
	for _, id := range s.Dirty() {
		l := s.userLock(id)
		l.Lock()
		s.mu.RLock()
		rec := s.records[id]
		s.mu.RUnlock()
		if rec != nil {
			if err := s.persist(ctx, rec); err != nil {
				s.logger.Warn().Err(err).Int64("user_id", id).Msg("flush failed")
			}
		}
		l.Unlock()
	}
	return len(s.Dirty())
}

// RunFlusher retries dirty writes on a fixed cadence until ctx is done.
func (s *Store) RunFlusher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Flush(ctx); n > 0 {
				s.logger.Warn().Int("dirty", n).Msg("settings still not persisted")
			}
		}
	}
}
