package settings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"aris/internal/events"
	"aris/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu      sync.Mutex
	data    map[int64][]byte
	saveErr error
	loadErr error
	saves   int
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[int64][]byte)}
}

func (m *memStorage) Load(_ context.Context, userID int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	d, ok := m.data[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return d, nil
}

func (m *memStorage) Save(_ context.Context, userID int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[userID] = append([]byte(nil), data...)
	return nil
}

func (m *memStorage) ListUserIDs(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStorage) setSaveErr(err error) {
	m.mu.Lock()
	m.saveErr = err
	m.mu.Unlock()
}

func newTestStore(st Storage) *Store {
	return NewStore(st, zerolog.New(io.Discard))
}

func TestGetUnknownUserReturnsDefaults(t *testing.T) {
	st := newMemStorage()
	s := newTestStore(st)
	ctx := context.Background()

	got := s.Get(ctx, 100)
	assert.Equal(t, model.DefaultUserSettings(100), got)
	assert.Equal(t, 0, st.saves, "a read must not write")
}

func TestGetMergesPartialRecord(t *testing.T) {
	st := newMemStorage()
	st.data[7] = []byte(`{"facts_enabled": true, "sound": false, "legacy_key": 12, "schedule": [{"time": "10:00", "task": "gym"}, {"time": "77:00", "task": "broken"}]}`)
	s := newTestStore(st)

	got := s.Get(context.Background(), 7)
	assert.True(t, got.FactsEnabled)
	assert.False(t, got.Sound)
	assert.True(t, got.Notifications, "missing field falls back to default")
	assert.True(t, got.TTSEnabled)
	require.Len(t, got.Schedule, 1)
	assert.Equal(t, "gym", got.Schedule[0].Task)
}

func TestGetToleratesWrongTypes(t *testing.T) {
	st := newMemStorage()
	st.data[8] = []byte(`{"facts_enabled": "yes", "thoughts_enabled": true}`)
	s := newTestStore(st)

	got := s.Get(context.Background(), 8)
	assert.False(t, got.FactsEnabled)
	assert.True(t, got.ThoughtsEnabled)
}

func TestGetCorruptRecordReturnsDefaults(t *testing.T) {
	st := newMemStorage()
	st.data[9] = []byte(`{not json`)
	s := newTestStore(st)

	assert.Equal(t, model.DefaultUserSettings(9), s.Get(context.Background(), 9))
}

func TestGetStorageErrorReturnsDefaults(t *testing.T) {
	st := newMemStorage()
	st.loadErr = errors.New("disk on fire")
	s := newTestStore(st)

	assert.Equal(t, model.DefaultUserSettings(3), s.Get(context.Background(), 3))
}

func TestUpdateThenGet(t *testing.T) {
	st := newMemStorage()
	s := newTestStore(st)
	ctx := context.Background()

	partial := map[string]any{"facts_enabled": true, "notifications": false}
	first, err := s.Update(ctx, 1, partial)
	require.NoError(t, err)
	second, err := s.Update(ctx, 1, partial)
	require.NoError(t, err)

	got := s.Get(ctx, 1)
	assert.True(t, got.FactsEnabled)
	assert.False(t, got.Notifications)
	assert.True(t, got.Sound, "untouched field keeps its value")
	assert.True(t, got.TTSEnabled)
	assert.Equal(t, first.FactsEnabled, second.FactsEnabled)
	assert.Equal(t, first.Notifications, second.Notifications)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(st.data[1], &stored))
	assert.Equal(t, true, stored["facts_enabled"])
	assert.Equal(t, false, stored["notifications"])
}

func TestUpdateIgnoresUnknownFields(t *testing.T) {
	s := newTestStore(newMemStorage())
	ctx := context.Background()

	got, err := s.Update(ctx, 1, map[string]any{"unknown_field": 1})
	require.NoError(t, err)
	defaults := model.DefaultUserSettings(1)
	for _, f := range model.Flags() {
		want, _ := defaults.FlagValue(f)
		have, _ := got.FlagValue(f)
		assert.Equal(t, want, have, "flag %s", f)
	}
}

func TestToggle(t *testing.T) {
	s := newTestStore(newMemStorage())
	ctx := context.Background()

	v, err := s.Toggle(ctx, 5, "facts_enabled")
	require.NoError(t, err)
	assert.True(t, v)

	v, err = s.Toggle(ctx, 5, "facts_enabled")
	require.NoError(t, err)
	assert.False(t, v)
	assert.False(t, s.Get(ctx, 5).FactsEnabled)
}

func TestToggleUnknownFlag(t *testing.T) {
	st := newMemStorage()
	s := newTestStore(st)

	_, err := s.Toggle(context.Background(), 5, "not_a_flag")
	assert.ErrorIs(t, err, model.ErrUnknownFlag)
	assert.Equal(t, 0, st.saves)
}

func TestPersistenceFailureKeepsMemoryState(t *testing.T) {
	st := newMemStorage()
	st.setSaveErr(errors.New("read-only filesystem"))
	s := newTestStore(st)
	ctx := context.Background()

	v, err := s.Toggle(ctx, 11, "tts")
	require.NoError(t, err)
	assert.False(t, v)
	assert.False(t, s.Get(ctx, 11).TTSEnabled)
	assert.Equal(t, []int64{11}, s.Dirty())

	st.setSaveErr(nil)
	assert.Equal(t, 0, s.Flush(ctx))
	assert.Empty(t, s.Dirty())
	assert.Contains(t, string(st.data[11]), `"tts_enabled":false`)
}

func TestSchedule(t *testing.T) {
	s := newTestStore(newMemStorage())
	ctx := context.Background()

	standup, err := model.NewScheduleEntry("09:00", "standup")
	require.NoError(t, err)
	lunch, err := model.NewScheduleEntry("13:30", "lunch")
	require.NoError(t, err)

	_, err = s.AddScheduleEntry(ctx, 1, lunch)
	require.NoError(t, err)
	_, err = s.AddScheduleEntry(ctx, 1, standup)
	require.NoError(t, err)

	list := s.ListSchedule(ctx, 1)
	require.Len(t, list, 2)
	assert.Equal(t, "standup", list[0].Task)
	assert.Equal(t, "lunch", list[1].Task)

	removed, err := s.RemoveScheduleEntry(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "standup", removed.Task)
	assert.Len(t, s.ListSchedule(ctx, 1), 1)

	_, err = s.RemoveScheduleEntry(ctx, 1, 5)
	assert.Error(t, err)

	require.NoError(t, s.ClearSchedule(ctx, 1))
	assert.Empty(t, s.ListSchedule(ctx, 1))
}

func TestAddScheduleEntryRejectsInvalidTime(t *testing.T) {
	s := newTestStore(newMemStorage())
	_, err := s.AddScheduleEntry(context.Background(), 1, model.ScheduleEntry{Hour: 25, Task: "x"})
	assert.Error(t, err)
}

func TestConcurrentTogglesAreSerialized(t *testing.T) {
	s := newTestStore(newMemStorage())
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Toggle(ctx, 1, "sound")
		}()
	}
	wg.Wait()

	// an even number of flips restores the default
	assert.True(t, s.Get(ctx, 1).Sound)
}

func TestUserIDs(t *testing.T) {
	st := newMemStorage()
	st.data[3] = []byte(`{}`)
	s := newTestStore(st)
	ctx := context.Background()
	_ = s.Get(ctx, 1)

	ids, err := s.UserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestHistory(t *testing.T) {
	s := newTestStore(newMemStorage())
	ctx := context.Background()

	require.NoError(t, s.AppendHistory(ctx, 1,
		model.HistoryMessage{Role: model.RoleUser, Content: "hi"},
		model.HistoryMessage{Role: model.RoleAssistant, Content: "hello"},
	))
	assert.Len(t, s.Get(ctx, 1).ChatHistory, 2)

	require.NoError(t, s.ClearHistory(ctx, 1))
	assert.Empty(t, s.Get(ctx, 1).ChatHistory)
}

type recordingPublisher struct {
	events []events.Event
}

func (r *recordingPublisher) Publish(e events.Event) { r.events = append(r.events, e) }

func TestFlagChangesArePublished(t *testing.T) {
	store := NewStore(newMemStorage(), zerolog.New(io.Discard))
	pub := &recordingPublisher{}
	store.SetPublisher(pub)
	ctx := context.Background()

	_, err := store.Toggle(ctx, 4, "autochat")
	require.NoError(t, err)
	_, err = store.Update(ctx, 4, map[string]any{"tts_enabled": true, "facts_enabled": true})
	require.NoError(t, err)
	_, err = store.AddScheduleEntry(ctx, 4, model.ScheduleEntry{Hour: 7, Minute: 0, Task: "Подъём"})
	require.NoError(t, err)

	require.Len(t, pub.events, 2, "tts was already on, schedule changes are not flags")
	assert.Equal(t, events.Event{Type: events.FlagChanged, UserID: 4, Flag: model.FlagAutoChat, Value: true}, pub.events[0])
	assert.Equal(t, model.FlagFacts, pub.events[1].Flag)
}
