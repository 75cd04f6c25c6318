package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultUserSettings(t *testing.T) {
	s := DefaultUserSettings(42)
	assert.Equal(t, int64(42), s.UserID)

	want := map[Flag]bool{
		FlagVoice:         false,
		FlagTTS:           true,
		FlagFacts:         false,
		FlagThoughts:      false,
		FlagAutoChat:      false,
		FlagArisMode:      false,
		FlagNotifications: true,
		FlagSound:         true,
		FlagAutoStart:     false,
	}
	require.Len(t, Flags(), len(want))
	for _, f := range Flags() {
		v, err := s.FlagValue(f)
		require.NoError(t, err)
		assert.Equal(t, want[f], v, "flag %s", f)
	}
	assert.NotNil(t, s.Schedule)
	assert.NotNil(t, s.ChatHistory)
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		input string
		want  Flag
		ok    bool
	}{
		{"facts_enabled", FlagFacts, true},
		{"facts", FlagFacts, true},
		{" TTS ", FlagTTS, true},
		{"autochat", FlagAutoChat, true},
		{"aris", FlagArisMode, true},
		{"voice_enabled", FlagVoice, true},
		{"not_a_flag", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, err := ParseFlag(tt.input)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrUnknownFlag, "input: %q", tt.input)
			var ufe *UnknownFlagError
			assert.True(t, errors.As(err, &ufe))
			continue
		}
		assert.NoError(t, err, "input: %q", tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestSetFlagUnknown(t *testing.T) {
	s := DefaultUserSettings(1)
	assert.ErrorIs(t, s.SetFlag(Flag("bogus"), true), ErrUnknownFlag)
	_, err := s.FlagValue(Flag("bogus"))
	assert.ErrorIs(t, err, ErrUnknownFlag)
}

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		input string
		h, m  int
		ok    bool
	}{
		{"09:00", 9, 0, true},
		{"9:05", 9, 5, true},
		{"23:59", 23, 59, true},
		{"00:00", 0, 0, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"12:5", 0, 0, false},
		{"-1:30", 0, 0, false},
		{"noon", 0, 0, false},
		{"", 0, 0, false},
	}

	for _, tt := range tests {
		h, m, err := ParseScheduleTime(tt.input)
		if !tt.ok {
			assert.Error(t, err, "input: %q", tt.input)
			continue
		}
		require.NoError(t, err, "input: %q", tt.input)
		assert.Equal(t, tt.h, h)
		assert.Equal(t, tt.m, m)
	}
}

func TestSortSchedule(t *testing.T) {
	lunch, err := NewScheduleEntry("13:30", "lunch")
	require.NoError(t, err)
	standup, err := NewScheduleEntry("09:00", "standup")
	require.NoError(t, err)

	sorted := SortSchedule([]ScheduleEntry{lunch, standup})
	require.Len(t, sorted, 2)
	assert.Equal(t, "09:00 - standup", sorted[0].String())
	assert.Equal(t, "13:30 - lunch", sorted[1].String())
}

func TestNewScheduleEntryEmptyTask(t *testing.T) {
	_, err := NewScheduleEntry("10:00", "   ")
	assert.Error(t, err)
}

func TestScheduleEntryJSON(t *testing.T) {
	e := ScheduleEntry{Hour: 7, Minute: 5, Task: "run"}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":"07:05","task":"run"}`, string(data))

	var bad ScheduleEntry
	require.NoError(t, json.Unmarshal([]byte(`{"time":"99:99","task":"x"}`), &bad))
	assert.False(t, bad.Valid())
}

func TestAppendHistoryBounded(t *testing.T) {
	s := DefaultUserSettings(1)
	now := time.Now()
	for i := 0; i < MaxHistoryMessages+5; i++ {
		s.AppendHistory(RoleUser, "msg", now)
	}
	assert.Len(t, s.ChatHistory, MaxHistoryMessages)
}

func TestCloneIsDeep(t *testing.T) {
	s := DefaultUserSettings(1)
	s.Schedule = append(s.Schedule, ScheduleEntry{Hour: 1, Minute: 2, Task: "a"})
	c := s.Clone()
	c.Schedule[0].Task = "b"
	c.FactsEnabled = true
	assert.Equal(t, "a", s.Schedule[0].Task)
	assert.False(t, s.FactsEnabled)
}
