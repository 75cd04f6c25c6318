package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ScheduleEntry is a daily task at a fixed time of day.
// It is stored as {"time": "HH:MM", "task": "..."}.
type ScheduleEntry struct {
	Hour   int
	Minute int
	Task   string
}

type scheduleEntryJSON struct {
	Time string `json:"time"`
	Task string `json:"task"`
}

func (e ScheduleEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(scheduleEntryJSON{Time: e.Time(), Task: e.Task})
}

// UnmarshalJSON never fails on a bad time value: the entry is marked invalid
// instead, so one broken entry does not discard the whole record.
func (e *ScheduleEntry) UnmarshalJSON(data []byte) error {
	var raw scheduleEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Task = raw.Task
	h, m, err := ParseScheduleTime(raw.Time)
	if err != nil {
		e.Hour, e.Minute = -1, -1
		return nil
	}
	e.Hour, e.Minute = h, m
	return nil
}

// ParseScheduleTime parses a 24-hour HH:MM value.
func ParseScheduleTime(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || parts[0] == "" || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// NewScheduleEntry validates the time and builds an entry.
func NewScheduleEntry(hhmm, task string) (ScheduleEntry, error) {
	h, m, err := ParseScheduleTime(hhmm)
	if err != nil {
		return ScheduleEntry{}, err
	}
	task = strings.TrimSpace(task)
	if task == "" {
		return ScheduleEntry{}, fmt.Errorf("task is empty")
	}
	return ScheduleEntry{Hour: h, Minute: m, Task: task}, nil
}

// Valid reports whether the entry holds a real clock value.
func (e ScheduleEntry) Valid() bool {
	return e.Hour >= 0 && e.Hour <= 23 && e.Minute >= 0 && e.Minute <= 59
}

// Time renders the entry time as HH:MM.
func (e ScheduleEntry) Time() string {
	return fmt.Sprintf("%02d:%02d", e.Hour, e.Minute)
}

func (e ScheduleEntry) String() string {
	return e.Time() + " - " + e.Task
}

func (e ScheduleEntry) minutes() int {
	return e.Hour*60 + e.Minute
}

// SortSchedule returns a copy ordered by time ascending. Entries sharing a time
// keep their insertion order.
func SortSchedule(entries []ScheduleEntry) []ScheduleEntry {
	out := append([]ScheduleEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].minutes() < out[j].minutes() })
	return out
}
