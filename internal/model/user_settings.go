package model

import (
	"time"
)

// MaxHistoryMessages bounds the chat history kept per user.
const MaxHistoryMessages = 20

// UserSettings stores per-user preferences, the daily schedule and a bounded
// chat history. JSON keys match the records written by earlier bot versions.
type UserSettings struct {
	UserID          int64            `json:"user_id"`
	AutoStart       bool             `json:"auto_start"`
	Notifications   bool             `json:"notifications"`
	Sound           bool             `json:"sound"`
	VoiceEnabled    bool             `json:"voice"`
	TTSEnabled      bool             `json:"tts_enabled"`
	FactsEnabled    bool             `json:"facts_enabled"`
	ThoughtsEnabled bool             `json:"thoughts_enabled"`
	AutoChatEnabled bool             `json:"auto_chat_enabled"`
	ArisMode        bool             `json:"aris_mode"`
	Schedule        []ScheduleEntry  `json:"schedule"`
	ChatHistory     []HistoryMessage `json:"chat_history"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// HistoryMessage is a single turn of the conversation.
type HistoryMessage struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultUserSettings returns the record synthesized for a user seen for the first time.
func DefaultUserSettings(userID int64) *UserSettings {
	return &UserSettings{
		UserID:        userID,
		Notifications: true,
		Sound:         true,
		TTSEnabled:    true,
		Schedule:      []ScheduleEntry{},
		ChatHistory:   []HistoryMessage{},
	}
}

// Clone returns a deep copy.
func (s *UserSettings) Clone() *UserSettings {
	if s == nil {
		return nil
	}
	c := *s
	c.Schedule = append([]ScheduleEntry(nil), s.Schedule...)
	c.ChatHistory = append([]HistoryMessage(nil), s.ChatHistory...)
	if c.Schedule == nil {
		c.Schedule = []ScheduleEntry{}
	}
	if c.ChatHistory == nil {
		c.ChatHistory = []HistoryMessage{}
	}
	return &c
}

// AppendHistory adds a message and drops the oldest ones beyond MaxHistoryMessages.
func (s *UserSettings) AppendHistory(role, content string, at time.Time) {
	s.ChatHistory = append(s.ChatHistory, HistoryMessage{Role: role, Content: content, At: at})
	if over := len(s.ChatHistory) - MaxHistoryMessages; over > 0 {
		s.ChatHistory = append([]HistoryMessage(nil), s.ChatHistory[over:]...)
	}
}

// LastHistory returns the most recent message, if any.
func (s *UserSettings) LastHistory() (HistoryMessage, bool) {
	if len(s.ChatHistory) == 0 {
		return HistoryMessage{}, false
	}
	return s.ChatHistory[len(s.ChatHistory)-1], true
}
