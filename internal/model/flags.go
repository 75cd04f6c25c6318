package model

import (
	"sort"
	"strings"
)

// Flag names a boolean user preference.
type Flag string

const (
	FlagVoice         Flag = "voice"
	FlagTTS           Flag = "tts_enabled"
	FlagFacts         Flag = "facts_enabled"
	FlagThoughts      Flag = "thoughts_enabled"
	FlagAutoChat      Flag = "auto_chat_enabled"
	FlagArisMode      Flag = "aris_mode"
	FlagNotifications Flag = "notifications"
	FlagSound         Flag = "sound"
	FlagAutoStart     Flag = "auto_start"
)

var flagAliases = map[string]Flag{
	"voice_enabled": FlagVoice,
	"tts":           FlagTTS,
	"facts":         FlagFacts,
	"thoughts":      FlagThoughts,
	"autochat":      FlagAutoChat,
	"auto_chat":     FlagAutoChat,
	"aris":          FlagArisMode,
}

// Flags returns every recognized flag in a stable order.
func Flags() []Flag {
	flags := []Flag{
		FlagVoice, FlagTTS, FlagFacts, FlagThoughts, FlagAutoChat,
		FlagArisMode, FlagNotifications, FlagSound, FlagAutoStart,
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })
	return flags
}

// ParseFlag resolves a canonical flag name or one of its aliases.
func ParseFlag(name string) (Flag, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if f, ok := flagAliases[key]; ok {
		return f, nil
	}
	f := Flag(key)
	if _, ok := f.field(DefaultUserSettings(0)); ok {
		return f, nil
	}
	return "", &UnknownFlagError{Flag: name}
}

func (f Flag) field(s *UserSettings) (*bool, bool) {
	switch f {
	case FlagVoice:
		return &s.VoiceEnabled, true
	case FlagTTS:
		return &s.TTSEnabled, true
	case FlagFacts:
		return &s.FactsEnabled, true
	case FlagThoughts:
		return &s.ThoughtsEnabled, true
	case FlagAutoChat:
		return &s.AutoChatEnabled, true
	case FlagArisMode:
		return &s.ArisMode, true
	case FlagNotifications:
		return &s.Notifications, true
	case FlagSound:
		return &s.Sound, true
	case FlagAutoStart:
		return &s.AutoStart, true
	}
	return nil, false
}

// FlagValue reports the current value of f.
func (s *UserSettings) FlagValue(f Flag) (bool, error) {
	p, ok := f.field(s)
	if !ok {
		return false, &UnknownFlagError{Flag: string(f)}
	}
	return *p, nil
}

// SetFlag assigns v to f.
func (s *UserSettings) SetFlag(f Flag, v bool) error {
	p, ok := f.field(s)
	if !ok {
		return &UnknownFlagError{Flag: string(f)}
	}
	*p = v
	return nil
}
