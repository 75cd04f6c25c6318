package settings

import (
	"encoding/json"
	"time"

	"aris/internal/model"
)

// applyFields merges known keys into s and returns the keys it skipped.
// Unknown keys and values of the wrong type are skipped, never fatal.
func applyFields(s *model.UserSettings, fields map[string]json.RawMessage) []string {
	var skipped []string
	for key, raw := range fields {
		if !applyField(s, key, raw) {
			skipped = append(skipped, key)
		}
	}
	return skipped
}

func applyField(s *model.UserSettings, key string, raw json.RawMessage) bool {
	switch key {
	case "user_id":
		// identity comes from the storage key
		return true
	case "schedule":
		var entries []model.ScheduleEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return false
		}
		valid := make([]model.ScheduleEntry, 0, len(entries))
		for _, e := range entries {
			if e.Valid() {
				valid = append(valid, e)
			}
		}
		s.Schedule = valid
		return true
	case "chat_history":
		var history []model.HistoryMessage
		if err := json.Unmarshal(raw, &history); err != nil {
			return false
		}
		if over := len(history) - model.MaxHistoryMessages; over > 0 {
			history = history[over:]
		}
		s.ChatHistory = history
		return true
	case "created_at", "updated_at":
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return false
		}
		if key == "created_at" {
			s.CreatedAt = t
		} else {
			s.UpdatedAt = t
		}
		return true
	}

	flag, err := model.ParseFlag(key)
	if err != nil {
		return false
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	_ = s.SetFlag(flag, v)
	return true
}

// decode builds a record from stored bytes, starting from defaults.
func decode(userID int64, data []byte) (*model.UserSettings, error) {
	s := model.DefaultUserSettings(userID)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return s, err
	}
	applyFields(s, fields)
	return s, nil
}

func toRawFields(partial map[string]any) map[string]json.RawMessage {
	fields := make(map[string]json.RawMessage, len(partial))
	for k, v := range partial {
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		fields[k] = raw
	}
	return fields
}
