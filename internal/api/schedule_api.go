package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"aris/internal/metrics"
	"aris/internal/model"
)

// ScheduleItem is the wire form of a schedule entry.
type ScheduleItem struct {
	Index int    `json:"index"`
	Time  string `json:"time"`
	Task  string `json:"task"`
}

// AddScheduleRequest is the body of POST /api/schedule.
type AddScheduleRequest struct {
	UserID int64  `json:"user_id"`
	Time   string `json:"time"`
	Task   string `json:"task"`
}

// handleSchedule lists, adds and removes daily schedule entries.
// GET    /api/schedule?user_id=N
// POST   /api/schedule
// DELETE /api/schedule?user_id=N&index=K (1-based, in listing order)
// DELETE /api/schedule?user_id=N (clears every entry)
func (s *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedule")
	switch r.Method {
	case http.MethodGet:
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "items": toItems(s.settings.ListSchedule(r.Context(), userID))})

	case http.MethodPost:
		var req AddScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.UserID <= 0 {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		entry, err := model.NewScheduleEntry(req.Time, req.Task)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, err := s.settings.AddScheduleEntry(r.Context(), req.UserID, entry); err != nil {
			s.logger.Error().Err(err).Int64("user_id", req.UserID).Msg("schedule add failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"item":    ScheduleItem{Time: entry.Time(), Task: entry.Task},
			"items":   toItems(s.settings.ListSchedule(r.Context(), req.UserID)),
		})

	case http.MethodDelete:
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rawIndex := r.URL.Query().Get("index")
		if rawIndex == "" {
			if err := s.settings.ClearSchedule(r.Context(), userID); err != nil {
				s.logger.Error().Err(err).Int64("user_id", userID).Msg("schedule clear failed")
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "items": []ScheduleItem{}})
			return
		}
		index, err := strconv.Atoi(rawIndex)
		if err != nil || index < 1 {
			writeError(w, http.StatusBadRequest, "invalid index")
			return
		}
		removed, err := s.settings.RemoveScheduleEntry(r.Context(), userID, index-1)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "item": ScheduleItem{Index: index, Time: removed.Time(), Task: removed.Task}})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func toItems(entries []model.ScheduleEntry) []ScheduleItem {
	items := make([]ScheduleItem, 0, len(entries))
	for i, e := range entries {
		items = append(items, ScheduleItem{Index: i + 1, Time: e.Time(), Task: e.Task})
	}
	return items
}
