package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"aris/internal/metrics"
	"aris/internal/model"
)

// UpdateSettingsRequest carries a partial settings record. Unknown keys and
// values of the wrong type are ignored.
type UpdateSettingsRequest struct {
	UserID   int64          `json:"user_id"`
	Settings map[string]any `json:"settings"`
}

// ToggleRequest is the body of POST /api/settings/toggle.
type ToggleRequest struct {
	UserID int64  `json:"user_id"`
	Flag   string `json:"flag"`
}

// handleSettings returns or merges a user's settings.
// GET  /api/settings?user_id=N
// POST /api/settings
func (s *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("settings")
	switch r.Method {
	case http.MethodGet:
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": s.settings.Get(r.Context(), userID)})
	case http.MethodPost:
		var req UpdateSettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.UserID <= 0 {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		rec, err := s.settings.Update(r.Context(), req.UserID, req.Settings)
		if err != nil {
			s.logger.Error().Err(err).Int64("user_id", req.UserID).Msg("settings update failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": rec})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleToggle flips one flag.
// POST /api/settings/toggle
func (s *HTTPServer) handleToggle(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("settings_toggle")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	value, err := s.settings.Toggle(r.Context(), req.UserID, req.Flag)
	if err != nil {
		if errors.Is(err, model.ErrUnknownFlag) {
			writeError(w, http.StatusBadRequest, "unknown flag")
			return
		}
		s.logger.Error().Err(err).Int64("user_id", req.UserID).Str("flag", req.Flag).Msg("toggle failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "flag": req.Flag, "value": value})
}
