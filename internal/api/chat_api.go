package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"aris/internal/chat"
	"aris/internal/metrics"
	"aris/internal/model"
)

// ChatRequest is the body of POST /api/chat/send.
type ChatRequest struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

// handleChatSend answers a prompt through the shared chat service.
// POST /api/chat/send
func (s *HTTPServer) handleChatSend(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("chat_send")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	resp, err := s.responder.Respond(r.Context(), req.UserID, req.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is required")
		return
	case err != nil:
		if _, ok := model.IsGenerationError(err); ok {
			writeError(w, http.StatusBadGateway, "generation failed")
			return
		}
		s.logger.Error().Err(err).Int64("user_id", req.UserID).Msg("chat request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": resp})
}
