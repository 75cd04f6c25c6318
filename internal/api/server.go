// Package api exposes settings, chat and schedule operations over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"aris/internal/model"

	"github.com/rs/zerolog"
)

// Responder answers chat prompts.
type Responder interface {
	Respond(ctx context.Context, userID int64, prompt string) (string, error)
}

// SettingsService is the part of the settings store exposed over HTTP.
type SettingsService interface {
	Get(ctx context.Context, userID int64) *model.UserSettings
	Update(ctx context.Context, userID int64, partial map[string]any) (*model.UserSettings, error)
	Toggle(ctx context.Context, userID int64, name string) (bool, error)
	AddScheduleEntry(ctx context.Context, userID int64, entry model.ScheduleEntry) (*model.UserSettings, error)
	RemoveScheduleEntry(ctx context.Context, userID int64, index int) (model.ScheduleEntry, error)
	ClearSchedule(ctx context.Context, userID int64) error
	ListSchedule(ctx context.Context, userID int64) []model.ScheduleEntry
}

// CacheStats reports the response cache size for /api/health.
type CacheStats interface {
	Len() int
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	settings  SettingsService
	responder Responder
	cache     CacheStats
	apiKey    string
	logger    zerolog.Logger
	srv       *http.Server
	startedAt time.Time
}

// NewHTTPServer builds the server. An empty apiKey disables the x-api-key check.
func NewHTTPServer(port int, apiKey string, settings SettingsService, responder Responder, cache CacheStats, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		settings:  settings,
		responder: responder,
		cache:     cache,
		apiKey:    apiKey,
		logger:    logger.With().Str("component", "api").Logger(),
		startedAt: time.Now(),
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler with authentication applied.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.Handle("/api/settings", s.auth(http.HandlerFunc(s.handleSettings)))
	mux.Handle("/api/settings/toggle", s.auth(http.HandlerFunc(s.handleToggle)))
	mux.Handle("/api/chat/send", s.auth(http.HandlerFunc(s.handleChatSend)))
	mux.Handle("/api/schedule", s.auth(http.HandlerFunc(s.handleSchedule)))
	return mux
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.srv.Addr).Msg("HTTP API listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *HTTPServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("x-api-key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Truncate(time.Second).String(),
	}
	if s.cache != nil {
		resp["cache_entries"] = s.cache.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func userIDParam(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return 0, fmt.Errorf("user_id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user_id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
